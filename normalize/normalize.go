// Package normalize canonicalizes text for pattern matching: lowercase,
// diacritics folded to their ASCII base. Pattern authors write a single
// accent-free pattern and it matches every capitalization and accent
// variant of the same word.
package normalize

import "strings"

// foldTable maps accented runes to their unaccented base. Covers Czech
// diacritics plus the common Western-European set. Runes outside the
// table pass through unchanged, including non-Latin scripts.
var foldTable = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a',
	'č': 'c', 'ç': 'c', 'ć': 'c',
	'ď': 'd',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e', 'ě': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ň': 'n', 'ñ': 'n',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o', 'ø': 'o',
	'ř': 'r',
	'š': 's', 'ś': 's',
	'ť': 't',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u', 'ů': 'u',
	'ý': 'y', 'ÿ': 'y',
	'ž': 'z', 'ź': 'z', 'ż': 'z',
}

// Normalize lowercases s and folds accented characters to ASCII.
// It is pure, total and idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		if base, ok := foldTable[r]; ok {
			return base
		}
		return r
	}, s)
}
