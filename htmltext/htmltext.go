// Package htmltext converts HTML mail parts to visible text. Two
// converters satisfy the same contract: a tokenizer-based one and a
// minimal tag-stripping fallback. Neither lets script or style content
// leak into the output.
package htmltext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Converter turns an HTML document into plain visible text with
// whitespace collapsed.
type Converter interface {
	HTMLToText(s string) string
}

// Default returns the converter used unless the caller selects one
// explicitly.
func Default() Converter {
	return Tokenizer{}
}

// Tokenizer extracts text using an HTML tokenizer, skipping the
// contents of script and style elements entirely.
type Tokenizer struct{}

func (Tokenizer) HTMLToText(s string) string {
	if s == "" {
		return ""
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseWhitespace(sb.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if isSkipped(string(name)) {
				skipDepth++
			} else {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isSkipped(string(name)) {
				if skipDepth > 0 {
					skipDepth--
				}
			} else {
				sb.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

func isSkipped(tag string) bool {
	return tag == "script" || tag == "style"
}

var (
	scriptRe = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
)

// Fallback is the minimal regex tag stripper. Script and style blocks
// are removed before tags so their contents never reach the output.
type Fallback struct{}

func (Fallback) HTMLToText(s string) string {
	if s == "" {
		return ""
	}

	s = scriptRe.ReplaceAllString(s, " ")
	s = styleRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
