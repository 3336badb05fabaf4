package match

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultPatterns is the built-in vacation/out-of-office rule set.
// Patterns are written against normalized text (lowercase, accents
// folded), so they are diacritic-free.
func DefaultPatterns() []string {
	return []string{
		// dovolena
		`\bdovolen[aeouyi][a-z]*`,
		`\bdov\b`,
		`\bdov\.`,
		`\bcerp[aei][a-z]*\s+dovolen`,
		`\bzaslouzen[aeouyi]*\s+dovolen`,
		`\bradn[aeouyi]*\s+dovolen`,

		// prazdniny
		`\bprazdnin[aeouyi]*`,
		`\bprazd\.`,

		// volno
		`\bvoln[aeouyi][a-z]*`,
		`\bvoln\b`,

		// nepritomnost
		`\bnepritom[a-z]*`,
		`\bneprit\b`,
		`\bneprit\.`,

		// mimo kancelar
		`\bmimo\s+kancela[rz][a-z]*`,
		`\bmimo\s+k\b`,
		`\bmimo\s+k\.`,
		`\bmimo\s+provoz`,

		// out of office
		`\bo+\s*o+\s*o+`,
		`\bout\s+of\s+office`,
		`\bout\s+off`,

		// nemocenska / sick leave
		`\bnemocensk[aeouyi]*`,
		`\bnemoc\b`,
		`\bnemoc\.`,
		`\bnem\b`,
		`\bnem\.`,
		`\bpn\b`,
		`\bp\.?\s*n\.`,
		`\bpracovn[aeouyi]*\s+neschopn`,
		`\bneschopenk[aeouyi]`,

		// zdravotni
		`\bzdravotn[aeouyi][a-z]*`,
		`\bzdr\.`,
		`\bzdr\s+voln`,
		`\bzdr\s+d[uu]vod`,

		// absence
		`\babsen[ct][a-z]*`,
		`\babs\b`,
		`\babs\.`,

		// nedostupny
		`\bnedostupn[aeouyi]*`,
		`\bnedost\b`,
		`\bnedost\.`,
		`\bne\s+budu\s+dostupn`,

		// rodicovska / materska / otcovska
		`\brodicovsk[aeouyi]*`,
		`\brd\b`,
		`\brd\.`,
		`\br\.?\s*d\.`,
		`\bmatersk[aeouyi]*`,
		`\bmat\b`,
		`\bmat\.`,
		`\botcovsk[aeouyi]*`,
		`\bot\b`,
		`\bot\.`,

		// navrat / vratim se
		`\bvrat[ii][a-z]*\s+se`,
		`\bzpet\s+(od|az|do|v)`,
		`\bnavrat`,
		`\bbudu\s+zpet`,
		`\bbudu\s+zpatky`,
		`\bzpat(ky|ecky)`,

		// k dispozici
		`\bk\s+dispozici`,
		`\bdispozic[iei]`,
		`\bne\s+budu\s+k\s+zastiz`,
		`\bk\s+zastiz`,

		// uzivam si / relax
		`\buziv[aei][a-z]*`,
		`\bbav[ii][a-z]*\s+se`,
		`\brelax`,
		`\bodpociv[aei]`,

		// english
		`\bvacation`,
		`\bholiday`,
		`\bholidays`,
		`\bsick\s+leave`,
		`\bsick\s+day`,
		`\bsickday`,
		`\btime\s+off`,
		`\bpto\b`,
		`\bleave\b`,
		`\bunavailable`,
		`\baway`,
		`\boff\s+work`,
		`\boff\s+duty`,
		`\bautoreply`,
		`\bauto\s+reply`,
		`\bautomatic\s+reply`,

		// specific phrases
		`\bv\s+dob[ee]\s+m[ee]\s+nepritom`,
		`\bpo\s+dobu\s+m[ee]\s+nepritom`,
		`\bbehem\s+m[ee]\s+nepritom`,
		`\bodpov[ii][a-z]*\s+az\s+po`,
		`\bnemonitor`,
		`\bne\s+check`,
		`\bomezen[aeouyi]*\s+prist`,
		`\blimited\s+access`,
		`\bno\s+access`,
		`\bno\s+email`,

		// time indicators
		`\bod\s+\d+\.\d+`,
		`\bdo\s+\d+\.\d+`,
		`\baz\s+do\s+\d+`,
		`\bvr[aa]t[ii][a-z]*\s+\d+\.`,
	}
}

// LoadPatternFile reads a rule file: one regex per line, blank lines
// and lines starting with # skipped.
func LoadPatternFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pattern file: %w", err)
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("pattern file %s contains no patterns", path)
	}
	return patterns, nil
}
