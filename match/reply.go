package match

import (
	"regexp"
	"strings"
)

// Lines matching any of these mark the start of quoted history: quote
// prefixes, localized "On <date>, <person> wrote:" headers and the
// dash/underscore separators mail clients put before forwarded blocks.
var quotePatterns = []*regexp.Regexp{
	// Gmail and similar
	regexp.MustCompile(`(?i)^On\s+.+\d{4}.+wrote:\s*$`),
	regexp.MustCompile(`(?i)^On\s+\d{1,2}/\d{1,2}/\d{2,4}.+wrote:\s*$`),

	// Czech Thunderbird
	regexp.MustCompile(`(?i)^Dne\s+\d{1,2}\.\d{1,2}\.\d{2,4}.+napsal`),
	regexp.MustCompile(`(?i)^Dne\s+.+napsal\(a\):`),

	// Outlook
	regexp.MustCompile(`(?i)^-{3,}.*Original.*Message.*-{3,}`),
	regexp.MustCompile(`^_{5,}\s*$`),
	regexp.MustCompile(`(?i)^From:\s*.+$`),

	// quote prefix lines
	regexp.MustCompile(`^\s*>+`),
	regexp.MustCompile(`^\s*\|`),

	// date-based headers
	regexp.MustCompile(`(?i)^\d{4}-\d{2}-\d{2}\s+\d{1,2}:\d{2}.+wrote:`),
	regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}`),
}

// Trimmed replies shorter than this without a detected quote marker
// are treated as a trimming artifact and the full body is kept.
const minReplyLength = 20

// ImmediateReply returns the leading portion of a body before the
// first quoted-history marker.
func ImmediateReply(body string) string {
	if len(strings.TrimSpace(body)) < minBodyLength {
		return body
	}

	var immediate []string
	quoteDetected := false

scan:
	for _, line := range strings.Split(body, "\n") {
		for _, re := range quotePatterns {
			if re.MatchString(line) {
				quoteDetected = true
				break scan
			}
		}
		immediate = append(immediate, line)
	}

	trimmed := strings.TrimSpace(strings.Join(immediate, "\n"))

	if quoteDetected {
		if trimmed == "" {
			return body
		}
		return trimmed
	}
	if len(trimmed) < minReplyLength {
		return body
	}
	return trimmed
}
