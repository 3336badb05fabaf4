package output

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mailsift/mailsift/match"
	"github.com/mailsift/mailsift/model"
)

const maxFilenameLength = 255

// DerivedName builds the content-derived artifact name
//
//	{date}_{from}_{messageid}_{subject}.eml
//
// from decoded headers, with every part sanitized for common
// filesystems and length-capped.
func DerivedName(msg *model.DecodedMessage) string {
	date := "00000000_000000"
	if v := msg.Header("Date"); v != "" {
		if t, err := mail.ParseDate(v); err == nil {
			date = t.Format("20060102_150405")
		}
	}

	from := "unknown"
	if addrs := match.Addresses(msg.Header("From")); len(addrs) > 0 {
		local, _, _ := strings.Cut(addrs[0], "@")
		from = sanitizePart(local, 30)
	}

	msgID := messageIDFragment(msg.Header("Message-ID"))

	subject := "no_subject"
	if s := strings.TrimSpace(msg.Header("Subject")); s != "" {
		subject = sanitizePart(s, 30)
	}

	name := fmt.Sprintf("%s_%s_%s_%s.eml", date, from, msgID, subject)
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength-4] + ".eml"
	}
	return name
}

var nonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9]`)

func messageIDFragment(id string) string {
	id = strings.Trim(strings.TrimSpace(id), "<>")
	id, _, _ = strings.Cut(id, "@")
	id = nonAlnumRe.ReplaceAllString(id, "")
	if id == "" {
		return "nomsgid"
	}
	if len(id) > 20 {
		id = id[:20]
	}
	return id
}

var squeezeRe = regexp.MustCompile(`[\s_]+`)

// sanitizePart makes a header fragment safe for use in a filename.
func sanitizePart(text string, maxLen int) string {
	if text == "" {
		return "unknown"
	}

	for _, c := range `<>:"/\|?*` {
		text = strings.ReplaceAll(text, string(c), "_")
	}
	text = squeezeRe.ReplaceAllString(text, "_")
	text = strings.Trim(text, "_")

	if len(text) > maxLen {
		text = text[:maxLen]
	}
	if text == "" {
		return "unknown"
	}
	return text
}

// uniqueName resolves base against dir, appending an incrementing
// numeric suffix while a file already exists at the candidate path.
func uniqueName(dir, base string) (name string, collision bool) {
	if !exists(filepath.Join(dir, base)) {
		return base, false
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for counter := 1; counter <= 9999; counter++ {
		candidate := fmt.Sprintf("%s_%03d%s", stem, counter, ext)
		if !exists(filepath.Join(dir, candidate)) {
			return candidate, true
		}
	}

	// suffix space exhausted; fall back to a timestamp
	return fmt.Sprintf("%s_%d%s", stem, time.Now().UnixMilli(), ext), true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
