package match

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mailsift/mailsift/model"
)

func plainMessage(from, to, subject, body string) *model.DecodedMessage {
	return &model.DecodedMessage{
		Headers: map[string]string{
			"from":    from,
			"to":      to,
			"subject": subject,
		},
		BodyText:        body,
		DecodeSucceeded: true,
	}
}

func TestTextMatcher_Keywords(t *testing.T) {
	m, err := NewTextMatcher(TextOptions{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		subject string
		body    string
		want    bool
	}{
		{"czech vacation", "Re: schuzka", "Jsem na dovolené do 20.7., v urgentních případech volejte kolegu.", true},
		{"accented uppercase", "Řádná dovolená", "Čerpám řádnou dovolenou do 15.9. a nebudu dostupný.", true},
		{"english ooo", "Out of office", "I am out of office until Monday with limited access to email.", true},
		{"sick leave", "Re: podklady", "Jsem na nemocenské, vrátím se příští týden do kanceláře.", true},
		{"plain business mail", "Faktura 2024001", "V příloze zasílám fakturu za služby, splatnost 14 dní.", false},
		{"short body falls back to subject", "dovolena", "ok", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := plainMessage("a@b.cz", "c@d.cz", tt.subject, tt.body)
			res := m.Match(msg)
			if res.Matched != tt.want {
				t.Errorf("Matched = %v, want %v (keywords %v)", res.Matched, tt.want, res.Keywords)
			}
			if res.Matched && len(res.Positions) != len(res.Keywords) {
				t.Errorf("Positions = %d entries, Keywords = %d", len(res.Positions), len(res.Keywords))
			}
		})
	}
}

func TestTextMatcher_PositionsAreRuneOffsets(t *testing.T) {
	m, err := NewTextMatcher(TextOptions{Patterns: []string{`dovolen[aeouyi][a-z]*`}})
	if err != nil {
		t.Fatal(err)
	}

	// Subject holds a multibyte rune before the match so byte and rune
	// offsets diverge. The rune must survive normalization unfolded.
	msg := plainMessage("a@b.cz", "c@d.cz", "日 dovolena", "x")
	res := m.Match(msg)
	if !res.Matched {
		t.Fatal("expected a match")
	}
	if got := res.Positions[0].Offset; got != 2 {
		t.Errorf("Offset = %d, want 2 (rune offset, not byte offset)", got)
	}
}

func TestTextMatcher_DuplicateKeywordsRecordedOnce(t *testing.T) {
	m, err := NewTextMatcher(TextOptions{Patterns: []string{
		`dovolen[aeouyi][a-z]*`,
		`dovolen\w*`,
	}})
	if err != nil {
		t.Fatal(err)
	}

	msg := plainMessage("a@b.cz", "c@d.cz", "x", "jsem na dovolene od zitrka")
	res := m.Match(msg)
	if len(res.Keywords) != 1 {
		t.Errorf("Keywords = %v, want one distinct fragment", res.Keywords)
	}
}

func TestTextMatcher_TargetAddress(t *testing.T) {
	tests := []struct {
		name     string
		fromOnly bool
		from     string
		to       string
		want     bool
	}{
		{"target in from", false, "Jan Novak <jan.novak@firma.cz>", "x@y.cz", true},
		{"target in to", false, "x@y.cz", "jan.novak@firma.cz", true},
		{"target absent", false, "x@y.cz", "z@y.cz", false},
		{"from-only hit", true, "jan.novak@firma.cz", "x@y.cz", true},
		{"from-only ignores to", true, "x@y.cz", "jan.novak@firma.cz", false},
		{"case-insensitive", false, "Jan.Novak@Firma.CZ", "x@y.cz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewTextMatcher(TextOptions{
				TargetAddress: "jan.novak@firma.cz",
				FromOnly:      tt.fromOnly,
			})
			if err != nil {
				t.Fatal(err)
			}
			msg := plainMessage(tt.from, tt.to, "dovolena", "Jsem na dovolené do konce měsíce.")
			if got := m.Match(msg).Matched; got != tt.want {
				t.Errorf("Matched = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTextMatcher_ReplyOnly(t *testing.T) {
	body := "Diky za zpravu.\n\nDne 15.7.2024 v 9:00 Jan Novak napsal(a):\n> Jsem na dovolené do 20.7."

	plain, err := NewTextMatcher(TextOptions{})
	if err != nil {
		t.Fatal(err)
	}
	replyOnly, err := NewTextMatcher(TextOptions{ReplyOnly: true})
	if err != nil {
		t.Fatal(err)
	}

	msg := plainMessage("a@b.cz", "c@d.cz", "Re: odpoved", body)

	if !plain.Match(msg).Matched {
		t.Error("full-body search should match quoted vacation text")
	}
	if replyOnly.Match(msg).Matched {
		t.Error("reply-only search should not match text inside quoted history")
	}
}

func TestLoadPatternFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.txt")
	content := "# comment line\n\n\\bdovolen[aeouyi][a-z]*\n  \n\\bout\\s+of\\s+office\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	patterns, err := LoadPatternFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(patterns) != 2 {
		t.Fatalf("patterns = %v, want 2 entries", patterns)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("# only comments\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPatternFile(empty); err == nil {
		t.Error("expected error for a pattern file with no rules")
	}
}

func TestAttachmentMatcher(t *testing.T) {
	msg := &model.DecodedMessage{
		Headers:         map[string]string{"subject": "Podklady"},
		DecodeSucceeded: true,
		Attachments: []model.Attachment{
			{OriginalFilename: "Faktura_Č.pdf", MimeType: "application/pdf", Payload: []byte("%PDF")},
			{OriginalFilename: "report.txt", MimeType: "text/plain", Payload: []byte("txt")},
			{OriginalFilename: "", MimeType: "image/png", Payload: []byte("png")},
		},
	}

	m, err := NewAttachmentMatcher(`faktura`, false)
	if err != nil {
		t.Fatal(err)
	}

	res := m.Match(msg)
	if !res.Matched {
		t.Fatal("expected a match")
	}
	if len(res.MatchedAttachments) != 1 {
		t.Fatalf("MatchedAttachments = %d, want 1", len(res.MatchedAttachments))
	}

	att := res.MatchedAttachments[0]
	if att.OriginalFilename != "Faktura_Č.pdf" {
		t.Errorf("OriginalFilename = %q", att.OriginalFilename)
	}
	if got := att.NormalizedFilename(); got != "faktura_c.pdf" {
		t.Errorf("NormalizedFilename = %q, want faktura_c.pdf", got)
	}
}

func TestAttachmentMatcher_CaseSensitive(t *testing.T) {
	if _, err := NewAttachmentMatcher("", false); err == nil {
		t.Error("expected error for empty pattern")
	}

	m, err := NewAttachmentMatcher(`FAKTURA`, true)
	if err != nil {
		t.Fatal(err)
	}

	// Normalized names are lowercase, so an uppercase case-sensitive
	// pattern never fires.
	msg := &model.DecodedMessage{
		Attachments: []model.Attachment{
			{OriginalFilename: "FAKTURA.pdf"},
		},
	}
	if m.Match(msg).Matched {
		t.Error("case-sensitive uppercase pattern matched a normalized name")
	}
}

func TestImmediateReply(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"gmail quote",
			"Jsem na dovolené do 20.7.\n\nOn Mon, Jul 15, 2024 at 9:00 AM Jan wrote:\n> puvodni text",
			"Jsem na dovolené do 20.7.",
		},
		{
			"czech thunderbird quote",
			"Čerpám dovolenou, vrátím se 1.8.\n\nDne 15.7.2024 v 9:00 Jan Novak napsal(a):\n> text",
			"Čerpám dovolenou, vrátím se 1.8.",
		},
		{
			"no quote returns everything",
			"Jsem na dovolené do 20.7. a nebudu dostupný.",
			"Jsem na dovolené do 20.7. a nebudu dostupný.",
		},
		{
			"short reply without quote keeps full body",
			"Diky",
			"Diky",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImmediateReply(tt.body); got != tt.want {
				t.Errorf("ImmediateReply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddresses(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"display name", "Jan Novak <Jan.Novak@Firma.CZ>", []string{"jan.novak@firma.cz"}},
		{"list", "a@b.cz, c@d.cz", []string{"a@b.cz", "c@d.cz"}},
		{"loose fallback", "nejaky rozbity header jan.novak@firma.cz konec", []string{"jan.novak@firma.cz"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Addresses(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("Addresses(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Addresses(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}
