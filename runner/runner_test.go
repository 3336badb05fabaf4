package runner

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mailsift/mailsift/match"
	"github.com/mailsift/mailsift/output"
	"github.com/mailsift/mailsift/stats"
)

// fixtureRecords is an eight-message archive: six vacation replies
// involving jan.novak@firma.cz, one message without keywords and one
// not involving the target at all.
func fixtureRecords() []string {
	return []string{
		strings.Join([]string{
			"From: Jan Novak <jan.novak@firma.cz>",
			"To: team@firma.cz",
			"Subject: Dovolena",
			"Date: Mon, 15 Jul 2024 09:00:00 +0200",
			"Message-ID: <abc123@server.com>",
			"Content-Type: text/plain; charset=utf-8",
			"",
			"Dobry den,",
			"",
			"Jsem na dovolené do 31.8. V případě potřeby kontaktujte kolegu.",
			"",
			"Dekuji",
		}, "\n"),
		strings.Join([]string{
			"From: Jane Smith <jane.smith@company.com>",
			"To: jan.novak@firma.cz",
			"Subject: Out of Office",
			"Date: Tue, 16 Jul 2024 10:00:00 +0200",
			"Message-ID: <xyz456@server.com>",
			"Content-Type: text/plain; charset=utf-8",
			"",
			"Hi,",
			"",
			"I am out of office until Monday. For urgent matters contact my colleague.",
			"",
			"Best regards",
		}, "\n"),
		strings.Join([]string{
			"From: Petr Svoboda <petr.svoboda@firma.cz>",
			"To: jan.novak@firma.cz, marie.nova@firma.cz",
			"Subject: Nemocenska",
			"Date: Wed, 17 Jul 2024 08:30:00 +0200",
			"Message-ID: <def789@server.com>",
			"Content-Type: text/plain; charset=utf-8",
			"",
			"Dobry den,",
			"",
			"Jsem na nemocenské od dneška. Vrátím se příští týden.",
			"",
			"S pozdravem",
		}, "\n"),
		strings.Join([]string{
			"From: Karel Vomacka <karel@firma.cz>",
			"To: jan.novak@firma.cz",
			"Subject: Dotaz",
			"Date: Thu, 18 Jul 2024 11:00:00 +0200",
			"Message-ID: <ghi012@server.com>",
			"Content-Type: text/plain; charset=utf-8",
			"",
			"Ahoj,",
			"",
			"Mohl bys mi poslat tu zprávu? Potřebuji ji na schůzku zítra.",
			"",
			"Diky",
		}, "\n"),
		strings.Join([]string{
			"From: Marie Nova <marie.nova@firma.cz>",
			"To: jan.novak@firma.cz",
			"Cc: team@firma.cz",
			"Subject: Automaticka odpoved: mimo kancelar",
			"Date: Fri, 19 Jul 2024 09:15:00 +0200",
			"Message-ID: <jkl345@server.com>",
			"MIME-Version: 1.0",
			"Content-Type: multipart/alternative; boundary=\"ALT\"",
			"",
			"--ALT",
			"Content-Type: text/plain; charset=utf-8",
			"",
			"Jsem mimo kancelář. Vrátím se za týden.",
			"--ALT",
			"Content-Type: text/html; charset=utf-8",
			"",
			"<html><body><p>Jsem <b>mimo kancelář</b>. Vrátím se za týden.</p></body></html>",
			"--ALT--",
		}, "\n"),
		strings.Join([]string{
			"From: Anna Tesarova <anna@firma.cz>",
			"To: jan.novak@firma.cz",
			"Subject: FW: Info o dovolene",
			"Date: Sat, 20 Jul 2024 14:00:00 +0200",
			"Message-ID: <mno678@server.com>",
			"Content-Type: text/plain; charset=utf-8",
			"",
			"---------- Forwarded message ---------",
			"From: Someone",
			"Subject: Dovolena",
			"",
			"Jsem na dovolené do konce měsíce.",
		}, "\n"),
		strings.Join([]string{
			"From: random@other.com",
			"To: someone@other.com",
			"Subject: Dovolena plany",
			"Date: Sun, 21 Jul 2024 16:00:00 +0200",
			"Message-ID: <pqr901@server.com>",
			"Content-Type: text/plain; charset=utf-8",
			"",
			"Chceš jít na dovolenou společně?",
		}, "\n"),
		strings.Join([]string{
			"From: Tomas Dvorak <tomas.dvorak@firma.cz>",
			"To: jan.novak@firma.cz",
			"Subject: =?windows-1250?Q?=D8=E1dn=E1_dovolen=E1?=",
			"Date: Mon, 22 Jul 2024 07:45:00 +0200",
			"Message-ID: <stu234@server.com>",
			"MIME-Version: 1.0",
			"Content-Type: text/plain; charset=windows-1250",
			"Content-Transfer-Encoding: quoted-printable",
			"",
			"Zdrav=EDm,",
			"",
			"=C8erp=E1m =F8=E1dnou dovolenou do 15.9.",
			"",
			"S pozdravem",
		}, "\n"),
	}
}

func writeFixtureArchive(t *testing.T, path string, records []string) {
	t.Helper()
	var sb strings.Builder
	for _, record := range records {
		sb.WriteString("From sender@example.com Mon Jul 15 09:00:00 2024\n")
		sb.WriteString(record)
		if !strings.HasSuffix(record, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTargetMatcher(t *testing.T) *match.TextMatcher {
	t.Helper()
	m, err := match.NewTextMatcher(match.TextOptions{TargetAddress: "jan.novak@firma.cz"})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newExtractWriter(t *testing.T, outDir, logPath string, dryRun bool) *output.ExtractWriter {
	t.Helper()
	w, err := output.NewExtractWriter(output.Options{
		OutputDir: outDir,
		LogPath:   logPath,
		DryRun:    dryRun,
		Logger:    slog.Default(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	return count
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "test.mbox")
	writeFixtureArchive(t, archive, fixtureRecords())

	outDir := filepath.Join(dir, "out")
	logPath := filepath.Join(dir, "log.csv")
	w := newExtractWriter(t, outDir, logPath, false)

	r := New(Options{}, newTargetMatcher(t), w, slog.Default())
	summary := r.Run(context.Background(), []string{archive})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if summary.State != stats.StateCompleted {
		t.Errorf("State = %s, want completed", summary.State)
	}
	if summary.Err != nil {
		t.Errorf("Err = %v, want nil", summary.Err)
	}
	if summary.Processed != 8 {
		t.Errorf("Processed = %d, want 8", summary.Processed)
	}
	if summary.Matched != 6 {
		t.Errorf("Matched = %d, want 6", summary.Matched)
	}
	if summary.Failed != 0 {
		t.Errorf("Failed = %d, want 0", summary.Failed)
	}
	if summary.NonMatched() != 2 {
		t.Errorf("NonMatched = %d, want 2", summary.NonMatched())
	}

	// Six artifacts, none quarantined.
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	artifacts := 0
	for _, e := range entries {
		if !e.IsDir() {
			artifacts++
		}
	}
	if artifacts != 6 {
		t.Errorf("artifacts = %d, want 6", artifacts)
	}
	if n := countFiles(t, filepath.Join(outDir, "failed")); n != 0 {
		t.Errorf("quarantined = %d, want 0", n)
	}

	// The windows-1250 message must appear in the log with its subject
	// decoded.
	logData, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(logData), "Řádná dovolená") {
		t.Errorf("log does not contain the decoded windows-1250 subject")
	}

	// The two non-matches are exactly the keyword-free message and the
	// one not involving the target address.
	for _, subject := range []string{"Dotaz", "Dovolena plany"} {
		if strings.Contains(string(logData), subject) {
			t.Errorf("log contains non-matching message %q", subject)
		}
	}
}

func TestRun_DryRunMatchesWetRunCounts(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "test.mbox")
	writeFixtureArchive(t, archive, fixtureRecords())

	outDir := filepath.Join(dir, "out")
	logPath := filepath.Join(dir, "log.csv")
	w := newExtractWriter(t, outDir, logPath, true)

	r := New(Options{}, newTargetMatcher(t), w, slog.Default())
	summary := r.Run(context.Background(), []string{archive})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if summary.Processed != 8 || summary.Matched != 6 || summary.Failed != 0 {
		t.Errorf("counters = %d/%d/%d, want 8/6/0", summary.Processed, summary.Matched, summary.Failed)
	}
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Errorf("dry run created the output directory")
	}

	// The audit log is still written.
	file, err := os.Open(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 7 {
		t.Errorf("log rows = %d, want header plus 6 matches", len(rows))
	}
}

func TestRun_LimitCapsProcessing(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "test.mbox")
	writeFixtureArchive(t, archive, fixtureRecords())

	w := newExtractWriter(t, filepath.Join(dir, "out"), filepath.Join(dir, "log.csv"), false)
	r := New(Options{Limit: 3}, newTargetMatcher(t), w, slog.Default())
	summary := r.Run(context.Background(), []string{archive})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if summary.Processed != 3 {
		t.Errorf("Processed = %d, want 3", summary.Processed)
	}
	if summary.State != stats.StateCompleted {
		t.Errorf("State = %s, want completed", summary.State)
	}
}

func TestRun_LimitSpansArchives(t *testing.T) {
	dir := t.TempDir()
	records := fixtureRecords()
	first := filepath.Join(dir, "a.mbox")
	second := filepath.Join(dir, "b.mbox")
	writeFixtureArchive(t, first, records[:4])
	writeFixtureArchive(t, second, records[4:])

	w := newExtractWriter(t, filepath.Join(dir, "out"), filepath.Join(dir, "log.csv"), false)
	r := New(Options{Limit: 6}, newTargetMatcher(t), w, slog.Default())
	summary := r.Run(context.Background(), []string{first, second})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if summary.Processed != 6 {
		t.Errorf("Processed = %d, want 6 across both archives", summary.Processed)
	}
}

func TestRun_DecodeFailureIsolated(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "test.mbox")
	records := fixtureRecords()
	// A record whose header block cannot be parsed.
	broken := "this line is not a header\nFrom: broken@firma.cz\n\nbody"
	writeFixtureArchive(t, archive, []string{records[0], broken, records[1]})

	outDir := filepath.Join(dir, "out")
	w := newExtractWriter(t, outDir, filepath.Join(dir, "log.csv"), false)
	r := New(Options{}, newTargetMatcher(t), w, slog.Default())
	summary := r.Run(context.Background(), []string{archive})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if summary.State != stats.StateCompleted {
		t.Errorf("State = %s, want completed despite a bad record", summary.State)
	}
	if summary.Processed != 3 {
		t.Errorf("Processed = %d, want 3", summary.Processed)
	}
	if summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", summary.Failed)
	}
	if summary.Matched != 2 {
		t.Errorf("Matched = %d, want 2", summary.Matched)
	}
	if n := countFiles(t, filepath.Join(outDir, "failed")); n != 1 {
		t.Errorf("quarantined = %d, want 1", n)
	}
}

func TestRun_CancelledContextInterrupts(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "test.mbox")
	writeFixtureArchive(t, archive, fixtureRecords())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := newExtractWriter(t, filepath.Join(dir, "out"), filepath.Join(dir, "log.csv"), false)
	summary := New(Options{}, newTargetMatcher(t), w, slog.Default()).Run(ctx, []string{archive})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if summary.State != stats.StateInterrupted {
		t.Errorf("State = %s, want interrupted", summary.State)
	}
	if summary.Processed != 0 {
		t.Errorf("Processed = %d, want 0", summary.Processed)
	}
}

func TestRun_FinalProgressSnapshot(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "test.mbox")
	writeFixtureArchive(t, archive, fixtureRecords())

	var last Progress
	w := newExtractWriter(t, filepath.Join(dir, "out"), filepath.Join(dir, "log.csv"), false)
	r := New(Options{
		Total:      8,
		OnProgress: func(p Progress) { last = p },
	}, newTargetMatcher(t), w, slog.Default())
	r.Run(context.Background(), []string{archive})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if last.Processed != 8 || last.Matched != 6 || last.Total != 8 {
		t.Errorf("final snapshot = %+v, want processed 8, matched 6, total 8", last)
	}
}

func TestRun_MissingArchiveAborts(t *testing.T) {
	dir := t.TempDir()
	w := newExtractWriter(t, filepath.Join(dir, "out"), filepath.Join(dir, "log.csv"), false)
	summary := New(Options{}, newTargetMatcher(t), w, slog.Default()).
		Run(context.Background(), []string{filepath.Join(dir, "missing.mbox")})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if summary.State != stats.StateAborted {
		t.Errorf("State = %s, want aborted", summary.State)
	}
	if summary.Err == nil {
		t.Error("Err = nil, want the open failure")
	}
}
