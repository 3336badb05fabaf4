package mbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeArchive(t *testing.T, path string, bodies ...string) {
	t.Helper()
	var sb strings.Builder
	for _, body := range bodies {
		sb.WriteString("From sender@example.com Mon Jul 15 09:00:00 2024\n")
		sb.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSources_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.mbox")
	writeArchive(t, path, "Subject: one\n\nbody")

	sources, err := Sources(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 1 || sources[0] != path {
		t.Errorf("Sources = %v, want the file itself", sources)
	}
}

func TestSources_Directory(t *testing.T) {
	dir := t.TempDir()

	writeArchive(t, filepath.Join(dir, "b.mbox"), "Subject: b\n\nbody")
	writeArchive(t, filepath.Join(dir, "a.mbox"), "Subject: a\n\nbody")
	// Extensionless file that is a real archive.
	writeArchive(t, filepath.Join(dir, "inbox"), "Subject: c\n\nbody")
	// Extensionless file that is not an archive.
	if err := os.WriteFile(filepath.Join(dir, "notes"), []byte("just text\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Unrelated extension.
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("From x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := Sources(dir)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		filepath.Join(dir, "a.mbox"),
		filepath.Join(dir, "b.mbox"),
		filepath.Join(dir, "inbox"),
	}
	if len(sources) != len(want) {
		t.Fatalf("Sources = %v, want %v", sources, want)
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Errorf("Sources[%d] = %q, want %q (lexicographic order)", i, sources[i], want[i])
		}
	}
}

func TestIterate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.mbox")
	writeArchive(t, path,
		"Subject: first\n\nbody one",
		"Subject: second\n\nbody two",
		"Subject: third\n\nbody three",
	)

	var subjects []string
	err := Iterate(path, func(raw []byte) error {
		for _, line := range strings.Split(string(raw), "\n") {
			if strings.HasPrefix(line, "Subject: ") {
				subjects = append(subjects, strings.TrimPrefix(line, "Subject: "))
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"first", "second", "third"}
	if len(subjects) != len(want) {
		t.Fatalf("subjects = %v, want %v", subjects, want)
	}
	for i := range want {
		if strings.TrimSpace(subjects[i]) != want[i] {
			t.Errorf("subjects[%d] = %q, want %q", i, subjects[i], want[i])
		}
	}
}

func TestIterate_ErrStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.mbox")
	writeArchive(t, path,
		"Subject: first\n\nbody",
		"Subject: second\n\nbody",
	)

	count := 0
	err := Iterate(path, func(raw []byte) error {
		count++
		return ErrStop
	})
	if err != nil {
		t.Fatalf("ErrStop should end iteration cleanly, got %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestCountMessages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.mbox")
	writeArchive(t, path,
		"Subject: first\n\nbody",
		"Subject: second\n\nbody",
		"Subject: third\n\nbody",
	)

	n, err := CountMessages(path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("CountMessages = %d, want 3", n)
	}
}
