// Package mbox locates archive files and iterates their raw records.
package mbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
)

// ErrStop may be returned from an Iterate callback to end iteration
// early without surfacing an error.
var ErrStop = errors.New("stop iteration")

// Sources expands an input path into the list of archives to process.
// A file is returned as-is. A directory yields every *.mbox file plus
// any extensionless file whose first line starts with the "From "
// archive delimiter, sorted lexicographically for reproducible runs.
func Sources(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var sources []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		full := filepath.Join(path, entry.Name())
		ext := filepath.Ext(entry.Name())
		switch {
		case strings.EqualFold(ext, ".mbox"):
			sources = append(sources, full)
		case ext == "" && startsWithFromLine(full):
			sources = append(sources, full)
		}
	}

	sort.Strings(sources)
	return sources, nil
}

func startsWithFromLine(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	line, err := bufio.NewReader(file).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.HasPrefix(line, "From ")
}

// Iterate calls fn with the raw bytes of each record in the archive,
// in order. fn owns the slice. Returning ErrStop ends iteration
// cleanly.
func Iterate(path string, fn func(raw []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	for idx := 0; ; idx++ {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}

		if err := fn(raw); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

// CountMessages counts the records in an archive without parsing them.
// Used to give the progress bar a total when the input is known ahead
// of time.
func CountMessages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}
		if _, err := io.Copy(io.Discard, msgReader); err != nil {
			count++
			continue
		}
		count++
	}
}
