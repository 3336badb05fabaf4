package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
)

// ErrAudit marks failures of the audit log itself. An extraction with
// no audit trail is not an acceptable partial result, so callers treat
// these as fatal while ordinary per-record persist errors are not.
var ErrAudit = errors.New("audit log failure")

// AuditLog is an append-only CSV table with a header row, flushed
// after every row so the log is consistent at any interruption point.
type AuditLog struct {
	file *os.File
	w    *csv.Writer
}

func OpenAuditLog(path string, columns []string) (*AuditLog, error) {
	info, statErr := os.Stat(path)
	needHeader := errors.Is(statErr, os.ErrNotExist) || (statErr == nil && info.Size() == 0)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrAudit, path, err)
	}

	log := &AuditLog{file: file, w: csv.NewWriter(file)}
	if needHeader {
		if err := log.Append(columns); err != nil {
			file.Close()
			return nil, err
		}
	}
	return log, nil
}

func (l *AuditLog) Append(row []string) error {
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("%w: write row: %v", ErrAudit, err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrAudit, err)
	}
	return nil
}

func (l *AuditLog) Close() error {
	l.w.Flush()
	var firstErr error
	if err := l.w.Error(); err != nil {
		firstErr = fmt.Errorf("%w: flush: %v", ErrAudit, err)
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w: close: %v", ErrAudit, err)
	}
	return firstErr
}
