// Package output persists matched messages and attachments under
// collision-safe names, routes decode failures to a quarantine area
// and appends the structured audit log.
package output

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailsift/mailsift/model"
)

const failedDirName = "failed"

var textColumns = []string{
	"filename",
	"original_filename",
	"collision",
	"date",
	"from_address",
	"to",
	"subject",
	"message_id",
	"matched_keywords",
	"match_positions",
	"processing_time_ms",
	"status",
	"error",
}

var attachmentColumns = []string{
	"uuid",
	"eml_filename",
	"date",
	"from_address",
	"subject",
	"message_id",
	"attachment_count",
	"attachment_names",
	"attachment_sizes",
	"attachment_types",
	"total_size_bytes",
	"processing_time_ms",
	"status",
	"error",
}

// Options configures a writer.
type Options struct {
	OutputDir string
	LogPath   string
	DryRun    bool
	Logger    *slog.Logger
}

type base struct {
	dir       string
	failedDir string
	log       *AuditLog
	dryRun    bool
	logger    *slog.Logger
}

func newBase(opts Options, columns []string) (base, error) {
	b := base{
		dir:       opts.OutputDir,
		failedDir: filepath.Join(opts.OutputDir, failedDirName),
		dryRun:    opts.DryRun,
		logger:    opts.Logger,
	}

	if !opts.DryRun {
		if err := os.MkdirAll(b.dir, 0o755); err != nil {
			return base{}, fmt.Errorf("create output directory: %w", err)
		}
		if err := os.MkdirAll(b.failedDir, 0o755); err != nil {
			return base{}, fmt.Errorf("create quarantine directory: %w", err)
		}
	}

	log, err := OpenAuditLog(opts.LogPath, columns)
	if err != nil {
		return base{}, err
	}
	b.log = log
	return b, nil
}

func (b *base) Close() error {
	return b.log.Close()
}

// quarantine writes the raw original record into the quarantine
// subdirectory under a generated identifier. A failure to quarantine
// is logged but never allowed to escalate past the record boundary.
func (b *base) quarantine(raw []byte) string {
	name := "failed_" + uuid.NewString() + ".eml"
	if b.dryRun {
		return name
	}
	if err := os.WriteFile(filepath.Join(b.failedDir, name), raw, 0o644); err != nil {
		if b.logger != nil {
			b.logger.Warn("quarantine write failed", "name", name, "err", err)
		}
	}
	return name
}

// ExtractWriter persists text-mode matches under derived names with
// collision suffixing.
type ExtractWriter struct {
	base
}

func NewExtractWriter(opts Options) (*ExtractWriter, error) {
	b, err := newBase(opts, textColumns)
	if err != nil {
		return nil, err
	}
	return &ExtractWriter{base: b}, nil
}

// Persist writes the complete original record as one artifact and
// appends the audit row. Audit failures are fatal (ErrAudit); artifact
// write failures are per-record and leave the run continuing.
func (w *ExtractWriter) Persist(msg *model.DecodedMessage, res model.MatchResult, raw []byte, took time.Duration) error {
	baseName := DerivedName(msg)
	name := baseName
	collision := false

	var writeErr error
	if !w.dryRun {
		name, collision = uniqueName(w.dir, baseName)
		if collision && w.logger != nil {
			w.logger.Warn("filename collision", "wanted", baseName, "using", name)
		}
		writeErr = os.WriteFile(filepath.Join(w.dir, name), raw, 0o644)
	}

	status := "matched"
	errText := ""
	if writeErr != nil {
		status = "failed"
		errText = writeErr.Error()
	}

	positions := make([]string, 0, len(res.Positions))
	for _, p := range res.Positions {
		positions = append(positions, strconv.Itoa(p.Offset))
	}

	row := []string{
		name,
		baseName,
		strconv.FormatBool(collision),
		msg.Header("Date"),
		msg.Header("From"),
		msg.Header("To"),
		msg.Subject(),
		msg.Header("Message-ID"),
		strings.Join(res.Keywords, ", "),
		strings.Join(positions, ", "),
		strconv.FormatInt(took.Milliseconds(), 10),
		status,
		errText,
	}
	if err := w.log.Append(row); err != nil {
		return err
	}

	if writeErr != nil {
		return fmt.Errorf("write artifact %s: %w", name, writeErr)
	}
	return nil
}

// Fail quarantines a record that could not be decoded and logs the
// reason. Only audit failures propagate.
func (w *ExtractWriter) Fail(msg *model.DecodedMessage, raw []byte, reason string) error {
	name := w.quarantine(raw)
	row := []string{
		name,
		"",
		"false",
		msg.Header("Date"),
		msg.Header("From"),
		msg.Header("To"),
		msg.Subject(),
		msg.Header("Message-ID"),
		"",
		"",
		"0",
		"failed",
		reason,
	}
	return w.log.Append(row)
}

// AttachmentWriter persists attachment-mode matches under random
// unique identifiers, one artifact for the message plus one per
// matched attachment.
type AttachmentWriter struct {
	base
}

func NewAttachmentWriter(opts Options) (*AttachmentWriter, error) {
	b, err := newBase(opts, attachmentColumns)
	if err != nil {
		return nil, err
	}
	return &AttachmentWriter{base: b}, nil
}

func (w *AttachmentWriter) Persist(msg *model.DecodedMessage, res model.MatchResult, raw []byte, took time.Duration) error {
	id := uuid.NewString()
	emlName := id + ".eml"

	var writeErr error
	if !w.dryRun {
		writeErr = os.WriteFile(filepath.Join(w.dir, emlName), raw, 0o644)
	}

	var names, sizes, types []string
	totalSize := 0
	written := 0
	var attErr error
	if writeErr == nil {
		for idx, att := range res.MatchedAttachments {
			if !w.dryRun {
				if err := w.writeAttachment(id, idx+1, att); err != nil {
					if w.logger != nil {
						w.logger.Warn("attachment write failed", "uuid", id, "index", idx+1, "err", err)
					}
					attErr = err
					continue
				}
			}
			names = append(names, att.OriginalFilename)
			sizes = append(sizes, strconv.Itoa(att.Size()))
			types = append(types, att.MimeType)
			totalSize += att.Size()
			written++
		}
	}

	// the count column reflects what is actually on disk, so it always
	// agrees with the names/sizes/types lists
	status := "matched"
	errText := ""
	switch {
	case writeErr != nil:
		status = "failed"
		errText = writeErr.Error()
	case attErr != nil:
		errText = fmt.Sprintf("wrote %d of %d attachments: %v", written, len(res.MatchedAttachments), attErr)
	}

	row := []string{
		id,
		emlName,
		msg.Header("Date"),
		msg.Header("From"),
		msg.Subject(),
		msg.Header("Message-ID"),
		strconv.Itoa(written),
		strings.Join(names, " | "),
		strings.Join(sizes, " | "),
		strings.Join(types, " | "),
		strconv.Itoa(totalSize),
		strconv.FormatInt(took.Milliseconds(), 10),
		status,
		errText,
	}
	if err := w.log.Append(row); err != nil {
		return err
	}

	if writeErr != nil {
		return fmt.Errorf("write artifact %s: %w", emlName, writeErr)
	}
	return nil
}

// writeAttachment stores one matched attachment payload as
// {uuid}_{counter}{ext}, extension taken from the original filename.
func (w *AttachmentWriter) writeAttachment(id string, counter int, att model.Attachment) error {
	ext := filepath.Ext(att.OriginalFilename)
	if ext == "" {
		ext = ".bin"
	}
	name := fmt.Sprintf("%s_%03d%s", id, counter, ext)
	return os.WriteFile(filepath.Join(w.dir, name), att.Payload, 0o644)
}

func (w *AttachmentWriter) Fail(msg *model.DecodedMessage, raw []byte, reason string) error {
	name := w.quarantine(raw)
	row := []string{
		"",
		name,
		msg.Header("Date"),
		msg.Header("From"),
		msg.Subject(),
		msg.Header("Message-ID"),
		"0",
		"",
		"",
		"",
		"0",
		"0",
		"failed",
		reason,
	}
	return w.log.Append(row)
}
