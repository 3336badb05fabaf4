package model

import (
	"strings"

	"github.com/mailsift/mailsift/normalize"
)

// DecodedMessage is the structured view of one archived email record.
type DecodedMessage struct {
	// Headers maps lower-cased header names to decoded values. Repeated
	// headers (To, Cc, Received) are concatenated with ", ".
	Headers map[string]string

	// BodyText is the plain-text rendition of all text-bearing parts,
	// HTML converted to visible text, concatenated in order of
	// appearance.
	BodyText string

	// Attachments in order of appearance.
	Attachments []Attachment

	// DecodeSucceeded is false when the record could not be fully
	// parsed; Headers, BodyText and Attachments then hold whatever was
	// recoverable.
	DecodeSucceeded bool

	// DecodeErr describes the failure when DecodeSucceeded is false.
	DecodeErr string
}

// Header returns the decoded value for a header name, case-insensitively.
func (m *DecodedMessage) Header(name string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[strings.ToLower(name)]
}

// Subject returns the decoded Subject header, or "(No Subject)" when
// absent or blank.
func (m *DecodedMessage) Subject() string {
	s := strings.TrimSpace(m.Header("Subject"))
	if s == "" {
		return "(No Subject)"
	}
	return s
}

// Attachment describes one MIME part classified as an attachment,
// with its payload already transfer-decoded.
type Attachment struct {
	OriginalFilename string
	MimeType         string
	Payload          []byte
}

// NormalizedFilename is the accent-folded, lowercased form of the
// original filename used for pattern matching. Computed on demand so
// it can never go stale against OriginalFilename.
func (a Attachment) NormalizedFilename() string {
	return normalize.Normalize(a.OriginalFilename)
}

// Size returns the decoded payload size in bytes.
func (a Attachment) Size() int {
	return len(a.Payload)
}

// MatchPosition records where a rule first fired in the normalized
// search corpus.
type MatchPosition struct {
	Keyword string
	Offset  int
}

// MatchResult is the outcome of evaluating one message against the
// active rule set.
type MatchResult struct {
	Matched bool

	// Keywords lists the distinct matched fragments in rule order
	// (text mode only).
	Keywords []string

	// Positions holds the first character offset for each keyword
	// (text mode only).
	Positions []MatchPosition

	// MatchedAttachments is the subsequence of the message's
	// attachments whose normalized filename satisfied the filename
	// pattern (attachment mode only).
	MatchedAttachments []Attachment
}
