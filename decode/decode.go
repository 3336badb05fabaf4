// Package decode turns one raw archived email record into a structured
// message: decoded headers, a plain-text body across all MIME parts,
// and attachment descriptors with decoded payloads. Malformed input
// never escapes the record boundary; the worst outcome is a message
// with DecodeSucceeded set to false and whatever was recoverable.
package decode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"

	"github.com/mailsift/mailsift/htmltext"
	"github.com/mailsift/mailsift/model"
)

// Decoder decodes raw records. The HTML converter is swappable; both
// shipped converters satisfy the same contract.
type Decoder struct {
	HTML htmltext.Converter
}

func New() *Decoder {
	return &Decoder{HTML: htmltext.Default()}
}

// Decode parses a raw record into a DecodedMessage. It never returns
// an error and never panics: structural failures produce a message
// with DecodeSucceeded=false and salvaged headers.
func (d *Decoder) Decode(raw []byte) (msg *model.DecodedMessage) {
	msg = &model.DecodedMessage{
		Headers:         make(map[string]string),
		DecodeSucceeded: true,
	}

	defer func() {
		if r := recover(); r != nil {
			msg.DecodeSucceeded = false
			msg.DecodeErr = fmt.Sprintf("panic while decoding: %v", r)
			if len(msg.Headers) == 0 {
				salvageHeaders(raw, msg)
			}
		}
	}()

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		msg.DecodeSucceeded = false
		msg.DecodeErr = fmt.Sprintf("parse message: %v", err)
		salvageHeaders(raw, msg)
		return msg
	}
	if entity == nil {
		msg.DecodeSucceeded = false
		msg.DecodeErr = "parse message: no entity"
		salvageHeaders(raw, msg)
		return msg
	}

	collectHeaders(entity, msg)

	var st walkState
	d.walk(entity, msg, &st)
	msg.BodyText = strings.Join(st.texts, " ")

	return msg
}

// walkState carries per-message decoding state across the MIME tree:
// the collected body fragments and whether a primary text part has
// been seen yet.
type walkState struct {
	texts       []string
	primarySeen bool
}

func collectHeaders(entity *message.Entity, msg *model.DecodedMessage) {
	fields := entity.Header.Fields()
	for fields.Next() {
		key := strings.ToLower(fields.Key())
		value := DecodeHeaderValue(fields.Value())
		if prev, ok := msg.Headers[key]; ok && prev != "" {
			msg.Headers[key] = prev + ", " + value
		} else {
			msg.Headers[key] = value
		}
	}
}

func (d *Decoder) walk(entity *message.Entity, msg *model.DecodedMessage, st *walkState) {
	mediaType, params, err := entity.Header.ContentType()
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := entity.MultipartReader()
		if mr == nil {
			return
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			if part == nil {
				if err != nil {
					msg.DecodeSucceeded = false
					msg.DecodeErr = fmt.Sprintf("read part: %v", err)
				}
				return
			}
			// unknown-charset errors are expected here; the fallback
			// chain decodes the raw bytes instead
			d.walk(part, msg, st)
			if err != nil && !message.IsUnknownCharset(err) {
				msg.DecodeSucceeded = false
				msg.DecodeErr = fmt.Sprintf("read part: %v", err)
				return
			}
		}
	}

	d.leaf(entity, mediaType, params, msg, st)
}

// leaf classifies a non-multipart part as body text or attachment. The
// first text part without an attachment disposition is the primary
// body; any later part declaring a filename is an attachment even when
// it is itself text/plain or text/html (covers inline images
// referenced by Content-ID and named text attachments). Unnamed text
// parts always contribute to the body, so multipart/alternative
// variants stay body text.
func (d *Decoder) leaf(entity *message.Entity, mediaType string, params map[string]string, msg *model.DecodedMessage, st *walkState) {
	disp, dispParams, _ := entity.Header.ContentDisposition()
	disp = strings.ToLower(disp)

	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}
	filename = DecodeHeaderValue(filename)

	body, err := io.ReadAll(entity.Body)
	if err != nil && len(body) == 0 {
		msg.DecodeSucceeded = false
		msg.DecodeErr = fmt.Sprintf("read part body: %v", err)
		return
	}

	isText := mediaType == "text/plain" || mediaType == "text/html"

	switch {
	case disp == "attachment" || (filename != "" && (!isText || st.primarySeen)):
		msg.Attachments = append(msg.Attachments, model.Attachment{
			OriginalFilename: filename,
			MimeType:         mediaType,
			Payload:          body,
		})
	case isText:
		st.primarySeen = true
		text := DecodeText(body, params["charset"])
		if mediaType == "text/html" {
			text = d.HTML.HTMLToText(text)
		}
		if text != "" {
			st.texts = append(st.texts, text)
		}
	}
}

// salvageHeaders recovers what header lines it can from a record that
// failed structural parsing.
func salvageHeaders(raw []byte, msg *model.DecodedMessage) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lastKey := ""
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			return
		}
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && lastKey != "" {
			msg.Headers[lastKey] += " " + strings.TrimSpace(line)
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found || strings.ContainsAny(key, " \t") {
			continue
		}
		lastKey = strings.ToLower(key)
		msg.Headers[lastKey] = DecodeHeaderValue(strings.TrimSpace(value))
	}
}
