package decode

import (
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// charsetStep is one link in the decode fallback chain.
type charsetStep struct {
	name   string
	decode func([]byte) (string, bool)
}

// fallbackChain returns the ordered decode attempts for a part:
// declared charset first, then the regional fallback, then UTF-8, then
// Latin-1. The final link accepts arbitrary byte sequences, so the
// chain as a whole never fails.
func fallbackChain(declared string) []charsetStep {
	var chain []charsetStep
	declared = strings.TrimSpace(strings.ToLower(declared))
	if declared != "" {
		chain = append(chain, charsetStep{declared, declaredDecoder(declared)})
	}
	chain = append(chain,
		charsetStep{"windows-1250", encodingDecoder(charmap.Windows1250)},
		charsetStep{"utf-8", utf8Decoder},
		charsetStep{"latin1", latin1Decoder},
	)
	return chain
}

// DecodeText decodes raw part bytes using the fallback chain. Total:
// every byte sequence decodes to some string.
func DecodeText(b []byte, declared string) string {
	if len(b) == 0 {
		return ""
	}
	for _, step := range fallbackChain(declared) {
		if s, ok := step.decode(b); ok {
			return s
		}
	}
	// unreachable: the latin1 step accepts everything
	return string(b)
}

func declaredDecoder(name string) func([]byte) (string, bool) {
	return func(b []byte) (string, bool) {
		if name == "utf-8" || name == "utf8" || name == "us-ascii" || name == "ascii" {
			return utf8Decoder(b)
		}
		enc, err := htmlindex.Get(name)
		if err != nil {
			return "", false
		}
		return encodingDecoder(enc)(b)
	}
}

func encodingDecoder(enc encoding.Encoding) func([]byte) (string, bool) {
	return func(b []byte) (string, bool) {
		out, err := enc.NewDecoder().Bytes(b)
		if err != nil {
			return "", false
		}
		s := string(out)
		// a replacement rune means the charset could not represent the
		// input; fall through to the next link
		if strings.ContainsRune(s, utf8.RuneError) {
			return "", false
		}
		return s, true
	}
}

func utf8Decoder(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// latin1Decoder maps every byte to a code point. Guaranteed terminal
// fallback.
func latin1Decoder(b []byte) (string, bool) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// cannot happen for a total single-byte map, but stay safe
		return string(b), true
	}
	return string(out), true
}

var headerDecoder = mime.WordDecoder{
	CharsetReader: func(cs string, input io.Reader) (io.Reader, error) {
		b, err := io.ReadAll(input)
		if err != nil {
			return nil, err
		}
		return strings.NewReader(DecodeText(b, cs)), nil
	},
}

// DecodeHeaderValue decodes MIME encoded-word syntax in a header
// value, falling back to the raw value on malformed input.
func DecodeHeaderValue(v string) string {
	if v == "" {
		return ""
	}
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}
