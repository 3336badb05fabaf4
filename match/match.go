// Package match evaluates decoded messages against configured rule
// sets. Text mode searches normalized subject and body content for a
// list of regex rules; attachment mode tests a single filename regex
// against normalized attachment names. Both modes are pure and safe to
// invoke on partially decoded messages.
package match

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mailsift/mailsift/model"
	"github.com/mailsift/mailsift/normalize"
)

// Bodies shorter than this are treated as empty and the search falls
// back to the subject alone.
const minBodyLength = 10

// TextOptions configures a TextMatcher.
type TextOptions struct {
	// Patterns is the rule list; empty means DefaultPatterns.
	Patterns []string
	// TargetAddress, when set, restricts matching to messages that
	// involve this address (case-insensitive).
	TargetAddress string
	// FromOnly limits the address check to the From header instead of
	// From/To/Cc/Reply-To.
	FromOnly bool
	// ReplyOnly trims quoted history from the body before searching.
	ReplyOnly bool
}

// TextMatcher holds compiled content rules.
type TextMatcher struct {
	rules     []*regexp.Regexp
	target    string
	fromOnly  bool
	replyOnly bool
}

func NewTextMatcher(opts TextOptions) (*TextMatcher, error) {
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	rules, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}
	return &TextMatcher{
		rules:     rules,
		target:    strings.ToLower(strings.TrimSpace(opts.TargetAddress)),
		fromOnly:  opts.FromOnly,
		replyOnly: opts.ReplyOnly,
	}, nil
}

// RuleCount reports how many rules are active.
func (m *TextMatcher) RuleCount() int {
	return len(m.rules)
}

// Match evaluates one message. The result records every distinct
// matched fragment and the rune offset of its first occurrence in the
// normalized corpus.
func (m *TextMatcher) Match(msg *model.DecodedMessage) model.MatchResult {
	var res model.MatchResult
	if msg == nil {
		return res
	}

	if m.target != "" && !involvesTarget(msg, m.target, m.fromOnly) {
		return res
	}

	body := msg.BodyText
	if m.replyOnly {
		body = ImmediateReply(body)
	}

	corpus := msg.Subject()
	if len(strings.TrimSpace(body)) >= minBodyLength {
		corpus = corpus + " " + body
	}
	corpus = normalize.Normalize(corpus)

	seen := make(map[string]bool)
	for _, rule := range m.rules {
		loc := rule.FindStringIndex(corpus)
		if loc == nil {
			continue
		}
		keyword := corpus[loc[0]:loc[1]]
		if seen[keyword] {
			continue
		}
		seen[keyword] = true
		res.Keywords = append(res.Keywords, keyword)
		res.Positions = append(res.Positions, model.MatchPosition{
			Keyword: keyword,
			Offset:  utf8.RuneCountInString(corpus[:loc[0]]),
		})
	}

	res.Matched = len(res.Keywords) > 0
	return res
}

// AttachmentMatcher tests attachment filenames against one pattern.
type AttachmentMatcher struct {
	re *regexp.Regexp
}

func NewAttachmentMatcher(pattern string, caseSensitive bool) (*AttachmentMatcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("attachment pattern is empty")
	}
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", pattern, err)
	}
	return &AttachmentMatcher{re: re}, nil
}

// Match collects every attachment whose normalized filename satisfies
// the pattern. Nameless parts never match.
func (m *AttachmentMatcher) Match(msg *model.DecodedMessage) model.MatchResult {
	var res model.MatchResult
	if msg == nil {
		return res
	}
	for _, att := range msg.Attachments {
		if att.OriginalFilename == "" {
			continue
		}
		if m.re.MatchString(att.NormalizedFilename()) {
			res.MatchedAttachments = append(res.MatchedAttachments, att)
		}
	}
	res.Matched = len(res.MatchedAttachments) > 0
	return res
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
