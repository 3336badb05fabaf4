// Package runner drives the per-record extraction loop: decode, match,
// persist or quarantine, strictly sequentially. One record is fully
// handled before the next begins, so the audit log and output
// directory are always consistent with the processed count at any
// interruption point.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mailsift/mailsift/decode"
	"github.com/mailsift/mailsift/mbox"
	"github.com/mailsift/mailsift/model"
	"github.com/mailsift/mailsift/output"
	"github.com/mailsift/mailsift/stats"
)

// Matcher evaluates a decoded message against the active rule set.
type Matcher interface {
	Match(msg *model.DecodedMessage) model.MatchResult
}

// Writer persists terminal record outcomes. Errors wrapping
// output.ErrAudit abort the run; any other error counts as a
// per-record failure.
type Writer interface {
	Persist(msg *model.DecodedMessage, res model.MatchResult, raw []byte, took time.Duration) error
	Fail(msg *model.DecodedMessage, raw []byte, reason string) error
	Close() error
}

// Progress is a throttled snapshot for display.
type Progress struct {
	Processed   int
	Matched     int
	Attachments int
	Failed      int
	Total       int // 0 when unknown
	Elapsed     time.Duration
}

// Options configures a run.
type Options struct {
	// Limit caps the number of records processed across all archives;
	// 0 means unlimited.
	Limit int
	// Total is the known record count for percentage/ETA display, 0
	// when unknown.
	Total int
	// OnProgress receives throttled snapshots plus one final snapshot.
	OnProgress func(Progress)
	// ProgressInterval defaults to 500ms.
	ProgressInterval time.Duration
}

// Runner owns the RunCounters for one invocation. Safe to create
// multiple runners in-process; nothing is shared between them.
type Runner struct {
	opts       Options
	dec        *decode.Decoder
	matcher    Matcher
	writer     Writer
	logger     *slog.Logger
	lastNotify time.Time
}

func New(opts Options, matcher Matcher, writer Writer, logger *slog.Logger) *Runner {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 500 * time.Millisecond
	}
	return &Runner{
		opts:    opts,
		dec:     decode.New(),
		matcher: matcher,
		writer:  writer,
		logger:  logger,
	}
}

// Run processes the given archives in order, one archive fully before
// the next. It always returns a summary; Err is set only when the run
// aborted. Cancellation of ctx is checked at the top of each
// per-record iteration only, never mid-record.
func (r *Runner) Run(ctx context.Context, sources []string) stats.Summary {
	counters := stats.NewRunCounters()
	var (
		terminal stats.State
		runErr   error
	)

	for _, src := range sources {
		if terminal != "" || runErr != nil {
			break
		}

		err := mbox.Iterate(src, func(raw []byte) error {
			if ctx.Err() != nil {
				terminal = stats.StateInterrupted
				return mbox.ErrStop
			}
			if r.opts.Limit > 0 && counters.Processed >= r.opts.Limit {
				terminal = stats.StateCompleted
				return mbox.ErrStop
			}

			if err := r.process(raw, counters); err != nil {
				return err
			}
			r.notify(counters, false)
			return nil
		})
		if err != nil {
			runErr = err
		}
	}

	state := terminal
	if state == "" {
		state = stats.StateCompleted
	}
	if runErr != nil {
		state = stats.StateAborted
	}

	r.notify(counters, true)

	summary := stats.Summary{
		RunCounters: *counters,
		State:       state,
		Err:         runErr,
		Duration:    counters.Elapsed(),
	}
	if r.logger != nil {
		if runErr != nil {
			r.logger.Error("run finished", summary.LogAttrs()...)
		} else {
			r.logger.Info("run finished", summary.LogAttrs()...)
		}
	}
	return summary
}

// process handles exactly one record through to a terminal outcome.
// Only audit-log failures are returned; everything else is contained
// at the record boundary.
func (r *Runner) process(raw []byte, c *stats.RunCounters) error {
	started := time.Now()
	c.Processed++

	msg := r.dec.Decode(raw)
	if !msg.DecodeSucceeded {
		c.Failed++
		if r.logger != nil {
			r.logger.Debug("record failed to decode", "record", c.Processed, "reason", msg.DecodeErr)
		}
		return r.writer.Fail(msg, raw, msg.DecodeErr)
	}

	res := r.matcher.Match(msg)
	if !res.Matched {
		return nil
	}

	if err := r.writer.Persist(msg, res, raw, time.Since(started)); err != nil {
		if errors.Is(err, output.ErrAudit) {
			return err
		}
		c.Failed++
		if r.logger != nil {
			r.logger.Error("persist failed", "record", c.Processed, "err", err)
		}
		return nil
	}

	c.Matched++
	c.Attachments += len(res.MatchedAttachments)
	return nil
}

func (r *Runner) notify(c *stats.RunCounters, final bool) {
	if r.opts.OnProgress == nil {
		return
	}
	now := time.Now()
	if !final && now.Sub(r.lastNotify) < r.opts.ProgressInterval {
		return
	}
	r.lastNotify = now
	r.opts.OnProgress(Progress{
		Processed:   c.Processed,
		Matched:     c.Matched,
		Attachments: c.Attachments,
		Failed:      c.Failed,
		Total:       r.opts.Total,
		Elapsed:     c.Elapsed(),
	})
}
