// Package stats holds the per-run counters and the final summary.
package stats

import (
	"fmt"
	"sort"
	"time"
)

// State describes how a run ended (or that it is still going).
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
	StateAborted     State = "aborted"
)

// RunCounters is the mutable per-invocation state. It is owned
// exclusively by the orchestrator; no other component mutates it.
type RunCounters struct {
	Processed   int
	Matched     int
	Attachments int
	Failed      int
	Started     time.Time
}

func NewRunCounters() *RunCounters {
	return &RunCounters{Started: time.Now()}
}

// NonMatched derives the count of records that decoded fine but fired
// no rule. Processed == Matched + NonMatched + Failed.
func (c *RunCounters) NonMatched() int {
	return c.Processed - c.Matched - c.Failed
}

func (c *RunCounters) Elapsed() time.Duration {
	return time.Since(c.Started)
}

// Summary is the immutable result of a finished run.
type Summary struct {
	RunCounters
	State    State
	Err      error
	Duration time.Duration
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"state", string(s.State),
		"processed", s.Processed,
		"matched", s.Matched,
		"attachments", s.Attachments,
		"failed", s.Failed,
		"duration", s.Duration,
	}
	if s.Err != nil {
		attrs = append(attrs, "err", s.Err.Error())
	}
	return attrs
}

// PrettyPrintTop prints the top N most frequent entries of a counter
// map.
func PrettyPrintTop(m map[string]int, limit int) {
	type pair struct {
		Key   string
		Value int
	}

	var pairs []pair
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		fmt.Printf("%d. %s (%d)\n", i+1, pairs[i].Key, pairs[i].Value)
	}
}
