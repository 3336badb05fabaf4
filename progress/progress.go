// Package progress renders the throttled run progress and the final
// summary on the terminal.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/mailsift/mailsift/runner"
	"github.com/mailsift/mailsift/stats"
)

// Bar displays per-record progress. With a known total it renders a
// progress bar with percentage and ETA; otherwise it repaints a single
// counter line.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress display. Only enabled at the info log level
// so debug logs and progress repainting never interleave.
func New(total int, logLevel string) *Bar {
	bar := &Bar{
		total:   total,
		enabled: logLevel == "info",
	}

	if bar.enabled && total > 0 {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Processing messages").
			Start()
		bar.pb = pb
	}

	return bar
}

// Update advances the display to the given snapshot.
func (b *Bar) Update(p runner.Progress) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb != nil {
		if delta := p.Processed - b.pb.Current; delta > 0 {
			b.pb.Add(delta)
		}
		b.pb.UpdateTitle(fmt.Sprintf("Processing: %d matched, %d failed", p.Matched, p.Failed))
		return
	}

	pterm.Printo(fmt.Sprintf("Processed: %d | Matched: %d | Attachments: %d | Failed: %d | Elapsed: %s",
		p.Processed, p.Matched, p.Attachments, p.Failed, p.Elapsed.Round(100*time.Millisecond)))
}

// Stop finalizes the display.
func (b *Bar) Stop() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb != nil {
		_, _ = b.pb.Stop()
		return
	}
	pterm.Println()
}

// PrintSummary renders the end-of-run summary regardless of how the
// run ended.
func PrintSummary(s stats.Summary) {
	pterm.Println()
	pterm.DefaultSection.Println("Extraction summary")
	pterm.Info.Printf("State:       %s\n", s.State)
	pterm.Info.Printf("Processed:   %d\n", s.Processed)
	pterm.Info.Printf("Matched:     %d\n", s.Matched)
	if s.Attachments > 0 {
		pterm.Info.Printf("Attachments: %d\n", s.Attachments)
	}
	pterm.Info.Printf("Failed:      %d\n", s.Failed)
	pterm.Info.Printf("Duration:    %s\n", s.Duration.Round(10*time.Millisecond))
	if s.Err != nil {
		pterm.Error.Printf("Error: %v\n", s.Err)
	}
}
