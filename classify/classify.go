// Package classify refines extracted .eml files through a
// chat-completion model, routing each into matched, rejected or failed
// buckets.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mailsift/mailsift/decode"
	"github.com/mailsift/mailsift/match"
	"github.com/mailsift/mailsift/output"
)

const (
	maxBodyChars     = 4000
	maxReasoningLen  = 200
	maxLoggedHdrLen  = 100
	retryBackoff     = 2 * time.Second
	matchedDirName   = "matched"
	rejectedDirName  = "rejected"
	failedDirName    = "failed"
	failedNamePrefix = "failed_"
)

var logColumns = []string{
	"filename",
	"processed_at",
	"llm_decision",
	"confidence",
	"reasoning",
	"prompt_tokens",
	"completion_tokens",
	"total_tokens",
	"processing_time_ms",
	"error_message",
	"retried",
	"from_address",
	"subject",
	"output_filename",
}

// Summary aggregates the counters of one filter run.
type Summary struct {
	Processed    int
	Matched      int
	Rejected     int
	Failed       int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Elapsed      time.Duration
}

func (s Summary) TotalTokens() int {
	return s.InputTokens + s.OutputTokens
}

// Options configures a Filter run.
type Options struct {
	InputDir     string
	SystemPrompt string
	UserPrompt   string
	OutputDir    string
	LogPath      string
	Limit        int
	Debug        bool
	PriceInput   float64
	PriceOutput  float64
	Logger       *slog.Logger
}

// Filter drives the per-file analyze-and-route loop. Runs are strictly
// sequential.
type Filter struct {
	opts    Options
	client  Client
	decoder *decode.Decoder
	log     *slog.Logger
}

func New(opts Options, client Client) *Filter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Filter{
		opts:    opts,
		client:  client,
		decoder: decode.New(),
		log:     opts.Logger,
	}
}

// Run processes every .eml file under InputDir in lexicographic order.
func (f *Filter) Run(ctx context.Context) (Summary, error) {
	files, err := f.listInputs()
	if err != nil {
		return Summary{}, err
	}
	if len(files) == 0 {
		return Summary{}, fmt.Errorf("no .eml files found in %s", f.opts.InputDir)
	}

	for _, sub := range []string{matchedDirName, rejectedDirName, failedDirName} {
		if err := os.MkdirAll(filepath.Join(f.opts.OutputDir, sub), 0o755); err != nil {
			return Summary{}, fmt.Errorf("create output directory: %w", err)
		}
	}

	auditLog, err := output.OpenAuditLog(f.opts.LogPath, logColumns)
	if err != nil {
		return Summary{}, err
	}
	defer auditLog.Close()

	summary := Summary{}
	started := time.Now()

	for _, path := range files {
		if ctx.Err() != nil {
			f.log.Warn("interrupted, stopping with partial results",
				"processed", summary.Processed)
			break
		}

		summary.Processed++
		if err := f.processFile(ctx, path, auditLog, &summary); err != nil {
			summary.Elapsed = time.Since(started)
			return summary, err
		}
	}

	summary.Elapsed = time.Since(started)
	f.log.Info("filtering complete",
		"processed", summary.Processed,
		"matched", summary.Matched,
		"rejected", summary.Rejected,
		"failed", summary.Failed,
		"total_tokens", summary.TotalTokens(),
		"cost_usd", fmt.Sprintf("%.4f", summary.CostUSD))
	return summary, nil
}

func (f *Filter) listInputs() ([]string, error) {
	entries, err := os.ReadDir(f.opts.InputDir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".eml") {
			files = append(files, filepath.Join(f.opts.InputDir, entry.Name()))
		}
	}
	sort.Strings(files)

	if f.opts.Limit > 0 && len(files) > f.opts.Limit {
		files = files[:f.opts.Limit]
	}
	return files, nil
}

func (f *Filter) processFile(ctx context.Context, path string, auditLog *output.AuditLog, summary *Summary) error {
	started := time.Now()
	filename := filepath.Base(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		f.log.Error("failed to read eml file", "file", filename, "error", err)
		return f.routeFailure(path, filename, "failed to read eml file: "+err.Error(), started, auditLog, summary)
	}

	msg := f.decoder.Decode(raw)
	if !msg.DecodeSucceeded {
		return f.routeFailure(path, filename, "failed to parse eml file: "+msg.DecodeErr, started, auditLog, summary)
	}

	body := match.ImmediateReply(msg.BodyText)
	if runes := []rune(body); len(runes) > maxBodyChars {
		body = string(runes[:maxBodyChars])
	}

	email := EmailData{
		From:    msg.Header("From"),
		Date:    msg.Header("Date"),
		Subject: msg.Subject(),
		Body:    body,
	}

	if f.opts.Debug {
		f.log.Debug("analysis input",
			"file", filename,
			"from", email.From,
			"subject", email.Subject,
			"body_chars", len(email.Body))
	}

	verdict, analyzeErr := f.analyzeWithRetry(ctx, email)
	took := time.Since(started)

	summary.InputTokens += verdict.InputTokens
	summary.OutputTokens += verdict.OutputTokens
	summary.CostUSD += float64(verdict.InputTokens)/1e6*f.opts.PriceInput +
		float64(verdict.OutputTokens)/1e6*f.opts.PriceOutput

	if analyzeErr != nil {
		f.log.Warn("analysis failed", "file", filename, "error", analyzeErr)
		return f.routeVerdictFailure(path, filename, email, analyzeErr, took, auditLog, summary)
	}

	destDir := rejectedDirName
	if verdict.IsVacationResponse {
		destDir = matchedDirName
		summary.Matched++
	} else {
		summary.Rejected++
	}

	outName, copyErr := f.copyWithConfidence(path, destDir, verdict.Confidence)
	if copyErr != nil {
		f.log.Error("failed to copy result", "file", filename, "error", copyErr)
		summary.Failed++
		if verdict.IsVacationResponse {
			summary.Matched--
		} else {
			summary.Rejected--
		}
		outName = failedNamePrefix + filename
	}

	row := []string{
		filename,
		time.Now().Format(time.RFC3339),
		strconv.FormatBool(verdict.IsVacationResponse),
		strconv.FormatFloat(verdict.Confidence, 'f', 2, 64),
		truncate(verdict.Reasoning, maxReasoningLen),
		strconv.Itoa(verdict.InputTokens),
		strconv.Itoa(verdict.OutputTokens),
		strconv.Itoa(verdict.InputTokens + verdict.OutputTokens),
		strconv.FormatInt(took.Milliseconds(), 10),
		errText(copyErr),
		"false",
		truncate(email.From, maxLoggedHdrLen),
		truncate(email.Subject, maxLoggedHdrLen),
		outName,
	}
	return auditLog.Append(row)
}

// analyzeWithRetry retries one failed call after a short backoff.
func (f *Filter) analyzeWithRetry(ctx context.Context, email EmailData) (Verdict, error) {
	verdict, err := f.client.Analyze(ctx, f.opts.SystemPrompt, f.opts.UserPrompt, email)
	if err == nil {
		return verdict, nil
	}

	select {
	case <-ctx.Done():
		return Verdict{}, errors.Join(err, ctx.Err())
	case <-time.After(retryBackoff):
	}

	return f.client.Analyze(ctx, f.opts.SystemPrompt, f.opts.UserPrompt, email)
}

func (f *Filter) routeFailure(path, filename, reason string, started time.Time, auditLog *output.AuditLog, summary *Summary) error {
	summary.Failed++
	outName := f.copyToFailed(path, filename)

	row := []string{
		filename,
		time.Now().Format(time.RFC3339),
		"error",
		"0.00",
		"",
		"0", "0", "0",
		strconv.FormatInt(time.Since(started).Milliseconds(), 10),
		reason,
		"false",
		"",
		"",
		outName,
	}
	return auditLog.Append(row)
}

func (f *Filter) routeVerdictFailure(path, filename string, email EmailData, analyzeErr error, took time.Duration, auditLog *output.AuditLog, summary *Summary) error {
	summary.Failed++
	outName := f.copyToFailed(path, filename)

	row := []string{
		filename,
		time.Now().Format(time.RFC3339),
		"error",
		"0.00",
		"",
		"0", "0", "0",
		strconv.FormatInt(took.Milliseconds(), 10),
		analyzeErr.Error(),
		"true",
		truncate(email.From, maxLoggedHdrLen),
		truncate(email.Subject, maxLoggedHdrLen),
		outName,
	}
	return auditLog.Append(row)
}

func (f *Filter) copyToFailed(path, filename string) string {
	outName := failedNamePrefix + filename
	dest := filepath.Join(f.opts.OutputDir, failedDirName, outName)
	if err := copyFile(path, dest); err != nil {
		f.log.Warn("failed to copy into failed directory", "file", filename, "error", err)
	}
	return outName
}

// copyWithConfidence copies src into destDir under OutputDir with the
// confidence score (0-100) as a two-digit filename prefix.
func (f *Filter) copyWithConfidence(src, destDir string, confidence float64) (string, error) {
	outName := fmt.Sprintf("%02d_%s", int(confidence*100), filepath.Base(src))
	dest := filepath.Join(f.opts.OutputDir, destDir, outName)
	if err := copyFile(src, dest); err != nil {
		return "", err
	}
	return outName, nil
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
