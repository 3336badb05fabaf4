// Package config converts cobra flags into validated per-command
// configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Extract holds the options of the text-mode extractor.
type Extract struct {
	MboxPath    string
	Target      string
	FromOnly    bool
	ReplyOnly   bool
	PatternFile string
	OutputDir   string
	LogFile     string
	Limit       int
	DryRun      bool
	LogLevel    string
}

func RegisterExtractFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("mbox", "", "Path to the mbox archive to search")
	flags.String("email", "", "Target email address; restrict matching to messages involving it")
	flags.Bool("from-only", false, "Check only the From header for the target address")
	flags.Bool("reply-only", false, "Search only the immediate reply, discarding quoted history")
	flags.String("patterns", "", "Pattern file (one regex per line); built-in rules when empty")
	flags.String("output", "./output", "Output directory for matched messages")
	flags.String("log-file", "extraction_log.csv", "CSV audit log path")
	flags.Int("limit", 0, "Maximum number of records to process (0 = unlimited)")
	flags.Bool("dry-run", false, "Evaluate everything but write no message artifacts")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")

	return cmd.MarkFlagRequired("mbox")
}

func LoadExtract(cmd *cobra.Command) (Extract, error) {
	flags := cmd.Flags()

	mboxPath, err := flags.GetString("mbox")
	if err != nil {
		return Extract{}, err
	}
	target, err := flags.GetString("email")
	if err != nil {
		return Extract{}, err
	}
	fromOnly, err := flags.GetBool("from-only")
	if err != nil {
		return Extract{}, err
	}
	replyOnly, err := flags.GetBool("reply-only")
	if err != nil {
		return Extract{}, err
	}
	patternFile, err := flags.GetString("patterns")
	if err != nil {
		return Extract{}, err
	}
	outputDir, err := flags.GetString("output")
	if err != nil {
		return Extract{}, err
	}
	logFile, err := flags.GetString("log-file")
	if err != nil {
		return Extract{}, err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return Extract{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return Extract{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Extract{}, err
	}

	cfg := Extract{
		MboxPath:    mboxPath,
		Target:      strings.ToLower(strings.TrimSpace(target)),
		FromOnly:    fromOnly,
		ReplyOnly:   replyOnly,
		PatternFile: patternFile,
		OutputDir:   outputDir,
		LogFile:     logFile,
		Limit:       limit,
		DryRun:      dryRun,
		LogLevel:    normalizeLogLevel(logLevel),
	}

	if cfg.MboxPath == "" {
		return Extract{}, fmt.Errorf("--mbox is required")
	}
	if cfg.Target != "" && !strings.Contains(cfg.Target, "@") {
		return Extract{}, fmt.Errorf("invalid --email address: %s", target)
	}
	if cfg.Limit < 0 {
		return Extract{}, fmt.Errorf("--limit must not be negative")
	}
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return Extract{}, err
	}

	return cfg, nil
}

// Attachments holds the options of the attachment-mode extractor.
type Attachments struct {
	NamePattern   string
	InputPath     string
	OutputDir     string
	LogFile       string
	Limit         int
	DryRun        bool
	CaseSensitive bool
	LogLevel      string
}

func RegisterAttachmentsFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("name", "", "Regex matched against normalized attachment filenames")
	flags.String("input", "", "Mbox archive or directory of archives")
	flags.String("output", "", "Output directory for matched messages and attachments")
	flags.String("log", "", "CSV audit log path")
	flags.Int("limit", 0, "Maximum number of records to process (0 = unlimited)")
	flags.Bool("dry-run", false, "Evaluate everything but write no artifacts")
	flags.Bool("case-sensitive", false, "Match the filename regex case-sensitively")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")

	for _, name := range []string{"name", "input", "output", "log"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			return err
		}
	}
	return nil
}

func LoadAttachments(cmd *cobra.Command) (Attachments, error) {
	flags := cmd.Flags()

	namePattern, err := flags.GetString("name")
	if err != nil {
		return Attachments{}, err
	}
	inputPath, err := flags.GetString("input")
	if err != nil {
		return Attachments{}, err
	}
	outputDir, err := flags.GetString("output")
	if err != nil {
		return Attachments{}, err
	}
	logFile, err := flags.GetString("log")
	if err != nil {
		return Attachments{}, err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return Attachments{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return Attachments{}, err
	}
	caseSensitive, err := flags.GetBool("case-sensitive")
	if err != nil {
		return Attachments{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Attachments{}, err
	}

	cfg := Attachments{
		NamePattern:   namePattern,
		InputPath:     inputPath,
		OutputDir:     outputDir,
		LogFile:       logFile,
		Limit:         limit,
		DryRun:        dryRun,
		CaseSensitive: caseSensitive,
		LogLevel:      normalizeLogLevel(logLevel),
	}

	if cfg.NamePattern == "" {
		return Attachments{}, fmt.Errorf("--name is required")
	}
	if cfg.InputPath == "" {
		return Attachments{}, fmt.Errorf("--input is required")
	}
	if cfg.Limit < 0 {
		return Attachments{}, fmt.Errorf("--limit must not be negative")
	}
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return Attachments{}, err
	}

	return cfg, nil
}

// Classify holds the options of the LLM refinement stage. Credentials
// come from the environment (optionally via .env), never from flags.
type Classify struct {
	InputDir         string
	SystemPromptFile string
	UserPromptFile   string
	OutputDir        string
	LogFile          string
	Limit            int
	Debug            bool
	LogLevel         string
}

func RegisterClassifyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("input", "", "Directory of extracted .eml files")
	flags.String("system-prompt", "", "Path to the system prompt file")
	flags.String("user-prompt", "", "Path to the user prompt file")
	flags.String("output", "./filtered", "Output directory (matched/, rejected/, failed/)")
	flags.String("log", "llm_filter_log.csv", "CSV log path")
	flags.Int("limit", 0, "Maximum number of files to process (0 = unlimited)")
	flags.Bool("debug", false, "Print the text sent to the model for each email")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")

	for _, name := range []string{"input", "system-prompt", "user-prompt"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			return err
		}
	}
	return nil
}

func LoadClassify(cmd *cobra.Command) (Classify, error) {
	flags := cmd.Flags()

	inputDir, err := flags.GetString("input")
	if err != nil {
		return Classify{}, err
	}
	systemPrompt, err := flags.GetString("system-prompt")
	if err != nil {
		return Classify{}, err
	}
	userPrompt, err := flags.GetString("user-prompt")
	if err != nil {
		return Classify{}, err
	}
	outputDir, err := flags.GetString("output")
	if err != nil {
		return Classify{}, err
	}
	logFile, err := flags.GetString("log")
	if err != nil {
		return Classify{}, err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return Classify{}, err
	}
	debug, err := flags.GetBool("debug")
	if err != nil {
		return Classify{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Classify{}, err
	}

	cfg := Classify{
		InputDir:         inputDir,
		SystemPromptFile: systemPrompt,
		UserPromptFile:   userPrompt,
		OutputDir:        outputDir,
		LogFile:          logFile,
		Limit:            limit,
		Debug:            debug,
		LogLevel:         normalizeLogLevel(logLevel),
	}

	if cfg.Limit < 0 {
		return Classify{}, fmt.Errorf("--limit must not be negative")
	}
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return Classify{}, err
	}

	return cfg, nil
}

// Upload holds the options for pushing extracted .eml artifacts to an
// IMAP folder.
type Upload struct {
	InputDir           string
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	DryRun             bool
	LogLevel           string
}

func RegisterUploadFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("input", "", "Directory of extracted .eml files to upload")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("target-folder", "INBOX", "Target IMAP folder")
	flags.Bool("dry-run", false, "List what would be uploaded without connecting")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")

	for _, name := range []string{"input", "imap-host", "imap-user"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			return err
		}
	}
	return nil
}

func LoadUpload(cmd *cobra.Command) (Upload, error) {
	flags := cmd.Flags()

	inputDir, err := flags.GetString("input")
	if err != nil {
		return Upload{}, err
	}
	host, err := flags.GetString("imap-host")
	if err != nil {
		return Upload{}, err
	}
	port, err := flags.GetInt("imap-port")
	if err != nil {
		return Upload{}, err
	}
	user, err := flags.GetString("imap-user")
	if err != nil {
		return Upload{}, err
	}
	pass, err := flags.GetString("imap-pass")
	if err != nil {
		return Upload{}, err
	}
	useTLS, err := flags.GetBool("use-tls")
	if err != nil {
		return Upload{}, err
	}
	insecure, err := flags.GetBool("insecure-skip-verify")
	if err != nil {
		return Upload{}, err
	}
	targetFolder, err := flags.GetString("target-folder")
	if err != nil {
		return Upload{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return Upload{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Upload{}, err
	}

	if pass == "" {
		pass = os.Getenv("IMAP_PASS")
	}

	cfg := Upload{
		InputDir:           inputDir,
		Host:               host,
		Port:               port,
		Username:           user,
		Password:           pass,
		UseTLS:             useTLS,
		InsecureSkipVerify: insecure,
		TargetFolder:       targetFolder,
		DryRun:             dryRun,
		LogLevel:           normalizeLogLevel(logLevel),
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Upload{}, fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	if cfg.Password == "" && !cfg.DryRun {
		return Upload{}, fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
	}
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return Upload{}, err
	}

	return cfg, nil
}

func normalizeLogLevel(level string) string {
	level = strings.ToLower(level)
	if level == "warning" {
		level = "warn"
	}
	return level
}

func validateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid --log-level: %s", level)
	}
}

// SetupLogger builds the slog logger, optionally teeing output into a
// timestamped file under logDir.
func SetupLogger(logLevel, logDir string) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	switch logLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(logDir, fmt.Sprintf("mailsift-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
