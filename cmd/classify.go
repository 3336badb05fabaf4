package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/classify"
	"github.com/mailsift/mailsift/config"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Refine extracted emails through a chat-completion model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClassify(cmd)
		if err != nil {
			return err
		}

		logLevel := cfg.LogLevel
		if cfg.Debug {
			logLevel = "debug"
		}
		logger, cleanup, err := config.SetupLogger(logLevel, "")
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()
		slog.SetDefault(logger)

		return runClassify(cfg, logger)
	},
}

func init() {
	if err := config.RegisterClassifyFlags(classifyCmd); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cfg config.Classify, logger *slog.Logger) error {
	// Credentials may live in a local .env file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "err", err)
	}

	creds, err := classify.CredentialsFromEnv()
	if err != nil {
		return err
	}

	systemPrompt, err := readPrompt(cfg.SystemPromptFile)
	if err != nil {
		return fmt.Errorf("read system prompt: %w", err)
	}
	userPrompt, err := readPrompt(cfg.UserPromptFile)
	if err != nil {
		return fmt.Errorf("read user prompt: %w", err)
	}

	logger.Info("starting classification",
		"input", cfg.InputDir,
		"output", cfg.OutputDir,
		"model", creds.Model,
		"limit", cfg.Limit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	filter := classify.New(classify.Options{
		InputDir:     cfg.InputDir,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		OutputDir:    cfg.OutputDir,
		LogPath:      cfg.LogFile,
		Limit:        cfg.Limit,
		Debug:        cfg.Debug,
		PriceInput:   creds.PriceInput,
		PriceOutput:  creds.PriceOutput,
		Logger:       logger,
	}, classify.NewOpenAIClient(creds))

	summary, err := filter.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("classification summary",
		"processed", summary.Processed,
		"matched", summary.Matched,
		"rejected", summary.Rejected,
		"failed", summary.Failed,
		"tokens", summary.TotalTokens(),
		"cost_usd", fmt.Sprintf("%.4f", summary.CostUSD),
		"elapsed", summary.Elapsed.Round(100*time.Millisecond))
	return nil
}

func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s is empty", path)
	}
	return prompt, nil
}
