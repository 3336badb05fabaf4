package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/config"
	"github.com/mailsift/mailsift/match"
	"github.com/mailsift/mailsift/mbox"
	"github.com/mailsift/mailsift/output"
	"github.com/mailsift/mailsift/progress"
	"github.com/mailsift/mailsift/runner"
)

var attachmentsCmd = &cobra.Command{
	Use:   "attachments",
	Short: "Extract messages whose attachment filenames match a pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAttachments(cmd)
		if err != nil {
			return err
		}

		logger, cleanup, err := config.SetupLogger(cfg.LogLevel, "")
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()
		slog.SetDefault(logger)

		return runAttachments(cfg, logger)
	},
}

func init() {
	if err := config.RegisterAttachmentsFlags(attachmentsCmd); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(attachmentsCmd)
}

func runAttachments(cfg config.Attachments, logger *slog.Logger) error {
	matcher, err := match.NewAttachmentMatcher(cfg.NamePattern, cfg.CaseSensitive)
	if err != nil {
		return fmt.Errorf("compile filename pattern: %w", err)
	}

	sources, err := mbox.Sources(cfg.InputPath)
	if err != nil {
		return err
	}

	total := 0
	if len(sources) == 1 && cfg.Limit == 0 {
		if n, err := mbox.CountMessages(sources[0]); err == nil {
			total = n
		}
	}
	if cfg.Limit > 0 {
		total = cfg.Limit
	}

	writer, err := output.NewAttachmentWriter(output.Options{
		OutputDir: cfg.OutputDir,
		LogPath:   cfg.LogFile,
		DryRun:    cfg.DryRun,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = writer.Close()
	}()

	logger.Info("starting attachment extraction",
		"input", cfg.InputPath,
		"sources", len(sources),
		"pattern", cfg.NamePattern,
		"caseSensitive", cfg.CaseSensitive,
		"dryRun", cfg.DryRun)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bar := progress.New(total, cfg.LogLevel)
	r := runner.New(runner.Options{
		Limit:      cfg.Limit,
		Total:      total,
		OnProgress: bar.Update,
	}, matcher, writer, logger)

	summary := r.Run(ctx, sources)
	bar.Stop()
	progress.PrintSummary(summary)

	return summary.Err
}
