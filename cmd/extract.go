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

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract vacation and out-of-office replies from an mbox archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadExtract(cmd)
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

		return runExtract(cfg, logger)
	},
}

func init() {
	if err := config.RegisterExtractFlags(extractCmd); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cfg config.Extract, logger *slog.Logger) error {
	patterns := match.DefaultPatterns()
	if cfg.PatternFile != "" {
		var err error
		patterns, err = match.LoadPatternFile(cfg.PatternFile)
		if err != nil {
			return fmt.Errorf("load pattern file: %w", err)
		}
	}

	matcher, err := match.NewTextMatcher(match.TextOptions{
		Patterns:      patterns,
		TargetAddress: cfg.Target,
		FromOnly:      cfg.FromOnly,
		ReplyOnly:     cfg.ReplyOnly,
	})
	if err != nil {
		return fmt.Errorf("compile patterns: %w", err)
	}

	sources, err := mbox.Sources(cfg.MboxPath)
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

	writer, err := output.NewExtractWriter(output.Options{
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

	logger.Info("starting extraction",
		"mbox", cfg.MboxPath,
		"sources", len(sources),
		"target", cfg.Target,
		"rules", matcher.RuleCount(),
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
