package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/config"
	"github.com/mailsift/mailsift/imap"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload extracted .eml files to an IMAP folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadUpload(cmd)
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

		return runUpload(cfg, logger)
	},
}

func init() {
	if err := config.RegisterUploadFlags(uploadCmd); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cfg config.Upload, logger *slog.Logger) error {
	uploader, err := imap.NewUploader(imap.Options{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Username:           cfg.Username,
		Password:           cfg.Password,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		TargetFolder:       cfg.TargetFolder,
		DryRun:             cfg.DryRun,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("starting upload",
		"input", cfg.InputDir,
		"host", cfg.Host,
		"target", cfg.TargetFolder,
		"dryRun", cfg.DryRun)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err = uploader.UploadDir(ctx, cfg.InputDir)
	return err
}
