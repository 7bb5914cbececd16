package main

import (
	"context"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"github.com/zulandar/racetiming/internal/archive"
	"github.com/zulandar/racetiming/internal/config"
)

func newArchiveCmd() *cobra.Command {
	var configPath string
	var runArchiveOnce bool
	var runPurgeOnce bool

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Run the daily archive/purge service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(configPath, runArchiveOnce, runPurgeOnce)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "rtb.yaml", "path to config file")
	cmd.Flags().BoolVar(&runArchiveOnce, "run-archive", false, "run one archive pass immediately and exit, instead of waiting for the cron schedule")
	cmd.Flags().BoolVar(&runPurgeOnce, "run-simulated-event-purge", false, "run one simulated-event purge pass immediately and exit")

	return cmd
}

func runArchive(configPath string, runArchiveOnce, runPurgeOnce bool) error {
	logger := newLogger("archive")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := connectDB(cfg)
	if err != nil {
		return err
	}
	busClient := connectBus(cfg)
	defer busClient.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Archive.Region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	uploader := &archive.S3Uploader{
		Client: s3.NewFromConfig(awsCfg),
		Bucket: cfg.Archive.Bucket,
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}
	defer notifier.Close()

	svc, err := archive.New(archive.Config{
		DB:       gormDB,
		Bus:      busClient,
		Uploader: uploader,
		Notifier: notifier,

		Cron:     cfg.Archive.Cron,
		Location: cfg.Location(),

		RetryAttempts: cfg.Archive.RetryAttempts,
		RetrySpacing:  time.Duration(cfg.Archive.RetrySpacingSec) * time.Second,
		ExceptionWait: time.Duration(cfg.Archive.ExceptionWaitMin) * time.Minute,
		PurgeAfter:    time.Duration(cfg.Archive.PurgeAfterHours) * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("build archive service: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if runArchiveOnce {
		logger.Info().Msg("running one archive pass")
		if err := svc.RunArchive(ctx); err != nil {
			logger.Error().Err(err).Msg("archive pass failed")
			os.Exit(1)
		}
		return nil
	}
	if runPurgeOnce {
		logger.Info().Msg("running one simulated-event purge pass")
		if err := svc.RunSimulatedEventPurge(ctx); err != nil {
			logger.Error().Err(err).Msg("purge pass failed")
			os.Exit(1)
		}
		return nil
	}

	logger.Info().Str("cron", cfg.Archive.Cron).Msg("archive service starting")
	if err := svc.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("archive service exited with error")
		return err
	}
	logger.Info().Msg("archive service stopped")
	return nil
}
