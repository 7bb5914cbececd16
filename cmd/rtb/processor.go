package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/zulandar/racetiming/internal/health"
	"github.com/zulandar/racetiming/internal/hub"
	"github.com/zulandar/racetiming/internal/processor"

	"github.com/zulandar/racetiming/internal/config"
)

func newProcessorCmd() *cobra.Command {
	var configPath string
	var eventID uint
	var orgID uint

	cmd := &cobra.Command{
		Use:   "processor",
		Short: "Run the per-event ingest/score/broadcast pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcessor(configPath, eventID, orgID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "rtb.yaml", "path to config file")
	cmd.Flags().UintVar(&eventID, "event-id", 0, "event to process")
	cmd.Flags().UintVar(&orgID, "org-id", 0, "owning organization id")
	cmd.MarkFlagRequired("event-id")

	return cmd
}

func runProcessor(configPath string, eventID, orgID uint) error {
	logger := newLogger("processor")

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

	h := hub.New(busClient)

	ownerID, err := os.Hostname()
	if err != nil || ownerID == "" {
		ownerID = fmt.Sprintf("processor-%d", eventID)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	hub.RegisterRoutes(router, h, gormDB, cfg.HTTP.JWTSecret)
	health.RegisterRoutes(router, healthRegistry(gormDB, busClient))

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("starting push hub http server")
		if err := router.Run(cfg.HTTP.ListenAddr); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	p := processor.New(processor.Config{
		EventID:         eventID,
		OwnerID:         ownerID,
		DB:              gormDB,
		Bus:             busClient,
		Broadcaster:     h,
		IngestIdle:      time.Duration(cfg.Processor.IngestIdleMS) * time.Millisecond,
		RenewEvery:      time.Duration(cfg.Processor.RenewEverySec) * time.Second,
		SnapshotEvery:   time.Duration(cfg.Processor.SnapshotEverySec) * time.Second,
		ControlLogEvery: time.Duration(cfg.Processor.ControlLogEverySec) * time.Second,
		DrainTimeout:    time.Duration(cfg.Processor.DrainTimeoutSec) * time.Second,
	})

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info().Uint("event_id", eventID).Uint("org_id", orgID).Str("owner", ownerID).Msg("processor starting")

	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	select {
	case err := <-runErr:
		if err != nil {
			logger.Error().Err(err).Msg("processor exited with error")
			return err
		}
	case err := <-errCh:
		cancel()
		logger.Error().Err(err).Msg("http server failed")
		return err
	}

	logger.Info().Msg("processor stopped")
	return nil
}
