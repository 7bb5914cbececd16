package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/racetiming/internal/config"
	"github.com/zulandar/racetiming/internal/controllog"
	"github.com/zulandar/racetiming/internal/models"
)

func newControlLogCmd() *cobra.Command {
	var configPath string
	var eventID uint
	var orgID uint

	cmd := &cobra.Command{
		Use:   "controllog",
		Short: "Poll a sanctioning-body control-log source for one event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runControlLog(configPath, eventID, orgID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "rtb.yaml", "path to config file")
	cmd.Flags().UintVar(&eventID, "event-id", 0, "event to poll")
	cmd.Flags().UintVar(&orgID, "org-id", 0, "owning organization id")
	cmd.MarkFlagRequired("event-id")
	cmd.MarkFlagRequired("org-id")

	return cmd
}

func runControlLog(configPath string, eventID, orgID uint) error {
	logger := newLogger("controllog")

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

	var org models.Organization
	if err := gormDB.First(&org, orgID).Error; err != nil {
		return fmt.Errorf("load organization %d: %w", orgID, err)
	}

	source := controllog.NewSource(org.ControlLogType, http.DefaultClient, cfg.ControlLog.BaseURL)
	agg := controllog.New(eventID, source, busClient)

	ctx, cancel := signalContext()
	defer cancel()

	interval := time.Duration(cfg.ControlLog.PollIntervalSec) * time.Second
	logger.Info().Uint("event_id", eventID).Str("type", org.ControlLogType).Dur("interval", interval).Msg("control log poller starting")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("control log poller stopped")
			return nil
		case <-ticker.C:
			if _, err := agg.Poll(ctx); err != nil {
				logger.Error().Err(err).Msg("control log poll failed")
			}
		}
	}
}
