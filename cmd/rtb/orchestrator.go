package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/racetiming/internal/config"
	"github.com/zulandar/racetiming/internal/orchestrator"
)

func newOrchestratorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Run the cluster control plane singleton",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrchestrator(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "rtb.yaml", "path to config file")
	return cmd
}

func runOrchestrator(configPath string) error {
	logger := newLogger("orchestrator")

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

	orch, err := orchestrator.New(orchestrator.Config{
		DB:  gormDB,
		Bus: busClient,

		ScanInterval:   time.Duration(cfg.Orchestrator.ScanIntervalSec) * time.Second,
		ExpiredTimeout: time.Duration(cfg.Orchestrator.ExpiredTimeoutMin) * time.Minute,
		DrainWait:      time.Duration(cfg.Orchestrator.DrainWaitSec) * time.Second,

		ProcessorImage:  cfg.Orchestrator.ProcessorImage,
		LoggerImage:     cfg.Orchestrator.LoggerImage,
		ControlLogImage: cfg.Orchestrator.ControlLogImage,
		ServicePort:     cfg.Orchestrator.ServicePort,
		EnvBase:         cfg.WorkerEnv(),
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info().Msg("orchestrator starting")
	if err := orch.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("orchestrator exited with error")
		return err
	}
	logger.Info().Msg("orchestrator stopped")
	return nil
}
