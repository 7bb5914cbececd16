package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/zulandar/racetiming/internal/bus"
	"github.com/zulandar/racetiming/internal/config"
	"github.com/zulandar/racetiming/internal/db"
	"github.com/zulandar/racetiming/internal/health"
	"github.com/zulandar/racetiming/internal/notify"
	"github.com/zulandar/racetiming/internal/notify/discord"
	"github.com/zulandar/racetiming/internal/notify/slack"
	"gorm.io/gorm"
)

// newLogger builds a component-scoped zerolog.Logger writing structured
// fields to stderr, the shape the rest of the pack's long-running services
// (r3e-network-service_layer, cuemby-warren) use. It covers the cmd/rtb
// startup/shutdown messages only; the internal/* packages keep logging with
// the standard library's log.Printf.
func newLogger(component string) zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Str("component", component).Logger()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, mirroring
// cmd/ry/engine.go's runEngineStart shutdown wiring.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func connectDB(cfg *config.Config) (*gorm.DB, error) {
	gormDB, err := db.Connect(cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.DB.Database, err)
	}
	return gormDB, nil
}

func connectBus(cfg *config.Config) bus.Client {
	return bus.NewRedisClient(cfg.Bus.Addr, cfg.Bus.Password, cfg.Bus.DB)
}

// buildNotifier wires a notify.Notifier over every enabled chat adapter.
// An all-disabled config is valid: Send calls become no-ops.
func buildNotifier(cfg *config.Config) (*notify.Notifier, error) {
	var adapters []notify.Adapter

	if cfg.Notify.Slack.Enabled {
		a, err := slack.New(slack.AdapterOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			return nil, fmt.Errorf("build slack adapter: %w", err)
		}
		adapters = append(adapters, a)
	}
	if cfg.Notify.Discord.Enabled {
		a, err := discord.New(discord.AdapterOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, fmt.Errorf("build discord adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	n := notify.New(adapters...)
	if err := n.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("connect notifier: %w", err)
	}
	return n, nil
}

// healthRegistry builds the §4.J Registry with DB and bus reachability
// checkers, the two dependencies every long-running rtb process shares.
func healthRegistry(gormDB *gorm.DB, busClient bus.Client) *health.Registry {
	return health.NewRegistry(0,
		health.CheckerFunc{CheckerName: "db", Fn: func(ctx context.Context) error {
			sqlDB, err := gormDB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		health.CheckerFunc{CheckerName: "bus", Fn: busClient.Ping},
	)
}
