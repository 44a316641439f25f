// Package server parses server command flags and starts the HTTP runtime.
package server

import (
	"context"
	"flag"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/app"
	entrypoint "github.com/airstriplabs/slotbook/internal/platform/cmd"
)

// Config holds server command configuration.
type Config struct {
	Addr         string        `env:"SLOTBOOK_SERVER_ADDR" envDefault:":8080"`
	DBPath       string        `env:"SLOTBOOK_DB_PATH" envDefault:"data/slotbook.db"`
	LogMode      string        `env:"SLOTBOOK_LOG_MODE" envDefault:"production"`
	PollInterval time.Duration `env:"SLOTBOOK_POLL_INTERVAL" envDefault:"2s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.StringVar(&cfg.LogMode, "log-mode", cfg.LogMode, "Logger mode (production or development)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the booking HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(ctx context.Context) error {
		runtime, err := app.New(app.Config{
			Addr:         cfg.Addr,
			DBPath:       cfg.DBPath,
			LogMode:      cfg.LogMode,
			PollInterval: cfg.PollInterval,
		})
		if err != nil {
			return err
		}
		defer runtime.Close()
		return runtime.RunServer(ctx)
	})
}
