// Package worker parses worker command flags and launches the outbox drain
// runtime.
package worker

import (
	"context"
	"flag"
	"time"

	"github.com/airstriplabs/slotbook/internal/booking/app"
	entrypoint "github.com/airstriplabs/slotbook/internal/platform/cmd"
)

// Config holds worker command configuration.
type Config struct {
	DBPath       string        `env:"SLOTBOOK_DB_PATH" envDefault:"data/slotbook.db"`
	LogMode      string        `env:"SLOTBOOK_LOG_MODE" envDefault:"production"`
	PollInterval time.Duration `env:"SLOTBOOK_POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"SLOTBOOK_WORKER_BATCH_SIZE" envDefault:"50"`
	Rebuild      bool          `env:"SLOTBOOK_WORKER_REBUILD" envDefault:"false"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.StringVar(&cfg.LogMode, "log-mode", cfg.LogMode, "Logger mode (production or development)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Outbox poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Outbox rows claimed per pass")
	fs.BoolVar(&cfg.Rebuild, "rebuild", cfg.Rebuild, "Rebuild the read model from the journal before draining")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime. With -rebuild, the read model is rebuilt
// from the journal before the drain loops start.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(ctx context.Context) error {
		runtime, err := app.New(app.Config{
			DBPath:       cfg.DBPath,
			LogMode:      cfg.LogMode,
			PollInterval: cfg.PollInterval,
			BatchSize:    cfg.BatchSize,
		})
		if err != nil {
			return err
		}
		defer runtime.Close()

		if cfg.Rebuild {
			if _, err := runtime.Rebuilder().Rebuild(ctx); err != nil {
				return err
			}
		}
		return runtime.RunWorkerLoops(ctx)
	})
}
