// Package app is the composition root for the booking runtime. It owns the
// store, registries, command handlers and the HTTP router, and exposes run
// loops for the server and worker processes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	httpapi "github.com/airstriplabs/slotbook/internal/booking/api/http"
	"github.com/airstriplabs/slotbook/internal/booking/domain/command"
	"github.com/airstriplabs/slotbook/internal/booking/domain/event"
	"github.com/airstriplabs/slotbook/internal/booking/domain/participantslot"
	"github.com/airstriplabs/slotbook/internal/booking/domain/slot"
	"github.com/airstriplabs/slotbook/internal/booking/engine"
	"github.com/airstriplabs/slotbook/internal/booking/projection"
	"github.com/airstriplabs/slotbook/internal/booking/propagation"
	"github.com/airstriplabs/slotbook/internal/booking/service"
	"github.com/airstriplabs/slotbook/internal/booking/storage/sqlite"
	"github.com/airstriplabs/slotbook/internal/platform/logger"
)

const serverShutdownTimeout = 10 * time.Second

// Config holds runtime configuration shared by server and worker processes.
type Config struct {
	Addr         string
	DBPath       string
	LogMode      string
	PollInterval time.Duration
	BatchSize    int
}

// App bundles the wired booking runtime.
type App struct {
	cfg        Config
	log        *logger.Logger
	store      *sqlite.Store
	service    *service.Service
	propagator *propagation.Propagator
	applier    *projection.Applier
	rebuilder  *projection.Rebuilder
	router     http.Handler
}

// New wires the full runtime from configuration. Both outboxes are enabled:
// a server process enqueues rows that a worker process drains, and nothing
// breaks when one process plays both roles.
func New(cfg Config) (*App, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	commands := command.NewRegistry()
	if err := slot.RegisterCommands(commands); err != nil {
		return nil, fmt.Errorf("register slot commands: %w", err)
	}
	if err := participantslot.RegisterCommands(commands); err != nil {
		return nil, fmt.Errorf("register participant-slot commands: %w", err)
	}
	events := event.NewRegistry()
	if err := slot.RegisterEvents(events); err != nil {
		return nil, fmt.Errorf("register slot events: %w", err)
	}
	if err := participantslot.RegisterEvents(events); err != nil {
		return nil, fmt.Errorf("register participant-slot events: %w", err)
	}

	store, err := sqlite.Open(cfg.DBPath, events,
		sqlite.WithPropagationOutboxEnabled(true),
		sqlite.WithProjectionApplyOutboxEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	slotHandler, err := engine.New(commands, events, store, engine.SlotDecider{})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build slot handler: %w", err)
	}
	participantHandler, err := engine.New(commands, events, store, engine.ParticipantSlotDecider{})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build participant-slot handler: %w", err)
	}

	svc, err := service.New(slotHandler, store, store, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build service: %w", err)
	}
	propagator, err := propagation.New(participantHandler, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build propagator: %w", err)
	}
	applier, err := projection.NewApplier(store, store, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build applier: %w", err)
	}
	rebuilder, err := projection.NewRebuilder(store, store, store, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build rebuilder: %w", err)
	}

	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		service:    svc,
		propagator: propagator,
		applier:    applier,
		rebuilder:  rebuilder,
		router: httpapi.NewRouter(httpapi.RouterConfig{
			Service:     svc,
			Ops:         store,
			Log:         log,
			ServiceName: "slotbook",
		}),
	}, nil
}

// Close releases the store. Nil-safe.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.log != nil {
		a.log.Sync()
	}
	return a.store.Close()
}

// Service exposes the booking use cases, primarily for tests and tooling.
func (a *App) Service() *service.Service {
	return a.service
}

// Store exposes the underlying sqlite store for tooling and tests.
func (a *App) Store() *sqlite.Store {
	return a.store
}

// Rebuilder exposes the read-model rebuild entry point for tooling.
func (a *App) Rebuilder() *projection.Rebuilder {
	return a.rebuilder
}

// RunServer serves the HTTP API until ctx is canceled, then drains in-flight
// requests.
func (a *App) RunServer(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("HTTP server listening", "addr", a.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
