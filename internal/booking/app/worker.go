package app

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunWorkerLoops drains both outboxes until ctx is canceled. The propagation
// loop turns slot events into participant-slot commands; the projection loop
// folds participant-slot events into read-model rows. Processing errors are
// logged and retried by the outbox's own backoff, never fatal to the loop.
func (a *App) RunWorkerLoops(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.pollLoop(ctx, "propagation", func(ctx context.Context) (int, error) {
			return a.store.ProcessPropagationOutbox(ctx, time.Now().UTC(), a.cfg.BatchSize, a.propagator.Propagate)
		})
	})
	g.Go(func() error {
		return a.pollLoop(ctx, "projection_apply", func(ctx context.Context) (int, error) {
			return a.store.ProcessProjectionApplyOutbox(ctx, time.Now().UTC(), a.cfg.BatchSize, a.applier.Apply)
		})
	})
	return g.Wait()
}

// pollLoop runs one outbox drain loop. A busy pass re-polls immediately; an
// idle pass sleeps the configured interval plus jitter so multiple workers
// do not synchronize their polling.
func (a *App) pollLoop(ctx context.Context, name string, process func(context.Context) (int, error)) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		processed, err := process(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.log.Error("outbox pass failed", "outbox", name, "error", err)
		} else if processed > 0 {
			a.log.Debug("outbox pass complete", "outbox", name, "processed", processed)
			timer.Reset(0)
			continue
		}
		timer.Reset(a.cfg.PollInterval + jitter(a.cfg.PollInterval/4))
	}
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
