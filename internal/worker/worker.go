package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pool manages background goroutines and ensures graceful shutdown
type Pool struct {
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewPool creates a new worker pool
func NewPool(logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Submit adds a task to the pool and tracks it
func (p *Pool) Submit(task func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		task(p.ctx)
	}()
}

// SubmitPeriodic runs task every interval until the pool shuts down.
// A failing run is logged and the schedule continues.
func (p *Pool) SubmitPeriodic(name string, interval time.Duration, task func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("periodic task %q needs a positive interval, got %s", name, interval)
	}

	p.Submit(func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		p.logger.Info("⏱️ [Worker] Periodic task started", "task", name, "interval", interval)

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("🛑 [Worker] Periodic task stopped", "task", name)
				return
			case <-ticker.C:
				if err := task(ctx); err != nil && ctx.Err() == nil {
					p.logger.Warn("⚠️ [Worker] Periodic task failed", "task", name, "error", err)
				}
			}
		}
	})
	return nil
}

// Context returns the pool's context
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Shutdown signals all workers to stop and waits for completion
func (p *Pool) Shutdown(timeout time.Duration) {
	p.logger.Info("🛑 [Worker] Initiating graceful shutdown...")

	// Signal all workers to stop
	p.cancel()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("✅ [Worker] All background tasks completed")
	case <-time.After(timeout):
		p.logger.Warn("⚠️ [Worker] Shutdown timeout exceeded, some tasks may not have completed",
			"timeout", timeout,
		)
	}
}
