package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Janitor periodically evicts idle handles from a Registry.
type Janitor struct {
	registry *Registry
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewJanitor creates a janitor for registry. It does nothing until Start.
func NewJanitor(registry *Registry, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		registry: registry,
		logger:   logger.With("component", "janitor"),
	}
}

// Start schedules the sweep. A zero IdleTimeout disables it.
func (j *Janitor) Start() error {
	cfg := j.registry.Config()
	if cfg.IdleTimeout <= 0 {
		j.logger.Debug("idle eviction disabled")
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return nil
	}

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := c.AddFunc(cfg.JanitorSchedule, func() { j.Sweep() }); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", cfg.JanitorSchedule, err)
	}
	c.Start()
	j.cron = c

	j.logger.Info("janitor started",
		"schedule", cfg.JanitorSchedule,
		"idle_timeout", cfg.IdleTimeout,
	)
	return nil
}

// Sweep evicts idle handles once and returns their paths.
func (j *Janitor) Sweep() []string {
	evicted := j.registry.EvictIdle(j.registry.Config().IdleTimeout)
	for _, path := range evicted {
		j.logger.Debug("evicted idle handle", "path", path)
	}
	return evicted
}

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (j *Janitor) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		j.logger.Warn("janitor stop timed out")
	}
}
