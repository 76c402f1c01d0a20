// Package scheduler runs periodic reconciliation of locally stored records.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
)

// Restorer syncs every owner's local records (the persistence gateway).
type Restorer interface {
	RestoreAll(ctx context.Context) (map[string]analysis.RestoreReport, error)
}

type Scheduler struct {
	cron     *cron.Cron
	restorer Restorer
	timeout  time.Duration
	logger   *slog.Logger
}

// Validate checks a standard 5-field cron expression. Empty is valid (disabled).
func Validate(schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	return nil
}

// New returns nil when schedule is empty.
func New(schedule string, r Restorer, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := &Scheduler{cron: cron.New(), restorer: r, timeout: timeout, logger: logger}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs a single reconciliation pass over every owner.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	start := time.Now()
	reports, err := s.restorer.RestoreAll(ctx)
	if err != nil {
		s.logger.Error("scheduler.sync.failed", "error", err)
		return
	}
	var synced, failed, remaining int
	for _, r := range reports {
		synced += r.Synced
		failed += r.Failed
		remaining += r.Remaining
	}
	s.logger.Info("scheduler.sync.done",
		"owners", len(reports),
		"synced", synced,
		"failed", failed,
		"remaining", remaining,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler.started", "next", s.cron.Entries()[0].Next)
}

// Stop waits for a running pass to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
