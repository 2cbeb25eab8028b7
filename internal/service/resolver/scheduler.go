package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler periodically probes remote strategies so a recovered backend is
// noticed before the cooldown expires.
type Scheduler struct {
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	resolver *Resolver
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a probe scheduler. It does nothing until Start.
func NewScheduler(resolver *Resolver, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		ctx:      ctx,
		cancel:   cancel,
		resolver: resolver,
		interval: interval,
		logger:   logger,
	}
}

// Start registers the probe job and starts the cron runner. A non-positive
// interval disables probing.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("strategy probing disabled")
		return nil
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.run)
	if err != nil {
		return fmt.Errorf("failed to schedule probes: %w", err)
	}

	s.cron.Start()
	s.logger.Info("strategy probing started", "interval", s.interval.String())
	return nil
}

func (s *Scheduler) run() {
	results := s.resolver.Probe(s.ctx)
	s.logger.Debug("strategy probe finished", "results", results, "status", s.resolver.Status())
}

// Stop waits for a running probe to finish and cancels future ones.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// IsRunning reports whether a probe job is registered.
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
