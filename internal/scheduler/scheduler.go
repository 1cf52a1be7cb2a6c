// Package scheduler drives periodic revaluation of the trade ledger.
package scheduler

import (
	"context"
	"fmt"

	"signalTracker/internal/ports"

	"github.com/robfig/cron/v3"
)

// TradeUpdater revalues every active trade; satisfied by *tracking.Store.
type TradeUpdater interface {
	UpdateActiveTrades(ctx context.Context) (int, error)
}

// Scheduler runs the revaluation job on a cron cadence. Overlapping firings
// are skipped so only one writer ever touches the trade table.
type Scheduler struct {
	cron   *cron.Cron
	store  TradeUpdater
	logger ports.Logger
}

// Config holds the scheduler's dependencies.
type Config struct {
	Store  TradeUpdater
	Logger ports.Logger
}

// New creates a scheduler using the standard five-field cron syntax.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for scheduler")
	}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		store:  cfg.Store,
		logger: cfg.Logger,
	}, nil
}

// RegisterUpdateJob schedules the revaluation task.
func (s *Scheduler) RegisterUpdateJob(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.updateTask); err != nil {
		return fmt.Errorf("register update job %q: %w", spec, err)
	}
	s.logger.Info(context.Background(), "Revaluation job registered", map[string]interface{}{"cron": spec})
	return nil
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info(context.Background(), "Scheduler started")
}

// Stop halts scheduling. A job already in flight is not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info(context.Background(), "Scheduler stopped")
}

// RunUpdateNow triggers the revaluation task immediately, outside the cron
// cadence.
func (s *Scheduler) RunUpdateNow() {
	s.updateTask()
}

func (s *Scheduler) updateTask() {
	ctx := context.Background()
	updated, err := s.store.UpdateActiveTrades(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Scheduled revaluation failed")
		return
	}
	s.logger.Info(ctx, "Scheduled revaluation complete", map[string]interface{}{"updated": updated})
}
