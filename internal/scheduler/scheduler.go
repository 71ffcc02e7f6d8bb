// Package scheduler wires up the cron job that keeps the denormalized
// application counts fresh. The counts feed the popularity tie-break in
// recommendation ranking.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CountRefresher is implemented by the store.
type CountRefresher interface {
	RefreshApplicationCounts(ctx context.Context) (int64, error)
}

// Scheduler wraps robfig/cron around the periodic refresh.
type Scheduler struct {
	cron      *cron.Cron
	refresher CountRefresher
	spec      string
	logger    *zap.Logger
}

// New creates a Scheduler firing every intervalMinutes minutes.
func New(refresher CountRefresher, intervalMinutes int, logger *zap.Logger) *Scheduler {
	if intervalMinutes <= 0 {
		intervalMinutes = 30
	}
	return &Scheduler{
		cron:      cron.New(),
		refresher: refresher,
		spec:      fmt.Sprintf("@every %dm", intervalMinutes),
		logger:    logger,
	}
}

// Start registers the job and starts the scheduler. One refresh runs
// immediately so rankings do not wait for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.refresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("count refresh scheduler started", zap.String("spec", s.spec))

	go s.refresh(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("count refresh scheduler stopped")
}

func (s *Scheduler) refresh(ctx context.Context) {
	updated, err := s.refresher.RefreshApplicationCounts(ctx)
	if err != nil {
		s.logger.Error("refreshing application counts", zap.Error(err))
		return
	}
	s.logger.Debug("application counts refreshed", zap.Int64("updated_posts", updated))
}
