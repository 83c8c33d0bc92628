package sweep

import (
	"context"
	"time"

	"pairlink/internal/core/ports"

	"go.uber.org/zap"
)

// Scheduler runs the periodic liveness sweep: stale presence entries are
// evicted, their pairings torn down and the peers notified. The period is
// fixed and independent of request volume.
type Scheduler struct {
	broker   ports.BrokerService
	period   time.Duration
	logger   *zap.SugaredLogger
	stopChan chan struct{}
}

func NewScheduler(broker ports.BrokerService, period time.Duration, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		broker:   broker,
		period:   period,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start blocks until Stop is called or the context is cancelled. A failing
// sweep pass is logged and never blocks the next tick.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) runSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("sweep pass panicked", "panic", r)
		}
	}()

	evicted := s.broker.EvictInactive(ctx)
	if evicted > 0 {
		s.logger.Infow("sweep completed", "evicted", evicted)
	}
}
