package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haldanelabs/nightshift/internal/domain"
)

// Sweeper periodically runs one full sleep job per known user. Fan-out goes
// through a fixed-size worker pool so each job stays strictly sequential while
// total concurrency stays bounded.
type Sweeper struct {
	engine    *SleepEngine
	learnings domain.LearningStore
	logger    *zap.Logger

	interval time.Duration
	workers  int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSweeper(engine *SleepEngine, learnings domain.LearningStore, interval time.Duration, workers int, logger *zap.Logger) *Sweeper {
	if workers <= 0 {
		workers = 4
	}
	return &Sweeper{
		engine:    engine,
		learnings: learnings,
		logger:    logger,
		interval:  interval,
		workers:   workers,
		stopCh:    make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("sweeper started",
			zap.Duration("interval", s.interval),
			zap.Int("workers", s.workers))

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopCh:
				s.logger.Info("sweeper stopped")
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// sweep runs one job per user through the worker pool. A failed job for one
// user never blocks the others; it is retried on the next tick.
func (s *Sweeper) sweep() {
	ctx := context.Background()

	userIDs, err := s.learnings.ListDistinctUserIDs(ctx)
	if err != nil {
		s.logger.Error("listing users for sweep failed", zap.Error(err))
		return
	}
	if len(userIDs) == 0 {
		return
	}

	work := make(chan uuid.UUID)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range work {
				if _, err := s.engine.Run(ctx, userID, "scheduled"); err != nil {
					s.logger.Warn("sweep job failed",
						zap.String("user_id", userID.String()),
						zap.Error(err))
				}
			}
		}()
	}

dispatch:
	for _, id := range userIDs {
		select {
		case work <- id:
		case <-s.stopCh:
			break dispatch
		}
	}
	close(work)
	wg.Wait()
}
