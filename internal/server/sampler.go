package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/taskqueue/internal/model"
)

// StatsSource provides a queue snapshot
type StatsSource interface {
	Snapshot() model.QueueStats
}

// StatsSink receives sampled queue statistics
type StatsSink interface {
	UpdateQueueStats(stats model.QueueStats)
}

// QueueSampler periodically copies queue statistics into the metrics.
// Expected wait drifts with the clock between queue operations.
type QueueSampler struct {
	queue    StatsSource
	sink     StatsSink
	interval time.Duration
	logger   *zap.Logger
}

// NewQueueSampler creates a new sampler
func NewQueueSampler(queue StatsSource, sink StatsSink, interval time.Duration, logger *zap.Logger) *QueueSampler {
	return &QueueSampler{
		queue:    queue,
		sink:     sink,
		interval: interval,
		logger:   logger,
	}
}

// Run samples once immediately and then every interval until ctx is done
func (s *QueueSampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-ticker.C:
			s.sample()
		case <-ctx.Done():
			s.logger.Info("Queue sampler stopped")
			return nil
		}
	}
}

func (s *QueueSampler) sample() {
	stats := s.queue.Snapshot()
	s.sink.UpdateQueueStats(stats)
	s.logger.Debug("Sampled queue stats",
		zap.Int("size", stats.Size),
		zap.Duration("expected_wait", stats.ExpectedWaitTime))
}
