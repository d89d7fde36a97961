package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tintworks/dyeops/internal/jobs"
)

// Warmer rebuilds cached analytics views.
type Warmer interface {
	Warm(ctx context.Context) error
}

// AnalyticsWarmupJob pre-populates analytics caches.
type AnalyticsWarmupJob struct {
	Analytics Warmer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// Handle processes TaskAnalyticsWarmup.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAnalyticsWarmup)
	defer func() { err = tracker.End(err) }()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	logger := jobLogger(j.Logger, TaskAnalyticsWarmup)
	if err := j.Analytics.Warm(ctx); err != nil {
		logger.Error("warm analytics", slog.Any("error", err))
		return err
	}
	logger.Info("analytics warmed", slog.Duration("duration", time.Since(start)))
	return nil
}
