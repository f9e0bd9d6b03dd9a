package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/snapgallery/backoffice/internal/audit"
	jobmetrics "github.com/snapgallery/backoffice/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StatsService is the part of audit.Service the warm-up drives.
type StatsService interface {
	TopActivity(ctx context.Context, windowDays int, priority []audit.ActionType, maxEntries int) ([]audit.StatBucket, error)
	InvalidateStats(ctx context.Context) error
}

// StatsWarmupJob pre-populates the activity summary cache.
type StatsWarmupJob struct {
	Stats    StatsService
	Priority []audit.ActionType
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewStatsWarmupJob wires dependencies for the warm-up handler.
func NewStatsWarmupJob(stats StatsService, priority []audit.ActionType, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsWarmupJob {
	return &StatsWarmupJob{Stats: stats, Priority: priority, Logger: logger, Metrics: metrics}
}

// Handle processes stats warm-up tasks.
func (j *StatsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stats == nil {
		return errors.New("stats warmup: handler not configured")
	}
	var payload StatsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("stats warmup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(payload.Windows) == 0 {
		return fmt.Errorf("stats warmup: no windows: %w", asynq.SkipRetry)
	}

	if payload.RunID == "" {
		payload.RunID = uuid.NewString()
	}

	tracker := j.metrics().Track(TaskStatsWarmup)
	err := j.run(ctx, payload)
	return tracker.End(err)
}

func (j *StatsWarmupJob) run(ctx context.Context, payload StatsWarmupPayload) error {
	logger := j.logger().With(slog.String("run_id", payload.RunID))
	start := time.Now()
	logger.Info("starting stats warmup", slog.Any("windows", payload.Windows))

	if payload.Refresh {
		if err := j.Stats.InvalidateStats(ctx); err != nil {
			logger.Warn("invalidate stats cache", slog.Any("error", err))
		}
	}
	for _, days := range payload.Windows {
		windowCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		buckets, err := j.Stats.TopActivity(windowCtx, days, j.Priority, payload.MaxEntries)
		cancel()
		if err != nil {
			logger.Error("warm window", slog.Int("days", days), slog.Any("error", err))
			return err
		}
		j.metrics().AddWarmed(strconv.Itoa(days), len(buckets))
	}
	logger.Info("completed stats warmup", slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *StatsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStatsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskStatsWarmup))
}

func (j *StatsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
