package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/snapgallery/backoffice/internal/app"
	jobmetrics "github.com/snapgallery/backoffice/internal/jobs"
	"github.com/snapgallery/backoffice/jobs"
)

// warmupWindows are the trailing day windows the dashboard asks for.
var warmupWindows = []int{1, 7, 30}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	core, err := app.NewCore(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("init audit core", slog.Any("error", err))
		os.Exit(1)
	}
	defer core.Close()
	if core.Redis == nil {
		logger.Error("worker requires redis", slog.String("addr", cfg.RedisAddr))
		os.Exit(1)
	}

	warmupJob := jobs.NewStatsWarmupJob(core.Service, cfg.PriorityActions(), logger, jobmetrics.NewMetrics(nil))
	warmupTask, err := jobs.NewStatsWarmupTask(jobs.StatsWarmupPayload{
		Windows:    warmupWindows,
		MaxEntries: cfg.StatsMaxEntries,
		Refresh:    true,
	})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStatsWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
