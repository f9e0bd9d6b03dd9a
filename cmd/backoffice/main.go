package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/snapgallery/backoffice/internal/app"
	audithttp "github.com/snapgallery/backoffice/internal/audit/http"
	"github.com/snapgallery/backoffice/internal/auth"
	"github.com/snapgallery/backoffice/internal/observability"
	"github.com/snapgallery/backoffice/internal/rbac"
	"github.com/snapgallery/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	metrics := observability.NewMetrics()

	core, err := app.NewCore(ctx, cfg, logger, metrics.Registerer())
	if err != nil {
		logger.Error("init audit core", slog.Any("error", err))
		os.Exit(1)
	}
	defer core.Close()

	rbacMiddleware := rbac.Middleware{Gate: core.Gate, Logger: logger, Observer: metrics}
	auditHandler := audithttp.NewHandler(logger, core.Service, core.Recorder, core.Guard, rbacMiddleware, audithttp.Config{
		Location:    cfg.Location(),
		Priority:    cfg.PriorityActions(),
		MaxEntries:  cfg.StatsMaxEntries,
		WindowDays:  cfg.StatsWindowDays,
		ExportLimit: cfg.ExportRateLimit,
	})
	permissionsHandler := rbac.NewPermissionsHandler(logger, core.Gate, rbacMiddleware)

	var jobHandler *jobs.Handler
	if core.Redis != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Verifier:           auth.NewVerifier(cfg.JWTSecret),
		AuditHandler:       auditHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("audit_store", cfg.AuditStore))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
