package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/snapgallery/backoffice/internal/audit"
	"github.com/snapgallery/backoffice/internal/rbac"
)

// Core holds the authorization and audit components shared by every binary.
type Core struct {
	Store    audit.Store
	Matrix   *rbac.Matrix
	Gate     *rbac.Gate
	Recorder *audit.Recorder
	Service  *audit.Service
	Guard    *audit.Guard
	Metrics  *audit.Metrics
	Redis    *redis.Client

	closers []func()
}

// LoadMatrix reads RBAC_MATRIX_PATH, or returns the built-in matrix when unset.
func LoadMatrix(cfg *Config) (*rbac.Matrix, error) {
	if cfg.RBACMatrixPath == "" {
		return rbac.DefaultMatrix(), nil
	}
	matrix, err := rbac.LoadMatrixFile(cfg.RBACMatrixPath)
	if err != nil {
		return nil, fmt.Errorf("app: load rbac matrix: %w", err)
	}
	return matrix, nil
}

// NewCore wires the store, cache and audit services. registerer receives the
// audit metrics; nil uses the default Prometheus registerer.
func NewCore(ctx context.Context, cfg *Config, logger *slog.Logger, registerer prometheus.Registerer) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	matrix, err := LoadMatrix(cfg)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	core := &Core{Store: store, Matrix: matrix, Gate: rbac.NewGate(matrix)}
	core.closers = append(core.closers, closeStore)

	core.Redis = OpenRedis(ctx, cfg, logger)
	if core.Redis != nil {
		client := core.Redis
		core.closers = append(core.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
	}

	core.Metrics = audit.NewMetrics(registerer)
	core.Recorder = audit.NewRecorder(store, logger, core.Metrics)
	core.Service = audit.NewService(store, audit.NewCache(core.Redis, cfg.StatsCacheTTL), logger, core.Metrics)
	core.Guard = audit.NewGuard(core.Gate, core.Recorder)
	return core, nil
}

// Close releases connections in reverse order of acquisition.
func (c *Core) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
