// Package server is the HTTP surface of the claim registry: availability
// checks, claim lifecycle, and the billing webhook intake.
package server

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stead/internal/admission"
	"stead/internal/registry"
	"stead/internal/webhook"
	"stead/pkg/config"
	"stead/pkg/metrics"
)

// App is the registry service container. Handlers and route wiring have
// methods on this type.
//
// Keep it lean: shared deps and config only.
// Request-scoped work should use context.
type App struct {
	cfg     config.Config
	log     *zap.SugaredLogger
	reg     *registry.Registry
	hooks   *webhook.Service
	guard   *admission.Guard
	metrics *metrics.Metrics
	rdb     *redis.Client
}

func New(cfg config.Config, log *zap.SugaredLogger, reg *registry.Registry, hooks *webhook.Service, guard *admission.Guard, m *metrics.Metrics, rdb *redis.Client) *App {
	return &App{cfg: cfg, log: log, reg: reg, hooks: hooks, guard: guard, metrics: m, rdb: rdb}
}
