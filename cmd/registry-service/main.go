// cmd/registry-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stead/internal/admission"
	"stead/internal/registry"
	"stead/internal/server"
	"stead/internal/webhook"
	"stead/pkg/config"
	"stead/pkg/db"
	"stead/pkg/logger"
	"stead/pkg/metrics"
)

func main() {
	// 1. Load configuration & initialize structured logger.
	cfg := config.Load()
	appLog := logger.New(cfg.Env, "registry-service")
	defer appLog.Sync()

	// 2. Connect Postgres and Redis (both optional depending on config).
	dbPool := db.MustConnect(cfg.DatabaseURL, appLog)
	rdb := db.MustRedis(cfg.RedisURL, appLog)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 3. Claim store: DB-backed when a pool is present, otherwise in-memory.
	var store registry.Store
	if dbPool != nil {
		if err := registry.EnsureSchema(ctx, dbPool); err != nil {
			appLog.Fatalw("ensure schema", "err", err)
		}
		store = registry.NewPostgresStore(dbPool, appLog)
	} else {
		store = registry.NewMemoryStore()
	}

	// 4. Assemble the subdomain policy: env lists first, file merged on top.
	pol := registry.Policy{
		Reserved:     cfg.ReservedSubdomains,
		Preallocated: cfg.PreallocatedOwners,
	}
	if cfg.SubdomainPolicyFile != "" {
		filePol, err := registry.LoadPolicyFile(cfg.SubdomainPolicyFile)
		if err != nil {
			appLog.Fatalw("load subdomain policy", "file", cfg.SubdomainPolicyFile, "err", err)
		}
		pol = pol.Merge(filePol)
	}

	reg, err := registry.New(ctx, store, pol, appLog)
	if err != nil {
		appLog.Fatalw("init registry", "err", err)
	}
	appLog.Infow("registry primed", "claims", reg.ActiveCount(),
		"reserved", len(pol.Reserved), "preallocated", len(pol.Preallocated))

	// 5. Claim admission policy (optional Rego module).
	var guard *admission.Guard
	if cfg.AdmissionPolicyFile != "" {
		guard, err = admission.LoadGuardFile(cfg.AdmissionPolicyFile, appLog)
		if err != nil {
			appLog.Fatalw("load admission policy", "file", cfg.AdmissionPolicyFile, "err", err)
		}
	}

	// 6. Webhook intake, wired only when a signing secret is configured.
	var hooks *webhook.Service
	if cfg.WebhookSecret != "" {
		profile := webhook.DefaultProfile()
		if cfg.WebhookProfileFile != "" {
			profile, err = webhook.LoadProfileFile(cfg.WebhookProfileFile)
			if err != nil {
				appLog.Fatalw("load webhook profile", "file", cfg.WebhookProfileFile, "err", err)
			}
		}
		var dedupe webhook.Deduper
		if rdb != nil {
			dedupe = webhook.NewRedisDeduper(rdb, cfg.WebhookDedupeTTL, appLog)
		} else {
			dedupe = webhook.NewMemoryDeduper(cfg.WebhookDedupeTTL)
		}
		hooks = webhook.New([]byte(cfg.WebhookSecret), cfg.WebhookTolerance, profile, dedupe, reg, appLog)
	} else {
		appLog.Warnw("WEBHOOK_SIGNING_SECRET not set; webhook intake disabled")
	}

	// 7. Metrics and the HTTP application.
	m := metrics.New("stead")
	m.SetActiveClaims(reg.ActiveCount())
	app := server.New(cfg, appLog, reg, hooks, guard, m, rdb)

	// 8. Start the HTTP server asynchronously.
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: app.Handler()}
	go func() {
		appLog.Infow("registry-service listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalw("ListenAndServe", "err", err)
		}
	}()

	// 9. Wait for termination signal (SIGINT/SIGTERM) to begin graceful shutdown.
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	// 10. Graceful shutdown with timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	fmt.Println("registry-service stopped")
}
