// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"stead/internal/authz"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Bearer authorization. JWKSURL is optional: deployments that terminate
	// signature verification upstream run with payload checks only.
	JWKSURL          string
	JWKSCacheTTL     time.Duration
	PermittedOrigins []string

	// Subdomain policy, fixed for the process lifetime.
	ReservedSubdomains  []string
	PreallocatedOwners  map[string]string
	SubdomainPolicyFile string
	AdmissionPolicyFile string

	// Subscription webhook intake.
	WebhookSecret      string
	WebhookTolerance   time.Duration
	WebhookProfileFile string
	WebhookDedupeTTL   time.Duration

	// Claim rate limiting (active only when Redis is configured).
	ClaimRateMax    int
	ClaimRateWindow time.Duration

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                 env("STEAD_ENV", "dev"),
		HTTPAddr:            env("STEAD_HTTP_ADDR", ":8080"),
		JWKSURL:             env("JWKS_URL", ""),
		JWKSCacheTTL:        envDur("JWKS_CACHE_TTL_SEC", 6*3600) * time.Second,
		PermittedOrigins:    authz.ParsePermittedOrigins(env("PERMITTED_ORIGINS", "")),
		ReservedSubdomains:  splitList(env("RESERVED_SUBDOMAINS", "")),
		PreallocatedOwners:  splitPairs(env("PREALLOCATED_SUBDOMAINS", "")),
		SubdomainPolicyFile: env("SUBDOMAIN_POLICY_FILE", ""),
		AdmissionPolicyFile: env("ADMISSION_POLICY_FILE", ""),
		WebhookSecret:       env("WEBHOOK_SIGNING_SECRET", ""),
		WebhookTolerance:    envDur("WEBHOOK_TOLERANCE_SEC", 300) * time.Second,
		WebhookProfileFile:  env("WEBHOOK_PROFILE_FILE", ""),
		WebhookDedupeTTL:    envDur("WEBHOOK_DEDUPE_TTL_SEC", 24*3600) * time.Second,
		ClaimRateMax:        envInt("CLAIM_RATE_MAX", 60),
		ClaimRateWindow:     envDur("CLAIM_RATE_WINDOW_SEC", 60) * time.Second,
		RedisURL:            env("REDIS_URL", ""),
		DatabaseURL:         env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; keeping claims in memory only")
	}
	if len(cfg.PermittedOrigins) == 0 {
		log.Println("[WARN] PERMITTED_ORIGINS not set; origin checks admit every authorized party")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return i
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}

// splitList parses a comma-separated list, trimming entries and dropping
// empties.
func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitPairs parses "name=owner" pairs out of a comma-separated list.
// Entries without an owner are dropped.
func splitPairs(csv string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, owner, ok := strings.Cut(part, "=")
		name, owner = strings.TrimSpace(name), strings.TrimSpace(owner)
		if !ok || name == "" || owner == "" {
			continue
		}
		out[name] = owner
	}
	return out
}
