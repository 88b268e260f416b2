// pkg/db/db.go
package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MustConnect opens a pgx pool for url. An empty url returns nil so callers
// fall back to the in-memory claim store.
func MustConnect(url string, log *zap.SugaredLogger) *pgxpool.Pool {
	if url == "" {
		return nil
	}
	pc, err := pgxpool.ParseConfig(url)
	if err != nil {
		log.Fatalw("pg parse", "err", err)
	}
	pc.MaxConnLifetime = time.Hour
	pool, err := pgxpool.NewWithConfig(context.Background(), pc)
	if err != nil {
		log.Fatalw("pg connect", "err", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatalw("pg ping", "err", err)
	}
	log.Infow("postgres ready", "host", redactDSN(url))
	return pool
}

// MustRedis opens a redis client for url, or nil when url is empty. Redis is
// optional: webhook dedupe and rate limiting degrade gracefully without it.
func MustRedis(url string, log *zap.SugaredLogger) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalw("redis parse", "err", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(context.Background()).Err(); err != nil {
		log.Fatalw("redis ping", "err", err)
	}
	log.Infow("redis ready", "addr", opts.Addr)
	return cli
}

func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i > 0 {
		return "***@" + dsn[i+1:]
	}
	return dsn
}
