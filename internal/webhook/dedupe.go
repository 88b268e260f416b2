// internal/webhook/dedupe.go
package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper remembers delivered event ids so provider retries do not release
// claims twice. FirstDelivery returns false for an id it has seen within
// the retention window.
type Deduper interface {
	FirstDelivery(ctx context.Context, eventID string) bool
}

type redisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.SugaredLogger
}

// NewRedisDeduper dedupes across replicas via SetNX. Events without an id
// and Redis outages pass through as first deliveries: processing is
// idempotent, dropping events is not.
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) Deduper {
	return &redisDeduper{rdb: rdb, ttl: ttl, log: log}
}

func (d *redisDeduper) FirstDelivery(ctx context.Context, eventID string) bool {
	if eventID == "" {
		return true
	}
	ok, err := d.rdb.SetNX(ctx, fmt.Sprintf("webhook:event:%s", eventID), 1, d.ttl).Result()
	if err != nil {
		if d.log != nil {
			d.log.Warnw("webhook dedupe unavailable", "err", err)
		}
		return true
	}
	return ok
}

// memoryDeduper is the single-process stand-in used when Redis is not
// configured.
type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) Deduper {
	return &memoryDeduper{seen: map[string]time.Time{}, ttl: ttl, now: time.Now}
}

func (d *memoryDeduper) FirstDelivery(_ context.Context, eventID string) bool {
	if eventID == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for id, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, id)
		}
	}
	if _, dup := d.seen[eventID]; dup {
		return false
	}
	d.seen[eventID] = now
	return true
}
