package statcache

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Cache keys for the statistics the dashboard and analytics pages compute.
const (
	KeyDashboard = "dashboard"
	KeySegments  = "segments"
	KeyDaily     = "daily"
)

// cacheStore is the backing store. Every delete bumps a generation counter
// and SetJSONAt only writes while the counter still equals gen.
type cacheStore interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Generation(ctx context.Context) (int64, error)
	SetJSONAt(ctx context.Context, key string, v any, ttl time.Duration, gen int64) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	FlushAll(ctx context.Context) error
}

// Manager is a read-through cache of computed statistics: Redis first, then
// the compute function (SQL). A nil store or an unreachable Redis degrades to
// computing on every call.
type Manager struct {
	store    cacheStore
	ttl      time.Duration
	degraded atomic.Bool
}

func NewManager(redis *RedisStore, ttl time.Duration) *Manager {
	if redis == nil {
		return newManager(nil, ttl)
	}
	return newManager(redis, ttl)
}

func newManager(s cacheStore, ttl time.Duration) *Manager {
	return &Manager{store: s, ttl: ttl}
}

// GetOrCompute returns the cached value for key, computing and storing it on a
// miss. A value computed while an invalidation ran is returned but not stored.
func GetOrCompute[T any](ctx context.Context, m *Manager, key string, compute func(context.Context) (T, error)) (T, error) {
	if m == nil || m.store == nil {
		return compute(ctx)
	}
	gen, err := m.store.Generation(ctx)
	if err != nil {
		m.noteError("generation", err)
		return compute(ctx)
	}
	var cached T
	hit, err := m.store.GetJSON(ctx, key, &cached)
	if err != nil {
		m.noteError("get "+key, err)
	} else {
		m.noteOK()
		if hit {
			return cached, nil
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	stored, err := m.store.SetJSONAt(ctx, key, v, m.ttl, gen)
	if err != nil {
		m.noteError("set "+key, err)
	} else if !stored {
		log.Printf("statcache: %s invalidated during compute, not stored", key)
	}
	return v, nil
}

// Invalidate drops the given keys so the next read recomputes.
func (m *Manager) Invalidate(ctx context.Context, keys ...string) {
	if m == nil || m.store == nil {
		return
	}
	if err := m.store.Delete(ctx, keys...); err != nil {
		m.noteError("invalidate", err)
	}
}

// InvalidatePrefix drops every key starting with prefix, for families of
// keys that vary by parameter such as KeyDaily.
func (m *Manager) InvalidatePrefix(ctx context.Context, prefix string) {
	if m == nil || m.store == nil {
		return
	}
	if err := m.store.DeletePrefix(ctx, prefix); err != nil {
		m.noteError("invalidate "+prefix, err)
	}
}

// Reset clears every cached statistic. Called on startup.
func (m *Manager) Reset(ctx context.Context) {
	if m == nil || m.store == nil {
		return
	}
	if err := m.store.FlushAll(ctx); err != nil {
		m.noteError("reset", err)
		return
	}
	log.Printf("statcache: cleared")
}

// Degraded reports whether the last Redis operation failed.
func (m *Manager) Degraded() bool {
	if m == nil || m.store == nil {
		return true
	}
	return m.degraded.Load()
}

func (m *Manager) noteError(op string, err error) {
	if !m.degraded.Swap(true) {
		log.Printf("statcache: redis %s failed (%v), computing from SQL", op, err)
	}
}

func (m *Manager) noteOK() {
	if m.degraded.Swap(false) {
		log.Printf("statcache: redis available again")
	}
}
