package middleware

import (
	"context"
	"sync"
	"time"
)

// RateLimitConfig holds the ceiling for one sliding window limiter
type RateLimitConfig struct {
	Max    int           // requests allowed per window
	Window time.Duration // window length, measured from the first request
}

// RateLimitRecord is the per-identifier counter. A record whose window has
// elapsed is stale and is replaced lazily on the next access.
type RateLimitRecord struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Decision is the outcome of a limiter check
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// UpdateFunc computes the next record from the current one (nil when absent).
// Returning changed=false leaves the store untouched; returning a nil record
// with changed=true deletes the key.
type UpdateFunc func(current *RateLimitRecord) (next *RateLimitRecord, changed bool)

// RateLimitStore persists rate limit records. Update must apply fn atomically
// per key so concurrent requests for the same identifier never lose counts.
// Stores that expire keys keep a written record until its WindowStart plus
// window, measured against the caller's now.
type RateLimitStore interface {
	Update(ctx context.Context, key string, now time.Time, window time.Duration, fn UpdateFunc) (*RateLimitRecord, error)
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) error
}

// MemoryStore keeps records in process memory
type MemoryStore struct {
	records map[string]RateLimitRecord
	mu      sync.Mutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]RateLimitRecord)}
}

func (s *MemoryStore) Update(_ context.Context, key string, _ time.Time, _ time.Duration, fn UpdateFunc) (*RateLimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *RateLimitRecord
	if rec, ok := s.records[key]; ok {
		current = &rec
	}

	next, changed := fn(current)
	if !changed {
		return current, nil
	}
	if next == nil {
		delete(s.records, key)
		return nil, nil
	}
	s.records[key] = *next
	return next, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]RateLimitRecord)
	return nil
}

// Len returns the number of tracked identifiers
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// SlidingWindowRateLimiter counts requests per identifier in a window that
// starts at the identifier's first request and lasts config.Window.
type SlidingWindowRateLimiter struct {
	config *RateLimitConfig
	store  RateLimitStore
}

// NewSlidingWindowRateLimiter creates a limiter. A nil store selects a
// fresh MemoryStore.
func NewSlidingWindowRateLimiter(config *RateLimitConfig, store RateLimitStore) *SlidingWindowRateLimiter {
	if store == nil {
		store = NewMemoryStore()
	}
	return &SlidingWindowRateLimiter{config: config, store: store}
}

// Config returns the limiter's ceiling
func (l *SlidingWindowRateLimiter) Config() RateLimitConfig {
	return *l.config
}

func (l *SlidingWindowRateLimiter) stale(rec *RateLimitRecord, now time.Time) bool {
	return now.Sub(rec.WindowStart) >= l.config.Window
}

func (l *SlidingWindowRateLimiter) retryAfter(rec *RateLimitRecord, now time.Time) time.Duration {
	return l.config.Window - now.Sub(rec.WindowStart)
}

// Consume counts a request for key and reports whether it fits the window.
// The first request of a window is always allowed.
func (l *SlidingWindowRateLimiter) Consume(ctx context.Context, key string, now time.Time) (Decision, error) {
	var fresh bool
	rec, err := l.store.Update(ctx, key, now, l.config.Window, func(current *RateLimitRecord) (*RateLimitRecord, bool) {
		fresh = current == nil || l.stale(current, now)
		if fresh {
			return &RateLimitRecord{Count: 1, WindowStart: now}, true
		}
		next := *current
		next.Count++
		return &next, true
	})
	if err != nil {
		return Decision{}, err
	}

	if fresh {
		return Decision{Allowed: true}, nil
	}
	return Decision{
		Allowed:    rec.Count <= l.config.Max,
		RetryAfter: l.retryAfter(rec, now),
	}, nil
}

// IsLimited reports the state of key without counting a request. A stale
// record is dropped.
func (l *SlidingWindowRateLimiter) IsLimited(ctx context.Context, key string, now time.Time) (Decision, error) {
	rec, err := l.store.Update(ctx, key, now, l.config.Window, func(current *RateLimitRecord) (*RateLimitRecord, bool) {
		if current == nil {
			return nil, false
		}
		if l.stale(current, now) {
			return nil, true
		}
		return current, false
	})
	if err != nil {
		return Decision{}, err
	}

	if rec == nil {
		return Decision{Allowed: true}, nil
	}
	return Decision{
		Allowed:    rec.Count < l.config.Max,
		RetryAfter: l.retryAfter(rec, now),
	}, nil
}

// Increment counts a request for key without deciding anything
func (l *SlidingWindowRateLimiter) Increment(ctx context.Context, key string, now time.Time) error {
	_, err := l.Consume(ctx, key, now)
	return err
}

// Reset forgets key
func (l *SlidingWindowRateLimiter) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}

// ResetAll forgets every key held by this limiter
func (l *SlidingWindowRateLimiter) ResetAll(ctx context.Context) error {
	return l.store.DeleteAll(ctx)
}
