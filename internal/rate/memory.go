package rate

import (
	"context"
	"sync"
	"time"
)

type record struct {
	mu     sync.Mutex
	stamps []time.Time
	// dead is set once the record has been removed from the map; holders of a
	// stale pointer must reload.
	dead bool
}

// Memory is an in-process sliding-window limiter. The zero value is not usable;
// construct with [NewMemory].
type Memory struct {
	now     func() time.Time
	records sync.Map // string -> *record
}

// NewMemory returns a Memory limiter reading time from now. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now}
}

// IsRateLimited purges expired attempts for key and reports whether the remaining
// count has reached maxAttempts.
func (m *Memory) IsRateLimited(_ context.Context, key string, maxAttempts int, window time.Duration) (bool, error) {
	if maxAttempts <= 0 {
		return true, nil
	}

	v, ok := m.records.Load(key)
	if !ok {
		return false, nil
	}
	rec := v.(*record)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.dead {
		return false, nil
	}

	rec.stamps = purge(rec.stamps, m.now().Add(-window), window)
	if len(rec.stamps) == 0 {
		rec.dead = true
		m.records.CompareAndDelete(key, rec)
		return false, nil
	}

	return len(rec.stamps) >= maxAttempts, nil
}

// RecordAttempt appends the current time to key's record.
func (m *Memory) RecordAttempt(_ context.Context, key string) error {
	for {
		v, _ := m.records.LoadOrStore(key, &record{})
		rec := v.(*record)

		rec.mu.Lock()
		if rec.dead {
			rec.mu.Unlock()
			continue
		}
		rec.stamps = append(rec.stamps, m.now())
		rec.mu.Unlock()
		return nil
	}
}

// Clear removes key's record entirely.
func (m *Memory) Clear(_ context.Context, key string) error {
	v, ok := m.records.LoadAndDelete(key)
	if !ok {
		return nil
	}
	rec := v.(*record)

	rec.mu.Lock()
	rec.dead = true
	rec.stamps = nil
	rec.mu.Unlock()
	return nil
}

// Attempts returns the number of attempts for key newer than now-window without
// purging anything.
func (m *Memory) Attempts(key string, window time.Duration) int {
	v, ok := m.records.Load(key)
	if !ok {
		return 0
	}
	rec := v.(*record)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.dead {
		return 0
	}
	cutoff := m.now().Add(-window)
	n := 0
	for _, ts := range rec.stamps {
		if window > 0 && ts.After(cutoff) {
			n++
		}
	}
	return n
}

// purge drops stamps at or before cutoff in place. With window <= 0 every stamp
// is expired.
func purge(stamps []time.Time, cutoff time.Time, window time.Duration) []time.Time {
	if window <= 0 {
		return stamps[:0]
	}
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
