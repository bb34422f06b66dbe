// Package cache provides the receipt caches: an in-process LRU with TTL and
// a redis-backed store shared between processes.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is a generic key/value cache. Misses and backend failures look the
// same to callers: Get reports false and Set is best effort.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, data T)
	Delete(ctx context.Context, key string)
	// Size is the number of entries held, or -1 when the backend cannot tell.
	Size() int
}

type Stats struct {
	Hits   uint64
	Misses uint64
}

// StatsReporter is implemented by caches that count lookups.
type StatsReporter interface {
	Stats() Stats
}

// Cleaner is implemented by caches that hold expired entries until asked
// to drop them. Redis expires keys on its own and is not one.
type Cleaner interface {
	CleanExpired() int
}

// StartJanitor calls CleanExpired on every Cleaner among caches once per
// interval. The returned stop function ends the loop and waits for it; it is
// safe to call more than once. With no Cleaner present nothing is started.
func StartJanitor(interval time.Duration, caches ...any) (stop func()) {
	var cleaners []Cleaner
	for _, c := range caches {
		if cl, ok := c.(Cleaner); ok {
			cleaners = append(cleaners, cl)
		}
	}
	if len(cleaners) == 0 || interval <= 0 {
		return func() {}
	}

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-quit:
				return
			case <-tick.C:
			}
			n := 0
			for _, cl := range cleaners {
				n += cl.CleanExpired()
			}
			if n > 0 {
				slog.Debug("Evicted expired cache entries", "component", "cache", "count", n)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(quit) })
		wg.Wait()
	}
}
