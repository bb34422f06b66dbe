package chain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arcreceipts/internal/cache"
	"arcreceipts/internal/core"
)

type countingSource struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingSource) Receipt(_ context.Context, id uint64) (core.Receipt, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return core.Receipt{}, s.err
	}
	return core.Receipt{ID: id, From: alice, To: bob}, nil
}

func TestCachedSourceMemoizes(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{}
	c := NewCachedSource(src, cache.NewLRUCache[core.Receipt](10, time.Minute))

	for i := 0; i < 3; i++ {
		r, err := c.Receipt(ctx, 5)
		if err != nil || r.ID != 5 {
			t.Fatalf("got %+v (err=%v)", r, err)
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("expected one read, got %d", n)
	}
}

func TestCachedSourceDoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{err: ErrConnection}
	c := NewCachedSource(src, cache.NewLRUCache[core.Receipt](10, time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := c.Receipt(ctx, 1); !errors.Is(err, ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}
	}
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("failures must be retried, got %d reads", n)
	}
}

func TestCachedSourceCoalescesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{delay: 50 * time.Millisecond}
	c := NewCachedSource(src, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r, err := c.Receipt(ctx, 3); err != nil || r.ID != 3 {
				t.Errorf("got %+v (err=%v)", r, err)
			}
		}()
	}
	wg.Wait()
	if n := src.calls.Load(); n >= 8 {
		t.Fatalf("expected concurrent misses to share reads, got %d", n)
	}
}
