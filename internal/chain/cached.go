package chain

import (
	"context"
	"fmt"
	"strconv"

	"arcreceipts/internal/cache"
	"arcreceipts/internal/core"

	"golang.org/x/sync/singleflight"
)

// CachedSource memoizes normalized receipts. Receipts never change once
// created, so a hit is always valid; the cache is not a record of truth and
// failures are never cached. Concurrent misses on one id share a single read.
type CachedSource struct {
	next  Source
	cache cache.Cache[core.Receipt]
	group singleflight.Group
}

// NewCachedSource wraps next. A nil cache disables memoization but keeps
// request coalescing.
func NewCachedSource(next Source, c cache.Cache[core.Receipt]) *CachedSource {
	return &CachedSource{next: next, cache: c}
}

func receiptKey(id uint64) string {
	return "receipt:v1:" + strconv.FormatUint(id, 10)
}

// Receipt returns the cached receipt or reads it through.
func (s *CachedSource) Receipt(ctx context.Context, id uint64) (core.Receipt, error) {
	key := receiptKey(id)
	if s.cache != nil {
		if r, ok := s.cache.Get(ctx, key); ok {
			return r, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		r, err := s.next.Receipt(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(ctx, key, r)
		}
		return r, nil
	})
	if err != nil {
		return core.Receipt{}, err
	}
	r, ok := v.(core.Receipt)
	if !ok {
		return core.Receipt{}, fmt.Errorf("receipt %d: unexpected cached type %T", id, v)
	}
	return r, nil
}
