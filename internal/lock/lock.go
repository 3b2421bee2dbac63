package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrBusy means another holder kept the key past the caller's wait budget.
var ErrBusy = errors.New("resource busy, retry later")

type Releaser interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Releaser, error)
}

// StockKey names the lock guarding one product's stock at one location.
func StockKey(productID string, locationID string) string {
	return "stock:" + productID + ":" + locationID
}

// ObtainAll takes every key in sorted order so concurrent callers locking
// overlapping sets cannot deadlock. On failure nothing stays held.
func ObtainAll(ctx context.Context, locker Locker, keys []string, ttl time.Duration) (func(context.Context), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]Releaser, 0, len(sorted))
	release := func(ctx context.Context) {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Release(ctx)
		}
	}
	for _, key := range sorted {
		r, err := locker.Obtain(ctx, key, ttl)
		if err != nil {
			release(ctx)
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		held = append(held, r)
	}
	return release, nil
}
