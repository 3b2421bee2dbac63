package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerBlocksSecondHolder(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	first, err := locker.Obtain(ctx, "stock:p1:l1", time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = locker.Obtain(waitCtx, "stock:p1:l1", time.Second)
	assert.ErrorIs(t, err, ErrBusy)

	other, err := locker.Obtain(ctx, "stock:p2:l1", time.Second)
	require.NoError(t, err, "different keys do not contend")
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	second, err := locker.Obtain(ctx, "stock:p1:l1", time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))

	assert.Empty(t, locker.slots)
}

func TestLocalLeaseReleaseIsIdempotent(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	lease, err := locker.Obtain(ctx, "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	again, err := locker.Obtain(ctx, "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestObtainAllReleasesOnFailure(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	blocker, err := locker.Obtain(ctx, "b", time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = ObtainAll(waitCtx, locker, []string{"c", "b", "a"}, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))

	a, err := locker.Obtain(ctx, "a", time.Second)
	require.NoError(t, err, "a must have been released after the failed batch")
	require.NoError(t, a.Release(ctx))
	require.NoError(t, blocker.Release(ctx))

	release, err := ObtainAll(ctx, locker, []string{"a", "a", "b"}, time.Second)
	require.NoError(t, err)
	release(ctx)
	assert.Empty(t, locker.slots)
}

func TestStockKey(t *testing.T) {
	assert.Equal(t, "stock:prd-rice:loc-lagos", StockKey("prd-rice", "loc-lagos"))
}
