package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/store/memory"
)

// saleMidUpdate commits a cash sale of 5 rice at Lagos through the wrapped
// store the first time a product read or write reaches it.
type saleMidUpdate struct {
	*memory.Store
	t    *testing.T
	once sync.Once
}

func (r *saleMidUpdate) sell(ctx context.Context) {
	r.once.Do(func() {
		_, err := r.Store.RecordTransaction(ctx, store.SaleRecord{
			Transaction: domain.Transaction{
				ID:         "tx-interleaved",
				Type:       domain.TransactionCashSale,
				LocationID: "loc-lagos",
				Status:     "completed",
				Items: []domain.TransactionItem{{
					ProductID: "prd-rice",
					Quantity:  5,
					UnitPrice: decimal.NewFromInt(100),
					LineTotal: decimal.NewFromInt(500),
				}},
			},
			SettleStock: true,
		})
		require.NoError(r.t, err)
	})
}

func (r *saleMidUpdate) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	r.sell(ctx)
	return r.Store.GetProduct(ctx, id)
}

func (r *saleMidUpdate) UpdateProduct(ctx context.Context, id string, changes store.ProductChanges) (*domain.Product, error) {
	r.sell(ctx)
	return r.Store.UpdateProduct(ctx, id, changes)
}

func TestRenameKeepsConcurrentSaleDecrement(t *testing.T) {
	inner := memory.NewSeeded()
	repo := &saleMidUpdate{Store: inner, t: t}
	svc := New(repo, Dependencies{})

	name := "Rice 50kg Premium"
	updated, err := svc.UpdateProduct(asRole(domain.RoleManager), "prd-rice", domain.ProductUpdateRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, 40, updated.StockQty)

	assert.Equal(t, 40, globalQty(t, inner, "prd-rice"), "the sale's decrement survives a name-only update")
	assert.Equal(t, 35, locationQty(t, inner, "prd-rice", "loc-lagos"))
}

func TestExplicitStockRecountOverwritesGlobalOnly(t *testing.T) {
	svc, repo := newTestService(t)
	manager := asRole(domain.RoleManager)

	qty := 60
	updated, err := svc.UpdateProduct(manager, "prd-rice", domain.ProductUpdateRequest{StockQty: &qty})
	require.NoError(t, err)
	assert.Equal(t, 60, updated.StockQty)
	assert.Equal(t, "Rice 50kg", updated.Name)
	assert.Equal(t, 40, locationQty(t, repo, "prd-rice", "loc-lagos"))

	negative := -1
	_, err = svc.UpdateProduct(manager, "prd-rice", domain.ProductUpdateRequest{StockQty: &negative})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	blank := "  "
	_, err = svc.UpdateProduct(manager, "prd-rice", domain.ProductUpdateRequest{Name: &blank})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = svc.UpdateProduct(manager, "prd-missing", domain.ProductUpdateRequest{StockQty: &qty})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type jsonMapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (c *jsonMapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *jsonMapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	c.entries[key] = raw
	return err
}

func (c *jsonMapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *jsonMapCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func TestProductUpdateDropsPerLocationReorderCache(t *testing.T) {
	cache := &jsonMapCache{entries: map[string][]byte{}}
	svc := New(memory.NewSeeded(), Dependencies{Cache: cache})
	manager := asRole(domain.RoleManager)

	before, err := svc.ReorderSuggestions(manager, "loc-lagos")
	require.NoError(t, err)
	require.Len(t, before.Suggestions, 1)
	assert.Equal(t, "Flour 10kg", before.Suggestions[0].Name)
	require.True(t, cache.has("reorder:loc-lagos"))

	name := "Flour 10kg Premium"
	_, err = svc.UpdateProduct(manager, "prd-flour", domain.ProductUpdateRequest{Name: &name})
	require.NoError(t, err)
	assert.False(t, cache.has("reorder:loc-lagos"))

	after, err := svc.ReorderSuggestions(manager, "loc-lagos")
	require.NoError(t, err)
	require.Len(t, after.Suggestions, 1)
	assert.Equal(t, name, after.Suggestions[0].Name)
}
