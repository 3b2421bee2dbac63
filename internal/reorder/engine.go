package reorder

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"mafaconnect/backend/internal/cache"
	"mafaconnect/backend/internal/domain"
)

type Engine struct {
	cache    cache.JSONCache
	cacheTTL time.Duration
	now      func() time.Time
}

func NewEngine(cacheStore cache.JSONCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.Noop{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Suggest returns restock suggestions for rows at or below their reorder
// level. load is only called on a cache miss.
func (e *Engine) Suggest(
	ctx context.Context,
	locationID string,
	products map[string]domain.Product,
	load func(ctx context.Context) ([]domain.LocationStock, error),
) (domain.ReorderSuggestionResponse, error) {
	key := cacheKey(locationID)
	var cached domain.ReorderSuggestionResponse
	if ok, err := e.cache.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("reorder cache read failed")
	}

	rows, err := load(ctx)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}

	resp := domain.ReorderSuggestionResponse{
		LocationID:  locationID,
		GeneratedAt: e.now().UTC().Format(time.RFC3339),
		Suggestions: Build(rows, products),
	}
	if err := e.cache.Set(ctx, key, resp, e.cacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("reorder cache write failed")
	}
	return resp, nil
}

// Invalidate drops cached suggestions for the given locations and the
// all-locations view.
func (e *Engine) Invalidate(ctx context.Context, locationIDs ...string) {
	keys := make([]string, 0, len(locationIDs)+1)
	keys = append(keys, cacheKey(""))
	for _, id := range locationIDs {
		if id != "" {
			keys = append(keys, cacheKey(id))
		}
	}
	if err := e.cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Msg("reorder cache invalidation failed")
	}
}

// Build computes recommended = 2*reorder_level - stock (at least 1) for every
// low row, most depleted first.
func Build(rows []domain.LocationStock, products map[string]domain.Product) []domain.ReorderSuggestion {
	suggestions := make([]domain.ReorderSuggestion, 0, len(rows))
	for _, row := range rows {
		if !row.IsLow() {
			continue
		}
		if product, ok := products[row.ProductID]; ok && !product.Active {
			continue
		}
		recommended := 2*row.ReorderLevel - row.StockQty
		if recommended < 1 {
			recommended = 1
		}
		name, sku := row.ProductName, row.SKU
		if product, ok := products[row.ProductID]; ok {
			name, sku = product.Name, product.SKU
		}
		suggestions = append(suggestions, domain.ReorderSuggestion{
			ProductID:      row.ProductID,
			SKU:            sku,
			Name:           name,
			LocationID:     row.LocationID,
			CurrentStock:   row.StockQty,
			ReorderLevel:   row.ReorderLevel,
			RecommendedQty: recommended,
		})
	}

	slices.SortFunc(suggestions, func(a, b domain.ReorderSuggestion) int {
		if a.CurrentStock != b.CurrentStock {
			return a.CurrentStock - b.CurrentStock
		}
		shortA := a.ReorderLevel - a.CurrentStock
		shortB := b.ReorderLevel - b.CurrentStock
		if shortA != shortB {
			return shortB - shortA
		}
		if a.ProductID < b.ProductID {
			return -1
		}
		if a.ProductID > b.ProductID {
			return 1
		}
		return 0
	})
	return suggestions
}

func cacheKey(locationID string) string {
	if locationID == "" {
		locationID = "all"
	}
	return "reorder:" + locationID
}
