package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertPayload struct {
	ProductID string `json:"product_id"`
	StockQty  int    `json:"stock_qty"`
}

func TestDispatcherRunsInlineWithoutRedis(t *testing.T) {
	d := NewDispatcher(nil)
	var got alertPayload
	d.Register(JobLowStock, func(_ context.Context, payload json.RawMessage) error {
		return json.Unmarshal(payload, &got)
	})

	err := d.Enqueue(context.Background(), JobLowStock, alertPayload{ProductID: "prd-rice", StockQty: 2})
	require.NoError(t, err)
	assert.Equal(t, "prd-rice", got.ProductID)
	assert.Equal(t, 2, got.StockQty)
}

func TestDispatcherRejectsUnknownJobType(t *testing.T) {
	d := NewDispatcher(nil)
	err := d.Enqueue(context.Background(), "mystery", map[string]string{})
	assert.ErrorContains(t, err, "no handler")
}

func TestStartWithoutRedisIsNoop(t *testing.T) {
	d := NewDispatcher(nil)
	d.Start(context.Background(), 4)
	d.Wait()
}
