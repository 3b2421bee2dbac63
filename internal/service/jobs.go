package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/worker"
	"mafaconnect/backend/internal/xid"
)

// afterStockChange queues a low-stock alert for every row at or below its
// reorder level and drops cached reorder suggestions for the touched
// locations.
func (s *Service) afterStockChange(ctx context.Context, rows ...domain.LocationStock) {
	if len(rows) == 0 {
		return
	}
	locations := make([]string, 0, len(rows))
	for _, row := range rows {
		locations = append(locations, row.LocationID)
		if !row.IsLow() {
			continue
		}
		alert := domain.StockAlert{
			ID:           xid.New("alert"),
			ProductID:    row.ProductID,
			LocationID:   row.LocationID,
			StockQty:     row.StockQty,
			ReorderLevel: row.ReorderLevel,
			CreatedAt:    s.now(),
		}
		if err := s.jobs.Enqueue(ctx, worker.JobLowStock, alert); err != nil {
			log.Warn().Err(err).
				Str("product_id", row.ProductID).
				Str("location_id", row.LocationID).
				Msg("failed to enqueue low stock job")
		}
	}
	s.reorder.Invalidate(ctx, locations...)
}

func (s *Service) handleLowStock(ctx context.Context, payload json.RawMessage) error {
	var alert domain.StockAlert
	if err := json.Unmarshal(payload, &alert); err != nil {
		return fmt.Errorf("decode low stock payload: %w", err)
	}
	if alert.ProductID == "" || alert.LocationID == "" {
		return fmt.Errorf("low stock payload missing product or location")
	}
	if err := s.repo.CreateStockAlert(ctx, alert); err != nil {
		return err
	}
	log.Warn().
		Str("component", "stock").
		Str("product_id", alert.ProductID).
		Str("location_id", alert.LocationID).
		Int("stock_qty", alert.StockQty).
		Int("reorder_level", alert.ReorderLevel).
		Msg("stock at or below reorder level")
	return nil
}
