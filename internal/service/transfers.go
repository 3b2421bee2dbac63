package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/xid"
)

// CreateTransfer records a pending transfer. Source stock is checked but not
// reserved; the quantity moves only on completion.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferCreateRequest) (domain.StockMovement, error) {
	actor, err := s.authorize(ctx, domain.PermRequestTransfer)
	if err != nil {
		return domain.StockMovement{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.FromLocationID = strings.TrimSpace(req.FromLocationID)
	req.ToLocationID = strings.TrimSpace(req.ToLocationID)
	if req.ProductID == "" || req.FromLocationID == "" || req.ToLocationID == "" {
		return domain.StockMovement{}, invalidInput("product, source and destination are required")
	}
	if req.Quantity <= 0 {
		return domain.StockMovement{}, invalidInput("quantity must be positive")
	}
	if req.FromLocationID == req.ToLocationID {
		return domain.StockMovement{}, invalidInput("source and destination must differ")
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.StockMovement{}, fmt.Errorf("product %s: %w", req.ProductID, err)
	}
	for _, locationID := range []string{req.FromLocationID, req.ToLocationID} {
		if _, err := s.repo.GetLocation(ctx, locationID); err != nil {
			return domain.StockMovement{}, fmt.Errorf("location %s: %w", locationID, err)
		}
	}

	available := 0
	row, err := s.repo.GetLocationStock(ctx, req.ProductID, req.FromLocationID)
	switch {
	case err == nil:
		available = row.StockQty
	case !errors.Is(err, store.ErrNotFound):
		return domain.StockMovement{}, err
	}
	if available < req.Quantity {
		return domain.StockMovement{}, &store.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			LocationID:  req.FromLocationID,
			Available:   available,
			Required:    req.Quantity,
		}
	}

	now := s.now()
	created, err := s.repo.CreateTransfer(ctx, domain.StockMovement{
		ID:               xid.New("trf"),
		MovementNumber:   xid.Number("TRF", now),
		ProductID:        req.ProductID,
		FromLocationID:   req.FromLocationID,
		ToLocationID:     req.ToLocationID,
		Quantity:         req.Quantity,
		Notes:            strings.TrimSpace(req.Notes),
		ProcessedBy:      actor.Username,
		ExpectedDelivery: req.ExpectedDelivery,
		CreatedAt:        now,
	})
	if err != nil {
		return domain.StockMovement{}, err
	}
	s.logAudit(ctx, "transfer_create", "stock_movement", created.ID, fmt.Sprintf(
		"product=%s,from=%s,to=%s,qty=%d", created.ProductID, created.FromLocationID, created.ToLocationID, created.Quantity,
	))
	return *created, nil
}

func (s *Service) ApproveTransfer(ctx context.Context, id string) (domain.StockMovement, error) {
	actor, err := s.authorize(ctx, domain.PermApproveTransfer)
	if err != nil {
		return domain.StockMovement{}, err
	}
	approved, err := s.repo.ApproveTransfer(ctx, strings.TrimSpace(id), actor.Username, s.now())
	if err != nil {
		return domain.StockMovement{}, err
	}
	s.logAudit(ctx, "transfer_approve", "stock_movement", approved.ID, "")
	return *approved, nil
}

// CompleteTransfer moves the quantity from source to destination. The source
// key stays locked across the store call so concurrent completions and sales
// at the source queue up.
func (s *Service) CompleteTransfer(ctx context.Context, id string) (domain.StockMovement, error) {
	if _, err := s.authorize(ctx, domain.PermApproveTransfer); err != nil {
		return domain.StockMovement{}, err
	}
	id = strings.TrimSpace(id)
	movement, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return domain.StockMovement{}, err
	}
	if movement.Status != domain.TransferStatusApproved {
		return domain.StockMovement{}, fmt.Errorf("transfer is %s: %w", movement.Status, store.ErrInvalidState)
	}

	release, err := s.lockStock(ctx, movement.FromLocationID, movement.ProductID)
	if err != nil {
		return domain.StockMovement{}, err
	}
	defer release(context.WithoutCancel(ctx))

	completed, rows, err := s.repo.CompleteTransfer(ctx, id, s.now())
	if err != nil {
		return domain.StockMovement{}, err
	}
	s.logAudit(ctx, "transfer_complete", "stock_movement", completed.ID, fmt.Sprintf(
		"product=%s,from=%s,to=%s,qty=%d", completed.ProductID, completed.FromLocationID, completed.ToLocationID, completed.Quantity,
	))
	s.afterStockChange(ctx, rows...)
	return *completed, nil
}

func (s *Service) CancelTransfer(ctx context.Context, id string) (domain.StockMovement, error) {
	if _, err := s.authorize(ctx, domain.PermApproveTransfer); err != nil {
		return domain.StockMovement{}, err
	}
	cancelled, err := s.repo.CancelTransfer(ctx, strings.TrimSpace(id), s.now())
	if err != nil {
		return domain.StockMovement{}, err
	}
	s.logAudit(ctx, "transfer_cancel", "stock_movement", cancelled.ID, "")
	return *cancelled, nil
}

func (s *Service) GetTransfer(ctx context.Context, id string) (domain.StockMovement, error) {
	if _, err := s.authorize(ctx, domain.PermViewTransactions); err != nil {
		return domain.StockMovement{}, err
	}
	movement, err := s.repo.GetTransfer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.StockMovement{}, err
	}
	return *movement, nil
}

func (s *Service) ListTransfers(ctx context.Context, status string, limit int) ([]domain.StockMovement, error) {
	if _, err := s.authorize(ctx, domain.PermViewTransactions); err != nil {
		return nil, err
	}
	return s.repo.ListTransfers(ctx, strings.ToLower(strings.TrimSpace(status)), clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit < 1 || limit > 500 {
		return 100
	}
	return limit
}
