package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/xid"
)

var returnOutcomes = map[string]bool{
	domain.ReturnStatusApproved:  true,
	domain.ReturnStatusRejected:  true,
	domain.ReturnStatusCompleted: true,
}

func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnCreateRequest) (domain.Return, error) {
	actor, err := s.authorize(ctx, domain.PermProcessReturns)
	if err != nil {
		return domain.Return{}, err
	}

	req.Reason = strings.TrimSpace(req.Reason)
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.Reason == "" || len(req.Items) == 0 {
		return domain.Return{}, invalidInput("reason and at least one item are required")
	}
	if req.TransactionID != "" && req.CustomerID == "" {
		tx, err := s.repo.GetTransaction(ctx, req.TransactionID)
		if err != nil {
			return domain.Return{}, fmt.Errorf("transaction %s: %w", req.TransactionID, err)
		}
		req.CustomerID = tx.CustomerID
	}

	items := make([]domain.ReturnItem, 0, len(req.Items))
	refund := decimal.Zero
	for _, input := range req.Items {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" || input.Quantity < 1 || input.UnitPrice.IsNegative() {
			return domain.Return{}, invalidInput("each item needs a product, a positive quantity and a non-negative price")
		}
		condition := strings.ToLower(strings.TrimSpace(input.Condition))
		if condition == "" {
			condition = "new"
		}
		refund = refund.Add(input.UnitPrice.Mul(decimal.NewFromInt(int64(input.Quantity))))
		items = append(items, domain.ReturnItem{
			ProductID: productID,
			Quantity:  input.Quantity,
			UnitPrice: input.UnitPrice,
			Condition: condition,
		})
	}

	now := s.now()
	saved, err := s.repo.CreateReturn(ctx, domain.Return{
		ID:            xid.New("ret"),
		ReturnNumber:  xid.Number("RET", now),
		TransactionID: req.TransactionID,
		CustomerID:    req.CustomerID,
		Reason:        req.Reason,
		RefundAmount:  refund,
		CreatedBy:     actor.Username,
		CreatedAt:     now,
		Items:         items,
	})
	if err != nil {
		return domain.Return{}, err
	}
	s.logAudit(ctx, "return_create", "return", saved.ID, fmt.Sprintf("items=%d,refund=%s", len(saved.Items), saved.RefundAmount.StringFixed(2)))
	return *saved, nil
}

// ProcessReturn applies an outcome. Completing with restock puts the
// quantities back into global stock; location rows are left alone.
func (s *Service) ProcessReturn(ctx context.Context, id string, req domain.ReturnProcessRequest) (domain.Return, error) {
	actor, err := s.authorize(ctx, domain.PermApproveReturns)
	if err != nil {
		return domain.Return{}, err
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if !returnOutcomes[status] {
		return domain.Return{}, invalidInput("unknown return status %q", req.Status)
	}

	processed, err := s.repo.ProcessReturn(ctx, strings.TrimSpace(id), status, req.Restock, actor.Username, s.now())
	if err != nil {
		return domain.Return{}, err
	}
	s.logAudit(ctx, "return_process", "return", processed.ID, fmt.Sprintf("status=%s,restocked=%t", processed.Status, processed.Restocked))
	return *processed, nil
}

func (s *Service) GetReturn(ctx context.Context, id string) (domain.Return, error) {
	if _, err := s.authorize(ctx, domain.PermProcessReturns); err != nil {
		return domain.Return{}, err
	}
	ret, err := s.repo.GetReturn(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Return{}, err
	}
	return *ret, nil
}

func (s *Service) ListReturns(ctx context.Context, status string, limit int) ([]domain.Return, error) {
	if _, err := s.authorize(ctx, domain.PermProcessReturns); err != nil {
		return nil, err
	}
	return s.repo.ListReturns(ctx, strings.ToLower(strings.TrimSpace(status)), clampLimit(limit))
}
