package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/xid"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := s.authorize(ctx, domain.PermManagePurchasing); err != nil {
		return domain.Supplier{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, invalidInput("supplier name is required")
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		ID:          xid.New("sup"),
		Name:        req.Name,
		ContactName: strings.TrimSpace(req.ContactName),
		Phone:       strings.TrimSpace(req.Phone),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	if _, err := s.authorize(ctx, domain.PermManagePurchasing); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	actor, err := s.authorize(ctx, domain.PermManagePurchasing)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	req.SupplierID = strings.TrimSpace(req.SupplierID)
	req.LocationID = strings.TrimSpace(req.LocationID)
	if req.SupplierID == "" || len(req.Items) == 0 {
		return domain.PurchaseOrder{}, invalidInput("supplier and at least one item are required")
	}
	if _, err := s.repo.GetSupplier(ctx, req.SupplierID); err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("supplier %s: %w", req.SupplierID, err)
	}
	if req.LocationID != "" {
		if _, err := s.repo.GetLocation(ctx, req.LocationID); err != nil {
			return domain.PurchaseOrder{}, fmt.Errorf("location %s: %w", req.LocationID, err)
		}
	}

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, input := range req.Items {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" || input.Quantity < 1 || input.UnitCost.IsNegative() {
			return domain.PurchaseOrder{}, invalidInput("each item needs a product, a positive quantity and a non-negative cost")
		}
		lineTotal := input.UnitCost.Mul(decimal.NewFromInt(int64(input.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, domain.PurchaseOrderItem{
			ProductID: productID,
			Quantity:  input.Quantity,
			UnitCost:  input.UnitCost,
			LineTotal: lineTotal,
		})
	}
	tax := subtotal.Mul(domain.TaxRate).Round(2)

	now := s.now()
	saved, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		ID:           xid.New("po"),
		PONumber:     xid.Number("PO", now),
		SupplierID:   req.SupplierID,
		LocationID:   req.LocationID,
		Subtotal:     subtotal,
		Tax:          tax,
		Total:        subtotal.Add(tax),
		ExpectedDate: req.ExpectedDate,
		CreatedBy:    actor.Username,
		CreatedAt:    now,
		Items:        items,
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, "purchase_order_create", "purchase_order", saved.ID, fmt.Sprintf("items=%d,total=%s", len(saved.Items), saved.Total.StringFixed(2)))
	return *saved, nil
}

func (s *Service) MarkPurchaseOrderOrdered(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	return s.movePurchaseOrder(ctx, id, []string{domain.POStatusDraft}, domain.POStatusOrdered, "purchase_order_order")
}

// CancelPurchaseOrder is only allowed before receipt.
func (s *Service) CancelPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	return s.movePurchaseOrder(ctx, id, []string{domain.POStatusDraft, domain.POStatusOrdered}, domain.POStatusCancelled, "purchase_order_cancel")
}

func (s *Service) movePurchaseOrder(ctx context.Context, id string, from []string, to string, action string) (domain.PurchaseOrder, error) {
	if _, err := s.authorize(ctx, domain.PermManagePurchasing); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.repo.SetPurchaseOrderStatus(ctx, strings.TrimSpace(id), from, to)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, action, "purchase_order", po.ID, "status="+to)
	return *po, nil
}

// ReceivePurchaseOrder books every line in full. locationID overrides the
// order's own location when set.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, id string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrder, error) {
	actor, err := s.authorize(ctx, domain.PermManagePurchasing)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	id = strings.TrimSpace(id)
	po, err := s.repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if po.Status != domain.POStatusDraft && po.Status != domain.POStatusOrdered {
		return domain.PurchaseOrder{}, fmt.Errorf("purchase order is %s: %w", po.Status, store.ErrInvalidState)
	}

	locationID := strings.TrimSpace(req.LocationID)
	if locationID == "" {
		locationID = po.LocationID
	}
	if locationID != "" {
		productIDs := make([]string, 0, len(po.Items))
		for _, item := range po.Items {
			productIDs = append(productIDs, item.ProductID)
		}
		release, err := s.lockStock(ctx, locationID, productIDs...)
		if err != nil {
			return domain.PurchaseOrder{}, err
		}
		defer release(context.WithoutCancel(ctx))
	}

	received, err := s.repo.ReceivePurchaseOrder(ctx, id, locationID, actor.Username, s.now())
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	s.logAudit(ctx, "purchase_order_receive", "purchase_order", received.ID, fmt.Sprintf("location=%s,items=%d", received.LocationID, len(received.Items)))
	s.reorder.Invalidate(ctx, received.LocationID)
	return *received, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	if _, err := s.authorize(ctx, domain.PermManagePurchasing); err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.repo.GetPurchaseOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if _, err := s.authorize(ctx, domain.PermManagePurchasing); err != nil {
		return nil, err
	}
	return s.repo.ListPurchaseOrders(ctx, strings.ToLower(strings.TrimSpace(status)), clampLimit(limit))
}
