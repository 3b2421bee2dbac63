package service

import (
	"context"
	"fmt"
	"strings"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/xid"
)

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceRequest) (domain.Invoice, error) {
	actor, err := s.authorize(ctx, domain.PermManageInvoices)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice, err := s.buildInvoice(ctx, req)
	if err != nil {
		return domain.Invoice{}, err
	}

	now := s.now()
	number, err := s.repo.NextInvoiceNumber(ctx, now)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice.ID = xid.New("inv")
	invoice.InvoiceNumber = number
	invoice.Status = domain.InvoiceStatusDraft
	invoice.IssueDate = now
	invoice.CreatedBy = actor.Username
	invoice.CreatedAt = now
	invoice.UpdatedAt = now

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return domain.Invoice{}, err
	}
	s.logAudit(ctx, "invoice_create", "invoice", created.ID, fmt.Sprintf(
		"number=%s,customer=%s,total=%s", created.InvoiceNumber, created.CustomerID, created.Total.StringFixed(2),
	))
	return *created, nil
}

// UpdateInvoice replaces the header fields and every line of an invoice that
// is neither paid nor cancelled.
func (s *Service) UpdateInvoice(ctx context.Context, id string, req domain.InvoiceRequest) (domain.Invoice, error) {
	if _, err := s.authorize(ctx, domain.PermManageInvoices); err != nil {
		return domain.Invoice{}, err
	}
	invoice, err := s.buildInvoice(ctx, req)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice.ID = strings.TrimSpace(id)
	invoice.UpdatedAt = s.now()

	updated, err := s.repo.ReplaceInvoice(ctx, invoice)
	if err != nil {
		return domain.Invoice{}, err
	}
	s.logAudit(ctx, "invoice_update", "invoice", updated.ID, fmt.Sprintf(
		"number=%s,items=%d,total=%s", updated.InvoiceNumber, len(updated.Items), updated.Total.StringFixed(2),
	))
	return *updated, nil
}

func (s *Service) UpdateInvoiceStatus(ctx context.Context, id string, req domain.InvoiceStatusRequest) (domain.Invoice, error) {
	if _, err := s.authorize(ctx, domain.PermManageInvoices); err != nil {
		return domain.Invoice{}, err
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if !domain.IsInvoiceStatus(status) {
		return domain.Invoice{}, invalidInput("unknown invoice status %q", req.Status)
	}
	updated, err := s.repo.SetInvoiceStatus(ctx, strings.TrimSpace(id), status, s.now())
	if err != nil {
		return domain.Invoice{}, err
	}
	s.logAudit(ctx, "invoice_status_update", "invoice", updated.ID, "status="+updated.Status)
	return *updated, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id string) error {
	if _, err := s.authorize(ctx, domain.PermManageInvoices); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteInvoice(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "invoice_delete", "invoice", id, "")
	return nil
}

func (s *Service) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	actor, err := s.authorizeInvoices(ctx)
	if err != nil {
		return nil, err
	}
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	if filter.Status != "" && !domain.IsInvoiceStatus(filter.Status) {
		return nil, invalidInput("unknown invoice status %q", filter.Status)
	}
	if !actor.Role.Can(domain.PermManageInvoices) {
		filter.CustomerID = actor.CustomerID
	}
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListInvoices(ctx, filter)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	actor, err := s.authorizeInvoices(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice, err := s.repo.GetInvoice(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, err
	}
	if !actor.Role.Can(domain.PermManageInvoices) && invoice.CustomerID != actor.CustomerID {
		return domain.Invoice{}, fmt.Errorf("%w: customers may only view their own invoices", domain.ErrForbidden)
	}
	return *invoice, nil
}

func (s *Service) authorizeInvoices(ctx context.Context) (domain.Actor, error) {
	if actor, err := s.authorize(ctx, domain.PermManageInvoices); err == nil {
		return actor, nil
	}
	return s.shopper(ctx)
}

// buildInvoice validates the request and prices its lines. Lines naming a
// product borrow its name and price when those are left blank.
func (s *Service) buildInvoice(ctx context.Context, req domain.InvoiceRequest) (domain.Invoice, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return domain.Invoice{}, invalidInput("customer_id is required")
	}
	if req.DueDate == nil || req.DueDate.IsZero() {
		return domain.Invoice{}, invalidInput("due_date is required")
	}
	if len(req.Items) == 0 {
		return domain.Invoice{}, invalidInput("invoice must contain at least one line")
	}
	if req.Tax.IsNegative() || req.Discount.IsNegative() {
		return domain.Invoice{}, invalidInput("tax and discount must not be negative")
	}

	productIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if id := strings.TrimSpace(item.ProductID); id != "" {
			productIDs = append(productIDs, id)
		}
	}
	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return domain.Invoice{}, err
	}

	items := make([]domain.InvoiceItem, 0, len(req.Items))
	for i, input := range req.Items {
		if input.Quantity < 1 {
			return domain.Invoice{}, invalidInput("line %d: quantity must be at least 1", i+1)
		}
		if input.UnitPrice.IsNegative() {
			return domain.Invoice{}, invalidInput("line %d: unit price must not be negative", i+1)
		}
		item := domain.InvoiceItem{
			ProductID:   strings.TrimSpace(input.ProductID),
			Description: strings.TrimSpace(input.Description),
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
		}
		if item.ProductID != "" {
			product, ok := products[item.ProductID]
			if !ok {
				return domain.Invoice{}, invalidInput("line %d: unknown product %s", i+1, item.ProductID)
			}
			if item.Description == "" {
				item.Description = product.Name
			}
			if item.UnitPrice.IsZero() {
				item.UnitPrice = product.UnitPrice
			}
		}
		if item.Description == "" {
			return domain.Invoice{}, invalidInput("line %d: description is required", i+1)
		}
		items = append(items, item)
	}

	invoice := domain.Invoice{
		CustomerID: customerID,
		SaleID:     strings.TrimSpace(req.SaleID),
		DueDate:    req.DueDate.UTC(),
		Tax:        req.Tax.Round(2),
		Discount:   req.Discount.Round(2),
		Notes:      strings.TrimSpace(req.Notes),
		Items:      items,
	}
	invoice.Price()
	if invoice.Total.IsNegative() {
		return domain.Invoice{}, invalidInput("discount %s exceeds subtotal plus tax", invoice.Discount.StringFixed(2))
	}
	return invoice, nil
}
