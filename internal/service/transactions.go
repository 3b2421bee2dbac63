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

var transactionStatuses = map[string]bool{
	"draft":     true,
	"pending":   true,
	"completed": true,
	"paid":      true,
	"cancelled": true,
	"overdue":   true,
}

// CreateTransaction prices, validates and records a transaction. Immediate
// types settle location and global stock and credit loyalty in the same
// commit as the header.
func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	actor, err := s.authorize(ctx, domain.PermRecordTransaction)
	if err != nil {
		return domain.Transaction{}, err
	}

	cfg, ok := domain.LookupTransactionType(req.Type)
	if !ok {
		return domain.Transaction{}, invalidInput("unknown transaction type %q", req.Type)
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.LocationID = strings.TrimSpace(req.LocationID)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))

	if cfg.RequiresCustomer && req.CustomerID == "" {
		return domain.Transaction{}, invalidInput("customer is required for %s", req.Type)
	}
	if cfg.RequiresLocation && req.LocationID == "" {
		return domain.Transaction{}, invalidInput("location is required for %s", req.Type)
	}
	if len(req.Items) == 0 {
		return domain.Transaction{}, invalidInput("at least one item is required")
	}
	if req.Discount.IsNegative() {
		return domain.Transaction{}, invalidInput("discount must not be negative")
	}

	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
			return domain.Transaction{}, fmt.Errorf("customer %s: %w", req.CustomerID, err)
		}
	}
	if req.LocationID != "" {
		if _, err := s.repo.GetLocation(ctx, req.LocationID); err != nil {
			return domain.Transaction{}, fmt.Errorf("location %s: %w", req.LocationID, err)
		}
	}

	productIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, strings.TrimSpace(item.ProductID))
	}
	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return domain.Transaction{}, err
	}

	items := make([]domain.TransactionItem, 0, len(req.Items))
	for i, input := range req.Items {
		product, ok := products[productIDs[i]]
		if !ok {
			return domain.Transaction{}, fmt.Errorf("product %s: %w", productIDs[i], store.ErrNotFound)
		}
		if !product.Active {
			return domain.Transaction{}, invalidInput("product %s is inactive", product.ID)
		}
		if input.Quantity < 1 {
			return domain.Transaction{}, invalidInput("quantity for %s must be at least 1", product.Name)
		}
		if input.UnitPrice.IsNegative() {
			return domain.Transaction{}, invalidInput("unit price for %s must not be negative", product.Name)
		}
		price := input.UnitPrice
		if price.IsZero() {
			price = product.UnitPrice
		}
		items = append(items, domain.TransactionItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    input.Quantity,
			UnitPrice:   price,
			LineTotal:   price.Mul(decimal.NewFromInt(int64(input.Quantity))),
		})
	}

	totals := domain.ComputeTotals(items, req.Discount)
	if req.Discount.GreaterThan(totals.Subtotal.Add(totals.Tax)) {
		return domain.Transaction{}, invalidInput("discount exceeds subtotal plus tax")
	}

	now := s.now()
	tx := domain.Transaction{
		ID:            xid.New("tx"),
		Type:          req.Type,
		CustomerID:    req.CustomerID,
		LocationID:    req.LocationID,
		SalesAgent:    actor.Username,
		IssueDate:     now,
		DueDate:       req.DueDate,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Discount:      totals.Discount,
		Total:         totals.Total,
		Status:        cfg.DefaultStatus,
		PaymentMethod: defaultPaymentMethod(req.Type, req.PaymentMethod),
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		Items:         items,
	}

	record := store.SaleRecord{Transaction: tx, SettleStock: cfg.Immediate()}
	if cfg.Immediate() && tx.CustomerID != "" {
		loyaltyCfg, err := s.repo.GetLoyaltyConfig(ctx)
		if err != nil {
			return domain.Transaction{}, err
		}
		record.LoyaltyPoints = domain.PointsFor(tx.Total, loyaltyCfg.PointsDivisor)
		record.LoyaltyNote = fmt.Sprintf("Points earned from %s", tx.Type)
	}

	if record.SettleStock {
		release, err := s.lockStock(ctx, tx.LocationID, productIDs...)
		if err != nil {
			return domain.Transaction{}, err
		}
		defer release(context.WithoutCancel(ctx))
	}

	if cfg.IssuesInvoice {
		number, err := s.repo.NextInvoiceNumber(ctx, now)
		if err != nil {
			return domain.Transaction{}, err
		}
		record.Transaction.InvoiceNumber = number
	}

	result, err := s.repo.RecordTransaction(ctx, record)
	if err != nil {
		return domain.Transaction{}, err
	}
	created := *result.Transaction

	s.logAudit(ctx, "transaction_create", "transaction", created.ID, fmt.Sprintf(
		"type=%s,total=%s,items=%d,location=%s,points=%d",
		created.Type, created.Total.StringFixed(2), len(created.Items), created.LocationID, created.PointsEarned,
	))
	s.afterStockChange(ctx, result.Stock...)
	if result.Loyalty != nil {
		s.invalidate(ctx, loyaltyStatsKey)
	}
	return created, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	if _, err := s.authorize(ctx, domain.PermViewTransactions); err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.repo.GetTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if _, err := s.authorize(ctx, domain.PermViewTransactions); err != nil {
		return nil, err
	}
	if filter.Type != "" {
		if _, ok := domain.LookupTransactionType(filter.Type); !ok {
			return nil, invalidInput("unknown transaction type %q", filter.Type)
		}
	}
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) UpdateTransactionStatus(ctx context.Context, id string, status string) (domain.Transaction, error) {
	if _, err := s.authorize(ctx, domain.PermUpdateTransactionStatus); err != nil {
		return domain.Transaction{}, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if !transactionStatuses[status] {
		return domain.Transaction{}, invalidInput("unknown status %q", status)
	}

	updated, err := s.repo.UpdateTransactionStatus(ctx, strings.TrimSpace(id), status)
	if err != nil {
		return domain.Transaction{}, err
	}
	s.logAudit(ctx, "transaction_status_update", "transaction", updated.ID, "status="+status)
	return *updated, nil
}

func defaultPaymentMethod(t domain.TransactionType, method string) string {
	if method != "" {
		return method
	}
	switch t {
	case domain.TransactionCashSale:
		return "cash"
	case domain.TransactionCreditSale, domain.TransactionInvoice:
		return "credit"
	default:
		return ""
	}
}
