package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("MAFACONNECT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MAFACONNECT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

type fixture struct {
	productID  string
	locationID string
	customerID string
}

func seedFixture(t *testing.T, s *Store, stock int) fixture {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	f := fixture{
		productID:  fmt.Sprintf("prd-it-%d", stamp),
		locationID: fmt.Sprintf("loc-it-%d", stamp),
		customerID: fmt.Sprintf("cus-it-%d", stamp),
	}

	if _, err := s.CreateProduct(ctx, domain.Product{ID: f.productID, SKU: "SKU-" + f.productID, Name: "Integration Rice", UnitPrice: decimal.NewFromInt(100), StockQty: stock, ReorderLevel: 10}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateLocation(ctx, domain.Location{ID: f.locationID, Name: "Integration Depot"}); err != nil {
		t.Fatalf("create location: %v", err)
	}
	if _, err := s.CreateCustomer(ctx, domain.Customer{ID: f.customerID, Name: "Integration Customer"}); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if _, err := s.UpsertLocationStock(ctx, f.productID, f.locationID, &stock, nil); err != nil {
		t.Fatalf("seed location stock: %v", err)
	}
	return f
}

func TestRecordTransactionSettlesStockAndLoyalty(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	f := seedFixture(t, s, 10)

	txID := fmt.Sprintf("tx-it-%d", time.Now().UnixNano())
	now := time.Now().UTC()
	result, err := s.RecordTransaction(ctx, store.SaleRecord{
		Transaction: domain.Transaction{
			ID:         txID,
			Type:       domain.TransactionCashSale,
			CustomerID: f.customerID,
			LocationID: f.locationID,
			SalesAgent: "agent",
			IssueDate:  now,
			Subtotal:   decimal.NewFromInt(300),
			Tax:        decimal.RequireFromString("22.5"),
			Total:      decimal.RequireFromString("322.5"),
			Status:     "completed",
			Items: []domain.TransactionItem{{
				ProductID: f.productID,
				Quantity:  3,
				UnitPrice: decimal.NewFromInt(100),
				LineTotal: decimal.NewFromInt(300),
			}},
		},
		SettleStock:   true,
		LoyaltyPoints: 3,
		LoyaltyNote:   "Points earned from cash_sale",
	})
	if err != nil {
		t.Fatalf("record transaction: %v", err)
	}
	if len(result.Stock) != 1 || result.Stock[0].StockQty != 7 {
		t.Fatalf("expected location stock 7, got %+v", result.Stock)
	}
	if result.Loyalty == nil || result.Loyalty.PointsBalance != 3 {
		t.Fatalf("expected 3 loyalty points, got %+v", result.Loyalty)
	}

	product, err := s.GetProduct(ctx, f.productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.StockQty != 7 {
		t.Fatalf("expected global stock 7, got %d", product.StockQty)
	}

	stored, err := s.GetTransaction(ctx, txID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if !stored.Total.Equal(decimal.RequireFromString("322.5")) || len(stored.Items) != 1 {
		t.Fatalf("unexpected stored transaction: %+v", stored)
	}
}

func TestRecordTransactionRollsBackOnShortStock(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	f := seedFixture(t, s, 2)

	txID := fmt.Sprintf("tx-it-short-%d", time.Now().UnixNano())
	_, err := s.RecordTransaction(ctx, store.SaleRecord{
		Transaction: domain.Transaction{
			ID:         txID,
			Type:       domain.TransactionCashSale,
			LocationID: f.locationID,
			SalesAgent: "agent",
			IssueDate:  time.Now().UTC(),
			Status:     "completed",
			Items: []domain.TransactionItem{
				{ProductID: f.productID, Quantity: 1, UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(100)},
				{ProductID: f.productID, Quantity: 5, UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(500)},
			},
		},
		SettleStock: true,
	})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	row, err := s.GetLocationStock(ctx, f.productID, f.locationID)
	if err != nil {
		t.Fatalf("get location stock: %v", err)
	}
	if row.StockQty != 2 {
		t.Fatalf("expected stock untouched at 2, got %d", row.StockQty)
	}
	if _, err := s.GetTransaction(ctx, txID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no transaction row, got %v", err)
	}
}

func TestUpdateProductKeepsStockWrittenBySale(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	f := seedFixture(t, s, 10)

	_, err := s.RecordTransaction(ctx, store.SaleRecord{
		Transaction: domain.Transaction{
			ID:         fmt.Sprintf("tx-it-rename-%d", time.Now().UnixNano()),
			Type:       domain.TransactionCashSale,
			LocationID: f.locationID,
			SalesAgent: "agent",
			IssueDate:  time.Now().UTC(),
			Status:     "completed",
			Items: []domain.TransactionItem{
				{ProductID: f.productID, Quantity: 3, UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(300)},
			},
		},
		SettleStock: true,
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	name := "Integration Rice (new bag)"
	updated, err := s.UpdateProduct(ctx, f.productID, store.ProductChanges{Name: &name})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Name != name {
		t.Fatalf("expected name %q, got %q", name, updated.Name)
	}
	if updated.StockQty != 7 {
		t.Fatalf("expected rename to keep stock at 7, got %d", updated.StockQty)
	}
	if !updated.UnitPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected price untouched, got %s", updated.UnitPrice)
	}
}

func TestConfirmOrderPaymentSettlesOnce(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	f := seedFixture(t, s, 5)

	if _, err := s.AddCartItem(ctx, f.customerID, f.productID, 2); err != nil {
		t.Fatalf("add cart item: %v", err)
	}
	now := time.Now().UTC()
	orderID := fmt.Sprintf("ord-it-%d", now.UnixNano())
	_, err := s.PlaceOrder(ctx, domain.CustomerOrder{
		ID:            orderID,
		OrderNumber:   "ORD-IT-" + orderID,
		CustomerID:    f.customerID,
		LocationID:    f.locationID,
		Status:        domain.OrderStatusPending,
		PaymentMethod: "bank_transfer",
		PaymentStatus: domain.PaymentStatusPending,
		ContactPhone:  "+2348000000000",
		Subtotal:      decimal.NewFromInt(200),
		Tax:           decimal.NewFromInt(15),
		Total:         decimal.NewFromInt(215),
		CreatedAt:     now,
		UpdatedAt:     now,
		Items: []domain.OrderItem{
			{ProductID: f.productID, ProductName: "Integration Rice", Quantity: 2, UnitPrice: decimal.NewFromInt(100), LineTotal: decimal.NewFromInt(200)},
		},
		History: []domain.OrderStatusChange{{Status: domain.OrderStatusPending, Notes: "order placed", ChangedBy: "customer", CreatedAt: now}},
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	cart, err := s.GetCart(ctx, f.customerID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected checkout to empty the cart, got %d lines", len(cart.Items))
	}

	order, rows, err := s.ConfirmOrderPayment(ctx, orderID, "TRX-IT", "manager", now)
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid || order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected order state %s/%s", order.Status, order.PaymentStatus)
	}
	if len(rows) != 1 || rows[0].StockQty != 3 {
		t.Fatalf("expected location stock 3 after payment, got %+v", rows)
	}

	if _, _, err := s.ConfirmOrderPayment(ctx, orderID, "TRX-IT", "manager", now); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected second confirmation to fail with invalid state, got %v", err)
	}
	row, err := s.GetLocationStock(ctx, f.productID, f.locationID)
	if err != nil {
		t.Fatalf("get location stock: %v", err)
	}
	if row.StockQty != 3 {
		t.Fatalf("expected stock to stay at 3, got %d", row.StockQty)
	}
}
