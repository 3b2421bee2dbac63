package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
)

func saleOf(id string, locationID string, items ...domain.TransactionItem) store.SaleRecord {
	return store.SaleRecord{
		Transaction: domain.Transaction{
			ID:         id,
			Type:       domain.TransactionCashSale,
			LocationID: locationID,
			Status:     "completed",
			Items:      items,
		},
		SettleStock: true,
	}
}

func line(productID string, qty int) domain.TransactionItem {
	return domain.TransactionItem{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: decimal.NewFromInt(1),
		LineTotal: decimal.NewFromInt(int64(qty)),
	}
}

func TestRecordTransactionIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	st := NewSeeded()

	// flour has 8 in Lagos; rice has 40. The second line must fail and
	// leave the first untouched.
	_, err := st.RecordTransaction(ctx, saleOf("tx-1", "loc-lagos", line("prd-rice", 5), line("prd-flour", 9)))
	require.Error(t, err)

	var stockErr *store.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "prd-flour", stockErr.ProductID)
	assert.Equal(t, 8, stockErr.Available)
	assert.Equal(t, 9, stockErr.Required)
	assert.True(t, errors.Is(err, store.ErrInsufficientStock))

	rice, err := st.GetLocationStock(ctx, "prd-rice", "loc-lagos")
	require.NoError(t, err)
	assert.Equal(t, 40, rice.StockQty)

	product, err := st.GetProduct(ctx, "prd-rice")
	require.NoError(t, err)
	assert.Equal(t, 45, product.StockQty)

	_, err = st.GetTransaction(ctx, "tx-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordTransactionCountsRepeatedLinesTogether(t *testing.T) {
	ctx := context.Background()
	st := NewSeeded()

	_, err := st.RecordTransaction(ctx, saleOf("tx-1", "loc-abuja", line("prd-rice", 3), line("prd-rice", 3)))
	var stockErr *store.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 2, stockErr.Available)
}

func TestRecordTransactionSettlesStockAndCreditsLoyalty(t *testing.T) {
	ctx := context.Background()
	st := NewSeeded()

	record := saleOf("tx-1", "loc-lagos", line("prd-rice", 3))
	record.Transaction.CustomerID = "cus-tunde"
	record.LoyaltyPoints = 3
	record.LoyaltyNote = "Points earned from cash_sale"

	result, err := st.RecordTransaction(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Transaction.PointsEarned)
	require.Len(t, result.Stock, 1)
	assert.Equal(t, 37, result.Stock[0].StockQty)
	assert.Equal(t, "Lagos Warehouse", result.Stock[0].LocationName)

	require.NotNil(t, result.Loyalty)
	assert.Equal(t, 3, result.Loyalty.PointsBalance)
	assert.Equal(t, domain.TierBronze, result.Loyalty.Tier)

	ledger, err := st.ListLoyaltyTransactions(ctx, result.Loyalty.ID, 10)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, domain.LoyaltyEntryEarn, ledger[0].Type)
	assert.Equal(t, "tx-1", ledger[0].ReferenceID)

	product, err := st.GetProduct(ctx, "prd-rice")
	require.NoError(t, err)
	assert.Equal(t, 42, product.StockQty)
}

func TestCompleteTransferMovesStockOnce(t *testing.T) {
	ctx := context.Background()
	st := NewSeeded()
	now := time.Now().UTC()

	_, err := st.CreateTransfer(ctx, domain.StockMovement{ID: "trf-1", ProductID: "prd-flour", FromLocationID: "loc-lagos", ToLocationID: "loc-abuja", Quantity: 3})
	require.NoError(t, err)

	_, _, err = st.CompleteTransfer(ctx, "trf-1", now)
	assert.ErrorIs(t, err, store.ErrInvalidState, "pending transfers cannot complete")

	_, err = st.ApproveTransfer(ctx, "trf-1", "manager", now)
	require.NoError(t, err)

	movement, rows, err := st.CompleteTransfer(ctx, "trf-1", now)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCompleted, movement.Status)
	require.Len(t, rows, 2)
	assert.Equal(t, 5, rows[0].StockQty)
	assert.Equal(t, 3, rows[1].StockQty)
	assert.Equal(t, domain.DefaultReorderLevel, rows[1].ReorderLevel)

	_, _, err = st.CompleteTransfer(ctx, "trf-1", now)
	assert.ErrorIs(t, err, store.ErrInvalidState)

	product, err := st.GetProduct(ctx, "prd-flour")
	require.NoError(t, err)
	assert.Equal(t, 8, product.StockQty, "transfers never change global stock")
}

func TestCompleteTransferRejectsShortSource(t *testing.T) {
	ctx := context.Background()
	st := NewSeeded()
	now := time.Now().UTC()

	_, err := st.CreateTransfer(ctx, domain.StockMovement{ID: "trf-1", ProductID: "prd-rice", FromLocationID: "loc-abuja", ToLocationID: "loc-lagos", Quantity: 10})
	require.NoError(t, err)
	_, err = st.ApproveTransfer(ctx, "trf-1", "manager", now)
	require.NoError(t, err)

	_, _, err = st.CompleteTransfer(ctx, "trf-1", now)
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	movement, err := st.GetTransfer(ctx, "trf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusApproved, movement.Status)
}

func TestReceivePurchaseOrderBooksStockOnce(t *testing.T) {
	ctx := context.Background()
	st := NewSeeded()
	now := time.Now().UTC()

	_, err := st.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		ID:         "po-1",
		SupplierID: "sup-dangote",
		Items:      []domain.PurchaseOrderItem{{ProductID: "prd-sugar", Quantity: 50}},
	})
	require.NoError(t, err)

	po, err := st.ReceivePurchaseOrder(ctx, "po-1", "loc-abuja", "manager", now)
	require.NoError(t, err)
	assert.Equal(t, domain.POStatusReceived, po.Status)
	assert.Equal(t, 50, po.Items[0].ReceivedQuantity)

	row, err := st.GetLocationStock(ctx, "prd-sugar", "loc-abuja")
	require.NoError(t, err)
	assert.Equal(t, 70, row.StockQty)
	product, err := st.GetProduct(ctx, "prd-sugar")
	require.NoError(t, err)
	assert.Equal(t, 170, product.StockQty)

	_, err = st.ReceivePurchaseOrder(ctx, "po-1", "loc-abuja", "manager", now)
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestProcessReturnRestocksGlobalOnly(t *testing.T) {
	ctx := context.Background()
	st := NewSeeded()
	now := time.Now().UTC()

	_, err := st.CreateReturn(ctx, domain.Return{
		ID:     "ret-1",
		Reason: "torn bag",
		Items:  []domain.ReturnItem{{ProductID: "prd-rice", Quantity: 2, UnitPrice: decimal.NewFromInt(100)}},
	})
	require.NoError(t, err)

	ret, err := st.ProcessReturn(ctx, "ret-1", domain.ReturnStatusCompleted, true, "manager", now)
	require.NoError(t, err)
	assert.True(t, ret.Restocked)

	product, err := st.GetProduct(ctx, "prd-rice")
	require.NoError(t, err)
	assert.Equal(t, 47, product.StockQty)
	row, err := st.GetLocationStock(ctx, "prd-rice", "loc-lagos")
	require.NoError(t, err)
	assert.Equal(t, 40, row.StockQty)

	_, err = st.ProcessReturn(ctx, "ret-1", domain.ReturnStatusApproved, false, "manager", now)
	assert.ErrorIs(t, err, store.ErrInvalidState)
}

func TestApplyLoyaltyEntryNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	st := NewSeeded()

	account, err := st.ApplyLoyaltyEntry(ctx, "cus-amaka", domain.LoyaltyTransaction{Type: domain.LoyaltyEntryAdjustment, Points: 600})
	require.NoError(t, err)
	assert.Equal(t, domain.TierSilver, account.Tier)

	_, err = st.ApplyLoyaltyEntry(ctx, "cus-amaka", domain.LoyaltyTransaction{Type: domain.LoyaltyEntryRedemption, Points: -601})
	assert.ErrorIs(t, err, store.ErrInsufficientPoints)

	account, err = st.ApplyLoyaltyEntry(ctx, "cus-amaka", domain.LoyaltyTransaction{Type: domain.LoyaltyEntryRedemption, Points: -600})
	require.NoError(t, err)
	assert.Equal(t, 0, account.PointsBalance)
	assert.Equal(t, 600, account.LifetimePoints)
	assert.Equal(t, domain.TierSilver, account.Tier)

	_, err = st.ApplyLoyaltyEntry(ctx, "cus-tunde", domain.LoyaltyTransaction{Type: domain.LoyaltyEntryRedemption, Points: -1})
	assert.ErrorIs(t, err, store.ErrInsufficientPoints)
}

func TestNextInvoiceNumberIsSequential(t *testing.T) {
	st := New()
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	first, err := st.NextInvoiceNumber(context.Background(), at)
	require.NoError(t, err)
	second, err := st.NextInvoiceNumber(context.Background(), at)
	require.NoError(t, err)

	assert.Equal(t, "INV-20260304-00001", first)
	assert.Equal(t, "INV-20260304-00002", second)
}

func TestRecordTransactionConcurrentSettlementIsConditional(t *testing.T) {
	ctx := context.Background()
	st := NewSeeded()

	var wg sync.WaitGroup
	results := make(chan error, 12)
	for i := 0; i < 12; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.RecordTransaction(ctx, saleOf(fmt.Sprintf("tx-%d", i), "loc-lagos", line("prd-flour", 1)))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	sold := 0
	for err := range results {
		if err == nil {
			sold++
			continue
		}
		assert.ErrorIs(t, err, store.ErrInsufficientStock)
	}
	assert.Equal(t, 8, sold)

	row, err := st.GetLocationStock(ctx, "prd-flour", "loc-lagos")
	require.NoError(t, err)
	assert.Equal(t, 0, row.StockQty)
	product, err := st.GetProduct(ctx, "prd-flour")
	require.NoError(t, err)
	assert.Equal(t, 0, product.StockQty)
}

func TestUpdateProductWritesOnlySuppliedColumns(t *testing.T) {
	ctx := context.Background()
	st := NewSeeded()

	_, err := st.RecordTransaction(ctx, saleOf("tx-1", "loc-lagos", line("prd-rice", 5)))
	require.NoError(t, err)

	name := "Rice 50kg Premium"
	updated, err := st.UpdateProduct(ctx, "prd-rice", store.ProductChanges{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, 40, updated.StockQty)
	assert.True(t, updated.UnitPrice.Equal(decimal.NewFromInt(100)))

	empty := ""
	_, err = st.UpdateProduct(ctx, "prd-rice", store.ProductChanges{Name: &empty})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = st.UpdateProduct(ctx, "prd-none", store.ProductChanges{Name: &name})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
