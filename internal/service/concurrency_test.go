package service

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
)

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, repo := newTestService(t)
	agent := asRole(domain.RoleSalesAgent)

	const buyers, qty = 20, 3
	var sold, short atomic.Int64
	var wg sync.WaitGroup
	for n := 0; n < buyers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateTransaction(agent, cashSale("", domain.TransactionItemInput{ProductID: "prd-rice", Quantity: qty}))
			switch {
			case err == nil:
				sold.Add(1)
			case assert.ErrorIs(t, err, store.ErrInsufficientStock):
				short.Add(1)
			}
		}()
	}
	wg.Wait()

	lagos := locationQty(t, repo, "prd-rice", "loc-lagos")
	assert.GreaterOrEqual(t, lagos, 0)
	assert.Less(t, lagos, qty, "sales stop only when the next one cannot be covered")
	assert.Equal(t, int64(40-lagos), sold.Load()*qty)
	assert.Equal(t, int64(45)-sold.Load()*qty, int64(globalQty(t, repo, "prd-rice")))
	assert.Equal(t, int64(buyers), sold.Load()+short.Load())

	txs, err := svc.ListTransactions(agent, domain.TransactionFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, txs, int(sold.Load()))
}

func TestConcurrentTransferCompletionAppliesOnce(t *testing.T) {
	svc, repo := newTestService(t)
	manager := asRole(domain.RoleManager)

	created, err := svc.CreateTransfer(manager, domain.TransferCreateRequest{
		ProductID:      "prd-oil",
		FromLocationID: "loc-lagos",
		ToLocationID:   "loc-abuja",
		Quantity:       10,
	})
	require.NoError(t, err)
	_, err = svc.ApproveTransfer(manager, created.ID)
	require.NoError(t, err)

	var completed, rejected atomic.Int64
	var wg sync.WaitGroup
	for n := 0; n < 2; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CompleteTransfer(manager, created.ID)
			switch {
			case err == nil:
				completed.Add(1)
			case assert.ErrorIs(t, err, store.ErrInvalidState):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), completed.Load())
	assert.Equal(t, int64(1), rejected.Load())
	assert.Equal(t, 20, locationQty(t, repo, "prd-oil", "loc-lagos"))
	assert.Equal(t, 22, locationQty(t, repo, "prd-oil", "loc-abuja"))
	assert.Equal(t, 42, globalQty(t, repo, "prd-oil"))
}
