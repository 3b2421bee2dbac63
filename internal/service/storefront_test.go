package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
)

func checkout(locationID string) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		LocationID:    locationID,
		PaymentMethod: "bank_transfer",
		ContactPhone:  "+2348000000000",
	}
}

func TestCartAddMergesAndZeroRemoves(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asCustomer("cus-amaka")

	_, err := svc.AddCartItem(ctx, domain.CartItemAddRequest{ProductID: "prd-rice", Quantity: 2})
	require.NoError(t, err)
	cart, err := svc.AddCartItem(ctx, domain.CartItemAddRequest{ProductID: "prd-rice", Quantity: 3})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.True(t, cart.Subtotal.Equal(decimal.NewFromInt(500)), "subtotal %s", cart.Subtotal)

	cart, err = svc.AddCartItem(ctx, domain.CartItemAddRequest{ProductID: "prd-oil", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 6, cart.ItemCount)

	cart, err = svc.UpdateCartItem(ctx, cart.Items[0].ID, domain.CartItemUpdateRequest{Quantity: 0})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "prd-oil", cart.Items[0].ProductID)

	_, err = svc.UpdateCartItem(ctx, "ci-missing", domain.CartItemUpdateRequest{Quantity: 2})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, svc.ClearCart(ctx))
	cart, err = svc.GetCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Subtotal.IsZero())
}

func TestCartRequiresLinkedCustomer(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetCart(asRole(domain.RoleSalesAgent))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	unlinked := WithActor(context.Background(), domain.Actor{Username: "walkin", Role: domain.RoleCustomer})
	_, err = svc.GetCart(unlinked)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCheckoutPlacesPendingOrderAndEmptiesCart(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := asCustomer("cus-amaka")

	_, err := svc.AddCartItem(ctx, domain.CartItemAddRequest{ProductID: "prd-oil", Quantity: 2})
	require.NoError(t, err)

	order, err := svc.Checkout(ctx, checkout("loc-lagos"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"), order.OrderNumber)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "cus-amaka", order.CustomerID)
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(500)), "subtotal %s", order.Subtotal)
	assert.True(t, order.Tax.Equal(decimal.RequireFromString("37.5")), "tax %s", order.Tax)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("537.5")), "total %s", order.Total)
	require.Len(t, order.History, 1)
	assert.Equal(t, domain.OrderStatusPending, order.History[0].Status)

	// Placing an order does not move stock.
	assert.Equal(t, 30, locationQty(t, repo, "prd-oil", "loc-lagos"))
	assert.Equal(t, 42, globalQty(t, repo, "prd-oil"))

	cart, err := svc.GetCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = svc.Checkout(ctx, checkout("loc-lagos"))
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestCheckoutRejectsShortLocation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asCustomer("cus-amaka")

	_, err := svc.AddCartItem(ctx, domain.CartItemAddRequest{ProductID: "prd-flour", Quantity: 1})
	require.NoError(t, err)

	_, err = svc.Checkout(ctx, checkout("loc-abuja"))
	var shortage *store.InsufficientStockError
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, 0, shortage.Available)
	assert.Equal(t, "loc-abuja", shortage.LocationID)

	cart, err := svc.GetCart(ctx)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1, "failed checkout keeps the cart")
}

func TestConfirmOrderPaymentMovesStockOnce(t *testing.T) {
	svc, repo := newTestService(t)
	customer := asCustomer("cus-amaka")
	staff := asRole(domain.RoleSalesAgent)

	_, err := svc.AddCartItem(customer, domain.CartItemAddRequest{ProductID: "prd-rice", Quantity: 4})
	require.NoError(t, err)
	order, err := svc.Checkout(customer, checkout("loc-lagos"))
	require.NoError(t, err)

	_, err = svc.ConfirmOrderPayment(customer, order.ID, domain.OrderPaymentRequest{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	paid, err := svc.ConfirmOrderPayment(staff, order.ID, domain.OrderPaymentRequest{PaymentReference: " TRX-1 "})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, paid.Status)
	assert.Equal(t, "TRX-1", paid.PaymentReference)
	require.NotNil(t, paid.PaidAt)
	require.Len(t, paid.History, 2)
	assert.Contains(t, paid.History[1].Notes, "TRX-1")

	assert.Equal(t, 36, locationQty(t, repo, "prd-rice", "loc-lagos"))
	assert.Equal(t, 41, globalQty(t, repo, "prd-rice"))

	_, err = svc.ConfirmOrderPayment(staff, order.ID, domain.OrderPaymentRequest{})
	assert.ErrorIs(t, err, store.ErrInvalidState)
	assert.Equal(t, 36, locationQty(t, repo, "prd-rice", "loc-lagos"))
	assert.Equal(t, 41, globalQty(t, repo, "prd-rice"))
}

func TestOrderStatusWorkflow(t *testing.T) {
	svc, _ := newTestService(t)
	customer := asCustomer("cus-amaka")
	staff := asRole(domain.RoleManager)

	_, err := svc.AddCartItem(customer, domain.CartItemAddRequest{ProductID: "prd-sugar", Quantity: 2})
	require.NoError(t, err)
	order, err := svc.Checkout(customer, checkout("loc-lagos"))
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(staff, order.ID, domain.OrderStatusRequest{Status: "delivered"})
	assert.ErrorIs(t, err, store.ErrInvalidState, "delivery needs a confirmed payment")
	_, err = svc.UpdateOrderStatus(staff, order.ID, domain.OrderStatusRequest{Status: "lost"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = svc.ConfirmOrderPayment(staff, order.ID, domain.OrderPaymentRequest{})
	require.NoError(t, err)

	updated, err := svc.UpdateOrderStatus(staff, order.ID, domain.OrderStatusRequest{Status: "shipped", Notes: "dispatched with GIG"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)
	last := updated.History[len(updated.History)-1]
	assert.Equal(t, "dispatched with GIG", last.Notes)
	assert.Equal(t, "manager-user", last.ChangedBy)

	_, err = svc.UpdateOrderStatus(staff, order.ID, domain.OrderStatusRequest{Status: "processing"})
	assert.ErrorIs(t, err, store.ErrInvalidState)
	_, err = svc.UpdateOrderStatus(staff, order.ID, domain.OrderStatusRequest{Status: "cancelled"})
	assert.ErrorIs(t, err, store.ErrInvalidState, "paid orders are not cancelled")

	delivered, err := svc.UpdateOrderStatus(staff, order.ID, domain.OrderStatusRequest{Status: "delivered"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, delivered.Status)
}

func TestCustomersSeeOnlyTheirOwnOrders(t *testing.T) {
	svc, _ := newTestService(t)
	amaka := asCustomer("cus-amaka")
	tunde := asCustomer("cus-tunde")

	_, err := svc.AddCartItem(amaka, domain.CartItemAddRequest{ProductID: "prd-rice", Quantity: 1})
	require.NoError(t, err)
	order, err := svc.Checkout(amaka, checkout("loc-lagos"))
	require.NoError(t, err)

	_, err = svc.GetOrder(tunde, order.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	orders, err := svc.ListOrders(tunde, domain.OrderFilter{CustomerID: "cus-amaka"})
	require.NoError(t, err)
	assert.Empty(t, orders)

	orders, err = svc.ListOrders(asRole(domain.RoleSalesAgent), domain.OrderFilter{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
}

func TestConversationMessagesOldestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	customer := asCustomer("cus-amaka")
	staff := asRole(domain.RoleSalesAgent)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	conv, err := svc.StartConversation(customer, domain.ConversationCreateRequest{
		CustomerID: "cus-tunde",
		Subject:    "Bulk pricing",
		Body:       "Do you discount 20 bags?",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus-amaka", conv.CustomerID, "customers always open threads for themselves")

	_, err = svc.SendMessage(staff, conv.ID, domain.MessageCreateRequest{Body: "Yes, 5% off."})
	require.NoError(t, err)
	_, err = svc.SendMessage(customer, conv.ID, domain.MessageCreateRequest{Body: "   "})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = svc.SendMessage(customer, conv.ID, domain.MessageCreateRequest{Body: strings.Repeat("x", domain.MaxMessageLength+1)})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	messages, err := svc.ListMessages(customer, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.SenderCustomer, messages[0].SenderType)
	assert.Equal(t, domain.SenderStaff, messages[1].SenderType)
	assert.Equal(t, "sales_agent-user", messages[1].SenderUsername)

	_, err = svc.ListMessages(asCustomer("cus-tunde"), conv.ID, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.StartConversation(staff, domain.ConversationCreateRequest{Subject: "Follow up", Body: "Hello"})
	assert.ErrorIs(t, err, store.ErrInvalidInput, "staff must name the customer")

	threads, err := svc.ListConversations(asCustomer("cus-tunde"), 0)
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func invoiceRequest(items ...domain.InvoiceItemInput) domain.InvoiceRequest {
	due := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	return domain.InvoiceRequest{
		CustomerID: "cus-tunde",
		DueDate:    &due,
		Items:      items,
	}
}

func TestInvoiceTotalsAndProductDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleSalesAgent)

	req := invoiceRequest(
		domain.InvoiceItemInput{ProductID: "prd-rice", Quantity: 2},
		domain.InvoiceItemInput{Description: "Haulage", Quantity: 1, UnitPrice: decimal.NewFromInt(30)},
	)
	req.Tax = decimal.NewFromInt(10)
	req.Discount = decimal.NewFromInt(40)

	invoice, err := svc.CreateInvoice(ctx, req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(invoice.InvoiceNumber, "INV-"), invoice.InvoiceNumber)
	assert.Equal(t, domain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, "Rice 50kg", invoice.Items[0].Description)
	assert.True(t, invoice.Items[0].UnitPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, invoice.Subtotal.Equal(decimal.NewFromInt(230)), "subtotal %s", invoice.Subtotal)
	assert.True(t, invoice.Total.Equal(decimal.NewFromInt(200)), "total %s", invoice.Total)

	req.Discount = decimal.NewFromInt(500)
	_, err = svc.CreateInvoice(ctx, req)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = svc.CreateInvoice(ctx, invoiceRequest(domain.InvoiceItemInput{Quantity: 1, UnitPrice: decimal.NewFromInt(5)}))
	assert.ErrorIs(t, err, store.ErrInvalidInput, "lines without a product need a description")

	_, err = svc.CreateInvoice(asCustomer("cus-tunde"), req)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestInvoiceUpdateReplacesLinesUntilPaid(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleManager)

	invoice, err := svc.CreateInvoice(ctx, invoiceRequest(domain.InvoiceItemInput{ProductID: "prd-oil", Quantity: 1}))
	require.NoError(t, err)

	updated, err := svc.UpdateInvoice(ctx, invoice.ID, invoiceRequest(
		domain.InvoiceItemInput{ProductID: "prd-sugar", Quantity: 4},
		domain.InvoiceItemInput{ProductID: "prd-flour", Quantity: 1},
	))
	require.NoError(t, err)
	assert.Equal(t, invoice.InvoiceNumber, updated.InvoiceNumber)
	require.Len(t, updated.Items, 2)
	assert.Equal(t, "prd-sugar", updated.Items[0].ProductID)
	assert.True(t, updated.Total.Equal(decimal.NewFromInt(130)), "total %s", updated.Total)

	_, err = svc.UpdateInvoiceStatus(ctx, invoice.ID, domain.InvoiceStatusRequest{Status: "sent"})
	require.NoError(t, err)
	_, err = svc.UpdateInvoiceStatus(ctx, invoice.ID, domain.InvoiceStatusRequest{Status: "paid"})
	require.NoError(t, err)

	_, err = svc.UpdateInvoice(ctx, invoice.ID, invoiceRequest(domain.InvoiceItemInput{ProductID: "prd-oil", Quantity: 1}))
	assert.ErrorIs(t, err, store.ErrInvalidState)
	_, err = svc.UpdateInvoiceStatus(ctx, invoice.ID, domain.InvoiceStatusRequest{Status: "draft"})
	assert.ErrorIs(t, err, store.ErrInvalidState)
	assert.ErrorIs(t, svc.DeleteInvoice(ctx, invoice.ID), store.ErrInvalidState)

	own, err := svc.GetInvoice(asCustomer("cus-tunde"), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, own.Status)
	_, err = svc.GetInvoice(asCustomer("cus-amaka"), invoice.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDeleteDraftInvoice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := asRole(domain.RoleSalesAgent)

	invoice, err := svc.CreateInvoice(ctx, invoiceRequest(domain.InvoiceItemInput{ProductID: "prd-rice", Quantity: 1}))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteInvoice(ctx, invoice.ID))

	_, err = svc.GetInvoice(ctx, invoice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	invoices, err := svc.ListInvoices(ctx, domain.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)
}
