package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/xid"
)

type cartLine struct {
	id        string
	productID string
	qty       int
}

type cartRecord struct {
	id        string
	lines     []cartLine
	updatedAt time.Time
}

func (s *Store) cartLocked(customerID string) (cartRecord, error) {
	if _, ok := s.customers[customerID]; !ok {
		return cartRecord{}, fmt.Errorf("customer %s: %w", customerID, store.ErrNotFound)
	}
	cart, ok := s.carts[customerID]
	if !ok {
		cart = cartRecord{id: xid.New("cart"), updatedAt: time.Now().UTC()}
		s.carts[customerID] = cart
	}
	return cart, nil
}

// viewCartLocked prices the cart from the current catalog.
func (s *Store) viewCartLocked(customerID string, cart cartRecord) *domain.Cart {
	view := &domain.Cart{
		ID:         cart.id,
		CustomerID: customerID,
		Items:      make([]domain.CartItem, 0, len(cart.lines)),
		UpdatedAt:  cart.updatedAt,
	}
	for _, line := range cart.lines {
		item := domain.CartItem{ID: line.id, ProductID: line.productID, Quantity: line.qty}
		if product, ok := s.products[line.productID]; ok {
			item.ProductName = product.Name
			item.UnitPrice = product.UnitPrice
			item.Available = product.Active
		}
		view.Items = append(view.Items, item)
	}
	view.Price()
	return view
}

func (s *Store) GetCart(_ context.Context, customerID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.cartLocked(customerID)
	if err != nil {
		return nil, err
	}
	return s.viewCartLocked(customerID, cart), nil
}

func (s *Store) AddCartItem(_ context.Context, customerID string, productID string, qty int) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 {
		return nil, store.ErrInvalidInput
	}
	product, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: product %s is not for sale", store.ErrInvalidInput, product.Name)
	}
	cart, err := s.cartLocked(customerID)
	if err != nil {
		return nil, err
	}

	lines := slices.Clone(cart.lines)
	idx := slices.IndexFunc(lines, func(l cartLine) bool { return l.productID == productID })
	if idx >= 0 {
		lines[idx].qty += qty
	} else {
		lines = append(lines, cartLine{id: xid.New("ci"), productID: productID, qty: qty})
	}
	cart.lines = lines
	cart.updatedAt = time.Now().UTC()
	s.carts[customerID] = cart
	return s.viewCartLocked(customerID, cart), nil
}

func (s *Store) SetCartItemQuantity(_ context.Context, customerID string, itemID string, qty int) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.cartLocked(customerID)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(cart.lines, func(l cartLine) bool { return l.id == itemID })
	if idx < 0 {
		return nil, fmt.Errorf("cart item %s: %w", itemID, store.ErrNotFound)
	}

	lines := slices.Clone(cart.lines)
	if qty <= 0 {
		lines = slices.Delete(lines, idx, idx+1)
	} else {
		lines[idx].qty = qty
	}
	cart.lines = lines
	cart.updatedAt = time.Now().UTC()
	s.carts[customerID] = cart
	return s.viewCartLocked(customerID, cart), nil
}

func (s *Store) RemoveCartItem(ctx context.Context, customerID string, itemID string) (*domain.Cart, error) {
	return s.SetCartItemQuantity(ctx, customerID, itemID, 0)
}

func (s *Store) ClearCart(_ context.Context, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.cartLocked(customerID)
	if err != nil {
		return err
	}
	cart.lines = nil
	cart.updatedAt = time.Now().UTC()
	s.carts[customerID] = cart
	return nil
}

func cloneOrder(src domain.CustomerOrder) domain.CustomerOrder {
	dup := src
	dup.Items = slices.Clone(src.Items)
	dup.History = slices.Clone(src.History)
	return dup
}

func (s *Store) PlaceOrder(_ context.Context, order domain.CustomerOrder) (*domain.CustomerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrConflict
	}
	if _, ok := s.customers[order.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %s: %w", order.CustomerID, store.ErrNotFound)
	}
	if _, ok := s.locations[order.LocationID]; !ok {
		return nil, fmt.Errorf("location %s: %w", order.LocationID, store.ErrNotFound)
	}
	for _, item := range order.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
	}

	stored := cloneOrder(order)
	s.ordersByID[order.ID] = stored
	if cart, ok := s.carts[order.CustomerID]; ok {
		cart.lines = nil
		cart.updatedAt = order.CreatedAt
		s.carts[order.CustomerID] = cart
	}
	created := cloneOrder(stored)
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.CustomerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneOrder(order)
	return &found, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.CustomerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CustomerOrder, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.CustomerOrder) int {
		if c := cmpNewestFirst(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ConfirmOrderPayment(_ context.Context, id string, reference string, confirmedBy string, at time.Time) (*domain.CustomerOrder, []domain.LocationStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if order.Status == domain.OrderStatusCancelled || order.PaymentStatus != domain.PaymentStatusPending {
		return nil, nil, fmt.Errorf("%w: order %s is %s with payment %s", store.ErrInvalidState, order.OrderNumber, order.Status, order.PaymentStatus)
	}

	lines := make([]stockLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, stockLine{productID: item.ProductID, qty: item.Quantity})
	}
	rows, err := s.settleStockLocked(order.LocationID, lines)
	if err != nil {
		return nil, nil, err
	}

	order = cloneOrder(order)
	order.PaymentStatus = domain.PaymentStatusPaid
	order.PaymentReference = reference
	order.PaidAt = &at
	if order.Status == domain.OrderStatusPending {
		order.Status = domain.OrderStatusConfirmed
	}
	order.History = append(order.History, domain.OrderStatusChange{
		Status:    order.Status,
		Notes:     paymentNote(reference),
		ChangedBy: confirmedBy,
		CreatedAt: at,
	})
	order.UpdatedAt = at
	s.ordersByID[id] = order

	confirmed := cloneOrder(order)
	return &confirmed, rows, nil
}

func paymentNote(reference string) string {
	if reference == "" {
		return "payment confirmed"
	}
	return "payment confirmed, reference " + reference
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status string, notes string, changedBy string, at time.Time) (*domain.CustomerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := domain.CheckOrderTransition(order, status); err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidState, err)
	}

	order = cloneOrder(order)
	order.Status = status
	order.UpdatedAt = at
	order.History = append(order.History, domain.OrderStatusChange{
		Status:    status,
		Notes:     notes,
		ChangedBy: changedBy,
		CreatedAt: at,
	})
	s.ordersByID[id] = order

	updated := cloneOrder(order)
	return &updated, nil
}

func (s *Store) CreateConversation(_ context.Context, conversation domain.Conversation, first domain.Message) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversation.ID == "" || first.ID == "" || first.Body == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.conversationsByID[conversation.ID]; exists {
		return nil, store.ErrConflict
	}
	if _, ok := s.customers[conversation.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %s: %w", conversation.CustomerID, store.ErrNotFound)
	}

	first.ConversationID = conversation.ID
	conversation.LastMessageAt = first.CreatedAt
	s.conversationsByID[conversation.ID] = conversation
	s.messages = append(s.messages, first)
	created := conversation
	return &created, nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversation, ok := s.conversationsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &conversation, nil
}

func (s *Store) ListConversations(_ context.Context, customerID string, limit int) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Conversation, 0, len(s.conversationsByID))
	for _, conversation := range s.conversationsByID {
		if customerID != "" && conversation.CustomerID != customerID {
			continue
		}
		result = append(result, conversation)
	}
	slices.SortFunc(result, func(a, b domain.Conversation) int {
		if c := cmpNewestFirst(a.LastMessageAt, b.LastMessageAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AddMessage(_ context.Context, msg domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" || msg.Body == "" {
		return nil, store.ErrInvalidInput
	}
	conversation, ok := s.conversationsByID[msg.ConversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", msg.ConversationID, store.ErrNotFound)
	}
	s.messages = append(s.messages, msg)
	if msg.CreatedAt.After(conversation.LastMessageAt) {
		conversation.LastMessageAt = msg.CreatedAt
		s.conversationsByID[conversation.ID] = conversation
	}
	created := msg
	return &created, nil
}

// ListMessages returns the newest limit messages, oldest first.
func (s *Store) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversationsByID[conversationID]; !ok {
		return nil, store.ErrNotFound
	}
	result := make([]domain.Message, 0, 16)
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			result = append(result, msg)
		}
	}
	slices.SortStableFunc(result, func(a, b domain.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func cloneInvoice(src domain.Invoice) domain.Invoice {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}

func (s *Store) checkInvoiceRefsLocked(invoice domain.Invoice) error {
	if len(invoice.Items) == 0 || invoice.Total.IsNegative() {
		return store.ErrInvalidInput
	}
	if _, ok := s.customers[invoice.CustomerID]; !ok {
		return fmt.Errorf("customer %s: %w", invoice.CustomerID, store.ErrNotFound)
	}
	if invoice.SaleID != "" {
		if _, ok := s.transactionsByID[invoice.SaleID]; !ok {
			return fmt.Errorf("sale %s: %w", invoice.SaleID, store.ErrNotFound)
		}
	}
	for _, item := range invoice.Items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := s.products[item.ProductID]; !ok {
			return fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
	}
	return nil
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.ID == "" || invoice.InvoiceNumber == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.invoicesByID[invoice.ID]; exists {
		return nil, store.ErrConflict
	}
	if err := s.checkInvoiceRefsLocked(invoice); err != nil {
		return nil, err
	}
	stored := cloneInvoice(invoice)
	s.invoicesByID[invoice.ID] = stored
	created := cloneInvoice(stored)
	return &created, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneInvoice(invoice)
	return &found, nil
}

func (s *Store) ListInvoices(_ context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Invoice, 0, len(s.invoicesByID))
	for _, invoice := range s.invoicesByID {
		if filter.Status != "" && invoice.Status != filter.Status {
			continue
		}
		if filter.CustomerID != "" && invoice.CustomerID != filter.CustomerID {
			continue
		}
		result = append(result, cloneInvoice(invoice))
	}
	slices.SortFunc(result, func(a, b domain.Invoice) int {
		if c := cmpNewestFirst(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ReplaceInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invoicesByID[invoice.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !existing.Editable() {
		return nil, fmt.Errorf("%w: invoice %s is %s", store.ErrInvalidState, existing.InvoiceNumber, existing.Status)
	}
	if err := s.checkInvoiceRefsLocked(invoice); err != nil {
		return nil, err
	}

	invoice.InvoiceNumber = existing.InvoiceNumber
	invoice.Status = existing.Status
	invoice.IssueDate = existing.IssueDate
	invoice.CreatedBy = existing.CreatedBy
	invoice.CreatedAt = existing.CreatedAt
	stored := cloneInvoice(invoice)
	s.invoicesByID[invoice.ID] = stored
	updated := cloneInvoice(stored)
	return &updated, nil
}

func (s *Store) SetInvoiceStatus(_ context.Context, id string, status string, at time.Time) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !domain.IsInvoiceStatus(status) {
		return nil, store.ErrInvalidInput
	}
	invoice, ok := s.invoicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !invoice.Editable() {
		return nil, fmt.Errorf("%w: invoice %s is %s", store.ErrInvalidState, invoice.InvoiceNumber, invoice.Status)
	}
	invoice.Status = status
	invoice.UpdatedAt = at
	s.invoicesByID[id] = invoice
	updated := cloneInvoice(invoice)
	return &updated, nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := s.invoicesByID[id]
	if !ok {
		return store.ErrNotFound
	}
	if invoice.Status == domain.InvoiceStatusPaid {
		return fmt.Errorf("%w: invoice %s is paid", store.ErrInvalidState, invoice.InvoiceNumber)
	}
	delete(s.invoicesByID, id)
	return nil
}
