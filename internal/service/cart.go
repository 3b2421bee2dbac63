package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/xid"
)

// shopper resolves the customer bound to the caller's login.
func (s *Service) shopper(ctx context.Context) (domain.Actor, error) {
	actor, err := s.authorize(ctx, domain.PermShop)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.CustomerID == "" {
		return domain.Actor{}, fmt.Errorf("%w: login is not linked to a customer", domain.ErrForbidden)
	}
	return actor, nil
}

func (s *Service) GetCart(ctx context.Context) (domain.Cart, error) {
	actor, err := s.shopper(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	cart, err := s.repo.GetCart(ctx, actor.CustomerID)
	if err != nil {
		return domain.Cart{}, err
	}
	return *cart, nil
}

func (s *Service) AddCartItem(ctx context.Context, req domain.CartItemAddRequest) (domain.Cart, error) {
	actor, err := s.shopper(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	if req.Quantity < 1 {
		return domain.Cart{}, invalidInput("quantity must be at least 1")
	}
	cart, err := s.repo.AddCartItem(ctx, actor.CustomerID, strings.TrimSpace(req.ProductID), req.Quantity)
	if err != nil {
		return domain.Cart{}, err
	}
	return *cart, nil
}

// UpdateCartItem sets a line's quantity; zero or less drops the line.
func (s *Service) UpdateCartItem(ctx context.Context, itemID string, req domain.CartItemUpdateRequest) (domain.Cart, error) {
	actor, err := s.shopper(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	cart, err := s.repo.SetCartItemQuantity(ctx, actor.CustomerID, strings.TrimSpace(itemID), req.Quantity)
	if err != nil {
		return domain.Cart{}, err
	}
	return *cart, nil
}

func (s *Service) RemoveCartItem(ctx context.Context, itemID string) (domain.Cart, error) {
	actor, err := s.shopper(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	cart, err := s.repo.RemoveCartItem(ctx, actor.CustomerID, strings.TrimSpace(itemID))
	if err != nil {
		return domain.Cart{}, err
	}
	return *cart, nil
}

func (s *Service) ClearCart(ctx context.Context) error {
	actor, err := s.shopper(ctx)
	if err != nil {
		return err
	}
	return s.repo.ClearCart(ctx, actor.CustomerID)
}

// Checkout turns the caller's cart into a pending order at the chosen
// location. Stock is checked but not reserved; it moves when staff confirm
// the payment.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CustomerOrder, error) {
	actor, err := s.shopper(ctx)
	if err != nil {
		return domain.CustomerOrder{}, err
	}
	req.LocationID = strings.TrimSpace(req.LocationID)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.ContactPhone = strings.TrimSpace(req.ContactPhone)
	if req.LocationID == "" || req.ContactPhone == "" {
		return domain.CustomerOrder{}, invalidInput("location and contact phone are required")
	}
	switch req.PaymentMethod {
	case "bank_transfer", "cash_on_delivery", "pay_on_pickup":
	default:
		return domain.CustomerOrder{}, invalidInput("unsupported payment method %q", req.PaymentMethod)
	}

	location, err := s.repo.GetLocation(ctx, req.LocationID)
	if err != nil {
		return domain.CustomerOrder{}, fmt.Errorf("location %s: %w", req.LocationID, err)
	}
	if !location.Active {
		return domain.CustomerOrder{}, invalidInput("location %s is not taking orders", location.Name)
	}

	cart, err := s.repo.GetCart(ctx, actor.CustomerID)
	if err != nil {
		return domain.CustomerOrder{}, err
	}
	if len(cart.Items) == 0 {
		return domain.CustomerOrder{}, invalidInput("cart is empty")
	}

	productIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return domain.CustomerOrder{}, err
	}

	items := make([]domain.OrderItem, 0, len(cart.Items))
	priced := make([]domain.TransactionItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		product, ok := products[line.ProductID]
		if !ok {
			return domain.CustomerOrder{}, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		if !product.Active {
			return domain.CustomerOrder{}, invalidInput("product %s is no longer for sale", product.Name)
		}
		if err := s.checkLocationStock(ctx, product, req.LocationID, line.Quantity); err != nil {
			return domain.CustomerOrder{}, err
		}
		lineTotal := product.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items = append(items, domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.UnitPrice,
			LineTotal:   lineTotal,
		})
		priced = append(priced, domain.TransactionItem{LineTotal: lineTotal})
	}
	totals := domain.ComputeTotals(priced, decimal.Zero)

	now := s.now()
	order, err := s.repo.PlaceOrder(ctx, domain.CustomerOrder{
		ID:              xid.New("ord"),
		OrderNumber:     xid.Number("ORD", now),
		CustomerID:      actor.CustomerID,
		LocationID:      req.LocationID,
		Status:          domain.OrderStatusPending,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		ContactPhone:    req.ContactPhone,
		ContactEmail:    strings.ToLower(strings.TrimSpace(req.ContactEmail)),
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		ShippingCity:    strings.TrimSpace(req.ShippingCity),
		ShippingState:   strings.TrimSpace(req.ShippingState),
		DeliveryNotes:   strings.TrimSpace(req.DeliveryNotes),
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		Total:           totals.Total,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           items,
		History: []domain.OrderStatusChange{{
			Status:    domain.OrderStatusPending,
			Notes:     "order placed",
			ChangedBy: actor.Username,
			CreatedAt: now,
		}},
	})
	if err != nil {
		return domain.CustomerOrder{}, err
	}

	s.logAudit(ctx, "order_place", "customer_order", order.ID, fmt.Sprintf(
		"number=%s,total=%s,items=%d,location=%s", order.OrderNumber, order.Total.StringFixed(2), len(order.Items), order.LocationID,
	))
	return *order, nil
}

// checkLocationStock fails with an InsufficientStockError when the location
// cannot cover qty right now.
func (s *Service) checkLocationStock(ctx context.Context, product domain.Product, locationID string, qty int) error {
	available := 0
	row, err := s.repo.GetLocationStock(ctx, product.ID, locationID)
	switch {
	case err == nil:
		available = row.StockQty
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	if available < qty {
		return &store.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			LocationID:  locationID,
			Available:   available,
			Required:    qty,
		}
	}
	return nil
}
