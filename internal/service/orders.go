package service

import (
	"context"
	"fmt"
	"strings"

	"mafaconnect/backend/internal/domain"
)

// ListOrders shows staff every order and customers only their own.
func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.CustomerOrder, error) {
	actor, err := s.authorizeOrders(ctx)
	if err != nil {
		return nil, err
	}
	filter.Status = strings.TrimSpace(filter.Status)
	if filter.Status != "" && !domain.IsOrderStatus(filter.Status) {
		return nil, invalidInput("unknown order status %q", filter.Status)
	}
	if !actor.Role.Can(domain.PermManageOrders) {
		filter.CustomerID = actor.CustomerID
	}
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.CustomerOrder, error) {
	actor, err := s.authorizeOrders(ctx)
	if err != nil {
		return domain.CustomerOrder{}, err
	}
	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.CustomerOrder{}, err
	}
	if !actor.Role.Can(domain.PermManageOrders) && order.CustomerID != actor.CustomerID {
		return domain.CustomerOrder{}, fmt.Errorf("%w: customers may only view their own orders", domain.ErrForbidden)
	}
	return *order, nil
}

func (s *Service) authorizeOrders(ctx context.Context) (domain.Actor, error) {
	if actor, err := s.authorize(ctx, domain.PermManageOrders); err == nil {
		return actor, nil
	}
	return s.shopper(ctx)
}

// ConfirmOrderPayment records a manually verified payment and takes the
// order's lines out of its fulfilment location. Confirming twice is rejected,
// so stock moves once.
func (s *Service) ConfirmOrderPayment(ctx context.Context, id string, req domain.OrderPaymentRequest) (domain.CustomerOrder, error) {
	actor, err := s.authorize(ctx, domain.PermManageOrders)
	if err != nil {
		return domain.CustomerOrder{}, err
	}
	id = strings.TrimSpace(id)

	current, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.CustomerOrder{}, err
	}
	productIDs := make([]string, 0, len(current.Items))
	for _, item := range current.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	release, err := s.lockStock(ctx, current.LocationID, productIDs...)
	if err != nil {
		return domain.CustomerOrder{}, err
	}
	defer release(context.WithoutCancel(ctx))

	order, rows, err := s.repo.ConfirmOrderPayment(ctx, id, strings.TrimSpace(req.PaymentReference), actor.Username, s.now())
	if err != nil {
		return domain.CustomerOrder{}, err
	}

	s.logAudit(ctx, "order_payment_confirm", "customer_order", order.ID, fmt.Sprintf(
		"number=%s,total=%s,reference=%s", order.OrderNumber, order.Total.StringFixed(2), order.PaymentReference,
	))
	s.afterStockChange(ctx, rows...)
	return *order, nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, req domain.OrderStatusRequest) (domain.CustomerOrder, error) {
	actor, err := s.authorize(ctx, domain.PermManageOrders)
	if err != nil {
		return domain.CustomerOrder{}, err
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if !domain.IsOrderStatus(status) {
		return domain.CustomerOrder{}, invalidInput("unknown order status %q", req.Status)
	}

	order, err := s.repo.UpdateOrderStatus(ctx, strings.TrimSpace(id), status, strings.TrimSpace(req.Notes), actor.Username, s.now())
	if err != nil {
		return domain.CustomerOrder{}, err
	}
	s.logAudit(ctx, "order_status_update", "customer_order", order.ID, "status="+order.Status)
	return *order, nil
}
