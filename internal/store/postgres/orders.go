package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/xid"
)

type cartHeader struct {
	id        string
	updatedAt time.Time
}

// ensureCart returns the customer's cart row, inserting it on first use.
func ensureCart(ctx context.Context, tx *sql.Tx, customerID string) (cartHeader, error) {
	if err := ensureExists(ctx, tx, "customers", customerID); err != nil {
		return cartHeader{}, err
	}
	var cart cartHeader
	err := tx.QueryRowContext(ctx, `
		INSERT INTO carts (id, customer_id)
		VALUES ($1, $2)
		ON CONFLICT (customer_id) DO UPDATE SET customer_id = EXCLUDED.customer_id
		RETURNING id, updated_at
	`, xid.New("cart"), customerID).Scan(&cart.id, &cart.updatedAt)
	cart.updatedAt = cart.updatedAt.UTC()
	return cart, err
}

func touchCart(ctx context.Context, tx *sql.Tx, cartID string) (time.Time, error) {
	var updated time.Time
	err := tx.QueryRowContext(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1 RETURNING updated_at`, cartID).Scan(&updated)
	return updated.UTC(), err
}

func loadCart(ctx context.Context, q querier, customerID string, header cartHeader) (*domain.Cart, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ci.id, ci.product_id, p.name, p.unit_price, ci.quantity, p.active
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at, ci.id
	`, header.id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cart := &domain.Cart{
		ID:         header.id,
		CustomerID: customerID,
		Items:      make([]domain.CartItem, 0, 8),
		UpdatedAt:  header.updatedAt,
	}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity, &item.Available); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	cart.Price()
	return cart, nil
}

func (s *Store) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	var cart *domain.Cart
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		header, err := ensureCart(ctx, tx, customerID)
		if err != nil {
			return err
		}
		cart, err = loadCart(ctx, tx, customerID, header)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Store) AddCartItem(ctx context.Context, customerID string, productID string, qty int) (*domain.Cart, error) {
	if qty < 1 {
		return nil, store.ErrInvalidInput
	}

	var cart *domain.Cart
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var name string
		var active bool
		err := tx.QueryRowContext(ctx, `SELECT name, active FROM products WHERE id = $1`, productID).Scan(&name, &active)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
			}
			return err
		}
		if !active {
			return fmt.Errorf("%w: product %s is not for sale", store.ErrInvalidInput, name)
		}

		header, err := ensureCart(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (id, cart_id, product_id, quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		`, xid.New("ci"), header.id, productID, qty); err != nil {
			return err
		}
		if header.updatedAt, err = touchCart(ctx, tx, header.id); err != nil {
			return err
		}
		cart, err = loadCart(ctx, tx, customerID, header)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Store) SetCartItemQuantity(ctx context.Context, customerID string, itemID string, qty int) (*domain.Cart, error) {
	var cart *domain.Cart
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		header, err := ensureCart(ctx, tx, customerID)
		if err != nil {
			return err
		}

		var res sql.Result
		if qty <= 0 {
			res, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, header.id)
		} else {
			res, err = tx.ExecContext(ctx, `UPDATE cart_items SET quantity = $3 WHERE id = $1 AND cart_id = $2`, itemID, header.id, qty)
		}
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err != nil {
			return err
		} else if affected == 0 {
			return fmt.Errorf("cart item %s: %w", itemID, store.ErrNotFound)
		}

		if header.updatedAt, err = touchCart(ctx, tx, header.id); err != nil {
			return err
		}
		cart, err = loadCart(ctx, tx, customerID, header)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Store) RemoveCartItem(ctx context.Context, customerID string, itemID string) (*domain.Cart, error) {
	return s.SetCartItemQuantity(ctx, customerID, itemID, 0)
}

func (s *Store) ClearCart(ctx context.Context, customerID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		header, err := ensureCart(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, header.id); err != nil {
			return err
		}
		_, err = touchCart(ctx, tx, header.id)
		return err
	})
}

const orderColumns = `
	id, order_number, customer_id, location_id, status, payment_method, payment_status,
	payment_reference, paid_at, contact_phone, contact_email, shipping_address, shipping_city,
	shipping_state, delivery_notes, subtotal, tax_amount, total_amount, created_at, updated_at
`

func scanOrder(row rowScanner) (domain.CustomerOrder, error) {
	var o domain.CustomerOrder
	var paidAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.LocationID, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&o.PaymentReference, &paidAt, &o.ContactPhone, &o.ContactEmail, &o.ShippingAddress, &o.ShippingCity,
		&o.ShippingState, &o.DeliveryNotes, &o.Subtotal, &o.Tax, &o.Total, &o.CreatedAt, &o.UpdatedAt,
	)
	o.PaidAt = timePtr(paidAt)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, err
}

func loadOrderDetails(ctx context.Context, q querier, order *domain.CustomerOrder) error {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price, line_total
		FROM customer_order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, order.ID)
	if err != nil {
		return err
	}
	order.Items = make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			_ = rows.Close()
			return err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT status, notes, changed_by, created_at
		FROM customer_order_history
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	order.History = make([]domain.OrderStatusChange, 0, 4)
	for rows.Next() {
		var change domain.OrderStatusChange
		if err := rows.Scan(&change.Status, &change.Notes, &change.ChangedBy, &change.CreatedAt); err != nil {
			return err
		}
		change.CreatedAt = change.CreatedAt.UTC()
		order.History = append(order.History, change)
	}
	return rows.Err()
}

func getOrder(ctx context.Context, q querier, id string, forUpdate bool) (*domain.CustomerOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM customer_orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := loadOrderDetails(ctx, q, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func insertOrderHistory(ctx context.Context, tx *sql.Tx, orderID string, change domain.OrderStatusChange) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO customer_order_history (order_id, status, notes, changed_by, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, orderID, change.Status, change.Notes, change.ChangedBy, change.CreatedAt)
	return err
}

// PlaceOrder writes the order and empties the customer's cart in one
// transaction.
func (s *Store) PlaceOrder(ctx context.Context, order domain.CustomerOrder) (*domain.CustomerOrder, error) {
	if order.ID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureExists(ctx, tx, "customers", order.CustomerID); err != nil {
			return err
		}
		if err := ensureExists(ctx, tx, "locations", order.LocationID); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := ensureExists(ctx, tx, "products", item.ProductID); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO customer_orders (
				id, order_number, customer_id, location_id, status, payment_method, payment_status,
				payment_reference, contact_phone, contact_email, shipping_address, shipping_city,
				shipping_state, delivery_notes, subtotal, tax_amount, total_amount, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		`, order.ID, order.OrderNumber, order.CustomerID, order.LocationID, order.Status, order.PaymentMethod, order.PaymentStatus,
			order.PaymentReference, order.ContactPhone, order.ContactEmail, order.ShippingAddress, order.ShippingCity,
			order.ShippingState, order.DeliveryNotes, order.Subtotal, order.Tax, order.Total, order.CreatedAt, order.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
		for _, item := range order.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO customer_order_items (order_id, product_id, product_name, quantity, unit_price, line_total)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.LineTotal)
			if err != nil {
				return err
			}
		}
		for _, change := range order.History {
			if err := insertOrderHistory(ctx, tx, order.ID, change); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE cart_id IN (SELECT id FROM carts WHERE customer_id = $1)
		`, order.CustomerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	created := order
	return &created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.CustomerOrder, error) {
	return getOrder(ctx, s.db, id, false)
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.CustomerOrder, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM customer_orders
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR customer_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, filter.Status, filter.CustomerID, limit)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.CustomerOrder, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range orders {
		if err := loadOrderDetails(ctx, s.db, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ConfirmOrderPayment settles every line with the same conditional
// decrements a sale uses and flips payment to paid in one transaction.
func (s *Store) ConfirmOrderPayment(ctx context.Context, id string, reference string, confirmedBy string, at time.Time) (*domain.CustomerOrder, []domain.LocationStock, error) {
	var confirmed *domain.CustomerOrder
	var stock []domain.LocationStock
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		order, err := getOrder(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusCancelled || order.PaymentStatus != domain.PaymentStatusPending {
			return fmt.Errorf("%w: order %s is %s with payment %s", store.ErrInvalidState, order.OrderNumber, order.Status, order.PaymentStatus)
		}

		touched := make([]string, 0, len(order.Items))
		for _, item := range order.Items {
			line := domain.TransactionItem{ProductID: item.ProductID, Quantity: item.Quantity}
			if err := decrementStock(ctx, tx, line, order.LocationID); err != nil {
				return err
			}
			if !slices.Contains(touched, item.ProductID) {
				touched = append(touched, item.ProductID)
			}
		}
		slices.Sort(touched)
		rows := make([]domain.LocationStock, 0, len(touched))
		for _, productID := range touched {
			row, err := getLocationStock(ctx, tx, productID, order.LocationID)
			if err != nil {
				return err
			}
			rows = append(rows, *row)
		}

		status := order.Status
		if status == domain.OrderStatusPending {
			status = domain.OrderStatusConfirmed
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE customer_orders
			SET payment_status = $2, payment_reference = $3, paid_at = $4, status = $5, updated_at = $4
			WHERE id = $1 AND payment_status = $6
		`, id, domain.PaymentStatusPaid, reference, at, status, domain.PaymentStatusPending)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err != nil {
			return err
		} else if affected == 0 {
			return fmt.Errorf("%w: order %s was already settled", store.ErrInvalidState, order.OrderNumber)
		}

		note := "payment confirmed"
		if reference != "" {
			note += ", reference " + reference
		}
		if err := insertOrderHistory(ctx, tx, id, domain.OrderStatusChange{
			Status:    status,
			Notes:     note,
			ChangedBy: confirmedBy,
			CreatedAt: at,
		}); err != nil {
			return err
		}

		confirmed, err = getOrder(ctx, tx, id, false)
		stock = rows
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return confirmed, stock, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status string, notes string, changedBy string, at time.Time) (*domain.CustomerOrder, error) {
	var updated *domain.CustomerOrder
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		order, err := getOrder(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := domain.CheckOrderTransition(*order, status); err != nil {
			return fmt.Errorf("%w: %s", store.ErrInvalidState, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE customer_orders SET status = $2, updated_at = $3 WHERE id = $1
		`, id, status, at); err != nil {
			return err
		}
		if err := insertOrderHistory(ctx, tx, id, domain.OrderStatusChange{
			Status:    status,
			Notes:     notes,
			ChangedBy: changedBy,
			CreatedAt: at,
		}); err != nil {
			return err
		}
		updated, err = getOrder(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
