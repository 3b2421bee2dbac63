package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
)

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact_name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.ContactName), nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Email), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func scanSupplier(row rowScanner) (domain.Supplier, error) {
	var sup domain.Supplier
	var contact, phone, email sql.NullString
	err := row.Scan(&sup.ID, &sup.Name, &contact, &phone, &email, &sup.CreatedAt)
	sup.ContactName = contact.String
	sup.Phone = phone.String
	sup.Email = email.String
	sup.CreatedAt = sup.CreatedAt.UTC()
	return sup, err
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	sup, err := scanSupplier(s.db.QueryRowContext(ctx, `
		SELECT id, name, contact_name, phone, email, created_at FROM suppliers WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sup, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact_name, phone, email, created_at FROM suppliers ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.ID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	po.Status = domain.POStatusDraft

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureExists(ctx, tx, "suppliers", po.SupplierID); err != nil {
			return err
		}
		if po.LocationID != "" {
			if err := ensureExists(ctx, tx, "locations", po.LocationID); err != nil {
				return err
			}
		}
		for _, item := range po.Items {
			if err := ensureExists(ctx, tx, "products", item.ProductID); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_orders (
				id, po_number, supplier_id, location_id, status, subtotal, tax_amount,
				total_amount, expected_date, created_by, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, po.ID, po.PONumber, po.SupplierID, nullIfEmpty(po.LocationID), po.Status, po.Subtotal, po.Tax,
			po.Total, nullTime(po.ExpectedDate), po.CreatedBy, po.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
		for _, item := range po.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO purchase_order_items (purchase_order_id, product_id, quantity, received_quantity, unit_cost, line_total)
				VALUES ($1,$2,$3,0,$4,$5)
			`, po.ID, item.ProductID, item.Quantity, item.UnitCost, item.LineTotal)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := po
	return &created, nil
}

const purchaseOrderColumns = `
	id, po_number, supplier_id, location_id, status, subtotal, tax_amount, total_amount,
	expected_date, received_date, received_by, created_by, created_at
`

func scanPurchaseOrder(row rowScanner) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var locationID, receivedBy sql.NullString
	var expected, received sql.NullTime
	err := row.Scan(
		&po.ID, &po.PONumber, &po.SupplierID, &locationID, &po.Status, &po.Subtotal, &po.Tax, &po.Total,
		&expected, &received, &receivedBy, &po.CreatedBy, &po.CreatedAt,
	)
	po.LocationID = locationID.String
	po.ReceivedBy = receivedBy.String
	po.ExpectedDate = timePtr(expected)
	po.ReceivedDate = timePtr(received)
	po.CreatedAt = po.CreatedAt.UTC()
	return po, err
}

func loadPurchaseOrderItems(ctx context.Context, q querier, id string) ([]domain.PurchaseOrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, received_quantity, unit_cost, line_total
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.ReceivedQuantity, &item.UnitCost, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func getPurchaseOrder(ctx context.Context, q querier, id string, forUpdate bool) (*domain.PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	po, err := scanPurchaseOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	po.Items, err = loadPurchaseOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return getPurchaseOrder(ctx, s.db, id, false)
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range orders {
		orders[i].Items, err = loadPurchaseOrderItems(ctx, s.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) SetPurchaseOrderStatus(ctx context.Context, id string, from []string, to string) (*domain.PurchaseOrder, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_orders SET status = $2 WHERE id = $1 AND status = ANY($3)
	`, id, to, from)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, transitionError(ctx, s.db, "purchase_orders", "purchase order", id)
	}
	return s.GetPurchaseOrder(ctx, id)
}

// ReceivePurchaseOrder books every line into global stock, and into the
// location row when a location is known, then marks the order received.
func (s *Store) ReceivePurchaseOrder(ctx context.Context, id string, locationID string, receivedBy string, at time.Time) (*domain.PurchaseOrder, error) {
	var received *domain.PurchaseOrder
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		po, err := getPurchaseOrder(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if po.Status != domain.POStatusDraft && po.Status != domain.POStatusOrdered {
			return fmt.Errorf("purchase order is %s: %w", po.Status, store.ErrInvalidState)
		}
		target := locationID
		if target == "" {
			target = po.LocationID
		}
		if target != "" {
			if err := ensureExists(ctx, tx, "locations", target); err != nil {
				return err
			}
		}

		for _, item := range po.Items {
			res, err := tx.ExecContext(ctx, `
				UPDATE products SET stock_qty = stock_qty + $1, updated_at = $3 WHERE id = $2
			`, item.Quantity, item.ProductID, at)
			if err != nil {
				return err
			}
			if affected, err := res.RowsAffected(); err != nil {
				return err
			} else if affected == 0 {
				return fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
			}
			if target != "" {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO location_stock (product_id, location_id, stock_qty, reorder_level, updated_at)
					VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (product_id, location_id) DO UPDATE
					SET stock_qty = location_stock.stock_qty + EXCLUDED.stock_qty, updated_at = EXCLUDED.updated_at
				`, item.ProductID, target, item.Quantity, domain.DefaultReorderLevel, at); err != nil {
					return err
				}
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE purchase_order_items SET received_quantity = quantity WHERE purchase_order_id = $1
		`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE purchase_orders
			SET status = $2, location_id = $3, received_by = $4, received_date = $5
			WHERE id = $1
		`, id, domain.POStatusReceived, nullIfEmpty(target), receivedBy, at); err != nil {
			return err
		}

		received, err = getPurchaseOrder(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return received, nil
}
