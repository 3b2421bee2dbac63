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

const invoiceColumns = `
	id, invoice_number, customer_id, sale_id, status, issue_date, due_date, subtotal,
	tax_amount, discount_amount, total_amount, notes, created_by, created_at, updated_at
`

func scanInvoice(row rowScanner) (domain.Invoice, error) {
	var inv domain.Invoice
	var saleID sql.NullString
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.CustomerID, &saleID, &inv.Status, &inv.IssueDate, &inv.DueDate, &inv.Subtotal,
		&inv.Tax, &inv.Discount, &inv.Total, &inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	inv.SaleID = saleID.String
	inv.IssueDate = inv.IssueDate.UTC()
	inv.DueDate = inv.DueDate.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return inv, err
}

func loadInvoiceItems(ctx context.Context, q querier, id string) ([]domain.InvoiceItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, description, quantity, unit_price, line_total
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0, 8)
	for rows.Next() {
		var item domain.InvoiceItem
		var productID sql.NullString
		if err := rows.Scan(&productID, &item.Description, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		item.ProductID = productID.String
		items = append(items, item)
	}
	return items, rows.Err()
}

func getInvoice(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	inv, err := scanInvoice(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	inv.Items, err = loadInvoiceItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func checkInvoiceRefs(ctx context.Context, tx *sql.Tx, inv domain.Invoice) error {
	if len(inv.Items) == 0 || inv.Total.IsNegative() {
		return store.ErrInvalidInput
	}
	if err := ensureExists(ctx, tx, "customers", inv.CustomerID); err != nil {
		return err
	}
	if inv.SaleID != "" {
		if err := ensureExists(ctx, tx, "transactions", inv.SaleID); err != nil {
			return err
		}
	}
	for _, item := range inv.Items {
		if item.ProductID == "" {
			continue
		}
		if err := ensureExists(ctx, tx, "products", item.ProductID); err != nil {
			return err
		}
	}
	return nil
}

func insertInvoiceItems(ctx context.Context, tx *sql.Tx, inv domain.Invoice) error {
	for _, item := range inv.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, product_id, description, quantity, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, inv.ID, nullIfEmpty(item.ProductID), item.Description, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if inv.ID == "" || inv.InvoiceNumber == "" {
		return nil, store.ErrInvalidInput
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkInvoiceRefs(ctx, tx, inv); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoices (
				id, invoice_number, customer_id, sale_id, status, issue_date, due_date, subtotal,
				tax_amount, discount_amount, total_amount, notes, created_by, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		`, inv.ID, inv.InvoiceNumber, inv.CustomerID, nullIfEmpty(inv.SaleID), inv.Status, inv.IssueDate, inv.DueDate, inv.Subtotal,
			inv.Tax, inv.Discount, inv.Total, inv.Notes, inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
		return insertInvoiceItems(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	created := inv
	return &created, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return getInvoice(ctx, s.db, id, false)
}

func (s *Store) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR customer_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, filter.Status, filter.CustomerID, limit)
	if err != nil {
		return nil, err
	}
	invoices := make([]domain.Invoice, 0, limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range invoices {
		invoices[i].Items, err = loadInvoiceItems(ctx, s.db, invoices[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

// ReplaceInvoice rewrites the header and swaps every line while the invoice
// is still editable.
func (s *Store) ReplaceInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	var updated *domain.Invoice
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := getInvoice(ctx, tx, inv.ID, true)
		if err != nil {
			return err
		}
		if !existing.Editable() {
			return fmt.Errorf("%w: invoice %s is %s", store.ErrInvalidState, existing.InvoiceNumber, existing.Status)
		}
		if err := checkInvoiceRefs(ctx, tx, inv); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE invoices
			SET customer_id = $2, sale_id = $3, due_date = $4, subtotal = $5, tax_amount = $6,
			    discount_amount = $7, total_amount = $8, notes = $9, updated_at = $10
			WHERE id = $1
		`, inv.ID, inv.CustomerID, nullIfEmpty(inv.SaleID), inv.DueDate, inv.Subtotal, inv.Tax,
			inv.Discount, inv.Total, inv.Notes, inv.UpdatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
			return err
		}
		if err := insertInvoiceItems(ctx, tx, inv); err != nil {
			return err
		}
		updated, err = getInvoice(ctx, tx, inv.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) SetInvoiceStatus(ctx context.Context, id string, status string, at time.Time) (*domain.Invoice, error) {
	if !domain.IsInvoiceStatus(status) {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = $2, updated_at = $3
		WHERE id = $1 AND status <> ALL($4)
	`, id, status, at, []string{domain.InvoiceStatusPaid, domain.InvoiceStatusCancelled})
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, transitionError(ctx, s.db, "invoices", "invoice", id)
	}
	return s.GetInvoice(ctx, id)
}

// DeleteInvoice removes the lines before the header.
func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var status, number string
		err := tx.QueryRowContext(ctx, `SELECT status, invoice_number FROM invoices WHERE id = $1 FOR UPDATE`, id).Scan(&status, &number)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if status == domain.InvoiceStatusPaid {
			return fmt.Errorf("%w: invoice %s is paid", store.ErrInvalidState, number)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
		return err
	})
}
