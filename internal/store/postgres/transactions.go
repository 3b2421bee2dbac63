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
)

type querier interface {
	queryRower
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// RecordTransaction writes the header and lines, settles stock with
// conditional decrements and credits loyalty in one serializable transaction.
func (s *Store) RecordTransaction(ctx context.Context, record store.SaleRecord) (*store.SaleResult, error) {
	if record.Transaction.ID == "" || len(record.Transaction.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if record.SettleStock && record.Transaction.LocationID == "" {
		return nil, store.ErrInvalidInput
	}

	var result *store.SaleResult
	err := s.inTx(ctx, func(pgTx *sql.Tx) error {
		tx := record.Transaction
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = time.Now().UTC()
		}
		res := &store.SaleResult{}

		if tx.CustomerID != "" {
			if err := ensureExists(ctx, pgTx, "customers", tx.CustomerID); err != nil {
				return err
			}
		}

		if record.SettleStock {
			touched := make([]string, 0, len(tx.Items))
			for _, item := range tx.Items {
				if err := decrementStock(ctx, pgTx, item, tx.LocationID); err != nil {
					return err
				}
				if !slices.Contains(touched, item.ProductID) {
					touched = append(touched, item.ProductID)
				}
			}
			slices.Sort(touched)
			for _, productID := range touched {
				row, err := getLocationStock(ctx, pgTx, productID, tx.LocationID)
				if err != nil {
					return err
				}
				res.Stock = append(res.Stock, *row)
			}
		}

		tx.PointsEarned = 0
		if record.LoyaltyPoints > 0 && tx.CustomerID != "" {
			account, err := applyLoyalty(ctx, pgTx, tx.CustomerID, domain.LoyaltyTransaction{
				Type:        domain.LoyaltyEntryEarn,
				Points:      record.LoyaltyPoints,
				ReferenceID: tx.ID,
				Note:        record.LoyaltyNote,
				CreatedAt:   tx.CreatedAt,
			})
			if err != nil {
				return err
			}
			tx.PointsEarned = record.LoyaltyPoints
			res.Loyalty = &account
		}

		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transactions (
				id, transaction_type, customer_id, location_id, sales_agent, invoice_number,
				issue_date, due_date, subtotal, tax_amount, discount_amount, total_amount,
				status, payment_method, notes, points_earned, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		`, tx.ID, string(tx.Type), nullIfEmpty(tx.CustomerID), nullIfEmpty(tx.LocationID), tx.SalesAgent, nullIfEmpty(tx.InvoiceNumber),
			tx.IssueDate, nullTime(tx.DueDate), tx.Subtotal, tx.Tax, tx.Discount, tx.Total,
			tx.Status, tx.PaymentMethod, tx.Notes, tx.PointsEarned, tx.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}

		for _, item := range tx.Items {
			_, err := pgTx.ExecContext(ctx, `
				INSERT INTO transaction_items (transaction_id, product_id, product_name, quantity, unit_price, line_total)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, tx.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.LineTotal)
			if err != nil {
				return err
			}
		}

		res.Transaction = &tx
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decrementStock takes qty from the location row and the global product count.
// Each UPDATE only matches when enough stock remains.
func decrementStock(ctx context.Context, pgTx *sql.Tx, item domain.TransactionItem, locationID string) error {
	res, err := pgTx.ExecContext(ctx, `
		UPDATE location_stock
		SET stock_qty = stock_qty - $1, updated_at = now()
		WHERE product_id = $2 AND location_id = $3 AND stock_qty >= $1
	`, item.Quantity, item.ProductID, locationID)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return insufficientStock(ctx, pgTx, item, locationID)
	}

	res, err = pgTx.ExecContext(ctx, `
		UPDATE products
		SET stock_qty = stock_qty - $1, updated_at = now()
		WHERE id = $2 AND stock_qty >= $1
	`, item.Quantity, item.ProductID)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return insufficientStock(ctx, pgTx, item, "")
	}
	return nil
}

func insufficientStock(ctx context.Context, q queryRower, item domain.TransactionItem, locationID string) error {
	var name sql.NullString
	var available int
	var err error
	if locationID != "" {
		err = q.QueryRowContext(ctx, `
			SELECT p.name, COALESCE(ls.stock_qty, 0)
			FROM products p
			LEFT JOIN location_stock ls ON ls.product_id = p.id AND ls.location_id = $2
			WHERE p.id = $1
		`, item.ProductID, locationID).Scan(&name, &available)
	} else {
		err = q.QueryRowContext(ctx, `SELECT name, stock_qty FROM products WHERE id = $1`, item.ProductID).Scan(&name, &available)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		return err
	}
	return &store.InsufficientStockError{
		ProductID:   item.ProductID,
		ProductName: name.String,
		LocationID:  locationID,
		Available:   available,
		Required:    item.Quantity,
	}
}

const transactionColumns = `
	id, transaction_type, customer_id, location_id, sales_agent, invoice_number,
	issue_date, due_date, subtotal, tax_amount, discount_amount, total_amount,
	status, payment_method, notes, points_earned, created_at
`

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tx domain.Transaction
	var txType string
	var customerID, locationID, invoiceNumber sql.NullString
	var dueDate sql.NullTime
	err := row.Scan(
		&tx.ID, &txType, &customerID, &locationID, &tx.SalesAgent, &invoiceNumber,
		&tx.IssueDate, &dueDate, &tx.Subtotal, &tx.Tax, &tx.Discount, &tx.Total,
		&tx.Status, &tx.PaymentMethod, &tx.Notes, &tx.PointsEarned, &tx.CreatedAt,
	)
	tx.Type = domain.TransactionType(txType)
	tx.CustomerID = customerID.String
	tx.LocationID = locationID.String
	tx.InvoiceNumber = invoiceNumber.String
	tx.DueDate = timePtr(dueDate)
	tx.IssueDate = tx.IssueDate.UTC()
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, err
}

func loadTransactionItems(ctx context.Context, q querier, txIDs []string) (map[string][]domain.TransactionItem, error) {
	items := make(map[string][]domain.TransactionItem, len(txIDs))
	if len(txIDs) == 0 {
		return items, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT transaction_id, product_id, product_name, quantity, unit_price, line_total
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id ASC
	`, txIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var txID string
		var item domain.TransactionItem
		if err := rows.Scan(&txID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		items[txID] = append(items[txID], item)
	}
	return items, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := loadTransactionItems(ctx, s.db, []string{id})
	if err != nil {
		return nil, err
	}
	tx.Items = items[id]
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1 = '' OR transaction_type = $1)
			AND ($2 = '' OR status = $2)
			AND ($3 = '' OR location_id = $3)
			AND ($4 = '' OR customer_id = $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`, string(filter.Type), filter.Status, filter.LocationID, filter.CustomerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := loadTransactionItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Items = items[result[i].ID]
	}
	return result, nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, status string) (*domain.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetTransaction(ctx, id)
}

func (s *Store) NextInvoiceNumber(ctx context.Context, at time.Time) (string, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%05d", at.UTC().Format("20060102"), seq), nil
}
