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

const returnColumns = `
	id, return_number, transaction_id, customer_id, reason, status, refund_amount,
	restocked, processed_by, processed_at, created_by, created_at
`

func scanReturn(row rowScanner) (domain.Return, error) {
	var ret domain.Return
	var txID, customerID, processedBy sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(
		&ret.ID, &ret.ReturnNumber, &txID, &customerID, &ret.Reason, &ret.Status, &ret.RefundAmount,
		&ret.Restocked, &processedBy, &processedAt, &ret.CreatedBy, &ret.CreatedAt,
	)
	ret.TransactionID = txID.String
	ret.CustomerID = customerID.String
	ret.ProcessedBy = processedBy.String
	ret.ProcessedAt = timePtr(processedAt)
	ret.CreatedAt = ret.CreatedAt.UTC()
	return ret, err
}

func loadReturnItems(ctx context.Context, q querier, id string) ([]domain.ReturnItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, condition
		FROM return_items
		WHERE return_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ReturnItem, 0, 4)
	for rows.Next() {
		var item domain.ReturnItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice, &item.Condition); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func getReturn(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Return, error) {
	query := `SELECT ` + returnColumns + ` FROM returns WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	ret, err := scanReturn(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	ret.Items, err = loadReturnItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.ID == "" || len(ret.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	ret.Status = domain.ReturnStatusPending

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if ret.TransactionID != "" {
			if err := ensureExists(ctx, tx, "transactions", ret.TransactionID); err != nil {
				return err
			}
		}
		for _, item := range ret.Items {
			if err := ensureExists(ctx, tx, "products", item.ProductID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO returns (
				id, return_number, transaction_id, customer_id, reason, status,
				refund_amount, restocked, created_by, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8,$9)
		`, ret.ID, ret.ReturnNumber, nullIfEmpty(ret.TransactionID), nullIfEmpty(ret.CustomerID), ret.Reason, ret.Status,
			ret.RefundAmount, ret.CreatedBy, ret.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
		for _, item := range ret.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO return_items (return_id, product_id, quantity, unit_price, condition)
				VALUES ($1,$2,$3,$4,$5)
			`, ret.ID, item.ProductID, item.Quantity, item.UnitPrice, item.Condition)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := ret
	return &created, nil
}

func (s *Store) GetReturn(ctx context.Context, id string) (*domain.Return, error) {
	return getReturn(ctx, s.db, id, false)
}

func (s *Store) ListReturns(ctx context.Context, status string, limit int) ([]domain.Return, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+returnColumns+`
		FROM returns
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Return, 0, limit)
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, ret)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range result {
		result[i].Items, err = loadReturnItems(ctx, s.db, result[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ProcessReturn moves a non-terminal return to status. A completed return with
// restock puts the quantities back into global stock only.
func (s *Store) ProcessReturn(ctx context.Context, id string, status string, restock bool, processedBy string, at time.Time) (*domain.Return, error) {
	var processed *domain.Return
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ret, err := getReturn(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if ret.Status == domain.ReturnStatusCompleted || ret.Status == domain.ReturnStatusRejected {
			return fmt.Errorf("return is %s: %w", ret.Status, store.ErrInvalidState)
		}

		restocked := ret.Restocked
		if status == domain.ReturnStatusCompleted && restock && !restocked {
			for _, item := range ret.Items {
				if _, err := tx.ExecContext(ctx, `
					UPDATE products SET stock_qty = stock_qty + $1, updated_at = $3 WHERE id = $2
				`, item.Quantity, item.ProductID, at); err != nil {
					return err
				}
			}
			restocked = true
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE returns
			SET status = $2, restocked = $3, processed_by = $4, processed_at = $5
			WHERE id = $1
		`, id, status, restocked, processedBy, at); err != nil {
			return err
		}
		processed, err = getReturn(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return processed, nil
}
