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

const movementColumns = `
	id, movement_number, movement_type, product_id, from_location_id, to_location_id,
	quantity, status, notes, processed_by, expected_delivery, approved_by,
	approved_at, completed_at, cancelled_at, created_at
`

func scanMovement(row rowScanner) (domain.StockMovement, error) {
	var m domain.StockMovement
	var fromID, toID, approvedBy sql.NullString
	var expected, approvedAt, completedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.MovementNumber, &m.MovementType, &m.ProductID, &fromID, &toID,
		&m.Quantity, &m.Status, &m.Notes, &m.ProcessedBy, &expected, &approvedBy,
		&approvedAt, &completedAt, &cancelledAt, &m.CreatedAt,
	)
	m.FromLocationID = fromID.String
	m.ToLocationID = toID.String
	m.ApprovedBy = approvedBy.String
	m.ExpectedDelivery = timePtr(expected)
	m.ApprovedAt = timePtr(approvedAt)
	m.CompletedAt = timePtr(completedAt)
	m.CancelledAt = timePtr(cancelledAt)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}

func (s *Store) CreateTransfer(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	if movement.ID == "" || movement.Quantity <= 0 || movement.FromLocationID == movement.ToLocationID {
		return nil, store.ErrInvalidInput
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	movement.MovementType = domain.MovementTypeTransfer
	movement.Status = domain.TransferStatusPending

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureExists(ctx, tx, "products", movement.ProductID); err != nil {
			return err
		}
		for _, locationID := range []string{movement.FromLocationID, movement.ToLocationID} {
			if err := ensureExists(ctx, tx, "locations", locationID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_movements (
				id, movement_number, movement_type, product_id, from_location_id, to_location_id,
				quantity, status, notes, processed_by, expected_delivery, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, movement.ID, movement.MovementNumber, movement.MovementType, movement.ProductID, movement.FromLocationID, movement.ToLocationID,
			movement.Quantity, movement.Status, movement.Notes, movement.ProcessedBy, nullTime(movement.ExpectedDelivery), movement.CreatedAt)
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	created := movement
	return &created, nil
}

func (s *Store) GetTransfer(ctx context.Context, id string) (*domain.StockMovement, error) {
	m, err := scanMovement(s.db.QueryRowContext(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListTransfers(ctx context.Context, status string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// transitionError explains why a conditional status UPDATE matched nothing.
func transitionError(ctx context.Context, q queryRower, table string, noun string, id string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	return fmt.Errorf("%s is %s: %w", noun, status, store.ErrInvalidState)
}

func (s *Store) ApproveTransfer(ctx context.Context, id string, approvedBy string, at time.Time) (*domain.StockMovement, error) {
	m, err := scanMovement(s.db.QueryRowContext(ctx, `
		UPDATE stock_movements
		SET status = $2, approved_by = $3, approved_at = $4
		WHERE id = $1 AND status = $5
		RETURNING `+movementColumns,
		id, domain.TransferStatusApproved, approvedBy, at, domain.TransferStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transitionError(ctx, s.db, "stock_movements", "transfer", id)
		}
		return nil, err
	}
	return &m, nil
}

// CompleteTransfer decrements the source only if it still covers the quantity,
// upserts the destination row and flips the status in the same transaction.
func (s *Store) CompleteTransfer(ctx context.Context, id string, at time.Time) (*domain.StockMovement, []domain.LocationStock, error) {
	var movement domain.StockMovement
	var rows []domain.LocationStock
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		m, err := scanMovement(tx.QueryRowContext(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}
		if m.Status != domain.TransferStatusApproved {
			return fmt.Errorf("transfer is %s: %w", m.Status, store.ErrInvalidState)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE location_stock
			SET stock_qty = stock_qty - $1, updated_at = $4
			WHERE product_id = $2 AND location_id = $3 AND stock_qty >= $1
		`, m.Quantity, m.ProductID, m.FromLocationID, at)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err != nil {
			return err
		} else if affected == 0 {
			return insufficientStock(ctx, tx, domain.TransactionItem{ProductID: m.ProductID, Quantity: m.Quantity}, m.FromLocationID)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO location_stock (product_id, location_id, stock_qty, reorder_level, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (product_id, location_id) DO UPDATE
			SET stock_qty = location_stock.stock_qty + EXCLUDED.stock_qty, updated_at = EXCLUDED.updated_at
		`, m.ProductID, m.ToLocationID, m.Quantity, domain.DefaultReorderLevel, at); err != nil {
			return err
		}

		m, err = scanMovement(tx.QueryRowContext(ctx, `
			UPDATE stock_movements
			SET status = $2, completed_at = $3
			WHERE id = $1 AND status = $4
			RETURNING `+movementColumns,
			id, domain.TransferStatusCompleted, at, domain.TransferStatusApproved))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return transitionError(ctx, tx, "stock_movements", "transfer", id)
			}
			return err
		}

		source, err := getLocationStock(ctx, tx, m.ProductID, m.FromLocationID)
		if err != nil {
			return err
		}
		dest, err := getLocationStock(ctx, tx, m.ProductID, m.ToLocationID)
		if err != nil {
			return err
		}
		movement = m
		rows = []domain.LocationStock{*source, *dest}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &movement, rows, nil
}

func (s *Store) CancelTransfer(ctx context.Context, id string, at time.Time) (*domain.StockMovement, error) {
	m, err := scanMovement(s.db.QueryRowContext(ctx, `
		UPDATE stock_movements
		SET status = $2, cancelled_at = $3
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING `+movementColumns,
		id, domain.TransferStatusCancelled, at, domain.TransferStatusPending, domain.TransferStatusApproved))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transitionError(ctx, s.db, "stock_movements", "transfer", id)
		}
		return nil, err
	}
	return &m, nil
}
