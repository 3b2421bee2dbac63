package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/xid"
)

const loyaltyAccountColumns = `id, customer_id, points_balance, lifetime_points, tier, created_at, updated_at`

func scanLoyaltyAccount(row rowScanner) (domain.LoyaltyAccount, error) {
	var a domain.LoyaltyAccount
	var tier string
	err := row.Scan(&a.ID, &a.CustomerID, &a.PointsBalance, &a.LifetimePoints, &tier, &a.CreatedAt, &a.UpdatedAt)
	a.Tier = domain.LoyaltyTier(tier)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, err
}

func (s *Store) GetLoyaltyAccount(ctx context.Context, customerID string) (*domain.LoyaltyAccount, error) {
	a, err := scanLoyaltyAccount(s.db.QueryRowContext(ctx, `
		SELECT `+loyaltyAccountColumns+` FROM loyalty_accounts WHERE customer_id = $1
	`, customerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListLoyaltyTransactions(ctx context.Context, accountID string, limit int) ([]domain.LoyaltyTransaction, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, loyalty_account_id, type, points, reference_id, note, created_at
		FROM loyalty_transactions
		WHERE loyalty_account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ledger := make([]domain.LoyaltyTransaction, 0, limit)
	for rows.Next() {
		var entry domain.LoyaltyTransaction
		var reference sql.NullString
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Type, &entry.Points, &reference, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ReferenceID = reference.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		ledger = append(ledger, entry)
	}
	return ledger, rows.Err()
}

func (s *Store) ApplyLoyaltyEntry(ctx context.Context, customerID string, entry domain.LoyaltyTransaction) (*domain.LoyaltyAccount, error) {
	var account domain.LoyaltyAccount
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureExists(ctx, tx, "customers", customerID); err != nil {
			return err
		}
		var err error
		account, err = applyLoyalty(ctx, tx, customerID, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// applyLoyalty opens the account on first credit and moves the balance with a
// conditional UPDATE so a debit can never overdraw it.
func applyLoyalty(ctx context.Context, tx *sql.Tx, customerID string, entry domain.LoyaltyTransaction) (domain.LoyaltyAccount, error) {
	if entry.Points == 0 {
		return domain.LoyaltyAccount{}, store.ErrInvalidInput
	}
	cfg, err := loadLoyaltyConfig(ctx, tx)
	if err != nil {
		return domain.LoyaltyAccount{}, err
	}

	if entry.Points > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO loyalty_accounts (id, customer_id, points_balance, lifetime_points, tier, created_at, updated_at)
			VALUES ($1, $2, 0, 0, $3, now(), now())
			ON CONFLICT (customer_id) DO NOTHING
		`, xid.New("loy"), customerID, string(domain.TierBronze)); err != nil {
			return domain.LoyaltyAccount{}, err
		}
	}

	account, err := scanLoyaltyAccount(tx.QueryRowContext(ctx, `
		UPDATE loyalty_accounts
		SET points_balance = points_balance + $2,
			lifetime_points = lifetime_points + GREATEST($2, 0),
			updated_at = now()
		WHERE customer_id = $1 AND points_balance + $2 >= 0
		RETURNING `+loyaltyAccountColumns,
		customerID, entry.Points))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LoyaltyAccount{}, store.ErrInsufficientPoints
		}
		return domain.LoyaltyAccount{}, err
	}

	if tier := cfg.TierFor(account.LifetimePoints); tier != account.Tier {
		if _, err := tx.ExecContext(ctx, `UPDATE loyalty_accounts SET tier = $2 WHERE id = $1`, account.ID, string(tier)); err != nil {
			return domain.LoyaltyAccount{}, err
		}
		account.Tier = tier
	}

	if entry.ID == "" {
		entry.ID = xid.New("lt")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_transactions (id, loyalty_account_id, type, points, reference_id, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, account.ID, entry.Type, entry.Points, nullIfEmpty(entry.ReferenceID), entry.Note, entry.CreatedAt); err != nil {
		return domain.LoyaltyAccount{}, err
	}
	return account, nil
}

func (s *Store) GetLoyaltyStats(ctx context.Context) (domain.LoyaltyStats, error) {
	var stats domain.LoyaltyStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(points) FROM loyalty_transactions WHERE points > 0), 0),
			(SELECT COUNT(*) FROM loyalty_transactions WHERE type = $1),
			(SELECT COUNT(*) FROM loyalty_accounts)
	`, domain.LoyaltyEntryRedemption).Scan(&stats.TotalPointsDistributed, &stats.RewardsRedeemed, &stats.ActiveMembers)
	return stats, err
}

func loadLoyaltyConfig(ctx context.Context, q queryRower) (domain.LoyaltyConfig, error) {
	var cfg domain.LoyaltyConfig
	err := q.QueryRowContext(ctx, `
		SELECT points_divisor, silver_threshold, gold_threshold, platinum_threshold, updated_at
		FROM loyalty_config
		WHERE id = 1
	`).Scan(&cfg.PointsDivisor, &cfg.SilverThreshold, &cfg.GoldThreshold, &cfg.PlatinumThreshold, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultLoyaltyConfig(), nil
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return cfg, err
}

func (s *Store) GetLoyaltyConfig(ctx context.Context) (domain.LoyaltyConfig, error) {
	return loadLoyaltyConfig(ctx, s.db)
}

func (s *Store) UpdateLoyaltyConfig(ctx context.Context, cfg domain.LoyaltyConfig) (domain.LoyaltyConfig, error) {
	if cfg.PointsDivisor < 1 || cfg.SilverThreshold < 0 || cfg.GoldThreshold <= cfg.SilverThreshold || cfg.PlatinumThreshold <= cfg.GoldThreshold {
		return domain.LoyaltyConfig{}, store.ErrInvalidInput
	}
	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loyalty_config (id, points_divisor, silver_threshold, gold_threshold, platinum_threshold, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET points_divisor = EXCLUDED.points_divisor,
			silver_threshold = EXCLUDED.silver_threshold,
			gold_threshold = EXCLUDED.gold_threshold,
			platinum_threshold = EXCLUDED.platinum_threshold,
			updated_at = EXCLUDED.updated_at
	`, cfg.PointsDivisor, cfg.SilverThreshold, cfg.GoldThreshold, cfg.PlatinumThreshold, cfg.UpdatedAt)
	if err != nil {
		return domain.LoyaltyConfig{}, err
	}
	return cfg, nil
}

func (s *Store) CreateReward(ctx context.Context, reward domain.Reward) (*domain.Reward, error) {
	if reward.ID == "" || reward.Name == "" || reward.PointsCost < 1 {
		return nil, store.ErrInvalidInput
	}
	if reward.CreatedAt.IsZero() {
		reward.CreatedAt = time.Now().UTC()
	}
	reward.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rewards (id, name, description, points_cost, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, reward.ID, reward.Name, reward.Description, reward.PointsCost, reward.Active, reward.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("reward %s: %w", reward.ID, store.ErrConflict)
		}
		return nil, err
	}
	created := reward
	return &created, nil
}

func scanReward(row rowScanner) (domain.Reward, error) {
	var r domain.Reward
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.PointsCost, &r.Active, &r.CreatedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, err
}

func (s *Store) GetReward(ctx context.Context, id string) (*domain.Reward, error) {
	r, err := scanReward(s.db.QueryRowContext(ctx, `
		SELECT id, name, description, points_cost, active, created_at FROM rewards WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRewards(ctx context.Context, activeOnly bool) ([]domain.Reward, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, points_cost, active, created_at
		FROM rewards
		WHERE ($1 = false OR active = true)
		ORDER BY points_cost, name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rewards := make([]domain.Reward, 0, 16)
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}
