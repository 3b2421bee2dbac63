package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/xid"
)

// maxTxAttempts bounds retries of serializable transactions that lose a
// write conflict.
const maxTxAttempts = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a serializable transaction and commits it. Serialization
// failures are retried with a fresh transaction.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		log.Debug().Int("attempt", attempt).Err(err).Msg("retrying serializable transaction")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*20) * time.Millisecond):
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const productColumns = `id, sku, name, category, unit_price, stock_qty, reorder_level, active, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.UnitPrice, &p.StockQty, &p.ReorderLevel, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.SKU == "" || product.Name == "" || product.StockQty < 0 {
		return nil, store.ErrInvalidInput
	}

	now := time.Now().UTC()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.SKU, product.Name, product.Category, product.UnitPrice, product.StockQty, product.ReorderLevel, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrConflict)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

// UpdateProduct writes only the supplied columns. Omitted columns, stock
// included, keep the value the row holds when the UPDATE runs, so a
// concurrent sale's decrement is never overwritten.
func (s *Store) UpdateProduct(ctx context.Context, id string, changes store.ProductChanges) (*domain.Product, error) {
	if (changes.Name != nil && *changes.Name == "") ||
		(changes.StockQty != nil && *changes.StockQty < 0) ||
		(changes.ReorderLevel != nil && *changes.ReorderLevel < 0) ||
		(changes.UnitPrice != nil && changes.UnitPrice.IsNegative()) {
		return nil, store.ErrInvalidInput
	}

	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = COALESCE($2, name),
		    category = COALESCE($3, category),
		    unit_price = COALESCE($4, unit_price),
		    stock_qty = COALESCE($5, stock_qty),
		    reorder_level = COALESCE($6, reorder_level),
		    active = COALESCE($7, active),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		id, changes.Name, changes.Category, nullDecimal(changes.UnitPrice), nullInt(changes.StockQty), nullInt(changes.ReorderLevel), changes.Active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

const locationColumns = `id, name, state, address, active, created_at`

func scanLocation(row rowScanner) (domain.Location, error) {
	var loc domain.Location
	err := row.Scan(&loc.ID, &loc.Name, &loc.State, &loc.Address, &loc.Active, &loc.CreatedAt)
	loc.CreatedAt = loc.CreatedAt.UTC()
	return loc, err
}

func (s *Store) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, 16)
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func (s *Store) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	loc, err := scanLocation(s.db.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &loc, nil
}

func (s *Store) CreateLocation(ctx context.Context, location domain.Location) (*domain.Location, error) {
	if location.ID == "" || location.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now().UTC()
	}
	location.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (`+locationColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
	`, location.ID, location.Name, location.State, location.Address, location.Active, location.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := location
	return &created, nil
}

func (s *Store) UpdateLocation(ctx context.Context, location domain.Location) (*domain.Location, error) {
	if location.Name == "" {
		return nil, store.ErrInvalidInput
	}
	updated, err := scanLocation(s.db.QueryRowContext(ctx, `
		UPDATE locations SET name = $2, state = $3, address = $4, active = $5
		WHERE id = $1
		RETURNING `+locationColumns,
		location.ID, location.Name, location.State, location.Address, location.Active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

const locationStockSelect = `
	SELECT ls.product_id, p.name, p.sku, ls.location_id, l.name, ls.stock_qty, ls.reorder_level, ls.updated_at
	FROM location_stock ls
	JOIN products p ON p.id = ls.product_id
	JOIN locations l ON l.id = ls.location_id
`

func scanLocationStock(row rowScanner) (domain.LocationStock, error) {
	var ls domain.LocationStock
	err := row.Scan(&ls.ProductID, &ls.ProductName, &ls.SKU, &ls.LocationID, &ls.LocationName, &ls.StockQty, &ls.ReorderLevel, &ls.UpdatedAt)
	ls.UpdatedAt = ls.UpdatedAt.UTC()
	return ls, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getLocationStock(ctx context.Context, q queryRower, productID string, locationID string) (*domain.LocationStock, error) {
	ls, err := scanLocationStock(q.QueryRowContext(ctx, locationStockSelect+`
		WHERE ls.product_id = $1 AND ls.location_id = $2
	`, productID, locationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &ls, nil
}

func (s *Store) GetLocationStock(ctx context.Context, productID string, locationID string) (*domain.LocationStock, error) {
	return getLocationStock(ctx, s.db, productID, locationID)
}

func (s *Store) ListLocationStock(ctx context.Context, locationID string) ([]domain.LocationStock, error) {
	rows, err := s.db.QueryContext(ctx, locationStockSelect+`
		WHERE ($1 = '' OR ls.location_id = $1)
		ORDER BY l.name, p.name
	`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.LocationStock, 0, 64)
	for rows.Next() {
		ls, err := scanLocationStock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ls)
	}
	return result, rows.Err()
}

func (s *Store) UpsertLocationStock(ctx context.Context, productID string, locationID string, stockQty *int, reorderLevel *int) (*domain.LocationStock, error) {
	if (stockQty != nil && *stockQty < 0) || (reorderLevel != nil && *reorderLevel < 0) {
		return nil, store.ErrInvalidInput
	}

	var result *domain.LocationStock
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureExists(ctx, tx, "products", productID); err != nil {
			return err
		}
		if err := ensureExists(ctx, tx, "locations", locationID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO location_stock (product_id, location_id, stock_qty, reorder_level, updated_at)
			VALUES ($1, $2, COALESCE($3, 0), COALESCE($4, $5), now())
			ON CONFLICT (product_id, location_id) DO UPDATE
			SET stock_qty = COALESCE($3, location_stock.stock_qty),
				reorder_level = COALESCE($4, location_stock.reorder_level),
				updated_at = now()
		`, productID, locationID, nullInt(stockQty), nullInt(reorderLevel), domain.DefaultReorderLevel)
		if err != nil {
			return err
		}
		result, err = getLocationStock(ctx, tx, productID, locationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, created_at) VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Email), nullIfEmpty(customer.Phone), customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	var email, phone sql.NullString
	err := row.Scan(&c.ID, &c.Name, &email, &phone, &c.CreatedAt)
	c.Email = email.String
	c.Phone = phone.String
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT id, name, email, phone, created_at FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, created_at FROM customers ORDER BY name LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) CreateStockAlert(ctx context.Context, alert domain.StockAlert) error {
	if alert.ID == "" {
		alert.ID = xid.New("alert")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_alerts (id, product_id, location_id, stock_qty, reorder_level, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, alert.ID, alert.ProductID, alert.LocationID, alert.StockQty, alert.ReorderLevel, alert.CreatedAt)
	return err
}

func (s *Store) ListStockAlerts(ctx context.Context, limit int) ([]domain.StockAlert, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, location_id, stock_qty, reorder_level, created_at
		FROM stock_alerts
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]domain.StockAlert, 0, limit)
	for rows.Next() {
		var a domain.StockAlert
		if err := rows.Scan(&a.ID, &a.ProductID, &a.LocationID, &a.StockQty, &a.ReorderLevel, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Store) GetDashboard(ctx context.Context, since time.Time) (domain.Dashboard, error) {
	var dash domain.Dashboard
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products WHERE active = true),
			(SELECT COUNT(*) FROM locations),
			(SELECT COUNT(*) FROM customers),
			(SELECT COUNT(*) FROM transactions
				WHERE created_at >= $1 AND transaction_type <> 'quote' AND status <> 'cancelled'),
			(SELECT COALESCE(SUM(total_amount), 0) FROM transactions
				WHERE created_at >= $1 AND transaction_type <> 'quote' AND status <> 'cancelled'),
			(SELECT COUNT(*) FROM stock_movements WHERE status = 'pending'),
			(SELECT COUNT(*) FROM location_stock WHERE stock_qty <= reorder_level),
			(SELECT COUNT(*) FROM loyalty_accounts)
	`, since).Scan(
		&dash.Products,
		&dash.Locations,
		&dash.Customers,
		&dash.TransactionsToday,
		&dash.RevenueToday,
		&dash.PendingTransfers,
		&dash.LowStockItems,
		&dash.LoyaltyMembers,
	)
	return dash, err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, customer_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,$5,now())
	`, user.Username, user.Password, string(user.Role), nullIfEmpty(user.CustomerID), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, customer_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var role string
		var customerID sql.NullString
		if err := rows.Scan(&user.Username, &user.Password, &role, &customerID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.Role = domain.Role(role)
		user.CustomerID = customerID.String
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func ensureExists(ctx context.Context, tx *sql.Tx, table string, id string) error {
	var found bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&found)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s %s: %w", strings.TrimSuffix(table, "s"), id, store.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}
