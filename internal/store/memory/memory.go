package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/xid"
)

type stockKey struct {
	productID  string
	locationID string
}

type Store struct {
	mu                sync.RWMutex
	products          map[string]domain.Product
	locations         map[string]domain.Location
	locationStock     map[stockKey]domain.LocationStock
	customers         map[string]domain.Customer
	transactionsByID  map[string]*domain.Transaction
	invoiceSeq        int
	transfersByID     map[string]domain.StockMovement
	suppliersByID     map[string]domain.Supplier
	purchaseOrderByID map[string]domain.PurchaseOrder
	returnsByID       map[string]domain.Return
	loyaltyAccounts   map[string]domain.LoyaltyAccount
	loyaltyLedger     []domain.LoyaltyTransaction
	loyaltyConfig     domain.LoyaltyConfig
	rewardsByID       map[string]domain.Reward
	stockAlerts       []domain.StockAlert
	auditLogs         []domain.AuditLog
	usersByUsername   map[string]domain.UserAccount
	carts             map[string]cartRecord
	ordersByID        map[string]domain.CustomerOrder
	conversationsByID map[string]domain.Conversation
	messages          []domain.Message
	invoicesByID      map[string]domain.Invoice
}

func New() *Store {
	return &Store{
		products:          make(map[string]domain.Product),
		locations:         make(map[string]domain.Location),
		locationStock:     make(map[stockKey]domain.LocationStock),
		customers:         make(map[string]domain.Customer),
		transactionsByID:  make(map[string]*domain.Transaction),
		transfersByID:     make(map[string]domain.StockMovement),
		suppliersByID:     make(map[string]domain.Supplier),
		purchaseOrderByID: make(map[string]domain.PurchaseOrder),
		returnsByID:       make(map[string]domain.Return),
		loyaltyAccounts:   make(map[string]domain.LoyaltyAccount),
		loyaltyLedger:     make([]domain.LoyaltyTransaction, 0, 64),
		loyaltyConfig:     domain.DefaultLoyaltyConfig(),
		rewardsByID:       make(map[string]domain.Reward),
		stockAlerts:       make([]domain.StockAlert, 0, 16),
		auditLogs:         make([]domain.AuditLog, 0, 128),
		usersByUsername:   make(map[string]domain.UserAccount),
		carts:             make(map[string]cartRecord),
		ordersByID:        make(map[string]domain.CustomerOrder),
		conversationsByID: make(map[string]domain.Conversation),
		messages:          make([]domain.Message, 0, 64),
		invoicesByID:      make(map[string]domain.Invoice),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; dev defaults are used with a
// warning when unset. Never used when DATABASE_URL is configured.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin12345")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff12345")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username   string
		password   string
		role       domain.Role
		customerID string
	}{
		{"admin", adminPwd, domain.RoleAdmin, ""},
		{"manager", staffPwd, domain.RoleManager, ""},
		{"agent", staffPwd, domain.RoleSalesAgent, ""},
		{"amaka", staffPwd, domain.RoleCustomer, "cus-amaka"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:   u.username,
			Password:   string(hash),
			Role:       u.role,
			CustomerID: u.customerID,
			Active:     true,
			CreatedAt:  now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with two locations, a small catalog, one loyalty
// customer and the dev user accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, loc := range []domain.Location{
		{ID: "loc-lagos", Name: "Lagos Warehouse", State: "Lagos", Address: "12 Apapa Road", Active: true},
		{ID: "loc-abuja", Name: "Abuja Branch", State: "FCT", Address: "4 Garki Close", Active: true},
	} {
		loc.CreatedAt = now
		s.locations[loc.ID] = loc
	}

	type seedProduct struct {
		product domain.Product
		lagos   int
		abuja   int
	}
	for _, seed := range []seedProduct{
		{domain.Product{ID: "prd-rice", SKU: "RICE-50KG", Name: "Rice 50kg", Category: "grains", UnitPrice: decimal.NewFromInt(100)}, 40, 5},
		{domain.Product{ID: "prd-oil", SKU: "OIL-5L", Name: "Vegetable Oil 5L", Category: "oils", UnitPrice: decimal.NewFromInt(250)}, 30, 12},
		{domain.Product{ID: "prd-sugar", SKU: "SUGAR-1KG", Name: "Sugar 1kg", Category: "grocery", UnitPrice: decimal.RequireFromString("12.50")}, 100, 20},
		{domain.Product{ID: "prd-flour", SKU: "FLOUR-10KG", Name: "Flour 10kg", Category: "grains", UnitPrice: decimal.NewFromInt(80)}, 8, 0},
	} {
		p := seed.product
		p.StockQty = seed.lagos + seed.abuja
		p.ReorderLevel = domain.DefaultReorderLevel
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.locationStock[stockKey{p.ID, "loc-lagos"}] = domain.LocationStock{ProductID: p.ID, LocationID: "loc-lagos", StockQty: seed.lagos, ReorderLevel: domain.DefaultReorderLevel, UpdatedAt: now}
		if seed.abuja > 0 {
			s.locationStock[stockKey{p.ID, "loc-abuja"}] = domain.LocationStock{ProductID: p.ID, LocationID: "loc-abuja", StockQty: seed.abuja, ReorderLevel: domain.DefaultReorderLevel, UpdatedAt: now}
		}
	}

	s.customers["cus-amaka"] = domain.Customer{ID: "cus-amaka", Name: "Amaka Obi", Email: "amaka@example.com", Phone: "+2348030000001", CreatedAt: now}
	s.customers["cus-tunde"] = domain.Customer{ID: "cus-tunde", Name: "Tunde Bello", Phone: "+2348030000002", CreatedAt: now}
	s.loyaltyAccounts["cus-amaka"] = domain.LoyaltyAccount{ID: "loy-amaka", CustomerID: "cus-amaka", Tier: domain.TierBronze, CreatedAt: now, UpdatedAt: now}

	s.suppliersByID["sup-dangote"] = domain.Supplier{ID: "sup-dangote", Name: "Dangote Foods", ContactName: "Sales Desk", Phone: "+2348030000100", CreatedAt: now}

	for _, reward := range []domain.Reward{
		{ID: "rwd-bag", Name: "Branded tote bag", PointsCost: 5, Active: true},
		{ID: "rwd-voucher", Name: "N1,000 voucher", PointsCost: 20, Active: true},
	} {
		reward.CreatedAt = now
		s.rewardsByID[reward.ID] = reward
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		if !product.Active {
			continue
		}
		products = append(products, product)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.SKU == "" || product.Name == "" || product.StockQty < 0 {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.products {
		if existing.SKU == product.SKU {
			return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrConflict)
		}
	}
	now := time.Now().UTC()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, changes store.ProductChanges) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if changes.Name != nil {
		product.Name = *changes.Name
	}
	if changes.Category != nil {
		product.Category = *changes.Category
	}
	if changes.UnitPrice != nil {
		product.UnitPrice = *changes.UnitPrice
	}
	if changes.StockQty != nil {
		product.StockQty = *changes.StockQty
	}
	if changes.ReorderLevel != nil {
		product.ReorderLevel = *changes.ReorderLevel
	}
	if changes.Active != nil {
		product.Active = *changes.Active
	}
	if product.Name == "" || product.StockQty < 0 || product.ReorderLevel < 0 || product.UnitPrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	updated := product
	return &updated, nil
}

func (s *Store) ListLocations(_ context.Context) ([]domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		result = append(result, loc)
	}
	slices.SortFunc(result, func(a, b domain.Location) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetLocation(_ context.Context, id string) (*domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &loc, nil
}

func (s *Store) CreateLocation(_ context.Context, location domain.Location) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if location.ID == "" || location.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.locations[location.ID]; exists {
		return nil, store.ErrConflict
	}
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now().UTC()
	}
	location.Active = true
	s.locations[location.ID] = location
	created := location
	return &created, nil
}

func (s *Store) UpdateLocation(_ context.Context, location domain.Location) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.locations[location.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if location.Name == "" {
		return nil, store.ErrInvalidInput
	}
	location.CreatedAt = existing.CreatedAt
	s.locations[location.ID] = location
	updated := location
	return &updated, nil
}

func (s *Store) GetLocationStock(_ context.Context, productID string, locationID string) (*domain.LocationStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.locationStock[stockKey{productID, locationID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	row = s.decorateStockLocked(row)
	return &row, nil
}

func (s *Store) ListLocationStock(_ context.Context, locationID string) ([]domain.LocationStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LocationStock, 0, len(s.locationStock))
	for key, row := range s.locationStock {
		if locationID != "" && key.locationID != locationID {
			continue
		}
		result = append(result, s.decorateStockLocked(row))
	}
	slices.SortFunc(result, func(a, b domain.LocationStock) int {
		if a.LocationName == b.LocationName {
			return cmpString(a.ProductName, b.ProductName)
		}
		return cmpString(a.LocationName, b.LocationName)
	})
	return result, nil
}

func (s *Store) UpsertLocationStock(_ context.Context, productID string, locationID string, stockQty *int, reorderLevel *int) (*domain.LocationStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	if _, ok := s.locations[locationID]; !ok {
		return nil, fmt.Errorf("location %s: %w", locationID, store.ErrNotFound)
	}
	if (stockQty != nil && *stockQty < 0) || (reorderLevel != nil && *reorderLevel < 0) {
		return nil, store.ErrInvalidInput
	}

	key := stockKey{productID, locationID}
	row, exists := s.locationStock[key]
	if !exists {
		row = domain.LocationStock{ProductID: productID, LocationID: locationID, ReorderLevel: domain.DefaultReorderLevel}
	}
	if stockQty != nil {
		row.StockQty = *stockQty
	}
	if reorderLevel != nil {
		row.ReorderLevel = *reorderLevel
	}
	row.UpdatedAt = time.Now().UTC()
	s.locationStock[key] = row
	row = s.decorateStockLocked(row)
	return &row, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrConflict
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, len(s.customers))
	for _, customer := range s.customers {
		result = append(result, customer)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateStockAlert(_ context.Context, alert domain.StockAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.ID == "" {
		alert.ID = xid.New("alert")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	s.stockAlerts = append(s.stockAlerts, alert)
	return nil
}

func (s *Store) ListStockAlerts(_ context.Context, limit int) ([]domain.StockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockAlert, 0, len(s.stockAlerts))
	for i := len(s.stockAlerts) - 1; i >= 0; i-- {
		result = append(result, s.stockAlerts[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetDashboard(_ context.Context, since time.Time) (domain.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dash := domain.Dashboard{
		Locations:      int64(len(s.locations)),
		Customers:      int64(len(s.customers)),
		LoyaltyMembers: int64(len(s.loyaltyAccounts)),
		RevenueToday:   decimal.Zero,
	}
	for _, product := range s.products {
		if product.Active {
			dash.Products++
		}
	}
	for _, tx := range s.transactionsByID {
		if tx.CreatedAt.Before(since) || tx.Type == domain.TransactionQuote || tx.Status == "cancelled" {
			continue
		}
		dash.TransactionsToday++
		dash.RevenueToday = dash.RevenueToday.Add(tx.Total)
	}
	for _, movement := range s.transfersByID {
		if movement.Status == domain.TransferStatusPending {
			dash.PendingTransfers++
		}
	}
	for _, row := range s.locationStock {
		if row.IsLow() {
			dash.LowStockItems++
		}
	}
	return dash, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) decorateStockLocked(row domain.LocationStock) domain.LocationStock {
	if product, ok := s.products[row.ProductID]; ok {
		row.ProductName = product.Name
		row.SKU = product.SKU
	}
	if loc, ok := s.locations[row.LocationID]; ok {
		row.LocationName = loc.Name
	}
	return row
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cmpNewestFirst(a time.Time, b time.Time) int {
	if a.Equal(b) {
		return 0
	}
	if a.After(b) {
		return -1
	}
	return 1
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.TransactionItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return &dup
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	items := make([]domain.PurchaseOrderItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func cloneReturn(src domain.Return) domain.Return {
	dup := src
	items := make([]domain.ReturnItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
