package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if _, err := s.authorize(ctx, domain.PermViewCatalog); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.authorize(ctx, domain.PermManageInventory); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, invalidInput("sku and name are required")
	}
	if req.UnitPrice.IsNegative() || req.InitialStock < 0 || req.ReorderLevel < 0 {
		return domain.Product{}, invalidInput("price, stock and reorder level must not be negative")
	}
	if req.ReorderLevel == 0 {
		req.ReorderLevel = domain.DefaultReorderLevel
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:           xid.New("prd"),
		SKU:          req.SKU,
		Name:         req.Name,
		Category:     req.Category,
		UnitPrice:    req.UnitPrice,
		StockQty:     req.InitialStock,
		ReorderLevel: req.ReorderLevel,
		Active:       true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,price=%s,stock=%d", created.SKU, created.UnitPrice.StringFixed(2), created.StockQty))
	return *created, nil
}

// UpdateProduct overwrites only the fields present in req. An explicit
// stock_qty is a manual recount of global stock and is written under the
// product's global stock lock.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := s.authorize(ctx, domain.PermManageInventory); err != nil {
		return domain.Product{}, err
	}
	id = strings.TrimSpace(id)

	changes := store.ProductChanges{
		UnitPrice:    req.UnitPrice,
		StockQty:     req.StockQty,
		ReorderLevel: req.ReorderLevel,
		Active:       req.Active,
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, invalidInput("name must not be empty")
		}
		changes.Name = &name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		changes.Category = &category
	}
	if req.UnitPrice != nil && req.UnitPrice.IsNegative() {
		return domain.Product{}, invalidInput("price must not be negative")
	}
	if req.StockQty != nil && *req.StockQty < 0 {
		return domain.Product{}, invalidInput("stock must not be negative")
	}
	if req.ReorderLevel != nil && *req.ReorderLevel < 0 {
		return domain.Product{}, invalidInput("reorder level must not be negative")
	}

	if req.StockQty != nil {
		release, err := s.lockStock(ctx, "", id)
		if err != nil {
			return domain.Product{}, err
		}
		defer release(context.WithoutCancel(ctx))
	}

	saved, err := s.repo.UpdateProduct(ctx, id, changes)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%s,stock=%d", saved.Active, saved.UnitPrice.StringFixed(2), saved.StockQty))
	s.reorder.Invalidate(ctx, s.stockedLocations(ctx, saved.ID)...)
	return *saved, nil
}

// stockedLocations lists the locations holding a stock row for productID.
func (s *Service) stockedLocations(ctx context.Context, productID string) []string {
	rows, err := s.repo.ListLocationStock(ctx, "")
	if err != nil {
		log.Warn().Err(err).Str("product_id", productID).Msg("failed to list stock rows for cache invalidation")
		return nil
	}
	locations := make([]string, 0, 4)
	for _, row := range rows {
		if row.ProductID == productID {
			locations = append(locations, row.LocationID)
		}
	}
	return locations
}

func (s *Service) ListLocations(ctx context.Context) ([]domain.Location, error) {
	if _, err := s.authorize(ctx, domain.PermViewCatalog); err != nil {
		return nil, err
	}
	return s.repo.ListLocations(ctx)
}

func (s *Service) CreateLocation(ctx context.Context, req domain.LocationCreateRequest) (domain.Location, error) {
	if _, err := s.authorize(ctx, domain.PermManageInventory); err != nil {
		return domain.Location{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Location{}, invalidInput("location name is required")
	}

	created, err := s.repo.CreateLocation(ctx, domain.Location{
		ID:        xid.New("loc"),
		Name:      req.Name,
		State:     strings.TrimSpace(req.State),
		Address:   strings.TrimSpace(req.Address),
		Active:    true,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Location{}, err
	}
	s.logAudit(ctx, "location_create", "location", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateLocation(ctx context.Context, id string, req domain.LocationUpdateRequest) (domain.Location, error) {
	if _, err := s.authorize(ctx, domain.PermManageInventory); err != nil {
		return domain.Location{}, err
	}
	existing, err := s.repo.GetLocation(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Location{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
		if updated.Name == "" {
			return domain.Location{}, invalidInput("location name must not be empty")
		}
	}
	if req.State != nil {
		updated.State = strings.TrimSpace(*req.State)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateLocation(ctx, updated)
	if err != nil {
		return domain.Location{}, err
	}
	s.logAudit(ctx, "location_update", "location", saved.ID, fmt.Sprintf("active=%t", saved.Active))
	return *saved, nil
}

// SetLocationStock overwrites the quantity and/or reorder level of one row,
// creating it when absent.
func (s *Service) SetLocationStock(ctx context.Context, req domain.LocationStockUpdateRequest) (domain.LocationStock, error) {
	if _, err := s.authorize(ctx, domain.PermManageInventory); err != nil {
		return domain.LocationStock{}, err
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.LocationID = strings.TrimSpace(req.LocationID)
	if req.ProductID == "" || req.LocationID == "" {
		return domain.LocationStock{}, invalidInput("product and location are required")
	}
	if req.StockQty == nil && req.ReorderLevel == nil {
		return domain.LocationStock{}, invalidInput("nothing to update")
	}

	release, err := s.lockStock(ctx, req.LocationID, req.ProductID)
	if err != nil {
		return domain.LocationStock{}, err
	}
	defer release(context.WithoutCancel(ctx))

	row, err := s.repo.UpsertLocationStock(ctx, req.ProductID, req.LocationID, req.StockQty, req.ReorderLevel)
	if err != nil {
		return domain.LocationStock{}, err
	}
	s.logAudit(ctx, "location_stock_set", "location_stock", row.ProductID+"@"+row.LocationID, fmt.Sprintf("stock=%d,reorder=%d", row.StockQty, row.ReorderLevel))
	s.afterStockChange(ctx, *row)
	return *row, nil
}

func (s *Service) ListLocationStock(ctx context.Context, locationID string) ([]domain.LocationStock, error) {
	if _, err := s.authorize(ctx, domain.PermViewCatalog); err != nil {
		return nil, err
	}
	return s.repo.ListLocationStock(ctx, strings.TrimSpace(locationID))
}

func (s *Service) LowStock(ctx context.Context, locationID string) ([]domain.LocationStock, error) {
	if _, err := s.authorize(ctx, domain.PermManageInventory); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListLocationStock(ctx, strings.TrimSpace(locationID))
	if err != nil {
		return nil, err
	}
	low := make([]domain.LocationStock, 0, len(rows))
	for _, row := range rows {
		if row.IsLow() {
			low = append(low, row)
		}
	}
	return low, nil
}

func (s *Service) ReorderSuggestions(ctx context.Context, locationID string) (domain.ReorderSuggestionResponse, error) {
	if _, err := s.authorize(ctx, domain.PermManageInventory); err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}
	locationID = strings.TrimSpace(locationID)

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}
	byID := make(map[string]domain.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}
	return s.reorder.Suggest(ctx, locationID, byID, func(ctx context.Context) ([]domain.LocationStock, error) {
		return s.repo.ListLocationStock(ctx, locationID)
	})
}

func (s *Service) ListStockAlerts(ctx context.Context, limit int) ([]domain.StockAlert, error) {
	if _, err := s.authorize(ctx, domain.PermManageInventory); err != nil {
		return nil, err
	}
	return s.repo.ListStockAlerts(ctx, clampLimit(limit))
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := s.authorize(ctx, domain.PermRecordTransaction); err != nil {
		return domain.Customer{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, invalidInput("customer name is required")
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cus"),
		Name:      req.Name,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if _, err := s.authorize(ctx, domain.PermViewTransactions); err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, clampLimit(limit))
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	if _, err := s.authorize(ctx, domain.PermViewDashboard); err != nil {
		return domain.Dashboard{}, err
	}
	now := s.now()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.GetDashboard(ctx, since)
}

// ListAuditLogs returns entries for one UTC day (YYYY-MM-DD, today when
// empty).
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.authorize(ctx, domain.PermViewAudit); err != nil {
		return nil, err
	}
	day := s.now()
	if date = strings.TrimSpace(date); date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, invalidInput("date must be YYYY-MM-DD")
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	if limit < 1 || limit > 1000 {
		limit = 200
	}
	return s.repo.ListAuditLogs(ctx, from, from.Add(24*time.Hour), limit)
}
