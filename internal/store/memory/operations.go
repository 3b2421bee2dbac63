package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"mafaconnect/backend/internal/domain"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/xid"
)

// RecordTransaction commits the header, stock settlement and loyalty credit
// under one write lock. Nothing is applied unless every line can be covered.
func (s *Store) RecordTransaction(_ context.Context, record store.SaleRecord) (*store.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := record.Transaction
	if tx.ID == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrConflict
	}
	if tx.CustomerID != "" {
		if _, ok := s.customers[tx.CustomerID]; !ok {
			return nil, fmt.Errorf("customer %s: %w", tx.CustomerID, store.ErrNotFound)
		}
	}

	result := &store.SaleResult{}
	if record.SettleStock {
		if tx.LocationID == "" {
			return nil, store.ErrInvalidInput
		}
		lines := make([]stockLine, 0, len(tx.Items))
		for _, item := range tx.Items {
			lines = append(lines, stockLine{productID: item.ProductID, qty: item.Quantity})
		}
		rows, err := s.settleStockLocked(tx.LocationID, lines)
		if err != nil {
			return nil, err
		}
		result.Stock = rows
	}

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.PointsEarned = 0
	if record.LoyaltyPoints > 0 && tx.CustomerID != "" {
		account, err := s.applyLoyaltyLocked(tx.CustomerID, domain.LoyaltyTransaction{
			Type:        domain.LoyaltyEntryEarn,
			Points:      record.LoyaltyPoints,
			ReferenceID: tx.ID,
			Note:        record.LoyaltyNote,
			CreatedAt:   tx.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
		tx.PointsEarned = record.LoyaltyPoints
		result.Loyalty = &account
	}

	stored := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = stored
	result.Transaction = cloneTransaction(stored)
	return result, nil
}

type stockLine struct {
	productID string
	qty       int
}

// settleStockLocked takes every line out of location and global stock, or
// nothing at all. Repeated products are counted together. Callers hold s.mu.
func (s *Store) settleStockLocked(locationID string, lines []stockLine) ([]domain.LocationStock, error) {
	workingLocation := map[stockKey]domain.LocationStock{}
	workingGlobal := map[string]int{}
	for _, line := range lines {
		product, ok := s.products[line.productID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", line.productID, store.ErrNotFound)
		}
		key := stockKey{line.productID, locationID}
		row, seen := workingLocation[key]
		if !seen {
			row = s.locationStock[key]
			row.ProductID, row.LocationID = line.productID, locationID
		}
		if row.StockQty < line.qty {
			return nil, &store.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				LocationID:  locationID,
				Available:   row.StockQty,
				Required:    line.qty,
			}
		}
		global, seenGlobal := workingGlobal[line.productID]
		if !seenGlobal {
			global = product.StockQty
		}
		if global < line.qty {
			return nil, &store.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   global,
				Required:    line.qty,
			}
		}
		row.StockQty -= line.qty
		workingLocation[key] = row
		workingGlobal[line.productID] = global - line.qty
	}

	now := time.Now().UTC()
	rows := make([]domain.LocationStock, 0, len(workingLocation))
	for key, row := range workingLocation {
		row.UpdatedAt = now
		s.locationStock[key] = row
		rows = append(rows, s.decorateStockLocked(row))
	}
	for productID, qty := range workingGlobal {
		product := s.products[productID]
		product.StockQty = qty
		product.UpdatedAt = now
		s.products[productID] = product
	}
	slices.SortFunc(rows, func(a, b domain.LocationStock) int {
		return cmpString(a.ProductID, b.ProductID)
	})
	return rows, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.LocationID != "" && tx.LocationID != filter.LocationID {
			continue
		}
		if filter.CustomerID != "" && tx.CustomerID != filter.CustomerID {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if c := cmpNewestFirst(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpdateTransactionStatus(_ context.Context, id string, status string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	tx.Status = status
	return cloneTransaction(tx), nil
}

func (s *Store) NextInvoiceNumber(_ context.Context, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoiceSeq++
	return fmt.Sprintf("INV-%s-%05d", at.UTC().Format("20060102"), s.invoiceSeq), nil
}

func (s *Store) CreateTransfer(_ context.Context, movement domain.StockMovement) (*domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.ID == "" || movement.Quantity <= 0 || movement.FromLocationID == movement.ToLocationID {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.products[movement.ProductID]; !ok {
		return nil, fmt.Errorf("product %s: %w", movement.ProductID, store.ErrNotFound)
	}
	for _, locationID := range []string{movement.FromLocationID, movement.ToLocationID} {
		if _, ok := s.locations[locationID]; !ok {
			return nil, fmt.Errorf("location %s: %w", locationID, store.ErrNotFound)
		}
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	movement.MovementType = domain.MovementTypeTransfer
	movement.Status = domain.TransferStatusPending
	s.transfersByID[movement.ID] = movement
	created := movement
	return &created, nil
}

func (s *Store) GetTransfer(_ context.Context, id string) (*domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movement, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &movement, nil
}

func (s *Store) ListTransfers(_ context.Context, status string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, len(s.transfersByID))
	for _, movement := range s.transfersByID {
		if status != "" && movement.Status != status {
			continue
		}
		result = append(result, movement)
	}
	slices.SortFunc(result, func(a, b domain.StockMovement) int {
		if c := cmpNewestFirst(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ApproveTransfer(_ context.Context, id string, approvedBy string, at time.Time) (*domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	movement, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if movement.Status != domain.TransferStatusPending {
		return nil, fmt.Errorf("transfer is %s: %w", movement.Status, store.ErrInvalidState)
	}
	movement.Status = domain.TransferStatusApproved
	movement.ApprovedBy = approvedBy
	movement.ApprovedAt = &at
	s.transfersByID[id] = movement
	return &movement, nil
}

// CompleteTransfer moves the quantity from source to destination. The source
// must still hold enough stock; the destination row is created on demand.
func (s *Store) CompleteTransfer(_ context.Context, id string, at time.Time) (*domain.StockMovement, []domain.LocationStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	movement, ok := s.transfersByID[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if movement.Status != domain.TransferStatusApproved {
		return nil, nil, fmt.Errorf("transfer is %s: %w", movement.Status, store.ErrInvalidState)
	}

	fromKey := stockKey{movement.ProductID, movement.FromLocationID}
	source := s.locationStock[fromKey]
	if source.StockQty < movement.Quantity {
		return nil, nil, &store.InsufficientStockError{
			ProductID:   movement.ProductID,
			ProductName: s.products[movement.ProductID].Name,
			LocationID:  movement.FromLocationID,
			Available:   source.StockQty,
			Required:    movement.Quantity,
		}
	}
	source.StockQty -= movement.Quantity
	source.UpdatedAt = at
	s.locationStock[fromKey] = source

	toKey := stockKey{movement.ProductID, movement.ToLocationID}
	dest, exists := s.locationStock[toKey]
	if !exists {
		dest = domain.LocationStock{ProductID: movement.ProductID, LocationID: movement.ToLocationID, ReorderLevel: domain.DefaultReorderLevel}
	}
	dest.StockQty += movement.Quantity
	dest.UpdatedAt = at
	s.locationStock[toKey] = dest

	movement.Status = domain.TransferStatusCompleted
	movement.CompletedAt = &at
	s.transfersByID[id] = movement
	return &movement, []domain.LocationStock{s.decorateStockLocked(source), s.decorateStockLocked(dest)}, nil
}

func (s *Store) CancelTransfer(_ context.Context, id string, at time.Time) (*domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	movement, ok := s.transfersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if movement.Status != domain.TransferStatusPending && movement.Status != domain.TransferStatusApproved {
		return nil, fmt.Errorf("transfer is %s: %w", movement.Status, store.ErrInvalidState)
	}
	movement.Status = domain.TransferStatusCancelled
	movement.CancelledAt = &at
	s.transfersByID[id] = movement
	return &movement, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" || supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.suppliersByID[supplier.ID]; exists {
		return nil, store.ErrConflict
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		result = append(result, supplier)
	}
	slices.SortFunc(result, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.ID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.suppliersByID[po.SupplierID]; !ok {
		return nil, fmt.Errorf("supplier %s: %w", po.SupplierID, store.ErrNotFound)
	}
	if po.LocationID != "" {
		if _, ok := s.locations[po.LocationID]; !ok {
			return nil, fmt.Errorf("location %s: %w", po.LocationID, store.ErrNotFound)
		}
	}
	for _, item := range po.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	po.Status = domain.POStatusDraft
	stored := clonePurchaseOrder(po)
	s.purchaseOrderByID[po.ID] = stored
	created := clonePurchaseOrder(stored)
	return &created, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrderByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := clonePurchaseOrder(po)
	return &dup, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PurchaseOrder, 0, len(s.purchaseOrderByID))
	for _, po := range s.purchaseOrderByID {
		if status != "" && po.Status != status {
			continue
		}
		result = append(result, clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		if c := cmpNewestFirst(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SetPurchaseOrderStatus(_ context.Context, id string, from []string, to string) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrderByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !slices.Contains(from, po.Status) {
		return nil, fmt.Errorf("purchase order is %s: %w", po.Status, store.ErrInvalidState)
	}
	po.Status = to
	s.purchaseOrderByID[id] = po
	dup := clonePurchaseOrder(po)
	return &dup, nil
}

// ReceivePurchaseOrder books every line into stock. With a location the
// location row and the global count both grow; without one only the global
// count does.
func (s *Store) ReceivePurchaseOrder(_ context.Context, id string, locationID string, receivedBy string, at time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.purchaseOrderByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if po.Status != domain.POStatusDraft && po.Status != domain.POStatusOrdered {
		return nil, fmt.Errorf("purchase order is %s: %w", po.Status, store.ErrInvalidState)
	}
	if locationID == "" {
		locationID = po.LocationID
	}
	if locationID != "" {
		if _, ok := s.locations[locationID]; !ok {
			return nil, fmt.Errorf("location %s: %w", locationID, store.ErrNotFound)
		}
	}

	po = clonePurchaseOrder(po)
	for i, item := range po.Items {
		product, ok := s.products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		product.StockQty += item.Quantity
		product.UpdatedAt = at
		s.products[item.ProductID] = product

		if locationID != "" {
			key := stockKey{item.ProductID, locationID}
			row, exists := s.locationStock[key]
			if !exists {
				row = domain.LocationStock{ProductID: item.ProductID, LocationID: locationID, ReorderLevel: domain.DefaultReorderLevel}
			}
			row.StockQty += item.Quantity
			row.UpdatedAt = at
			s.locationStock[key] = row
		}
		po.Items[i].ReceivedQuantity = item.Quantity
	}
	po.Status = domain.POStatusReceived
	po.LocationID = locationID
	po.ReceivedBy = receivedBy
	po.ReceivedDate = &at
	s.purchaseOrderByID[id] = po
	dup := clonePurchaseOrder(po)
	return &dup, nil
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ret.ID == "" || len(ret.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if ret.TransactionID != "" {
		if _, ok := s.transactionsByID[ret.TransactionID]; !ok {
			return nil, fmt.Errorf("transaction %s: %w", ret.TransactionID, store.ErrNotFound)
		}
	}
	for _, item := range ret.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	ret.Status = domain.ReturnStatusPending
	s.returnsByID[ret.ID] = cloneReturn(ret)
	created := cloneReturn(ret)
	return &created, nil
}

func (s *Store) GetReturn(_ context.Context, id string) (*domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, ok := s.returnsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneReturn(ret)
	return &dup, nil
}

func (s *Store) ListReturns(_ context.Context, status string, limit int) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Return, 0, len(s.returnsByID))
	for _, ret := range s.returnsByID {
		if status != "" && ret.Status != status {
			continue
		}
		result = append(result, cloneReturn(ret))
	}
	slices.SortFunc(result, func(a, b domain.Return) int {
		if c := cmpNewestFirst(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ProcessReturn moves a return forward. Completed and rejected are terminal;
// restocking only happens on completion and only touches global stock.
func (s *Store) ProcessReturn(_ context.Context, id string, status string, restock bool, processedBy string, at time.Time) (*domain.Return, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret, ok := s.returnsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if ret.Status == domain.ReturnStatusCompleted || ret.Status == domain.ReturnStatusRejected {
		return nil, fmt.Errorf("return is %s: %w", ret.Status, store.ErrInvalidState)
	}

	ret = cloneReturn(ret)
	if status == domain.ReturnStatusCompleted && restock && !ret.Restocked {
		for _, item := range ret.Items {
			product, ok := s.products[item.ProductID]
			if !ok {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
			}
			product.StockQty += item.Quantity
			product.UpdatedAt = at
			s.products[item.ProductID] = product
		}
		ret.Restocked = true
	}
	ret.Status = status
	ret.ProcessedBy = processedBy
	ret.ProcessedAt = &at
	s.returnsByID[id] = ret
	dup := cloneReturn(ret)
	return &dup, nil
}

func (s *Store) GetLoyaltyAccount(_ context.Context, customerID string) (*domain.LoyaltyAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.loyaltyAccounts[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &account, nil
}

func (s *Store) ListLoyaltyTransactions(_ context.Context, accountID string, limit int) ([]domain.LoyaltyTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LoyaltyTransaction, 0, 16)
	for i := len(s.loyaltyLedger) - 1; i >= 0; i-- {
		entry := s.loyaltyLedger[i]
		if entry.AccountID != accountID {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) ApplyLoyaltyEntry(_ context.Context, customerID string, entry domain.LoyaltyTransaction) (*domain.LoyaltyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[customerID]; !ok {
		return nil, fmt.Errorf("customer %s: %w", customerID, store.ErrNotFound)
	}
	account, err := s.applyLoyaltyLocked(customerID, entry)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// applyLoyaltyLocked opens the account on first credit, rejects debits that
// would overdraw it and recomputes the tier from lifetime points.
func (s *Store) applyLoyaltyLocked(customerID string, entry domain.LoyaltyTransaction) (domain.LoyaltyAccount, error) {
	if entry.Points == 0 {
		return domain.LoyaltyAccount{}, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	account, ok := s.loyaltyAccounts[customerID]
	if !ok {
		if entry.Points < 0 {
			return domain.LoyaltyAccount{}, store.ErrInsufficientPoints
		}
		account = domain.LoyaltyAccount{
			ID:         xid.New("loy"),
			CustomerID: customerID,
			Tier:       domain.TierBronze,
			CreatedAt:  now,
		}
	}
	if account.PointsBalance+entry.Points < 0 {
		return domain.LoyaltyAccount{}, store.ErrInsufficientPoints
	}
	account.PointsBalance += entry.Points
	if entry.Points > 0 {
		account.LifetimePoints += entry.Points
	}
	account.Tier = s.loyaltyConfig.TierFor(account.LifetimePoints)
	account.UpdatedAt = now
	s.loyaltyAccounts[customerID] = account

	if entry.ID == "" {
		entry.ID = xid.New("lt")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.AccountID = account.ID
	s.loyaltyLedger = append(s.loyaltyLedger, entry)
	return account, nil
}

func (s *Store) GetLoyaltyStats(_ context.Context) (domain.LoyaltyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.LoyaltyStats
	for _, entry := range s.loyaltyLedger {
		if entry.Points > 0 {
			stats.TotalPointsDistributed += int64(entry.Points)
		}
		if entry.Type == domain.LoyaltyEntryRedemption {
			stats.RewardsRedeemed++
		}
	}
	stats.ActiveMembers = int64(len(s.loyaltyAccounts))
	return stats, nil
}

func (s *Store) GetLoyaltyConfig(_ context.Context) (domain.LoyaltyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loyaltyConfig, nil
}

func (s *Store) UpdateLoyaltyConfig(_ context.Context, cfg domain.LoyaltyConfig) (domain.LoyaltyConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.PointsDivisor < 1 || cfg.SilverThreshold < 0 || cfg.GoldThreshold <= cfg.SilverThreshold || cfg.PlatinumThreshold <= cfg.GoldThreshold {
		return domain.LoyaltyConfig{}, store.ErrInvalidInput
	}
	cfg.UpdatedAt = time.Now().UTC()
	s.loyaltyConfig = cfg
	return cfg, nil
}

func (s *Store) CreateReward(_ context.Context, reward domain.Reward) (*domain.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reward.ID == "" || reward.Name == "" || reward.PointsCost < 1 {
		return nil, store.ErrInvalidInput
	}
	if reward.CreatedAt.IsZero() {
		reward.CreatedAt = time.Now().UTC()
	}
	reward.Active = true
	s.rewardsByID[reward.ID] = reward
	created := reward
	return &created, nil
}

func (s *Store) GetReward(_ context.Context, id string) (*domain.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reward, ok := s.rewardsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &reward, nil
}

func (s *Store) ListRewards(_ context.Context, activeOnly bool) ([]domain.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Reward, 0, len(s.rewardsByID))
	for _, reward := range s.rewardsByID {
		if activeOnly && !reward.Active {
			continue
		}
		result = append(result, reward)
	}
	slices.SortFunc(result, func(a, b domain.Reward) int {
		if a.PointsCost != b.PointsCost {
			return a.PointsCost - b.PointsCost
		}
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}
