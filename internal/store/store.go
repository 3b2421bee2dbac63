package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mafaconnect/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrConflict           = errors.New("already exists")
)

// InsufficientStockError reports the first line that could not be covered.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	LocationID  string
	Available   int
	Required    int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, required %d", name, e.Available, e.Required)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// SaleRecord is everything RecordTransaction commits as one unit.
type SaleRecord struct {
	Transaction domain.Transaction
	// SettleStock decrements location and global stock per line.
	SettleStock bool
	// LoyaltyPoints are credited to the customer's account when > 0.
	LoyaltyPoints int
	LoyaltyNote   string
}

type SaleResult struct {
	Transaction *domain.Transaction
	// Stock holds the post-settlement location rows touched by the sale.
	Stock   []domain.LocationStock
	Loyalty *domain.LoyaltyAccount
}

// ProductChanges names the product columns an update overwrites. Nil fields
// keep whatever the row holds at write time.
type ProductChanges struct {
	Name         *string
	Category     *string
	UnitPrice    *decimal.Decimal
	StockQty     *int
	ReorderLevel *int
	Active       *bool
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, changes ProductChanges) (*domain.Product, error)

	ListLocations(ctx context.Context) ([]domain.Location, error)
	GetLocation(ctx context.Context, id string) (*domain.Location, error)
	CreateLocation(ctx context.Context, location domain.Location) (*domain.Location, error)
	UpdateLocation(ctx context.Context, location domain.Location) (*domain.Location, error)

	GetLocationStock(ctx context.Context, productID string, locationID string) (*domain.LocationStock, error)
	ListLocationStock(ctx context.Context, locationID string) ([]domain.LocationStock, error)
	UpsertLocationStock(ctx context.Context, productID string, locationID string, stockQty *int, reorderLevel *int) (*domain.LocationStock, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)

	RecordTransaction(ctx context.Context, record SaleRecord) (*SaleResult, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, status string) (*domain.Transaction, error)
	NextInvoiceNumber(ctx context.Context, at time.Time) (string, error)

	CreateTransfer(ctx context.Context, movement domain.StockMovement) (*domain.StockMovement, error)
	GetTransfer(ctx context.Context, id string) (*domain.StockMovement, error)
	ListTransfers(ctx context.Context, status string, limit int) ([]domain.StockMovement, error)
	ApproveTransfer(ctx context.Context, id string, approvedBy string, at time.Time) (*domain.StockMovement, error)
	CompleteTransfer(ctx context.Context, id string, at time.Time) (*domain.StockMovement, []domain.LocationStock, error)
	CancelTransfer(ctx context.Context, id string, at time.Time) (*domain.StockMovement, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error)
	SetPurchaseOrderStatus(ctx context.Context, id string, from []string, to string) (*domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, id string, locationID string, receivedBy string, at time.Time) (*domain.PurchaseOrder, error)

	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error)
	GetReturn(ctx context.Context, id string) (*domain.Return, error)
	ListReturns(ctx context.Context, status string, limit int) ([]domain.Return, error)
	ProcessReturn(ctx context.Context, id string, status string, restock bool, processedBy string, at time.Time) (*domain.Return, error)

	GetLoyaltyAccount(ctx context.Context, customerID string) (*domain.LoyaltyAccount, error)
	ListLoyaltyTransactions(ctx context.Context, accountID string, limit int) ([]domain.LoyaltyTransaction, error)
	// ApplyLoyaltyEntry appends entry to the customer's ledger and moves the
	// balance by entry.Points. Debits never take the balance below zero.
	ApplyLoyaltyEntry(ctx context.Context, customerID string, entry domain.LoyaltyTransaction) (*domain.LoyaltyAccount, error)
	GetLoyaltyStats(ctx context.Context) (domain.LoyaltyStats, error)
	GetLoyaltyConfig(ctx context.Context) (domain.LoyaltyConfig, error)
	UpdateLoyaltyConfig(ctx context.Context, cfg domain.LoyaltyConfig) (domain.LoyaltyConfig, error)
	CreateReward(ctx context.Context, reward domain.Reward) (*domain.Reward, error)
	GetReward(ctx context.Context, id string) (*domain.Reward, error)
	ListRewards(ctx context.Context, activeOnly bool) ([]domain.Reward, error)

	CreateStockAlert(ctx context.Context, alert domain.StockAlert) error
	ListStockAlerts(ctx context.Context, limit int) ([]domain.StockAlert, error)

	GetDashboard(ctx context.Context, since time.Time) (domain.Dashboard, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	// GetCart returns the customer's cart, creating an empty one on first use.
	GetCart(ctx context.Context, customerID string) (*domain.Cart, error)
	// AddCartItem merges qty into an existing line for the product.
	AddCartItem(ctx context.Context, customerID string, productID string, qty int) (*domain.Cart, error)
	// SetCartItemQuantity removes the line when qty <= 0.
	SetCartItemQuantity(ctx context.Context, customerID string, itemID string, qty int) (*domain.Cart, error)
	RemoveCartItem(ctx context.Context, customerID string, itemID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, customerID string) error

	// PlaceOrder stores the order and empties the customer's cart as one unit.
	PlaceOrder(ctx context.Context, order domain.CustomerOrder) (*domain.CustomerOrder, error)
	GetOrder(ctx context.Context, id string) (*domain.CustomerOrder, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.CustomerOrder, error)
	// ConfirmOrderPayment deducts every line from location and global stock
	// and marks the order paid, or changes nothing.
	ConfirmOrderPayment(ctx context.Context, id string, reference string, confirmedBy string, at time.Time) (*domain.CustomerOrder, []domain.LocationStock, error)
	UpdateOrderStatus(ctx context.Context, id string, status string, notes string, changedBy string, at time.Time) (*domain.CustomerOrder, error)

	CreateConversation(ctx context.Context, conversation domain.Conversation, first domain.Message) (*domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, customerID string, limit int) ([]domain.Conversation, error)
	AddMessage(ctx context.Context, msg domain.Message) (*domain.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)

	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error)
	// ReplaceInvoice overwrites header values and lines of an editable invoice.
	ReplaceInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	SetInvoiceStatus(ctx context.Context, id string, status string, at time.Time) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
