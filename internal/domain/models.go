package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	StockQty     int             `json:"stock_qty"`
	ReorderLevel int             `json:"reorder_level"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	SKU          string          `json:"sku" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	Category     string          `json:"category" validate:"max=100"`
	UnitPrice    decimal.Decimal `json:"unit_price" validate:"gte=0"`
	InitialStock int             `json:"initial_stock" validate:"gte=0"`
	ReorderLevel int             `json:"reorder_level" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Category     *string          `json:"category,omitempty"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty"`
	StockQty     *int             `json:"stock_qty,omitempty"`
	ReorderLevel *int             `json:"reorder_level,omitempty"`
	Active       *bool            `json:"active,omitempty"`
}

type Location struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LocationCreateRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	State   string `json:"state" validate:"max=80"`
	Address string `json:"address" validate:"max=255"`
}

type LocationUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	State   *string `json:"state,omitempty"`
	Address *string `json:"address,omitempty"`
	Active  *bool   `json:"active,omitempty"`
}

// LocationStock is the quantity of one product held at one location.
type LocationStock struct {
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name,omitempty"`
	SKU          string    `json:"sku,omitempty"`
	LocationID   string    `json:"location_id"`
	LocationName string    `json:"location_name,omitempty"`
	StockQty     int       `json:"stock_qty"`
	ReorderLevel int       `json:"reorder_level"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s LocationStock) IsLow() bool {
	return s.StockQty <= s.ReorderLevel
}

type LocationStockUpdateRequest struct {
	ProductID    string `json:"product_id" validate:"required"`
	LocationID   string `json:"location_id" validate:"required"`
	StockQty     *int   `json:"stock_qty,omitempty" validate:"omitempty,gte=0"`
	ReorderLevel *int   `json:"reorder_level,omitempty" validate:"omitempty,gte=0"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"max=40"`
}

type TransactionItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type Transaction struct {
	ID            string            `json:"id"`
	Type          TransactionType   `json:"transaction_type"`
	CustomerID    string            `json:"customer_id,omitempty"`
	LocationID    string            `json:"location_id,omitempty"`
	SalesAgent    string            `json:"sales_agent"`
	InvoiceNumber string            `json:"invoice_number,omitempty"`
	IssueDate     time.Time         `json:"issue_date"`
	DueDate       *time.Time        `json:"due_date,omitempty"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	Tax           decimal.Decimal   `json:"tax_amount"`
	Discount      decimal.Decimal   `json:"discount_amount"`
	Total         decimal.Decimal   `json:"total_amount"`
	Status        string            `json:"status"`
	PaymentMethod string            `json:"payment_method"`
	Notes         string            `json:"notes,omitempty"`
	PointsEarned  int               `json:"points_earned"`
	CreatedAt     time.Time         `json:"created_at"`
	Items         []TransactionItem `json:"items"`
}

type TransactionItemInput struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

type TransactionCreateRequest struct {
	Type          TransactionType        `json:"transaction_type" validate:"required,oneof=cash_sale credit_sale invoice quote"`
	CustomerID    string                 `json:"customer_id"`
	LocationID    string                 `json:"location_id"`
	Items         []TransactionItemInput `json:"items" validate:"required,min=1,dive"`
	Discount      decimal.Decimal        `json:"discount" validate:"gte=0"`
	PaymentMethod string                 `json:"payment_method" validate:"omitempty,oneof=cash card transfer pos credit"`
	DueDate       *time.Time             `json:"due_date,omitempty"`
	Notes         string                 `json:"notes" validate:"max=1000"`
}

type TransactionStatusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=draft pending completed paid cancelled overdue"`
}

type TransactionFilter struct {
	Type       TransactionType
	Status     string
	LocationID string
	CustomerID string
	Limit      int
}

// StockMovement is a stock transfer between two locations.
type StockMovement struct {
	ID               string     `json:"id"`
	MovementNumber   string     `json:"movement_number"`
	MovementType     string     `json:"movement_type"`
	ProductID        string     `json:"product_id"`
	FromLocationID   string     `json:"from_location_id,omitempty"`
	ToLocationID     string     `json:"to_location_id,omitempty"`
	Quantity         int        `json:"quantity"`
	Status           string     `json:"status"`
	Notes            string     `json:"notes,omitempty"`
	ProcessedBy      string     `json:"processed_by"`
	ExpectedDelivery *time.Time `json:"expected_delivery,omitempty"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type TransferCreateRequest struct {
	ProductID        string     `json:"product_id" validate:"required"`
	FromLocationID   string     `json:"from_location_id" validate:"required"`
	ToLocationID     string     `json:"to_location_id" validate:"required,nefield=FromLocationID"`
	Quantity         int        `json:"quantity" validate:"required,min=1"`
	Notes            string     `json:"notes" validate:"max=1000"`
	ExpectedDelivery *time.Time `json:"expected_delivery,omitempty"`
}

type Supplier struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactName string    `json:"contact_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	ContactName string `json:"contact_name" validate:"max=200"`
	Phone       string `json:"phone" validate:"max=40"`
	Email       string `json:"email" validate:"omitempty,email"`
}

type PurchaseOrderItem struct {
	ProductID        string          `json:"product_id"`
	Quantity         int             `json:"quantity"`
	ReceivedQuantity int             `json:"received_quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	LineTotal        decimal.Decimal `json:"line_total"`
}

type PurchaseOrder struct {
	ID           string              `json:"id"`
	PONumber     string              `json:"po_number"`
	SupplierID   string              `json:"supplier_id"`
	LocationID   string              `json:"location_id,omitempty"`
	Status       string              `json:"status"`
	Subtotal     decimal.Decimal     `json:"subtotal"`
	Tax          decimal.Decimal     `json:"tax_amount"`
	Total        decimal.Decimal     `json:"total_amount"`
	ExpectedDate *time.Time          `json:"expected_date,omitempty"`
	ReceivedDate *time.Time          `json:"received_date,omitempty"`
	ReceivedBy   string              `json:"received_by,omitempty"`
	CreatedBy    string              `json:"created_by"`
	CreatedAt    time.Time           `json:"created_at"`
	Items        []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderItemInput struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitCost  decimal.Decimal `json:"unit_cost" validate:"gte=0"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID   string                   `json:"supplier_id" validate:"required"`
	LocationID   string                   `json:"location_id"`
	ExpectedDate *time.Time               `json:"expected_date,omitempty"`
	Items        []PurchaseOrderItemInput `json:"items" validate:"required,min=1,dive"`
}

type PurchaseOrderReceiveRequest struct {
	LocationID string `json:"location_id"`
}

type ReturnItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Condition string          `json:"condition"`
}

type Return struct {
	ID            string          `json:"id"`
	ReturnNumber  string          `json:"return_number"`
	TransactionID string          `json:"transaction_id,omitempty"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Reason        string          `json:"reason"`
	Status        string          `json:"status"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`
	Restocked     bool            `json:"restocked"`
	ProcessedBy   string          `json:"processed_by,omitempty"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []ReturnItem    `json:"items"`
}

type ReturnItemInput struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Condition string          `json:"condition" validate:"omitempty,oneof=new opened damaged"`
}

type ReturnCreateRequest struct {
	TransactionID string            `json:"transaction_id"`
	CustomerID    string            `json:"customer_id"`
	Reason        string            `json:"reason" validate:"required,max=500"`
	Items         []ReturnItemInput `json:"items" validate:"required,min=1,dive"`
}

type ReturnProcessRequest struct {
	Status  string `json:"status" validate:"required,oneof=approved rejected completed"`
	Restock bool   `json:"restock"`
}

type StockAlert struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	LocationID   string    `json:"location_id"`
	StockQty     int       `json:"stock_qty"`
	ReorderLevel int       `json:"reorder_level"`
	CreatedAt    time.Time `json:"created_at"`
}

type ReorderSuggestion struct {
	ProductID      string `json:"product_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	LocationID     string `json:"location_id"`
	CurrentStock   int    `json:"current_stock"`
	ReorderLevel   int    `json:"reorder_level"`
	RecommendedQty int    `json:"recommended_qty"`
}

type ReorderSuggestionResponse struct {
	LocationID  string              `json:"location_id,omitempty"`
	GeneratedAt string              `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}

type Dashboard struct {
	Products          int64           `json:"products"`
	Locations         int64           `json:"locations"`
	Customers         int64           `json:"customers"`
	TransactionsToday int64           `json:"transactions_today"`
	RevenueToday      decimal.Decimal `json:"revenue_today"`
	PendingTransfers  int64           `json:"pending_transfers"`
	LowStockItems     int64           `json:"low_stock_items"`
	LoyaltyMembers    int64           `json:"loyalty_members"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        Role   `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated caller. CustomerID is set for customer accounts.
type Actor struct {
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	CustomerID string `json:"customer_id,omitempty"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username   string
	Password   string
	Role       Role
	CustomerID string
	Active     bool
	CreatedAt  time.Time
}

type UserCreateRequest struct {
	Username   string `json:"username" validate:"required,min=4,max=64"`
	Password   string `json:"password" validate:"required,min=8"`
	Role       string `json:"role" validate:"required"`
	CustomerID string `json:"customer_id"`
}

type UserSummary struct {
	Username   string    `json:"username"`
	Role       Role      `json:"role"`
	CustomerID string    `json:"customer_id,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	TransferStatusPending   = "pending"
	TransferStatusApproved  = "approved"
	TransferStatusCompleted = "completed"
	TransferStatusCancelled = "cancelled"

	MovementTypeTransfer = "transfer"
)

const (
	POStatusDraft     = "draft"
	POStatusOrdered   = "ordered"
	POStatusReceived  = "received"
	POStatusCancelled = "cancelled"
)

const (
	ReturnStatusPending   = "pending"
	ReturnStatusApproved  = "approved"
	ReturnStatusRejected  = "rejected"
	ReturnStatusCompleted = "completed"
)

// DefaultReorderLevel applies to location stock rows created implicitly by a
// transfer or a purchase order receipt.
const DefaultReorderLevel = 10
