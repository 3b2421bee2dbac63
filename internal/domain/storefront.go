package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Available   bool            `json:"available"`
}

// Cart is priced from the catalog each time it is loaded.
type Cart struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Items      []CartItem      `json:"items"`
	ItemCount  int             `json:"item_count"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Price fills line totals, item count and subtotal from the current items.
func (c *Cart) Price() {
	c.ItemCount = 0
	c.Subtotal = decimal.Zero
	for i := range c.Items {
		item := &c.Items[i]
		item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		c.ItemCount += item.Quantity
		c.Subtotal = c.Subtotal.Add(item.LineTotal)
	}
}

type CartItemAddRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type CartItemUpdateRequest struct {
	Quantity int `json:"quantity"`
}

type CheckoutRequest struct {
	LocationID      string `json:"location_id" validate:"required"`
	PaymentMethod   string `json:"payment_method" validate:"required,oneof=bank_transfer cash_on_delivery pay_on_pickup"`
	ContactPhone    string `json:"contact_phone" validate:"required,max=40"`
	ContactEmail    string `json:"contact_email" validate:"omitempty,email"`
	ShippingAddress string `json:"shipping_address" validate:"max=255"`
	ShippingCity    string `json:"shipping_city" validate:"max=100"`
	ShippingState   string `json:"shipping_state" validate:"max=100"`
	DeliveryNotes   string `json:"delivery_notes" validate:"max=1000"`
}

type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type OrderStatusChange struct {
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	ChangedBy string    `json:"changed_by"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerOrder is a storefront order placed from a customer's cart. Stock
// leaves the fulfilment location when staff confirm the payment.
type CustomerOrder struct {
	ID               string              `json:"id"`
	OrderNumber      string              `json:"order_number"`
	CustomerID       string              `json:"customer_id"`
	LocationID       string              `json:"location_id"`
	Status           string              `json:"status"`
	PaymentMethod    string              `json:"payment_method"`
	PaymentStatus    string              `json:"payment_status"`
	PaymentReference string              `json:"payment_reference,omitempty"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	ContactPhone     string              `json:"contact_phone"`
	ContactEmail     string              `json:"contact_email,omitempty"`
	ShippingAddress  string              `json:"shipping_address,omitempty"`
	ShippingCity     string              `json:"shipping_city,omitempty"`
	ShippingState    string              `json:"shipping_state,omitempty"`
	DeliveryNotes    string              `json:"delivery_notes,omitempty"`
	Subtotal         decimal.Decimal     `json:"subtotal"`
	Tax              decimal.Decimal     `json:"tax_amount"`
	Total            decimal.Decimal     `json:"total_amount"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	Items            []OrderItem         `json:"items"`
	History          []OrderStatusChange `json:"history"`
}

type OrderFilter struct {
	Status     string
	CustomerID string
	Limit      int
}

type OrderPaymentRequest struct {
	PaymentReference string `json:"payment_reference" validate:"max=120"`
}

type OrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed processing packed shipped out_for_delivery delivered cancelled"`
	Notes  string `json:"notes" validate:"max=1000"`
}

const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusProcessing     = "processing"
	OrderStatusPacked         = "packed"
	OrderStatusShipped        = "shipped"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"

	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// orderProgress ranks the forward statuses; cancelled sits outside the line.
var orderProgress = map[string]int{
	OrderStatusPending:        0,
	OrderStatusConfirmed:      1,
	OrderStatusProcessing:     2,
	OrderStatusPacked:         3,
	OrderStatusShipped:        4,
	OrderStatusOutForDelivery: 5,
	OrderStatusDelivered:      6,
}

func IsOrderStatus(status string) bool {
	_, ok := orderProgress[status]
	return ok || status == OrderStatusCancelled
}

// CheckOrderTransition reports why order cannot move to status, or nil.
func CheckOrderTransition(order CustomerOrder, to string) error {
	if !IsOrderStatus(to) {
		return fmt.Errorf("unknown order status %q", to)
	}
	if order.Status == OrderStatusDelivered || order.Status == OrderStatusCancelled {
		return fmt.Errorf("order is already %s", order.Status)
	}
	if order.Status == to {
		return fmt.Errorf("order is already %s", to)
	}
	if to == OrderStatusCancelled {
		if order.PaymentStatus == PaymentStatusPaid {
			return errors.New("paid orders are reversed through a return")
		}
		return nil
	}
	if orderProgress[to] < orderProgress[order.Status] {
		return fmt.Errorf("order cannot move back from %s to %s", order.Status, to)
	}
	if to == OrderStatusDelivered && order.PaymentStatus != PaymentStatusPaid {
		return errors.New("confirm the payment before marking the order delivered")
	}
	return nil
}

type Conversation struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customer_id"`
	Subject       string    `json:"subject"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderUsername string    `json:"sender_username"`
	SenderType     string    `json:"sender_type"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	SenderStaff    = "staff"
	SenderCustomer = "customer"

	MaxMessageLength = 4000
)

type ConversationCreateRequest struct {
	CustomerID string `json:"customer_id"`
	Subject    string `json:"subject" validate:"required,max=200"`
	Body       string `json:"body" validate:"required"`
}

type MessageCreateRequest struct {
	Body string `json:"body" validate:"required"`
}

type InvoiceItem struct {
	ProductID   string          `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Invoice is an editable billing document, kept apart from sales recorded
// with transaction type invoice.
type Invoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    string          `json:"customer_id"`
	SaleID        string          `json:"sale_id,omitempty"`
	Status        string          `json:"status"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax_amount"`
	Discount      decimal.Decimal `json:"discount_amount"`
	Total         decimal.Decimal `json:"total_amount"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []InvoiceItem   `json:"items"`
}

// Price sets line totals, subtotal and total from the items, tax and discount.
func (inv *Invoice) Price() {
	inv.Subtotal = decimal.Zero
	for i := range inv.Items {
		item := &inv.Items[i]
		item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		inv.Subtotal = inv.Subtotal.Add(item.LineTotal)
	}
	inv.Total = inv.Subtotal.Add(inv.Tax).Sub(inv.Discount)
}

// Editable reports whether header and lines may still change.
func (inv Invoice) Editable() bool {
	return inv.Status != InvoiceStatusPaid && inv.Status != InvoiceStatusCancelled
}

type InvoiceItemInput struct {
	ProductID   string          `json:"product_id"`
	Description string          `json:"description" validate:"max=255"`
	Quantity    int             `json:"quantity" validate:"required,min=1"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

type InvoiceRequest struct {
	CustomerID string             `json:"customer_id" validate:"required"`
	SaleID     string             `json:"sale_id"`
	DueDate    *time.Time         `json:"due_date" validate:"required"`
	Items      []InvoiceItemInput `json:"items" validate:"required,min=1,dive"`
	Tax        decimal.Decimal    `json:"tax_amount" validate:"gte=0"`
	Discount   decimal.Decimal    `json:"discount_amount" validate:"gte=0"`
	Notes      string             `json:"notes" validate:"max=1000"`
}

type InvoiceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft sent paid overdue cancelled"`
}

type InvoiceFilter struct {
	Status     string
	CustomerID string
	Limit      int
}

const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

func IsInvoiceStatus(status string) bool {
	switch status {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}
