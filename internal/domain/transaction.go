package domain

import (
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCashSale   TransactionType = "cash_sale"
	TransactionCreditSale TransactionType = "credit_sale"
	TransactionInvoice    TransactionType = "invoice"
	TransactionQuote      TransactionType = "quote"
)

type StockUpdateMode string

const (
	StockUpdateImmediate StockUpdateMode = "immediate"
	StockUpdateDeferred  StockUpdateMode = "deferred"
	StockUpdateNone      StockUpdateMode = "none"
)

// TransactionTypeConfig holds the per-type recording rules.
type TransactionTypeConfig struct {
	RequiresCustomer bool
	RequiresLocation bool
	StockUpdate      StockUpdateMode
	DefaultStatus    string
	IssuesInvoice    bool
}

// Immediate reports whether stock and loyalty settle at creation time.
func (c TransactionTypeConfig) Immediate() bool {
	return c.StockUpdate == StockUpdateImmediate
}

var transactionTypes = map[TransactionType]TransactionTypeConfig{
	TransactionCashSale: {
		RequiresLocation: true,
		StockUpdate:      StockUpdateImmediate,
		DefaultStatus:    "completed",
	},
	TransactionCreditSale: {
		RequiresCustomer: true,
		RequiresLocation: true,
		StockUpdate:      StockUpdateImmediate,
		DefaultStatus:    "pending",
		IssuesInvoice:    true,
	},
	TransactionInvoice: {
		RequiresCustomer: true,
		StockUpdate:      StockUpdateDeferred,
		DefaultStatus:    "pending",
		IssuesInvoice:    true,
	},
	TransactionQuote: {
		StockUpdate:   StockUpdateNone,
		DefaultStatus: "draft",
	},
}

func LookupTransactionType(t TransactionType) (TransactionTypeConfig, bool) {
	cfg, ok := transactionTypes[t]
	return cfg, ok
}

// TaxRate is the flat VAT applied to every transaction subtotal.
var TaxRate = decimal.RequireFromString("0.075")

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals prices the given lines: subtotal = sum(qty*price),
// tax = subtotal*TaxRate rounded to cents, total = subtotal+tax-discount.
func ComputeTotals(items []TransactionItem, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	tax := subtotal.Mul(TaxRate).Round(2)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal.Add(tax).Sub(discount),
	}
}

// PointsFor returns floor(total/divisor), never negative.
func PointsFor(total decimal.Decimal, divisor int) int {
	if divisor < 1 {
		divisor = DefaultPointsDivisor
	}
	if !total.IsPositive() {
		return 0
	}
	return int(total.Div(decimal.NewFromInt(int64(divisor))).Floor().IntPart())
}
