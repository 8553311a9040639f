package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "Cash"
	PaymentCredit      PaymentMethod = "Credit"
	PaymentMobileMoney PaymentMethod = "MobileMoney"
	PaymentCard        PaymentMethod = "Card"
)

// ParsePaymentMethod accepts the canonical names case-insensitively, plus the
// spaced/underscored spellings the frontend forms send for mobile money.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "cash":
		return PaymentCash, true
	case "credit":
		return PaymentCredit, true
	case "mobilemoney", "momo":
		return PaymentMobileMoney, true
	case "card":
		return PaymentCard, true
	default:
		return "", false
	}
}

// Deferred reports whether the sale amount goes onto the customer's credit balance.
func (m PaymentMethod) Deferred() bool {
	return m == PaymentCredit
}

type LineItem struct {
	ItemID    string          `json:"itemId"`
	ItemName  string          `json:"itemName"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Sale struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"-"`
	CustomerID    string          `json:"customerId"`
	CustomerName  string          `json:"customerName"`
	LineItems     []LineItem      `json:"lineItems"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Date          Date            `json:"date"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// SaleTotal is the sum of quantity × unit price over the line items.
func SaleTotal(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

type SaleLineRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// SaleCreateRequest is the body of POST /api/sales. Total is accepted for
// compatibility with older clients and never used.
type SaleCreateRequest struct {
	CustomerID    string            `json:"customerId"`
	LineItems     []SaleLineRequest `json:"lineItems"`
	PaymentMethod string            `json:"paymentMethod"`
	Total         *decimal.Decimal  `json:"total,omitempty"`
	Date          *Date             `json:"date,omitempty"`
}

type SaleFilter struct {
	Start *Date
	End   *Date
	Limit int
}
