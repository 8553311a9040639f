package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DashboardStats struct {
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	TotalSales        int             `json:"totalSales"`
	ProductsInStock   int             `json:"productsInStock"`
	TotalCustomers    int             `json:"totalCustomers"`
	OutstandingCredit decimal.Decimal `json:"outstandingCredit"`
	StockValue        decimal.Decimal `json:"stockValue"`
}

type TopMedicine struct {
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Stock     int             `json:"stock"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type CategorySales struct {
	Category string          `json:"category"`
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

type MonthlySales struct {
	Month      string          `json:"month"`
	SalesCount int             `json:"salesCount"`
	Revenue    decimal.Decimal `json:"revenue"`
}

const (
	AlertLowStock = "low_stock"
	AlertExpiring = "expiring"
	AlertExpired  = "expired"
)

type InventoryAlert struct {
	ItemID    string  `json:"itemId"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Stock     int     `json:"stock"`
	Expiry    Date    `json:"expiry"`
	DaysLeft  int     `json:"daysLeft"`
	Severity  string  `json:"severity"`
	Urgency   float64 `json:"urgency"`
	ReasonMsg string  `json:"reason"`
}

type InventoryAlertReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	Alerts      []InventoryAlert `json:"alerts"`
}
