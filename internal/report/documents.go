package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mypharma/backend/internal/domain"
)

type saleRecord struct {
	ID            string      `csv:"Sale ID"`
	Date          domain.Date `csv:"Date"`
	Customer      string      `csv:"Customer"`
	Items         string      `csv:"Items"`
	PaymentMethod string      `csv:"Payment Method"`
	Total         string      `csv:"Total"`
}

type inventoryRecord struct {
	ID        string      `csv:"ID"`
	Name      string      `csv:"Name"`
	Category  string      `csv:"Category"`
	Stock     int         `csv:"Stock"`
	UnitPrice string      `csv:"Unit Price"`
	Expiry    domain.Date `csv:"Expiry"`
	Supplier  string      `csv:"Supplier"`
}

type customerRecord struct {
	ID             string      `csv:"ID"`
	Name           string      `csv:"Name"`
	Phone          string      `csv:"Phone"`
	Email          string      `csv:"Email"`
	CreditBalance  string      `csv:"Credit Balance"`
	TotalPurchases string      `csv:"Total Purchases"`
	LastVisit      domain.Date `csv:"Last Visit"`
}

func SalesDocument(pharmacy string, sales []domain.Sale, at time.Time) Document {
	records := make([]*saleRecord, 0, len(sales))
	rows := make([][]any, 0, len(sales)+1)
	total := decimal.Zero
	for _, sale := range sales {
		items := summarizeItems(sale.LineItems)
		records = append(records, &saleRecord{
			ID:            sale.ID,
			Date:          sale.Date,
			Customer:      sale.CustomerName,
			Items:         items,
			PaymentMethod: string(sale.PaymentMethod),
			Total:         sale.Total.StringFixed(2),
		})
		rows = append(rows, []any{sale.ID, sale.Date, sale.CustomerName, items, string(sale.PaymentMethod), sale.Total})
		total = total.Add(sale.Total)
	}
	rows = append(rows, []any{"", "", "", "", "Total", total})

	return Document{
		Kind:        KindSales,
		Title:       titleFor(pharmacy, "Sales Report"),
		GeneratedAt: at,
		Headers:     []string{"Sale ID", "Date", "Customer", "Items", "Payment Method", "Total"},
		Widths:      []float64{60, 25, 40, 92, 30, 30},
		Rows:        rows,
		Records:     records,
	}
}

func InventoryDocument(pharmacy string, items []domain.InventoryItem, at time.Time) Document {
	records := make([]*inventoryRecord, 0, len(items))
	rows := make([][]any, 0, len(items))
	for _, item := range items {
		records = append(records, &inventoryRecord{
			ID:        item.ID,
			Name:      item.Name,
			Category:  item.Category,
			Stock:     item.Stock,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Expiry:    item.Expiry,
			Supplier:  item.Supplier,
		})
		rows = append(rows, []any{item.ID, item.Name, item.Category, item.Stock, item.UnitPrice, item.Expiry, item.Supplier})
	}

	return Document{
		Kind:        KindInventory,
		Title:       titleFor(pharmacy, "Inventory Report"),
		GeneratedAt: at,
		Headers:     []string{"ID", "Name", "Category", "Stock", "Unit Price", "Expiry", "Supplier"},
		Widths:      []float64{55, 55, 35, 20, 25, 25, 62},
		Rows:        rows,
		Records:     records,
	}
}

func CustomersDocument(pharmacy string, customers []domain.Customer, at time.Time) Document {
	records := make([]*customerRecord, 0, len(customers))
	rows := make([][]any, 0, len(customers))
	for _, c := range customers {
		records = append(records, &customerRecord{
			ID:             c.ID,
			Name:           c.Name,
			Phone:          c.Phone,
			Email:          c.Email,
			CreditBalance:  c.CreditBalance.StringFixed(2),
			TotalPurchases: c.TotalPurchases.StringFixed(2),
			LastVisit:      c.LastVisit,
		})
		rows = append(rows, []any{c.ID, c.Name, c.Phone, c.Email, c.CreditBalance, c.TotalPurchases, c.LastVisit})
	}

	return Document{
		Kind:        KindCustomers,
		Title:       titleFor(pharmacy, "Customers Report"),
		GeneratedAt: at,
		Headers:     []string{"ID", "Name", "Phone", "Email", "Credit Balance", "Total Purchases", "Last Visit"},
		Widths:      []float64{55, 40, 32, 55, 30, 35, 30},
		Rows:        rows,
		Records:     records,
	}
}

func summarizeItems(lines []domain.LineItem) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s x%d", line.ItemName, line.Quantity))
	}
	return strings.Join(parts, "; ")
}

func titleFor(pharmacy string, title string) string {
	if pharmacy == "" {
		return title
	}
	return pharmacy + " - " + title
}
