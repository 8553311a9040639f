package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"mypharma/backend/internal/domain"
)

var generatedAt = time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)

func sampleSales(t *testing.T) []domain.Sale {
	t.Helper()
	day, err := domain.ParseDate("2025-11-10")
	require.NoError(t, err)
	return []domain.Sale{{
		ID:            "SALE001",
		CustomerName:  "John Doe",
		PaymentMethod: domain.PaymentCash,
		Date:          day,
		Total:         decimal.RequireFromString("8.25"),
		LineItems: []domain.LineItem{
			{ItemName: "Paracetamol 500mg", Quantity: 2, UnitPrice: decimal.RequireFromString("2.50")},
			{ItemName: "Ibuprofen 400mg", Quantity: 1, UnitPrice: decimal.RequireFromString("3.25")},
		},
	}}
}

func TestRenderSalesCSV(t *testing.T) {
	file, err := Render(SalesDocument("Promephar Pharmacy", sampleSales(t), generatedAt), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "sales-20251110.csv", file.Name)
	assert.True(t, strings.HasPrefix(file.ContentType, "text/csv"))

	lines := strings.Split(strings.TrimSpace(string(file.Body)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Sale ID,Date,Customer,Items,Payment Method,Total", lines[0])
	assert.Equal(t, "SALE001,2025-11-10,John Doe,Paracetamol 500mg x2; Ibuprofen 400mg x1,Cash,8.25", lines[1])
}

func TestRenderInventoryXLSX(t *testing.T) {
	expiry, _ := domain.ParseDate("2026-06-15")
	doc := InventoryDocument("", []domain.InventoryItem{
		{ID: "MED001", Name: "Paracetamol 500mg", Category: "Pain Relief", Stock: 450, UnitPrice: decimal.RequireFromString("2.50"), Expiry: expiry},
	}, generatedAt)

	file, err := Render(doc, FormatXLSX)
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(file.Body))
	require.NoError(t, err)
	defer func() { _ = book.Close() }()

	rows, err := book.GetRows("Inventory Report")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Stock", rows[0][3])
	assert.Equal(t, "450", rows[1][3])
	assert.Equal(t, "2026-06-15", rows[1][5])
}

func TestRenderCustomersPDF(t *testing.T) {
	doc := CustomersDocument("Promephar Pharmacy", []domain.Customer{
		{ID: "CUST002", Name: "Jane Smith", CreditBalance: decimal.RequireFromString("150"), TotalPurchases: decimal.RequireFromString("890.75")},
	}, generatedAt)

	file, err := Render(doc, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF-")))
}

func TestParseFormatAndKind(t *testing.T) {
	f, ok := ParseFormat("XLSX")
	assert.True(t, ok)
	assert.Equal(t, FormatXLSX, f)

	f, ok = ParseFormat("")
	assert.True(t, ok)
	assert.Equal(t, FormatCSV, f)

	_, ok = ParseFormat("docx")
	assert.False(t, ok)

	_, ok = ParseKind("refunds")
	assert.False(t, ok)
}
