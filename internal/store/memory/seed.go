package memory

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mypharma/backend/internal/domain"
)

const (
	DemoAccountID = "ACC-DEMO"
	DemoEmail     = "elohe@mypharma.rw"
	DemoPIN       = "1234"
)

// NewSeeded returns a store holding the demo pharmacy used in dev mode.
// The password comes from SEED_ACCOUNT_PASSWORD; without it a dev default is
// used and a warning is logged. Production runs against PostgreSQL.
func NewSeeded() *Store {
	password := envOr("SEED_ACCOUNT_PASSWORD", "password123")
	pin := envOr("SEED_SETTINGS_PIN", DemoPIN)
	if os.Getenv("SEED_ACCOUNT_PASSWORD") == "" || os.Getenv("SEED_SETTINGS_PIN") == "" {
		zap.S().Warn("[memory-store] using default dev credentials; set SEED_ACCOUNT_PASSWORD and SEED_SETTINGS_PIN to override")
	}

	s := New()
	base := time.Date(2025, time.November, 1, 8, 0, 0, 0, time.UTC)
	s.accounts[DemoAccountID] = domain.Account{
		ID:           DemoAccountID,
		PharmacyName: "Promephar Pharmacy",
		OwnerName:    "Jacob Ndayishimiye",
		Email:        DemoEmail,
		Phone:        "+250788123456",
		PasswordHash: mustHash(password),
		PINHash:      mustHash(pin),
		Role:         "owner",
		CreatedAt:    base,
	}

	for i, name := range []string{"Pain Relief", "Antibiotics", "Supplements", "Allergy", "Vitamins"} {
		id := fmt.Sprintf("CAT%03d", i+1)
		s.categories[rowKey(DemoAccountID, id)] = domain.Category{
			ID: id, AccountID: DemoAccountID, Name: name, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}

	for i, sup := range []domain.Supplier{
		{ID: "SUP001", Name: "PharmaCorp Ltd", Contact: "John Manager", Phone: "+250788111222", Email: "contact@pharmacorp.rw"},
		{ID: "SUP002", Name: "MediSupply Inc", Contact: "Sarah Director", Phone: "+250788222333", Email: "info@medisupply.rw"},
		{ID: "SUP003", Name: "HealthPlus Distributors", Contact: "David Sales", Phone: "+250788333444", Email: "sales@healthplus.rw"},
	} {
		sup.AccountID = DemoAccountID
		sup.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		s.suppliers[rowKey(DemoAccountID, sup.ID)] = sup
	}

	for i, item := range []domain.InventoryItem{
		{ID: "MED001", Name: "Paracetamol 500mg", Category: "Pain Relief", Stock: 450, UnitPrice: money("2.50"), Expiry: day("2026-06-15"), Supplier: "PharmaCorp Ltd"},
		{ID: "MED002", Name: "Amoxicillin 250mg", Category: "Antibiotics", Stock: 230, UnitPrice: money("5.75"), Expiry: day("2025-12-20"), Supplier: "MediSupply Inc"},
		{ID: "MED003", Name: "Ibuprofen 400mg", Category: "Pain Relief", Stock: 180, UnitPrice: money("3.25"), Expiry: day("2026-03-10"), Supplier: "PharmaCorp Ltd"},
		{ID: "MED004", Name: "Vitamin C 1000mg", Category: "Supplements", Stock: 520, UnitPrice: money("4.00"), Expiry: day("2026-09-05"), Supplier: "HealthPlus Distributors"},
		{ID: "MED005", Name: "Cetirizine 10mg", Category: "Allergy", Stock: 95, UnitPrice: money("3.50"), Expiry: day("2026-01-30"), Supplier: "MediSupply Inc"},
	} {
		item.AccountID = DemoAccountID
		item.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		s.inventory[rowKey(DemoAccountID, item.ID)] = item
	}

	for i, c := range []domain.Customer{
		{ID: "CUST001", Name: "John Doe", Phone: "+250788123456", Email: "john.doe@email.com", CreditBalance: money("0"), TotalPurchases: money("1250.50"), Prescriptions: 3, LastVisit: day("2025-11-10")},
		{ID: "CUST002", Name: "Jane Smith", Phone: "+250788123457", Email: "jane.smith@email.com", CreditBalance: money("150"), TotalPurchases: money("890.75"), Prescriptions: 2, LastVisit: day("2025-11-09")},
		{ID: "CUST003", Name: "Mike Johnson", Phone: "+250788123458", Email: "mike.johnson@email.com", CreditBalance: money("0"), TotalPurchases: money("2340.25"), Prescriptions: 5, LastVisit: day("2025-11-08")},
	} {
		c.AccountID = DemoAccountID
		c.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		s.customers[rowKey(DemoAccountID, c.ID)] = c
	}

	for i, sale := range []domain.Sale{
		{
			ID: "SALE001", CustomerID: "CUST001", CustomerName: "John Doe", PaymentMethod: domain.PaymentCash, Date: day("2025-11-10"),
			LineItems: []domain.LineItem{
				{ItemID: "MED001", ItemName: "Paracetamol 500mg", Quantity: 2, UnitPrice: money("2.50")},
				{ItemID: "MED003", ItemName: "Ibuprofen 400mg", Quantity: 1, UnitPrice: money("3.25")},
			},
		},
		{
			ID: "SALE002", CustomerID: "CUST002", CustomerName: "Jane Smith", PaymentMethod: domain.PaymentCredit, Date: day("2025-11-10"),
			LineItems: []domain.LineItem{
				{ItemID: "MED002", ItemName: "Amoxicillin 250mg", Quantity: 3, UnitPrice: money("5.75")},
			},
		},
		{
			ID: "SALE003", CustomerID: "CUST003", CustomerName: "Mike Johnson", PaymentMethod: domain.PaymentCash, Date: day("2025-11-09"),
			LineItems: []domain.LineItem{
				{ItemID: "MED004", ItemName: "Vitamin C 1000mg", Quantity: 5, UnitPrice: money("4.00")},
				{ItemID: "MED005", ItemName: "Cetirizine 10mg", Quantity: 2, UnitPrice: money("3.50")},
			},
		},
	} {
		sale.AccountID = DemoAccountID
		sale.Total = domain.SaleTotal(sale.LineItems)
		sale.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		s.sales[rowKey(DemoAccountID, sale.ID)] = sale
	}

	return s
}

func money(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func day(raw string) domain.Date {
	d, err := domain.ParseDate(raw)
	if err != nil {
		panic(err)
	}
	return d
}
