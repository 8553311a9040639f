package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
)

func TestRunInTxDiscardsStagedChangesOnError(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		require.NoError(t, uow.DecrementStock(ctx, DemoAccountID, "MED001", 10))
		require.NoError(t, uow.ApplyCustomerPurchase(ctx, DemoAccountID, "CUST001", decimal.RequireFromString("25"), true, domain.Today()))
		return boom
	})
	require.ErrorIs(t, err, boom)

	item, err := s.GetInventoryItem(ctx, DemoAccountID, "MED001")
	require.NoError(t, err)
	assert.Equal(t, 450, item.Stock)

	customer, err := s.GetCustomer(ctx, DemoAccountID, "CUST001")
	require.NoError(t, err)
	assert.True(t, customer.CreditBalance.IsZero())
}

func TestRunInTxPublishesOnSuccess(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	visit := domain.Today()

	err := s.RunInTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		if err := uow.DecrementStock(ctx, DemoAccountID, "MED005", 5); err != nil {
			return err
		}
		// Reads inside the unit see its own staged writes.
		rows, err := uow.LockInventoryItems(ctx, DemoAccountID, []string{"MED005", "NOPE"})
		require.NoError(t, err)
		assert.Equal(t, 90, rows["MED005"].Stock)
		assert.NotContains(t, rows, "NOPE")

		return uow.InsertSale(ctx, domain.Sale{
			ID:        "SALE-NEW",
			AccountID: DemoAccountID,
			Date:      visit,
			Total:     decimal.RequireFromString("17.50"),
		})
	})
	require.NoError(t, err)

	item, err := s.GetInventoryItem(ctx, DemoAccountID, "MED005")
	require.NoError(t, err)
	assert.Equal(t, 90, item.Stock)

	sale, err := s.GetSale(ctx, DemoAccountID, "SALE-NEW")
	require.NoError(t, err)
	assert.Equal(t, "17.5", sale.Total.String())
}

func TestRunInTxDiscardsWhenDeadlinePasses(t *testing.T) {
	s := NewSeeded()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.RunInTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		if err := uow.DecrementStock(ctx, DemoAccountID, "MED001", 1); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	item, err := s.GetInventoryItem(context.Background(), DemoAccountID, "MED001")
	require.NoError(t, err)
	assert.Equal(t, 450, item.Stock)
}

func TestDecrementStockRefusesToGoNegative(t *testing.T) {
	s := NewSeeded()
	err := s.RunInTx(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		return uow.DecrementStock(ctx, DemoAccountID, "MED005", 96)
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestIncreaseStockStopsAtMaxStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.IncreaseStock(ctx, DemoAccountID, "MED005", store.MaxStock)
	require.ErrorIs(t, err, store.ErrValidation)

	item, err := s.IncreaseStock(ctx, DemoAccountID, "MED005", store.MaxStock-95)
	require.NoError(t, err)
	assert.Equal(t, store.MaxStock, item.Stock)

	_, err = s.IncreaseStock(ctx, DemoAccountID, "MED404", 1)
	require.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestApplyCustomerPaymentRejectsOverpayment(t *testing.T) {
	s := NewSeeded()
	err := s.RunInTx(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		return uow.ApplyCustomerPayment(ctx, DemoAccountID, "CUST002", decimal.RequireFromString("150.01"))
	})
	require.ErrorIs(t, err, store.ErrValidation)

	err = s.RunInTx(context.Background(), func(ctx context.Context, uow store.UnitOfWork) error {
		return uow.ApplyCustomerPayment(ctx, DemoAccountID, "CUST002", decimal.RequireFromString("50"))
	})
	require.NoError(t, err)

	customer, err := s.GetCustomer(context.Background(), DemoAccountID, "CUST002")
	require.NoError(t, err)
	assert.Equal(t, "100", customer.CreditBalance.String())
}

func TestUpdateInventoryItemKeepsStock(t *testing.T) {
	s := NewSeeded()
	updated, err := s.UpdateInventoryItem(context.Background(), domain.InventoryItem{
		ID:        "MED003",
		AccountID: DemoAccountID,
		Name:      "Ibuprofen 400mg (blister)",
		Category:  "Pain Relief",
		Stock:     1,
		UnitPrice: decimal.RequireFromString("3.40"),
	})
	require.NoError(t, err)
	assert.Equal(t, 180, updated.Stock)
	assert.Equal(t, "Ibuprofen 400mg (blister)", updated.Name)
}

func TestListSalesFiltersByRangeNewestFirst(t *testing.T) {
	s := NewSeeded()
	start, _ := domain.ParseDate("2025-11-10")
	sales, err := s.ListSales(context.Background(), DemoAccountID, domain.SaleFilter{Start: &start})
	require.NoError(t, err)
	require.Len(t, sales, 2)
	for _, sale := range sales {
		assert.Equal(t, "2025-11-10", sale.Date.String())
	}

	all, err := s.ListSales(context.Background(), DemoAccountID, domain.SaleFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "2025-11-10", all[0].Date.String())
}

func TestSeededReports(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	stats, err := s.GetDashboardStats(ctx, DemoAccountID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalSales)
	assert.Equal(t, "52.5", stats.TotalRevenue.String())
	assert.Equal(t, 1475, stats.ProductsInStock)
	assert.Equal(t, 3, stats.TotalCustomers)
	assert.Equal(t, "150", stats.OutstandingCredit.String())

	low, err := s.ListLowStock(ctx, DemoAccountID, 150)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "MED005", low[0].ID)

	top, err := s.TopMedicines(ctx, DemoAccountID, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Vitamin C 1000mg", top[0].Name)

	byCategory, err := s.SalesByCategory(ctx, DemoAccountID)
	require.NoError(t, err)
	var pain domain.CategorySales
	for _, row := range byCategory {
		if row.Category == "Pain Relief" {
			pain = row
		}
	}
	assert.Equal(t, 2, pain.Count)
	assert.Equal(t, "1710", pain.Total.String())

	monthly, err := s.MonthlySales(ctx, DemoAccountID, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.Equal(t, "2025-11", monthly[0].Month)
	assert.Equal(t, 3, monthly[0].SalesCount)
}

func TestCreateAccountRejectsDuplicateEmail(t *testing.T) {
	s := NewSeeded()
	_, err := s.CreateAccount(context.Background(), domain.Account{Email: "ELOHE@mypharma.rw", PasswordHash: "x"})
	require.ErrorIs(t, err, store.ErrDuplicate)
}
