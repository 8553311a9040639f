package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mypharma/backend/internal/advisor"
	"mypharma/backend/internal/cache"
	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/service"
	"mypharma/backend/internal/store"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	databaseURL := os.Getenv("MYPHARMA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MYPHARMA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err, "new store")
	require.NoError(t, s.Migrate(ctx), "migrate")

	account, err := s.CreateAccount(ctx, domain.Account{
		Email:        fmt.Sprintf("it-%d@mypharma.test", time.Now().UnixNano()),
		PasswordHash: "not-a-real-hash",
		PharmacyName: "Integration Pharmacy",
	})
	require.NoError(t, err, "create account")

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE account_id = $1`, account.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE account_id = $1`, account.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, account.ID)
		_ = s.Close()
	})
	return s, account.ID
}

func TestSaleUnitCommitsStockSaleAndCredit(t *testing.T) {
	s, accountID := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateInventoryItem(ctx, domain.InventoryItem{
		AccountID: accountID, ID: "MED-IT", Name: "Integration Tablet", Stock: 10, UnitPrice: decimal.RequireFromString("2.50"),
	})
	require.NoError(t, err)
	_, err = s.CreateCustomer(ctx, domain.Customer{AccountID: accountID, ID: "CUST-IT", Name: "Integration Customer"})
	require.NoError(t, err)

	today := domain.Today()
	err = s.RunInTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		if err := uow.DecrementStock(ctx, accountID, "MED-IT", 4); err != nil {
			return err
		}
		if err := uow.InsertSale(ctx, domain.Sale{
			ID: "SALE-IT", AccountID: accountID, CustomerID: "CUST-IT", CustomerName: "Integration Customer",
			LineItems: []domain.LineItem{{ItemID: "MED-IT", ItemName: "Integration Tablet", Quantity: 4, UnitPrice: decimal.RequireFromString("2.50")}},
			Total:     decimal.RequireFromString("10.00"), PaymentMethod: domain.PaymentCredit, Date: today, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return uow.ApplyCustomerPurchase(ctx, accountID, "CUST-IT", decimal.RequireFromString("10.00"), true, today)
	})
	require.NoError(t, err, "run sale unit")

	item, err := s.GetInventoryItem(ctx, accountID, "MED-IT")
	require.NoError(t, err)
	assert.Equal(t, 6, item.Stock)

	customer, err := s.GetCustomer(ctx, accountID, "CUST-IT")
	require.NoError(t, err)
	assert.True(t, customer.CreditBalance.Equal(decimal.RequireFromString("10")), "credit %s", customer.CreditBalance)

	sale, err := s.GetSale(ctx, accountID, "SALE-IT")
	require.NoError(t, err)
	require.Len(t, sale.LineItems, 1)
	assert.Equal(t, 4, sale.LineItems[0].Quantity)
}

func TestSaleUnitRollsBackOnInsufficientStock(t *testing.T) {
	s, accountID := openTestStore(t)
	ctx := context.Background()

	for _, item := range []domain.InventoryItem{
		{AccountID: accountID, ID: "MED-A", Name: "A", Stock: 10, UnitPrice: decimal.RequireFromString("1")},
		{AccountID: accountID, ID: "MED-B", Name: "B", Stock: 1, UnitPrice: decimal.RequireFromString("1")},
	} {
		_, err := s.CreateInventoryItem(ctx, item)
		require.NoError(t, err)
	}

	err := s.RunInTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		if err := uow.DecrementStock(ctx, accountID, "MED-A", 5); err != nil {
			return err
		}
		return uow.DecrementStock(ctx, accountID, "MED-B", 2)
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	item, err := s.GetInventoryItem(ctx, accountID, "MED-A")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Stock, "MED-A must be untouched")
}

func TestConcurrentSalesSellLastUnitsOnce(t *testing.T) {
	s, accountID := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateInventoryItem(ctx, domain.InventoryItem{
		AccountID: accountID, ID: "MED-RACE", Name: "Race Tablet", Stock: 10, UnitPrice: decimal.RequireFromString("2.00"),
	})
	require.NoError(t, err)
	for _, id := range []string{"CUST-R1", "CUST-R2"} {
		_, err := s.CreateCustomer(ctx, domain.Customer{AccountID: accountID, ID: id, Name: id, Phone: "+250788000000"})
		require.NoError(t, err)
	}

	svc := service.New(s, advisor.New(cache.Noop{}, time.Minute, 150, 60), cache.Noop{}, service.Options{
		SaleTxTimeout: 5 * time.Second,
	})
	actorCtx := service.WithActor(ctx, domain.Actor{AccountID: accountID, Role: "owner"})

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		fails []error
	)
	start := make(chan struct{})
	for _, customerID := range []string{"CUST-R1", "CUST-R2"} {
		wg.Add(1)
		go func(customerID string) {
			defer wg.Done()
			<-start
			_, err := svc.RecordSale(actorCtx, domain.SaleCreateRequest{
				CustomerID:    customerID,
				LineItems:     []domain.SaleLineRequest{{ItemID: "MED-RACE", Quantity: 6}},
				PaymentMethod: "Cash",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fails = append(fails, err)
				return
			}
			wins++
		}(customerID)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	require.Len(t, fails, 1)
	require.ErrorIs(t, fails[0], store.ErrInsufficientStock)
	var lineErr *store.LineItemError
	require.ErrorAs(t, fails[0], &lineErr)
	assert.Equal(t, 4, lineErr.Available)

	item, err := s.GetInventoryItem(ctx, accountID, "MED-RACE")
	require.NoError(t, err)
	assert.Equal(t, 4, item.Stock)
}

func TestIncreaseStockRefusesToPassMaxStock(t *testing.T) {
	s, accountID := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateInventoryItem(ctx, domain.InventoryItem{
		AccountID: accountID, ID: "MED-BULK", Name: "Bulk", Stock: 10, UnitPrice: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	_, err = s.IncreaseStock(ctx, accountID, "MED-BULK", store.MaxStock-9)
	require.ErrorIs(t, err, store.ErrValidation)

	item, err := s.IncreaseStock(ctx, accountID, "MED-BULK", store.MaxStock-10)
	require.NoError(t, err)
	assert.Equal(t, store.MaxStock, item.Stock)

	_, err = s.IncreaseStock(ctx, accountID, "MED-MISSING", 1)
	require.ErrorIs(t, err, store.ErrItemNotFound)
}
