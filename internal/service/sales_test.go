package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mypharma/backend/internal/advisor"
	"mypharma/backend/internal/cache"
	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
	"mypharma/backend/internal/store/memory"
)

func TestRecordSaleCashUpdatesStockAndPurchases(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := ownerContext()
	clientTotal := money("1.00")

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		CustomerID: "CUST001",
		LineItems: []domain.SaleLineRequest{
			{ItemID: "MED001", Quantity: 2},
			{ItemID: "MED003", Quantity: 1},
		},
		PaymentMethod: "Cash",
		Total:         &clientTotal,
	})
	require.NoError(t, err)

	assert.True(t, sale.Total.Equal(money("8.25")), "total %s", sale.Total)
	assert.Equal(t, "John Doe", sale.CustomerName)
	require.Len(t, sale.LineItems, 2)
	assert.Equal(t, "Paracetamol 500mg", sale.LineItems[0].ItemName)
	assert.Equal(t, domain.PaymentCash, sale.PaymentMethod)

	item, err := repo.GetInventoryItem(ctx, memory.DemoAccountID, "MED001")
	require.NoError(t, err)
	assert.Equal(t, 448, item.Stock)
	item, err = repo.GetInventoryItem(ctx, memory.DemoAccountID, "MED003")
	require.NoError(t, err)
	assert.Equal(t, 179, item.Stock)

	customer, err := repo.GetCustomer(ctx, memory.DemoAccountID, "CUST001")
	require.NoError(t, err)
	assert.True(t, customer.TotalPurchases.Equal(money("1258.75")))
	assert.True(t, customer.CreditBalance.IsZero())

	stored, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(sale.Total))
}

func TestRecordSaleCreditAccruesBalance(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := ownerContext()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		CustomerID:    "CUST002",
		LineItems:     []domain.SaleLineRequest{{ItemID: "MED002", Quantity: 2}},
		PaymentMethod: "Credit",
	})
	require.NoError(t, err)
	assert.True(t, sale.Total.Equal(money("11.50")))

	customer, err := repo.GetCustomer(ctx, memory.DemoAccountID, "CUST002")
	require.NoError(t, err)
	assert.True(t, customer.CreditBalance.Equal(money("161.50")), "credit %s", customer.CreditBalance)
	assert.True(t, customer.TotalPurchases.Equal(money("902.25")))
}

func TestRecordSaleInsufficientStockLeavesNoTrace(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := ownerContext()

	before, err := repo.ListSales(ctx, memory.DemoAccountID, domain.SaleFilter{})
	require.NoError(t, err)

	_, err = svc.RecordSale(ctx, domain.SaleCreateRequest{
		CustomerID: "CUST002",
		LineItems: []domain.SaleLineRequest{
			{ItemID: "MED001", Quantity: 10},
			{ItemID: "MED005", Quantity: 96},
		},
		PaymentMethod: "Credit",
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var lineErr *store.LineItemError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, "MED005", lineErr.ItemID)
	assert.Equal(t, 1, lineErr.Index)
	assert.Equal(t, 95, lineErr.Available)

	item, err := repo.GetInventoryItem(ctx, memory.DemoAccountID, "MED001")
	require.NoError(t, err)
	assert.Equal(t, 450, item.Stock)

	customer, err := repo.GetCustomer(ctx, memory.DemoAccountID, "CUST002")
	require.NoError(t, err)
	assert.True(t, customer.CreditBalance.Equal(money("150")))

	after, err := repo.ListSales(ctx, memory.DemoAccountID, domain.SaleFilter{})
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestRecordSaleRejectsMalformedRequests(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := ownerContext()

	cases := []struct {
		name  string
		req   domain.SaleCreateRequest
		field string
	}{
		{
			name:  "missing customer",
			req:   domain.SaleCreateRequest{LineItems: []domain.SaleLineRequest{{ItemID: "MED001", Quantity: 1}}, PaymentMethod: "Cash"},
			field: "customerId",
		},
		{
			name:  "no lines",
			req:   domain.SaleCreateRequest{CustomerID: "CUST001", PaymentMethod: "Cash"},
			field: "lineItems",
		},
		{
			name:  "unknown payment method",
			req:   domain.SaleCreateRequest{CustomerID: "CUST001", LineItems: []domain.SaleLineRequest{{ItemID: "MED001", Quantity: 1}}, PaymentMethod: "Barter"},
			field: "paymentMethod",
		},
		{
			name:  "zero quantity",
			req:   domain.SaleCreateRequest{CustomerID: "CUST001", LineItems: []domain.SaleLineRequest{{ItemID: "MED001", Quantity: 0}}, PaymentMethod: "Cash"},
			field: "lineItems[0].quantity",
		},
		{
			name: "duplicate item",
			req: domain.SaleCreateRequest{
				CustomerID: "CUST001",
				LineItems: []domain.SaleLineRequest{
					{ItemID: "MED001", Quantity: 1},
					{ItemID: "MED003", Quantity: 1},
					{ItemID: "MED001", Quantity: 2},
				},
				PaymentMethod: "Cash",
			},
			field: "lineItems[2].itemId",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordSale(ctx, tc.req)
			require.ErrorIs(t, err, store.ErrValidation)

			var validation *store.ValidationError
			require.True(t, errors.As(err, &validation))
			assert.Equal(t, tc.field, validation.Field)
		})
	}

	item, err := repo.GetInventoryItem(ctx, memory.DemoAccountID, "MED001")
	require.NoError(t, err)
	assert.Equal(t, 450, item.Stock)
}

func TestRecordSaleUnknownReferences(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := ownerContext()

	_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		CustomerID:    "CUST404",
		LineItems:     []domain.SaleLineRequest{{ItemID: "MED001", Quantity: 1}},
		PaymentMethod: "Cash",
	})
	require.ErrorIs(t, err, store.ErrValidation)
	require.ErrorIs(t, err, store.ErrCustomerNotFound)

	_, err = svc.RecordSale(ctx, domain.SaleCreateRequest{
		CustomerID: "CUST001",
		LineItems: []domain.SaleLineRequest{
			{ItemID: "MED001", Quantity: 1},
			{ItemID: "MED999", Quantity: 1},
		},
		PaymentMethod: "Cash",
	})
	require.ErrorIs(t, err, store.ErrItemNotFound)
	var lineErr *store.LineItemError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, "MED999", lineErr.ItemID)

	item, err := repo.GetInventoryItem(ctx, memory.DemoAccountID, "MED001")
	require.NoError(t, err)
	assert.Equal(t, 450, item.Stock)
}

func TestConcurrentSalesCompeteForLastUnits(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := ownerContext()
	price := money("2.00")

	item, err := svc.CreateInventoryItem(ctx, domain.InventoryItemRequest{Name: "Zinc 20mg", Stock: 10, UnitPrice: &price})
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		totals int
	)
	for _, customerID := range []string{"CUST001", "CUST003"} {
		wg.Add(1)
		go func(customerID string) {
			defer wg.Done()
			_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
				CustomerID:    customerID,
				LineItems:     []domain.SaleLineRequest{{ItemID: item.ID, Quantity: 6}},
				PaymentMethod: "Cash",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			totals++
		}(customerID)
	}
	wg.Wait()

	assert.Equal(t, 1, totals)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], store.ErrInsufficientStock)
	var lineErr *store.LineItemError
	require.True(t, errors.As(errs[0], &lineErr))
	assert.Equal(t, 4, lineErr.Available)

	stored, err := repo.GetInventoryItem(ctx, memory.DemoAccountID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Stock)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := ownerContext()
	price := money("1.25")

	item, err := svc.CreateInventoryItem(ctx, domain.InventoryItemRequest{Name: "ORS Sachet", Stock: 20, UnitPrice: &price})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
				CustomerID:    "CUST003",
				LineItems:     []domain.SaleLineRequest{{ItemID: item.ID, Quantity: 1}},
				PaymentMethod: "MobileMoney",
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, store.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, succeeded)
	stored, err := repo.GetInventoryItem(ctx, memory.DemoAccountID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Stock)

	customer, err := repo.GetCustomer(ctx, memory.DemoAccountID, "CUST003")
	require.NoError(t, err)
	assert.True(t, customer.TotalPurchases.Equal(money("2365.25")), "purchases %s", customer.TotalPurchases)
}

func TestRecordSaleRetriesOnceOnWriteConflict(t *testing.T) {
	repo := &conflictingRepo{Repository: memory.NewSeeded(), failures: 1}
	statsCache := cache.NewMemory()
	svc := New(repo, advisor.New(statsCache, time.Minute, 150, 60), statsCache, Options{SaleTxTimeout: time.Second})
	ctx := ownerContext()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		CustomerID:    "CUST001",
		LineItems:     []domain.SaleLineRequest{{ItemID: "MED004", Quantity: 3}},
		PaymentMethod: "Card",
	})
	require.NoError(t, err)
	assert.True(t, sale.Total.Equal(money("12.00")))
	assert.Equal(t, 2, repo.attempts)

	item, err := repo.GetInventoryItem(ctx, memory.DemoAccountID, "MED004")
	require.NoError(t, err)
	assert.Equal(t, 517, item.Stock)
}

func TestRecordSaleSecondConflictIsStoreUnavailable(t *testing.T) {
	repo := &conflictingRepo{Repository: memory.NewSeeded(), failures: 2}
	svc := New(repo, nil, nil, Options{SaleTxTimeout: time.Second})
	ctx := ownerContext()

	_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		CustomerID:    "CUST001",
		LineItems:     []domain.SaleLineRequest{{ItemID: "MED004", Quantity: 3}},
		PaymentMethod: "Card",
	})
	require.ErrorIs(t, err, store.ErrStoreUnavailable)
	assert.Equal(t, 2, repo.attempts)

	item, err := repo.GetInventoryItem(ctx, memory.DemoAccountID, "MED004")
	require.NoError(t, err)
	assert.Equal(t, 520, item.Stock)
}

// slowRepo holds each unit of work open past its deadline.
type slowRepo struct {
	store.Repository
	delay time.Duration
}

func (r *slowRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, uow store.UnitOfWork) error) error {
	return r.Repository.RunInTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		if err := fn(ctx, uow); err != nil {
			return err
		}
		time.Sleep(r.delay)
		return nil
	})
}

func TestRecordSaleTimeoutRollsBack(t *testing.T) {
	repo := &slowRepo{Repository: memory.NewSeeded(), delay: 50 * time.Millisecond}
	svc := New(repo, nil, nil, Options{SaleTxTimeout: 10 * time.Millisecond})
	ctx := ownerContext()

	_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		CustomerID:    "CUST001",
		LineItems:     []domain.SaleLineRequest{{ItemID: "MED001", Quantity: 1}},
		PaymentMethod: "Cash",
	})
	require.ErrorIs(t, err, store.ErrStoreUnavailable)

	item, err := repo.GetInventoryItem(ctx, memory.DemoAccountID, "MED001")
	require.NoError(t, err)
	assert.Equal(t, 450, item.Stock)
}

func TestSalesInRange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := ownerContext()

	sales, err := svc.SalesInRange(ctx, "2025-11-10", "2025-11-10")
	require.NoError(t, err)
	assert.Len(t, sales, 2)

	sales, err = svc.SalesInRange(ctx, "2025-11-01", "2025-11-30")
	require.NoError(t, err)
	assert.Len(t, sales, 3)

	_, err = svc.SalesInRange(ctx, "2025-11-10", "")
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.SalesInRange(ctx, "2025-11-10", "2025-11-01")
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.SalesInRange(ctx, "10/11/2025", "2025-11-30")
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestDeleteSaleKeepsStockAndBalances(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := ownerContext()

	require.NoError(t, svc.DeleteSale(ctx, "SALE002"))
	_, err := svc.GetSale(ctx, "SALE002")
	require.ErrorIs(t, err, store.ErrNotFound)

	customer, err := repo.GetCustomer(ctx, memory.DemoAccountID, "CUST002")
	require.NoError(t, err)
	assert.True(t, customer.CreditBalance.Equal(money("150")))

	require.ErrorIs(t, svc.DeleteSale(ctx, "SALE002"), store.ErrNotFound)
}
