package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
	"mypharma/backend/internal/store/memory"
)

func TestCreateCustomerStartsWithZeroBalances(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := ownerContext()

	_, err := svc.CreateCustomer(ctx, domain.CustomerRequest{Name: "Alice"})
	require.ErrorIs(t, err, store.ErrValidation)

	customer, err := svc.CreateCustomer(ctx, domain.CustomerRequest{Name: "Alice Uwase", Phone: "+250788000999"})
	require.NoError(t, err)
	assert.True(t, customer.CreditBalance.IsZero())
	assert.True(t, customer.TotalPurchases.IsZero())

	updated, err := svc.UpdateCustomer(ctx, customer.ID, domain.CustomerRequest{Name: "Alice U.", Phone: "+250788000999", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", updated.Email)

	require.NoError(t, svc.DeleteCustomer(ctx, customer.ID))
	_, err = svc.GetCustomer(ctx, customer.ID)
	require.ErrorIs(t, err, store.ErrCustomerNotFound)
}

func TestUpdateCustomerDropsCachedStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := ownerContext()

	_, err := svc.DashboardStats(ctx)
	require.NoError(t, err)
	var cached domain.DashboardStats
	found, err := svc.cache.Get(ctx, statsCacheKey(memory.DemoAccountID), &cached)
	require.NoError(t, err)
	require.True(t, found)

	_, err = svc.UpdateCustomer(ctx, "CUST001", domain.CustomerRequest{Name: "John D.", Phone: "+250788123456"})
	require.NoError(t, err)

	found, err = svc.cache.Get(ctx, statsCacheKey(memory.DemoAccountID), &cached)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecordCreditPayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := ownerContext()

	withCredit, err := svc.CustomersWithCredit(ctx)
	require.NoError(t, err)
	require.Len(t, withCredit, 1)
	assert.Equal(t, "CUST002", withCredit[0].ID)

	customer, err := svc.RecordCreditPayment(ctx, "CUST002", domain.CreditPaymentRequest{Amount: money("50")})
	require.NoError(t, err)
	assert.True(t, customer.CreditBalance.Equal(money("100")))

	_, err = svc.RecordCreditPayment(ctx, "CUST002", domain.CreditPaymentRequest{Amount: money("100.01")})
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.RecordCreditPayment(ctx, "CUST002", domain.CreditPaymentRequest{Amount: money("0")})
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.RecordCreditPayment(ctx, "CUST404", domain.CreditPaymentRequest{Amount: money("1")})
	require.ErrorIs(t, err, store.ErrCustomerNotFound)

	stored, err := svc.GetCustomer(ctx, "CUST002")
	require.NoError(t, err)
	assert.True(t, stored.CreditBalance.Equal(money("100")))

	customer, err = svc.RecordCreditPayment(ctx, "CUST002", domain.CreditPaymentRequest{Amount: money("100")})
	require.NoError(t, err)
	assert.True(t, customer.CreditBalance.IsZero())

	withCredit, err = svc.CustomersWithCredit(ctx)
	require.NoError(t, err)
	assert.Empty(t, withCredit)
}
