package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx, accountID)
}

func (s *Service) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.GetCustomer(ctx, accountID, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

// CreateCustomer registers a customer with zero balances. Balances move only
// through sales and credit payments.
func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	customer, err := customerFromRequest(req)
	if err != nil {
		return domain.Customer{}, err
	}
	customer.AccountID = accountID
	customer.CreditBalance = decimal.Zero
	customer.TotalPurchases = decimal.Zero

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}

	s.invalidate(ctx, accountID)
	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, customerID string, req domain.CustomerRequest) (domain.Customer, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	customer, err := customerFromRequest(req)
	if err != nil {
		return domain.Customer{}, err
	}
	customer.ID = customerID
	customer.AccountID = accountID

	updated, err := s.repo.UpdateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}

	s.invalidate(ctx, accountID)
	s.logAudit(ctx, "customer_update", "customer", updated.ID, "name="+updated.Name)
	return *updated, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, customerID string) error {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, accountID, customerID); err != nil {
		return err
	}
	s.invalidate(ctx, accountID)
	s.logAudit(ctx, "customer_delete", "customer", customerID, "")
	return nil
}

func (s *Service) CustomersWithCredit(ctx context.Context) ([]domain.Customer, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCustomersWithCredit(ctx, accountID)
}

// RecordCreditPayment lowers a customer's outstanding credit. Paying more than
// the outstanding balance is rejected.
func (s *Service) RecordCreditPayment(ctx context.Context, customerID string, req domain.CreditPaymentRequest) (domain.Customer, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return domain.Customer{}, store.Invalid("amount", "must be greater than zero")
	}

	var updated domain.Customer
	err = s.runAtomic(ctx, "credit_payment", func(ctx context.Context, uow store.UnitOfWork) error {
		customer, err := uow.LockCustomer(ctx, accountID, customerID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(customer.CreditBalance) {
			return store.Invalid("amount", fmt.Sprintf("exceeds outstanding credit %s", customer.CreditBalance.StringFixed(2)))
		}
		if err := uow.ApplyCustomerPayment(ctx, accountID, customerID, amount); err != nil {
			return err
		}
		updated = *customer
		updated.CreditBalance = customer.CreditBalance.Sub(amount)
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.invalidate(ctx, accountID)
	s.logAudit(ctx, "credit_payment", "customer", customerID, fmt.Sprintf("amount=%s,remaining=%s", amount.StringFixed(2), updated.CreditBalance.StringFixed(2)))
	return updated, nil
}

func customerFromRequest(req domain.CustomerRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, store.Invalid("name", "is required")
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return domain.Customer{}, store.Invalid("phone", "is required")
	}
	return domain.Customer{
		Name:  name,
		Phone: phone,
		Email: strings.TrimSpace(req.Email),
	}, nil
}
