package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
	"mypharma/backend/internal/xid"
)

type saleInput struct {
	customerID string
	lines      []domain.SaleLineRequest
	method     domain.PaymentMethod
	date       domain.Date
}

// RecordSale checks stock, decrements it, records the sale and applies the
// customer balance effect as one atomic unit. The total is always computed
// from the locked item prices; a client-supplied total is ignored.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	input, err := s.validateSale(req)
	if err != nil {
		return domain.Sale{}, err
	}

	var sale domain.Sale
	err = s.runAtomic(ctx, "record_sale", func(ctx context.Context, uow store.UnitOfWork) error {
		built, err := s.applySale(ctx, uow, accountID, input)
		if err != nil {
			return err
		}
		sale = built
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	if req.Total != nil && !req.Total.Equal(sale.Total) {
		zap.S().Debugw("client total ignored", "sale_id", sale.ID, "client_total", req.Total.String(), "total", sale.Total.String())
	}

	s.invalidate(ctx, accountID)
	s.logAudit(ctx, "sale_create", "sale", sale.ID, fmt.Sprintf("customer=%s,lines=%d,total=%s,method=%s", sale.CustomerID, len(sale.LineItems), sale.Total.StringFixed(2), sale.PaymentMethod))
	zap.S().Infow("sale recorded", "sale_id", sale.ID, "account_id", accountID, "total", sale.Total.StringFixed(2), "payment_method", sale.PaymentMethod)
	return sale, nil
}

func (s *Service) validateSale(req domain.SaleCreateRequest) (saleInput, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return saleInput{}, store.Invalid("customerId", "is required")
	}
	if len(req.LineItems) == 0 {
		return saleInput{}, store.Invalid("lineItems", "must not be empty")
	}

	method, ok := domain.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return saleInput{}, store.Invalid("paymentMethod", "must be one of Cash, Credit, MobileMoney, Card")
	}

	seen := make(map[string]int, len(req.LineItems))
	lines := make([]domain.SaleLineRequest, 0, len(req.LineItems))
	for i, line := range req.LineItems {
		itemID := strings.TrimSpace(line.ItemID)
		if itemID == "" {
			return saleInput{}, store.Invalid(fmt.Sprintf("lineItems[%d].itemId", i), "is required")
		}
		if line.Quantity <= 0 {
			return saleInput{}, store.Invalid(fmt.Sprintf("lineItems[%d].quantity", i), "must be greater than zero")
		}
		if first, dup := seen[itemID]; dup {
			return saleInput{}, store.Invalid(fmt.Sprintf("lineItems[%d].itemId", i), fmt.Sprintf("duplicates lineItems[%d]", first))
		}
		seen[itemID] = i
		lines = append(lines, domain.SaleLineRequest{ItemID: itemID, Quantity: line.Quantity})
	}

	date := domain.NewDate(s.now())
	if req.Date != nil && !req.Date.IsZero() {
		date = *req.Date
	}

	return saleInput{customerID: customerID, lines: lines, method: method, date: date}, nil
}

// applySale is the body of the sale unit of work. Rows are locked items first
// in sorted id order, then the customer, so concurrent sales cannot deadlock.
func (s *Service) applySale(ctx context.Context, uow store.UnitOfWork, accountID string, input saleInput) (domain.Sale, error) {
	ids := make([]string, 0, len(input.lines))
	for _, line := range input.lines {
		ids = append(ids, line.ItemID)
	}
	sort.Strings(ids)

	items, err := uow.LockInventoryItems(ctx, accountID, ids)
	if err != nil {
		return domain.Sale{}, err
	}
	customer, err := uow.LockCustomer(ctx, accountID, input.customerID)
	if err != nil {
		if errors.Is(err, store.ErrCustomerNotFound) {
			return domain.Sale{}, &store.ValidationError{Field: "customerId", Reason: "does not resolve to a customer", Cause: store.ErrCustomerNotFound}
		}
		return domain.Sale{}, err
	}

	lineItems := make([]domain.LineItem, 0, len(input.lines))
	for i, line := range input.lines {
		item, ok := items[line.ItemID]
		if !ok {
			return domain.Sale{}, &store.LineItemError{Index: i, ItemID: line.ItemID, Requested: line.Quantity, Err: store.ErrItemNotFound}
		}
		if item.Stock < line.Quantity {
			return domain.Sale{}, &store.LineItemError{Index: i, ItemID: line.ItemID, Requested: line.Quantity, Available: item.Stock, Err: store.ErrInsufficientStock}
		}
		lineItems = append(lineItems, domain.LineItem{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Quantity:  line.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	for i, line := range input.lines {
		if err := uow.DecrementStock(ctx, accountID, line.ItemID, line.Quantity); err != nil {
			if errors.Is(err, store.ErrInsufficientStock) || errors.Is(err, store.ErrItemNotFound) {
				return domain.Sale{}, &store.LineItemError{Index: i, ItemID: line.ItemID, Requested: line.Quantity, Available: items[line.ItemID].Stock, Err: err}
			}
			return domain.Sale{}, err
		}
	}

	sale := domain.Sale{
		ID:            xid.New("sale"),
		AccountID:     accountID,
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		LineItems:     lineItems,
		Total:         domain.SaleTotal(lineItems),
		PaymentMethod: input.method,
		Date:          input.date,
		CreatedAt:     s.now().UTC(),
	}
	if err := uow.InsertSale(ctx, sale); err != nil {
		return domain.Sale{}, err
	}

	if err := uow.ApplyCustomerPurchase(ctx, accountID, customer.ID, sale.Total, input.method.Deferred(), input.date); err != nil {
		return domain.Sale{}, fmt.Errorf("balance update for customer %s: %w", customer.ID, err)
	}
	return sale, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, accountID, domain.SaleFilter{})
}

// SalesInRange lists sales dated within [start, end], both inclusive.
func (s *Service) SalesInRange(ctx context.Context, start string, end string) ([]domain.Sale, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return nil, store.Invalid("start", "and end dates are required")
	}

	from, err := domain.ParseDate(start)
	if err != nil {
		return nil, store.Invalid("start", err.Error())
	}
	to, err := domain.ParseDate(end)
	if err != nil {
		return nil, store.Invalid("end", err.Error())
	}
	if to.Before(from.Time) {
		return nil, store.Invalid("end", "must not be before start")
	}
	return s.repo.ListSales(ctx, accountID, domain.SaleFilter{Start: &from, End: &to})
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.GetSale(ctx, accountID, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// DeleteSale removes the sale record only. Stock and customer balances keep
// the effects of the sale.
func (s *Service) DeleteSale(ctx context.Context, saleID string) error {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSale(ctx, accountID, saleID); err != nil {
		return err
	}
	s.invalidate(ctx, accountID)
	s.logAudit(ctx, "sale_delete", "sale", saleID, "record removed; stock and balances not reversed")
	return nil
}
