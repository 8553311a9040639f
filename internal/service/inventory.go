package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
)

func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListInventory(ctx, accountID)
}

func (s *Service) GetInventoryItem(ctx context.Context, itemID string) (domain.InventoryItem, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	item, err := s.repo.GetInventoryItem(ctx, accountID, itemID)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return *item, nil
}

func (s *Service) CreateInventoryItem(ctx context.Context, req domain.InventoryItemRequest) (domain.InventoryItem, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	item, err := inventoryFromRequest(req)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if req.Stock < 0 {
		return domain.InventoryItem{}, store.Invalid("stock", "must not be negative")
	}
	if req.Stock > store.MaxStock {
		return domain.InventoryItem{}, store.Invalid("stock", fmt.Sprintf("must not exceed %d", store.MaxStock))
	}
	item.AccountID = accountID
	item.Stock = req.Stock

	created, err := s.repo.CreateInventoryItem(ctx, item)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	s.invalidate(ctx, accountID)
	s.logAudit(ctx, "inventory_create", "inventory", created.ID, fmt.Sprintf("name=%s,stock=%d,price=%s", created.Name, created.Stock, created.UnitPrice.StringFixed(2)))
	return *created, nil
}

// UpdateInventoryItem edits descriptive fields and price. Stock only moves
// through sales and restocks, so req.Stock is ignored here.
func (s *Service) UpdateInventoryItem(ctx context.Context, itemID string, req domain.InventoryItemRequest) (domain.InventoryItem, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	item, err := inventoryFromRequest(req)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	item.ID = itemID
	item.AccountID = accountID

	updated, err := s.repo.UpdateInventoryItem(ctx, item)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	s.invalidate(ctx, accountID)
	s.logAudit(ctx, "inventory_update", "inventory", updated.ID, fmt.Sprintf("name=%s,price=%s", updated.Name, updated.UnitPrice.StringFixed(2)))
	return *updated, nil
}

func (s *Service) DeleteInventoryItem(ctx context.Context, itemID string) error {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteInventoryItem(ctx, accountID, itemID); err != nil {
		return err
	}
	s.invalidate(ctx, accountID)
	s.logAudit(ctx, "inventory_delete", "inventory", itemID, "")
	return nil
}

func (s *Service) LowStock(ctx context.Context, threshold int) ([]domain.InventoryItem, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = s.opts.LowStockThreshold
	}
	return s.repo.ListLowStock(ctx, accountID, threshold)
}

// Restock adds received units to an item. It is the only way stock grows.
func (s *Service) Restock(ctx context.Context, itemID string, req domain.RestockRequest) (domain.InventoryItem, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if req.Quantity <= 0 {
		return domain.InventoryItem{}, store.Invalid("quantity", "must be greater than zero")
	}
	if req.Quantity > store.MaxStock {
		return domain.InventoryItem{}, store.Invalid("quantity", fmt.Sprintf("must not exceed %d", store.MaxStock))
	}

	item, err := s.repo.IncreaseStock(ctx, accountID, itemID, req.Quantity)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	s.invalidate(ctx, accountID)
	s.logAudit(ctx, "inventory_restock", "inventory", item.ID, fmt.Sprintf("qty=%d,stock=%d", req.Quantity, item.Stock))
	return *item, nil
}

// CheckStock reports whether an item currently holds at least qty units. When
// it does not, the availability is returned together with a *store.LineItemError
// wrapping ErrInsufficientStock.
func (s *Service) CheckStock(ctx context.Context, itemID string, qty int) (domain.StockAvailability, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.StockAvailability{}, err
	}
	if qty <= 0 {
		return domain.StockAvailability{}, store.Invalid("quantity", "must be greater than zero")
	}

	item, err := s.repo.GetInventoryItem(ctx, accountID, itemID)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return domain.StockAvailability{}, &store.LineItemError{ItemID: itemID, Requested: qty, Err: store.ErrItemNotFound}
		}
		return domain.StockAvailability{}, err
	}

	availability := domain.StockAvailability{
		ItemID:     item.ID,
		Requested:  qty,
		Available:  item.Stock,
		Sufficient: item.Stock >= qty,
	}
	if !availability.Sufficient {
		return availability, &store.LineItemError{ItemID: itemID, Requested: qty, Available: item.Stock, Err: store.ErrInsufficientStock}
	}
	return availability, nil
}

func (s *Service) InventoryAlerts(ctx context.Context) (domain.InventoryAlertReport, error) {
	accountID, err := s.accountID(ctx)
	if err != nil {
		return domain.InventoryAlertReport{}, err
	}
	return s.advisor.Alerts(ctx, accountID, func(ctx context.Context) ([]domain.InventoryItem, error) {
		return s.repo.ListInventory(ctx, accountID)
	})
}

// ScanInventoryAlerts refreshes the alert cache of every account. It runs
// from the scheduler without a request actor.
func (s *Service) ScanInventoryAlerts(ctx context.Context) (int, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, account := range accounts {
		items, err := s.repo.ListInventory(ctx, account.ID)
		if err != nil {
			return total, fmt.Errorf("list inventory for %s: %w", account.ID, err)
		}
		report := s.advisor.Refresh(ctx, account.ID, items)
		total += len(report.Alerts)
	}
	return total, nil
}

func inventoryFromRequest(req domain.InventoryItemRequest) (domain.InventoryItem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.InventoryItem{}, store.Invalid("name", "is required")
	}
	if req.UnitPrice == nil {
		return domain.InventoryItem{}, store.Invalid("unitPrice", "is required")
	}
	if req.UnitPrice.IsNegative() {
		return domain.InventoryItem{}, store.Invalid("unitPrice", "must not be negative")
	}

	item := domain.InventoryItem{
		Name:      name,
		Category:  strings.TrimSpace(req.Category),
		UnitPrice: req.UnitPrice.Round(2),
		Supplier:  strings.TrimSpace(req.Supplier),
	}
	if req.Expiry != nil {
		item.Expiry = *req.Expiry
	}
	return item, nil
}
