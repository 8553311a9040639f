package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
	"mypharma/backend/internal/xid"
)

// Store keeps every table in maps keyed by accountID/rowID behind one lock.
// RunInTx holds the write lock for the whole unit, which serializes sales.
type Store struct {
	mu         sync.RWMutex
	accounts   map[string]domain.Account
	inventory  map[string]domain.InventoryItem
	customers  map[string]domain.Customer
	sales      map[string]domain.Sale
	categories map[string]domain.Category
	suppliers  map[string]domain.Supplier
	auditLogs  []domain.AuditLog
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts:   make(map[string]domain.Account),
		inventory:  make(map[string]domain.InventoryItem),
		customers:  make(map[string]domain.Customer),
		sales:      make(map[string]domain.Sale),
		categories: make(map[string]domain.Category),
		suppliers:  make(map[string]domain.Supplier),
		auditLogs:  make([]domain.AuditLog, 0, 128),
	}
}

func rowKey(accountID string, id string) string {
	return accountID + "/" + id
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, uow store.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uow := &unitOfWork{
		store:     s,
		inventory: make(map[string]domain.InventoryItem),
		customers: make(map[string]domain.Customer),
	}
	if err := fn(ctx, uow); err != nil {
		return err
	}
	// A unit that outlived its deadline is discarded rather than published late.
	if err := ctx.Err(); err != nil {
		return err
	}
	uow.commit()
	return nil
}

// unitOfWork stages changed rows; nothing reaches the Store maps until commit.
type unitOfWork struct {
	store     *Store
	inventory map[string]domain.InventoryItem
	customers map[string]domain.Customer
	sales     []domain.Sale
}

func (u *unitOfWork) item(accountID string, itemID string) (domain.InventoryItem, bool) {
	key := rowKey(accountID, itemID)
	if staged, ok := u.inventory[key]; ok {
		return staged, true
	}
	item, ok := u.store.inventory[key]
	return item, ok
}

func (u *unitOfWork) customer(accountID string, customerID string) (domain.Customer, bool) {
	key := rowKey(accountID, customerID)
	if staged, ok := u.customers[key]; ok {
		return staged, true
	}
	customer, ok := u.store.customers[key]
	return customer, ok
}

func (u *unitOfWork) LockInventoryItems(_ context.Context, accountID string, itemIDs []string) (map[string]domain.InventoryItem, error) {
	rows := make(map[string]domain.InventoryItem, len(itemIDs))
	for _, id := range itemIDs {
		if item, ok := u.item(accountID, id); ok {
			rows[id] = item
		}
	}
	return rows, nil
}

func (u *unitOfWork) LockCustomer(_ context.Context, accountID string, customerID string) (*domain.Customer, error) {
	customer, ok := u.customer(accountID, customerID)
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	return &customer, nil
}

func (u *unitOfWork) DecrementStock(_ context.Context, accountID string, itemID string, qty int) error {
	if qty < 1 {
		return store.Invalid("quantity", "must be positive")
	}
	item, ok := u.item(accountID, itemID)
	if !ok {
		return store.ErrItemNotFound
	}
	if item.Stock < qty {
		return store.ErrInsufficientStock
	}
	item.Stock -= qty
	u.inventory[rowKey(accountID, itemID)] = item
	return nil
}

func (u *unitOfWork) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := u.store.sales[rowKey(sale.AccountID, sale.ID)]; exists {
		return store.ErrDuplicate
	}
	u.sales = append(u.sales, cloneSale(sale))
	return nil
}

func (u *unitOfWork) ApplyCustomerPurchase(_ context.Context, accountID string, customerID string, amount decimal.Decimal, credit bool, visit domain.Date) error {
	customer, ok := u.customer(accountID, customerID)
	if !ok {
		return store.ErrCustomerNotFound
	}
	customer.TotalPurchases = customer.TotalPurchases.Add(amount)
	customer.LastVisit = visit
	if credit {
		customer.CreditBalance = customer.CreditBalance.Add(amount)
	}
	u.customers[rowKey(accountID, customerID)] = customer
	return nil
}

func (u *unitOfWork) ApplyCustomerPayment(_ context.Context, accountID string, customerID string, amount decimal.Decimal) error {
	customer, ok := u.customer(accountID, customerID)
	if !ok {
		return store.ErrCustomerNotFound
	}
	if amount.GreaterThan(customer.CreditBalance) {
		return store.Invalid("amount", "exceeds outstanding credit")
	}
	customer.CreditBalance = customer.CreditBalance.Sub(amount)
	u.customers[rowKey(accountID, customerID)] = customer
	return nil
}

func (u *unitOfWork) commit() {
	for key, item := range u.inventory {
		u.store.inventory[key] = item
	}
	for key, customer := range u.customers {
		u.store.customers[key] = customer
	}
	for _, sale := range u.sales {
		u.store.sales[rowKey(sale.AccountID, sale.ID)] = sale
	}
}

func (s *Store) CreateAccount(_ context.Context, account domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if account.Email == "" || account.PasswordHash == "" {
		return nil, store.Invalid("email", "and password are required")
	}
	for _, existing := range s.accounts {
		if existing.Email == account.Email {
			return nil, store.ErrDuplicate
		}
	}
	if account.ID == "" {
		account.ID = xid.New("acc")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.ID] = account
	created := account
	return &created, nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, account := range s.accounts {
		if account.Email == email {
			found := account
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetAccountByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &account, nil
}

func (s *Store) SetAccountPIN(_ context.Context, accountID string, pinHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	account.PINHash = pinHash
	s.accounts[accountID] = account
	return nil
}

func (s *Store) ListAccounts(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt.Before(accounts[j].CreatedAt) })
	return accounts, nil
}

func (s *Store) ListInventory(_ context.Context, accountID string) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.inventoryOf(accountID)
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (s *Store) inventoryOf(accountID string) []domain.InventoryItem {
	items := make([]domain.InventoryItem, 0, 32)
	for _, item := range s.inventory {
		if item.AccountID == accountID {
			items = append(items, item)
		}
	}
	return items
}

func (s *Store) GetInventoryItem(_ context.Context, accountID string, itemID string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.inventory[rowKey(accountID, itemID)]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	return &item, nil
}

func (s *Store) CreateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if item.Stock < 0 || item.UnitPrice.IsNegative() {
		return nil, store.Invalid("stock", "and price must not be negative")
	}
	if item.Stock > store.MaxStock {
		return nil, store.Invalid("stock", fmt.Sprintf("must not exceed %d", store.MaxStock))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = xid.New("med")
	}
	key := rowKey(item.AccountID, item.ID)
	if _, exists := s.inventory[key]; exists {
		return nil, store.ErrDuplicate
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.inventory[key] = item
	created := item
	return &created, nil
}

func (s *Store) UpdateInventoryItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(item.AccountID, item.ID)
	existing, ok := s.inventory[key]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	existing.Name = item.Name
	existing.Category = item.Category
	existing.UnitPrice = item.UnitPrice
	existing.Expiry = item.Expiry
	existing.Supplier = item.Supplier
	s.inventory[key] = existing
	return &existing, nil
}

func (s *Store) DeleteInventoryItem(_ context.Context, accountID string, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(accountID, itemID)
	if _, ok := s.inventory[key]; !ok {
		return store.ErrItemNotFound
	}
	delete(s.inventory, key)
	return nil
}

func (s *Store) ListLowStock(_ context.Context, accountID string, threshold int) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.InventoryItem, 0, 16)
	for _, item := range s.inventoryOf(accountID) {
		if item.Stock < threshold {
			low = append(low, item)
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return low[i].Stock < low[j].Stock })
	return low, nil
}

func (s *Store) IncreaseStock(_ context.Context, accountID string, itemID string, qty int) (*domain.InventoryItem, error) {
	if qty < 1 {
		return nil, store.Invalid("quantity", "must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(accountID, itemID)
	item, ok := s.inventory[key]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	if qty > store.MaxStock-item.Stock {
		return nil, store.Invalid("quantity", fmt.Sprintf("would raise stock above %d", store.MaxStock))
	}
	item.Stock += qty
	s.inventory[key] = item
	return &item, nil
}

func (s *Store) ListCustomers(_ context.Context, accountID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := s.customersOf(accountID)
	sort.Slice(customers, func(i, j int) bool { return customers[i].CreatedAt.After(customers[j].CreatedAt) })
	return customers, nil
}

func (s *Store) customersOf(accountID string) []domain.Customer {
	customers := make([]domain.Customer, 0, 32)
	for _, customer := range s.customers {
		if customer.AccountID == accountID {
			customers = append(customers, customer)
		}
	}
	return customers
}

func (s *Store) GetCustomer(_ context.Context, accountID string, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[rowKey(accountID, customerID)]
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	key := rowKey(customer.AccountID, customer.ID)
	if _, exists := s.customers[key]; exists {
		return nil, store.ErrDuplicate
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[key] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(customer.AccountID, customer.ID)
	existing, ok := s.customers[key]
	if !ok {
		return nil, store.ErrCustomerNotFound
	}
	existing.Name = customer.Name
	existing.Phone = customer.Phone
	existing.Email = customer.Email
	s.customers[key] = existing
	return &existing, nil
}

func (s *Store) DeleteCustomer(_ context.Context, accountID string, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(accountID, customerID)
	if _, ok := s.customers[key]; !ok {
		return store.ErrCustomerNotFound
	}
	delete(s.customers, key)
	return nil
}

func (s *Store) ListCustomersWithCredit(_ context.Context, accountID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	withCredit := make([]domain.Customer, 0, 16)
	for _, customer := range s.customersOf(accountID) {
		if customer.CreditBalance.IsPositive() {
			withCredit = append(withCredit, customer)
		}
	}
	sort.SliceStable(withCredit, func(i, j int) bool {
		return withCredit[i].CreditBalance.GreaterThan(withCredit[j].CreditBalance)
	})
	return withCredit, nil
}

func (s *Store) ListSales(_ context.Context, accountID string, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 64)
	for _, sale := range s.sales {
		if sale.AccountID != accountID {
			continue
		}
		if filter.Start != nil && sale.Date.Before(filter.Start.Time) {
			continue
		}
		if filter.End != nil && sale.Date.After(filter.End.Time) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	sort.Slice(sales, func(i, j int) bool {
		if !sales[i].Date.Equal(sales[j].Date.Time) {
			return sales[i].Date.After(sales[j].Date.Time)
		}
		return sales[i].CreatedAt.After(sales[j].CreatedAt)
	})
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, accountID string, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[rowKey(accountID, saleID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneSale(sale)
	return &found, nil
}

func (s *Store) DeleteSale(_ context.Context, accountID string, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(accountID, saleID)
	if _, ok := s.sales[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.sales, key)
	return nil
}

func (s *Store) ListCategories(_ context.Context, accountID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, 16)
	for _, category := range s.categories {
		if category.AccountID == accountID {
			categories = append(categories, category)
		}
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categories[rowKey(category.AccountID, category.ID)] = category
	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(category.AccountID, category.ID)
	existing, ok := s.categories[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Name = category.Name
	s.categories[key] = existing
	return &existing, nil
}

func (s *Store) DeleteCategory(_ context.Context, accountID string, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(accountID, categoryID)
	if _, ok := s.categories[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.categories, key)
	return nil
}

func (s *Store) ListSuppliers(_ context.Context, accountID string) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, 16)
	for _, supplier := range s.suppliers {
		if supplier.AccountID == accountID {
			suppliers = append(suppliers, supplier)
		}
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliers[rowKey(supplier.AccountID, supplier.ID)] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(supplier.AccountID, supplier.ID)
	existing, ok := s.suppliers[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Name = supplier.Name
	existing.Contact = supplier.Contact
	existing.Phone = supplier.Phone
	existing.Email = supplier.Email
	s.suppliers[key] = existing
	return &existing, nil
}

func (s *Store) DeleteSupplier(_ context.Context, accountID string, supplierID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey(accountID, supplierID)
	if _, ok := s.suppliers[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.suppliers, key)
	return nil
}

func (s *Store) GetDashboardStats(_ context.Context, accountID string) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{
		TotalRevenue:      decimal.Zero,
		OutstandingCredit: decimal.Zero,
		StockValue:        decimal.Zero,
	}
	for _, sale := range s.sales {
		if sale.AccountID != accountID {
			continue
		}
		stats.TotalSales++
		stats.TotalRevenue = stats.TotalRevenue.Add(sale.Total)
	}
	for _, item := range s.inventoryOf(accountID) {
		stats.ProductsInStock += item.Stock
		stats.StockValue = stats.StockValue.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Stock))))
	}
	for _, customer := range s.customersOf(accountID) {
		stats.TotalCustomers++
		if customer.CreditBalance.IsPositive() {
			stats.OutstandingCredit = stats.OutstandingCredit.Add(customer.CreditBalance)
		}
	}
	return stats, nil
}

func (s *Store) TopMedicines(_ context.Context, accountID string, limit int) ([]domain.TopMedicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.inventoryOf(accountID)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Stock > items[j].Stock })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	top := make([]domain.TopMedicine, 0, len(items))
	for _, item := range items {
		top = append(top, domain.TopMedicine{Name: item.Name, Category: item.Category, Stock: item.Stock, UnitPrice: item.UnitPrice})
	}
	return top, nil
}

func (s *Store) SalesByCategory(_ context.Context, accountID string) ([]domain.CategorySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCategory := make(map[string]*domain.CategorySales)
	for _, item := range s.inventoryOf(accountID) {
		row, ok := byCategory[item.Category]
		if !ok {
			row = &domain.CategorySales{Category: item.Category, Total: decimal.Zero}
			byCategory[item.Category] = row
		}
		row.Count++
		row.Total = row.Total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Stock))))
	}

	result := make([]domain.CategorySales, 0, len(byCategory))
	for _, row := range byCategory {
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Total.Equal(result[j].Total) {
			return result[i].Total.GreaterThan(result[j].Total)
		}
		return result[i].Category < result[j].Category
	})
	return result, nil
}

func (s *Store) MonthlySales(_ context.Context, accountID string, since time.Time) ([]domain.MonthlySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMonth := make(map[string]*domain.MonthlySales)
	for _, sale := range s.sales {
		if sale.AccountID != accountID || sale.Date.Before(since) {
			continue
		}
		month := sale.Date.Format("2006-01")
		row, ok := byMonth[month]
		if !ok {
			row = &domain.MonthlySales{Month: month, Revenue: decimal.Zero}
			byMonth[month] = row
		}
		row.SalesCount++
		row.Revenue = row.Revenue.Add(sale.Total)
	}

	result := make([]domain.MonthlySales, 0, len(byMonth))
	for _, row := range byMonth {
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Month < result[j].Month })
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, accountID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		if s.auditLogs[i].AccountID != accountID {
			continue
		}
		logs = append(logs, s.auditLogs[i])
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.LineItems = slices.Clone(src.LineItems)
	return dst
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		zap.S().Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	return string(hash)
}
