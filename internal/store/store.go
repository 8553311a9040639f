package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"mypharma/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("already exists")
	ErrValidation        = errors.New("ValidationError")
	ErrItemNotFound      = errors.New("ItemNotFound")
	ErrCustomerNotFound  = errors.New("CustomerNotFound")
	ErrInsufficientStock = errors.New("InsufficientStock")
	ErrWriteConflict     = errors.New("WriteConflict")
	ErrStoreUnavailable  = errors.New("StoreUnavailable")
)

// MaxStock is the largest unit count an inventory row may hold. It matches
// the INTEGER stock column.
const MaxStock = math.MaxInt32

// ValidationError describes malformed caller input. It matches ErrValidation
// and, when set, Cause.
type ValidationError struct {
	Field  string
	Reason string
	Cause  error
}

func Invalid(field string, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrValidation, e.Cause}
	}
	return []error{ErrValidation}
}

// LineItemError pins a sale failure to one line item. Err is ErrItemNotFound
// or ErrInsufficientStock.
type LineItemError struct {
	Index     int
	ItemID    string
	Requested int
	Available int
	Err       error
}

func (e *LineItemError) Error() string {
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("line %d (%s): %s: requested %d, available %d", e.Index+1, e.ItemID, e.Err, e.Requested, e.Available)
	}
	return fmt.Sprintf("line %d (%s): %s", e.Index+1, e.ItemID, e.Err)
}

func (e *LineItemError) Unwrap() error {
	return e.Err
}

// UnitOfWork is the set of row operations available inside RunInTx. Every
// change made through it commits together or not at all.
type UnitOfWork interface {
	// LockInventoryItems returns the locked rows that exist; missing ids are
	// simply absent from the map.
	LockInventoryItems(ctx context.Context, accountID string, itemIDs []string) (map[string]domain.InventoryItem, error)
	LockCustomer(ctx context.Context, accountID string, customerID string) (*domain.Customer, error)
	DecrementStock(ctx context.Context, accountID string, itemID string, qty int) error
	InsertSale(ctx context.Context, sale domain.Sale) error
	ApplyCustomerPurchase(ctx context.Context, accountID string, customerID string, amount decimal.Decimal, credit bool, visit domain.Date) error
	ApplyCustomerPayment(ctx context.Context, accountID string, customerID string, amount decimal.Decimal) error
}

type Repository interface {
	// RunInTx runs fn as one atomic unit. A detected concurrent modification
	// is reported as ErrWriteConflict.
	RunInTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error

	CreateAccount(ctx context.Context, account domain.Account) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetAccountByID(ctx context.Context, id string) (*domain.Account, error)
	SetAccountPIN(ctx context.Context, accountID string, pinHash string) error
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	ListInventory(ctx context.Context, accountID string) ([]domain.InventoryItem, error)
	GetInventoryItem(ctx context.Context, accountID string, itemID string) (*domain.InventoryItem, error)
	CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	DeleteInventoryItem(ctx context.Context, accountID string, itemID string) error
	ListLowStock(ctx context.Context, accountID string, threshold int) ([]domain.InventoryItem, error)
	// IncreaseStock fails with a ValidationError on "quantity" when the new
	// stock would pass MaxStock.
	IncreaseStock(ctx context.Context, accountID string, itemID string, qty int) (*domain.InventoryItem, error)

	ListCustomers(ctx context.Context, accountID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, accountID string, customerID string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, accountID string, customerID string) error
	ListCustomersWithCredit(ctx context.Context, accountID string) ([]domain.Customer, error)

	ListSales(ctx context.Context, accountID string, filter domain.SaleFilter) ([]domain.Sale, error)
	GetSale(ctx context.Context, accountID string, saleID string) (*domain.Sale, error)
	DeleteSale(ctx context.Context, accountID string, saleID string) error

	ListCategories(ctx context.Context, accountID string) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, accountID string, categoryID string) error

	ListSuppliers(ctx context.Context, accountID string) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, accountID string, supplierID string) error

	GetDashboardStats(ctx context.Context, accountID string) (domain.DashboardStats, error)
	TopMedicines(ctx context.Context, accountID string, limit int) ([]domain.TopMedicine, error)
	SalesByCategory(ctx context.Context, accountID string) ([]domain.CategorySales, error)
	MonthlySales(ctx context.Context, accountID string, since time.Time) ([]domain.MonthlySales, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, accountID string, limit int) ([]domain.AuditLog, error)
}
