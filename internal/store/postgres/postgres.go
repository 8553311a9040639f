package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
	"mypharma/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, uow store.UnitOfWork) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(ctx, &unitOfWork{tx: pgTx}); err != nil {
		return classify(err)
	}
	if err := pgTx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) LockInventoryItems(ctx context.Context, accountID string, itemIDs []string) (map[string]domain.InventoryItem, error) {
	rows, err := u.tx.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE account_id = $1 AND id = ANY($2)
		ORDER BY id
		FOR UPDATE
	`, accountID, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locked := make(map[string]domain.InventoryItem, len(itemIDs))
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		locked[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locked, nil
}

func (u *unitOfWork) LockCustomer(ctx context.Context, accountID string, customerID string) (*domain.Customer, error) {
	customer, err := scanCustomer(u.tx.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE account_id = $1 AND id = $2
		FOR UPDATE
	`, accountID, customerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCustomerNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (u *unitOfWork) DecrementStock(ctx context.Context, accountID string, itemID string, qty int) error {
	if qty < 1 {
		return store.Invalid("quantity", "must be positive")
	}
	res, err := u.tx.ExecContext(ctx, `
		UPDATE inventory_items
		SET stock = stock - $3
		WHERE account_id = $1 AND id = $2 AND stock >= $3
	`, accountID, itemID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := u.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM inventory_items WHERE account_id = $1 AND id = $2)
	`, accountID, itemID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrItemNotFound
	}
	return store.ErrInsufficientStock
}

func (u *unitOfWork) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO sales (account_id, id, customer_id, customer_name, total, payment_method, sale_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.AccountID, sale.ID, sale.CustomerID, sale.CustomerName, sale.Total, string(sale.PaymentMethod), sale.Date.Time, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}

	for i, line := range sale.LineItems {
		if _, err := u.tx.ExecContext(ctx, `
			INSERT INTO sale_items (account_id, sale_id, position, item_id, item_name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.AccountID, sale.ID, i, line.ItemID, line.ItemName, line.Quantity, line.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

func (u *unitOfWork) ApplyCustomerPurchase(ctx context.Context, accountID string, customerID string, amount decimal.Decimal, credit bool, visit domain.Date) error {
	res, err := u.tx.ExecContext(ctx, `
		UPDATE customers
		SET total_purchases = total_purchases + $3::numeric,
			credit_balance = credit_balance + CASE WHEN $4::boolean THEN $3::numeric ELSE 0 END,
			last_visit = $5
		WHERE account_id = $1 AND id = $2
	`, accountID, customerID, amount, credit, visit.Time)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrCustomerNotFound)
}

func (u *unitOfWork) ApplyCustomerPayment(ctx context.Context, accountID string, customerID string, amount decimal.Decimal) error {
	res, err := u.tx.ExecContext(ctx, `
		UPDATE customers
		SET credit_balance = credit_balance - $3::numeric
		WHERE account_id = $1 AND id = $2 AND credit_balance >= $3::numeric
	`, accountID, customerID, amount)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := u.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM customers WHERE account_id = $1 AND id = $2)
	`, accountID, customerID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrCustomerNotFound
	}
	return store.Invalid("amount", "exceeds outstanding credit")
}

func (s *Store) CreateAccount(ctx context.Context, account domain.Account) (*domain.Account, error) {
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if account.Email == "" || account.PasswordHash == "" {
		return nil, store.Invalid("email", "and password are required")
	}
	if account.ID == "" {
		account.ID = xid.New("acc")
	}
	if account.Role == "" {
		account.Role = "owner"
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, pharmacy_name, owner_name, email, phone, password_hash, pin_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		RETURNING created_at
	`, account.ID, account.PharmacyName, account.OwnerName, account.Email, account.Phone, account.PasswordHash, account.PINHash, account.Role).Scan(&account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &account, nil
}

const accountColumns = `id, pharmacy_name, owner_name, email, phone, password_hash, pin_hash, role, created_at`

func scanAccount(row rowScanner) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.PharmacyName, &a.OwnerName, &a.Email, &a.Phone, &a.PasswordHash, &a.PINHash, &a.Role, &a.CreatedAt)
	return a, err
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *Store) SetAccountPIN(ctx context.Context, accountID string, pinHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET pin_hash = $2 WHERE id = $1`, accountID, pinHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, 16)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

const inventoryColumns = `id, account_id, name, category, stock, unit_price, expiry, supplier, created_at`

func scanInventoryItem(row rowScanner) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := row.Scan(&item.ID, &item.AccountID, &item.Name, &item.Category, &item.Stock, &item.UnitPrice, &item.Expiry, &item.Supplier, &item.CreatedAt)
	return item, err
}

func (s *Store) queryInventory(ctx context.Context, query string, args ...any) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 64)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListInventory(ctx context.Context, accountID string) ([]domain.InventoryItem, error) {
	return s.queryInventory(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
}

func (s *Store) GetInventoryItem(ctx context.Context, accountID string, itemID string) (*domain.InventoryItem, error) {
	item, err := scanInventoryItem(s.db.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE account_id = $1 AND id = $2
	`, accountID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if item.Stock < 0 || item.UnitPrice.IsNegative() {
		return nil, store.Invalid("stock", "and price must not be negative")
	}
	if item.Stock > store.MaxStock {
		return nil, store.Invalid("stock", fmt.Sprintf("must not exceed %d", store.MaxStock))
	}
	if item.ID == "" {
		item.ID = xid.New("med")
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO inventory_items (account_id, id, name, category, stock, unit_price, expiry, supplier, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		RETURNING created_at
	`, item.AccountID, item.ID, item.Name, item.Category, item.Stock, item.UnitPrice, nullDate(item.Expiry), item.Supplier).Scan(&item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateInventoryItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	updated, err := scanInventoryItem(s.db.QueryRowContext(ctx, `
		UPDATE inventory_items
		SET name = $3, category = $4, unit_price = $5, expiry = $6, supplier = $7
		WHERE account_id = $1 AND id = $2
		RETURNING `+inventoryColumns+`
	`, item.AccountID, item.ID, item.Name, item.Category, item.UnitPrice, nullDate(item.Expiry), item.Supplier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrItemNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteInventoryItem(ctx context.Context, accountID string, itemID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE account_id = $1 AND id = $2`, accountID, itemID)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrItemNotFound)
}

func (s *Store) ListLowStock(ctx context.Context, accountID string, threshold int) ([]domain.InventoryItem, error) {
	return s.queryInventory(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory_items
		WHERE account_id = $1 AND stock < $2
		ORDER BY stock ASC
	`, accountID, threshold)
}

func (s *Store) IncreaseStock(ctx context.Context, accountID string, itemID string, qty int) (*domain.InventoryItem, error) {
	if qty < 1 {
		return nil, store.Invalid("quantity", "must be positive")
	}
	if qty > store.MaxStock {
		return nil, store.Invalid("quantity", fmt.Sprintf("would raise stock above %d", store.MaxStock))
	}
	item, err := scanInventoryItem(s.db.QueryRowContext(ctx, `
		UPDATE inventory_items
		SET stock = stock + $3
		WHERE account_id = $1 AND id = $2 AND stock <= $4::integer - $3::integer
		RETURNING `+inventoryColumns+`
	`, accountID, itemID, qty, store.MaxStock))
	if err == nil {
		return &item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// No row matched: either the item is missing or the guard refused the increase.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM inventory_items WHERE account_id = $1 AND id = $2)
	`, accountID, itemID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrItemNotFound
	}
	return nil, store.Invalid("quantity", fmt.Sprintf("would raise stock above %d", store.MaxStock))
}

const customerColumns = `id, account_id, name, phone, email, credit_balance, total_purchases, prescriptions, last_visit, created_at`

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.Phone, &c.Email, &c.CreditBalance, &c.TotalPurchases, &c.Prescriptions, &c.LastVisit, &c.CreatedAt)
	return c, err
}

func (s *Store) queryCustomers(ctx context.Context, query string, args ...any) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}

func (s *Store) ListCustomers(ctx context.Context, accountID string) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
}

func (s *Store) GetCustomer(ctx context.Context, accountID string, customerID string) (*domain.Customer, error) {
	customer, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE account_id = $1 AND id = $2
	`, accountID, customerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCustomerNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	created, err := scanCustomer(s.db.QueryRowContext(ctx, `
		INSERT INTO customers (account_id, id, name, phone, email, credit_balance, total_purchases, prescriptions, last_visit, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		RETURNING `+customerColumns+`
	`, customer.AccountID, customer.ID, customer.Name, customer.Phone, customer.Email,
		customer.CreditBalance, customer.TotalPurchases, customer.Prescriptions, nullDate(customer.LastVisit)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	updated, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $3, phone = $4, email = $5
		WHERE account_id = $1 AND id = $2
		RETURNING `+customerColumns+`
	`, customer.AccountID, customer.ID, customer.Name, customer.Phone, customer.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCustomerNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, accountID string, customerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE account_id = $1 AND id = $2`, accountID, customerID)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrCustomerNotFound)
}

func (s *Store) ListCustomersWithCredit(ctx context.Context, accountID string) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE account_id = $1 AND credit_balance > 0
		ORDER BY credit_balance DESC
	`, accountID)
}

func (s *Store) ListSales(ctx context.Context, accountID string, filter domain.SaleFilter) ([]domain.Sale, error) {
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, customer_id, customer_name, total, payment_method, sale_date, created_at
		FROM sales
		WHERE account_id = $1
			AND ($2::date IS NULL OR sale_date >= $2::date)
			AND ($3::date IS NULL OR sale_date <= $3::date)
		ORDER BY sale_date DESC, created_at DESC
		LIMIT $4
	`, accountID, nullDatePtr(filter.Start), nullDatePtr(filter.End), limit)
	if err != nil {
		return nil, err
	}

	sales := make([]domain.Sale, 0, 64)
	index := make(map[string]int)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, item_id, item_name, quantity, unit_price
		FROM sale_items
		WHERE account_id = $1 AND sale_id = ANY($2)
		ORDER BY sale_id, position
	`, accountID, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var saleID string
		var line domain.LineItem
		if err := itemRows.Scan(&saleID, &line.ItemID, &line.ItemName, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		if i, ok := index[saleID]; ok {
			sales[i].LineItems = append(sales[i].LineItems, line)
		}
	}
	return sales, itemRows.Err()
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var method string
	err := row.Scan(&sale.ID, &sale.AccountID, &sale.CustomerID, &sale.CustomerName, &sale.Total, &method, &sale.Date, &sale.CreatedAt)
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.LineItems = []domain.LineItem{}
	return sale, err
}

func (s *Store) GetSale(ctx context.Context, accountID string, saleID string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT id, account_id, customer_id, customer_name, total, payment_method, sale_date, created_at
		FROM sales
		WHERE account_id = $1 AND id = $2
	`, accountID, saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, item_name, quantity, unit_price
		FROM sale_items
		WHERE account_id = $1 AND sale_id = $2
		ORDER BY position
	`, accountID, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.LineItem
		if err := rows.Scan(&line.ItemID, &line.ItemName, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		sale.LineItems = append(sale.LineItems, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

// DeleteSale removes the record only; stock and balances are left as they are.
func (s *Store) DeleteSale(ctx context.Context, accountID string, saleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE account_id = $1 AND id = $2`, accountID, saleID)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (s *Store) ListCategories(ctx context.Context, accountID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, name, created_at
		FROM categories
		WHERE account_id = $1
		ORDER BY name
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (account_id, id, name, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING created_at
	`, category.AccountID, category.ID, category.Name).Scan(&category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	err := s.db.QueryRowContext(ctx, `
		UPDATE categories SET name = $3
		WHERE account_id = $1 AND id = $2
		RETURNING created_at
	`, category.AccountID, category.ID, category.Name).Scan(&category.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) DeleteCategory(ctx context.Context, accountID string, categoryID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE account_id = $1 AND id = $2`, accountID, categoryID)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (s *Store) ListSuppliers(ctx context.Context, accountID string) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, name, contact, phone, email, created_at
		FROM suppliers
		WHERE account_id = $1
		ORDER BY name
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.AccountID, &sup.Name, &sup.Contact, &sup.Phone, &sup.Email, &sup.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (account_id, id, name, contact, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		RETURNING created_at
	`, supplier.AccountID, supplier.ID, supplier.Name, supplier.Contact, supplier.Phone, supplier.Email).Scan(&supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	err := s.db.QueryRowContext(ctx, `
		UPDATE suppliers SET name = $3, contact = $4, phone = $5, email = $6
		WHERE account_id = $1 AND id = $2
		RETURNING created_at
	`, supplier.AccountID, supplier.ID, supplier.Name, supplier.Contact, supplier.Phone, supplier.Email).Scan(&supplier.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, accountID string, supplierID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE account_id = $1 AND id = $2`, accountID, supplierID)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (s *Store) GetDashboardStats(ctx context.Context, accountID string) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(total) FROM sales WHERE account_id = $1), 0),
			(SELECT COUNT(*) FROM sales WHERE account_id = $1),
			COALESCE((SELECT SUM(stock) FROM inventory_items WHERE account_id = $1), 0),
			(SELECT COUNT(*) FROM customers WHERE account_id = $1),
			COALESCE((SELECT SUM(credit_balance) FROM customers WHERE account_id = $1 AND credit_balance > 0), 0),
			COALESCE((SELECT SUM(stock * unit_price) FROM inventory_items WHERE account_id = $1), 0)
	`, accountID).Scan(
		&stats.TotalRevenue,
		&stats.TotalSales,
		&stats.ProductsInStock,
		&stats.TotalCustomers,
		&stats.OutstandingCredit,
		&stats.StockValue,
	)
	return stats, err
}

func (s *Store) TopMedicines(ctx context.Context, accountID string, limit int) ([]domain.TopMedicine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, category, stock, unit_price
		FROM inventory_items
		WHERE account_id = $1
		ORDER BY stock DESC, name
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := make([]domain.TopMedicine, 0, limit)
	for rows.Next() {
		var m domain.TopMedicine
		if err := rows.Scan(&m.Name, &m.Category, &m.Stock, &m.UnitPrice); err != nil {
			return nil, err
		}
		top = append(top, m)
	}
	return top, rows.Err()
}

func (s *Store) SalesByCategory(ctx context.Context, accountID string) ([]domain.CategorySales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*), COALESCE(SUM(stock * unit_price), 0)
		FROM inventory_items
		WHERE account_id = $1
		GROUP BY category
		ORDER BY 3 DESC, category
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CategorySales, 0, 16)
	for rows.Next() {
		var row domain.CategorySales
		if err := rows.Scan(&row.Category, &row.Count, &row.Total); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *Store) MonthlySales(ctx context.Context, accountID string, since time.Time) ([]domain.MonthlySales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(sale_date, 'YYYY-MM') AS month, COUNT(*), COALESCE(SUM(total), 0)
		FROM sales
		WHERE account_id = $1 AND sale_date >= $2
		GROUP BY month
		ORDER BY month
	`, accountID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.MonthlySales, 0, 12)
	for rows.Next() {
		var row domain.MonthlySales
		if err := rows.Scan(&row.Month, &row.SalesCount, &row.Revenue); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, account_id, actor, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.AccountID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, accountID string, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, actor, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Actor, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func expectOne(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

// classify maps serialization failures and deadlocks onto ErrWriteConflict so
// callers can retry without knowing SQLSTATE codes.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", store.ErrWriteConflict, pgErr.Message)
		case "23514":
			return fmt.Errorf("%w: %s", store.ErrInsufficientStock, pgErr.Message)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullDate(val domain.Date) any {
	if val.IsZero() {
		return nil
	}
	return val.Time
}

func nullDatePtr(val *domain.Date) any {
	if val == nil {
		return nil
	}
	return nullDate(*val)
}
