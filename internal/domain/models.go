package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID           string    `json:"id"`
	PharmacyName string    `json:"pharmacyName"`
	OwnerName    string    `json:"ownerName"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	PINHash      string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type SignupRequest struct {
	PharmacyName string `json:"pharmacyName"`
	OwnerName    string `json:"ownerName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	SettingsPIN  string `json:"settingsPin,omitempty"`
}

type VerifyPINRequest struct {
	PIN string `json:"pin"`
}

// SetPINRequest changes the settings PIN; the current password is required.
type SetPINRequest struct {
	Password string `json:"password"`
	PIN      string `json:"pin"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expiresAt"`
	Account   Account `json:"account"`
}

// Actor is the authenticated account a request acts on behalf of.
type Actor struct {
	AccountID string
	Email     string
	Role      string
}

type InventoryItem struct {
	ID        string          `json:"id"`
	AccountID string          `json:"-"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Stock     int             `json:"stock"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Expiry    Date            `json:"expiry"`
	Supplier  string          `json:"supplier"`
	CreatedAt time.Time       `json:"createdAt"`
}

type InventoryItemRequest struct {
	Name      string           `json:"name"`
	Category  string           `json:"category"`
	Stock     int              `json:"stock"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
	Expiry    *Date            `json:"expiry"`
	Supplier  string           `json:"supplier"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

type StockAvailability struct {
	ItemID     string `json:"itemId"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
	Sufficient bool   `json:"sufficient"`
}

type Customer struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"-"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email"`
	CreditBalance  decimal.Decimal `json:"creditBalance"`
	TotalPurchases decimal.Decimal `json:"totalPurchases"`
	Prescriptions  int             `json:"prescriptions"`
	LastVisit      Date            `json:"lastVisit"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type CustomerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type CreditPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type Category struct {
	ID        string    `json:"id"`
	AccountID string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type CategoryRequest struct {
	Name string `json:"name"`
}

type Supplier struct {
	ID        string    `json:"id"`
	AccountID string    `json:"-"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type SupplierRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"-"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"createdAt"`
}
