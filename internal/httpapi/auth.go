package httpapi

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"mypharma/backend/internal/domain"
	"mypharma/backend/internal/store"
	"mypharma/backend/internal/xid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPIN         = errors.New("invalid PIN")
)

const (
	minPasswordLength = 6
	minPINLength      = 4
	maxPINLength      = 8
)

// AccountStore is the slice of the repository the auth flow needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, account domain.Account) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetAccountByID(ctx context.Context, id string) (*domain.Account, error)
	SetAccountPIN(ctx context.Context, accountID string, pinHash string) error
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	accounts AccountStore
	now      func() time.Time
}

type pharmacyClaims struct {
	jwtlib.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, accounts AccountStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		accounts: accounts,
		now:      time.Now,
	}
}

// Signup registers a pharmacy owner account and signs them in.
func (a *AuthManager) Signup(ctx context.Context, req domain.SignupRequest) (domain.AuthResponse, error) {
	pharmacy := strings.TrimSpace(req.PharmacyName)
	owner := strings.TrimSpace(req.OwnerName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case pharmacy == "":
		return domain.AuthResponse{}, store.Invalid("pharmacyName", "is required")
	case owner == "":
		return domain.AuthResponse{}, store.Invalid("ownerName", "is required")
	case email == "":
		return domain.AuthResponse{}, store.Invalid("email", "is required")
	case len(req.Password) < minPasswordLength:
		return domain.AuthResponse{}, store.Invalid("password", "must be at least 6 characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.AuthResponse{}, store.Invalid("email", "is not a valid address")
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.AuthResponse{}, err
	}
	var pinHash string
	if pin := strings.TrimSpace(req.SettingsPIN); pin != "" {
		if err := validatePIN(pin); err != nil {
			return domain.AuthResponse{}, err
		}
		if pinHash, err = hashPassword(pin); err != nil {
			return domain.AuthResponse{}, err
		}
	}

	account, err := a.accounts.CreateAccount(ctx, domain.Account{
		ID:           xid.New("acc"),
		PharmacyName: pharmacy,
		OwnerName:    owner,
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: passwordHash,
		PINHash:      pinHash,
		Role:         "owner",
		CreatedAt:    a.now().UTC(),
	})
	if err != nil {
		return domain.AuthResponse{}, err
	}
	return a.issue(*account)
}

func (a *AuthManager) Signin(ctx context.Context, req domain.SigninRequest) (domain.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return domain.AuthResponse{}, store.Invalid("email", "and password are required")
	}

	account, err := a.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthResponse{}, ErrInvalidCredentials
		}
		return domain.AuthResponse{}, err
	}
	if !verifyPassword(account.PasswordHash, req.Password) {
		return domain.AuthResponse{}, ErrInvalidCredentials
	}
	return a.issue(*account)
}

// VerifyPIN checks the settings PIN of an account. An account without a PIN
// never verifies.
func (a *AuthManager) VerifyPIN(ctx context.Context, accountID string, pin string) error {
	account, err := a.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidPIN
		}
		return err
	}
	if !verifyPassword(account.PINHash, strings.TrimSpace(pin)) {
		return ErrInvalidPIN
	}
	return nil
}

func (a *AuthManager) SetPIN(ctx context.Context, accountID string, req domain.SetPINRequest) error {
	account, err := a.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !verifyPassword(account.PasswordHash, req.Password) {
		return ErrInvalidCredentials
	}

	pin := strings.TrimSpace(req.PIN)
	if err := validatePIN(pin); err != nil {
		return err
	}
	pinHash, err := hashPassword(pin)
	if err != nil {
		return err
	}
	return a.accounts.SetAccountPIN(ctx, account.ID, pinHash)
}

func validatePIN(pin string) error {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return store.Invalid("pin", "must be 4 to 8 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return store.Invalid("pin", "must be 4 to 8 digits")
		}
	}
	return nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &pharmacyClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{AccountID: sub, Email: claims.Email, Role: claims.Role}, nil
}

func (a *AuthManager) issue(account domain.Account) (domain.AuthResponse, error) {
	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(account, expiresAt)
	if err != nil {
		return domain.AuthResponse{}, err
	}
	return domain.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		Account:   account,
	}, nil
}

func (a *AuthManager) sign(account domain.Account, expiresAt time.Time) (string, error) {
	claims := pharmacyClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "mypharma",
		},
		Email: account.Email,
		Role:  account.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
