package account

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is a role granted to an account
type Role = string

const (
	// RoleUser is the default role every account gets on registration
	RoleUser Role = "ROLE_USER"
	// RoleAdmin is granted manually, never on registration
	RoleAdmin Role = "ROLE_ADMIN"
)

// Account is a registered identity. Email doubles as the login identifier.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Roles         []Role     `bun:"roles,type:json" json:"roles,omitempty"`
	Verified      bool       `bun:"is_verified" json:"is_verified,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasRole reports whether the account carries the given role
func (a *Account) HasRole(role Role) bool {
	return slices.Contains(a.Roles, role)
}

// EnsureRoles guarantees every account has at least the default role
func (a *Account) EnsureRoles() {
	if len(a.Roles) == 0 {
		a.Roles = []Role{RoleUser}
	}
}

// MarkAccountVerified builds a partial record that flips the verified flag
func MarkAccountVerified(id uuid.UUID) *Account {
	a := &Account{}
	a.ID = id
	a.Verified = true
	return a
}

// TokenKind distinguishes what an account token authorizes
type TokenKind = string

const (
	// TokenKindRegistration confirms a freshly registered email
	TokenKindRegistration TokenKind = "registration"
	// TokenKindPasswordReset authorizes a password change
	TokenKindPasswordReset TokenKind = "password_reset"
)

// TokenTTL is how long an account token stays usable after issuance.
const TokenTTL = 24 * time.Hour

// TokenValueBytes is the number of random bytes behind a token value.
// 32 bytes gives 256 bits of entropy, hex encoded to 64 characters.
const TokenValueBytes = 32

// AccountToken is a single-use, time-limited credential proving control of
// an account's email. At most one unused token exists per (account, kind).
type AccountToken struct {
	bun.BaseModel `bun:"table:account_tokens,alias:tok"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account       *Account  `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	Value         string    `bun:"value,notnull,unique" json:"value,omitempty"`
	Kind          TokenKind `bun:"kind,notnull" json:"kind,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at,omitempty"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Used          bool      `bun:"used" json:"used,omitempty"`
}

// NewAccountToken creates an unused token for the given account with a fresh
// random value and a fixed expiry of TokenTTL from now.
func NewAccountToken(accountID uuid.UUID, kind TokenKind) (*AccountToken, error) {
	value, err := generateTokenValue()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &AccountToken{
		ID:        uuid.New(),
		AccountID: accountID,
		Value:     value,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(TokenTTL),
	}, nil
}

// IsExpired reports whether the token is past its expiry
func (t *AccountToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsable reports whether the token can still be consumed
func (t *AccountToken) IsUsable() bool {
	return !t.Used && !t.IsExpired()
}

// MarkUsed retires the token. Persisting is the store's job.
func (t *AccountToken) MarkUsed() {
	t.Used = true
}

func generateTokenValue() (string, error) {
	b := make([]byte, TokenValueBytes)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
