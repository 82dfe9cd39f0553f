package account_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	account "github.com/seriesbuddies/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccountToken(t *testing.T) {
	accountID := uuid.New()

	token, err := account.NewAccountToken(accountID, account.TokenKindRegistration)
	require.NoError(t, err)

	assert.Equal(t, accountID, token.AccountID)
	assert.Equal(t, account.TokenKindRegistration, token.Kind)
	assert.False(t, token.Used)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), token.Value)

	assert.WithinDuration(t, time.Now().Add(account.TokenTTL), token.ExpiresAt, time.Minute)
	assert.True(t, token.IsUsable())
}

func TestNewAccountTokenValuesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		token, err := account.NewAccountToken(uuid.New(), account.TokenKindPasswordReset)
		require.NoError(t, err)
		require.False(t, seen[token.Value])
		seen[token.Value] = true
	}
}

func TestAccountTokenLifecycle(t *testing.T) {
	token, err := account.NewAccountToken(uuid.New(), account.TokenKindRegistration)
	require.NoError(t, err)

	assert.False(t, token.IsExpired())
	assert.True(t, token.IsUsable())

	token.MarkUsed()
	assert.True(t, token.Used)
	assert.False(t, token.IsUsable())

	token.ExpiresAt = time.Now().Add(-time.Second)
	assert.True(t, token.IsExpired())
}

func TestAccountHasRole(t *testing.T) {
	acc := &account.Account{Roles: []account.Role{account.RoleUser}}

	assert.True(t, acc.HasRole(account.RoleUser))
	assert.False(t, acc.HasRole(account.RoleAdmin))
}

func TestAccountEnsureRoles(t *testing.T) {
	acc := &account.Account{}
	acc.EnsureRoles()
	assert.Equal(t, []account.Role{account.RoleUser}, acc.Roles)

	admin := &account.Account{Roles: []account.Role{account.RoleAdmin}}
	admin.EnsureRoles()
	assert.Equal(t, []account.Role{account.RoleAdmin}, admin.Roles)
}

func TestMarkAccountVerified(t *testing.T) {
	id := uuid.New()
	partial := account.MarkAccountVerified(id)

	assert.Equal(t, id, partial.ID)
	assert.True(t, partial.Verified)
	assert.Empty(t, partial.Email)
}
