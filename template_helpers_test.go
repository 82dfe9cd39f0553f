package account_test

import (
	"testing"

	"github.com/goliatone/go-router"
	account "github.com/seriesbuddies/go-account"
	"github.com/seriesbuddies/go-account/middleware/csrf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTemplateHelpersExposeAuthHelpers(t *testing.T) {
	helpers := account.TemplateHelpers()

	require.Contains(t, helpers, "is_authenticated")
	require.Contains(t, helpers, "has_role")
	require.Contains(t, helpers, "is_verified")
	require.Contains(t, helpers, "csrf_field")

	roles, ok := helpers["roles"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, account.RoleUser, roles["user"])
	assert.Equal(t, account.RoleAdmin, roles["admin"])
}

func TestIsAuthenticatedHelper(t *testing.T) {
	helpers := account.TemplateHelpers()
	isAuthenticated, ok := helpers["is_authenticated"].(func(any) bool)
	require.True(t, ok)

	acc := &account.Account{Name: "Ana"}

	tests := []struct {
		name string
		user any
		want bool
	}{
		{"nil user", nil, false},
		{"account pointer", acc, true},
		{"account value", *acc, true},
		{"session claims", &account.JWTClaims{UID: "some-account"}, true},
		{"empty map", map[string]any{}, false},
		{"json account", map[string]any{"id": "abc"}, true},
		{"unrelated type", 42, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isAuthenticated(tt.user))
		})
	}
}

func TestHasRoleHelper(t *testing.T) {
	helpers := account.TemplateHelpers()
	hasRole, ok := helpers["has_role"].(func(any, string) bool)
	require.True(t, ok)

	admin := &account.Account{Roles: []account.Role{account.RoleUser, account.RoleAdmin}}
	member := &account.Account{Roles: []account.Role{account.RoleUser}}

	assert.True(t, hasRole(admin, account.RoleAdmin))
	assert.False(t, hasRole(member, account.RoleAdmin))
	assert.False(t, hasRole(nil, account.RoleAdmin))

	claims := &account.JWTClaims{UID: "some-account", Roles: []string{account.RoleAdmin}}
	assert.True(t, hasRole(claims, account.RoleAdmin))

	jsonUser := map[string]any{"roles": []any{"ROLE_USER"}}
	assert.True(t, hasRole(jsonUser, account.RoleUser))
	assert.False(t, hasRole(jsonUser, account.RoleAdmin))
}

func TestIsVerifiedHelper(t *testing.T) {
	helpers := account.TemplateHelpers()
	isVerified, ok := helpers["is_verified"].(func(any) bool)
	require.True(t, ok)

	assert.True(t, isVerified(&account.Account{Verified: true}))
	assert.False(t, isVerified(&account.Account{}))
	assert.False(t, isVerified(nil))
	assert.True(t, isVerified(map[string]any{"is_verified": true}))
	assert.False(t, isVerified(map[string]any{"is_verified": "yes"}))
}

func TestTemplateHelpersWithRouterPicksUpUser(t *testing.T) {
	ctx := router.NewMockContext()
	acc := &account.Account{Name: "Ana"}
	ctx.LocalsMock[account.TemplateUserKey] = acc

	helpers := account.TemplateHelpersWithRouter(ctx, "")

	assert.Equal(t, acc, helpers[account.TemplateUserKey])
}

func TestGetTemplateUser(t *testing.T) {
	ctx := router.NewMockContext()

	_, found := account.GetTemplateUser(ctx, "")
	assert.False(t, found)

	acc := &account.Account{Name: "Ana"}
	ctx.LocalsMock[account.TemplateUserKey] = acc

	user, found := account.GetTemplateUser(ctx, "")
	require.True(t, found)
	assert.Equal(t, acc, user)
}

func TestMergeTemplateDataPreservesHandlerValues(t *testing.T) {
	ctx := router.NewMockContext()
	ctx.LocalsMock[csrf.DefaultContextKey] = "token123"
	ctx.LocalsMock[account.TemplateUserKey] = &account.Account{Name: "Ana"}
	ctx.On("LocalsMerge", csrf.DefaultTemplateHelpersKey, mock.Anything).Return(map[string]any{})

	data := account.MergeTemplateData(ctx, router.ViewContext{
		"csrf_token": "handler-wins",
		"record":     "something",
	})

	// handler supplied values are never clobbered by the ambient helpers
	assert.Equal(t, "handler-wins", data["csrf_token"])
	assert.Equal(t, "something", data["record"])

	// ambient helpers fill in everything else
	assert.NotNil(t, data[account.TemplateUserKey])
	assert.Contains(t, data, "is_authenticated")
	assert.Contains(t, data, "csrf_field")
}

func TestMergeTemplateDataNilData(t *testing.T) {
	ctx := router.NewMockContext()
	ctx.On("LocalsMerge", csrf.DefaultTemplateHelpersKey, mock.Anything).Return(map[string]any{})

	data := account.MergeTemplateData(ctx, nil)
	require.NotNil(t, data)
	assert.Contains(t, data, "is_authenticated")
}
