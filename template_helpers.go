package account

import (
	"maps"

	"github.com/goliatone/go-router"
	"github.com/seriesbuddies/go-account/middleware/csrf"
)

var TemplateUserKey = "current_user"

// TemplateHelpers returns a map of helper functions and data that can be used
// with go-template's WithGlobalData option for account related template
// functionality.
//
// In templates, you can then use:
//
//	{% if current_user %}
//	{% if current_user|has_role:"ROLE_ADMIN" %}
//	{% if current_user|is_verified %}
//	{{ csrf_field }}
//	{{ csrf_token }}
func TemplateHelpers() map[string]any {
	helpers := map[string]any{
		"is_authenticated": isAuthenticated,
		"has_role":         hasRole,
		"is_verified":      isVerified,

		// Role constants for easy template access
		"roles": map[string]string{
			"user":  string(RoleUser),
			"admin": string(RoleAdmin),
		},
	}

	// add CSRF template helpers
	maps.Copy(helpers, csrf.CSRFTemplateHelpers())

	return helpers
}

// TemplateHelpersWithAccount returns template helpers with a specific account
// set as current_user.
func TemplateHelpersWithAccount(acc *Account) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateUserKey] = acc
	return helpers
}

// TemplateHelpersWithRouter returns template helpers with account data
// extracted from the router context, plus CSRF token helpers when a token is
// available in the context.
func TemplateHelpersWithRouter(ctx router.Context, userKey string) map[string]any {
	if userKey == "" {
		userKey = TemplateUserKey
	}

	helpers := TemplateHelpers()

	if user := ctx.Locals(userKey); user != nil {
		helpers[TemplateUserKey] = user
	}

	for key, value := range csrf.CSRFTemplateHelpersWithRouter(ctx, csrf.DefaultContextKey) {
		helpers[key] = value
	}

	return helpers
}

// MergeTemplateData merges per-request template helpers (current_user, CSRF
// token and field) into the given view context. Handlers should wrap their
// render data with this so templates always see the ambient helpers.
func MergeTemplateData(ctx router.Context, data router.ViewContext) router.ViewContext {
	if data == nil {
		data = router.ViewContext{}
	}

	helpers := TemplateHelpersWithRouter(ctx, TemplateUserKey)
	ctx.LocalsMerge(csrf.DefaultTemplateHelpersKey, helpers)

	for key, value := range helpers {
		if _, taken := data[key]; !taken {
			data[key] = value
		}
	}

	return data
}

// GetTemplateUser is a convenience function to extract account data from the
// router context for template usage.
func GetTemplateUser(ctx router.Context, userKey string) (any, bool) {
	if userKey == "" {
		userKey = TemplateUserKey
	}

	user := ctx.Locals(userKey)
	return user, user != nil
}

// isAuthenticated checks if the provided user object is not nil
func isAuthenticated(user any) bool {
	if user == nil {
		return false
	}

	switch u := user.(type) {
	case *Account:
		return u != nil
	case Account:
		return true
	case SessionClaims:
		return u != nil && u.AccountID() != ""
	case map[string]any:
		// Handle JSON-converted account objects
		return len(u) > 0
	default:
		return false
	}
}

// hasRole checks if the user has the specified role
func hasRole(user any, role string) bool {
	switch u := user.(type) {
	case *Account:
		if u == nil {
			return false
		}
		return u.HasRole(Role(role))
	case Account:
		return u.HasRole(Role(role))
	case SessionClaims:
		if u == nil {
			return false
		}
		return u.HasRole(role)
	case map[string]any:
		// Handle JSON-converted account objects
		if roles, exists := u["roles"]; exists {
			if list, ok := roles.([]any); ok {
				for _, r := range list {
					if s, ok := r.(string); ok && s == role {
						return true
					}
				}
			}
		}
		return false
	default:
		return false
	}
}

// isVerified checks if the user confirmed their email
func isVerified(user any) bool {
	switch u := user.(type) {
	case *Account:
		if u == nil {
			return false
		}
		return u.Verified
	case Account:
		return u.Verified
	case SessionClaims:
		if u == nil {
			return false
		}
		return u.IsVerified()
	case map[string]any:
		if v, exists := u["is_verified"]; exists {
			b, ok := v.(bool)
			return ok && b
		}
		return false
	default:
		return false
	}
}
