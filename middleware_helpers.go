package account

import (
	"context"

	"github.com/seriesbuddies/go-account/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use account helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter stores validated session claims in the standard
// context for downstream usage via GetClaims.
func ContextEnricherAdapter(c context.Context, claims *jwtware.Claims) context.Context {
	if claims == nil {
		return c
	}
	return WithClaimsContext(c, claims)
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
