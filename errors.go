package account

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to rich errors so controllers and clients can match on
// them without string-comparing messages.
const (
	TextCodeTokenNotFound    = "TOKEN_NOT_FOUND"
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeTokenAlreadyUsed = "TOKEN_ALREADY_USED"
	TextCodeTokenGeneration  = "TOKEN_GENERATION_FAILED"
	TextCodeDuplicateEmail   = "DUPLICATE_EMAIL"
	TextCodeUnverified       = "ACCOUNT_UNVERIFIED"
	TextCodeAccountNotFound  = "ACCOUNT_NOT_FOUND"
	TextCodeDeliveryFailed   = "DELIVERY_FAILED"
)

// ErrTokenNotFound means no stored token matches the submitted value
var ErrTokenNotFound = goerrors.New("token not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeTokenNotFound)

// ErrTokenExpired means the token exists but is past its 24h window
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenAlreadyUsed means the token was consumed before. Used tokens are
// never resurrected.
var ErrTokenAlreadyUsed = goerrors.New("token has already been used", goerrors.CategoryConflict).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeTokenAlreadyUsed)

// ErrTokenGenerationFailed means we could not produce a unique token value
// within MaxTokenGenerationAttempts tries
var ErrTokenGenerationFailed = goerrors.New("unable to generate a unique token value", goerrors.CategoryInternal).
	WithCode(goerrors.CodeInternal).
	WithTextCode(TextCodeTokenGeneration)

// ErrDuplicateEmail means the email is already registered
var ErrDuplicateEmail = goerrors.New("email is already registered", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeDuplicateEmail)

// ErrAccountUnverified blocks logins for accounts that never confirmed
// their email
var ErrAccountUnverified = goerrors.New("account email has not been verified", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeUnverified)

// ErrAccountNotFound means no account matches the given email
var ErrAccountNotFound = goerrors.New("no account with this email", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeAccountNotFound)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found")

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = errors.New("value should not be an empty string")

// ErrMismatchedHashAndPassword is returned on credential mismatch
var ErrMismatchedHashAndPassword = errors.New("password does not match")

// ErrSessionExpired is the rich error for expired session JWTs. Distinct from
// ErrTokenExpired, which is about account tokens.
var ErrSessionExpired = goerrors.New("session has expired", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode("SESSION_EXPIRED")

// ErrSessionMalformed is the rich error for undecodable session JWTs
var ErrSessionMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode("SESSION_MALFORMED")

// IsTokenExpired matches the account token expiry error
func IsTokenExpired(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsTokenNotFound matches unknown token lookups
func IsTokenNotFound(err error) bool {
	return hasTextCode(err, TextCodeTokenNotFound)
}

// IsTokenAlreadyUsed matches consumed token lookups
func IsTokenAlreadyUsed(err error) bool {
	return hasTextCode(err, TextCodeTokenAlreadyUsed)
}

// IsDuplicateEmail matches registration conflicts
func IsDuplicateEmail(err error) bool {
	return hasTextCode(err, TextCodeDuplicateEmail)
}

// IsAccountUnverified matches the pre-auth gate error
func IsAccountUnverified(err error) bool {
	return hasTextCode(err, TextCodeUnverified)
}

// IsAccountNotFound matches lookups for emails with no account
func IsAccountNotFound(err error) bool {
	return hasTextCode(err, TextCodeAccountNotFound)
}

// IsDeliveryError matches mail delivery failures
func IsDeliveryError(err error) bool {
	return hasTextCode(err, TextCodeDeliveryFailed)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsSessionExpiredError will check for expired session JWTs, including those
// surfaced by the jwt middleware as plain strings
func IsSessionExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, ErrSessionExpired.TextCode) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsSessionMalformedError will check for undecodable session tokens
func IsSessionMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, ErrSessionMalformed.TextCode) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
