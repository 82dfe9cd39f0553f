package account

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

type SessionObject struct {
	UserID         string         `json:"user_id,omitempty"`
	Audience       []string       `json:"audience,omitempty"`
	Issuer         string         `json:"issuer,omitempty"`
	IssuedAt       *time.Time     `json:"issued_at,omitempty"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetAudience() []string {
	return s.Audience
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetData() map[string]any {
	return s.Data
}

// HasRole checks if the session carries a specific role
func (s *SessionObject) HasRole(role string) bool {
	for _, r := range s.roles() {
		if r == role {
			return true
		}
	}
	return false
}

// IsVerified reports whether the session belongs to a verified account
func (s *SessionObject) IsVerified() bool {
	if s.Data == nil {
		return false
	}
	verified, ok := s.Data["verified"].(bool)
	return ok && verified
}

func (s *SessionObject) roles() []string {
	if s.Data == nil {
		return nil
	}

	switch rs := s.Data["roles"].(type) {
	case []string:
		return rs
	case []any:
		out := make([]string, 0, len(rs))
		for _, r := range rs {
			if role, ok := r.(string); ok {
				out = append(out, role)
			}
		}
		return out
	}

	return nil
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s aud=%v iss=%s iat=%s data=%v",
		s.UserID,
		s.Audience,
		s.Issuer,
		issuedAt,
		s.Data,
	)
}

// sessionFromClaims creates a SessionObject from validated session claims
func sessionFromClaims(claims SessionClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToMapClaims
	}

	data := make(map[string]any)
	data["name"] = claims.AccountName()
	data["verified"] = claims.IsVerified()
	if roles := claims.AccountRoles(); len(roles) > 0 {
		data["roles"] = roles
	}

	var audience []string
	var issuer string
	if jwtClaims, ok := claims.(jwt.Claims); ok {
		if aud, err := jwtClaims.GetAudience(); err == nil {
			audience = append(audience, aud...)
		}
		if iss, err := jwtClaims.GetIssuer(); err == nil {
			issuer = iss
		}
	}
	if issuer == "" {
		issuer = claims.Subject()
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	return &SessionObject{
		UserID:         claims.AccountID(),
		Audience:       audience,
		Issuer:         issuer,
		Data:           data,
		IssuedAt:       &issuedAt,
		ExpirationDate: &expiresAt,
	}, nil
}
