package account

// AuthGate enforces account level checks during authentication, independent
// of credential verification.
type AuthGate struct{}

// CheckPreAuth runs before the password is compared. Unverified accounts are
// rejected here so a correct password never produces a session for them.
func (g AuthGate) CheckPreAuth(acc *Account) error {
	if acc == nil {
		return ErrIdentityNotFound
	}

	if !acc.Verified {
		return ErrAccountUnverified
	}

	return nil
}

// CheckPostAuth runs after successful credential verification. There are no
// post password checks today, the hook exists so callers wire both phases.
func (g AuthGate) CheckPostAuth(acc *Account) error {
	if acc == nil {
		return ErrIdentityNotFound
	}
	return nil
}
