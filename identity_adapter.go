package account

// NewIdentityFromAccount returns an Identity adapter for the provided account,
// useful when minting session tokens outside the login flow.
func NewIdentityFromAccount(acc *Account) Identity {
	if acc == nil {
		return nil
	}
	return identityFromAccount(acc)
}

// HasUserUUID reports whether Session.GetUserUUID will succeed.
func HasUserUUID(session Session) bool {
	if session == nil {
		return false
	}
	_, err := session.GetUserUUID()
	return err == nil
}
