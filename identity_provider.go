package account

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// AccountFinder is the store we use to retrieve accounts during login
type AccountFinder interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Account, error)
}

// AccountProvider resolves accounts into identities for the authenticator
type AccountProvider struct {
	store  AccountFinder
	gate   AuthGate
	hasher PasswordHasher
	logger Logger
}

// NewAccountProvider will create a new AccountProvider
func NewAccountProvider(store AccountFinder) *AccountProvider {
	return &AccountProvider{
		store:  store,
		gate:   AuthGate{},
		hasher: BcryptHasher{},
		logger: defLogger{},
	}
}

func (p *AccountProvider) WithLogger(l Logger) *AccountProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

func (p *AccountProvider) WithHasher(h PasswordHasher) *AccountProvider {
	if h != nil {
		p.hasher = h
	}
	return p
}

// VerifyIdentity will find the account, check it can authenticate, compare
// the password, and return the identity. The verification gate runs before
// the password comparison: an unverified account with a correct password
// still gets ErrAccountUnverified.
func (p AccountProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	acc, err := p.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account during verification")
	}

	if err := p.gate.CheckPreAuth(acc); err != nil {
		return nil, err
	}

	if err := p.hasher.ComparePasswordAndHash(password, acc.PasswordHash); err != nil {
		return nil, ErrMismatchedHashAndPassword
	}

	if err := p.gate.CheckPostAuth(acc); err != nil {
		return nil, err
	}

	return identityFromAccount(acc), nil
}

func (p AccountProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	acc, err := p.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	if err := p.gate.CheckPreAuth(acc); err != nil {
		return nil, err
	}

	return identityFromAccount(acc), nil
}

type accountIdentity struct {
	id       string
	name     string
	email    string
	roles    []string
	verified bool
}

func (a accountIdentity) ID() string { return a.id }

func (a accountIdentity) Name() string { return a.name }

func (a accountIdentity) Email() string { return a.email }

func (a accountIdentity) Roles() []string {
	if len(a.roles) == 0 {
		return []string{string(RoleUser)}
	}
	return a.roles
}

func (a accountIdentity) Verified() bool { return a.verified }

var _ Identity = accountIdentity{}

func identityFromAccount(acc *Account) accountIdentity {
	roles := make([]string, 0, len(acc.Roles))
	for _, r := range acc.Roles {
		roles = append(roles, string(r))
	}

	return accountIdentity{
		id:       acc.ID.String(),
		name:     acc.Name,
		email:    acc.Email,
		roles:    roles,
		verified: acc.Verified,
	}
}
