package account_test

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	account "github.com/seriesbuddies/go-account"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockRepositoryManager implements account.RepositoryManager. The embedded
// interface covers the surface our tests never touch.
type MockRepositoryManager struct {
	mock.Mock
	account.RepositoryManager
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) Accounts() account.Accounts {
	args := m.Called()
	return args.Get(0).(account.Accounts)
}

func (m *MockRepositoryManager) Tokens() account.AccountTokens {
	args := m.Called()
	return args.Get(0).(account.AccountTokens)
}

// RunInTx executes the closure against a zero value transaction, propagating
// its error like the real manager does. Mocked repositories never touch the
// transaction handle.
func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	var tx bun.Tx
	return f(ctx, tx)
}

// MockAccounts implements account.Accounts for the methods the handlers use
type MockAccounts struct {
	mock.Mock
	account.Accounts
}

func (m *MockAccounts) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*account.Account, error) {
	args := m.Called(ctx, id, criteria)
	acc, _ := args.Get(0).(*account.Account)
	return acc, args.Error(1)
}

func (m *MockAccounts) RegisterTx(ctx context.Context, tx bun.IDB, acc *account.Account) (*account.Account, error) {
	args := m.Called(ctx, tx, acc)
	record, _ := args.Get(0).(*account.Account)
	return record, args.Error(1)
}

func (m *MockAccounts) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	args := m.Called(ctx, email)
	acc, _ := args.Get(0).(*account.Account)
	return acc, args.Error(1)
}

func (m *MockAccounts) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*account.Account, error) {
	args := m.Called(ctx, identifier)
	acc, _ := args.Get(0).(*account.Account)
	return acc, args.Error(1)
}

func (m *MockAccounts) EmailTakenTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	args := m.Called(ctx, tx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccounts) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, tx, id)
	acc, _ := args.Get(0).(*account.Account)
	return acc, args.Error(1)
}

func (m *MockAccounts) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, tx, id, passwordHash)
	return args.Error(0)
}

// MockTokens implements account.AccountTokens
type MockTokens struct {
	mock.Mock
	account.AccountTokens
}

func (m *MockTokens) GetByValue(ctx context.Context, value string, filters ...account.TokenFilter) (*account.AccountToken, error) {
	args := m.Called(ctx, value, filters)
	token, _ := args.Get(0).(*account.AccountToken)
	return token, args.Error(1)
}

func (m *MockTokens) GetByValueTx(ctx context.Context, tx bun.IDB, value string, filters ...account.TokenFilter) (*account.AccountToken, error) {
	args := m.Called(ctx, tx, value, filters)
	token, _ := args.Get(0).(*account.AccountToken)
	return token, args.Error(1)
}

func (m *MockTokens) ValueExistsTx(ctx context.Context, tx bun.IDB, value string) (bool, error) {
	args := m.Called(ctx, tx, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockTokens) CreateTx(ctx context.Context, tx bun.IDB, token *account.AccountToken) (*account.AccountToken, error) {
	args := m.Called(ctx, tx, token)
	created, _ := args.Get(0).(*account.AccountToken)
	return created, args.Error(1)
}

func (m *MockTokens) MarkUsedTx(ctx context.Context, tx bun.IDB, token *account.AccountToken) error {
	args := m.Called(ctx, tx, token)
	return args.Error(0)
}

func (m *MockTokens) DeleteUnusedTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, kind account.TokenKind) error {
	args := m.Called(ctx, tx, accountID, kind)
	return args.Error(0)
}

// MockMailer implements account.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendConfirmation(ctx context.Context, to, token, name string) error {
	args := m.Called(ctx, to, token, name)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, to, token, name string) error {
	args := m.Called(ctx, to, token, name)
	return args.Error(0)
}

// MockHasher implements account.PasswordHasher so tests skip real bcrypt work
type MockHasher struct {
	mock.Mock
}

func (m *MockHasher) HashPassword(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockHasher) ComparePasswordAndHash(password, hash string) error {
	args := m.Called(password, hash)
	return args.Error(0)
}
