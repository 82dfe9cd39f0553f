package account_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	account "github.com/seriesbuddies/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegisterAccountCreatesUnverifiedAccountWithToken(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	accounts := &MockAccounts{}
	tokens := &MockTokens{}
	mailer := &MockMailer{}
	hasher := &MockHasher{}

	accountID := uuid.New()

	repo.On("Accounts").Return(accounts)
	repo.On("Tokens").Return(tokens)

	accounts.On("EmailTakenTx", mock.Anything, mock.Anything, "ana@example.com").
		Return(false, nil).Once()
	hasher.On("HashPassword", "secret123").Return("hashed-secret", nil).Once()
	accounts.On("RegisterTx", mock.Anything, mock.Anything, mock.MatchedBy(func(acc *account.Account) bool {
		return acc.Email == "ana@example.com" &&
			acc.PasswordHash == "hashed-secret" &&
			!acc.Verified &&
			acc.HasRole(account.RoleUser)
	})).Return(&account.Account{
		ID:    accountID,
		Name:  "Ana",
		Email: "ana@example.com",
	}, nil).Once()

	tokens.On("DeleteUnusedTx", mock.Anything, mock.Anything, accountID, account.TokenKindRegistration).
		Return(nil).Once()
	tokens.On("ValueExistsTx", mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil).Once()
	tokens.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).
		Return(&account.AccountToken{Value: "token-value", AccountID: accountID}, nil).Once()

	mailer.On("SendConfirmation", mock.Anything, "ana@example.com", "token-value", "Ana").
		Return(nil).Once()

	var resp *account.RegisterAccountResponse
	event := account.RegisterAccountMessage{
		Name:     "Ana",
		Email:    "ana@example.com",
		Password: "secret123",
		OnResponse: func(r *account.RegisterAccountResponse) {
			resp = r
		},
	}

	handler := account.NewRegisterAccountHandler(repo, mailer).
		WithHasher(hasher).
		WithLogger(testLogger{})

	require.NoError(t, handler.Execute(ctx, event))

	require.NotNil(t, resp)
	assert.Equal(t, accountID, resp.Account.ID)
	assert.Equal(t, "token-value", resp.Token.Value)

	accounts.AssertExpectations(t)
	tokens.AssertExpectations(t)
	mailer.AssertExpectations(t)
	hasher.AssertExpectations(t)
}

func TestRegisterAccountRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	accounts := &MockAccounts{}
	mailer := &MockMailer{}

	repo.On("Accounts").Return(accounts)
	accounts.On("EmailTakenTx", mock.Anything, mock.Anything, "taken@example.com").
		Return(true, nil).Once()

	handler := account.NewRegisterAccountHandler(repo, mailer).WithLogger(testLogger{})

	err := handler.Execute(ctx, account.RegisterAccountMessage{
		Name:     "Ana",
		Email:    "taken@example.com",
		Password: "secret123",
	})

	require.Error(t, err)
	assert.True(t, account.IsDuplicateEmail(err))

	accounts.AssertNotCalled(t, "RegisterTx", mock.Anything, mock.Anything, mock.Anything)
	mailer.AssertNotCalled(t, "SendConfirmation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisterAccountValidatesPayload(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	mailer := &MockMailer{}

	handler := account.NewRegisterAccountHandler(repo, mailer).WithLogger(testLogger{})

	tests := []struct {
		name  string
		event account.RegisterAccountMessage
	}{
		{"missing name", account.RegisterAccountMessage{Email: "a@example.com", Password: "secret123"}},
		{"bad email", account.RegisterAccountMessage{Name: "Ana", Email: "not-an-email", Password: "secret123"}},
		{"short password", account.RegisterAccountMessage{Name: "Ana", Email: "a@example.com", Password: "nope"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := handler.Execute(ctx, tc.event)
			require.Error(t, err)
		})
	}

	repo.AssertNotCalled(t, "Accounts")
}

func TestRegisterAccountReportsDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	accounts := &MockAccounts{}
	tokens := &MockTokens{}
	mailer := &MockMailer{}
	hasher := &MockHasher{}

	accountID := uuid.New()

	repo.On("Accounts").Return(accounts)
	repo.On("Tokens").Return(tokens)

	accounts.On("EmailTakenTx", mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil).Once()
	hasher.On("HashPassword", mock.Anything).Return("hash", nil).Once()
	accounts.On("RegisterTx", mock.Anything, mock.Anything, mock.Anything).
		Return(&account.Account{ID: accountID, Name: "Ana", Email: "ana@example.com"}, nil).Once()
	tokens.On("DeleteUnusedTx", mock.Anything, mock.Anything, accountID, account.TokenKindRegistration).
		Return(nil).Once()
	tokens.On("ValueExistsTx", mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil).Once()
	tokens.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).
		Return(&account.AccountToken{Value: "token-value"}, nil).Once()

	mailer.On("SendConfirmation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp unreachable")).Once()

	responded := false
	handler := account.NewRegisterAccountHandler(repo, mailer).
		WithHasher(hasher).
		WithLogger(testLogger{})

	err := handler.Execute(ctx, account.RegisterAccountMessage{
		Name:     "Ana",
		Email:    "ana@example.com",
		Password: "secret123",
		OnResponse: func(*account.RegisterAccountResponse) {
			responded = true
		},
	})

	// account and token are committed by now, delivery failure still surfaces
	require.Error(t, err)
	assert.True(t, account.IsDeliveryError(err))
	assert.False(t, responded)

	accounts.AssertExpectations(t)
	tokens.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestRegisterAccountHonorsCancelledContext(t *testing.T) {
	repo := &MockRepositoryManager{}
	mailer := &MockMailer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := account.NewRegisterAccountHandler(repo, mailer).WithLogger(testLogger{})

	err := handler.Execute(ctx, account.RegisterAccountMessage{
		Name:     "Ana",
		Email:    "ana@example.com",
		Password: "secret123",
	})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
