package account_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	account "github.com/seriesbuddies/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerIssueSupersedesPreviousToken(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	tokens := &MockTokens{}

	acc := &account.Account{ID: uuid.New()}

	repo.On("Tokens").Return(tokens)
	tokens.On("DeleteUnusedTx", mock.Anything, mock.Anything, acc.ID, account.TokenKindRegistration).
		Return(nil).Once()
	tokens.On("ValueExistsTx", mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil).Once()
	tokens.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).
		Return(&account.AccountToken{Value: "stored"}, nil).Once()

	issuer := account.NewTokenIssuer(repo).WithLogger(testLogger{})

	token, err := issuer.Issue(ctx, acc, account.TokenKindRegistration)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "stored", token.Value)

	tokens.AssertExpectations(t)
}

func TestTokenIssuerIssueRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	tokens := &MockTokens{}

	acc := &account.Account{ID: uuid.New()}

	repo.On("Tokens").Return(tokens)
	tokens.On("DeleteUnusedTx", mock.Anything, mock.Anything, acc.ID, account.TokenKindPasswordReset).
		Return(nil).Once()
	tokens.On("ValueExistsTx", mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil).Once()
	tokens.On("ValueExistsTx", mock.Anything, mock.Anything, mock.Anything).
		Return(false, nil).Once()
	tokens.On("CreateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(tok *account.AccountToken) bool {
		return tok.AccountID == acc.ID && tok.Kind == account.TokenKindPasswordReset && !tok.Used
	})).Return(&account.AccountToken{Value: "fresh"}, nil).Once()

	issuer := account.NewTokenIssuer(repo).WithLogger(testLogger{})

	token, err := issuer.Issue(ctx, acc, account.TokenKindPasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.Value)

	tokens.AssertExpectations(t)
}

func TestTokenIssuerIssueGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	tokens := &MockTokens{}

	acc := &account.Account{ID: uuid.New()}

	repo.On("Tokens").Return(tokens)
	tokens.On("DeleteUnusedTx", mock.Anything, mock.Anything, acc.ID, account.TokenKindRegistration).
		Return(nil).Once()
	tokens.On("ValueExistsTx", mock.Anything, mock.Anything, mock.Anything).
		Return(true, nil).Times(account.MaxTokenGenerationAttempts)

	issuer := account.NewTokenIssuer(repo).WithLogger(testLogger{})

	token, err := issuer.Issue(ctx, acc, account.TokenKindRegistration)
	require.ErrorIs(t, err, account.ErrTokenGenerationFailed)
	require.Nil(t, token)

	tokens.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything)
	tokens.AssertExpectations(t)
}

func TestTokenIssuerValidateUnknownValue(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	tokens := &MockTokens{}

	repo.On("Tokens").Return(tokens)
	tokens.On("GetByValue", mock.Anything, "missing", mock.Anything).
		Return(nil, sql.ErrNoRows).Once()

	issuer := account.NewTokenIssuer(repo).WithLogger(testLogger{})

	_, err := issuer.Validate(ctx, "missing")
	require.Error(t, err)
	assert.True(t, account.IsTokenNotFound(err))

	tokens.AssertExpectations(t)
}

func TestTokenIssuerValidateExpiredWinsOverUsed(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	tokens := &MockTokens{}

	// expired AND consumed: expiry must be reported, not reuse
	stale := &account.AccountToken{
		Value:     "stale",
		ExpiresAt: time.Now().Add(-time.Hour),
		Used:      true,
	}

	repo.On("Tokens").Return(tokens)
	tokens.On("GetByValue", mock.Anything, "stale", mock.Anything).
		Return(stale, nil).Once()

	issuer := account.NewTokenIssuer(repo).WithLogger(testLogger{})

	_, err := issuer.Validate(ctx, "stale")
	require.Error(t, err)
	assert.True(t, account.IsTokenExpired(err))
	assert.False(t, account.IsTokenAlreadyUsed(err))
}

func TestTokenIssuerValidateUsedToken(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	tokens := &MockTokens{}

	used := &account.AccountToken{
		Value:     "used",
		ExpiresAt: time.Now().Add(time.Hour),
		Used:      true,
	}

	repo.On("Tokens").Return(tokens)
	tokens.On("GetByValue", mock.Anything, "used", mock.Anything).
		Return(used, nil).Once()

	issuer := account.NewTokenIssuer(repo).WithLogger(testLogger{})

	_, err := issuer.Validate(ctx, "used")
	require.Error(t, err)
	assert.True(t, account.IsTokenAlreadyUsed(err))
}

func TestTokenIssuerValidateUsableToken(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	tokens := &MockTokens{}

	live := &account.AccountToken{
		Value:     "live",
		Kind:      account.TokenKindRegistration,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	repo.On("Tokens").Return(tokens)
	tokens.On("GetByValue", mock.Anything, "live", mock.Anything).
		Return(live, nil).Once()

	issuer := account.NewTokenIssuer(repo).WithLogger(testLogger{})

	token, err := issuer.Validate(ctx, "live", account.WithKind(account.TokenKindRegistration))
	require.NoError(t, err)
	assert.Equal(t, "live", token.Value)
}
