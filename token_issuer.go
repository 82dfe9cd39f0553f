package account

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// MaxTokenGenerationAttempts bounds the collision retry loop. A collision on
// a 256-bit value is negligible but must be handled, and the loop has to
// terminate even if the entropy source misbehaves.
var MaxTokenGenerationAttempts = 10

// TokenIssuer creates, validates, and retires account tokens. Supersession
// and insertion share the caller's transaction: an account never observes a
// window with zero live tokens or two live tokens of the same kind.
type TokenIssuer struct {
	repo   RepositoryManager
	logger Logger
}

func NewTokenIssuer(repo RepositoryManager) *TokenIssuer {
	return &TokenIssuer{
		repo:   repo,
		logger: defLogger{},
	}
}

func (ti *TokenIssuer) WithLogger(logger Logger) *TokenIssuer {
	if logger != nil {
		ti.logger = logger
	}
	return ti
}

// Issue runs IssueTx inside its own transaction
func (ti *TokenIssuer) Issue(ctx context.Context, acc *Account, kind TokenKind) (*AccountToken, error) {
	var token *AccountToken

	err := ti.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		token, err = ti.IssueTx(ctx, tx, acc, kind)
		return err
	})

	if err != nil {
		return nil, err
	}

	return token, nil
}

// IssueTx deletes any unused token for (account, kind), then persists a new
// one, retrying value generation on collision with a stored value.
func (ti *TokenIssuer) IssueTx(ctx context.Context, tx bun.IDB, acc *Account, kind TokenKind) (*AccountToken, error) {
	if err := ti.repo.Tokens().DeleteUnusedTx(ctx, tx, acc.ID, kind); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to supersede previous token")
	}

	for attempt := 1; attempt <= MaxTokenGenerationAttempts; attempt++ {
		token, err := NewAccountToken(acc.ID, kind)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token value")
		}

		exists, err := ti.repo.Tokens().ValueExistsTx(ctx, tx, token.Value)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check token uniqueness")
		}

		if exists {
			ti.logger.Warn("token value collision, regenerating", "attempt", attempt, "kind", kind)
			continue
		}

		created, err := ti.repo.Tokens().CreateTx(ctx, tx, token)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist token")
		}

		return created, nil
	}

	return nil, ErrTokenGenerationFailed
}

// Validate looks a token up by value, optionally narrowing by kind, and
// checks it is still usable. Expired and already-used tokens surface as
// distinct errors so callers can map them to different outward statuses.
func (ti *TokenIssuer) Validate(ctx context.Context, value string, filters ...TokenFilter) (*AccountToken, error) {
	token, err := ti.repo.Tokens().GetByValue(ctx, value, filters...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up token")
	}

	if token.IsExpired() {
		return nil, ErrTokenExpired
	}

	if token.Used {
		return nil, ErrTokenAlreadyUsed
	}

	return token, nil
}

// ValidateTx is Validate against the caller's transaction
func (ti *TokenIssuer) ValidateTx(ctx context.Context, tx bun.IDB, value string, filters ...TokenFilter) (*AccountToken, error) {
	token, err := ti.repo.Tokens().GetByValueTx(ctx, tx, value, filters...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up token")
	}

	if token.IsExpired() {
		return nil, ErrTokenExpired
	}

	if token.Used {
		return nil, ErrTokenAlreadyUsed
	}

	return token, nil
}

// ConsumeTx marks the token used. A second consume attempt is rejected
// upstream by Validate returning the already-used error.
func (ti *TokenIssuer) ConsumeTx(ctx context.Context, tx bun.IDB, token *AccountToken) error {
	if err := ti.repo.Tokens().MarkUsedTx(ctx, tx, token); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume token")
	}
	return nil
}
