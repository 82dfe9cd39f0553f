package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ConfirmAccountMessage struct {
	Token      string `json:"token" doc:"Registration token value from the confirmation link"`
	OnResponse func(*ConfirmAccountResponse)
}

func (e ConfirmAccountMessage) Type() string { return "account.confirm" }

type ConfirmAccountResponse struct {
	Account *Account
}

// ConfirmAccountHandler flips an account to verified through a valid
// registration token. The flag transitions false to true exactly once: the
// token is consumed in the same transaction, and a replayed link fails with
// the already-used error. The response carries the account so the HTTP layer
// can establish a session right after confirmation.
type ConfirmAccountHandler struct {
	repo   RepositoryManager
	issuer *TokenIssuer
	logger Logger
}

func NewConfirmAccountHandler(repo RepositoryManager) *ConfirmAccountHandler {
	return &ConfirmAccountHandler{
		repo:   repo,
		issuer: NewTokenIssuer(repo),
		logger: defLogger{},
	}
}

func (h *ConfirmAccountHandler) WithLogger(logger Logger) *ConfirmAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmAccountHandler) Execute(ctx context.Context, event ConfirmAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmAccountHandler) execute(ctx context.Context, event ConfirmAccountMessage) error {
	if event.Token == "" {
		return ErrTokenNotFound
	}

	resp := &ConfirmAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.issuer.ValidateTx(ctx, tx, event.Token, WithKind(TokenKindRegistration))
		if err != nil {
			return err
		}

		acc, err := h.repo.Accounts().GetByID(ctx, token.AccountID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrTokenNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account for confirmation")
		}

		if !acc.Verified {
			if acc, err = h.repo.Accounts().MarkVerifiedTx(ctx, tx, acc.ID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark account as verified")
			}
		}

		if err := h.issuer.ConsumeTx(ctx, tx, token); err != nil {
			return err
		}

		resp.Account = acc
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm account")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
