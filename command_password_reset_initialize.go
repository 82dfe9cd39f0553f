package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" doc:"Email of the account requesting a reset"`
	OnResponse func(*InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "account.password_reset" }

type InitializePasswordResetResponse struct {
	// Requested is true only when a token was actually issued. The HTTP layer
	// must not let this difference reach the response: forgot-password stays
	// enumeration safe.
	Requested bool
	Token     *AccountToken
}

// InitializePasswordResetHandler issues a password reset token, superseding
// any unused one, and mails the reset link. An unknown email is an internal
// no-op, never an error.
type InitializePasswordResetHandler struct {
	repo   RepositoryManager
	issuer *TokenIssuer
	mailer Mailer
	logger Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, mailer Mailer) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:   repo,
		issuer: NewTokenIssuer(repo),
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	acc, err := h.repo.Accounts().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
	}

	var token *AccountToken

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err = h.issuer.IssueTx(ctx, tx, acc, TokenKindPasswordReset)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if err := h.mailer.SendPasswordReset(ctx, acc.Email, token.Value, acc.Name); err != nil {
		h.logger.Error("password reset email delivery failed", "email", acc.Email, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send password reset email").
			WithTextCode(TextCodeDeliveryFailed)
	}

	resp.Requested = true
	resp.Token = token

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
