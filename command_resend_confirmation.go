package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Resend outcomes surfaced to the HTTP layer
const (
	// ResendStatusSent means a fresh registration token went out
	ResendStatusSent = "sent"
	// ResendStatusAlreadyVerified means the account needs no confirmation
	ResendStatusAlreadyVerified = "already_verified"
)

type ResendConfirmationMessage struct {
	Email      string `json:"email"`
	OnResponse func(*ResendConfirmationResponse)
}

func (e ResendConfirmationMessage) Type() string { return "account.resend_confirmation" }

type ResendConfirmationResponse struct {
	Status string
}

// ResendConfirmationHandler issues a replacement registration token and
// resends the confirmation email. An unknown email surfaces as a distinct
// account-not-found error: unlike forgot-password, this flow reveals whether
// an account exists.
type ResendConfirmationHandler struct {
	repo   RepositoryManager
	issuer *TokenIssuer
	mailer Mailer
	logger Logger
}

func NewResendConfirmationHandler(repo RepositoryManager, mailer Mailer) *ResendConfirmationHandler {
	return &ResendConfirmationHandler{
		repo:   repo,
		issuer: NewTokenIssuer(repo),
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *ResendConfirmationHandler) WithLogger(logger Logger) *ResendConfirmationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ResendConfirmationHandler) Execute(ctx context.Context, event ResendConfirmationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during confirmation resend")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendConfirmationHandler) execute(ctx context.Context, event ResendConfirmationMessage) error {
	resp := &ResendConfirmationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	acc, err := h.repo.Accounts().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account for resend")
	}

	if acc.Verified {
		resp.Status = ResendStatusAlreadyVerified
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	var token *AccountToken

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err = h.issuer.IssueTx(ctx, tx, acc, TokenKindRegistration)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reissue confirmation token")
	}

	if err := h.mailer.SendConfirmation(ctx, acc.Email, token.Value, acc.Name); err != nil {
		h.logger.Error("confirmation email delivery failed", "email", acc.Email, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send confirmation email").
			WithTextCode(TextCodeDeliveryFailed)
	}

	resp.Status = ResendStatusSent
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
