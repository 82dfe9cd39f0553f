package account

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterAccountMessage struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	UseHashid  bool
	OnResponse func(*RegisterAccountResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// Validate enforces the registration constraints before any persistence
func (e RegisterAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required, validation.Length(2, 255)),
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(6, 100)),
	)
}

type RegisterAccountResponse struct {
	Account *Account
	Token   *AccountToken
}

// RegisterAccountHandler persists a new unverified account, issues its
// registration token in the same transaction, and sends the confirmation
// email after commit. A delivery failure propagates as an error while the
// account and token stay persisted; resending the confirmation is the
// recovery path.
type RegisterAccountHandler struct {
	repo   RepositoryManager
	issuer *TokenIssuer
	mailer Mailer
	hasher PasswordHasher
	logger Logger
}

func NewRegisterAccountHandler(repo RepositoryManager, mailer Mailer) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		repo:   repo,
		issuer: NewTokenIssuer(repo),
		mailer: mailer,
		hasher: BcryptHasher{},
		logger: defLogger{},
	}
}

func (h *RegisterAccountHandler) WithHasher(hasher PasswordHasher) *RegisterAccountHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	var acc *Account
	var token *AccountToken

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Accounts().EmailTakenTx(ctx, tx, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing account")
		}
		if taken {
			return ErrDuplicateEmail
		}

		hash, err := h.hasher.HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		acc = &Account{
			Name:         event.Name,
			Email:        event.Email,
			PasswordHash: hash,
			Roles:        []Role{RoleUser},
			Verified:     false,
		}
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				acc.ID = id
			}
		}

		if acc, err = h.repo.Accounts().RegisterTx(ctx, tx, acc); err != nil {
			// the unique index on email is the backstop for concurrent registrations
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		if token, err = h.issuer.IssueTx(ctx, tx, acc, TokenKindRegistration); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	if err := h.mailer.SendConfirmation(ctx, acc.Email, token.Value, acc.Name); err != nil {
		h.logger.Error("confirmation email delivery failed", "email", acc.Email, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send confirmation email").
			WithTextCode(TextCodeDeliveryFailed)
	}

	if event.OnResponse != nil {
		event.OnResponse(&RegisterAccountResponse{
			Account: acc,
			Token:   token,
		})
	}

	return nil
}
