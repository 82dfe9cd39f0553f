package account

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// CSRF intentions, one per state changing form
const (
	IntentionResendConfirmation = "resend_confirmation"
	IntentionForgotPassword     = "forgot_password"
	IntentionResetPassword      = "reset_password"
)

const csrfField = "_csrf_token"

func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	raw := c.Locals(key)
	if raw == nil {
		return nil, ErrUnableToFindSession
	}

	claims, ok := raw.(SessionClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return sessionFromClaims(claims)
}

func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountControllerOption) {

	controller := NewAccountController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.ConfirmAccount, controller.ConfirmAccount).
		SetName("confirm-account.get")

	app.Get(controller.Routes.ResendConfirmation, controller.ResendConfirmationShow).
		SetName("resend-confirmation.get")
	app.Post(controller.Routes.ResendConfirmation, controller.ResendConfirmationPost).
		SetName("resend-confirmation.post")

	app.Get(controller.Routes.ForgotPassword, controller.ForgotPasswordShow).
		SetName("forgot-password.get")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost).
		SetName("forgot-password.post")

	app.Get(controller.Routes.ResetPassword, controller.ResetPasswordForm).
		SetName("reset-password.get")
	app.Post(controller.Routes.ResetPassword, controller.ResetPasswordExecute).
		SetName("reset-password.post")
}

type AccountControllerRoutes struct {
	Login              string
	Logout             string
	Register           string
	ConfirmAccount     string
	ResendConfirmation string
	ForgotPassword     string
	ResetPassword      string
}

type AccountControllerViews struct {
	Login              string
	Register           string
	ResendConfirmation string
	ForgotPassword     string
	ResetPassword      string
	Error              string
}

type AccountController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Mailer       Mailer
	CSRF         CSRFValidator
	Routes       *AccountControllerRoutes
	Views        *AccountControllerViews
	Auther       HTTPAuthenticator
	ErrorHandler router.ErrorHandler
}

type AccountControllerOption func(*AccountController) *AccountController

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AccountControllerRoutes{
			Login:              "/login",
			Logout:             "/logout",
			Register:           "/registro",
			ConfirmAccount:     "/confirmar-cuenta",
			ResendConfirmation: "/reenviar-confirmacion",
			ForgotPassword:     "/recuperar-contrasena",
			ResetPassword:      "/restablecer-contrasena",
		},
		Views: &AccountControllerViews{
			Login:              "login",
			Register:           "register",
			ResendConfirmation: "resend_confirmation",
			ForgotPassword:     "forgot_password",
			ResetPassword:      "reset_password",
			Error:              "errors/error",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in account controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in account controller...")
	}

	if c.Mailer == nil {
		c.Mailer = NewLogMailer(nil)
	}

	return c
}

func WithControllerRepository(repo RepositoryManager) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuthenticator(auther HTTPAuthenticator) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Auther = auther
		return c
	}
}

func WithControllerMailer(mailer Mailer) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Mailer = mailer
		return c
	}
}

func WithControllerCSRF(csrf CSRFValidator) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.CSRF = csrf
		return c
	}
}

func WithControllerLogger(logger Logger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// isAuthenticated reports whether the request already carries a live session
// cookie. The login, registration, and confirmation routes send those
// visitors home instead of serving the anonymous forms.
func (a *AccountController) isAuthenticated(ctx router.Context) bool {
	_, err := a.Auther.SessionFromCookie(ctx)
	return err == nil
}

func (a *AccountController) LoginShow(ctx router.Context) error {
	if a.isAuthenticated(ctx) {
		return ctx.Redirect("/", router.StatusSeeOther)
	}

	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether the remember me box was checked
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccountController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": err.Error(),
		})
	}

	if a.Debug {
		fmt.Println("======= ACCOUNT LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("============================")
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		if IsAccountUnverified(err) {
			errs["authentication"] = "Debes confirmar tu email antes de iniciar sesión."
		} else {
			errs["authentication"] = "Email o contraseña incorrectos."
		}
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, "/")

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AccountController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AccountController) RegistrationShow(ctx router.Context) error {
	if a.isAuthenticated(ctx) {
		return ctx.Redirect("/", router.StatusSeeOther)
	}

	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterAccountMessage{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(2, 255)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("register account parse payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("register account validate payload", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	req := RegisterAccountMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
	}

	registerAccount := NewRegisterAccountHandler(a.Repo, a.Mailer).WithLogger(a.Logger)
	if err := registerAccount.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register account error", "error", err)

		errs := []string{err.Error()}
		if IsDuplicateEmail(err) {
			errs = []string{"Ya existe una cuenta con este email."}
		}

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error registering account",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": errs,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "¡Cuenta creada! Revisa tu email para confirmar tu cuenta.",
	}).Redirect("/", fiber.StatusSeeOther)
}

// ConfirmAccount consumes a registration token and opens a session for the
// confirmed account. Unknown tokens yield a 404 while expired or already
// used tokens yield a 403. Visitors with a live session are sent home
// before the token is touched.
func (a *AccountController) ConfirmAccount(ctx router.Context) error {
	if a.isAuthenticated(ctx) {
		return ctx.Redirect("/", router.StatusSeeOther)
	}

	tokenValue := ctx.Query("token", "")

	var resp *ConfirmAccountResponse
	req := ConfirmAccountMessage{
		Token: tokenValue,
		OnResponse: func(r *ConfirmAccountResponse) {
			resp = r
		},
	}

	confirmAccount := NewConfirmAccountHandler(a.Repo).WithLogger(a.Logger)
	if err := confirmAccount.Execute(ctx.Context(), req); err != nil {
		return a.renderTokenError(ctx, err)
	}

	if err := a.Auther.Establish(ctx, resp.Account, true); err != nil {
		a.Logger.Error("confirm account auto login failed", "error", err)
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": "Tu cuenta ha sido confirmada. Ya puedes iniciar sesión.",
		}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Tu cuenta ha sido confirmada.",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountController) ResendConfirmationShow(ctx router.Context) error {
	return ctx.Render(a.Views.ResendConfirmation, router.ViewContext{
		"errors":     nil,
		"record":     nil,
		"csrf_token": a.csrfToken(ctx, IntentionResendConfirmation),
	})
}

// EmailFormPayload is the single field form used by resend confirmation and
// forgot password
type EmailFormPayload struct {
	Email     string `form:"email" json:"email"`
	CSRFToken string `form:"_csrf_token" json:"_csrf_token"`
}

// Validate will validate the payload
func (r EmailFormPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AccountController) ResendConfirmationPost(ctx router.Context) error {
	payload := new(EmailFormPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("resend confirmation parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := a.checkCSRF(ctx, IntentionResendConfirmation, payload.CSRFToken); err != nil {
		return a.renderCSRFError(ctx, a.Views.ResendConfirmation, IntentionResendConfirmation, payload)
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.ResendConfirmation, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
			"csrf_token": a.csrfToken(ctx, IntentionResendConfirmation),
		})
	}

	var resp *ResendConfirmationResponse
	req := ResendConfirmationMessage{
		Email: payload.Email,
		OnResponse: func(r *ResendConfirmationResponse) {
			resp = r
		},
	}

	resendConfirmation := NewResendConfirmationHandler(a.Repo, a.Mailer).WithLogger(a.Logger)
	if err := resendConfirmation.Execute(ctx.Context(), req); err != nil {
		errs := []string{err.Error()}
		if IsAccountNotFound(err) {
			errs = []string{"No hay ninguna cuenta con este email."}
		}

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error resending confirmation",
		}).Render(a.Views.ResendConfirmation, router.ViewContext{
			"record":     payload,
			"errors":     errs,
			"csrf_token": a.csrfToken(ctx, IntentionResendConfirmation),
		})
	}

	if resp.Status == ResendStatusAlreadyVerified {
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": "Tu cuenta ya está confirmada. Puedes iniciar sesión.",
		}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Te hemos enviado un nuevo email de confirmación.",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AccountController) ForgotPasswordShow(ctx router.Context) error {
	return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
		"errors":     nil,
		"record":     nil,
		"csrf_token": a.csrfToken(ctx, IntentionForgotPassword),
	})
}

// ForgotPasswordPost requests a reset token. The response is identical for
// known and unknown emails so the form cannot be used to enumerate accounts.
func (a *AccountController) ForgotPasswordPost(ctx router.Context) error {
	payload := new(EmailFormPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("forgot password parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := a.checkCSRF(ctx, IntentionForgotPassword, payload.CSRFToken); err != nil {
		return a.renderCSRFError(ctx, a.Views.ForgotPassword, IntentionForgotPassword, payload)
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.ForgotPassword, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
			"csrf_token": a.csrfToken(ctx, IntentionForgotPassword),
		})
	}

	req := InitializePasswordResetMessage{
		Email: payload.Email,
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Repo, a.Mailer).WithLogger(a.Logger)
	if err := initPwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("forgot password error", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error requesting password reset",
		}).Render(a.Views.ForgotPassword, router.ViewContext{
			"record":     payload,
			"errors":     []string{err.Error()},
			"csrf_token": a.csrfToken(ctx, IntentionForgotPassword),
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Si el email existe, te hemos enviado un enlace para restablecer tu contraseña.",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

// ResetPasswordForm shows the new password form after checking the token is
// still usable. Consumed tokens are filtered out of the lookup so they
// render like unknown links, and an expired one gets a 403. The form never
// renders for a token that cannot finalize.
func (a *AccountController) ResetPasswordForm(ctx router.Context) error {
	tokenValue := ctx.Query("token", "")

	issuer := NewTokenIssuer(a.Repo).WithLogger(a.Logger)
	token, err := issuer.Validate(ctx.Context(), tokenValue, WithKind(TokenKindPasswordReset), OnlyUnused())
	if err != nil {
		return a.renderTokenError(ctx, err)
	}

	return ctx.Render(a.Views.ResetPassword, router.ViewContext{
		"errors":     nil,
		"token":      token.Value,
		"csrf_token": a.csrfToken(ctx, IntentionResetPassword),
	})
}

// ResetPasswordPayload holds values for the final reset step
type ResetPasswordPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	CSRFToken       string `form:"_csrf_token" json:"_csrf_token"`
}

// Validate will validate the payload
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) ResetPasswordExecute(ctx router.Context) error {
	tokenValue := ctx.Query("token", "")

	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("reset password parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := a.checkCSRF(ctx, IntentionResetPassword, payload.CSRFToken); err != nil {
		return a.renderCSRFError(ctx, a.Views.ResetPassword, IntentionResetPassword, payload)
	}

	if err := payload.Validate(); err != nil {
		// the token stays unused, rerender the form so the user can retry
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.ResetPassword, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
			"token":      tokenValue,
			"csrf_token": a.csrfToken(ctx, IntentionResetPassword),
		})
	}

	req := FinalizePasswordResetMessage{
		Token:           tokenValue,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Repo).WithLogger(a.Logger)
	if err := finalizePwdReset.Execute(ctx.Context(), req); err != nil {
		return a.renderTokenError(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Tu contraseña ha sido restablecida. Ya puedes iniciar sesión.",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AccountController) renderTokenError(ctx router.Context, err error) error {
	switch {
	case IsTokenExpired(err):
		return ctx.Status(fiber.StatusForbidden).Render(a.Views.Error, router.ViewContext{
			"message": "El enlace ha caducado. Solicita uno nuevo.",
		})
	case IsTokenAlreadyUsed(err):
		return ctx.Status(fiber.StatusForbidden).Render(a.Views.Error, router.ViewContext{
			"message": "Este enlace ya ha sido utilizado.",
		})
	case IsTokenNotFound(err):
		return ctx.Status(fiber.StatusNotFound).Render(a.Views.Error, router.ViewContext{
			"message": "Enlace no válido.",
		})
	default:
		return a.ErrorHandler(ctx, err)
	}
}

func (a *AccountController) csrfToken(ctx router.Context, intention string) string {
	if a.CSRF == nil {
		return ""
	}
	token, err := a.CSRF.Generate(ctx, intention)
	if err != nil {
		a.Logger.Error("csrf token generation failed", "intention", intention, "error", err)
		return ""
	}
	return token
}

func (a *AccountController) checkCSRF(ctx router.Context, intention, token string) error {
	if a.CSRF == nil {
		return nil
	}
	return a.CSRF.Check(ctx, intention, token)
}

func (a *AccountController) renderCSRFError(ctx router.Context, view, intention string, record any) error {
	return flash.WithError(ctx, router.ViewContext{
		"system_message": "El formulario ha caducado. Inténtalo de nuevo.",
	}).Status(fiber.StatusForbidden).Render(view, router.ViewContext{
		"record":     record,
		"errors":     []string{"El formulario ha caducado. Inténtalo de nuevo."},
		"csrf_token": a.csrfToken(ctx, intention),
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map for templates
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return fmt.Errorf("values must match")
		}
		return nil
	}
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
