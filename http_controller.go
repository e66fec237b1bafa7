package accounts

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// AccountsController exposes the JSON API
type AccountsController struct {
	Logger           Logger
	Authenticator    *SessionAuthenticator
	Sessions         *CookieSessions
	Interactions     *InteractionService
	Profiles         *ProfileService
	Accounts         *AccountService
	Register         *RegisterUserHandler
	ChangePassword   command.Commander[ChangePasswordMessage]
	ResetPassword    command.Commander[InitializePasswordResetMessage]
	FinalizeReset    command.Commander[FinalizePasswordResetMessage]
	Confirmations    *ConfirmContactHandler
	LockoutThreshold int
	// FrontendAddress is the landing page used when a logout has no redirect
	FrontendAddress string
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func WithControllerLogger(l Logger) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Logger = resolveLogger(l)
		return c
	}
}

func WithLockoutThreshold(threshold int) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.LockoutThreshold = threshold
		return c
	}
}

func WithFrontendAddress(address string) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.FrontendAddress = address
		return c
	}
}

func NewAccountsController(base AccountsController, opts ...AccountsControllerOption) *AccountsController {
	c := &base
	if c.Logger == nil {
		c.Logger = defLogger{}
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Authenticator == nil || c.Sessions == nil || c.Interactions == nil {
		panic("accounts controller requires authenticator, sessions and interactions")
	}

	return c
}

// RegisterAccountsRoutes mounts the API under /api
func RegisterAccountsRoutes[T any](app router.Router[T], a *AccountsController) {
	api := app.Group("/api")
	session := a.Sessions.RequireSession()

	auth := api.Group("/auth")
	auth.Post("/signin", a.SignIn).SetName("accounts.signin")
	auth.Post("/signout", a.SignOut).SetName("accounts.signout")
	auth.Get("/error/:id", a.ErrorContext).SetName("accounts.error")
	if a.Register != nil {
		auth.Post("/register", a.RegisterUser).SetName("accounts.register")
	}
	if a.Profiles != nil {
		auth.Get("/profile", a.Profile, session).SetName("accounts.profile")
	}

	if a.Accounts != nil {
		api.Get("/accounts/:id", a.GetAccount, session).SetName("accounts.get")
		api.Put("/accounts/:id", a.UpdateAccount, session).SetName("accounts.update")
	}

	pwd := api.Group("/passwords")
	if a.ChangePassword != nil {
		pwd.Post("/change", a.PasswordChange, session).SetName("passwords.change")
	}
	if a.ResetPassword != nil {
		pwd.Post("/reset", a.PasswordReset).SetName("passwords.reset")
	}
	if a.FinalizeReset != nil {
		pwd.Post("/confirm-reset", a.PasswordConfirmReset).SetName("passwords.confirm-reset")
	}

	if a.Confirmations != nil {
		api.Post("/confirmations/email", a.ConfirmEmail).SetName("confirmations.email")
		api.Post("/confirmations/phone", a.ConfirmPhone, session).SetName("confirmations.phone")
	}
}

// SignInRequest payload
type SignInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// Validate will run validation rules
func (r SignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.Password, validation.Required),
	)
}

// SignIn answers 204 on success. Every failure, including unknown users
// and lockouts, gets the same 401 body.
func (a *AccountsController) SignIn(c router.Context) error {
	payload := new(SignInRequest)
	if err := c.Bind(payload); err != nil {
		return a.badRequest(c, "failed to parse body", nil)
	}

	if err := payload.Validate(); err != nil {
		return a.badRequest(c, "validation failed", FormatValidationErrorToMap(err))
	}

	outcome, err := a.Authenticator.SignIn(c.Context(), AuthenticationRequest{
		Identifier:       payload.Identifier,
		Password:         payload.Password,
		Remember:         payload.RememberMe,
		LockoutThreshold: a.LockoutThreshold,
	}, a.Sessions.For(c))
	if err != nil {
		return a.handleError(c, err)
	}

	if !outcome.Succeeded {
		a.Logger.Info("sign in rejected", "reason", string(outcome.Reason))
		return unauthorized(c)
	}

	return noContent(c)
}

// SignOutRequest payload
type SignOutRequest struct {
	LogoutID string `json:"logout_id"`
}

func (a *AccountsController) SignOut(c router.Context) error {
	payload := new(SignOutRequest)
	if err := c.Bind(payload); err != nil {
		return a.badRequest(c, "failed to parse body", nil)
	}

	redirect, err := a.Interactions.SignOut(c.Context(), payload.LogoutID, a.Sessions.For(c))
	if err != nil {
		return a.handleError(c, err)
	}

	if redirect == "" {
		redirect = a.FrontendAddress
	}

	return c.JSON(http.StatusOK, map[string]any{"post_logout_redirect_uri": redirect})
}

func (a *AccountsController) ErrorContext(c router.Context) error {
	ec, err := a.Interactions.Error(c.Context(), c.Param("id"))
	if err != nil {
		return a.handleError(c, err)
	}
	return c.JSON(http.StatusOK, ec)
}

// RegistrationPayload is the registration body
type RegistrationPayload struct {
	Username        string `json:"username"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	PhoneNumber     string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.By(optional(ValidateStringEquals(r.Password)))),
	)
}

func (a *AccountsController) RegisterUser(c router.Context) error {
	payload := new(RegistrationPayload)
	if err := c.Bind(payload); err != nil {
		return a.badRequest(c, "failed to parse body", nil)
	}

	if err := payload.Validate(); err != nil {
		return a.badRequest(c, "validation failed", FormatValidationErrorToMap(err))
	}

	_, err := a.Register.Register(c.Context(), RegisterUserMessage{
		Username:    payload.Username,
		Name:        payload.Name,
		Email:       payload.Email,
		PhoneNumber: payload.PhoneNumber,
		Password:    payload.Password,
	})
	if err != nil {
		return a.handleError(c, err)
	}

	return noContent(c)
}

// Profile returns the signed in principal, optionally limited with
// ?claims=name,role
func (a *AccountsController) Profile(c router.Context) error {
	p, ok := PrincipalFromRouter(c)
	if !ok {
		return unauthorized(c)
	}

	var requested []string
	if raw := c.Query("claims"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				requested = append(requested, t)
			}
		}
	}

	profile, err := a.Profiles.ProfileData(c.Context(), p.Subject, requested)
	if err != nil {
		return a.handleError(c, err)
	}

	return c.JSON(http.StatusOK, profile)
}

func (a *AccountsController) GetAccount(c router.Context) error {
	id, ok, err := a.ownAccountID(c)
	if !ok {
		return err
	}

	account, err := a.Accounts.Get(c.Context(), id)
	if err != nil {
		return a.handleError(c, err)
	}

	return c.JSON(http.StatusOK, account)
}

func (a *AccountsController) UpdateAccount(c router.Context) error {
	id, ok, err := a.ownAccountID(c)
	if !ok {
		return err
	}

	payload := new(UpdateAccountMessage)
	if err := c.Bind(payload); err != nil {
		return a.badRequest(c, "failed to parse body", nil)
	}

	if err := payload.Validate(); err != nil {
		return a.badRequest(c, "validation failed", FormatValidationErrorToMap(err))
	}
	payload.UserID = id

	account, err := a.Accounts.Update(c.Context(), *payload)
	if err != nil {
		return a.handleError(c, err)
	}

	return c.JSON(http.StatusOK, account)
}

func (a *AccountsController) PasswordChange(c router.Context) error {
	p, ok := PrincipalFromRouter(c)
	if !ok {
		return unauthorized(c)
	}

	userID, err := uuid.Parse(p.Subject)
	if err != nil {
		return unauthorized(c)
	}

	payload := new(ChangePasswordMessage)
	if err := c.Bind(payload); err != nil {
		return a.badRequest(c, "failed to parse body", nil)
	}
	payload.UserID = userID

	if err := a.ChangePassword.Execute(c.Context(), *payload); err != nil {
		return a.handleError(c, err)
	}

	return noContent(c)
}

// PasswordReset always answers 204 so it cannot reveal which emails exist
func (a *AccountsController) PasswordReset(c router.Context) error {
	payload := new(InitializePasswordResetMessage)
	if err := c.Bind(payload); err != nil {
		return a.badRequest(c, "failed to parse body", nil)
	}

	if err := payload.Validate(); err != nil {
		return a.badRequest(c, "validation failed", FormatValidationErrorToMap(err))
	}

	if err := a.ResetPassword.Execute(c.Context(), *payload); err != nil {
		return a.handleError(c, err)
	}

	return noContent(c)
}

func (a *AccountsController) PasswordConfirmReset(c router.Context) error {
	payload := new(FinalizePasswordResetMessage)
	if err := c.Bind(payload); err != nil {
		return a.badRequest(c, "failed to parse body", nil)
	}

	if err := a.FinalizeReset.Execute(c.Context(), *payload); err != nil {
		return a.handleError(c, err)
	}

	return noContent(c)
}

func (a *AccountsController) ConfirmEmail(c router.Context) error {
	payload := new(ConfirmEmailMessage)
	if err := c.Bind(payload); err != nil {
		return a.badRequest(c, "failed to parse body", nil)
	}

	if err := a.Confirmations.ConfirmEmail(c.Context(), *payload); err != nil {
		return a.handleError(c, err)
	}

	return noContent(c)
}

func (a *AccountsController) ConfirmPhone(c router.Context) error {
	p, ok := PrincipalFromRouter(c)
	if !ok {
		return unauthorized(c)
	}

	userID, err := uuid.Parse(p.Subject)
	if err != nil {
		return unauthorized(c)
	}

	payload := new(ConfirmPhoneMessage)
	if err := c.Bind(payload); err != nil {
		return a.badRequest(c, "failed to parse body", nil)
	}
	payload.UserID = userID

	if err := a.Confirmations.ConfirmPhone(c.Context(), *payload); err != nil {
		return a.handleError(c, err)
	}

	return noContent(c)
}

// ownAccountID resolves :id and checks it belongs to the signed in user.
// When ok is false the response was already written.
func (a *AccountsController) ownAccountID(c router.Context) (id uuid.UUID, ok bool, err error) {
	p, found := PrincipalFromRouter(c)
	if !found {
		return uuid.Nil, false, unauthorized(c)
	}

	id, perr := uuid.Parse(c.Param("id"))
	if perr != nil {
		return uuid.Nil, false, a.badRequest(c, "invalid account id", nil)
	}

	if id.String() != p.Subject {
		return uuid.Nil, false, c.JSON(http.StatusForbidden, errorBody("forbidden", "not your account"))
	}

	return id, true, nil
}

func (a *AccountsController) badRequest(c router.Context, msg string, fields map[string]string) error {
	body := errorBody("bad_request", msg)
	if len(fields) > 0 {
		body["fields"] = fields
	}
	return c.JSON(http.StatusBadRequest, body)
}

// handleError maps error categories to HTTP statuses. Every authentication
// failure shares one 401 body.
func (a *AccountsController) handleError(c router.Context, err error) error {
	var policy *PolicyError
	if errors.As(err, &policy) {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":    "weak_credential",
			"message":  ErrWeakCredential.Message,
			"problems": policy.Problems,
		})
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "unexpected error").
			WithTextCode(TextCodeUnexpectedServerError)
	}

	switch richErr.Category {
	case goerrors.CategoryAuth:
		return unauthorized(c)
	case goerrors.CategoryAuthz:
		return c.JSON(http.StatusForbidden, errorBody("forbidden", richErr.Message))
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return c.JSON(http.StatusBadRequest, errorBody("bad_request", richErr.Message))
	case goerrors.CategoryNotFound:
		return c.JSON(http.StatusNotFound, errorBody("not_found", richErr.Message))
	case goerrors.CategoryConflict:
		code := strings.ToLower(richErr.TextCode)
		if code == "" {
			code = "conflict"
		}
		return c.JSON(http.StatusConflict, errorBody(code, richErr.Message))
	default:
		a.Logger.Error("request failed",
			"path", c.Path(),
			"method", c.Method(),
			"category", string(richErr.Category),
			"text_code", richErr.TextCode,
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, errorBody("internal", "an unexpected server error occurred"))
	}
}

func unauthorized(c router.Context) error {
	return c.JSON(http.StatusUnauthorized, errorBody("unauthorized", ErrBadCredentials.Message))
}

func noContent(c router.Context) error {
	return c.Status(http.StatusNoContent).SendString("")
}

func errorBody(code, msg string) map[string]any {
	return map[string]any{"error": code, "message": msg}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// optional skips rule for empty strings
func optional(rule validation.RuleFunc) validation.RuleFunc {
	return func(value any) error {
		if s, _ := value.(string); s == "" {
			return nil
		}
		return rule(value)
	}
}

// FormatValidationErrorToMap flattens ozzo errors into field messages
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}
	out["error"] = err.Error()
	return out
}
