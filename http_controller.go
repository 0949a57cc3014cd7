package soptrack

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)

// RouteRegistrar captures the router methods used by the controllers.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Put(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// Controller serves the self-service API: registration, login, the
// profile pair, and the account's own slice of the activity ledger.
type Controller struct {
	Logger       Logger
	Repo         RepositoryManager
	Auth         Authenticator
	Tokens       TokenService
	Auther       *RouteAuthenticator
	ErrorHandler router.ErrorHandler
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func NewController(repo RepositoryManager, auth Authenticator, tokens TokenService, auther *RouteAuthenticator, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:       defLogger{},
		Repo:         repo,
		Auth:         auth,
		Tokens:       tokens,
		Auther:       auther,
		ErrorHandler: WriteJSONError,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in controller...")
	}

	if c.Auth == nil {
		panic("Missing Authenticator in controller...")
	}

	return c
}

// RegisterRoutes mounts the self-service routes.
func (a *Controller) RegisterRoutes(app RouteRegistrar) {
	protected := a.Auther.Protected(RoleUser)

	app.Post("/register", a.RegisterPost)
	app.Post("/login", a.LoginPost)

	app.Get("/profile", a.ProfileShow, protected)
	app.Put("/profile", a.ProfileUpdate, protected)

	app.Post("/sop/activity", a.ActivityCreate, protected)
	app.Get("/sop/activities", a.ActivityList, protected)
}

// RegisterRequest is the account creation payload
type RegisterRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Match(usernamePattern)),
		validation.Field(&r.Name, validation.Length(0, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (a *Controller) RegisterPost(ctx router.Context) error {
	payload := new(RegisterRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, bindError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	hash, err := HashPassword(payload.Password)
	if err != nil {
		a.Logger.Error("register: hash password", "error", err)
		return a.ErrorHandler(ctx, WrapInternal(err, "failed to register account"))
	}

	account, err := a.Repo.Users().Register(ctx.Context(), &User{
		Username:     payload.Username,
		Name:         payload.Name,
		Email:        payload.Email,
		PasswordHash: hash,
		Role:         RoleUser,
		IsActive:     true,
	})
	if err != nil {
		a.Logger.Error("register: create account", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"id":      account.ID,
		"account": account,
	})
}

// LoginRequest is the credential payload. Identifier accepts the
// username or the email address.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// GetIdentifier returns the account identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Username
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *Controller) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, bindError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	token, err := a.Auth.Login(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Info("login rejected", "identifier", payload.GetIdentifier())
		return a.ErrorHandler(ctx, err)
	}

	account, err := a.Repo.Users().GetByIdentifier(ctx.Context(), payload.GetIdentifier())
	if err != nil {
		return a.ErrorHandler(ctx, WrapInternal(err, "failed to load account"))
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"account":      account,
	})
}

func (a *Controller) ProfileShow(ctx router.Context) error {
	account, ok := GetRouterUser(ctx, AccountContextKey)
	if !ok {
		return a.ErrorHandler(ctx, ErrTokenInvalid)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account": account,
	})
}

// ProfileUpdateRequest carries the self-service profile fields. Absent
// fields stay untouched.
type ProfileUpdateRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// Validate will run validation rules
func (r ProfileUpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(0, 100)),
		validation.Field(&r.Email, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Length(6, 100)),
	)
}

func (a *Controller) ProfileUpdate(ctx router.Context) error {
	account, ok := GetRouterUser(ctx, AccountContextKey)
	if !ok {
		return a.ErrorHandler(ctx, ErrTokenInvalid)
	}

	payload := new(ProfileUpdateRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, bindError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	patch := UserPatch{
		Name:  payload.Name,
		Email: payload.Email,
	}

	if payload.Password != nil {
		hash, err := HashPassword(*payload.Password)
		if err != nil {
			return a.ErrorHandler(ctx, WrapInternal(err, "failed to update profile"))
		}
		patch.PasswordHash = &hash
	}

	updated, err := a.Repo.Users().Update(ctx.Context(), account.ID, patch)
	if err != nil {
		a.Logger.Error("profile update", "user_id", account.ID.String(), "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account": updated,
	})
}

// ActivityCreateRequest reports one completed SOP task.
type ActivityCreateRequest struct {
	SopType     string `json:"sop_type"`
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
}

// Validate will run validation rules
func (r ActivityCreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SopType, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.TaskID, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Description, validation.Length(0, 2000)),
	)
}

func (a *Controller) ActivityCreate(ctx router.Context) error {
	account, ok := GetRouterUser(ctx, AccountContextKey)
	if !ok {
		return a.ErrorHandler(ctx, ErrTokenInvalid)
	}

	payload := new(ActivityCreateRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, bindError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	record := &ActivityRecord{
		UserID:      account.ID,
		Username:    account.Username,
		SopType:     payload.SopType,
		TaskID:      payload.TaskID,
		Description: payload.Description,
		IPAddress:   ctx.IP(),
		UserAgent:   ctx.Header("User-Agent"),
		SessionID:   ctx.Header("X-Session-ID"),
	}

	outcome, err := a.Repo.Activities().Record(ctx.Context(), record)
	if err != nil {
		a.Logger.Error("record activity", "user_id", account.ID.String(), "error", err)
		return a.ErrorHandler(ctx, err)
	}

	// repeat completions are not failures, both outcomes report 200
	return ctx.JSON(router.StatusOK, map[string]any{
		"status":   string(outcome),
		"activity": record,
	})
}

func (a *Controller) ActivityList(ctx router.Context) error {
	account, ok := GetRouterUser(ctx, AccountContextKey)
	if !ok {
		return a.ErrorHandler(ctx, ErrTokenInvalid)
	}

	sopType := ctx.Query("sop_type", "")

	records, err := a.Repo.Activities().ListForUser(ctx.Context(), account.ID, sopType)
	if err != nil {
		a.Logger.Error("list activities", "user_id", account.ID.String(), "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"activities": records,
		"total":      len(records),
	})
}

func bindError(err error) error {
	return errors.Wrap(err, errors.CategoryValidation, "Failed to parse request body").
		WithTextCode("MALFORMED_BODY").
		WithCode(errors.CodeBadRequest)
}

// validationError folds ozzo field errors into the JSON error envelope
// metadata.
func validationError(err error) error {
	return errors.New("Invalid request payload", errors.CategoryValidation).
		WithTextCode("VALIDATION").
		WithCode(errors.CodeBadRequest).
		WithMetadata(map[string]any{
			"fields": FormatValidationErrorToMap(err),
		})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if fieldErrs, ok := err.(validation.Errors); ok {
		for field, ferr := range fieldErrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}
