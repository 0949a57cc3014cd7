package soptrack

import (
	"bytes"
	"encoding/csv"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// reportTimeLayout is the timestamp format used in CSV exports.
const reportTimeLayout = "2006-01-02 15:04:05"

// AdminController serves the management API: the account CRUD surface
// and the ledger-wide reporting routes. Every route sits behind the
// admin gate.
type AdminController struct {
	Logger       Logger
	Repo         RepositoryManager
	Auther       *RouteAuthenticator
	ErrorHandler router.ErrorHandler
}

type AdminControllerOption func(*AdminController) *AdminController

func WithAdminControllerLogger(logger Logger) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func NewAdminController(repo RepositoryManager, auther *RouteAuthenticator, opts ...AdminControllerOption) *AdminController {
	c := &AdminController{
		Logger:       defLogger{},
		Repo:         repo,
		Auther:       auther,
		ErrorHandler: WriteJSONError,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in admin controller...")
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in admin controller...")
	}

	return c
}

// RegisterRoutes mounts the management routes.
func (a *AdminController) RegisterRoutes(app RouteRegistrar) {
	admin := a.Auther.RequireAdmin()

	app.Get("/admin/users", a.UserList, admin)
	app.Post("/admin/users", a.UserCreate, admin)
	app.Get("/admin/users/:id", a.UserShow, admin)
	app.Put("/admin/users/:id", a.UserUpdate, admin)
	app.Delete("/admin/users/:id", a.UserDelete, admin)

	app.Get("/admin/sop/activities", a.ActivityList, admin)
	app.Get("/admin/sop/report", a.ActivityReport, admin)
	app.Get("/admin/sop/summary", a.ActivitySummary, admin)
}

func (a *AdminController) UserList(ctx router.Context) error {
	records, err := a.Repo.Users().List(ctx.Context())
	if err != nil {
		a.Logger.Error("admin list accounts", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"accounts": records,
		"total":    len(records),
	})
}

// AdminCreateUserRequest is the management account creation payload.
type AdminCreateUserRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
}

// Validate will run validation rules
func (r AdminCreateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Match(usernamePattern)),
		validation.Field(&r.Name, validation.Length(0, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(&r.Role, validation.In(string(RoleUser), string(RoleAdmin))),
	)
}

func (a *AdminController) UserCreate(ctx router.Context) error {
	payload := new(AdminCreateUserRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, bindError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	hash, err := HashPassword(payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, WrapInternal(err, "failed to create account"))
	}

	role := RoleUser
	if payload.Role != "" {
		role = UserRole(payload.Role)
	}

	active := true
	if payload.IsActive != nil {
		active = *payload.IsActive
	}

	account, err := a.Repo.Users().Register(ctx.Context(), &User{
		Username:     payload.Username,
		Name:         payload.Name,
		Email:        payload.Email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     active,
	})
	if err != nil {
		a.Logger.Error("admin create account", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"account": account,
	})
}

func (a *AdminController) UserShow(ctx router.Context) error {
	id, err := parseAccountID(ctx.Param("id"))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	account, err := a.Repo.Users().GetByID(ctx.Context(), id)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account": account,
	})
}

// AdminUpdateUserRequest carries the management account patch. Absent
// fields stay untouched.
type AdminUpdateUserRequest struct {
	Username *string `json:"username"`
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// Validate will run validation rules
func (r AdminUpdateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Match(usernamePattern)),
		validation.Field(&r.Name, validation.Length(0, 100)),
		validation.Field(&r.Email, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Length(6, 100)),
		validation.Field(&r.Role, validation.In(string(RoleUser), string(RoleAdmin))),
	)
}

func (a *AdminController) UserUpdate(ctx router.Context) error {
	id, err := parseAccountID(ctx.Param("id"))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(AdminUpdateUserRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, bindError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	patch := UserPatch{
		Username: payload.Username,
		Name:     payload.Name,
		Email:    payload.Email,
		IsActive: payload.IsActive,
	}

	if payload.Role != nil {
		role := UserRole(*payload.Role)
		patch.Role = &role
	}

	if payload.Password != nil {
		hash, err := HashPassword(*payload.Password)
		if err != nil {
			return a.ErrorHandler(ctx, WrapInternal(err, "failed to update account"))
		}
		patch.PasswordHash = &hash
	}

	account, err := a.Repo.Users().Update(ctx.Context(), id, patch)
	if err != nil {
		a.Logger.Error("admin update account", "account_id", id.String(), "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account": account,
	})
}

// UserDelete removes an account. Admins cannot remove themselves, so a
// tenant always keeps at least the acting admin.
func (a *AdminController) UserDelete(ctx router.Context) error {
	id, err := parseAccountID(ctx.Param("id"))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	actor, ok := GetRouterUser(ctx, AccountContextKey)
	if !ok {
		return a.ErrorHandler(ctx, ErrTokenInvalid)
	}

	if actor.ID == id {
		return a.ErrorHandler(ctx, ErrSelfDelete)
	}

	if err := a.Repo.Users().Delete(ctx.Context(), id); err != nil {
		a.Logger.Error("admin delete account", "account_id", id.String(), "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "deleted",
	})
}

func (a *AdminController) ActivityList(ctx router.Context) error {
	filter, err := activityFilterFromQuery(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	records, err := a.Repo.Activities().ListAll(ctx.Context(), filter)
	if err != nil {
		a.Logger.Error("admin list activities", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"activities": records,
		"total":      len(records),
	})
}

// ActivityReport streams the filtered ledger as a CSV attachment.
func (a *AdminController) ActivityReport(ctx router.Context) error {
	filter, err := activityFilterFromQuery(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	records, err := a.Repo.Activities().ListAll(ctx.Context(), filter)
	if err != nil {
		a.Logger.Error("admin activity report", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"AccountId", "Username", "SopType", "TaskId", "Description", "CompletedAt", "IpAddress", "UserAgent"}
	if err := w.Write(header); err != nil {
		return a.ErrorHandler(ctx, WrapInternal(err, "failed to build report"))
	}

	for _, record := range records {
		row := []string{
			record.UserID.String(),
			record.Username,
			record.SopType,
			record.TaskID,
			record.Description,
			record.CompletedAt.Format(reportTimeLayout),
			record.IPAddress,
			record.UserAgent,
		}
		if err := w.Write(row); err != nil {
			return a.ErrorHandler(ctx, WrapInternal(err, "failed to build report"))
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return a.ErrorHandler(ctx, WrapInternal(err, "failed to build report"))
	}

	ctx.SetHeader("Content-Type", "text/csv; charset=utf-8")
	ctx.SetHeader("Content-Disposition", `attachment; filename="sop_activity_report.csv"`)

	return ctx.Status(router.StatusOK).SendString(buf.String())
}

func (a *AdminController) ActivitySummary(ctx router.Context) error {
	sopType := ctx.Query("sop_type", "")

	sinceDays, err := queryInt(ctx, "days")
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	rows, err := a.Repo.Activities().Summarize(ctx.Context(), sopType, sinceDays)
	if err != nil {
		a.Logger.Error("admin activity summary", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"summary": rows,
		"total":   len(rows),
	})
}

// parseAccountID folds malformed IDs into the not-found signal so the
// route does not leak which IDs are well formed.
func parseAccountID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrAccountNotFound
	}
	return id, nil
}

func activityFilterFromQuery(ctx router.Context) (ActivityFilter, error) {
	filter := ActivityFilter{
		SopType: ctx.Query("sop_type", ""),
	}

	if raw := ctx.Query("user_id", ""); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, validationError(validation.Errors{
				"user_id": err,
			})
		}
		filter.UserID = id
	}

	days, err := queryInt(ctx, "days")
	if err != nil {
		return filter, err
	}
	filter.SinceDays = days

	return filter, nil
}

func queryInt(ctx router.Context, key string) (int, error) {
	raw := ctx.Query(key, "")
	if raw == "" {
		return 0, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validationError(validation.Errors{
			key: err,
		})
	}

	return val, nil
}
