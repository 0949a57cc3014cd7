package soptrack

import (
	"context"
	"net/mail"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the authoritative directory of accounts. Uniqueness of
// username and email is enforced by the storage layer's unique indexes;
// every write that collides surfaces ErrDuplicateAccount no matter how
// requests interleave.
type Users interface {
	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	List(ctx context.Context) ([]*User, error)

	Update(ctx context.Context, id uuid.UUID, patch UserPatch) (*User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	HasAdmin(ctx context.Context) (bool, error)

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// UserPatch carries the optional fields of a partial account update.
// Nil means "leave untouched". PasswordHash must already be hashed.
type UserPatch struct {
	Username     *string
	Name         *string
	Email        *string
	PasswordHash *string
	Role         *UserRole
	IsActive     *bool
}

func (p UserPatch) isEmpty() bool {
	return p.Username == nil && p.Name == nil && p.Email == nil &&
		p.PasswordHash == nil && p.Role == nil && p.IsActive == nil
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users       = (*users)(nil)
	_ UserTracker = (*users)(nil)
)

// NewUsersRepository builds the directory on top of the generic bun
// repository.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	record, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicateAccount
		}
		return nil, WrapInternal(err, "failed to create account")
	}

	return record, nil
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.getByColumn(ctx, "id", id.String())
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.getByColumn(ctx, "username", strings.TrimSpace(username))
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.getByColumn(ctx, "email", strings.TrimSpace(email))
}

// GetByIdentifier accepts an id, email, or username and tries the
// matching columns in that order.
func (a *users) GetByIdentifier(ctx context.Context, identifier string) (*User, error) {
	for _, opt := range resolveUserIdentifier(identifier) {
		record, err := a.getByColumn(ctx, opt.column, opt.value)
		if err == nil {
			return record, nil
		}
		if err != ErrAccountNotFound {
			return nil, err
		}
	}

	return nil, ErrAccountNotFound
}

func (a *users) List(ctx context.Context) ([]*User, error) {
	var records []*User
	err := a.db.NewSelect().
		Model(&records).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, WrapInternal(err, "failed to list accounts")
	}
	return records, nil
}

// Update applies the non-nil patch fields. A username or email that
// collides with another account is rejected by the unique index and
// reported as ErrDuplicateAccount.
func (a *users) Update(ctx context.Context, id uuid.UUID, patch UserPatch) (*User, error) {
	if patch.isEmpty() {
		return a.GetByID(ctx, id)
	}

	record, err := a.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, 7)
	if patch.Username != nil {
		record.Username = *patch.Username
		columns = append(columns, "username")
	}
	if patch.Name != nil {
		record.Name = *patch.Name
		columns = append(columns, "name")
	}
	if patch.Email != nil {
		record.Email = *patch.Email
		columns = append(columns, "email")
	}
	if patch.PasswordHash != nil {
		record.PasswordHash = *patch.PasswordHash
		columns = append(columns, "password_hash")
	}
	if patch.Role != nil {
		record.Role = *patch.Role
		columns = append(columns, "user_role")
	}
	if patch.IsActive != nil {
		record.IsActive = *patch.IsActive
		columns = append(columns, "is_active")
	}

	now := time.Now()
	record.UpdatedAt = &now
	columns = append(columns, "updated_at")

	_, err = a.db.NewUpdate().
		Model(record).
		Column(columns...).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicateAccount
		}
		return nil, WrapInternal(err, "failed to update account")
	}

	return record, nil
}

// Delete soft-deletes the account. The row stays behind the soft-delete
// filter, so username and email queries no longer see it. The unique
// indexes only cover live rows, so a deleted account's username and
// email become available for registration again.
func (a *users) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := a.GetByID(ctx, id); err != nil {
		return err
	}

	_, err := a.db.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		return WrapInternal(err, "failed to delete account")
	}

	return nil
}

// HasAdmin reports whether any admin account exists, disabled included.
func (a *users) HasAdmin(ctx context.Context) (bool, error) {
	exists, err := a.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.user_role = ?", string(RoleAdmin)).
		Exists(ctx)
	if err != nil {
		return false, WrapInternal(err, "failed to check for admin account")
	}
	return exists, nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	// NOTE: the ORM update path will not reset login_attempt_at and
	// login_attempts to their zero values, so we issue the SQL directly.
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, a.db, record, criteria...)

	return err
}

func (a *users) getByColumn(ctx context.Context, column, value string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, WrapInternal(err, "failed to load account")
	}

	return record, nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
