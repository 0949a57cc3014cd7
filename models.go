package soptrack

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the account's coarse-grained permission tag
type UserRole string

const (
	// RoleUser is a regular account (self-service endpoints only)
	RoleUser UserRole = "user"
	// RoleAdmin can manage accounts and read every SOP report
	RoleAdmin UserRole = "admin"
)

// User is the account model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Name           string     `bun:"name" json:"name,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	IsActive       bool       `bun:"is_active" json:"is_active"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Identity view of the account, consumed by the token service.
func (u *User) Identity() Identity {
	return userIdentity{
		id:       u.ID.String(),
		username: u.Username,
		email:    u.Email,
		role:     string(u.Role),
		active:   u.IsActive,
	}
}

type userIdentity struct {
	id       string
	username string
	email    string
	role     string
	active   bool
}

func (i userIdentity) ID() string       { return i.id }
func (i userIdentity) Username() string { return i.username }
func (i userIdentity) Email() string    { return i.email }
func (i userIdentity) Role() string     { return i.role }
func (i userIdentity) Active() bool     { return i.active }
