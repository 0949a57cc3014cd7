package soptrack_test

import (
	"context"

	soptrack "github.com/goliatone/go-soptrack"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// testIdentity is a minimal Identity implementation for unit tests.
type testIdentity struct {
	id       string
	username string
	email    string
	role     string
	active   bool
}

func (m testIdentity) ID() string       { return m.id }
func (m testIdentity) Username() string { return m.username }
func (m testIdentity) Email() string    { return m.email }
func (m testIdentity) Role() string     { return m.role }
func (m testIdentity) Active() bool     { return m.active }

// mockConfig implements Config with static values.
type mockConfig struct {
	signingKey    string
	ttlMinutes    int
	issuer        string
	audience      []string
	contextKey    string
	adminUsername string
	adminPassword string
	adminEmail    string
	adminName     string
}

func newMockConfig() *mockConfig {
	return &mockConfig{
		signingKey:    "test-signing-key",
		ttlMinutes:    30,
		issuer:        "soptrack-test",
		contextKey:    "user",
		adminUsername: "sysadmin",
		adminPassword: "admin123",
		adminEmail:    "admin@example.com",
		adminName:     "System Administrator",
	}
}

func (c *mockConfig) GetSigningKey() string           { return c.signingKey }
func (c *mockConfig) GetSigningMethod() string        { return "HS256" }
func (c *mockConfig) GetContextKey() string           { return c.contextKey }
func (c *mockConfig) GetTokenTTLMinutes() int         { return c.ttlMinutes }
func (c *mockConfig) GetTokenLookup() string          { return "header:Authorization" }
func (c *mockConfig) GetAuthScheme() string           { return "Bearer" }
func (c *mockConfig) GetIssuer() string               { return c.issuer }
func (c *mockConfig) GetAudience() []string           { return c.audience }
func (c *mockConfig) GetDefaultAdminUsername() string { return c.adminUsername }
func (c *mockConfig) GetDefaultAdminPassword() string { return c.adminPassword }
func (c *mockConfig) GetDefaultAdminEmail() string    { return c.adminEmail }
func (c *mockConfig) GetDefaultAdminName() string     { return c.adminName }

// MockIdentityProvider mocks IdentityProvider.
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (soptrack.Identity, error) {
	args := m.Called(ctx, identifier, password)
	if identity, ok := args.Get(0).(soptrack.Identity); ok {
		return identity, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (soptrack.Identity, error) {
	args := m.Called(ctx, identifier)
	if identity, ok := args.Get(0).(soptrack.Identity); ok {
		return identity, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockUserTracker mocks the login tracking store used by UserProvider.
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string) (*soptrack.User, error) {
	args := m.Called(ctx, identifier)
	if user, ok := args.Get(0).(*soptrack.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *soptrack.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *soptrack.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// stubDirectory is a map-backed Users implementation for gate tests.
type stubDirectory struct {
	byUsername map[string]*soptrack.User
}

func newStubDirectory(users ...*soptrack.User) *stubDirectory {
	d := &stubDirectory{byUsername: map[string]*soptrack.User{}}
	for _, u := range users {
		d.byUsername[u.Username] = u
	}
	return d
}

func (d *stubDirectory) Register(ctx context.Context, user *soptrack.User) (*soptrack.User, error) {
	if _, ok := d.byUsername[user.Username]; ok {
		return nil, soptrack.ErrDuplicateAccount
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	d.byUsername[user.Username] = user
	return user, nil
}

func (d *stubDirectory) RegisterTx(ctx context.Context, tx bun.IDB, user *soptrack.User) (*soptrack.User, error) {
	return d.Register(ctx, user)
}

func (d *stubDirectory) GetByID(ctx context.Context, id uuid.UUID) (*soptrack.User, error) {
	for _, u := range d.byUsername {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, soptrack.ErrAccountNotFound
}

func (d *stubDirectory) GetByUsername(ctx context.Context, username string) (*soptrack.User, error) {
	if u, ok := d.byUsername[username]; ok {
		return u, nil
	}
	return nil, soptrack.ErrAccountNotFound
}

func (d *stubDirectory) GetByEmail(ctx context.Context, email string) (*soptrack.User, error) {
	for _, u := range d.byUsername {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, soptrack.ErrAccountNotFound
}

func (d *stubDirectory) GetByIdentifier(ctx context.Context, identifier string) (*soptrack.User, error) {
	if u, err := d.GetByUsername(ctx, identifier); err == nil {
		return u, nil
	}
	return d.GetByEmail(ctx, identifier)
}

func (d *stubDirectory) List(ctx context.Context) ([]*soptrack.User, error) {
	out := make([]*soptrack.User, 0, len(d.byUsername))
	for _, u := range d.byUsername {
		out = append(out, u)
	}
	return out, nil
}

func (d *stubDirectory) Update(ctx context.Context, id uuid.UUID, patch soptrack.UserPatch) (*soptrack.User, error) {
	return d.GetByID(ctx, id)
}

func (d *stubDirectory) Delete(ctx context.Context, id uuid.UUID) error {
	for username, u := range d.byUsername {
		if u.ID == id {
			delete(d.byUsername, username)
			return nil
		}
	}
	return soptrack.ErrAccountNotFound
}

func (d *stubDirectory) HasAdmin(ctx context.Context) (bool, error) {
	for _, u := range d.byUsername {
		if u.Role == soptrack.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (d *stubDirectory) TrackAttemptedLogin(ctx context.Context, user *soptrack.User) error {
	return nil
}

func (d *stubDirectory) TrackSuccessfulLogin(ctx context.Context, user *soptrack.User) error {
	return nil
}
