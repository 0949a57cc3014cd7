package soptrack_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	soptrack "github.com/goliatone/go-soptrack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registerAccount mirrors the registration flow: hash the password, then
// hand the record to the directory.
func registerAccount(t *testing.T, directory soptrack.Users, username, email, password string, role soptrack.UserRole) *soptrack.User {
	t.Helper()

	hash, err := soptrack.HashPassword(password)
	require.NoError(t, err)

	created, err := directory.Register(context.Background(), &soptrack.User{
		Username:     username,
		Name:         username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	})
	require.NoError(t, err)

	return created
}

func TestAccountLifecycle(t *testing.T) {
	repo := soptrack.NewRepositoryManager(setupDB(t))
	ctx := context.Background()

	auther := soptrack.NewAuthenticator(
		soptrack.NewUserProvider(repo.Users()),
		repo.Users(),
		newMockConfig(),
	)

	alice := registerAccount(t, repo.Users(), "alice", "alice@example.com", "wonderland1", soptrack.RoleUser)

	token, err := auther.Login(ctx, "alice", "wonderland1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	resolved, err := auther.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, resolved.ID)
	assert.Equal(t, "alice", resolved.Username)

	// wrong password and unknown identifier fold into the same failure
	_, err = auther.Login(ctx, "alice", "not-the-password")
	assert.ErrorIs(t, err, soptrack.ErrInvalidCredentials)
	_, err = auther.Login(ctx, "mallory", "wonderland1")
	assert.ErrorIs(t, err, soptrack.ErrInvalidCredentials)

	// an expired token is indistinguishable from a tampered one
	expired, err := auther.TokenService().SignClaims(&soptrack.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "soptrack-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
		UID:      alice.ID.String(),
		UserRole: string(soptrack.RoleUser),
	})
	require.NoError(t, err)
	_, err = auther.Authenticate(ctx, expired)
	assert.ErrorIs(t, err, soptrack.ErrTokenInvalid)

	// profile update keeps the username and refreshes the rest
	newName := "Alice Liddell"
	updated, err := repo.Users().Update(ctx, alice.ID, soptrack.UserPatch{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", updated.Name)
	assert.Equal(t, "alice", updated.Username)

	again, err := auther.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", again.Name)
}

func TestAdminLifecycle(t *testing.T) {
	repo := soptrack.NewRepositoryManager(setupDB(t))
	ctx := context.Background()
	cfg := newMockConfig()

	require.NoError(t, soptrack.EnsureDefaultAdmin(ctx, repo, cfg, nil))

	auther := soptrack.NewAuthenticator(
		soptrack.NewUserProvider(repo.Users()),
		repo.Users(),
		cfg,
	)

	_, err := auther.Login(ctx, "sysadmin", "admin123")
	require.NoError(t, err)

	bob := registerAccount(t, repo.Users(), "bob", "bob@example.com", "builder99", soptrack.RoleUser)
	assert.ErrorIs(t, auther.Authorize(bob, soptrack.RoleAdmin), soptrack.ErrForbidden)

	adminRole := soptrack.RoleAdmin
	promoted, err := repo.Users().Update(ctx, bob.ID, soptrack.UserPatch{Role: &adminRole})
	require.NoError(t, err)
	assert.NoError(t, auther.Authorize(promoted, soptrack.RoleAdmin))

	// deactivation locks the account out even with a valid credential
	inactive := false
	_, err = repo.Users().Update(ctx, bob.ID, soptrack.UserPatch{IsActive: &inactive})
	require.NoError(t, err)
	_, err = auther.Login(ctx, "bob", "builder99")
	assert.ErrorIs(t, err, soptrack.ErrAccountDisabled)

	require.NoError(t, repo.Users().Delete(ctx, bob.ID))
	_, err = repo.Users().GetByID(ctx, bob.ID)
	assert.ErrorIs(t, err, soptrack.ErrAccountNotFound)
}

func TestActivityDoubleSubmit(t *testing.T) {
	repo := soptrack.NewRepositoryManager(setupDB(t))
	ctx := context.Background()

	alice := registerAccount(t, repo.Users(), "alice", "alice@example.com", "wonderland1", soptrack.RoleUser)

	first := &soptrack.ActivityRecord{
		UserID:      alice.ID,
		Username:    alice.Username,
		SopType:     "gift_sop",
		TaskID:      "wrap-gifts",
		Description: "Wrapped all the gifts",
		IPAddress:   "10.0.0.5",
		UserAgent:   "curl/8.4",
	}
	outcome, err := repo.Activities().Record(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, soptrack.ActivityRecorded, outcome)

	repeat := &soptrack.ActivityRecord{
		UserID:      alice.ID,
		Username:    alice.Username,
		SopType:     "gift_sop",
		TaskID:      "wrap-gifts",
		Description: "Second submit, different text",
		IPAddress:   "10.0.0.9",
		UserAgent:   "curl/8.5",
	}
	outcome, err = repo.Activities().Record(ctx, repeat)
	require.NoError(t, err)
	assert.Equal(t, soptrack.ActivityUpdated, outcome)

	rows, err := repo.Activities().ListForUser(ctx, alice.ID, "gift_sop")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Wrapped all the gifts", rows[0].Description)
	assert.Equal(t, "10.0.0.9", rows[0].IPAddress)
	assert.False(t, rows[0].CompletedAt.Before(first.CompletedAt))

	summary, err := repo.Activities().Summarize(ctx, "gift_sop", 0)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, 1, summary[0].TotalTasks)
	assert.Equal(t, summary[0].TotalTasks, summary[0].CompletedTasks)
	assert.Equal(t, float64(100), summary[0].CompletionRate)
}
