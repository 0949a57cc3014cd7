package tokenware_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-soptrack/middleware/tokenware"
)

var roleRank = map[string]int{"user": 1, "admin": 2}

type stubClaims struct {
	subject string
	uid     string
	role    string
}

func (c stubClaims) Subject() string { return c.subject }
func (c stubClaims) UserID() string  { return c.uid }
func (c stubClaims) Role() string    { return c.role }

func (c stubClaims) HasRole(role string) bool { return c.role == role }

func (c stubClaims) IsAtLeast(minRole string) bool {
	return roleRank[c.role] >= roleRank[minRole]
}

type stubValidator struct {
	claims    tokenware.AuthClaims
	err       error
	lastToken string
}

func (v *stubValidator) Validate(raw string) (tokenware.AuthClaims, error) {
	v.lastToken = raw
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func newMiddleware(cfg tokenware.Config) router.HandlerFunc {
	return tokenware.New(cfg)(func(ctx router.Context) error {
		return ctx.Next()
	})
}

func passthroughError(c router.Context, err error) error {
	return err
}

func TestTokenwareHeaderExtraction(t *testing.T) {
	validator := &stubValidator{claims: stubClaims{subject: "alice", role: "user"}}

	middleware := newMiddleware(tokenware.Config{
		TokenValidator: validator,
		ErrorHandler:   passthroughError,
	})

	ctx := router.NewMockContext()
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer raw.token.value")
	ctx.On("Locals", "user", mock.Anything).Return(nil)

	require.NoError(t, middleware(ctx))
	assert.True(t, ctx.NextCalled)
	assert.Equal(t, "raw.token.value", validator.lastToken)

	claims, ok := ctx.LocalsMock["user"].(tokenware.AuthClaims)
	require.True(t, ok)
	assert.Equal(t, "alice", claims.Subject())
}

func TestTokenwareMissingOrMalformedHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Token raw.token.value"},
		{"scheme only", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := newMiddleware(tokenware.Config{
				TokenValidator: &stubValidator{claims: stubClaims{subject: "alice"}},
				ErrorHandler:   passthroughError,
			})

			ctx := router.NewMockContext()
			ctx.On("GetString", router.HeaderAuthorization, "").Return(tt.header)

			err := middleware(ctx)
			assert.ErrorIs(t, err, tokenware.ErrTokenMissingOrMalformed)
			assert.False(t, ctx.NextCalled)
		})
	}
}

func TestTokenwareValidatorFailure(t *testing.T) {
	wantErr := errors.New("token rejected")

	middleware := newMiddleware(tokenware.Config{
		TokenValidator: &stubValidator{err: wantErr},
		ErrorHandler:   passthroughError,
	})

	ctx := router.NewMockContext()
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer bad.token")

	err := middleware(ctx)
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, ctx.NextCalled)
}

func TestTokenwareDefaultErrorHandler(t *testing.T) {
	middleware := newMiddleware(tokenware.Config{
		TokenValidator: &stubValidator{claims: stubClaims{subject: "alice"}},
	})

	ctx := router.NewMockContext()
	ctx.On("GetString", router.HeaderAuthorization, "").Return("")
	ctx.On("Status", router.StatusUnauthorized).Return()
	ctx.On("SendString", "Invalid or expired token").Return(nil)

	require.NoError(t, middleware(ctx))
	assert.Equal(t, router.StatusUnauthorized, ctx.StatusCodeM)
	assert.Equal(t, "Invalid or expired token", ctx.ResponseBodyM)
}

func TestTokenwareCustomLookup(t *testing.T) {
	tests := []struct {
		name     string
		lookup   string
		setToken func(*router.MockContext)
	}{
		{
			name:   "query",
			lookup: "query:auth_token",
			setToken: func(ctx *router.MockContext) {
				ctx.QueriesM["auth_token"] = "raw.token.value"
			},
		},
		{
			name:   "param",
			lookup: "param:token",
			setToken: func(ctx *router.MockContext) {
				ctx.ParamsM["token"] = "raw.token.value"
			},
		},
		{
			name:   "cookie",
			lookup: "cookie:session_token",
			setToken: func(ctx *router.MockContext) {
				ctx.CookiesM["session_token"] = "raw.token.value"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := &stubValidator{claims: stubClaims{subject: "alice", role: "user"}}
			middleware := newMiddleware(tokenware.Config{
				TokenValidator: validator,
				TokenLookup:    tt.lookup,
				ErrorHandler:   passthroughError,
			})

			ctx := router.NewMockContext()
			tt.setToken(ctx)
			ctx.On("Locals", "user", mock.Anything).Return(nil)

			require.NoError(t, middleware(ctx))
			assert.True(t, ctx.NextCalled)
			assert.Equal(t, "raw.token.value", validator.lastToken)
		})
	}
}

// pathMock overrides Path() from the base MockContext.
type pathMock struct {
	*router.MockContext
	pathOverride string
}

func (m *pathMock) Path() string {
	return m.pathOverride
}

func TestTokenwareFilterSkips(t *testing.T) {
	middleware := newMiddleware(tokenware.Config{
		TokenValidator: &stubValidator{claims: stubClaims{subject: "alice"}},
		ErrorHandler:   passthroughError,
		Filter: func(ctx router.Context) bool {
			return ctx.Path() == "/login"
		},
	})

	ctx := &pathMock{
		MockContext:  router.NewMockContext(),
		pathOverride: "/login",
	}

	require.NoError(t, middleware(ctx))
	assert.True(t, ctx.NextCalled)
}

func TestTokenwareRoleChecks(t *testing.T) {
	tests := []struct {
		name    string
		cfg     tokenware.Config
		role    string
		allowed bool
	}{
		{
			name:    "minimum role met",
			cfg:     tokenware.Config{MinimumRole: "user"},
			role:    "admin",
			allowed: true,
		},
		{
			name:    "minimum role not met",
			cfg:     tokenware.Config{MinimumRole: "admin"},
			role:    "user",
			allowed: false,
		},
		{
			name:    "required role exact match",
			cfg:     tokenware.Config{RequiredRole: "admin"},
			role:    "admin",
			allowed: true,
		},
		{
			name:    "required role missing",
			cfg:     tokenware.Config{RequiredRole: "admin"},
			role:    "user",
			allowed: false,
		},
		{
			name: "custom checker denies",
			cfg: tokenware.Config{
				MinimumRole: "user",
				RoleChecker: func(tokenware.AuthClaims, string) bool { return false },
			},
			role:    "admin",
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.TokenValidator = &stubValidator{claims: stubClaims{subject: "alice", role: tt.role}}
			cfg.ErrorHandler = passthroughError
			middleware := newMiddleware(cfg)

			ctx := router.NewMockContext()
			ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer raw.token.value")
			ctx.On("Locals", "user", mock.Anything).Return(nil).Maybe()

			err := middleware(ctx)
			if tt.allowed {
				require.NoError(t, err)
				assert.True(t, ctx.NextCalled)
				return
			}

			require.Error(t, err)
			assert.True(t, strings.HasPrefix(err.Error(), "access denied"))
			assert.False(t, ctx.NextCalled)
		})
	}
}

func TestTokenwareValidationListeners(t *testing.T) {
	var seen tokenware.AuthClaims
	wantErr := errors.New("listener refused")

	middleware := newMiddleware(tokenware.Config{
		TokenValidator: &stubValidator{claims: stubClaims{subject: "alice", role: "user"}},
		ErrorHandler:   passthroughError,
		ValidationListeners: []tokenware.ValidationListener{
			func(ctx router.Context, claims tokenware.AuthClaims) error {
				seen = claims
				return wantErr
			},
		},
	})

	ctx := router.NewMockContext()
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer raw.token.value")

	err := middleware(ctx)
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, ctx.NextCalled)
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Subject())
}

func TestTokenwareContextEnricher(t *testing.T) {
	type enrichedKey struct{}

	middleware := newMiddleware(tokenware.Config{
		TokenValidator: &stubValidator{claims: stubClaims{subject: "alice", role: "user"}},
		ErrorHandler:   passthroughError,
		ContextEnricher: func(c context.Context, claims tokenware.AuthClaims) context.Context {
			return context.WithValue(c, enrichedKey{}, claims.Subject())
		},
	})

	ctx := router.NewMockContext()
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer raw.token.value")
	ctx.On("Locals", "user", mock.Anything).Return(nil)
	ctx.On("Context").Return(nil)
	ctx.On("SetContext", mock.MatchedBy(func(c context.Context) bool {
		return c.Value(enrichedKey{}) == "alice"
	})).Return()

	require.NoError(t, middleware(ctx))
	assert.True(t, ctx.NextCalled)
	ctx.AssertCalled(t, "SetContext", mock.Anything)
}

func TestGetExtractors(t *testing.T) {
	extractors := tokenware.GetExtractors("header:Authorization,query:jwt,param:token,cookie:session_token")
	assert.Len(t, extractors, 4)

	extractors = tokenware.GetExtractors("query: spaced , cookie: padded ")
	assert.Len(t, extractors, 2)

	extractors = tokenware.GetExtractors("body:nope")
	assert.Empty(t, extractors)
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := tokenware.GetDefaultConfig(tokenware.Config{
		TokenValidator: &stubValidator{},
	})

	assert.Equal(t, "user", cfg.ContextKey)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Equal(t, "header:"+router.HeaderAuthorization, cfg.TokenLookup)
	assert.NotNil(t, cfg.SuccessHandler)
	assert.NotNil(t, cfg.ErrorHandler)

	assert.Panics(t, func() {
		tokenware.GetDefaultConfig()
	})
}
