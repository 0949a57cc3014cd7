package soptrack

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-soptrack/middleware/tokenware"
)

// AccountContextKey is the router locals key the resolved account is
// stored under after the access-control gate runs.
const AccountContextKey = "account"

// RouteAuthenticator wires the access-control gate into HTTP routes.
// Protected routes carry a validated token, a resolved account, and a
// role check before the handler runs.
type RouteAuthenticator struct {
	auth             Authenticator
	tokens           TokenService
	directory        Users
	cfg              Config
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, tokens TokenService, directory Users, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:       cfg,
		auth:      auther,
		tokens:    tokens,
		directory: directory,
		Logger:    defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

// Protected guards a route behind token validation and the account
// gate. The token's claims go in locals under the configured context
// key, the resolved account under AccountContextKey.
func (a *RouteAuthenticator) Protected(minRole UserRole) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		mw := tokenware.New(tokenware.Config{
			TokenValidator:  tokenValidatorAdapter{a.tokens},
			ContextKey:      a.cfg.GetContextKey(),
			TokenLookup:     a.cfg.GetTokenLookup(),
			AuthScheme:      a.cfg.GetAuthScheme(),
			MinimumRole:     string(minRole),
			ErrorHandler:    a.AuthErrorHandler,
			ContextEnricher: ContextEnricherAdapter,
			SuccessHandler:  a.resolveAccount(minRole),
		})
		return mw(hf)
	}
}

// RequireAdmin guards a route so only active admin accounts pass.
func (a *RouteAuthenticator) RequireAdmin() router.MiddlewareFunc {
	return a.Protected(RoleAdmin)
}

// resolveAccount loads the account named by the token subject and runs
// the authorization check against the stored state, not the claims. A
// token naming a missing account is indistinguishable from an invalid
// token.
func (a *RouteAuthenticator) resolveAccount(minRole UserRole) router.HandlerFunc {
	return func(ctx router.Context) error {
		claims, ok := GetRouterClaims(ctx, a.cfg.GetContextKey())
		if !ok {
			return a.AuthErrorHandler(ctx, ErrTokenInvalid)
		}

		account, err := a.directory.GetByUsername(ctx.Context(), claims.Subject())
		if err != nil {
			a.Logger.Info("token subject has no account", "subject", claims.Subject())
			return a.AuthErrorHandler(ctx, ErrTokenInvalid)
		}

		if err := a.auth.Authorize(account, minRole); err != nil {
			return a.ErrorHandler(ctx, err)
		}

		ctx.Locals(AccountContextKey, account)
		ctx.SetContext(WithContext(ctx.Context(), account))

		return ctx.Next()
	}
}

type tokenValidatorAdapter struct {
	tokens TokenService
}

func (t tokenValidatorAdapter) Validate(tokenString string) (tokenware.AuthClaims, error) {
	claims, err := t.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	if strings.HasPrefix(err.Error(), "access denied") {
		return WriteJSONError(c, ErrForbidden)
	}

	var richErr *goerrors.Error
	if errors.As(err, &richErr) && richErr.Category == goerrors.CategoryAuthz {
		return WriteJSONError(c, richErr)
	}

	a.Logger.Info("authentication rejected", "error", err.Error())

	// every token failure collapses into the same response
	return WriteJSONError(c, ErrTokenInvalid)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	switch richErr.Category {
	case goerrors.CategoryAuth:
		return a.AuthErrorHandler(c, richErr)
	default:
		return WriteJSONError(c, richErr)
	}
}

// WriteJSONError renders an error as the API's JSON error envelope,
// deriving the HTTP status from the error code.
func WriteJSONError(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	payload := map[string]any{
		"message":   richErr.Message,
		"text_code": richErr.TextCode,
	}

	if len(richErr.Metadata) > 0 {
		payload["details"] = richErr.Metadata
	}

	return c.JSON(StatusCode(richErr), map[string]any{
		"error": payload,
	})
}
