package soptrack

import (
	"context"
	"errors"
	"reflect"
	"time"
)

// Auther is the access-control gate: it verifies credentials at login,
// resolves bearer tokens to live accounts, and enforces role
// requirements.
type Auther struct {
	provider     IdentityProvider
	directory    Users
	signingKey   []byte
	ttlMinutes   int
	issuer       string
	audience     []string
	logger       Logger
	tokenService TokenService
	auditSink    AuditSink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, directory Users, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenTTLMinutes(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:     provider,
		directory:    directory,
		signingKey:   []byte(opts.GetSigningKey()),
		ttlMinutes:   opts.GetTokenTTLMinutes(),
		audience:     opts.GetAudience(),
		issuer:       opts.GetIssuer(),
		logger:       defLogger{},
		tokenService: tokenService,
		auditSink:    noopAuditSink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	s.tokenService = NewTokenService(
		s.signingKey,
		s.ttlMinutes,
		s.issuer,
		s.audience,
		logger,
	)
	return s
}

// WithAuditSink configures an AuditSink for emitting auth events.
func (s *Auther) WithAuditSink(sink AuditSink) *Auther {
	s.auditSink = normalizeAuditSink(sink)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the identifier/password pair and mints a bearer token.
// Unknown identifiers and wrong passwords produce the same
// ErrInvalidCredentials; a disabled account is reported as such only
// after the credential check passed.
func (s *Auther) Login(ctx context.Context, identifier, password string) (string, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		s.emitAuditEvent(ctx, AuditEventLoginFailure, "", map[string]any{
			"identifier": identifier,
		})
		return "", loginError(err)
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuditEvent(ctx, AuditEventLoginFailure, "", map[string]any{
			"identifier": identifier,
		})
		return "", ErrInvalidCredentials
	}

	if !identity.Active() {
		s.logger.Warn("Login blocked, account disabled", "identifier", identifier)
		s.emitAuditEvent(ctx, AuditEventLoginFailure, identity.ID(), map[string]any{
			"identifier": identifier,
			"disabled":   true,
		})
		return "", ErrAccountDisabled
	}

	token, err := s.tokenService.Generate(identity)
	if err != nil {
		s.emitAuditEvent(ctx, AuditEventLoginFailure, identity.ID(), map[string]any{
			"identifier": identifier,
		})
		return "", WrapInternal(err, "failed to generate token")
	}

	s.emitAuditEvent(ctx, AuditEventLoginSuccess, identity.ID(), map[string]any{
		"identifier": identifier,
	})

	return token, nil
}

// Authenticate resolves a raw bearer token to the live account record.
// A valid token whose subject no longer exists fails with the same
// ErrTokenInvalid as a tampered token: "account missing" is not a
// distinct signal.
func (s *Auther) Authenticate(ctx context.Context, tokenString string) (*User, error) {
	claims, err := s.tokenService.Validate(tokenString)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := s.directory.GetByUsername(ctx, claims.Subject())
	if err != nil {
		s.logger.Warn("Authenticate token subject has no account", "subject", claims.Subject())
		return nil, ErrTokenInvalid
	}

	return user, nil
}

// Authorize enforces active status and the role floor for the account.
func (s *Auther) Authorize(user *User, minRole UserRole) error {
	if user == nil {
		return ErrTokenInvalid
	}

	if !user.IsActive {
		return ErrAccountDisabled
	}

	if !user.Role.IsAtLeast(minRole) {
		return ErrForbidden
	}

	return nil
}

func (s *Auther) emitAuditEvent(ctx context.Context, eventType AuditEventType, userID string, metadata map[string]any) {
	sink := normalizeAuditSink(s.auditSink)
	event := AuditEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("audit sink record error: %v", err)
	}
}

// loginError folds every credential failure into the generic
// ErrInvalidCredentials, keeping cooldown and internal failures distinct.
func loginError(err error) error {
	switch {
	case errors.Is(err, ErrTooManyLoginAttempts):
		return ErrTooManyLoginAttempts
	case errors.Is(err, ErrAccountDisabled):
		return ErrAccountDisabled
	case errors.Is(err, ErrMismatchedHashAndPassword),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentials
	default:
		return WrapInternal(err, "login failed")
	}
}
