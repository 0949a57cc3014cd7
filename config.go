package soptrack

import (
	"os"
	"strconv"
)

// SimpleConfig is a plain value implementation of Config. Host
// applications with their own configuration layer can implement Config
// directly; SimpleConfig covers the common case of env-driven services.
type SimpleConfig struct {
	SigningKey           string
	SigningMethod        string
	ContextKey           string
	TokenTTLMinutes      int
	TokenLookup          string
	AuthScheme           string
	Issuer               string
	Audience             []string
	DefaultAdminUsername string
	DefaultAdminPassword string
	DefaultAdminEmail    string
	DefaultAdminName     string
}

var _ Config = (*SimpleConfig)(nil)

// NewConfigFromEnv builds a SimpleConfig from the process environment,
// falling back to development defaults. The signing key and the default
// admin credential MUST be overridden in production; bootstrap logs a
// warning whenever the defaults are still in play.
func NewConfigFromEnv() *SimpleConfig {
	return &SimpleConfig{
		SigningKey:           envOr("SECRET_KEY", "your-secret-key-change-in-production"),
		SigningMethod:        "HS256",
		ContextKey:           envOr("AUTH_CONTEXT_KEY", "user"),
		TokenTTLMinutes:      envIntOr("ACCESS_TOKEN_EXPIRE_MINUTES", DefaultTokenTTLMinutes),
		TokenLookup:          "header:Authorization",
		AuthScheme:           "Bearer",
		Issuer:               envOr("TOKEN_ISSUER", "go-soptrack"),
		DefaultAdminUsername: envOr("DEFAULT_ADMIN_USERNAME", "sysadmin"),
		DefaultAdminPassword: envOr("DEFAULT_ADMIN_PASSWORD", "admin123"),
		DefaultAdminEmail:    envOr("DEFAULT_ADMIN_EMAIL", "admin@example.com"),
		DefaultAdminName:     envOr("DEFAULT_ADMIN_NAME", "System Administrator"),
	}
}

func (c *SimpleConfig) GetSigningKey() string    { return c.SigningKey }
func (c *SimpleConfig) GetSigningMethod() string { return c.SigningMethod }
func (c *SimpleConfig) GetContextKey() string    { return c.ContextKey }

func (c *SimpleConfig) GetTokenTTLMinutes() int {
	if c.TokenTTLMinutes <= 0 {
		return DefaultTokenTTLMinutes
	}
	return c.TokenTTLMinutes
}

func (c *SimpleConfig) GetTokenLookup() string {
	if c.TokenLookup == "" {
		return "header:Authorization"
	}
	return c.TokenLookup
}

func (c *SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c *SimpleConfig) GetIssuer() string     { return c.Issuer }
func (c *SimpleConfig) GetAudience() []string { return c.Audience }

func (c *SimpleConfig) GetDefaultAdminUsername() string { return c.DefaultAdminUsername }
func (c *SimpleConfig) GetDefaultAdminPassword() string { return c.DefaultAdminPassword }
func (c *SimpleConfig) GetDefaultAdminEmail() string    { return c.DefaultAdminEmail }
func (c *SimpleConfig) GetDefaultAdminName() string     { return c.DefaultAdminName }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
