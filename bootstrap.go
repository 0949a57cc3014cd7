package soptrack

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// defaultAdminPassword is the well-known first-run credential. Keeping
// it in one place lets bootstrap detect that the operator never changed
// the default and shout about it.
const defaultAdminPassword = "admin123"

// EnsureDefaultAdmin provisions the first admin account when none
// exists. This is a deliberate operational hazard inherited from the
// deployment model: a fresh install must be reachable before any
// operator exists. The credential is configurable; if it is still the
// shipped default the warning names it outright so it cannot be missed.
func EnsureDefaultAdmin(ctx context.Context, repo RepositoryManager, cfg Config, logger Logger) error {
	if logger == nil {
		logger = defLogger{}
	}

	exists, err := repo.Users().HasAdmin(ctx)
	if err != nil {
		return WrapInternal(err, "failed to check for existing admin")
	}
	if exists {
		logger.Debug("admin account already exists, skipping bootstrap")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	password := cfg.GetDefaultAdminPassword()
	username := cfg.GetDefaultAdminUsername()

	admin := &User{}
	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash default admin password")
		}

		admin.Username = username
		admin.Name = cfg.GetDefaultAdminName()
		admin.Email = cfg.GetDefaultAdminEmail()
		admin.PasswordHash = hash
		admin.Role = RoleAdmin
		admin.IsActive = true

		created, err := repo.Users().RegisterTx(ctx, tx, admin)
		if err != nil {
			return err
		}
		admin = created

		return nil
	})
	if err != nil {
		// a concurrent boot may have won the race; the unique index
		// already guarantees a single admin row
		if errors.Is(err, ErrDuplicateAccount) {
			logger.Info("default admin created by a concurrent process")
			return nil
		}
		return WrapInternal(err, "failed to provision default admin")
	}

	logger.Warn("SECURITY: default admin account %q provisioned on first run, id=%s", username, admin.ID)
	if password == defaultAdminPassword {
		logger.Warn("SECURITY: default admin password is %q - CHANGE THIS IN PRODUCTION!", defaultAdminPassword)
	}

	return nil
}
