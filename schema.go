package soptrack

import (
	"context"
	"io/fs"
	"sort"

	"github.com/uptrace/bun"
)

const migrationsDir = "data/sql/migrations"

// CreateSchema applies the embedded migration files in lexical order.
// Every statement is idempotent (CREATE TABLE IF NOT EXISTS), so this is
// safe to run on every startup. The unique constraints it installs are
// what makes directory and ledger writes race-free: uniqueness is
// decided by the storage engine, not by application lookups.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		return WrapInternal(err, "failed to read migrations")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		stmt, err := fs.ReadFile(migrationsFS, migrationsDir+"/"+name)
		if err != nil {
			return WrapInternal(err, "failed to read migration "+name)
		}

		if _, err := db.ExecContext(ctx, string(stmt)); err != nil {
			return WrapInternal(err, "failed to apply migration "+name)
		}
	}

	return nil
}
