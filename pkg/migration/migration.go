// Package migration implements the reserved _openauth_migrations record.
// The core itself owns no migration tooling: migrations are tool-owned,
// and the core only needs to detect that none have run yet. So this
// package is deliberately small: a record shape, its checksum convention,
// and a first-run probe, for an external migration runner to build on.
package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Schema creates the reserved migrations table if absent.
const Schema = `
CREATE TABLE IF NOT EXISTS _openauth_migrations (
	name TEXT PRIMARY KEY,
	applied_at INTEGER NOT NULL,
	checksum TEXT NOT NULL
);
`

// Record is one applied migration.
type Record struct {
	Name      string `db:"name"`
	AppliedAt int64  `db:"applied_at"`
	Checksum  string `db:"checksum"`
}

// Checksum returns the first 8 bytes (16 hex characters) of the SHA-256
// digest of a migration's content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:8])
}

// IsFirstRun reports whether no migration has ever been applied. It
// tolerates the table itself being absent (a database that has never
// been migrated at all).
func IsFirstRun(ctx context.Context, db *sqlx.DB) (bool, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM _openauth_migrations`)
	if err != nil {
		if isMissingTable(err) {
			return true, nil
		}
		return false, fmt.Errorf("counting applied migrations: %w", err)
	}
	return count == 0, nil
}

// Applied returns every migration record, oldest first.
func Applied(ctx context.Context, db *sqlx.DB) ([]Record, error) {
	var records []Record
	err := db.SelectContext(ctx, &records, `SELECT * FROM _openauth_migrations ORDER BY applied_at ASC, name ASC`)
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing applied migrations: %w", err)
	}
	return records, nil
}

// MarkApplied records that a migration named name, whose content hashes to
// checksum, was applied at appliedAt. It is the migration tool's
// responsibility to call this atomically with the migration itself; this
// package only models the record.
func MarkApplied(ctx context.Context, db *sqlx.DB, r Record) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO _openauth_migrations (name, applied_at, checksum) VALUES (?, ?, ?)
	`, r.Name, r.AppliedAt, r.Checksum)
	if err != nil {
		return fmt.Errorf("recording applied migration %s: %w", r.Name, err)
	}
	return nil
}

func isMissingTable(err error) bool {
	if err == nil || err == sql.ErrNoRows {
		return false
	}
	return strings.Contains(err.Error(), "no such table")
}
