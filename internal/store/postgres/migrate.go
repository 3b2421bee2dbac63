package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockKey serializes concurrent migrators across replicas.
const migrationLockKey = 7462839

// Migrate applies every embedded migration that has not been recorded in
// schema_migrations. A recorded migration whose checksum changed is an error.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	filenames, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(filenames)

	for _, path := range filenames {
		if err := s.applyMigration(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, path string) error {
	body, err := migrationFS.ReadFile(path)
	if err != nil {
		return err
	}
	filename := strings.TrimPrefix(path, "migrations/")
	version, _, ok := strings.Cut(filename, "_")
	if !ok {
		return fmt.Errorf("migration %s: expected NNN_description.sql", filename)
	}
	sum := sha256.Sum256(body)
	checksum := hex.EncodeToString(sum[:])

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT checksum FROM schema_migrations WHERE version = $1`, version).Scan(&existing)
	switch {
	case err == nil:
		if existing != checksum {
			return fmt.Errorf("migration %s: checksum mismatch", filename)
		}
		log.Debug().Str("migration", filename).Msg("already applied")
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("apply %s: %w", filename, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1,$2,$3)
	`, version, filename, checksum); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Info().Str("migration", filename).Msg("migration applied")
	return nil
}
