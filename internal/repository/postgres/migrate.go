// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migration is a single versioned schema change with its rollback.
type migration struct {
	Version string
	UpSQL   string
	DownSQL string
}

// loadMigrations reads the embedded migration files and pairs every
// NNN_name.up.sql with its NNN_name.down.sql, sorted by version.
func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	byVersion := make(map[string]*migration)
	for _, entry := range entries {
		name := entry.Name()
		var version string
		var up bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			version = strings.TrimSuffix(name, ".up.sql")
			up = true
		case strings.HasSuffix(name, ".down.sql"):
			version = strings.TrimSuffix(name, ".down.sql")
		default:
			continue
		}

		content, err := fs.ReadFile(migrationsFS, "migrations/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version}
			byVersion[version] = m
		}
		if up {
			m.UpSQL = string(content)
		} else {
			m.DownSQL = string(content)
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			return nil, fmt.Errorf("migration %s has no up file", m.Version)
		}
		if m.DownSQL == "" {
			return nil, fmt.Errorf("migration %s has no down file", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]time.Time, error) {
	rows, err := db.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var version string
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations in version order. Each migration
// runs in its own transaction together with its schema_migrations record.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}

		tx, err := db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
	}
	return nil
}

// MigrateDown rolls back the N most recently applied migrations.
// steps is the decimal count from the "down:N" CLI form.
func (db *DB) MigrateDown(ctx context.Context, steps string) error {
	n, err := strconv.Atoi(steps)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid rollback step count %q", steps)
	}

	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	byVersion := make(map[string]migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	versions := make([]string, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))

	if n > len(versions) {
		n = len(versions)
	}

	for _, version := range versions[:n] {
		m, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("applied migration %s has no embedded rollback", version)
		}

		tx, err := db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", version, err)
		}
		if _, err := tx.Exec(ctx, m.DownSQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("rollback of %s failed: %w", version, err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM schema_migrations WHERE version = $1`, version); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to unrecord migration %s: %w", version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit rollback of %s: %w", version, err)
		}
	}
	return nil
}

// MigrationStatus prints each known migration with its applied timestamp,
// plus any applied versions no longer present in the binary.
func (db *DB) MigrationStatus(ctx context.Context) error {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if at, ok := applied[m.Version]; ok {
			fmt.Printf("  applied  %s  (%s)\n", m.Version, at.Format(time.RFC3339))
			delete(applied, m.Version)
		} else {
			fmt.Printf("  pending  %s\n", m.Version)
		}
	}

	orphans := make([]string, 0, len(applied))
	for v := range applied {
		orphans = append(orphans, v)
	}
	sort.Strings(orphans)
	for _, v := range orphans {
		fmt.Printf("  unknown  %s  (applied %s, not in binary)\n",
			v, applied[v].Format(time.RFC3339))
	}
	return nil
}
