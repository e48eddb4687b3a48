// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veliq/timegrid/internal/models"
	"github.com/veliq/timegrid/internal/pkg/errors"
)

// FocusRepository implements focus session storage for PostgreSQL.
type FocusRepository struct {
	db *DB
}

// NewFocusRepository creates a new focus session repository.
func NewFocusRepository(db *DB) *FocusRepository {
	return &FocusRepository{db: db}
}

const focusColumns = `
	id, user_id, focus_type, started_at, ended_at, duration_minutes,
	completed, notes, created_at, updated_at`

// CreateFocusSession inserts a new focus session.
func (r *FocusRepository) CreateFocusSession(ctx context.Context, fs *models.FocusSession) error {
	if fs.ID == uuid.Nil {
		fs.ID = uuid.New()
	}

	query := `
		INSERT INTO focus_sessions (
			id, user_id, focus_type, started_at, ended_at, duration_minutes,
			completed, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		fs.ID,
		fs.UserID,
		fs.FocusType,
		fs.StartedAt,
		fs.EndedAt,
		fs.DurationMinutes,
		fs.Completed,
		nilIfEmpty(fs.Notes),
	).Scan(&fs.CreatedAt, &fs.UpdatedAt)

	if err != nil {
		if IsDuplicateKeyError(err) {
			return errors.AlreadyExists("focus session")
		}
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to create focus session")
	}
	return nil
}

// GetFocusSession retrieves a focus session by id and owner.
func (r *FocusRepository) GetFocusSession(ctx context.Context, id, userID uuid.UUID) (*models.FocusSession, error) {
	query := `
		SELECT ` + focusColumns + `
		FROM focus_sessions
		WHERE id = $1 AND user_id = $2`

	fs, err := scanFocusSession(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("focus session")
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to get focus session")
	}
	return fs, nil
}

// ListFocusSessions returns all of the user's focus sessions, most recently
// started first.
func (r *FocusRepository) ListFocusSessions(ctx context.Context, userID uuid.UUID) ([]*models.FocusSession, error) {
	query := `
		SELECT ` + focusColumns + `
		FROM focus_sessions
		WHERE user_id = $1
		ORDER BY started_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to list focus sessions")
	}
	defer rows.Close()

	var sessions []*models.FocusSession
	for rows.Next() {
		fs, err := scanFocusSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan focus session")
		}
		sessions = append(sessions, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to iterate focus sessions")
	}
	return sessions, nil
}

// UpdateFocusSession updates a focus session owned by the user.
func (r *FocusRepository) UpdateFocusSession(ctx context.Context, fs *models.FocusSession) error {
	query := `
		UPDATE focus_sessions SET
			focus_type = $3,
			started_at = $4,
			ended_at = $5,
			duration_minutes = $6,
			completed = $7,
			notes = $8,
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		fs.ID,
		fs.UserID,
		fs.FocusType,
		fs.StartedAt,
		fs.EndedAt,
		fs.DurationMinutes,
		fs.Completed,
		nilIfEmpty(fs.Notes),
	).Scan(&fs.UpdatedAt)

	if err != nil {
		if err == pgx.ErrNoRows {
			return errors.NotFound("focus session")
		}
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update focus session")
	}
	return nil
}

// DeleteFocusSession deletes a focus session owned by the user.
func (r *FocusRepository) DeleteFocusSession(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM focus_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to delete focus session")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("focus session")
	}
	return nil
}

func scanFocusSession(row pgx.Row) (*models.FocusSession, error) {
	fs := &models.FocusSession{}
	var notes *string

	err := row.Scan(
		&fs.ID,
		&fs.UserID,
		&fs.FocusType,
		&fs.StartedAt,
		&fs.EndedAt,
		&fs.DurationMinutes,
		&fs.Completed,
		&notes,
		&fs.CreatedAt,
		&fs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fs.Notes = deref(notes)
	return fs, nil
}
