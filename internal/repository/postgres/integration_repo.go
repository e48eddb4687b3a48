// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veliq/timegrid/internal/models"
	"github.com/veliq/timegrid/internal/pkg/errors"
)

// IntegrationRepository implements calendar integration storage for
// PostgreSQL.
type IntegrationRepository struct {
	db *DB
}

// NewIntegrationRepository creates a new integration repository.
func NewIntegrationRepository(db *DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

const integrationColumns = `
	id, user_id, provider, metadata, last_synced_at, sync_error,
	created_at, updated_at`

// CreateIntegration inserts a new calendar integration.
func (r *IntegrationRepository) CreateIntegration(ctx context.Context, integration *models.CalendarIntegration) error {
	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}

	query := `
		INSERT INTO calendar_integrations (id, user_id, provider, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		integration.ID,
		integration.UserID,
		integration.Provider,
		integration.Metadata,
	).Scan(&integration.CreatedAt, &integration.UpdatedAt)

	if err != nil {
		if IsDuplicateKeyError(err) {
			return errors.AlreadyExists("calendar integration")
		}
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to create calendar integration")
	}
	return nil
}

// GetIntegration retrieves an integration by id and owner.
func (r *IntegrationRepository) GetIntegration(ctx context.Context, id, userID uuid.UUID) (*models.CalendarIntegration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM calendar_integrations
		WHERE id = $1 AND user_id = $2`

	integration, err := scanIntegration(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("calendar integration")
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to get calendar integration")
	}
	return integration, nil
}

// ListIntegrations returns all of the user's integrations.
func (r *IntegrationRepository) ListIntegrations(ctx context.Context, userID uuid.UUID) ([]*models.CalendarIntegration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM calendar_integrations
		WHERE user_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to list calendar integrations")
	}
	defer rows.Close()

	return collectIntegrations(rows)
}

// ListAllIntegrations returns every integration in the system, for the
// background sync sweep.
func (r *IntegrationRepository) ListAllIntegrations(ctx context.Context) ([]*models.CalendarIntegration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM calendar_integrations
		ORDER BY user_id, created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to list all calendar integrations")
	}
	defer rows.Close()

	return collectIntegrations(rows)
}

// UpdateIntegration updates an integration owned by the user.
func (r *IntegrationRepository) UpdateIntegration(ctx context.Context, integration *models.CalendarIntegration) error {
	query := `
		UPDATE calendar_integrations SET
			provider = $3,
			metadata = $4,
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		integration.ID,
		integration.UserID,
		integration.Provider,
		integration.Metadata,
	).Scan(&integration.UpdatedAt)

	if err != nil {
		if err == pgx.ErrNoRows {
			return errors.NotFound("calendar integration")
		}
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update calendar integration")
	}
	return nil
}

// DeleteIntegration deletes an integration owned by the user.
func (r *IntegrationRepository) DeleteIntegration(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM calendar_integrations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to delete calendar integration")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("calendar integration")
	}
	return nil
}

// UpdateSyncStatus records the outcome of one integration's fetch attempt.
// A non-nil syncedAt bumps last_synced_at; syncErr is written as given so a
// successful fetch clears any previous error.
func (r *IntegrationRepository) UpdateSyncStatus(ctx context.Context, id uuid.UUID, syncedAt *time.Time, syncErr *string) error {
	query := `
		UPDATE calendar_integrations SET
			last_synced_at = COALESCE($2, last_synced_at),
			sync_error = $3,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, syncedAt, syncErr)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update integration sync status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("calendar integration")
	}
	return nil
}

func collectIntegrations(rows pgx.Rows) ([]*models.CalendarIntegration, error) {
	var integrations []*models.CalendarIntegration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan calendar integration")
		}
		integrations = append(integrations, integration)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to iterate calendar integrations")
	}
	return integrations, nil
}

func scanIntegration(row pgx.Row) (*models.CalendarIntegration, error) {
	integration := &models.CalendarIntegration{}
	var syncErr *string

	err := row.Scan(
		&integration.ID,
		&integration.UserID,
		&integration.Provider,
		&integration.Metadata,
		&integration.LastSyncedAt,
		&syncErr,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	integration.SyncError = syncErr
	return integration, nil
}
