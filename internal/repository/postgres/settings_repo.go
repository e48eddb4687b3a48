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

// SettingsRepository implements per-user calendar settings storage for
// PostgreSQL. Settings are a singleton per user, created lazily.
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const settingsColumns = `
	id, user_id, timezone, week_start, work_start_minutes, work_end_minutes,
	default_view, default_reminder_minutes, auto_focus_blocks,
	share_availability, color_hex, created_at, updated_at`

// GetOrCreateSettings returns the user's settings row, inserting the
// defaults on first access. The insert is idempotent under concurrent first
// requests: the conflict path falls back to the surviving row.
func (r *SettingsRepository) GetOrCreateSettings(ctx context.Context, userID uuid.UUID) (*models.UserCalendarSetting, error) {
	settings, err := r.getSettings(ctx, userID)
	if err == nil {
		return settings, nil
	}
	if !errors.IsNotFoundError(err) {
		return nil, err
	}

	defaults := models.DefaultCalendarSetting(userID)
	query := `
		INSERT INTO user_calendar_settings (
			id, user_id, timezone, week_start, work_start_minutes,
			work_end_minutes, default_view, default_reminder_minutes,
			auto_focus_blocks, share_availability, color_hex
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO NOTHING`

	_, err = r.db.Exec(ctx, query,
		uuid.New(),
		defaults.UserID,
		defaults.Timezone,
		defaults.WeekStart,
		defaults.WorkStartMinutes,
		defaults.WorkEndMinutes,
		defaults.DefaultView,
		defaults.DefaultReminderMinutes,
		defaults.AutoFocusBlocks,
		defaults.ShareAvailability,
		nilIfEmpty(defaults.ColorHex),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to create calendar settings")
	}

	return r.getSettings(ctx, userID)
}

// UpdateSettings persists the user's settings.
func (r *SettingsRepository) UpdateSettings(ctx context.Context, settings *models.UserCalendarSetting) error {
	query := `
		UPDATE user_calendar_settings SET
			timezone = $2,
			week_start = $3,
			work_start_minutes = $4,
			work_end_minutes = $5,
			default_view = $6,
			default_reminder_minutes = $7,
			auto_focus_blocks = $8,
			share_availability = $9,
			color_hex = $10,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING id, updated_at`

	err := r.db.QueryRow(ctx, query,
		settings.UserID,
		settings.Timezone,
		settings.WeekStart,
		settings.WorkStartMinutes,
		settings.WorkEndMinutes,
		settings.DefaultView,
		settings.DefaultReminderMinutes,
		settings.AutoFocusBlocks,
		settings.ShareAvailability,
		nilIfEmpty(settings.ColorHex),
	).Scan(&settings.ID, &settings.UpdatedAt)

	if err != nil {
		if err == pgx.ErrNoRows {
			// First write for this user: create the row as given.
			return r.insertSettings(ctx, settings)
		}
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update calendar settings")
	}
	return nil
}

func (r *SettingsRepository) insertSettings(ctx context.Context, settings *models.UserCalendarSetting) error {
	if settings.ID == uuid.Nil {
		settings.ID = uuid.New()
	}

	query := `
		INSERT INTO user_calendar_settings (
			id, user_id, timezone, week_start, work_start_minutes,
			work_end_minutes, default_view, default_reminder_minutes,
			auto_focus_blocks, share_availability, color_hex
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		settings.ID,
		settings.UserID,
		settings.Timezone,
		settings.WeekStart,
		settings.WorkStartMinutes,
		settings.WorkEndMinutes,
		settings.DefaultView,
		settings.DefaultReminderMinutes,
		settings.AutoFocusBlocks,
		settings.ShareAvailability,
		nilIfEmpty(settings.ColorHex),
	).Scan(&settings.CreatedAt, &settings.UpdatedAt)

	if err != nil {
		if IsDuplicateKeyError(err) {
			return errors.AlreadyExists("calendar settings")
		}
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to create calendar settings")
	}
	return nil
}

func (r *SettingsRepository) getSettings(ctx context.Context, userID uuid.UUID) (*models.UserCalendarSetting, error) {
	query := `
		SELECT ` + settingsColumns + `
		FROM user_calendar_settings
		WHERE user_id = $1`

	settings := &models.UserCalendarSetting{}
	var colorHex *string

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&settings.ID,
		&settings.UserID,
		&settings.Timezone,
		&settings.WeekStart,
		&settings.WorkStartMinutes,
		&settings.WorkEndMinutes,
		&settings.DefaultView,
		&settings.DefaultReminderMinutes,
		&settings.AutoFocusBlocks,
		&settings.ShareAvailability,
		&colorHex,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("calendar settings")
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to get calendar settings")
	}

	settings.ColorHex = deref(colorHex)
	return settings, nil
}
