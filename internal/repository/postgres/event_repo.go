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

// EventRepository implements calendar event storage for PostgreSQL. Deletes
// are soft: rows get a deleted_at stamp and vanish from every query.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `
	id, user_id, title, event_type, source, starts_at, ends_at, is_all_day,
	location, description, video_conference_link, reminder_minutes,
	visibility, related_entity_type, related_entity_id, color_hex,
	recurrence_rule, recurrence_until, recurrence_count,
	created_at, updated_at`

// CreateEvent inserts a new calendar event.
func (r *EventRepository) CreateEvent(ctx context.Context, ev *models.CalendarEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	var rule *string
	var until *time.Time
	var count *int
	if ev.Recurrence != nil {
		rule = &ev.Recurrence.Rule
		until = ev.Recurrence.Until
		count = ev.Recurrence.Count
	}

	query := `
		INSERT INTO calendar_events (
			id, user_id, title, event_type, source, starts_at, ends_at,
			is_all_day, location, description, video_conference_link,
			reminder_minutes, visibility, related_entity_type,
			related_entity_id, color_hex, recurrence_rule, recurrence_until,
			recurrence_count
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19
		)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		ev.ID,
		ev.UserID,
		ev.Title,
		ev.EventType,
		ev.Source,
		ev.StartsAt,
		ev.EndsAt,
		ev.IsAllDay,
		nilIfEmpty(ev.Location),
		nilIfEmpty(ev.Description),
		nilIfEmpty(ev.VideoConferenceLink),
		ev.ReminderMinutes,
		ev.Visibility,
		nilIfEmpty(ev.RelatedEntityType),
		ev.RelatedEntityID,
		nilIfEmpty(ev.ColorHex),
		rule,
		until,
		count,
	).Scan(&ev.CreatedAt, &ev.UpdatedAt)

	if err != nil {
		if IsDuplicateKeyError(err) {
			return errors.AlreadyExists("calendar event")
		}
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to create calendar event")
	}
	return nil
}

// GetEvent retrieves an event by id and owner.
func (r *EventRepository) GetEvent(ctx context.Context, id, userID uuid.UUID) (*models.CalendarEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM calendar_events
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	ev, err := scanEvent(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("calendar event")
		}
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to get calendar event")
	}
	return ev, nil
}

// ListEvents returns the user's events overlapping the window, ordered by
// start time. Recurring templates are returned whenever they start before the
// window end so the expander can materialize occurrences inside the window.
func (r *EventRepository) ListEvents(ctx context.Context, userID uuid.UUID, win models.TimeWindow) ([]*models.CalendarEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM calendar_events
		WHERE user_id = $1
		  AND deleted_at IS NULL
		  AND starts_at <= $3
		  AND (
			recurrence_rule IS NOT NULL
			OR ends_at >= $2
			OR (ends_at IS NULL AND starts_at >= $2)
		  )
		ORDER BY starts_at`

	rows, err := r.db.Query(ctx, query, userID, win.From, win.To)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to list calendar events")
	}
	defer rows.Close()

	var events []*models.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to scan calendar event")
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "failed to iterate calendar events")
	}
	return events, nil
}

// UpdateEvent updates an event owned by the user.
func (r *EventRepository) UpdateEvent(ctx context.Context, ev *models.CalendarEvent) error {
	var rule *string
	var until *time.Time
	var count *int
	if ev.Recurrence != nil {
		rule = &ev.Recurrence.Rule
		until = ev.Recurrence.Until
		count = ev.Recurrence.Count
	}

	query := `
		UPDATE calendar_events SET
			title = $3,
			event_type = $4,
			source = $5,
			starts_at = $6,
			ends_at = $7,
			is_all_day = $8,
			location = $9,
			description = $10,
			video_conference_link = $11,
			reminder_minutes = $12,
			visibility = $13,
			related_entity_type = $14,
			related_entity_id = $15,
			color_hex = $16,
			recurrence_rule = $17,
			recurrence_until = $18,
			recurrence_count = $19,
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		ev.ID,
		ev.UserID,
		ev.Title,
		ev.EventType,
		ev.Source,
		ev.StartsAt,
		ev.EndsAt,
		ev.IsAllDay,
		nilIfEmpty(ev.Location),
		nilIfEmpty(ev.Description),
		nilIfEmpty(ev.VideoConferenceLink),
		ev.ReminderMinutes,
		ev.Visibility,
		nilIfEmpty(ev.RelatedEntityType),
		ev.RelatedEntityID,
		nilIfEmpty(ev.ColorHex),
		rule,
		until,
		count,
	).Scan(&ev.UpdatedAt)

	if err != nil {
		if err == pgx.ErrNoRows {
			return errors.NotFound("calendar event")
		}
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to update calendar event")
	}
	return nil
}

// DeleteEvent soft-deletes an event owned by the user.
func (r *EventRepository) DeleteEvent(ctx context.Context, id, userID uuid.UUID) error {
	query := `
		UPDATE calendar_events
		SET deleted_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to delete calendar event")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("calendar event")
	}
	return nil
}

// scanEvent reads one event row, folding the recurrence columns into the
// embedded rule value.
func scanEvent(row pgx.Row) (*models.CalendarEvent, error) {
	ev := &models.CalendarEvent{}
	var location, description, videoLink, relatedType, colorHex *string
	var rule *string
	var until *time.Time
	var count *int

	err := row.Scan(
		&ev.ID,
		&ev.UserID,
		&ev.Title,
		&ev.EventType,
		&ev.Source,
		&ev.StartsAt,
		&ev.EndsAt,
		&ev.IsAllDay,
		&location,
		&description,
		&videoLink,
		&ev.ReminderMinutes,
		&ev.Visibility,
		&relatedType,
		&ev.RelatedEntityID,
		&colorHex,
		&rule,
		&until,
		&count,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ev.Location = deref(location)
	ev.Description = deref(description)
	ev.VideoConferenceLink = deref(videoLink)
	ev.RelatedEntityType = deref(relatedType)
	ev.ColorHex = deref(colorHex)
	if rule != nil && *rule != "" {
		ev.Recurrence = &models.RecurrenceRule{Rule: *rule, Until: until, Count: count}
	}
	return ev, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
