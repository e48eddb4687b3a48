// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

// Package calendar manages calendar events, focus sessions, integrations,
// and per-user calendar settings.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veliq/timegrid/internal/models"
	"github.com/veliq/timegrid/internal/pkg/errors"
	"github.com/veliq/timegrid/internal/pkg/logger"
	"github.com/veliq/timegrid/internal/recurrence"
)

// EventStore is the persistence contract for calendar events.
type EventStore interface {
	CreateEvent(ctx context.Context, ev *models.CalendarEvent) error
	GetEvent(ctx context.Context, id, userID uuid.UUID) (*models.CalendarEvent, error)
	ListEvents(ctx context.Context, userID uuid.UUID, win models.TimeWindow) ([]*models.CalendarEvent, error)
	UpdateEvent(ctx context.Context, ev *models.CalendarEvent) error
	DeleteEvent(ctx context.Context, id, userID uuid.UUID) error
}

// FocusStore is the persistence contract for focus sessions.
type FocusStore interface {
	CreateFocusSession(ctx context.Context, fs *models.FocusSession) error
	GetFocusSession(ctx context.Context, id, userID uuid.UUID) (*models.FocusSession, error)
	ListFocusSessions(ctx context.Context, userID uuid.UUID) ([]*models.FocusSession, error)
	UpdateFocusSession(ctx context.Context, fs *models.FocusSession) error
	DeleteFocusSession(ctx context.Context, id, userID uuid.UUID) error
}

// IntegrationStore is the persistence contract for calendar integrations.
type IntegrationStore interface {
	CreateIntegration(ctx context.Context, integration *models.CalendarIntegration) error
	GetIntegration(ctx context.Context, id, userID uuid.UUID) (*models.CalendarIntegration, error)
	ListIntegrations(ctx context.Context, userID uuid.UUID) ([]*models.CalendarIntegration, error)
	UpdateIntegration(ctx context.Context, integration *models.CalendarIntegration) error
	DeleteIntegration(ctx context.Context, id, userID uuid.UUID) error
}

// SettingsStore is the persistence contract for the per-user settings
// singleton.
type SettingsStore interface {
	GetOrCreateSettings(ctx context.Context, userID uuid.UUID) (*models.UserCalendarSetting, error)
	UpdateSettings(ctx context.Context, settings *models.UserCalendarSetting) error
}

// Service manages calendar events, focus sessions, integrations, and
// settings.
type Service struct {
	events       EventStore
	focus        FocusStore
	integrations IntegrationStore
	settings     SettingsStore
	logger       *logger.Logger
}

// NewService creates a new calendar service.
func NewService(events EventStore, focus FocusStore, integrations IntegrationStore, settings SettingsStore, log *logger.Logger) *Service {
	return &Service{
		events:       events,
		focus:        focus,
		integrations: integrations,
		settings:     settings,
		logger:       log.Named("calendar"),
	}
}

// ============================================================================
// Events
// ============================================================================

// CreateEvent validates and persists a new calendar event. A non-nil rec
// compiles into the event's recurrence rule, making the event a template.
func (s *Service) CreateEvent(ctx context.Context, ev *models.CalendarEvent, rec *recurrence.Input) error {
	if err := s.applyRecurrence(ev, rec); err != nil {
		return fmt.Errorf("create calendar event: %w", err)
	}
	if err := s.validateEvent(ev); err != nil {
		return fmt.Errorf("create calendar event: validate: %w", err)
	}

	if err := s.events.CreateEvent(ctx, ev); err != nil {
		return fmt.Errorf("create calendar event: %w", err)
	}

	s.logger.Info("created calendar event",
		"id", ev.ID,
		"title", ev.Title,
		"user_id", ev.UserID,
		"starts_at", ev.StartsAt,
		"recurring", ev.IsTemplate(),
	)
	return nil
}

// GetEvent retrieves a calendar event by id and owner.
func (s *Service) GetEvent(ctx context.Context, id, userID uuid.UUID) (*models.CalendarEvent, error) {
	ev, err := s.events.GetEvent(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get calendar event %s: %w", id, err)
	}
	return ev, nil
}

// ListEvents returns the user's events overlapping the window.
func (s *Service) ListEvents(ctx context.Context, userID uuid.UUID, win models.TimeWindow) ([]*models.CalendarEvent, error) {
	if !win.To.After(win.From) {
		return nil, errors.NewValidationError("window end must be after window start")
	}
	events, err := s.events.ListEvents(ctx, userID, win)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return events, nil
}

// UpdateEvent validates and persists changes to an event. Passing rec
// replaces the recurrence rule; a nil rec leaves the stored rule alone.
func (s *Service) UpdateEvent(ctx context.Context, ev *models.CalendarEvent, rec *recurrence.Input) error {
	if err := s.applyRecurrence(ev, rec); err != nil {
		return fmt.Errorf("update calendar event %s: %w", ev.ID, err)
	}
	if err := s.validateEvent(ev); err != nil {
		return fmt.Errorf("update calendar event %s: validate: %w", ev.ID, err)
	}

	if err := s.events.UpdateEvent(ctx, ev); err != nil {
		return fmt.Errorf("update calendar event %s: %w", ev.ID, err)
	}

	s.logger.Info("updated calendar event",
		"id", ev.ID,
		"title", ev.Title,
		"user_id", ev.UserID,
	)
	return nil
}

// DeleteEvent soft-deletes an event owned by the user.
func (s *Service) DeleteEvent(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.events.DeleteEvent(ctx, id, userID); err != nil {
		return fmt.Errorf("delete calendar event %s: %w", id, err)
	}

	s.logger.Info("deleted calendar event", "id", id, "user_id", userID)
	return nil
}

func (s *Service) applyRecurrence(ev *models.CalendarEvent, rec *recurrence.Input) error {
	if rec == nil {
		return nil
	}
	compiled, err := recurrence.Compile(*rec)
	if err != nil {
		return err
	}
	ev.Recurrence = &models.RecurrenceRule{
		Rule:  compiled.Rule,
		Until: compiled.Until,
		Count: compiled.Count,
	}
	return nil
}

func (s *Service) validateEvent(ev *models.CalendarEvent) error {
	if ev.Title == "" {
		return errors.NewValidationError("title is required")
	}
	if ev.StartsAt.IsZero() {
		return errors.NewValidationError("starts_at is required")
	}
	if ev.EndsAt != nil && ev.EndsAt.Before(ev.StartsAt) {
		return errors.NewValidationError("ends_at must not be before starts_at")
	}
	if ev.EventType == "" {
		ev.EventType = models.EventTypeMeeting
	}
	if !models.ValidEventTypes[ev.EventType] {
		return errors.NewValidationError("event_type is not a recognized type")
	}
	if ev.Source == "" {
		ev.Source = models.EventSourceManual
	}
	if !models.ValidEventSources[ev.Source] {
		return errors.NewValidationError("source is not a recognized event source")
	}
	if ev.Visibility == "" {
		ev.Visibility = models.VisibilityPrivate
	}
	if !models.ValidVisibilities[ev.Visibility] {
		return errors.NewValidationError("visibility is not a recognized value")
	}
	if ev.ReminderMinutes < 0 {
		return errors.NewValidationError("reminder_minutes must not be negative")
	}
	if ev.ColorHex != "" && !models.ValidColorHex(ev.ColorHex) {
		return errors.NewValidationError("color_hex must be a #RRGGBB or #RRGGBBAA value")
	}
	return nil
}

// ============================================================================
// Focus sessions
// ============================================================================

// CreateFocusSession validates and persists a new focus session, deriving
// duration and completion from the end time when absent.
func (s *Service) CreateFocusSession(ctx context.Context, fs *models.FocusSession) error {
	if err := s.validateFocusSession(fs); err != nil {
		return fmt.Errorf("create focus session: validate: %w", err)
	}

	if err := s.focus.CreateFocusSession(ctx, fs); err != nil {
		return fmt.Errorf("create focus session: %w", err)
	}

	s.logger.Info("created focus session",
		"id", fs.ID,
		"user_id", fs.UserID,
		"focus_type", fs.FocusType,
	)
	return nil
}

// GetFocusSession retrieves a focus session by id and owner.
func (s *Service) GetFocusSession(ctx context.Context, id, userID uuid.UUID) (*models.FocusSession, error) {
	fs, err := s.focus.GetFocusSession(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get focus session %s: %w", id, err)
	}
	return fs, nil
}

// ListFocusSessions returns all of the user's focus sessions.
func (s *Service) ListFocusSessions(ctx context.Context, userID uuid.UUID) ([]*models.FocusSession, error) {
	sessions, err := s.focus.ListFocusSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list focus sessions: %w", err)
	}
	return sessions, nil
}

// UpdateFocusSession validates and persists changes to a focus session.
func (s *Service) UpdateFocusSession(ctx context.Context, fs *models.FocusSession) error {
	if err := s.validateFocusSession(fs); err != nil {
		return fmt.Errorf("update focus session %s: validate: %w", fs.ID, err)
	}

	if err := s.focus.UpdateFocusSession(ctx, fs); err != nil {
		return fmt.Errorf("update focus session %s: %w", fs.ID, err)
	}

	s.logger.Info("updated focus session", "id", fs.ID, "user_id", fs.UserID)
	return nil
}

// DeleteFocusSession deletes a focus session owned by the user.
func (s *Service) DeleteFocusSession(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.focus.DeleteFocusSession(ctx, id, userID); err != nil {
		return fmt.Errorf("delete focus session %s: %w", id, err)
	}

	s.logger.Info("deleted focus session", "id", id, "user_id", userID)
	return nil
}

func (s *Service) validateFocusSession(fs *models.FocusSession) error {
	if fs.FocusType == "" {
		fs.FocusType = models.FocusTypeDeepWork
	}
	if !models.ValidFocusTypes[fs.FocusType] {
		return errors.NewValidationError("focus_type is not a recognized type")
	}
	if fs.StartedAt.IsZero() {
		return errors.NewValidationError("started_at is required")
	}
	if fs.EndedAt != nil {
		if fs.EndedAt.Before(fs.StartedAt) {
			return errors.NewValidationError("ended_at must not be before started_at")
		}
		if fs.DurationMinutes == 0 {
			fs.DurationMinutes = int(fs.EndedAt.Sub(fs.StartedAt) / time.Minute)
		}
		// Ending a session completes it.
		fs.Completed = true
	}
	if fs.DurationMinutes < 0 {
		return errors.NewValidationError("duration_minutes must not be negative")
	}
	return nil
}

// ============================================================================
// Integrations
// ============================================================================

// CreateIntegration validates and persists a new calendar integration.
func (s *Service) CreateIntegration(ctx context.Context, integration *models.CalendarIntegration) error {
	if err := s.validateIntegration(integration); err != nil {
		return fmt.Errorf("create calendar integration: validate: %w", err)
	}

	if err := s.integrations.CreateIntegration(ctx, integration); err != nil {
		return fmt.Errorf("create calendar integration: %w", err)
	}

	s.logger.Info("created calendar integration",
		"id", integration.ID,
		"user_id", integration.UserID,
		"provider", integration.Provider,
	)
	return nil
}

// GetIntegration retrieves an integration by id and owner.
func (s *Service) GetIntegration(ctx context.Context, id, userID uuid.UUID) (*models.CalendarIntegration, error) {
	integration, err := s.integrations.GetIntegration(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get calendar integration %s: %w", id, err)
	}
	return integration, nil
}

// ListIntegrations returns all of the user's integrations.
func (s *Service) ListIntegrations(ctx context.Context, userID uuid.UUID) ([]*models.CalendarIntegration, error) {
	integrations, err := s.integrations.ListIntegrations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list calendar integrations: %w", err)
	}
	return integrations, nil
}

// UpdateIntegration validates and persists changes to an integration.
func (s *Service) UpdateIntegration(ctx context.Context, integration *models.CalendarIntegration) error {
	if err := s.validateIntegration(integration); err != nil {
		return fmt.Errorf("update calendar integration %s: validate: %w", integration.ID, err)
	}

	if err := s.integrations.UpdateIntegration(ctx, integration); err != nil {
		return fmt.Errorf("update calendar integration %s: %w", integration.ID, err)
	}

	s.logger.Info("updated calendar integration",
		"id", integration.ID,
		"user_id", integration.UserID,
	)
	return nil
}

// DeleteIntegration deletes an integration owned by the user.
func (s *Service) DeleteIntegration(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.integrations.DeleteIntegration(ctx, id, userID); err != nil {
		return fmt.Errorf("delete calendar integration %s: %w", id, err)
	}

	s.logger.Info("deleted calendar integration", "id", id, "user_id", userID)
	return nil
}

func (s *Service) validateIntegration(integration *models.CalendarIntegration) error {
	switch integration.Provider {
	case models.ProviderGoogle, models.ProviderOutlook, models.ProviderICS,
		models.ProviderCalDAV, models.ProviderNative:
	default:
		return errors.NewValidationError("provider is not a recognized calendar provider")
	}
	if len(integration.Metadata) > 0 && !json.Valid(integration.Metadata) {
		return errors.NewValidationError("metadata must be valid JSON")
	}
	return nil
}

// ============================================================================
// Settings
// ============================================================================

// GetSettings returns the user's settings, creating the default singleton on
// first access.
func (s *Service) GetSettings(ctx context.Context, userID uuid.UUID) (*models.UserCalendarSetting, error) {
	settings, err := s.settings.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get calendar settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings validates and persists the user's settings.
func (s *Service) UpdateSettings(ctx context.Context, settings *models.UserCalendarSetting) error {
	if err := s.validateSettings(settings); err != nil {
		return fmt.Errorf("update calendar settings: validate: %w", err)
	}

	if err := s.settings.UpdateSettings(ctx, settings); err != nil {
		return fmt.Errorf("update calendar settings: %w", err)
	}

	s.logger.Info("updated calendar settings", "user_id", settings.UserID)
	return nil
}

func (s *Service) validateSettings(settings *models.UserCalendarSetting) error {
	if settings.Timezone == "" {
		settings.Timezone = "UTC"
	}
	if settings.WeekStart < 0 || settings.WeekStart > 6 {
		return errors.NewValidationError("week_start must be between 0 and 6")
	}
	if settings.WorkStartMinutes < 0 || settings.WorkStartMinutes > 1439 {
		return errors.NewValidationError("work_start_minutes must be between 0 and 1439")
	}
	if settings.WorkEndMinutes < 0 || settings.WorkEndMinutes > 1439 {
		return errors.NewValidationError("work_end_minutes must be between 0 and 1439")
	}
	if settings.WorkStartMinutes >= settings.WorkEndMinutes {
		return errors.NewValidationError("work_start_minutes must be before work_end_minutes")
	}
	switch settings.DefaultView {
	case "":
		settings.DefaultView = "week"
	case "day", "week", "month":
	default:
		return errors.NewValidationError("default_view must be one of day, week, month")
	}
	if settings.DefaultReminderMinutes < 0 {
		return errors.NewValidationError("default_reminder_minutes must not be negative")
	}
	if settings.ColorHex != "" && !models.ValidColorHex(settings.ColorHex) {
		return errors.NewValidationError("color_hex must be a #RRGGBB or #RRGGBBAA value")
	}
	return nil
}
