// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// CalendarEvent represents a calendar event owned by a user. An event carrying
// a non-nil Recurrence rule is a template; occurrences generated from it are
// transient, marked with RecurringInstance, and never persisted.
type CalendarEvent struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	UserID              uuid.UUID       `json:"user_id" db:"user_id"`
	Title               string          `json:"title" db:"title"`
	EventType           string          `json:"event_type" db:"event_type"`
	Source              string          `json:"source" db:"source"`
	StartsAt            time.Time       `json:"starts_at" db:"starts_at"`
	EndsAt              *time.Time      `json:"ends_at,omitempty" db:"ends_at"`
	IsAllDay            bool            `json:"is_all_day" db:"is_all_day"`
	Location            string          `json:"location,omitempty" db:"location"`
	Description         string          `json:"description,omitempty" db:"description"`
	VideoConferenceLink string          `json:"video_conference_link,omitempty" db:"video_conference_link"`
	ReminderMinutes     int             `json:"reminder_minutes" db:"reminder_minutes"`
	Visibility          string          `json:"visibility" db:"visibility"`
	RelatedEntityType   string          `json:"related_entity_type,omitempty" db:"related_entity_type"`
	RelatedEntityID     *uuid.UUID      `json:"related_entity_id,omitempty" db:"related_entity_id"`
	ColorHex            string          `json:"color_hex,omitempty" db:"color_hex"`
	Recurrence          *RecurrenceRule `json:"recurrence,omitempty" db:"recurrence"`
	ParentEventID       *uuid.UUID      `json:"parent_event_id,omitempty" db:"-"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`

	// Occurrence-only fields, set by the recurrence expander and never stored.
	InstanceID        string `json:"instance_id,omitempty" db:"-"`
	RecurringInstance bool   `json:"recurring_instance,omitempty" db:"-"`
}

// IsTemplate reports whether the event is a recurrence template.
func (e *CalendarEvent) IsTemplate() bool {
	return e.Recurrence != nil && e.Recurrence.Rule != "" && !e.RecurringInstance
}

// RecurrenceRule is the decoded recurrence value embedded in a CalendarEvent.
// Rule holds the canonical serialized form
// FREQ=<DAILY|WEEKLY|MONTHLY>[;INTERVAL=n][;COUNT=n][;BYDAY=d1,d2][;UNTIL=stamp].
type RecurrenceRule struct {
	Rule  string     `json:"rule"`
	Until *time.Time `json:"until,omitempty"`
	Count *int       `json:"count,omitempty"`
}

// OccurrenceID identifies a generated occurrence of a template event. It is
// kept structured internally and flattened to the wire form
// "{templateId}-occurrence-{epochMillis}" only at serialization boundaries.
type OccurrenceID struct {
	TemplateID uuid.UUID
	StartMilli int64
}

// String returns the flattened wire form of the occurrence id.
func (o OccurrenceID) String() string {
	return fmt.Sprintf("%s-occurrence-%d", o.TemplateID, o.StartMilli)
}

// FocusSession represents a tracked focus block. DurationMinutes is derived
// from EndedAt-StartedAt when not supplied; Completed defaults to whether
// EndedAt is set.
type FocusSession struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	UserID          uuid.UUID  `json:"user_id" db:"user_id"`
	FocusType       string     `json:"focus_type" db:"focus_type"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationMinutes int        `json:"duration_minutes" db:"duration_minutes"`
	Completed       bool       `json:"completed" db:"completed"`
	Notes           string     `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// CalendarIntegration represents a connection to an external calendar
// provider. Metadata is opaque JSON holding one of: an explicit busy-window
// list ("busyWindows"), an ICS text blob ("ics"), or recurring-slot templates
// ("recurringSlots"). Sync-health fields are mutated only by the availability
// aggregator.
type CalendarIntegration struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       uuid.UUID       `json:"user_id" db:"user_id"`
	Provider     string          `json:"provider" db:"provider"`
	Metadata     json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty" db:"last_synced_at"`
	SyncError    *string         `json:"sync_error,omitempty" db:"sync_error"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// UserCalendarSetting is the per-user calendar settings singleton, created
// lazily on first write.
type UserCalendarSetting struct {
	ID                     uuid.UUID `json:"id" db:"id"`
	UserID                 uuid.UUID `json:"user_id" db:"user_id"`
	Timezone               string    `json:"timezone" db:"timezone"`
	WeekStart              int       `json:"week_start" db:"week_start"`
	WorkStartMinutes       int       `json:"work_start_minutes" db:"work_start_minutes"`
	WorkEndMinutes         int       `json:"work_end_minutes" db:"work_end_minutes"`
	DefaultView            string    `json:"default_view" db:"default_view"`
	DefaultReminderMinutes int       `json:"default_reminder_minutes" db:"default_reminder_minutes"`
	AutoFocusBlocks        bool      `json:"auto_focus_blocks" db:"auto_focus_blocks"`
	ShareAvailability      bool      `json:"share_availability" db:"share_availability"`
	ColorHex               string    `json:"color_hex" db:"color_hex"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultCalendarSetting returns the settings applied when a user has never
// written any.
func DefaultCalendarSetting(userID uuid.UUID) *UserCalendarSetting {
	return &UserCalendarSetting{
		UserID:                 userID,
		Timezone:               "UTC",
		WeekStart:              1,
		WorkStartMinutes:       9 * 60,
		WorkEndMinutes:         17 * 60,
		DefaultView:            "week",
		DefaultReminderMinutes: 15,
	}
}

// BusyWindow is an ephemeral unavailability interval sourced from a calendar
// integration, clipped to the query window. Never persisted.
type BusyWindow struct {
	Provider string    `json:"provider"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Title    string    `json:"title,omitempty"`
}

// TimeWindow is an inclusive [From, To] query window.
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls within the window (inclusive bounds).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// CalendarStats are the summary statistics computed for an overview window.
type CalendarStats struct {
	TotalEvents    int            `json:"total_events"`
	UpcomingEvents int            `json:"upcoming_events"`
	EventsByType   map[string]int `json:"events_by_type"`
	NextEvent      *CalendarEvent `json:"next_event,omitempty"`
}

// CalendarOverview is the composite payload returned by the overview
// orchestrator. Events already include expanded recurring occurrences for the
// requested window.
type CalendarOverview struct {
	Events        []*CalendarEvent       `json:"events"`
	FocusSessions []*FocusSession        `json:"focus_sessions"`
	Integrations  []*CalendarIntegration `json:"integrations"`
	Settings      *UserCalendarSetting   `json:"settings"`
	Availability  []BusyWindow           `json:"availability"`
	Stats         CalendarStats          `json:"stats"`
	Window        TimeWindow             `json:"window"`
}

// Event type constants.
const (
	EventTypeMeeting     = "meeting"
	EventTypeTask        = "task"
	EventTypeReminder    = "reminder"
	EventTypeFocusBlock  = "focus_block"
	EventTypeMentoring   = "mentoring"
	EventTypeUnavailable = "unavailable"
)

// Event source constants.
const (
	EventSourceManual  = "manual"
	EventSourceGoogle  = "google"
	EventSourceOutlook = "outlook"
	EventSourceNative  = "native"
)

// Event visibility constants.
const (
	VisibilityPrivate = "private"
	VisibilityShared  = "shared"
	VisibilityPublic  = "public"
)

// Focus type constants.
const (
	FocusTypeDeepWork = "deep_work"
	FocusTypeLearning = "learning"
	FocusTypeAdmin    = "admin"
	FocusTypeBreak    = "break"
)

// Integration provider constants.
const (
	ProviderGoogle  = "google"
	ProviderOutlook = "outlook"
	ProviderICS     = "ics"
	ProviderCalDAV  = "caldav"
	ProviderNative  = "native"
)

// ValidEventTypes is the set of allowed event types.
var ValidEventTypes = map[string]bool{
	EventTypeMeeting:     true,
	EventTypeTask:        true,
	EventTypeReminder:    true,
	EventTypeFocusBlock:  true,
	EventTypeMentoring:   true,
	EventTypeUnavailable: true,
}

// ValidEventSources is the set of allowed event sources.
var ValidEventSources = map[string]bool{
	EventSourceManual:  true,
	EventSourceGoogle:  true,
	EventSourceOutlook: true,
	EventSourceNative:  true,
}

// ValidVisibilities is the set of allowed event visibilities.
var ValidVisibilities = map[string]bool{
	VisibilityPrivate: true,
	VisibilityShared:  true,
	VisibilityPublic:  true,
}

// ValidFocusTypes is the set of allowed focus session types.
var ValidFocusTypes = map[string]bool{
	FocusTypeDeepWork: true,
	FocusTypeLearning: true,
	FocusTypeAdmin:    true,
	FocusTypeBreak:    true,
}

// ICSProviders are providers whose metadata carries an ICS text blob.
var ICSProviders = map[string]bool{
	ProviderICS:    true,
	ProviderCalDAV: true,
}

var colorHexRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}([0-9a-fA-F]{2})?$`)

// ValidColorHex reports whether s is a #RRGGBB or #RRGGBBAA color string.
func ValidColorHex(s string) bool {
	return colorHexRe.MatchString(s)
}
