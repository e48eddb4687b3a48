// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

// Package overview composes events, recurrence expansion, focus sessions,
// and aggregated availability into the calendar overview payload and its ICS
// exports.
package overview

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/veliq/timegrid/internal/availability"
	"github.com/veliq/timegrid/internal/ics"
	"github.com/veliq/timegrid/internal/models"
	"github.com/veliq/timegrid/internal/pkg/logger"
	"github.com/veliq/timegrid/internal/recurrence"
	"github.com/veliq/timegrid/internal/services/calendar"
)

// DefaultWindowMonths is how far ahead the overview looks when the caller
// does not bound the window.
const DefaultWindowMonths = 3

// maxIncompleteFocusSessions caps the focus sessions carried in the payload.
const maxIncompleteFocusSessions = 5

// Export is a rendered ICS document plus the response metadata the HTTP
// layer reports back to clients.
type Export struct {
	Filename   string
	Body       string
	EventCount int
	BusyCount  int
}

// Service orchestrates the overview and export flows.
type Service struct {
	events       calendar.EventStore
	focus        calendar.FocusStore
	integrations calendar.IntegrationStore
	settings     calendar.SettingsStore
	aggregator   *availability.Aggregator
	cache        *recurrence.Cache
	logger       *logger.Logger
	clock        func() time.Time
}

// NewService creates an overview service. A nil cache disables expansion
// memoization; a nil clock uses time.Now.
func NewService(
	events calendar.EventStore,
	focus calendar.FocusStore,
	integrations calendar.IntegrationStore,
	settings calendar.SettingsStore,
	aggregator *availability.Aggregator,
	cache *recurrence.Cache,
	log *logger.Logger,
	clock func() time.Time,
) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		events:       events,
		focus:        focus,
		integrations: integrations,
		settings:     settings,
		aggregator:   aggregator,
		cache:        cache,
		logger:       log.Named("overview"),
		clock:        clock,
	}
}

// Overview builds the composite calendar payload for one user. A nil window
// defaults to now through three months ahead. Events in the result already
// include expanded occurrences of every recurring template in the window.
func (s *Service) Overview(ctx context.Context, userID uuid.UUID, win *models.TimeWindow) (*models.CalendarOverview, error) {
	window := s.resolveWindow(win)
	now := s.clock()

	events, err := s.events.ListEvents(ctx, userID, window)
	if err != nil {
		return nil, fmt.Errorf("overview: list events: %w", err)
	}
	sessions, err := s.focus.ListFocusSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("overview: list focus sessions: %w", err)
	}
	integrations, err := s.integrations.ListIntegrations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("overview: list integrations: %w", err)
	}
	settings, err := s.settings.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("overview: load settings: %w", err)
	}

	merged := s.expandAll(events, window)
	busy := s.aggregator.Collect(ctx, integrations, window)

	overview := &models.CalendarOverview{
		Events:        merged,
		FocusSessions: incompleteSessions(sessions),
		Integrations:  integrations,
		Settings:      settings,
		Availability:  busy,
		Stats:         computeStats(merged, now),
		Window:        window,
	}

	s.logger.Debug("built calendar overview",
		"user_id", userID,
		"events", len(merged),
		"busy_windows", len(busy),
		"integrations", len(integrations),
	)
	return overview, nil
}

// ExportEvent renders a single event as a one-VEVENT ICS document.
func (s *Service) ExportEvent(ctx context.Context, id, userID uuid.UUID) (*Export, error) {
	ev, err := s.events.GetEvent(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("export event %s: %w", id, err)
	}

	doc := ics.Document([]*models.CalendarEvent{ev}, nil, ics.Meta{}, s.clock())
	return &Export{
		Filename:   fmt.Sprintf("calendar-event-%s.ics", ev.ID),
		Body:       doc,
		EventCount: 1,
	}, nil
}

// ExportSchedule renders the user's full schedule for the window, optionally
// including aggregated availability as VFREEBUSY blocks. It reuses the
// overview orchestration so exports and overviews always agree.
func (s *Service) ExportSchedule(ctx context.Context, userID uuid.UUID, win *models.TimeWindow, includeAvailability bool) (*Export, error) {
	overview, err := s.Overview(ctx, userID, win)
	if err != nil {
		return nil, fmt.Errorf("export schedule: %w", err)
	}

	var busy []models.BusyWindow
	if includeAvailability {
		busy = overview.Availability
	}

	meta := ics.Meta{Name: "timegrid schedule"}
	if overview.Settings != nil {
		meta.Timezone = overview.Settings.Timezone
	}

	doc := ics.Document(overview.Events, busy, meta, s.clock())
	return &Export{
		Filename:   fmt.Sprintf("calendar-schedule-%s.ics", userID),
		Body:       doc,
		EventCount: len(overview.Events),
		BusyCount:  len(busy),
	}, nil
}

// resolveWindow applies the default overview window when none is given.
func (s *Service) resolveWindow(win *models.TimeWindow) models.TimeWindow {
	if win != nil && win.To.After(win.From) {
		return *win
	}
	now := s.clock()
	return models.TimeWindow{From: now, To: now.AddDate(0, DefaultWindowMonths, 0)}
}

// expandAll merges plain events with the expanded occurrences of every
// recurring template, sorted by start time.
func (s *Service) expandAll(events []*models.CalendarEvent, window models.TimeWindow) []*models.CalendarEvent {
	expWin := recurrence.Window{Start: window.From, End: window.To}

	merged := make([]*models.CalendarEvent, 0, len(events))
	for _, ev := range events {
		merged = append(merged, ev)
		if !ev.IsTemplate() {
			continue
		}
		var occurrences []*models.CalendarEvent
		if s.cache != nil {
			occurrences = s.cache.Expand(ev, expWin)
		} else {
			occurrences = recurrence.Expand(ev, expWin)
		}
		merged = append(merged, occurrences...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].StartsAt.Before(merged[j].StartsAt)
	})
	return merged
}

// incompleteSessions returns up to five incomplete focus sessions, most
// recently started first.
func incompleteSessions(sessions []*models.FocusSession) []*models.FocusSession {
	var incomplete []*models.FocusSession
	for _, fs := range sessions {
		if !fs.Completed {
			incomplete = append(incomplete, fs)
		}
	}
	sort.SliceStable(incomplete, func(i, j int) bool {
		return incomplete[i].StartedAt.After(incomplete[j].StartedAt)
	})
	if len(incomplete) > maxIncompleteFocusSessions {
		incomplete = incomplete[:maxIncompleteFocusSessions]
	}
	return incomplete
}

// computeStats derives the summary statistics for the merged event list.
// Events with a zero start time sort last and never become the next event.
func computeStats(events []*models.CalendarEvent, now time.Time) models.CalendarStats {
	stats := models.CalendarStats{
		TotalEvents:  len(events),
		EventsByType: make(map[string]int),
	}

	var next *models.CalendarEvent
	for _, ev := range events {
		stats.EventsByType[ev.EventType]++
		if ev.StartsAt.IsZero() {
			continue
		}
		if !ev.StartsAt.Before(now) {
			stats.UpcomingEvents++
			if next == nil || ev.StartsAt.Before(next.StartsAt) {
				next = ev
			}
		}
	}
	stats.NextEvent = next
	return stats
}
