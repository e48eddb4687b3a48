// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/veliq/timegrid/internal/api/errors"
	"github.com/veliq/timegrid/internal/models"
	"github.com/veliq/timegrid/internal/pkg/logger"
	"github.com/veliq/timegrid/internal/recurrence"
	"github.com/veliq/timegrid/internal/services/calendar"
	"github.com/veliq/timegrid/internal/services/overview"
)

// Response headers reporting export document contents.
const (
	HeaderEventCount = "X-Timegrid-Event-Count"
	HeaderBusyCount  = "X-Timegrid-Busy-Count"
)

// CalendarHandler handles calendar events, focus sessions, integrations,
// settings, the overview endpoint, and ICS exports.
type CalendarHandler struct {
	BaseHandler
	calendar *calendar.Service
	overview *overview.Service
}

// NewCalendarHandler creates a new calendar handler.
func NewCalendarHandler(cal *calendar.Service, ov *overview.Service, log *logger.Logger) *CalendarHandler {
	return &CalendarHandler{
		BaseHandler: NewBaseHandler(log),
		calendar:    cal,
		overview:    ov,
	}
}

// Routes returns the calendar routes.
func (h *CalendarHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/overview", h.GetOverview)
	r.Get("/export.ics", h.ExportSchedule)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Post("/", h.CreateEvent)
		r.Route("/{eventID}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Put("/", h.UpdateEvent)
			r.Delete("/", h.DeleteEvent)
			r.Get("/export.ics", h.ExportEvent)
		})
	})

	r.Route("/focus-sessions", func(r chi.Router) {
		r.Get("/", h.ListFocusSessions)
		r.Post("/", h.CreateFocusSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetFocusSession)
			r.Put("/", h.UpdateFocusSession)
			r.Delete("/", h.DeleteFocusSession)
		})
	})

	r.Route("/integrations", func(r chi.Router) {
		r.Get("/", h.ListIntegrations)
		r.Post("/", h.CreateIntegration)
		r.Route("/{integrationID}", func(r chi.Router) {
			r.Get("/", h.GetIntegration)
			r.Put("/", h.UpdateIntegration)
			r.Delete("/", h.DeleteIntegration)
		})
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.GetSettings)
		r.Put("/", h.UpdateSettings)
	})

	return r
}

// ============================================================================
// Request types
// ============================================================================

// EventRequest is the create/update payload for calendar events.
type EventRequest struct {
	Title               string            `json:"title" validate:"required,max=500"`
	EventType           string            `json:"event_type,omitempty"`
	Source              string            `json:"source,omitempty"`
	StartsAt            time.Time         `json:"starts_at" validate:"required"`
	EndsAt              *time.Time        `json:"ends_at,omitempty"`
	IsAllDay            bool              `json:"is_all_day,omitempty"`
	Location            string            `json:"location,omitempty"`
	Description         string            `json:"description,omitempty"`
	VideoConferenceLink string            `json:"video_conference_link,omitempty"`
	ReminderMinutes     int               `json:"reminder_minutes,omitempty"`
	Visibility          string            `json:"visibility,omitempty"`
	ColorHex            string            `json:"color_hex,omitempty"`
	Recurrence          *recurrence.Input `json:"recurrence,omitempty"`
}

func (req *EventRequest) toModel(userID uuid.UUID) *models.CalendarEvent {
	return &models.CalendarEvent{
		UserID:              userID,
		Title:               req.Title,
		EventType:           req.EventType,
		Source:              req.Source,
		StartsAt:            req.StartsAt,
		EndsAt:              req.EndsAt,
		IsAllDay:            req.IsAllDay,
		Location:            req.Location,
		Description:         req.Description,
		VideoConferenceLink: req.VideoConferenceLink,
		ReminderMinutes:     req.ReminderMinutes,
		Visibility:          req.Visibility,
		ColorHex:            req.ColorHex,
	}
}

// FocusSessionRequest is the create/update payload for focus sessions.
type FocusSessionRequest struct {
	FocusType       string     `json:"focus_type,omitempty"`
	StartedAt       time.Time  `json:"started_at" validate:"required"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

func (req *FocusSessionRequest) toModel(userID uuid.UUID) *models.FocusSession {
	return &models.FocusSession{
		UserID:          userID,
		FocusType:       req.FocusType,
		StartedAt:       req.StartedAt,
		EndedAt:         req.EndedAt,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	}
}

// IntegrationRequest is the create/update payload for calendar integrations.
type IntegrationRequest struct {
	Provider string          `json:"provider" validate:"required"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// SettingsRequest is the update payload for user calendar settings.
type SettingsRequest struct {
	Timezone               string `json:"timezone,omitempty"`
	WeekStart              int    `json:"week_start,omitempty"`
	WorkStartMinutes       int    `json:"work_start_minutes,omitempty"`
	WorkEndMinutes         int    `json:"work_end_minutes,omitempty"`
	DefaultView            string `json:"default_view,omitempty"`
	DefaultReminderMinutes int    `json:"default_reminder_minutes,omitempty"`
	AutoFocusBlocks        bool   `json:"auto_focus_blocks,omitempty"`
	ShareAvailability      bool   `json:"share_availability,omitempty"`
	ColorHex               string `json:"color_hex,omitempty"`
}

// ============================================================================
// Window parsing
// ============================================================================

// parseWindow reads the optional from/to query parameters. Both must be
// present to form a window; absent means the service default applies.
func (h *CalendarHandler) parseWindow(r *http.Request) (*models.TimeWindow, error) {
	from, err := h.QueryParamTime(r, "from")
	if err != nil {
		return nil, err
	}
	to, err := h.QueryParamTime(r, "to")
	if err != nil {
		return nil, err
	}

	if from == nil && to == nil {
		return nil, nil
	}
	if from == nil || to == nil {
		return nil, apierrors.InvalidInput("from and to must be supplied together")
	}
	if to.Before(*from) {
		return nil, apierrors.InvalidInput("to must not precede from")
	}

	return &models.TimeWindow{From: *from, To: *to}, nil
}

// ============================================================================
// Overview
// ============================================================================

// GetOverview returns the composite calendar overview for the window.
// GET /api/calendar/overview?from=&to=
func (h *CalendarHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	win, err := h.parseWindow(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	ov, err := h.overview.Overview(r.Context(), userID, win)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, ov)
}

// ============================================================================
// ICS exports
// ============================================================================

// writeExport sends a rendered ICS document with the calendar content type,
// an attachment disposition, and content-count headers.
func (h *CalendarHandler) writeExport(w http.ResponseWriter, export *overview.Export) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.Header().Set(HeaderEventCount, strconv.Itoa(export.EventCount))
	w.Header().Set(HeaderBusyCount, strconv.Itoa(export.BusyCount))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(export.Body)); err != nil {
		h.Logger().Error("failed to write ICS export", "error", err)
	}
}

// ExportEvent renders a single event as an ICS document.
// GET /api/calendar/events/{eventID}/export.ics
func (h *CalendarHandler) ExportEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	id, err := h.URLParamUUID(r, "eventID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	export, err := h.overview.ExportEvent(r.Context(), id, userID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.writeExport(w, export)
}

// ExportSchedule renders the full schedule, optionally with availability
// blocks, as an ICS document.
// GET /api/calendar/export.ics?from=&to=&availability=true
func (h *CalendarHandler) ExportSchedule(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	win, err := h.parseWindow(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	includeAvailability := h.QueryParamBool(r, "availability", false)

	export, err := h.overview.ExportSchedule(r.Context(), userID, win, includeAvailability)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.writeExport(w, export)
}

// ============================================================================
// Events
// ============================================================================

// ListEvents lists events overlapping the window, recurrence templates
// included but not expanded.
// GET /api/calendar/events?from=&to=
func (h *CalendarHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	win, err := h.parseWindow(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	if win == nil {
		now := time.Now().UTC()
		win = &models.TimeWindow{From: now, To: now.AddDate(0, overview.DefaultWindowMonths, 0)}
	}

	events, err := h.calendar.ListEvents(r.Context(), userID, *win)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, map[string]any{"events": events, "total": len(events)})
}

// CreateEvent creates an event, compiling the recurrence input if present.
// POST /api/calendar/events
func (h *CalendarHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req EventRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	ev := req.toModel(userID)
	if err := h.calendar.CreateEvent(r.Context(), ev, req.Recurrence); err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, ev)
}

// GetEvent returns a single event by ID.
// GET /api/calendar/events/{eventID}
func (h *CalendarHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	id, err := h.URLParamUUID(r, "eventID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	ev, err := h.calendar.GetEvent(r.Context(), id, userID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, ev)
}

// UpdateEvent replaces an event's mutable fields.
// PUT /api/calendar/events/{eventID}
func (h *CalendarHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	id, err := h.URLParamUUID(r, "eventID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req EventRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	ev := req.toModel(userID)
	ev.ID = id
	if err := h.calendar.UpdateEvent(r.Context(), ev, req.Recurrence); err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, ev)
}

// DeleteEvent soft-deletes an event.
// DELETE /api/calendar/events/{eventID}
func (h *CalendarHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	id, err := h.URLParamUUID(r, "eventID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.calendar.DeleteEvent(r.Context(), id, userID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// ============================================================================
// Focus sessions
// ============================================================================

// ListFocusSessions lists focus sessions, most recent first, paginated.
// GET /api/calendar/focus-sessions?page=&per_page=
func (h *CalendarHandler) ListFocusSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	sessions, err := h.calendar.ListFocusSessions(r.Context(), userID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	params := h.GetPagination(r)
	total := len(sessions)
	start := params.Offset
	if start > total {
		start = total
	}
	end := start + params.PerPage
	if end > total {
		end = total
	}

	h.OK(w, NewPaginatedResponse(sessions[start:end], int64(total), params))
}

// CreateFocusSession records a focus session.
// POST /api/calendar/focus-sessions
func (h *CalendarHandler) CreateFocusSession(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req FocusSessionRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	fs := req.toModel(userID)
	if err := h.calendar.CreateFocusSession(r.Context(), fs); err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, fs)
}

// GetFocusSession returns a single focus session.
// GET /api/calendar/focus-sessions/{sessionID}
func (h *CalendarHandler) GetFocusSession(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	id, err := h.URLParamUUID(r, "sessionID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	fs, err := h.calendar.GetFocusSession(r.Context(), id, userID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, fs)
}

// UpdateFocusSession updates a focus session.
// PUT /api/calendar/focus-sessions/{sessionID}
func (h *CalendarHandler) UpdateFocusSession(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	id, err := h.URLParamUUID(r, "sessionID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req FocusSessionRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	fs := req.toModel(userID)
	fs.ID = id
	if err := h.calendar.UpdateFocusSession(r.Context(), fs); err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, fs)
}

// DeleteFocusSession removes a focus session.
// DELETE /api/calendar/focus-sessions/{sessionID}
func (h *CalendarHandler) DeleteFocusSession(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	id, err := h.URLParamUUID(r, "sessionID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.calendar.DeleteFocusSession(r.Context(), id, userID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// ============================================================================
// Integrations
// ============================================================================

// ListIntegrations lists connected calendar providers with sync health.
// GET /api/calendar/integrations
func (h *CalendarHandler) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	integrations, err := h.calendar.ListIntegrations(r.Context(), userID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, map[string]any{"integrations": integrations, "total": len(integrations)})
}

// CreateIntegration connects a calendar provider.
// POST /api/calendar/integrations
func (h *CalendarHandler) CreateIntegration(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req IntegrationRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	integration := &models.CalendarIntegration{
		UserID:   userID,
		Provider: req.Provider,
		Metadata: req.Metadata,
	}
	if err := h.calendar.CreateIntegration(r.Context(), integration); err != nil {
		h.HandleError(w, err)
		return
	}

	h.Created(w, integration)
}

// GetIntegration returns a single integration.
// GET /api/calendar/integrations/{integrationID}
func (h *CalendarHandler) GetIntegration(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	id, err := h.URLParamUUID(r, "integrationID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	integration, err := h.calendar.GetIntegration(r.Context(), id, userID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, integration)
}

// UpdateIntegration replaces an integration's provider and metadata.
// Sync-health fields are owned by the aggregator and not writable here.
// PUT /api/calendar/integrations/{integrationID}
func (h *CalendarHandler) UpdateIntegration(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	id, err := h.URLParamUUID(r, "integrationID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req IntegrationRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	integration := &models.CalendarIntegration{
		ID:       id,
		UserID:   userID,
		Provider: req.Provider,
		Metadata: req.Metadata,
	}
	if err := h.calendar.UpdateIntegration(r.Context(), integration); err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, integration)
}

// DeleteIntegration disconnects a calendar provider.
// DELETE /api/calendar/integrations/{integrationID}
func (h *CalendarHandler) DeleteIntegration(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	id, err := h.URLParamUUID(r, "integrationID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.calendar.DeleteIntegration(r.Context(), id, userID); err != nil {
		h.HandleError(w, err)
		return
	}

	h.NoContent(w)
}

// ============================================================================
// Settings
// ============================================================================

// GetSettings returns the user's calendar settings, creating defaults on
// first access.
// GET /api/calendar/settings
func (h *CalendarHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	settings, err := h.calendar.GetSettings(r.Context(), userID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, settings)
}

// UpdateSettings replaces the user's calendar settings.
// PUT /api/calendar/settings
func (h *CalendarHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := h.GetUserID(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req SettingsRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	settings := &models.UserCalendarSetting{
		UserID:                 userID,
		Timezone:               req.Timezone,
		WeekStart:              req.WeekStart,
		WorkStartMinutes:       req.WorkStartMinutes,
		WorkEndMinutes:         req.WorkEndMinutes,
		DefaultView:            req.DefaultView,
		DefaultReminderMinutes: req.DefaultReminderMinutes,
		AutoFocusBlocks:        req.AutoFocusBlocks,
		ShareAvailability:      req.ShareAvailability,
		ColorHex:               req.ColorHex,
	}
	if err := h.calendar.UpdateSettings(r.Context(), settings); err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, settings)
}
