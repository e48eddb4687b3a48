// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/veliq/timegrid/internal/api"
	"github.com/veliq/timegrid/internal/api/handlers"
	"github.com/veliq/timegrid/internal/api/middleware"
	"github.com/veliq/timegrid/internal/availability"
	"github.com/veliq/timegrid/internal/models"
	pkgerrors "github.com/veliq/timegrid/internal/pkg/errors"
	"github.com/veliq/timegrid/internal/pkg/logger"
	"github.com/veliq/timegrid/internal/recurrence"
	"github.com/veliq/timegrid/internal/services/calendar"
	"github.com/veliq/timegrid/internal/services/overview"
)

const testJWTSecret = "test-secret-key-for-testing-purposes-only-minimum-32-chars"

// testSuite provides shared test infrastructure for handler tests.
type testSuite struct {
	router  chi.Router
	handler *api.Handlers
	store   *memStore
}

// setupTestSuite wires the system and calendar handlers to an in-memory
// store behind the real router and middleware stack.
func setupTestSuite(t *testing.T) *testSuite {
	t.Helper()

	log := logger.Nop()
	store := newMemStore()

	calSvc := calendar.NewService(store, store, store, store, log)
	gateway := availability.NewGateway(log)
	aggregator := availability.NewAggregator(gateway, store, log, nil)
	cache := recurrence.NewCache(5*time.Minute, 500, nil)
	ovSvc := overview.NewService(store, store, store, store, aggregator, cache, log, nil)

	h := &api.Handlers{
		System:   handlers.NewSystemHandler("test-version", "test-commit", "2026-01-01T00:00:00Z", nil),
		Calendar: handlers.NewCalendarHandler(calSvc, ovSvc, log),
	}

	config := api.RouterConfig{
		JWTSecret:          testJWTSecret,
		CORSConfig:         middleware.DefaultCORSConfig(),
		RateLimitPerMinute: 1000,
		RequestTimeout:     5 * time.Second,
	}

	router := api.NewRouter(config, h)

	return &testSuite{
		router:  router,
		handler: h,
		store:   store,
	}
}

// generateTestToken creates a valid JWT token for testing.
func generateTestToken(t *testing.T, userID, username, role string) string {
	t.Helper()

	claims := middleware.UserClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "timegrid-test",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return tokenString
}

// testUser returns a test user UUID.
func testUser() string {
	return uuid.New().String()
}

// doRequest performs an HTTP request against the test router.
func doRequest(t *testing.T, router chi.Router, method, path string, body string, token string) *httptest.ResponseRecorder {
	t.Helper()

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// assertJSON checks that the response is valid JSON and returns the parsed body.
func assertJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	contentType := w.Header().Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Errorf("failed to parse JSON response: %v. Body: %s", err, w.Body.String())
	}
	return result
}

// assertErrorCode checks the error code in the JSON response.
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Errorf("failed to parse error response: %v. Body: %s", err, w.Body.String())
		return
	}
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q", expectedCode, errResp.Code)
	}
}

// withUserContext adds user claims to the request context.
func withUserContext(r *http.Request, userID, username, role string) *http.Request {
	claims := &middleware.UserClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
	}
	ctx := context.WithValue(r.Context(), middleware.UserContextKey, claims)
	return r.WithContext(ctx)
}

// ============================================================================
// In-memory store
// ============================================================================

// memStore backs the calendar and overview services in handler tests. One
// instance satisfies every persistence contract the services take.
type memStore struct {
	mu           sync.Mutex
	events       map[uuid.UUID]*models.CalendarEvent
	sessions     map[uuid.UUID]*models.FocusSession
	integrations map[uuid.UUID]*models.CalendarIntegration
	settings     map[uuid.UUID]*models.UserCalendarSetting
}

func newMemStore() *memStore {
	return &memStore{
		events:       make(map[uuid.UUID]*models.CalendarEvent),
		sessions:     make(map[uuid.UUID]*models.FocusSession),
		integrations: make(map[uuid.UUID]*models.CalendarIntegration),
		settings:     make(map[uuid.UUID]*models.UserCalendarSetting),
	}
}

func (m *memStore) CreateEvent(_ context.Context, ev *models.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (m *memStore) GetEvent(_ context.Context, id, userID uuid.UUID) (*models.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok || ev.UserID != userID {
		return nil, pkgerrors.NewNotFoundError("calendar event")
	}
	cp := *ev
	return &cp, nil
}

func (m *memStore) ListEvents(_ context.Context, userID uuid.UUID, win models.TimeWindow) ([]*models.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CalendarEvent
	for _, ev := range m.events {
		if ev.UserID != userID {
			continue
		}
		// Recurrence templates stay in range queries regardless of window so
		// the expander can generate occurrences from them.
		if !ev.IsTemplate() {
			end := ev.StartsAt
			if ev.EndsAt != nil {
				end = *ev.EndsAt
			}
			if ev.StartsAt.After(win.To) || end.Before(win.From) {
				continue
			}
		}
		cp := *ev
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (m *memStore) UpdateEvent(_ context.Context, ev *models.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.events[ev.ID]
	if !ok || existing.UserID != ev.UserID {
		return pkgerrors.NewNotFoundError("calendar event")
	}
	ev.CreatedAt = existing.CreatedAt
	ev.UpdatedAt = time.Now().UTC()
	cp := *ev
	m.events[ev.ID] = &cp
	return nil
}

func (m *memStore) DeleteEvent(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok || ev.UserID != userID {
		return pkgerrors.NewNotFoundError("calendar event")
	}
	delete(m.events, id)
	return nil
}

func (m *memStore) CreateFocusSession(_ context.Context, fs *models.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fs.ID == uuid.Nil {
		fs.ID = uuid.New()
	}
	now := time.Now().UTC()
	fs.CreatedAt = now
	fs.UpdatedAt = now
	cp := *fs
	m.sessions[fs.ID] = &cp
	return nil
}

func (m *memStore) GetFocusSession(_ context.Context, id, userID uuid.UUID) (*models.FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.sessions[id]
	if !ok || fs.UserID != userID {
		return nil, pkgerrors.NewNotFoundError("focus session")
	}
	cp := *fs
	return &cp, nil
}

func (m *memStore) ListFocusSessions(_ context.Context, userID uuid.UUID) ([]*models.FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.FocusSession
	for _, fs := range m.sessions {
		if fs.UserID != userID {
			continue
		}
		cp := *fs
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *memStore) UpdateFocusSession(_ context.Context, fs *models.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[fs.ID]
	if !ok || existing.UserID != fs.UserID {
		return pkgerrors.NewNotFoundError("focus session")
	}
	fs.CreatedAt = existing.CreatedAt
	fs.UpdatedAt = time.Now().UTC()
	cp := *fs
	m.sessions[fs.ID] = &cp
	return nil
}

func (m *memStore) DeleteFocusSession(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.sessions[id]
	if !ok || fs.UserID != userID {
		return pkgerrors.NewNotFoundError("focus session")
	}
	delete(m.sessions, id)
	return nil
}

func (m *memStore) CreateIntegration(_ context.Context, integration *models.CalendarIntegration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	now := time.Now().UTC()
	integration.CreatedAt = now
	integration.UpdatedAt = now
	cp := *integration
	m.integrations[integration.ID] = &cp
	return nil
}

func (m *memStore) GetIntegration(_ context.Context, id, userID uuid.UUID) (*models.CalendarIntegration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	integration, ok := m.integrations[id]
	if !ok || integration.UserID != userID {
		return nil, pkgerrors.NewNotFoundError("calendar integration")
	}
	cp := *integration
	return &cp, nil
}

func (m *memStore) ListIntegrations(_ context.Context, userID uuid.UUID) ([]*models.CalendarIntegration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CalendarIntegration
	for _, integration := range m.integrations {
		if integration.UserID != userID {
			continue
		}
		cp := *integration
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) UpdateIntegration(_ context.Context, integration *models.CalendarIntegration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.integrations[integration.ID]
	if !ok || existing.UserID != integration.UserID {
		return pkgerrors.NewNotFoundError("calendar integration")
	}
	integration.CreatedAt = existing.CreatedAt
	integration.LastSyncedAt = existing.LastSyncedAt
	integration.SyncError = existing.SyncError
	integration.UpdatedAt = time.Now().UTC()
	cp := *integration
	m.integrations[integration.ID] = &cp
	return nil
}

func (m *memStore) DeleteIntegration(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	integration, ok := m.integrations[id]
	if !ok || integration.UserID != userID {
		return pkgerrors.NewNotFoundError("calendar integration")
	}
	delete(m.integrations, id)
	return nil
}

func (m *memStore) UpdateSyncStatus(_ context.Context, id uuid.UUID, syncedAt *time.Time, syncErr *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	integration, ok := m.integrations[id]
	if !ok {
		return pkgerrors.NewNotFoundError("calendar integration")
	}
	if syncedAt != nil {
		integration.LastSyncedAt = syncedAt
	}
	integration.SyncError = syncErr
	return nil
}

func (m *memStore) GetOrCreateSettings(_ context.Context, userID uuid.UUID) (*models.UserCalendarSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if settings, ok := m.settings[userID]; ok {
		cp := *settings
		return &cp, nil
	}
	settings := models.DefaultCalendarSetting(userID)
	settings.ID = uuid.New()
	now := time.Now().UTC()
	settings.CreatedAt = now
	settings.UpdatedAt = now
	cp := *settings
	m.settings[userID] = &cp
	return settings, nil
}

func (m *memStore) UpdateSettings(_ context.Context, settings *models.UserCalendarSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.settings[settings.UserID]
	if ok {
		settings.ID = existing.ID
		settings.CreatedAt = existing.CreatedAt
	} else {
		settings.ID = uuid.New()
		settings.CreatedAt = time.Now().UTC()
	}
	settings.UpdatedAt = time.Now().UTC()
	cp := *settings
	m.settings[settings.UserID] = &cp
	return nil
}
