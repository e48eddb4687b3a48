// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordedLog struct {
	msg    string
	fields []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []recordedLog
}

func (c *captureLogger) log(msg string, kv ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, recordedLog{msg: msg, fields: kv})
}

func (c *captureLogger) Info(msg string, kv ...any)  { c.log(msg, kv...) }
func (c *captureLogger) Error(msg string, kv ...any) { c.log(msg, kv...) }
func (c *captureLogger) Debug(msg string, kv ...any) { c.log(msg, kv...) }

// ============================================================================
// RequestID
// ============================================================================

func TestRequestID_GeneratesID(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if captured == "" {
		t.Fatal("request ID should be set in context")
	}
	if got := w.Header().Get(RequestIDHeader); got != captured {
		t.Errorf("response header = %q, want %q", got, captured)
	}
}

func TestRequestID_ReusesIncomingHeader(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured != "upstream-42" {
		t.Errorf("request ID = %q, want %q", captured, "upstream-42")
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("GetRequestID on bare context = %q, want empty", got)
	}
}

// ============================================================================
// SimpleLogging
// ============================================================================

func TestSimpleLogging_RecordsStatus(t *testing.T) {
	log := &captureLogger{}
	handler := SimpleLogging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/overview", nil))

	if len(log.entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(log.entries))
	}
	entry := log.entries[0]
	if entry.msg != "http request" {
		t.Errorf("msg = %q, want %q", entry.msg, "http request")
	}

	fields := map[any]any{}
	for i := 0; i+1 < len(entry.fields); i += 2 {
		fields[entry.fields[i]] = entry.fields[i+1]
	}
	if fields["status"] != http.StatusTeapot {
		t.Errorf("status field = %v, want %d", fields["status"], http.StatusTeapot)
	}
	if fields["path"] != "/overview" {
		t.Errorf("path field = %v, want /overview", fields["path"])
	}
}

// ============================================================================
// Recovery
// ============================================================================

func TestRecovery_ConvertsPanicTo500(t *testing.T) {
	log := &captureLogger{}
	handler := Recovery(RecoveryConfig{Logger: log})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(w.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("body should contain error code, got: %s", w.Body.String())
	}
	if len(log.entries) != 1 || log.entries[0].msg != "panic recovered" {
		t.Errorf("panic should be logged, entries: %+v", log.entries)
	}
}

func TestRecovery_PassesThroughNormalRequests(t *testing.T) {
	handler := Recovery(RecoveryConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
