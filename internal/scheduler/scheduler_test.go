// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/veliq/timegrid/internal/availability"
	"github.com/veliq/timegrid/internal/models"
)

// fakeIntegrationStore serves integrations to the sweep and records the sync
// status writes the aggregator makes back.
type fakeIntegrationStore struct {
	mu           sync.Mutex
	integrations []*models.CalendarIntegration
	listErr      error
	synced       map[uuid.UUID]*time.Time
	syncErrors   map[uuid.UUID]*string
}

func newFakeIntegrationStore(integrations ...*models.CalendarIntegration) *fakeIntegrationStore {
	return &fakeIntegrationStore{
		integrations: integrations,
		synced:       make(map[uuid.UUID]*time.Time),
		syncErrors:   make(map[uuid.UUID]*string),
	}
}

func (f *fakeIntegrationStore) ListAllIntegrations(ctx context.Context) ([]*models.CalendarIntegration, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.integrations, nil
}

func (f *fakeIntegrationStore) UpdateSyncStatus(ctx context.Context, id uuid.UUID, syncedAt *time.Time, syncErr *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if syncedAt != nil {
		f.synced[id] = syncedAt
	}
	f.syncErrors[id] = syncErr
	return nil
}

func testIntegration(userID uuid.UUID, provider, metadata string) *models.CalendarIntegration {
	return &models.CalendarIntegration{
		ID:       uuid.New(),
		UserID:   userID,
		Provider: provider,
		Metadata: []byte(metadata),
	}
}

func newTestScheduler(store *fakeIntegrationStore, cfg *Config) *Scheduler {
	gateway := availability.NewGateway(nil)
	aggregator := availability.NewAggregator(gateway, store, nil, nil)
	return New(store, aggregator, cfg, nil)
}

func TestRunSweep_RefreshesSyncStatus(t *testing.T) {
	userID := uuid.New()
	healthy := testIntegration(userID, "google",
		`{"busyWindows":[{"start":"2026-09-01T09:00:00Z","end":"2026-09-01T10:00:00Z"}]}`)
	broken := testIntegration(userID, "ics", `{"ics":"not a calendar`)

	store := newFakeIntegrationStore(healthy, broken)
	s := newTestScheduler(store, nil)

	swept, err := s.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error: %v", err)
	}
	if swept != 2 {
		t.Errorf("swept = %d, want 2", swept)
	}

	if store.synced[healthy.ID] == nil {
		t.Error("healthy integration should have last_synced_at set")
	}
	if store.syncErrors[healthy.ID] != nil {
		t.Errorf("healthy integration should have no sync error, got %v", *store.syncErrors[healthy.ID])
	}

	if store.synced[broken.ID] != nil {
		t.Error("broken integration should not bump last_synced_at")
	}
	if store.syncErrors[broken.ID] == nil {
		t.Error("broken integration should record a sync error")
	}
}

func TestRunSweep_EmptyStore(t *testing.T) {
	store := newFakeIntegrationStore()
	s := newTestScheduler(store, nil)

	swept, err := s.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error: %v", err)
	}
	if swept != 0 {
		t.Errorf("swept = %d, want 0", swept)
	}
}

func TestRunSweep_GroupsByUser(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	// Identical windows for different users must both be refreshed, never
	// treated as duplicates of each other.
	meta := `{"busyWindows":[{"start":"2026-09-01T09:00:00Z","end":"2026-09-01T10:00:00Z"}]}`
	a := testIntegration(alice, "google", meta)
	b := testIntegration(bob, "google", meta)

	store := newFakeIntegrationStore(a, b)
	s := newTestScheduler(store, nil)

	swept, err := s.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error: %v", err)
	}
	if swept != 2 {
		t.Errorf("swept = %d, want 2", swept)
	}
	if store.synced[a.ID] == nil || store.synced[b.ID] == nil {
		t.Error("both users' integrations should be refreshed")
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	store := newFakeIntegrationStore()
	s := newTestScheduler(store, &Config{
		Schedule:      "not a cron expression",
		HorizonMonths: 3,
		SweepTimeout:  time.Minute,
	})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if s.IsRunning() {
		t.Error("scheduler should not be running after failed start")
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	store := newFakeIntegrationStore()
	s := newTestScheduler(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !s.IsRunning() {
		t.Error("scheduler should report running after start")
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start() should fail while running")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if s.IsRunning() {
		t.Error("scheduler should not report running after stop")
	}
	// Stop is idempotent.
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop() error: %v", err)
	}
}
