// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package availability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veliq/timegrid/internal/models"
	"github.com/veliq/timegrid/internal/pkg/logger"
)

// SyncStatusStore persists the per-integration sync-health fields after each
// fetch attempt. Updates are independent per integration.
type SyncStatusStore interface {
	UpdateSyncStatus(ctx context.Context, id uuid.UUID, syncedAt *time.Time, syncErr *string) error
}

// Aggregator fans out busy-window fetches across a user's integrations. Each
// integration is fetched independently; a failing integration only gets its
// sync error recorded and contributes no windows, it never aborts siblings.
type Aggregator struct {
	gateway *Gateway
	store   SyncStatusStore
	log     *logger.Logger
	clock   func() time.Time
}

// NewAggregator builds an aggregator. The store may be nil when sync health
// should not be persisted (exports on read-only paths); a nil clock uses
// time.Now.
func NewAggregator(gateway *Gateway, store SyncStatusStore, log *logger.Logger, clock func() time.Time) *Aggregator {
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{
		gateway: gateway,
		store:   store,
		log:     log.Named("aggregator"),
		clock:   clock,
	}
}

// Collect fetches busy windows from every integration concurrently, records
// each integration's sync health, and returns the merged windows deduplicated
// by (provider, start, end) and sorted ascending by start. The integration
// records are mutated in place so callers see fresh sync-health fields.
func (a *Aggregator) Collect(ctx context.Context, integrations []*models.CalendarIntegration, win models.TimeWindow) []models.BusyWindow {
	if len(integrations) == 0 {
		return nil
	}

	results := make([][]models.BusyWindow, len(integrations))

	var wg sync.WaitGroup
	for i, integration := range integrations {
		wg.Add(1)
		go func(i int, integration *models.CalendarIntegration) {
			defer wg.Done()
			results[i] = a.fetchOne(ctx, integration, win)
		}(i, integration)
	}
	wg.Wait()

	return mergeWindows(results)
}

// fetchOne runs a single integration's fetch and sync-health update. Panics
// in a gateway path are contained here so one bad integration cannot take
// down the whole aggregation.
func (a *Aggregator) fetchOne(ctx context.Context, integration *models.CalendarIntegration, win models.TimeWindow) (windows []models.BusyWindow) {
	// A cancelled request abandons the fetch without touching sync health.
	if ctx.Err() != nil {
		return nil
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("integration fetch panicked: %v", r)
			windows = nil
		}
		a.recordHealth(ctx, integration, err)
	}()

	windows, err = a.gateway.BusyWindows(integration, win)
	return windows
}

// recordHealth applies the sync-health contract: success bumps lastSyncedAt
// and clears syncError; failure records syncError and leaves lastSyncedAt
// untouched.
func (a *Aggregator) recordHealth(ctx context.Context, integration *models.CalendarIntegration, fetchErr error) {
	var syncedAt *time.Time
	var syncErr *string

	if fetchErr != nil {
		msg := fetchErr.Error()
		syncErr = &msg
		integration.SyncError = &msg
		a.log.Warn("integration fetch failed",
			"integration_id", integration.ID,
			"provider", integration.Provider,
			"error", msg)
	} else {
		now := a.clock()
		syncedAt = &now
		integration.LastSyncedAt = &now
		integration.SyncError = nil
	}

	if a.store == nil {
		return
	}
	if err := a.store.UpdateSyncStatus(ctx, integration.ID, syncedAt, syncErr); err != nil {
		a.log.Warn("failed to persist sync status",
			"integration_id", integration.ID,
			"error", err)
	}
}

// mergeWindows deduplicates by (provider, start, end) and sorts by start.
func mergeWindows(results [][]models.BusyWindow) []models.BusyWindow {
	seen := make(map[string]bool)
	var merged []models.BusyWindow
	for _, windows := range results {
		for _, w := range windows {
			key := fmt.Sprintf("%s|%d|%d", w.Provider, w.Start.UnixNano(), w.End.UnixNano())
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, w)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Start.Equal(merged[j].Start) {
			return merged[i].Start.Before(merged[j].Start)
		}
		return merged[i].End.Before(merged[j].End)
	})
	return merged
}
