// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

// Package availability normalizes busy-time data from heterogeneous calendar
// integrations and aggregates it across a user's integrations.
package availability

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/veliq/timegrid/internal/ics"
	"github.com/veliq/timegrid/internal/models"
	"github.com/veliq/timegrid/internal/pkg/logger"
)

// sourceKind identifies which shape an integration's metadata resolved to.
type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceExplicit
	sourceICSBlob
	sourceRecurringSlots
)

// metadata is the union of the shapes integrations store. Exactly one shape
// is used per integration, resolved once in resolveSource.
type metadata struct {
	BusyWindows    []rawWindow `json:"busyWindows"`
	ICS            string      `json:"ics"`
	RecurringSlots []rawWindow `json:"recurringSlots"`
}

// rawWindow is a loosely-typed busy entry as stored in metadata. Timestamps
// are strings so a single bad entry cannot fail the whole document.
type rawWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Title string `json:"title"`
}

// Gateway turns one integration's stored metadata into busy windows clipped
// to a query window.
type Gateway struct {
	log *logger.Logger
}

// NewGateway builds a gateway. A nil logger is replaced with a no-op one.
func NewGateway(log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Nop()
	}
	return &Gateway{log: log.Named("availability")}
}

// BusyWindows normalizes the integration's metadata into busy windows tagged
// with the integration's provider and clipped to win. Individual malformed
// entries are dropped; metadata or an ICS blob that cannot be read at all is
// an error for the caller to record as sync health.
func (g *Gateway) BusyWindows(integration *models.CalendarIntegration, win models.TimeWindow) ([]models.BusyWindow, error) {
	if len(integration.Metadata) == 0 {
		return nil, nil
	}

	var meta metadata
	if err := json.Unmarshal(integration.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("decode integration metadata: %w", err)
	}

	var windows []models.BusyWindow
	switch resolveSource(integration.Provider, meta) {
	case sourceExplicit:
		windows = g.fromRawWindows(meta.BusyWindows, integration.Provider)
	case sourceICSBlob:
		parsed, err := ics.ParseBusyWindows(meta.ICS)
		if err != nil {
			return nil, err
		}
		windows = parsed
	case sourceRecurringSlots:
		// Recurring slots are treated as already-resolved windows. No
		// recurrence expansion is applied to them.
		windows = g.fromRawWindows(meta.RecurringSlots, integration.Provider)
	default:
		return nil, nil
	}

	return clipAll(windows, integration.Provider, win), nil
}

// resolveSource picks the metadata shape, in priority order: explicit busy
// windows, then an ICS blob for ICS-type providers, then recurring slots.
func resolveSource(provider string, meta metadata) sourceKind {
	switch {
	case len(meta.BusyWindows) > 0:
		return sourceExplicit
	case meta.ICS != "" && models.ICSProviders[provider]:
		return sourceICSBlob
	case len(meta.RecurringSlots) > 0:
		return sourceRecurringSlots
	default:
		return sourceNone
	}
}

// fromRawWindows parses loosely-typed entries, dropping any with missing or
// unparseable bounds.
func (g *Gateway) fromRawWindows(raw []rawWindow, provider string) []models.BusyWindow {
	var windows []models.BusyWindow
	for _, entry := range raw {
		start, err := parseEntryTime(entry.Start)
		if err != nil {
			g.log.Debug("dropping busy entry with bad start",
				"provider", provider, "start", entry.Start)
			continue
		}
		end, err := parseEntryTime(entry.End)
		if err != nil {
			g.log.Debug("dropping busy entry with bad end",
				"provider", provider, "end", entry.End)
			continue
		}
		windows = append(windows, models.BusyWindow{
			Start: start,
			End:   end,
			Title: entry.Title,
		})
	}
	return windows
}

// clipAll tags every window with the provider and clips it to win, dropping
// windows fully outside the query window or empty after clipping.
func clipAll(windows []models.BusyWindow, provider string, win models.TimeWindow) []models.BusyWindow {
	var out []models.BusyWindow
	for _, w := range windows {
		if !w.End.After(w.Start) {
			continue
		}
		if !w.End.After(win.From) || !w.Start.Before(win.To) {
			continue
		}
		if w.Start.Before(win.From) {
			w.Start = win.From
		}
		if w.End.After(win.To) {
			w.End = win.To
		}
		w.Provider = provider
		out = append(out, w)
	}
	return out
}

func parseEntryTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}
