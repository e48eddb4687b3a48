// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/veliq/timegrid/internal/models"
)

// ParseBusyWindows extracts busy windows from the VEVENT blocks of an ICS
// document. Blocks missing DTSTART or DTEND are dropped; third-party feeds
// are ragged and partial data is expected. A document that does not parse at
// all is an error the caller turns into a sync-health record.
func ParseBusyWindows(blob string) ([]models.BusyWindow, error) {
	cal, err := ical.ParseCalendar(strings.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("parse ics document: %w", err)
	}

	var windows []models.BusyWindow
	for _, event := range cal.Events() {
		start, ok := propTime(event, ical.ComponentPropertyDtStart)
		if !ok {
			continue
		}
		end, ok := propTime(event, ical.ComponentPropertyDtEnd)
		if !ok {
			continue
		}

		var title string
		if p := event.GetProperty(ical.ComponentPropertySummary); p != nil {
			title = Unescape(p.Value)
		}

		windows = append(windows, models.BusyWindow{
			Start: start,
			End:   end,
			Title: title,
		})
	}
	return windows, nil
}

func propTime(event *ical.VEvent, name ical.ComponentProperty) (time.Time, bool) {
	p := event.GetProperty(name)
	if p == nil || p.Value == "" {
		return time.Time{}, false
	}
	t, err := parseICSTime(p.Value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseICSTime reads the timestamp forms seen in the wild: the compact UTC
// stamp, the same stamp without the trailing Z (treated as UTC), and bare
// dates from all-day events.
func parseICSTime(v string) (time.Time, error) {
	for _, layout := range []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized ics timestamp %q", v)
}
