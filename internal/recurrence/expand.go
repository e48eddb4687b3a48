// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package recurrence

import (
	"sort"
	"time"

	"github.com/veliq/timegrid/internal/models"
)

// DefaultLimit bounds expansion when the caller does not set Window.Limit.
const DefaultLimit = 50

// Window bounds a single expansion request. Limit caps the number of
// occurrences generated; zero means DefaultLimit.
type Window struct {
	Start time.Time
	End   time.Time
	Limit int
}

// contains reports whether t falls inside the window, bounds inclusive.
func (w Window) contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Expand materializes the occurrences of a recurring template inside the
// window. The template's own start is never emitted; occurrences are the
// strictly later repetitions. Returns nil for non-templates and for rules
// the decoder cannot make sense of.
func Expand(tmpl *models.CalendarEvent, win Window) []*models.CalendarEvent {
	if tmpl == nil || !tmpl.IsTemplate() {
		return nil
	}
	dec := Decode(tmpl.Recurrence.Rule)
	if dec.Freq == "" {
		return nil
	}

	limit := win.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	count := 0
	if dec.HasCount {
		count = dec.Count
	} else if tmpl.Recurrence.Count != nil {
		count = *tmpl.Recurrence.Count
	}

	var until time.Time
	hasUntil := false
	if dec.HasUntil {
		until, hasUntil = dec.Until, true
	} else if tmpl.Recurrence.Until != nil {
		until, hasUntil = *tmpl.Recurrence.Until, true
	}

	// Never generate more than max(count, limit) occurrences.
	max := limit
	if count > max {
		max = count
	}

	gen := generator{
		tmpl:     tmpl,
		win:      win,
		count:    count,
		until:    until,
		hasUntil: hasUntil,
		max:      max,
	}

	switch dec.Freq {
	case FreqDaily:
		gen.stride(func(k int) time.Time {
			return tmpl.StartsAt.AddDate(0, 0, k*dec.Interval)
		})
	case FreqMonthly:
		gen.stride(func(k int) time.Time {
			return tmpl.StartsAt.AddDate(0, k*dec.Interval, 0)
		})
	case FreqWeekly:
		gen.weekly(dec)
	}

	return gen.out
}

// generator accumulates occurrences while enforcing the count, until, and
// hard-cap bounds shared by every frequency.
type generator struct {
	tmpl     *models.CalendarEvent
	win      Window
	count    int
	until    time.Time
	hasUntil bool
	max      int
	out      []*models.CalendarEvent
	done     bool
}

// exhausted reports whether generation must stop entirely.
func (g *generator) exhausted() bool {
	if g.done {
		return true
	}
	if len(g.out) >= g.max {
		return true
	}
	if g.count > 0 && len(g.out) >= g.count {
		return true
	}
	return false
}

// consider applies the per-occurrence rules to a candidate start. A start
// past until ends generation; starts at or before the template start, or
// outside the window, are skipped without consuming the count.
func (g *generator) consider(start time.Time) {
	if g.hasUntil && start.After(g.until) {
		g.done = true
		return
	}
	if !start.After(g.tmpl.StartsAt) {
		return
	}
	if !g.win.contains(start) {
		return
	}
	g.out = append(g.out, occurrence(g.tmpl, start))
}

// stride walks evenly spaced candidates (daily and monthly frequencies).
func (g *generator) stride(at func(k int) time.Time) {
	for k := 1; !g.exhausted(); k++ {
		start := at(k)
		g.consider(start)
		// Starts are monotonic, so past the window end nothing else can emit.
		if start.After(g.win.End) {
			return
		}
	}
}

// weekly walks interval-spaced week blocks, emitting the requested weekdays
// in ascending SU..SA order within each block.
func (g *generator) weekly(dec Decoded) {
	var days []int
	seen := make(map[int]bool)
	for _, code := range dec.ByDay {
		if idx := weekdayIndex(code); idx >= 0 && !seen[idx] {
			seen[idx] = true
			days = append(days, idx)
		}
	}
	if len(days) == 0 {
		days = []int{int(g.tmpl.StartsAt.Weekday())}
	}
	sort.Ints(days)

	base := g.tmpl.StartsAt
	for block := 0; !g.exhausted(); block++ {
		blockStart := base.AddDate(0, 0, block*dec.Interval*7)
		for _, day := range days {
			if g.exhausted() {
				return
			}
			offset := day - int(base.Weekday())
			g.consider(blockStart.AddDate(0, 0, offset))
		}
		// Offsets within a block reach at most six days back, so once the
		// block start clears the window end by a week nothing else can emit.
		if blockStart.After(g.win.End.AddDate(0, 0, 6)) {
			return
		}
	}
}

// occurrence clones the template at a new start, preserving duration and
// tagging the clone with its deterministic instance identity.
func occurrence(tmpl *models.CalendarEvent, start time.Time) *models.CalendarEvent {
	occ := *tmpl
	occ.StartsAt = start
	if tmpl.EndsAt != nil {
		end := start.Add(tmpl.EndsAt.Sub(tmpl.StartsAt))
		occ.EndsAt = &end
	}
	occ.InstanceID = models.OccurrenceID{
		TemplateID: tmpl.ID,
		StartMilli: start.UnixMilli(),
	}.String()
	occ.RecurringInstance = true
	parent := tmpl.ID
	occ.ParentEventID = &parent
	return &occ
}
