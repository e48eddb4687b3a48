// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

// Package ics owns the calendar wire format: it serializes events and busy
// windows into ICS documents and parses third-party ICS text back into busy
// windows.
package ics

import (
	"fmt"
	"strings"
	"time"

	"github.com/veliq/timegrid/internal/models"
	"github.com/veliq/timegrid/internal/recurrence"
)

const (
	prodID      = "-//timegrid//calendar export//EN"
	stampLayout = "20060102T150405Z"
)

// Meta carries optional calendar-level headers for an export.
type Meta struct {
	Name     string
	Timezone string
}

// Document serializes events and busy windows into a single ICS document.
// Lines are CRLF-terminated per RFC 5545. The now argument becomes every
// block's DTSTAMP so exports are reproducible in tests.
func Document(events []*models.CalendarEvent, busy []models.BusyWindow, meta Meta, now time.Time) string {
	var b strings.Builder

	line(&b, "BEGIN:VCALENDAR")
	line(&b, "VERSION:2.0")
	line(&b, "PRODID:"+prodID)
	line(&b, "CALSCALE:GREGORIAN")
	if meta.Name != "" {
		line(&b, "X-WR-CALNAME:"+Escape(meta.Name))
	}
	if meta.Timezone != "" {
		line(&b, "X-WR-TIMEZONE:"+Escape(meta.Timezone))
	}

	for _, event := range events {
		writeEvent(&b, event, now)
	}
	for i, window := range busy {
		writeBusy(&b, window, i, now)
	}

	line(&b, "END:VCALENDAR")
	return b.String()
}

func writeEvent(b *strings.Builder, event *models.CalendarEvent, now time.Time) {
	line(b, "BEGIN:VEVENT")
	line(b, "UID:"+eventUID(event))
	line(b, "DTSTAMP:"+now.UTC().Format(stampLayout))
	line(b, "DTSTART:"+event.StartsAt.UTC().Format(stampLayout))
	if event.EndsAt != nil {
		line(b, "DTEND:"+event.EndsAt.UTC().Format(stampLayout))
	}
	line(b, "SUMMARY:"+Escape(event.Title))

	if desc := eventDescription(event); desc != "" {
		line(b, "DESCRIPTION:"+Escape(desc))
	}
	if event.Location != "" {
		line(b, "LOCATION:"+Escape(event.Location))
	}
	if event.VideoConferenceLink != "" {
		line(b, "URL:"+event.VideoConferenceLink)
	}
	// Occurrences stand for a single instant; only the template carries the
	// rule forward to consumers.
	if event.IsTemplate() {
		line(b, "RRULE:"+event.Recurrence.Rule)
	}
	line(b, "STATUS:CONFIRMED")
	line(b, "END:VEVENT")
}

func writeBusy(b *strings.Builder, window models.BusyWindow, seq int, now time.Time) {
	line(b, "BEGIN:VFREEBUSY")
	line(b, fmt.Sprintf("UID:busy-%d-%d@timegrid", window.Start.UnixMilli(), seq))
	line(b, "DTSTAMP:"+now.UTC().Format(stampLayout))
	line(b, "DTSTART:"+window.Start.UTC().Format(stampLayout))
	line(b, "DTEND:"+window.End.UTC().Format(stampLayout))
	if window.Provider != "" {
		line(b, "X-BUSY-PROVIDER:"+Escape(window.Provider))
	}
	if window.Title != "" {
		line(b, "X-BUSY-SUMMARY:"+Escape(window.Title))
	}
	line(b, fmt.Sprintf("FREEBUSY;FBTYPE=BUSY:%s/%s",
		window.Start.UTC().Format(stampLayout),
		window.End.UTC().Format(stampLayout)))
	line(b, "END:VFREEBUSY")
}

// eventUID derives the VEVENT UID. Occurrences use their synthesized
// instance id so every emitted block stays unique.
func eventUID(event *models.CalendarEvent) string {
	if event.InstanceID != "" {
		return event.InstanceID + "@timegrid"
	}
	return event.ID.String() + "@timegrid"
}

// eventDescription appends a human-readable recurrence summary to the
// event's own description when the event repeats.
func eventDescription(event *models.CalendarEvent) string {
	desc := event.Description
	if event.Recurrence == nil || event.Recurrence.Rule == "" {
		return desc
	}
	dec := recurrence.Decode(event.Recurrence.Rule)
	if dec.Freq == "" {
		return desc
	}
	summary := "Repeats " + dec.Summary()
	if desc == "" {
		return summary
	}
	return desc + "\n" + summary
}

func line(b *strings.Builder, s string) {
	b.WriteString(s)
	b.WriteString("\r\n")
}

// Escape applies the ICS text escaping rules to free-text values: backslash,
// newline, comma, and semicolon.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			// bare CR has no meaning inside a value
		case ',':
			b.WriteString(`\,`)
		case ';':
			b.WriteString(`\;`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Unescape reverses Escape.
func Unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if !escaped {
			if r == '\\' {
				escaped = true
				continue
			}
			b.WriteRune(r)
			continue
		}
		switch r {
		case 'n', 'N':
			b.WriteRune('\n')
		default:
			b.WriteRune(r)
		}
		escaped = false
	}
	return b.String()
}
