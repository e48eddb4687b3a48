// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

// Package recurrence compiles structured recurrence requests into canonical
// rule strings, decodes them back, and expands templates into concrete
// occurrences within a time window.
package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/veliq/timegrid/internal/pkg/errors"
)

// Supported frequencies.
const (
	FreqDaily   = "DAILY"
	FreqWeekly  = "WEEKLY"
	FreqMonthly = "MONTHLY"
)

// untilLayout is the UTC stamp used for UNTIL in canonical rule strings.
const untilLayout = "20060102T150405Z"

// weekdayCodes maps time.Weekday indices (Sunday=0) to two-letter codes.
var weekdayCodes = [7]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// weekdayIndex resolves a two-letter weekday code to its index (SU=0..SA=6).
// Returns -1 for unknown codes.
func weekdayIndex(code string) int {
	for i, c := range weekdayCodes {
		if c == code {
			return i
		}
	}
	return -1
}

// Input is a structured recurrence request as received from the API layer.
type Input struct {
	Frequency string   `json:"frequency"`
	Interval  int      `json:"interval,omitempty"`
	ByWeekday []string `json:"by_weekday,omitempty"`
	Until     string   `json:"until,omitempty"`
	Count     *int     `json:"count,omitempty"`
}

// Compiled is the result of compiling an Input: the canonical rule string,
// the parsed bounds, and a human-readable summary.
type Compiled struct {
	Rule    string
	Until   *time.Time
	Count   *int
	Summary string
}

// Compile validates a recurrence request and produces its canonical rule
// string. Invalid frequency, non-positive count, unparseable until, or a
// weekday list that resolves to nothing all fail validation.
func Compile(in Input) (*Compiled, error) {
	freq := strings.ToUpper(strings.TrimSpace(in.Frequency))
	switch freq {
	case FreqDaily, FreqWeekly, FreqMonthly:
	default:
		return nil, errors.NewValidationError(
			"recurrence frequency must be one of DAILY, WEEKLY, MONTHLY")
	}

	interval := in.Interval
	if interval < 0 {
		return nil, errors.NewValidationError("recurrence interval must be positive")
	}
	if interval == 0 {
		interval = 1
	}

	var byDay []int
	if len(in.ByWeekday) > 0 {
		seen := make(map[int]bool)
		for _, code := range in.ByWeekday {
			idx := weekdayIndex(strings.ToUpper(strings.TrimSpace(code)))
			if idx < 0 || seen[idx] {
				continue // invalid codes are dropped
			}
			seen[idx] = true
			byDay = append(byDay, idx)
		}
		if len(byDay) == 0 {
			return nil, errors.NewValidationError(
				"recurrence weekdays contain no valid codes (use SU..SA)")
		}
		sort.Ints(byDay)
	}

	var count *int
	if in.Count != nil {
		if *in.Count <= 0 {
			return nil, errors.NewValidationError("recurrence count must be a positive integer")
		}
		c := *in.Count
		count = &c
	}

	var until *time.Time
	if in.Until != "" {
		t, err := parseInstant(in.Until)
		if err != nil {
			return nil, errors.NewValidationError(
				"recurrence until must be a valid timestamp")
		}
		u := t.UTC()
		until = &u
	}

	rule := encodeRule(freq, interval, byDay, count, until)

	return &Compiled{
		Rule:    rule,
		Until:   until,
		Count:   count,
		Summary: summarize(freq, interval, byDay, count, until),
	}, nil
}

// encodeRule builds the canonical rule string. Field order is fixed:
// FREQ, INTERVAL, COUNT, BYDAY, UNTIL.
func encodeRule(freq string, interval int, byDay []int, count *int, until *time.Time) string {
	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(freq)
	if interval > 1 {
		fmt.Fprintf(&b, ";INTERVAL=%d", interval)
	}
	if count != nil {
		fmt.Fprintf(&b, ";COUNT=%d", *count)
	}
	if len(byDay) > 0 {
		codes := make([]string, len(byDay))
		for i, idx := range byDay {
			codes[i] = weekdayCodes[idx]
		}
		b.WriteString(";BYDAY=")
		b.WriteString(strings.Join(codes, ","))
	}
	if until != nil {
		b.WriteString(";UNTIL=")
		b.WriteString(until.UTC().Format(untilLayout))
	}
	return b.String()
}

// summarize renders a human-readable description such as
// "every 2 weeks on MO, WE until 2025-01-01".
func summarize(freq string, interval int, byDay []int, count *int, until *time.Time) string {
	var unit string
	switch freq {
	case FreqDaily:
		unit = "day"
	case FreqWeekly:
		unit = "week"
	case FreqMonthly:
		unit = "month"
	}

	var b strings.Builder
	if interval > 1 {
		fmt.Fprintf(&b, "every %d %ss", interval, unit)
	} else {
		fmt.Fprintf(&b, "every %s", unit)
	}

	if len(byDay) > 0 {
		codes := make([]string, len(byDay))
		for i, idx := range byDay {
			codes[i] = weekdayCodes[idx]
		}
		b.WriteString(" on ")
		b.WriteString(strings.Join(codes, ", "))
	}

	if count != nil {
		fmt.Fprintf(&b, " for %d occurrences", *count)
	}
	if until != nil {
		fmt.Fprintf(&b, " until %s", until.UTC().Format("2006-01-02"))
	}
	return b.String()
}

// Decoded is the lenient decode of a rule string. Unknown keys and malformed
// pairs are ignored; the encoder is the source of truth for well-formed rules.
type Decoded struct {
	Freq     string
	Interval int
	ByDay    []string
	Count    int
	HasCount bool
	Until    time.Time
	HasUntil bool
}

// Decode splits a rule string into its components. The parser is lenient:
// anything it does not understand is dropped rather than rejected.
func Decode(rule string) Decoded {
	d := Decoded{Interval: 1}

	for _, pair := range strings.Split(rule, ";") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "FREQ":
			freq := strings.ToUpper(value)
			switch freq {
			case FreqDaily, FreqWeekly, FreqMonthly:
				d.Freq = freq
			}
		case "INTERVAL":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				d.Interval = n
			}
		case "COUNT":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				d.Count = n
				d.HasCount = true
			}
		case "BYDAY":
			for _, code := range strings.Split(value, ",") {
				code = strings.ToUpper(strings.TrimSpace(code))
				if weekdayIndex(code) >= 0 {
					d.ByDay = append(d.ByDay, code)
				}
			}
		case "UNTIL":
			if t, err := parseInstant(value); err == nil {
				d.Until = t.UTC()
				d.HasUntil = true
			}
		}
	}
	return d
}

// Summary renders the decoded rule as the same human-readable description the
// compiler produces.
func (d Decoded) Summary() string {
	byDay, count, until := d.normalized()
	return summarize(d.Freq, d.Interval, byDay, count, until)
}

// Encode re-serializes a decoded rule into canonical form. Decode followed by
// Encode is idempotent for any rule the compiler produced.
func (d Decoded) Encode() string {
	byDay, count, until := d.normalized()
	return encodeRule(d.Freq, d.Interval, byDay, count, until)
}

func (d Decoded) normalized() ([]int, *int, *time.Time) {
	var byDay []int
	seen := make(map[int]bool)
	for _, code := range d.ByDay {
		if idx := weekdayIndex(code); idx >= 0 && !seen[idx] {
			seen[idx] = true
			byDay = append(byDay, idx)
		}
	}
	sort.Ints(byDay)

	var count *int
	if d.HasCount {
		c := d.Count
		count = &c
	}
	var until *time.Time
	if d.HasUntil {
		u := d.Until
		until = &u
	}
	return byDay, count, until
}

// parseInstant accepts RFC 3339 timestamps and the compact UNTIL stamp forms,
// treating values without an explicit zone as UTC.
func parseInstant(v string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339,
		untilLayout,
		"20060102T150405",
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}
