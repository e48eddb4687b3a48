// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package recurrence

import (
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		input   Input
		want    string
		wantErr bool
	}{
		{
			name:  "plain daily",
			input: Input{Frequency: "DAILY"},
			want:  "FREQ=DAILY",
		},
		{
			name:  "lowercase frequency normalized",
			input: Input{Frequency: "weekly"},
			want:  "FREQ=WEEKLY",
		},
		{
			name:  "interval of one omitted",
			input: Input{Frequency: "DAILY", Interval: 1},
			want:  "FREQ=DAILY",
		},
		{
			name:  "interval above one emitted",
			input: Input{Frequency: "WEEKLY", Interval: 2},
			want:  "FREQ=WEEKLY;INTERVAL=2",
		},
		{
			name:  "count before byday before until",
			input: Input{Frequency: "WEEKLY", ByWeekday: []string{"MO", "WE"}, Count: intPtr(4)},
			want:  "FREQ=WEEKLY;COUNT=4;BYDAY=MO,WE",
		},
		{
			name:  "weekdays sorted and deduplicated",
			input: Input{Frequency: "WEEKLY", ByWeekday: []string{"FR", "mo", "FR", "su"}},
			want:  "FREQ=WEEKLY;BYDAY=SU,MO,FR",
		},
		{
			name:  "invalid weekday codes dropped",
			input: Input{Frequency: "WEEKLY", ByWeekday: []string{"MO", "XX"}},
			want:  "FREQ=WEEKLY;BYDAY=MO",
		},
		{
			name:  "until rendered as utc stamp",
			input: Input{Frequency: "DAILY", Until: "2025-06-10T09:30:00Z"},
			want:  "FREQ=DAILY;UNTIL=20250610T093000Z",
		},
		{
			name:  "until in offset zone converted",
			input: Input{Frequency: "DAILY", Until: "2025-06-10T09:30:00+02:00"},
			want:  "FREQ=DAILY;UNTIL=20250610T073000Z",
		},
		{
			name:    "unknown frequency rejected",
			input:   Input{Frequency: "HOURLY"},
			wantErr: true,
		},
		{
			name:    "empty frequency rejected",
			input:   Input{},
			wantErr: true,
		},
		{
			name:    "negative interval rejected",
			input:   Input{Frequency: "DAILY", Interval: -1},
			wantErr: true,
		},
		{
			name:    "zero count rejected",
			input:   Input{Frequency: "DAILY", Count: intPtr(0)},
			wantErr: true,
		},
		{
			name:    "all weekdays invalid rejected",
			input:   Input{Frequency: "WEEKLY", ByWeekday: []string{"XX", "YY"}},
			wantErr: true,
		},
		{
			name:    "garbage until rejected",
			input:   Input{Frequency: "DAILY", Until: "not-a-time"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := Compile(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Compile(%+v) expected error, got %q", tt.input, compiled.Rule)
				}
				return
			}
			if err != nil {
				t.Fatalf("Compile(%+v) unexpected error: %v", tt.input, err)
			}
			if compiled.Rule != tt.want {
				t.Errorf("Compile(%+v).Rule = %q, want %q", tt.input, compiled.Rule, tt.want)
			}
		})
	}
}

func TestCompileBounds(t *testing.T) {
	compiled, err := Compile(Input{
		Frequency: "WEEKLY",
		Count:     intPtr(4),
		Until:     "2025-02-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if compiled.Count == nil || *compiled.Count != 4 {
		t.Errorf("Count = %v, want 4", compiled.Count)
	}
	if compiled.Until == nil || !compiled.Until.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Until = %v, want 2025-02-01T00:00:00Z", compiled.Until)
	}
}

func TestCompileSummary(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		want  string
	}{
		{
			name:  "simple daily",
			input: Input{Frequency: "DAILY"},
			want:  "every day",
		},
		{
			name:  "biweekly with days and until",
			input: Input{Frequency: "WEEKLY", Interval: 2, ByWeekday: []string{"MO", "WE"}, Until: "2025-01-01T00:00:00Z"},
			want:  "every 2 weeks on MO, WE until 2025-01-01",
		},
		{
			name:  "monthly with count",
			input: Input{Frequency: "MONTHLY", Count: intPtr(6)},
			want:  "every month for 6 occurrences",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := Compile(tt.input)
			if err != nil {
				t.Fatalf("Compile returned error: %v", err)
			}
			if compiled.Summary != tt.want {
				t.Errorf("Summary = %q, want %q", compiled.Summary, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	d := Decode("FREQ=WEEKLY;INTERVAL=2;COUNT=4;BYDAY=MO,WE;UNTIL=20250201T000000Z")
	if d.Freq != FreqWeekly {
		t.Errorf("Freq = %q, want WEEKLY", d.Freq)
	}
	if d.Interval != 2 {
		t.Errorf("Interval = %d, want 2", d.Interval)
	}
	if !d.HasCount || d.Count != 4 {
		t.Errorf("Count = %d (has=%v), want 4", d.Count, d.HasCount)
	}
	if len(d.ByDay) != 2 || d.ByDay[0] != "MO" || d.ByDay[1] != "WE" {
		t.Errorf("ByDay = %v, want [MO WE]", d.ByDay)
	}
	if !d.HasUntil || !d.Until.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Until = %v (has=%v), want 2025-02-01", d.Until, d.HasUntil)
	}
}

func TestDecodeLenient(t *testing.T) {
	tests := []struct {
		name string
		rule string
		want Decoded
	}{
		{
			name: "empty string",
			rule: "",
			want: Decoded{Interval: 1},
		},
		{
			name: "unknown keys ignored",
			rule: "FREQ=DAILY;WKST=MO;BYMONTH=3",
			want: Decoded{Freq: FreqDaily, Interval: 1},
		},
		{
			name: "malformed pairs ignored",
			rule: "FREQ=DAILY;;INTERVAL;=5",
			want: Decoded{Freq: FreqDaily, Interval: 1},
		},
		{
			name: "bad interval keeps default",
			rule: "FREQ=DAILY;INTERVAL=zero",
			want: Decoded{Freq: FreqDaily, Interval: 1},
		},
		{
			name: "negative count ignored",
			rule: "FREQ=DAILY;COUNT=-3",
			want: Decoded{Freq: FreqDaily, Interval: 1},
		},
		{
			name: "unsupported frequency left empty",
			rule: "FREQ=YEARLY",
			want: Decoded{Interval: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.rule)
			if got.Freq != tt.want.Freq || got.Interval != tt.want.Interval ||
				got.HasCount != tt.want.HasCount || got.HasUntil != tt.want.HasUntil ||
				len(got.ByDay) != len(tt.want.ByDay) {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.rule, got, tt.want)
			}
		})
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	rules := []string{
		"FREQ=DAILY",
		"FREQ=WEEKLY;INTERVAL=2",
		"FREQ=WEEKLY;COUNT=4;BYDAY=MO,WE",
		"FREQ=MONTHLY;INTERVAL=3;UNTIL=20250601T000000Z",
		"FREQ=WEEKLY;INTERVAL=2;COUNT=10;BYDAY=SU,MO,FR;UNTIL=20251231T235959Z",
	}

	for _, rule := range rules {
		t.Run(rule, func(t *testing.T) {
			if got := Decode(rule).Encode(); got != rule {
				t.Errorf("Decode(%q).Encode() = %q", rule, got)
			}
		})
	}
}
