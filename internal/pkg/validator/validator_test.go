// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

package validator

import (
	"testing"
)

// ============================================================================
// New
// ============================================================================

func TestNew(t *testing.T) {
	v := New()
	if v == nil {
		t.Fatal("New() returned nil")
	}
	if v.v == nil {
		t.Fatal("New() returned Validator with nil inner validator")
	}
}

func TestNew_Singleton(t *testing.T) {
	v1 := New()
	v2 := New()
	// Both should use the same underlying validator (sync.Once)
	if v1.v != v2.v {
		t.Error("New() should return Validators sharing the same underlying instance")
	}
}

// ============================================================================
// Validate struct
// ============================================================================

type testStruct struct {
	Title      string `json:"title" validate:"required,min=1,max=255"`
	EventType  string `json:"event_type" validate:"required,oneof=meeting task reminder"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=private shared public"`
}

func TestValidate_ValidStruct(t *testing.T) {
	v := New()
	s := testStruct{Title: "Standup", EventType: "meeting", Visibility: "private"}

	if err := v.Validate(s); err != nil {
		t.Errorf("Validate() should pass for valid struct, got: %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	v := New()
	s := testStruct{} // All fields empty

	if err := v.Validate(s); err == nil {
		t.Error("Validate() should fail for empty required fields")
	}
}

func TestValidate_InvalidOneOf(t *testing.T) {
	v := New()
	s := testStruct{Title: "Standup", EventType: "party"}

	if err := v.Validate(s); err == nil {
		t.Error("Validate() should fail for event type outside oneof")
	}
}

// ============================================================================
// ValidateVar
// ============================================================================

func TestValidateVar_Required(t *testing.T) {
	v := New()
	if err := v.ValidateVar("", "required"); err == nil {
		t.Error("ValidateVar should fail for empty required field")
	}
	if err := v.ValidateVar("week", "required,oneof=day week month"); err != nil {
		t.Errorf("ValidateVar should pass for valid value: %v", err)
	}
}

// ============================================================================
// ValidationErrors
// ============================================================================

func TestValidationErrors_ValidInput(t *testing.T) {
	v := New()
	errs := v.ValidationErrors(nil)
	if errs != nil {
		t.Error("ValidationErrors(nil) should return nil")
	}
}

func TestValidationErrors_InvalidInput(t *testing.T) {
	v := New()
	s := testStruct{} // All empty
	err := v.Validate(s)
	if err == nil {
		t.Fatal("expected validation error")
	}

	errs := v.ValidationErrors(err)
	if errs == nil {
		t.Fatal("ValidationErrors should return field errors")
	}

	if _, ok := errs["title"]; !ok {
		t.Error("should have error for 'title' field")
	}
	if _, ok := errs["event_type"]; !ok {
		t.Error("should have error for 'event_type' field")
	}
}

func TestValidationErrors_NonValidationError(t *testing.T) {
	v := New()
	errs := v.ValidationErrors(errSample)
	if errs == nil {
		t.Fatal("ValidationErrors should return map for non-validation errors")
	}
	if _, ok := errs["_error"]; !ok {
		t.Error("should have _error key for non-validation errors")
	}
}

// ============================================================================
// Custom validations: color_hex
// ============================================================================

type colorStruct struct {
	Color string `json:"color" validate:"required,color_hex"`
}

func TestCustomValidation_ColorHex(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"rgb", "#3366FF", false},
		{"rgba", "#3366FFcc", false},
		{"lowercase", "#aabbcc", false},
		{"missing hash", "3366FF", true},
		{"too short", "#36F", true},
		{"non-hex chars", "#GGHHII", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := colorStruct{Color: tt.input}
			err := v.Validate(s)
			if (err != nil) != tt.wantErr {
				t.Errorf("color %q: error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

// ============================================================================
// Custom validations: cron
// ============================================================================

type cronStruct struct {
	Cron string `json:"cron" validate:"required,cron"`
}

func TestCustomValidation_Cron(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"5 fields", "0 * * * *", false},
		{"6 fields", "0 0 * * * *", false},
		{"daily", "0 0 * * *", false},
		{"too few fields", "* *", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cronStruct{Cron: tt.input}
			err := v.Validate(s)
			if (err != nil) != tt.wantErr {
				t.Errorf("cron %q: error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

// ============================================================================
// Global convenience functions
// ============================================================================

func TestGlobalValidate(t *testing.T) {
	s := testStruct{Title: "Standup", EventType: "meeting"}
	if err := Validate(s); err != nil {
		t.Errorf("global Validate() should pass: %v", err)
	}
}

func TestGetValidationErrors(t *testing.T) {
	s := testStruct{} // all empty
	err := Validate(s)
	if err == nil {
		t.Fatal("expected error")
	}
	errs := GetValidationErrors(err)
	if errs == nil {
		t.Fatal("GetValidationErrors should return errors")
	}
	if msg, ok := errs["title"]; ok {
		if msg != "is required" {
			t.Errorf("title error = %q, want 'is required'", msg)
		}
	}
}

// sample error for testing
var errSample = &sampleError{}

type sampleError struct{}

func (e *sampleError) Error() string { return "sample error" }
