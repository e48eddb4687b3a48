// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

// Package validator wraps go-playground/validator with JSON field naming and
// the custom validations used by the API request types.
package validator

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/veliq/timegrid/internal/models"
)

// Validator validates structs using `validate:` tags.
type Validator struct {
	v *validator.Validate
}

var (
	once     sync.Once
	instance *validator.Validate
)

// New returns a Validator backed by the shared validator instance.
func New() *Validator {
	once.Do(func() {
		instance = validator.New()

		// Report field names from json tags so error messages match payloads.
		instance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = instance.RegisterValidation("color_hex", func(fl validator.FieldLevel) bool {
			return models.ValidColorHex(fl.Field().String())
		})

		_ = instance.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
			fields := strings.Fields(fl.Field().String())
			return len(fields) == 5 || len(fields) == 6
		})
	})
	return &Validator{v: instance}
}

// Validate validates a struct using its `validate:` tags.
func (va *Validator) Validate(s any) error {
	return va.v.Struct(s)
}

// ValidateVar validates a single variable against a tag expression.
func (va *Validator) ValidateVar(field any, tag string) error {
	return va.v.Var(field, tag)
}

// ValidationErrors converts a validation error into a field → message map.
// Non-validation errors are reported under the "_error" key.
func (va *Validator) ValidationErrors(err error) map[string]string {
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_error": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = formatValidationError(fe)
	}
	return out
}

// formatValidationError renders a single field error as a short human-readable
// message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "color_hex":
		return "must be a #RRGGBB or #RRGGBBAA color"
	case "cron":
		return "must be a valid cron expression"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// ============================================================================
// Global convenience functions
// ============================================================================

// Validate validates a struct using the shared validator.
func Validate(s any) error {
	return New().Validate(s)
}

// ValidateVar validates a single variable using the shared validator.
func ValidateVar(field any, tag string) error {
	return New().ValidateVar(field, tag)
}

// GetValidationErrors converts a validation error into a field → message map.
func GetValidationErrors(err error) map[string]string {
	return New().ValidationErrors(err)
}
