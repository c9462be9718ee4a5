// SPDX-License-Identifier: MIT

// Package validate collects field-level problems in a configuration so they
// can be reported together instead of one at a time.
package validate

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Error is one offending field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ValidationError is every Error found in one pass.
type ValidationError struct {
	errors []Error
}

// Errors returns the individual problems in the order they were found.
func (e ValidationError) Errors() []Error {
	return e.errors
}

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validator accumulates problems. The zero value is ready to use.
type Validator struct {
	errs []Error
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{}
}

// Addf records a problem for field.
func (v *Validator) Addf(field string, value any, format string, args ...any) {
	v.errs = append(v.errs, Error{Field: field, Value: value, Message: fmt.Sprintf(format, args...)})
}

// Len is the number of problems recorded so far.
func (v *Validator) Len() int { return len(v.errs) }

// Err returns nil when nothing was recorded, otherwise a ValidationError
// holding a copy of the problems.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errs)}
}

// ListenAddr checks a host:port listen address; the host may be empty.
func (v *Validator) ListenAddr(field, addr string) {
	if addr == "" {
		v.Addf(field, addr, "listen address cannot be empty")
		return
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.Addf(field, addr, "invalid listen address: %v", err)
		return
	}
	if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		v.Addf(field, addr, "invalid port %q", port)
	}
}

// Between checks lo <= value <= hi.
func Between[T cmp.Ordered](v *Validator, field string, value, lo, hi T) {
	if value < lo || value > hi {
		v.Addf(field, value, "value must be between %v and %v, got %v", lo, hi, value)
	}
}

// Range checks an int against an inclusive range.
func (v *Validator) Range(field string, value, lo, hi int) {
	Between(v, field, value, lo, hi)
}

// Fraction checks a ratio in [0, 1].
func (v *Validator) Fraction(field string, f float64) {
	Between(v, field, f, 0, 1)
}

// Positive checks value > 0.
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.Addf(field, value, "value must be positive, got %d", value)
	}
}

// NonNegative checks value >= 0.
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.Addf(field, value, "value cannot be negative, got %d", value)
	}
}

// NonNegativeDuration checks d >= 0; zero usually means "disabled".
func (v *Validator) NonNegativeDuration(field string, d time.Duration) {
	if d < 0 {
		v.Addf(field, d, "duration cannot be negative, got %s", d)
	}
}

// NotEmpty rejects empty and whitespace-only strings.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Addf(field, value, "value cannot be empty")
	}
}

// OneOf checks value against a closed set.
func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.Addf(field, value, "value must be one of %v, got %q", allowed, value)
	}
}

// Argv checks a command line: at least one element, and a program name that
// is not blank.
func (v *Validator) Argv(field string, argv []string) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		v.Addf(field, argv, "command cannot be empty")
	}
}

// Directory checks that path names an existing directory.
func (v *Validator) Directory(field, path string) {
	if path == "" {
		v.Addf(field, path, "directory path cannot be empty")
		return
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		v.Addf(field, path, "directory does not exist")
	case err != nil:
		v.Addf(field, path, "cannot access directory: %v", err)
	case !info.IsDir():
		v.Addf(field, path, "path is not a directory")
	}
}
