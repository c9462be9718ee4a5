// SPDX-License-Identifier: MIT

package validate

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidLogLevel is returned by ParseLogLevel.
var ErrInvalidLogLevel = errors.New("invalid log level")

// logLevels are the names accepted in configuration, a subset of what
// zerolog understands.
var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// LogLevels lists the accepted log level names.
func LogLevels() []string {
	return append([]string(nil), logLevels...)
}

// ParseLogLevel maps a configured name, case-insensitively, to its zerolog
// level.
func ParseLogLevel(s string) (zerolog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, l := range logLevels {
		if l == name {
			return zerolog.ParseLevel(name)
		}
	}
	return zerolog.NoLevel, ErrInvalidLogLevel
}

// LogLevel checks that s is an accepted log level.
func (v *Validator) LogLevel(field, s string) {
	if _, err := ParseLogLevel(s); err != nil {
		v.Addf(field, s, "value must be one of %v, got %q", logLevels, s)
	}
}
