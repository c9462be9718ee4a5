// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/auditrun/internal/log"
)

// EnvPrefix prefixes every environment key read by the loader.
const EnvPrefix = "AUDITRUN_"

// LookupEnv returns a non-empty environment value. Empty variables count as
// unset.
func LookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// fromEnv returns the parsed value of key, or cur when the variable is unset
// or does not parse. Applied keys are recorded on l.
func fromEnv[T any](l *Loader, key string, cur T, kind string, parse func(string) (T, error)) T {
	raw, ok := LookupEnv(key)
	if !ok {
		return cur
	}
	v, err := parse(raw)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", raw).
			Str("expected", kind).
			Msg("ignoring invalid environment value")
		return cur
	}
	l.applied = append(l.applied, key)
	return v
}

func parseString(s string) (string, error) { return s, nil }

func parseInt(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(strings.TrimSpace(s), 64) }

func parseDuration(s string) (time.Duration, error) { return time.ParseDuration(strings.TrimSpace(s)) }

// parseBool accepts true/false, 1/0 and yes/no in any case.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// parseFields splits an argv given as one whitespace separated string.
func parseFields(s string) ([]string, error) {
	f := strings.Fields(s)
	if len(f) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return f, nil
}

func (l *Loader) envString(key, cur string) string {
	return fromEnv(l, key, cur, "string", parseString)
}

func (l *Loader) envBool(key string, cur bool) bool {
	return fromEnv(l, key, cur, "boolean", parseBool)
}

func (l *Loader) envInt(key string, cur int) int {
	return fromEnv(l, key, cur, "integer", parseInt)
}

func (l *Loader) envDuration(key string, cur time.Duration) time.Duration {
	return fromEnv(l, key, cur, "duration", parseDuration)
}

func (l *Loader) envFloat(key string, cur float64) float64 {
	return fromEnv(l, key, cur, "float", parseFloat)
}

func (l *Loader) envFields(key string, cur []string) []string {
	return fromEnv(l, key, cur, "argument list", parseFields)
}
