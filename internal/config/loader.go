// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownConfigField marks a file key that has no configuration field.
	ErrUnknownConfigField = errors.New("unknown config field")
	// ErrUnsupportedFormat is returned for config files that are not YAML.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// Loader builds an AppConfig from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
type Loader struct {
	path    string
	version string
	applied []string
}

// NewLoader returns a Loader for the file at path; an empty path skips the
// file layer.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// AppliedEnv lists the environment variables that overrode a value during
// the last Load, sorted.
func (l *Loader) AppliedEnv() []string {
	out := slices.Clone(l.applied)
	slices.Sort(out)
	return slices.Compact(out)
}

// Load returns the validated configuration.
func (l *Loader) Load() (AppConfig, error) {
	l.applied = l.applied[:0]
	cfg := Defaults()

	if l.path != "" {
		fc, err := readFile(l.path)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := l.mergeFileConfig(&cfg, fc); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}
	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	// Scripts are resolved relative to the daemon's start directory, not to
	// each task's working directory.
	if cfg.Tasks.ScriptsDir != "" {
		if abs, err := filepath.Abs(cfg.Tasks.ScriptsDir); err == nil {
			cfg.Tasks.ScriptsDir = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("%w: %q (want .yaml or .yml)", ErrUnsupportedFormat, ext)
	}
	// #nosec G304 -- the path comes from the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseFile(data)
}

// parseFile decodes exactly one YAML document. Keys without a matching field
// are rejected.
func parseFile(data []byte) (*FileConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var fc FileConfig
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return &fc, nil
		}
		var te *yaml.TypeError
		if errors.As(err, &te) && unknownField(te) {
			return nil, fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("config file must hold a single YAML document")
	}
	return &fc, nil
}

// unknownField reports whether te came from KnownFields.
func unknownField(te *yaml.TypeError) bool {
	for _, msg := range te.Errors {
		if strings.Contains(msg, "not found in type") {
			return true
		}
	}
	return false
}
