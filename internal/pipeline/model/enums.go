// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"strings"
)

// Status is the client-visible lifecycle of a session and of each event.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// IsTerminal returns true if the status ends a session.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError:
		return true
	}
	return false
}

// Site identifies the storefront a pipeline run is scraped from. It selects
// the stage list builder; orchestration code never compares raw strings.
type Site string

const (
	SiteAmazon   Site = "amazon"
	SiteFlipkart Site = "flipkart"
	SiteBlinkit  Site = "blinkit"
	SiteZepto    Site = "zepto"
)

var knownSites = []Site{SiteAmazon, SiteFlipkart, SiteBlinkit, SiteZepto}

// Sites returns the recognized site identifiers in a stable order.
func Sites() []Site {
	return append([]Site(nil), knownSites...)
}

// ParseSite maps a case-insensitive identifier to a Site.
func ParseSite(raw string) (Site, error) {
	s := Site(strings.ToLower(strings.TrimSpace(raw)))
	for _, k := range knownSites {
		if s == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("unrecognized site %q", raw)
}

func (s Site) String() string { return string(s) }
