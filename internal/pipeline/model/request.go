// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"net/mail"
	"strings"
)

// StartRequest is the raw start-pipeline payload as received on the wire.
type StartRequest struct {
	Site             string `json:"site"`
	SubjectName      string `json:"subjectName"`
	OutputLocation   string `json:"outputLocation"`
	RecipientAddress string `json:"recipientAddress"`
}

// Request is a structurally validated start request.
type Request struct {
	Site             Site
	SubjectName      string
	OutputLocation   string
	RecipientAddress string
}

// Validate performs structural validation only: required fields, a
// recognized site and a syntactically valid single e-mail address. Folder
// existence and writability belong to the external tasks.
func (r StartRequest) Validate() (Request, error) {
	verr := &ValidationError{}

	site := strings.TrimSpace(r.Site)
	subject := strings.TrimSpace(r.SubjectName)
	out := strings.TrimSpace(r.OutputLocation)
	email := strings.TrimSpace(r.RecipientAddress)

	var parsed Site
	if site == "" {
		verr.add("site", "is required")
	} else if s, err := ParseSite(site); err != nil {
		verr.add("site", "is not a recognized site")
	} else {
		parsed = s
	}
	if subject == "" {
		verr.add("subjectName", "is required")
	}
	if out == "" {
		verr.add("outputLocation", "is required")
	}
	if email == "" {
		verr.add("recipientAddress", "is required")
	} else if !validEmail(email) {
		verr.add("recipientAddress", "is not a valid e-mail address")
	}

	if len(verr.Fields) > 0 {
		return Request{}, verr
	}
	return Request{
		Site:             parsed,
		SubjectName:      subject,
		OutputLocation:   out,
		RecipientAddress: email,
	}, nil
}

// validEmail accepts a bare addr-spec with a dotted domain. Display-name
// forms ("Jane <j@x.io>") and address lists are rejected.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 {
		return false
	}
	domain := s[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
