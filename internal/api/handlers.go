// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/auditrun/internal/api/problem"
	"github.com/ManuGH/auditrun/internal/log"
	"github.com/ManuGH/auditrun/internal/pipeline/model"
	"github.com/ManuGH/auditrun/internal/pipeline/session"
	"github.com/ManuGH/auditrun/internal/pipeline/stages"
)

const maxStartBodyBytes = 64 << 10

type startResponse struct {
	SessionID string `json:"sessionId"`
}

type statusResponse struct {
	SessionID string `json:"sessionId"`
	model.Event
}

type cancelResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type siteStep struct {
	Step    int    `json:"step"`
	Through int    `json:"through"`
	Label   string `json:"label"`
	Task    string `json:"task"`
}

type siteInfo struct {
	Site  model.Site `json:"site"`
	Steps []siteStep `json:"steps"`
}

type sitesResponse struct {
	Total int        `json:"total"`
	Sites []siteInfo `json:"sites"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStartRequest(w, r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "pipeline/invalid_body", "Bad Request", "INVALID_BODY", err.Error(), nil)
		return
	}

	id, err := s.sessions.Start(r.Context(), req)
	if err != nil {
		var verr *model.ValidationError
		switch {
		case errors.As(err, &verr):
			writeProblem(w, r, http.StatusBadRequest, "pipeline/validation", "Validation Failed", "VALIDATION_FAILED",
				verr.Error(), map[string]any{"fields": verr.Fields})
		case errors.Is(err, session.ErrShuttingDown):
			writeProblem(w, r, http.StatusServiceUnavailable, "system/shutting_down", "Service Unavailable",
				"SHUTTING_DOWN", err.Error(), nil)
		default:
			logger := log.WithComponentFromContext(r.Context(), "api")
			logger.Error().Err(err).Msg("start pipeline failed")
			writeProblem(w, r, http.StatusInternalServerError, "system/internal", "Internal Server Error",
				"INTERNAL_ERROR", "could not start pipeline", nil)
		}
		return
	}

	w.Header().Set("Location", "/api/v1/pipelines/"+id)
	writeJSON(w, http.StatusAccepted, startResponse{SessionID: id})
}

// decodeStartRequest accepts a JSON body or an urlencoded/multipart form.
func decodeStartRequest(w http.ResponseWriter, r *http.Request) (model.StartRequest, error) {
	var req model.StartRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxStartBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxStartBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, fmt.Errorf("parse form: %w", err)
		}
		req.Site = r.FormValue("site")
		req.SubjectName = r.FormValue("subjectName")
		req.OutputLocation = r.FormValue("outputLocation")
		req.RecipientAddress = r.FormValue("recipientAddress")
		return req, nil
	default:
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("decode body: %w", err)
		}
		return req, nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	ev, ok := s.events.Last(id)
	if !ok {
		writeProblem(w, r, http.StatusNotFound, "pipeline/not_found", "Not Found", "SESSION_NOT_FOUND",
			"unknown or expired session", nil)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{SessionID: id, Event: ev})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.sessions.Cancel(id) {
		writeProblem(w, r, http.StatusNotFound, "pipeline/not_found", "Not Found", "SESSION_NOT_RUNNING",
			"session is unknown or already finished", nil)
		return
	}
	writeJSON(w, http.StatusAccepted, cancelResponse{SessionID: id, Status: "cancel_requested"})
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	resp := sitesResponse{Total: stages.Total}
	for _, site := range model.Sites() {
		plan, err := stages.Build(model.Request{
			Site:             site,
			SubjectName:      "<subject>",
			OutputLocation:   "<output>",
			RecipientAddress: "<recipient>",
		}, s.cfg.Stages)
		if err != nil {
			continue
		}
		info := siteInfo{Site: site}
		for _, st := range plan.Steps {
			info.Steps = append(info.Steps, siteStep{
				Step:    st.Index,
				Through: st.Through,
				Label:   st.Message(),
				Task:    st.Invocation.Task,
			})
		}
		resp.Sites = append(resp.Sites, info)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Error().Err(err).Int("status", status).Msg("failed to encode response")
	}
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string, extra map[string]any) {
	problem.Write(w, r, status, problemType, title, code, detail, extra)
}
