package http

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/x-stp/greenlink/internal/cache"
	"github.com/x-stp/greenlink/internal/core"
	"github.com/x-stp/greenlink/internal/greencheck"
	"github.com/x-stp/greenlink/internal/matcher"
)

type textRequest struct {
	Text string `json:"text"`
}

type classifyRequest struct {
	Domains []string `json:"domains"`
}

type extractResponse struct {
	Matches []matcher.Match `json:"matches"`
	Domains []string        `json:"domains"`
}

type classifyResponse struct {
	ScanID  string                       `json:"scan_id"`
	Results map[string]greencheck.Result `json:"results"`
}

type inspectResponse struct {
	ScanID   string                       `json:"scan_id"`
	Matches  []matcher.Match              `json:"matches"`
	Results  map[string]greencheck.Result `json:"results"`
	Findings []core.Finding               `json:"findings"`
}

type documentResponse struct {
	ID         string           `json:"id"`
	Changed    bool             `json:"changed"`
	Inspection *inspectResponse `json:"inspection,omitempty"`
}

type cacheResponse struct {
	Stats   cache.Stats            `json:"stats"`
	Entries map[string]cache.Entry `json:"entries"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (h *Handler) extract(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	matches := matcher.Extract(req.Text)
	if matches == nil {
		matches = []matcher.Match{}
	}
	writeJSON(w, http.StatusOK, extractResponse{Matches: matches, Domains: matcher.Domains(matches)})
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	results, err := h.inspector.Classify(r.Context(), req.Domains)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{ScanID: uuid.NewString(), Results: results})
}

func (h *Handler) inspect(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	resp, err := h.runInspection(r, req.Text)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) runInspection(r *http.Request, text string) (*inspectResponse, error) {
	insp, err := h.inspector.Inspect(r.Context(), text)
	if err != nil {
		return nil, err
	}
	return &inspectResponse{
		ScanID:   uuid.NewString(),
		Matches:  insp.Matches,
		Results:  insp.Results,
		Findings: insp.Findings(),
	}, nil
}

func (h *Handler) putDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "document id is required")
		return
	}
	var req textRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if !h.tracker.Changed(id, req.Text) {
		writeJSON(w, http.StatusOK, documentResponse{ID: id, Changed: false})
		return
	}
	resp, err := h.runInspection(r, req.Text)
	if err != nil {
		// Let the client retry the same text.
		h.tracker.Forget(id)
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{ID: id, Changed: true, Inspection: resp})
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	h.tracker.Forget(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getCache(w http.ResponseWriter, _ *http.Request) {
	c := h.inspector.Cache()
	writeJSON(w, http.StatusOK, cacheResponse{Stats: c.Stats(), Entries: c.Snapshot()})
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	err := h.inspector.ClearCache(r.Context())
	// Open documents must be re-inspected against the empty cache.
	h.tracker.Reset()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, core.ErrNoDomains):
		return http.StatusBadRequest, "NO_DOMAINS", err.Error()
	case errors.Is(err, core.ErrWorkerShutdown):
		return http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is shutting down"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
