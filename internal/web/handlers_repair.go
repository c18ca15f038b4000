package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvcure/internal/core"
	"github.com/JonMunkholm/csvcure/internal/logging"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// defaultJournalLimit is the number of journal entries returned when the
// request does not say.
const defaultJournalLimit = 100

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body", err)
	}
	return nil
}

// handleDiagnostics runs every detector over the table.
// Query: threshold (near-blank distinct value count, default 1).
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	threshold := parseIntParam(r, "threshold", core.DefaultBlankThreshold)

	diag, err := s.service.Diagnose(chi.URLParam(r, "id"), threshold)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

// handleExtract returns a subset of rows. The body is a core.ExtractRequest.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req core.ExtractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.Extract(chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRepair applies one core.RepairRequest. Batch operations answer 200
// even when some rows failed; the report lists them.
func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req core.RepairRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	report, err := s.service.Repair(r.Context(), id, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("repair applied",
		"table_id", id,
		"op", req.Op,
		"repaired", len(report.Repaired),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
	writeJSON(w, http.StatusOK, report)
}

// handleJournal lists the table's repair history, newest first.
// Query: limit (default 100).
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", defaultJournalLimit)

	entries, err := s.service.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
