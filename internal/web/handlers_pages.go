package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvcure/internal/core"
	"github.com/JonMunkholm/csvcure/internal/logging"
	"github.com/JonMunkholm/csvcure/internal/web/templates"
)

// pagePreviewRows caps the rows rendered on the table page.
const pagePreviewRows = 500

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.IndexPage(s.service.List()).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render index", "error", err)
	}
}

// handleTablePage renders diagnostics and a row preview.
// Query: threshold, rows (preview size).
func (s *Server) handleTablePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.service.Get(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	diag := core.Diagnose(s.service.Inspector(), sess.Table,
		parseIntParam(r, "threshold", core.DefaultBlankThreshold))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = templates.TablePage(templates.TablePageParams{
		Info:        s.service.Info(sess),
		Diagnostics: diag,
		Table:       sess.Table,
		MaxRows:     parseIntParam(r, "rows", pagePreviewRows),
	}).Render(r.Context(), w)
	if err != nil {
		logging.FromContext(r.Context()).Error("render table page", "table_id", id, "error", err)
	}
}
