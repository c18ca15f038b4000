package web

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvcure/internal/core"
	"github.com/JonMunkholm/csvcure/internal/ingest"
)

// handleExport downloads the table as CSV (default) or XLSX.
// Query: format=csv|xlsx, header (bool, default true).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	header := true
	if v := r.URL.Query().Get("header"); v != "" {
		if header, err = strconv.ParseBool(v); err != nil {
			s.respondError(w, r, badRequest("header must be true or false", err))
			return
		}
	}

	format := ingest.Format(strings.ToLower(r.URL.Query().Get("format")))
	if format == "" {
		format = ingest.FormatCSV
	}

	// Buffer so a write error can still become an error response.
	var buf bytes.Buffer
	var contentType string
	switch format {
	case ingest.FormatCSV:
		contentType = "text/csv; charset=utf-8"
		err = ingest.WriteCSV(&buf, sess.Table, s.cfg.Ingest.DelimiterRune(), header)
	case ingest.FormatXLSX:
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = ingest.WriteXLSX(&buf, sess.Table, header)
	default:
		err = fmt.Errorf("%w: export format %q", core.ErrUnsupportedFile, format)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(sess.Name, format)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// exportName turns "orders.csv" into "orders_repaired.xlsx".
func exportName(name string, format ingest.Format) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "table"
	}
	return base + "_repaired." + string(format)
}
