package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvcure/internal/core"
	"github.com/JonMunkholm/csvcure/internal/ingest"
	"github.com/JonMunkholm/csvcure/internal/logging"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 32 << 20

// handleUpload loads a multipart "file" into a new table session.
//
// Query or form options: header (bool), encoding, delimiter, columns
// (comma separated override).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Ingest.MaxFileSize
	// room for the multipart envelope
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize))
			return
		}
		s.respondError(w, r, badRequest("invalid multipart form", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, badRequest("no file provided", err))
		return
	}
	defer file.Close()

	format, err := ingest.FormatFromName(header.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	opts, err := s.ingestOptions(r, header.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sess, err := s.service.Open(r.Context(), header.Filename, func(ctx context.Context) (*core.Table, error) {
		return ingest.Load(ctx, format, file, opts)
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("table uploaded",
		"table_id", sess.ID,
		"file", header.Filename,
		"format", format,
		"rows", sess.Table.Len(),
	)
	writeJSON(w, http.StatusCreated, s.service.Info(sess))
}

// ingestOptions reads load options from the request, falling back to the
// file name and then the configured defaults.
func (s *Server) ingestOptions(r *http.Request, filename string) (ingest.Options, error) {
	opts := ingest.Options{
		Delimiter: ingest.DelimiterFor(filename, s.cfg.Ingest.DelimiterRune()),
		Header:    s.cfg.Ingest.Header,
		MaxBytes:  s.cfg.Ingest.MaxFileSize,
	}

	if v := r.FormValue("header"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, badRequest("header must be true or false", err)
		}
		opts.Header = b
	}

	encName := s.cfg.Ingest.Encoding
	if v := r.FormValue("encoding"); v != "" {
		encName = v
	}
	enc, err := ingest.ParseEncoding(encName)
	if err != nil {
		return opts, badRequest("invalid encoding", err)
	}
	opts.Encoding = enc

	if v := r.FormValue("delimiter"); v != "" {
		runes := []rune(v)
		if v == `\t` {
			runes = []rune{'\t'}
		}
		if len(runes) != 1 {
			return opts, badRequest("delimiter must be one character", nil)
		}
		opts.Delimiter = runes[0]
	}

	if v := r.FormValue("columns"); v != "" {
		for _, c := range strings.Split(v, ",") {
			opts.Columns = append(opts.Columns, strings.TrimSpace(c))
		}
	}
	return opts, nil
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.List())
}

// tableResponse is a session plus its rows, optionally paged.
type tableResponse struct {
	core.SessionInfo
	Offset int         `json:"offset"`
	Table  *core.Table `json:"table"`
}

// handleGetTable returns the table's rows. offset and limit page through
// them; no limit returns every row.
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	offset := parseIntParam(r, "offset", 0)
	limit := parseIntParam(r, "limit", 0)

	t := sess.Table
	if offset > 0 || limit > 0 {
		indices := t.Indices()
		offset = min(offset, len(indices))
		end := len(indices)
		if limit > 0 {
			end = min(offset+limit, end)
		}
		t, err = s.service.Inspector().ExtractByIndex(t, indices[offset:end])
		if err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, tableResponse{
		SessionInfo: s.service.Info(sess),
		Offset:      offset,
		Table:       t,
	})
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseIntParam parses a non-negative integer query parameter with a
// default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}
