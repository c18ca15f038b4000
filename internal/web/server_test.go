package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvcure/internal/config"
	"github.com/JonMunkholm/csvcure/internal/core"
	"github.com/JonMunkholm/csvcure/internal/logging"
	"github.com/JonMunkholm/csvcure/internal/store"
)

const spilled = "id,name,city,state\n" +
	"1,Acme,Boston,MA\n" +
	"2,\"Acme Inc\"\",Boston\",MA\n"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg, err := config.LoadFrom(func(string) string { return "" })
	require.NoError(t, err)

	journal, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	logger := logging.Discard()
	svc := core.NewService(core.ServiceParams{
		Engine:  core.NewEngine(core.WithLogger(logger)),
		Journal: journal,
		Logger:  logger,
	})
	t.Cleanup(svc.Close)

	return NewServer(svc, cfg)
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, s *Server, name, content string) core.SessionInfo {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/tables", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, s, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var info core.SessionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	return info
}

func postJSON(t *testing.T, s *Server, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return do(t, s, req)
}

func TestUploadRepairExport(t *testing.T) {
	s := newTestServer(t)
	info := upload(t, s, "orders.csv", spilled)
	require.Equal(t, 2, info.Rows)
	require.Equal(t, []string{"id", "name", "city", "state"}, info.Columns)

	base := "/api/tables/" + info.ID

	rec := do(t, s, httptest.NewRequest(http.MethodGet, base+"/diagnostics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var diag core.Diagnostics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	require.Equal(t, map[int]int{1: 1}, diag.TrailingNulls)

	rec = postJSON(t, s, base+"/repair", core.RepairRequest{
		Op:        core.OpAutoStretch,
		Detect:    true,
		Delimiter: ",",
		Drops:     []string{`"`},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report core.BatchReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Repaired, 1)
	require.Equal(t, 1, report.Repaired[0].Index)
	require.Empty(t, report.Failed)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, base+"/export?format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "orders_repaired.csv")
	require.Equal(t, "id,name,city,state\n1,Acme,Boston,MA\n2,Acme Inc,Boston,MA\n", rec.Body.String())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, base+"/journal", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []core.JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, core.OutcomeRepaired, entries[0].Outcome)
	require.Equal(t, 1, entries[0].RowIndex)
}

func TestExtractByValue(t *testing.T) {
	s := newTestServer(t)
	info := upload(t, s, "orders.csv", spilled)

	rec := postJSON(t, s, "/api/tables/"+info.ID+"/extract", core.ExtractRequest{
		By:     core.ExtractValue,
		Values: []string{"1"},
		Column: "id",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Table struct {
			Rows []struct {
				Index int `json:"index"`
			} `json:"rows"`
		} `json:"table"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Table.Rows, 1)
	require.Equal(t, 0, res.Table.Rows[0].Index)
}

func TestGetTablePaging(t *testing.T) {
	s := newTestServer(t)
	info := upload(t, s, "orders.csv", spilled)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/tables/"+info.ID+"?offset=1&limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Offset int `json:"offset"`
		Table  struct {
			Rows []struct {
				Index int    `json:"index"`
				Cells []*any `json:"cells"`
			} `json:"rows"`
		} `json:"table"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Offset)
	require.Len(t, resp.Table.Rows, 1)
	require.Equal(t, 1, resp.Table.Rows[0].Index)
	require.Nil(t, resp.Table.Rows[0].Cells[3])
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	info := upload(t, s, "orders.csv", spilled)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		kind   string
	}{
		{
			name:   "unknown table",
			req:    httptest.NewRequest(http.MethodGet, "/api/tables/missing/diagnostics", nil),
			status: http.StatusNotFound,
			kind:   "table_not_found",
		},
		{
			name:   "unknown field",
			req:    httptest.NewRequest(http.MethodPost, "/api/tables/"+info.ID+"/repair", strings.NewReader(`{"op":"auto_stretch","bogus":1}`)),
			status: http.StatusBadRequest,
			kind:   "invalid_request",
		},
		{
			name:   "missing delimiter",
			req:    httptest.NewRequest(http.MethodPost, "/api/tables/"+info.ID+"/repair", strings.NewReader(`{"op":"auto_stretch","detect":true}`)),
			status: http.StatusBadRequest,
			kind:   "invalid_request",
		},
		{
			name:   "unknown row",
			req:    httptest.NewRequest(http.MethodPost, "/api/tables/"+info.ID+"/repair", strings.NewReader(`{"op":"merge_adjacent","index":9,"columnA":"name","columnB":"city"}`)),
			status: http.StatusUnprocessableEntity,
			kind:   "index_not_found",
		},
		{
			name:   "repeated extract index",
			req:    httptest.NewRequest(http.MethodPost, "/api/tables/"+info.ID+"/extract", strings.NewReader(`{"by":"index","indices":[1,0,1]}`)),
			status: http.StatusBadRequest,
			kind:   "invalid_request",
		},
		{
			name:   "bad export format",
			req:    httptest.NewRequest(http.MethodGet, "/api/tables/"+info.ID+"/export?format=pdf", nil),
			status: http.StatusUnsupportedMediaType,
			kind:   "unsupported_file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Equal(t, tt.kind, resp.Kind)
			require.NotEmpty(t, resp.Code)
			require.NotEmpty(t, resp.Message)
		})
	}
}

func TestUploadRejectsUnknownFormat(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "notes.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("hello"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/tables", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, s, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadTSVSplitsOnTab(t *testing.T) {
	s := newTestServer(t)

	info := upload(t, s, "orders.tsv", "id\tname\tcity\tstate\n1\tAcme\tBoston\tMA\n")
	require.Equal(t, []string{"id", "name", "city", "state"}, info.Columns)
	require.Equal(t, 1, info.Rows)

	// Plain text keeps the configured delimiter.
	info = upload(t, s, "notes.txt", "id,name\n1,Acme\n")
	require.Equal(t, []string{"id", "name"}, info.Columns)
}

func TestDeleteTable(t *testing.T) {
	s := newTestServer(t)
	info := upload(t, s, "orders.csv", spilled)

	rec := do(t, s, httptest.NewRequest(http.MethodDelete, "/api/tables/"+info.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/tables/"+info.ID, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPages(t *testing.T) {
	s := newTestServer(t)
	info := upload(t, s, "orders.csv", spilled)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "orders.csv")
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/tables/"+info.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `<tr class="corrupt"><td>1</td><td>2</td>`)
	require.Contains(t, body, `<td class="null">null</td>`)
	require.Contains(t, body, `<link rel="stylesheet" href="/static/app.css">`)
	require.Contains(t, rec.Header().Get("Content-Security-Policy"), "style-src 'self'")

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	require.Contains(t, rec.Body.String(), "tr.corrupt")

	// Pages get HTML errors.
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/tables/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), `<div class="alert" role="alert">`)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestExportName(t *testing.T) {
	require.Equal(t, "orders_repaired.xlsx", exportName("orders.csv", "xlsx"))
	require.Equal(t, "table_repaired.csv", exportName("", "csv"))
}
