// Package queryapi serves read-only SQL over the built store.
package queryapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"mirnadb/internal/schema"
	"mirnadb/internal/tabular"
)

// maxQueryBytes bounds the request body of POST /query.
const maxQueryBytes = 1 << 20

// CSVFilename is the attachment name of CSV query results.
const CSVFilename = "query_results.csv"

// Querier is the read side of a storage.Repository.
type Querier interface {
	Query(ctx context.Context, q string) (tabular.Table, error)
	Tables(ctx context.Context) ([]string, error)
}

// QueryResult is the JSON shape of a query response.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// TableGroup is the JSON shape of one entry of GET /tables.
type TableGroup struct {
	Group  string   `json:"group"`
	Tables []string `json:"tables"`
}

type queryRequest struct {
	SQL string `json:"sql"`
}

// NewRouter returns the HTTP API:
//
//	GET  /healthz  liveness
//	GET  /tables   table names grouped by their first two name segments
//	POST /query    run SQL from {"sql": ...} or a text/plain body
func NewRouter(q Querier, logger *zap.Logger) http.Handler {
	s := &server{q: q}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/tables", s.tables)
	r.Post("/query", s.query)
	return r
}

type server struct {
	q Querier
}

func (s *server) tables(w http.ResponseWriter, r *http.Request) {
	names, err := s.q.Tables(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := []TableGroup{}
	for _, g := range schema.GroupTables(names) {
		out = append(out, TableGroup{Group: g.Key, Tables: g.Tables})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) query(w http.ResponseWriter, r *http.Request) {
	sql, err := readSQL(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.q.Query(r.Context(), sql)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": CSVFilename}))
		w.WriteHeader(http.StatusOK)
		_ = tabular.WriteCSV(w, res)
		return
	}

	rows := res.Rows
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, QueryResult{Columns: res.Columns, Rows: rows})
}

func readSQL(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxQueryBytes))
	if err != nil {
		return "", err
	}

	sql := string(body)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req queryRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return "", errors.New("invalid JSON body: " + err.Error())
		}
		sql = req.SQL
	}

	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "", errors.New("empty query")
	}
	return sql, nil
}

func wantsCSV(r *http.Request) bool {
	if f := r.URL.Query().Get("format"); f != "" {
		return strings.EqualFold(f, "csv")
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "text/csv" {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
