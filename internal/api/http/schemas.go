package http

import (
	"net/http"
	"strings"

	"github.com/arkilian/metaquery/internal/observability"
)

// SchemaInfo describes one schema in GET /v1/schemas.
type SchemaInfo struct {
	Name   string      `json:"name"`
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes one table.
type TableInfo struct {
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	Remarks string       `json:"remarks,omitempty"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes one column.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NativeType string `json:"native_type,omitempty"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// SchemasHandler handles GET /v1/schemas. The optional schema query
// parameter restricts the listing to one schema.
type SchemasHandler struct {
	engine Engine
}

// NewSchemasHandler creates a schemas handler.
func NewSchemasHandler(engine Engine) *SchemasHandler {
	return &SchemasHandler{engine: engine}
}

func (h *SchemasHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	schemas, err := h.engine.Schemas(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error(), "", requestID)
		return
	}

	only := r.URL.Query().Get("schema")
	out := make([]SchemaInfo, 0, len(schemas))
	for _, s := range schemas {
		if only != "" && !strings.EqualFold(s.Name, only) {
			continue
		}
		info := SchemaInfo{Name: s.Name, Tables: make([]TableInfo, 0, len(s.Tables))}
		for _, t := range s.Tables {
			table := TableInfo{
				Name:    t.Name,
				Type:    string(t.Type),
				Remarks: t.Remarks,
				Columns: make([]ColumnInfo, 0, len(t.Columns)),
			}
			for _, c := range t.Columns {
				table.Columns = append(table.Columns, ColumnInfo{
					Name:       c.Name,
					Type:       c.Type.String(),
					NativeType: c.NativeType,
					Nullable:   c.Nullable,
					PrimaryKey: c.PrimaryKey,
				})
			}
			info.Tables = append(info.Tables, table)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Queries       int64                       `json:"queries"`
	Failures      int64                       `json:"failures"`
	RowsServed    int64                       `json:"rows_served"`
	MeanTimeMs    float64                     `json:"mean_time_ms"`
	TopPredicates []observability.ColumnStats `json:"top_predicates"`
	TopPaths      []observability.ColumnStats `json:"top_paths"`
}

// StatsHandler handles GET /v1/stats.
type StatsHandler struct {
	engine Engine
	top    int
}

// NewStatsHandler creates a stats handler listing the top n predicates and
// map paths.
func NewStatsHandler(engine Engine, top int) *StatsHandler {
	return &StatsHandler{engine: engine, top: top}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}
	stats := h.engine.Stats()
	if stats == nil {
		writeError(w, http.StatusServiceUnavailable, "statistics are not available", "", requestID)
		return
	}
	sum := stats.Summary()
	writeJSON(w, http.StatusOK, StatsResponse{
		Queries:       sum.Queries,
		Failures:      sum.Failures,
		RowsServed:    sum.RowsServed,
		MeanTimeMs:    float64(sum.MeanTime.Microseconds()) / 1000,
		TopPredicates: stats.GetTopPredicates(h.top),
		TopPaths:      stats.GetTopPaths(h.top),
	})
}
