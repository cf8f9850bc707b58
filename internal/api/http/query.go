package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arkilian/metaquery/internal/app"
	qerrors "github.com/arkilian/metaquery/internal/errors"
	"github.com/arkilian/metaquery/internal/observability"
	"github.com/arkilian/metaquery/internal/query/ast"
	"github.com/arkilian/metaquery/internal/query/clause"
	"github.com/arkilian/metaquery/internal/query/data"
	"github.com/arkilian/metaquery/pkg/types"
)

// Engine is the part of app.App the API serves.
type Engine interface {
	Query(ctx context.Context) (*ast.Builder, error)
	Execute(ctx context.Context, q *ast.Query) (data.DataSet, error)
	Schemas(ctx context.Context) ([]*types.Schema, error)
	Stats() *observability.QueryStats
	IsShuttingDown() bool
}

// QueryResponse is the body of a successful POST /v1/query.
type QueryResponse struct {
	Columns         []string        `json:"columns"`
	Rows            [][]interface{} `json:"rows"`
	RowCount        int             `json:"row_count"`
	Truncated       bool            `json:"truncated,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	RequestID       string          `json:"request_id"`
}

// QueryHandler handles POST /v1/query. The body is a clause.Request.
type QueryHandler struct {
	engine  Engine
	maxRows int
	logger  *zap.Logger
}

// NewQueryHandler creates a query handler. maxRows caps every response; 0
// means no cap.
func NewQueryHandler(engine Engine, maxRows int, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{engine: engine, maxRows: maxRows, logger: logger}
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	req := clause.NewRequest("")
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}
	capped := h.capLimit(&req)

	start := time.Now()
	b, err := h.engine.Query(r.Context())
	if err != nil {
		h.fail(w, err, requestID)
		return
	}
	if err := req.Apply(b); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), qerrors.CodeInvalidQuery, requestID)
		return
	}
	q, err := b.Build()
	if err != nil {
		h.fail(w, err, requestID)
		return
	}

	ds, err := h.engine.Execute(r.Context(), q)
	if err != nil {
		h.fail(w, err, requestID)
		return
	}
	rows, err := data.ToRows(ds)
	if err != nil {
		h.fail(w, err, requestID)
		return
	}

	resp := QueryResponse{
		Columns:   ds.Header().Labels(),
		Rows:      make([][]interface{}, 0, len(rows)),
		RequestID: requestID,
	}
	for _, row := range rows {
		if capped && len(resp.Rows) == h.maxRows {
			resp.Truncated = true
			break
		}
		resp.Rows = append(resp.Rows, row.Values())
	}
	resp.RowCount = len(resp.Rows)
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()
	writeJSON(w, http.StatusOK, resp)
}

// capLimit lowers the request limit to the response cap, asking for one
// extra row so truncation can be detected.
func (h *QueryHandler) capLimit(req *clause.Request) bool {
	if h.maxRows <= 0 {
		return false
	}
	if req.Limit == ast.Unbounded || req.Limit > h.maxRows {
		req.Limit = h.maxRows + 1
		return true
	}
	return false
}

func (h *QueryHandler) fail(w http.ResponseWriter, err error, requestID string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("query failed", zap.String("request_id", requestID), zap.Error(err))
	}
	writeError(w, status, err.Error(), qerrors.GetCode(err), requestID)
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrShuttingDown), errors.Is(err, app.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch qerrors.GetCategory(err) {
	case qerrors.ErrCategoryConfiguration, qerrors.ErrCategoryQuery, qerrors.ErrCategoryUnsupported:
		return http.StatusBadRequest
	case qerrors.ErrCategoryInconsistent:
		return http.StatusUnprocessableEntity
	case qerrors.ErrCategoryIO:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
