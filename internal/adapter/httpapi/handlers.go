// Package httpapi exposes a small HTTP surface over one asynchronous
// database connection: ad-hoc statements, queries and transactional
// scripts. Concurrent requests share the single connection; the
// connection's dispatcher serializes them statement by statement.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"asqlite"
	"asqlite/pkg/retry"
)

// Handler serves database requests over one async connection.
type Handler struct {
	conn     *asqlite.Conn
	log      *slog.Logger
	retryCfg retry.Config
}

// New creates a Handler bound to the given connection.
func New(conn *asqlite.Conn, log *slog.Logger) *Handler {
	return &Handler{conn: conn, log: log, retryCfg: retry.DefaultConfig()}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	v1.POST("/exec", h.exec)
	v1.POST("/query", h.query)
	v1.POST("/tx", h.tx)

	return r
}

type statementRequest struct {
	SQL  string `json:"sql" binding:"required"`
	Args []any  `json:"args"`
}

type execResponse struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

type queryResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type txRequest struct {
	Statements []statementRequest `json:"statements" binding:"required,min=1,dive"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (h *Handler) health(c *gin.Context) {
	cur, err := h.conn.Execute(c.Request.Context(), "SELECT 1")
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, err := cur.FetchOne(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) exec(c *gin.Context) {
	var req statementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "Validation"})
		return
	}

	var cur *asqlite.Cursor
	err := retry.Do(c.Request.Context(), h.retryCfg, retry.IsBusy, func(ctx context.Context) error {
		var execErr error
		cur, execErr = h.conn.Execute(ctx, req.SQL, req.Args...)
		return execErr
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, execResponse{
		RowsAffected: cur.RowsAffected(),
		LastInsertID: cur.LastInsertID(),
	})
}

func (h *Handler) query(c *gin.Context) {
	var req statementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "Validation"})
		return
	}

	ctx := c.Request.Context()
	cur, err := h.conn.Execute(ctx, req.SQL, req.Args...)
	if err != nil {
		h.fail(c, err)
		return
	}

	rows, err := cur.FetchAll(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := queryResponse{Columns: cur.Columns(), Rows: make([][]any, 0, len(rows))}
	for _, row := range rows {
		resp.Rows = append(resp.Rows, row.Values())
	}
	c.JSON(http.StatusOK, resp)
}

// tx runs all statements of the request in one transaction.
// Any failure rolls the whole batch back.
func (h *Handler) tx(c *gin.Context) {
	var req txRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "Validation"})
		return
	}

	ctx := c.Request.Context()
	var affected int64
	err := h.conn.Transaction(ctx, func(ctx context.Context) error {
		for _, stmt := range req.Statements {
			cur, err := h.conn.Execute(ctx, stmt.SQL, stmt.Args...)
			if err != nil {
				return err
			}
			if n := cur.RowsAffected(); n > 0 {
				affected += n
			}
		}
		return nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, execResponse{RowsAffected: affected})
}

// fail writes an error response with a status derived from the error kind.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := asqlite.KindOf(err)
	h.log.Warn("request failed", "kind", kind.String(), "error", err)
	c.JSON(statusOf(kind), errorResponse{Error: err.Error(), Kind: kind.String()})
}

func statusOf(kind asqlite.Kind) int {
	switch kind {
	case asqlite.KindClosed:
		return http.StatusServiceUnavailable
	case asqlite.KindDriver:
		return http.StatusBadRequest
	case asqlite.KindTxNesting, asqlite.KindTxDone, asqlite.KindUnsupported:
		return http.StatusConflict
	case asqlite.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
