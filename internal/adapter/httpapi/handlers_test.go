package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asqlite"
)

func newTestRouter(t *testing.T) (*gin.Engine, *asqlite.Conn) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	conn := asqlite.NewTestConn(t)
	h := New(conn, slog.New(slog.DiscardHandler))
	return h.Router(), conn
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_ClosedConnection(t *testing.T) {
	router, conn := newTestRouter(t)

	require.NoError(t, conn.Close())

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Closed", resp.Kind)
}

func TestExec(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/exec", statementRequest{
		SQL: "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/exec", statementRequest{
		SQL:  "INSERT INTO items (name) VALUES (?)",
		Args: []any{"first"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp execResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.RowsAffected)
	assert.Equal(t, int64(1), resp.LastInsertID)
}

func TestExec_MissingSQL(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/exec", statementRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/exec", statementRequest{
		SQL: "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	for _, name := range []string{"a", "b"} {
		rec = doJSON(t, router, http.MethodPost, "/v1/exec", statementRequest{
			SQL:  "INSERT INTO items (name) VALUES (?)",
			Args: []any{name},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/query", statementRequest{
		SQL: "SELECT name FROM items ORDER BY id",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"name"}, resp.Columns)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "a", resp.Rows[0][0])
	assert.Equal(t, "b", resp.Rows[1][0])
}

func TestQuery_SyntaxError(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/query", statementRequest{
		SQL: "SELEC broken",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Driver", resp.Kind)
}

func TestTx_CommitsAll(t *testing.T) {
	router, conn := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/tx", txRequest{
		Statements: []statementRequest{
			{SQL: "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)"},
			{SQL: "INSERT INTO items (name) VALUES (?)", Args: []any{"a"}},
			{SQL: "INSERT INTO items (name) VALUES (?)", Args: []any{"b"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	cur, err := conn.Execute(t.Context(), "SELECT COUNT(*) FROM items")
	require.NoError(t, err)
	row, err := cur.FetchOne(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Index(0))
}

func TestTx_RollsBackOnError(t *testing.T) {
	router, conn := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/exec", statementRequest{
		SQL: "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/tx", txRequest{
		Statements: []statementRequest{
			{SQL: "INSERT INTO items (name) VALUES (?)", Args: []any{"a"}},
			{SQL: "INSERT INTO no_such_table (name) VALUES (?)", Args: []any{"b"}},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	cur, err := conn.Execute(t.Context(), "SELECT COUNT(*) FROM items")
	require.NoError(t, err)
	row, err := cur.FetchOne(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(0), row.Index(0))
}

func TestTx_EmptyRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/tx", txRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(asqlite.KindClosed))
	assert.Equal(t, http.StatusBadRequest, statusOf(asqlite.KindDriver))
	assert.Equal(t, http.StatusConflict, statusOf(asqlite.KindTxNesting))
	assert.Equal(t, http.StatusRequestTimeout, statusOf(asqlite.KindCanceled))
	assert.Equal(t, http.StatusInternalServerError, statusOf(asqlite.KindUnknown))
}
