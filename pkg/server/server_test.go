package server

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/canonbooks/canon/pkg/backfill"
	"github.com/canonbooks/canon/pkg/circuit"
	"github.com/canonbooks/canon/pkg/clusters"
	"github.com/canonbooks/canon/pkg/config"
	"github.com/canonbooks/canon/pkg/database"
	"github.com/canonbooks/canon/pkg/events"
	"github.com/canonbooks/canon/pkg/migrations"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	breaker, err := circuit.New("UTC")
	require.NoError(t, err)

	e, err := newEcho(config.NewForTest(), db, Dependencies{
		Clusters: clusters.NewService(db, database.NewLocker(db)),
		Breaker:  breaker,
		Hub:      events.NewHub(),
		Backfill: backfill.NewQueue(10),
	})
	require.NoError(t, err)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	return rr
}

func TestNotFound(t *testing.T) {
	e := newTestServer(t)

	rr := do(e, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"not_found"`)
}

func TestBackfillRoutes(t *testing.T) {
	e := newTestServer(t)

	rr := do(e, http.MethodPost, "/backfill", `{"source":"GOOGLE_BOOKS","source_id":"GZAoAQAAIAAJ"}`)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	// Duplicates aren't accepted twice.
	rr = do(e, http.MethodPost, "/backfill", `{"source":"GOOGLE_BOOKS","source_id":"GZAoAQAAIAAJ"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(e, http.MethodPost, "/backfill", `{"source":"AMAZON","source_id":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(e, http.MethodGet, "/backfill", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var status struct {
		Queued int `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, 1, status.Queued)
}

func TestJobRoutes(t *testing.T) {
	e := newTestServer(t)

	rr := do(e, http.MethodPost, "/jobs", `{"type":"scan","list":"hardcover-fiction"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(e, http.MethodPost, "/jobs", `{"type":"bestseller_ingest","list":"hardcover-fiction"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var job struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
	assert.Equal(t, "pending", job.Status)

	rr = do(e, http.MethodPost, "/jobs", `{"type":"bestseller_ingest","list":"hardcover-fiction"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(e, http.MethodGet, "/jobs/abc", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(e, http.MethodGet, "/jobs?status=pending", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":1`)
}

func TestCircuitRoutes(t *testing.T) {
	e := newTestServer(t)

	rr := do(e, http.MethodGet, "/circuit", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTestRoutes(t *testing.T) {
	e := newTestServer(t)

	rr := do(e, http.MethodPost, "/jobs", `{"type":"bestseller_ingest","list":"hardcover-fiction"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(e, http.MethodDelete, "/test/catalog", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"jobs":1`)

	rr = do(e, http.MethodPost, "/test/circuit/sideways/trip", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(e, http.MethodPost, "/test/circuit/authenticated/trip", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "OPEN")
}
