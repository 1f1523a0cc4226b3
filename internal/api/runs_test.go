package api

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptomite-go/cryptomite/internal/ledger"
	"github.com/cryptomite-go/cryptomite/pkg/config"
	"github.com/cryptomite-go/cryptomite/pkg/database"
)

func newLedger(t *testing.T) *ledger.Store {
	t.Helper()
	db, err := database.New(config.DatabaseConfig{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := ledger.NewStore(db, nil)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestRunsEndpoints(t *testing.T) {
	s := newTestServer(t, nil, RouterOptions{})
	rec, _ := s.do(t, http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	store := newLedger(t)
	s.handler.SetRuns(store)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.Record(context.Background(), ledger.Run{
			ID: id, Extractor: "circulant", N: 12, M: 6, InputBits: 25, OutputBits: 6,
			Status: ledger.StatusOK, CreatedAt: at.Add(time.Duration(i) * time.Second),
		}))
	}

	rec, body := s.do(t, http.MethodGet, "/api/v1/runs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body["total"])
	first := body["runs"].([]any)[0].(map[string]any)
	assert.Equal(t, "r3", first["id"])

	rec, body = s.do(t, http.MethodGet, "/api/v1/runs/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "circulant", body["extractor"])

	rec, _ = s.do(t, http.MethodGet, "/api/v1/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/v1/runs/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sum := body["summary"].([]any)[0].(map[string]any)
	assert.Equal(t, 3.0, sum["runs"])
	assert.Equal(t, 18.0, sum["output_bits"])

	rec, _ = s.do(t, http.MethodGet, "/api/v1/runs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
