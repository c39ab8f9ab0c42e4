package readapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

type fakeStats struct{ stats []domain.QueryStat }

func (f fakeStats) All() []domain.QueryStat { return f.stats }

type fakeMaint struct{ snap MaintenanceSnapshot }

func (f fakeMaint) LastReport() MaintenanceSnapshot { return f.snap }

type fakeMutations struct {
	records []domain.Mutation
	err     error
}

func (f fakeMutations) Since(ctx context.Context, afterMID int64, limit int) ([]domain.Mutation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeBypass struct{ entries []BypassEntry }

func (f fakeBypass) Entries() []BypassEntry { return f.entries }

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(testLog(), nil, reg, opts)
}

func TestHandlePerformanceReturnsStats(t *testing.T) {
	s := newTestServer(t, Options{Stats: fakeStats{stats: []domain.QueryStat{{Fingerprint: "select ?"}}}})

	req := httptest.NewRequest(http.MethodGet, "/performance", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["query_stats"], 1)
}

func TestHandleMutationsValidatesSince(t *testing.T) {
	s := newTestServer(t, Options{Mutations: fakeMutations{}})

	req := httptest.NewRequest(http.MethodGet, "/mutations?since=not-a-number", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMutationsReturnsRecords(t *testing.T) {
	s := newTestServer(t, Options{Mutations: fakeMutations{records: []domain.Mutation{{MID: 1}, {MID: 2}}}})

	req := httptest.NewRequest(http.MethodGet, "/mutations?since=0&limit=10", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["mutations"], 2)
}

func TestHandleBypassReturnsEntries(t *testing.T) {
	s := newTestServer(t, Options{Bypass: fakeBypass{entries: []BypassEntry{{Level: "feature", Name: "redundancy_pruning"}}}})

	req := httptest.NewRequest(http.MethodGet, "/bypass", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["bypass"], 1)
}

func TestHandleHealthzAlwaysOK(t *testing.T) {
	s := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
