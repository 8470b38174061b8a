package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/chrissnell/phenology/internal/storage"
	"github.com/chrissnell/phenology/pkg/config"
	"github.com/chrissnell/phenology/pkg/responseformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func analyze(t *testing.T, policy phenology.Policy) *phenology.Analysis {
	t.Helper()
	s, err := phenology.NewSeason(
		time.Date(2023, 10, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	obs := []phenology.Observation{
		{Date: s.Date(20), Index: 0.22},
		{Date: s.Date(90), Index: 0.41},
		{Date: s.Date(170), Index: 0.67},
		{Date: s.Date(215), Index: 0.83},
		{Date: s.Date(265), Index: 0.31},
	}
	opts := phenology.DefaultOptions()
	opts.Policy = policy
	opts.Trials = 20
	opts.Seed = 5
	analyzer, err := phenology.NewAnalyzer(opts, nil)
	require.NoError(t, err)
	a, err := analyzer.Analyze(context.Background(), obs, s)
	require.NoError(t, err)
	return a
}

func newController(t *testing.T, store storage.Store, health *storage.HealthManager) *Controller {
	t.Helper()
	var wg sync.WaitGroup
	return NewController(context.Background(), &wg, config.ServerData{ListenAddr: "127.0.0.1", Port: 9999}, store, health, nil)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestNoAnalysisYet(t *testing.T) {
	ctrl := newController(t, nil, nil)
	assert.Equal(t, "127.0.0.1:9999", ctrl.Server.Addr)

	for _, path := range []string{"/series", "/stages", "/parameters", "/observations", "/peak"} {
		rec := get(t, ctrl.Handler(), path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}

	rec := get(t, ctrl.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","analysis_available":false}`, rec.Body.String())
}

func TestSeries(t *testing.T) {
	ctrl := newController(t, nil, nil)
	a := analyze(t, phenology.PolicyPhenological)
	ctrl.SetAnalysis(a)

	rec := get(t, ctrl.Handler(), "/series")
	require.Equal(t, http.StatusOK, rec.Code)
	var series []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Len(t, series, a.Season.Days())
	assert.Contains(t, series[0], "cover")

	rec = get(t, ctrl.Handler(), "/series?from=2023-10-10&to=19.10.2023")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Len(t, series, 10)

	rec = get(t, ctrl.Handler(), "/series?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, ctrl.Handler(), "/series?format=msgpack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))
	var decoded []phenology.DailyPoint
	require.NoError(t, responseformat.Decode(rec.Body, responseformat.MsgPack, &decoded))
	assert.Len(t, decoded, a.Season.Days())
	assert.Equal(t, a.Series[100].Stage, decoded[100].Stage)
}

func TestObservationsWindow(t *testing.T) {
	ctrl := newController(t, nil, nil)
	a := analyze(t, phenology.PolicyFixed)
	ctrl.SetAnalysis(a)

	var obs []phenology.Observation
	rec := get(t, ctrl.Handler(), "/observations")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obs))
	assert.Len(t, obs, len(a.Observations))

	rec = get(t, ctrl.Handler(), "/observations?from=2023-10-20&to=2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obs))
	require.Len(t, obs, 2)
	assert.InDelta(t, 0.41, obs[1].Index, 1e-12)

	rec = get(t, ctrl.Handler(), "/observations?from=2025-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, ctrl.Handler(), "/observations?to=soon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStagesAndParameters(t *testing.T) {
	ctrl := newController(t, nil, nil)
	ctrl.SetAnalysis(analyze(t, phenology.PolicyFixed))

	rec := get(t, ctrl.Handler(), "/stages")
	require.Equal(t, http.StatusOK, rec.Code)
	var stages stagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stages))
	require.Len(t, stages.Timeline, len(phenology.Stages))
	assert.Equal(t, phenology.StageSowing, stages.Timeline[0].Stage)
	assert.NotEmpty(t, stages.Statistics)

	rec = get(t, ctrl.Handler(), "/parameters")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ndvi_soil":0.15,"ndvi_vegetation":0.85,"policy":"fixed"}`, rec.Body.String())

	ctrl.SetAnalysis(analyze(t, ""))
	rec = get(t, ctrl.Handler(), "/parameters")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCharts(t *testing.T) {
	ctrl := newController(t, nil, nil)
	ctrl.SetAnalysis(analyze(t, phenology.PolicyFixed))

	rec := get(t, ctrl.Handler(), "/chart.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Greater(t, rec.Body.Len(), 1000)

	rec = get(t, ctrl.Handler(), "/chart.html")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echarts")
}

func TestRuns(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	a := analyze(t, phenology.PolicyFixed)
	id, err := store.SaveAnalysis(context.Background(), "north", a)
	require.NoError(t, err)

	health := storage.NewHealthManager()
	health.UpdateHealth("sqlite", store.CheckHealth(context.Background()))

	ctrl := newController(t, store, health)

	rec := get(t, ctrl.Handler(), "/fields/north/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []storage.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	rec = get(t, ctrl.Handler(), "/fields/south/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, ctrl.Handler(), "/runs/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var run storage.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Len(t, run.Series, a.Season.Days())

	assert.Equal(t, http.StatusBadRequest, get(t, ctrl.Handler(), "/runs/not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, get(t, ctrl.Handler(), "/runs/00000000-0000-0000-0000-000000000001").Code)

	rec = get(t, ctrl.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sqlite"`)

	health.UpdateHealth("timescaledb", storage.Health{Status: storage.StatusUnhealthy, LastCheck: time.Now()})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, ctrl.Handler(), "/health").Code)
}

func TestRunRoutesNeedStore(t *testing.T) {
	ctrl := newController(t, nil, nil)
	assert.Equal(t, http.StatusNotFound, get(t, ctrl.Handler(), "/fields/north/runs").Code)
}

func TestStartController(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	ctrl := NewController(ctx, &wg, config.ServerData{ListenAddr: "127.0.0.1", Port: 0}, nil, nil, nil)
	// Port 0 falls back to the default, so bind an ephemeral port explicitly
	ctrl.Server.Addr = "127.0.0.1:0"
	require.NoError(t, ctrl.StartController())
	cancel()
	wg.Wait()
}
