package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/orchestrator"
)

func apiTestSettings(t *testing.T) *conf.Settings {
	t.Helper()

	dir := t.TempDir()
	s := &conf.Settings{}
	s.Main.Name = "TestNode"
	s.Main.Log.Rotation = conf.RotationSize
	s.Main.Log.MaxSize = 10 * 1024 * 1024
	s.Database.SQLite.Enabled = true
	s.Database.SQLite.Path = filepath.Join(dir, "foresight.db")
	s.WebServer.Enabled = true
	s.WebServer.Port = "8080"
	conf.SetTestSettings(s)
	return s
}

func newTestController(t *testing.T, launcher RunLauncher) (*Controller, datastore.Interface) {
	t.Helper()

	settings := apiTestSettings(t)
	store, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return New(settings, store, launcher), store
}

// request runs a handler against a synthetic request, echo-routing bypassed.
func request(t *testing.T, c *Controller, method, target string, params map[string]string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	ctx := c.Echo.NewContext(req, rec)

	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	ctx.SetParamNames(names...)
	ctx.SetParamValues(values...)

	require.NoError(t, handler(ctx))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

type fakeLauncher struct {
	err      error
	running  bool
	launches int
}

func (f *fakeLauncher) Launch() error {
	f.launches++
	return f.err
}

func (f *fakeLauncher) Running() bool { return f.running }

func TestHealthCheckReportsHealthy(t *testing.T) {
	c, _ := newTestController(t, nil)

	rec := request(t, c, http.MethodGet, "/healthz", nil, c.HealthCheck)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database"])
	assert.Contains(t, body, "version")
}

func TestHealthCheckDegradesWhenDatabaseDown(t *testing.T) {
	c, store := newTestController(t, nil)
	require.NoError(t, store.Close())

	rec := request(t, c, http.MethodGet, "/healthz", nil, c.HealthCheck)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unreachable", body["database"])
}

func TestListModelsEmptyRegistry(t *testing.T) {
	c, _ := newTestController(t, nil)

	rec := request(t, c, http.MethodGet, "/api/v1/models", nil, c.ListModels)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Models []map[string]any `json:"models"`
		Count  int              `json:"count"`
	}
	decode(t, rec, &body)
	assert.Zero(t, body.Count)
	assert.Empty(t, body.Models)
}

func TestListModelsHidesArtifactBlobs(t *testing.T) {
	c, store := newTestController(t, nil)
	require.NoError(t, store.PromoteModel("RETURN_AIR_TEMP", &datastore.ModelRecord{
		Kind:     "hourly-profile",
		MAE:      0.8,
		Artifact: []byte(`{"profile":[20.1,19.8]}`),
	}))
	require.NoError(t, store.PromoteModel("SUPPLY_AIR_TEMP", &datastore.ModelRecord{
		Kind:     "seasonal-regression",
		MAE:      1.2,
		Artifact: []byte(`{"weights":[0.4,0.6]}`),
	}))

	rec := request(t, c, http.MethodGet, "/api/v1/models", nil, c.ListModels)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Models []map[string]any `json:"models"`
		Count  int              `json:"count"`
	}
	decode(t, rec, &body)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "RETURN_AIR_TEMP", body.Models[0]["tag"], "models are sorted by tag")
	for _, m := range body.Models {
		assert.NotContains(t, m, "artifact", "artifact blobs stay out of list responses")
		assert.Contains(t, m, "artifact_size")
	}
}

func TestGetModelUnknownTagReturns404(t *testing.T) {
	c, _ := newTestController(t, nil)

	rec := request(t, c, http.MethodGet, "/api/v1/models/NO_SUCH_TAG",
		map[string]string{"tag": "NO_SUCH_TAG"}, c.GetModel)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorResponse
	decode(t, rec, &body)
	assert.Equal(t, http.StatusNotFound, body.Code)
	assert.Len(t, body.CorrelationID, 8)
}

func TestGetModelReturnsActiveAndHistory(t *testing.T) {
	c, store := newTestController(t, nil)
	tag := "SUPPLY_AIR_TEMP"
	require.NoError(t, store.PromoteModel(tag, &datastore.ModelRecord{Kind: "hourly-profile", MAE: 2.0}))
	require.NoError(t, store.PromoteModel(tag, &datastore.ModelRecord{Kind: "seasonal-regression", MAE: 1.5}))

	rec := request(t, c, http.MethodGet, "/api/v1/models/"+tag,
		map[string]string{"tag": tag}, c.GetModel)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Active  modelResponse   `json:"active"`
		History []modelResponse `json:"history"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 2, body.Active.Version)
	assert.True(t, body.Active.Active)
	assert.Equal(t, "seasonal-regression", body.Active.Kind)
	require.Len(t, body.History, 2)
	assert.Equal(t, 2, body.History[0].Version, "history is newest first")
	assert.False(t, body.History[1].Active)
}

func TestTriggerRunAccepted(t *testing.T) {
	launcher := &fakeLauncher{}
	c, _ := newTestController(t, launcher)

	rec := request(t, c, http.MethodPost, "/api/v1/runs", nil, c.TriggerRun)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, 1, launcher.launches)
}

func TestTriggerRunConflictWhileRunning(t *testing.T) {
	launcher := &fakeLauncher{err: orchestrator.ErrRunInProgress, running: true}
	c, _ := newTestController(t, launcher)

	rec := request(t, c, http.MethodPost, "/api/v1/runs", nil, c.TriggerRun)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerRunUnavailableWithoutLauncher(t *testing.T) {
	c, _ := newTestController(t, nil)

	rec := request(t, c, http.MethodPost, "/api/v1/runs", nil, c.TriggerRun)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTriggerRunRateLimited(t *testing.T) {
	launcher := &fakeLauncher{}
	c, _ := newTestController(t, launcher)

	for i := 0; i < triggerBurst; i++ {
		rec := request(t, c, http.MethodPost, "/api/v1/runs", nil, c.TriggerRun)
		assert.Equal(t, http.StatusAccepted, rec.Code, "request %d within burst", i+1)
	}

	rec := request(t, c, http.MethodPost, "/api/v1/runs", nil, c.TriggerRun)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, triggerBurst, launcher.launches, "launcher never called once the budget is spent")
}

func TestListRunsNewestFirst(t *testing.T) {
	c, store := newTestController(t, nil)
	now := time.Now()
	require.NoError(t, store.SaveRun(&datastore.RunRecord{
		RunID:     "run-old",
		StartedAt: now.Add(-2 * time.Hour),
	}))
	require.NoError(t, store.SaveRun(&datastore.RunRecord{
		RunID:     "run-new",
		StartedAt: now.Add(-1 * time.Hour),
	}))

	rec := request(t, c, http.MethodGet, "/api/v1/runs", nil, c.ListRuns)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs  []datastore.RunRecord `json:"runs"`
		Count int                   `json:"count"`
	}
	decode(t, rec, &body)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "run-new", body.Runs[0].RunID)
}

func TestListRunsHonorsLimit(t *testing.T) {
	c, store := newTestController(t, nil)
	now := time.Now()
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, store.SaveRun(&datastore.RunRecord{RunID: id, StartedAt: now}))
		now = now.Add(time.Minute)
	}

	rec := request(t, c, http.MethodGet, "/api/v1/runs?limit=2", nil, c.ListRuns)

	var body struct {
		Count int `json:"count"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 2, body.Count)
}

func TestLatestRunEmptyReturns404(t *testing.T) {
	c, _ := newTestController(t, nil)

	rec := request(t, c, http.MethodGet, "/api/v1/runs/latest", nil, c.LatestRun)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestRunIncludesEntities(t *testing.T) {
	c, store := newTestController(t, nil)
	now := time.Now()
	require.NoError(t, store.SaveRun(&datastore.RunRecord{
		RunID:     "run-old",
		StartedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.SaveRun(&datastore.RunRecord{
		RunID:     "run-new",
		StartedAt: now,
		Attempted: 2,
		Succeeded: 2,
		Entities: []datastore.RunEntityRecord{
			{Tag: "SUPPLY_AIR_TEMP", Outcome: "promoted", Version: 3},
			{Tag: "RETURN_AIR_TEMP", Outcome: "skipped", Reason: "incumbent not beaten"},
		},
	}))

	rec := request(t, c, http.MethodGet, "/api/v1/runs/latest", nil, c.LatestRun)

	assert.Equal(t, http.StatusOK, rec.Code)
	var run datastore.RunRecord
	decode(t, rec, &run)
	assert.Equal(t, "run-new", run.RunID)
	assert.Len(t, run.Entities, 2)
}

func TestGetRunNotFound(t *testing.T) {
	c, _ := newTestController(t, nil)

	rec := request(t, c, http.MethodGet, "/api/v1/runs/no-such-run",
		map[string]string{"id": "no-such-run"}, c.GetRun)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRunByID(t *testing.T) {
	c, store := newTestController(t, nil)
	require.NoError(t, store.SaveRun(&datastore.RunRecord{
		RunID:     "run-42",
		StartedAt: time.Now(),
		Attempted: 1,
		Failed:    1,
		Entities: []datastore.RunEntityRecord{
			{Tag: "SUPPLY_AIR_TEMP", Outcome: "failed", Reason: "training: singular matrix"},
		},
	}))

	rec := request(t, c, http.MethodGet, "/api/v1/runs/run-42",
		map[string]string{"id": "run-42"}, c.GetRun)

	assert.Equal(t, http.StatusOK, rec.Code)
	var run datastore.RunRecord
	decode(t, rec, &run)
	assert.Equal(t, "run-42", run.RunID)
	require.Len(t, run.Entities, 1)
	assert.Equal(t, "failed", run.Entities[0].Outcome)
}

func TestListPredictionsRejectsBadTimestamp(t *testing.T) {
	c, _ := newTestController(t, nil)

	rec := request(t, c, http.MethodGet, "/api/v1/predictions/SUPPLY_AIR_TEMP?from=yesterday",
		map[string]string{"tag": "SUPPLY_AIR_TEMP"}, c.ListPredictions)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPredictionsReturnsUpcoming(t *testing.T) {
	c, store := newTestController(t, nil)
	tag := "SUPPLY_AIR_TEMP"
	now := time.Now()
	require.NoError(t, store.SavePredictions([]datastore.PredictionRecord{
		{Tag: tag, TargetTime: now.Add(-3 * time.Hour), HorizonMinutes: 60, Predicted: 19.0},
		{Tag: tag, TargetTime: now.Add(10 * time.Minute), HorizonMinutes: 60, Predicted: 20.5},
		{Tag: tag, TargetTime: now.Add(20 * time.Minute), HorizonMinutes: 60, Predicted: 20.7},
	}))

	rec := request(t, c, http.MethodGet, "/api/v1/predictions/"+tag,
		map[string]string{"tag": tag}, c.ListPredictions)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tag         string                       `json:"tag"`
		Predictions []datastore.PredictionRecord `json:"predictions"`
		Count       int                          `json:"count"`
	}
	decode(t, rec, &body)
	assert.Equal(t, tag, body.Tag)
	assert.Equal(t, 2, body.Count, "points older than the default window are excluded")
}

func TestListPerformanceWindow(t *testing.T) {
	c, store := newTestController(t, nil)
	tag := "SUPPLY_AIR_TEMP"
	now := time.Now()
	require.NoError(t, store.UpsertPerformance(&datastore.PerformanceRecord{
		Tag: tag, HourStart: now.Add(-time.Hour), HorizonMinutes: 60, SampleCount: 12, MAE: 0.4,
	}))
	require.NoError(t, store.UpsertPerformance(&datastore.PerformanceRecord{
		Tag: tag, HourStart: now.Add(-48 * time.Hour), HorizonMinutes: 60, SampleCount: 12, MAE: 0.9,
	}))

	rec := request(t, c, http.MethodGet, "/api/v1/performance/"+tag,
		map[string]string{"tag": tag}, c.ListPerformance)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Performance []datastore.PerformanceRecord `json:"performance"`
		Count       int                           `json:"count"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 1, body.Count, "default window covers the last 24 hours")
}

func TestGetDriftNotFound(t *testing.T) {
	c, _ := newTestController(t, nil)

	rec := request(t, c, http.MethodGet, "/api/v1/drift/SUPPLY_AIR_TEMP",
		map[string]string{"tag": "SUPPLY_AIR_TEMP"}, c.GetDrift)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDriftReturnsLatestCheck(t *testing.T) {
	c, store := newTestController(t, nil)
	tag := "SUPPLY_AIR_TEMP"
	now := time.Now()
	require.NoError(t, store.SaveDriftResult(&datastore.DriftRecord{
		Tag: tag, CheckedAt: now.Add(-time.Hour), Severity: "none",
	}))
	require.NoError(t, store.SaveDriftResult(&datastore.DriftRecord{
		Tag: tag, CheckedAt: now, Severity: "high", PSI: 0.27,
	}))

	rec := request(t, c, http.MethodGet, "/api/v1/drift/"+tag,
		map[string]string{"tag": tag}, c.GetDrift)

	assert.Equal(t, http.StatusOK, rec.Code)
	var drift datastore.DriftRecord
	decode(t, rec, &drift)
	assert.Equal(t, "high", drift.Severity)
	assert.InDelta(t, 0.27, drift.PSI, 1e-9)
}

func TestQueryIntParsing(t *testing.T) {
	c, _ := newTestController(t, nil)

	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"missing uses default", "", 20},
		{"garbage uses default", "abc", 20},
		{"zero uses default", "0", 20},
		{"negative uses default", "-5", 20},
		{"in range", "42", 42},
		{"above cap is clamped", "100000", 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/api/v1/runs"
			if tc.raw != "" {
				target += "?limit=" + tc.raw
			}
			req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
			ctx := c.Echo.NewContext(req, httptest.NewRecorder())
			assert.Equal(t, tc.want, queryInt(ctx, "limit", 20, 100))
		})
	}
}
