package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/foresight-go/internal/buildinfo"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/orchestrator"
)

const (
	defaultRunLimit        = 20
	maxRunLimit            = 100
	defaultPredictionLimit = 100
	maxPredictionLimit     = 1000
	defaultPerformanceHrs  = 24
	defaultHistoryLimit    = 10
)

// modelResponse is a ModelRecord without the artifact blob.
type modelResponse struct {
	Tag           string     `json:"tag"`
	Kind          string     `json:"kind"`
	Version       int        `json:"version"`
	MAE           float64    `json:"mae"`
	RMSE          float64    `json:"rmse"`
	MAPE          float64    `json:"mape"`
	WindowStart   time.Time  `json:"window_start"`
	WindowEnd     time.Time  `json:"window_end"`
	WindowSamples int        `json:"window_samples"`
	ArtifactSize  int        `json:"artifact_size"`
	Active        bool       `json:"active"`
	DeployedAt    *time.Time `json:"deployed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toModelResponse(m *datastore.ModelRecord) modelResponse {
	return modelResponse{
		Tag:           m.Tag,
		Kind:          m.Kind,
		Version:       m.Version,
		MAE:           m.MAE,
		RMSE:          m.RMSE,
		MAPE:          m.MAPE,
		WindowStart:   m.WindowStart,
		WindowEnd:     m.WindowEnd,
		WindowSamples: m.WindowSamples,
		ArtifactSize:  m.ArtifactSize,
		Active:        m.Active,
		DeployedAt:    m.DeployedAt,
		CreatedAt:     m.CreatedAt,
	}
}

// HealthCheck reports service and database status. The database being down
// degrades the response to 503 so load balancers stop routing here.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	resp := map[string]any{
		"status":     "healthy",
		"version":    buildinfo.Version,
		"build_date": buildinfo.BuildDate,
		"database":   "connected",
	}
	if err := c.DS.Ping(); err != nil {
		resp["status"] = "degraded"
		resp["database"] = "unreachable"
		return ctx.JSON(http.StatusServiceUnavailable, resp)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// ListModels returns the active model of every tag.
func (c *Controller) ListModels(ctx echo.Context) error {
	models, err := c.DS.ActiveModels()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list models", http.StatusInternalServerError)
	}

	resp := make([]modelResponse, len(models))
	for i := range models {
		resp[i] = toModelResponse(&models[i])
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"models": resp,
		"count":  len(resp),
	})
}

// GetModel returns a tag's active model plus its version history.
func (c *Controller) GetModel(ctx echo.Context) error {
	tag := ctx.Param("tag")

	active, err := c.DS.GetActiveModel(tag)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch model", http.StatusInternalServerError)
	}
	if active == nil {
		return c.HandleError(ctx, nil, "No active model for tag", http.StatusNotFound)
	}

	history, err := c.DS.ModelHistory(tag, queryInt(ctx, "limit", defaultHistoryLimit, maxRunLimit))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch model history", http.StatusInternalServerError)
	}

	histResp := make([]modelResponse, len(history))
	for i := range history {
		histResp[i] = toModelResponse(&history[i])
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"active":  toModelResponse(active),
		"history": histResp,
	})
}

// ListRuns returns recent orchestration passes, newest first.
func (c *Controller) ListRuns(ctx echo.Context) error {
	limit := queryInt(ctx, "limit", defaultRunLimit, maxRunLimit)

	runs, err := c.DS.RecentRuns(limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list runs", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// LatestRun returns the most recent pass, entities included.
func (c *Controller) LatestRun(ctx echo.Context) error {
	runs, err := c.DS.RecentRuns(1)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch latest run", http.StatusInternalServerError)
	}
	if len(runs) == 0 {
		return c.HandleError(ctx, nil, "No runs recorded yet", http.StatusNotFound)
	}

	run, err := c.DS.GetRun(runs[0].RunID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch latest run", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, run)
}

// GetRun returns one pass by its run ID, entities included.
func (c *Controller) GetRun(ctx echo.Context) error {
	run, err := c.DS.GetRun(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch run", http.StatusInternalServerError)
	}
	if run == nil {
		return c.HandleError(ctx, nil, "Run not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, run)
}

// TriggerRun starts a pass in the background. Responses: 202 accepted,
// 409 when a pass is already running, 429 when the trigger budget is spent.
func (c *Controller) TriggerRun(ctx echo.Context) error {
	if c.launcher == nil {
		return c.HandleError(ctx, nil, "Manual runs are not available", http.StatusServiceUnavailable)
	}
	if !c.limiter.Allow() {
		return c.HandleError(ctx, nil, "Too many trigger requests", http.StatusTooManyRequests)
	}

	if err := c.launcher.Launch(); err != nil {
		if errors.Is(err, orchestrator.ErrRunInProgress) {
			return c.HandleError(ctx, err, "A training pass is already running", http.StatusConflict)
		}
		return c.HandleError(ctx, err, "Failed to start training pass", http.StatusInternalServerError)
	}

	c.log.Info("Training pass triggered via API", "ip", ctx.RealIP())
	return ctx.JSON(http.StatusAccepted, map[string]any{"status": "accepted"})
}

// ListPredictions returns stored forecast points for a tag.
func (c *Controller) ListPredictions(ctx echo.Context) error {
	tag := ctx.Param("tag")
	limit := queryInt(ctx, "limit", defaultPredictionLimit, maxPredictionLimit)

	from := time.Now().Add(-2 * time.Hour)
	if raw := ctx.QueryParam("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid from timestamp, want RFC3339", http.StatusBadRequest)
		}
		from = parsed
	}

	preds, err := c.DS.PredictionsForTag(tag, from, limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list predictions", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"tag":         tag,
		"predictions": preds,
		"count":       len(preds),
	})
}

// ListPerformance returns hourly accuracy aggregates for a tag.
func (c *Controller) ListPerformance(ctx echo.Context) error {
	tag := ctx.Param("tag")
	hours := queryInt(ctx, "hours", defaultPerformanceHrs, 24*90)
	from := time.Now().Add(-time.Duration(hours) * time.Hour)

	rows, err := c.DS.PerformanceForTag(tag, from)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list performance", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"tag":         tag,
		"performance": rows,
		"count":       len(rows),
	})
}

// GetDrift returns the latest drift check for a tag.
func (c *Controller) GetDrift(ctx echo.Context) error {
	tag := ctx.Param("tag")

	rec, err := c.DS.LatestDriftResult(tag)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to fetch drift status", http.StatusInternalServerError)
	}
	if rec == nil {
		return c.HandleError(ctx, nil, "No drift checks recorded for tag", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, rec)
}

// queryInt parses an integer query parameter with a default and a cap.
func queryInt(ctx echo.Context, name string, def, maxValue int) int {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	if v > maxValue {
		return maxValue
	}
	return v
}
