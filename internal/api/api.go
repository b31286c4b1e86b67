// Package api exposes the module's REST surface: registry and run inspection,
// prediction and accuracy queries, drift status, and a rate-limited manual
// run trigger. All responses are JSON.
package api

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
	"github.com/tphakala/foresight-go/internal/logging"
)

// Manual trigger budget: short sustained rate with a small burst, enough for
// an operator but not for a dashboard stuck in a refresh loop.
const (
	triggerRefill = 20 * time.Second
	triggerBurst  = 3
)

// RunLauncher starts a training pass in the background. Launch returns an
// error matching orchestrator.ErrRunInProgress when a pass is already
// running.
type RunLauncher interface {
	Launch() error
	Running() bool
}

// Controller wires the echo instance, routes, and their dependencies.
type Controller struct {
	Echo     *echo.Echo
	DS       datastore.Interface
	Settings *conf.Settings
	launcher RunLauncher
	limiter  *rate.Limiter
	log      *slog.Logger
}

// New creates the Controller and registers all routes. launcher may be nil,
// which disables the manual trigger endpoint.
func New(settings *conf.Settings, ds datastore.Interface, launcher RunLauncher) *Controller {
	log := logging.ForService("api")
	if log == nil {
		log = slog.Default().With("service", "api")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = echo.ExtractIPFromXFFHeader()

	c := &Controller{
		Echo:     e,
		DS:       ds,
		Settings: settings,
		launcher: launcher,
		limiter:  rate.NewLimiter(rate.Every(triggerRefill), triggerBurst),
		log:      log,
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Echo.GET("/healthz", c.HealthCheck)

	v1 := c.Echo.Group("/api/v1")
	v1.GET("/models", c.ListModels)
	v1.GET("/models/:tag", c.GetModel)
	v1.GET("/runs", c.ListRuns)
	v1.POST("/runs", c.TriggerRun)
	v1.GET("/runs/latest", c.LatestRun)
	v1.GET("/runs/:id", c.GetRun)
	v1.GET("/predictions/:tag", c.ListPredictions)
	v1.GET("/performance/:tag", c.ListPerformance)
	v1.GET("/drift/:tag", c.GetDrift)
}

// Start serves on the configured port until Shutdown. Callers run it in a
// goroutine; a clean shutdown is not reported as an error.
func (c *Controller) Start() error {
	addr := ":" + c.Settings.WebServer.Port
	c.log.Info("API server starting", "addr", addr)

	err := c.Echo.Start(addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("addr", addr).
			Build()
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests up to ctx.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Echo.Shutdown(ctx)
}

// ErrorResponse is the JSON error body for every non-2xx response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// HandleError logs the failure with a correlation ID and returns the JSON
// error body carrying the same ID, so a user report can be matched to logs.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	c.log.Error("API request failed",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", resp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)
	return ctx.JSON(code, resp)
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "err-rand"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
