// Package httpapi exposes the admin trigger surface over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"SentimentPipeline/internal/domain"
	"SentimentPipeline/internal/ports"
	"SentimentPipeline/internal/usecase"
)

// CycleRunner runs one scoring cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (usecase.CycleReport, error)
}

// Ingester persists interactions pushed by callers or pulled from providers.
type Ingester interface {
	Ingest(ctx context.Context, raws []domain.RawInteraction) (usecase.IngestReport, error)
	IngestFrom(ctx context.Context, source ports.InteractionSource) (usecase.IngestReport, error)
}

// QueueAdmin inspects and repairs the sentiment queue.
type QueueAdmin interface {
	Stats(ctx context.Context) (domain.QueueStats, error)
	RequeueUnscored(ctx context.Context, limit, priority int) (usecase.RequeueReport, error)
	DefaultPriority() int
}

// Deps wires the server.
type Deps struct {
	Cycles  CycleRunner
	Ingest  Ingester
	Source  ports.InteractionSource
	Queue   QueueAdmin
	Metrics http.Handler
	Logger  *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type cycleResponse struct {
	usecase.CycleReport
	Error string `json:"error,omitempty"`
}

const defaultRequeueLimit = 1000

// NewServer builds the echo instance with every admin route mounted.
func NewServer(deps Deps) *echo.Echo {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handlers{deps: deps, logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/healthz", h.health)
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	v1 := e.Group("/api/v1")
	v1.POST("/cycles", h.runCycle)
	v1.POST("/ingest", h.ingest)
	v1.GET("/queue", h.queueStats)
	v1.POST("/queue/requeue", h.requeue)

	return e
}

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) runCycle(c echo.Context) error {
	if h.deps.Cycles == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "pipeline is not configured"})
	}

	report, err := h.deps.Cycles.RunCycle(c.Request().Context())
	switch {
	case errors.Is(err, domain.ErrCycleInProgress):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		h.logger.Error("cycle finished with errors", "run_id", report.RunID, "error", err)
		return c.JSON(http.StatusInternalServerError, cycleResponse{CycleReport: report, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, cycleResponse{CycleReport: report})
}

// ingest stores the posted interactions; an empty body polls the configured
// sources instead.
func (h *handlers) ingest(c echo.Context) error {
	if h.deps.Ingest == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "ingestion is not configured"})
	}
	ctx := c.Request().Context()

	var (
		report usecase.IngestReport
		err    error
	)
	if c.Request().ContentLength == 0 {
		report, err = h.deps.Ingest.IngestFrom(ctx, h.deps.Source)
	} else {
		var raws []domain.RawInteraction
		if bindErr := c.Bind(&raws); bindErr != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "body must be a JSON array of interactions"})
		}
		report, err = h.deps.Ingest.Ingest(ctx, raws)
	}
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}

	status := http.StatusOK
	if len(report.Failures) > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, report)
}

func (h *handlers) queueStats(c echo.Context) error {
	if h.deps.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "queue is not configured"})
	}
	stats, err := h.deps.Queue.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *handlers) requeue(c echo.Context) error {
	if h.deps.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "queue is not configured"})
	}

	limit, err := intParam(c, "limit", defaultRequeueLimit)
	if err != nil || limit <= 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
	}
	priority, err := intParam(c, "priority", h.deps.Queue.DefaultPriority())
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "priority must be an integer"})
	}

	report, err := h.deps.Queue.RequeueUnscored(c.Request().Context(), limit, priority)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, report)
}

func intParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
