package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/converseai/converse/internal/healthcheck"
)

// HealthHandler reports dependency health.
type HealthHandler struct {
	runner *healthcheck.Runner
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(log *slog.Logger, runner *healthcheck.Runner) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{
		runner: runner,
		logger: log.With(slog.String("handler", "health")),
	}
}

// Register registers the health route.
func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.HEAD("/health", h.HealthHead)
}

type healthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// Health probes every dependency and reports per-component status. 503 when
// any probe fails.
func (h *HealthHandler) Health(c echo.Context) error {
	result := h.runner.Run(c.Request().Context())

	status := "healthy"
	code := http.StatusOK
	if !result.Healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, healthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: result.Components,
	})
}

// HealthHead answers liveness probes without running dependency checks.
func (h *HealthHandler) HealthHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
