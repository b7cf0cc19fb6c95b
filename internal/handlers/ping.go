package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// PingHandler answers liveness and discovery requests.
type PingHandler struct {
	logger *slog.Logger
}

// NewPingHandler creates a PingHandler.
func NewPingHandler(log *slog.Logger) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{logger: log.With(slog.String("handler", "ping"))}
}

// Register registers the ping and root routes.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.GET("/", h.Root)
}

// Ping answers liveness probes.
func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Root lists the service endpoints.
func (h *PingHandler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "online",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"endpoints": map[string]string{
			"webhook":      "/webhook",
			"message":      "/message",
			"conversation": "/conversation/{identity}",
			"knowledge":    "/knowledge",
			"health":       "/health",
		},
	})
}
