package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/converseai/converse/internal/inbound"
	"github.com/converseai/converse/internal/pipeline"
)

// statusResponse is the envelope every ingestion endpoint answers with.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WebhookHandler ingests provider webhook deliveries.
type WebhookHandler struct {
	normalizer inbound.Normalizer
	scheduler  *pipeline.Scheduler
	logger     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(log *slog.Logger, normalizer inbound.Normalizer, scheduler *pipeline.Scheduler) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		normalizer: normalizer,
		scheduler:  scheduler,
		logger:     log.With(slog.String("handler", "webhook")),
	}
}

// Register registers the webhook route.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Receive)
}

// Receive normalizes the payload and enqueues a pipeline run. The provider is
// always acknowledged with 200: retries on its side would only produce
// duplicates. Unactionable payloads and in-flight duplicates are acknowledged
// as ignored.
func (h *WebhookHandler) Receive(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body: "+err.Error())
	}

	msg, err := h.normalizer.Normalize(payload)
	if err != nil {
		if errors.Is(err, inbound.ErrValidation) {
			h.logger.Info("webhook ignored", slog.Any("reason", err))
			return c.JSON(http.StatusOK, statusResponse{Status: "ignored", Message: err.Error()})
		}
		h.logger.Error("webhook normalization failed", slog.Any("error", err))
		return c.JSON(http.StatusOK, statusResponse{Status: "error", Message: err.Error()})
	}

	if err := h.scheduler.Enqueue(pipeline.TaskFromInbound(msg)); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyInFlight) {
			return c.JSON(http.StatusOK, statusResponse{Status: "ignored", Message: "sender already being processed"})
		}
		h.logger.Error("enqueue failed", slog.Any("error", err))
		return c.JSON(http.StatusOK, statusResponse{Status: "error", Message: err.Error()})
	}

	return c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "message queued for background processing"})
}
