package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/converseai/converse/internal/inbound"
	"github.com/converseai/converse/internal/pipeline"
)

// MessageHandler accepts direct message submissions, bypassing the provider
// webhook format. Same admission and pipeline semantics as /webhook.
type MessageHandler struct {
	scheduler *pipeline.Scheduler
	logger    *slog.Logger
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(log *slog.Logger, scheduler *pipeline.Scheduler) *MessageHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MessageHandler{
		scheduler: scheduler,
		logger:    log.With(slog.String("handler", "message")),
	}
}

// Register registers the direct submission route.
func (h *MessageHandler) Register(e *echo.Echo) {
	e.POST("/message", h.Submit)
}

type submitRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	Message     string `json:"message" validate:"required"`
	MessageID   string `json:"message_id"`
	UserName    string `json:"user_name"`
}

// Submit enqueues a pipeline run for a directly submitted message.
func (h *MessageHandler) Submit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := inbound.Direct(req.PhoneNumber, req.Message, req.MessageID, req.UserName)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.scheduler.Enqueue(pipeline.TaskFromInbound(msg)); err != nil {
		if errors.Is(err, pipeline.ErrAlreadyInFlight) {
			return c.JSON(http.StatusOK, statusResponse{Status: "ignored", Message: "sender already being processed"})
		}
		h.logger.Error("enqueue failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "message queued for background processing"})
}
