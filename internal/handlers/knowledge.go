package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// KnowledgeIngestor is the writable side of the knowledge base.
type KnowledgeIngestor interface {
	AddDocuments(ctx context.Context, texts []string, source string) (int, error)
	Wipe(ctx context.Context) error
}

// KnowledgeHandler manages the retrieval corpus.
type KnowledgeHandler struct {
	store  KnowledgeIngestor
	logger *slog.Logger
}

// NewKnowledgeHandler creates a KnowledgeHandler.
func NewKnowledgeHandler(log *slog.Logger, store KnowledgeIngestor) *KnowledgeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &KnowledgeHandler{
		store:  store,
		logger: log.With(slog.String("handler", "knowledge")),
	}
}

// Register registers the knowledge base routes.
func (h *KnowledgeHandler) Register(e *echo.Echo) {
	e.POST("/knowledge", h.Add)
	e.DELETE("/knowledge", h.Clear)
}

type addKnowledgeRequest struct {
	Documents []string `json:"documents" validate:"required,min=1,dive,required"`
	Source    string   `json:"source"`
}

type addKnowledgeResponse struct {
	Status string `json:"status"`
	Added  int    `json:"added"`
}

// Add embeds and upserts documents into the knowledge base.
func (h *KnowledgeHandler) Add(c echo.Context) error {
	var req addKnowledgeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Source == "" {
		req.Source = "manual"
	}

	added, err := h.store.AddDocuments(c.Request().Context(), req.Documents, req.Source)
	if err != nil {
		h.logger.Error("knowledge ingest failed",
			slog.Int("documents", len(req.Documents)),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, addKnowledgeResponse{Status: "success", Added: added})
}

// Clear drops and recreates the knowledge collection.
func (h *KnowledgeHandler) Clear(c echo.Context) error {
	if err := h.store.Wipe(c.Request().Context()); err != nil {
		h.logger.Error("knowledge wipe failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "knowledge base cleared"})
}
