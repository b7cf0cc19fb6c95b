package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/converseai/converse/internal/conversation"
	"github.com/converseai/converse/internal/inbound"
)

// ConversationHandler exposes read access to persisted conversations.
type ConversationHandler struct {
	store        conversation.Store
	historyLimit int
	logger       *slog.Logger
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(log *slog.Logger, store conversation.Store, historyLimit int) *ConversationHandler {
	if log == nil {
		log = slog.Default()
	}
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ConversationHandler{
		store:        store,
		historyLimit: historyLimit,
		logger:       log.With(slog.String("handler", "conversation")),
	}
}

// Register registers the conversation lookup route.
func (h *ConversationHandler) Register(e *echo.Echo) {
	e.GET("/conversation/:identity", h.Get)
}

type conversationResponse struct {
	Conversation conversation.Conversation `json:"conversation"`
	Messages     []conversation.Message    `json:"messages"`
}

// Get returns the canonical conversation for an identity with its recent
// history. The identity path segment accepts any provider formatting; it is
// canonicalized before lookup.
func (h *ConversationHandler) Get(c echo.Context) error {
	identity := inbound.CanonicalIdentity(c.Param("identity"))
	if identity == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identity is required")
	}

	ctx := c.Request().Context()
	conv, err := h.store.Lookup(ctx, identity)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		h.logger.Error("conversation lookup failed",
			slog.String("identity", identity),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	messages, err := h.store.History(ctx, conv.ID, h.historyLimit)
	if err != nil {
		h.logger.Error("history lookup failed",
			slog.String("conversation_id", conv.ID),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, conversationResponse{Conversation: conv, Messages: messages})
}
