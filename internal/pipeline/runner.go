package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/converseai/converse/internal/conversation"
	"github.com/converseai/converse/internal/gateway"
)

// Stage names, used for failure telemetry. A run terminates at the first
// failing stage; later stages never execute.
const (
	stageConversation = "conversation"
	stageSaveIncoming = "save_incoming"
	stageHistory      = "history"
	stageSaveReply    = "save_reply"
	stageDispatch     = "dispatch"
)

// ContextRetriever supplies grounding documents for a query.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, query string, history []conversation.Message) []string
}

// ReplyGenerator produces the reply text. Implementations never fail
// user-visibly; generation errors degrade to a fixed apology.
type ReplyGenerator interface {
	Reply(ctx context.Context, userMessage string, contextDocs []string, history []conversation.Message) string
}

// Dispatcher delivers the reply through the messaging gateway.
type Dispatcher interface {
	Send(ctx context.Context, msg gateway.OutboundMessage) bool
}

// Runner executes the staged pipeline for one admitted task.
type Runner struct {
	store        conversation.Store
	fallback     conversation.Store
	retriever    ContextRetriever
	generator    ReplyGenerator
	dispatcher   Dispatcher
	historyLimit int
	logger       *slog.Logger
}

// NewRunner creates a pipeline runner. fallback may be nil; when set, runs
// that hit an unavailable conversation store degrade to it instead of
// failing.
func NewRunner(log *slog.Logger, store conversation.Store, fallback conversation.Store, retriever ContextRetriever, generator ReplyGenerator, dispatcher Dispatcher, historyLimit int) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Runner{
		store:        store,
		fallback:     fallback,
		retriever:    retriever,
		generator:    generator,
		dispatcher:   dispatcher,
		historyLimit: historyLimit,
		logger:       log.With(slog.String("service", "pipeline")),
	}
}

// Process runs all stages for one task. Stages execute strictly in order;
// the first failure terminates the run.
func (r *Runner) Process(ctx context.Context, task Task) error {
	log := r.logger.With(slog.String("identity", task.Identity))

	store := r.store
	conv, err := store.GetOrCreate(ctx, task.Identity, task.DisplayName)
	if err != nil && r.fallback != nil && errors.Is(err, conversation.ErrPersistenceUnavailable) {
		log.Warn("conversation store unavailable, degrading to in-memory fallback",
			slog.Bool("degraded", true),
			slog.Any("error", err))
		store = r.fallback
		conv, err = store.GetOrCreate(ctx, task.Identity, task.DisplayName)
	}
	if err != nil {
		return stageFailure(log, stageConversation, err)
	}
	log = log.With(slog.String("conversation_id", conv.ID))

	incoming := conversation.Message{
		ConversationID:    conv.ID,
		Sender:            task.Identity,
		Receiver:          task.Receiver,
		ExternalMessageID: task.ExternalMessageID,
		Content:           task.Content,
		Type:              conversation.TypeText,
		Direction:         conversation.DirectionIncoming,
		CreatedAt:         task.ReceivedAt,
	}
	if _, err := store.SaveMessage(ctx, incoming); err != nil {
		return stageFailure(log, stageSaveIncoming, err)
	}

	history, err := store.History(ctx, conv.ID, r.historyLimit)
	if err != nil {
		return stageFailure(log, stageHistory, err)
	}
	// The just-saved incoming message is excluded from the prompt history;
	// it is rendered separately as the current message.
	history = withoutCurrent(history, task)

	contextDocs := r.retriever.RetrieveContext(ctx, task.Content, history)

	reply := r.generator.Reply(ctx, task.Content, contextDocs, history)

	outgoing := conversation.Message{
		ConversationID: conv.ID,
		Sender:         task.Receiver,
		Receiver:       task.Identity,
		Content:        reply,
		Type:           conversation.TypeText,
		Direction:      conversation.DirectionOutgoing,
		Metadata:       map[string]any{"conversation_id": conv.ID},
	}
	if _, err := store.SaveMessage(ctx, outgoing); err != nil {
		return stageFailure(log, stageSaveReply, err)
	}

	delivered := r.dispatcher.Send(ctx, gateway.OutboundMessage{
		To:       task.Identity,
		Text:     reply,
		Metadata: map[string]any{"conversation_id": conv.ID},
	})
	if !delivered {
		return stageFailure(log, stageDispatch, fmt.Errorf("gateway rejected delivery"))
	}

	now := time.Now().UTC()
	if err := store.UpdateConversation(ctx, conv.ID, conversation.Update{LastMessageAt: &now}); err != nil {
		// The reply is already delivered; a failed timestamp refresh is not a
		// run failure.
		log.Warn("refresh conversation after dispatch failed", slog.Any("error", err))
	}

	log.Info("pipeline run completed")
	return nil
}

func stageFailure(log *slog.Logger, stage string, err error) error {
	log.Error("pipeline run failed",
		slog.String("stage", stage),
		slog.Any("error", err))
	return fmt.Errorf("stage %s: %w", stage, err)
}

// withoutCurrent drops the trailing history entry when it is the message
// being processed.
func withoutCurrent(history []conversation.Message, task Task) []conversation.Message {
	if len(history) == 0 {
		return history
	}
	last := history[len(history)-1]
	if last.Direction == conversation.DirectionIncoming && last.Content == task.Content {
		return history[:len(history)-1]
	}
	return history
}
