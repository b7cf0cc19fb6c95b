package chat

import (
	"context"
	"log/slog"

	"github.com/converseai/converse/internal/conversation"
)

// Apology is the fixed degraded reply sent when generation fails. Raw backend
// errors never reach the end user.
const Apology = "Desculpe, houve um erro ao processar sua mensagem. Tente novamente em alguns instantes."

// Generator builds the prompt and produces the reply text.
type Generator struct {
	llm    LLM
	logger *slog.Logger
}

// NewGenerator creates a response generator.
func NewGenerator(log *slog.Logger, llm LLM) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		llm:    llm,
		logger: log.With(slog.String("service", "generator")),
	}
}

// Reply generates the answer for userMessage grounded on contextDocs and
// recent history. The result is always a non-empty string: backend failures
// degrade to the fixed apology.
func (g *Generator) Reply(ctx context.Context, userMessage string, contextDocs []string, history []conversation.Message) string {
	prompt := BuildPrompt(userMessage, contextDocs, history)
	reply, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		g.logger.Error("generation failed, replying with apology", slog.Any("error", err))
		return Apology
	}
	return reply
}
