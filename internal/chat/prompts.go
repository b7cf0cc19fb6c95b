package chat

import (
	"fmt"
	"strings"

	"github.com/converseai/converse/internal/conversation"
)

// historyTurns is how many trailing conversation turns are rendered into the
// prompt.
const historyTurns = 5

const (
	roleCustomer  = "Cliente"
	roleAssistant = "Assistente"
)

// BuildPrompt assembles the single generation prompt: fixed instruction
// block, retrieved context block, recent history block, and the new customer
// message.
func BuildPrompt(userMessage string, contextDocs []string, history []conversation.Message) string {
	contextText := strings.Join(contextDocs, "\n")

	var historyText strings.Builder
	start := len(history) - historyTurns
	if start < 0 {
		start = 0
	}
	for _, msg := range history[start:] {
		role := roleAssistant
		if msg.Direction == conversation.DirectionIncoming {
			role = roleCustomer
		}
		fmt.Fprintf(&historyText, "%s: %s\n", role, msg.Content)
	}

	return fmt.Sprintf(`Você é um assistente virtual prestativo que responde mensagens de WhatsApp.

Base de Conhecimento:
%s

Histórico da Conversa:
%s
Mensagem atual do cliente: %s

Instruções:
- Responda de forma útil, amigável e concisa
- Use o conhecimento fornecido quando relevante
- Mantenha o contexto da conversa
- Se não souber algo, seja honesto
- Responda em português brasileiro
- Mantenha o tom conversacional e profissional
- Não cumprimente o cliente; responda diretamente

Resposta:`, contextText, historyText.String(), userMessage)
}
