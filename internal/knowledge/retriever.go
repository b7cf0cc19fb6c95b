package knowledge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/converseai/converse/internal/conversation"
	"github.com/converseai/converse/internal/embeddings"
)

// queryExpansionTurns is how many trailing history messages are appended to
// the search query. Cheap pseudo-relevance feedback, not query reformulation.
const queryExpansionTurns = 3

// Searcher is the nearest-neighbor search surface the retriever needs.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]Document, error)
}

// Retriever embeds a (possibly history-expanded) query and returns the most
// similar knowledge documents.
type Retriever struct {
	embedder embeddings.Embedder
	searcher Searcher
	topK     int
	logger   *slog.Logger
}

// NewRetriever creates a context retriever.
func NewRetriever(log *slog.Logger, embedder embeddings.Embedder, searcher Searcher, topK int) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
		logger:   log.With(slog.String("service", "retriever")),
	}
}

// RetrieveContext returns up to topK document texts for the query, expanded
// with recent history. Retrieval failures degrade to an empty context; the
// pipeline still attempts generation without grounding.
func (r *Retriever) RetrieveContext(ctx context.Context, query string, history []conversation.Message) []string {
	searchQuery := ExpandQuery(query, history)

	vector, err := r.embedder.Embed(ctx, searchQuery)
	if err != nil {
		r.logger.Warn("context retrieval degraded: embedding failed", slog.Any("error", err))
		return nil
	}

	docs, err := r.searcher.Search(ctx, vector, r.topK)
	if err != nil {
		r.logger.Warn("context retrieval degraded: search failed", slog.Any("error", err))
		return nil
	}

	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.Text != "" {
			texts = append(texts, doc.Text)
		}
	}
	return texts
}

// ExpandQuery concatenates the raw query with the text of the last
// queryExpansionTurns history entries.
func ExpandQuery(query string, history []conversation.Message) string {
	if len(history) == 0 {
		return query
	}
	start := len(history) - queryExpansionTurns
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, queryExpansionTurns+1)
	parts = append(parts, query)
	for _, msg := range history[start:] {
		parts = append(parts, msg.Content)
	}
	return strings.Join(parts, " ")
}
