package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converseai/converse/internal/conversation"
)

type fakeEmbedder struct {
	lastInput string
	vector    []float32
	err       error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.lastInput = text
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }

type fakeSearcher struct {
	lastVector []float32
	lastLimit  int
	docs       []Document
	err        error
}

func (f *fakeSearcher) Search(_ context.Context, vector []float32, limit int) ([]Document, error) {
	f.lastVector = vector
	f.lastLimit = limit
	return f.docs, f.err
}

func historyOf(texts ...string) []conversation.Message {
	msgs := make([]conversation.Message, 0, len(texts))
	for _, text := range texts {
		msgs = append(msgs, conversation.Message{Content: text, Direction: conversation.DirectionIncoming})
	}
	return msgs
}

func TestExpandQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hours", ExpandQuery("hours", nil))
	assert.Equal(t, "hours a b", ExpandQuery("hours", historyOf("a", "b")))
	// Only the last three history entries are appended.
	assert.Equal(t, "hours b c d", ExpandQuery("hours", historyOf("a", "b", "c", "d")))
}

func TestRetrieveContextReturnsTopDocuments(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	searcher := &fakeSearcher{docs: []Document{
		{Text: "We open 9-18", Score: 0.9},
		{Text: "Closed on Sundays", Score: 0.7},
	}}
	r := NewRetriever(nil, embedder, searcher, 3)

	docs := r.RetrieveContext(context.Background(), "what are your hours", nil)
	require.Equal(t, []string{"We open 9-18", "Closed on Sundays"}, docs)
	assert.Equal(t, "what are your hours", embedder.lastInput)
	assert.Equal(t, []float32{0.1, 0.2}, searcher.lastVector)
	assert.Equal(t, 3, searcher.lastLimit)
}

func TestRetrieveContextExpandsWithHistory(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{vector: []float32{1}}
	searcher := &fakeSearcher{}
	r := NewRetriever(nil, embedder, searcher, 3)

	r.RetrieveContext(context.Background(), "and on holidays?", historyOf("hi", "what are your hours", "we open 9-18"))
	assert.Equal(t, "and on holidays? hi what are your hours we open 9-18", embedder.lastInput)
}

func TestRetrieveContextDegradesGracefully(t *testing.T) {
	t.Parallel()

	t.Run("empty store", func(t *testing.T) {
		t.Parallel()
		r := NewRetriever(nil, &fakeEmbedder{vector: []float32{1}}, &fakeSearcher{}, 3)
		assert.Empty(t, r.RetrieveContext(context.Background(), "q", nil))
	})

	t.Run("search failure", func(t *testing.T) {
		t.Parallel()
		searcher := &fakeSearcher{err: ErrRetrievalUnavailable}
		r := NewRetriever(nil, &fakeEmbedder{vector: []float32{1}}, searcher, 3)
		assert.Empty(t, r.RetrieveContext(context.Background(), "q", nil))
	})

	t.Run("embedding failure", func(t *testing.T) {
		t.Parallel()
		r := NewRetriever(nil, &fakeEmbedder{err: errors.New("backend down")}, &fakeSearcher{}, 3)
		assert.Empty(t, r.RetrieveContext(context.Background(), "q", nil))
	})
}

func TestContentIDDeterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, contentID("same text"), contentID("same text"))
	assert.NotEqual(t, contentID("one"), contentID("two"))
	// Valid UUID shape so Qdrant accepts it as a point id.
	assert.Len(t, contentID("x"), 36)
}
