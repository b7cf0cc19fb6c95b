package knowledge

import "errors"

// ErrRetrievalUnavailable marks vector store operations that failed because
// the backend is unreachable. Context retrieval treats it as non-fatal.
var ErrRetrievalUnavailable = errors.New("knowledge store unavailable")

// Payload field names stored with each knowledge point.
const (
	payloadDocument = "document"
	payloadSource   = "source"
	payloadAddedAt  = "added_at"
)

// Document is one retrieved knowledge snippet with its stored metadata.
type Document struct {
	Text    string
	Source  string
	AddedAt string
	Score   float32
}
