package inbound

import (
	"errors"
	"strings"
	"time"
)

// ErrValidation marks inbound payloads that are malformed or not actionable.
// Such payloads are acknowledged to the caller and dropped; they never start
// a pipeline run.
var ErrValidation = errors.New("invalid inbound payload")

// ContentType classifies the inbound message content.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
)

// Message is the canonical inbound message every provider payload is
// normalized into. Sender holds the canonical identity used as the
// conversation and dedup key.
type Message struct {
	ExternalID  string
	Sender      string
	Receiver    string
	DisplayName string
	Content     string
	Type        ContentType
	ReceivedAt  time.Time
}

// Normalizer converts one provider-specific webhook payload into the
// canonical Message. Each provider format is a separate implementation.
type Normalizer interface {
	Normalize(payload []byte) (Message, error)
}

// CanonicalIdentity reduces a provider-formatted address to the canonical
// digits-only identity. Providers insert separators between country code and
// subscriber number ("+55|82999464789"), formatting ("(82) 99946-4789"), or a
// leading plus; all of it is stripped.
func CanonicalIdentity(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
