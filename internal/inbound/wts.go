package inbound

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// WTSNormalizer parses WTS chat webhook payloads (WhatsApp sessions).
type WTSNormalizer struct {
	logger *slog.Logger
}

// NewWTSNormalizer creates a WTS webhook normalizer.
func NewWTSNormalizer(log *slog.Logger) *WTSNormalizer {
	if log == nil {
		log = slog.Default()
	}
	return &WTSNormalizer{logger: log.With(slog.String("component", "wts_normalizer"))}
}

type wtsPayload struct {
	Channel struct {
		Platform string `json:"platform"`
		Key      string `json:"key"`
		Number   string `json:"number"`
	} `json:"channel"`
	Contact struct {
		Name        string `json:"name"`
		PhoneNumber string `json:"phonenumber"`
	} `json:"contact"`
	LastContactMessage string `json:"lastContactMessage"`
	LastMessage        struct {
		ID        string `json:"id"`
		CreatedAt string `json:"createdAt"`
		Type      string `json:"type"`
		Text      string `json:"text"`
	} `json:"lastMessage"`
}

// Normalize extracts the canonical incoming message from a WTS webhook
// payload. Non-WhatsApp events, non-text content, and payloads missing the
// sender or text are rejected with ErrValidation.
func (n *WTSNormalizer) Normalize(payload []byte) (Message, error) {
	var data wtsPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		return Message{}, fmt.Errorf("%w: malformed JSON: %v", ErrValidation, err)
	}

	if !strings.EqualFold(strings.TrimSpace(data.Channel.Platform), "whatsapp") {
		return Message{}, fmt.Errorf("%w: unsupported platform %q", ErrValidation, data.Channel.Platform)
	}
	if msgType := strings.TrimSpace(data.LastMessage.Type); msgType != "" && !strings.EqualFold(msgType, "TEXT") {
		return Message{}, fmt.Errorf("%w: unsupported message type %q", ErrValidation, msgType)
	}

	text := strings.TrimSpace(data.LastMessage.Text)
	if text == "" {
		text = strings.TrimSpace(data.LastContactMessage)
	}
	if text == "" {
		return Message{}, fmt.Errorf("%w: missing message text", ErrValidation)
	}

	sender := CanonicalIdentity(data.Contact.PhoneNumber)
	if sender == "" {
		return Message{}, fmt.Errorf("%w: missing sender phone number", ErrValidation)
	}

	receiver := CanonicalIdentity(data.Channel.Number)
	if receiver == "" {
		receiver = CanonicalIdentity(data.Channel.Key)
	}

	receivedAt := time.Now().UTC()
	if raw := strings.TrimSpace(data.LastMessage.CreatedAt); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			receivedAt = parsed.UTC()
		}
	}

	return Message{
		ExternalID:  strings.TrimSpace(data.LastMessage.ID),
		Sender:      sender,
		Receiver:    receiver,
		DisplayName: strings.TrimSpace(data.Contact.Name),
		Content:     text,
		Type:        ContentText,
		ReceivedAt:  receivedAt,
	}, nil
}

// Direct builds a canonical Message from the direct submission endpoint
// fields, applying the same identity canonicalization and validation rules
// as webhook payloads.
func Direct(phoneNumber, text, externalID, userName string) (Message, error) {
	sender := CanonicalIdentity(phoneNumber)
	if sender == "" {
		return Message{}, fmt.Errorf("%w: missing sender phone number", ErrValidation)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, fmt.Errorf("%w: missing message text", ErrValidation)
	}
	return Message{
		ExternalID:  strings.TrimSpace(externalID),
		Sender:      sender,
		DisplayName: strings.TrimSpace(userName),
		Content:     text,
		Type:        ContentText,
		ReceivedAt:  time.Now().UTC(),
	}, nil
}
