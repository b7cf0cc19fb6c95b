package conversation

import (
	"context"
	"errors"
	"time"
)

// Direction tells whether a message flowed into or out of the system.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// MessageType classifies message content.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeAudio MessageType = "audio"
	TypeVideo MessageType = "video"
)

const defaultPlatform = "whatsapp"

var (
	// ErrPersistenceUnavailable marks store operations that failed because the
	// backing database is unreachable.
	ErrPersistenceUnavailable = errors.New("conversation store unavailable")
	// ErrNotFound marks lookups for conversations that do not exist.
	ErrNotFound = errors.New("conversation not found")
)

// Message is one persisted conversation message. Immutable once saved.
type Message struct {
	ID                string         `json:"id"`
	ConversationID    string         `json:"conversation_id"`
	Platform          string         `json:"platform"`
	Sender            string         `json:"sender"`
	Receiver          string         `json:"receiver"`
	ExternalMessageID string         `json:"external_message_id,omitempty"`
	Content           string         `json:"content"`
	Type              MessageType    `json:"message_type"`
	Direction         Direction      `json:"direction"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Conversation groups all messages exchanged with one sender identity.
type Conversation struct {
	ID            string    `json:"id"`
	PhoneNumber   string    `json:"phone_number"`
	UserName      string    `json:"user_name,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
}

// Update describes a partial conversation update. Nil fields are left
// untouched; updated_at is always stamped.
type Update struct {
	Status        *string
	UserName      *string
	LastMessageAt *time.Time
}

// Store is the conversation state manager contract the pipeline runs against.
type Store interface {
	// GetOrCreate resolves the canonical conversation for an identity,
	// creating an active one on first contact. Lookup takes the most
	// recently created match.
	GetOrCreate(ctx context.Context, identity, displayName string) (Conversation, error)
	// Lookup returns the canonical conversation without creating one.
	Lookup(ctx context.Context, identity string) (Conversation, error)
	// SaveMessage appends a message, assigning an id when absent.
	SaveMessage(ctx context.Context, msg Message) (string, error)
	// History returns up to limit most recent messages in chronological
	// (oldest-first) order.
	History(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// UpdateConversation applies a partial update, stamping updated_at.
	UpdateConversation(ctx context.Context, conversationID string, upd Update) error
}
