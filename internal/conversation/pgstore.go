package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/converseai/converse/internal/db"
)

// PGStore persists conversations and messages in Postgres.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGStore creates the Postgres-backed conversation store.
func NewPGStore(log *slog.Logger, pool *pgxpool.Pool) *PGStore {
	if log == nil {
		log = slog.Default()
	}
	return &PGStore{
		pool:   pool,
		logger: log.With(slog.String("service", "conversation")),
	}
}

// GetOrCreate looks up the newest conversation for an identity and creates an
// active one when none exists. Sequential calls for the same identity return
// the same row; concurrent creation races are prevented upstream by the
// per-sender admission guard, not here.
func (s *PGStore) GetOrCreate(ctx context.Context, identity, displayName string) (Conversation, error) {
	conv, err := s.Lookup(ctx, identity)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, err
	}

	now := time.Now().UTC()
	conv = Conversation{
		ID:          uuid.NewString(),
		PhoneNumber: identity,
		UserName:    displayName,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	pgID, err := dbpkg.ParseUUID(conv.ID)
	if err != nil {
		return Conversation{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversations (id, phone_number, user_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		pgID, conv.PhoneNumber, dbpkg.ToPgText(conv.UserName), conv.Status,
		dbpkg.Timestamptz(conv.CreatedAt), dbpkg.Timestamptz(conv.UpdatedAt))
	if err != nil {
		return Conversation{}, unavailable("create conversation", err)
	}
	s.logger.Info("conversation created",
		slog.String("conversation_id", conv.ID),
		slog.String("identity", identity))
	return conv, nil
}

// Lookup returns the most recently created conversation for an identity.
func (s *PGStore) Lookup(ctx context.Context, identity string) (Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, phone_number, user_name, status, created_at, updated_at, last_message_at
		 FROM conversations
		 WHERE phone_number = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, identity)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, unavailable("lookup conversation", err)
	}
	return conv, nil
}

// SaveMessage appends one message, assigning a generated id when absent.
func (s *PGStore) SaveMessage(ctx context.Context, msg Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Platform == "" {
		msg.Platform = defaultPlatform
	}
	if msg.Type == "" {
		msg.Type = TypeText
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	pgID, err := dbpkg.ParseUUID(msg.ID)
	if err != nil {
		return "", err
	}
	pgConvID, err := dbpkg.ParseUUID(msg.ConversationID)
	if err != nil {
		return "", fmt.Errorf("invalid conversation id: %w", err)
	}
	metaBytes, err := json.Marshal(nonNilMap(msg.Metadata))
	if err != nil {
		return "", fmt.Errorf("marshal message metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, platform, sender, receiver,
		                       external_message_id, content, message_type, direction, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pgID, pgConvID, msg.Platform, msg.Sender, msg.Receiver,
		dbpkg.ToPgText(msg.ExternalMessageID), msg.Content, string(msg.Type),
		string(msg.Direction), metaBytes, dbpkg.Timestamptz(msg.CreatedAt))
	if err != nil {
		return "", unavailable("save message", err)
	}
	return msg.ID, nil
}

// History fetches the limit most recent messages and reverses them into
// chronological order.
func (s *PGStore) History(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	pgConvID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, platform, sender, receiver,
		        external_message_id, content, message_type, direction, metadata, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, pgConvID, limit)
	if err != nil {
		return nil, unavailable("fetch history", err)
	}
	defer rows.Close()

	newestFirst := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, unavailable("scan history row", err)
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("fetch history", err)
	}

	history := make([]Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		history = append(history, newestFirst[i])
	}
	return history, nil
}

// UpdateConversation applies a partial update, always stamping updated_at.
func (s *PGStore) UpdateConversation(ctx context.Context, conversationID string, upd Update) error {
	pgConvID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	var status, userName pgtype.Text
	if upd.Status != nil {
		status = dbpkg.ToPgText(*upd.Status)
	}
	if upd.UserName != nil {
		userName = dbpkg.ToPgText(*upd.UserName)
	}
	var lastMessageAt pgtype.Timestamptz
	if upd.LastMessageAt != nil {
		lastMessageAt = dbpkg.Timestamptz(*upd.LastMessageAt)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE conversations
		 SET status = COALESCE($2, status),
		     user_name = COALESCE($3, user_name),
		     last_message_at = COALESCE($4, last_message_at),
		     updated_at = $5
		 WHERE id = $1`,
		pgConvID, status, userName, lastMessageAt, dbpkg.Timestamptz(time.Now().UTC()))
	if err != nil {
		return unavailable("update conversation", err)
	}
	return nil
}

// Healthy reports whether the database answers a ping.
func (s *PGStore) Healthy(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		id            pgtype.UUID
		userName      pgtype.Text
		lastMessageAt pgtype.Timestamptz
		conv          Conversation
		createdAt     pgtype.Timestamptz
		updatedAt     pgtype.Timestamptz
	)
	if err := row.Scan(&id, &conv.PhoneNumber, &userName, &conv.Status, &createdAt, &updatedAt, &lastMessageAt); err != nil {
		return Conversation{}, err
	}
	conv.ID = uuid.UUID(id.Bytes).String()
	conv.UserName = dbpkg.TextToString(userName)
	conv.CreatedAt = createdAt.Time
	conv.UpdatedAt = updatedAt.Time
	if lastMessageAt.Valid {
		conv.LastMessageAt = lastMessageAt.Time
	}
	return conv, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		id         pgtype.UUID
		convID     pgtype.UUID
		externalID pgtype.Text
		msgType    string
		direction  string
		metaBytes  []byte
		createdAt  pgtype.Timestamptz
		msg        Message
	)
	if err := row.Scan(&id, &convID, &msg.Platform, &msg.Sender, &msg.Receiver,
		&externalID, &msg.Content, &msgType, &direction, &metaBytes, &createdAt); err != nil {
		return Message{}, err
	}
	msg.ID = uuid.UUID(id.Bytes).String()
	msg.ConversationID = uuid.UUID(convID.Bytes).String()
	msg.ExternalMessageID = dbpkg.TextToString(externalID)
	msg.Type = MessageType(msgType)
	msg.Direction = Direction(direction)
	msg.CreatedAt = createdAt.Time
	if len(metaBytes) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(metaBytes, &meta); err == nil && len(meta) > 0 {
			msg.Metadata = meta
		}
	}
	return msg, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistenceUnavailable, op, err)
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
