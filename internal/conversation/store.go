package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SenderKind tags who authored a chat message.
type SenderKind string

const (
	SenderUser SenderKind = "user"
	SenderAI   SenderKind = "ai"
)

// User is one WhatsApp contact, keyed by normalized phone number.
type User struct {
	ID          uuid.UUID
	PhoneNumber string
	Name        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message is one turn in a user's conversation. Messages are append-only.
type Message struct {
	ID        uuid.UUID
	Seq       int64
	UserID    uuid.UUID
	Text      string
	Sender    SenderKind
	CreatedAt time.Time
}

// Querier is the subset of pgx used by store methods, satisfied by both the
// pool and a pgx.Tx so each pipeline run can pass its own transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists users and chat history in Postgres.
type Store struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{
		pool:   pool,
		tracer: otel.Tracer("relay.internal.conversation.store"),
	}
}

// Begin opens the transactional session for one pipeline run.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// ResolveUser looks up the user by phone, creating the row on first contact.
// A non-empty incoming name replaces the stored one. The upsert rides on the
// phone_number uniqueness constraint, so concurrent first messages from the
// same number converge on a single row.
func (s *Store) ResolveUser(ctx context.Context, q Querier, phone, name string) (User, error) {
	ctx, span := s.tracer.Start(ctx, "store.resolve_user")
	defer span.End()
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO users (phone_number, name)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (phone_number) DO UPDATE
		SET name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			updated_at = now()
		RETURNING id, phone_number, COALESCE(name, ''), created_at, updated_at
	`
	var user User
	err := q.QueryRow(ctx, query, phone, name).Scan(
		&user.ID, &user.PhoneNumber, &user.Name, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return User{}, fmt.Errorf("conversation: resolve user %s: %w", phone, err)
	}
	return user, nil
}

// AppendMessage appends one turn with a server-assigned timestamp. Existing
// messages are never mutated.
func (s *Store) AppendMessage(ctx context.Context, q Querier, userID uuid.UUID, text string, sender SenderKind) (Message, error) {
	ctx, span := s.tracer.Start(ctx, "store.append_message",
		trace.WithAttributes(attribute.String("relay.sender", string(sender))))
	defer span.End()
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO chat_messages (user_id, message, sender)
		VALUES ($1, $2, $3)
		RETURNING id, seq, created_at
	`
	msg := Message{
		UserID: userID,
		Text:   text,
		Sender: sender,
	}
	err := q.QueryRow(ctx, query, userID, text, string(sender)).Scan(&msg.ID, &msg.Seq, &msg.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return Message{}, fmt.Errorf("conversation: append %s message: %w", sender, err)
	}
	return msg, nil
}

// RecentHistory returns at most limit messages for the user in chronological
// order. The query fetches newest-first and the slice is reversed; seq breaks
// ties between messages sharing a timestamp.
func (s *Store) RecentHistory(ctx context.Context, q Querier, userID uuid.UUID, limit int) ([]Message, error) {
	ctx, span := s.tracer.Start(ctx, "store.recent_history")
	defer span.End()
	if q == nil {
		q = s.pool
	}
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT id, seq, user_id, message, sender, created_at
		FROM chat_messages
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`
	rows, err := q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: query history: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var sender string
		if err := rows.Scan(&msg.ID, &msg.Seq, &msg.UserID, &msg.Text, &sender, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan history row: %w", err)
		}
		msg.Sender = SenderKind(sender)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate history: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
