package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is a persisted conversation message
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	Metadata       string // JSON blob, empty when none
	CreatedAt      time.Time
}

const messageColumns = `id, conversation_id, role, content, metadata, created_at`

// SaveMessage appends a message to a conversation and bumps the thread's
// updated_at, both inside one transaction on a freshly acquired connection.
func (s *Store) SaveMessage(ctx context.Context, conversationID uuid.UUID, role, content, metadata string) (*Message, error) {
	msg := &Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}

	err := s.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID.String(), msg.ConversationID.String(), msg.Role, msg.Content, msg.Metadata, msg.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ? WHERE id = ?`,
			msg.CreatedAt, msg.ConversationID.String()); err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// ListMessages returns a conversation's messages oldest first
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = ? ORDER BY created_at ASC LIMIT ? OFFSET ?`,
		conversationID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// CountMessages returns how many messages a conversation holds
func (s *Store) CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`,
		conversationID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// recentMessages returns the newest limit messages in chronological order
func recentMessages(ctx context.Context, q querier, conversationID uuid.UUID, limit int) ([]Message, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = ? ORDER BY created_at DESC LIMIT ?`,
		conversationID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse newest-first into oldest-first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		var msgID, convID string
		if err := rows.Scan(&msgID, &convID, &msg.Role, &msg.Content, &msg.Metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		var err error
		if msg.ID, err = uuid.Parse(msgID); err != nil {
			return nil, fmt.Errorf("invalid message id %q: %w", msgID, err)
		}
		if msg.ConversationID, err = uuid.Parse(convID); err != nil {
			return nil, fmt.Errorf("invalid conversation id %q: %w", convID, err)
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
