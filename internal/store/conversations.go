package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is a chat thread row
type Conversation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const conversationColumns = `id, user_id, title, created_at, updated_at`

// CreateConversation starts a new thread for a user
func (s *Store) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*Conversation, error) {
	now := time.Now().UTC()
	conv := &Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID.String(), conv.UserID.String(), conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

// GetConversation fetches a thread by id
func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return getConversation(ctx, s.db, id)
}

// ListConversations returns a user's threads, most recently updated first
func (s *Store) ListConversations(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE user_id = ? ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		userID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]Conversation, 0)
	for rows.Next() {
		conv, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}

	return conversations, rows.Err()
}

// RenameConversation updates a thread title
func (s *Store) RenameConversation(ctx context.Context, id uuid.UUID, title string) (*Conversation, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to rename conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}

	return s.GetConversation(ctx, id)
}

// DeleteConversation removes a thread and its messages
func (s *Store) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	return s.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE conversation_id = ?`, id.String()); err != nil {
			return fmt.Errorf("failed to delete conversation messages: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id.String())
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func getConversation(ctx context.Context, q querier, id uuid.UUID) (*Conversation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id.String())

	var conv Conversation
	var convID, userID string
	err := row.Scan(&convID, &userID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	if conv.ID, err = uuid.Parse(convID); err != nil {
		return nil, fmt.Errorf("invalid conversation id %q: %w", convID, err)
	}
	if conv.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	return &conv, nil
}

func scanConversationRow(rows *sql.Rows) (*Conversation, error) {
	var conv Conversation
	var convID, userID string
	if err := rows.Scan(&convID, &userID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	var err error
	if conv.ID, err = uuid.Parse(convID); err != nil {
		return nil, fmt.Errorf("invalid conversation id %q: %w", convID, err)
	}
	if conv.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	return &conv, nil
}
