package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// ConversationSnapshot bundles every row the chat pipeline reads before
// streaming begins: the requesting user, the target conversation, its recent
// history and, when requested, the user's persona.
type ConversationSnapshot struct {
	User         *User
	Conversation *Conversation
	Messages     []Message
	Persona      *PersonaProfile // nil when absent or not requested
}

// LoadConversationSnapshot performs all pre-stream reads on one scoped
// connection. The connection returns to the pool before this function does,
// on success and on every error path, so nothing stays checked out while the
// caller streams.
//
// Returns ErrNotFound when the user or conversation is missing and
// ErrNotOwner when the conversation belongs to a different user.
func (s *Store) LoadConversationSnapshot(ctx context.Context, userID, conversationID uuid.UUID, historyLimit int, includePersona bool) (*ConversationSnapshot, error) {
	var snap ConversationSnapshot

	err := s.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		user, err := getUserByID(ctx, conn, userID)
		if err != nil {
			return err
		}
		snap.User = user

		conv, err := getConversation(ctx, conn, conversationID)
		if err != nil {
			return err
		}
		if conv.UserID != userID {
			return ErrNotOwner
		}
		snap.Conversation = conv

		messages, err := recentMessages(ctx, conn, conversationID, historyLimit)
		if err != nil {
			return err
		}
		snap.Messages = messages

		if includePersona {
			persona, err := getPersonaByUserID(ctx, conn, userID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			snap.Persona = persona
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &snap, nil
}
