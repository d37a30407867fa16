package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/api/v1/middleware"
	"github.com/savvyfin/advisor/internal/connections"
	"github.com/savvyfin/advisor/internal/services/advisor"
	"github.com/savvyfin/advisor/internal/services/advisor/models"
	"github.com/savvyfin/advisor/internal/store"
	"github.com/savvyfin/advisor/pkg/httpext"
)

type chatRequest struct {
	ConversationID string  `json:"conversation_id"`
	Message        string  `json:"message" validate:"required"`
	UsePersona     bool    `json:"use_persona"`
	Stream         bool    `json:"stream"`
	Model          string  `json:"model"`
	Temperature    float32 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens      int     `json:"max_tokens" validate:"omitempty,gte=0"`
}

type chatMessagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ConversationID string             `json:"conversation_id"`
	Message        chatMessagePayload `json:"message"`
}

// streamFrame is one server-sent event payload. Type is "chunk", "error"
// or "done"; the other fields are filled per type.
type streamFrame struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	Error          string `json:"error,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Outcome        string `json:"outcome,omitempty"`
}

// HandleChat runs one advisory exchange: it resolves the conversation,
// persists the user message, streams the generated response and leaves
// persistence of the outcome to the coordinator.
func HandleChat(advisorService *advisor.Service, st *store.Store, manager *connections.Manager, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed chat request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		jsonValidationError(w, err)
		return
	}

	conv, ok := resolveChatConversation(st, w, r, userID, req)
	if !ok {
		return
	}

	cc, err := advisorService.PrepareContext(r.Context(), userID, conv.ID, req.UsePersona)
	if err != nil {
		switch {
		case errors.Is(err, advisor.ErrContextUnavailable):
			httpext.JsonError(w, "Conversation not found", http.StatusNotFound)
		case errors.Is(err, advisor.ErrResourceUnavailable):
			log.Warn().Err(err).Msg("Connection pool saturated, rejecting chat request")
			httpext.JsonError(w, "Service is busy, please retry", http.StatusServiceUnavailable)
		default:
			log.Error().Err(err).Msg("Failed to prepare conversation context")
			httpext.JsonError(w, "Failed to prepare conversation", http.StatusInternalServerError)
		}
		return
	}

	// The user turn is recorded before any generation so a failed stream
	// still leaves the question in the history.
	if _, err := st.SaveMessage(r.Context(), conv.ID, models.RoleUser, req.Message, ""); err != nil {
		log.Error().Err(err).Msg("Failed to persist user message")
		httpext.JsonError(w, "Failed to save message", http.StatusInternalServerError)
		return
	}

	session := advisor.NewStreamSession(cc, req.Message, models.ChatOptions{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})

	// Persist the outcome no matter how the handler exits.
	defer advisorService.Finalize(r.Context(), session)

	if req.Stream {
		streamID := manager.Register(userID, "sse")
		defer manager.Release(streamID)
		streamChat(advisorService, session, conv.ID, w, r)
		return
	}

	streamID := manager.Register(userID, "http")
	defer manager.Release(streamID)
	respondChat(advisorService, session, conv.ID, w, r)
}

// errInvalidConversationID marks a conversation_id that is not a UUID
var errInvalidConversationID = errors.New("invalid conversation id")

// lookupChatConversation loads the requested thread, verifying ownership, or
// starts a new one titled after the opening message.
func lookupChatConversation(ctx context.Context, st *store.Store, userID uuid.UUID, req chatRequest) (*store.Conversation, error) {
	if req.ConversationID == "" {
		return st.CreateConversation(ctx, userID, conversationTitle(req.Message))
	}

	id, err := uuid.Parse(req.ConversationID)
	if err != nil {
		return nil, errInvalidConversationID
	}

	conv, err := st.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, store.ErrNotOwner
	}

	return conv, nil
}

func resolveChatConversation(st *store.Store, w http.ResponseWriter, r *http.Request, userID uuid.UUID, req chatRequest) (*store.Conversation, bool) {
	conv, err := lookupChatConversation(r.Context(), st, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, errInvalidConversationID):
			httpext.JsonError(w, "Invalid conversation id", http.StatusBadRequest)
		case errors.Is(err, store.ErrNotFound):
			httpext.JsonError(w, "Conversation not found", http.StatusNotFound)
		case errors.Is(err, store.ErrNotOwner):
			httpext.JsonError(w, "Not enough permissions", http.StatusForbidden)
		default:
			log.Error().Err(err).Msg("Failed to resolve conversation")
			httpext.JsonError(w, "Failed to resolve conversation", http.StatusInternalServerError)
		}
		return nil, false
	}

	return conv, true
}

// conversationTitle derives a thread title from the opening message
func conversationTitle(message string) string {
	runes := []rune(message)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return message
}

// respondChat runs the stream to completion internally and answers with a
// single JSON document.
func respondChat(advisorService *advisor.Service, session *advisor.StreamSession, conversationID uuid.UUID, w http.ResponseWriter, r *http.Request) {
	discard := func(string) error { return nil }
	streamErr := advisorService.StreamTokens(r.Context(), session, discard)

	// Record the assistant turn before answering so the history endpoint
	// reflects it as soon as the client sees the response.
	advisorService.Finalize(r.Context(), session)

	if streamErr != nil && session.Chunks() == 0 {
		log.Error().Err(streamErr).Msg("Completion produced no output")
		httpext.JsonError(w, "Failed to generate a response", http.StatusBadGateway)
		return
	}
	if streamErr != nil {
		log.Warn().Err(streamErr).Int("chunks", session.Chunks()).Msg("Returning partial completion")
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(chatResponse{
		ConversationID: conversationID.String(),
		Message: chatMessagePayload{
			Role:    models.RoleAssistant,
			Content: session.Accumulated(),
		},
	}); err != nil {
		log.Error().Err(err).Msg("Failed to encode chat response")
	}
}

// streamChat forwards chunks as server-sent events. Once the stream is open
// every failure is reported inside the stream, never as an HTTP status.
func streamChat(advisorService *advisor.Service, session *advisor.StreamSession, conversationID uuid.UUID, w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpext.JsonError(w, "Streaming is not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := func(fragment string) error {
		return writeFrame(w, flusher, streamFrame{Type: "chunk", Content: fragment})
	}

	if err := advisorService.StreamTokens(r.Context(), session, sink); err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID.String()).Msg("Completion stream failed")
		_ = writeFrame(w, flusher, streamFrame{Type: "error", Error: "The advisor could not complete this response"})
	}

	advisorService.Finalize(r.Context(), session)

	_ = writeFrame(w, flusher, streamFrame{
		Type:           "done",
		ConversationID: conversationID.String(),
		Outcome:        string(session.Outcome()),
	})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, frame streamFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
