package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/api/v1/middleware"
	"github.com/savvyfin/advisor/internal/store"
	"github.com/savvyfin/advisor/pkg/httpext"
)

type conversationCreateRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type conversationUpdateRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type conversationResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func newConversationResponse(conv *store.Conversation) conversationResponse {
	return conversationResponse{
		ID:        conv.ID.String(),
		UserID:    conv.UserID.String(),
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}

func newMessageResponse(msg *store.Message) messageResponse {
	resp := messageResponse{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		Role:           msg.Role,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
	if msg.Metadata != "" {
		resp.Metadata = json.RawMessage(msg.Metadata)
	}
	return resp
}

// pagination reads skip/limit query parameters with the API's defaults
func pagination(r *http.Request) (int, int) {
	skip := 0
	limit := 100

	if v := r.URL.Query().Get("skip"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			skip = parsed
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	return skip, limit
}

// requireConversation resolves the {id} path variable to a conversation the
// caller owns, writing the error response itself when that fails.
func requireConversation(st *store.Store, w http.ResponseWriter, r *http.Request) (*store.Conversation, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpext.JsonError(w, "Invalid conversation id", http.StatusBadRequest)
		return nil, false
	}

	conv, err := st.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpext.JsonError(w, "Conversation not found", http.StatusNotFound)
			return nil, false
		}
		log.Error().Err(err).Str("conversation_id", id.String()).Msg("Failed to load conversation")
		httpext.JsonError(w, "Failed to load conversation", http.StatusInternalServerError)
		return nil, false
	}

	if conv.UserID != userID {
		httpext.JsonError(w, "Not enough permissions", http.StatusForbidden)
		return nil, false
	}

	return conv, true
}

// HandleCreateConversation starts a new thread
func HandleCreateConversation(st *store.Store, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req conversationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		jsonValidationError(w, err)
		return
	}

	conv, err := st.CreateConversation(r.Context(), userID, req.Title)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create conversation")
		httpext.JsonError(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(newConversationResponse(conv)); err != nil {
		log.Error().Err(err).Msg("Failed to encode conversation response")
	}
}

// HandleListConversations returns the caller's threads, most recent first
func HandleListConversations(st *store.Store, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	skip, limit := pagination(r)
	conversations, err := st.ListConversations(r.Context(), userID, skip, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list conversations")
		httpext.JsonError(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}

	resp := make([]conversationResponse, 0, len(conversations))
	for i := range conversations {
		resp = append(resp, newConversationResponse(&conversations[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode conversation list")
	}
}

// HandleGetConversation fetches one thread
func HandleGetConversation(st *store.Store, w http.ResponseWriter, r *http.Request) {
	conv, ok := requireConversation(st, w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newConversationResponse(conv)); err != nil {
		log.Error().Err(err).Msg("Failed to encode conversation response")
	}
}

// HandleUpdateConversation retitles a thread
func HandleUpdateConversation(st *store.Store, w http.ResponseWriter, r *http.Request) {
	conv, ok := requireConversation(st, w, r)
	if !ok {
		return
	}

	var req conversationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		jsonValidationError(w, err)
		return
	}

	updated, err := st.RenameConversation(r.Context(), conv.ID, req.Title)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to rename conversation")
		httpext.JsonError(w, "Failed to update conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newConversationResponse(updated)); err != nil {
		log.Error().Err(err).Msg("Failed to encode conversation response")
	}
}

// HandleDeleteConversation removes a thread and its messages
func HandleDeleteConversation(st *store.Store, w http.ResponseWriter, r *http.Request) {
	conv, ok := requireConversation(st, w, r)
	if !ok {
		return
	}

	if err := st.DeleteConversation(r.Context(), conv.ID); err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to delete conversation")
		httpext.JsonError(w, "Failed to delete conversation", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListMessages returns a thread's messages oldest first
func HandleListMessages(st *store.Store, w http.ResponseWriter, r *http.Request) {
	conv, ok := requireConversation(st, w, r)
	if !ok {
		return
	}

	skip, limit := pagination(r)
	messages, err := st.ListMessages(r.Context(), conv.ID, skip, limit)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to list messages")
		httpext.JsonError(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}

	resp := make([]messageResponse, 0, len(messages))
	for i := range messages {
		resp = append(resp, newMessageResponse(&messages[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode message list")
	}
}
