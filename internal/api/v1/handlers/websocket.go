package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/connections"
	"github.com/savvyfin/advisor/internal/services/advisor"
	"github.com/savvyfin/advisor/internal/services/advisor/models"
	"github.com/savvyfin/advisor/internal/services/auth"
	"github.com/savvyfin/advisor/internal/store"
	"github.com/savvyfin/advisor/pkg/httpext"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleChatWebSocket runs one advisory exchange over a WebSocket. The
// client sends a single chat request after connecting; the server answers
// with chunk frames, an optional error frame, and a final done frame.
//
// Browsers cannot set an Authorization header on the handshake, so the
// token may also arrive as a query parameter.
func HandleChatWebSocket(advisorService *advisor.Service, st *store.Store, manager *connections.Manager, w http.ResponseWriter, r *http.Request) {
	tokenString := auth.ExtractToken(r)
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	validation := auth.ValidateToken(tokenString)
	if !validation.Valid {
		httpext.JsonError(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	userID := validation.UserID

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	timeouts := manager.GetTimeouts()
	streamID := manager.Register(userID, "websocket")

	ctx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{})
	var closeOnce sync.Once

	cleanup := func() {
		closeOnce.Do(func() {
			close(done)
			cancel()
			conn.Close()
			manager.Release(streamID)
		})
	}
	defer cleanup()

	if err := conn.SetReadDeadline(time.Now().Add(timeouts.PongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	go func() {
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(timeouts.WriteWait)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// First frame from the client is the chat request
	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		writeSocketFrame(conn, timeouts, streamFrame{Type: "error", Error: "Invalid request format"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeSocketFrame(conn, timeouts, streamFrame{Type: "error", Error: "Invalid request"})
		return
	}

	conv, err := lookupChatConversation(ctx, st, userID, req)
	if err != nil {
		writeSocketFrame(conn, timeouts, streamFrame{Type: "error", Error: conversationErrorMessage(err)})
		return
	}

	cc, err := advisorService.PrepareContext(ctx, userID, conv.ID, req.UsePersona)
	if err != nil {
		switch {
		case errors.Is(err, advisor.ErrContextUnavailable):
			writeSocketFrame(conn, timeouts, streamFrame{Type: "error", Error: "Conversation not found"})
		case errors.Is(err, advisor.ErrResourceUnavailable):
			writeSocketFrame(conn, timeouts, streamFrame{Type: "error", Error: "Service is busy, please retry"})
		default:
			log.Error().Err(err).Msg("Failed to prepare conversation context")
			writeSocketFrame(conn, timeouts, streamFrame{Type: "error", Error: "Failed to prepare conversation"})
		}
		return
	}

	if _, err := st.SaveMessage(ctx, conv.ID, models.RoleUser, req.Message, ""); err != nil {
		log.Error().Err(err).Msg("Failed to persist user message")
		writeSocketFrame(conn, timeouts, streamFrame{Type: "error", Error: "Failed to save message"})
		return
	}

	session := advisor.NewStreamSession(cc, req.Message, models.ChatOptions{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	defer advisorService.Finalize(ctx, session)

	// Watch for the client going away while the response streams. Reads
	// also service the pong handler that extends the deadline.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	sink := func(fragment string) error {
		return writeSocketFrame(conn, timeouts, streamFrame{Type: "chunk", Content: fragment})
	}

	if err := advisorService.StreamTokens(ctx, session, sink); err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Completion stream failed")
		writeSocketFrame(conn, timeouts, streamFrame{Type: "error", Error: "The advisor could not complete this response"})
	}

	advisorService.Finalize(ctx, session)

	writeSocketFrame(conn, timeouts, streamFrame{
		Type:           "done",
		ConversationID: conv.ID.String(),
		Outcome:        string(session.Outcome()),
	})

	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(timeouts.WriteWait))
}

func conversationErrorMessage(err error) string {
	switch {
	case errors.Is(err, errInvalidConversationID):
		return "Invalid conversation id"
	case errors.Is(err, store.ErrNotFound):
		return "Conversation not found"
	case errors.Is(err, store.ErrNotOwner):
		return "Not enough permissions"
	default:
		return "Failed to resolve conversation"
	}
}

func writeSocketFrame(conn *websocket.Conn, timeouts connections.TimeoutConfig, frame streamFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeouts.WriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}
