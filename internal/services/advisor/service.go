package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/savvyfin/advisor/internal/config"
	"github.com/savvyfin/advisor/internal/services/advisor/models"
	"github.com/savvyfin/advisor/internal/services/persona"
	"github.com/savvyfin/advisor/internal/services/prompt"
	"github.com/savvyfin/advisor/internal/store"
)

const (
	finalizeAttempts = 3
	finalizeBackoff  = 100 * time.Millisecond
	finalizeTimeout  = 10 * time.Second
)

// ChunkSink receives each response fragment as it arrives. A non-nil error
// means the client transport is gone and the stream should stop.
type ChunkSink func(fragment string) error

// FinancialContextProvider supplies the aggregator-backed summary block used
// in prompts. Implementations degrade to an empty string on failure.
type FinancialContextProvider interface {
	PromptContext(ctx context.Context, userID uuid.UUID) string
}

// Service coordinates the three phases of a streamed advisory response:
// a scoped read pass that snapshots everything the prompt needs, a streaming
// pass that holds no pooled resource, and a finalize pass that writes the
// outcome on a fresh scoped resource. Between the first pass returning and
// the finalize pass starting, the request owns no database connection.
type Service struct {
	store     *store.Store
	streamer  CompletionStreamer
	financial FinancialContextProvider
}

func NewService(st *store.Store, streamer CompletionStreamer, financial FinancialContextProvider) *Service {
	return &Service{
		store:     st,
		streamer:  streamer,
		financial: financial,
	}
}

// PrepareContext snapshots the user profile, recent history, and optional
// persona in a single scoped connection checkout, released before return on
// every path. The returned context carries plain values only, so the
// streaming phase cannot reach the pool through it.
func (s *Service) PrepareContext(ctx context.Context, userID, conversationID uuid.UUID, usePersona bool) (*models.ConversationContext, error) {
	snapshot, err := s.store.LoadConversationSnapshot(ctx, userID, conversationID, config.GetChatMemoryLimit(), usePersona)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotOwner):
			return nil, fmt.Errorf("%w: %v", ErrContextUnavailable, err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
		}
		return nil, err
	}

	cc := &models.ConversationContext{
		ConversationID: snapshot.Conversation.ID,
		UserID:         snapshot.User.ID,
		Profile: models.UserProfile{
			DisplayName:      prompt.DisplayName(snapshot.User.FullName, snapshot.User.Email),
			Email:            snapshot.User.Email,
			MonthlyIncome:    snapshot.User.MonthlyIncome,
			EmploymentStatus: snapshot.User.EmploymentStatus,
			FinancialGoal:    snapshot.User.FinancialGoal,
			RiskTolerance:    snapshot.User.RiskTolerance,
		},
		History: make([]models.Message, 0, len(snapshot.Messages)),
	}

	for _, m := range snapshot.Messages {
		cc.History = append(cc.History, models.Message{Role: m.Role, Content: m.Content})
	}

	if snapshot.Persona != nil {
		ps, err := persona.SnapshotFromRow(snapshot.Persona)
		if err != nil {
			log.Warn().Err(err).
				Str("user_id", userID.String()).
				Msg("Skipping unreadable persona profile")
		} else {
			cc.Persona = ps
		}
	}

	// The financial summary comes from an external aggregator, so it is
	// fetched after the connection checkout above has been released.
	if s.financial != nil {
		cc.FinancialSummary = s.financial.PromptContext(ctx, userID)
	}

	return cc, nil
}

// StreamTokens opens the completion stream for a session and forwards each
// fragment to the sink as it arrives, accumulating a copy for finalize. The
// signature accepts no store handle: everything the stream phase may touch
// lives in the session.
//
// Cancellation of ctx and sink write failures end the stream with outcome
// aborted and a nil return. Upstream failures end it with outcome errored
// and an ErrUpstreamUnavailable or ErrUpstreamInterrupted return; once the
// first chunk has been forwarded these must not be surfaced as HTTP errors.
func (s *Service) StreamTokens(ctx context.Context, session *StreamSession, sink ChunkSink) error {
	if s.streamer == nil {
		session.terminate(OutcomeErrored)
		return ErrUpstreamUnavailable
	}

	messages := prompt.BuildMessages(session.snapshot, session.userMessage)
	req := completionRequest(messages, session.model, session.options)

	stream, err := s.streamer.OpenStream(ctx, req)
	if err != nil {
		session.terminate(OutcomeErrored)
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			session.terminate(OutcomeAborted)
			return nil
		default:
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			session.terminate(OutcomeCompleted)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				session.terminate(OutcomeAborted)
				return nil
			}
			session.terminate(OutcomeErrored)
			return fmt.Errorf("%w: %v", ErrUpstreamInterrupted, err)
		}

		fragment := ""
		if len(resp.Choices) > 0 {
			fragment = resp.Choices[0].Delta.Content
		}
		if fragment == "" {
			continue
		}

		session.append(fragment)
		if err := sink(fragment); err != nil {
			session.terminate(OutcomeAborted)
			return nil
		}
	}
}

// Finalize writes the session's accumulated text as an assistant message on
// a fresh scoped resource. It runs at most once per session regardless of
// how many times it is invoked, and it detaches from the request context so
// a disconnected client cannot cancel the write. Returns the persisted row,
// or nil when nothing was written.
func (s *Service) Finalize(ctx context.Context, session *StreamSession) *store.Message {
	var saved *store.Message
	session.finalizeOnce.Do(func() {
		saved = s.persistOutcome(ctx, session)
	})
	return saved
}

func (s *Service) persistOutcome(ctx context.Context, session *StreamSession) *store.Message {
	outcome := session.Outcome()
	if outcome == "" {
		// Stream never reached a terminal state; treat as abandoned
		outcome = OutcomeAborted
		session.terminate(outcome)
	}

	if outcome != OutcomeCompleted && !config.PersistPartialResponses() {
		log.Info().
			Str("conversation_id", session.ConversationID().String()).
			Str("outcome", string(outcome)).
			Int("chunks", session.Chunks()).
			Msg("Discarding partial response")
		return nil
	}

	meta := struct {
		Outcome Outcome `json:"outcome"`
		Chunks  int     `json:"chunks"`
		Model   string  `json:"model"`
	}{outcome, session.Chunks(), session.Model()}

	metadata, err := json.Marshal(meta)
	if err != nil {
		metadata = []byte("{}")
	}

	ctx = context.WithoutCancel(ctx)

	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, finalizeTimeout)
		msg, err := s.store.SaveMessage(writeCtx, session.ConversationID(), models.RoleAssistant, session.Accumulated(), string(metadata))
		cancel()
		if err == nil {
			return msg
		}

		log.Warn().Err(err).
			Str("conversation_id", session.ConversationID().String()).
			Int("attempt", attempt).
			Msg("Failed to persist assistant response")

		if attempt < finalizeAttempts {
			time.Sleep(time.Duration(attempt) * finalizeBackoff)
		}
	}

	log.Error().
		Str("conversation_id", session.ConversationID().String()).
		Str("outcome", string(outcome)).
		Int("chunks", session.Chunks()).
		Msg("Assistant response lost: all persistence attempts failed")
	return nil
}

func completionRequest(messages []models.Message, model string, opts models.ChatOptions) openai.ChatCompletionRequest {
	openaiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		openaiMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    openaiMessages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	}
}
