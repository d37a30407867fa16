package advisor

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/savvyfin/advisor/internal/config"
	"github.com/savvyfin/advisor/internal/services/advisor/models"
)

// Outcome classifies how a stream terminated
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeErrored   Outcome = "errored"
)

// StreamSession tracks one in-flight response stream: the context snapshot it
// was built from, the text accumulated so far, and the terminal outcome. All
// mutation happens on the request goroutine that drives the stream; the
// finalize guard is the only cross-path synchronization.
type StreamSession struct {
	snapshot    *models.ConversationContext
	userMessage string
	options     models.ChatOptions
	model       string

	accumulated strings.Builder
	chunks      int
	outcome     Outcome

	finalizeOnce sync.Once
}

// NewStreamSession binds a context snapshot, the incoming user message, and
// generation options into a session ready for streaming.
func NewStreamSession(cc *models.ConversationContext, userMessage string, opts models.ChatOptions) *StreamSession {
	model := opts.Model
	if model == "" {
		model = config.GetChatModel()
	}

	return &StreamSession{
		snapshot:    cc,
		userMessage: userMessage,
		options:     opts,
		model:       model,
	}
}

func (s *StreamSession) append(fragment string) {
	s.accumulated.WriteString(fragment)
	s.chunks++
}

// terminate records the first terminal state; later transitions are ignored
func (s *StreamSession) terminate(outcome Outcome) {
	if s.outcome == "" {
		s.outcome = outcome
	}
}

// ConversationID returns the conversation this session belongs to
func (s *StreamSession) ConversationID() uuid.UUID {
	return s.snapshot.ConversationID
}

// Model returns the resolved completion model for this session
func (s *StreamSession) Model() string {
	return s.model
}

// Accumulated returns the response text gathered so far
func (s *StreamSession) Accumulated() string {
	return s.accumulated.String()
}

// Chunks returns how many fragments have been received
func (s *StreamSession) Chunks() int {
	return s.chunks
}

// Outcome returns the terminal state, or empty while the stream is open
func (s *StreamSession) Outcome() Outcome {
	return s.outcome
}
