package advisor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savvyfin/advisor/internal/config"
	"github.com/savvyfin/advisor/internal/services/advisor/models"
	"github.com/savvyfin/advisor/internal/store"
)

type fakeStream struct {
	chunks []string
	err    error
	gate   chan struct{}
	pos    int
	closed atomic.Bool
}

func (f *fakeStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.pos < len(f.chunks) {
		chunk := f.chunks[f.pos]
		f.pos++
		return openai.ChatCompletionStreamResponse{
			Choices: []openai.ChatCompletionStreamChoice{
				{Delta: openai.ChatCompletionStreamChoiceDelta{Content: chunk}},
			},
		}, nil
	}
	if f.err != nil {
		return openai.ChatCompletionStreamResponse{}, f.err
	}
	return openai.ChatCompletionStreamResponse{}, io.EOF
}

func (f *fakeStream) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeStreamer struct {
	mu      sync.Mutex
	streams []*fakeStream
	next    int
	openErr error
	opened  chan struct{}
	lastReq openai.ChatCompletionRequest
}

func (f *fakeStreamer) OpenStream(_ context.Context, req openai.ChatCompletionRequest) (CompletionStream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}

	f.mu.Lock()
	f.lastReq = req
	stream := f.streams[f.next]
	if f.next < len(f.streams)-1 {
		f.next++
	}
	f.mu.Unlock()

	if f.opened != nil {
		f.opened <- struct{}{}
	}
	return stream, nil
}

func (f *fakeStreamer) request() openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func singleStreamer(stream *fakeStream) *fakeStreamer {
	return &fakeStreamer{streams: []*fakeStream{stream}}
}

func newTestStore(t *testing.T, maxConns int) *store.Store {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString()),
		MaxOpenConns:    maxConns,
		MaxIdleConns:    maxConns,
		ConnMaxLifetime: time.Hour,
		AcquireTimeout:  2 * time.Second,
	}

	st, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// seedConversation creates a user named John with a three-message history and
// a persona profile, returning the user and conversation ids.
func seedConversation(t *testing.T, st *store.Store) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	user, err := st.CreateUser(ctx,
		fmt.Sprintf("%s@example.com", uuid.NewString()), "hashed", "John Carter")
	require.NoError(t, err)

	conv, err := st.CreateConversation(ctx, user.ID, "Retirement planning")
	require.NoError(t, err)

	history := []struct{ role, content string }{
		{models.RoleUser, "How should I start saving for retirement?"},
		{models.RoleAssistant, "Start with an emergency fund, then index funds."},
		{models.RoleUser, "What allocation would you suggest?"},
	}
	for _, m := range history {
		_, err := st.SaveMessage(ctx, conv.ID, m.role, m.content, "{}")
		require.NoError(t, err)
	}

	_, err = st.UpsertPersona(ctx, &store.PersonaProfile{
		UserID:             user.ID,
		PersonaName:        "The Mindful Planner",
		PersonaDescription: "Deliberate, research-driven spender focused on long-term security.",
		KeyTraits:          `["Premium Brand Affinity","Quality Focused"]`,
		CulturalProfile:    `{"music_taste":"Contemporary"}`,
		AdviceStyle:        "structured",
	})
	require.NoError(t, err)

	return user.ID, conv.ID
}

func messageCount(t *testing.T, st *store.Store, conversationID uuid.UUID) int {
	t.Helper()
	count, err := st.CountMessages(context.Background(), conversationID)
	require.NoError(t, err)
	return count
}

func TestPrepareContextReleasesPool(t *testing.T) {
	st := newTestStore(t, 5)
	svc := NewService(st, nil, nil)
	userID, convID := seedConversation(t, st)

	cc, err := svc.PrepareContext(context.Background(), userID, convID, true)
	require.NoError(t, err)

	assert.Equal(t, 0, st.Stats().InUse, "no connection may remain checked out after context prep")

	assert.Equal(t, convID, cc.ConversationID)
	assert.Equal(t, "John Carter", cc.Profile.DisplayName)
	require.Len(t, cc.History, 3)
	assert.Equal(t, "How should I start saving for retirement?", cc.History[0].Content)
	require.NotNil(t, cc.Persona)
	assert.Equal(t, "The Mindful Planner", cc.Persona.Name)
	assert.Equal(t, []string{"Premium Brand Affinity", "Quality Focused"}, cc.Persona.KeyTraits)

	t.Run("persona excluded when not requested", func(t *testing.T) {
		cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
		require.NoError(t, err)
		assert.Nil(t, cc.Persona)
	})

	t.Run("history truncated to memory limit", func(t *testing.T) {
		t.Setenv("CHAT_MEMORY_LIMIT", "2")
		cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
		require.NoError(t, err)
		require.Len(t, cc.History, 2)
		assert.Equal(t, "What allocation would you suggest?", cc.History[1].Content)
	})
}

func TestPrepareContextUnknownConversation(t *testing.T) {
	st := newTestStore(t, 5)
	svc := NewService(st, nil, nil)
	userID, convID := seedConversation(t, st)
	baseline := messageCount(t, st, convID)

	_, err := svc.PrepareContext(context.Background(), userID, uuid.New(), true)
	assert.ErrorIs(t, err, ErrContextUnavailable)
	assert.Equal(t, 0, st.Stats().InUse)
	assert.Equal(t, baseline, messageCount(t, st, convID), "failed context prep must not write")

	t.Run("foreign conversation", func(t *testing.T) {
		otherID, _ := seedConversation(t, st)
		_, err := svc.PrepareContext(context.Background(), otherID, convID, false)
		assert.ErrorIs(t, err, ErrContextUnavailable)
		assert.Equal(t, 0, st.Stats().InUse)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.PrepareContext(context.Background(), uuid.New(), convID, false)
		assert.ErrorIs(t, err, ErrContextUnavailable)
	})
}

func TestPrepareContextPoolExhausted(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString()),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		AcquireTimeout:  150 * time.Millisecond,
	}
	st, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := NewService(st, nil, nil)
	userID, convID := seedConversation(t, st)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	_, err = svc.PrepareContext(context.Background(), userID, convID, false)
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	close(release)
	<-done
	assert.Equal(t, 0, st.Stats().InUse)
}

func TestStreamCompletedPath(t *testing.T) {
	st := newTestStore(t, 5)
	stream := &fakeStream{chunks: []string{"Hi ", "John", "!"}}
	streamer := singleStreamer(stream)
	svc := NewService(st, streamer, nil)
	userID, convID := seedConversation(t, st)
	baseline := messageCount(t, st, convID)

	cc, err := svc.PrepareContext(context.Background(), userID, convID, true)
	require.NoError(t, err)

	session := NewStreamSession(cc, "Say hi to me by name.", models.ChatOptions{})

	var forwarded []string
	err = svc.StreamTokens(context.Background(), session, func(fragment string) error {
		assert.Equal(t, 0, st.Stats().InUse, "no connection may be held while streaming")
		forwarded = append(forwarded, fragment)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi ", "John", "!"}, forwarded)
	assert.Equal(t, OutcomeCompleted, session.Outcome())
	assert.Equal(t, "Hi John!", session.Accumulated())
	assert.Equal(t, 3, session.Chunks())
	assert.True(t, stream.closed.Load())

	req := streamer.request()
	require.NotEmpty(t, req.Messages)
	assert.Equal(t, models.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "John Carter")
	assert.Contains(t, req.Messages[0].Content, "The Mindful Planner")
	require.Len(t, req.Messages, 5)
	assert.Equal(t, "Say hi to me by name.", req.Messages[4].Content)
	assert.True(t, req.Stream)

	msg := svc.Finalize(context.Background(), session)
	require.NotNil(t, msg)
	assert.Equal(t, "Hi John!", msg.Content)
	assert.Equal(t, models.RoleAssistant, msg.Role)
	assert.Contains(t, msg.Metadata, `"outcome":"completed"`)
	assert.Equal(t, baseline+1, messageCount(t, st, convID))
	assert.Equal(t, 0, st.Stats().InUse)
}

func TestFinalizeRunsOnce(t *testing.T) {
	st := newTestStore(t, 5)
	svc := NewService(st, singleStreamer(&fakeStream{chunks: []string{"done"}}), nil)
	userID, convID := seedConversation(t, st)
	baseline := messageCount(t, st, convID)

	cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
	require.NoError(t, err)
	session := NewStreamSession(cc, "Wrap up.", models.ChatOptions{})

	require.NoError(t, svc.StreamTokens(context.Background(), session, func(string) error { return nil }))

	first := svc.Finalize(context.Background(), session)
	require.NotNil(t, first)

	second := svc.Finalize(context.Background(), session)
	assert.Nil(t, second, "repeated finalize must not write again")
	assert.Equal(t, baseline+1, messageCount(t, st, convID))
}

func TestCancelMidStream(t *testing.T) {
	st := newTestStore(t, 5)
	stream := &fakeStream{chunks: []string{"one ", "two ", "three ", "four ", "five"}}
	svc := NewService(st, singleStreamer(stream), nil)
	userID, convID := seedConversation(t, st)
	baseline := messageCount(t, st, convID)

	cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
	require.NoError(t, err)
	session := NewStreamSession(cc, "Count to five.", models.ChatOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := 0
	err = svc.StreamTokens(ctx, session, func(string) error {
		received++
		if received == 2 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err, "cancellation is not an error")

	assert.Equal(t, OutcomeAborted, session.Outcome())
	assert.Equal(t, "one two ", session.Accumulated())
	assert.Equal(t, 2, session.Chunks())
	assert.True(t, stream.closed.Load(), "upstream stream must be closed on cancellation")

	msg := svc.Finalize(context.Background(), session)
	require.NotNil(t, msg)
	assert.Equal(t, "one two ", msg.Content, "persisted content is what the client received")
	assert.Contains(t, msg.Metadata, `"outcome":"aborted"`)
	assert.Equal(t, baseline+1, messageCount(t, st, convID))

	t.Run("sink failure aborts the same way", func(t *testing.T) {
		stream := &fakeStream{chunks: []string{"a", "b", "c"}}
		svc := NewService(st, singleStreamer(stream), nil)

		cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
		require.NoError(t, err)
		session := NewStreamSession(cc, "Continue.", models.ChatOptions{})

		err = svc.StreamTokens(context.Background(), session, func(string) error {
			return errors.New("client went away")
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeAborted, session.Outcome())
		assert.Equal(t, "a", session.Accumulated())
		assert.True(t, stream.closed.Load())
	})
}

func TestZeroChunkStreamError(t *testing.T) {
	st := newTestStore(t, 5)
	svc := NewService(st, singleStreamer(&fakeStream{err: errors.New("boom")}), nil)
	userID, convID := seedConversation(t, st)
	baseline := messageCount(t, st, convID)

	cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
	require.NoError(t, err)
	session := NewStreamSession(cc, "Hello?", models.ChatOptions{})

	err = svc.StreamTokens(context.Background(), session, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrUpstreamInterrupted)
	assert.Equal(t, OutcomeErrored, session.Outcome())
	assert.Equal(t, 0, session.Chunks())

	msg := svc.Finalize(context.Background(), session)
	require.NotNil(t, msg, "even an empty errored stream records its outcome")
	assert.Empty(t, msg.Content)
	assert.Contains(t, msg.Metadata, `"outcome":"errored"`)
	assert.Equal(t, baseline+1, messageCount(t, st, convID))
}

func TestStreamOpenFailure(t *testing.T) {
	st := newTestStore(t, 5)
	userID, convID := seedConversation(t, st)

	t.Run("open error", func(t *testing.T) {
		svc := NewService(st, &fakeStreamer{openErr: errors.New("connection refused")}, nil)
		cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
		require.NoError(t, err)
		session := NewStreamSession(cc, "Hello?", models.ChatOptions{})

		err = svc.StreamTokens(context.Background(), session, func(string) error { return nil })
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.Equal(t, OutcomeErrored, session.Outcome())

		msg := svc.Finalize(context.Background(), session)
		require.NotNil(t, msg)
		assert.Empty(t, msg.Content)
		assert.Contains(t, msg.Metadata, `"outcome":"errored"`)
	})

	t.Run("no streamer configured", func(t *testing.T) {
		svc := NewService(st, nil, nil)
		cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
		require.NoError(t, err)
		session := NewStreamSession(cc, "Hello?", models.ChatOptions{})

		err = svc.StreamTokens(context.Background(), session, func(string) error { return nil })
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.Equal(t, OutcomeErrored, session.Outcome())
	})
}

func TestMidStreamErrorKeepsPartial(t *testing.T) {
	st := newTestStore(t, 5)
	stream := &fakeStream{chunks: []string{"partial ", "answer"}, err: errors.New("upstream reset")}
	svc := NewService(st, singleStreamer(stream), nil)
	userID, convID := seedConversation(t, st)

	cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
	require.NoError(t, err)
	session := NewStreamSession(cc, "Explain.", models.ChatOptions{})

	err = svc.StreamTokens(context.Background(), session, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrUpstreamInterrupted)
	assert.Equal(t, OutcomeErrored, session.Outcome())
	assert.Equal(t, "partial answer", session.Accumulated())

	msg := svc.Finalize(context.Background(), session)
	require.NotNil(t, msg)
	assert.Equal(t, "partial answer", msg.Content)
	assert.Contains(t, msg.Metadata, `"outcome":"errored"`)
}

func TestDiscardPartialPolicy(t *testing.T) {
	t.Setenv("CHAT_PERSIST_PARTIAL", "false")

	st := newTestStore(t, 5)
	userID, convID := seedConversation(t, st)
	baseline := messageCount(t, st, convID)

	t.Run("aborted stream discarded", func(t *testing.T) {
		svc := NewService(st, singleStreamer(&fakeStream{chunks: []string{"a", "b"}}), nil)
		cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
		require.NoError(t, err)
		session := NewStreamSession(cc, "Go.", models.ChatOptions{})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		err = svc.StreamTokens(ctx, session, func(string) error {
			cancel()
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, OutcomeAborted, session.Outcome())

		assert.Nil(t, svc.Finalize(context.Background(), session))
		assert.Equal(t, baseline, messageCount(t, st, convID))
	})

	t.Run("completed stream still persisted", func(t *testing.T) {
		svc := NewService(st, singleStreamer(&fakeStream{chunks: []string{"full answer"}}), nil)
		cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
		require.NoError(t, err)
		session := NewStreamSession(cc, "Go.", models.ChatOptions{})

		require.NoError(t, svc.StreamTokens(context.Background(), session, func(string) error { return nil }))
		require.Equal(t, OutcomeCompleted, session.Outcome())

		assert.NotNil(t, svc.Finalize(context.Background(), session))
		assert.Equal(t, baseline+1, messageCount(t, st, convID))
	})
}

func TestConcurrentStreamsSharePool(t *testing.T) {
	const requests = 3

	// Pool deliberately smaller than the number of concurrent requests:
	// context prep must queue on the pool, and streaming must not occupy it.
	st := newTestStore(t, requests-1)

	gate := make(chan struct{})
	opened := make(chan struct{}, requests)
	streams := make([]*fakeStream, requests)
	for i := range streams {
		streams[i] = &fakeStream{chunks: []string{fmt.Sprintf("answer %d", i)}, gate: gate}
	}
	streamer := &fakeStreamer{streams: streams, opened: opened}
	svc := NewService(st, streamer, nil)

	type convo struct {
		userID uuid.UUID
		convID uuid.UUID
	}
	convos := make([]convo, requests)
	for i := range convos {
		user, err := st.CreateUser(context.Background(),
			fmt.Sprintf("%s@example.com", uuid.NewString()), "hashed", fmt.Sprintf("User %d", i))
		require.NoError(t, err)
		conv, err := st.CreateConversation(context.Background(), user.ID, "Concurrent")
		require.NoError(t, err)
		convos[i] = convo{userID: user.ID, convID: conv.ID}
	}

	var wg sync.WaitGroup
	errs := make(chan error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(c convo) {
			defer wg.Done()

			cc, err := svc.PrepareContext(context.Background(), c.userID, c.convID, false)
			if err != nil {
				errs <- err
				return
			}
			session := NewStreamSession(cc, "Go.", models.ChatOptions{})
			defer svc.Finalize(context.Background(), session)

			errs <- svc.StreamTokens(context.Background(), session, func(string) error { return nil })
		}(convos[i])
	}

	// Wait until every request is mid-stream, then check the pool is idle.
	for i := 0; i < requests; i++ {
		select {
		case <-opened:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for streams to open")
		}
	}
	assert.Equal(t, 0, st.Stats().InUse, "pool must be idle while all requests stream")

	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	for _, c := range convos {
		assert.Equal(t, 1, messageCount(t, st, c.convID))
	}
	assert.Equal(t, 0, st.Stats().InUse)
}

func TestFinalizeLostWrite(t *testing.T) {
	st := newTestStore(t, 5)
	svc := NewService(st, singleStreamer(&fakeStream{chunks: []string{"answer"}}), nil)
	userID, convID := seedConversation(t, st)

	cc, err := svc.PrepareContext(context.Background(), userID, convID, false)
	require.NoError(t, err)
	session := NewStreamSession(cc, "Go.", models.ChatOptions{})
	require.NoError(t, svc.StreamTokens(context.Background(), session, func(string) error { return nil }))

	require.NoError(t, st.Close())

	assert.Nil(t, svc.Finalize(context.Background(), session), "exhausted retries surface as a logged lost write")
}
