package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savvyfin/advisor/internal/config"
	"github.com/savvyfin/advisor/internal/infrastructure/openai"
	"github.com/savvyfin/advisor/internal/infrastructure/qloo"
	"github.com/savvyfin/advisor/internal/services/cache"
	"github.com/savvyfin/advisor/internal/store"
)

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		name         string
		descriptions []string
		expected     []string
	}{
		{
			name: "brands from card statements",
			descriptions: []string{
				"STARBUCKS COFFEE #1234",
				"Payment to NETFLIX monthly",
				"UBER trip 18 Jan",
			},
			expected: []string{"Starbucks", "Coffee", "Netflix", "Uber"},
		},
		{
			name:         "short and mixed-case words skipped",
			descriptions: []string{"TO ATM my Local Cafe", "UPI-payment"},
			expected:     []string{"Atm"},
		},
		{
			name:         "digits and punctuation disqualify",
			descriptions: []string{"AMZN123 PURCHASE", "7-ELEVEN"},
			expected:     []string{"Purchase"},
		},
		{
			name:         "duplicates collapse",
			descriptions: []string{"STARBUCKS", "STARBUCKS", "starbucks", "STARBUCKS COFFEE"},
			expected:     []string{"Starbucks", "Coffee"},
		},
		{
			name:         "empty input",
			descriptions: nil,
			expected:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractEntities(tt.descriptions))
		})
	}
}

func TestExtractEntitiesCap(t *testing.T) {
	descriptions := make([]string, 0, 30)
	for _, word := range []string{
		"ALPHA", "BRAVO", "CHARLIE", "DELTA", "ECHO", "FOXTROT", "GOLF", "HOTEL",
		"INDIA", "JULIETT", "KILO", "LIMA", "MIKE", "NOVEMBER", "OSCAR", "PAPA",
		"QUEBEC", "ROMEO", "SIERRA", "TANGO", "UNIFORM", "VICTOR", "WHISKEY",
	} {
		descriptions = append(descriptions, word)
	}

	entities := ExtractEntities(descriptions)
	assert.Len(t, entities, 20)
	assert.Equal(t, "Alpha", entities[0])
	assert.Equal(t, "Tango", entities[19])
}

func TestParseNarrative(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{
			name: "clean json",
			text: `{"persona_name": "The Mindful Saver", "persona_description": "Thoughtful and deliberate."}`,
		},
		{
			name: "fenced json",
			text: "```json\n{\"persona_name\": \"The Urban Explorer\", \"persona_description\": \"Curious by nature.\"}\n```",
		},
		{
			name:    "missing keys",
			text:    `{"persona_name": "The Mindful Saver"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			text:    "Here is your persona: The Mindful Saver",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := parseNarrative(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, n.PersonaName)
			assert.NotEmpty(t, n.PersonaDescription)
		})
	}
}

func TestSnapshotFromRow(t *testing.T) {
	row := &store.PersonaProfile{
		PersonaName:         "The Mindful Saver",
		PersonaDescription:  "Balances long-term security with everyday joy",
		KeyTraits:           `["Disciplined","Goal-oriented","Analytical"]`,
		LifestyleSummary:    "Values quality over quantity",
		FinancialTendencies: "Prioritizes savings",
		CulturalProfile:     `{"music_taste":"Indie and alternative genres"}`,
		AdviceStyle:         "Collaborative and values-based",
	}

	snapshot, err := SnapshotFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, "The Mindful Saver", snapshot.Name)
	assert.Equal(t, []string{"Disciplined", "Goal-oriented", "Analytical"}, snapshot.KeyTraits)
	assert.Equal(t, "Indie and alternative genres", snapshot.CulturalProfile["music_taste"])

	t.Run("empty json columns", func(t *testing.T) {
		snapshot, err := SnapshotFromRow(&store.PersonaProfile{PersonaName: "Bare"})
		require.NoError(t, err)
		assert.Nil(t, snapshot.KeyTraits)
		assert.Nil(t, snapshot.CulturalProfile)
	})

	t.Run("corrupt traits", func(t *testing.T) {
		_, err := SnapshotFromRow(&store.PersonaProfile{KeyTraits: "not-json"})
		assert.Error(t, err)
	})
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString()),
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		AcquireTimeout:  2 * time.Second,
	}

	st, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func createTestUser(t *testing.T, st *store.Store) *store.User {
	t.Helper()

	user, err := st.CreateUser(context.Background(),
		fmt.Sprintf("%s@example.com", uuid.NewString()), "hashed", "Test User")
	require.NoError(t, err)
	return user
}

func seedTransactions(t *testing.T, st *store.Store, userID uuid.UUID) {
	t.Helper()

	descriptions := []string{
		"STARBUCKS COFFEE #1234",
		"Payment to NETFLIX monthly",
		"UBER trip to the airport",
	}
	for i, description := range descriptions {
		_, err := st.InsertTransaction(context.Background(), userID, description,
			-12.50, "lifestyle", time.Now().Add(-time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
}

// qlooRecorder collects the brand entities every taste-profile request
// carried.
type qlooRecorder struct {
	mu       sync.Mutex
	entities []string
}

func (r *qlooRecorder) add(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = append(r.entities, names...)
}

func (r *qlooRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entities...)
}

// newQlooServer fakes the taste-profile endpoint
func newQlooServer(t *testing.T, status int) (*httptest.Server, *qlooRecorder) {
	t.Helper()

	recorder := &qlooRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/discover/taste-profile" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Tastes []struct {
				Type string `json:"type"`
				Name string `json:"name"`
			} `json:"tastes"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for _, taste := range req.Tastes {
			recorder.add(taste.Name)
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		fmt.Fprint(w, `{"request_id": "qloo-7781", "correlated_tastes": {"music": ["Indie Pop"]}}`)
	}))
	t.Cleanup(server.Close)
	return server, recorder
}

// newNarrativeServer fakes the chat-completion endpoint with a canned
// model reply.
func newNarrativeServer(t *testing.T, content string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		response := map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestService(t *testing.T, st *store.Store, qlooStatus int) (*Service, *qlooRecorder) {
	t.Helper()

	qlooServer, recorder := newQlooServer(t, qlooStatus)
	t.Setenv("QLOO_API_KEY", "test-key")
	t.Setenv("QLOO_BASE_URL", qlooServer.URL)

	// Models tend to fence their JSON, the pipeline has to strip it
	narrativeServer := newNarrativeServer(t,
		"```json\n{\"persona_name\": \"The Urban Explorer\", \"persona_description\": \"Curious by nature, drawn to new places.\"}\n```")
	t.Setenv("OPENAI_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", narrativeServer.URL+"/v1")

	return NewService(st, qloo.NewService(), openai.NewService(), cache.NewService(nil)), recorder
}

func TestGenerate(t *testing.T) {
	st := newTestStore(t)
	svc, recorder := newTestService(t, st, http.StatusOK)
	user := createTestUser(t, st)
	seedTransactions(t, st, user.ID)
	ctx := context.Background()

	snapshot, err := svc.Generate(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Urban Explorer", snapshot.Name)
	assert.Equal(t, "Curious by nature, drawn to new places.", snapshot.Description)
	assert.Contains(t, recorder.seen(), "Starbucks")
	assert.Contains(t, recorder.seen(), "Netflix")
	assert.Contains(t, recorder.seen(), "Uber")

	t.Run("taste source is persisted", func(t *testing.T) {
		row, err := st.GetPersonaByUserID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "The Urban Explorer", row.PersonaName)
		assert.Contains(t, row.SourceTasteData, "qloo-7781")
	})

	t.Run("get serves the cached snapshot", func(t *testing.T) {
		// With the row gone, only the cache can answer
		require.NoError(t, st.DeletePersona(ctx, user.ID))

		got, err := svc.Get(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "The Urban Explorer", got.Name)
	})

	t.Run("regeneration keeps curated traits", func(t *testing.T) {
		_, err := st.UpsertPersona(ctx, &store.PersonaProfile{
			UserID:             user.ID,
			PersonaName:        "Curated",
			PersonaDescription: "Edited by an analyst",
			KeyTraits:          `["Disciplined"]`,
			AdviceStyle:        "Direct",
		})
		require.NoError(t, err)

		snapshot, err := svc.Generate(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "The Urban Explorer", snapshot.Name)
		assert.Equal(t, []string{"Disciplined"}, snapshot.KeyTraits)
		assert.Equal(t, "Direct", snapshot.AdviceStyle)
	})
}

func TestGenerateFallsBackToMockTastes(t *testing.T) {
	st := newTestStore(t)
	svc, _ := newTestService(t, st, http.StatusInternalServerError)
	user := createTestUser(t, st)
	seedTransactions(t, st, user.ID)

	snapshot, err := svc.Generate(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Urban Explorer", snapshot.Name)

	row, err := st.GetPersonaByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Contains(t, row.SourceTasteData, "mock_data")
}

func TestGenerateWithoutSignals(t *testing.T) {
	st := newTestStore(t)
	svc, _ := newTestService(t, st, http.StatusOK)
	user := createTestUser(t, st)

	_, err := svc.Generate(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrNoSignals)
}

func TestGenerateWithoutNarrativeGenerator(t *testing.T) {
	st := newTestStore(t)
	user := createTestUser(t, st)
	seedTransactions(t, st, user.ID)

	svc := NewService(st, nil, nil, cache.NewService(nil))
	_, err := svc.Generate(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrGeneratorUnavailable)
}
