package qloo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/config"
)

type Service struct {
	mu      sync.RWMutex
	client  *http.Client
	apiKey  string
	baseURL string
}

type tasteEntity struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type tasteProfileRequest struct {
	Tastes []tasteEntity `json:"tastes"`
}

func NewService() *Service {
	apiKey := config.GetQlooAPIKey()

	if apiKey == "" {
		log.Warn().Msg("Qloo API key not configured - taste correlation will use mock data")
		return nil
	}

	return &Service{
		mu:      sync.RWMutex{},
		client:  &http.Client{Timeout: 20 * time.Second},
		apiKey:  apiKey,
		baseURL: config.GetQlooBaseURL(),
	}
}

// TasteProfile correlates the given brand entities into a cross-domain taste
// profile via the Qloo discovery API.
func (s *Service) TasteProfile(ctx context.Context, entities []string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req := tasteProfileRequest{
		Tastes: make([]tasteEntity, 0, len(entities)),
	}
	for _, entity := range entities {
		req.Tastes = append(req.Tastes, tasteEntity{Type: "brand", Name: entity})
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/discover/taste-profile", s.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Keep the error body around for debugging
		body, readErr := io.ReadAll(resp.Body)
		if readErr == nil {
			log.Debug().Str("body", string(body)).Msg("Qloo API error response")
		}
		return nil, fmt.Errorf("qloo API returned status %d", resp.StatusCode)
	}

	var profile map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return profile, nil
}

// MockTasteProfile stands in for the Qloo API when it is unconfigured or
// unreachable, so persona generation keeps working end to end.
func MockTasteProfile(entities []string) map[string]interface{} {
	return map[string]interface{}{
		"mock_data":      true,
		"input_entities": entities,
		"correlated_tastes": map[string]interface{}{
			"music":   []string{"Indie Pop", "Lo-fi Beats"},
			"film":    []string{"A24 Movies", "Documentaries"},
			"fashion": []string{"Streetwear", "Vintage"},
		},
	}
}
