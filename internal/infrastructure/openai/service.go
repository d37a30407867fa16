package openai

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/savvyfin/advisor/internal/config"
)

type Service struct {
	mu     sync.RWMutex
	client *openai.Client
}

func NewService() *Service {
	key := config.GetOpenAIKey()

	if key == "" {
		log.Warn().Msg("OpenAI service not configured - OPENAI_KEY missing")
		return nil
	}

	clientConfig := openai.DefaultConfig(key)
	if baseURL := config.GetOpenAIBaseURL(); baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &Service{
		mu:     sync.RWMutex{},
		client: openai.NewClientWithConfig(clientConfig),
	}
}

func (s *Service) GetClient() *openai.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// CreateCompletion runs a blocking chat completion
func (s *Service) CreateCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return s.GetClient().CreateChatCompletion(ctx, req)
}

// CreateStream opens a streaming chat completion. The caller owns the stream
// and must Close it.
func (s *Service) CreateStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	req.Stream = true
	return s.GetClient().CreateChatCompletionStream(ctx, req)
}
