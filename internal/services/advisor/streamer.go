package advisor

import (
	"context"

	"github.com/sashabaranov/go-openai"

	openaisvc "github.com/savvyfin/advisor/internal/infrastructure/openai"
)

// CompletionStream is one open token stream from the language model
type CompletionStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// CompletionStreamer opens completion streams. The coordinator depends on
// this capability rather than a concrete client so the vendor can be swapped
// without touching the streaming protocol.
type CompletionStreamer interface {
	OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (CompletionStream, error)
}

type openAIStreamer struct {
	service *openaisvc.Service
}

// NewOpenAIStreamer adapts the OpenAI infrastructure client to the
// CompletionStreamer capability. Returns nil when the client is not
// configured.
func NewOpenAIStreamer(service *openaisvc.Service) CompletionStreamer {
	if service == nil {
		return nil
	}
	return &openAIStreamer{service: service}
}

func (s *openAIStreamer) OpenStream(ctx context.Context, req openai.ChatCompletionRequest) (CompletionStream, error) {
	return s.service.CreateStream(ctx, req)
}
