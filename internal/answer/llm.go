package answer

import (
	"context"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"mcpress/internal/config"
)

// Streamer is the generation surface the answerer depends on. The delta
// callback returning an error stops the stream.
type Streamer interface {
	Stream(ctx context.Context, system, user string, onDelta func(string) error) error
}

// OpenAIStreamer streams chat completions from an OpenAI-compatible
// endpoint. A fresh request is made per call; the only shared state is
// configuration.
type OpenAIStreamer struct {
	sdk sdk.Client
	cfg config.LLMConfig
}

func NewOpenAIStreamer(cfg config.LLMConfig) *OpenAIStreamer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIStreamer{sdk: sdk.NewClient(opts...), cfg: cfg}
}

func (s *OpenAIStreamer) Stream(ctx context.Context, system, user string, onDelta func(string) error) error {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(s.cfg.Model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(system),
			sdk.UserMessage(user),
		},
		Temperature: sdk.Float(s.cfg.Temperature),
	}
	if s.cfg.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(s.cfg.MaxTokens))
	}

	stream := s.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() {
		_ = stream.Close()
	}()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}
	return stream.Err()
}
