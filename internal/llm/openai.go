package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/aihub/support-rag/internal/ledger"
)

// StreamerConfig OpenAI 兼容接口参数
type StreamerConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OpenAIStreamer 通过 OpenAI 兼容接口（DashScope、DeepSeek、Ollama）流式生成
type OpenAIStreamer struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewOpenAIStreamer 创建流式客户端
func NewOpenAIStreamer(cfg StreamerConfig, logger *zap.Logger) (*OpenAIStreamer, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("llm: model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIStreamer{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.With(zap.String("model", cfg.Model)),
	}, nil
}

// Model 上游模型名
func (s *OpenAIStreamer) Model() string {
	return s.model
}

func (s *OpenAIStreamer) Stream(ctx context.Context, messages []ledger.Message) (<-chan StreamToken, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    toChatMessages(messages),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		Stream:      true,
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create chat stream (%s): %w", s.model, err)
	}

	ch := make(chan StreamToken, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(tok StreamToken) bool {
			select {
			case ch <- tok:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(StreamToken{Done: true})
				return
			}
			if err != nil {
				send(StreamToken{Done: true, Err: fmt.Errorf("receive chat stream (%s): %w", s.model, err)})
				return
			}
			if len(resp.Choices) == 0 {
				s.logger.Warn("chat stream chunk without choices", zap.String("id", resp.ID))
				continue
			}
			if content := resp.Choices[0].Delta.Content; content != "" {
				if !send(StreamToken{Content: content}) {
					return
				}
			}
		}
	}()

	return ch, nil
}

func toChatMessages(messages []ledger.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
