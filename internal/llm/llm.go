// Package llm streams chat completions from an OpenAI-compatible endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"podnote/internal/domain"
)

// Streamer produces a completion incrementally. emit receives each chunk in
// order; returning an error from emit stops the stream.
type Streamer interface {
	Stream(ctx context.Context, system string, messages []domain.ChatMessage, emit func(chunk string) error) error
}

// Client is a Streamer backed by go-openai.
type Client struct {
	api   *openai.Client
	model string
}

// New builds a client. baseURL may point at any OpenAI-compatible service.
func New(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if strings.TrimSpace(model) == "" {
		model = "deepseek-chat"
	}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}
}

func (c *Client) Stream(ctx context.Context, system string, messages []domain.ChatMessage, emit func(chunk string) error) error {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAI(system, messages),
		Stream:   true,
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: chat completion: %v", domain.ErrUpstream, err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: chat stream: %v", domain.ErrUpstream, err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := emit(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
}

func toOpenAI(system string, messages []domain.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// Recent keeps the last n messages. n <= 0 keeps everything.
func Recent(messages []domain.ChatMessage, n int) []domain.ChatMessage {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

// Collect runs a stream to completion and returns the accumulated text.
func Collect(ctx context.Context, s Streamer, system string, messages []domain.ChatMessage) (string, error) {
	var b strings.Builder
	err := s.Stream(ctx, system, messages, func(chunk string) error {
		b.WriteString(chunk)
		return nil
	})
	return b.String(), err
}
