package openai

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"ragchat/internal/domain"
	"ragchat/internal/openaiapi"
)

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("no response generated")

// Config configures the OpenAI-compatible chat client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float32
	Timeout     time.Duration
	MaxRetries  int
}

// ChatModel implements domain.ChatModel over /chat/completions.
type ChatModel struct {
	client      *goopenai.Client
	model       string
	temperature float32
	maxRetries  int
	backoff     openaiapi.Backoff
}

func NewChatModel(cfg Config) (*ChatModel, error) {
	client, err := openaiapi.NewClient(openaiapi.Config{BaseURL: cfg.BaseURL, APIKeyEnv: cfg.APIKeyEnv, Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		return nil, errors.New("chat model is required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &ChatModel{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		backoff:     openaiapi.RetryDelay,
	}, nil
}

func (m *ChatModel) Model() string { return m.model }

// Complete sends messages and returns the first choice's content.
func (m *ChatModel) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    toOpenAI(messages),
		Temperature: wireTemperature(m.temperature),
	}
	var resp goopenai.ChatCompletionResponse
	err := openaiapi.Do(ctx, m.maxRetries, m.backoff, func() error {
		var err error
		resp, err = m.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// wireTemperature keeps a zero temperature on the wire; the request struct
// drops zero values, which would leave the provider default in effect.
func wireTemperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func toOpenAI(messages []domain.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := goopenai.ChatMessageRoleUser
		switch msg.Role {
		case domain.RoleSystem:
			role = goopenai.ChatMessageRoleSystem
		case domain.RoleAssistant:
			role = goopenai.ChatMessageRoleAssistant
		}
		out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}
