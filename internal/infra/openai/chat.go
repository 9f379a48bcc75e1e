package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"drive-in/internal/infra"
)

const DefaultChatModel = "gpt-4-turbo"

// ChatClient answers free-form questions through the Chat Completions API.
type ChatClient struct {
	client oai.Client
	model  string
}

// ChatOption is a functional option for ChatClient.
type ChatOption func(*chatConfig)

type chatConfig struct {
	baseURL string
	timeout time.Duration
}

// WithChatBaseURL overrides the default OpenAI API base URL.
func WithChatBaseURL(url string) ChatOption {
	return func(c *chatConfig) {
		c.baseURL = url
	}
}

// WithChatTimeout sets a per-request HTTP timeout.
func WithChatTimeout(d time.Duration) ChatOption {
	return func(c *chatConfig) {
		c.timeout = d
	}
}

func NewChatClient(apiKey, model string, opts ...ChatOption) (*ChatClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key must not be empty")
	}
	if model == "" {
		model = DefaultChatModel
	}

	cfg := &chatConfig{timeout: 30 * time.Second}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries go through infra.WithRetry like every other provider.
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &ChatClient{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

func (c *ChatClient) Name() string {
	return "openai"
}

func (c *ChatClient) Complete(ctx context.Context, prompt, persona string) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(persona),
			oai.UserMessage(prompt),
		},
	}

	var resp *oai.ChatCompletion
	err := infra.WithRetry(ctx, infra.DefaultRetryConfig(), func() error {
		var err error
		resp, err = c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			var apiErr *oai.Error
			if errors.As(err, &apiErr) && !infra.IsRetryableHTTPStatus(apiErr.StatusCode) {
				return infra.Permanent(fmt.Errorf("chat completion: %w", err))
			}
			return fmt.Errorf("chat completion: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in openai response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty message in openai response")
	}

	return text, nil
}
