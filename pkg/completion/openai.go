package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI sends each prompt as a single user message to a chat completions
// API.
type OpenAI struct {
	client openai.Client
	model  string
	params Params
}

type openAIConfig struct {
	baseURL    string
	httpClient *http.Client
	params     Params
}

type Option func(*openAIConfig)

func WithBaseURL(url string) Option {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithHTTPClient routes requests through hc, e.g. a SOCKS proxied client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *openAIConfig) { c.httpClient = hc }
}

func WithParams(p Params) Option {
	return func(c *openAIConfig) { c.params = p }
}

func NewOpenAI(apiKey, model string, opts ...Option) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}

	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))

	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		model:  model,
		params: cfg.params.withDefaults(),
	}, nil
}

func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:               openai.ChatModel(o.model),
		Temperature:         openai.Float(o.params.Temperature),
		MaxCompletionTokens: openai.Int(int64(o.params.MaxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Code: apiErr.StatusCode, Body: apiErr.Message}
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
