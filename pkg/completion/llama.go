package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type llamaRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	NPredict    int     `json:"n_predict"`
}

type llamaResponse struct {
	Content string `json:"content"`
}

// Llama posts prompts to a llama.cpp server /completion endpoint.
type Llama struct {
	url    string
	client *http.Client
	params Params
}

// NewLlama returns a client for url. A nil client gets one with
// DefaultTimeout.
func NewLlama(url string, client *http.Client, params Params) *Llama {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Llama{url: url, client: client, params: params.withDefaults()}
}

// Complete returns the trimmed content of the reply.
func (l *Llama) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(llamaRequest{
		Prompt:      prompt,
		Temperature: l.params.Temperature,
		NPredict:    l.params.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", l.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out llamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(out.Content), nil
}
