// Package completion talks to text-completion services: a llama.cpp server's
// /completion endpoint or any OpenAI-compatible chat API.
package completion

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 32
	DefaultTimeout     = 10 * time.Second
)

var ErrEmptyReply = errors.New("empty completion")

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion status %d: %s", e.Code, e.Body)
}

// Params are the sampling settings sent with every request.
type Params struct {
	Temperature float64
	MaxTokens   int
}

func (p Params) withDefaults() Params {
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	return p
}
