// Package app builds the command dispatch chain from a loaded configuration.
// Both the daemon and the text console share it.
package app

import (
	"fmt"
	log "log/slog"
	"net/http"

	"telly/internal/config"
	"telly/internal/nlu"
	"telly/internal/observe"
	"telly/internal/proxy"
	"telly/internal/transport"
	"telly/pkg/completion"
)

// NewCompleters returns the control and chat completers for the configured
// backend.
func NewCompleters(cfg config.CompletionConfig) (control, chat nlu.Completer, err error) {
	params := completion.Params{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}

	switch cfg.Backend {
	case config.BackendLlama, "":
		hc := &http.Client{Timeout: cfg.Timeout}
		log.Debug("Using llama.cpp completion", "control", cfg.ControlURL, "chat", cfg.ChatURL)
		return completion.NewLlama(cfg.ControlURL, hc, params), completion.NewLlama(cfg.ChatURL, hc, params), nil

	case config.BackendOpenAI:
		opts := []completion.Option{completion.WithParams(params)}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, completion.WithBaseURL(cfg.OpenAI.BaseURL))
		}

		hc := &http.Client{Timeout: cfg.Timeout}
		if cfg.OpenAI.SocksProxy != "" {
			hc, err = proxy.NewSocksClient(cfg.OpenAI.SocksProxy, cfg.Timeout)
			if err != nil {
				return nil, nil, err
			}
			log.Debug("Loaded proxy", "addr", cfg.OpenAI.SocksProxy)
		}
		opts = append(opts, completion.WithHTTPClient(hc))

		ctl, err := completion.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.ControlModel, opts...)
		if err != nil {
			return nil, nil, err
		}
		ch, err := completion.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, opts...)
		if err != nil {
			return nil, nil, err
		}
		log.Debug("Using OpenAI completion", "control", cfg.OpenAI.ControlModel, "chat", cfg.OpenAI.ChatModel)
		return ctl, ch, nil

	default:
		return nil, nil, fmt.Errorf("unknown completion backend %q", cfg.Backend)
	}
}

// NewSink returns the TCP sink to the controller, mirrored onto pub.
func NewSink(cfg config.TransportConfig, pub transport.Publisher) nlu.Sink {
	return transport.NewMirror(transport.NewTCPSink(cfg.Addr(), cfg.Timeout), pub)
}

// NewDispatcher wires completers, router and sink into a dispatcher.
func NewDispatcher(cfg *config.Config, sink nlu.Sink, metrics *observe.Metrics) (*nlu.Dispatcher, error) {
	control, chat, err := NewCompleters(cfg.Completion)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	return nlu.NewDispatcher(nlu.NewRouter(control, chat, metrics), sink, metrics), nil
}
