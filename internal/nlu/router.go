package nlu

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"telly/internal/observe"
	"telly/pkg/protocol"
)

// Route is the fallback decision. Reports that never reached the fallback
// carry NoRoute.
type Route int

const (
	NoRoute Route = iota
	DeviceOnly
	ActionOnly
	Ambiguous
	Chat
)

func (r Route) String() string {
	switch r {
	case NoRoute:
		return "none"
	case DeviceOnly:
		return "device_only"
	case ActionOnly:
		return "action_only"
	case Ambiguous:
		return "ambiguous"
	case Chat:
		return "chat"
	default:
		return "unknown"
	}
}

// Control reports whether the route goes to the control completer.
func (r Route) Control() bool { return r == DeviceOnly || r == ActionOnly || r == Ambiguous }

var actionWords = vocabulary(
	"on", "off", "set", "start", "turn",
	"open", "close", "stop",
	"fast", "slow",
	"red", "yellow", "green", "rainbow", "brightness",
	"play", "next", "skip", "previous", "back", "last",
	"up", "down", "increase", "decrease", "louder", "quieter",
)

// HasActionWord reports whether t holds any imperative from the action
// vocabulary.
func HasActionWord(t TokenSet) bool { return t.Intersects(actionWords) }

func Classify(deviceHit, actionHit bool) Route {
	switch {
	case deviceHit && actionHit:
		return Ambiguous
	case deviceHit:
		return DeviceOnly
	case actionHit:
		return ActionOnly
	default:
		return Chat
	}
}

const controlTemplate = "Analyze the following user command and convert it into a JSON format. " +
	"Respond with ONLY the JSON object and nothing else. " +
	"The JSON should contain 'device', 'command', and 'value'. " +
	"User command: '%s'"

// ControlPrompt wraps a transcript in the control instruction.
func ControlPrompt(raw string) string {
	return fmt.Sprintf(controlTemplate, raw)
}

var ErrEmptyChat = errors.New("empty chat reply")

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Router turns an unmatched transcript into a payload with the help of a
// control completer (structured JSON) or a chat completer (free speech).
type Router struct {
	control Completer
	chat    Completer
	metrics *observe.Metrics
}

func NewRouter(control, chat Completer, metrics *observe.Metrics) *Router {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Router{control: control, chat: chat, metrics: metrics}
}

// Route asks the completer picked by route and returns the payload to send.
// Errors mean the transcript is dropped.
func (r *Router) Route(ctx context.Context, route Route, raw string) (protocol.Payload, error) {
	if route == NoRoute {
		return protocol.Payload{}, errors.New("no route to complete")
	}
	if route.Control() {
		return r.routeControl(ctx, raw)
	}
	return r.routeChat(ctx, raw)
}

func (r *Router) routeControl(ctx context.Context, raw string) (protocol.Payload, error) {
	reply, err := r.complete(ctx, r.control, "control", ControlPrompt(raw))
	if err != nil {
		return protocol.Payload{}, err
	}
	log.Debug("Control reply", "content", reply)

	p, err := protocol.FromReply(reply)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, protocol.ErrNoObject) {
			reason = "no_object"
		}
		r.metrics.RecordCompletionError(ctx, "control", reason)
		return protocol.Payload{}, fmt.Errorf("control reply %q: %w", reply, err)
	}
	return p, nil
}

func (r *Router) routeChat(ctx context.Context, raw string) (protocol.Payload, error) {
	reply, err := r.complete(ctx, r.chat, "chat", raw)
	if err != nil {
		return protocol.Payload{}, err
	}
	if reply == "" {
		r.metrics.RecordCompletionError(ctx, "chat", "empty")
		return protocol.Payload{}, ErrEmptyChat
	}
	return protocol.Build("llm", "speak", protocol.Text(reply))
}

func (r *Router) complete(ctx context.Context, c Completer, endpoint, prompt string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("no %s completer configured", endpoint)
	}
	start := time.Now()
	reply, err := c.Complete(ctx, prompt)
	r.metrics.RecordCompletion(ctx, endpoint, time.Since(start))
	if err != nil {
		r.metrics.RecordCompletionError(ctx, endpoint, "transport")
		return "", fmt.Errorf("%s completion: %w", endpoint, err)
	}
	return reply, nil
}
