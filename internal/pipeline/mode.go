// Package pipeline wires audio capture to the speech engines and the
// command dispatcher.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"telly/internal/engine"
)

const DefaultCommandTimeout = 5 * time.Second

type Mode int

const (
	WaitingForWake Mode = iota
	ListeningForCommand
)

func (m Mode) String() string {
	switch m {
	case WaitingForWake:
		return "waiting"
	case ListeningForCommand:
		return "listening"
	default:
		return "unknown"
	}
}

type Reason string

const (
	ReasonPhrase     Reason = "phrase"
	ReasonTrigger    Reason = "trigger"
	ReasonTranscript Reason = "transcript"
	ReasonTimeout    Reason = "timeout"
)

type Transition struct {
	From, To Mode
	Reason   Reason
	// Phrase is the matched wake phrase index for ReasonPhrase.
	Phrase int
	At     time.Time
}

// Transcript is a finalized command utterance.
type Transcript struct {
	Text string
	Mode Mode
}

type MachineOption func(*ModeMachine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MachineOption {
	return func(m *ModeMachine) { m.now = now }
}

// WithObserver registers fn to be called on every transition.
func WithObserver(fn func(Transition)) MachineOption {
	return func(m *ModeMachine) { m.observers = append(m.observers, fn) }
}

// ModeMachine routes each frame to the wake detector or the command
// recognizer depending on the current mode. It is not safe for concurrent
// use; the processing loop owns it.
type ModeMachine struct {
	wake    engine.WakeDetector
	command engine.Recognizer
	handle  func(Transcript)
	timeout time.Duration
	now     func() time.Time

	observers []func(Transition)

	mode     Mode
	deadline time.Time
}

func NewModeMachine(wake engine.WakeDetector, command engine.Recognizer, handle func(Transcript), timeout time.Duration, opts ...MachineOption) *ModeMachine {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	m := &ModeMachine{
		wake:    wake,
		command: command,
		handle:  handle,
		timeout: timeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *ModeMachine) Mode() Mode { return m.mode }

// Deadline is meaningful only while listening.
func (m *ModeMachine) Deadline() time.Time { return m.deadline }

// Feed hands one model-rate frame to the engine of the current mode. A
// non-empty finalized transcript goes to the handler before the machine
// returns to waiting.
func (m *ModeMachine) Feed(frame []int16) error {
	if m.mode == WaitingForWake {
		idx, err := m.wake.Detect(frame)
		if err != nil {
			return fmt.Errorf("wake detector: %w", err)
		}
		if idx != engine.NoMatch {
			m.listen(ReasonPhrase, idx)
		}
		return nil
	}

	res, err := m.command.Accept(frame)
	if err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}
	if res.Final {
		if text := strings.TrimSpace(res.Text); text != "" {
			m.handle(Transcript{Text: text, Mode: ListeningForCommand})
			m.wait(ReasonTranscript)
			return nil
		}
	}

	if m.now().After(m.deadline) {
		m.wait(ReasonTimeout)
	}
	return nil
}

// Trigger starts command listening without a wake phrase.
func (m *ModeMachine) Trigger() {
	m.listen(ReasonTrigger, engine.NoMatch)
}

func (m *ModeMachine) listen(reason Reason, phrase int) {
	from := m.mode
	m.command.Reset()
	m.mode = ListeningForCommand
	m.deadline = m.now().Add(m.timeout)
	m.notify(Transition{From: from, To: ListeningForCommand, Reason: reason, Phrase: phrase})
}

func (m *ModeMachine) wait(reason Reason) {
	m.wake.Reset()
	m.mode = WaitingForWake
	m.deadline = time.Time{}
	m.notify(Transition{From: ListeningForCommand, To: WaitingForWake, Reason: reason, Phrase: engine.NoMatch})
}

func (m *ModeMachine) notify(t Transition) {
	t.At = m.now()
	for _, fn := range m.observers {
		fn(t)
	}
}
