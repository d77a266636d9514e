package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"time"

	"telly/internal/audio"
	"telly/internal/bus"
	"telly/internal/engine"
	"telly/internal/nlu"
	"telly/internal/observe"
	"telly/pkg/audioconv"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, raw string) nlu.Report
}

type Publisher interface {
	Publish(ev bus.Event)
}

type Chimer interface {
	Play()
}

type Config struct {
	HardwareRate   int
	ModelRate      int
	CommandTimeout time.Duration
}

type Option func(*Pipeline)

func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.pub = pub }
}

func WithChime(c Chimer) Option {
	return func(p *Pipeline) { p.chime = c }
}

// WithMachineOptions passes options through to the mode machine.
func WithMachineOptions(opts ...MachineOption) Option {
	return func(p *Pipeline) { p.machineOpts = append(p.machineOpts, opts...) }
}

type control struct {
	trigger bool
	text    string
}

// Pipeline owns the capture unit, the hand-off queue and the processing
// unit. Everything past the queue runs on the goroutine that called Run.
type Pipeline struct {
	src     audio.Source
	queue   *audio.Queue
	dec     *audioconv.Decimator
	machine *ModeMachine
	disp    Dispatcher
	control chan control

	metrics     *observe.Metrics
	pub         Publisher
	chime       Chimer
	machineOpts []MachineOption

	// work is the context network calls run on. It survives cancellation of
	// the Run context so in-flight requests finish.
	work context.Context
}

func New(cfg Config, src audio.Source, wake engine.WakeDetector, command engine.Recognizer, disp Dispatcher, opts ...Option) (*Pipeline, error) {
	dec, err := audioconv.NewDecimator(cfg.HardwareRate, cfg.ModelRate)
	if err != nil {
		return nil, fmt.Errorf("resampler: %w", err)
	}

	p := &Pipeline{
		src:     src,
		queue:   audio.NewQueue(),
		dec:     dec,
		disp:    disp,
		control: make(chan control, 8),
		pub:     bus.Nop{},
		work:    context.Background(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}

	mopts := append([]MachineOption{WithObserver(p.onTransition)}, p.machineOpts...)
	p.machine = NewModeMachine(wake, command, p.onTranscript, cfg.CommandTimeout, mopts...)
	return p, nil
}

func (p *Pipeline) Mode() Mode { return p.machine.Mode() }

// Trigger asks the processing loop to start listening for a command. It
// reports false when the control queue is full.
func (p *Pipeline) Trigger() bool {
	return p.send(control{trigger: true})
}

// Inject dispatches text as if it had been recognized.
func (p *Pipeline) Inject(text string) bool {
	return p.send(control{text: text})
}

func (p *Pipeline) send(c control) bool {
	select {
	case p.control <- c:
		return true
	default:
		log.Warn("Control queue full, dropping request")
		return false
	}
}

// Run captures and processes audio until ctx is cancelled or the source is
// exhausted. Frames already captured are processed before Run returns. Run
// must be called once.
func (p *Pipeline) Run(ctx context.Context) error {
	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()

	captured := make(chan error, 1)
	go func() { captured <- p.capture(captureCtx) }()

	err := p.process(context.WithoutCancel(ctx))
	if err != nil {
		stopCapture()
	}
	return errors.Join(err, <-captured)
}

func (p *Pipeline) capture(ctx context.Context) error {
	defer p.queue.Close()

	for {
		frame, err := p.src.Read(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Info("Audio source exhausted")
				return nil
			case ctx.Err() != nil:
				return nil
			}
			log.Error("Capture failed", "err", err)
			return fmt.Errorf("capture: %w", err)
		}
		p.queue.Push(frame)
		p.metrics.FramesCaptured.Add(ctx, 1)
		p.metrics.QueueBacklog.Add(ctx, 1)
	}
}

func (p *Pipeline) process(work context.Context) error {
	p.work = work

	for {
		if err := p.drain(); err != nil {
			return err
		}
		select {
		case <-p.queue.Ready():
		case c := <-p.control:
			p.handleControl(c)
		case <-p.queue.Done():
			return p.drain()
		}
	}
}

// drain processes every queued frame, serving control requests in between.
func (p *Pipeline) drain() error {
	for {
		select {
		case c := <-p.control:
			p.handleControl(c)
		default:
		}

		frame, ok := p.queue.Pop()
		if !ok {
			return nil
		}
		p.metrics.QueueBacklog.Add(p.work, -1)

		pcm, err := p.dec.Decimate(frame)
		if err != nil {
			return err
		}
		if err := p.machine.Feed(pcm); err != nil {
			return err
		}
	}
}

func (p *Pipeline) handleControl(c control) {
	if c.trigger {
		log.Info("Triggered by control socket")
		p.machine.Trigger()
		return
	}
	p.dispatch(c.text, "injected")
}

func (p *Pipeline) onTranscript(tr Transcript) {
	p.dispatch(tr.Text, "dispatched")
}

func (p *Pipeline) dispatch(text, outcome string) {
	log.Info("Command", "text", text, "source", outcome)
	p.metrics.RecordTranscript(p.work, outcome)
	p.pub.Publish(bus.Event{Kind: bus.KindTranscript, Text: text})

	rep := p.disp.Dispatch(p.work, text)
	log.Debug("Dispatched", "kind", rep.Kind, "route", rep.Route, "payloads", len(rep.Payloads), "delivered", rep.Delivered)
}

func (p *Pipeline) onTransition(t Transition) {
	switch t.Reason {
	case ReasonPhrase, ReasonTrigger:
		log.Info("Listening for command", "reason", t.Reason)
		p.metrics.RecordWake(p.work, string(t.Reason))
		if p.chime != nil {
			p.chime.Play()
		}
	case ReasonTimeout:
		log.Info("No command before timeout, waiting for wake phrase")
		p.metrics.RecordTranscript(p.work, "timeout")
	default:
		log.Debug("Waiting for wake phrase")
	}
	p.pub.Publish(bus.Event{Kind: bus.KindMode, Mode: t.To.String(), Text: string(t.Reason), Time: t.At})
}
