package nlu

import (
	"context"
	log "log/slog"
	"strings"

	"telly/internal/observe"
	"telly/pkg/protocol"
)

// Sink delivers one payload downstream.
type Sink interface {
	Send(ctx context.Context, p protocol.Payload) error
}

type Kind int

const (
	KindIgnored Kind = iota
	KindQuery
	KindDevice
	KindRouted
	KindDropped
)

func (k Kind) String() string {
	switch k {
	case KindIgnored:
		return "ignored"
	case KindQuery:
		return "query"
	case KindDevice:
		return "device"
	case KindRouted:
		return "routed"
	case KindDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Report describes what Dispatch did with one transcript.
type Report struct {
	Kind Kind

	// Device names the handler that matched, for KindDevice.
	Device string
	// DeviceHit is set when some handler recognised a device, even without a
	// command.
	DeviceHit bool
	ActionHit bool
	Route     Route

	Payloads  []protocol.Payload
	Delivered int
}

// Dispatcher runs the rule stages over a transcript and falls back to the
// router when no rule produced a command.
type Dispatcher struct {
	handlers []Handler
	router   *Router
	sink     Sink
	metrics  *observe.Metrics
}

func NewDispatcher(router *Router, sink Sink, metrics *observe.Metrics) *Dispatcher {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Dispatcher{
		handlers: DefaultHandlers(),
		router:   router,
		sink:     sink,
		metrics:  metrics,
	}
}

// Dispatch never fails: delivery and completion errors are logged and the
// transcript is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, raw string) Report {
	rep := d.evaluate(raw)

	if rep.Kind == KindRouted {
		d.metrics.RecordRoute(ctx, rep.Route.String())
		log.Info("Routing to completion", "route", rep.Route, "text", raw)

		p, err := d.router.Route(ctx, rep.Route, raw)
		if err != nil {
			log.Warn("Dropped transcript", "route", rep.Route, "err", err)
			rep.Kind = KindDropped
		} else {
			rep.Payloads = []protocol.Payload{p}
		}
	}

	for _, p := range rep.Payloads {
		if d.deliver(ctx, p) {
			rep.Delivered++
		}
	}

	d.metrics.RecordDispatch(ctx, rep.Kind.String())
	return rep
}

// evaluate runs every rule stage without touching the network.
func (d *Dispatcher) evaluate(raw string) Report {
	if strings.TrimSpace(raw) == "" {
		return Report{Kind: KindIgnored}
	}
	u := NewUtterance(raw)

	if p, ok := DetectQuery(u); ok {
		return Report{Kind: KindQuery, Payloads: []protocol.Payload{p}}
	}

	rep := Report{ActionHit: HasActionWord(u.Tokens)}
	for _, h := range d.handlers {
		res := h.Handle(u)
		if res.Outcome == NoMatch {
			continue
		}
		rep.DeviceHit = true
		if res.Outcome == Handled {
			rep.Kind = KindDevice
			rep.Device = h.Device()
			rep.Payloads = res.Payloads
			return rep
		}
		log.Debug("Device named without command", "device", h.Device())
		break
	}

	rep.Kind = KindRouted
	rep.Route = Classify(rep.DeviceHit, rep.ActionHit)
	return rep
}

func (d *Dispatcher) deliver(ctx context.Context, p protocol.Payload) bool {
	if err := d.sink.Send(ctx, p); err != nil {
		log.Error("Failed to send payload", "payload", p.String(), "err", err)
		d.metrics.RecordDelivery(ctx, p.Device(), "error")
		return false
	}
	log.Info("Sent payload", "payload", p.String())
	d.metrics.RecordDelivery(ctx, p.Device(), "ok")
	return true
}
