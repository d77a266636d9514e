package transport

import (
	"context"

	"telly/internal/bus"
	"telly/pkg/protocol"
)

type Sink interface {
	Send(ctx context.Context, p protocol.Payload) error
}

type Publisher interface {
	Publish(ev bus.Event)
}

// Mirror forwards to the wrapped sink and then reports the delivery, whether
// it succeeded or not, on the monitor bus.
type Mirror struct {
	next Sink
	pub  Publisher
}

func NewMirror(next Sink, pub Publisher) *Mirror {
	return &Mirror{next: next, pub: pub}
}

func (m *Mirror) Send(ctx context.Context, p protocol.Payload) error {
	err := m.next.Send(ctx, p)
	ev := bus.Event{Kind: bus.KindPayload, Payload: &p}
	if err != nil {
		ev.Error = err.Error()
	}
	m.pub.Publish(ev)
	return err
}
