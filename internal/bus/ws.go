// Package bus publishes pipeline events to a websocket hub for monitoring.
package bus

import (
	"encoding/json"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"telly/pkg/protocol"
)

type Kind string

const (
	KindMode       Kind = "mode"
	KindTranscript Kind = "transcript"
	KindPayload    Kind = "payload"
)

type Event struct {
	From    string            `json:"from"`
	Kind    Kind              `json:"kind"`
	Mode    string            `json:"mode,omitempty"`
	Text    string            `json:"text,omitempty"`
	Payload *protocol.Payload `json:"payload,omitempty"`
	Error   string            `json:"error,omitempty"`
	Time    time.Time         `json:"time"`
}

// Bus is a write-mostly websocket client. Publish never blocks for longer
// than the write timeout and redials at most once per event.
type Bus struct {
	url     string
	from    string
	timeout time.Duration

	mu   sync.Mutex
	conn *ws.Conn
}

func Dial(url, from string, timeout time.Duration) (*Bus, error) {
	log.Debug("Dialing bus", "url", url)

	b := &Bus{url: url, from: from, timeout: timeout}
	if err := b.dial(); err != nil {
		return nil, err
	}
	log.Info("Connected to bus", "url", url)
	return b, nil
}

func (b *Bus) dial() error {
	d := *ws.DefaultDialer
	d.HandshakeTimeout = b.timeout

	conn, _, err := d.Dial(b.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", b.url, err)
	}
	b.conn = conn
	go drain(conn)
	return nil
}

// drain consumes inbound frames so pings and close frames are handled.
func drain(conn *ws.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if isClosed(err) {
				log.Debug("Bus connection closed", "err", err)
			}
			return
		}
	}
}

func (b *Bus) Publish(ev Event) {
	if ev.From == "" {
		ev.From = b.from
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Warn("Failed to encode bus event", "err", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		if err := b.write(data); err == nil {
			return
		}
		b.conn.Close()
		b.conn = nil
	}
	if err := b.dial(); err != nil {
		log.Warn("Bus unavailable, event dropped", "kind", ev.Kind, "err", err)
		return
	}
	if err := b.write(data); err != nil {
		log.Warn("Failed to publish bus event", "kind", ev.Kind, "err", err)
	}
}

func (b *Bus) write(data []byte) error {
	if b.timeout > 0 {
		b.conn.SetWriteDeadline(time.Now().Add(b.timeout))
	}
	return b.conn.WriteMessage(ws.TextMessage, data)
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	b.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := b.conn.Close()
	b.conn = nil
	return err
}

// Nop discards events. It stands in when no bus is configured.
type Nop struct{}

func (Nop) Publish(Event) {}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
