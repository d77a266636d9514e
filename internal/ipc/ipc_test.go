package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telly.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan ControlMessage, 2)
	if err := StartServer(ctx, path, func(m ControlMessage) { got <- m }); err != nil {
		t.Fatal(err)
	}

	msgs := []ControlMessage{
		{Cmd: CmdTrigger},
		{Cmd: CmdText, Text: "open the window"},
	}
	for _, m := range msgs {
		if err := SendCommand(path, m); err != nil {
			t.Fatal(err)
		}
		select {
		case r := <-got:
			if r != m {
				t.Errorf("received %+v, want %+v", r, m)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("message %+v not delivered", m)
		}
	}
}

func TestServerStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telly.sock")
	ctx, cancel := context.WithCancel(context.Background())

	if err := StartServer(ctx, path, func(ControlMessage) {}); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := SendCommand(path, ControlMessage{Cmd: CmdTrigger}); err == nil {
				t.Fatal("send succeeded after shutdown")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("socket file not removed")
}

func TestMalformedMessageIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telly.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan ControlMessage, 1)
	if err := StartServer(ctx, path, func(m ControlMessage) { got <- m }); err != nil {
		t.Fatal(err)
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	conn.Write([]byte("not json\n"))
	conn.Close()

	select {
	case m := <-got:
		t.Fatalf("handler called with %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}
