package app

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"telly/internal/bus"
	"telly/internal/config"
	"telly/internal/nlu"
	"telly/pkg/completion"
)

func TestNewCompletersLlama(t *testing.T) {
	control, chat, err := NewCompleters(config.Default().Completion)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := control.(*completion.Llama); !ok {
		t.Errorf("control = %T", control)
	}
	if _, ok := chat.(*completion.Llama); !ok {
		t.Errorf("chat = %T", chat)
	}
}

func TestNewCompletersOpenAI(t *testing.T) {
	cfg := config.Default().Completion
	cfg.Backend = config.BackendOpenAI

	if _, _, err := NewCompleters(cfg); err == nil {
		t.Fatal("expected missing key error")
	}

	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.SocksProxy = "127.0.0.1:1080"
	control, _, err := NewCompleters(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := control.(*completion.OpenAI); !ok {
		t.Errorf("control = %T", control)
	}
}

func TestNewCompletersUnknown(t *testing.T) {
	cfg := config.Default().Completion
	cfg.Backend = "bard"
	if _, _, err := NewCompleters(cfg); err == nil {
		t.Fatal("expected error")
	}
}

type events struct{ got []bus.Event }

func (e *events) Publish(ev bus.Event) { e.got = append(e.got, ev) }

// TestDispatchChain runs a chat request through the whole chain: llama.cpp
// server, router, TCP sink and monitor mirror.
func TestDispatchChain(t *testing.T) {
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"content":"Why did the car stop? It was tired."}`)
	}))
	defer llm.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	lines := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		lines <- line
	}()

	cfg := config.Default()
	cfg.Completion.ChatURL = llm.URL
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	cfg.Transport.Port, _ = strconv.Atoi(port)

	pub := &events{}
	disp, err := NewDispatcher(cfg, NewSink(cfg.Transport, pub), nil)
	if err != nil {
		t.Fatal(err)
	}

	rep := disp.Dispatch(context.Background(), "tell me a joke")
	if rep.Kind != nlu.KindRouted || rep.Route != nlu.Chat || rep.Delivered != 1 {
		t.Fatalf("report = %+v", rep)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(<-lines), &got); err != nil {
		t.Fatal(err)
	}
	if got["device"] != "llm" || got["command"] != "speak" || got["value"] != "Why did the car stop? It was tired." {
		t.Errorf("payload = %v", got)
	}

	if len(pub.got) != 1 || pub.got[0].Kind != bus.KindPayload || pub.got[0].Error != "" {
		t.Errorf("events = %+v", pub.got)
	}
}
