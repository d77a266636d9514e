package nlu

import (
	"context"
	"errors"
	"strings"
	"testing"

	"telly/pkg/protocol"
)

type recordingSink struct {
	sent []string
	err  error
}

func (s *recordingSink) Send(_ context.Context, p protocol.Payload) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, p.String())
	return nil
}

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type harness struct {
	d       *Dispatcher
	sink    *recordingSink
	control *fakeCompleter
	chat    *fakeCompleter
}

func newHarness() *harness {
	h := &harness{
		sink:    &recordingSink{},
		control: &fakeCompleter{reply: `{"device":"window","command":"open"}`},
		chat:    &fakeCompleter{reply: "Why did the car blush?"},
	}
	h.d = NewDispatcher(NewRouter(h.control, h.chat, nil), h.sink, nil)
	return h
}

func TestDispatchRules(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		kind   Kind
		device string
		want   []string
	}{
		{
			name: "indoor temperature query",
			text: "what is the indoor temperature",
			kind: KindQuery,
			want: []string{`{"device":"question","command":"temperature","value":"indoor"}`},
		},
		{
			name: "sensor beats device",
			text: "what is the aircon humidity",
			kind: KindQuery,
			want: []string{`{"device":"question","command":"humidity"}`},
		},
		{
			name: "korean sensor word alone is not a sensor query",
			text: "실내 이산화탄소 how",
			kind: KindRouted,
			want: []string{`{"device":"llm","command":"speak","value":"Why did the car blush?"}`},
		},
		{
			name: "korean sensor word falls through to device state",
			text: "what is the ac 습도",
			kind: KindQuery,
			want: []string{`{"device":"question","command":"aircon"}`},
		},
		{
			name: "korean sensor word counts once gated",
			text: "how is the 실내 온도 humidity",
			kind: KindQuery,
			want: []string{`{"device":"question","command":"temperature","value":"indoor"}`},
		},
		{
			name: "device state query",
			text: "is the window open",
			kind: KindQuery,
			want: []string{`{"device":"question","command":"window"}`},
		},
		{
			name: "air conditioner phrase query",
			text: "check the air conditioner",
			kind: KindQuery,
			want: []string{`{"device":"question","command":"aircon"}`},
		},
		{
			name:   "aircon number wins",
			text:   "turn aircon to 5 degrees",
			kind:   KindDevice,
			device: "aircon",
			want:   []string{`{"device":"aircon","command":"set","value":5}`},
		},
		{
			name:   "aircon number beats off",
			text:   "ac off 20",
			kind:   KindDevice,
			device: "aircon",
			want:   []string{`{"device":"aircon","command":"set","value":20}`},
		},
		{
			name:   "aircon zero is not a set target",
			text:   "set aircon to 0 and turn it on",
			kind:   KindDevice,
			device: "aircon",
			want:   []string{`{"device":"aircon","command":"on"}`},
		},
		{
			name:   "airconditioner joined",
			text:   "airconditioner on",
			kind:   KindDevice,
			device: "aircon",
			want:   []string{`{"device":"aircon","command":"on"}`},
		},
		{
			name:   "window open",
			text:   "please open the window",
			kind:   KindDevice,
			device: "window",
			want:   []string{`{"device":"window","command":"open"}`},
		},
		{
			name:   "window number without set",
			text:   "window 30",
			kind:   KindDevice,
			device: "window",
			want:   []string{`{"device":"window","command":"set","value":30}`},
		},
		{
			name:   "wiper fast",
			text:   "wiper fast",
			kind:   KindDevice,
			device: "wiper",
			want:   []string{`{"device":"wiper","command":"fast"}`},
		},
		{
			name:   "wiper set number",
			text:   "set wiper 2",
			kind:   KindDevice,
			device: "wiper",
			want:   []string{`{"device":"wiper","command":"set","value":2}`},
		},
		{
			name:   "ambient colour and brightness",
			text:   "turn on red ambient light high brightness",
			kind:   KindDevice,
			device: "ambient",
			want: []string{
				`{"device":"ambient","command":"on","value":"red"}`,
				`{"device":"ambient","command":"brightness","value":"high"}`,
			},
		},
		{
			name:   "ambient middle",
			text:   "ambient middle",
			kind:   KindDevice,
			device: "ambient",
			want:   []string{`{"device":"ambient","command":"brightness","value":"mid"}`},
		},
		{
			name:   "ambient default green",
			text:   "start ambient",
			kind:   KindDevice,
			device: "ambient",
			want:   []string{`{"device":"ambient","command":"on","value":"green"}`},
		},
		{
			name:   "music skip",
			text:   "skip this song",
			kind:   KindDevice,
			device: "music",
			want:   []string{`{"device":"music","command":"next"}`},
		},
		{
			name:   "volume louder",
			text:   "volume louder",
			kind:   KindDevice,
			device: "music",
			want:   []string{`{"device":"music","command":"volume_up"}`},
		},
		{
			name:   "headlamp set",
			text:   "set headlamp 2",
			kind:   KindDevice,
			device: "headlamp",
			want:   []string{`{"device":"headlamp","command":"set","value":2}`},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			rep := h.d.Dispatch(context.Background(), tc.text)

			if rep.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", rep.Kind, tc.kind)
			}
			if rep.Device != tc.device {
				t.Errorf("device = %q, want %q", rep.Device, tc.device)
			}
			if rep.Kind != KindRouted && rep.Route != NoRoute {
				t.Errorf("route = %v on a %v report", rep.Route, rep.Kind)
			}
			if strings.Join(h.sink.sent, "\n") != strings.Join(tc.want, "\n") {
				t.Errorf("sent:\n%s\nwant:\n%s", strings.Join(h.sink.sent, "\n"), strings.Join(tc.want, "\n"))
			}
			if rep.Delivered != len(tc.want) {
				t.Errorf("delivered = %d, want %d", rep.Delivered, len(tc.want))
			}
			if len(h.control.prompts)+len(h.chat.prompts) != 0 {
				t.Error("rule match must not call a completer")
			}
		})
	}
}

func TestDispatchRoutes(t *testing.T) {
	tests := []struct {
		text        string
		route       Route
		deviceHit   bool
		wantControl bool
	}{
		{"window please", DeviceOnly, true, true},
		{"turn it up", ActionOnly, false, true},
		{"wiper turn", Ambiguous, true, true},
		{"tell me a joke", Chat, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			h := newHarness()
			rep := h.d.Dispatch(context.Background(), tc.text)

			if rep.Kind != KindRouted {
				t.Fatalf("kind = %v, want routed", rep.Kind)
			}
			if rep.Route != tc.route {
				t.Errorf("route = %v, want %v", rep.Route, tc.route)
			}
			if rep.DeviceHit != tc.deviceHit {
				t.Errorf("deviceHit = %v, want %v", rep.DeviceHit, tc.deviceHit)
			}
			if tc.wantControl {
				if len(h.control.prompts) != 1 || len(h.chat.prompts) != 0 {
					t.Fatalf("control=%d chat=%d calls", len(h.control.prompts), len(h.chat.prompts))
				}
				if h.control.prompts[0] != ControlPrompt(tc.text) {
					t.Errorf("prompt = %q", h.control.prompts[0])
				}
			} else {
				if len(h.chat.prompts) != 1 || len(h.control.prompts) != 0 {
					t.Fatalf("control=%d chat=%d calls", len(h.control.prompts), len(h.chat.prompts))
				}
				if h.chat.prompts[0] != tc.text {
					t.Errorf("chat prompt = %q, want raw transcript", h.chat.prompts[0])
				}
			}
			if len(h.sink.sent) != 1 {
				t.Fatalf("sent %d payloads, want 1", len(h.sink.sent))
			}
		})
	}
}

func TestDispatchFirstDeviceHitStopsChain(t *testing.T) {
	h := newHarness()
	// window is mentioned without a command; the later wiper handler would
	// have matched "fast" but must not be consulted.
	rep := h.d.Dispatch(context.Background(), "window wiper fast")
	if rep.Kind != KindRouted || rep.Route != Ambiguous {
		t.Fatalf("got %v/%v, want routed/ambiguous", rep.Kind, rep.Route)
	}
}

func TestDispatchChatPayload(t *testing.T) {
	h := newHarness()
	h.d.Dispatch(context.Background(), "tell me a joke")
	want := `{"device":"llm","command":"speak","value":"Why did the car blush?"}`
	if len(h.sink.sent) != 1 || h.sink.sent[0] != want {
		t.Errorf("sent %v, want %s", h.sink.sent, want)
	}
}

func TestDispatchControlReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", `{"device":"window","command":"open","value":null}`, `{"device":"window","command":"open","value":null}`},
		{"wrapped", "Sure! {\"device\": \"wiper\", \"command\": \"on\"} hope that helps", `{"device":"wiper","command":"on"}`},
		{"extra keys", `{"device":"seat","command":"heat","value":{"level":2},"zone":"driver"}`, `{"device":"seat","command":"heat","value":{"level":2},"zone":"driver"}`},
		{"no object", "I cannot do that", ""},
		{"missing command", `{"device":"window"}`, ""},
		{"broken json", `{"device":"window",}`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			h.control.reply = tc.reply
			rep := h.d.Dispatch(context.Background(), "window please")

			if tc.want == "" {
				if rep.Kind != KindDropped || len(h.sink.sent) != 0 {
					t.Errorf("kind=%v sent=%v, want dropped", rep.Kind, h.sink.sent)
				}
				return
			}
			if len(h.sink.sent) != 1 || h.sink.sent[0] != tc.want {
				t.Errorf("sent %v, want %s", h.sink.sent, tc.want)
			}
		})
	}
}

func TestDispatchCompletionFailureDrops(t *testing.T) {
	h := newHarness()
	h.chat.err = errors.New("connection refused")
	rep := h.d.Dispatch(context.Background(), "tell me a joke")
	if rep.Kind != KindDropped || len(h.sink.sent) != 0 {
		t.Errorf("kind=%v sent=%v", rep.Kind, h.sink.sent)
	}

	h = newHarness()
	h.chat.reply = ""
	if rep := h.d.Dispatch(context.Background(), "tell me a joke"); rep.Kind != KindDropped {
		t.Errorf("empty chat reply: kind=%v", rep.Kind)
	}
}

func TestDispatchIgnoresEmpty(t *testing.T) {
	h := newHarness()
	for _, text := range []string{"", "   ", "\t\n"} {
		if rep := h.d.Dispatch(context.Background(), text); rep.Kind != KindIgnored {
			t.Errorf("Dispatch(%q) kind = %v", text, rep.Kind)
		}
	}
	if len(h.sink.sent)+len(h.control.prompts)+len(h.chat.prompts) != 0 {
		t.Error("empty transcript produced output")
	}
}

func TestDispatchSinkFailureCounted(t *testing.T) {
	h := newHarness()
	h.sink.err = errors.New("dial tcp: refused")
	rep := h.d.Dispatch(context.Background(), "window 30")
	if rep.Kind != KindDevice || rep.Delivered != 0 {
		t.Errorf("kind=%v delivered=%d", rep.Kind, rep.Delivered)
	}
}

func TestRouterRejectsNoRoute(t *testing.T) {
	h := newHarness()
	if _, err := h.d.router.Route(context.Background(), NoRoute, "window"); err == nil {
		t.Fatal("expected error")
	}
	if len(h.control.prompts)+len(h.chat.prompts) != 0 {
		t.Error("completer called without a route")
	}
	if NoRoute.Control() || Chat.Control() || !Ambiguous.Control() {
		t.Error("Control() misclassifies routes")
	}
}
