package nlu

import (
	"strings"

	"telly/pkg/protocol"
)

type Outcome int

const (
	NoMatch Outcome = iota
	DeviceMentioned
	Handled
)

func (o Outcome) String() string {
	switch o {
	case NoMatch:
		return "no_match"
	case DeviceMentioned:
		return "device_mentioned"
	case Handled:
		return "handled"
	default:
		return "unknown"
	}
}

// Result is what a Handler made of an utterance. Payloads is non-empty only
// when Outcome is Handled.
type Result struct {
	Outcome  Outcome
	Payloads []protocol.Payload
}

type Handler interface {
	Device() string
	Handle(u *Utterance) Result
}

// deviceHandler splits a handler into its hit predicate and its keyword
// rules. act returning nothing means the device was named without a command.
type deviceHandler struct {
	device string
	hit    func(u *Utterance) bool
	act    func(u *Utterance) []protocol.Payload
}

func (h deviceHandler) Device() string { return h.device }

func (h deviceHandler) Handle(u *Utterance) Result {
	if !h.hit(u) {
		return Result{Outcome: NoMatch}
	}
	payloads := h.act(u)
	if len(payloads) == 0 {
		return Result{Outcome: DeviceMentioned}
	}
	return Result{Outcome: Handled, Payloads: payloads}
}

func emit(device, command string, value ...protocol.Value) []protocol.Payload {
	return []protocol.Payload{protocol.MustBuild(device, command, value...)}
}

// DefaultHandlers returns the device handlers in chain order.
func DefaultHandlers() []Handler {
	return []Handler{
		aircon(),
		window(),
		wiper(),
		ambient(),
		music(),
		headlamp(),
	}
}

func aircon() Handler {
	return deviceHandler{
		device: "aircon",
		hit: func(u *Utterance) bool {
			return u.Tokens.Any("aircon", "ac") ||
				strings.Contains(u.Text, "air conditioner") ||
				strings.Contains(u.Text, "airconditioner")
		},
		act: func(u *Utterance) []protocol.Payload {
			switch {
			case u.HasNumber && u.Number > 0:
				return emit("aircon", "set", protocol.Int(u.Number))
			case u.Tokens.Has("off"):
				return emit("aircon", "off")
			case u.Tokens.Has("on"):
				return emit("aircon", "on")
			}
			return nil
		},
	}
}

func window() Handler {
	return deviceHandler{
		device: "window",
		hit:    func(u *Utterance) bool { return u.Tokens.Has("window") },
		act: func(u *Utterance) []protocol.Payload {
			if cmd, ok := u.Tokens.First("open", "close", "stop"); ok {
				return emit("window", cmd)
			}
			if u.HasNumber {
				return emit("window", "set", protocol.Int(u.Number))
			}
			return nil
		},
	}
}

func wiper() Handler {
	return deviceHandler{
		device: "wiper",
		hit:    func(u *Utterance) bool { return u.Tokens.Has("wiper") },
		act: func(u *Utterance) []protocol.Payload {
			t := u.Tokens
			if cmd, ok := t.First("off", "fast", "slow"); ok {
				return emit("wiper", cmd)
			}
			if t.Any("on", "start") {
				return emit("wiper", "on")
			}
			if u.HasNumber && t.Has("set") {
				return emit("wiper", "set", protocol.Int(u.Number))
			}
			return nil
		},
	}
}

func ambient() Handler {
	return deviceHandler{
		device: "ambient",
		hit:    func(u *Utterance) bool { return u.Tokens.Has("ambient") },
		act: func(u *Utterance) []protocol.Payload {
			t := u.Tokens
			if t.Has("off") {
				return emit("ambient", "off")
			}

			var out []protocol.Payload
			if colour, ok := t.First("red", "yellow", "green", "rainbow"); ok {
				out = append(out, protocol.MustBuild("ambient", "on", protocol.Word(colour)))
			}
			switch {
			case t.Has("low"):
				out = append(out, protocol.MustBuild("ambient", "brightness", protocol.Word("low")))
			case t.Any("mid", "middle"):
				out = append(out, protocol.MustBuild("ambient", "brightness", protocol.Word("mid")))
			case t.Has("high"):
				out = append(out, protocol.MustBuild("ambient", "brightness", protocol.Word("high")))
			}
			if len(out) > 0 {
				return out
			}

			if t.Any("on", "set", "start", "turn") {
				return emit("ambient", "on", protocol.Word("green"))
			}
			return nil
		},
	}
}

func music() Handler {
	return deviceHandler{
		device: "music",
		hit:    func(u *Utterance) bool { return u.Tokens.Any("music", "song", "volume") },
		act: func(u *Utterance) []protocol.Payload {
			t := u.Tokens
			switch {
			case t.Any("off", "stop"):
				return emit("music", "stop")
			case t.Any("on", "start", "play"):
				return emit("music", "play")
			case t.Any("next", "skip"):
				return emit("music", "next")
			case t.Any("previous", "back", "last"):
				return emit("music", "previous")
			}
			if t.Has("volume") {
				switch {
				case t.Any("up", "increase", "louder"):
					return emit("music", "volume_up")
				case t.Any("down", "decrease", "quieter"):
					return emit("music", "volume_down")
				}
			}
			return nil
		},
	}
}

func headlamp() Handler {
	return deviceHandler{
		device: "headlamp",
		hit:    func(u *Utterance) bool { return u.Tokens.Has("headlamp") },
		act: func(u *Utterance) []protocol.Payload {
			t := u.Tokens
			if cmd, ok := t.First("off", "on"); ok {
				return emit("headlamp", cmd)
			}
			if u.HasNumber && t.Has("set") {
				return emit("headlamp", "set", protocol.Int(u.Number))
			}
			return nil
		},
	}
}
