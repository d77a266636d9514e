package nlu

import "telly/pkg/protocol"

const QuestionDevice = "question"

var statusWords = vocabulary("status", "state", "is", "are", "what", "how", "check", "show")

// sensorWords gate the sensor branch. The per-sensor lists below add Korean
// words that only count once the gate is open.
var sensorWords = vocabulary("temperature", "temp", "co2", "co₂", "humidity")

var (
	temperatureWords = []string{"temperature", "temp", "온도"}
	co2Words         = []string{"co2", "co₂", "이산화탄소"}
	humidityWords    = []string{"humidity", "습도"}
	indoorWords      = []string{"indoor", "inside", "room", "실내", "내부"}
)

// deviceStateTokens is checked in order; the first present token wins.
var deviceStateTokens = []struct {
	token  string
	device string
}{
	{"aircon", "aircon"},
	{"ac", "aircon"},
	{"window", "window"},
	{"wiper", "wiper"},
	{"ambient", "ambient"},
	{"music", "music"},
	{"song", "music"},
	{"volume", "music"},
	{"headlamp", "headlamp"},
}

// DetectQuery resolves a status question. Sensor words take priority over
// device words.
func DetectQuery(u *Utterance) (protocol.Payload, bool) {
	t := u.Tokens
	if !t.Intersects(statusWords) {
		return protocol.Payload{}, false
	}

	sensors := []struct {
		command string
		words   []string
	}{
		{"temperature", temperatureWords},
		{"co2", co2Words},
		{"humidity", humidityWords},
	}
	for _, s := range sensors {
		if !t.Intersects(sensorWords) {
			break
		}
		if !t.Any(s.words...) {
			continue
		}
		if t.Any(indoorWords...) {
			return protocol.MustBuild(QuestionDevice, s.command, protocol.Word("indoor")), true
		}
		return protocol.MustBuild(QuestionDevice, s.command), true
	}

	for _, d := range deviceStateTokens {
		if t.Has(d.token) {
			return protocol.MustBuild(QuestionDevice, d.device), true
		}
	}
	if t.Has("air") && t.Has("conditioner") {
		return protocol.MustBuild(QuestionDevice, "aircon"), true
	}

	return protocol.Payload{}, false
}
