package engine

import (
	"encoding/json"
	"fmt"
	"io"

	vosk "github.com/alphacep/vosk-api/go"

	"telly/pkg/audioconv"
)

type voskResult struct {
	Text string `json:"text"`
}

// VoskRecognizer wraps one Kaldi recognizer.
type VoskRecognizer struct {
	rec *vosk.VoskRecognizer
}

// NewVoskRecognizer builds a free-vocabulary recognizer, or a grammar
// constrained one when grammar is non-empty.
func NewVoskRecognizer(model *vosk.VoskModel, rate int, grammar []string) (*VoskRecognizer, error) {
	var (
		rec *vosk.VoskRecognizer
		err error
	)
	if len(grammar) == 0 {
		rec, err = vosk.NewRecognizer(model, float64(rate))
	} else {
		g, mErr := json.Marshal(append(append([]string(nil), grammar...), "[unk]"))
		if mErr != nil {
			return nil, mErr
		}
		rec, err = vosk.NewRecognizerGrm(model, float64(rate), string(g))
	}
	if err != nil {
		return nil, fmt.Errorf("create vosk recognizer: %w", err)
	}
	return &VoskRecognizer{rec: rec}, nil
}

func (v *VoskRecognizer) Accept(pcm []int16) (Result, error) {
	switch code := v.rec.AcceptWaveform(audioconv.Int16ToBytes(pcm)); {
	case code < 0:
		return Result{}, fmt.Errorf("vosk accept waveform failed (%d)", code)
	case code == 0:
		return Result{}, nil
	}

	var res voskResult
	if err := json.Unmarshal([]byte(v.rec.Result()), &res); err != nil {
		return Result{}, fmt.Errorf("unmarshal vosk result: %w", err)
	}
	return Result{Text: res.Text, Final: true}, nil
}

func (v *VoskRecognizer) Reset() { v.rec.Reset() }

func (v *VoskRecognizer) Close() error {
	v.rec.Free()
	return nil
}

type voskModel struct{ m *vosk.VoskModel }

func (m voskModel) Close() error {
	m.m.Free()
	return nil
}

func openVosk(cfg Config) (*Set, error) {
	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load vosk model %q: %w", cfg.ModelPath, err)
	}
	set := &Set{closers: []io.Closer{voskModel{model}}}

	wakeRec, err := NewVoskRecognizer(model, cfg.Rate, cfg.Phrases)
	if err != nil {
		set.Close()
		return nil, err
	}
	set.closers = append(set.closers, wakeRec)

	cmdRec, err := NewVoskRecognizer(model, cfg.Rate, nil)
	if err != nil {
		set.Close()
		return nil, err
	}
	set.closers = append(set.closers, cmdRec)

	set.Wake = NewPhraseSpotter(wakeRec, cfg.Phrases)
	set.Command = cmdRec
	return set, nil
}
