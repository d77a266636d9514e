package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"telly/pkg/audioconv"
	"telly/pkg/stt"
)

const (
	vadFrameDur     = 20 * time.Millisecond
	silenceHangover = 600 * time.Millisecond
	maxUtterance    = 10 * time.Second
	transcribeLimit = 30 * time.Second
)

type transcriber interface {
	TranscribePCM(ctx context.Context, pcm []float32) (stt.Result, error)
}

type voiceDetector interface {
	Process(rate int, frame []byte) (bool, error)
}

// Whisper endpoints utterances with WebRTC VAD and transcribes each one with
// whisper.cpp once trailing silence exceeds the hangover.
type Whisper struct {
	tr   transcriber
	vad  voiceDetector
	rate int

	frameLen int
	pending  []int16
	utter    []int16
	speaking bool
	silent   int
}

func NewWhisper(tr *stt.Transcriber, rate, vadMode int) (*Whisper, error) {
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create vad: %w", err)
	}
	if err := vad.SetMode(vadMode); err != nil {
		return nil, fmt.Errorf("set vad mode %d: %w", vadMode, err)
	}
	w := newWhisper(tr, vad, rate)
	if !vad.ValidRateAndFrameLength(rate, w.frameLen) {
		return nil, fmt.Errorf("vad does not support %d Hz", rate)
	}
	return w, nil
}

func newWhisper(tr transcriber, vad voiceDetector, rate int) *Whisper {
	return &Whisper{
		tr:       tr,
		vad:      vad,
		rate:     rate,
		frameLen: rate * int(vadFrameDur/time.Millisecond) / 1000,
	}
}

func (w *Whisper) Accept(pcm []int16) (Result, error) {
	w.pending = append(w.pending, pcm...)

	hangover := int(silenceHangover / vadFrameDur)
	maxSamples := int(maxUtterance/time.Second) * w.rate

	for len(w.pending) >= w.frameLen {
		frame := w.pending[:w.frameLen]
		active, err := w.vad.Process(w.rate, audioconv.Int16ToBytes(frame))
		if err != nil {
			return Result{}, fmt.Errorf("vad: %w", err)
		}

		switch {
		case active:
			w.speaking = true
			w.silent = 0
			w.utter = append(w.utter, frame...)
		case w.speaking:
			w.silent++
			w.utter = append(w.utter, frame...)
		}
		w.pending = w.pending[w.frameLen:]

		if w.speaking && (w.silent >= hangover || len(w.utter) >= maxSamples) {
			return w.finish()
		}
	}
	return Result{}, nil
}

func (w *Whisper) finish() (Result, error) {
	utter := w.utter
	w.utter = nil
	w.speaking = false
	w.silent = 0

	ctx, cancel := context.WithTimeout(context.Background(), transcribeLimit)
	defer cancel()

	res, err := w.tr.TranscribePCM(ctx, audioconv.Int16ToFloat32(utter))
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: %w", err)
	}
	return Result{Text: res.Text, Final: true}, nil
}

func (w *Whisper) Reset() {
	w.pending = w.pending[:0]
	w.utter = nil
	w.speaking = false
	w.silent = 0
}

func openWhisper(cfg Config) (*Set, error) {
	tr, err := stt.NewTranscriber(cfg.ModelPath, stt.Options{
		Language: cfg.Language,
		Threads:  cfg.Threads,
	})
	if err != nil {
		return nil, err
	}
	set := &Set{closers: []io.Closer{tr}}

	wake, err := NewWhisper(tr, cfg.Rate, cfg.VADMode)
	if err != nil {
		set.Close()
		return nil, err
	}
	cmd, err := NewWhisper(tr, cfg.Rate, cfg.VADMode)
	if err != nil {
		set.Close()
		return nil, err
	}

	set.Wake = NewPhraseSpotter(wake, cfg.Phrases)
	set.Command = cmd
	return set, nil
}
