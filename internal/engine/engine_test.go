package engine

import (
	"context"
	"errors"
	"testing"

	"telly/pkg/stt"
)

type scriptedRecognizer struct {
	results []Result
	resets  int
}

func (s *scriptedRecognizer) Accept([]int16) (Result, error) {
	if len(s.results) == 0 {
		return Result{}, nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r, nil
}

func (s *scriptedRecognizer) Reset() { s.resets++ }

func TestPhraseSpotterMatch(t *testing.T) {
	p := NewPhraseSpotter(&scriptedRecognizer{}, []string{"hi telly", "Hey Telly"})

	tests := []struct {
		text string
		want int
	}{
		{"hi telly", 0},
		{"hey telly", 1},
		{"Hey, Telly!", 1},
		{"oh hey telly please", 1},
		{"hi tellytubby", NoMatch},
		{"", NoMatch},
		{"[unk]", NoMatch},
	}
	for _, tc := range tests {
		if got := p.Match(tc.text); got != tc.want {
			t.Errorf("Match(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestPhraseSpotterIgnoresPartials(t *testing.T) {
	rec := &scriptedRecognizer{results: []Result{
		{Text: "hi telly", Final: false},
		{Text: "hi telly", Final: true},
	}}
	p := NewPhraseSpotter(rec, []string{"hi telly"})

	if got, _ := p.Detect(nil); got != NoMatch {
		t.Errorf("partial result matched: %d", got)
	}
	if got, _ := p.Detect(nil); got != 0 {
		t.Errorf("final result = %d, want 0", got)
	}
	p.Reset()
	if rec.resets != 1 {
		t.Errorf("resets = %d, want 1", rec.resets)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	if _, err := Open(Config{Kind: KindVosk}); err == nil {
		t.Error("expected error without phrases")
	}
	if _, err := Open(Config{Kind: "sphinx", Phrases: []string{"hi"}}); err == nil {
		t.Error("expected error for unknown engine")
	}
}

// energyVAD treats any non-zero frame as speech.
type energyVAD struct{}

func (energyVAD) Process(_ int, frame []byte) (bool, error) {
	for _, b := range frame {
		if b != 0 {
			return true, nil
		}
	}
	return false, nil
}

type fakeTranscriber struct {
	calls   int
	samples int
	err     error
}

func (f *fakeTranscriber) TranscribePCM(_ context.Context, pcm []float32) (stt.Result, error) {
	f.calls++
	f.samples = len(pcm)
	if f.err != nil {
		return stt.Result{}, f.err
	}
	return stt.Result{Text: "open the window"}, nil
}

func frames(n, frameLen int, value int16) []int16 {
	out := make([]int16, n*frameLen)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestWhisperEndpointsOnSilence(t *testing.T) {
	tr := &fakeTranscriber{}
	w := newWhisper(tr, energyVAD{}, 16000)
	if w.frameLen != 320 {
		t.Fatalf("frameLen = %d, want 320", w.frameLen)
	}

	// leading silence is not buffered
	if res, err := w.Accept(frames(10, 320, 0)); err != nil || res.Final {
		t.Fatalf("silence: %+v, %v", res, err)
	}
	if res, _ := w.Accept(frames(20, 320, 500)); res.Final {
		t.Fatal("finalized while speaking")
	}
	// 29 silent frames is below the 30-frame hangover
	if res, _ := w.Accept(frames(29, 320, 0)); res.Final {
		t.Fatal("finalized before hangover elapsed")
	}
	res, err := w.Accept(frames(1, 320, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Final || res.Text != "open the window" {
		t.Fatalf("got %+v, want final transcript", res)
	}
	if tr.samples != 50*320 {
		t.Errorf("transcribed %d samples, want %d", tr.samples, 50*320)
	}
}

func TestWhisperResetDropsUtterance(t *testing.T) {
	tr := &fakeTranscriber{}
	w := newWhisper(tr, energyVAD{}, 16000)

	w.Accept(frames(5, 320, 500))
	w.Accept([]int16{1, 2, 3})
	w.Reset()
	if res, _ := w.Accept(frames(40, 320, 0)); res.Final {
		t.Fatal("finalized after reset")
	}
	if tr.calls != 0 {
		t.Errorf("transcriber called %d times", tr.calls)
	}
}

func TestWhisperTranscribeError(t *testing.T) {
	boom := errors.New("boom")
	w := newWhisper(&fakeTranscriber{err: boom}, energyVAD{}, 16000)
	w.Accept(frames(3, 320, 500))
	if _, err := w.Accept(frames(30, 320, 0)); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
