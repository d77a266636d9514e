package pipeline

import (
	"errors"
	"testing"
	"time"

	"telly/internal/engine"
)

type fakeWake struct {
	hits   map[int]int // call number -> phrase index
	calls  int
	resets int
	err    error
}

func (f *fakeWake) Detect([]int16) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if idx, ok := f.hits[f.calls]; ok {
		return idx, nil
	}
	return engine.NoMatch, nil
}

func (f *fakeWake) Reset() { f.resets++ }

type fakeRecognizer struct {
	results map[int]engine.Result // call number -> result
	calls   int
	resets  int
	err     error
}

func (f *fakeRecognizer) Accept([]int16) (engine.Result, error) {
	f.calls++
	if f.err != nil {
		return engine.Result{}, f.err
	}
	return f.results[f.calls], nil
}

func (f *fakeRecognizer) Reset() { f.resets++ }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type machineHarness struct {
	m           *ModeMachine
	wake        *fakeWake
	rec         *fakeRecognizer
	clock       *clock
	transcripts []Transcript
	transitions []Transition
}

func newMachine(wake *fakeWake, rec *fakeRecognizer) *machineHarness {
	h := &machineHarness{
		wake:  wake,
		rec:   rec,
		clock: &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.m = NewModeMachine(wake, rec, func(tr Transcript) {
		// the machine must still be listening while the transcript is handled
		if h.m.Mode() != ListeningForCommand {
			panic("transcript handled after transition")
		}
		h.transcripts = append(h.transcripts, tr)
	}, 5*time.Second,
		WithClock(h.clock.now),
		WithObserver(func(t Transition) { h.transitions = append(h.transitions, t) }),
	)
	return h
}

func (h *machineHarness) feed(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := h.m.Feed(make([]int16, 1024)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWakeStartsListening(t *testing.T) {
	h := newMachine(&fakeWake{hits: map[int]int{3: 1}}, &fakeRecognizer{})

	h.feed(t, 2)
	if h.m.Mode() != WaitingForWake {
		t.Fatal("woke without a match")
	}
	h.feed(t, 1)
	if h.m.Mode() != ListeningForCommand {
		t.Fatal("did not wake on match")
	}
	if h.rec.resets != 1 {
		t.Errorf("recognizer resets = %d, want 1", h.rec.resets)
	}
	if want := h.clock.t.Add(5 * time.Second); !h.m.Deadline().Equal(want) {
		t.Errorf("deadline = %v, want %v", h.m.Deadline(), want)
	}
	if len(h.transitions) != 1 || h.transitions[0].Reason != ReasonPhrase || h.transitions[0].Phrase != 1 {
		t.Errorf("transitions = %+v", h.transitions)
	}
}

func TestFinalTranscriptReturnsToWake(t *testing.T) {
	h := newMachine(
		&fakeWake{hits: map[int]int{1: 0}},
		&fakeRecognizer{results: map[int]engine.Result{
			1: {Text: "turn aircon", Final: false},
			2: {Text: " turn aircon to 5 degrees ", Final: true},
		}},
	)

	h.feed(t, 4)
	if len(h.transcripts) != 1 {
		t.Fatalf("transcripts = %+v", h.transcripts)
	}
	if got := h.transcripts[0]; got.Text != "turn aircon to 5 degrees" || got.Mode != ListeningForCommand {
		t.Errorf("transcript = %+v", got)
	}
	if h.m.Mode() != WaitingForWake {
		t.Error("still listening after transcript")
	}
	if h.wake.resets != 1 {
		t.Errorf("wake resets = %d, want 1", h.wake.resets)
	}
	// frame 4 went to the wake detector again, never to the recognizer
	if h.wake.calls != 2 || h.rec.calls != 2 {
		t.Errorf("wake calls=%d rec calls=%d, want 2 and 2", h.wake.calls, h.rec.calls)
	}
}

func TestTimeoutReturnsToWake(t *testing.T) {
	h := newMachine(&fakeWake{hits: map[int]int{1: 0}}, &fakeRecognizer{})

	h.feed(t, 1)
	h.clock.advance(5 * time.Second)
	h.feed(t, 1)
	if h.m.Mode() != ListeningForCommand {
		t.Fatal("timed out at the deadline, want strictly after")
	}

	h.clock.advance(time.Millisecond)
	h.feed(t, 1)
	if h.m.Mode() != WaitingForWake {
		t.Fatal("did not time out")
	}
	if h.wake.resets != 1 {
		t.Errorf("wake resets = %d, want 1", h.wake.resets)
	}
	if len(h.transcripts) != 0 {
		t.Errorf("unexpected transcripts %+v", h.transcripts)
	}
	last := h.transitions[len(h.transitions)-1]
	if last.Reason != ReasonTimeout || last.To != WaitingForWake {
		t.Errorf("last transition = %+v", last)
	}

	// the next wake starts a fresh utterance
	h.wake.hits[h.wake.calls+1] = 0
	h.feed(t, 1)
	if h.m.Mode() != ListeningForCommand || h.rec.resets != 2 {
		t.Errorf("mode=%v rec resets=%d", h.m.Mode(), h.rec.resets)
	}
}

func TestEmptyFinalIsIgnored(t *testing.T) {
	h := newMachine(
		&fakeWake{hits: map[int]int{1: 0}},
		&fakeRecognizer{results: map[int]engine.Result{1: {Text: "  ", Final: true}}},
	)

	h.feed(t, 2)
	if h.m.Mode() != ListeningForCommand {
		t.Error("empty transcript caused a transition")
	}
	if len(h.transcripts) != 0 {
		t.Errorf("transcripts = %+v", h.transcripts)
	}
}

func TestTrigger(t *testing.T) {
	h := newMachine(&fakeWake{}, &fakeRecognizer{})

	h.m.Trigger()
	if h.m.Mode() != ListeningForCommand || h.rec.resets != 1 {
		t.Fatalf("mode=%v resets=%d", h.m.Mode(), h.rec.resets)
	}
	if h.transitions[0].Reason != ReasonTrigger {
		t.Errorf("reason = %v", h.transitions[0].Reason)
	}

	h.feed(t, 1)
	if h.wake.calls != 0 {
		t.Error("frame went to wake detector while listening")
	}
}

func TestEngineErrors(t *testing.T) {
	boom := errors.New("boom")

	h := newMachine(&fakeWake{err: boom}, &fakeRecognizer{})
	if err := h.m.Feed(nil); !errors.Is(err, boom) {
		t.Errorf("wake err = %v", err)
	}

	h = newMachine(&fakeWake{hits: map[int]int{1: 0}}, &fakeRecognizer{err: boom})
	h.feed(t, 1)
	if err := h.m.Feed(nil); !errors.Is(err, boom) {
		t.Errorf("recognizer err = %v", err)
	}
}
