// Package engine adapts speech engines to the frame-in/result-out contract
// used by the processing loop. Every engine here expects mono 16-bit PCM at
// the model rate and is owned by a single goroutine.
package engine

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// NoMatch is returned by WakeDetector.Detect when no keyword was heard.
const NoMatch = -1

// WakeDetector reports the index of the configured wake phrase matched by
// the frame, or NoMatch.
type WakeDetector interface {
	Detect(pcm []int16) (int, error)
	Reset()
}

type Result struct {
	Text  string
	Final bool
}

// Recognizer accumulates frames and reports a finalized transcript once an
// utterance ends. Partial results have Final unset.
type Recognizer interface {
	Accept(pcm []int16) (Result, error)
	Reset()
}

const (
	KindVosk    = "vosk"
	KindWhisper = "whisper"
)

type Config struct {
	Kind      string
	ModelPath string
	Rate      int
	Phrases   []string

	// whisper only
	Language string
	Threads  int
	VADMode  int
}

// Set is the pair of engines the mode machine switches between.
type Set struct {
	Wake    WakeDetector
	Command Recognizer

	closers []io.Closer
}

func (s *Set) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open loads the model and builds the wake and command engines.
func Open(cfg Config) (*Set, error) {
	if len(cfg.Phrases) == 0 {
		return nil, errors.New("no wake phrases configured")
	}
	switch cfg.Kind {
	case KindVosk, "":
		return openVosk(cfg)
	case KindWhisper:
		return openWhisper(cfg)
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Kind)
	}
}

// PhraseSpotter turns any recognizer into a wake detector by matching its
// finalized text against a phrase list.
type PhraseSpotter struct {
	rec     Recognizer
	phrases []string
}

func NewPhraseSpotter(rec Recognizer, phrases []string) *PhraseSpotter {
	norm := make([]string, len(phrases))
	for i, p := range phrases {
		norm[i] = normalize(p)
	}
	return &PhraseSpotter{rec: rec, phrases: norm}
}

func (p *PhraseSpotter) Detect(pcm []int16) (int, error) {
	res, err := p.rec.Accept(pcm)
	if err != nil {
		return NoMatch, err
	}
	if !res.Final {
		return NoMatch, nil
	}
	return p.Match(res.Text), nil
}

// Match returns the index of the first phrase found as a whole-word run in
// text.
func (p *PhraseSpotter) Match(text string) int {
	padded := " " + normalize(text) + " "
	for i, ph := range p.phrases {
		if ph != "" && strings.Contains(padded, " "+ph+" ") {
			return i
		}
	}
	return NoMatch
}

func (p *PhraseSpotter) Reset() { p.rec.Reset() }

func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
