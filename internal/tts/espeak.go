// Package tts speaks chat replies on the local sound card with espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0 ? -1 : 0;
}

static int
espeak_say(const char *text, const char *lang, int rate)
{
	if (!text || !lang)
	{ return -1; }

	espeak_VOICE specs = { .languages = lang };
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ return -2; }
	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }

	if (espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -3; }
	espeak_Synchronize();

	return 0;
}

static void
espeak_done(void)
{
	espeak_Terminate();
}
*/
import "C"

import (
	"context"
	"fmt"
	log "log/slog"
	"unsafe"

	"telly/pkg/protocol"
)

type Voice struct {
	Language string // espeak language, e.g. "en", "ko"
	Rate     int    // words per minute, 0 keeps the default
}

// Speaker owns the espeak engine. Utterances are played one at a time on a
// background goroutine; Say drops text while the queue is full.
type Speaker struct {
	voice Voice
	queue chan string
	done  chan struct{}
}

func NewSpeaker(voice Voice) (*Speaker, error) {
	if voice.Language == "" {
		voice.Language = "en"
	}
	s := &Speaker{
		voice: voice,
		queue: make(chan string, 4),
		done:  make(chan struct{}),
	}

	ready := make(chan error)
	go s.loop(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return s, nil
}

// loop keeps every espeak call on one goroutine.
func (s *Speaker) loop(ready chan<- error) {
	defer close(s.done)

	if rc := C.espeak_init(); rc != 0 {
		ready <- fmt.Errorf("espeak init failed: %d", int(rc))
		return
	}
	defer C.espeak_done()
	close(ready)

	lang := C.CString(s.voice.Language)
	defer C.free(unsafe.Pointer(lang))

	for text := range s.queue {
		ctext := C.CString(text)
		rc := C.espeak_say(ctext, lang, C.int(s.voice.Rate))
		C.free(unsafe.Pointer(ctext))
		if rc != 0 {
			log.Error("Failed to voice out", "rc", int(rc))
		}
	}
}

func (s *Speaker) Say(text string) {
	if text == "" {
		return
	}
	select {
	case s.queue <- text:
	default:
		log.Warn("Speech queue full, dropping reply")
	}
}

// Close waits for queued speech to finish.
func (s *Speaker) Close() error {
	close(s.queue)
	<-s.done
	return nil
}

type Sink interface {
	Send(ctx context.Context, p protocol.Payload) error
}

// SpeakingSink voices llm/speak payloads locally and forwards everything to
// the wrapped sink.
type SpeakingSink struct {
	next Sink
	sp   *Speaker
}

func NewSpeakingSink(next Sink, sp *Speaker) *SpeakingSink {
	return &SpeakingSink{next: next, sp: sp}
}

func (s *SpeakingSink) Send(ctx context.Context, p protocol.Payload) error {
	if p.Device() == "llm" && p.Command() == "speak" {
		s.sp.Say(p.Value().String())
	}
	return s.next.Send(ctx, p)
}
