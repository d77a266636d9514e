// Package notify gives audible feedback while a command is being listened
// for: the wake chime and ducking of other playback streams.
package notify

import (
	"fmt"
	"os"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Chime is a decoded mp3 held in memory, ready to be played over and over.
type Chime struct {
	buf *beep.Buffer
}

// LoadChime decodes path and opens the speaker at the file's sample rate.
func LoadChime(path string) (*Chime, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chime: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode chime: %w", err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	return &Chime{buf: buf}, nil
}

// Play starts the chime and returns immediately. A nil Chime is silent.
func (c *Chime) Play() {
	if c == nil {
		return
	}
	speaker.Play(c.buf.Streamer(0, c.buf.Len()))
}

// Stop cuts off a chime that is still playing.
func (c *Chime) Stop() {
	if c == nil {
		return
	}
	speaker.Clear()
}
