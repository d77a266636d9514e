package audio

import (
	"context"
	"io"
	"time"

	"telly/pkg/audioconv"
)

// FileSource replays decoded audio as if it came from the microphone.
type FileSource struct {
	pcm   []int16
	frame int
	pos   int

	// per-block delay when pacing is on, zero otherwise
	period time.Duration
	next   time.Time
}

// OpenFile decodes path to mono PCM at rate. With realtime set, Read hands out
// blocks no faster than the hardware would.
func OpenFile(path string, rate, frameSize int, realtime bool) (*FileSource, error) {
	pcm, err := audioconv.DecodeFile(path, audioconv.Options{Rate: rate})
	if err != nil {
		return nil, err
	}
	return NewPCMSource(pcm, rate, frameSize, realtime), nil
}

func NewPCMSource(pcm []int16, rate, frameSize int, realtime bool) *FileSource {
	s := &FileSource{pcm: pcm, frame: frameSize}
	if realtime && rate > 0 {
		s.period = time.Duration(frameSize) * time.Second / time.Duration(rate)
	}
	return s
}

// Read returns io.EOF once the file is exhausted. The last block is zero
// padded to full length.
func (s *FileSource) Read(ctx context.Context) ([]int16, error) {
	if s.pos >= len(s.pcm) {
		return nil, io.EOF
	}

	if s.period > 0 {
		if s.next.IsZero() {
			s.next = time.Now()
		}
		if wait := time.Until(s.next); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
		s.next = s.next.Add(s.period)
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]int16, s.frame)
	n := copy(out, s.pcm[s.pos:])
	s.pos += n
	return out, nil
}

func (s *FileSource) Close() error { return nil }
