package audioconv

import (
	"errors"
	"math/rand"
	"testing"
)

func TestNewDecimator(t *testing.T) {
	tests := []struct {
		hw, model int
		ratio     int
		wantErr   bool
	}{
		{48000, 16000, 3, false},
		{16000, 16000, 1, false},
		{96000, 16000, 6, false},
		{44100, 16000, 0, true},
		{16000, 0, 0, true},
		{-48000, 16000, 0, true},
	}
	for _, tc := range tests {
		d, err := NewDecimator(tc.hw, tc.model)
		if tc.wantErr {
			if !errors.Is(err, ErrRatio) {
				t.Errorf("NewDecimator(%d, %d) err = %v, want ErrRatio", tc.hw, tc.model, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewDecimator(%d, %d): %v", tc.hw, tc.model, err)
		}
		if d.Ratio() != tc.ratio {
			t.Errorf("ratio = %d, want %d", d.Ratio(), tc.ratio)
		}
	}
}

func TestDecimatePicksEveryRthSample(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for r := 1; r <= 8; r++ {
		d := &Decimator{ratio: r}
		for _, blocks := range []int{0, 1, 7, 1024} {
			in := make([]int16, blocks*r)
			for i := range in {
				in[i] = int16(rng.Intn(65536) - 32768)
			}

			out, err := d.Decimate(in)
			if err != nil {
				t.Fatalf("r=%d len=%d: %v", r, len(in), err)
			}
			if len(out) != len(in)/r {
				t.Fatalf("r=%d: len(out) = %d, want %d", r, len(out), len(in)/r)
			}
			for i := range out {
				if out[i] != in[i*r] {
					t.Fatalf("r=%d: out[%d] = %d, want %d", r, i, out[i], in[i*r])
				}
			}
		}
	}
}

func TestDecimateRejectsPartialBlock(t *testing.T) {
	d := &Decimator{ratio: 3}
	if _, err := d.Decimate(make([]int16, 10)); !errors.Is(err, ErrBlockLength) {
		t.Errorf("err = %v, want ErrBlockLength", err)
	}
}

func TestDecimateDoesNotFilter(t *testing.T) {
	// Alternating full-scale signal at Nyquist of the hardware rate survives
	// as a constant; a low-pass stage would have removed it.
	d := &Decimator{ratio: 2}
	in := []int16{32000, -32000, 32000, -32000, 32000, -32000}
	out, err := d.Decimate(in)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range out {
		if s != 32000 {
			t.Errorf("out[%d] = %d, want 32000", i, s)
		}
	}
}
