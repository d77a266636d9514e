package audioconv

import (
	"errors"
	"fmt"
)

var (
	ErrRatio       = errors.New("hardware rate is not an integer multiple of model rate")
	ErrBlockLength = errors.New("block length is not a multiple of the decimation ratio")
)

// Decimator converts hardware-rate blocks to the model rate by keeping every
// r-th sample. There is no low-pass stage: content above modelRate/2 aliases.
type Decimator struct {
	ratio int
}

func NewDecimator(hardwareRate, modelRate int) (*Decimator, error) {
	if hardwareRate <= 0 || modelRate <= 0 || hardwareRate%modelRate != 0 {
		return nil, fmt.Errorf("%w: %d / %d", ErrRatio, hardwareRate, modelRate)
	}
	return &Decimator{ratio: hardwareRate / modelRate}, nil
}

func (d *Decimator) Ratio() int { return d.ratio }

// Decimate returns out[i] = in[i*r].
func (d *Decimator) Decimate(in []int16) ([]int16, error) {
	if len(in)%d.ratio != 0 {
		return nil, fmt.Errorf("%w: len %d, ratio %d", ErrBlockLength, len(in), d.ratio)
	}
	out := make([]int16, len(in)/d.ratio)
	for i := range out {
		out[i] = in[i*d.ratio]
	}
	return out, nil
}
