package notify

import (
	"context"
	"fmt"
	log "log/slog"
	"math"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type DuckConfig struct {
	// Factor scales other streams' volume while ducked.
	Factor float64
	// Floor is the lowest percentage a ducked stream is taken to.
	Floor int
	Fade  time.Duration
	// Keep lists application names that are never ducked.
	Keep []string
}

type sinkInput struct {
	id     int
	volume int
	app    string
}

type fade struct {
	id       int
	from, to int
}

type runFunc func(ctx context.Context, args ...string) ([]byte, error)

func runPactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Ducker lowers every other PulseAudio playback stream while a command is
// being listened for, and restores them afterwards. Requests are applied on
// its own goroutine; only the latest one pending is kept.
type Ducker struct {
	cfg DuckConfig
	run runFunc

	want   chan bool
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the loop goroutine
	saved  map[int]int
	ducked bool
}

func NewDucker(cfg DuckConfig) *Ducker {
	return newDucker(cfg, runPactl)
}

func newDucker(cfg DuckConfig, run runFunc) *Ducker {
	cfg.Floor = min(max(cfg.Floor, 0), maxVolume)
	if cfg.Factor <= 0 || cfg.Factor > 1 {
		cfg.Factor = 0.3
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Ducker{
		cfg:    cfg,
		run:    run,
		want:   make(chan bool, 1),
		cancel: cancel,
		done:   make(chan struct{}),
		saved:  make(map[int]int),
	}
	go d.loop(ctx)
	return d
}

func (d *Ducker) Duck()    { d.request(true) }
func (d *Ducker) Restore() { d.request(false) }

func (d *Ducker) request(v bool) {
	for {
		select {
		case d.want <- v:
			return
		default:
		}
		select {
		case <-d.want:
		default:
		}
	}
}

// Close stops the worker and puts back any volumes it lowered.
func (d *Ducker) Close() error {
	d.cancel()
	<-d.done

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return d.restore(ctx, 0)
}

func (d *Ducker) loop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-d.want:
			var err error
			if v {
				err = d.duck(ctx)
			} else {
				err = d.restore(ctx, d.cfg.Fade)
			}
			if err != nil && ctx.Err() == nil {
				log.Warn("Volume ducking failed", "duck", v, "err", err)
			}
		}
	}
}

func (d *Ducker) duck(ctx context.Context) error {
	if d.ducked {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.saved = make(map[int]int)
	var fades []fade
	for _, in := range inputs {
		if slices.Contains(d.cfg.Keep, in.app) {
			continue
		}
		to := int(math.Round(float64(in.volume) * d.cfg.Factor))
		to = min(max(to, d.cfg.Floor), maxVolume)
		d.saved[in.id] = in.volume
		fades = append(fades, fade{id: in.id, from: in.volume, to: to})
	}

	d.ducked = true
	return d.apply(ctx, fades, d.cfg.Fade)
}

func (d *Ducker) restore(ctx context.Context, over time.Duration) error {
	if !d.ducked {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, in := range inputs {
		// streams that appeared after ducking are left alone
		if orig, ok := d.saved[in.id]; ok {
			fades = append(fades, fade{id: in.id, from: in.volume, to: orig})
		}
	}

	d.saved = make(map[int]int)
	d.ducked = false
	return d.apply(ctx, fades, over)
}

// apply steps every stream linearly from its current to its target volume.
func (d *Ducker) apply(ctx context.Context, fades []fade, over time.Duration) error {
	if len(fades) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond
	steps := max(int(over/minStep), 1)
	if over <= 0 {
		steps = 0
	}

	for i := 0; i <= steps; i++ {
		frac := 1.0
		if steps > 0 {
			frac = float64(i) / float64(steps)
		}
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.setVolume(ctx, f.id, v); err != nil {
				return err
			}
		}
		if i < steps {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(over / time.Duration(steps)):
			}
		}
	}
	return nil
}

func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.run(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	percent = min(max(percent, 0), maxVolume)
	if _, err := d.run(ctx, "set-sink-input-volume", strconv.Itoa(id), strconv.Itoa(percent)+"%"); err != nil {
		return fmt.Errorf("set volume of sink input %d: %w", id, err)
	}
	return nil
}

// parseSinkInputs reads the first volume and the application name of every
// block in `pactl list sink-inputs` output.
func parseSinkInputs(out string) []sinkInput {
	blocks := strings.Split(out, "Sink Input #")
	var res []sinkInput

	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		in := sinkInput{id: id, volume: -1}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Volume:") && in.volume < 0:
				if m := percentRe.FindStringSubmatch(line); m != nil {
					in.volume, _ = strconv.Atoi(m[1])
				}
			case strings.HasPrefix(line, "application.name =") && in.app == "":
				_, rest, _ := strings.Cut(line, "=")
				in.app = strings.Trim(strings.TrimSpace(rest), `"`)
			}
		}
		if in.volume < 0 {
			continue
		}
		res = append(res, in)
	}
	return res
}
