// Package audio mixes the song, the crowd layers and one-shot samples into a
// single beep stream and reports how far that stream has played. The engine
// is the audio clock of a live session.
package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"

	"github.com/okian/ovation/internal/domain/beatclock"
	"github.com/okian/ovation/internal/domain/mixer"
	"github.com/okian/ovation/internal/session"
	"github.com/okian/ovation/pkg/logger"
)

// Gains below this are played as silence.
const silentGain = 1e-4

type layer struct {
	vol  *effects.Volume
	gain float64
}

// Engine is a beep.Streamer; hand it to the speaker once it is set up.
type Engine struct {
	format beep.Format
	logger logger.Logger

	mu      sync.Mutex
	mix     beep.Mixer
	layers  map[string]*layer
	samples map[string]*beep.Buffer
	paused  bool

	// played counts samples streamed while not paused.
	played atomic.Int64
}

var (
	_ beep.Streamer         = (*Engine)(nil)
	_ beatclock.AudioSource = (*Engine)(nil)
	_ mixer.LayerPlayer     = (*Engine)(nil)
	_ session.SampleTrigger = (*Engine)(nil)
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an engine producing audio in format.
func New(format beep.Format, opts ...Option) *Engine {
	e := &Engine{
		format:  format,
		logger:  logger.GetOrNop(),
		layers:  make(map[string]*layer),
		samples: make(map[string]*beep.Buffer),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("audio")
	return e
}

// Format returns the output format.
func (e *Engine) Format() beep.Format { return e.format }

// resample converts s from its own rate to the engine's.
func (e *Engine) resample(s beep.Streamer, f beep.Format) beep.Streamer {
	if f.SampleRate == e.format.SampleRate {
		return s
	}
	return beep.Resample(4, f.SampleRate, e.format.SampleRate, s)
}

// SetSong starts the song. Its samples drive PlaybackPosition together with
// everything else the engine plays.
func (e *Engine) SetSong(s beep.Streamer, f beep.Format) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mix.Add(e.resample(s, f))
}

// AddLayer loops s forever as crowd layer id. Layers start silent until
// PlayLayer raises them.
func (e *Engine) AddLayer(id string, s beep.StreamSeeker, f beep.Format) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.layers[id]; ok {
		return fmt.Errorf("layer %q: %w", id, ErrDuplicate)
	}
	vol := &effects.Volume{
		Streamer: e.resample(beep.Loop(-1, s), f),
		Base:     2,
		Silent:   true,
	}
	e.layers[id] = &layer{vol: vol}
	e.mix.Add(vol)
	return nil
}

// AddSample buffers s so Trigger can play it any number of times.
func (e *Engine) AddSample(id string, s beep.Streamer, f beep.Format) {
	buf := beep.NewBuffer(e.format)
	buf.Append(e.resample(s, f))
	e.mu.Lock()
	e.samples[id] = buf
	e.mu.Unlock()
}

// PlayLayer sets the linear gain of a layer. Unknown layers are ignored.
func (e *Engine) PlayLayer(id string, gain float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.layers[id]
	if !ok || l.gain == gain {
		return
	}
	l.gain = gain
	if gain < silentGain {
		l.vol.Silent = true
		return
	}
	l.vol.Silent = false
	l.vol.Volume = math.Log2(gain)
}

// Gain returns the last gain set on a layer.
func (e *Engine) Gain(id string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.layers[id]; ok {
		return l.gain
	}
	return 0
}

// Trigger plays a buffered sample once, lead from now. Unknown samples are
// dropped.
func (e *Engine) Trigger(sample string, lead time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf, ok := e.samples[sample]
	if !ok {
		e.logger.Debug(context.Background(), "unknown sample", logger.String("sample", sample))
		return
	}
	one := buf.Streamer(0, buf.Len())
	if n := e.format.SampleRate.N(lead); n > 0 {
		e.mix.Add(beep.Seq(beep.Silence(n), one))
		return
	}
	e.mix.Add(one)
}

// SetPaused halts the engine. A paused engine streams silence and its
// position does not move.
func (e *Engine) SetPaused(p bool) {
	e.mu.Lock()
	e.paused = p
	e.mu.Unlock()
}

// PlaybackPosition implements beatclock.AudioSource.
func (e *Engine) PlaybackPosition() time.Duration {
	return e.format.SampleRate.D(int(e.played.Load()))
}

// Stream implements beep.Streamer. It never drains.
func (e *Engine) Stream(samples [][2]float64) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}
	n, _ := e.mix.Stream(samples)
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	e.played.Add(int64(len(samples)))
	return len(samples), true
}

// Err implements beep.Streamer.
func (e *Engine) Err() error { return nil }
