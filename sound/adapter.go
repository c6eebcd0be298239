package sound

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"go-piano/debug"
	"go-piano/input"
)

// Adapter forwards sounding events to an Engine. It guarantees at most one
// outstanding voice per pitch and degrades to silence when the engine fails.
// Note calls must come from one goroutine; Degraded and Program may be read
// from anywhere.
type Adapter struct {
	engine   Engine
	logger   *zap.Logger
	sounding map[int]bool

	degraded  atomic.Bool
	onDegrade func(error)

	mu       sync.Mutex
	program  Program
	volume   float64
	programs Catalogue
}

// Option configures an Adapter
type Option func(*Adapter)

// WithLogger sets the adapter's logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// WithDegradeHandler is called once, from the calling goroutine, when the
// engine becomes unavailable.
func WithDegradeHandler(fn func(error)) Option {
	return func(a *Adapter) {
		a.onDegrade = fn
	}
}

// NewAdapter wraps engine. A nil engine starts in silent mode.
func NewAdapter(engine Engine, opts ...Option) *Adapter {
	a := &Adapter{
		engine:   engine,
		sounding: make(map[int]bool),
		volume:   1,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = debug.L().Named("sound")
	}
	if a.engine == nil {
		a.engine = Silent{}
		a.degraded.Store(true)
	}
	a.programs = a.engine.Programs()
	return a
}

// NoteOn starts a voice unless one is already sounding for the pitch
func (a *Adapter) NoteOn(ev input.NoteEvent) {
	a.VoiceOn(ev.Pitch, ev.Velocity)
}

// NoteOff stops the pitch's voice
func (a *Adapter) NoteOff(ev input.NoteEvent) {
	a.VoiceOff(ev.Pitch)
}

// VoiceOn starts a voice. It reports false when the pitch was already
// sounding and the call was suppressed.
func (a *Adapter) VoiceOn(pitch, velocity int) bool {
	if a.sounding[pitch] {
		debug.Log("sound", "voice %d already sounding", pitch)
		return false
	}
	a.sounding[pitch] = true
	a.call("note on", func() error { return a.engine.NoteOn(pitch, velocity) })
	return true
}

// VoiceOff stops a voice if one is sounding
func (a *Adapter) VoiceOff(pitch int) {
	if !a.sounding[pitch] {
		return
	}
	delete(a.sounding, pitch)
	a.call("note off", func() error { return a.engine.NoteOff(pitch) })
}

// AllNotesOff silences the engine and forgets every voice
func (a *Adapter) AllNotesOff() {
	clear(a.sounding)
	a.call("all notes off", a.engine.AllNotesOff)
}

// SelectInstrument snaps the request onto the catalogue and switches the
// engine. Sounding voices keep their timbre; no voice is stopped.
func (a *Adapter) SelectInstrument(bank, preset int) Program {
	a.mu.Lock()
	p := a.programs.Nearest(bank, preset)
	a.program = p
	a.mu.Unlock()

	a.call("select program", func() error { return a.engine.SelectProgram(p.Bank, p.Preset) })
	a.logger.Debug("instrument selected", zap.Int("bank", p.Bank), zap.Int("preset", p.Preset), zap.String("name", p.Name))
	return p
}

// SetVolume sets master volume, clamped to 0..1
func (a *Adapter) SetVolume(v float64) float64 {
	v = min(1, max(0, v))
	a.mu.Lock()
	a.volume = v
	a.mu.Unlock()
	a.call("set volume", func() error { return a.engine.SetVolume(v) })
	return v
}

// Program returns the selected program
func (a *Adapter) Program() Program {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.program
}

// Volume returns master volume
func (a *Adapter) Volume() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volume
}

// Programs returns the engine's catalogue
func (a *Adapter) Programs() Catalogue {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.programs
}

// Sounding returns the pitches with an outstanding voice
func (a *Adapter) Sounding() []int {
	return slices.Sorted(maps.Keys(a.sounding))
}

// Degraded reports whether output has fallen back to silence
func (a *Adapter) Degraded() bool {
	return a.degraded.Load()
}

// Close releases the engine
func (a *Adapter) Close() error {
	clear(a.sounding)
	return a.engine.Close()
}

// call runs one engine operation. Any ErrUnavailable switches to the silent
// engine for good; other errors are logged and dropped.
func (a *Adapter) call(op string, fn func() error) {
	err := fn()
	if err == nil {
		return
	}
	if !errors.Is(err, ErrUnavailable) {
		a.logger.Warn("sound engine call failed", zap.String("op", op), zap.Error(err))
		return
	}
	if a.degraded.Swap(true) {
		return
	}
	a.logger.Error("sound output degraded to silent mode", zap.String("op", op), zap.Error(err))
	failed := a.engine
	a.engine = Silent{}
	if cerr := failed.Close(); cerr != nil {
		a.logger.Debug("closing failed engine", zap.Error(cerr))
	}
	if a.onDegrade != nil {
		a.onDegrade(err)
	}
}
