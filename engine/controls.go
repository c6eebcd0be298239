package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"go-piano/input"
	"go-piano/keymap"
	"go-piano/performance"
	"go-piano/recorder"
	"go-piano/sound"
)

// SetSustain sets the sustain pedal from the keyboard or UI
func (e *Engine) SetSustain(on bool) error {
	ts := e.clock()
	return e.enqueue(func() { e.setSustain(on, input.Keyboard, ts) })
}

// ToggleSustain flips the sustain pedal
func (e *Engine) ToggleSustain() error {
	ts := e.clock()
	return e.enqueue(func() { e.setSustain(!e.state.SustainOn(), input.Keyboard, ts) })
}

// SetSustainHold sets the timed hold for pedal-sustained notes (0 = until
// the pedal lifts)
func (e *Engine) SetSustainHold(d time.Duration) error {
	return e.enqueue(func() {
		e.state.SetSustainHold(d)
		e.savePreferences()
	})
}

// MaxStepHold caps StepSustainHold
const MaxStepHold = 2400 * time.Millisecond

// StepSustainHold moves the timed hold by delta, between 0 (until the pedal
// lifts) and MaxStepHold
func (e *Engine) StepSustainHold(delta time.Duration) error {
	return e.enqueue(func() {
		e.state.SetSustainHold(min(MaxStepHold, e.state.SustainHold()+delta))
		e.savePreferences()
	})
}

// SetTranspose sets the transpose in semitones, clamped to [-24, 24]
func (e *Engine) SetTranspose(semitones int) error {
	return e.enqueue(func() {
		e.state.SetTranspose(semitones)
		e.savePreferences()
	})
}

// StepTranspose moves the transpose by delta semitones
func (e *Engine) StepTranspose(delta int) error {
	return e.enqueue(func() {
		e.state.SetTranspose(e.state.Transpose() + delta)
		e.savePreferences()
	})
}

// SetVelocityScale sets the velocity multiplier, clamped into (0, 2]
func (e *Engine) SetVelocityScale(scale float64) error {
	return e.enqueue(func() {
		e.state.SetVelocityScale(scale)
		e.savePreferences()
	})
}

// StepVelocityScale changes the velocity multiplier by delta
func (e *Engine) StepVelocityScale(delta float64) error {
	return e.enqueue(func() {
		e.state.SetVelocityScale(e.state.VelocityScale() + delta)
		e.savePreferences()
	})
}

// SetVelocity sets the keyboard and pointer press velocity (1-127)
func (e *Engine) SetVelocity(v int) error {
	return e.enqueue(func() {
		e.norm.SetVelocity(v)
		e.savePreferences()
	})
}

// StepVelocity changes the keyboard and pointer press velocity by delta
func (e *Engine) StepVelocity(delta int) error {
	return e.enqueue(func() {
		e.norm.SetVelocity(e.norm.Velocity + delta)
		e.savePreferences()
	})
}

// SetVolume sets master volume (0-1)
func (e *Engine) SetVolume(v float64) error {
	return e.enqueue(func() {
		e.sink.SetVolume(v)
		e.savePreferences()
	})
}

// StepVolume changes master volume by delta
func (e *Engine) StepVolume(delta float64) error {
	return e.enqueue(func() {
		e.sink.SetVolume(e.sink.Volume() + delta)
		e.savePreferences()
	})
}

// SelectInstrument switches to the catalogue program nearest to bank and
// preset. Sounding notes keep their instrument.
func (e *Engine) SelectInstrument(bank, preset int) error {
	return e.enqueue(func() {
		e.sink.SelectInstrument(bank, preset)
		e.savePreferences()
	})
}

// StepInstrument moves through the catalogue by delta programs
func (e *Engine) StepInstrument(delta int) error {
	return e.enqueue(func() {
		next := e.sink.Programs().Next(e.sink.Program(), delta)
		e.sink.SelectInstrument(next.Bank, next.Preset)
		e.savePreferences()
	})
}

// PerformanceChange carries control updates for ApplyPerformance. Nil fields
// are left alone.
type PerformanceChange struct {
	Velocity      *int
	VelocityScale *float64
	Transpose     *int
	Sustain       *bool
	SustainHold   *time.Duration
	Volume        *float64
	Program       *sound.Program
}

// ApplyPerformance applies every field of c in one step after the events
// queued before it, saves preferences once and returns the resulting status.
func (e *Engine) ApplyPerformance(ctx context.Context, c PerformanceChange) (Status, error) {
	ts := e.clock()
	err := e.do(ctx, func() {
		if c.Velocity != nil {
			e.norm.SetVelocity(*c.Velocity)
		}
		if c.VelocityScale != nil {
			e.state.SetVelocityScale(*c.VelocityScale)
		}
		if c.Transpose != nil {
			e.state.SetTranspose(*c.Transpose)
		}
		if c.SustainHold != nil {
			e.state.SetSustainHold(*c.SustainHold)
		}
		if c.Sustain != nil {
			e.setSustain(*c.Sustain, input.Keyboard, ts)
		}
		if c.Volume != nil {
			e.sink.SetVolume(*c.Volume)
		}
		if c.Program != nil {
			e.sink.SelectInstrument(c.Program.Bank, c.Program.Preset)
		}
		e.savePreferences()
	})
	if err != nil {
		return Status{}, err
	}
	return e.Status(), nil
}

// AllNotesOff silences everything and forgets held keys
func (e *Engine) AllNotesOff() error {
	ts := e.clock()
	return e.enqueue(func() { e.allNotesOff(ts) })
}

func (e *Engine) allNotesOff(ts int64) {
	n := e.state.AllNotesOff(input.Keyboard, ts)
	e.sink.AllNotesOff()
	clear(e.keyHeld)
	e.pointerSlot, e.pointerPitch = -1, 0
	e.log.Debug("all notes off", zap.Int("released", n))
}

// SwitchLayout applies every event queued before it, releases all notes and
// then switches. An open keymap edit for the old layout is discarded.
func (e *Engine) SwitchLayout(ctx context.Context, l keymap.Layout) error {
	return e.do(ctx, func() { e.switchLayout(l) })
}

// NextLayout cycles to the following layout
func (e *Engine) NextLayout(ctx context.Context) error {
	return e.do(ctx, func() { e.switchLayout(e.layout.Next()) })
}

func (e *Engine) switchLayout(l keymap.Layout) {
	if l == e.layout {
		return
	}
	e.allNotesOff(e.clock())
	e.layout = l
	e.keys.SetLayout(l)
	e.log.Info("layout switched", zap.Stringer("layout", l))
	e.savePreferences()
}

// Arm starts a new take
func (e *Engine) Arm() error {
	ts := e.clock()
	return e.enqueue(func() {
		if e.rec.Arm(ts) {
			e.log.Info("recording armed")
		}
	})
}

// StopRecording applies every event queued before it, then ends the take.
// Events still queued when it was called are captured. A ctx already done
// leaves the take armed; once the stop is queued it is waited for regardless
// of ctx, so a finished take is never dropped.
func (e *Engine) StopRecording(ctx context.Context) (*recorder.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		buf *recorder.Buffer
		err error
	)
	if derr := e.do(context.WithoutCancel(ctx), func() {
		buf, err = e.rec.Stop(e.clock())
	}); derr != nil {
		return nil, derr
	}
	if err != nil {
		return nil, err
	}
	e.log.Info("recording stopped",
		zap.Stringer("take", buf.ID),
		zap.Int("events", buf.Len()),
		zap.Duration("length", time.Duration(buf.Duration)*time.Microsecond))
	return buf, nil
}

// Export writes buf as a standard MIDI file. It runs on the caller's
// goroutine, never on the consumer.
func (e *Engine) Export(buf *recorder.Buffer, w io.Writer) error {
	return e.exporter.Write(buf, w)
}

// ExportFile writes buf to path
func (e *Engine) ExportFile(buf *recorder.Buffer, path string) error {
	if err := e.exporter.WriteFile(buf, path); err != nil {
		return err
	}
	e.log.Info("take exported", zap.Stringer("take", buf.ID), zap.String("path", path))
	return nil
}

// CommitKeymap persists the open edit session through the settings
// collaborator off the consumer goroutine. The saved table is installed on
// the consumer, so events queued before the install still resolve through
// the old table.
func (e *Engine) CommitKeymap(ctx context.Context) error {
	if e.settings == nil {
		return fmt.Errorf("commit keymap: no settings store")
	}
	res := make(chan error, 1)
	go func() {
		saved, err := e.keys.Save(e.settings)
		if err != nil {
			e.log.Warn("keymap commit failed", zap.Error(err))
			res <- err
			return
		}
		install := func() {
			e.keys.Install(saved)
			e.log.Debug("keymap committed", zap.Stringer("layout", saved.Layout), zap.Int("bindings", len(saved.Table)))
		}
		if err := e.do(context.Background(), install); errors.Is(err, ErrClosed) {
			install()
		}
		res <- nil
	}()
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// preferences snapshots the live values; consumer goroutine only
func (e *Engine) preferences() Preferences {
	return Preferences{
		Layout:      e.layout,
		Performance: e.performanceDefaults(),
		Velocity:    e.norm.Velocity,
		Volume:      e.sink.Volume(),
		Program:     e.sink.Program(),
	}
}

func (e *Engine) performanceDefaults() performance.Defaults {
	return performance.Defaults{
		Transpose:     e.state.Transpose(),
		VelocityScale: e.state.VelocityScale(),
		SustainOn:     e.sustainDefault,
		SustainHold:   e.state.SustainHold(),
	}
}

func (e *Engine) savePreferences() {
	if saver, ok := e.settings.(PreferenceSaver); ok {
		saver.SavePreferences(e.preferences())
	}
}
