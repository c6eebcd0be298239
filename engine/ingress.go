package engine

import (
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"go-piano/debug"
	"go-piano/input"
)

// KeyDown feeds a key press. Strokes are normalized ("A" -> "shift+a").
// A press of a key that is already down is an auto-repeat and is ignored.
func (e *Engine) KeyDown(stroke string) error {
	ts := e.clock()
	return e.enqueue(func() { e.keyDown(stroke, ts) })
}

// KeyUp feeds a key release
func (e *Engine) KeyUp(stroke string) error {
	ts := e.clock()
	return e.enqueue(func() { e.keyUp(stroke, ts) })
}

// PointerDown presses the slot-th key of the layout (0 = lowest)
func (e *Engine) PointerDown(slot int) error {
	ts := e.clock()
	return e.enqueue(func() { e.pointerDown(slot, ts) })
}

// PointerMove drags a pressed pointer onto slot. A negative slot is off the
// keyboard and releases the key.
func (e *Engine) PointerMove(slot int) error {
	ts := e.clock()
	return e.enqueue(func() { e.pointerMove(slot, ts) })
}

// PointerUp releases the pointer
func (e *Engine) PointerUp() error {
	ts := e.clock()
	return e.enqueue(func() { e.pointerRelease(ts) })
}

// OnMidiMessage is the MIDI transport ingress. data is copied, so drivers may
// reuse their buffer.
func (e *Engine) OnMidiMessage(data []byte) error {
	ts := e.clock()
	msg := slices.Clone(data)
	return e.enqueue(func() { e.midiMessage(msg, ts) })
}

func (e *Engine) keyDown(stroke string, ts int64) {
	p, ok := e.norm.Key(stroke, true, ts)
	if !ok {
		return
	}
	if _, down := e.keyHeld[p.KeyID]; down {
		return
	}
	base, ok := e.keys.Resolve(p.KeyID, e.layout)
	if !ok {
		debug.Log("engine", "key %s unbound on %s-key layout", p.KeyID, e.layout)
		return
	}
	e.keyHeld[p.KeyID] = base
	e.apply(p.Resolve(base))
}

func (e *Engine) keyUp(stroke string, ts int64) {
	p, ok := e.norm.Key(stroke, false, ts)
	if !ok {
		return
	}
	base, down := e.keyHeld[p.KeyID]
	if !down {
		return
	}
	delete(e.keyHeld, p.KeyID)
	e.apply(p.Resolve(base))
}

func (e *Engine) pointerDown(slot int, ts int64) {
	e.pointerRelease(ts)
	p, ok := e.norm.Pointer(slot, true, ts)
	if !ok {
		return
	}
	pitch, ok := e.keys.ResolveSlot(p.Slot, e.layout)
	if !ok {
		return
	}
	e.pointerSlot, e.pointerPitch = slot, pitch
	e.apply(p.Resolve(pitch))
}

func (e *Engine) pointerMove(slot int, ts int64) {
	if e.pointerSlot < 0 || slot == e.pointerSlot {
		return
	}
	e.pointerDown(slot, ts)
}

func (e *Engine) pointerRelease(ts int64) {
	if e.pointerSlot < 0 {
		return
	}
	p, _ := e.norm.Pointer(e.pointerSlot, false, ts)
	pitch := e.pointerPitch
	e.pointerSlot, e.pointerPitch = -1, 0
	e.apply(p.Resolve(pitch))
}

func (e *Engine) midiMessage(data []byte, ts int64) {
	msg, err := e.norm.MIDI(data, ts)
	switch {
	case errors.Is(err, input.ErrUnsupported):
		debug.LogEvery(100, "midi", "ignored %v", err)
		return
	case err != nil:
		e.log.Warn("dropped midi message", zap.Binary("data", data), zap.Error(err))
		return
	}
	if msg.IsPedal() {
		e.setSustain(msg.Pedal == input.PedalDown, input.Midi, ts)
		return
	}
	e.apply(msg.Note)
}

func (e *Engine) apply(ev input.NoteEvent) {
	debug.LogEvery(50, "engine", "%s", ev)
	e.state.Apply(ev)
}

func (e *Engine) setSustain(on bool, src input.Source, ts int64) {
	if e.state.SetSustain(on, src, ts) {
		debug.Log("engine", "sustain %v (%s)", on, src)
	}
}

// scheduleHold keeps one timer armed for the earliest timed-sustain
// deadline. Expiry is delivered through the queue like any other event.
func (e *Engine) scheduleHold() {
	deadline, ok := e.state.NextDeadline()
	if !ok {
		if e.holdTimer != nil {
			e.holdTimer.Stop()
			e.holdTimer = nil
			e.holdAt = 0
		}
		return
	}
	if e.holdTimer != nil && e.holdAt == deadline {
		return
	}
	if e.holdTimer != nil {
		e.holdTimer.Stop()
	}
	wait := time.Duration(max(0, deadline-e.clock())) * time.Microsecond
	e.holdAt = deadline
	e.holdTimer = time.AfterFunc(wait, func() {
		_ = e.enqueue(func() {
			e.holdTimer, e.holdAt = nil, 0
			e.state.Expire(e.clock())
		})
	})
}
