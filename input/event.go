package input

import (
	"fmt"
	"time"
)

// Kind distinguishes note starts from note ends
type Kind uint8

const (
	NoteOn Kind = iota
	NoteOff
)

func (k Kind) String() string {
	if k == NoteOff {
		return "off"
	}
	return "on"
}

// Source identifies where an event came from
type Source uint8

const (
	Keyboard Source = iota
	Mouse
	Midi
)

func (s Source) String() string {
	switch s {
	case Keyboard:
		return "keyboard"
	case Mouse:
		return "mouse"
	case Midi:
		return "midi"
	}
	return "unknown"
}

// Pitch and velocity bounds of the MIDI data range
const (
	MinValue = 0
	MaxValue = 127
)

// NoteEvent is the canonical, source-agnostic note event. Values are
// immutable once built; pass by value.
type NoteEvent struct {
	Pitch     int
	Velocity  int
	Kind      Kind
	Source    Source
	Timestamp int64 // monotonic microseconds, see Now
}

func (e NoteEvent) String() string {
	return fmt.Sprintf("%s %s pitch=%d vel=%d t=%dus", e.Source, e.Kind, e.Pitch, e.Velocity, e.Timestamp)
}

// Pending is a keyboard or pointer press that still lacks a pitch. The keymap
// resolves KeyID (keyboard) or Slot (pointer) into a pitch.
type Pending struct {
	Kind      Kind
	Source    Source
	KeyID     string
	Slot      int
	Velocity  int
	Timestamp int64
}

// Resolve completes the pending event with the resolved base pitch
func (p Pending) Resolve(pitch int) NoteEvent {
	vel := p.Velocity
	if p.Kind == NoteOff {
		vel = 0
	}
	return NoteEvent{
		Pitch:     Clamp(pitch),
		Velocity:  vel,
		Kind:      p.Kind,
		Source:    p.Source,
		Timestamp: p.Timestamp,
	}
}

// Clamp limits v to the MIDI data range. Values are clamped, never wrapped.
func Clamp(v int) int {
	return min(MaxValue, max(MinValue, v))
}

// InRange reports whether v is a valid MIDI data value
func InRange(v int) bool {
	return v >= MinValue && v <= MaxValue
}

var epoch = time.Now()

// Now returns monotonic microseconds since process start
func Now() int64 {
	return time.Since(epoch).Microseconds()
}
