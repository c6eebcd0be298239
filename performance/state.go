package performance

import (
	"maps"
	"math"
	"slices"
	"time"

	"go-piano/input"
)

const (
	MaxTranspose     = 24
	MinVelocityScale = 0.05
	MaxVelocityScale = 2.0
	DefaultScale     = 1.0
)

// Defaults is the performance configuration loaded at start-up
type Defaults struct {
	Transpose     int
	VelocityScale float64
	SustainOn     bool
	// SustainHold bounds how long a pedal-sustained note keeps sounding.
	// Zero sustains until the pedal lifts.
	SustainHold time.Duration
}

// HoldFromPercent converts a 0-100 sustain amount into pedal state and hold
// time: 0 is off, 100 holds until the pedal lifts, values between hold for
// 80ms to 2.4s.
func HoldFromPercent(percent int) (on bool, hold time.Duration) {
	p := min(100, max(0, percent))
	switch {
	case p == 0:
		return false, 0
	case p == 100:
		return true, 0
	}
	ms := 80 + float64(p)/99*2320
	return true, time.Duration(ms) * time.Millisecond
}

// holder is one reason a pitch is held: a source pressing a base pitch.
// Keying by base pitch keeps releases correct across transpose changes.
type holder struct {
	source input.Source
	base   int
}

// sustain is a released pitch kept sounding by the pedal. source is the input
// that released it, so a timed expiry is reported against that input.
type sustain struct {
	deadline int64 // 0 = until pedal up
	source   input.Source
}

// State is the authoritative model of what is sounding. It is not safe for
// concurrent use; the engine's consumer goroutine owns it.
type State struct {
	out Output

	transpose     int
	velocityScale float64
	sustainOn     bool
	sustainHold   int64 // microseconds, 0 = until pedal up

	holders   map[holder]int // -> sounding pitch
	held      map[int]int    // sounding pitch -> holder count
	sustained map[int]sustain
	velocity  map[int]int    // sounding pitch -> scaled strike velocity

	strikes []int64 // NoteOn timestamps, oldest first
}

// New creates a state that emits sounding events to out
func New(out Output, d Defaults) *State {
	if out == nil {
		out = Discard{}
	}
	s := &State{
		out:       out,
		holders:   make(map[holder]int),
		held:      make(map[int]int),
		sustained: make(map[int]sustain),
		velocity:  make(map[int]int),
	}
	s.SetTranspose(d.Transpose)
	s.velocityScale = DefaultScale
	if d.VelocityScale != 0 {
		s.SetVelocityScale(d.VelocityScale)
	}
	s.sustainOn = d.SustainOn
	s.SetSustainHold(d.SustainHold)
	return s
}

// Apply runs one note event through the state machine and returns the
// resulting snapshot. Unknown releases and repeated presses by the same holder
// leave the state unchanged.
func (s *State) Apply(ev input.NoteEvent) Snapshot {
	switch ev.Kind {
	case input.NoteOn:
		s.press(ev)
	case input.NoteOff:
		s.release(ev)
	}
	return s.Snapshot(ev.Timestamp)
}

func (s *State) press(ev input.NoteEvent) {
	h := holder{ev.Source, ev.Pitch}
	if _, dup := s.holders[h]; dup {
		return
	}
	pitch := input.Clamp(ev.Pitch + s.transpose)
	s.holders[h] = pitch
	s.strike(ev.Timestamp)

	s.held[pitch]++
	if s.held[pitch] > 1 {
		return
	}
	// Re-strike cancels a pending sustain release
	delete(s.sustained, pitch)

	vel := s.scale(ev.Velocity)
	s.velocity[pitch] = vel
	s.out.NoteOn(input.NoteEvent{
		Pitch:     pitch,
		Velocity:  vel,
		Kind:      input.NoteOn,
		Source:    ev.Source,
		Timestamp: ev.Timestamp,
	})
}

func (s *State) release(ev input.NoteEvent) {
	h := holder{ev.Source, ev.Pitch}
	pitch, ok := s.holders[h]
	if !ok {
		return
	}
	delete(s.holders, h)

	s.held[pitch]--
	if s.held[pitch] > 0 {
		return
	}
	delete(s.held, pitch)

	if s.sustainOn {
		var deadline int64
		if s.sustainHold > 0 {
			deadline = ev.Timestamp + s.sustainHold
		}
		s.sustained[pitch] = sustain{deadline: deadline, source: ev.Source}
		return
	}
	s.silence(pitch, ev.Source, ev.Timestamp)
}

func (s *State) silence(pitch int, src input.Source, ts int64) {
	delete(s.velocity, pitch)
	s.out.NoteOff(input.NoteEvent{
		Pitch:     pitch,
		Kind:      input.NoteOff,
		Source:    src,
		Timestamp: ts,
	})
}

// SetSustain sets the pedal. Lifting it silences every sustained pitch, in
// ascending pitch order. It reports whether the pedal state changed.
func (s *State) SetSustain(on bool, src input.Source, ts int64) bool {
	if on == s.sustainOn {
		return false
	}
	s.sustainOn = on
	if !on {
		for _, pitch := range slices.Sorted(maps.Keys(s.sustained)) {
			delete(s.sustained, pitch)
			s.silence(pitch, src, ts)
		}
	}
	return true
}

// Expire silences sustained pitches whose hold deadline has passed. Each
// release is attributed to the input that let the key go.
func (s *State) Expire(ts int64) int {
	var n int
	for _, pitch := range slices.Sorted(maps.Keys(s.sustained)) {
		sus := s.sustained[pitch]
		if sus.deadline == 0 || sus.deadline > ts {
			continue
		}
		delete(s.sustained, pitch)
		s.silence(pitch, sus.source, ts)
		n++
	}
	return n
}

// NextDeadline returns the earliest pending hold deadline
func (s *State) NextDeadline() (int64, bool) {
	var next int64
	for _, sus := range s.sustained {
		if d := sus.deadline; d > 0 && (next == 0 || d < next) {
			next = d
		}
	}
	return next, next > 0
}

// AllNotesOff silences every held and sustained pitch and forgets all
// holders. The pedal position is kept.
func (s *State) AllNotesOff(src input.Source, ts int64) int {
	sounding := make([]int, 0, len(s.held)+len(s.sustained))
	sounding = slices.AppendSeq(sounding, maps.Keys(s.held))
	sounding = slices.AppendSeq(sounding, maps.Keys(s.sustained))
	slices.Sort(sounding)

	clear(s.holders)
	clear(s.held)
	clear(s.sustained)
	for _, pitch := range sounding {
		s.silence(pitch, src, ts)
	}
	return len(sounding)
}

// SetTranspose clamps t to [-24, 24] and returns the applied value. Sounding
// notes are not affected.
func (s *State) SetTranspose(t int) int {
	s.transpose = min(MaxTranspose, max(-MaxTranspose, t))
	return s.transpose
}

// SetVelocityScale clamps v into (0, 2] and returns the applied value
func (s *State) SetVelocityScale(v float64) float64 {
	if math.IsNaN(v) {
		return s.velocityScale
	}
	s.velocityScale = min(MaxVelocityScale, max(MinVelocityScale, v))
	return s.velocityScale
}

// SetSustainHold sets the timed hold (0 = until pedal up). Already sustained
// notes keep their deadline.
func (s *State) SetSustainHold(d time.Duration) {
	s.sustainHold = max(0, d.Microseconds())
}

func (s *State) Transpose() int         { return s.transpose }
func (s *State) VelocityScale() float64 { return s.velocityScale }
func (s *State) SustainOn() bool        { return s.sustainOn }

func (s *State) SustainHold() time.Duration {
	return time.Duration(s.sustainHold) * time.Microsecond
}

// Velocity returns the strike velocity of a sounding pitch
func (s *State) Velocity(pitch int) (int, bool) {
	v, ok := s.velocity[pitch]
	return v, ok
}

// scale applies the velocity scale, clamped to 1..127 so a strike is never
// sent as a zero-velocity note-on.
func (s *State) scale(v int) int {
	scaled := int(math.Round(float64(v) * s.velocityScale))
	return min(input.MaxValue, max(1, scaled))
}

func (s *State) strike(ts int64) {
	s.strikes = append(s.strikes, ts)
	s.strikes = trimStrikes(s.strikes, ts)
}
