package performance

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-piano/input"
)

type call struct {
	kind     input.Kind
	pitch    int
	velocity int
}

type recordingOutput struct {
	calls   []call
	sources []input.Source
}

func (r *recordingOutput) NoteOn(ev input.NoteEvent) {
	r.calls = append(r.calls, call{input.NoteOn, ev.Pitch, ev.Velocity})
	r.sources = append(r.sources, ev.Source)
}

func (r *recordingOutput) NoteOff(ev input.NoteEvent) {
	r.calls = append(r.calls, call{input.NoteOff, ev.Pitch, 0})
	r.sources = append(r.sources, ev.Source)
}

func (r *recordingOutput) count(kind input.Kind) int {
	n := 0
	for _, c := range r.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func on(pitch int, ts int64) input.NoteEvent {
	return input.NoteEvent{Pitch: pitch, Velocity: 100, Kind: input.NoteOn, Source: input.Keyboard, Timestamp: ts}
}

func off(pitch int, ts int64) input.NoteEvent {
	return input.NoteEvent{Pitch: pitch, Kind: input.NoteOff, Source: input.Keyboard, Timestamp: ts}
}

func TestDuplicateNoteOnIsIdempotent(t *testing.T) {
	out := &recordingOutput{}
	s := New(out, Defaults{})

	s.Apply(on(60, 0))
	snap := s.Apply(on(60, 10))
	assert.Equal(t, []int{60}, snap.Held)
	assert.Equal(t, 1, snap.Polyphony)
	assert.Equal(t, 1, out.count(input.NoteOn))

	snap = s.Apply(off(60, 20))
	assert.Empty(t, snap.Held)
	assert.Equal(t, 1, out.count(input.NoteOff))

	// release of a pitch nobody holds changes nothing
	s.Apply(off(60, 30))
	assert.Equal(t, 1, out.count(input.NoteOff))
}

func TestSustainOffReleasesEachSustainedPitchOnce(t *testing.T) {
	out := &recordingOutput{}
	s := New(out, Defaults{})
	s.SetSustain(true, input.Keyboard, 0)

	pitches := []int{60, 64, 67, 72}
	for i, p := range pitches {
		s.Apply(on(p, int64(i)))
	}
	for i, p := range pitches {
		snap := s.Apply(off(p, int64(10+i)))
		assert.True(t, snap.IsSustained(p))
	}
	assert.Equal(t, 0, out.count(input.NoteOff))

	snap := s.Snapshot(20)
	assert.Empty(t, snap.Held)
	assert.Equal(t, pitches, snap.Sustained)
	assert.Equal(t, len(pitches), snap.Polyphony)

	require.True(t, s.SetSustain(false, input.Keyboard, 30))
	assert.Equal(t, len(pitches), out.count(input.NoteOff))
	assert.False(t, s.SetSustain(false, input.Keyboard, 31))
	assert.Equal(t, len(pitches), out.count(input.NoteOff))

	snap = s.Snapshot(40)
	assert.Empty(t, snap.Sustained)
	assert.Equal(t, 0, snap.Polyphony)
}

func TestReStrikeMovesSustainedToHeld(t *testing.T) {
	out := &recordingOutput{}
	s := New(out, Defaults{SustainOn: true})

	s.Apply(on(60, 0))
	s.Apply(off(60, 10))
	snap := s.Apply(on(60, 20))
	assert.Equal(t, []int{60}, snap.Held)
	assert.Empty(t, snap.Sustained)
	assert.Equal(t, 1, snap.Polyphony)
	assert.Equal(t, 0, out.count(input.NoteOff))

	// pedal up no longer touches the re-struck pitch
	s.SetSustain(false, input.Keyboard, 30)
	assert.Equal(t, 0, out.count(input.NoteOff))
	snap = s.Apply(off(60, 40))
	assert.Empty(t, snap.Held)
	assert.Equal(t, 1, out.count(input.NoteOff))
}

func TestTransposeDoesNotMoveSoundingNotes(t *testing.T) {
	out := &recordingOutput{}
	s := New(out, Defaults{})

	s.Apply(on(60, 0))
	assert.Equal(t, 12, s.SetTranspose(12))
	snap := s.Snapshot(1)
	assert.Equal(t, []int{60}, snap.Held)

	// the held key releases the pitch it started
	s.Apply(off(60, 2))
	require.Len(t, out.calls, 2)
	assert.Equal(t, call{input.NoteOff, 60, 0}, out.calls[1])

	s.Apply(on(60, 3))
	assert.Equal(t, 72, out.calls[2].pitch)
}

func TestTransposeAndPitchClamps(t *testing.T) {
	s := New(nil, Defaults{Transpose: 40})
	assert.Equal(t, MaxTranspose, s.Transpose())
	assert.Equal(t, -MaxTranspose, s.SetTranspose(-99))

	out := &recordingOutput{}
	s = New(out, Defaults{Transpose: 24})
	s.Apply(on(120, 0))
	assert.Equal(t, 127, out.calls[0].pitch)

	s.SetTranspose(-24)
	s.Apply(input.NoteEvent{Pitch: 5, Velocity: 90, Kind: input.NoteOn, Source: input.Midi})
	assert.Equal(t, 0, out.calls[1].pitch)
}

func TestVelocityScaleClampsToMidiRange(t *testing.T) {
	out := &recordingOutput{}
	s := New(out, Defaults{VelocityScale: 2})
	s.Apply(on(60, 0))
	assert.Equal(t, 127, out.calls[0].velocity)

	assert.Equal(t, MinVelocityScale, s.SetVelocityScale(0))
	assert.Equal(t, MaxVelocityScale, s.SetVelocityScale(5))

	s.SetVelocityScale(0.5)
	s.Apply(on(62, 1))
	assert.Equal(t, 50, out.calls[1].velocity)

	s.SetVelocityScale(MinVelocityScale)
	s.Apply(input.NoteEvent{Pitch: 64, Velocity: 1, Kind: input.NoteOn, Source: input.Midi})
	assert.Equal(t, 1, out.calls[2].velocity, "a strike never becomes velocity 0")
}

func TestPitchHeldByTwoSources(t *testing.T) {
	out := &recordingOutput{}
	s := New(out, Defaults{})

	s.Apply(on(60, 0))
	s.Apply(input.NoteEvent{Pitch: 60, Velocity: 80, Kind: input.NoteOn, Source: input.Midi, Timestamp: 1})
	assert.Equal(t, 1, out.count(input.NoteOn))

	snap := s.Apply(off(60, 2))
	assert.Equal(t, []int{60}, snap.Held, "midi still holds it")
	snap = s.Apply(input.NoteEvent{Pitch: 60, Kind: input.NoteOff, Source: input.Midi, Timestamp: 3})
	assert.Empty(t, snap.Held)
	assert.Equal(t, 1, out.count(input.NoteOff))
}

func TestTimedSustainHold(t *testing.T) {
	out := &recordingOutput{}
	s := New(out, Defaults{SustainOn: true, SustainHold: 500 * time.Millisecond})

	s.Apply(on(60, 0))
	s.Apply(off(60, 1_000))
	next, ok := s.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, int64(501_000), next)

	assert.Equal(t, 0, s.Expire(500_000))
	assert.Equal(t, 1, s.Expire(501_000))
	assert.Equal(t, 1, out.count(input.NoteOff))
	_, ok = s.NextDeadline()
	assert.False(t, ok)
}

func TestExpireKeepsReleasingSource(t *testing.T) {
	out := &recordingOutput{}
	s := New(out, Defaults{SustainOn: true, SustainHold: 100 * time.Millisecond})

	s.Apply(input.NoteEvent{Pitch: 62, Velocity: 70, Kind: input.NoteOn, Source: input.Midi, Timestamp: 0})
	s.Apply(input.NoteEvent{Pitch: 62, Kind: input.NoteOff, Source: input.Midi, Timestamp: 1_000})
	s.Apply(on(60, 2_000))
	s.Apply(off(60, 3_000))

	require.Equal(t, 2, s.Expire(200_000))
	require.Len(t, out.calls, 4)
	assert.Equal(t, call{input.NoteOff, 60, 0}, out.calls[2])
	assert.Equal(t, input.Keyboard, out.sources[2])
	assert.Equal(t, call{input.NoteOff, 62, 0}, out.calls[3])
	assert.Equal(t, input.Midi, out.sources[3])
}

func TestHoldFromPercent(t *testing.T) {
	on, hold := HoldFromPercent(0)
	assert.False(t, on)
	assert.Zero(t, hold)

	on, hold = HoldFromPercent(100)
	assert.True(t, on)
	assert.Zero(t, hold)

	on, hold = HoldFromPercent(99)
	assert.True(t, on)
	assert.Equal(t, 2400*time.Millisecond, hold)
}

func TestAllNotesOff(t *testing.T) {
	out := &recordingOutput{}
	s := New(out, Defaults{SustainOn: true})
	s.Apply(on(60, 0))
	s.Apply(on(64, 1))
	s.Apply(off(64, 2))

	assert.Equal(t, 2, s.AllNotesOff(input.Keyboard, 3))
	snap := s.Snapshot(4)
	assert.Empty(t, snap.Held)
	assert.Empty(t, snap.Sustained)
	assert.True(t, snap.SustainOn)

	// the released key has no holder left
	s.Apply(off(60, 5))
	assert.Equal(t, 2, out.count(input.NoteOff))
}

func TestKPSWindow(t *testing.T) {
	s := New(nil, Defaults{})
	for i := range 5 {
		s.Apply(on(60+i, int64(i)*100_000))
	}
	assert.Equal(t, 5.0, s.Snapshot(500_000).KPS)
	assert.Equal(t, 2.0, s.Snapshot(1_250_000).KPS)
	assert.Equal(t, 0.0, s.Snapshot(3_000_000).KPS)

	v := s.View()
	assert.Equal(t, 5.0, v.Snapshot(999_999).KPS)
}

func TestPolyphonyNeverExceedsSoundingPitches(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	out := &recordingOutput{}
	s := New(out, Defaults{})
	sounding := map[int]bool{}

	for i := range 2000 {
		pitch := 58 + rng.Intn(6)
		ts := int64(i)
		switch rng.Intn(5) {
		case 0:
			s.SetSustain(!s.SustainOn(), input.Midi, ts)
		case 1, 2:
			s.Apply(on(pitch, ts))
		default:
			s.Apply(off(pitch, ts))
		}

		snap := s.Snapshot(ts)
		union := map[int]bool{}
		for _, p := range snap.Held {
			union[p] = true
		}
		for _, p := range snap.Sustained {
			assert.False(t, union[p], "held and sustained overlap on %d", p)
			union[p] = true
		}
		require.Equal(t, len(union), snap.Polyphony)

		clear(sounding)
		for _, c := range out.calls {
			sounding[c.pitch] = c.kind == input.NoteOn
		}
		n := 0
		for _, isOn := range sounding {
			if isOn {
				n++
			}
		}
		require.Equal(t, n, snap.Polyphony)
	}
}

func TestStatsFormatting(t *testing.T) {
	snap := Snapshot{Held: []int{60, 64}, Polyphony: 4, KPS: 3, Transpose: 3}
	stats := snap.Stats(0.6)
	assert.Equal(t, "060%", stats["volume"])
	assert.Equal(t, "03.0", stats["kps"])
	assert.Equal(t, "002", stats["held"])
	assert.Equal(t, "004", stats["polyphony"])
	assert.Equal(t, "+03", stats["transpose"])
	assert.Equal(t, "OFF", stats["sustain"])

	snap.Transpose = -12
	assert.Equal(t, "-12", snap.Stats(1)["transpose"])
}
