package recorder

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"go-piano/input"
)

// ErrNotArmed is returned when stopping a recorder that is not recording
var ErrNotArmed = errors.New("recorder not armed")

// Entry is a captured event and its offset from the start of the take
type Entry struct {
	Event   input.NoteEvent `json:"event"`
	Elapsed int64           `json:"elapsed_us"`
}

// Buffer is a finished take. It is never modified after Stop returns it.
type Buffer struct {
	ID       uuid.UUID
	Started  time.Time
	Duration int64 // microseconds from arm to stop
	entries  []Entry
}

// Entries returns a copy of the captured events in capture order
func (b *Buffer) Entries() []Entry {
	return slices.Clone(b.entries)
}

// Len is the number of captured events
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Notes counts captured note starts
func (b *Buffer) Notes() int {
	n := 0
	for _, e := range b.entries {
		if e.Event.Kind == input.NoteOn {
			n++
		}
	}
	return n
}

// FileName is the default export name for the take
func (b *Buffer) FileName() string {
	return "take-" + b.ID.String()[:8] + ".mid"
}

// Recorder captures sounding events while armed. It is driven from the
// engine's consumer goroutine and is not safe for concurrent use.
type Recorder struct {
	armed   bool
	t0      int64
	started time.Time
	entries []Entry
	open    map[int]bool
}

// New creates an idle recorder
func New() *Recorder {
	return &Recorder{open: make(map[int]bool)}
}

// Arm starts a fresh take at now. It reports false if already armed.
func (r *Recorder) Arm(now int64) bool {
	if r.armed {
		return false
	}
	r.armed = true
	r.t0 = now
	r.started = time.Now()
	r.entries = nil
	clear(r.open)
	return true
}

// Armed reports whether a take is in progress
func (r *Recorder) Armed() bool {
	return r.armed
}

// Elapsed returns microseconds since Arm, or 0 when idle
func (r *Recorder) Elapsed(now int64) int64 {
	if !r.armed {
		return 0
	}
	return max(0, now-r.t0)
}

// Capture appends ev to the take; it is a no-op unless armed. A note start
// on a pitch that is already open first closes it, and a note end for a pitch
// that never started in this take is dropped, so every take pairs up.
func (r *Recorder) Capture(ev input.NoteEvent) {
	if !r.armed {
		return
	}
	switch ev.Kind {
	case input.NoteOn:
		if r.open[ev.Pitch] {
			r.append(input.NoteEvent{Pitch: ev.Pitch, Kind: input.NoteOff, Source: ev.Source, Timestamp: ev.Timestamp})
		}
		r.open[ev.Pitch] = true
	case input.NoteOff:
		if !r.open[ev.Pitch] {
			return
		}
		delete(r.open, ev.Pitch)
	}
	r.append(ev)
}

func (r *Recorder) append(ev input.NoteEvent) {
	r.entries = append(r.entries, Entry{Event: ev, Elapsed: max(0, ev.Timestamp-r.t0)})
}

// NoteOn captures a sounding note start
func (r *Recorder) NoteOn(ev input.NoteEvent) { r.Capture(ev) }

// NoteOff captures a sounding note end
func (r *Recorder) NoteOff(ev input.NoteEvent) { r.Capture(ev) }

// Stop ends the take at now and hands back its buffer. Notes still open are
// closed at the stop instant.
func (r *Recorder) Stop(now int64) (*Buffer, error) {
	if !r.armed {
		return nil, ErrNotArmed
	}
	for _, pitch := range slices.Sorted(maps.Keys(r.open)) {
		r.Capture(input.NoteEvent{Pitch: pitch, Kind: input.NoteOff, Timestamp: max(now, r.t0)})
	}

	buf := &Buffer{
		ID:       uuid.New(),
		Started:  r.started,
		Duration: max(0, now-r.t0),
		entries:  r.entries,
	}
	r.armed = false
	r.entries = nil
	return buf, nil
}
