package performance

import "go-piano/input"

// Output receives the sounding events produced by State: pitches already
// transposed and clamped, velocities already scaled.
type Output interface {
	NoteOn(ev input.NoteEvent)
	NoteOff(ev input.NoteEvent)
}

// Fanout delivers every event to each output in order
type Fanout []Output

func (f Fanout) NoteOn(ev input.NoteEvent) {
	for _, o := range f {
		o.NoteOn(ev)
	}
}

func (f Fanout) NoteOff(ev input.NoteEvent) {
	for _, o := range f {
		o.NoteOff(ev)
	}
}

// Discard drops every event
type Discard struct{}

func (Discard) NoteOn(input.NoteEvent)  {}
func (Discard) NoteOff(input.NoteEvent) {}
