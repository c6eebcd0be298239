package sound

import "errors"

// ErrUnavailable reports that no audible output can be produced. The adapter
// degrades to silent mode when an engine returns it.
var ErrUnavailable = errors.New("sound engine unavailable")

// Engine is the voice-triggering API of a sound backend. Calls come from a
// single goroutine.
type Engine interface {
	NoteOn(pitch, velocity int) error
	NoteOff(pitch int) error
	// SelectProgram changes the instrument for new voices only
	SelectProgram(bank, preset int) error
	SetVolume(v float64) error
	AllNotesOff() error
	Programs() Catalogue
	Close() error
}

// Silent is an engine that produces no sound. It stands in when no audio
// device or SoundFont is available.
type Silent struct{}

func (Silent) NoteOn(int, int) error        { return nil }
func (Silent) NoteOff(int) error            { return nil }
func (Silent) SelectProgram(int, int) error { return nil }
func (Silent) SetVolume(float64) error      { return nil }
func (Silent) AllNotesOff() error           { return nil }
func (Silent) Programs() Catalogue          { return nil }
func (Silent) Close() error                 { return nil }
