package recorder

import (
	"bufio"
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-piano/input"
)

// ErrExport wraps serialization and I/O failures. The buffer is untouched
// and can be exported again.
var ErrExport = errors.New("export failed")

const (
	// TicksPerQuarter is the default file resolution
	TicksPerQuarter = 480
	// MicrosPerQuarter fixes the tempo at 120 BPM
	MicrosPerQuarter = 500_000
	tempoBPM         = 60_000_000.0 / MicrosPerQuarter
	channel          = 0
)

// Exporter writes buffers as single-track standard MIDI files
type Exporter struct {
	TicksPerQuarter uint16
}

// Export writes buf to w with the default resolution
func Export(buf *Buffer, w io.Writer) error {
	return Exporter{}.Write(buf, w)
}

// Bytes returns buf as a standard MIDI file
func Bytes(buf *Buffer) ([]byte, error) {
	var b bytes.Buffer
	if err := Export(buf, &b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// ExportFile writes buf to path. A partially written file is removed.
func ExportFile(buf *Buffer, path string) error {
	return Exporter{}.WriteFile(buf, path)
}

func (x Exporter) tpq() uint16 {
	if x.TicksPerQuarter == 0 {
		return TicksPerQuarter
	}
	return x.TicksPerQuarter
}

// ticks quantizes elapsed microseconds to the file resolution
func (x Exporter) ticks(elapsed int64) uint32 {
	return uint32(math.Round(float64(elapsed) * float64(x.tpq()) / MicrosPerQuarter))
}

// Track builds the track: a tempo event, the notes in ascending time with
// ties kept in capture order, then end of track.
func (x Exporter) Track(buf *Buffer) smf.Track {
	var entries []Entry
	if buf != nil {
		entries = slices.Clone(buf.entries)
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Elapsed, b.Elapsed)
	})

	var tr smf.Track
	tr.Add(0, smf.MetaTempo(tempoBPM))

	var last uint32
	for _, e := range entries {
		at := x.ticks(e.Elapsed)
		key := uint8(input.Clamp(e.Event.Pitch))
		switch e.Event.Kind {
		case input.NoteOn:
			vel := uint8(min(input.MaxValue, max(1, e.Event.Velocity)))
			tr.Add(at-last, midi.NoteOn(channel, key, vel))
		case input.NoteOff:
			tr.Add(at-last, midi.NoteOff(channel, key))
		}
		last = at
	}
	tr.Close(0)
	return tr
}

// Write serializes buf to w
func (x Exporter) Write(buf *Buffer, w io.Writer) error {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(x.tpq())
	if err := s.Add(x.Track(buf)); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	return nil
}

// WriteFile writes buf to path, creating parent directories
func (x Exporter) WriteFile(buf *Buffer, path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrExport, cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	w := bufio.NewWriter(f)
	if err := x.Write(buf, w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	return nil
}
