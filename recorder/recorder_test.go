package recorder

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-piano/input"
)

type parsedNote struct {
	on    bool
	key   uint8
	vel   uint8
	micro int64
}

func parse(t *testing.T, data []byte) []parsedNote {
	t.Helper()
	s, err := smf.ReadFrom(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, s.Tracks, 1)

	mt, ok := s.TimeFormat.(smf.MetricTicks)
	require.True(t, ok)
	require.Equal(t, smf.MetricTicks(TicksPerQuarter), mt)

	var notes []parsedNote
	var abs int64
	var ch, key, vel uint8
	for _, ev := range s.Tracks[0] {
		abs += int64(ev.Delta)
		micro := abs * MicrosPerQuarter / TicksPerQuarter
		switch {
		case ev.Message.GetNoteOn(&ch, &key, &vel):
			notes = append(notes, parsedNote{true, key, vel, micro})
		case ev.Message.GetNoteOff(&ch, &key, &vel):
			notes = append(notes, parsedNote{false, key, 0, micro})
		}
	}
	return notes
}

func note(kind input.Kind, pitch int, ts int64) input.NoteEvent {
	vel := 0
	if kind == input.NoteOn {
		vel = 90
	}
	return input.NoteEvent{Pitch: pitch, Velocity: vel, Kind: kind, Source: input.Keyboard, Timestamp: ts}
}

// one tick at 480 tpq and 120 BPM is ~1042us
const tolerance = MicrosPerQuarter/TicksPerQuarter/2 + 1

func TestRoundTripThreePairs(t *testing.T) {
	r := New()
	const t0 = 5_000_000
	require.True(t, r.Arm(t0))

	pairs := []struct {
		pitch   int
		on, off int64
	}{
		{60, 0, 250_000},
		{64, 500_000, 760_000},
		{67, 1_000_333, 1_999_999},
	}
	for _, p := range pairs {
		r.Capture(note(input.NoteOn, p.pitch, t0+p.on))
		r.Capture(note(input.NoteOff, p.pitch, t0+p.off))
	}
	buf, err := r.Stop(t0 + 2_500_000)
	require.NoError(t, err)
	assert.Equal(t, 6, buf.Len())
	assert.Equal(t, 3, buf.Notes())

	data, err := Bytes(buf)
	require.NoError(t, err)
	notes := parse(t, data)
	require.Len(t, notes, 6)

	for i, p := range pairs {
		start, end := notes[2*i], notes[2*i+1]
		assert.True(t, start.on)
		assert.False(t, end.on)
		assert.Equal(t, uint8(p.pitch), start.key)
		assert.Equal(t, uint8(p.pitch), end.key)
		assert.Equal(t, uint8(90), start.vel)
		assert.InDelta(t, p.on, start.micro, tolerance)
		assert.InDelta(t, p.off, end.micro, tolerance)
	}
}

func TestExportEmptyBuffer(t *testing.T) {
	r := New()
	r.Arm(0)
	buf, err := r.Stop(10)
	require.NoError(t, err)

	data, err := Bytes(buf)
	require.NoError(t, err)
	assert.Empty(t, parse(t, data))

	// tempo 500000us per quarter, then end of track
	assert.True(t, bytes.Contains(data, []byte{0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20}))
	assert.True(t, bytes.HasSuffix(data, []byte{0x00, 0xFF, 0x2F, 0x00}))
}

func TestTiesKeepCaptureOrder(t *testing.T) {
	r := New()
	r.Arm(0)
	r.Capture(note(input.NoteOn, 60, 1000))
	r.Capture(note(input.NoteOn, 64, 1000))
	r.Capture(note(input.NoteOff, 60, 500_000))
	r.Capture(note(input.NoteOff, 64, 500_000))
	buf, err := r.Stop(600_000)
	require.NoError(t, err)

	data, err := Bytes(buf)
	require.NoError(t, err)
	notes := parse(t, data)
	require.Len(t, notes, 4)
	assert.Equal(t, []uint8{60, 64, 60, 64}, []uint8{notes[0].key, notes[1].key, notes[2].key, notes[3].key})
}

func TestOutOfOrderTimestampsAreSorted(t *testing.T) {
	r := New()
	r.Arm(0)
	r.Capture(note(input.NoteOn, 60, 200_000))
	r.Capture(note(input.NoteOn, 62, 100_000))
	buf, err := r.Stop(300_000)
	require.NoError(t, err)

	data, err := Bytes(buf)
	require.NoError(t, err)
	notes := parse(t, data)
	require.Len(t, notes, 4)
	assert.Equal(t, uint8(62), notes[0].key)
	assert.Equal(t, uint8(60), notes[1].key)
}

func TestCaptureIsNoopUnlessArmed(t *testing.T) {
	r := New()
	r.Capture(note(input.NoteOn, 60, 0))
	_, err := r.Stop(1)
	assert.ErrorIs(t, err, ErrNotArmed)

	r.Arm(10)
	assert.False(t, r.Arm(20), "already armed")
	r.Capture(note(input.NoteOff, 60, 30))
	buf, err := r.Stop(40)
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Len(), "release of a note started before arming is dropped")
}

func TestStopClosesDanglingNotes(t *testing.T) {
	r := New()
	r.Arm(0)
	r.Capture(note(input.NoteOn, 64, 100))
	r.Capture(note(input.NoteOn, 60, 200))
	buf, err := r.Stop(1_000)
	require.NoError(t, err)

	entries := buf.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, input.NoteOff, entries[2].Event.Kind)
	assert.Equal(t, 60, entries[2].Event.Pitch)
	assert.Equal(t, 64, entries[3].Event.Pitch)
	assert.Equal(t, int64(1_000), entries[3].Elapsed)
	assert.Equal(t, int64(1_000), buf.Duration)
}

func TestReStrikeClosesOpenNote(t *testing.T) {
	r := New()
	r.Arm(0)
	r.Capture(note(input.NoteOn, 60, 100))
	r.Capture(note(input.NoteOn, 60, 200))
	buf, err := r.Stop(300)
	require.NoError(t, err)

	kinds := []input.Kind{}
	for _, e := range buf.Entries() {
		kinds = append(kinds, e.Event.Kind)
	}
	assert.Equal(t, []input.Kind{input.NoteOn, input.NoteOff, input.NoteOn, input.NoteOff}, kinds)
}

func TestRearmStartsFreshBuffer(t *testing.T) {
	r := New()
	r.Arm(0)
	r.Capture(note(input.NoteOn, 60, 10))
	r.Capture(note(input.NoteOff, 60, 20))
	first, err := r.Stop(30)
	require.NoError(t, err)

	r.Arm(100)
	r.Capture(note(input.NoteOn, 72, 110))
	second, err := r.Stop(120)
	require.NoError(t, err)

	assert.Equal(t, 2, first.Len())
	assert.Equal(t, 2, second.Len())
	assert.NotEqual(t, first.ID, second.ID)

	data, err := Bytes(first)
	require.NoError(t, err)
	notes := parse(t, data)
	assert.Equal(t, uint8(60), notes[0].key)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestExportFailureKeepsBuffer(t *testing.T) {
	r := New()
	r.Arm(0)
	r.Capture(note(input.NoteOn, 60, 10))
	buf, err := r.Stop(20)
	require.NoError(t, err)

	err = Export(buf, failingWriter{})
	assert.ErrorIs(t, err, ErrExport)
	assert.Equal(t, 2, buf.Len())

	path := filepath.Join(t.TempDir(), "takes", buf.FileName())
	require.NoError(t, ExportFile(buf, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, parse(t, data), 2)
}

func TestExportFileUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	r := New()
	r.Arm(0)
	buf, _ := r.Stop(1)
	err := ExportFile(buf, filepath.Join(blocker, "take.mid"))
	assert.ErrorIs(t, err, ErrExport)
}

func TestExporterResolution(t *testing.T) {
	x := Exporter{TicksPerQuarter: 960}
	assert.Equal(t, uint32(960), x.ticks(MicrosPerQuarter))
	assert.Equal(t, uint32(480), Exporter{}.ticks(MicrosPerQuarter))
	assert.Equal(t, uint32(1), Exporter{}.ticks(1042))
}
