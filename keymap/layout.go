package keymap

import (
	"fmt"
	"strings"
)

// Layout fixes the playable pitch range and the default binding table
type Layout uint8

const (
	SixtyOne Layout = iota
	EightyEight
)

// Layouts lists every layout in cycling order
var Layouts = []Layout{SixtyOne, EightyEight}

type pitchRange struct{ low, high int }

var ranges = map[Layout]pitchRange{
	SixtyOne:    {36, 96},
	EightyEight: {21, 108},
}

// Range returns the lowest and highest pitch of the layout (inclusive)
func (l Layout) Range() (low, high int) {
	r, ok := ranges[l]
	if !ok {
		r = ranges[SixtyOne]
	}
	return r.low, r.high
}

// Size is the number of keys
func (l Layout) Size() int {
	low, high := l.Range()
	return high - low + 1
}

// Contains reports whether pitch lies within the layout's range
func (l Layout) Contains(pitch int) bool {
	low, high := l.Range()
	return pitch >= low && pitch <= high
}

// Next returns the following layout, wrapping around
func (l Layout) Next() Layout {
	for i, x := range Layouts {
		if x == l {
			return Layouts[(i+1)%len(Layouts)]
		}
	}
	return SixtyOne
}

func (l Layout) String() string {
	switch l {
	case SixtyOne:
		return "61"
	case EightyEight:
		return "88"
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

// ParseLayout accepts "61", "88" and their key-count spellings
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "61", "61-key", "sixtyone":
		return SixtyOne, nil
	case "88", "88-key", "eightyeight":
		return EightyEight, nil
	}
	return SixtyOne, fmt.Errorf("unknown layout %q (want 61 or 88)", s)
}

// MarshalText stores layouts by name in settings files
func (l Layout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Layout) UnmarshalText(b []byte) error {
	parsed, err := ParseLayout(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns scientific pitch notation, e.g. 60 -> "C4"
func NoteName(pitch int) string {
	if pitch < 0 {
		return "?"
	}
	return fmt.Sprintf("%s%d", noteNames[pitch%12], pitch/12-1)
}

// IsBlack reports whether pitch falls on a black key
func IsBlack(pitch int) bool {
	switch pitch % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}
