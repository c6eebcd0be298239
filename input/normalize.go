package input

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	gomidi "gitlab.com/gomidi/midi/v2"
)

var (
	// ErrMalformed marks raw input that can never be a valid event: bad
	// status byte, truncated message, data byte outside 0-127.
	ErrMalformed = errors.New("malformed input")

	// ErrUnsupported marks well-formed MIDI messages the core ignores
	// (clock, active sensing, pitch bend, other controllers).
	ErrUnsupported = errors.New("unsupported message")
)

// SustainController is the MIDI damper pedal controller number
const SustainController = 64

// DefaultVelocity is used for keyboard and pointer presses
const DefaultVelocity = 100

// Pedal describes a sustain pedal change carried by a MIDI message
type Pedal uint8

const (
	PedalNone Pedal = iota
	PedalDown
	PedalUp
)

// Message is a normalized MIDI message: either a note event or a pedal change
type Message struct {
	Note  NoteEvent
	Pedal Pedal
}

// IsPedal reports whether the message is a sustain pedal change
func (m Message) IsPedal() bool {
	return m.Pedal != PedalNone
}

// Normalizer translates raw source input into canonical events
type Normalizer struct {
	// Velocity for keyboard and pointer presses (1-127)
	Velocity int
}

// NewNormalizer creates a normalizer with the default press velocity
func NewNormalizer() *Normalizer {
	return &Normalizer{Velocity: DefaultVelocity}
}

// SetVelocity sets the keyboard/pointer press velocity, clamped to 1-127
func (n *Normalizer) SetVelocity(v int) {
	n.Velocity = min(MaxValue, max(1, v))
}

// Key normalizes a raw key stroke into a pending keyboard event. The second
// return is false for strokes that can never be bound (bare modifiers, named
// keys).
func (n *Normalizer) Key(stroke string, press bool, ts int64) (Pending, bool) {
	id, ok := KeyID(stroke)
	if !ok {
		return Pending{}, false
	}
	return Pending{
		Kind:      kindOf(press),
		Source:    Keyboard,
		KeyID:     id,
		Slot:      -1,
		Velocity:  n.pressVelocity(),
		Timestamp: ts,
	}, true
}

// Pointer normalizes a pointer press/release on a key slot (0 is the lowest
// key of the layout).
func (n *Normalizer) Pointer(slot int, press bool, ts int64) (Pending, bool) {
	if slot < 0 {
		return Pending{}, false
	}
	return Pending{
		Kind:      kindOf(press),
		Source:    Mouse,
		Slot:      slot,
		Velocity:  n.pressVelocity(),
		Timestamp: ts,
	}, true
}

// MIDI validates and normalizes one raw MIDI message. Errors wrap
// ErrMalformed or ErrUnsupported; the message must then be dropped.
func (n *Normalizer) MIDI(data []byte, ts int64) (Message, error) {
	if err := validate(data); err != nil {
		return Message{}, err
	}

	msg := gomidi.Message(data)
	var ch, key, vel, ctl, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return Message{Note: NoteEvent{
			Pitch:     int(key),
			Velocity:  int(vel),
			Kind:      NoteOn,
			Source:    Midi,
			Timestamp: ts,
		}}, nil
	case msg.GetNoteEnd(&ch, &key):
		return Message{Note: NoteEvent{
			Pitch:     int(key),
			Kind:      NoteOff,
			Source:    Midi,
			Timestamp: ts,
		}}, nil
	case msg.GetControlChange(&ch, &ctl, &val):
		if ctl != SustainController {
			return Message{}, fmt.Errorf("%w: control change %d", ErrUnsupported, ctl)
		}
		pedal := PedalUp
		if val >= 64 {
			pedal = PedalDown
		}
		return Message{Pedal: pedal, Note: NoteEvent{Source: Midi, Timestamp: ts}}, nil
	}
	return Message{}, fmt.Errorf("%w: status 0x%02X", ErrUnsupported, data[0])
}

// validate checks framing: a known status byte, the right length for
// channel messages, and 7-bit data bytes.
func validate(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty message", ErrMalformed)
	}
	status := data[0]
	if status < 0x80 {
		return fmt.Errorf("%w: missing status byte (0x%02X)", ErrMalformed, status)
	}

	if status >= 0xF0 {
		switch status {
		case 0xF4, 0xF5, 0xF9, 0xFD:
			return fmt.Errorf("%w: undefined status 0x%02X", ErrMalformed, status)
		case 0xF0, 0xF7:
			// sysex payload is not checked further
			return nil
		}
	} else {
		want := 3
		if kind := status & 0xF0; kind == 0xC0 || kind == 0xD0 {
			want = 2
		}
		if len(data) != want {
			return fmt.Errorf("%w: status 0x%02X wants %d bytes, got %d", ErrMalformed, status, want, len(data))
		}
	}

	for i, b := range data[1:] {
		if b > MaxValue {
			return fmt.Errorf("%w: data byte %d is 0x%02X", ErrMalformed, i+1, b)
		}
	}
	return nil
}

func (n *Normalizer) pressVelocity() int {
	if n.Velocity <= 0 {
		return DefaultVelocity
	}
	return n.Velocity
}

func kindOf(press bool) Kind {
	if press {
		return NoteOn
	}
	return NoteOff
}

// shiftedDigits maps the symbols on a US layout digit row to their digit
var shiftedDigits = map[rune]rune{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5',
	'^': '6', '&': '7', '*': '8', '(': '9', ')': '0',
}

var modifierKeys = map[string]bool{
	"shift": true, "ctrl": true, "control": true, "alt": true,
	"meta": true, "super": true, "cmd": true,
}

// KeyID normalizes a key stroke as reported by a terminal or windowing
// toolkit into a binding identifier: "a", "7", "shift+a", "shift+1",
// "ctrl+q". Upper-case letters and shifted digit symbols become shift
// bindings.
func KeyID(stroke string) (string, bool) {
	s := strings.TrimSpace(stroke)
	if s == "" {
		return "", false
	}
	lower := strings.ToLower(s)
	if modifierKeys[lower] {
		return "", false
	}

	for _, mod := range []string{"ctrl", "shift"} {
		if base, ok := strings.CutPrefix(lower, mod+"+"); ok {
			if r, single := singleRune(base); single {
				if d, sym := shiftedDigits[r]; sym {
					r = d
				}
				if unicode.IsLetter(r) || unicode.IsDigit(r) {
					return mod + "+" + string(r), true
				}
			}
			return "", false
		}
	}

	r, single := singleRune(s)
	if !single {
		return "", false
	}
	if d, ok := shiftedDigits[r]; ok {
		return "shift+" + string(d), true
	}
	switch {
	case unicode.IsUpper(r):
		return "shift+" + string(unicode.ToLower(r)), true
	case unicode.IsLetter(r), unicode.IsDigit(r):
		return string(r), true
	}
	return "", false
}

func singleRune(s string) (rune, bool) {
	rs := []rune(s)
	if len(rs) != 1 {
		return 0, false
	}
	return rs[0], true
}
