package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-piano/keymap"
	"go-piano/performance"
)

// KeyColors are the colors of the keyboard strip
type KeyColors struct {
	White     lipgloss.Color
	Black     lipgloss.Color
	Held      lipgloss.Color
	Sustained lipgloss.Color
	Label     lipgloss.Color
}

// Keyboard renders a piano strip, one column per semitone:
//
//	row 0   octave labels (C2, C3 ...)
//	row 1-2 key bodies
//	row 3   bound key of the hovered pitch
type Keyboard struct {
	Layout  keymap.Layout
	Colors  KeyColors
	Key     rune
	Pressed rune
	Ringing rune

	hover int // pitch under the pointer, 0 = none
}

// Rows occupied by key bodies, relative to the top of the widget
const (
	keyRowTop    = 1
	keyRowBottom = 2
)

func NewKeyboard(l keymap.Layout, colors KeyColors) *Keyboard {
	return &Keyboard{
		Layout:  l,
		Colors:  colors,
		Key:     '█',
		Pressed: '▆',
		Ringing: '▃',
	}
}

// Width is the number of columns the strip takes
func (k *Keyboard) Width() int {
	return k.Layout.Size()
}

// Height is the number of rows the strip takes
func (k *Keyboard) Height() int {
	return 4
}

// HitTest maps a position relative to the widget to a key slot
func (k *Keyboard) HitTest(x, y int) (slot int, ok bool) {
	if y < keyRowTop || y > keyRowBottom || x < 0 || x >= k.Width() {
		return 0, false
	}
	return x, true
}

// Hover marks the pitch under the pointer for the label row
func (k *Keyboard) Hover(pitch int) {
	k.hover = pitch
}

// View renders the strip for snap. label returns the bound key of a pitch.
func (k *Keyboard) View(snap performance.Snapshot, label func(pitch int) string) string {
	low, high := k.Layout.Range()

	octaves := []rune(strings.Repeat(" ", k.Width()))
	for p := low; p <= high; p++ {
		if p%12 != 0 {
			continue
		}
		name := []rune(keymap.NoteName(p))
		x := p - low
		if x+len(name) > len(octaves) {
			continue
		}
		copy(octaves[x:], name)
	}

	var body strings.Builder
	for p := low; p <= high; p++ {
		body.WriteString(k.cell(p, snap))
	}
	row := body.String()

	hint := ""
	if k.hover != 0 && k.Layout.Contains(k.hover) {
		hint = keymap.NoteName(k.hover)
		if label != nil {
			if key := label(k.hover); key != "" {
				hint += " " + key
			}
		}
		pad := k.hover - low
		if pad+len(hint) > k.Width() {
			pad = max(0, k.Width()-len(hint))
		}
		hint = strings.Repeat(" ", pad) + hint
	}

	labelStyle := lipgloss.NewStyle().Foreground(k.Colors.Label)
	return strings.Join([]string{
		labelStyle.Render(string(octaves)),
		row,
		row,
		labelStyle.Render(hint),
	}, "\n")
}

func (k *Keyboard) cell(pitch int, snap performance.Snapshot) string {
	color, ch := k.Colors.White, k.Key
	if keymap.IsBlack(pitch) {
		color = k.Colors.Black
	}
	switch {
	case snap.IsHeld(pitch):
		color, ch = k.Colors.Held, k.Pressed
	case snap.IsSustained(pitch):
		color, ch = k.Colors.Sustained, k.Ringing
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(ch))
}
