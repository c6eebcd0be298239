package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	Key       rune // █ key body
	Pressed   rune // ▆ held key
	Sustained rune // ▃ ringing on the pedal
	Recording rune // ● armed
	Silent    rune // × no sound output
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Default()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Key:       '█',
			Pressed:   '▆',
			Sustained: '▃',
			Recording: '●',
			Silent:    '×',
		},
	}
}

// Color roles mapped to palette positions (0-1), tuned for Default
const (
	RoleBG        = 0.0
	RoleBlackKey  = 0.125
	RoleMuted     = 0.375
	RoleWhiteKey  = 0.5
	RoleSustained = 0.625
	RoleActive    = 0.75
	RoleWarning   = 0.875
	RoleSuccess   = 1.0
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWhiteKey))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) BlackKey() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBlackKey))
}

func (t *Theme) WhiteKey() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWhiteKey))
}

func (t *Theme) Sustained() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSustained))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
