package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the control keys. None of them collide with the default
// piano tables, which use letters, digits and their shift/ctrl forms.
type keyMap struct {
	Quit          key.Binding
	Help          key.Binding
	Record        key.Binding
	Save          key.Binding
	Panic         key.Binding
	Sustain       key.Binding
	TransposeUp   key.Binding
	TransposeDown key.Binding
	VolumeUp      key.Binding
	VolumeDown    key.Binding
	NextProgram   key.Binding
	PrevProgram   key.Binding
	VelocityDown  key.Binding
	VelocityUp    key.Binding
	ScaleDown     key.Binding
	ScaleUp       key.Binding
	HoldDown      key.Binding
	HoldUp        key.Binding
	Layout        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:          key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
		Help:          key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "help")),
		Record:        key.NewBinding(key.WithKeys("f2"), key.WithHelp("f2", "record/stop")),
		Save:          key.NewBinding(key.WithKeys("f3"), key.WithHelp("f3", "save take")),
		Panic:         key.NewBinding(key.WithKeys("f4"), key.WithHelp("f4", "all notes off")),
		Sustain:       key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "sustain")),
		TransposeUp:   key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "transpose +1")),
		TransposeDown: key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "transpose -1")),
		VolumeUp:      key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "volume +")),
		VolumeDown:    key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "volume -")),
		NextProgram:   key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "next instrument")),
		PrevProgram:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "prev instrument")),
		VelocityDown:  key.NewBinding(key.WithKeys("f5"), key.WithHelp("f5", "velocity -")),
		VelocityUp:    key.NewBinding(key.WithKeys("f6"), key.WithHelp("f6", "velocity +")),
		ScaleDown:     key.NewBinding(key.WithKeys("f7"), key.WithHelp("f7", "velocity scale -")),
		ScaleUp:       key.NewBinding(key.WithKeys("f8"), key.WithHelp("f8", "velocity scale +")),
		HoldDown:      key.NewBinding(key.WithKeys("f9"), key.WithHelp("f9", "sustain hold -")),
		HoldUp:        key.NewBinding(key.WithKeys("f10"), key.WithHelp("f10", "sustain hold +")),
		Layout:        key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "61/88 keys")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Record, k.Save, k.Sustain, k.Layout, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Record, k.Save, k.Panic},
		{k.Sustain, k.TransposeUp, k.TransposeDown},
		{k.VolumeUp, k.VolumeDown, k.NextProgram, k.PrevProgram},
		{k.VelocityDown, k.VelocityUp, k.ScaleDown, k.ScaleUp, k.HoldDown, k.HoldUp},
		{k.Layout, k.Help, k.Quit},
	}
}
