package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-piano/debug"
	"go-piano/engine"
	"go-piano/input"
	"go-piano/midi"
	"go-piano/recorder"
	"go-piano/theme"
	"go-piano/widgets"
)

// KeyReleaseDelay is how long a key counts as held after its last press.
// Terminals report presses only; auto-repeat keeps re-pressing a held key.
const KeyReleaseDelay = 550 * time.Millisecond

// refreshRate redraws the KPS meter and the recording clock
const refreshRate = 100 * time.Millisecond

const holdStep = 100 * time.Millisecond

// layoutBounds holds cached layout info
type layoutBounds struct {
	stripTop int
}

type Model struct {
	Engine   *engine.Engine
	Devices  *midi.DeviceManager // nil when MIDI input is off
	Theme    *theme.Theme
	TakesDir string

	ctx      context.Context
	keys     keyMap
	help     help.Model
	strip    *widgets.Keyboard
	bounds   *layoutBounds
	gens     map[string]int // press generation per key ID
	dragging bool
	take     *recorder.Buffer
	status   string
	silent   string
	quitting bool
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

type DegradedMsg struct{ Err error }

type refreshMsg struct{}

type keyReleaseMsg struct {
	id  string
	gen int
}

type stoppedMsg struct {
	buf *recorder.Buffer
	err error
}

type savedMsg struct {
	path  string
	notes int
	err   error
}

type statusMsg string

func NewModel(ctx context.Context, e *engine.Engine, devices *midi.DeviceManager, th *theme.Theme, takesDir string) Model {
	strip := widgets.NewKeyboard(e.Status().Layout, widgets.KeyColors{
		White:     th.WhiteKey(),
		Black:     th.BlackKey(),
		Held:      th.Active(),
		Sustained: th.Sustained(),
		Label:     th.Muted(),
	})
	strip.Key = th.Symbols.Key
	strip.Pressed = th.Symbols.Pressed
	strip.Ringing = th.Symbols.Sustained

	return Model{
		Engine:   e,
		Devices:  devices,
		Theme:    th,
		TakesDir: takesDir,
		ctx:      ctx,
		keys:     defaultKeyMap(),
		help:     help.New(),
		strip:    strip,
		bounds:   &layoutBounds{},
		gens:     make(map[string]int),
	}
}

func ListenForUpdates(e *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		<-e.Updates()
		return UpdateMsg{}
	}
}

func ListenForDegrade(e *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		return DegradedMsg{Err: <-e.Degraded()}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	if deviceMgr == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshRate, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Engine),
		ListenForDegrade(m.Engine),
		ListenForDevices(m.Devices),
		refresh(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case keyReleaseMsg:
		if m.gens[msg.id] == msg.gen {
			delete(m.gens, msg.id)
			m.Engine.KeyUp(msg.id)
		}

	case tea.MouseMsg:
		m.handleMouse(msg)

	case tea.BlurMsg:
		// key releases are lost while unfocused
		m.Engine.AllNotesOff()
		clear(m.gens)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case UpdateMsg:
		return m, ListenForUpdates(m.Engine)

	case refreshMsg:
		return m, refresh()

	case DegradedMsg:
		m.silent = fmt.Sprintf("sound off: %v", msg.Err)

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		switch event.Type {
		case midi.DeviceConnected:
			m.status = "MIDI in: " + event.ID
		case midi.DeviceDisconnected:
			m.status = "MIDI unplugged: " + event.ID
		case midi.DeviceFailed:
			m.status = fmt.Sprintf("MIDI %s: %v", event.ID, event.Err)
		}
		return m, ListenForDevices(m.Devices)

	case stoppedMsg:
		switch {
		case errors.Is(msg.err, recorder.ErrNotArmed):
		case msg.err != nil:
			m.status = "stop: " + msg.err.Error()
		default:
			m.take = msg.buf
			m.status = fmt.Sprintf("take %s: %d notes, f3 saves", msg.buf.ID.String()[:8], msg.buf.Notes())
		}

	case savedMsg:
		if msg.err != nil {
			m.status = "save failed: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("saved %s (%d notes)", msg.path, msg.notes)
		}

	case statusMsg:
		m.status = string(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.Engine
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Record):
		if e.Status().Armed {
			return m, m.stopRecording()
		}
		e.Arm()
		m.status = "recording"
	case key.Matches(msg, m.keys.Save):
		return m, m.saveTake()
	case key.Matches(msg, m.keys.Panic):
		e.AllNotesOff()
		clear(m.gens)
	case key.Matches(msg, m.keys.Sustain):
		e.ToggleSustain()
	case key.Matches(msg, m.keys.TransposeUp):
		e.StepTranspose(1)
	case key.Matches(msg, m.keys.TransposeDown):
		e.StepTranspose(-1)
	case key.Matches(msg, m.keys.VolumeUp):
		e.StepVolume(0.05)
	case key.Matches(msg, m.keys.VolumeDown):
		e.StepVolume(-0.05)
	case key.Matches(msg, m.keys.NextProgram):
		e.StepInstrument(1)
	case key.Matches(msg, m.keys.PrevProgram):
		e.StepInstrument(-1)
	case key.Matches(msg, m.keys.VelocityDown):
		e.StepVelocity(-10)
	case key.Matches(msg, m.keys.VelocityUp):
		e.StepVelocity(10)
	case key.Matches(msg, m.keys.ScaleDown):
		e.StepVelocityScale(-0.1)
	case key.Matches(msg, m.keys.ScaleUp):
		e.StepVelocityScale(0.1)
	case key.Matches(msg, m.keys.HoldDown):
		e.StepSustainHold(-holdStep)
	case key.Matches(msg, m.keys.HoldUp):
		e.StepSustainHold(holdStep)
	case key.Matches(msg, m.keys.Layout):
		clear(m.gens)
		return m, m.nextLayout()
	default:
		return m, m.press(msg.String())
	}
	return m, nil
}

// press plays a key and schedules its release
func (m Model) press(stroke string) tea.Cmd {
	id, ok := input.KeyID(stroke)
	if !ok {
		return nil
	}
	if err := m.Engine.KeyDown(id); err != nil {
		debug.Log("tui", "key %s: %v", id, err)
		return nil
	}
	m.gens[id]++
	gen := m.gens[id]
	return tea.Tick(KeyReleaseDelay, func(time.Time) tea.Msg {
		return keyReleaseMsg{id: id, gen: gen}
	})
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	slot, onKeys := m.strip.HitTest(msg.X, msg.Y-m.bounds.stripTop)
	low, _ := m.strip.Layout.Range()
	if onKeys {
		m.strip.Hover(low + slot)
	} else {
		m.strip.Hover(0)
	}

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button == tea.MouseButtonLeft && onKeys {
			m.Engine.PointerDown(slot)
			m.dragging = true
		}
	case tea.MouseActionMotion:
		if !m.dragging {
			return
		}
		if !onKeys {
			slot = -1
		}
		m.Engine.PointerMove(slot)
	case tea.MouseActionRelease:
		if m.dragging {
			m.Engine.PointerUp()
			m.dragging = false
		}
	}
}

func (m Model) stopRecording() tea.Cmd {
	e, ctx := m.Engine, m.ctx
	return func() tea.Msg {
		buf, err := e.StopRecording(ctx)
		return stoppedMsg{buf: buf, err: err}
	}
}

func (m Model) saveTake() tea.Cmd {
	take := m.take
	if take == nil {
		return func() tea.Msg { return statusMsg("nothing recorded yet (f2)") }
	}
	e, path := m.Engine, filepath.Join(m.TakesDir, take.FileName())
	return func() tea.Msg {
		err := e.ExportFile(take, path)
		return savedMsg{path: path, notes: take.Notes(), err: err}
	}
}

func (m Model) nextLayout() tea.Cmd {
	e, ctx := m.Engine, m.ctx
	return func() tea.Msg {
		if err := e.NextLayout(ctx); err != nil {
			return statusMsg("layout: " + err.Error())
		}
		return statusMsg(fmt.Sprintf("%s keys", e.Status().Layout))
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	st := m.Engine.Status()
	snap := m.Engine.CurrentSnapshot()
	m.strip.Layout = st.Layout

	// Styles
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.FG()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	recStyle := lipgloss.NewStyle().Foreground(m.Theme.Active()).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	header := headerStyle.Render(fmt.Sprintf("go-piano  %s keys  %s", st.Layout, st.Program))
	if st.Armed {
		secs := (m.Engine.Now() - st.ArmedAt) / 1_000_000
		header += "  " + recStyle.Render(fmt.Sprintf("%c REC %02d:%02d", m.Theme.Symbols.Recording, secs/60, secs%60))
	}
	if st.Silent {
		header += "  " + warnStyle.Render(fmt.Sprintf("%c silent", m.Theme.Symbols.Silent))
	}
	if m.Devices != nil {
		if ids := m.Devices.Connected(); len(ids) > 0 {
			header += "  " + dimStyle.Render("midi: "+strings.Join(ids, ", "))
		}
	}

	keys := m.Engine.Keymap()
	strip := m.strip.View(snap, func(pitch int) string {
		k, _ := keys.KeyFor(pitch, st.Layout)
		return k
	})
	stats := widgets.RenderStats(snap, st.Volume, m.Theme.Muted(), m.Theme.FG())

	// Compute layout bounds
	m.bounds.stripTop = 1 + lipgloss.Height(header) + 1

	// Build output
	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(strip)
	out.WriteString("\n\n")
	out.WriteString(stats)
	out.WriteString("\n")
	if m.silent != "" {
		out.WriteString(warnStyle.Render(m.silent))
		out.WriteString("\n")
	}
	out.WriteString(dimStyle.Render(m.status))
	out.WriteString("\n\n")
	out.WriteString(m.help.View(m.keys))

	return out.String()
}
