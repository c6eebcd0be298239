package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-piano/engine"
	"go-piano/keymap"
	"go-piano/theme"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	e := engine.New(engine.Options{Layout: keymap.SixtyOne})
	go e.Run(ctx)
	t.Cleanup(func() {
		cancel()
		e.Close()
	})
	return NewModel(ctx, e, nil, theme.New(nil), t.TempDir())
}

func held(m Model, pitch int) func() bool {
	return func() bool { return m.Engine.CurrentSnapshot().IsHeld(pitch) }
}

func TestKeyPressAndDelayedRelease(t *testing.T) {
	m := newTestModel(t)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}})
	m = next.(Model)
	require.NotNil(t, cmd)
	require.Eventually(t, held(m, 60), time.Second, 5*time.Millisecond)

	// auto-repeat re-presses: the first scheduled release is stale
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}})
	m = next.(Model)
	next, _ = m.Update(keyReleaseMsg{id: "t", gen: 1})
	m = next.(Model)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, m.Engine.CurrentSnapshot().IsHeld(60))

	next, _ = m.Update(keyReleaseMsg{id: "t", gen: 2})
	m = next.(Model)
	require.Eventually(t, func() bool { return !held(m, 60)() }, time.Second, 5*time.Millisecond)
}

func TestShiftedKeyPlaysSharp(t *testing.T) {
	m := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'T'}})
	require.Eventually(t, held(m, 61), time.Second, 5*time.Millisecond)
}

func TestControlKeys(t *testing.T) {
	m := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	require.Eventually(t, func() bool {
		s := m.Engine.CurrentSnapshot()
		return s.Transpose == 1 && s.SustainOn
	}, time.Second, 5*time.Millisecond)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestPerformanceKeys(t *testing.T) {
	m := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyF5})
	m.Update(tea.KeyMsg{Type: tea.KeyF8})
	m.Update(tea.KeyMsg{Type: tea.KeyF10})
	m.Update(tea.KeyMsg{Type: tea.KeyF10})
	require.Eventually(t, func() bool {
		st := m.Engine.Status()
		return st.Velocity == 90 && st.SustainHold == 200*time.Millisecond
	}, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 1.1, m.Engine.CurrentSnapshot().VelocityScale, 1e-9)

	m.Update(tea.KeyMsg{Type: tea.KeyF9})
	m.Update(tea.KeyMsg{Type: tea.KeyF9})
	m.Update(tea.KeyMsg{Type: tea.KeyF9})
	require.Eventually(t, func() bool { return m.Engine.Status().SustainHold == 0 }, time.Second, 5*time.Millisecond)
}

func TestMouseDrag(t *testing.T) {
	m := newTestModel(t)
	m.View() // lays out the strip
	top := m.bounds.stripTop

	next, _ := m.Update(tea.MouseMsg{X: 24, Y: top + 1, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	m = next.(Model)
	require.Eventually(t, held(m, 60), time.Second, 5*time.Millisecond)

	next, _ = m.Update(tea.MouseMsg{X: 26, Y: top + 1, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft})
	m = next.(Model)
	require.Eventually(t, func() bool {
		s := m.Engine.CurrentSnapshot()
		return s.IsHeld(62) && !s.IsHeld(60)
	}, time.Second, 5*time.Millisecond)

	next, _ = m.Update(tea.MouseMsg{X: 26, Y: top + 1, Action: tea.MouseActionRelease})
	m = next.(Model)
	assert.False(t, m.dragging)
	require.Eventually(t, func() bool { return len(m.Engine.CurrentSnapshot().Held) == 0 }, time.Second, 5*time.Millisecond)
}

func TestSaveWithoutTake(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyF3})
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	assert.Contains(t, next.(Model).status, "nothing recorded")
}

func TestRecordStopSave(t *testing.T) {
	m := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyF2})
	require.Eventually(t, func() bool { return m.Engine.Status().Armed }, time.Second, 5*time.Millisecond)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyF2})
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	require.NotNil(t, m.take)
	assert.Equal(t, 1, m.take.Notes())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyF3})
	next, _ = m.Update(cmd())
	assert.Contains(t, next.(Model).status, "saved")
	assert.FileExists(t, m.TakesDir+"/"+m.take.FileName())
}
