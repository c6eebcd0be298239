package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-piano/config"
	"go-piano/keymap"
)

func TestParsePitch(t *testing.T) {
	for in, want := range map[string]int{"60": 60, "C4": 60, "A0": 21, "F#3": 54, "C8": 108} {
		got, err := parsePitch(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parsePitch("H2")
	assert.Error(t, err)
}

func TestBindCommits(t *testing.T) {
	config.SetDir(t.TempDir())
	t.Cleanup(func() { config.SetDir("") })
	store := config.NewStore(config.DefaultConfig())

	require.NoError(t, bind(store, keymap.SixtyOne, "A", 60))

	cfg, err := config.Load()
	require.NoError(t, err)
	b := cfg.Keymaps[keymap.SixtyOne]
	require.NotNil(t, b)
	assert.Equal(t, 24, b["shift+a"])
	_, stillBound := b["t"]
	assert.False(t, stillBound, "previous key of C4 is unbound")
}

func TestKeysChartShowsCommittedTable(t *testing.T) {
	config.SetDir(t.TempDir())
	t.Cleanup(func() { config.SetDir("") })
	store := config.NewStore(config.DefaultConfig())
	require.NoError(t, bind(store, keymap.SixtyOne, "A", 60))

	chart := keysChart(store, keymap.SixtyOne)
	assert.Contains(t, chart, "octave 4\n  C4   shift+a\n")
	assert.True(t, strings.HasPrefix(chart, "octave 2\n"))

	chart = keysChart(store, keymap.EightyEight)
	assert.True(t, strings.HasPrefix(chart, "octave 0\n  A0   "))
}

func TestBindRejectsReservedKey(t *testing.T) {
	config.SetDir(t.TempDir())
	t.Cleanup(func() { config.SetDir("") })
	store := config.NewStore(config.DefaultConfig())

	err := bind(store, keymap.SixtyOne, "ctrl+c", 60)
	assert.ErrorIs(t, err, keymap.ErrBindingConflict)
}

func TestOverrides(t *testing.T) {
	t.Cleanup(func() { layoutArg, portName = "", "" })
	layoutArg, portName = "88", "Keystation"
	cfg := config.DefaultConfig()
	require.NoError(t, overrides(cfg))
	assert.Equal(t, keymap.EightyEight, cfg.Performance.Layout)
	require.Len(t, cfg.AutoConnectControllers(), 1)

	layoutArg = "76"
	assert.Error(t, overrides(config.DefaultConfig()))
}
