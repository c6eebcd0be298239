package keymap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	saved   map[Layout]Bindings
	failing error
}

func (m *memStore) LoadBindings(l Layout) (Bindings, error) {
	b, ok := m.saved[l]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (m *memStore) SaveBindings(l Layout, b Bindings) error {
	if m.failing != nil {
		return m.failing
	}
	if m.saved == nil {
		m.saved = map[Layout]Bindings{}
	}
	m.saved[l] = b.Clone()
	return nil
}

func TestDefaultTablesCoverLayouts(t *testing.T) {
	for _, l := range Layouts {
		b := DefaultBindings(l)
		assert.Len(t, b, l.Size(), l.String())
		require.NoError(t, b.Validate(l))
	}

	r := NewResolver(SixtyOne)
	p, ok := r.Resolve("t", SixtyOne)
	require.True(t, ok)
	assert.Equal(t, 60, p)
	p, ok = r.Resolve("shift+t", SixtyOne)
	require.True(t, ok)
	assert.Equal(t, 61, p)

	_, ok = r.Resolve("ctrl+1", SixtyOne)
	assert.False(t, ok, "ctrl row is outside the 61-key range")
	p, ok = r.Resolve("ctrl+1", EightyEight)
	require.True(t, ok)
	assert.Equal(t, 21, p)
}

func TestResolveSlot(t *testing.T) {
	r := NewResolver(SixtyOne)
	p, ok := r.ResolveSlot(0, SixtyOne)
	require.True(t, ok)
	assert.Equal(t, 36, p)
	p, ok = r.ResolveSlot(87, EightyEight)
	require.True(t, ok)
	assert.Equal(t, 108, p)
	_, ok = r.ResolveSlot(61, SixtyOne)
	assert.False(t, ok)
}

// a and s are rebound in a custom table so that a=60, s=61
func customResolver(t *testing.T) *Resolver {
	t.Helper()
	r := NewResolver(SixtyOne)
	require.NoError(t, r.BeginEdit())
	require.NoError(t, r.SetBinding("a", 60))
	require.NoError(t, r.SetBinding("s", 61))
	require.NoError(t, r.Commit(&memStore{}))
	return r
}

func TestRebindUnbindsPreviousKeyAndUndoRestores(t *testing.T) {
	r := customResolver(t)
	require.NoError(t, r.BeginEdit())

	require.NoError(t, r.SetBinding("a", 61))
	edit, err := r.EditBindings()
	require.NoError(t, err)
	_, sBound := edit["s"]
	assert.False(t, sBound, "s loses pitch 61")
	assert.Equal(t, 61-36, edit["a"])

	undone, err := r.Undo()
	require.NoError(t, err)
	assert.True(t, undone)

	edit, err = r.EditBindings()
	require.NoError(t, err)
	assert.Equal(t, 60-36, edit["a"])
	assert.Equal(t, 61-36, edit["s"])
	assert.Equal(t, r.Bindings(SixtyOne), edit)

	undone, err = r.Undo()
	require.NoError(t, err)
	assert.False(t, undone)
}

func TestEditInvisibleUntilCommit(t *testing.T) {
	r := customResolver(t)
	store := &memStore{}
	require.NoError(t, r.BeginEdit())
	require.NoError(t, r.SetBinding("a", 61))

	p, ok := r.Resolve("a", SixtyOne)
	require.True(t, ok)
	assert.Equal(t, 60, p, "live table untouched")
	p, ok = r.Resolve("s", SixtyOne)
	require.True(t, ok)
	assert.Equal(t, 61, p)

	require.NoError(t, r.Commit(store))
	assert.False(t, r.Editing())
	p, _ = r.Resolve("a", SixtyOne)
	assert.Equal(t, 61, p)
	_, ok = r.Resolve("s", SixtyOne)
	assert.False(t, ok)
	assert.Equal(t, 61-36, store.saved[SixtyOne]["a"])

	_, err := r.Undo()
	assert.ErrorIs(t, err, ErrNoEdit)
}

func TestDiscardRestores(t *testing.T) {
	r := customResolver(t)
	before := r.Bindings(SixtyOne)
	require.NoError(t, r.BeginEdit())
	require.NoError(t, r.SetBinding("a", 70))
	require.NoError(t, r.Discard())
	assert.Equal(t, before, r.Bindings(SixtyOne))
	assert.ErrorIs(t, r.Discard(), ErrNoEdit)
}

func TestCommitFailureKeepsSession(t *testing.T) {
	r := customResolver(t)
	require.NoError(t, r.BeginEdit())
	require.NoError(t, r.SetBinding("a", 61))

	boom := errors.New("disk full")
	err := r.Commit(&memStore{failing: boom})
	assert.ErrorIs(t, err, boom)
	assert.True(t, r.Editing())

	p, _ := r.Resolve("a", SixtyOne)
	assert.Equal(t, 60, p)

	undone, err := r.Undo()
	require.NoError(t, err)
	assert.True(t, undone)
}

func TestRejectedEdits(t *testing.T) {
	r := NewResolver(SixtyOne)
	assert.ErrorIs(t, r.SetBinding("a", 60), ErrNoEdit)

	require.NoError(t, r.BeginEdit())
	assert.ErrorIs(t, r.BeginEdit(), ErrEditInProgress)

	before, err := r.EditBindings()
	require.NoError(t, err)

	assert.ErrorIs(t, r.SetBinding("a", 20), ErrPitchOutOfRange)
	assert.ErrorIs(t, r.SetBinding("a", 97), ErrPitchOutOfRange)
	assert.ErrorIs(t, r.SetBinding("ctrl+c", 60), ErrBindingConflict)
	assert.ErrorIs(t, r.SetBinding("enter", 60), ErrBindingConflict)

	after, err := r.EditBindings()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	undone, err := r.Undo()
	require.NoError(t, err)
	assert.False(t, undone)
}

func TestSetBindingNormalizesKey(t *testing.T) {
	r := NewResolver(SixtyOne)
	require.NoError(t, r.BeginEdit())
	require.NoError(t, r.SetBinding("Q", 40))
	edit, _ := r.EditBindings()
	assert.Equal(t, 40-36, edit["shift+q"])
}

func TestUnbindNormalizesKey(t *testing.T) {
	r := NewResolver(SixtyOne)
	require.NoError(t, r.BeginEdit())
	require.NoError(t, r.SetBinding("Q", 40))

	require.NoError(t, r.Unbind("SHIFT+Q"))
	edit, _ := r.EditBindings()
	_, bound := edit["shift+q"]
	assert.False(t, bound)

	undone, err := r.Undo()
	require.NoError(t, err)
	assert.True(t, undone)
	edit, _ = r.EditBindings()
	assert.Equal(t, 40-36, edit["shift+q"])

	assert.ErrorIs(t, r.Unbind("enter"), ErrBindingConflict)
	assert.ErrorIs(t, r.Unbind("shift"), ErrBindingConflict)
	after, _ := r.EditBindings()
	assert.Equal(t, edit, after)
}

func TestSaveDefersInstall(t *testing.T) {
	r := customResolver(t)
	store := &memStore{}
	require.NoError(t, r.BeginEdit())
	require.NoError(t, r.SetBinding("a", 61))

	saved, err := r.Save(store)
	require.NoError(t, err)
	assert.Equal(t, SixtyOne, saved.Layout)
	assert.Equal(t, 61-36, store.saved[SixtyOne]["a"])
	p, _ := r.Resolve("a", SixtyOne)
	assert.Equal(t, 60, p, "saved but not installed")
	assert.True(t, r.Editing())

	// edited again before the install: the session stays open
	require.NoError(t, r.SetBinding("d", 62))
	r.Install(saved)
	p, _ = r.Resolve("a", SixtyOne)
	assert.Equal(t, 61, p)
	assert.True(t, r.Editing())
	undone, err := r.Undo()
	require.NoError(t, err)
	assert.False(t, undone, "history ends at the installed table")

	_, err = NewResolver(SixtyOne).Save(store)
	assert.ErrorIs(t, err, ErrNoEdit)
}

func TestLayoutSwitchDiscardsEdit(t *testing.T) {
	r := NewResolver(SixtyOne)
	require.NoError(t, r.BeginEdit())
	r.SetLayout(EightyEight)
	assert.False(t, r.Editing())
	assert.Equal(t, EightyEight, r.Layout())
}

func TestRestoreDefaults(t *testing.T) {
	r := customResolver(t)
	require.NoError(t, r.BeginEdit())
	require.NoError(t, r.RestoreDefaults())
	edit, _ := r.EditBindings()
	assert.Equal(t, DefaultBindings(SixtyOne), edit)
}

func TestLoadSkipsInvalidTables(t *testing.T) {
	store := &memStore{saved: map[Layout]Bindings{
		SixtyOne:    {"a": 0, "b": 0},
		EightyEight: {"z": 3},
	}}
	r := NewResolver(SixtyOne)
	err := r.Load(store)
	assert.ErrorIs(t, err, ErrBindingConflict)
	assert.Equal(t, DefaultBindings(SixtyOne), r.Bindings(SixtyOne))

	p, ok := r.Resolve("z", EightyEight)
	require.True(t, ok)
	assert.Equal(t, 24, p)
}

func TestLayoutHelpers(t *testing.T) {
	l, err := ParseLayout("88")
	require.NoError(t, err)
	assert.Equal(t, EightyEight, l)
	_, err = ParseLayout("76")
	assert.Error(t, err)

	assert.Equal(t, EightyEight, SixtyOne.Next())
	assert.Equal(t, SixtyOne, EightyEight.Next())
	assert.Equal(t, "C4", NoteName(60))
	assert.Equal(t, "A0", NoteName(21))
	assert.True(t, IsBlack(61))
	assert.False(t, IsBlack(60))
}
