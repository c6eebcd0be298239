package keymap

import (
	"errors"
	"fmt"
	"sync"

	"go-piano/debug"
	"go-piano/input"
)

var (
	ErrBindingConflict = errors.New("binding conflict")
	ErrPitchOutOfRange = errors.New("pitch outside layout")
	ErrNoEdit          = errors.New("no edit session")
	ErrEditInProgress  = errors.New("edit session already open")
)

// Store is the settings collaborator the resolver loads from and commits to.
// LoadBindings returns nil bindings when nothing custom is stored.
type Store interface {
	LoadBindings(l Layout) (Bindings, error)
	SaveBindings(l Layout, b Bindings) error
}

// Reserved key IDs can never be bound; the front end uses them for controls
var Reserved = map[string]bool{
	"ctrl+c": true,
}

// editSession is a copy-on-write edit of one layout's table. undo holds the
// table as it was before each change.
type editSession struct {
	layout  Layout
	current Bindings
	undo    []Bindings
	rev     int
}

// Resolver maps key IDs and pointer slots to pitches. Live lookups always use
// the committed tables; an open edit session is invisible to playback until
// Commit succeeds.
type Resolver struct {
	mu     sync.RWMutex
	layout Layout
	tables map[Layout]Bindings
	edit   *editSession
}

// NewResolver creates a resolver with the default tables
func NewResolver(layout Layout) *Resolver {
	r := &Resolver{
		layout: layout,
		tables: make(map[Layout]Bindings, len(Layouts)),
	}
	for _, l := range Layouts {
		r.tables[l] = DefaultBindings(l)
	}
	return r
}

// Load replaces the committed tables with whatever the store holds. Invalid
// stored tables are skipped and keep the defaults; their errors are returned
// joined.
func (r *Resolver) Load(store Store) error {
	var errs []error
	for _, l := range Layouts {
		b, err := store.LoadBindings(l)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s-key bindings: %w", l, err))
			continue
		}
		if b == nil {
			continue
		}
		if err := b.Validate(l); err != nil {
			errs = append(errs, fmt.Errorf("stored %s-key bindings: %w", l, err))
			continue
		}
		r.mu.Lock()
		r.tables[l] = b.Clone()
		r.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Layout returns the active layout
func (r *Resolver) Layout() Layout {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.layout
}

// SetLayout switches the active layout. An edit session for another layout is
// discarded.
func (r *Resolver) SetLayout(l Layout) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layout = l
	if r.edit != nil && r.edit.layout != l {
		debug.Log("keymap", "layout switched to %s, discarding %s-key edit", l, r.edit.layout)
		r.edit = nil
	}
}

// Resolve returns the base pitch bound to keyID under layout
func (r *Resolver) Resolve(keyID string, l Layout) (int, bool) {
	r.mu.RLock()
	off, ok := r.tables[l][keyID]
	r.mu.RUnlock()
	if !ok {
		return 0, false
	}
	low, _ := l.Range()
	return low + off, true
}

// ResolveSlot returns the pitch of the slot-th key (0 = lowest) of layout
func (r *Resolver) ResolveSlot(slot int, l Layout) (int, bool) {
	if slot < 0 || slot >= l.Size() {
		return 0, false
	}
	low, _ := l.Range()
	return low + slot, true
}

// KeyFor returns the key bound to pitch in the committed table
func (r *Resolver) KeyFor(pitch int, l Layout) (string, bool) {
	low, _ := l.Range()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables[l].KeyAt(pitch - low)
}

// Bindings returns a copy of the committed table for l
func (r *Resolver) Bindings(l Layout) Bindings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables[l].Clone()
}

// Editing reports whether an edit session is open
func (r *Resolver) Editing() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.edit != nil
}

// EditBindings returns a copy of the table being edited
func (r *Resolver) EditBindings() (Bindings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.edit == nil {
		return nil, ErrNoEdit
	}
	return r.edit.current.Clone(), nil
}

// BeginEdit opens an edit session on the active layout
func (r *Resolver) BeginEdit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.edit != nil {
		return ErrEditInProgress
	}
	r.edit = &editSession{
		layout:  r.layout,
		current: r.tables[r.layout].Clone(),
	}
	debug.Log("keymap", "edit opened on %s-key layout", r.layout)
	return nil
}

// SetBinding binds keyID to the absolute pitch inside the edit session. A key
// already holding that pitch is unbound. Rejected edits leave the session
// unchanged.
func (r *Resolver) SetBinding(keyID string, pitch int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.edit == nil {
		return ErrNoEdit
	}
	id, ok := input.KeyID(keyID)
	if !ok {
		return fmt.Errorf("%w: %q is not a bindable key", ErrBindingConflict, keyID)
	}
	if Reserved[id] {
		return fmt.Errorf("%w: %q is reserved", ErrBindingConflict, id)
	}
	l := r.edit.layout
	if !l.Contains(pitch) {
		low, high := l.Range()
		return fmt.Errorf("%w: %d not in %d..%d", ErrPitchOutOfRange, pitch, low, high)
	}

	low, _ := l.Range()
	off := pitch - low
	if cur, bound := r.edit.current[id]; bound && cur == off {
		return nil
	}

	next := r.edit.current.Clone()
	if prev, taken := next.KeyAt(off); taken {
		delete(next, prev)
		debug.Log("keymap", "%s unbound, pitch %s moves to %s", prev, NoteName(pitch), id)
	}
	next[id] = off

	r.edit.undo = append(r.edit.undo, r.edit.current)
	r.edit.current = next
	r.edit.rev++
	return nil
}

// Unbind removes keyID from the edit session's table
func (r *Resolver) Unbind(keyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.edit == nil {
		return ErrNoEdit
	}
	id, ok := input.KeyID(keyID)
	if !ok {
		return fmt.Errorf("%w: %q is not a bindable key", ErrBindingConflict, keyID)
	}
	if _, bound := r.edit.current[id]; !bound {
		return nil
	}
	next := r.edit.current.Clone()
	delete(next, id)
	r.edit.undo = append(r.edit.undo, r.edit.current)
	r.edit.current = next
	r.edit.rev++
	return nil
}

// RestoreDefaults replaces the edit session's table with the layout default.
// It is undoable like any other change.
func (r *Resolver) RestoreDefaults() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.edit == nil {
		return ErrNoEdit
	}
	r.edit.undo = append(r.edit.undo, r.edit.current)
	r.edit.current = DefaultBindings(r.edit.layout)
	r.edit.rev++
	return nil
}

// Undo reverts the most recent change of the edit session. It reports false
// when there is nothing left to undo.
func (r *Resolver) Undo() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.edit == nil {
		return false, ErrNoEdit
	}
	n := len(r.edit.undo)
	if n == 0 {
		return false, nil
	}
	r.edit.current = r.edit.undo[n-1]
	r.edit.undo = r.edit.undo[:n-1]
	r.edit.rev++
	return true, nil
}

// Saved is an edited table that reached the store but is not yet used for
// playback. Install makes it live.
type Saved struct {
	Layout Layout
	Table  Bindings

	edit *editSession
	rev  int
}

// Save writes the edited table through store without installing it. The store
// is called without holding the lock, so lookups continue during the write.
// On failure the session stays open with its undo history.
func (r *Resolver) Save(store Store) (Saved, error) {
	r.mu.RLock()
	edit := r.edit
	if edit == nil {
		r.mu.RUnlock()
		return Saved{}, ErrNoEdit
	}
	s := Saved{Layout: edit.layout, Table: edit.current.Clone(), edit: edit, rev: edit.rev}
	r.mu.RUnlock()

	if err := store.SaveBindings(s.Layout, s.Table); err != nil {
		return Saved{}, fmt.Errorf("save %s-key bindings: %w", s.Layout, err)
	}
	return s, nil
}

// Install makes a saved table the one playback resolves through and closes
// the edit session it came from. Changes made after the save stay in an open
// session on top of the installed table.
func (r *Resolver) Install(s Saved) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[s.Layout] = s.Table.Clone()
	if r.edit == s.edit && s.edit.rev == s.rev {
		r.edit = nil
	} else if r.edit == s.edit {
		s.edit.undo = nil
	}
	debug.Log("keymap", "committed %d bindings for %s-key layout", len(s.Table), s.Layout)
}

// Commit saves the edited table through store and installs it at once
func (r *Resolver) Commit(store Store) error {
	s, err := r.Save(store)
	if err != nil {
		return err
	}
	r.Install(s)
	return nil
}

// Discard closes the edit session, restoring the pre-edit table
func (r *Resolver) Discard() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.edit == nil {
		return ErrNoEdit
	}
	r.edit = nil
	debug.Log("keymap", "edit discarded")
	return nil
}
