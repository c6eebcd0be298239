package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go-piano/debug"
	"go-piano/input"
	"go-piano/keymap"
	"go-piano/performance"
	"go-piano/recorder"
	"go-piano/sound"
)

// ErrClosed is returned by ingress calls after Close
var ErrClosed = errors.New("engine closed")

// DefaultQueueSize bounds the event queue
const DefaultQueueSize = 1024

// DefaultVolume is the master volume when none is configured
const DefaultVolume = 0.6

// Settings is the settings collaborator
type Settings interface {
	keymap.Store
	LoadPerformanceDefaults() (performance.Defaults, error)
}

// Preferences are the live values worth persisting between sessions
type Preferences struct {
	Layout      keymap.Layout
	Performance performance.Defaults
	Velocity    int
	Volume      float64
	Program     sound.Program
}

// PreferenceSaver is implemented by settings stores that persist live
// changes. SavePreferences must not block.
type PreferenceSaver interface {
	SavePreferences(p Preferences)
}

// Options configures an Engine
type Options struct {
	Layout   keymap.Layout
	Keymap   *keymap.Resolver // defaults to a resolver with built-in tables
	Settings Settings         // optional
	Sound    sound.Engine     // nil runs silent

	// Used when Settings is nil
	Defaults performance.Defaults

	Velocity        int      // keyboard/pointer press velocity, default 100
	Volume          *float64 // master volume 0..1, nil = DefaultVolume
	Program         *sound.Program
	TicksPerQuarter uint16
	QueueSize       int
	Clock           func() int64 // monotonic microseconds, default input.Now
	Logger          *zap.Logger
}

// Status is an immutable picture of the engine published after every
// command. Readers never touch consumer-owned state.
type Status struct {
	perf *performance.View

	Layout   keymap.Layout
	Armed    bool
	ArmedAt  int64
	Program  sound.Program
	Volume   float64
	Velocity int
	Silent   bool

	// SustainHold is the timed hold for pedal-sustained notes, 0 = until
	// the pedal lifts
	SustainHold time.Duration
}

// Engine owns the performance state and applies every input in arrival
// order on a single consumer goroutine (Run). Ingress methods are safe to
// call from any goroutine; they only enqueue.
type Engine struct {
	log      *zap.Logger
	clock    func() int64
	settings Settings
	exporter recorder.Exporter

	queue     chan func()
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	started   atomic.Bool
	closeOnce sync.Once
	closeErr  error

	updates  chan struct{}
	degraded chan error
	status   atomic.Pointer[Status]

	keys *keymap.Resolver
	sink *sound.Adapter

	// owned by the consumer goroutine
	norm         *input.Normalizer
	state        *performance.State
	rec          *recorder.Recorder
	layout       keymap.Layout
	keyHeld      map[string]int // key ID -> base pitch
	pointerSlot  int
	pointerPitch int
	holdTimer    *time.Timer
	holdAt       int64

	// startup pedal position saved with preferences; the live pedal is not
	sustainDefault bool
}

// New builds an engine. Stored bindings and performance defaults are loaded
// here; load failures are logged and fall back to defaults.
func New(opts Options) *Engine {
	e := &Engine{
		log:         opts.Logger,
		clock:       opts.Clock,
		settings:    opts.Settings,
		exporter:    recorder.Exporter{TicksPerQuarter: opts.TicksPerQuarter},
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		updates:     make(chan struct{}, 1),
		degraded:    make(chan error, 1),
		keys:        opts.Keymap,
		norm:        input.NewNormalizer(),
		rec:         recorder.New(),
		layout:      opts.Layout,
		keyHeld:     make(map[string]int),
		pointerSlot: -1,
	}
	if e.log == nil {
		e.log = debug.L().Named("engine")
	}
	if e.clock == nil {
		e.clock = input.Now
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	e.queue = make(chan func(), size)

	if e.keys == nil {
		e.keys = keymap.NewResolver(opts.Layout)
	}
	e.keys.SetLayout(opts.Layout)

	defaults := opts.Defaults
	if e.settings != nil {
		if err := e.keys.Load(e.settings); err != nil {
			e.log.Warn("stored key bindings ignored", zap.Error(err))
		}
		d, err := e.settings.LoadPerformanceDefaults()
		if err != nil {
			e.log.Warn("performance defaults unavailable", zap.Error(err))
		} else {
			defaults = d
		}
	}

	e.sink = sound.NewAdapter(opts.Sound,
		sound.WithLogger(e.log.Named("sound")),
		sound.WithDegradeHandler(e.onDegrade),
	)
	e.state = performance.New(performance.Fanout{e.sink, e.rec}, defaults)
	e.sustainDefault = defaults.SustainOn

	if opts.Velocity > 0 {
		e.norm.SetVelocity(opts.Velocity)
	}
	volume := DefaultVolume
	if opts.Volume != nil {
		volume = *opts.Volume
	}
	e.sink.SetVolume(volume)
	if opts.Program != nil {
		e.sink.SelectInstrument(opts.Program.Bank, opts.Program.Preset)
	}

	e.publish()
	return e
}

// Run consumes the queue until ctx is cancelled or Close is called. Events
// already queued at that point are still applied before everything is
// silenced and the sound engine is released.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		select {
		case <-e.stop:
			return ErrClosed
		default:
		}
		return errors.New("engine already running")
	}
	defer close(e.done)

	var err error
	for running := true; running; {
		select {
		case fn := <-e.queue:
			e.exec(fn)
		case <-ctx.Done():
			err = ctx.Err()
			running = false
		case <-e.stop:
			running = false
		}
	}

	e.stopOnce.Do(func() { close(e.stop) })
	e.drain()
	e.shutdown()
	return err
}

func (e *Engine) drain() {
	for {
		select {
		case fn := <-e.queue:
			e.exec(fn)
		default:
			return
		}
	}
}

func (e *Engine) exec(fn func()) {
	fn()
	e.scheduleHold()
	e.publish()
	e.notify()
}

func (e *Engine) shutdown() {
	e.closeOnce.Do(func() {
		if e.holdTimer != nil {
			e.holdTimer.Stop()
		}
		e.state.AllNotesOff(input.Keyboard, e.clock())
		e.publish()
		e.closeErr = multierr.Append(e.closeErr, e.sink.Close())
		e.log.Debug("engine stopped")
	})
}

// Close stops the consumer, applies what is still queued and releases the
// sound engine.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() { close(e.stop) })
	if e.started.CompareAndSwap(false, true) {
		// Run never started, so nothing else consumes the queue
		e.drain()
		e.shutdown()
		close(e.done)
	} else {
		<-e.done
	}
	return e.closeErr
}

// enqueue hands fn to the consumer. It blocks only while the queue is full.
func (e *Engine) enqueue(fn func()) error {
	select {
	case <-e.stop:
		return ErrClosed
	default:
	}
	select {
	case e.queue <- fn:
		return nil
	case <-e.stop:
		return ErrClosed
	}
}

// do runs fn on the consumer after everything queued before it and waits
// for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := e.enqueue(func() {
		defer close(finished)
		fn()
		e.publish()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		// Run drains before closing done, so fn has run
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (e *Engine) publish() {
	st := &Status{
		perf:     e.state.View(),
		Layout:   e.layout,
		Armed:    e.rec.Armed(),
		Program:  e.sink.Program(),
		Volume:   e.sink.Volume(),
		Velocity: e.norm.Velocity,
		Silent:   e.sink.Degraded(),

		SustainHold: e.state.SustainHold(),
	}
	if st.Armed {
		st.ArmedAt = e.clock() - e.rec.Elapsed(e.clock())
	}
	e.status.Store(st)
}

// notify wakes one Updates listener without blocking
func (e *Engine) notify() {
	select {
	case e.updates <- struct{}{}:
	default:
	}
}

func (e *Engine) onDegrade(err error) {
	select {
	case e.degraded <- err:
	default:
	}
}

// Updates signals after the engine state changed. Signals coalesce.
func (e *Engine) Updates() <-chan struct{} {
	return e.updates
}

// Degraded delivers the error that made sound output fall back to silence
func (e *Engine) Degraded() <-chan error {
	return e.degraded
}

// CurrentSnapshot returns the latest performance snapshot with KPS computed
// for the current instant. It never blocks on the consumer.
func (e *Engine) CurrentSnapshot() performance.Snapshot {
	return e.status.Load().perf.Snapshot(e.clock())
}

// Status returns the latest published engine status
func (e *Engine) Status() Status {
	return *e.status.Load()
}

// Keymap returns the resolver; edit sessions run on it directly and stay
// invisible to playback until CommitKeymap.
func (e *Engine) Keymap() *keymap.Resolver {
	return e.keys
}

// Programs lists the instruments of the sound engine
func (e *Engine) Programs() sound.Catalogue {
	return e.sink.Programs()
}

// Now reads the engine clock
func (e *Engine) Now() int64 {
	return e.clock()
}
