package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go-piano/config"
	"go-piano/debug"
	"go-piano/engine"
	"go-piano/midi"
	"go-piano/sound"
)

// session is everything a running instrument needs
type session struct {
	cfg     *config.Config
	store   *config.Store
	engine  *engine.Engine
	devices *midi.DeviceManager
	cancel  context.CancelFunc
	done    chan error
}

// openSession loads the config, opens the synth and starts the engine and
// the MIDI device manager
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := overrides(cfg); err != nil {
		return nil, err
	}
	store := config.NewStore(cfg)
	log := debug.L()

	var synth sound.Engine
	if cfg.Sound.SoundFont != "" {
		s, err := sound.OpenSynth(cfg.Sound.SoundFont)
		if err != nil {
			log.Warn("playing silently", zap.Error(err))
		} else {
			synth = s
		}
	}

	e := engine.New(engine.Options{
		Layout:          cfg.Performance.Layout,
		Settings:        store,
		Sound:           synth,
		Velocity:        cfg.Performance.Velocity,
		Volume:          &cfg.Sound.Volume,
		Program:         &sound.Program{Bank: cfg.Sound.Bank, Preset: cfg.Sound.Preset},
		TicksPerQuarter: cfg.Export.TicksPerQuarter,
	})

	var prefs []midi.Preference
	for _, c := range cfg.AutoConnectControllers() {
		prefs = append(prefs, midi.Preference{PortName: c.PortName, Channel: c.InputChannel})
	}
	devices := midi.NewDeviceManager(midi.SystemPorts{}, func(data []byte) {
		if err := e.OnMidiMessage(data); err != nil && !errors.Is(err, engine.ErrClosed) {
			debug.LogEvery(100, "midi", "dropped: %v", err)
		}
	}, prefs...)

	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		cfg:     cfg,
		store:   store,
		engine:  e,
		devices: devices,
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() { s.done <- e.Run(ctx) }()
	go devices.Run(ctx)
	return s, nil
}

// Close stops the engine (draining queued events), releases MIDI and
// writes pending preferences
func (s *session) Close() error {
	s.cancel()
	err := <-s.done
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	err = multierr.Append(err, s.engine.Close())
	for range s.devices.Events() {
		// closed once every input is released
	}
	midi.Close()
	if ferr := s.store.Flush(); ferr != nil {
		err = multierr.Append(err, fmt.Errorf("save config: %w", ferr))
	}
	return err
}
