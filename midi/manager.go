package midi

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-piano/debug"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type DeviceEventType
	ID   string
	Err  error // set when a port was seen but could not be opened
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
	DeviceFailed
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceConnected:
		return "connected"
	case DeviceDisconnected:
		return "disconnected"
	case DeviceFailed:
		return "failed"
	}
	return "unknown"
}

// Preference names a port to connect and its channel filter
type Preference struct {
	PortName string
	Channel  int
}

// DeviceManager handles hot-plug detection of MIDI inputs. Every connected
// input feeds the same handler.
type DeviceManager struct {
	ports       Ports
	handle      Handler
	preferred   []Preference
	controllers map[string]Controller
	failed      map[string]bool
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
	log         *zap.Logger
}

// NewDeviceManager creates a device manager. With no preferences it connects
// the first hardware input it finds; otherwise only the preferred ports.
func NewDeviceManager(ports Ports, handle Handler, preferred ...Preference) *DeviceManager {
	if ports == nil {
		ports = SystemPorts{}
	}
	return &DeviceManager{
		ports:       ports,
		handle:      handle,
		preferred:   preferred,
		controllers: make(map[string]Controller),
		failed:      make(map[string]bool),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
		log:         debug.L().Named("midi"),
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Connected returns the IDs of connected inputs, sorted
func (dm *DeviceManager) Connected() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	ids := make([]string, 0, len(dm.controllers))
	for id := range dm.controllers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

// wanted picks the ports to connect from what is present
func (dm *DeviceManager) wanted(names []string) map[string]int {
	want := make(map[string]int)
	if len(dm.preferred) > 0 {
		for _, p := range dm.preferred {
			if slices.Contains(names, p.PortName) {
				want[p.PortName] = p.Channel
			}
		}
		return want
	}

	// keep the current automatic choice while it is present
	dm.mu.RLock()
	for id := range dm.controllers {
		if slices.Contains(names, id) {
			want[id] = 0
		}
	}
	dm.mu.RUnlock()
	if len(want) > 0 {
		return want
	}
	for _, name := range names {
		if !IsVirtual(name) && !dm.failed[name] {
			want[name] = 0
			break
		}
	}
	return want
}

func (dm *DeviceManager) scan() {
	names, err := dm.ports.InPorts()
	if err != nil {
		// MIDI system is hung - skip this scan
		debug.LogEvery(10, "midi", "port scan: %v", err)
		return
	}
	want := dm.wanted(names)

	for id, channel := range want {
		dm.mu.RLock()
		_, exists := dm.controllers[id]
		dm.mu.RUnlock()
		if exists || dm.failed[id] {
			continue
		}

		c, err := dm.ports.Open(id, channel, dm.handle)
		if err != nil {
			dm.failed[id] = true
			dm.log.Warn("cannot open MIDI input", zap.String("port", id), zap.Error(err))
			dm.emit(DeviceEvent{Type: DeviceFailed, ID: id, Err: err})
			continue
		}

		dm.mu.Lock()
		dm.controllers[id] = c
		dm.mu.Unlock()
		dm.log.Info("MIDI input connected", zap.String("port", id))
		dm.emit(DeviceEvent{Type: DeviceConnected, ID: id})
	}

	// A port that vanished may be opened again when it comes back
	for id := range dm.failed {
		if !slices.Contains(names, id) {
			delete(dm.failed, id)
		}
	}

	// Check for disconnects
	dm.mu.Lock()
	var toRemove []string
	for id := range dm.controllers {
		if _, ok := want[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		dm.controllers[id].Close()
		delete(dm.controllers, id)
	}
	dm.mu.Unlock()

	for _, id := range toRemove {
		dm.log.Info("MIDI input disconnected", zap.String("port", id))
		dm.emit(DeviceEvent{Type: DeviceDisconnected, ID: id})
	}
}

// emit never blocks the scan; a slow listener loses events
func (dm *DeviceManager) emit(ev DeviceEvent) {
	select {
	case dm.events <- ev:
	default:
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}
