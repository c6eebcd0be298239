package midi

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	id     string
	closed bool
}

func (c *fakeController) ID() string   { return c.id }
func (c *fakeController) Close() error { c.closed = true; return nil }

type fakePorts struct {
	mu      sync.Mutex
	names   []string
	opened  map[string]*fakeController
	broken  map[string]bool
	handles map[string]Handler
}

func newFakePorts(names ...string) *fakePorts {
	return &fakePorts{
		names:   names,
		opened:  map[string]*fakeController{},
		broken:  map[string]bool{},
		handles: map[string]Handler{},
	}
}

func (f *fakePorts) InPorts() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...), nil
}

func (f *fakePorts) Open(name string, channel int, h Handler) (Controller, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken[name] {
		return nil, errors.New("busy")
	}
	c := &fakeController{id: name}
	f.opened[name] = c
	f.handles[name] = h
	return c, nil
}

func drain(dm *DeviceManager) []DeviceEvent {
	var evs []DeviceEvent
	for {
		select {
		case ev := <-dm.events:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestAutoConnectFirstHardwarePort(t *testing.T) {
	ports := newFakePorts("Midi Through Port-0", "Keystation 61 MIDI 1", "nanoKEY2")
	var got [][]byte
	dm := NewDeviceManager(ports, func(b []byte) { got = append(got, b) })

	dm.scan()
	assert.Equal(t, []string{"Keystation 61 MIDI 1"}, dm.Connected())
	evs := drain(dm)
	require.Len(t, evs, 1)
	assert.Equal(t, DeviceConnected, evs[0].Type)

	ports.handles["Keystation 61 MIDI 1"]([]byte{0x90, 60, 100})
	assert.Len(t, got, 1)

	// unplug: the next hardware port takes over on the following scan
	ports.names = []string{"Midi Through Port-0", "nanoKEY2"}
	dm.scan()
	assert.Equal(t, []string{"nanoKEY2"}, dm.Connected())
	assert.True(t, ports.opened["Keystation 61 MIDI 1"].closed)
	evs = drain(dm)
	require.Len(t, evs, 2)
}

func TestPreferredPortsOnly(t *testing.T) {
	ports := newFakePorts("A", "B")
	dm := NewDeviceManager(ports, func([]byte) {}, Preference{PortName: "B", Channel: 2}, Preference{PortName: "C"})

	dm.scan()
	assert.Equal(t, []string{"B"}, dm.Connected())

	ports.names = []string{"A", "B", "C"}
	dm.scan()
	assert.Equal(t, []string{"B", "C"}, dm.Connected())
}

func TestFailedPortRetriedAfterReplug(t *testing.T) {
	ports := newFakePorts("A")
	ports.broken["A"] = true
	dm := NewDeviceManager(ports, func([]byte) {})

	dm.scan()
	assert.Empty(t, dm.Connected())
	evs := drain(dm)
	require.Len(t, evs, 1)
	assert.Equal(t, DeviceFailed, evs[0].Type)

	dm.scan()
	assert.Empty(t, drain(dm), "no retry while the port stays")

	ports.names = nil
	dm.scan()
	ports.names = []string{"A"}
	ports.broken["A"] = false
	dm.scan()
	assert.Equal(t, []string{"A"}, dm.Connected())
}

func TestChannelFilter(t *testing.T) {
	kb := &KeyboardController{channel: 2}
	assert.True(t, kb.accepts([]byte{0x91, 60, 100}))
	assert.False(t, kb.accepts([]byte{0x90, 60, 100}))
	assert.True(t, kb.accepts([]byte{0xF8}))

	kb.channel = 0
	assert.True(t, kb.accepts([]byte{0x90, 60, 100}))
}

func TestIsVirtual(t *testing.T) {
	assert.True(t, IsVirtual("Midi Through Port-0"))
	assert.True(t, IsVirtual("RtMidi Input Client"))
	assert.False(t, IsVirtual("Keystation 61 MIDI 1"))
}
