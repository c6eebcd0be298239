package midi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// ErrPortsTimeout is returned when the MIDI system does not answer.
// On macOS CoreMIDI can hang; `sudo killall coreaudiod midiserver` fixes it.
var ErrPortsTimeout = errors.New("timed out listing MIDI ports")

// ScanTimeout bounds a single port listing
const ScanTimeout = 3 * time.Second

// PortList holds input and output port names
type PortList struct {
	In  []string
	Out []string
}

// ListPorts lists MIDI ports, giving up after timeout
func ListPorts(timeout time.Duration) (PortList, error) {
	ch := make(chan PortList, 1)
	go func() {
		var pl PortList
		for _, p := range gomidi.GetInPorts() {
			pl.In = append(pl.In, p.String())
		}
		for _, p := range gomidi.GetOutPorts() {
			pl.Out = append(pl.Out, p.String())
		}
		ch <- pl
	}()

	select {
	case pl := <-ch:
		return pl, nil
	case <-time.After(timeout):
		return PortList{}, ErrPortsTimeout
	}
}

// Ports is the system seen by the device manager
type Ports interface {
	InPorts() ([]string, error)
	Open(name string, channel int, handle Handler) (Controller, error)
}

// SystemPorts uses the registered gomidi driver
type SystemPorts struct{}

func (SystemPorts) InPorts() ([]string, error) {
	pl, err := ListPorts(ScanTimeout)
	return pl.In, err
}

func (SystemPorts) Open(name string, channel int, handle Handler) (Controller, error) {
	in, err := findInPort(name)
	if err != nil {
		return nil, err
	}
	return NewKeyboardController(name, in, channel, handle)
}

func findInPort(name string) (drivers.In, error) {
	for _, p := range gomidi.GetInPorts() {
		if p.String() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input %q", name)
}

// IsVirtual reports ports that loop back rather than come from hardware
func IsVirtual(name string) bool {
	name = strings.ToLower(name)
	for _, s := range []string{"through", "thru", "virtual", "rtmidi"} {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// Close releases the MIDI driver
func Close() {
	gomidi.CloseDriver()
}
