package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// KeyboardController forwards every message of one input port to a handler
type KeyboardController struct {
	id       string
	inPort   drivers.In
	stopFunc func()
	channel  int // 1-16, 0 = every channel
}

// NewKeyboardController starts listening on inPort. channel filters channel
// messages to one MIDI channel (1-16); 0 accepts all.
func NewKeyboardController(id string, inPort drivers.In, channel int, handle Handler) (*KeyboardController, error) {
	kb := &KeyboardController{
		id:      id,
		inPort:  inPort,
		channel: channel,
	}

	// Open input
	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			data := msg.Bytes()
			if !kb.accepts(data) {
				return
			}
			handle(data)
		})
		if err != nil {
			return nil, fmt.Errorf("open input %s: %w", id, err)
		}
		kb.stopFunc = stop
	}

	return kb, nil
}

// accepts applies the channel filter; system messages always pass
func (kb *KeyboardController) accepts(data []byte) bool {
	if kb.channel == 0 || len(data) == 0 || data[0] >= 0xF0 || data[0] < 0x80 {
		return true
	}
	return int(data[0]&0x0F)+1 == kb.channel
}

func (kb *KeyboardController) ID() string {
	return kb.id
}

func (kb *KeyboardController) Close() error {
	if kb.stopFunc != nil {
		kb.stopFunc()
		kb.stopFunc = nil
	}
	return nil
}
