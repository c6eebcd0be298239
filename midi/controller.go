package midi

// Handler receives one raw MIDI message. It is called on the driver's
// callback goroutine and must not block.
type Handler func(data []byte)

// Controller is a connected MIDI input device
type Controller interface {
	ID() string
	Close() error
}
