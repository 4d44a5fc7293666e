package beacon

// Transmitter is the local device's advertising side. The receiver only
// needs to know whether this device can be discovered by peers, and which
// beacon code identifies it today. IsSupported returning false means a
// resolved peer cannot see us, so the code exchange reports our identity
// by writing to the peer's beacon characteristic instead.
type Transmitter interface {
	IsSupported() bool
	BeaconCode() uint64
}

type staticTransmitter struct {
	code      uint64
	supported bool
}

// NewStaticTransmitter returns a transmitter with a fixed beacon code.
// Useful for devices whose advertising side is managed elsewhere, and in
// tests.
func NewStaticTransmitter(code uint64, supported bool) Transmitter {
	return &staticTransmitter{code: code, supported: supported}
}

func (t *staticTransmitter) IsSupported() bool  { return t.supported }
func (t *staticTransmitter) BeaconCode() uint64 { return t.code }
