package beacon

import (
	"time"

	"github.com/user/proximity-blue/ble"
	"github.com/user/proximity-blue/logger"
	"github.com/user/proximity-blue/simble"
)

// TransmitterMode selects how a simulated transmitter advertises
type TransmitterMode int

const (
	// TransmitterModeNative advertises the detection service UUID
	// openly, so scanners classify the device as a native peer.
	TransmitterModeNative TransmitterMode = iota

	// TransmitterModeMasked advertises only the vendor marker, the way
	// backgrounded devices do. Peers must connect to resolve identity.
	TransmitterModeMasked
)

// SimTransmitter is the advertising side of a simulated device: it
// publishes the advertisement scanners classify, exposes the beacon
// characteristic carrying this device's code in its lower UUID bits, and
// accepts identity writes from peers that cannot be discovered
// themselves. Incoming identity writes are broadcast as detection events.
type SimTransmitter struct {
	*Broadcaster

	device     *simble.Device
	serviceID  uint64
	beaconCode uint64
	mode       TransmitterMode
}

// NewSimTransmitter creates a stopped transmitter for a simulated device
func NewSimTransmitter(device *simble.Device, serviceID, beaconCode uint64, mode TransmitterMode) *SimTransmitter {
	return &SimTransmitter{
		Broadcaster: NewBroadcaster(),
		device:      device,
		serviceID:   serviceID,
		beaconCode:  beaconCode,
		mode:        mode,
	}
}

// IsSupported implements Transmitter. Both modes are discoverable: native
// peers through the advertised service, masked peers through the marker
// plus a connection.
func (t *SimTransmitter) IsSupported() bool { return true }

// BeaconCode implements Transmitter
func (t *SimTransmitter) BeaconCode() uint64 { return t.beaconCode }

// Start publishes the advertisement and installs the beacon
// characteristic
func (t *SimTransmitter) Start() error {
	charUUID := ble.UUIDFromBits(t.serviceID, t.beaconCode)

	adv := &ble.AdvertisingData{}
	if t.mode == TransmitterModeNative {
		adv.ServiceUUIDs = append(adv.ServiceUUIDs, charUUID)
	} else {
		adv.ManufacturerData = map[uint16][]byte{
			ManufacturerIDApple: {0x10, 0x06},
		}
	}
	if err := t.device.Advertise(adv); err != nil {
		return err
	}

	t.device.SetGattTable([]ble.GattService{
		{
			UUID: ble.UUIDFromBits(t.serviceID, 0),
			Characteristics: []ble.GattCharacteristic{
				{UUID: charUUID},
			},
		},
	})
	t.device.SetWriteHandler(charUUID, t.onIdentityWrite)
	logger.Debug(t.device.Name(), "Transmitter started (beaconCode=%d,mode=%d)", t.beaconCode, t.mode)
	return nil
}

// Stop withdraws the advertisement
func (t *SimTransmitter) Stop() {
	t.device.StopAdvertising()
	logger.Debug(t.device.Name(), "Transmitter stopped")
}

// onIdentityWrite handles a peer reporting its identity because it cannot
// be discovered by scanning
func (t *SimTransmitter) onIdentityWrite(value []byte) int {
	identity, err := DecodePeerIdentity(value)
	if err != nil {
		logger.Warn(t.device.Name(), "Rejected identity write (err=%v)", err)
		return ble.GattFailure
	}
	event := DetectionEvent{
		ObservedAt:     time.Now(),
		PeerBeaconCode: identity.BeaconCode,
		Rssi:           identity.Rssi,
	}
	logger.Info(t.device.Name(), "Peer reported identity (beaconCode=%d,rssi=%d)", identity.BeaconCode, identity.Rssi)
	t.Broadcast(func(l Listener) { l.Detect(event) })
	return ble.GattSuccess
}
