package beacon

import (
	"sync"
	"time"

	"github.com/user/proximity-blue/ble"
	"github.com/user/proximity-blue/logger"
)

// codeExchange resolves one classified sighting at a time into a peer
// beacon code: connect, discover services, find the characteristic whose
// upper UUID bits equal the detection service id, and either disconnect
// (the peer can discover us on its own) or report our identity by writing
// to that characteristic first.
//
// The radio does not reliably support many concurrent connection
// attempts, so callers resolve candidates sequentially.
type codeExchange struct {
	serviceID   uint64
	transmitter Transmitter
	broadcaster *Broadcaster
	timeout     time.Duration
	logPrefix   string
}

type exchangeOutcome struct {
	beaconCode uint64
	ok         bool
}

// resolve performs the bounded exchange for one candidate. The timeout is
// a fixed deadline from the connection attempt; expiry is a normal
// no-detection outcome, not an error. A non-empty resolution is broadcast
// as a DetectionEvent.
func (x *codeExchange) resolve(cs ClassifiedSighting) (uint64, bool) {
	sighting := cs.Sighting
	logger.Debug(x.logPrefix, "Processing sighting (category=%s,peer=%s,rssi=%d)",
		cs.Category, sighting.Device.Address(), sighting.Rssi)

	session := &exchangeSession{
		serviceID:   x.serviceID,
		localCode:   x.transmitter.BeaconCode(),
		rssi:        sighting.Rssi,
		reportLocal: !x.transmitter.IsSupported(),
		logPrefix:   x.logPrefix,
		result:      make(chan exchangeOutcome, 1),
	}

	gatt := sighting.Device.ConnectGatt(session)

	var out exchangeOutcome
	deadline := time.NewTimer(x.timeout)
	select {
	case out = <-session.result:
		deadline.Stop()
	case <-deadline.C:
		// Peer out of range or radio contention; force-close below
		logger.Debug(x.logPrefix, "Exchange timeout (peer=%s)", sighting.Device.Address())
	}
	session.release(gatt)

	if !out.ok {
		return 0, false
	}

	event := DetectionEvent{
		ObservedAt:     time.Now(),
		PeerBeaconCode: out.beaconCode,
		Rssi:           sighting.Rssi,
	}
	logger.Info(x.logPrefix, "Detected peer (beaconCode=%d,rssi=%d)", event.PeerBeaconCode, event.Rssi)
	x.broadcaster.Broadcast(func(l Listener) { l.Detect(event) })
	return out.beaconCode, true
}

// exchangeSession is the per-connection state machine driving the
// connect, discover, write callback chain. The GATT callbacks and the
// timeout path race for a single one-shot completion, and the connection
// handle is released at most once no matter how many paths try.
type exchangeSession struct {
	serviceID   uint64
	localCode   uint64
	rssi        int
	reportLocal bool
	logPrefix   string

	mu       sync.Mutex
	peerCode uint64
	hasCode  bool
	closed   bool

	completeOnce sync.Once
	result       chan exchangeOutcome
}

func (s *exchangeSession) OnConnectionStateChange(g ble.Gatt, status, newState int) {
	logger.Debug(s.logPrefix, "GATT connection state change (peer=%s,status=%s,newState=%s)",
		g.Device().Address(), ble.GattStatusName(status), ble.ConnectionStateName(newState))

	switch newState {
	case ble.StateConnected:
		if err := g.DiscoverServices(); err != nil {
			logger.Debug(s.logPrefix, "Service discovery failed to start (err=%v)", err)
			s.release(g)
			s.complete()
		}
	case ble.StateDisconnected:
		s.release(g)
		s.complete()
	}
}

func (s *exchangeSession) OnServicesDiscovered(g ble.Gatt, status int) {
	logger.Debug(s.logPrefix, "GATT services discovered (peer=%s,status=%s)",
		g.Device().Address(), ble.GattStatusName(status))

	for _, service := range g.Services() {
		for _, ch := range service.Characteristics {
			if ble.MostSignificantBits(ch.UUID) != s.serviceID {
				continue
			}
			code := ble.LeastSignificantBits(ch.UUID)
			s.mu.Lock()
			s.peerCode = code
			s.hasCode = true
			s.mu.Unlock()
			logger.Debug(s.logPrefix, "Discovered beacon characteristic (peer=%s,beaconCode=%d)",
				g.Device().Address(), code)

			if s.reportLocal {
				// This device cannot be discovered by the peer, so
				// report our identity before disconnecting. The
				// session completes on the write acknowledgment.
				ch := ch
				payload := EncodePeerIdentity(s.localCode, s.rssi)
				if err := g.WriteCharacteristic(&ch, payload); err != nil {
					logger.Debug(s.logPrefix, "Identity write failed to start (err=%v)", err)
					g.Disconnect()
					s.complete()
				}
				return
			}

			g.Disconnect()
			s.complete()
			return
		}
	}

	g.Disconnect()
	s.complete()
}

func (s *exchangeSession) OnCharacteristicWrite(g ble.Gatt, ch *ble.GattCharacteristic, status int) {
	logger.Debug(s.logPrefix, "GATT characteristic write complete (peer=%s,status=%s)",
		g.Device().Address(), ble.GattStatusName(status))
	g.Disconnect()
	s.complete()
}

// complete resolves the session with whatever peer code was discovered.
// Only the first call wins.
func (s *exchangeSession) complete() {
	s.completeOnce.Do(func() {
		s.mu.Lock()
		out := exchangeOutcome{beaconCode: s.peerCode, ok: s.hasCode}
		s.mu.Unlock()
		s.result <- out
	})
}

// release closes the connection handle at most once
func (s *exchangeSession) release(g ble.Gatt) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	g.Disconnect()
	g.Close()
	logger.Debug(s.logPrefix, "GATT client closed (peer=%s)", g.Device().Address())
}
