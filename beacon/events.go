// Package beacon implements the proximity detection engine: a duty-cycled
// scan scheduler, sighting classification, and the bounded peer
// code-exchange protocol that turns a raw radio sighting into a confirmed
// detection event.
package beacon

import (
	"sync"
	"time"

	"github.com/user/proximity-blue/logger"
)

// DetectionEvent is a confirmed proximity contact with a peer. It is the
// sole externally visible output of a successful code exchange.
type DetectionEvent struct {
	ObservedAt     time.Time `json:"observed_at"`
	PeerBeaconCode uint64    `json:"peer_beacon_code"`
	Rssi           int       `json:"rssi"`
}

// Listener receives receiver lifecycle and detection events. Callbacks
// run synchronously on the broadcasting goroutine and should return
// quickly.
type Listener interface {
	Start()
	StartFailed(errorCode int)
	Stop()
	Detect(event DetectionEvent)
}

// Broadcaster delivers events to registered listeners in registration
// order. One listener's panic is recovered and logged so delivery to the
// others continues.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// AddListener registers a listener. Adding the same listener twice has no
// effect.
func (b *Broadcaster) AddListener(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.listeners {
		if existing == l {
			return
		}
	}
	b.listeners = append(b.listeners, l)
}

// RemoveListener unregisters a listener. Removing an unknown listener has
// no effect.
func (b *Broadcaster) RemoveListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.listeners {
		if existing == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of registered listeners
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Broadcast applies visit to every registered listener. The listener list
// is snapshotted first so listeners may add or remove themselves during
// delivery.
func (b *Broadcaster) Broadcast(visit func(Listener)) {
	b.mu.RLock()
	snapshot := make([]Listener, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	for _, l := range snapshot {
		deliver(l, visit)
	}
}

func deliver(l Listener, visit func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Broadcaster", "Listener panicked, skipping (panic=%v)", r)
		}
	}()
	visit(l)
}
