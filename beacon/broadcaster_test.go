package beacon

import (
	"testing"
	"time"
)

// recordingListener captures every callback it receives
type recordingListener struct {
	name   string
	calls  []string
	events []DetectionEvent
}

func (l *recordingListener) Start()                    { l.calls = append(l.calls, "start") }
func (l *recordingListener) StartFailed(errorCode int) { l.calls = append(l.calls, "startFailed") }
func (l *recordingListener) Stop()                     { l.calls = append(l.calls, "stop") }
func (l *recordingListener) Detect(event DetectionEvent) {
	l.calls = append(l.calls, "detect")
	l.events = append(l.events, event)
}

// panickingListener blows up on every detection
type panickingListener struct{}

func (l *panickingListener) Start()                      {}
func (l *panickingListener) StartFailed(errorCode int)   {}
func (l *panickingListener) Stop()                       {}
func (l *panickingListener) Detect(event DetectionEvent) { panic("listener bug") }

// TestBroadcaster_DeliversInRegistrationOrder tests ordered delivery
func TestBroadcaster_DeliversInRegistrationOrder(t *testing.T) {
	b := NewBroadcaster()

	var order []string
	first := &orderedListener{name: "first", order: &order}
	second := &orderedListener{name: "second", order: &order}
	b.AddListener(first)
	b.AddListener(second)

	b.Broadcast(func(l Listener) { l.Start() })

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("Wrong delivery order: %v", order)
	}

	t.Logf("✅ Listeners receive events in registration order")
}

type orderedListener struct {
	name  string
	order *[]string
}

func (l *orderedListener) Start()                      { *l.order = append(*l.order, l.name) }
func (l *orderedListener) StartFailed(errorCode int)   {}
func (l *orderedListener) Stop()                       {}
func (l *orderedListener) Detect(event DetectionEvent) {}

// TestBroadcaster_AddRemoveIdempotent tests duplicate add and unknown
// remove
func TestBroadcaster_AddRemoveIdempotent(t *testing.T) {
	b := NewBroadcaster()
	l := &recordingListener{name: "a"}

	b.AddListener(l)
	b.AddListener(l)
	if b.ListenerCount() != 1 {
		t.Errorf("Duplicate add should be ignored, count=%d", b.ListenerCount())
	}

	b.AddListener(nil)
	if b.ListenerCount() != 1 {
		t.Errorf("Nil add should be ignored, count=%d", b.ListenerCount())
	}

	b.RemoveListener(&recordingListener{name: "stranger"})
	if b.ListenerCount() != 1 {
		t.Errorf("Removing an unknown listener should be ignored, count=%d", b.ListenerCount())
	}

	b.RemoveListener(l)
	if b.ListenerCount() != 0 {
		t.Errorf("Listener should be removed, count=%d", b.ListenerCount())
	}
	b.RemoveListener(l)

	t.Logf("✅ Add and remove are idempotent")
}

// TestBroadcaster_PanicIsolation tests that one listener's panic does not
// stop delivery to the rest
func TestBroadcaster_PanicIsolation(t *testing.T) {
	b := NewBroadcaster()
	survivor := &recordingListener{name: "survivor"}
	b.AddListener(&panickingListener{})
	b.AddListener(survivor)

	event := DetectionEvent{ObservedAt: time.Now(), PeerBeaconCode: 42, Rssi: -61}
	b.Broadcast(func(l Listener) { l.Detect(event) })

	if len(survivor.events) != 1 || survivor.events[0].PeerBeaconCode != 42 {
		t.Errorf("Survivor should still receive the event, got %v", survivor.events)
	}

	t.Logf("✅ A panicking listener does not block the others")
}

// TestBroadcaster_RemoveDuringDelivery tests that a listener may remove
// itself from inside a callback
func TestBroadcaster_RemoveDuringDelivery(t *testing.T) {
	b := NewBroadcaster()
	l := &selfRemovingListener{}
	l.broadcaster = b
	b.AddListener(l)

	b.Broadcast(func(x Listener) { x.Stop() })
	if b.ListenerCount() != 0 {
		t.Errorf("Listener should have removed itself, count=%d", b.ListenerCount())
	}

	// Next broadcast reaches nobody
	b.Broadcast(func(x Listener) { x.Stop() })
	if l.stops != 1 {
		t.Errorf("Expected exactly 1 stop, got %d", l.stops)
	}

	t.Logf("✅ Listeners can unregister during delivery")
}

type selfRemovingListener struct {
	broadcaster *Broadcaster
	stops       int
}

func (l *selfRemovingListener) Start()                    {}
func (l *selfRemovingListener) StartFailed(errorCode int) {}
func (l *selfRemovingListener) Stop() {
	l.stops++
	l.broadcaster.RemoveListener(l)
}
func (l *selfRemovingListener) Detect(event DetectionEvent) {}
