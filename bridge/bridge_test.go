package bridge

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/proximity-blue/beacon"
	"github.com/user/proximity-blue/logger"
)

func dialEvents(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Unmarshal failed: %v (payload %s)", err, data)
	}
	return ev
}

// TestBridge_ForwardsDetection tests that a detection event reaches a
// connected client as JSON with the code as a decimal string
func TestBridge_ForwardsDetection(t *testing.T) {
	s := NewServer("unused")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialEvents(t, ts.URL)
	defer conn.Close()
	time.Sleep(100 * time.Millisecond) // let the server register the client

	observed := time.Now()
	s.Listener().Detect(beacon.DetectionEvent{
		ObservedAt:     observed,
		PeerBeaconCode: 18446744073709551615, // max uint64, breaks JS numbers
		Rssi:           -58,
	})

	ev := readEvent(t, conn)
	if ev.Type != "detect" {
		t.Errorf("Wrong type: %s", ev.Type)
	}
	if ev.BeaconCode != "18446744073709551615" {
		t.Errorf("Beacon code should be a decimal string: %q", ev.BeaconCode)
	}
	if ev.Rssi != -58 {
		t.Errorf("Wrong rssi: %d", ev.Rssi)
	}

	t.Logf("✅ Detection forwarded to the client: %s", ev.String())
}

// TestBridge_ForwardsLifecycleEvents tests start, startFailed and stop
// event shapes
func TestBridge_ForwardsLifecycleEvents(t *testing.T) {
	s := NewServer("unused")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialEvents(t, ts.URL)
	defer conn.Close()
	time.Sleep(100 * time.Millisecond)

	listener := s.Listener()
	listener.Start()
	listener.StartFailed(5)
	listener.Stop()

	if ev := readEvent(t, conn); ev.Type != "start" {
		t.Errorf("First event: got %s, want start", ev.Type)
	}
	ev := readEvent(t, conn)
	if ev.Type != "startFailed" || ev.ErrorCode != 5 {
		t.Errorf("Second event: got %s code=%d", ev.Type, ev.ErrorCode)
	}
	if ev := readEvent(t, conn); ev.Type != "stop" {
		t.Errorf("Third event: got %s, want stop", ev.Type)
	}

	t.Logf("✅ Lifecycle events forwarded in order")
}

// TestBridge_MultipleClients tests fan-out to every connected client
func TestBridge_MultipleClients(t *testing.T) {
	s := NewServer("unused")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	first := dialEvents(t, ts.URL)
	defer first.Close()
	second := dialEvents(t, ts.URL)
	defer second.Close()
	time.Sleep(100 * time.Millisecond)

	s.Listener().Detect(beacon.DetectionEvent{ObservedAt: time.Now(), PeerBeaconCode: 7, Rssi: -40})

	for i, conn := range []*websocket.Conn{first, second} {
		ev := readEvent(t, conn)
		if ev.BeaconCode != "7" {
			t.Errorf("Client %d: wrong code %q", i, ev.BeaconCode)
		}
	}

	t.Logf("✅ Both clients received the detection")
}

// TestBridge_ConcurrentBroadcasts tests that simultaneous broadcasts from
// multiple receivers reach a client as whole frames
func TestBridge_ConcurrentBroadcasts(t *testing.T) {
	s := NewServer("unused")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialEvents(t, ts.URL)
	defer conn.Close()
	time.Sleep(100 * time.Millisecond)

	listener := s.Listener()
	go listener.Detect(beacon.DetectionEvent{ObservedAt: time.Now(), PeerBeaconCode: 1, Rssi: -40})
	go listener.Detect(beacon.DetectionEvent{ObservedAt: time.Now(), PeerBeaconCode: 2, Rssi: -50})

	codes := map[string]bool{}
	for i := 0; i < 2; i++ {
		codes[readEvent(t, conn).BeaconCode] = true
	}
	if !codes["1"] || !codes["2"] {
		t.Errorf("Expected codes 1 and 2, got %v", codes)
	}

	t.Logf("✅ Concurrent broadcasts delivered both frames intact")
}

// TestEvent_AsStruct tests the debug dump shape and that it survives the
// protobuf JSON marshaler with the code still a string
func TestEvent_AsStruct(t *testing.T) {
	ev := Event{
		Type:       "detect",
		Timestamp:  time.Now(),
		BeaconCode: "18446744073709551615",
		Rssi:       -58,
	}

	pb := ev.asStruct()
	if pb.Fields["type"].GetStringValue() != "detect" {
		t.Errorf("Wrong type field: %v", pb.Fields["type"])
	}
	if pb.Fields["beacon_code"].GetStringValue() != "18446744073709551615" {
		t.Errorf("Wrong beacon code field: %v", pb.Fields["beacon_code"])
	}
	if int(pb.Fields["rssi"].GetNumberValue()) != -58 {
		t.Errorf("Wrong rssi field: %v", pb.Fields["rssi"])
	}

	dump := logger.ToJSON(pb)
	if !strings.Contains(dump, `"18446744073709551615"`) {
		t.Errorf("Beacon code should dump as a string: %s", dump)
	}

	lifecycle := Event{Type: "start", Timestamp: time.Now()}
	if fields := lifecycle.asStruct().Fields; len(fields) != 2 {
		t.Errorf("Lifecycle dump should carry only type and timestamp, got %v", fields)
	}

	t.Logf("✅ Event debug dump roundtrips through the protobuf marshaler")
}

// TestBridge_DroppedClientDoesNotBlockBroadcast tests that broadcasting
// keeps working after a client goes away
func TestBridge_DroppedClientDoesNotBlockBroadcast(t *testing.T) {
	s := NewServer("unused")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	gone := dialEvents(t, ts.URL)
	staying := dialEvents(t, ts.URL)
	defer staying.Close()
	time.Sleep(100 * time.Millisecond)

	gone.Close()
	time.Sleep(100 * time.Millisecond)

	s.Listener().Detect(beacon.DetectionEvent{ObservedAt: time.Now(), PeerBeaconCode: 9, Rssi: -60})

	ev := readEvent(t, staying)
	if ev.BeaconCode != "9" {
		t.Errorf("Surviving client got wrong code %q", ev.BeaconCode)
	}

	t.Logf("✅ Broadcast survives a departed client")
}
