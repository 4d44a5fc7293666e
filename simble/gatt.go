package simble

import (
	"errors"
	"sync"
	"time"

	"github.com/user/proximity-blue/ble"
)

// remoteDevice is another hub device as seen from a scanner
type remoteDevice struct {
	local  *Device
	target *Device
}

// RemoteDevice returns to as seen from from, the same peer handle a scan
// at from would report. Useful for driving connections without scanning.
func RemoteDevice(from, to *Device) ble.Device {
	return &remoteDevice{local: from, target: to}
}

func (r *remoteDevice) Address() string { return r.target.address }

// ConnectGatt starts an asynchronous connection attempt. Progress is
// reported through the callback on the simulator goroutine, matching the
// callback-driven radio the engine is written against.
func (r *remoteDevice) ConnectGatt(cb ble.GattCallback) ble.Gatt {
	g := &gattClient{device: r, cb: cb}
	go g.connect()
	return g
}

// gattClient is one simulated client connection
type gattClient struct {
	device *remoteDevice
	cb     ble.GattCallback

	mu        sync.Mutex
	connected bool
	closed    bool
	services  []ble.GattService
}

var errNotConnected = errors.New("simble: gatt not connected")

func (g *gattClient) connect() {
	enabled, connectable, delay := g.device.target.connectParams()
	time.Sleep(delay)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	if !enabled || !connectable {
		g.mu.Unlock()
		if g.cb != nil {
			g.cb.OnConnectionStateChange(g, ble.GattFailure, ble.StateDisconnected)
		}
		return
	}
	g.connected = true
	g.mu.Unlock()

	if g.cb != nil {
		g.cb.OnConnectionStateChange(g, ble.GattSuccess, ble.StateConnected)
	}
}

func (g *gattClient) Device() ble.Device { return g.device }

func (g *gattClient) DiscoverServices() error {
	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return errNotConnected
	}
	g.mu.Unlock()

	go func() {
		time.Sleep(g.device.target.discoverDelayValue())

		g.mu.Lock()
		if !g.connected {
			g.mu.Unlock()
			return
		}
		g.services = g.device.target.snapshotServices()
		g.mu.Unlock()

		if g.cb != nil {
			g.cb.OnServicesDiscovered(g, ble.GattSuccess)
		}
	}()
	return nil
}

func (g *gattClient) Services() []ble.GattService {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ble.GattService(nil), g.services...)
}

func (g *gattClient) WriteCharacteristic(ch *ble.GattCharacteristic, value []byte) error {
	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return errNotConnected
	}
	g.mu.Unlock()

	payload := append([]byte(nil), value...)
	go func() {
		time.Sleep(g.device.target.writeDelayValue())

		g.mu.Lock()
		if !g.connected {
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()

		status := g.device.target.handleWrite(ch.UUID, payload)
		if g.cb != nil {
			g.cb.OnCharacteristicWrite(g, ch, status)
		}
	}()
	return nil
}

func (g *gattClient) Disconnect() {
	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return
	}
	g.connected = false
	g.mu.Unlock()

	if g.cb != nil {
		go g.cb.OnConnectionStateChange(g, ble.GattSuccess, ble.StateDisconnected)
	}
}

// Close releases the client. Safe to call repeatedly; a connection
// attempt still in flight is abandoned without callbacks.
func (g *gattClient) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
