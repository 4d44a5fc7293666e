// Package simble is an in-memory simulated BLE radio implementing the ble
// package interfaces: a hub of devices that advertise, scan, connect, and
// exchange GATT operations with configurable latency. It exists so the
// proximity engine and its tests can run without radio hardware.
package simble

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRSSI is the signal strength reported between two devices unless
// a pair-specific value is set
const DefaultRSSI = -55

// Hub connects simulated devices. Every registered device sees every
// other device's advertisement.
type Hub struct {
	mu           sync.RWMutex
	devices      map[string]*Device
	order        []string
	scanInterval time.Duration
	rssi         map[string]int
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		devices:      make(map[string]*Device),
		scanInterval: 20 * time.Millisecond,
		rssi:         make(map[string]int),
	}
}

// SetScanInterval controls how often active scans poll for advertisements
func (h *Hub) SetScanInterval(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scanInterval = d
}

// AddDevice registers a new simulated device with a generated address
func (h *Hub) AddDevice(name string) *Device {
	d := newDevice(h, uuid.NewString(), name)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices[d.address] = d
	h.order = append(h.order, d.address)
	return d
}

// SetRSSI fixes the signal strength the scanner at 'from' observes for
// advertisements from 'to'
func (h *Hub) SetRSSI(from, to *Device, rssi int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rssi[pairKey(from.address, to.address)] = rssi
}

func (h *Hub) rssiBetween(from, to string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if rssi, ok := h.rssi[pairKey(from, to)]; ok {
		return rssi
	}
	return DefaultRSSI
}

func (h *Hub) scanIntervalValue() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scanInterval
}

// others returns every device except addr, in registration order
func (h *Hub) others(addr string) []*Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]*Device, 0, len(h.order))
	for _, a := range h.order {
		if a == addr {
			continue
		}
		result = append(result, h.devices[a])
	}
	return result
}

func pairKey(from, to string) string {
	return fmt.Sprintf("%s|%s", from, to)
}
