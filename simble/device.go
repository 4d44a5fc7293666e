package simble

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/proximity-blue/ble"
	"github.com/user/proximity-blue/logger"
)

// Device is one simulated radio. It implements ble.Adapter and
// ble.LeScanner for the local side, and is the target other devices
// connect to.
type Device struct {
	hub     *Hub
	address string
	name    string

	mu            sync.Mutex
	enabled       bool
	scanSupported bool
	connectable   bool
	advData       *ble.AdvertisingData
	advPayload    []byte
	services      []ble.GattService
	writeHandlers map[uuid.UUID]func(value []byte) int
	connectDelay  time.Duration
	discoverDelay time.Duration
	writeDelay    time.Duration
	scans         map[*scanJob]struct{}
}

func newDevice(hub *Hub, address, name string) *Device {
	return &Device{
		hub:           hub,
		address:       address,
		name:          name,
		enabled:       true,
		scanSupported: true,
		connectable:   true,
		writeHandlers: make(map[uuid.UUID]func([]byte) int),
		scans:         make(map[*scanJob]struct{}),
	}
}

// Address returns the device's stable radio handle
func (d *Device) Address() string { return d.address }

// Name returns the device's display name
func (d *Device) Name() string { return d.name }

// IsEnabled reports whether the radio is switched on
func (d *Device) IsEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// SetEnabled switches the radio on or off. Switching off fails all active
// scans with a scan failure callback, mimicking a radio disabled mid-scan.
func (d *Device) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	var failed []*scanJob
	if !enabled {
		for job := range d.scans {
			failed = append(failed, job)
		}
		d.scans = make(map[*scanJob]struct{})
	}
	d.mu.Unlock()

	for _, job := range failed {
		job.halt()
		go job.cb.OnScanFailed(ble.ScanFailedInternalError)
	}
}

// SetScanSupported controls whether LeScanner returns a scanner at all
func (d *Device) SetScanSupported(supported bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scanSupported = supported
}

// SetConnectable controls whether connection attempts to this device
// succeed
func (d *Device) SetConnectable(connectable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectable = connectable
}

// SetConnectDelay configures how long connection attempts take
func (d *Device) SetConnectDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectDelay = delay
}

// SetDiscoverDelay configures how long service discovery takes
func (d *Device) SetDiscoverDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discoverDelay = delay
}

// SetWriteDelay configures how long characteristic writes take
func (d *Device) SetWriteDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeDelay = delay
}

// LeScanner implements ble.Adapter. Returns nil when scanning is
// unsupported on this device.
func (d *Device) LeScanner() ble.LeScanner {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.scanSupported {
		return nil
	}
	return d
}

// CancelDiscovery implements ble.Adapter
func (d *Device) CancelDiscovery() {
	logger.Trace(d.name, "Cancel discovery")
}

// Advertise publishes advertising data for other devices to observe. The
// payload is encoded and decoded through the real AD structure codec, so
// it is subject to the 31-byte advertising limit.
func (d *Device) Advertise(data *ble.AdvertisingData) error {
	payload, err := data.Encode()
	if err != nil {
		return fmt.Errorf("simble: encode advertisement: %w", err)
	}
	decoded, err := ble.DecodeAdvertisingData(payload)
	if err != nil {
		return fmt.Errorf("simble: decode advertisement: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advPayload = payload
	d.advData = decoded
	return nil
}

// StopAdvertising withdraws the device's advertisement
func (d *Device) StopAdvertising() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advPayload = nil
	d.advData = nil
}

// SetGattTable installs the services this device exposes to connected
// peers
func (d *Device) SetGattTable(services []ble.GattService) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.services = services
}

// SetWriteHandler installs a handler for writes to one characteristic.
// The handler returns a GATT status code.
func (d *Device) SetWriteHandler(char uuid.UUID, handler func(value []byte) int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeHandlers[char] = handler
}

// StartScan implements ble.LeScanner. Matching advertisements are
// reported once per device per scan on the scan goroutine.
func (d *Device) StartScan(filters []ble.ScanFilter, settings ble.ScanSettings, cb ble.ScanCallback) error {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return ble.ErrRadioUnavailable
	}
	job := &scanJob{
		owner:    d,
		filters:  filters,
		cb:       cb,
		stop:     make(chan struct{}),
		reported: make(map[string]bool),
	}
	d.scans[job] = struct{}{}
	d.mu.Unlock()

	go job.run(d.hub.scanIntervalValue())
	return nil
}

// StopScan implements ble.LeScanner. Fails when the radio is already off;
// callers are expected to log and move on.
func (d *Device) StopScan(cb ble.ScanCallback) error {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return ble.ErrRadioUnavailable
	}
	var match *scanJob
	for job := range d.scans {
		if job.cb == cb {
			match = job
			break
		}
	}
	if match != nil {
		delete(d.scans, match)
	}
	d.mu.Unlock()

	if match != nil {
		match.halt()
	}
	return nil
}

func (d *Device) advertisement() *ble.AdvertisingData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.advData
}

func (d *Device) snapshotServices() []ble.GattService {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ble.GattService(nil), d.services...)
}

func (d *Device) connectParams() (enabled, connectable bool, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled, d.connectable, d.connectDelay
}

func (d *Device) discoverDelayValue() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discoverDelay
}

func (d *Device) writeDelayValue() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeDelay
}

// handleWrite dispatches a characteristic write on the target device.
// Without an installed handler the write lands in the GATT table value.
func (d *Device) handleWrite(char uuid.UUID, value []byte) int {
	d.mu.Lock()
	handler := d.writeHandlers[char]
	d.mu.Unlock()
	if handler != nil {
		return handler(value)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for si := range d.services {
		for ci := range d.services[si].Characteristics {
			if d.services[si].Characteristics[ci].UUID == char {
				d.services[si].Characteristics[ci].Value = append([]byte(nil), value...)
				return ble.GattSuccess
			}
		}
	}
	return ble.GattFailure
}

// scanJob is one active scan on a device
type scanJob struct {
	owner    *Device
	filters  []ble.ScanFilter
	cb       ble.ScanCallback
	stop     chan struct{}
	haltOnce sync.Once
	reported map[string]bool
}

func (j *scanJob) halt() {
	j.haltOnce.Do(func() { close(j.stop) })
}

func (j *scanJob) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			j.poll()
		}
	}
}

func (j *scanJob) poll() {
	for _, target := range j.owner.hub.others(j.owner.address) {
		adv := target.advertisement()
		if adv == nil || j.reported[target.address] {
			continue
		}
		record := adv.ToScanRecord()
		if !ble.MatchesAny(j.filters, record) {
			continue
		}
		j.reported[target.address] = true
		j.cb.OnScanResult(ble.ScanResult{
			Device: &remoteDevice{local: j.owner, target: target},
			Rssi:   j.owner.hub.rssiBetween(j.owner.address, target.address),
			Record: record,
		})
	}
}
