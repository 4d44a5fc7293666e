package beacon

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/user/proximity-blue/ble"
	"github.com/user/proximity-blue/logger"
)

const (
	// ManufacturerIDApple is the company identifier carried by masked
	// background advertisements. The vendor filter matches any payload
	// from this vendor.
	ManufacturerIDApple uint16 = 0x004C

	// DefaultServiceID is the upper 64 bits of the detection service
	// UUID. Characteristic identifiers embed the peer's beacon code in
	// the lower 64 bits.
	DefaultServiceID uint64 = 0x64AFC19ED2C53749

	// DefaultConnectionTimeout bounds one code exchange attempt
	DefaultConnectionTimeout = 20 * time.Second

	// Default scan duty cycle
	DefaultOnDuration  = 15 * time.Second
	DefaultOffDuration = 45 * time.Second
)

// Receiver is the proximity detection engine. It alternates scanning on
// and off per the configured duty cycle, collects raw sightings while
// scanning, and classifies and resolves them into detection events when
// scanning turns off. Events reach listeners registered on the embedded
// Broadcaster.
type Receiver struct {
	*Broadcaster

	adapter     ble.Adapter
	scanner     ble.LeScanner
	transmitter Transmitter
	serviceID   uint64
	logPrefix   string

	queue    sightingQueue
	timer    *FlipFlopTimer
	exchange *codeExchange

	started atomic.Bool

	// scanCB is non-nil while a scan is active. Written by the scheduler
	// goroutine, read concurrently by scan failure callbacks.
	scanMu sync.Mutex
	scanCB *scanCollector
}

// NewReceiver creates a stopped receiver on the given radio. transmitter
// describes the local device's advertising side; it decides whether the
// code exchange reports our identity to resolved peers.
func NewReceiver(adapter ble.Adapter, transmitter Transmitter) *Receiver {
	r := &Receiver{
		Broadcaster: NewBroadcaster(),
		adapter:     adapter,
		transmitter: transmitter,
		serviceID:   DefaultServiceID,
		logPrefix:   "Receiver",
	}
	if adapter != nil {
		r.scanner = adapter.LeScanner()
	}
	if r.scanner == nil {
		logger.Warn(r.logPrefix, "Low energy scanner unsupported")
	}
	r.exchange = &codeExchange{
		serviceID:   r.serviceID,
		transmitter: transmitter,
		broadcaster: r.Broadcaster,
		timeout:     DefaultConnectionTimeout,
		logPrefix:   r.logPrefix,
	}
	r.timer = NewFlipFlopTimer(DefaultOnDuration, DefaultOffDuration, r.startScan, r.stopScan)
	return r
}

// SetLogPrefix labels this receiver's log output, typically with the
// device name. Call before Start.
func (r *Receiver) SetLogPrefix(prefix string) {
	r.logPrefix = prefix
	r.exchange.logPrefix = prefix
}

// SetServiceID overrides the detection service id. Call before Start.
func (r *Receiver) SetServiceID(serviceID uint64) {
	r.serviceID = serviceID
	r.exchange.serviceID = serviceID
}

// SetConnectionTimeout overrides the per-exchange deadline. Call before
// Start.
func (r *Receiver) SetConnectionTimeout(d time.Duration) {
	r.exchange.timeout = d
}

// SetDutyCycle updates the scan on/off durations, effective from the next
// phase boundary.
func (r *Receiver) SetDutyCycle(onMs, offMs uint32) {
	logger.Debug(r.logPrefix, "Set duty cycle (on=%dms,off=%dms)", onMs, offMs)
	r.timer.SetOnDuration(time.Duration(onMs) * time.Millisecond)
	r.timer.SetOffDuration(time.Duration(offMs) * time.Millisecond)
}

// IsSupported reports whether the radio exists and can scan
func (r *Receiver) IsSupported() bool {
	return r.adapter != nil && r.scanner != nil
}

// IsStarted reports whether the receiver considers itself running. A scan
// failure other than "already started" clears this flag even though the
// duty cycle keeps alternating.
func (r *Receiver) IsStarted() bool {
	return r.started.Load()
}

// Start begins the scan duty cycle. Fails with ble.ErrRadioUnavailable
// when the radio is absent or disabled; this is not retried automatically.
func (r *Receiver) Start() error {
	if r.started.Load() {
		logger.Warn(r.logPrefix, "Receiver already started")
		return nil
	}
	if !r.IsSupported() || !r.adapter.IsEnabled() {
		logger.Warn(r.logPrefix, "Receiver start failed (supported=%v)", r.IsSupported())
		return ble.ErrRadioUnavailable
	}
	r.started.Store(true)
	r.timer.Start()
	r.Broadcast(func(l Listener) { l.Start() })
	logger.Debug(r.logPrefix, "Receiver started")
	return nil
}

// Stop halts the duty cycle. Scanning is off when Stop returns; an
// in-flight exchange is never interrupted, only new scan phases are
// prevented.
func (r *Receiver) Stop() {
	if !r.timer.IsStarted() {
		logger.Warn(r.logPrefix, "Receiver already stopped")
		return
	}
	r.started.Store(false)
	r.timer.Stop()
	r.Broadcast(func(l Listener) { l.Stop() })
	logger.Debug(r.logPrefix, "Receiver stopped")
}

// startScan runs at every on-phase boundary. A disabled radio surfaces a
// start failure but leaves the duty cycle running, so scanning resumes on
// its own once the radio is back.
func (r *Receiver) startScan() {
	if r.scanner == nil {
		return
	}
	if !r.adapter.IsEnabled() {
		logger.Warn(r.logPrefix, "Scan not started, radio disabled")
		r.Broadcast(func(l Listener) { l.StartFailed(ble.ScanFailedRadioDisabled) })
		return
	}

	filters := []ble.ScanFilter{
		ble.NewManufacturerDataFilter(ManufacturerIDApple, nil, nil),
		ble.NewServiceUUIDFilter(
			ble.UUIDFromBits(r.serviceID, 0),
			ble.UUIDFromBits(^uint64(0), 0),
		),
	}
	settings := ble.ScanSettings{ScanMode: ble.ScanModeLowPower}

	cb := &scanCollector{receiver: r}
	if err := r.scanner.StartScan(filters, settings, cb); err != nil {
		logger.Warn(r.logPrefix, "Scan start failed (err=%v)", err)
		r.started.Store(false)
		r.Broadcast(func(l Listener) { l.StartFailed(ble.ScanFailedInternalError) })
		return
	}

	r.scanMu.Lock()
	r.scanCB = cb
	r.scanMu.Unlock()
	logger.Debug(r.logPrefix, "Scan started")
}

// stopScan runs at every off-phase boundary and processes everything the
// preceding on-phase collected before the next phase is scheduled.
func (r *Receiver) stopScan() {
	r.scanMu.Lock()
	cb := r.scanCB
	r.scanCB = nil
	r.scanMu.Unlock()
	if cb == nil {
		return
	}

	if err := r.scanner.StopScan(cb); err != nil {
		// Radio switched off mid-scan; logged, not escalated
		if r.adapter.IsEnabled() {
			logger.Warn(r.logPrefix, "Failed to stop scanner with radio enabled (err=%v)", err)
		} else {
			logger.Info(r.logPrefix, "Failed to stop scanner, radio already off (err=%v)", err)
		}
	} else {
		logger.Debug(r.logPrefix, "Scan stopped")
	}
	r.adapter.CancelDiscovery()

	r.processSightings()
}

func (r *Receiver) processSightings() {
	sightings := r.queue.Drain()
	if len(sightings) == 0 {
		return
	}
	candidates := Classify(sightings, r.serviceID)
	logger.Debug(r.logPrefix, "Processing scan phase (sightings=%d,candidates=%d)",
		len(sightings), len(candidates))

	// One peer connection at a time; the radio does not tolerate
	// parallel connection attempts well.
	for _, cs := range candidates {
		r.exchange.resolve(cs)
	}
}

// scanCollector appends every matching advertisement to the shared
// sighting queue without blocking the radio event goroutine.
type scanCollector struct {
	receiver *Receiver
}

func (c *scanCollector) OnScanResult(result ble.ScanResult) {
	r := c.receiver
	var serviceUUIDs []uuid.UUID
	marker := false
	if result.Record != nil {
		serviceUUIDs = result.Record.ServiceUUIDs
		marker = result.Record.HasManufacturerData(ManufacturerIDApple)
	}
	logger.Trace(r.logPrefix, "Scan result (peer=%s,rssi=%d,marker=%v)",
		result.Device.Address(), result.Rssi, marker)

	r.queue.Append(Sighting{
		Device:                result.Device,
		Rssi:                  result.Rssi,
		ServiceUUIDs:          serviceUUIDs,
		HasManufacturerMarker: marker,
		ObservedAt:            time.Now(),
	})
}

func (c *scanCollector) OnScanFailed(errorCode int) {
	r := c.receiver
	logger.Warn(r.logPrefix, "Scan failed (error=%s)", ble.ScanFailureName(errorCode))
	if errorCode != ble.ScanFailedAlreadyStarted {
		r.started.Store(false)
	}
	r.Broadcast(func(l Listener) { l.StartFailed(errorCode) })
}
