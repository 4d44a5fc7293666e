// Package ble defines the radio abstraction the proximity engine runs on:
// Android-flavored adapter, scanner, and GATT client interfaces, plus the
// scan filter and advertising payload formats the engine depends on.
package ble

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRadioUnavailable is returned when the radio hardware is absent or
// disabled. It is fatal to starting a scan and is never retried by the
// caller automatically.
var ErrRadioUnavailable = errors.New("ble: radio unavailable")

// Connection states reported through GattCallback.OnConnectionStateChange
const (
	StateDisconnected = 0
	StateConnected    = 2
)

// GATT operation status codes
const (
	GattSuccess = 0
	GattFailure = 0x101
)

// Scan failure codes reported through ScanCallback.OnScanFailed
const (
	ScanFailedAlreadyStarted     = 1
	ScanFailedRegistration       = 2
	ScanFailedInternalError      = 3
	ScanFailedFeatureUnsupported = 4
	ScanFailedRadioDisabled      = 5
)

// Scan modes for ScanSettings
const (
	ScanModeLowPower   = 0
	ScanModeBalanced   = 1
	ScanModeLowLatency = 2
)

// ScanSettings configures how aggressively the radio scans
type ScanSettings struct {
	ScanMode    int
	ReportDelay time.Duration
}

// ScanRecord is the parsed advertisement payload attached to a scan result
type ScanRecord struct {
	LocalName        string
	ServiceUUIDs     []uuid.UUID
	ManufacturerData map[uint16][]byte
	TxPowerLevel     *int
}

// HasManufacturerData reports whether the record carries manufacturer
// specific data for the given company id
func (r *ScanRecord) HasManufacturerData(companyID uint16) bool {
	if r == nil {
		return false
	}
	_, ok := r.ManufacturerData[companyID]
	return ok
}

// ScanResult is one raw radio observation of a nearby device
type ScanResult struct {
	Device Device
	Rssi   int
	Record *ScanRecord
}

// ScanCallback receives scan results and failures on the radio event
// goroutine. Implementations must not block.
type ScanCallback interface {
	OnScanResult(result ScanResult)
	OnScanFailed(errorCode int)
}

// Adapter is the local radio. LeScanner returns nil when the hardware has
// no scanning capability.
type Adapter interface {
	IsEnabled() bool
	LeScanner() LeScanner
	CancelDiscovery()
}

// LeScanner issues filtered low energy scans. StartScan returns
// ErrRadioUnavailable when the radio is disabled. StopScan may fail when
// the radio was switched off while scanning; callers log and move on.
type LeScanner interface {
	StartScan(filters []ScanFilter, settings ScanSettings, cb ScanCallback) error
	StopScan(cb ScanCallback) error
}

// Device is a remote peer seen during a scan. ConnectGatt starts an
// asynchronous connection attempt; all progress is reported through the
// callback.
type Device interface {
	Address() string
	ConnectGatt(cb GattCallback) Gatt
}

// GattService groups the characteristics a remote device exposes
type GattService struct {
	UUID            uuid.UUID
	Characteristics []GattCharacteristic
}

// GattCharacteristic is one attribute of a remote GATT service
type GattCharacteristic struct {
	UUID  uuid.UUID
	Value []byte
}

// GattCallback receives connection lifecycle, discovery, and write events.
// Callbacks run on the radio event goroutine.
type GattCallback interface {
	OnConnectionStateChange(g Gatt, status, newState int)
	OnServicesDiscovered(g Gatt, status int)
	OnCharacteristicWrite(g Gatt, ch *GattCharacteristic, status int)
}

// Gatt is one client connection to a remote device. Close releases the
// underlying handle; implementations tolerate repeated Close calls.
type Gatt interface {
	Device() Device
	DiscoverServices() error
	Services() []GattService
	WriteCharacteristic(ch *GattCharacteristic, value []byte) error
	Disconnect()
	Close()
}
