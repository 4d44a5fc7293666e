package ble

import (
	"testing"

	"github.com/google/uuid"
)

// TestManufacturerDataFilter_AnyPayload tests that an empty data and mask
// match any payload from the vendor
func TestManufacturerDataFilter_AnyPayload(t *testing.T) {
	f := NewManufacturerDataFilter(0x004C, nil, nil)

	rec := &ScanRecord{ManufacturerData: map[uint16][]byte{0x004C: {0x10, 0x06, 0xFF}}}
	if !f.Matches(rec) {
		t.Error("Filter should match any payload from the vendor")
	}

	other := &ScanRecord{ManufacturerData: map[uint16][]byte{0x0075: {0x01}}}
	if f.Matches(other) {
		t.Error("Filter should not match a different vendor")
	}

	empty := &ScanRecord{}
	if f.Matches(empty) {
		t.Error("Filter should not match a record without manufacturer data")
	}

	t.Logf("✅ Vendor filter matches any payload from the configured vendor")
}

// TestManufacturerDataFilter_MaskedPayload tests byte-masked payload
// matching
func TestManufacturerDataFilter_MaskedPayload(t *testing.T) {
	f := NewManufacturerDataFilter(0x004C, []byte{0x10, 0x00}, []byte{0xFF, 0x00})

	match := &ScanRecord{ManufacturerData: map[uint16][]byte{0x004C: {0x10, 0x42}}}
	if !f.Matches(match) {
		t.Error("Masked payload should match when masked bytes agree")
	}

	mismatch := &ScanRecord{ManufacturerData: map[uint16][]byte{0x004C: {0x20, 0x42}}}
	if f.Matches(mismatch) {
		t.Error("Masked payload should not match when masked bytes differ")
	}

	t.Logf("✅ Vendor filter honors the payload mask")
}

// TestServiceUUIDFilter_Upper64Wildcard tests the detection service filter
// shape: top 64 bits fixed, bottom 64 bits wildcarded
func TestServiceUUIDFilter_Upper64Wildcard(t *testing.T) {
	serviceID := uint64(0x64AFC19ED2C53749)
	f := NewServiceUUIDFilter(
		UUIDFromBits(serviceID, 0),
		UUIDFromBits(^uint64(0), 0),
	)

	withCode := &ScanRecord{ServiceUUIDs: []uuid.UUID{UUIDFromBits(serviceID, 0xDEADBEEF)}}
	if !f.Matches(withCode) {
		t.Error("Filter should match any beacon code under the service id")
	}

	otherService := &ScanRecord{ServiceUUIDs: []uuid.UUID{UUIDFromBits(0x1111111111111111, 0xDEADBEEF)}}
	if f.Matches(otherService) {
		t.Error("Filter should not match a different service id")
	}

	t.Logf("✅ Service filter wildcards the lower 64 bits")
}

// TestMatchesAny tests filter list semantics
func TestMatchesAny(t *testing.T) {
	rec := &ScanRecord{ManufacturerData: map[uint16][]byte{0x004C: {}}}

	if !MatchesAny(nil, rec) {
		t.Error("Empty filter list should match everything")
	}

	filters := []ScanFilter{
		NewManufacturerDataFilter(0x004C, nil, nil),
		NewServiceUUIDFilter(UUIDFromBits(1, 0), UUIDFromBits(^uint64(0), 0)),
	}
	if !MatchesAny(filters, rec) {
		t.Error("Record should pass via the vendor filter")
	}

	bare := &ScanRecord{}
	if MatchesAny(filters, bare) {
		t.Error("Record matching no filter should not pass")
	}

	t.Logf("✅ MatchesAny applies OR semantics over the filter list")
}
