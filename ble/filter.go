package ble

import (
	"github.com/google/uuid"
)

// ScanFilter matches advertisements by manufacturer data or by masked
// service UUID, mirroring the two filter shapes the proximity engine
// installs: a vendor filter with empty data and mask (any payload from
// that vendor) and a service filter with the upper 64 bits fixed and the
// lower 64 bits wildcarded.
type ScanFilter struct {
	matchManufacturer bool
	manufacturerID    uint16
	manufacturerData  []byte
	manufacturerMask  []byte

	matchService bool
	serviceUUID  uuid.UUID
	serviceMask  uuid.UUID
}

// NewManufacturerDataFilter builds a filter matching manufacturer specific
// data for a company id. An empty data and mask matches any payload from
// that vendor.
func NewManufacturerDataFilter(companyID uint16, data, mask []byte) ScanFilter {
	return ScanFilter{
		matchManufacturer: true,
		manufacturerID:    companyID,
		manufacturerData:  data,
		manufacturerMask:  mask,
	}
}

// NewServiceUUIDFilter builds a filter matching any advertised service
// UUID u where (u AND mask) == (service AND mask).
func NewServiceUUIDFilter(service, mask uuid.UUID) ScanFilter {
	return ScanFilter{
		matchService: true,
		serviceUUID:  service,
		serviceMask:  mask,
	}
}

// Matches reports whether a scan record passes this filter
func (f ScanFilter) Matches(rec *ScanRecord) bool {
	if rec == nil {
		return false
	}
	if f.matchManufacturer {
		data, ok := rec.ManufacturerData[f.manufacturerID]
		if !ok {
			return false
		}
		if !maskedEqual(data, f.manufacturerData, f.manufacturerMask) {
			return false
		}
	}
	if f.matchService {
		found := false
		for _, u := range rec.ServiceUUIDs {
			if maskedUUIDEqual(u, f.serviceUUID, f.serviceMask) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return f.matchManufacturer || f.matchService
}

// MatchesAny reports whether a record passes at least one filter. An empty
// filter list matches everything, as an unfiltered scan would.
func MatchesAny(filters []ScanFilter, rec *ScanRecord) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(rec) {
			return true
		}
	}
	return false
}

func maskedEqual(data, want, mask []byte) bool {
	// Empty pattern matches any payload
	if len(want) == 0 {
		return true
	}
	if len(data) < len(want) {
		return false
	}
	for i := range want {
		m := byte(0xFF)
		if i < len(mask) {
			m = mask[i]
		}
		if data[i]&m != want[i]&m {
			return false
		}
	}
	return true
}

func maskedUUIDEqual(u, want, mask uuid.UUID) bool {
	for i := 0; i < len(u); i++ {
		if u[i]&mask[i] != want[i]&mask[i] {
			return false
		}
	}
	return true
}
