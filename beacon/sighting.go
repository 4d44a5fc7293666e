package beacon

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/user/proximity-blue/ble"
)

// Sighting is one raw radio observation collected during a scan phase.
// Immutable once created; discarded after classification.
type Sighting struct {
	Device                ble.Device
	Rssi                  int
	ServiceUUIDs          []uuid.UUID
	HasManufacturerMarker bool
	ObservedAt            time.Time
}

// Category describes how confidently a peer's service identity is known
// before connecting. Native peers advertise the detection service openly,
// marked foreground peers advertise it alongside the vendor marker, and
// marked background peers carry only the marker and need a full connection
// to resolve.
type Category int

const (
	CategoryNativePeer Category = iota
	CategoryMarkedForeground
	CategoryMarkedBackground
)

func (c Category) String() string {
	switch c {
	case CategoryNativePeer:
		return "NATIVE_PEER"
	case CategoryMarkedForeground:
		return "MARKED_FOREGROUND"
	case CategoryMarkedBackground:
		return "MARKED_BACKGROUND"
	default:
		return "UNKNOWN"
	}
}

// ClassifiedSighting pairs a sighting with its category. Produced by
// Classify, consumed once by the code exchange.
type ClassifiedSighting struct {
	Category Category
	Sighting Sighting
}

// Classify partitions and orders sightings for processing. Native peers
// come first, then marked foreground, then marked background, each sorted
// by descending signal strength, with at most one entry per peer handle
// (the first, highest-priority occurrence wins).
//
// Cheapest candidates are attempted first: native and foreground peers
// expose the detection service before connecting, background peers only
// resolve through a full connection.
func Classify(sightings []Sighting, serviceID uint64) []ClassifiedSighting {
	var native, foreground, background []Sighting

	for _, s := range sightings {
		advertisesService := advertisesDetectionService(s.ServiceUUIDs, serviceID)
		switch {
		case !s.HasManufacturerMarker && advertisesService:
			native = append(native, s)
		case s.HasManufacturerMarker && advertisesService:
			foreground = append(foreground, s)
		default:
			// Marker without the service (masked background
			// advertisement), or no service identity at all. Either
			// way identity is only resolvable by connecting.
			background = append(background, s)
		}
	}

	byStrongestSignal(native)
	byStrongestSignal(foreground)
	byStrongestSignal(background)

	ordered := make([]ClassifiedSighting, 0, len(sightings))
	seen := make(map[string]bool, len(sightings))

	appendUnique := func(category Category, group []Sighting) {
		for _, s := range group {
			handle := s.Device.Address()
			if seen[handle] {
				continue
			}
			seen[handle] = true
			ordered = append(ordered, ClassifiedSighting{Category: category, Sighting: s})
		}
	}

	appendUnique(CategoryNativePeer, native)
	appendUnique(CategoryMarkedForeground, foreground)
	appendUnique(CategoryMarkedBackground, background)

	return ordered
}

func advertisesDetectionService(serviceUUIDs []uuid.UUID, serviceID uint64) bool {
	for _, u := range serviceUUIDs {
		if ble.MostSignificantBits(u) == serviceID {
			return true
		}
	}
	return false
}

func byStrongestSignal(group []Sighting) {
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].Rssi > group[j].Rssi
	})
}
