package ble

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// UUIDFromBits assembles a 128-bit UUID from its most significant and
// least significant 64-bit halves, matching the layout of Java's
// UUID(long, long) constructor that BLE characteristic identifiers use.
func UUIDFromBits(msb, lsb uint64) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[0:8], msb)
	binary.BigEndian.PutUint64(u[8:16], lsb)
	return u
}

// MostSignificantBits returns the upper 64 bits of a 128-bit UUID
func MostSignificantBits(u uuid.UUID) uint64 {
	return binary.BigEndian.Uint64(u[0:8])
}

// LeastSignificantBits returns the lower 64 bits of a 128-bit UUID
func LeastSignificantBits(u uuid.UUID) uint64 {
	return binary.BigEndian.Uint64(u[8:16])
}
