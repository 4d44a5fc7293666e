package beacon

import (
	"encoding/binary"
	"fmt"
)

// PeerIdentityLen is the size of the identity payload written to a peer's
// beacon characteristic: 8 bytes little-endian beacon code followed by a
// 4 byte little-endian signed RSSI in dBm.
const PeerIdentityLen = 12

// PeerIdentity is the payload a device writes to a peer when it cannot
// itself be discovered, so the peer can record the encounter too.
type PeerIdentity struct {
	BeaconCode uint64
	Rssi       int
}

// EncodePeerIdentity serializes an identity payload
func EncodePeerIdentity(beaconCode uint64, rssi int) []byte {
	buf := make([]byte, PeerIdentityLen)
	binary.LittleEndian.PutUint64(buf[0:8], beaconCode)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(int32(rssi)))
	return buf
}

// DecodePeerIdentity parses an identity payload
func DecodePeerIdentity(data []byte) (PeerIdentity, error) {
	if len(data) != PeerIdentityLen {
		return PeerIdentity{}, fmt.Errorf("peer identity payload must be %d bytes, got %d", PeerIdentityLen, len(data))
	}
	return PeerIdentity{
		BeaconCode: binary.LittleEndian.Uint64(data[0:8]),
		Rssi:       int(int32(binary.LittleEndian.Uint32(data[8:12]))),
	}, nil
}
