package beacon

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// CodeGenerator derives the rotating beacon code from a long-lived seed.
// The code changes daily so accumulated encounters cannot be linked to a
// stable identity, while a party holding the seed can reproduce any day's
// code.
type CodeGenerator struct {
	seed uint64
}

// NewCodeGenerator creates a generator for a 64-bit seed
func NewCodeGenerator(seed uint64) *CodeGenerator {
	return &CodeGenerator{seed: seed}
}

// CodeFor returns the beacon code for the day containing t
func (g *CodeGenerator) CodeFor(t time.Time) uint64 {
	day := t.UTC().Unix() / 86400
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], g.seed)
	binary.BigEndian.PutUint64(buf[8:16], uint64(day))
	sum := sha256.Sum256(buf[:])
	return binary.BigEndian.Uint64(sum[0:8])
}

// Code returns today's beacon code
func (g *CodeGenerator) Code() uint64 {
	return g.CodeFor(time.Now())
}
