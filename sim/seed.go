package sim

import (
	"encoding/binary"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// walkerRNG returns the generator for one walker in one run. Deriving it from
// (seed, run, name) keeps results independent of scheduling order.
func walkerRNG(seed uint64, run int, name string) *rand.Rand {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], seed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(run))

	d := xxhash.New()
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(name)
	hi := d.Sum64()
	lo := xxhash.Sum64String(name) ^ seed
	return rand.New(rand.NewPCG(hi, lo))
}
