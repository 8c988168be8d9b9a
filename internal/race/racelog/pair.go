package racelog

import (
	"fmt"

	"github.com/kolkov/hybridrace/internal/race/access"
)

// RacePair is an unordered pair of racing program points.
//
// It is stored normalized (Lo <= Hi), so NewRacePair(a, b) == NewRacePair(b, a)
// and the struct can be used directly as a map or set key.
type RacePair struct {
	Lo access.ProgramPoint
	Hi access.ProgramPoint
}

// NewRacePair returns the pair {a, b}.
func NewRacePair(a, b access.ProgramPoint) RacePair {
	if b < a {
		a, b = b, a
	}
	return RacePair{Lo: a, Hi: b}
}

// Contains reports whether p is one of the pair's points.
func (rp RacePair) Contains(p access.ProgramPoint) bool {
	return rp.Lo == p || rp.Hi == p
}

// String renders the pair as "{10, 20}".
func (rp RacePair) String() string {
	return fmt.Sprintf("{%d, %d}", rp.Lo, rp.Hi)
}

// key packs the pair into 64 bits for stores that need a flat key.
func (rp RacePair) key() uint64 {
	return uint64(rp.Lo)<<32 | uint64(rp.Hi)
}

func pairFromKey(k uint64) RacePair {
	//nolint:gosec // G115: both halves are 32-bit program points.
	return NewRacePair(access.ProgramPoint(k>>32), access.ProgramPoint(k&0xFFFFFFFF))
}
