package state

import (
	"math/rand/v2"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

// ProcessRandom hands out one seed per process so that fuzzed intervals stay
// stable across evaluations until the daemon restarts.
type ProcessRandom struct {
	seed variable.Variable[uint64]
}

var _ RandomProvider = (*ProcessRandom)(nil)

func NewProcessRandom() *ProcessRandom {
	return &ProcessRandom{seed: variable.NewConst("seed", rand.Uint64())}
}

func (r *ProcessRandom) Seed() variable.Variable[uint64] { return r.seed }
