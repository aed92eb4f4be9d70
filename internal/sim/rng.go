package sim

import "math/rand"

// RNG is the simulator's only source of randomness: a single
// seed-derived stream, never the process-global generator (spec §9
// determinism hygiene forbids direct process RNG access). There is no
// ecosystem deterministic-PRNG library in the retrieved corpus and
// math/rand's seeded source algorithm is fully specified and
// stable across Go versions for a given seed, so reaching for a
// third-party PRNG here would add a dependency with no grounding and no
// benefit over the standard library's documented determinism guarantee.
type RNG struct {
	r *rand.Rand
}

// NewRNG derives a fresh deterministic stream from seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(int64(seed)))}
}

// Intn returns a deterministic value in [0, n).
func (g *RNG) Intn(n int) int { return g.r.Intn(n) }

// Float64 returns a deterministic value in [0, 1).
func (g *RNG) Float64() float64 { return g.r.Float64() }

// Chance reports true with probability p, consuming one draw regardless
// of outcome so two fault checks in sequence always consume the stream
// the same way.
func (g *RNG) Chance(p float64) bool { return g.r.Float64() < p }

// Shuffle deterministically permutes n items in place via swap.
func (g *RNG) Shuffle(n int, swap func(i, j int)) { g.r.Shuffle(n, swap) }

// Fork derives an independent child stream, used to give each simulated
// subsystem (network, disk, per-replica clock skew) its own stream
// without the draws from one perturbing another's sequence.
func (g *RNG) Fork() *RNG {
	return NewRNG(uint64(g.r.Int63()))
}
