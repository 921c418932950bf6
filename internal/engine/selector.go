package engine

import (
	"math/rand/v2"
	"sync"

	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

// selector picks one entry from a pool. Sequential pools rotate through a
// cursor kept here per pool key, so the pack itself stays read-only.
type selector struct {
	mu      sync.Mutex
	rng     *rand.Rand
	cursors map[string]int
}

func newSelector(rng *rand.Rand) *selector {
	return &selector{rng: rng, cursors: make(map[string]int)}
}

func (s *selector) pick(key string, pool soundpack.Pool) (soundpack.Entry, bool) {
	enabled := pool.Enabled()
	if len(enabled) == 0 {
		return soundpack.Entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch pool.Selection {
	case soundpack.SelectSequential:
		i := s.cursors[key] % len(enabled)
		s.cursors[key] = (i + 1) % len(enabled)
		return enabled[i], true
	case soundpack.SelectWeighted:
		var total float64
		for _, e := range enabled {
			total += e.EffectiveWeight()
		}
		if total <= 0 {
			return enabled[0], true
		}
		target := s.rng.Float64() * total
		for _, e := range enabled {
			target -= e.EffectiveWeight()
			if target <= 0 {
				return e, true
			}
		}
		return enabled[len(enabled)-1], true
	default:
		return enabled[s.rng.IntN(len(enabled))], true
	}
}
