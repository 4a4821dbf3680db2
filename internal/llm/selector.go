package llm

import (
	"math/rand/v2"
	"sync"
)

// RNG yields uniform values in [0, 1).
type RNG interface {
	Float64() float64
}

// globalRNG draws from math/rand/v2's goroutine-safe top-level source.
type globalRNG struct{}

func (globalRNG) Float64() float64 { return rand.Float64() }

// NewSeededRNG returns a deterministic RNG for reproducible selection.
func NewSeededRNG(seed uint64) RNG {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Selector picks a provider by weighted random draw. It distributes load
// by configured weight, not by observed latency or error rate.
type Selector struct {
	registry *Registry
	rng      RNG
	mu       sync.Mutex
}

// NewSelector creates a selector over registry. A nil rng uses the
// process-wide random source.
func NewSelector(registry *Registry, rng RNG) *Selector {
	if rng == nil {
		rng = globalRNG{}
	}
	return &Selector{registry: registry, rng: rng}
}

// Select returns a provider supporting capability, or the registry's
// default provider id when none does. It never fails.
func (s *Selector) Select(capability Capability) string {
	id, ok := s.SelectExcluding(capability, nil)
	if !ok {
		return s.registry.DefaultID()
	}
	return id
}

// SelectExcluding draws among capable providers not in exclude. It reports
// false when no candidate remains.
func (s *Selector) SelectExcluding(capability Capability, exclude map[string]bool) (string, bool) {
	var candidates []ProviderConfig
	for _, p := range s.registry.Capable(capability) {
		if !exclude[p.ID] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	return s.draw(candidates).ID, true
}

// draw walks candidates subtracting weights from r in [0, total) and
// returns the first provider that makes r non-positive.
func (s *Selector) draw(candidates []ProviderConfig) ProviderConfig {
	var weighted []ProviderConfig
	total := 0.0
	for _, p := range candidates {
		if p.Weight > 0 {
			weighted = append(weighted, p)
			total += p.Weight
		}
	}
	if total == 0 {
		return candidates[0]
	}

	s.mu.Lock()
	r := s.rng.Float64() * total
	s.mu.Unlock()

	for _, p := range weighted {
		r -= p.Weight
		if r <= 0 {
			return p
		}
	}

	// Floating point residue; r started below total.
	return weighted[len(weighted)-1]
}
