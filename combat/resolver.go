package combat

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// JitterRange bounds the damage variation applied to a hit, inclusive on both sides.
const JitterRange = 5

// RandomSource supplies the draws used to resolve a move.
// Implementations must be safe for concurrent use.
type RandomSource interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// Outcome is the result of one move attempt.
type Outcome struct {
	Roll   float64 `json:"roll"` // in [0,100)
	Hit    bool    `json:"hit"`
	Jitter int     `json:"jitter"`
	Damage int     `json:"damage"`
}

// Resolve computes hit/miss and damage for a move. It has no side effects
// beyond consuming draws from src.
func Resolve(move Move, src RandomSource) Outcome {
	roll := src.Float64() * 100
	out := Outcome{Roll: roll, Hit: roll <= float64(move.Accuracy)}
	if !out.Hit {
		return out
	}

	out.Jitter = src.IntN(2*JitterRange+1) - JitterRange
	out.Damage = move.Damage + out.Jitter
	if out.Damage < 0 {
		out.Damage = 0
	}
	return out
}

// Describe renders the battle log line for an outcome.
func Describe(attacker string, move Move, out Outcome) string {
	if out.Hit {
		return fmt.Sprintf("%s used %s and dealt %d damage!", attacker, move.Name, out.Damage)
	}
	return fmt.Sprintf("%s used %s but missed!", attacker, move.Name)
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }
func (globalSource) IntN(n int) int   { return rand.IntN(n) }

// DefaultSource draws from the runtime-seeded global generator.
func DefaultSource() RandomSource { return globalSource{} }

// SeededSource is a deterministic, mutex-guarded source.
type SeededSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeededSource returns a reproducible source for tests and replays.
func NewSeededSource(seed uint64) *SeededSource {
	return &SeededSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *SeededSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *SeededSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}
