// Package session implements spec.md §4.J: deciding the next map on
// map completion, resetting per-client per-map state, and the
// world_index=0 sync barrier that holds command execution until every
// in-game client has acknowledged the new snapshot. The rotation's
// random/shuffle modes use an injected *rand.Rand, the same pattern as
// the teacher's internal/lobby/roomcode.go CodeGenerator rather than
// calling the math/rand global functions directly.
package session

import (
	"math/rand"

	"github.com/eternitynet/server/internal/config"
)

// Rotation tracks progress through the configured map list.
type Rotation struct {
	maps    []config.MapEntrySpec
	mode    config.MapShuffle
	rng     *rand.Rand
	current int
	order   []int // permutation for ShuffleCycle
	used    map[int]bool
}

// NewRotation builds a rotation over maps, seeded for reproducible
// tests via the caller-supplied rng.
func NewRotation(maps []config.MapEntrySpec, mode config.MapShuffle, rng *rand.Rand) *Rotation {
	r := &Rotation{maps: maps, mode: mode, rng: rng, current: -1, used: make(map[int]bool)}
	if mode == config.ShuffleCycle {
		r.reshuffle()
	}
	return r
}

func (r *Rotation) reshuffle() {
	r.order = r.rng.Perm(len(r.maps))
	r.used = make(map[int]bool)
}

// Current returns the map currently in play, or false before the
// first Advance.
func (r *Rotation) Current() (config.MapEntrySpec, bool) {
	if r.current < 0 || r.current >= len(r.maps) {
		return config.MapEntrySpec{}, false
	}
	return r.maps[r.current], true
}

// Len returns the number of maps in the rotation.
func (r *Rotation) Len() int { return len(r.maps) }

// JumpTo sets the rotation's current map directly to idx (0-based),
// for the console's `map <n>` command, which names a map by position
// rather than waiting for Advance's sequential/random/cycle policy.
func (r *Rotation) JumpTo(idx int) (config.MapEntrySpec, bool) {
	if idx < 0 || idx >= len(r.maps) {
		return config.MapEntrySpec{}, false
	}
	r.current = idx
	return r.maps[idx], true
}

// Advance decides the next map (spec.md §4.J "Decide next map:
// sequential, random, or shuffle — cycle through a permutation;
// restart when all maps have been used") and returns its index.
func (r *Rotation) Advance() int {
	switch r.mode {
	case config.ShuffleRandom:
		r.current = r.rng.Intn(len(r.maps))
	case config.ShuffleCycle:
		if len(r.used) >= len(r.order) {
			r.reshuffle()
		}
		for _, idx := range r.order {
			if !r.used[idx] {
				r.used[idx] = true
				r.current = idx
				break
			}
		}
	default: // ShuffleNone: sequential
		r.current = (r.current + 1) % len(r.maps)
	}
	return r.current
}
