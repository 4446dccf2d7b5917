// Package sync tracks which net-visible actors changed since the last
// tic so the broadcaster only spends bandwidth on actors whose state a
// client hasn't already seen (spec.md §4.E "broadcast actor deltas").
package sync

import (
	"hash/fnv"

	"github.com/eternitynet/server/internal/protocol"
)

// Baseline remembers the last broadcast state of every net ID, keyed by
// a cheap hash of its wire-encoded fields rather than the fields
// themselves, since the broadcaster only needs a changed/unchanged
// verdict per actor per tic.
type Baseline struct {
	tick   uint32
	hashes map[int32]uint64
}

// NewBaseline creates an empty baseline.
func NewBaseline() *Baseline {
	return &Baseline{hashes: make(map[int32]uint64)}
}

// Tick returns the world index this baseline was last updated at.
func (b *Baseline) Tick() uint32 {
	return b.tick
}

// Changed reports whether netID's encoded state differs from what was
// last broadcast, recording the new hash either way so the next call
// compares against this tic.
func (b *Baseline) Changed(netID int32, encoded []byte) bool {
	h := fnvHash(encoded)
	old, seen := b.hashes[netID]
	b.hashes[netID] = h
	return !seen || old != h
}

// Forget drops a net ID from the baseline (on actorremoved), so a
// future net ID reusing a reserved slot (blood/puffs/fog) is never
// compared against stale state.
func (b *Baseline) Forget(netID int32) {
	delete(b.hashes, netID)
}

// Advance marks the baseline as caught up to worldIndex.
func (b *Baseline) Advance(worldIndex uint32) {
	b.tick = worldIndex
}

// ActorDeltas filters a full actor-position list down to the ones that
// changed since the last broadcast, updating the baseline as it goes.
func ActorDeltas(b *Baseline, positions []protocol.ActorPosition) []protocol.ActorPosition {
	out := make([]protocol.ActorPosition, 0, len(positions))
	for _, p := range positions {
		if b.Changed(p.NetID, p.Marshal()) {
			out = append(out, p)
		}
	}
	return out
}

func fnvHash(data []byte) uint64 {
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}
