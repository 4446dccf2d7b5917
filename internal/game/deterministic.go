package game

import (
	"hash/fnv"

	"github.com/mlange-42/ark/ecs"
)

// ActorState captures one net-visible actor's state for snapshot/restore.
type ActorState struct {
	Entity   ecs.Entity
	NetID    int32
	Position Position
	Velocity Velocity
	HasHealth bool
	Health   Health
	HasGrounded bool
	Grounded Grounded
}

// WorldState is a complete snapshot of the world at one tic, used by the
// unlagged rewind to save/compare/restore player and sector state before
// replaying a hit check against history (spec.md §4.G).
type WorldState struct {
	Tick     uint64
	Actors   []ActorState
	Sectors  map[int32][2]float64
	Checksum uint32
}

// Snapshot captures every net-visible actor plus all moving sectors.
func (w *World) Snapshot() WorldState {
	state := WorldState{
		Tick:   w.Tick,
		Actors: make([]ActorState, 0),
	}

	q := w.actorFilter.Query()
	for q.Next() {
		e := q.Entity()
		pos, vel, _, nid, _ := q.Get()
		as := ActorState{Entity: e, NetID: nid.ID, Position: *pos, Velocity: *vel}
		if h := w.health.Get(e); h != nil {
			as.HasHealth = true
			as.Health = *h
		}
		if g := w.grounded.Get(e); g != nil {
			as.HasGrounded = true
			as.Grounded = *g
		}
		state.Actors = append(state.Actors, as)
	}
	q.Close()

	if w.Sectors != nil {
		state.Sectors = w.Sectors.Snapshot()
	}
	state.Checksum = state.computeChecksum()
	return state
}

// Restore applies a saved world state, rewinding every actor and sector
// to the values they held at that tic.
func (w *World) Restore(state WorldState) {
	w.Tick = state.Tick

	for _, as := range state.Actors {
		pos := w.position.Get(as.Entity)
		vel := w.velocity.Get(as.Entity)
		if pos == nil || vel == nil {
			continue
		}
		*pos = as.Position
		*vel = as.Velocity
		if as.HasHealth {
			if h := w.health.Get(as.Entity); h != nil {
				*h = as.Health
			}
		}
		if as.HasGrounded {
			if g := w.grounded.Get(as.Entity); g != nil {
				*g = as.Grounded
			}
		}
	}

	if w.Sectors != nil && state.Sectors != nil {
		w.Sectors.Restore(state.Sectors)
	}
}

// computeChecksum hashes tick, actor positions and sector floor heights so two
// states can be compared cheaply before falling back to a full diff.
func (state *WorldState) computeChecksum() uint32 {
	h := fnv.New32a()

	var tickBytes [8]byte
	putUint64(tickBytes[:], state.Tick)
	h.Write(tickBytes[:])

	for _, as := range state.Actors {
		var buf [28]byte
		putInt64(buf[0:8], int64(as.Position.X*1000))
		putInt64(buf[8:16], int64(as.Position.Y*1000))
		putInt64(buf[16:24], int64(as.Position.Z*1000))
		putInt32(buf[24:28], as.NetID)
		h.Write(buf[:])
	}

	for id, hc := range state.Sectors {
		var buf [12]byte
		putInt32(buf[0:4], id)
		putInt64(buf[4:12], int64(hc[0]*1000))
		h.Write(buf[:])
	}

	return h.Sum32()
}

// StatesMatch compares two world states within a position tolerance,
// short-circuiting on checksum equality.
func StatesMatch(a, b *WorldState, tolerance float64) bool {
	if a.Checksum == b.Checksum {
		return true
	}
	if len(a.Actors) != len(b.Actors) {
		return false
	}
	for i := range a.Actors {
		ea, eb := &a.Actors[i], &b.Actors[i]
		if ea.NetID != eb.NetID {
			return false
		}
		if abs(ea.Position.X-eb.Position.X) > tolerance || abs(ea.Position.Y-eb.Position.Y) > tolerance ||
			abs(ea.Position.Z-eb.Position.Z) > tolerance {
			return false
		}
	}
	return true
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putInt64(b []byte, v int64) {
	putUint64(b, uint64(v))
}

func putInt32(b []byte, v int32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
