// Package unlagged implements spec.md §4.G: rewinding every other
// in-game client's position, misc state, and the sector table to the
// tic a shooter actually saw before evaluating a hitscan or radius
// attack, then restoring the live world afterward. Grounded on
// game.World's own Snapshot/Restore pair (internal/game/deterministic.go)
// and the rollback/replay shape of the teacher's client.Reconciler
// (internal/client/reconciler.go), scoped here to a single shooter's
// command instead of the whole world.
package unlagged

import (
	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/collision"
	"github.com/eternitynet/server/internal/game"
)

// RewoundClient is the saved live state for one client the rewind
// touched, restored by Restore once damage evaluation completes.
type RewoundClient struct {
	Index int
	// Immune reports whether the rewound playerstate disagreed with
	// the live one closely enough that this actor must be excluded
	// from the damage check (spec.md §4.G "mark its actor immune to
	// damage for this evaluation").
	Immune bool

	livePos     game.Position
	liveVel     game.Velocity
	rewoundMomX float64
	rewoundMomY float64
	rewoundMomZ float64
}

// Scratch holds everything Rewind overwrote, for Restore to undo.
type Scratch struct {
	Clients []RewoundClient

	sectors   map[int32][2]float64
	sectorsOK bool
}

// Rewind saves the live position/velocity of every other in-game
// client and every tracked sector, then overwrites the live ECS state
// and sector table with the snapshot nearest worldIndexSeen (clamped to
// the ring's retention window). The shooter itself is left untouched
// (spec.md §4.G "The shooter is not rewound").
func Rewind(world *game.World, table *clientstate.Table, sectors *collision.SectorTable, shooterIndex int, worldIndexSeen, currentWorldIndex uint32) *Scratch {
	s := &Scratch{}

	table.ForEach(func(c *clientstate.Client) {
		if c.Index == shooterIndex || !c.InUse() {
			return
		}
		e, ok := world.PlayerEntity(c.Index)
		if !ok {
			return
		}
		pos := world.Position(e)
		vel := world.Velocity(e)
		if pos == nil || vel == nil {
			return
		}

		rc := RewoundClient{Index: c.Index, livePos: *pos, liveVel: *vel}

		if posEntry, ok := c.PositionAt(worldIndexSeen, currentWorldIndex); ok {
			p := posEntry.Pos
			rc.rewoundMomX, rc.rewoundMomY, rc.rewoundMomZ = p.MomX, p.MomY, p.MomZ
			*pos = game.Position{X: p.X, Y: p.Y, Z: p.Z, Angle: p.Angle, Pitch: p.Pitch}
			*vel = game.Velocity{X: p.MomX, Y: p.MomY, Z: p.MomZ}
		}

		if h := world.Health(e); h != nil {
			liveDead := h.Dead
			rewoundDead := liveDead
			if miscEntry, ok := c.MiscAt(worldIndexSeen, currentWorldIndex); ok {
				rewoundDead = miscEntry.Misc.Health <= 0
			}
			rc.Immune = rewoundDead != liveDead
		}

		s.Clients = append(s.Clients, rc)
	})

	if hist, ok := sectors.HistoryAt(worldIndexSeen, currentWorldIndex); ok {
		s.sectors = sectors.Snapshot()
		s.sectorsOK = true
		sectors.Restore(hist)
	}

	return s
}

// Restore writes the live snapshot back onto every rewound actor,
// adding back momentum accrued during the evaluation window (spec.md
// §4.G "add back any momentum accrued during evaluation, to preserve
// damage thrust") and resets the sector table.
func Restore(world *game.World, s *Scratch) {
	for _, rc := range s.Clients {
		e, ok := world.PlayerEntity(rc.Index)
		if !ok {
			continue
		}
		pos := world.Position(e)
		vel := world.Velocity(e)
		if pos == nil || vel == nil {
			continue
		}
		accruedX := vel.X - rc.rewoundMomX
		accruedY := vel.Y - rc.rewoundMomY
		accruedZ := vel.Z - rc.rewoundMomZ

		*pos = rc.livePos
		*vel = rc.liveVel
		vel.X += accruedX
		vel.Y += accruedY
		vel.Z += accruedZ
	}
	if s.sectorsOK {
		world.Sectors.Restore(s.sectors)
	}
}
