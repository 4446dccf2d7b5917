package session

import (
	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/config"
)

// AckTimeoutTics bounds how long a client may go without acknowledging
// a new map's snapshot before being disconnected (spec.md §4.J "Clients
// that have not acknowledged within a timeout are disconnected").
const AckTimeoutTics = uint32(35 * 10) // 10 seconds at TICRATE=35

// Session tracks the server's current map and the sync barrier that
// gates command execution on a fresh world_index=0 tic.
type Session struct {
	Rotation *Rotation

	CurrentMapIndex  int
	ShouldSendNewMap bool
	barrierStartTic  uint32
	barrierActive    bool
}

// NewSession builds a session over the given rotation, with no map
// loaded yet.
func NewSession(rotation *Rotation) *Session {
	return &Session{Rotation: rotation}
}

// CompleteMap runs the on-"map completed" sequence (spec.md §4.J):
// picks the next map, resets every client's per-map state, and arms
// ShouldSendNewMap so the tic loop broadcasts mapstarted next tic.
// Net-ID re-enumeration itself is not duplicated here: the caller loads
// the new map's geometry and calls game.World.ResetForMap, which owns
// the net-ID registry and already restarts it at 1.
func (s *Session) CompleteMap(table *clientstate.Table) config.MapEntrySpec {
	idx := s.Rotation.Advance()
	s.CurrentMapIndex = idx
	table.ForEach(func(c *clientstate.Client) { c.ResetForNewMap() })
	s.ShouldSendNewMap = true
	next, _ := s.Rotation.Current()
	return next
}

// ForceMap jumps directly to the 0-based map index idx, bypassing the
// rotation's sequential/random/cycle policy, for the console's `map
// <n>` command (spec.md §4's console command list). Per-client per-map
// state is reset exactly as CompleteMap does.
func (s *Session) ForceMap(table *clientstate.Table, idx int) (config.MapEntrySpec, bool) {
	next, ok := s.Rotation.JumpTo(idx)
	if !ok {
		return config.MapEntrySpec{}, false
	}
	s.CurrentMapIndex = idx
	table.ForEach(func(c *clientstate.Client) { c.ResetForNewMap() })
	s.ShouldSendNewMap = true
	return next, true
}

// BeginBarrier starts the world_index=0 sync barrier: command
// execution for the new map is held until every in-game client has
// acknowledged the snapshot, or the timeout below expires for that
// client (spec.md §4.J "Sync barrier").
func (s *Session) BeginBarrier(currentTic uint32) {
	s.barrierActive = true
	s.barrierStartTic = currentTic
	s.ShouldSendNewMap = false
}

// BarrierActive reports whether the tic loop should withhold command
// execution this tic.
func (s *Session) BarrierActive() bool { return s.barrierActive }

// Acknowledge marks one client as having received its full snapshot
// for the current map (the tic loop calls this on clientrequest(
// current_state)'s reply path).
func (s *Session) Acknowledge(c *clientstate.Client) {
	c.ReceivedGameState = true
}

// Resolve checks whether the barrier can drop: every in-use
// non-spectator client must have acknowledged. Clients
// that have not within AckTimeoutTics are returned for disconnection
// rather than holding the barrier forever.
func (s *Session) Resolve(table *clientstate.Table, currentTic uint32) (cleared bool, timedOut []*clientstate.Client) {
	if !s.barrierActive {
		return true, nil
	}
	allAcked := true
	table.ForEach(func(c *clientstate.Client) {
		if c.Spectating {
			return
		}
		if c.ReceivedGameState {
			return
		}
		if currentTic-s.barrierStartTic > AckTimeoutTics {
			timedOut = append(timedOut, c)
			return
		}
		allAcked = false
	})
	if allAcked {
		s.barrierActive = false
	}
	return !s.barrierActive, timedOut
}
