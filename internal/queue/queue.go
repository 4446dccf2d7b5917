// Package queue implements spec.md §4.I's three-level join queue:
// none/waiting/can_join/playing, vacancy promotion, and AFK demotion.
// Grounded almost directly on original_source/source/sv_queue.cpp's
// SV_UpdateQueueLevels/SV_GetNewQueuePosition/SV_AdvanceQueue/
// SV_MarkQueuePlayersAFK, generalized from the original's global
// clients[] array onto clientstate.Table.
package queue

import "github.com/eternitynet/server/internal/clientstate"

// UpdateQueueLevels recomputes can_join/waiting for every still-queued
// client: position 0 means "next in line", stamped with the current
// tic and promoted to can_join; any other position means still
// waiting (sv_queue.cpp SV_UpdateQueueLevels). Playing clients are
// left untouched — the original's equivalent loop gates only on
// `queue_level != ql_none`, which would also reinterpret a playing
// client's leftover queue_position of 0 as can_join; spec.md's
// none/waiting/can_join/playing model treats playing as a terminal
// state that tic-by-tic position reconciliation shouldn't touch, so
// that case is excluded here on purpose.
func UpdateQueueLevels(table *clientstate.Table, currentTic uint32) {
	table.ForEach(func(c *clientstate.Client) {
		if c.QueueLevel != clientstate.QueueWaiting && c.QueueLevel != clientstate.QueueCanJoin {
			return
		}
		if c.QueuePosition == 0 {
			c.FinishedWaitingTic = currentTic
			c.QueueLevel = clientstate.QueueCanJoin
		} else {
			c.QueueLevel = clientstate.QueueWaiting
		}
	})
}

// PlayingCount counts clients who occupy a playing slot for admission
// purposes: clients already `playing`, plus `can_join` clients still
// inside the join time limit — AFK can_join clients are excluded
// (spec.md §4.I "AFK clients do not count against max_players for
// admission purposes"), matching SV_GetNewQueuePosition's
// tics_waiting <= tic_limit check.
func PlayingCount(table *clientstate.Table, currentTic uint32, joinTimeLimitTics uint32) int {
	n := 0
	table.ForEach(func(c *clientstate.Client) {
		switch {
		case c.QueueLevel == clientstate.QueuePlaying:
			n++
		case c.QueueLevel == clientstate.QueueCanJoin && !c.AFK:
			ticsWaiting := currentTic - c.FinishedWaitingTic
			if ticsWaiting <= joinTimeLimitTics {
				n++
			}
		}
	})
	return n
}

// NewQueuePosition decides where a requesting client enters: 0 if a
// playing slot is free, otherwise one past the highest queue_position
// currently held by any queued client (sv_queue.cpp
// SV_GetNewQueuePosition).
func NewQueuePosition(table *clientstate.Table, currentTic uint32, maxPlayers int, joinTimeLimitTics uint32) int {
	UpdateQueueLevels(table, currentTic)

	if PlayingCount(table, currentTic, joinTimeLimitTics) < maxPlayers {
		return 0
	}

	max := 0
	table.ForEach(func(c *clientstate.Client) {
		if c.QueueLevel != clientstate.QueueWaiting && c.QueueLevel != clientstate.QueueCanJoin {
			return
		}
		if c.QueuePosition >= max {
			max = c.QueuePosition + 1
		}
	})
	return max
}

// AdvanceQueue slides every client behind clientIndex's former queue
// position one slot forward, called when that client leaves the queue
// or starts playing (sv_queue.cpp SV_AdvanceQueue).
func AdvanceQueue(table *clientstate.Table, clientIndex, vacatedPosition int, currentTic uint32) {
	table.ForEach(func(c *clientstate.Client) {
		if c.Index == clientIndex {
			return
		}
		if c.QueuePosition > vacatedPosition {
			c.QueuePosition--
		}
	})
	UpdateQueueLevels(table, currentTic)
}

// RequestJoin handles a spectator's request-to-join (spec.md §4.I
// "On first request-to-join"): it transitions the client straight to
// playing when a slot is free, otherwise enqueues it at the tail.
// Returns true if the client was admitted to play immediately.
func RequestJoin(table *clientstate.Table, c *clientstate.Client, currentTic uint32, maxPlayers int, joinTimeLimitTics uint32) bool {
	pos := NewQueuePosition(table, currentTic, maxPlayers, joinTimeLimitTics)
	if pos == 0 && PlayingCount(table, currentTic, joinTimeLimitTics) < maxPlayers {
		c.QueueLevel = clientstate.QueuePlaying
		c.QueuePosition = 0
		c.FinishedWaitingTic = currentTic
		c.AFK = false
		return true
	}
	c.PutInQueue(pos)
	UpdateQueueLevels(table, currentTic)
	return false
}

// Leave removes a client from the queue (disconnect, spectate, map
// end) and advances everyone behind it (sv_queue.cpp
// SV_RemovePlayerFromQueue). If the client was playing, its playing
// slot is what's vacated; if it was mid-queue, its queue_position is.
func Leave(table *clientstate.Table, c *clientstate.Client, currentTic uint32) {
	vacated := c.QueuePosition
	if c.QueueLevel == clientstate.QueuePlaying {
		// A freed playing slot is equivalent to freeing queue
		// position 0: whoever is waiting at position 1 slides down to
		// 0 and is promoted (spec.md §4.I).
		vacated = 0
	}
	c.RemoveFromQueue()
	AdvanceQueue(table, c.Index, vacated, currentTic)
}

// Requeue moves a client already in play back to the queue tail — a
// CTF/TDM team switch (spec.md §4.I "a team switch requeues the
// player at the queue tail", sv_queue.cpp SV_PutPlayerAtQueueEnd).
func Requeue(table *clientstate.Table, c *clientstate.Client, currentTic uint32, maxPlayers int, joinTimeLimitTics uint32) {
	Leave(table, c, currentTic)
	pos := NewQueuePosition(table, currentTic, maxPlayers, joinTimeLimitTics)
	c.PutAtQueueEnd(pos)
	UpdateQueueLevels(table, currentTic)
}

// Join promotes a can_join client into a playing slot (spec.md §4.I
// "a can_join client attempts to join"), failing if the client is no
// longer can_join or has already been marked afk. A can_join client's
// queue_position is always 0 (that is what can_join means), so the
// vacated slot for AdvanceQueue is always 0.
func Join(table *clientstate.Table, c *clientstate.Client, currentTic uint32) bool {
	if c.QueueLevel != clientstate.QueueCanJoin || c.AFK {
		return false
	}
	c.QueueLevel = clientstate.QueuePlaying
	AdvanceQueue(table, c.Index, 0, currentTic)
	return true
}

// MarkAFK demotes any can_join client that has not attempted to join
// within the time limit (sv_queue.cpp SV_MarkQueuePlayersAFK).
func MarkAFK(table *clientstate.Table, currentTic uint32, joinTimeLimitTics uint32) {
	table.ForEach(func(c *clientstate.Client) {
		if c.QueueLevel != clientstate.QueueCanJoin || c.AFK {
			return
		}
		ticsWaiting := currentTic - c.FinishedWaitingTic
		if ticsWaiting > joinTimeLimitTics {
			c.AFK = true
		}
	})
}
