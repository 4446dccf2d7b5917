// Package cmdqueue implements the per-client jitter buffer spec.md
// §4.F describes: monotonic de-duplication on receive, and a target
// depth recomputed each tic from measured loss and RTT.
package cmdqueue

import (
	"golang.org/x/time/rate"

	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/protocol"
)

// TargetDepth computes D_i = 1 + floor(loss/2) + floor(rttMillis/99)
// (spec.md §4.F — "intentionally conservative: loss contributes more
// than RTT so as not to add latency when the link is clean").
func TargetDepth(lossPercent uint8, rttMillis uint32) int {
	return 1 + int(lossPercent)/2 + int(rttMillis)/99
}

// Enqueue appends newly-received commands to client's queue, silently
// dropping any whose index is ≤ LastCommandReceivedIndex (spec.md §4.F
// "commands with index ≤ last_command_received_index are silently
// discarded (duplicate/retransmit)"). Commands within pc.Commands are
// assumed already sorted by Index, matching how a single playercommand
// packet is built client-side.
func Enqueue(c *clientstate.Client, pc protocol.PlayerCommand) {
	for _, cmd := range pc.Commands {
		if cmd.Index <= c.LastCommandReceivedIndex {
			continue
		}
		c.CommandQueue = append(c.CommandQueue, cmd)
		c.LastCommandReceivedIndex = cmd.Index
	}
}

// Pop implements spec.md §4.F's consumption rule: if the queue is
// empty, the loop proceeds without executing a command for that
// player. Otherwise it pops one command, and up to two more while the
// queue still exceeds the target depth (so a burst drains instead of
// accumulating latency), latching CommandBufferFilled once the queue
// first reaches depth.
func Pop(c *clientstate.Client, targetDepth int) []protocol.Command {
	if !c.CommandBufferFilled {
		if len(c.CommandQueue) < targetDepth {
			return nil
		}
		c.CommandBufferFilled = true
	}
	if len(c.CommandQueue) == 0 {
		return nil
	}

	const maxExtra = 2
	n := 1
	for n <= maxExtra && len(c.CommandQueue) > targetDepth+n {
		n++
	}
	if n > len(c.CommandQueue) {
		n = len(c.CommandQueue)
	}

	popped := make([]protocol.Command, n)
	copy(popped, c.CommandQueue[:n])
	c.CommandQueue = c.CommandQueue[n:]
	for _, cmd := range popped {
		c.LastCommandRunIndex = cmd.Index
	}
	return popped
}

// Reset clears a client's queue and latch state (spec.md §3 "Command
// queue: ... Reset on map change").
func Reset(c *clientstate.Client) {
	c.CommandQueue = nil
	c.CommandBufferFilled = false
}

// FloodLimiter rate-limits inbound playercommand/playermessage packets
// per client, grounded on rustyguts-bken's `-rate-limit` flag
// (golang.org/x/time/rate) — disconnecting with ReasonCommandFlood is
// the direct analogue of bken dropping a client that floods control
// messages.
type FloodLimiter struct {
	limiters map[int]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewFloodLimiter returns a limiter allowing rps packets/sec per
// client with the given burst allowance.
func NewFloodLimiter(rps float64, burst int) *FloodLimiter {
	return &FloodLimiter{
		limiters: make(map[int]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether clientIndex may send another packet this
// instant, creating that client's bucket on first use.
func (f *FloodLimiter) Allow(clientIndex int) bool {
	l, ok := f.limiters[clientIndex]
	if !ok {
		l = rate.NewLimiter(f.rps, f.burst)
		f.limiters[clientIndex] = l
	}
	return l.Allow()
}

// Forget drops a client's bucket on disconnect.
func (f *FloodLimiter) Forget(clientIndex int) {
	delete(f.limiters, clientIndex)
}
