package cmdqueue

import (
	"testing"

	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/protocol"
)

func TestTargetDepthIsLinearInLossAndRTT(t *testing.T) {
	if got := TargetDepth(0, 0); got != 1 {
		t.Fatalf("TargetDepth(0,0) = %d, want 1", got)
	}
	if got := TargetDepth(10, 0); got != 1+10/2 {
		t.Fatalf("TargetDepth(10,0) = %d, want %d", got, 1+10/2)
	}
	if got := TargetDepth(0, 198); got != 1+198/99 {
		t.Fatalf("TargetDepth(0,198) = %d, want %d", got, 1+198/99)
	}
}

func TestEnqueueDropsDuplicateAndStaleIndices(t *testing.T) {
	c := &clientstate.Client{}
	pc := protocol.PlayerCommand{Commands: []protocol.Command{
		{Index: 1}, {Index: 2}, {Index: 3},
	}}
	Enqueue(c, pc)
	if len(c.CommandQueue) != 3 || c.LastCommandReceivedIndex != 3 {
		t.Fatalf("unexpected state after first enqueue: %+v last=%d", c.CommandQueue, c.LastCommandReceivedIndex)
	}

	retransmit := protocol.PlayerCommand{Commands: []protocol.Command{
		{Index: 2}, {Index: 3}, {Index: 4},
	}}
	Enqueue(c, retransmit)
	if len(c.CommandQueue) != 4 {
		t.Fatalf("expected only index 4 appended, queue = %+v", c.CommandQueue)
	}
}

func TestPopWaitsForTargetDepthBeforeLatching(t *testing.T) {
	c := &clientstate.Client{}
	Enqueue(c, protocol.PlayerCommand{Commands: []protocol.Command{{Index: 1}}})

	if popped := Pop(c, 3); popped != nil {
		t.Fatal("expected no pop before the queue reaches target depth")
	}
	if c.CommandBufferFilled {
		t.Fatal("latch must not flip before reaching target depth")
	}

	Enqueue(c, protocol.PlayerCommand{Commands: []protocol.Command{{Index: 2}, {Index: 3}}})
	popped := Pop(c, 3)
	if len(popped) != 1 || popped[0].Index != 1 {
		t.Fatalf("expected exactly command 1 popped once latched, got %+v", popped)
	}
	if !c.CommandBufferFilled {
		t.Fatal("latch should now be set")
	}
}

func TestPopDrainsExtraWhenQueueExceedsDepth(t *testing.T) {
	c := &clientstate.Client{CommandBufferFilled: true}
	for i := uint32(1); i <= 6; i++ {
		Enqueue(c, protocol.PlayerCommand{Commands: []protocol.Command{{Index: i}}})
	}
	popped := Pop(c, 1)
	if len(popped) < 2 {
		t.Fatalf("expected extra commands drained from a backlog, got %d", len(popped))
	}
}

func TestPopReturnsNilOnEmptyQueueOnceLatched(t *testing.T) {
	c := &clientstate.Client{CommandBufferFilled: true}
	if popped := Pop(c, 1); popped != nil {
		t.Fatal("expected nil pop from an empty, already-latched queue")
	}
}

func TestFloodLimiterBurstThenThrottles(t *testing.T) {
	f := NewFloodLimiter(1, 2)
	if !f.Allow(1) || !f.Allow(1) {
		t.Fatal("expected the initial burst to be allowed")
	}
	if f.Allow(1) {
		t.Fatal("expected the limiter to throttle once the burst is exhausted")
	}
}
