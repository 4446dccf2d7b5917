package clientstate

import (
	"testing"

	"github.com/eternitynet/server/internal/protocol"
)

func TestAllocateSkipsReservedSlotZero(t *testing.T) {
	table := NewTable()
	c := table.Allocate()
	if c == nil {
		t.Fatal("expected a free slot")
	}
	if c.Index == 0 {
		t.Fatal("Allocate must never hand out slot 0 (server's pseudo-spectator)")
	}
}

func TestAllocateReturnsNilWhenFull(t *testing.T) {
	table := NewTable()
	for i := 0; i < MaxClients-1; i++ {
		c := table.Allocate()
		if c == nil {
			t.Fatalf("ran out of slots early at i=%d", i)
		}
		c.InitPlayer("p")
	}
	if table.Allocate() != nil {
		t.Fatal("expected nil once every non-reserved slot is in use")
	}
}

func TestZeroClientResetsQueueAndCommandState(t *testing.T) {
	table := NewTable()
	c := table.Allocate()
	c.InitPlayer("test")
	c.PutInQueue(3)
	c.LastCommandReceivedIndex = 42

	c.ZeroClient()

	if c.InUse() {
		t.Fatal("expected client to be released after ZeroClient")
	}
	if c.QueueLevel != QueueNone || c.LastCommandReceivedIndex != 0 {
		t.Fatal("ZeroClient must reset queue and command bookkeeping")
	}
}

func TestPositionAtClampsToRetentionWindow(t *testing.T) {
	table := NewTable()
	c := table.Allocate()
	c.InitPlayer("test")

	for i := uint32(0); i < RingSize+10; i++ {
		c.RecordPosition(i, protocol.PlayerPosition{WorldIndex: i, X: float64(i)})
	}

	current := uint32(RingSize + 10)
	_, ok := c.PositionAt(0, current)
	if !ok {
		t.Fatal("expected a clamped snapshot instead of a miss")
	}

	entry, ok := c.PositionAt(current-1, current)
	if !ok || entry.WorldIndex != current-1 {
		t.Fatalf("expected the most recent entry, got %+v ok=%v", entry, ok)
	}
}

func TestSetSpectatorClearsQueueState(t *testing.T) {
	table := NewTable()
	c := table.Allocate()
	c.InitPlayer("test")
	c.PutInQueue(2)

	c.SetSpectator(true)

	if c.QueueLevel != QueueNone {
		t.Fatal("becoming a spectator must clear queue membership")
	}
}
