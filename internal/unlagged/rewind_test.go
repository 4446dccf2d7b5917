package unlagged

import (
	"testing"

	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/game"
	"github.com/eternitynet/server/internal/protocol"
)

func newTestWorld() *game.World {
	w := game.NewWorld()
	tm, sectors := game.DemoMapSized(16, 16)
	w.ResetForMap(tm, sectors)
	return w
}

func TestRewindMovesTargetNotShooter(t *testing.T) {
	w := newTestWorld()
	table := clientstate.NewTable()

	shooter := table.Allocate()
	shooter.InitPlayer("shooter")
	w.SpawnPlayer(shooter.Index, 0, 0, 0)

	target := table.Allocate()
	target.InitPlayer("target")
	w.SpawnPlayer(target.Index, 500, 500, 0)

	for tic := uint32(1); tic <= 10; tic++ {
		e, _ := w.PlayerEntity(target.Index)
		pos := w.Position(e)
		pos.X = float64(tic) * 10
		target.RecordPosition(tic, protocol.PlayerPosition{WorldIndex: tic, X: pos.X, Y: pos.Y, Z: pos.Z})
	}

	shooterEntity, _ := w.PlayerEntity(shooter.Index)
	shooterPosBefore := *w.Position(shooterEntity)

	scratch := Rewind(w, table, w.Sectors, shooter.Index, 3, 10)

	targetEntity, _ := w.PlayerEntity(target.Index)
	rewoundX := w.Position(targetEntity).X
	if rewoundX != 30 {
		t.Fatalf("expected target rewound to tic 3's X=30, got %v", rewoundX)
	}
	if got := *w.Position(shooterEntity); got != shooterPosBefore {
		t.Fatalf("shooter must not be rewound, got %+v want %+v", got, shooterPosBefore)
	}

	Restore(w, scratch)
	if got := w.Position(targetEntity).X; got != 100 {
		t.Fatalf("expected target restored to live X=100, got %v", got)
	}
}

func TestRewindClampsToRetentionWindow(t *testing.T) {
	w := newTestWorld()
	table := clientstate.NewTable()

	shooter := table.Allocate()
	shooter.InitPlayer("shooter")
	w.SpawnPlayer(shooter.Index, 0, 0, 0)

	target := table.Allocate()
	target.InitPlayer("target")
	w.SpawnPlayer(target.Index, 0, 0, 0)

	current := uint32(clientstate.RingSize + 50)
	for tic := current - clientstate.RingSize + 1; tic <= current; tic++ {
		e, _ := w.PlayerEntity(target.Index)
		pos := w.Position(e)
		pos.X = float64(tic)
		target.RecordPosition(tic, protocol.PlayerPosition{WorldIndex: tic, X: pos.X})
	}

	scratch := Rewind(w, table, w.Sectors, shooter.Index, 1, current)
	targetEntity, _ := w.PlayerEntity(target.Index)
	if w.Position(targetEntity).X == 0 {
		t.Fatal("expected a clamped-but-present snapshot, not a zero miss")
	}
	Restore(w, scratch)
}

func TestRewindMarksDeadMismatchImmune(t *testing.T) {
	w := newTestWorld()
	table := clientstate.NewTable()

	shooter := table.Allocate()
	shooter.InitPlayer("shooter")
	w.SpawnPlayer(shooter.Index, 0, 0, 0)

	target := table.Allocate()
	target.InitPlayer("target")
	w.SpawnPlayer(target.Index, 0, 0, 0)
	target.RecordMisc(5, protocol.ActorMiscState{Health: 0})

	e, _ := w.PlayerEntity(target.Index)
	h := w.Health(e)
	h.Current = 100
	h.Dead = false

	scratch := Rewind(w, table, w.Sectors, shooter.Index, 5, 10)
	if len(scratch.Clients) != 1 || !scratch.Clients[0].Immune {
		t.Fatalf("expected the target marked immune on a dead/live mismatch, got %+v", scratch.Clients)
	}
	Restore(w, scratch)
}
