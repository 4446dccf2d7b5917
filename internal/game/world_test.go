package game

import (
	"testing"

	"github.com/eternitynet/server/internal/protocol"
)

func newTestWorld() *World {
	w := NewWorld()
	tm, sectors := DemoMapSized(16, 16)
	w.ResetForMap(tm, sectors)
	return w
}

func TestSpawnPlayerAssignsDistinctNetIDs(t *testing.T) {
	w := newTestWorld()
	a := w.SpawnPlayer(1, 32, 32, 0)
	b := w.SpawnPlayer(2, 64, 64, 0)
	if a == b {
		t.Fatalf("expected distinct net IDs, got %d and %d", a, b)
	}
	if a == 0 || b == 0 {
		t.Fatalf("net IDs must never be the reserved 0 value")
	}
}

func TestRemovePlayerFreesClientSlotNotNetID(t *testing.T) {
	w := newTestWorld()
	id := w.SpawnPlayer(1, 32, 32, 0)
	gotID, ok := w.RemovePlayer(1)
	if !ok || gotID != id {
		t.Fatalf("RemovePlayer() = (%d, %v), want (%d, true)", gotID, ok, id)
	}
	if _, ok := w.PlayerEntity(1); ok {
		t.Fatal("player entity should be gone after removal")
	}
	// A second player must never reuse the removed net ID.
	next := w.SpawnPlayer(1, 0, 0, 0)
	if next == id {
		t.Fatalf("net ID %d was reused after removal", id)
	}
}

func TestSetPlayerIntentUpdatesVelocityFromCommand(t *testing.T) {
	w := newTestWorld()
	w.SpawnPlayer(1, 32, 32, 64)
	w.SetPlayerIntent(1, protocol.Command{ForwardMove: 256, SideMove: -128})

	e, _ := w.PlayerEntity(1)
	vel := w.Velocity(e)
	if vel == nil {
		t.Fatal("expected velocity component")
	}
	if vel.X <= 0 {
		t.Fatalf("ForwardMove should produce positive X velocity, got %v", vel.X)
	}
	if vel.Y >= 0 {
		t.Fatalf("negative SideMove should produce negative Y velocity, got %v", vel.Y)
	}
}

func TestUpdateAppliesGravityUntilGrounded(t *testing.T) {
	w := newTestWorld()
	w.SpawnPlayer(1, 32, 32, 50)
	e, _ := w.PlayerEntity(1)

	for i := 0; i < 200; i++ {
		w.Update()
	}

	pos := w.Position(e)
	if pos.Z != w.TileMap.FloorHeightAt(pos.X, pos.Y) {
		t.Fatalf("actor should have settled on the floor, Z = %v", pos.Z)
	}
}

func TestSpawnSpawnOnlyReservesWellKnownIDs(t *testing.T) {
	w := newTestWorld()
	cases := []struct {
		kind ActorKind
		want int32
	}{
		{KindBlood, NetIDBlood},
		{KindPuff, NetIDPuff},
		{KindTeleportFog, NetIDFog},
	}
	for _, c := range cases {
		if got := w.SpawnSpawnOnly(c.kind, 0, 0, 0); got != c.want {
			t.Errorf("SpawnSpawnOnly(%v) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	w := newTestWorld()
	w.SpawnPlayer(1, 32, 32, 64)
	w.Update()
	before := w.Snapshot()

	for i := 0; i < 10; i++ {
		w.Update()
	}
	after := w.Snapshot()
	if StatesMatch(&before, &after, 0.01) {
		t.Fatal("states should differ after the actor fell under gravity")
	}

	w.Restore(before)
	restored := w.Snapshot()
	if !StatesMatch(&before, &restored, 0.01) {
		t.Fatal("Restore() should reproduce the saved snapshot")
	}
}

func TestResetForMapRebuildsNetIDRegistryFromOne(t *testing.T) {
	w := newTestWorld()
	w.SpawnPlayer(1, 0, 0, 0)
	w.SpawnPlayer(2, 0, 0, 0)

	tm, sectors := DemoMapSized(16, 16)
	w.ResetForMap(tm, sectors)

	id := w.SpawnPlayer(1, 0, 0, 0)
	if id != 1 {
		t.Fatalf("first net ID after ResetForMap should be 1, got %d", id)
	}
}
