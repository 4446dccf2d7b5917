package tic

import (
	"context"
	"math/rand"
	"testing"

	"github.com/eternitynet/server/internal/auth"
	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/config"
	"github.com/eternitynet/server/internal/game"
	"github.com/eternitynet/server/internal/master"
	"github.com/eternitynet/server/internal/protocol"
	"github.com/eternitynet/server/internal/queue"
	"github.com/eternitynet/server/internal/session"
	"github.com/eternitynet/server/internal/transport"
	"github.com/eternitynet/server/internal/vote"
)

func threeMaps() []config.MapEntrySpec {
	return []config.MapEntrySpec{{Name: "MAP01"}, {Name: "MAP02"}, {Name: "MAP03"}}
}

func newTestLoop() (*Loop, *clientstate.Table, *game.World) {
	table := clientstate.NewTable()
	world := game.NewWorld()
	tm, sectors := game.DemoMapSized(16, 16)
	world.ResetForMap(tm, sectors)

	rotation := session.NewRotation(threeMaps(), config.ShuffleNone, rand.New(rand.NewSource(1)))
	sess := session.NewSession(rotation)
	sess.CompleteMap(table) // arms map 0 so CurrentMapIndex/Rotation.Current() are meaningful

	// A zero-value Listener never had Listen called on it (no real
	// socket), but PollNonBlocking only touches its nil events channel,
	// which a select-with-default treats as never-ready — safe for
	// exercising Loop's sequencing without a live transport.
	listener := &transport.Listener{}

	opts := Options{MaxPlayers: 8, JoinTimeLimitTics: 35 * 10, FloodRPS: 20, FloodBurst: 5}
	l := New(opts, listener, table, world, sess, vote.NewManager(), master.NewManager(nil),
		auth.Passwords{}, nil, nil)
	return l, table, world
}

// addPlaying allocates a client slot, spawns its actor, and admits it
// straight into the playing queue level, bypassing the transport layer
// tests here don't exercise.
func addPlaying(l *Loop, table *clientstate.Table, world *game.World) *clientstate.Client {
	c := table.Allocate()
	c.InitPlayer("p")
	world.SpawnPlayer(c.Index, 0, 0, 0)
	queue.RequestJoin(table, c, l.worldIndex, l.opts.MaxPlayers, l.opts.JoinTimeLimitTics)
	return c
}

func TestRunTicAdvancesWorldIndex(t *testing.T) {
	l, _, _ := newTestLoop()
	l.RunTic(context.Background())
	if l.WorldIndex() != 1 {
		t.Fatalf("WorldIndex() = %d, want 1 after one tic", l.WorldIndex())
	}
}

func TestApplyCommandsProceedsWithoutCommandOnEmptyQueue(t *testing.T) {
	l, table, world := newTestLoop()
	c := addPlaying(l, table, world)
	before, _ := world.PlayerEntity(c.Index)

	l.applyCommands()

	after, ok := world.PlayerEntity(c.Index)
	if !ok || after != before {
		t.Fatal("expected the player's entity to be untouched with no commands queued")
	}
}

func TestHandleReceiveDisconnectsOnServerOnlyMessage(t *testing.T) {
	l, table, world := newTestLoop()
	c := addPlaying(l, table, world)
	peer := &transport.Peer{ConnectID: "fake"}
	l.peerToClient[peer] = c.Index
	l.clientToPeer[c.Index] = peer

	raw := protocol.EncodeEnvelope(protocol.MsgTicFinished, 0, nil)
	l.handleReceive(peer, raw)

	if l.pendingRemoval[c.Index] != protocol.ReasonInvalidMessage {
		t.Fatalf("pendingRemoval[%d] = %v, want ReasonInvalidMessage for a server-only message type",
			c.Index, l.pendingRemoval[c.Index])
	}
}

func TestHandlePlayerInfoUpdatedDisconnectsOnIndexMismatch(t *testing.T) {
	l, table, world := newTestLoop()
	c := addPlaying(l, table, world)

	upd := protocol.PlayerInfoUpdated{PlayerIndex: int32(c.Index) + 1, Field: 0, Value: 1}
	l.handlePlayerInfoUpdated(c, upd.Marshal())

	if _, queued := l.pendingRemoval[c.Index]; !queued {
		t.Fatal("expected a mismatched playerinfoupdated to queue a disconnect")
	}
	if l.pendingRemoval[c.Index] != protocol.ReasonInvalidMessage {
		t.Fatalf("reason = %v, want ReasonInvalidMessage", l.pendingRemoval[c.Index])
	}
}

func TestHandlePlayerInfoUpdatedAcceptsMatchingIndex(t *testing.T) {
	l, table, world := newTestLoop()
	c := addPlaying(l, table, world)

	upd := protocol.PlayerInfoUpdated{PlayerIndex: int32(c.Index), Field: 0, Value: 1}
	l.handlePlayerInfoUpdated(c, upd.Marshal())

	if _, queued := l.pendingRemoval[c.Index]; queued {
		t.Fatal("a matching playerinfoupdated must not be disconnected")
	}
}

func TestApplyPendingRemovalsForgetsWorldAndQueueState(t *testing.T) {
	l, table, world := newTestLoop()
	c := addPlaying(l, table, world)

	l.disconnectClient(c, protocol.ReasonKicked)
	l.applyPendingRemovals()

	if c.InUse() {
		t.Fatal("expected the client slot to be fully reset after removal")
	}
	if _, ok := world.PlayerEntity(c.Index); ok {
		t.Fatal("expected the player's actor to be removed from the world")
	}
	if len(l.pendingRemoval) != 0 {
		t.Fatal("expected pendingRemoval to be drained")
	}
}

func TestDisconnectClientDefersRemovalToTicEnd(t *testing.T) {
	l, table, world := newTestLoop()
	c := addPlaying(l, table, world)

	l.disconnectClient(c, protocol.ReasonCommandFlood)

	if !c.InUse() {
		t.Fatal("removal must be deferred: the slot should still be live mid-tic")
	}
	if l.pendingRemoval[c.Index] != protocol.ReasonCommandFlood {
		t.Fatalf("pendingRemoval[%d] = %v, want ReasonCommandFlood", c.Index, l.pendingRemoval[c.Index])
	}
}

func TestBeginMapIfArmedResetsWorldIndexAndClearsBarrierArm(t *testing.T) {
	l, table, world := newTestLoop()
	_ = addPlaying(l, table, world)
	l.worldIndex = 42

	if !l.sess.ShouldSendNewMap {
		t.Fatal("expected CompleteMap in newTestLoop to have armed ShouldSendNewMap")
	}

	l.beginMapIfArmed()

	if l.worldIndex != 0 {
		t.Fatalf("worldIndex = %d, want 0 after a map start", l.worldIndex)
	}
	if l.sess.ShouldSendNewMap {
		t.Fatal("expected ShouldSendNewMap to be cleared once the barrier begins")
	}
	if !l.sess.BarrierActive() {
		t.Fatal("expected a sync barrier to begin alongside a new map")
	}
}

func TestResolveVoteRunsPassedCommand(t *testing.T) {
	l, table, world := newTestLoop()
	voter := addPlaying(l, table, world)

	if err := l.votes.Start("kick 9", false, l.worldIndex, 35, 0.5); err != nil {
		t.Fatalf("unexpected Start error: %v", err)
	}
	if err := l.votes.Cast(voter.Index, vote.BallotYea); err != nil {
		t.Fatalf("unexpected Cast error: %v", err)
	}

	var ran string
	RunVotedCommand = func(_ *Loop, commandText string) { ran = commandText }
	defer func() { RunVotedCommand = nil }()

	l.resolveVote()

	if ran != "kick 9" {
		t.Fatalf("runVotedCommand received %q, want \"kick 9\"", ran)
	}
}

func TestEligibleVotersExcludesSpectatorsAndAFK(t *testing.T) {
	l, table, world := newTestLoop()
	_ = addPlaying(l, table, world)

	spectator := table.Allocate()
	spectator.InitPlayer("spec")
	spectator.SetSpectator(true)

	afk := table.Allocate()
	afk.InitPlayer("afk")
	afk.AFK = true

	if got := l.eligibleVoters(); got != 1 {
		t.Fatalf("eligibleVoters() = %d, want 1", got)
	}
}

func TestFreshMasterStateNeverIncludesPasswords(t *testing.T) {
	l, table, world := newTestLoop()
	_ = addPlaying(l, table, world)
	l.passwords = auth.Passwords{Player: "hunter2", Administrator: "rootroot"}

	data := l.freshMasterState()
	body := string(data)
	if body == "" {
		t.Fatal("expected a non-empty master state body")
	}
	if contains(body, "hunter2") || contains(body, "rootroot") {
		t.Fatal("master state must never include a configured password")
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

