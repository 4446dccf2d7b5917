package console

import (
	"context"
	"math/rand"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/eternitynet/server/internal/auth"
	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/config"
	"github.com/eternitynet/server/internal/game"
	"github.com/eternitynet/server/internal/master"
	"github.com/eternitynet/server/internal/queue"
	"github.com/eternitynet/server/internal/session"
	"github.com/eternitynet/server/internal/tic"
	"github.com/eternitynet/server/internal/transport"
	"github.com/eternitynet/server/internal/vote"
)

func threeMaps() []config.MapEntrySpec {
	return []config.MapEntrySpec{{Name: "MAP01"}, {Name: "MAP02"}, {Name: "MAP03"}}
}

// newTestDispatcher builds a Loop the same way internal/tic's own
// tests do (a zero-value Listener, never dialed) and wraps it in a
// Dispatcher with a seeded rng for deterministic coinflip/map-number
// assertions.
func newTestDispatcher(t *testing.T, access *auth.AccessList) (*Dispatcher, *tic.Loop, *clientstate.Table, *game.World) {
	t.Helper()
	table := clientstate.NewTable()
	world := game.NewWorld()
	tm, sectors := game.DemoMapSized(16, 16)
	world.ResetForMap(tm, sectors)

	rotation := session.NewRotation(threeMaps(), config.ShuffleNone, rand.New(rand.NewSource(1)))
	sess := session.NewSession(rotation)
	sess.CompleteMap(table)

	listener := &transport.Listener{}
	opts := tic.Options{MaxPlayers: 8, JoinTimeLimitTics: 35 * 10, FloodRPS: 20, FloodBurst: 5}
	loop := tic.New(opts, listener, table, world, sess, vote.NewManager(), master.NewManager(nil),
		auth.Passwords{}, access, nil)

	d := NewDispatcher(loop, rand.New(rand.NewSource(7)))
	return d, loop, table, world
}

func addPlaying(loop *tic.Loop, table *clientstate.Table, world *game.World, name string) *clientstate.Client {
	c := table.Allocate()
	c.InitPlayer(name)
	c.Address = "10.0.0." + name
	world.SpawnPlayer(c.Index, 0, 0, 0)
	queue.RequestJoin(table, c, loop.WorldIndex(), 8, 35*10)
	return c
}

func TestKickByNameDisconnectsTheMatchingClient(t *testing.T) {
	d, loop, table, world := newTestDispatcher(t, nil)
	c := addPlaying(loop, table, world, "alice")

	out := d.Run("kick alice")
	if out != "kicked alice (index 1)" {
		t.Fatalf("got %q", out)
	}
	loop.RunTic(context.Background())
	if c.InUse() {
		t.Fatal("expected the kicked client's slot to be freed by the end of the tic")
	}
}

func TestKickUnknownPlayerReportsError(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, nil)
	out := d.Run("kick nobody")
	if out != `kick: no such player "nobody"` {
		t.Fatalf("got %q", out)
	}
}

func TestBanWithoutAccessListReportsError(t *testing.T) {
	d, loop, table, world := newTestDispatcher(t, nil)
	addPlaying(loop, table, world, "bob")
	out := d.Run("ban bob cheating")
	if out != "ban: no access list configured" {
		t.Fatalf("got %q", out)
	}
}

func TestBanAddsEntryAndListBansShowsIt(t *testing.T) {
	access, err := auth.LoadAccessList(filepath.Join(t.TempDir(), "access.json"))
	if err != nil {
		t.Fatalf("LoadAccessList: %v", err)
	}
	d, loop, table, world := newTestDispatcher(t, access)
	c := addPlaying(loop, table, world, "carol")

	d.Run("ban carol cheating 60")

	if !access.IsBanned(c.Address) {
		t.Fatal("expected the banned address to be reported banned")
	}
	out := d.Run("list_bans")
	if out == "no active bans" {
		t.Fatal("expected list_bans to show the new entry")
	}
}

func TestUnbanRemovesEntry(t *testing.T) {
	access, _ := auth.LoadAccessList(filepath.Join(t.TempDir(), "access.json"))
	access.AddBan("10.0.0.dave", "dave", "cheating", nil)
	d, _, _, _ := newTestDispatcher(t, access)

	d.Run("unban 10.0.0.dave")

	if access.IsBanned("10.0.0.dave") {
		t.Fatal("expected unban to clear the ban")
	}
}

func TestWhitelistAndListWhitelists(t *testing.T) {
	access, _ := auth.LoadAccessList(filepath.Join(t.TempDir(), "access.json"))
	d, _, _, _ := newTestDispatcher(t, access)

	d.Run("whitelist 10.0.0.eve trusted")

	out := d.Run("list_whitelists")
	if out == "no whitelist entries" {
		t.Fatal("expected the new whitelist entry to show up")
	}
	if _, ok := access.Whitelists()["10.0.0.eve"]; !ok {
		t.Fatal("expected 10.0.0.eve in the whitelist map")
	}
}

func TestCoinflipReturnsHeadsOrTails(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, nil)
	out := d.Run("coinflip")
	if out != "heads" && out != "tails" {
		t.Fatalf("coinflip returned %q, want heads or tails", out)
	}
}

func TestRandomMapNumberWithinRange(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, nil)
	out := d.Run("random_map_number")
	n, err := strconv.Atoi(out)
	if err != nil {
		t.Fatalf("random_map_number returned non-numeric %q", out)
	}
	if n < 1 || n > 3 {
		t.Fatalf("random_map_number = %d, want in [1,3]", n)
	}
}

func TestMapJumpsToNamedMap(t *testing.T) {
	d, loop, _, _ := newTestDispatcher(t, nil)
	out := d.Run("map 2")
	if out != "changing to map 2: MAP02" {
		t.Fatalf("got %q", out)
	}
	if loop.MapCount() != 3 {
		t.Fatalf("MapCount() = %d, want 3", loop.MapCount())
	}
}

func TestMapOutOfRangeReportsError(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, nil)
	out := d.Run("map 99")
	if out != "map: 99 out of range (1-3)" {
		t.Fatalf("got %q", out)
	}
}

