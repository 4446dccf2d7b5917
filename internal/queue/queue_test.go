package queue

import (
	"testing"

	"github.com/eternitynet/server/internal/clientstate"
)

func allocPlayer(t *testing.T, table *clientstate.Table, name string) *clientstate.Client {
	t.Helper()
	c := table.Allocate()
	if c == nil {
		t.Fatal("ran out of client slots")
	}
	c.InitPlayer(name)
	return c
}

func TestRequestJoinAdmitsDirectlyUnderCapacity(t *testing.T) {
	table := clientstate.NewTable()
	c := allocPlayer(t, table, "a")

	admitted := RequestJoin(table, c, 100, 8, 35*20)
	if !admitted {
		t.Fatal("expected immediate admission under max_players")
	}
	if c.QueueLevel != clientstate.QueuePlaying {
		t.Fatalf("expected QueuePlaying, got %v", c.QueueLevel)
	}
}

func TestRequestJoinQueuesWhenFull(t *testing.T) {
	table := clientstate.NewTable()
	playing := allocPlayer(t, table, "playing")
	RequestJoin(table, playing, 100, 1, 35*20)

	waiter := allocPlayer(t, table, "waiter")
	admitted := RequestJoin(table, waiter, 100, 1, 35*20)
	if admitted {
		t.Fatal("expected the second client to queue, not join directly")
	}
	if waiter.QueueLevel != clientstate.QueueCanJoin {
		t.Fatalf("a single queued client with position 0 should immediately read can_join, got %v", waiter.QueueLevel)
	}
}

func TestLeaveAdvancesQueueBehind(t *testing.T) {
	table := clientstate.NewTable()
	playing := allocPlayer(t, table, "playing")
	RequestJoin(table, playing, 100, 1, 35*20)

	second := allocPlayer(t, table, "second")
	RequestJoin(table, second, 100, 1, 35*20)
	third := allocPlayer(t, table, "third")
	RequestJoin(table, third, 101, 1, 35*20)

	if third.QueuePosition != 1 {
		t.Fatalf("expected third client queued behind second at position 1, got %d", third.QueuePosition)
	}

	Leave(table, playing, 102)

	if third.QueuePosition != 0 {
		t.Fatalf("expected third to advance to position 0 after the playing slot freed, got %d", third.QueuePosition)
	}
}

func TestMarkAFKDemotesStaleCanJoin(t *testing.T) {
	table := clientstate.NewTable()
	c := allocPlayer(t, table, "a")
	c.QueueLevel = clientstate.QueueCanJoin
	c.FinishedWaitingTic = 0

	MarkAFK(table, 1000, 100)
	if !c.AFK {
		t.Fatal("expected a can_join client well past the time limit to be marked afk")
	}
}

func TestJoinPromotesCanJoinAndAdvancesQueue(t *testing.T) {
	table := clientstate.NewTable()
	playing := allocPlayer(t, table, "playing")
	RequestJoin(table, playing, 100, 1, 35*20)

	front := allocPlayer(t, table, "front")
	RequestJoin(table, front, 100, 1, 35*20)
	behind := allocPlayer(t, table, "behind")
	RequestJoin(table, behind, 100, 1, 35*20)

	if front.QueueLevel != clientstate.QueueCanJoin || behind.QueuePosition != 1 {
		t.Fatalf("unexpected setup state: front=%+v behind=%+v", front, behind)
	}

	if !Join(table, front, 101) {
		t.Fatal("expected the can_join client to be admitted")
	}
	if front.QueueLevel != clientstate.QueuePlaying {
		t.Fatalf("expected front promoted to playing, got %v", front.QueueLevel)
	}
	if behind.QueuePosition != 0 || behind.QueueLevel != clientstate.QueueCanJoin {
		t.Fatalf("expected behind to slide up to can_join at position 0, got pos=%d level=%v", behind.QueuePosition, behind.QueueLevel)
	}
}

func TestMarkAFKLeavesFreshCanJoinAlone(t *testing.T) {
	table := clientstate.NewTable()
	c := allocPlayer(t, table, "a")
	c.QueueLevel = clientstate.QueueCanJoin
	c.FinishedWaitingTic = 990

	MarkAFK(table, 1000, 100)
	if c.AFK {
		t.Fatal("a can_join client still within the time limit must not be marked afk")
	}
}
