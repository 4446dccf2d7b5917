package vote

import "testing"

func TestStartRejectsSpectatorAndNonVotableCommand(t *testing.T) {
	m := NewManager()
	if err := m.Start("map e1m1", true, 0, 35, 0.5); err == nil {
		t.Fatal("expected a spectator-originated vote to be rejected")
	}
	if err := m.Start("noclip", false, 0, 35, 0.5); err == nil {
		t.Fatal("expected a non-votable command to be rejected")
	}
}

func TestCastRejectsDoubleBallot(t *testing.T) {
	m := NewManager()
	if err := m.Start("kick 3", false, 0, 35, 0.5); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := m.Cast(1, BallotYea); err != nil {
		t.Fatalf("unexpected cast error: %v", err)
	}
	if err := m.Cast(1, BallotNay); err == nil {
		t.Fatal("expected a second ballot from the same client to be rejected")
	}
}

func TestResolvePassesOnceThresholdReached(t *testing.T) {
	m := NewManager()
	m.Start("kick 3", false, 0, 100, 0.5)
	m.Cast(1, BallotYea)
	m.Cast(2, BallotYea)

	passed, cmd, ok := m.Resolve(10, 4)
	if !ok {
		t.Fatal("expected 2/4 yea votes to reach a 0.5 threshold before the vote expires")
	}
	if !passed || cmd != "kick 3" {
		t.Fatalf("Resolve() = (%v, %q), want (true, \"kick 3\")", passed, cmd)
	}
}

func TestResolveFailsOnExpiryBelowThreshold(t *testing.T) {
	m := NewManager()
	m.Start("kick 3", false, 0, 50, 0.75)
	m.Cast(1, BallotYea)

	if _, _, ok := m.Resolve(49, 4); ok {
		t.Fatal("vote should not resolve before duration elapses")
	}
	passed, cmd, ok := m.Resolve(50, 4)
	if !ok {
		t.Fatal("expected the vote to resolve once its duration elapsed")
	}
	if passed {
		t.Fatalf("1/4 cannot reach 0.75 threshold, expected failure, got passed=%v cmd=%q", passed, cmd)
	}
	if m.Active() != nil {
		t.Fatal("expected no active vote after resolution")
	}
}
