package auth

import "testing"

func TestAuthenticatePicksHighestMatchingLevel(t *testing.T) {
	p := Passwords{Player: "play", Moderator: "mod", Administrator: "admin"}
	if got := p.Authenticate("admin"); got != LevelAdministrator {
		t.Fatalf("Authenticate(admin) = %v, want administrator", got)
	}
	if got := p.Authenticate("mod"); got != LevelModerator {
		t.Fatalf("Authenticate(mod) = %v, want moderator", got)
	}
	if got := p.Authenticate("nope"); got != LevelNone {
		t.Fatalf("Authenticate(nope) = %v, want none", got)
	}
}

func TestAuthenticateUnsetPasswordNeverMatchesEmptyAttempt(t *testing.T) {
	p := Passwords{Spectator: "", Player: "play"}
	if got := p.Authenticate(""); got != LevelNone {
		t.Fatalf("Authenticate(\"\") = %v, want none even though spectator password is unset", got)
	}
}

func TestPromoteUnsetPromotesThroughOpenLevels(t *testing.T) {
	p := Passwords{Spectator: "", Player: ""}
	if got := p.PromoteUnset(LevelNone); got != LevelPlayer {
		t.Fatalf("PromoteUnset = %v, want player (both spectator and player open)", got)
	}

	p2 := Passwords{Spectator: "", Player: "secret"}
	if got := p2.PromoteUnset(LevelNone); got != LevelSpectator {
		t.Fatalf("PromoteUnset = %v, want spectator only", got)
	}
}

func TestPromoteUnsetNeverDemotes(t *testing.T) {
	p := Passwords{Spectator: "", Player: ""}
	if got := p.PromoteUnset(LevelAdministrator); got != LevelAdministrator {
		t.Fatalf("PromoteUnset demoted an already-authenticated admin to %v", got)
	}
}

func TestRateLimiterAllowsOnePerTic(t *testing.T) {
	r := NewRateLimiter()
	if !r.Allow(1, 100) {
		t.Fatal("first attempt at tic 100 should be allowed")
	}
	if r.Allow(1, 100) {
		t.Fatal("second attempt at the same tic should be rejected")
	}
	if !r.Allow(1, 101) {
		t.Fatal("attempt at the next tic should be allowed")
	}
}

func TestRateLimiterForgetResetsClient(t *testing.T) {
	r := NewRateLimiter()
	r.Allow(2, 50)
	r.Forget(2)
	if !r.Allow(2, 50) {
		t.Fatal("forgotten client should be allowed again at the same tic")
	}
}
