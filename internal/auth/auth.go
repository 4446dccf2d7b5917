// Package auth implements the password auth-level ladder and the
// banlist/whitelist access control spec.md §4.H describes.
package auth

// Level is a total order: none < spectator < player < moderator <
// administrator.
type Level int

const (
	LevelNone Level = iota
	LevelSpectator
	LevelPlayer
	LevelModerator
	LevelAdministrator
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelSpectator:
		return "spectator"
	case LevelPlayer:
		return "player"
	case LevelModerator:
		return "moderator"
	case LevelAdministrator:
		return "administrator"
	default:
		return "unknown"
	}
}

// Passwords holds the configured password for each level above "none".
// An empty string means that level has no password configured.
type Passwords struct {
	Spectator     string
	Player        string
	Moderator     string
	Administrator string
}

// Authenticate compares attempt against the configured passwords from
// highest level to lowest and returns the highest level whose password
// matched (spec.md §4.H). A missing (empty) password at a level never
// matches — see DESIGN.md Open Question 1 — so a client cannot
// authenticate into a level simply by sending an empty string.
func (p Passwords) Authenticate(attempt string) Level {
	ladder := []struct {
		level    Level
		password string
	}{
		{LevelAdministrator, p.Administrator},
		{LevelModerator, p.Moderator},
		{LevelPlayer, p.Player},
		{LevelSpectator, p.Spectator},
	}
	for _, rung := range ladder {
		if rung.password != "" && attempt == rung.password {
			return rung.level
		}
	}
	return LevelNone
}

// PromoteUnset implements spec.md §4.H's automatic-promotion rule: if
// the spectator password is unset, every connecting client is promoted
// to spectator; if the player password is additionally unset, they are
// promoted further to player. Never demotes a level already reached by
// password auth.
func (p Passwords) PromoteUnset(current Level) Level {
	level := current
	if p.Spectator == "" && level < LevelSpectator {
		level = LevelSpectator
	}
	if p.Player == "" && level < LevelPlayer {
		level = LevelPlayer
	}
	return level
}

// RateLimiter enforces "at most one auth attempt per tic per client"
// (spec.md §4.H).
type RateLimiter struct {
	lastAttemptTic map[int]uint32
}

// NewRateLimiter returns an empty rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{lastAttemptTic: make(map[int]uint32)}
}

// Allow reports whether clientIndex may attempt auth at worldIndex,
// and records the attempt if so.
func (r *RateLimiter) Allow(clientIndex int, worldIndex uint32) bool {
	if last, ok := r.lastAttemptTic[clientIndex]; ok && last == worldIndex {
		return false
	}
	r.lastAttemptTic[clientIndex] = worldIndex
	return true
}

// Forget clears a client's rate-limit state on disconnect.
func (r *RateLimiter) Forget(clientIndex int) {
	delete(r.lastAttemptTic, clientIndex)
}
