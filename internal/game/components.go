// Package game defines ECS components and the actor/thinker simulation
// that backs the server tic loop, the unlagged rewind, and map sessions
// (spec.md components E, G, J).
package game

// Position is an actor's world-space location plus facing.
type Position struct {
	X, Y, Z      float64
	Angle, Pitch float32
}

// Velocity is an actor's momentum (spec.md calls this "momentum").
type Velocity struct {
	X, Y, Z float64
}

// Collider is an axis-aligned bounding radius/height, Doom-style.
type Collider struct {
	Radius, Height float64
}

// NetID is the per-map wire identifier assigned to every net-visible
// object; 0 means "not yet registered" (spec.md Glossary "Net ID").
type NetID struct {
	ID int32
}

// Reserved net IDs that are never reassigned during a map's lifetime
// (spec.md §3 "Map state" invariant).
const (
	NetIDNone      int32 = 0
	NetIDFog       int32 = -1
	NetIDPuff      int32 = -2
	NetIDBlood     int32 = -3
)

// ActorKind distinguishes broadcast/rewind treatment (spec.md §4.E.f:
// missiles are client-simulated, blood/puffs/fog are spawn-only).
type ActorKind uint8

const (
	KindPlayer ActorKind = iota
	KindMonster
	KindMissile
	KindPuff
	KindBlood
	KindTeleportFog
	KindProp // scenery, flags, items — anything else net-visible
)

// Kind tags an entity with its ActorKind.
type Kind struct {
	Value ActorKind
}

// PlayerTag marks a player-controlled entity and links it to its client
// record index (spec.md §3 "Client record").
type PlayerTag struct {
	ClientIndex int
}

// Health tracks hit points; Dead latches once Current <= 0 so a single
// actorkilled broadcast fires exactly once.
type Health struct {
	Current, Max int
	Dead         bool
}

// Grounded marks whether an actor currently rests on a floor plane.
type Grounded struct {
	OnGround bool
	SectorID int32 // which sector's floor it rests on, 0 if none tracked
}

// Gravity scales the standard fall acceleration (0 = floats, e.g. flying
// spectators or certain monsters).
type Gravity struct {
	Scale float64
}

// Spectator marks "flying, intangible, no ammo" mode (spec.md §4.D
// set_spectator).
type Spectator struct {
	Flying bool
}

// Team assigns a gameplay side for tdm/ctf (0 = no team / free-for-all).
type Team struct {
	Color int
}

// WeaponState tracks the currently readied/firing weapon slot and its
// cooldown, the Doom-style analogue of the teacher's punch AttackState.
type WeaponState struct {
	Slot        int
	Firing      bool
	CooldownLeft int
}

// WeaponCooldownTicks is how many tics a weapon's refire delay lasts by
// default; individual weapons may override this via their own table
// (kept out of scope here — see Non-goals for DeHackEd/weapon data).
const WeaponCooldownTicks = 4

// Target links an actor to whatever it is currently aiming/attacking,
// by net ID (spec.md §9 "cyclic references... become indices into an
// actor table keyed by net ID").
type Target struct {
	NetID int32
}

// Missile marks a projectile; clients simulate these locally once
// spawned, so the server only ever broadcasts actorspawned/actorexploded
// for them, never per-tic actorposition (spec.md §4.E.f).
type Missile struct {
	OwnerNetID int32
	Damage     int
}

// Damage is a one-shot payload applied on contact (hazards, missiles).
type Damage struct {
	Amount int
}

// SectorLink marks which sector index the actor currently occupies, for
// damage-check radius/line-of-sight queries against moving planes.
type SectorLink struct {
	SectorID int32
}
