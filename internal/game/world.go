package game

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/eternitynet/server/internal/collision"
	"github.com/eternitynet/server/internal/protocol"
)

// World holds the authoritative simulation state for one map: every
// actor as an ark ECS entity, the sector/tile geometry it moves through,
// and the net-ID registry clients need to bind wire updates to entities.
type World struct {
	Tick uint64

	ecs ecs.World

	position   *ecs.Map1[Position]
	velocity   *ecs.Map1[Velocity]
	collider   *ecs.Map1[Collider]
	netID      *ecs.Map1[NetID]
	kind       *ecs.Map1[Kind]
	health     *ecs.Map1[Health]
	grounded   *ecs.Map1[Grounded]
	gravity    *ecs.Map1[Gravity]
	playerTag  *ecs.Map1[PlayerTag]
	weapon     *ecs.Map1[WeaponState]
	team       *ecs.Map1[Team]
	spectator  *ecs.Map1[Spectator]
	missile    *ecs.Map1[Missile]
	target     *ecs.Map1[Target]
	sectorLink *ecs.Map1[SectorLink]

	actorFilter  *ecs.Filter5[Position, Velocity, Collider, NetID, Kind]
	playerFilter *ecs.Filter2[Position, PlayerTag]

	// TileMap is the static world geometry (floors/walls/platforms),
	// kept from the teacher's collision package.
	TileMap *collision.TileMap
	// Sectors holds the moving-plane state the unlagged engine rewinds
	// alongside player positions (spec.md §4.G).
	Sectors *collision.SectorTable

	byNetID  map[int32]ecs.Entity
	byClient map[int]ecs.Entity
	nextNetID int32
}

// NewWorld creates an empty world with no geometry loaded; call
// ResetForMap to install a map's geometry before spawning actors.
func NewWorld() *World {
	w := &World{}
	w.ecs = ecs.NewWorld()
	w.position = ecs.NewMap1[Position](&w.ecs)
	w.velocity = ecs.NewMap1[Velocity](&w.ecs)
	w.collider = ecs.NewMap1[Collider](&w.ecs)
	w.netID = ecs.NewMap1[NetID](&w.ecs)
	w.kind = ecs.NewMap1[Kind](&w.ecs)
	w.health = ecs.NewMap1[Health](&w.ecs)
	w.grounded = ecs.NewMap1[Grounded](&w.ecs)
	w.gravity = ecs.NewMap1[Gravity](&w.ecs)
	w.playerTag = ecs.NewMap1[PlayerTag](&w.ecs)
	w.weapon = ecs.NewMap1[WeaponState](&w.ecs)
	w.team = ecs.NewMap1[Team](&w.ecs)
	w.spectator = ecs.NewMap1[Spectator](&w.ecs)
	w.missile = ecs.NewMap1[Missile](&w.ecs)
	w.target = ecs.NewMap1[Target](&w.ecs)
	w.sectorLink = ecs.NewMap1[SectorLink](&w.ecs)

	w.actorFilter = ecs.NewFilter5[Position, Velocity, Collider, NetID, Kind](&w.ecs)
	w.playerFilter = ecs.NewFilter2[Position, PlayerTag](&w.ecs)

	w.TileMap = collision.NewTileMap(1, 1)
	w.Sectors = collision.NewSectorTable()
	w.TileMap.Sectors = w.Sectors
	w.byNetID = make(map[int32]ecs.Entity)
	w.byClient = make(map[int]ecs.Entity)
	return w
}

// ResetForMap clears all actors and the net-ID registry so a freshly
// loaded map starts from net ID 1 (spec.md §4.J "Rebuild NET-ID
// registry"), then installs tm and sectors as the world's geometry.
func (w *World) ResetForMap(tm *collision.TileMap, sectors *collision.SectorTable) {
	q := w.actorFilter.Query()
	var toRemove []ecs.Entity
	for q.Next() {
		toRemove = append(toRemove, q.Entity())
	}
	q.Close()
	for _, e := range toRemove {
		w.ecs.RemoveEntity(e)
	}
	w.byNetID = make(map[int32]ecs.Entity)
	w.byClient = make(map[int]ecs.Entity)
	w.nextNetID = 1
	w.Tick = 0
	w.TileMap = tm
	w.Sectors = sectors
	w.TileMap.Sectors = w.Sectors
}

// assignNetID returns the next free net ID, skipping the reserved
// fog/puff/blood values (spec.md §3 "all net_ids not in {0, reserved
// fog/puff/blood} are newly assigned").
func (w *World) assignNetID() int32 {
	w.nextNetID++
	return w.nextNetID - 1
}

// SpawnPlayer creates a player-controlled actor bound to clientIndex and
// returns its assigned net ID.
func (w *World) SpawnPlayer(clientIndex int, x, y, z float64) int32 {
	id := w.assignNetID()
	e := w.ecs.NewEntity()
	w.position.Add(e, &Position{X: x, Y: y, Z: z})
	w.velocity.Add(e, &Velocity{})
	w.collider.Add(e, &Collider{Radius: 16, Height: 56})
	w.netID.Add(e, &NetID{ID: id})
	w.kind.Add(e, &Kind{Value: KindPlayer})
	w.health.Add(e, &Health{Current: 100, Max: 100})
	w.grounded.Add(e, &Grounded{})
	w.gravity.Add(e, &Gravity{Scale: 1})
	w.playerTag.Add(e, &PlayerTag{ClientIndex: clientIndex})
	w.weapon.Add(e, &WeaponState{Slot: 1})

	w.byNetID[id] = e
	w.byClient[clientIndex] = e
	return id
}

// RemovePlayer despawns the actor bound to clientIndex, if any.
func (w *World) RemovePlayer(clientIndex int) (netID int32, ok bool) {
	e, exists := w.byClient[clientIndex]
	if !exists {
		return 0, false
	}
	if nid := w.netID.Get(e); nid != nil {
		netID = nid.ID
	}
	delete(w.byNetID, netID)
	delete(w.byClient, clientIndex)
	w.ecs.RemoveEntity(e)
	return netID, true
}

// PlayerEntity returns the ECS entity bound to a client index.
func (w *World) PlayerEntity(clientIndex int) (ecs.Entity, bool) {
	e, ok := w.byClient[clientIndex]
	return e, ok
}

// ActorByNetID resolves a net ID to its entity.
func (w *World) ActorByNetID(id int32) (ecs.Entity, bool) {
	e, ok := w.byNetID[id]
	return e, ok
}

// SpawnMissile creates a missile actor owned by ownerNetID; missiles are
// simulated client-side after spawn so the server never broadcasts their
// per-tic position (spec.md §4.E.f).
func (w *World) SpawnMissile(ownerNetID int32, x, y, z float64, vx, vy, vz float64, damage int) int32 {
	id := w.assignNetID()
	e := w.ecs.NewEntity()
	w.position.Add(e, &Position{X: x, Y: y, Z: z})
	w.velocity.Add(e, &Velocity{X: vx, Y: vy, Z: vz})
	w.collider.Add(e, &Collider{Radius: 8, Height: 8})
	w.netID.Add(e, &NetID{ID: id})
	w.kind.Add(e, &Kind{Value: KindMissile})
	w.missile.Add(e, &Missile{OwnerNetID: ownerNetID, Damage: damage})
	w.byNetID[id] = e
	return id
}

// SpawnSpawnOnly creates a spawn-only actor (blood/puff/teleport fog):
// clients receive a single actorspawned and no further updates
// (spec.md §4.E.f).
func (w *World) SpawnSpawnOnly(kind ActorKind, x, y, z float64) int32 {
	var id int32
	switch kind {
	case KindBlood:
		id = NetIDBlood
	case KindPuff:
		id = NetIDPuff
	case KindTeleportFog:
		id = NetIDFog
	default:
		id = w.assignNetID()
	}
	e := w.ecs.NewEntity()
	w.position.Add(e, &Position{X: x, Y: y, Z: z})
	w.kind.Add(e, &Kind{Value: kind})
	// Spawn-only actors are not tracked by net ID uniquely (reserved IDs
	// may repeat across many instances) so they are not added to
	// byNetID; the caller only needs the spawn broadcast, not a handle.
	return id
}

// SetPlayerIntent is a placeholder entry point for applying decoded
// command fields onto a player entity; the tic loop (internal/tic) is
// responsible for translating protocol.Command into movement, and calls
// through here so game stays the single owner of actor mutation.
func (w *World) SetPlayerIntent(clientIndex int, cmd protocol.Command) {
	e, ok := w.byClient[clientIndex]
	if !ok {
		return
	}
	pos := w.position.Get(e)
	vel := w.velocity.Get(e)
	if pos == nil || vel == nil {
		return
	}
	pos.Angle += float32(cmd.AngleDelta) / 65536.0 * 360.0
	pos.Pitch += float32(cmd.PitchDelta) / 65536.0 * 360.0

	const moveScale = 1.0 / 256.0
	vel.X = float64(cmd.ForwardMove) * moveScale
	vel.Y = float64(cmd.SideMove) * moveScale
}

// HitResult reports the one actor a hitscan reached, if any.
type HitResult struct {
	TargetClientIndex int
	TargetNetID       int32
	X, Y, Z           float64
	Killed            bool
}

// Hitscan traces a line from shooterClientIndex's eye position along its
// current facing for up to maxRange map units, testing every other
// in-game player's cylindrical collider and applying damage to the
// nearest one the line crosses (spec.md §4.G "evaluate that shot against
// the world the shooter could actually see"; the unlagged rewind around
// this call is what makes "the world" mean the rewound one). immune
// excludes any client Rewind marked immune for this evaluation. Ok is
// false if the shooter has no live entity or nothing was hit.
func (w *World) Hitscan(shooterClientIndex int, damage int, maxRange float64, immune map[int]bool) (HitResult, bool) {
	shooter, ok := w.byClient[shooterClientIndex]
	if !ok {
		return HitResult{}, false
	}
	origin := w.position.Get(shooter)
	if origin == nil {
		return HitResult{}, false
	}
	rad := float64(origin.Angle) * math.Pi / 180
	dx, dy := math.Cos(rad), math.Sin(rad)

	var target ecs.Entity
	targetIndex := -1
	nearest := maxRange
	for clientIndex, e := range w.byClient {
		if clientIndex == shooterClientIndex || immune[clientIndex] {
			continue
		}
		pos := w.position.Get(e)
		col := w.collider.Get(e)
		if pos == nil || col == nil {
			continue
		}
		if h := w.health.Get(e); h != nil && h.Dead {
			continue
		}
		px, py := pos.X-origin.X, pos.Y-origin.Y
		along := px*dx + py*dy
		if along < 0 || along > nearest {
			continue
		}
		perp := math.Abs(px*dy - py*dx)
		if perp > col.Radius {
			continue
		}
		nearest = along
		target = e
		targetIndex = clientIndex
	}
	if targetIndex < 0 {
		return HitResult{}, false
	}

	pos := w.position.Get(target)
	result := HitResult{TargetClientIndex: targetIndex, TargetNetID: w.NetIDOf(target), X: pos.X, Y: pos.Y, Z: pos.Z}
	if h := w.health.Get(target); h != nil {
		h.Current -= damage
		if h.Current <= 0 {
			h.Current = 0
			h.Dead = true
			result.Killed = true
		}
	}
	return result, true
}

// Update advances the world by one tic: integrate velocity, apply
// gravity down to the floor height under each actor (setting Grounded),
// and tick the moving sectors. Walls are not collided against and no
// damage state is cleared here.
func (w *World) Update() {
	w.Tick++

	q := w.actorFilter.Query()
	for q.Next() {
		pos, vel, col, _, kindc := q.Get()
		if kindc.Value == KindMissile {
			// Missiles are simulated client-side; server only tracks
			// them for collision/explosion, still integrating position
			// so server-side hit checks stay authoritative.
		}
		pos.X += vel.X
		pos.Y += vel.Y
		pos.Z += vel.Z

		grounded := w.grounded.Get(q.Entity())
		grav := w.gravity.Get(q.Entity())
		if grav != nil {
			floor := w.TileMap.FloorHeightAt(pos.X, pos.Y)
			pos.Z -= grav.Scale
			if pos.Z <= floor {
				pos.Z = floor
				vel.Z = 0
				if grounded != nil {
					grounded.OnGround = true
				}
			} else if grounded != nil {
				grounded.OnGround = false
			}
		}
		_ = col
	}
	q.Close()

	w.Sectors.Tick()
}

// VisitActors calls fn for every net-visible actor currently alive.
func (w *World) VisitActors(fn func(e ecs.Entity, pos *Position, vel *Velocity, nid *NetID, kind *Kind)) {
	q := w.actorFilter.Query()
	for q.Next() {
		pos, vel, _, nid, kind := q.Get()
		fn(q.Entity(), pos, vel, nid, kind)
	}
	q.Close()
}

// Position returns a pointer to the given entity's Position, or nil.
func (w *World) Position(e ecs.Entity) *Position { return w.position.Get(e) }

// Velocity returns a pointer to the given entity's Velocity, or nil.
func (w *World) Velocity(e ecs.Entity) *Velocity { return w.velocity.Get(e) }

// Health returns a pointer to the given entity's Health, or nil.
func (w *World) Health(e ecs.Entity) *Health { return w.health.Get(e) }

// NetIDOf returns the net ID of an entity, or 0 if it has none.
func (w *World) NetIDOf(e ecs.Entity) int32 {
	n := w.netID.Get(e)
	if n == nil {
		return 0
	}
	return n.ID
}
