// Package clientstate is the fixed-size client record table (spec.md
// §3 "Client record", §4.D), generalized from the teacher's
// server.Session (internal/server/server.go) and
// client.PredictionBuffer (internal/client/prediction.go).
package clientstate

import (
	"sync"

	"github.com/eternitynet/server/internal/auth"
	"github.com/eternitynet/server/internal/protocol"
)

// MaxClients bounds the client table (spec.md §3, index 0 reserved for
// the server's own pseudo-spectator).
const MaxClients = 64

// RingSize is the ring-buffer length for position/misc-state/player-
// state history (spec.md §3 "typically 128").
const RingSize = 128

// WeaponSlots is the width of the per-client weapon-preference
// permutation (spec.md §4.D `set_weapon_preference`).
const WeaponSlots = 9

// QueueLevel is the join-queue state (spec.md §4.I).
type QueueLevel uint8

const (
	QueueNone QueueLevel = iota
	QueueWaiting
	QueueCanJoin
	QueuePlaying
)

// RequestKind mirrors protocol.ClientRequestKind, tracked per-client so
// the tic loop knows what the client is still owed.
type RequestKind = protocol.ClientRequestKind

// Options are the per-client gameplay overrides the server temporarily
// loads while ticking that client (spec.md §3 "options": bobbing,
// weapon toggles, autoaim, weapon speed).
type Options struct {
	NoBob       bool
	AutoAim     bool
	WeaponSpeed float64
}

// PositionEntry is one ring-buffer slot (spec.md §3 "PlayerPosition
// ring entry").
type PositionEntry struct {
	WorldIndex uint32
	Pos        protocol.PlayerPosition
	Valid      bool
}

// MiscEntry mirrors ActorMiscState history for the same client's actor.
type MiscEntry struct {
	WorldIndex uint32
	Misc       protocol.ActorMiscState
	Valid      bool
}

// Client is one MAX_CLIENTS slot (spec.md §3 "Client record").
type Client struct {
	mu sync.Mutex

	Index     int
	ConnectID string
	Address   string

	AuthLevel auth.Level

	LastAuthAttemptTic uint32

	CommandQueue              []protocol.Command
	CommandBufferFilled       bool
	LastCommandReceivedIndex  uint32
	LastCommandRunIndex       uint32
	LastCommandRunWorldIndex  uint32

	Positions  [RingSize]PositionEntry
	MiscStates [RingSize]MiscEntry

	SavedPosition  PositionEntry
	SavedMisc      MiscEntry

	WeaponPreferences [WeaponSlots + 1]int

	Options Options

	QueueLevel         QueueLevel
	QueuePosition       int
	FinishedWaitingTic uint32
	AFK                bool

	ReceivedGameState bool
	CurrentRequest    RequestKind

	RTTMillis   uint32
	LossPercent uint8

	Team        int32
	Spectating  bool

	Name      string
	Class     int32
	Skin      string
	Colormap  int32

	NetID int32 // net-visible actor bound to this client, if any

	connected bool
}

// InUse reports whether this slot holds a live connection.
func (c *Client) InUse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// InitPlayer sets class/skin/colormap/name defaults (spec.md §4.D
// `init_player(i)`).
func (c *Client) InitPlayer(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Name = name
	c.Class = 0
	c.Skin = "default"
	c.Colormap = int32(c.Index % 8)
	for i := range c.WeaponPreferences {
		c.WeaponPreferences[i] = i
	}
	c.connected = true
}

// ZeroClient fully resets the slot (spec.md §4.D `zero_client(i)`),
// used both before first use and after disconnect.
func (c *Client) ZeroClient() {
	c.mu.Lock()
	idx := c.Index
	// Overwriting *c also replaces c.mu with a fresh, unlocked mutex,
	// which releases the lock taken above.
	*c = Client{Index: idx}
}

// PutInQueue assigns the next free queue position and marks waiting
// (spec.md §4.I "assign the next free queue_position and set level
// waiting").
func (c *Client) PutInQueue(position int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.QueueLevel = QueueWaiting
	c.QueuePosition = position
	c.AFK = false
}

// RemoveFromQueue clears queue state (spec.md §4.D
// `remove_from_queue(i)`).
func (c *Client) RemoveFromQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.QueueLevel = QueueNone
	c.QueuePosition = 0
	c.FinishedWaitingTic = 0
	c.AFK = false
}

// PutAtQueueEnd requeues the client at the tail (spec.md §4.D
// `put_at_queue_end(i)` — used by a CTF/TDM team switch).
func (c *Client) PutAtQueueEnd(tailPosition int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.QueueLevel = QueueWaiting
	c.QueuePosition = tailPosition
	c.FinishedWaitingTic = 0
	c.AFK = false
}

// ResetForNewMap clears per-map state ahead of a map change (spec.md
// §4.J "Reset per-client per-map state: command queue, buffer-filled
// latch, position rings, last-indices-run") while preserving identity,
// auth level, team, and queue standing.
func (c *Client) ResetForNewMap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CommandQueue = nil
	c.CommandBufferFilled = false
	c.LastCommandReceivedIndex = 0
	c.LastCommandRunIndex = 0
	c.LastCommandRunWorldIndex = 0
	c.Positions = [RingSize]PositionEntry{}
	c.MiscStates = [RingSize]MiscEntry{}
	c.ReceivedGameState = false
	c.NetID = 0
}

// SetTelemetry records the latest round-trip/loss estimate for this
// client (spec.md §4.E.h "broadcast clientstatus telemetry (RTT, loss,
// server-side queue depth)"), which also feeds cmdqueue.TargetDepth.
func (c *Client) SetTelemetry(rttMillis uint32, lossPercent uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RTTMillis = rttMillis
	c.LossPercent = lossPercent
}

// SetSpectator toggles spectator mode (spec.md §4.D `set_spectator(i,
// bool)` — "flying, intangible, no ammo").
func (c *Client) SetSpectator(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Spectating = on
	if on {
		c.QueueLevel = QueueNone
		c.QueuePosition = 0
	}
}

// SetTeam assigns a team color, which re-spawns the client at that
// team's start point (spec.md §4.D `set_team(i, color)`). The actual
// respawn is performed by internal/session, which calls this then
// repositions the bound actor.
func (c *Client) SetTeam(color int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Team = color
}

// SetWeaponPreference re-orders the weapon-preference permutation
// (spec.md §4.D `set_weapon_preference(i, slot, weapon)`).
func (c *Client) SetWeaponPreference(slot, weapon int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot < 0 || slot >= len(c.WeaponPreferences) {
		return false
	}
	c.WeaponPreferences[slot] = weapon
	return true
}

// RecordPosition writes a ring entry for worldIndex (spec.md §3
// "written every server tic for every in-game player").
func (c *Client) RecordPosition(worldIndex uint32, pos protocol.PlayerPosition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Positions[worldIndex%RingSize] = PositionEntry{WorldIndex: worldIndex, Pos: pos, Valid: true}
}

// PositionAt returns the ring entry nearest to worldIndex, clamped to
// the ring's retention window (spec.md §4.G "clamped to the oldest
// available snapshot").
func (c *Client) PositionAt(worldIndex, currentIndex uint32) (PositionEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := worldIndex
	if currentIndex > RingSize && target < currentIndex-RingSize {
		target = currentIndex - RingSize + 1
	}
	entry := c.Positions[target%RingSize]
	if !entry.Valid {
		return PositionEntry{}, false
	}
	return entry, true
}

// RecordMisc writes a ring entry for worldIndex (spec.md §3
// "misc_states[RING]... written every server tic for every in-game
// player").
func (c *Client) RecordMisc(worldIndex uint32, misc protocol.ActorMiscState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MiscStates[worldIndex%RingSize] = MiscEntry{WorldIndex: worldIndex, Misc: misc, Valid: true}
}

// MiscAt returns the misc-state ring entry nearest worldIndex, clamped
// to the retention window exactly like PositionAt (spec.md §4.G "Also
// restore the associated misc-state").
func (c *Client) MiscAt(worldIndex, currentIndex uint32) (MiscEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := worldIndex
	if currentIndex > RingSize && target < currentIndex-RingSize {
		target = currentIndex - RingSize + 1
	}
	entry := c.MiscStates[target%RingSize]
	if !entry.Valid {
		return MiscEntry{}, false
	}
	return entry, true
}

// Table is the fixed MAX_CLIENTS array (spec.md §3 "Client record
// (MAX_CLIENTS fixed-size table, index 0 reserved for the server's own
// pseudo-spectator)").
type Table struct {
	clients [MaxClients]*Client
}

// NewTable allocates every slot up front; index 0 is reserved for the
// server's own pseudo-spectator and is never handed out by Allocate.
func NewTable() *Table {
	t := &Table{}
	for i := range t.clients {
		t.clients[i] = &Client{Index: i}
	}
	t.clients[0].connected = true
	t.clients[0].Spectating = true
	return t
}

// Get returns the client at index, or nil if out of range.
func (t *Table) Get(index int) *Client {
	if index < 0 || index >= MaxClients {
		return nil
	}
	return t.clients[index]
}

// Allocate returns the first free slot (index ≥ 1), or nil if the
// table is full (spec.md §4.A "a connect event with no free slot
// disconnects that peer").
func (t *Table) Allocate() *Client {
	for i := 1; i < MaxClients; i++ {
		if !t.clients[i].InUse() {
			return t.clients[i]
		}
	}
	return nil
}

// InUseCount counts connected clients excluding the reserved slot 0.
func (t *Table) InUseCount() int {
	n := 0
	for i := 1; i < MaxClients; i++ {
		if t.clients[i].InUse() {
			n++
		}
	}
	return n
}

// ForEach calls fn for every in-use client (index ≥ 1), in index order
// (spec.md §5 "client-apply order is the client-index order").
func (t *Table) ForEach(fn func(*Client)) {
	for i := 1; i < MaxClients; i++ {
		if t.clients[i].InUse() {
			fn(t.clients[i])
		}
	}
}
