package protocol

import (
	"fmt"
	"math"
)

// Button and weapon-select bitmasks for Command.Buttons.
const (
	ButtonAttack uint32 = 1 << iota
	ButtonUse
	ButtonJump
	ButtonSpeed
	ButtonWeaponSelect // weapon-select bits occupy the next 4 bits
)

const weaponSelectShift = 4
const weaponSelectMask = 0xF

// Command is the fixed-size struct carried over the wire for a single
// player input (spec.md §3 "Command").
type Command struct {
	Index         uint32 // per-client sequence number
	WorldIndexSeen uint32 // the tic the client believed it was executing in
	ForwardMove   int16
	SideMove      int16
	AngleDelta    int32
	PitchDelta    int32
	Buttons       uint32 // button bitmask + weapon-select bits
	Actions       uint32 // use/jump-adjacent action bits not covered by Buttons
	Chat          byte   // legacy chat sideband byte
}

// WeaponSelect extracts the 4-bit weapon-select field from Buttons.
func (c Command) WeaponSelect() uint8 {
	return uint8((c.Buttons >> weaponSelectShift) & weaponSelectMask)
}

const commandWireSize = 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 1

func (c Command) marshalInto(w *Writer) {
	w.U32(c.Index)
	w.U32(c.WorldIndexSeen)
	w.U32(uint32(uint16(c.ForwardMove)))
	w.U32(uint32(uint16(c.SideMove)))
	w.I32(c.AngleDelta)
	w.I32(c.PitchDelta)
	w.U32(c.Buttons)
	w.U32(c.Actions)
	w.U8(c.Chat)
}

func unmarshalCommand(r *Reader) Command {
	return Command{
		Index:          r.U32(),
		WorldIndexSeen: r.U32(),
		ForwardMove:    int16(uint16(r.U32())),
		SideMove:       int16(uint16(r.U32())),
		AngleDelta:     r.I32(),
		PitchDelta:     r.I32(),
		Buttons:        r.U32(),
		Actions:        r.U32(),
		Chat:           r.U8(),
	}
}

// PlayerCommand bundles one or more commands in a single client → server
// packet (spec.md §4.B, §4.F).
type PlayerCommand struct {
	Commands []Command
}

func (m PlayerCommand) Marshal() []byte {
	w := NewWriter(4 + len(m.Commands)*commandWireSize)
	w.U32(uint32(len(m.Commands)))
	for _, c := range m.Commands {
		c.marshalInto(w)
	}
	return w.Bytes()
}

func UnmarshalPlayerCommand(body []byte) (PlayerCommand, error) {
	r := NewReader(body)
	n := r.U32()
	m := PlayerCommand{Commands: make([]Command, 0, n)}
	for i := uint32(0); i < n; i++ {
		m.Commands = append(m.Commands, unmarshalCommand(r))
	}
	if r.Err() != nil {
		return m, fmt.Errorf("playercommand: %w", r.Err())
	}
	return m, nil
}

// PlayerPositionFlags captures a bitwise snapshot of movement-relevant
// actor flags at the time a position was recorded (spec.md §3).
type PlayerPositionFlags uint32

// PlayerPosition is one ring-buffer entry: a player's full kinematic
// state at a specific world tic (spec.md §3 "PlayerPosition ring entry").
type PlayerPosition struct {
	WorldIndex          uint32
	PlayerIndex         int32
	X, Y, Z             float64
	MomX, MomY, MomZ    float64
	Angle, Pitch        float32
	JumpTime            int32
	ViewZ               float64
	FloorClip           float64
	Flags               PlayerPositionFlags
}

const playerPositionWireSize = 4 + 4 + 8*8 + 4 + 4 + 4 + 4

func (m PlayerPosition) Marshal() []byte {
	w := NewWriter(playerPositionWireSize)
	w.U32(m.WorldIndex)
	w.I32(m.PlayerIndex)
	w.F64(m.X)
	w.F64(m.Y)
	w.F64(m.Z)
	w.F64(m.MomX)
	w.F64(m.MomY)
	w.F64(m.MomZ)
	w.U32(floatBitsOf(m.Angle))
	w.U32(floatBitsOf(m.Pitch))
	w.I32(m.JumpTime)
	w.F64(m.ViewZ)
	w.F64(m.FloorClip)
	w.U32(uint32(m.Flags))
	return w.Bytes()
}

func UnmarshalPlayerPosition(body []byte) (PlayerPosition, error) {
	r := NewReader(body)
	m := PlayerPosition{
		WorldIndex:  r.U32(),
		PlayerIndex: r.I32(),
		X:           r.F64(),
		Y:           r.F64(),
		Z:           r.F64(),
		MomX:        r.F64(),
		MomY:        r.F64(),
		MomZ:        r.F64(),
	}
	m.Angle = floatFromBitsOf(r.U32())
	m.Pitch = floatFromBitsOf(r.U32())
	m.JumpTime = r.I32()
	m.ViewZ = r.F64()
	m.FloorClip = r.F64()
	m.Flags = PlayerPositionFlags(r.U32())
	if r.Err() != nil {
		return m, fmt.Errorf("playerposition: %w", r.Err())
	}
	return m, nil
}

// ActorPosition is the generic actor position delta broadcast
// (spec.md §4.E.f — skips missiles, blood, puffs, teleport fog).
type ActorPosition struct {
	NetID   int32
	X, Y, Z float64
	Angle   float32
}

func (m ActorPosition) Marshal() []byte {
	w := NewWriter(32)
	w.I32(m.NetID)
	w.F64(m.X)
	w.F64(m.Y)
	w.F64(m.Z)
	w.U32(floatBitsOf(m.Angle))
	return w.Bytes()
}

func UnmarshalActorPosition(body []byte) (ActorPosition, error) {
	r := NewReader(body)
	m := ActorPosition{NetID: r.I32(), X: r.F64(), Y: r.F64(), Z: r.F64()}
	m.Angle = floatFromBitsOf(r.U32())
	if r.Err() != nil {
		return m, fmt.Errorf("actorposition: %w", r.Err())
	}
	return m, nil
}

// ActorMiscState is the generic "everything but position" delta for
// thinkers (health, state, flags — spec.md §4.E.f).
type ActorMiscState struct {
	NetID int32
	State int32
	Flags uint32
	Health int32
}

func (m ActorMiscState) Marshal() []byte {
	w := NewWriter(16)
	w.I32(m.NetID)
	w.I32(m.State)
	w.U32(m.Flags)
	w.I32(m.Health)
	return w.Bytes()
}

func UnmarshalActorMiscState(body []byte) (ActorMiscState, error) {
	r := NewReader(body)
	m := ActorMiscState{NetID: r.I32(), State: r.I32(), Flags: r.U32(), Health: r.I32()}
	if r.Err() != nil {
		return m, fmt.Errorf("actormiscstate: %w", r.Err())
	}
	return m, nil
}

// SectorPosition broadcasts a moving floor/ceiling plane's height
// (spec.md §4.G — sector snapshots feed the unlagged rewind too).
type SectorPosition struct {
	SectorID     int32
	FloorHeight  float64
	CeilHeight   float64
}

func (m SectorPosition) Marshal() []byte {
	w := NewWriter(20)
	w.I32(m.SectorID)
	w.F64(m.FloorHeight)
	w.F64(m.CeilHeight)
	return w.Bytes()
}

func UnmarshalSectorPosition(body []byte) (SectorPosition, error) {
	r := NewReader(body)
	m := SectorPosition{SectorID: r.I32(), FloorHeight: r.F64(), CeilHeight: r.F64()}
	if r.Err() != nil {
		return m, fmt.Errorf("sectorposition: %w", r.Err())
	}
	return m, nil
}

// ActorSpawned announces a newly created net-visible object.
type ActorSpawned struct {
	NetID   int32
	TypeID  int32
	X, Y, Z float64
	Angle   float32
}

func (m ActorSpawned) Marshal() []byte {
	w := NewWriter(36)
	w.I32(m.NetID)
	w.I32(m.TypeID)
	w.F64(m.X)
	w.F64(m.Y)
	w.F64(m.Z)
	w.U32(floatBitsOf(m.Angle))
	return w.Bytes()
}

func UnmarshalActorSpawned(body []byte) (ActorSpawned, error) {
	r := NewReader(body)
	m := ActorSpawned{NetID: r.I32(), TypeID: r.I32(), X: r.F64(), Y: r.F64(), Z: r.F64()}
	m.Angle = floatFromBitsOf(r.U32())
	if r.Err() != nil {
		return m, fmt.Errorf("actorspawned: %w", r.Err())
	}
	return m, nil
}

// ActorRemoved announces a net-visible object's removal.
type ActorRemoved struct {
	NetID int32
}

func (m ActorRemoved) Marshal() []byte {
	w := NewWriter(4)
	w.I32(m.NetID)
	return w.Bytes()
}

func UnmarshalActorRemoved(body []byte) (ActorRemoved, error) {
	r := NewReader(body)
	m := ActorRemoved{NetID: r.I32()}
	if r.Err() != nil {
		return m, fmt.Errorf("actorremoved: %w", r.Err())
	}
	return m, nil
}

// ActorDamaged/ActorKilled carry the minimal info clients need to play
// damage feedback without recomputing the hit themselves.
type ActorDamaged struct {
	NetID      int32
	InflictorID int32
	Amount     int32
}

func (m ActorDamaged) Marshal() []byte {
	w := NewWriter(12)
	w.I32(m.NetID)
	w.I32(m.InflictorID)
	w.I32(m.Amount)
	return w.Bytes()
}

func UnmarshalActorDamaged(body []byte) (ActorDamaged, error) {
	r := NewReader(body)
	m := ActorDamaged{NetID: r.I32(), InflictorID: r.I32(), Amount: r.I32()}
	if r.Err() != nil {
		return m, fmt.Errorf("actordamaged: %w", r.Err())
	}
	return m, nil
}

type ActorKilled struct {
	NetID     int32
	KillerID  int32
}

func (m ActorKilled) Marshal() []byte {
	w := NewWriter(8)
	w.I32(m.NetID)
	w.I32(m.KillerID)
	return w.Bytes()
}

func UnmarshalActorKilled(body []byte) (ActorKilled, error) {
	r := NewReader(body)
	m := ActorKilled{NetID: r.I32(), KillerID: r.I32()}
	if r.Err() != nil {
		return m, fmt.Errorf("actorkilled: %w", r.Err())
	}
	return m, nil
}

// SpawnOnlyEvent announces a one-shot, spawn-only actor: blood, a bullet
// puff, or teleport fog. Clients render it once and never track it by
// net ID afterward (spec.md §4.E.f), so unlike ActorSpawned there is no
// type ID or facing to carry.
type SpawnOnlyEvent struct {
	NetID   int32
	X, Y, Z float64
}

func (m SpawnOnlyEvent) Marshal() []byte {
	w := NewWriter(28)
	w.I32(m.NetID)
	w.F64(m.X)
	w.F64(m.Y)
	w.F64(m.Z)
	return w.Bytes()
}

func UnmarshalSpawnOnlyEvent(body []byte) (SpawnOnlyEvent, error) {
	r := NewReader(body)
	m := SpawnOnlyEvent{NetID: r.I32(), X: r.F64(), Y: r.F64(), Z: r.F64()}
	if r.Err() != nil {
		return m, fmt.Errorf("spawnonlyevent: %w", r.Err())
	}
	return m, nil
}

// ServerMessage is a server-authored notice (kick/ban/admin announcement)
// with no associated player, distinct from a relayed playermessage.
type ServerMessage struct {
	Text string
}

func (m ServerMessage) Marshal() []byte {
	text := m.Text
	if len(text) > MaxPlayerMessageLen-1 {
		text = text[:MaxPlayerMessageLen-1]
	}
	w := NewWriter(4 + len(text))
	w.ZString(text)
	return w.Bytes()
}

func UnmarshalServerMessage(body []byte) (ServerMessage, error) {
	r := NewReader(body)
	m := ServerMessage{Text: r.ZString(len(body))}
	if r.Err() != nil {
		return m, fmt.Errorf("servermessage: %w", r.Err())
	}
	return m, nil
}

func floatBitsOf(f float32) uint32     { return math.Float32bits(f) }
func floatFromBitsOf(b uint32) float32 { return math.Float32frombits(b) }
