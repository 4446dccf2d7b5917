package protocol

import (
	"fmt"
	"math"
)

// MsgType identifies the kind of a wire message. The set is closed and the
// integer values encode wire compatibility — never reorder or reuse a
// value (spec.md §4.B).
type MsgType uint32

const (
	// Server → client.
	MsgGameState MsgType = iota
	MsgInitialState
	MsgCurrentState
	MsgSync
	MsgMapStarted
	MsgMapCompleted
	MsgClientInit
	MsgAuthResult
	MsgClientStatus
	MsgPlayerPosition
	MsgPlayerSpawned
	MsgPlayerInfoUpdated
	MsgPlayerWeaponState
	MsgPlayerRemoved
	MsgPlayerTouchedSpecial
	MsgServerMessage
	MsgPlayerMessage // also client → server (chat/auth/rcon/vote ballot)
	MsgAnnouncerEvent
	MsgPuffSpawned
	MsgBloodSpawned
	MsgActorSpawned
	MsgActorPosition
	MsgActorMiscState
	MsgActorTarget
	MsgActorState
	MsgActorDamaged
	MsgActorKilled
	MsgActorRemoved
	MsgLineActivated
	MsgMonsterActive
	MsgMonsterAwakened
	MsgMissileSpawned
	MsgMissileExploded
	MsgCubeSpawned
	MsgSectorPosition
	MsgVote
	MsgVoteResult
	MsgTicFinished

	// Client → server only.
	MsgClientRequest
	MsgVoteRequest
	MsgPlayerCommand
)

var msgNames = map[MsgType]string{
	MsgGameState:            "gamestate",
	MsgInitialState:         "initialstate",
	MsgCurrentState:         "currentstate",
	MsgSync:                 "sync",
	MsgMapStarted:           "mapstarted",
	MsgMapCompleted:         "mapcompleted",
	MsgClientInit:           "clientinit",
	MsgAuthResult:           "authresult",
	MsgClientStatus:         "clientstatus",
	MsgPlayerPosition:       "playerposition",
	MsgPlayerSpawned:        "playerspawned",
	MsgPlayerInfoUpdated:    "playerinfoupdated",
	MsgPlayerWeaponState:    "playerweaponstate",
	MsgPlayerRemoved:        "playerremoved",
	MsgPlayerTouchedSpecial: "playertouchedspecial",
	MsgServerMessage:        "servermessage",
	MsgPlayerMessage:        "playermessage",
	MsgAnnouncerEvent:       "announcerevent",
	MsgPuffSpawned:          "puffspawned",
	MsgBloodSpawned:         "bloodspawned",
	MsgActorSpawned:         "actorspawned",
	MsgActorPosition:        "actorposition",
	MsgActorMiscState:       "actormiscstate",
	MsgActorTarget:          "actortarget",
	MsgActorState:           "actorstate",
	MsgActorDamaged:         "actordamaged",
	MsgActorKilled:          "actorkilled",
	MsgActorRemoved:         "actorremoved",
	MsgLineActivated:        "lineactivated",
	MsgMonsterActive:        "monsteractive",
	MsgMonsterAwakened:      "monsterawakened",
	MsgMissileSpawned:       "missilespawned",
	MsgMissileExploded:      "missileexploded",
	MsgCubeSpawned:          "cubespawned",
	MsgSectorPosition:       "sectorposition",
	MsgVote:                 "vote",
	MsgVoteResult:           "voteresult",
	MsgTicFinished:          "ticfinished",
	MsgClientRequest:        "clientrequest",
	MsgVoteRequest:          "voterequest",
	MsgPlayerCommand:        "playercommand",
}

func (t MsgType) String() string {
	if n, ok := msgNames[t]; ok {
		return n
	}
	return fmt.Sprintf("msgtype(%d)", uint32(t))
}

// clientOriginated is the closed set of message kinds a client is ever
// allowed to send. Anything else arriving from a peer is a protocol
// violation (spec.md §4.B).
var clientOriginated = map[MsgType]bool{
	MsgClientRequest:     true,
	MsgPlayerMessage:     true,
	MsgPlayerInfoUpdated: true,
	MsgPlayerCommand:     true,
	MsgVoteRequest:       true,
}

// IsClientOriginated reports whether t is ever legally sent by a client.
func (t MsgType) IsClientOriginated() bool { return clientOriginated[t] }

// ServerOnly reports whether t may only be sent by the server — any
// inbound packet with this type is a protocol violation per spec.md §4.B.
func (t MsgType) ServerOnly() bool { return !t.IsClientOriginated() }

// alwaysOmitsWorldIndex is the subset of client-originated kinds that are
// never legitimately server-originated, so an envelope of this type has
// no world_index regardless of direction. playermessage and
// playerinfoupdated are deliberately excluded: both are bidirectional,
// and spec.md §6's no-world_index exception names playermessage only
// "from client-to-server" — a server-sent playermessage or
// playerinfoupdated always carries world_index.
var alwaysOmitsWorldIndex = map[MsgType]bool{
	MsgClientRequest: true,
	MsgPlayerCommand: true,
	MsgVoteRequest:   true,
}

// ClientRequestKind enumerates the snapshot the client is asking for.
type ClientRequestKind uint8

const (
	RequestInitialState ClientRequestKind = iota
	RequestCurrentState
	RequestSync
)

// ClientRequest is sent client → server with no world_index.
type ClientRequest struct {
	Kind ClientRequestKind
}

func (m ClientRequest) Marshal() []byte {
	w := NewWriter(1)
	w.U8(uint8(m.Kind))
	return w.Bytes()
}

func UnmarshalClientRequest(body []byte) (ClientRequest, error) {
	r := NewReader(body)
	m := ClientRequest{Kind: ClientRequestKind(r.U8())}
	if r.Err() != nil {
		return m, fmt.Errorf("clientrequest: %w", r.Err())
	}
	return m, nil
}

// PlayerMessageKind distinguishes the sideband purpose of a playermessage.
type PlayerMessageKind uint8

const (
	RecipientBroadcast PlayerMessageKind = iota
	RecipientTeam
	RecipientPrivate
	RecipientAuth
	RecipientRCON
	RecipientVoteBallot
	RecipientServerNotice
)

// PlayerMessage covers both directions: client chat/auth/rcon/vote-ballot
// sends, and the server's relay/notice broadcasts.
type PlayerMessage struct {
	Kind      PlayerMessageKind
	FromIndex int32 // server → client only; ignored/overwritten on receipt
	ToIndex   int32 // for RecipientPrivate/RecipientTeam
	Text      string
}

// Marshal encodes the message body. Text is truncated to leave room for
// the terminator within MaxPlayerMessageLen, matching spec.md's 256-byte
// cap on player-message text including terminator.
func (m PlayerMessage) Marshal() []byte {
	text := m.Text
	if len(text) > MaxPlayerMessageLen-1 {
		text = text[:MaxPlayerMessageLen-1]
	}
	w := NewWriter(16 + len(text))
	w.U8(uint8(m.Kind))
	w.I32(m.FromIndex)
	w.I32(m.ToIndex)
	w.U32(uint32(len(text) + 1))
	w.ZString(text)
	return w.Bytes()
}

func UnmarshalPlayerMessage(body []byte) (PlayerMessage, error) {
	r := NewReader(body)
	m := PlayerMessage{
		Kind:      PlayerMessageKind(r.U8()),
		FromIndex: r.I32(),
		ToIndex:   r.I32(),
	}
	declared := int(r.U32())
	if declared < 1 || declared > MaxPlayerMessageLen {
		return m, fmt.Errorf("playermessage: %w", ErrLengthMismatch)
	}
	start := r.pos
	m.Text = r.ZString(declared)
	if r.Err() != nil {
		return m, fmt.Errorf("playermessage: %w", r.Err())
	}
	if r.pos-start != declared {
		return m, fmt.Errorf("playermessage: %w", ErrLengthMismatch)
	}
	return m, nil
}

// AuthResult tells the connecting client its current (possibly
// unchanged) authorization level.
type AuthResult struct {
	Level   uint8
	Message string
}

func (m AuthResult) Marshal() []byte {
	w := NewWriter(8 + len(m.Message))
	w.U8(m.Level)
	w.ZString(m.Message)
	return w.Bytes()
}

func UnmarshalAuthResult(body []byte) (AuthResult, error) {
	r := NewReader(body)
	m := AuthResult{Level: r.U8()}
	m.Message = r.ZString(r.Remaining())
	if r.Err() != nil {
		return m, fmt.Errorf("authresult: %w", r.Err())
	}
	return m, nil
}

// VoteRequest asks the server to start a vote on a command string.
type VoteRequest struct {
	CommandText string
}

func (m VoteRequest) Marshal() []byte {
	w := NewWriter(8 + len(m.CommandText))
	w.LString(m.CommandText)
	return w.Bytes()
}

func UnmarshalVoteRequest(body []byte) (VoteRequest, error) {
	r := NewReader(body)
	m := VoteRequest{CommandText: r.LString()}
	if r.Err() != nil {
		return m, fmt.Errorf("voterequest: %w", r.Err())
	}
	return m, nil
}

// Vote is broadcast when a vote starts or its tally changes.
type Vote struct {
	CommandText string
	StartedTick uint32
	Duration    uint32
	Threshold   float32
	Yea, Nay    int32
	Eligible    int32
}

func (m Vote) Marshal() []byte {
	w := NewWriter(32 + len(m.CommandText))
	w.LString(m.CommandText)
	w.U32(m.StartedTick)
	w.U32(m.Duration)
	w.U32(math.Float32bits(m.Threshold))
	w.I32(m.Yea)
	w.I32(m.Nay)
	w.I32(m.Eligible)
	return w.Bytes()
}

func UnmarshalVote(body []byte) (Vote, error) {
	r := NewReader(body)
	m := Vote{
		CommandText: r.LString(),
		StartedTick: r.U32(),
		Duration:    r.U32(),
		Threshold:   math.Float32frombits(r.U32()),
		Yea:         r.I32(),
		Nay:         r.I32(),
		Eligible:    r.I32(),
	}
	if r.Err() != nil {
		return m, fmt.Errorf("vote: %w", r.Err())
	}
	return m, nil
}

// VoteResult is broadcast once a vote concludes.
type VoteResult struct {
	Passed bool
	Reason string
}

func (m VoteResult) Marshal() []byte {
	w := NewWriter(4 + len(m.Reason))
	w.Bool(m.Passed)
	w.ZString(m.Reason)
	return w.Bytes()
}

func UnmarshalVoteResult(body []byte) (VoteResult, error) {
	r := NewReader(body)
	m := VoteResult{Passed: r.Bool()}
	m.Reason = r.ZString(r.Remaining())
	if r.Err() != nil {
		return m, fmt.Errorf("voteresult: %w", r.Err())
	}
	return m, nil
}

// TicFinished marks the end of everything broadcast for a given tic. It
// carries no body; the envelope's world_index is the signal.
type TicFinished struct{}

func (TicFinished) Marshal() []byte { return nil }

// ClientStatus is the periodic telemetry broadcast (spec.md §4.E.h).
type ClientStatus struct {
	PlayerIndex int32
	RTTMillis   uint32
	LossPercent uint8
	QueueDepth  uint32
}

func (m ClientStatus) Marshal() []byte {
	w := NewWriter(13)
	w.I32(m.PlayerIndex)
	w.U32(m.RTTMillis)
	w.U8(m.LossPercent)
	w.U32(m.QueueDepth)
	return w.Bytes()
}

func UnmarshalClientStatus(body []byte) (ClientStatus, error) {
	r := NewReader(body)
	m := ClientStatus{
		PlayerIndex: r.I32(),
		RTTMillis:   r.U32(),
		LossPercent: r.U8(),
		QueueDepth:  r.U32(),
	}
	if r.Err() != nil {
		return m, fmt.Errorf("clientstatus: %w", r.Err())
	}
	return m, nil
}

// PlayerInfoUpdated carries a client's requested option/cosmetic change,
// sent client → server, and the server's confirmed broadcast of it.
type PlayerInfoUpdated struct {
	PlayerIndex int32
	Field       uint8
	Value       int32
}

func (m PlayerInfoUpdated) Marshal() []byte {
	w := NewWriter(9)
	w.I32(m.PlayerIndex)
	w.U8(m.Field)
	w.I32(m.Value)
	return w.Bytes()
}

func UnmarshalPlayerInfoUpdated(body []byte) (PlayerInfoUpdated, error) {
	r := NewReader(body)
	m := PlayerInfoUpdated{
		PlayerIndex: r.I32(),
		Field:       r.U8(),
		Value:       r.I32(),
	}
	if r.Err() != nil {
		return m, fmt.Errorf("playerinfoupdated: %w", r.Err())
	}
	return m, nil
}

// PlayerRemoved announces a client leaving (disconnect or kick).
type PlayerRemoved struct {
	PlayerIndex int32
	Reason      uint8
}

func (m PlayerRemoved) Marshal() []byte {
	w := NewWriter(5)
	w.I32(m.PlayerIndex)
	w.U8(m.Reason)
	return w.Bytes()
}

func UnmarshalPlayerRemoved(body []byte) (PlayerRemoved, error) {
	r := NewReader(body)
	m := PlayerRemoved{PlayerIndex: r.I32(), Reason: r.U8()}
	if r.Err() != nil {
		return m, fmt.Errorf("playerremoved: %w", r.Err())
	}
	return m, nil
}

// MapStarted signals the zero-tic of a freshly loaded map.
type MapStarted struct {
	MapIndex      int32
	MapName       string
	ResourceCount uint32
}

func (m MapStarted) Marshal() []byte {
	w := NewWriter(16 + len(m.MapName))
	w.I32(m.MapIndex)
	w.ZString(m.MapName)
	w.U32(m.ResourceCount)
	return w.Bytes()
}

func UnmarshalMapStarted(body []byte) (MapStarted, error) {
	r := NewReader(body)
	m := MapStarted{MapIndex: r.I32()}
	m.MapName = r.ZString(9)
	m.ResourceCount = r.U32()
	if r.Err() != nil {
		return m, fmt.Errorf("mapstarted: %w", r.Err())
	}
	return m, nil
}

// MapCompleted is broadcast when the current map ends.
type MapCompleted struct {
	NextMapIndex     int32
	ShowIntermission bool
}

func (m MapCompleted) Marshal() []byte {
	w := NewWriter(5)
	w.I32(m.NextMapIndex)
	w.Bool(m.ShowIntermission)
	return w.Bytes()
}

func UnmarshalMapCompleted(body []byte) (MapCompleted, error) {
	r := NewReader(body)
	m := MapCompleted{NextMapIndex: r.I32(), ShowIntermission: r.Bool()}
	if r.Err() != nil {
		return m, fmt.Errorf("mapcompleted: %w", r.Err())
	}
	return m, nil
}
