// Package tic drives the fixed 35 Hz server tic loop (spec.md §4.E),
// pumping transport events, applying buffered commands, ticking the
// world, and broadcasting deltas in the order the protocol's ordering
// guarantee requires. Grounded on the teacher's
// Server.runTickLoop/processTick/broadcastState split
// (internal/server/server.go), generalized from its single
// world.Update()+Snapshot() broadcast into the full per-tic sequence
// spec.md §4.E enumerates, and wired to every other component built
// for this server.
package tic

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/eternitynet/server/internal/auth"
	"github.com/eternitynet/server/internal/clientstate"
	"github.com/eternitynet/server/internal/cmdqueue"
	"github.com/eternitynet/server/internal/config"
	"github.com/eternitynet/server/internal/demo"
	"github.com/eternitynet/server/internal/game"
	"github.com/eternitynet/server/internal/master"
	"github.com/eternitynet/server/internal/protocol"
	"github.com/eternitynet/server/internal/queue"
	"github.com/eternitynet/server/internal/session"
	"github.com/eternitynet/server/internal/sync"
	"github.com/eternitynet/server/internal/transport"
	"github.com/eternitynet/server/internal/unlagged"
	"github.com/eternitynet/server/internal/vote"
)

// TicRate is the fixed simulation rate spec.md §4.E mandates.
const TicRate = 35

// Options configures one Loop's policy knobs, all derived from the
// server's JSON config (internal/config).
type Options struct {
	MaxPlayers        int
	JoinTimeLimitTics uint32
	FloodRPS          float64
	FloodBurst        int
}

// Loop owns one running map's authoritative state and the transport it
// serves. Every field is a component built for a distinct spec.md
// section; Loop's job is only sequencing and wiring, not owning any of
// their state itself.
type Loop struct {
	opts      Options
	listener  *transport.Listener
	table     *clientstate.Table
	world     *game.World
	sess      *session.Session
	votes     *vote.Manager
	masters   *master.Manager
	passwords auth.Passwords
	access    *auth.AccessList
	rateLimit *auth.RateLimiter
	flood     *cmdqueue.FloodLimiter
	posDelta  *sync.Baseline
	miscDelta *sync.Baseline
	rec       *demo.Recorder // nil when not recording

	worldIndex uint32

	peerToClient map[*transport.Peer]int
	clientToPeer map[int]*transport.Peer

	pendingRemoval map[int]protocol.DisconnectReason
}

// New wires a Loop over already-constructed components. rec may be nil
// if this run is not recording a demo.
func New(opts Options, listener *transport.Listener, table *clientstate.Table, world *game.World,
	sess *session.Session, votes *vote.Manager, masters *master.Manager,
	passwords auth.Passwords, access *auth.AccessList, rec *demo.Recorder) *Loop {
	return &Loop{
		opts:           opts,
		listener:       listener,
		table:          table,
		world:          world,
		sess:           sess,
		votes:          votes,
		masters:        masters,
		passwords:      passwords,
		access:         access,
		rateLimit:      auth.NewRateLimiter(),
		flood:          cmdqueue.NewFloodLimiter(opts.FloodRPS, opts.FloodBurst),
		posDelta:       sync.NewBaseline(),
		miscDelta:      sync.NewBaseline(),
		rec:            rec,
		peerToClient:   make(map[*transport.Peer]int),
		clientToPeer:   make(map[int]*transport.Peer),
		pendingRemoval: make(map[int]protocol.DisconnectReason),
	}
}

// WorldIndex returns the tic the loop is about to run or just ran.
func (l *Loop) WorldIndex() uint32 { return l.worldIndex }

// RunTic executes exactly one server tic (spec.md §4.E steps 1-6).
func (l *Loop) RunTic(ctx context.Context) {
	l.beginMapIfArmed()

	l.pumpTransport()
	l.applyPendingRemovals()

	barrierCleared := true
	if l.sess.BarrierActive() {
		cleared, timedOut := l.sess.Resolve(l.table, l.worldIndex)
		barrierCleared = cleared
		for _, c := range timedOut {
			l.pendingRemoval[c.Index] = protocol.ReasonLatencyLimit
		}
		l.applyPendingRemovals()
	}

	queue.MarkAFK(l.table, l.worldIndex, l.opts.JoinTimeLimitTics)

	if barrierCleared {
		l.applyCommands()
	}
	l.world.Update()
	l.recordSnapshots()
	l.broadcastActorDeltas()
	l.broadcastPlayerPositions()
	if l.worldIndex%TicRate == 0 {
		l.broadcastClientStatus()
	}
	l.resolveVote()
	l.broadcastToAll(protocol.MsgTicFinished, protocol.TicFinished{}.Marshal(), transport.Reliable)

	l.masters.Upkeep(ctx, l.worldIndex, TicRate, l.freshMasterState)

	l.worldIndex++
}

// beginMapIfArmed starts the zero-tic of a freshly rotated map (spec.md
// §4.J "At the next tic, world_index resets to 0, mapstarted is
// broadcast..."). CompleteMap (called by whatever detects the map-end
// condition — an exit trigger, a vote, a fragcount) only arms
// should_send_new_map; the actual reset happens here so it lines up
// with a tic boundary.
func (l *Loop) beginMapIfArmed() {
	if !l.sess.ShouldSendNewMap {
		return
	}
	l.worldIndex = 0
	current, _ := l.sess.Rotation.Current()
	l.table.ForEach(func(c *clientstate.Client) {
		if c.QueueLevel != clientstate.QueuePlaying {
			return
		}
		l.send(c, protocol.MsgMapStarted, protocol.MapStarted{
			MapIndex: int32(l.sess.CurrentMapIndex),
			MapName:  current.Name,
		}.Marshal(), transport.Reliable)
	})
	l.sess.BeginBarrier(l.worldIndex)
}

// CompleteMap runs the "map completed" sequence (spec.md §4.J): picks
// the next map, resets per-client state, and tells every in-game
// client an intermission is (or isn't) coming. The caller is
// responsible for loading the next map's geometry and calling
// game.World.ResetForMap before the next RunTic, since that requires
// filesystem/resource work this package has no business doing.
func (l *Loop) CompleteMap(showIntermission bool) config.MapEntrySpec {
	next := l.sess.CompleteMap(l.table)
	l.broadcastToAll(protocol.MsgMapCompleted, protocol.MapCompleted{
		NextMapIndex:     int32(l.sess.CurrentMapIndex),
		ShowIntermission: showIntermission,
	}.Marshal(), transport.Reliable)
	return next
}

// pumpTransport drains every event queued since the last tic (spec.md
// §4.E.1-2). PollNonBlocking never waits: the loop's own ticker, not
// Poll, is what paces RunTic.
func (l *Loop) pumpTransport() {
	for {
		ev, ok := l.listener.PollNonBlocking()
		if !ok {
			return
		}
		switch ev.Kind {
		case transport.EventConnect:
			l.handleConnect(ev.Peer)
		case transport.EventReceive:
			l.handleReceive(ev.Peer, ev.Data)
		case transport.EventDisconnect:
			l.handleDisconnect(ev.Peer)
		}
	}
}

func (l *Loop) handleConnect(peer *transport.Peer) {
	c := l.table.Allocate()
	if c == nil {
		l.listener.Disconnect(peer, protocol.ReasonServerFull)
		return
	}
	addr := peer.RemoteAddr()
	if l.access != nil && l.access.IsBanned(addr) {
		l.listener.Disconnect(peer, protocol.ReasonBanned)
		return
	}
	c.InitPlayer("")
	c.ConnectID = peer.ConnectID
	c.Address = addr
	c.AuthLevel = l.passwords.PromoteUnset(auth.LevelNone)
	l.peerToClient[peer] = c.Index
	l.clientToPeer[c.Index] = peer
}

func (l *Loop) handleDisconnect(peer *transport.Peer) {
	idx, ok := l.peerToClient[peer]
	if !ok {
		return
	}
	// Cancellation: the removal broadcast happens at tic end so
	// mid-tic references to this client stay valid (spec.md §4.E
	// "Cancellation").
	l.pendingRemoval[idx] = protocol.ReasonNone
}

func (l *Loop) handleReceive(peer *transport.Peer, raw []byte) {
	idx, ok := l.peerToClient[peer]
	if !ok {
		return
	}
	c := l.table.Get(idx)

	msgType, _, body, err := protocol.DecodeEnvelope(raw)
	if err != nil || msgType.ServerOnly() {
		l.disconnectClient(c, protocol.ReasonInvalidMessage)
		return
	}

	if l.rec != nil {
		_ = l.rec.WriteNetworkMessage(int32(idx), raw)
	}

	switch msgType {
	case protocol.MsgClientRequest:
		l.handleClientRequest(c, body)
	case protocol.MsgPlayerCommand:
		l.handlePlayerCommand(c, body)
	case protocol.MsgPlayerMessage:
		l.handlePlayerMessage(c, body)
	case protocol.MsgPlayerInfoUpdated:
		l.handlePlayerInfoUpdated(c, body)
	case protocol.MsgVoteRequest:
		l.handleVoteRequest(c, body)
	default:
		l.disconnectClient(c, protocol.ReasonInvalidMessage)
	}
}

func (l *Loop) handleClientRequest(c *clientstate.Client, body []byte) {
	req, err := protocol.UnmarshalClientRequest(body)
	if err != nil {
		l.disconnectClient(c, protocol.ReasonInvalidMessage)
		return
	}
	c.CurrentRequest = req.Kind
	switch req.Kind {
	case protocol.RequestInitialState:
		l.send(c, protocol.MsgInitialState, encodeChecksum(l.world.Snapshot().Checksum), transport.Reliable)
	case protocol.RequestCurrentState:
		l.send(c, protocol.MsgCurrentState, encodeChecksum(l.world.Snapshot().Checksum), transport.Reliable)
		if l.sess.BarrierActive() {
			l.sess.Acknowledge(c)
		}
		queue.RequestJoin(l.table, c, l.worldIndex, l.opts.MaxPlayers, l.opts.JoinTimeLimitTics)
	case protocol.RequestSync:
		l.send(c, protocol.MsgSync, nil, transport.Reliable)
	}
}

func encodeChecksum(checksum uint32) []byte {
	w := protocol.NewWriter(4)
	w.U32(checksum)
	return w.Bytes()
}

func (l *Loop) handlePlayerCommand(c *clientstate.Client, body []byte) {
	if !l.flood.Allow(c.Index) {
		l.disconnectClient(c, protocol.ReasonCommandFlood)
		return
	}
	pc, err := protocol.UnmarshalPlayerCommand(body)
	if err != nil {
		l.disconnectClient(c, protocol.ReasonInvalidMessage)
		return
	}
	cmdqueue.Enqueue(c, pc)
}

func (l *Loop) handlePlayerMessage(c *clientstate.Client, body []byte) {
	msg, err := protocol.UnmarshalPlayerMessage(body)
	if err != nil {
		l.disconnectClient(c, protocol.ReasonInvalidMessage)
		return
	}
	switch msg.Kind {
	case protocol.RecipientAuth:
		if !l.rateLimit.Allow(c.Index, l.worldIndex) {
			return
		}
		level := l.passwords.Authenticate(msg.Text)
		if level > c.AuthLevel {
			c.AuthLevel = level
		}
		l.send(c, protocol.MsgAuthResult, protocol.AuthResult{Level: uint8(c.AuthLevel)}.Marshal(), transport.Reliable)
	case protocol.RecipientVoteBallot:
		ballot := vote.BallotNay
		if strings.EqualFold(msg.Text, "yea") {
			ballot = vote.BallotYea
		}
		_ = l.votes.Cast(c.Index, ballot)
	default:
		msg.FromIndex = int32(c.Index)
		l.broadcastToAll(protocol.MsgPlayerMessage, msg.Marshal(), transport.Reliable)
	}
}

func (l *Loop) handlePlayerInfoUpdated(c *clientstate.Client, body []byte) {
	upd, err := protocol.UnmarshalPlayerInfoUpdated(body)
	if err != nil {
		l.disconnectClient(c, protocol.ReasonInvalidMessage)
		return
	}
	if upd.PlayerIndex != int32(c.Index) {
		l.disconnectClient(c, protocol.ReasonInvalidMessage)
		return
	}
	l.broadcastToAll(protocol.MsgPlayerInfoUpdated, upd.Marshal(), transport.Reliable)
}

func (l *Loop) handleVoteRequest(c *clientstate.Client, body []byte) {
	req, err := protocol.UnmarshalVoteRequest(body)
	if err != nil {
		l.disconnectClient(c, protocol.ReasonInvalidMessage)
		return
	}
	const voteDuration = TicRate * 30
	const voteThreshold = 0.5
	if err := l.votes.Start(req.CommandText, c.Spectating, l.worldIndex, voteDuration, voteThreshold); err != nil {
		return
	}
	a := l.votes.Active()
	l.broadcastToAll(protocol.MsgVote, protocol.Vote{
		CommandText: a.CommandText,
		StartedTick: a.StartedTic,
		Duration:    a.Duration,
		Threshold:   float32(a.Threshold),
		Eligible:    int32(l.eligibleVoters()),
	}.Marshal(), transport.Reliable)
}

func (l *Loop) eligibleVoters() int {
	n := 0
	l.table.ForEach(func(c *clientstate.Client) {
		if !c.Spectating && !c.AFK {
			n++
		}
	})
	return n
}

// disconnectClient sends a typed disconnect reason and defers the
// actual removal to tic end, same as a transport-level disconnect
// event (spec.md §4.E "Cancellation").
func (l *Loop) disconnectClient(c *clientstate.Client, reason protocol.DisconnectReason) {
	l.pendingRemoval[c.Index] = reason
}

// applyPendingRemovals frees every slot queued for removal this tic
// and broadcasts playerremoved for any that were in-game.
func (l *Loop) applyPendingRemovals() {
	for idx, reason := range l.pendingRemoval {
		c := l.table.Get(idx)
		if c == nil {
			continue
		}
		wasPlaying := c.QueueLevel == clientstate.QueuePlaying
		if peer, ok := l.clientToPeer[idx]; ok {
			l.listener.Disconnect(peer, reason)
			delete(l.peerToClient, peer)
			delete(l.clientToPeer, idx)
		}
		queue.Leave(l.table, c, l.worldIndex)
		if netID, ok := l.world.RemovePlayer(idx); ok {
			l.posDelta.Forget(netID)
			l.miscDelta.Forget(netID)
		}
		l.rateLimit.Forget(idx)
		l.flood.Forget(idx)
		c.ZeroClient()
		if wasPlaying {
			l.broadcastToAll(protocol.MsgPlayerRemoved, protocol.PlayerRemoved{
				PlayerIndex: int32(idx),
				Reason:      uint8(reason),
			}.Marshal(), transport.Reliable)
		}
	}
	l.pendingRemoval = make(map[int]protocol.DisconnectReason)
}

// hitscanDamage and hitscanRange stand in for the per-weapon damage/range
// table DeHackEd would otherwise supply (out of scope — see DESIGN.md);
// every attack command resolves as one fixed hitscan weapon.
const (
	hitscanDamage = 10
	hitscanRange  = 2048.0
)

// applyCommands runs spec.md §4.E.4.b/c: recompute each in-game
// client's jitter-buffer depth, pop what's due, and apply it —
// wrapping an attack command in the unlagged rewind first.
func (l *Loop) applyCommands() {
	l.table.ForEach(func(c *clientstate.Client) {
		if c.QueueLevel != clientstate.QueuePlaying {
			return
		}
		depth := cmdqueue.TargetDepth(c.LossPercent, c.RTTMillis)
		cmds := cmdqueue.Pop(c, depth)
		for _, cmd := range cmds {
			c.LastCommandRunWorldIndex = l.worldIndex
			if l.rec != nil {
				_ = l.rec.WritePlayerCommand(cmd)
			}
			if cmd.Buttons&protocol.ButtonAttack != 0 {
				scratch := unlagged.Rewind(l.world, l.table, l.world.Sectors, c.Index, cmd.WorldIndexSeen, l.worldIndex)
				l.world.SetPlayerIntent(c.Index, cmd)
				hit, ok := l.world.Hitscan(c.Index, hitscanDamage, hitscanRange, immuneSet(scratch))
				unlagged.Restore(l.world, scratch)
				l.resolveHitscan(c, hit, ok)
				continue
			}
			l.world.SetPlayerIntent(c.Index, cmd)
		}
	})
}

// immuneSet collects every client Rewind marked immune for this
// evaluation (spec.md §4.G "mark its actor immune to damage").
func immuneSet(scratch *unlagged.Scratch) map[int]bool {
	immune := make(map[int]bool, len(scratch.Clients))
	for _, rc := range scratch.Clients {
		if rc.Immune {
			immune[rc.Index] = true
		}
	}
	return immune
}

// resolveHitscan broadcasts, for an actual hit, the blood impact effect
// plus actordamaged and, if the target died, actorkilled (spec.md
// §4.E.f, §4.G). ok is false on a miss or when the shooter has no live
// entity to aim from; nothing is broadcast in either case.
func (l *Loop) resolveHitscan(shooter *clientstate.Client, hit game.HitResult, ok bool) {
	if !ok {
		return
	}
	shooterEntity, _ := l.world.PlayerEntity(shooter.Index)
	shooterNetID := l.world.NetIDOf(shooterEntity)
	blood := l.world.SpawnSpawnOnly(game.KindBlood, hit.X, hit.Y, hit.Z)
	l.broadcastToAll(protocol.MsgBloodSpawned, protocol.SpawnOnlyEvent{NetID: blood, X: hit.X, Y: hit.Y, Z: hit.Z}.Marshal(), transport.Reliable)
	l.broadcastToAll(protocol.MsgActorDamaged, protocol.ActorDamaged{
		NetID: hit.TargetNetID, InflictorID: shooterNetID, Amount: hitscanDamage,
	}.Marshal(), transport.Reliable)
	if hit.Killed {
		l.broadcastToAll(protocol.MsgActorKilled, protocol.ActorKilled{
			NetID: hit.TargetNetID, KillerID: shooterNetID,
		}.Marshal(), transport.Reliable)
	}
}

// recordSnapshots implements spec.md §4.E.4.e: save player & actor
// state into the ring buffers every tic, for both the unlagged rewind
// and demo checkpoint/rewind to read later.
func (l *Loop) recordSnapshots() {
	l.table.ForEach(func(c *clientstate.Client) {
		e, ok := l.world.PlayerEntity(c.Index)
		if !ok {
			return
		}
		pos := l.world.Position(e)
		vel := l.world.Velocity(e)
		if pos == nil || vel == nil {
			return
		}
		c.RecordPosition(l.worldIndex, protocol.PlayerPosition{
			WorldIndex:  l.worldIndex,
			PlayerIndex: int32(c.Index),
			X:           pos.X, Y: pos.Y, Z: pos.Z,
			Angle: pos.Angle, Pitch: pos.Pitch,
			MomX: vel.X, MomY: vel.Y, MomZ: vel.Z,
		})
		if h := l.world.Health(e); h != nil {
			c.RecordMisc(l.worldIndex, protocol.ActorMiscState{
				NetID:  l.world.NetIDOf(e),
				Health: int32(h.Current),
			})
		}
	})
}

// broadcastActorDeltas implements spec.md §4.E.4.f: any actor whose
// position or misc-state differs from last tic's broadcast goes out,
// skipping client-simulated missiles and spawn-only blood/puffs/fog.
func (l *Loop) broadcastActorDeltas() {
	var positions []protocol.ActorPosition
	var miscs []protocol.ActorMiscState
	l.world.VisitActors(func(e ecs.Entity, pos *game.Position, _ *game.Velocity, nid *game.NetID, kind *game.Kind) {
		switch kind.Value {
		case game.KindMissile, game.KindPuff, game.KindBlood, game.KindTeleportFog:
			return
		}
		positions = append(positions, protocol.ActorPosition{
			NetID: nid.ID,
			X:     pos.X, Y: pos.Y, Z: pos.Z,
			Angle: pos.Angle,
		})
		if h := l.world.Health(e); h != nil {
			miscs = append(miscs, protocol.ActorMiscState{NetID: nid.ID, Health: int32(h.Current)})
		}
	})

	for _, p := range sync.ActorDeltas(l.posDelta, positions) {
		l.broadcastToAll(protocol.MsgActorPosition, p.Marshal(), transport.Reliable)
	}
	for _, m := range miscs {
		if l.miscDelta.Changed(m.NetID, m.Marshal()) {
			l.broadcastToAll(protocol.MsgActorMiscState, m.Marshal(), transport.Reliable)
		}
	}
	l.posDelta.Advance(l.worldIndex)
	l.miscDelta.Advance(l.worldIndex)
}

// broadcastPlayerPositions implements spec.md §4.E.4.g: every player's
// authoritative position, unreliable and unsequenced.
func (l *Loop) broadcastPlayerPositions() {
	l.table.ForEach(func(c *clientstate.Client) {
		entry, ok := c.PositionAt(l.worldIndex, l.worldIndex)
		if !ok {
			return
		}
		l.broadcastToAll(protocol.MsgPlayerPosition, entry.Pos.Marshal(), transport.Unsequenced)
	})
}

// broadcastClientStatus implements spec.md §4.E.4.h.
func (l *Loop) broadcastClientStatus() {
	l.table.ForEach(func(c *clientstate.Client) {
		l.broadcastToAll(protocol.MsgClientStatus, protocol.ClientStatus{
			PlayerIndex: int32(c.Index),
			RTTMillis:   c.RTTMillis,
			LossPercent: c.LossPercent,
			QueueDepth:  uint32(len(c.CommandQueue)),
		}.Marshal(), transport.Reliable)
	})
}

// resolveVote implements spec.md §4.E.4.i.
func (l *Loop) resolveVote() {
	passed, command, ok := l.votes.Resolve(l.worldIndex, l.eligibleVoters())
	if !ok {
		return
	}
	reason := "vote failed"
	if passed {
		reason = "vote passed"
	}
	l.broadcastToAll(protocol.MsgVoteResult, protocol.VoteResult{Passed: passed, Reason: reason}.Marshal(), transport.Reliable)
	if passed {
		l.runVotedCommand(command)
	}
}

// runVotedCommand is a seam for internal/console's command dispatcher;
// by itself tic has no business interpreting "kick <n>" or "map <n>".
var RunVotedCommand func(l *Loop, commandText string)

func (l *Loop) runVotedCommand(commandText string) {
	if RunVotedCommand != nil {
		RunVotedCommand(l, commandText)
	}
}

// Table exposes the client table for internal/console, which needs to
// resolve a player argument (index or name) the same way the tic loop
// itself never has to.
func (l *Loop) Table() *clientstate.Table { return l.table }

// Access exposes the ban/whitelist list for internal/console's
// `ban`/`unban`/`whitelist`/`unwhitelist`/`list_bans`/`list_whitelists`
// commands. Nil when the server was started without an access list.
func (l *Loop) Access() *auth.AccessList { return l.access }

// MapCount reports how many maps are in the current rotation, so
// internal/console can validate a `map <n>` argument before trying it.
func (l *Loop) MapCount() int { return l.sess.Rotation.Len() }

// Announce broadcasts a server-authored notice (internal/console's
// kick/ban commands use this to tell players why someone left).
func (l *Loop) Announce(text string) {
	l.broadcastToAll(protocol.MsgServerMessage, protocol.ServerMessage{Text: text}.Marshal(), transport.Reliable)
}

// Kick disconnects client idx with the given reason. The removal is
// deferred to tic end like any other disconnect (spec.md §4.E
// "Cancellation"). Returns false if idx names no connected client.
func (l *Loop) Kick(idx int, reason protocol.DisconnectReason) bool {
	c := l.table.Get(idx)
	if c == nil || !c.InUse() {
		return false
	}
	l.disconnectClient(c, reason)
	return true
}

// ForceMap jumps straight to the 1-based map number n, announcing it
// the same way an organic map completion does (spec.md's console `map
// <n>` command). Returns false if n is out of range.
func (l *Loop) ForceMap(n int) (config.MapEntrySpec, bool) {
	next, ok := l.sess.ForceMap(l.table, n-1)
	if !ok {
		return config.MapEntrySpec{}, false
	}
	l.broadcastToAll(protocol.MsgMapCompleted, protocol.MapCompleted{
		NextMapIndex:     int32(l.sess.CurrentMapIndex),
		ShowIntermission: false,
	}.Marshal(), transport.Reliable)
	return next, true
}

// masterStatePlayer and masterState are the state POST body: the
// current map index, the world index, and per player the name, loss,
// RTT, frags and playing flag, with no password ever included. Frags is
// always 0, and the body carries no player count, no per-player time and
// no team scores.
type masterStatePlayer struct {
	Name        string `json:"name"`
	LossPercent uint8  `json:"loss_percent"`
	RTTMillis   uint32 `json:"rtt_millis"`
	Frags       int    `json:"frags"`
	Playing     bool   `json:"playing"`
}

type masterState struct {
	MapIndex   int                 `json:"map_index"`
	WorldIndex uint32              `json:"world_index"`
	Players    []masterStatePlayer `json:"players"`
}

func (l *Loop) freshMasterState() []byte {
	state := masterState{MapIndex: l.sess.CurrentMapIndex, WorldIndex: l.worldIndex}
	l.table.ForEach(func(c *clientstate.Client) {
		state.Players = append(state.Players, masterStatePlayer{
			Name:        c.Name,
			LossPercent: c.LossPercent,
			RTTMillis:   c.RTTMillis,
			Playing:     c.QueueLevel == clientstate.QueuePlaying,
		})
	})
	data, err := json.Marshal(state)
	if err != nil {
		return nil
	}
	return data
}

// preAuthAllowed is the closed set of message kinds an unauthorized
// client (auth_level < spectator) may still receive while it hasn't
// passed auth (spec.md §3): the two snapshot replies, its own auth
// result, and the map-started notice it needs to join the barrier.
var preAuthAllowed = map[protocol.MsgType]bool{
	protocol.MsgInitialState: true,
	protocol.MsgCurrentState: true,
	protocol.MsgAuthResult:   true,
	protocol.MsgMapStarted:   true,
}

func (l *Loop) send(c *clientstate.Client, t protocol.MsgType, body []byte, flag transport.Flag) {
	if c.AuthLevel < auth.LevelSpectator && !preAuthAllowed[t] {
		return
	}
	peer, ok := l.clientToPeer[c.Index]
	if !ok {
		return
	}
	envelope := protocol.EncodeEnvelope(t, l.worldIndex, body)
	_ = peer.Send(envelope, flag)
}

// broadcastToAll sends to every in-use client with a registered peer
// whose auth level clears it to receive t (spec.md §3), whatever its
// queue state.
func (l *Loop) broadcastToAll(t protocol.MsgType, body []byte, flag transport.Flag) {
	envelope := protocol.EncodeEnvelope(t, l.worldIndex, body)
	l.table.ForEach(func(c *clientstate.Client) {
		if c.AuthLevel < auth.LevelSpectator && !preAuthAllowed[t] {
			return
		}
		peer, ok := l.clientToPeer[c.Index]
		if !ok {
			return
		}
		_ = peer.Send(envelope, flag)
	})
}

// TickerDuration is the real-time period between RunTic calls.
func TickerDuration() time.Duration {
	return time.Second / TicRate
}
