// Package transport wraps a reliable-ordered + unreliable-unsequenced
// packet transport (spec.md §4.A) over QUIC/WebTransport.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"

	"github.com/eternitynet/server/internal/protocol"
)

// Flag selects the delivery channel for Send (spec.md §4.A).
type Flag uint8

const (
	Reliable Flag = iota
	Unsequenced
)

// EventKind distinguishes the three events Poll yields.
type EventKind uint8

const (
	EventConnect EventKind = iota
	EventReceive
	EventDisconnect
)

// Event is one poll result. It carries no client index: binding the
// peer to a slot is left to the higher layer (spec.md §4.A's "receiving
// from an unknown peer immediately after connect" rule) — Listener
// itself only knows about the transport-level Peer identity.
type Event struct {
	Kind EventKind
	Peer *Peer
	Data []byte // EventReceive only
	Err  error  // EventDisconnect only, may be nil for a clean close
}

// Peer is one connected client, identified by a connect_id that is
// stable for the lifetime of the session (spec.md §4.A).
type Peer struct {
	ConnectID string
	session   *webtransport.Session

	ctrlMu sync.Mutex
	ctrl   *webtransport.Stream

	closeOnce sync.Once
}

func (p *Peer) RemoteAddr() string {
	if p.session == nil {
		return ""
	}
	return p.session.RemoteAddr().String()
}

// sendReliable writes a u32 length-prefixed frame to the control
// stream. Framing replaces the teacher pack's newline-delimited JSON
// (rustyguts-bken/server/client.go's sendRaw) because our payload is
// the binary envelope from internal/protocol, which may itself contain
// zero bytes.
func (p *Peer) sendReliable(payload []byte) error {
	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()
	if p.ctrl == nil {
		return errors.New("transport: control stream not open")
	}
	return writeFrame(p.ctrl, payload)
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenPrefix [4]byte
	n := uint32(len(payload))
	lenPrefix[0] = byte(n)
	lenPrefix[1] = byte(n >> 8)
	lenPrefix[2] = byte(n >> 16)
	lenPrefix[3] = byte(n >> 24)
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func (p *Peer) sendUnreliable(payload []byte) error {
	return p.session.SendDatagram(payload)
}

// Send transmits payload to peer over the requested channel
// (spec.md §4.A `send(peer, channel, payload, flags)`).
func (p *Peer) Send(payload []byte, flag Flag) error {
	if flag == Reliable {
		return p.sendReliable(payload)
	}
	return p.sendUnreliable(payload)
}

func (p *Peer) close() {
	p.closeOnce.Do(func() {
		p.session.CloseWithError(0, "")
	})
}

// Listener accepts WebTransport sessions and turns them into Peer
// connect/receive/disconnect events, grounded on
// rustyguts-bken/server/client.go's handleClient (AcceptStream for the
// control channel, ReceiveDatagram for the unreliable channel) and
// rustyguts-bken/client/transport.go's Dialer-side QUICConfig.
type Listener struct {
	wt       *webtransport.Server
	events   chan Event
	maxPeers int

	mu    sync.Mutex
	peers map[string]*Peer
}

// ErrServerFull is returned (and translated to ReasonServerFull) when
// accept would exceed maxPeers.
var ErrServerFull = errors.New("transport: server full")

// Listen starts a WebTransport/HTTP3 listener on addr (spec.md §4.A
// `listen(address, max_peers, max_channels)`; max_channels is implicit
// in this transport's two fixed channels, reliable and unsequenced).
func Listen(addr string, tlsConfig *tls.Config, maxPeers int) (*Listener, error) {
	l := &Listener{
		events:   make(chan Event, 256),
		maxPeers: maxPeers,
		peers:    make(map[string]*Peer),
	}

	mux := http.NewServeMux()
	wt := &webtransport.Server{
		H3: http.Server{
			Addr:      addr,
			TLSConfig: tlsConfig,
			Handler:   mux,
		},
		CheckOrigin: func(*http.Request) bool { return true },
	}
	l.wt = wt

	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		sess, err := wt.Upgrade(w, r)
		if err != nil {
			log.Printf("[transport] upgrade failed: %v", err)
			http.Error(w, "upgrade failed", http.StatusInternalServerError)
			return
		}
		l.accept(r.Context(), sess)
	})

	return l, nil
}

// Serve blocks, accepting sessions, until the listener is closed.
func (l *Listener) Serve() error {
	err := l.wt.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (l *Listener) accept(ctx context.Context, sess *webtransport.Session) {
	l.mu.Lock()
	full := len(l.peers) >= l.maxPeers
	l.mu.Unlock()
	if full {
		sess.CloseWithError(1, protocol.ReasonServerFull.String())
		return
	}

	peer := &Peer{ConnectID: uuid.NewString(), session: sess}

	stream, err := sess.AcceptStream(ctx)
	if err != nil {
		log.Printf("[transport] accept control stream: %v", err)
		return
	}
	peer.ctrl = stream

	l.mu.Lock()
	l.peers[peer.ConnectID] = peer
	l.mu.Unlock()

	l.events <- Event{Kind: EventConnect, Peer: peer}

	go l.readDatagrams(ctx, peer)
	l.readControl(ctx, peer, stream)
}

func (l *Listener) readControl(ctx context.Context, peer *Peer, stream *webtransport.Stream) {
	defer l.disconnect(peer, nil)
	for {
		var lenPrefix [4]byte
		if _, err := readFull(stream, lenPrefix[:]); err != nil {
			if ctx.Err() == nil {
				l.disconnect(peer, err)
			}
			return
		}
		n := uint32(lenPrefix[0]) | uint32(lenPrefix[1])<<8 | uint32(lenPrefix[2])<<16 | uint32(lenPrefix[3])<<24
		if n > maxReliableFrame {
			l.disconnect(peer, fmt.Errorf("transport: frame too large (%d bytes)", n))
			return
		}
		body := make([]byte, n)
		if _, err := readFull(stream, body); err != nil {
			l.disconnect(peer, err)
			return
		}
		l.events <- Event{Kind: EventReceive, Peer: peer, Data: body}
	}
}

func (l *Listener) readDatagrams(ctx context.Context, peer *Peer) {
	for {
		data, err := peer.session.ReceiveDatagram(ctx)
		if err != nil {
			return
		}
		l.events <- Event{Kind: EventReceive, Peer: peer, Data: data}
	}
}

func (l *Listener) disconnect(peer *Peer, err error) {
	l.mu.Lock()
	_, known := l.peers[peer.ConnectID]
	delete(l.peers, peer.ConnectID)
	l.mu.Unlock()
	if !known {
		return
	}
	peer.close()
	l.events <- Event{Kind: EventDisconnect, Peer: peer, Err: err}
}

// Disconnect closes peer's session with reason, per spec.md §4.A
// `disconnect(peer, reason_code)` followed by an implicit reset — the
// slot is freed for reuse as soon as the EventDisconnect is delivered.
func (l *Listener) Disconnect(peer *Peer, reason protocol.DisconnectReason) {
	peer.ctrlMu.Lock()
	if peer.ctrl != nil {
		_ = writeFrame(peer.ctrl, []byte(reason.String()))
	}
	peer.ctrlMu.Unlock()
	l.disconnect(peer, nil)
}

// Poll returns the next event, blocking up to timeout (spec.md §4.A
// `poll(timeout_ms)`). A zero timeout blocks indefinitely.
func (l *Listener) Poll(timeout time.Duration) (Event, bool) {
	if timeout <= 0 {
		ev := <-l.events
		return ev, true
	}
	select {
	case ev := <-l.events:
		return ev, true
	case <-time.After(timeout):
		return Event{}, false
	}
}

// PollNonBlocking drains one queued event without waiting, for a tic
// loop that polls once per tic and must never stall when the queue is
// empty (spec.md §4.E "pump transport events").
func (l *Listener) PollNonBlocking() (Event, bool) {
	select {
	case ev := <-l.events:
		return ev, true
	default:
		return Event{}, false
	}
}

// Close shuts down the listener and every open session.
func (l *Listener) Close() error {
	l.mu.Lock()
	peers := make([]*Peer, 0, len(l.peers))
	for _, p := range l.peers {
		peers = append(peers, p)
	}
	l.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
	return l.wt.Close()
}

const maxReliableFrame = 1 << 20

func readFull(stream *webtransport.Stream, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := stream.Read(buf[read:])
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}

// DialerConfig is used by Dial to establish a client-side session.
// Client dialing lives in this package rather than a separate
// `internal/client`; no package or test in this module calls Dial.
type DialerConfig struct {
	TLSConfig *tls.Config
	Insecure  bool
}

// Dial opens a WebTransport session to a server, grounded on
// rustyguts-bken/client/transport.go's Connect.
func Dial(ctx context.Context, addr string, cfg DialerConfig) (*Peer, error) {
	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{InsecureSkipVerify: cfg.Insecure} //nolint:gosec
	}
	d := webtransport.Dialer{
		TLSClientConfig: tlsConfig,
		QUICConfig: &quic.Config{
			EnableDatagrams: true,
		},
	}
	_, sess, err := d.Dial(ctx, "https://"+addr+"/connect", http.Header{})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	stream, err := sess.OpenStream()
	if err != nil {
		sess.CloseWithError(0, "failed to open control stream")
		return nil, fmt.Errorf("transport: open control stream: %w", err)
	}
	return &Peer{ConnectID: uuid.NewString(), session: sess, ctrl: stream}, nil
}

// ReadReliable blocks for the next length-prefixed frame on the control
// stream, for the client side of a Peer obtained via Dial.
func (p *Peer) ReadReliable() ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := readFull(p.ctrl, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := uint32(lenPrefix[0]) | uint32(lenPrefix[1])<<8 | uint32(lenPrefix[2])<<16 | uint32(lenPrefix[3])<<24
	if n > maxReliableFrame {
		return nil, fmt.Errorf("transport: frame too large (%d bytes)", n)
	}
	body := make([]byte, n)
	if _, err := readFull(p.ctrl, body); err != nil {
		return nil, err
	}
	return body, nil
}

// ReadUnreliable blocks for the next datagram.
func (p *Peer) ReadUnreliable(ctx context.Context) ([]byte, error) {
	return p.session.ReceiveDatagram(ctx)
}

// Close closes the peer's session from the dialing side.
func (p *Peer) Close() error {
	p.close()
	return nil
}
