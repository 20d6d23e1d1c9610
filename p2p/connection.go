package p2p

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vanta-network/ethwire/rlpx"
)

// connState is the Connection state machine described in spec §3/§4.3.
type connState int32

const (
	stateAwaitingAuth connState = iota
	stateAwaitingAck
	stateAuthenticated
	stateHelloExchanged
	stateActive
	stateClosed
)

const (
	pingInterval    = 15 * time.Second
	pongTimeout     = 30 * time.Second
	helloTimeout    = 10 * time.Second
	handshakeDeadline = 10 * time.Second
)

var (
	errClosed            = errors.New("p2p: connection closed")
	errHelloTimeout      = errors.New("p2p: hello/status timeout")
	errUnknownCode       = errors.New("p2p: message code outside any registered sub-protocol")
	errDuplicateProtocol = errors.New("p2p: duplicate protocol name")
)

// Config bundles the tunables a Connection needs; all have the spec's
// defaults (§4.6 timeouts) but are overridable for tests.
type Config struct {
	ClientID      string
	ListenPort    uint
	MaxMsgSize    uint32
	PingInterval  time.Duration
	PongTimeout   time.Duration
	HelloTimeout  time.Duration
	HandshakeTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.PingInterval == 0 {
		c.PingInterval = pingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = pongTimeout
	}
	if c.HelloTimeout == 0 {
		c.HelloTimeout = helloTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = handshakeDeadline
	}
	if c.MaxMsgSize == 0 {
		c.MaxMsgSize = 10 * 1024 * 1024
	}
}

// Connection is one authenticated, framed, multiplexed RLPx connection,
// per spec §3's "Connection" data model.
type Connection struct {
	cfg Config

	raw     net.Conn
	rlpx    *rlpx.Conn
	prv     *ecdsa.PrivateKey
	remote  *ecdsa.PublicKey
	dialDest *ecdsa.PublicKey // set only for outbound dials

	state atomic.Int32

	localHello  *Hello
	remoteHello *Hello

	protocols []Protocol
	offsets   []offsetEntry
	pipes     map[string]*msgPipe
	pipesMu   sync.RWMutex

	sendCh chan frameToSend

	closeOnce   sync.Once
	closeCh     chan struct{}
	closeReason DiscReason
	closedByUs  bool

	pongCh chan struct{}

	log log.Logger

	onClose func(*Connection, DiscReason, bool)
}

type frameToSend struct {
	code    uint64
	payload []byte
	errCh   chan error
}

// NewOutbound prepares a Connection that will dial and authenticate as the
// RLPx initiator against a known remote node id.
func NewOutbound(raw net.Conn, prv *ecdsa.PrivateKey, remote *ecdsa.PublicKey, protocols []Protocol, cfg Config) *Connection {
	cfg.setDefaults()
	c := &Connection{
		cfg: cfg, raw: raw, prv: prv, remote: remote, dialDest: remote,
		protocols: protocols,
		pipes:     make(map[string]*msgPipe),
		sendCh:    make(chan frameToSend, 64),
		closeCh:   make(chan struct{}),
		pongCh:    make(chan struct{}, 1),
		log:       log.New("raddr", raw.RemoteAddr()),
	}
	c.state.Store(int32(stateAwaitingAck))
	return c
}

// NewInbound prepares a Connection for an accepted socket whose remote node
// id is not yet known; it is learnt from the decrypted auth message.
func NewInbound(raw net.Conn, prv *ecdsa.PrivateKey, protocols []Protocol, cfg Config) *Connection {
	cfg.setDefaults()
	c := &Connection{
		cfg: cfg, raw: raw, prv: prv,
		protocols: protocols,
		pipes:     make(map[string]*msgPipe),
		sendCh:    make(chan frameToSend, 64),
		closeCh:   make(chan struct{}),
		pongCh:    make(chan struct{}, 1),
		log:       log.New("raddr", raw.RemoteAddr()),
	}
	c.state.Store(int32(stateAwaitingAuth))
	return c
}

func (c *Connection) State() connState { return connState(c.state.Load()) }

// Handshake runs the ECIES auth/ack exchange, then the Hello exchange and
// capability negotiation, and finally launches the read/write loops and
// each negotiated sub-protocol's Run goroutine. It blocks until the
// connection reaches Active or fails.
func (c *Connection) Handshake() error {
	start := mclock.Now()
	conn, remoteKey, err := rlpx.Handshake(c.raw, c.prv, c.dialDest, c.cfg.HandshakeTimeout)
	if err != nil {
		c.state.Store(int32(stateClosed))
		return fmt.Errorf("p2p: rlpx handshake failed: %w", err)
	}
	c.rlpx = conn
	c.remote = remoteKey
	c.state.Store(int32(stateAuthenticated))
	c.log.Debug("rlpx handshake complete", "elapsed", mclock.Now().Sub(start))

	if err := c.exchangeHello(); err != nil {
		c.state.Store(int32(stateClosed))
		return err
	}
	c.state.Store(int32(stateHelloExchanged))
	c.state.Store(int32(stateActive))

	go c.readLoop()
	go c.writeLoop()
	go c.pingLoop()
	c.launchProtocols()
	return nil
}

func (c *Connection) exchangeHello() error {
	seen := make(map[string]bool, len(c.protocols))
	var caps []Cap
	for _, p := range c.protocols {
		if seen[p.Name] {
			return errDuplicateProtocol
		}
		seen[p.Name] = true
		caps = append(caps, Cap{Name: p.Name, Version: p.Version})
	}
	c.localHello = &Hello{
		ProtocolVersion: 5,
		ClientID:        c.cfg.ClientID,
		Caps:            caps,
		ListenPort:      c.cfg.ListenPort,
		NodeID:          localNodeIDBytes(c.prv),
	}

	payload, err := rlp.EncodeToBytes(c.localHello)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- c.rlpx.WriteMsg(HelloMsg, payload) }()
	go func() {
		code, data, err := c.rlpx.ReadMsg()
		if err != nil {
			errCh <- err
			return
		}
		if code != HelloMsg {
			errCh <- fmt.Errorf("p2p: expected Hello, got code %d", code)
			return
		}
		var h Hello
		if err := rlp.DecodeBytes(data, &h); err != nil {
			errCh <- fmt.Errorf("p2p: malformed Hello: %w", err)
			return
		}
		c.remoteHello = &h
		errCh <- nil
	}()

	timer := time.NewTimer(c.cfg.HelloTimeout)
	defer timer.Stop()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-timer.C:
			return errHelloTimeout
		}
	}

	if c.remoteHello.ProtocolVersion >= snappyProtocolVersionForHello && c.localHello.ProtocolVersion >= snappyProtocolVersionForHello {
		c.rlpx.EnableSnappy()
	}
	c.offsets = negotiateCapabilities(c.protocols, c.remoteHello.Caps)
	if len(c.offsets) == 0 {
		return fmt.Errorf("p2p: %w: no shared sub-protocols", DiscUselessPeer)
	}
	return nil
}

// snappyProtocolVersionForHello mirrors rlpx.snappyProtocolVersion without
// importing the rlpx package's unexported constant twice.
const snappyProtocolVersionForHello = 5

// launchProtocols starts exactly one Run goroutine per negotiated offset
// entry, for the local Protocol matching that entry's name AND negotiated
// version — never one per locally-offered version of the same name, so a
// capability advertised at several versions (spec §4.4) only ever runs
// once per connection.
func (c *Connection) launchProtocols() {
	for _, o := range c.offsets {
		p, ok := protocolFor(c.protocols, o.Name, o.Version)
		if !ok {
			continue
		}
		pipe := newMsgPipe()
		c.pipesMu.Lock()
		c.pipes[p.Name] = pipe
		c.pipesMu.Unlock()

		peer := newPeer(c, p.Name)
		go c.forwardOutbound(pipe, o.Offset)
		go func(p Protocol, pipe *msgPipe) {
			err := p.Run(peer, pipe)
			if err != nil {
				c.Close(DiscSubprotocolError, true)
			} else {
				c.Close(DiscRequested, true)
			}
		}(p, pipe)
	}
}

func protocolFor(protocols []Protocol, name string, version uint) (Protocol, bool) {
	for _, p := range protocols {
		if p.Name == name && p.Version == version {
			return p, true
		}
	}
	return Protocol{}, false
}

// forwardOutbound re-offsets every message a sub-protocol writes and
// enqueues it onto the connection's single outbound frame channel, so all
// writes to the underlying rlpx.Conn are serialised in one place.
func (c *Connection) forwardOutbound(pipe *msgPipe, offset uint64) {
	for {
		select {
		case m := <-pipe.out:
			select {
			case c.sendCh <- frameToSend{code: offset + m.Code, payload: m.Payload}:
			case <-c.closeCh:
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *Connection) findOffset(code uint64) (offsetEntry, bool) {
	for _, o := range c.offsets {
		if code >= o.Offset && code < o.Offset+o.Length {
			return o, true
		}
	}
	return offsetEntry{}, false
}

// readLoop drains the framed stream, handling base-protocol messages
// inline and routing sub-protocol messages to their pipe, per spec §4.5.
func (c *Connection) readLoop() {
	for {
		code, payload, err := c.rlpx.ReadMsg()
		if err != nil {
			c.Close(DiscNetworkError, false)
			return
		}
		if code < baseProtocolLength {
			if err := c.handleBaseMessage(code, payload); err != nil {
				c.Close(DiscProtocolError, true)
				return
			}
			continue
		}
		entry, ok := c.findOffset(code)
		if !ok {
			c.Close(DiscProtocolError, true)
			return
		}
		c.pipesMu.RLock()
		pipe := c.pipes[entry.Name]
		c.pipesMu.RUnlock()
		if pipe == nil {
			continue
		}
		select {
		case pipe.in <- Msg{Code: code - entry.Offset, Payload: payload}:
		case <-c.closeCh:
			return
		}
	}
}

func (c *Connection) handleBaseMessage(code uint64, payload []byte) error {
	switch code {
	case PingMsg:
		return c.rlpx.WriteMsg(PongMsg, nil)
	case PongMsg:
		select {
		case c.pongCh <- struct{}{}:
		default:
		}
		return nil
	case DisconnectMsg:
		var reason [1]DiscReason
		_ = rlp.DecodeBytes(payload, &reason)
		c.Close(reason[0], false)
		return nil
	default:
		return fmt.Errorf("%w: code %d", errUnknownCode, code)
	}
}

// writeLoop serialises all outbound writes — base-protocol control frames
// and every sub-protocol's outbound messages, already re-offset by
// forwardOutbound — onto the single underlying rlpx.Conn, preserving
// enqueue order per spec §5.
func (c *Connection) writeLoop() {
	for {
		select {
		case f := <-c.sendCh:
			err := c.rlpx.WriteMsg(f.code, f.payload)
			if f.errCh != nil {
				f.errCh <- err
			}
			if err != nil {
				c.Close(DiscNetworkError, true)
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *Connection) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.rlpx.WriteMsg(PingMsg, nil); err != nil {
				c.Close(DiscNetworkError, true)
				return
			}
			select {
			case <-c.pongCh:
			case <-time.After(c.cfg.PongTimeout):
				c.Close(DiscReadTimeout, true)
				return
			case <-c.closeCh:
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

// Close transitions the connection to Closed, best-effort sends a
// Disconnect frame if we initiated the close, and notifies the owner
// (typically the peer pool) exactly once.
func (c *Connection) Close(reason DiscReason, byUs bool) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(stateClosed))
		c.closeReason = reason
		c.closedByUs = byUs
		if byUs && c.rlpx != nil {
			data, _ := rlp.EncodeToBytes([1]DiscReason{reason})
			_ = c.rlpx.WriteMsg(DisconnectMsg, data)
		}
		close(c.closeCh)
		c.raw.Close()

		c.pipesMu.RLock()
		for _, p := range c.pipes {
			p.closeWithError(errClosed)
		}
		c.pipesMu.RUnlock()

		if c.onClose != nil {
			c.onClose(c, reason, byUs)
		}
	})
}

// RemotePublicKey returns the peer's static secp256k1 public key, known
// after the ECIES handshake completes.
func (c *Connection) RemotePublicKey() *ecdsa.PublicKey { return c.remote }

// CloseReason reports the reason the connection was last closed and which
// side initiated the close; valid only once the connection has actually
// closed (check State() or the closeCh first).
func (c *Connection) CloseReason() (DiscReason, bool) { return c.closeReason, c.closedByUs }

// localNodeIDBytes returns the 64-byte uncompressed form of prv's public
// key (no 0x04 prefix), the form Hello.NodeID is advertised in.
func localNodeIDBytes(prv *ecdsa.PrivateKey) []byte {
	return crypto.FromECDSAPub(&prv.PublicKey)[1:]
}
