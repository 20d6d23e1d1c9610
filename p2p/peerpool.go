package p2p

import (
	"errors"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	errSelfConnect   = errors.New("p2p: refused self-dial")
	errBlockedClient = errors.New("p2p: peer client id is blocklisted")
	errTooManyPeers  = errors.New("p2p: peer pool full")
	errDuplicatePeer = errors.New("p2p: peer already connected")

	peerCountGauge = metrics.NewRegisteredGauge("p2p/peers", nil)
)

// PoolConfig bounds a PeerPool's admission behaviour, per spec §4.7/§4.8.
type PoolConfig struct {
	MaxPeers int
	// CloseAbove stops accepting new inbound connections once Len() is at
	// or above this watermark; ListenBelow resumes accepting once Len()
	// drops back below it. If zero, CloseAbove defaults to MaxPeers and
	// ListenBelow defaults to CloseAbove.
	CloseAbove int
	ListenBelow int
	// BlockedClientIDSubstrings rejects peers whose advertised ClientID
	// contains any of these substrings (case-insensitive).
	BlockedClientIDSubstrings []string
}

func (c *PoolConfig) setDefaults() {
	if c.MaxPeers == 0 {
		c.MaxPeers = 50
	}
	if c.CloseAbove == 0 {
		c.CloseAbove = c.MaxPeers
	}
	if c.ListenBelow == 0 {
		c.ListenBelow = c.CloseAbove
	}
}

// PeerPool is the bounded set of admitted peers, per spec §4.8: it applies
// admission filters (self-dial, duplicate node id, blocked client ids),
// tracks the active set, and removes a peer once its connection closes.
// Pending eth requests are settled by the eth session, not by the pool.
type PeerPool struct {
	cfg PoolConfig

	mu        sync.Mutex
	peers     map[[32]byte]*Connection
	knownIDs  mapset.Set[[32]byte]
	selfID    [32]byte

	onAdmit func(*Connection)
	onDrop  func(*Connection, DiscReason)
}

// NewPeerPool constructs an empty pool that will reject self-dials to selfID.
func NewPeerPool(selfID [32]byte, cfg PoolConfig) *PeerPool {
	cfg.setDefaults()
	return &PeerPool{
		cfg:      cfg,
		peers:    make(map[[32]byte]*Connection),
		knownIDs: mapset.NewSet[[32]byte](),
		selfID:   selfID,
	}
}

// Len returns the number of currently admitted peers.
func (p *PeerPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

// ShouldAcceptMore reports whether the listener should keep accepting new
// inbound sockets, per the closeAbove/listenBelow watermark (SPEC_FULL.md
// supplemented feature #4).
func (p *PeerPool) ShouldAcceptMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers) < p.cfg.CloseAbove
}

// ShouldResumeAccepting reports whether a paused listener should resume,
// i.e. the peer count has drained back below the listenBelow watermark.
func (p *PeerPool) ShouldResumeAccepting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers) < p.cfg.ListenBelow
}

// Admit applies the pool's admission filters to a freshly Active
// Connection's peer, and on success registers it and installs the close
// callback that removes it again. On rejection the connection is closed
// with the appropriate DiscReason and an error is returned.
func (p *PeerPool) Admit(peer *Peer) error {
	id := peer.ID()

	if id == p.selfID {
		peer.Disconnect(DiscSelf)
		return errSelfConnect
	}
	if p.blockedClientID(peer.ClientID()) {
		peer.Disconnect(DiscUselessPeer)
		return errBlockedClient
	}

	p.mu.Lock()
	if len(p.peers) >= p.cfg.MaxPeers {
		p.mu.Unlock()
		peer.Disconnect(DiscTooManyPeers)
		return errTooManyPeers
	}
	if _, dup := p.peers[id]; dup {
		p.mu.Unlock()
		peer.Disconnect(DiscAlreadyConnected)
		return errDuplicatePeer
	}
	p.peers[id] = peer.conn
	p.knownIDs.Add(id)
	peerCountGauge.Update(int64(len(p.peers)))
	p.mu.Unlock()

	peer.conn.onClose = func(c *Connection, reason DiscReason, byUs bool) {
		p.remove(id, c, reason)
	}
	if p.onAdmit != nil {
		p.onAdmit(peer.conn)
	}
	return nil
}

func (p *PeerPool) remove(id [32]byte, c *Connection, reason DiscReason) {
	p.mu.Lock()
	delete(p.peers, id)
	peerCountGauge.Update(int64(len(p.peers)))
	p.mu.Unlock()
	if p.onDrop != nil {
		p.onDrop(c, reason)
	}
}

func (p *PeerPool) blockedClientID(clientID string) bool {
	lc := strings.ToLower(clientID)
	for _, sub := range p.cfg.BlockedClientIDSubstrings {
		if sub == "" {
			continue
		}
		if strings.Contains(lc, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// EverSeen reports whether a peer with this node id has ever been admitted
// by this pool. The Dialer does not consult it.
func (p *PeerPool) EverSeen(id [32]byte) bool {
	return p.knownIDs.Contains(id)
}

// Peers returns a snapshot of currently admitted connections.
func (p *PeerPool) Peers() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Connection, 0, len(p.peers))
	for _, c := range p.peers {
		out = append(out, c)
	}
	return out
}
