package p2p

import (
	"crypto/ecdsa"
	"fmt"
	"net"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Peer is the handle a sub-protocol's Run function uses to identify and
// describe the connection it is running over (spec §4.5/§4.8). It carries
// no message I/O itself — that is the MsgReadWriter passed alongside it.
type Peer struct {
	conn     *Connection
	protoName string
}

func newPeer(c *Connection, protoName string) *Peer {
	return &Peer{conn: c, protoName: protoName}
}

// NewPeer wraps a freshly handshaked Connection (typically from
// Dialer.Dial) in a Peer handle suitable for PeerPool.Admit, mirroring
// the handle the Listener builds for inbound connections.
func NewPeer(c *Connection) *Peer { return newPeer(c, "") }

// ID returns the 32-byte keccak256 hash of the peer's uncompressed public
// key, the canonical node identifier used throughout the corpus.
func (p *Peer) ID() [32]byte {
	pub := p.conn.RemotePublicKey()
	if pub == nil {
		return [32]byte{}
	}
	return crypto.Keccak256Hash(crypto.FromECDSAPub(pub)[1:])
}

// Address returns the Ethereum-style address derived from the peer's
// static public key. The peer pool keys peers by ID, not by this address.
func (p *Peer) Address() common.Address {
	pub := p.conn.RemotePublicKey()
	if pub == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(*pub)
}

// ProtocolName returns the sub-protocol this Peer handle was created for,
// or "" for the pool-admission handle that precedes protocol dispatch.
func (p *Peer) ProtocolName() string { return p.protoName }

// PublicKey returns the peer's static secp256k1 identity key.
func (p *Peer) PublicKey() *ecdsa.PublicKey { return p.conn.RemotePublicKey() }

// RemoteAddr returns the underlying socket's remote network address.
func (p *Peer) RemoteAddr() net.Addr { return p.conn.raw.RemoteAddr() }

// Caps returns the capability list the remote side advertised in its
// Hello message.
func (p *Peer) Caps() []Cap {
	if p.conn.remoteHello == nil {
		return nil
	}
	return p.conn.remoteHello.Caps
}

// ClientID returns the remote side's advertised client identifier string.
func (p *Peer) ClientID() string {
	if p.conn.remoteHello == nil {
		return ""
	}
	return p.conn.remoteHello.ClientID
}

// Disconnect closes the underlying connection, sending reason to the peer.
func (p *Peer) Disconnect(reason DiscReason) { p.conn.Close(reason, true) }

// CloseReason reports why the underlying connection closed and which side
// initiated it, valid once the connection has closed.
func (p *Peer) CloseReason() (DiscReason, bool) { return p.conn.CloseReason() }

func (p *Peer) String() string {
	return fmt.Sprintf("Peer{%x, %s, %s}", p.ID(), p.ClientID(), p.RemoteAddr())
}
