package p2p

import (
	"context"
	"crypto/ecdsa"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// Listener accepts inbound RLPx connections and runs the receiver side of
// the handshake and Hello exchange on each, per spec §4.7. Acceptance is
// gated by the peer pool's closeAbove/listenBelow admission watermark
// (SPEC_FULL.md supplemented feature #4): once the pool is saturated the
// listener stops Accept-ing until the pool drains back below listenBelow,
// so established connections are never starved of CPU by a thundering
// herd of half-open inbound sockets.
type Listener struct {
	prv       *ecdsa.PrivateKey
	protocols []Protocol
	cfg       Config
	pool      *PeerPool
	onPeer    func(*Peer, *Connection)

	listener net.Listener
	log      log.Logger
}

// NewListener wraps an already-bound net.Listener (typically a *net.TCPListener).
func NewListener(l net.Listener, prv *ecdsa.PrivateKey, protocols []Protocol, cfg Config, pool *PeerPool) *Listener {
	return &Listener{
		prv: prv, protocols: protocols, cfg: cfg, pool: pool,
		listener: l,
		log:      log.New("laddr", l.Addr()),
	}
}

// OnPeer registers a callback invoked once a freshly accepted connection
// reaches the Active state and passes pool admission.
func (s *Listener) OnPeer(f func(*Peer, *Connection)) { s.onPeer = f }

// Serve runs the accept loop until ctx is cancelled or the listener is
// closed. Each accepted socket is handshaked in its own goroutine,
// supervised by an errgroup so a panic-free handshake failure never takes
// down the accept loop itself.
func (s *Listener) Serve(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-gctx.Done()
		return s.listener.Close()
	})

	for {
		if !s.pool.ShouldAcceptMore() {
			if !s.waitForCapacity(gctx) {
				break
			}
		}
		raw, err := s.listener.Accept()
		if err != nil {
			if gctx.Err() != nil {
				break
			}
			s.log.Debug("accept failed", "err", err)
			continue
		}
		group.Go(func() error {
			s.handleConn(raw)
			return nil
		})
	}
	return group.Wait()
}

func (s *Listener) waitForCapacity(ctx context.Context) bool {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.pool.ShouldResumeAccepting() {
				return true
			}
		}
	}
}

func (s *Listener) handleConn(raw net.Conn) {
	conn := NewInbound(raw, s.prv, s.protocols, s.cfg)
	if err := conn.Handshake(); err != nil {
		s.log.Debug("inbound handshake failed", "raddr", raw.RemoteAddr(), "err", err)
		raw.Close()
		return
	}
	peer := newPeer(conn, "")
	if err := s.pool.Admit(peer); err != nil {
		s.log.Debug("peer rejected", "raddr", raw.RemoteAddr(), "err", err)
		return
	}
	if s.onPeer != nil {
		s.onPeer(peer, conn)
	}
}

// Close stops accepting new connections.
func (s *Listener) Close() error { return s.listener.Close() }
