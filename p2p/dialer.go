package p2p

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"
)

// Dialer establishes outbound RLPx connections, per spec §4.7. Dial
// attempts are rate-limited so a peer pool refilling aggressively cannot
// flood the local network stack with half-open sockets.
type Dialer struct {
	prv       *ecdsa.PrivateKey
	protocols []Protocol
	cfg       Config
	dialer    net.Dialer
	limiter   *rate.Limiter
}

// NewDialer constructs a Dialer that admits at most ratePerSecond new
// outbound dials per second, bursting up to burst.
func NewDialer(prv *ecdsa.PrivateKey, protocols []Protocol, cfg Config, ratePerSecond float64, burst int) *Dialer {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	if burst <= 0 {
		burst = 10
	}
	return &Dialer{
		prv:       prv,
		protocols: protocols,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Dial connects to addr, runs the RLPx handshake as initiator against the
// given remote identity, and completes the Hello exchange. The returned
// Connection is Active on success.
func (d *Dialer) Dial(ctx context.Context, addr string, remote *ecdsa.PublicKey) (*Connection, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("p2p: dial rate limit: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout+5*time.Second)
	defer cancel()
	raw, err := d.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("p2p: dial %s: %w", addr, err)
	}

	conn := NewOutbound(raw, d.prv, remote, d.protocols, d.cfg)
	if err := conn.Handshake(); err != nil {
		raw.Close()
		return nil, err
	}
	return conn, nil
}
