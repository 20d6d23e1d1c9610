package rlpx

import (
	"crypto/ecdsa"
	"net"
	"time"
)

// DefaultHandshakeTimeout bounds how long the ECIES auth/ack exchange may
// take before a dial or accept is abandoned, per spec §4.3.
const DefaultHandshakeTimeout = 10 * time.Second

// Handshake runs the ECIES handshake as initiator (remote known) or
// receiver (remote learnt from the auth message) and returns a framed Conn
// ready for the base-protocol Hello exchange.
func Handshake(raw net.Conn, prv *ecdsa.PrivateKey, remote *ecdsa.PublicKey, timeout time.Duration) (*Conn, *ecdsa.PublicKey, error) {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	hs := NewHandshaker(prv, remote, remote != nil)
	secrets, err := hs.Run(raw, timeout)
	if err != nil {
		return nil, nil, err
	}
	conn, err := NewConn(raw, secrets)
	if err != nil {
		return nil, nil, err
	}
	return conn, hs.RemoteStaticKey(), nil
}
