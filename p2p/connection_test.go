package p2p

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// echoProtocol is a minimal sub-protocol used to exercise the multiplexer:
// it echoes every message it reads back with the same code.
func echoProtocol() Protocol {
	return Protocol{
		Name:    "echo",
		Version: 1,
		Length:  4,
		Run: func(peer *Peer, rw MsgReadWriter) error {
			for {
				msg, err := rw.ReadMsg()
				if err != nil {
					return err
				}
				if err := rw.WriteMsg(msg); err != nil {
					return err
				}
			}
		},
	}
}

func TestConnectionHandshakeReachesActive(t *testing.T) {
	initKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	recvKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	a, b := net.Pipe()
	protocols := []Protocol{echoProtocol()}
	cfg := Config{ClientID: "ethwire-test/v0", PingInterval: time.Hour, PongTimeout: time.Hour}

	initConn := NewOutbound(a, initKey, &recvKey.PublicKey, protocols, cfg)
	recvConn := NewInbound(b, recvKey, protocols, cfg)

	var wg sync.WaitGroup
	wg.Add(2)
	var initErr, recvErr error
	go func() { defer wg.Done(); initErr = initConn.Handshake() }()
	go func() { defer wg.Done(); recvErr = recvConn.Handshake() }()
	wg.Wait()

	require.NoError(t, initErr)
	require.NoError(t, recvErr)
	require.Equal(t, stateActive, initConn.State())
	require.Equal(t, stateActive, recvConn.State())

	initConn.Close(DiscRequested, true)
	recvConn.Close(DiscRequested, true)
}

func TestNewPeerPoolStartsEmptyAndAccepting(t *testing.T) {
	var selfID [32]byte
	selfID[0] = 0xaa

	pool := NewPeerPool(selfID, PoolConfig{MaxPeers: 2})
	require.True(t, pool.ShouldAcceptMore())
	require.Equal(t, 0, pool.Len())
}
