package p2p

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeerPoolWatermark(t *testing.T) {
	var self [32]byte
	pool := NewPeerPool(self, PoolConfig{MaxPeers: 4, CloseAbove: 2, ListenBelow: 1})

	require.True(t, pool.ShouldAcceptMore())

	pool.peers[[32]byte{1}] = &Connection{}
	pool.peers[[32]byte{2}] = &Connection{}
	require.False(t, pool.ShouldAcceptMore())
	require.False(t, pool.ShouldResumeAccepting())

	delete(pool.peers, [32]byte{2})
	require.False(t, pool.ShouldResumeAccepting())

	delete(pool.peers, [32]byte{1})
	require.True(t, pool.ShouldResumeAccepting())
}

func TestPeerPoolBlockedClientID(t *testing.T) {
	var self [32]byte
	pool := NewPeerPool(self, PoolConfig{MaxPeers: 4, BlockedClientIDSubstrings: []string{"evilclient"}})
	require.True(t, pool.blockedClientID("EvilClient/v1.0"))
	require.False(t, pool.blockedClientID("geth/v1.14"))
}
