package eth

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestPeerInfoReportsVersionAndAddress(t *testing.T) {
	backend := newTestBackend()
	peer := newTestPeer(t)
	s := newSession(peer, nil, ETH68, backend)

	info := s.PeerInfo()
	require.Equal(t, uint(ETH68), info.Version)
	require.Equal(t, peer.Address(), info.Address)
	require.Zero(t, info.NetworkID, "NetworkID should be unset until a Status is received")
	require.Equal(t, common.Hash{}, info.Head)
}

func TestPeerInfoReflectsRemoteStatusOnceReceived(t *testing.T) {
	backend := newTestBackend()
	s := newSession(newTestPeer(t), nil, ETH68, backend)

	head := common.HexToHash("0xdeadbeef")
	s.mu.Lock()
	s.remoteStatus = &StatusPacket{NetworkID: 7, Head: head}
	s.mu.Unlock()

	info := s.PeerInfo()
	require.EqualValues(t, 7, info.NetworkID)
	require.Equal(t, head, info.Head)
}
