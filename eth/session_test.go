package eth

import (
	"crypto/ecdsa"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params/forks"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/vanta-network/ethwire/internal/ethwireerr"
	"github.com/vanta-network/ethwire/p2p"
)

// fakeRW is an in-memory MsgReadWriter pair: WriteMsg on one end delivers
// to ReadMsg on the peer end, modelling the loopback a Session's request
// correlator and STATUS handshake drive over.
type fakeRW struct {
	out chan p2p.Msg
	in  chan p2p.Msg
}

func newFakeRWPair() (a, b *fakeRW) {
	c1 := make(chan p2p.Msg, 16)
	c2 := make(chan p2p.Msg, 16)
	return &fakeRW{out: c1, in: c2}, &fakeRW{out: c2, in: c1}
}

func (f *fakeRW) ReadMsg() (p2p.Msg, error) {
	m, ok := <-f.in
	if !ok {
		return p2p.Msg{}, net.ErrClosed
	}
	return m, nil
}

func (f *fakeRW) WriteMsg(m p2p.Msg) error {
	f.out <- m
	return nil
}

type fakeChain struct {
	head       *types.Header
	genesis    common.Hash
	td         *big.Int
	chainID    *big.Int
	forkHist   []ChainFork
}

func (c *fakeChain) LatestHeader() *Header          { return c.head }
func (c *fakeChain) GetBlock(common.Hash) *Block    { return nil }
func (c *fakeChain) GetBody(common.Hash) *BlockBody { return nil }
func (c *fakeChain) GetHeaders(HashOrNumber, uint64, uint64, bool) []*Header { return nil }
func (c *fakeChain) Genesis() *Block                { return nil }
func (c *fakeChain) TotalDifficulty() *big.Int      { return c.td }
func (c *fakeChain) ChainID() *big.Int              { return c.chainID }

type fakeForks struct {
	genesis  common.Hash
	history  []ChainFork
}

func (f *fakeForks) ChainID() *big.Int                                  { return big.NewInt(1) }
func (f *fakeForks) HardforkByBlock(number, time uint64) forks.Fork     { return forks.Fork(0) }
func (f *fakeForks) HardforkGte(fork forks.Fork) bool                   { return true }
func (f *fakeForks) IsEIPActive(eip int, fork forks.Fork) bool          { return false }
func (f *fakeForks) Param(name string, fork forks.Fork) any             { return nil }
func (f *fakeForks) ForkHistory() []ChainFork                           { return f.history }
func (f *fakeForks) GenesisHash() common.Hash                           { return f.genesis }

func newTestBackend() Backend {
	genesis := common.HexToHash("0xabc123")
	head := &types.Header{Number: big.NewInt(100), Time: 1000}
	return Backend{
		Chain: &fakeChain{head: head, genesis: genesis, td: big.NewInt(42), chainID: big.NewInt(1)},
		Forks: &fakeForks{genesis: genesis},
		NetworkID: 1,
	}
}

func newTestPeer(t *testing.T) *p2p.Peer {
	t.Helper()
	key, err := ecdsaKey()
	require.NoError(t, err)
	a, _ := net.Pipe()
	conn := p2p.NewOutbound(a, key, &key.PublicKey, nil, p2p.Config{})
	return p2p.NewPeer(conn)
}

func ecdsaKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

func TestBuildStatusUsesBackendChainAndForks(t *testing.T) {
	backend := newTestBackend()
	s := newSession(newTestPeer(t), nil, ETH68, backend)
	status, err := s.buildStatus()
	require.NoError(t, err)
	require.EqualValues(t, 1, status.NetworkID)
	require.Equal(t, backend.Chain.(*fakeChain).genesis, status.Genesis)
	require.Equal(t, big.NewInt(42), status.TD)
}

func TestBuildStatusRequiresChainAndForksBackend(t *testing.T) {
	s := newSession(newTestPeer(t), nil, ETH68, Backend{})
	_, err := s.buildStatus()
	require.ErrorIs(t, err, errNoChainBackend)
}

func TestExchangeStatusSucceedsOnMatchingStatus(t *testing.T) {
	backend := newTestBackend()
	rwA, rwB := newFakeRWPair()

	sA := newSession(newTestPeer(t), rwA, ETH68, backend)
	sB := newSession(newTestPeer(t), rwB, ETH68, backend)

	errCh := make(chan error, 2)
	go func() { errCh <- sA.exchangeStatus() }()
	go func() { errCh <- sB.exchangeStatus() }()

	require.NoError(t, <-errCh)
	require.NoError(t, <-errCh)
}

func TestExchangeStatusRejectsNetworkIDMismatch(t *testing.T) {
	backendA := newTestBackend()
	backendB := newTestBackend()
	backendB.NetworkID = 2

	rwA, rwB := newFakeRWPair()
	sA := newSession(newTestPeer(t), rwA, ETH68, backendA)
	sB := newSession(newTestPeer(t), rwB, ETH68, backendB)

	errCh := make(chan error, 2)
	go func() { errCh <- sA.exchangeStatus() }()
	go func() { errCh <- sB.exchangeStatus() }()

	err1 := <-errCh
	err2 := <-errCh
	require.True(t, err1 != nil || err2 != nil, "expected at least one side to reject a network id mismatch")
}

// driveDispatch loops reading and dispatching inbound messages for s,
// standing in for the read loop Session.run drives after the STATUS
// handshake, so request()'s correlator sees responses without a full run.
func driveDispatch(s *Session) {
	for {
		msg, err := s.rw.ReadMsg()
		if err != nil {
			return
		}
		if err := s.dispatch(msg); err != nil {
			return
		}
	}
}

func TestRequestDeduplicatesConcurrentIdenticalCalls(t *testing.T) {
	backend := newTestBackend()
	rwA, rwB := newFakeRWPair()
	s := newSession(newTestPeer(t), rwA, ETH68, backend)
	s.requestTimeout = time.Second
	go driveDispatch(s)

	// Drain the peer side and reply once with the reqId the request used.
	go func() {
		msg, err := rwB.ReadMsg()
		require.NoError(t, err)
		var req GetBlockHeadersPacket
		require.NoError(t, rlp.DecodeBytes(msg.Payload, &req))
		payload, err := rlp.EncodeToBytes(BlockHeadersPacket{ReqID: req.ReqID})
		require.NoError(t, err)
		require.NoError(t, rwB.WriteMsg(p2p.Msg{Code: BlockHeadersMsg, Payload: payload}))
	}()

	resultCh := make(chan any, 2)
	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := s.request(GetBlockHeadersMsg, "same-key", func(id uint64) any {
				return GetBlockHeadersPacket{ReqID: id}
			}, func(b []byte) (any, error) {
				var p BlockHeadersPacket
				err := rlp.DecodeBytes(b, &p)
				return p, err
			})
			resultCh <- res
			errCh <- err
		}()
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, <-errCh)
	}
	r1 := (<-resultCh).(BlockHeadersPacket)
	r2 := (<-resultCh).(BlockHeadersPacket)
	require.Equal(t, r1.ReqID, r2.ReqID, "both concurrent identical requests should share one reqId")
}

func TestRequestTimesOutWithTypedError(t *testing.T) {
	backend := newTestBackend()
	rwA, rwB := newFakeRWPair()
	s := newSession(newTestPeer(t), rwA, ETH68, backend)
	s.requestTimeout = 20 * time.Millisecond

	go func() {
		// Consume the outbound request, then never reply.
		_, _ = rwB.ReadMsg()
	}()

	_, err := s.request(GetBlockHeadersMsg, "never-answered", func(id uint64) any {
		return GetBlockHeadersPacket{ReqID: id}
	}, func(b []byte) (any, error) {
		var p BlockHeadersPacket
		err := rlp.DecodeBytes(b, &p)
		return p, err
	})

	require.Error(t, err)
	var typed *ethwireerr.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, ethwireerr.KindRequestTimeout, typed.Kind)
}

func TestSessionCloseSettlesInflightRequests(t *testing.T) {
	backend := newTestBackend()
	rwA, rwB := newFakeRWPair()
	s := newSession(newTestPeer(t), rwA, ETH68, backend)
	s.requestTimeout = time.Minute

	go func() { _, _ = rwB.ReadMsg() }()

	doneCh := make(chan error, 1)
	go func() {
		_, err := s.request(GetReceiptsMsg, "closed-before-reply", func(id uint64) any {
			return GetReceiptsPacket{ReqID: id}
		}, func(b []byte) (any, error) {
			var p ReceiptsPacket
			err := rlp.DecodeBytes(b, &p)
			return p, err
		})
		doneCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.closeSession()

	err := <-doneCh
	require.Error(t, err)
	var typed *ethwireerr.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, ethwireerr.KindSessionClosed, typed.Kind)
}

func TestSessionCloseEmitsDisconnectReasonAndInitiator(t *testing.T) {
	backend := newTestBackend()
	var got SessionEvent
	backend.EventSink = func(sessionID string, ev SessionEvent) { got = ev }

	rwA, _ := newFakeRWPair()
	peer := newTestPeer(t)
	s := newSession(peer, rwA, ETH68, backend)

	peer.Disconnect(p2p.DiscRequested)
	s.closeSession()

	require.Equal(t, EventClose, got.Kind)
	require.True(t, got.InitiatedByUs)
	require.ErrorIs(t, got.Reason, p2p.DiscRequested)
}
