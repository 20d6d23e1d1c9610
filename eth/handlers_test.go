package eth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/vanta-network/ethwire/p2p"
	"github.com/vanta-network/ethwire/tx"
)

func newMsg(code uint64, payload []byte) p2p.Msg {
	return p2p.Msg{Code: code, Payload: payload}
}

type fakeBodyChain struct {
	fakeChain
	headers map[common.Hash]*BlockBody
}

func (c *fakeBodyChain) GetBody(hash common.Hash) *BlockBody { return c.headers[hash] }
func (c *fakeBodyChain) GetHeaders(HashOrNumber, uint64, uint64, bool) []*Header {
	return []*Header{{Number: big.NewInt(1)}, {Number: big.NewInt(2)}}
}

type fakeTxPool struct {
	byHash map[common.Hash]*tx.Transaction
}

func (p *fakeTxPool) GetByHash(hashes []common.Hash) []Transaction {
	out := make([]Transaction, 0, len(hashes))
	for _, h := range hashes {
		if t, ok := p.byHash[h]; ok {
			out = append(out, t)
		}
	}
	return out
}
func (p *fakeTxPool) HandleAnnouncedTxs([]Transaction, string)    {}
func (p *fakeTxPool) HandleAnnouncedTxHashes([]common.Hash, string) {}

type fakeReceiptReader struct {
	byHash map[common.Hash][]*Receipt
}

func (r *fakeReceiptReader) GetReceipts(hash common.Hash, _, _ bool) []*Receipt {
	return r.byHash[hash]
}

func TestHandleGetBlockHeadersRespondsFromChain(t *testing.T) {
	backend := newTestBackend()
	s := newSession(newTestPeer(t), nil, ETH68, backend)

	rwA, rwB := newFakeRWPair()
	s.rw = rwA

	req := GetBlockHeadersPacket{ReqID: 5, Query: GetBlockHeadersRequest{Origin: HashOrNumber{Number: 1}, Amount: 2}}
	payload, err := rlp.EncodeToBytes(req)
	require.NoError(t, err)
	require.NoError(t, rwB.WriteMsg(newMsg(GetBlockHeadersMsg, payload)))

	msg, err := rwA.ReadMsg()
	require.NoError(t, err)
	require.NoError(t, s.handleGetBlockHeaders(msg))

	out, err := rwB.ReadMsg()
	require.NoError(t, err)
	var resp BlockHeadersPacket
	require.NoError(t, rlp.DecodeBytes(out.Payload, &resp))
	require.EqualValues(t, 5, resp.ReqID)
	require.Empty(t, resp.Headers, "fakeChain.GetHeaders stub returns nil by default, which goes on the wire as an empty list")
}

func TestHandleGetBlockBodiesUsesChainGetBody(t *testing.T) {
	backend := newTestBackend()
	hash := common.HexToHash("0x01")
	body := &BlockBody{Transactions: []*tx.Transaction{}}
	backend.Chain = &fakeBodyChain{headers: map[common.Hash]*BlockBody{hash: body}}
	s := newSession(newTestPeer(t), nil, ETH68, backend)

	rwA, rwB := newFakeRWPair()
	s.rw = rwA

	req := GetBlockBodiesPacket{ReqID: 9, Hashes: []common.Hash{hash, common.HexToHash("0x02")}}
	payload, err := rlp.EncodeToBytes(req)
	require.NoError(t, err)
	require.NoError(t, rwB.WriteMsg(newMsg(GetBlockBodiesMsg, payload)))

	msg, err := rwA.ReadMsg()
	require.NoError(t, err)
	require.NoError(t, s.handleGetBlockBodies(msg))

	out, err := rwB.ReadMsg()
	require.NoError(t, err)
	var resp BlockBodiesPacket
	require.NoError(t, rlp.DecodeBytes(out.Payload, &resp))
	require.EqualValues(t, 9, resp.ReqID)
	require.Len(t, resp.Bodies, 1, "only the known hash should produce a body")
}

func TestHandleGetPooledTransactionsFiltersUnknownHashes(t *testing.T) {
	backend := newTestBackend()
	known := tx.NewLegacyTx(0, nil, big.NewInt(0), 21000, big.NewInt(1), nil)
	hash := common.HexToHash("0xaa")
	backend.Txs = &fakeTxPool{byHash: map[common.Hash]*tx.Transaction{hash: known}}
	s := newSession(newTestPeer(t), nil, ETH68, backend)

	rwA, rwB := newFakeRWPair()
	s.rw = rwA

	req := GetPooledTransactionsPacket{ReqID: 3, Hashes: []common.Hash{hash, common.HexToHash("0xbb")}}
	payload, err := rlp.EncodeToBytes(req)
	require.NoError(t, err)
	require.NoError(t, rwB.WriteMsg(newMsg(GetPooledTransactionsMsg, payload)))

	msg, err := rwA.ReadMsg()
	require.NoError(t, err)
	require.NoError(t, s.handleGetPooledTransactions(msg))

	out, err := rwB.ReadMsg()
	require.NoError(t, err)
	var resp PooledTransactionsPacket
	require.NoError(t, rlp.DecodeBytes(out.Payload, &resp))
	require.EqualValues(t, 3, resp.ReqID)
	require.Len(t, resp.Transactions, 1)
}

func TestHandleGetNodeDataRejectedAboveEth66(t *testing.T) {
	backend := newTestBackend()
	s := newSession(newTestPeer(t), nil, ETH68, backend)

	rwA, _ := newFakeRWPair()
	s.rw = rwA

	req := GetNodeDataPacket{ReqID: 1}
	payload, err := rlp.EncodeToBytes(req)
	require.NoError(t, err)

	err = s.handleGetNodeData(newMsg(GetNodeDataMsg, payload))
	require.Error(t, err)
}

func TestHandleGetReceiptsRespondsPerHash(t *testing.T) {
	backend := newTestBackend()
	hash := common.HexToHash("0x03")
	receipt := &Receipt{Status: types.ReceiptStatusSuccessful}
	backend.Receipts = &fakeReceiptReader{byHash: map[common.Hash][]*Receipt{hash: {receipt}}}
	s := newSession(newTestPeer(t), nil, ETH68, backend)

	rwA, rwB := newFakeRWPair()
	s.rw = rwA

	req := GetReceiptsPacket{ReqID: 11, Hashes: []common.Hash{hash}}
	payload, err := rlp.EncodeToBytes(req)
	require.NoError(t, err)
	require.NoError(t, rwB.WriteMsg(newMsg(GetReceiptsMsg, payload)))

	msg, err := rwA.ReadMsg()
	require.NoError(t, err)
	require.NoError(t, s.handleGetReceipts(msg))

	out, err := rwB.ReadMsg()
	require.NoError(t, err)
	var resp ReceiptsPacket
	require.NoError(t, rlp.DecodeBytes(out.Payload, &resp))
	require.EqualValues(t, 11, resp.ReqID)
	require.Len(t, resp.Receipts, 1)
	require.Len(t, resp.Receipts[0], 1)
}
