package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// GetBlockHeaders issues a GetBlockHeaders request and blocks for the
// response, sharing an in-flight request with any identical concurrent
// caller (spec §6 "Requests expose: getBlockHeaders...").
func (s *Session) GetBlockHeaders(origin HashOrNumber, amount, skip uint64, reverse bool) (uint64, []*Header, error) {
	key := fmt.Sprintf("headers:%v:%d:%d:%v", origin, amount, skip, reverse)
	res, err := s.request(GetBlockHeadersMsg, key, func(id uint64) any {
		return GetBlockHeadersPacket{ReqID: id, Query: GetBlockHeadersRequest{Origin: origin, Amount: amount, Skip: skip, Reverse: reverse}}
	}, func(b []byte) (any, error) {
		var p BlockHeadersPacket
		err := rlp.DecodeBytes(b, &p)
		return p, err
	})
	if err != nil {
		return 0, nil, err
	}
	packet := res.(BlockHeadersPacket)
	return packet.ReqID, packet.Headers, nil
}

// GetBlockBodies issues a GetBlockBodies request and blocks for the response.
func (s *Session) GetBlockBodies(hashes []common.Hash) (uint64, []*BlockBody, error) {
	key := fmt.Sprintf("bodies:%v", hashes)
	res, err := s.request(GetBlockBodiesMsg, key, func(id uint64) any {
		return GetBlockBodiesPacket{ReqID: id, Hashes: hashes}
	}, func(b []byte) (any, error) {
		var p BlockBodiesPacket
		err := rlp.DecodeBytes(b, &p)
		return p, err
	})
	if err != nil {
		return 0, nil, err
	}
	packet := res.(BlockBodiesPacket)
	return packet.ReqID, packet.Bodies, nil
}

// GetPooledTransactions issues a GetPooledTransactions request and blocks
// for the response.
func (s *Session) GetPooledTransactions(hashes []common.Hash) (uint64, []Transaction, error) {
	key := fmt.Sprintf("pooledtx:%v", hashes)
	res, err := s.request(GetPooledTransactionsMsg, key, func(id uint64) any {
		return GetPooledTransactionsPacket{ReqID: id, Hashes: hashes}
	}, func(b []byte) (any, error) {
		var p PooledTransactionsPacket
		err := rlp.DecodeBytes(b, &p)
		return p, err
	})
	if err != nil {
		return 0, nil, err
	}
	packet := res.(PooledTransactionsPacket)
	return packet.ReqID, toTransactionSlice(TransactionsPacket(packet.Transactions)), nil
}

// GetReceipts issues a GetReceipts request and blocks for the response.
func (s *Session) GetReceipts(hashes []common.Hash) (uint64, [][]*Receipt, error) {
	key := fmt.Sprintf("receipts:%v", hashes)
	res, err := s.request(GetReceiptsMsg, key, func(id uint64) any {
		return GetReceiptsPacket{ReqID: id, Hashes: hashes}
	}, func(b []byte) (any, error) {
		var p ReceiptsPacket
		err := rlp.DecodeBytes(b, &p)
		return p, err
	})
	if err != nil {
		return 0, nil, err
	}
	packet := res.(ReceiptsPacket)
	return packet.ReqID, packet.Receipts, nil
}

// GetNodeData issues a GetNodeData request and blocks for the response.
// Only meaningful at eth/63-66: nodeDataSupported(s.version) tells callers
// whether this peer's negotiated version still carries it.
func (s *Session) GetNodeData(hashes []common.Hash) (uint64, [][]byte, error) {
	key := fmt.Sprintf("nodedata:%v", hashes)
	res, err := s.request(GetNodeDataMsg, key, func(id uint64) any {
		return GetNodeDataPacket{ReqID: id, Hashes: hashes}
	}, func(b []byte) (any, error) {
		var p NodeDataPacket
		err := rlp.DecodeBytes(b, &p)
		return p, err
	})
	if err != nil {
		return 0, nil, err
	}
	packet := res.(NodeDataPacket)
	return packet.ReqID, packet.Data, nil
}
