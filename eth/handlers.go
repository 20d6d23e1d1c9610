package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vanta-network/ethwire/p2p"
	"github.com/vanta-network/ethwire/tx"
)

// handleGetBlockHeaders answers a header query against the chain store,
// walking forward or backward from the query origin by skip+1 steps per
// header, matching the semantics of GetBlockHeadersRequest.
func (s *Session) handleGetBlockHeaders(msg p2p.Msg) error {
	var req GetBlockHeadersPacket
	if err := msg.Decode(&req); err != nil {
		return fmt.Errorf("%w: %v", errProtocolFatal, err)
	}
	var headers []*Header
	if s.backend.Chain != nil {
		headers = s.backend.Chain.GetHeaders(req.Query.Origin, req.Query.Amount, req.Query.Skip, req.Query.Reverse)
	}
	return s.respond(BlockHeadersMsg, BlockHeadersPacket{ReqID: req.ReqID, Headers: headers})
}

func (s *Session) handleGetBlockBodies(msg p2p.Msg) error {
	var req GetBlockBodiesPacket
	if err := msg.Decode(&req); err != nil {
		return fmt.Errorf("%w: %v", errProtocolFatal, err)
	}
	var bodies []*BlockBody
	if s.backend.Chain != nil {
		for _, hash := range req.Hashes {
			if body := s.backend.Chain.GetBody(hash); body != nil {
				bodies = append(bodies, body)
			}
		}
	}
	return s.respond(BlockBodiesMsg, BlockBodiesPacket{ReqID: req.ReqID, Bodies: bodies})
}

func (s *Session) handleGetPooledTransactions(msg p2p.Msg) error {
	var req GetPooledTransactionsPacket
	if err := msg.Decode(&req); err != nil {
		return fmt.Errorf("%w: %v", errProtocolFatal, err)
	}
	var found []*tx.Transaction
	if s.backend.Txs != nil {
		for _, t := range s.backend.Txs.GetByHash(req.Hashes) {
			if concrete, ok := t.(*tx.Transaction); ok {
				found = append(found, concrete)
			}
		}
	}
	return s.respond(PooledTransactionsMsg, PooledTransactionsPacket{ReqID: req.ReqID, Transactions: found})
}

func (s *Session) handleGetNodeData(msg p2p.Msg) error {
	if !nodeDataSupported(s.version) {
		return fmt.Errorf("%w: GetNodeData not supported at eth/%d", errProtocolFatal, s.version)
	}
	var req GetNodeDataPacket
	if err := msg.Decode(&req); err != nil {
		return fmt.Errorf("%w: %v", errProtocolFatal, err)
	}
	return s.respond(NodeDataMsg, NodeDataPacket{ReqID: req.ReqID})
}

func (s *Session) handleGetReceipts(msg p2p.Msg) error {
	var req GetReceiptsPacket
	if err := msg.Decode(&req); err != nil {
		return fmt.Errorf("%w: %v", errProtocolFatal, err)
	}
	var receipts [][]*Receipt
	if s.backend.Receipts != nil {
		for _, hash := range req.Hashes {
			receipts = append(receipts, s.backend.Receipts.GetReceipts(hash, true, true))
		}
	}
	return s.respond(ReceiptsMsg, ReceiptsPacket{ReqID: req.ReqID, Receipts: receipts})
}

func (s *Session) respond(code uint64, packet any) error {
	payload, err := rlp.EncodeToBytes(packet)
	if err != nil {
		return err
	}
	return s.rw.WriteMsg(p2p.Msg{Code: code, Payload: payload})
}
