package eth

import (
	"errors"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vanta-network/ethwire/tx"
)

// Header, Block, Receipt, and Withdrawal are opaque value types owned by
// the external chain store / execution collaborators (spec §6); this
// engine never constructs or mutates them, only ferries them to and from
// the wire inside the envelopes below.
type (
	Header     = types.Header
	Block      = types.Block
	Receipt    = types.Receipt
	Withdrawal = types.Withdrawal
)

// StatusPacket is the handshake message exchanged once each direction
// immediately after a Connection reaches Active (spec §4.6).
type StatusPacket struct {
	ProtocolVersion uint32
	NetworkID       uint64
	TD              *big.Int
	Head            common.Hash
	Genesis         common.Hash
	ForkID          ForkID
}

// HashNumber pairs a block hash with its number, used in announcements.
type HashNumber struct {
	Hash   common.Hash
	Number uint64
}

// NewBlockHashesPacket announces new chain heads by hash+number only.
type NewBlockHashesPacket []HashNumber

// TransactionsPacket announces full transaction bodies.
type TransactionsPacket []*tx.Transaction

// HashOrNumber is the GetBlockHeaders query origin: exactly one of Hash or
// Number is meaningful, selected by which is the RLP-encoded form —
// mirrors go-ethereum's eth/66 HashOrNumber encoding (a bare hash is a
// 32-byte string, a bare number is an RLP integer).
type HashOrNumber struct {
	Hash   common.Hash
	Number uint64
}

var errInvalidHashOrNumber = errors.New("eth: HashOrNumber: RLP element is neither a hash nor an integer")

// EncodeRLP implements rlp.Encoder: the query is by hash if Hash is
// non-zero, by number otherwise, matching upstream eth's HashOrNumber.
func (hn HashOrNumber) EncodeRLP(w io.Writer) error {
	if hn.Hash != (common.Hash{}) {
		return rlp.Encode(w, hn.Hash)
	}
	return rlp.Encode(w, hn.Number)
}

// DecodeRLP implements rlp.Decoder, dispatching on the wire element's
// shape: a 32-byte string is a hash, anything else is a plain integer.
func (hn *HashOrNumber) DecodeRLP(s *rlp.Stream) error {
	kind, size, err := s.Kind()
	if err != nil {
		return err
	}
	switch {
	case kind == rlp.String && size == 32:
		if err := s.Decode(&hn.Hash); err != nil {
			return err
		}
		hn.Number = 0
	case kind != rlp.List:
		if err := s.Decode(&hn.Number); err != nil {
			return err
		}
		hn.Hash = common.Hash{}
	default:
		return errInvalidHashOrNumber
	}
	return nil
}

// GetBlockHeadersRequest is the query body of GetBlockHeaders.
type GetBlockHeadersRequest struct {
	Origin  HashOrNumber
	Amount  uint64
	Skip    uint64
	Reverse bool
}

// GetBlockHeadersPacket wraps a header query with a request id.
type GetBlockHeadersPacket struct {
	ReqID uint64
	Query GetBlockHeadersRequest
}

// BlockHeadersPacket is the response to GetBlockHeaders.
type BlockHeadersPacket struct {
	ReqID   uint64
	Headers []*Header
}

// GetBlockBodiesPacket requests full bodies by header hash.
type GetBlockBodiesPacket struct {
	ReqID  uint64
	Hashes []common.Hash
}

// BlockBody is one block's transactions/uncles/withdrawals, withdrawals
// only populated for post-Shanghai bodies.
type BlockBody struct {
	Transactions []*tx.Transaction
	Uncles       []*Header
	Withdrawals  []*Withdrawal `rlp:"optional"`
}

// BlockBodiesPacket is the response to GetBlockBodies.
type BlockBodiesPacket struct {
	ReqID  uint64
	Bodies []*BlockBody
}

// NewBlockPacket announces a freshly mined/received block with its total
// difficulty.
type NewBlockPacket struct {
	Block *Block
	TD    *big.Int
}

// NewPooledTransactionHashesPacket68 is the eth/68+ announcement shape:
// parallel arrays of type, size, and hash (spec §4.6 "v≥68").
type NewPooledTransactionHashesPacket68 struct {
	Types  []byte
	Sizes  []uint32
	Hashes []common.Hash
}

// NewPooledTransactionHashesPacket67 is the pre-68 bare hash list shape
// used by eth/65 through eth/67.
type NewPooledTransactionHashesPacket67 []common.Hash

// GetPooledTransactionsPacket requests pooled transactions by hash.
type GetPooledTransactionsPacket struct {
	ReqID  uint64
	Hashes []common.Hash
}

// PooledTransactionsPacket is the response to GetPooledTransactions.
type PooledTransactionsPacket struct {
	ReqID        uint64
	Transactions []*tx.Transaction
}

// GetNodeDataPacket requests raw trie/state node data (eth/63-66 only).
type GetNodeDataPacket struct {
	ReqID  uint64
	Hashes []common.Hash
}

// NodeDataPacket is the response to GetNodeData.
type NodeDataPacket struct {
	ReqID uint64
	Data  [][]byte
}

// GetReceiptsPacket requests block receipts by header hash.
type GetReceiptsPacket struct {
	ReqID  uint64
	Hashes []common.Hash
}

// ReceiptsPacket is the response to GetReceipts: one receipt list per
// requested block hash.
type ReceiptsPacket struct {
	ReqID    uint64
	Receipts [][]*Receipt
}
