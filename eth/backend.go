package eth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params/forks"
)

// ChainReader is the "Chain store" external collaborator contract from
// spec §6: read-only access to the locally known chain, supplied by
// whatever block/header storage the embedding application already has.
type ChainReader interface {
	LatestHeader() *Header
	GetBlock(hash common.Hash) *Block
	GetBody(hash common.Hash) *BlockBody
	GetHeaders(from HashOrNumber, max uint64, skip uint64, reverse bool) []*Header
	Genesis() *Block
	TotalDifficulty() *big.Int
	ChainID() *big.Int
}

// TxPool is the "Tx pool" external collaborator contract from spec §6.
type TxPool interface {
	GetByHash(hashes []common.Hash) []Transaction
	HandleAnnouncedTxs(txs []Transaction, peer string)
	HandleAnnouncedTxHashes(hashes []common.Hash, peer string)
}

// Transaction is the minimal surface the tx pool contract needs; the
// engine itself only ever ferries *tx.Transaction values, but the
// collaborator interface is kept narrow so an embedder's own pool type
// need not import this module's tx package to satisfy it.
type Transaction interface {
	Hash() common.Hash
}

// Synchronizer is the "Synchronizer" external collaborator contract from
// spec §6: notified of new-block announcements so it can decide whether
// to fetch/import.
type Synchronizer interface {
	HandleNewBlock(block *Block, peer string)
	HandleNewBlockHashes(hashes []HashNumber, peer string)
}

// ReceiptReader is the "Execution/receipts" external collaborator
// contract from spec §6.
type ReceiptReader interface {
	GetReceipts(blockHash common.Hash, includeLogs, includeTxType bool) []*Receipt
}

// ForkManager is the "Chain-config/hardfork manager" external
// collaborator contract from spec §6.
type ForkManager interface {
	ChainID() *big.Int
	HardforkByBlock(number, time uint64) forks.Fork
	HardforkGte(fork forks.Fork) bool
	IsEIPActive(eip int, fork forks.Fork) bool
	Param(name string, fork forks.Fork) any
	ForkHistory() []ChainFork
	GenesisHash() common.Hash
}

// SessionEvent is one of the events a Session emits to the owning
// application, per spec §6 "Collaborator contracts (produced by the
// core)".
type SessionEvent struct {
	Kind    SessionEventKind
	Status  *StatusPacket
	Reason  error
	Code    uint64
	Payload []byte

	// InitiatedByUs is set on EventClose to record which side hung up
	// (spec §6 "close(reason, initiatedByUs)"); meaningless otherwise.
	InitiatedByUs bool
}

// SessionEventKind discriminates SessionEvent.
type SessionEventKind int

const (
	EventConnect SessionEventKind = iota
	EventClose
	EventError
	EventMessage
	EventStatus
)

// Backend bundles every external collaborator a Session needs, plus an
// optional event sink. A nil EventSink is valid; events are simply
// dropped.
type Backend struct {
	Chain        ChainReader
	Txs          TxPool
	Sync         Synchronizer
	Receipts     ReceiptReader
	Forks        ForkManager
	NetworkID    uint64
	EventSink    func(sessionID string, ev SessionEvent)
}
