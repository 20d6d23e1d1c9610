package eth

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/ethereum/go-ethereum/params/forks"
)

// ForkID is the EIP-2124 fork identifier carried in Status for protocol
// version 64 and above (spec §4.6): a CRC32 checksum of every past fork
// block/time the chain has activated, plus the next still-pending one.
type ForkID struct {
	Hash [4]byte
	Next uint64
}

var errLocalIncompatible = errors.New("eth: local node is out of sync (remote requires a future fork we haven't activated)")
var errRemoteStale = errors.New("eth: remote peer is stale (needs a fork we have already passed)")

// ChainFork pairs a hardfork with the block number or timestamp it
// activates at, in ascending activation order.
type ChainFork struct {
	Fork       forks.Fork
	Block      uint64 // 0 if this fork activates by timestamp instead
	Time       uint64
	ByTimestamp bool
}

// NewForkID computes the current ForkID for a chain given its genesis
// hash, activated fork history, and the node's current head
// block-number/timestamp, per EIP-2124.
func NewForkID(genesisHash [32]byte, forkHistory []ChainFork, headBlock, headTime uint64) ForkID {
	hash := crc32.ChecksumIEEE(genesisHash[:])
	next := uint64(0)

	for _, f := range forkHistory {
		activation := f.Block
		passed := headBlock >= f.Block
		if f.ByTimestamp {
			activation = f.Time
			passed = headTime >= f.Time
		}
		if activation == 0 {
			continue // activated at genesis; already folded into the genesis checksum
		}
		if passed {
			hash = checksumUpdate(hash, activation)
			continue
		}
		next = activation
		break
	}

	var id ForkID
	binary.BigEndian.PutUint32(id.Hash[:], hash)
	id.Next = next
	return id
}

func checksumUpdate(hash uint32, activation uint64) uint32 {
	var blob [8]byte
	binary.BigEndian.PutUint64(blob[:], activation)
	return crc32.Update(hash, crc32.IEEETable, blob[:])
}

// ValidateForkID checks a remote ForkID against the local chain's fork
// history, implementing EIP-2124's validation rules: the remote's
// checksum must be reachable from some prefix of our own fork history,
// and if it claims a next-fork timestamp/block, that must not be in our
// past.
func ValidateForkID(local ForkID, remote ForkID, genesisHash [32]byte, forkHistory []ChainFork, headBlock, headTime uint64) error {
	hash := crc32.ChecksumIEEE(genesisHash[:])
	var sums [][4]byte
	var activations []uint64

	record := func(h uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], h)
		sums = append(sums, b)
	}
	record(hash)

	for _, f := range forkHistory {
		activation := f.Block
		if f.ByTimestamp {
			activation = f.Time
		}
		if activation == 0 {
			continue
		}
		hash = checksumUpdate(hash, activation)
		record(hash)
		activations = append(activations, activation)
	}

	for i, sum := range sums {
		if sum != remote.Hash {
			continue
		}
		// The remote is at (or behind) our i-th checksum. If it claims a
		// next-fork that is not the one immediately after this point and
		// that fork is already in our past, the remote is stale.
		if i < len(activations) {
			nextLocal := activations[i]
			if remote.Next != 0 && remote.Next < nextLocal {
				return errRemoteStale
			}
		}
		return nil
	}

	// Our checksum history doesn't contain the remote's checksum at all:
	// either it is on an incompatible chain, or it has already activated a
	// fork we have never heard of.
	return errLocalIncompatible
}
