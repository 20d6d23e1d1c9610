package tx

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// bytesBuffer is an alias of bytes.Buffer, the writer the encode() methods
// take at the TxData interface boundary.
type bytesBuffer = bytes.Buffer

// rlpHash hashes the RLP encoding of x.
func rlpHash(x interface{}) common.Hash {
	h := crypto.NewKeccakState()
	var out common.Hash
	rlp.Encode(h, x)
	h.Read(out[:])
	return out
}

// prefixedRlpHash hashes prefix||rlp(x), used for typed transactions and
// their signing hashes.
func prefixedRlpHash(prefix byte, x interface{}) common.Hash {
	h := crypto.NewKeccakState()
	var out common.Hash
	h.Write([]byte{prefix})
	rlp.Encode(h, x)
	h.Read(out[:])
	return out
}

// AccessTuple is one entry of an EIP-2930 access list.
type AccessTuple struct {
	Address     common.Address `json:"address"`
	StorageKeys []common.Hash  `json:"storageKeys"`
}

// AccessList is an EIP-2930 access list.
type AccessList []AccessTuple

// StorageKeys returns the total number of storage keys across the list.
func (al AccessList) StorageKeys() int {
	n := 0
	for _, tuple := range al {
		n += len(tuple.StorageKeys)
	}
	return n
}

func copyAccessList(al AccessList) AccessList {
	if al == nil {
		return nil
	}
	cpy := make(AccessList, len(al))
	for i, t := range al {
		cpy[i] = AccessTuple{Address: t.Address, StorageKeys: append([]common.Hash(nil), t.StorageKeys...)}
	}
	return cpy
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// checkLeadingZero rejects RLP-decoded big.Int fields whose canonical byte
// representation would have had a leading zero byte, per spec §4.1. The
// go-ethereum RLP decoder already rejects non-canonical integer encodings
// when decoding directly into *big.Int/*uint256.Int, and no decode path in
// this package calls it.
func checkLeadingZero(b []byte) error {
	if len(b) > 1 && b[0] == 0 {
		return ErrLeadingZeroInteger
	}
	return nil
}
