package tx

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// BlobVersionHashVersion is the single accepted version byte for a blob's
// versioned hash (the first byte of the commitment's KZG-derived hash).
const BlobVersionHashVersion = 0x01

// BlobTx implements the EIP-4844 transaction (type byte 0x03). It extends
// the dynamic-fee fields with a blob-gas fee cap and a list of versioned
// blob hashes; the "to" address is mandatory (blob transactions cannot
// create contracts).
type BlobTx struct {
	ChainID    *uint256.Int
	Nonce      uint64
	GasTipCap  *uint256.Int
	GasFeeCap  *uint256.Int
	Gas        uint64
	To         common.Address
	Value      *uint256.Int
	Data       []byte
	AccessList AccessList
	BlobFeeCap *uint256.Int
	BlobHashes []common.Hash
	V          *uint256.Int
	R          *uint256.Int
	S          *uint256.Int

	// wireSidecar holds a sidecar parsed off a PooledTransactions envelope
	// by decode; Transaction.DecodeRLP lifts it onto the enclosing
	// Transaction and clears it here. Never populated by plain decode and
	// never touched by rlp (unexported), so it has no effect on encode,
	// the signing hash, or the 14-element canonical field decode.
	wireSidecar *BlobTxSidecar
}

func (tx *BlobTx) txType() Type { return BlobTxType }

func (tx *BlobTx) copy() TxData {
	cpy := &BlobTx{
		ChainID:    copyU256(tx.ChainID),
		Nonce:      tx.Nonce,
		GasTipCap:  copyU256(tx.GasTipCap),
		GasFeeCap:  copyU256(tx.GasFeeCap),
		Gas:        tx.Gas,
		To:         tx.To,
		Value:      copyU256(tx.Value),
		Data:       append([]byte(nil), tx.Data...),
		AccessList: copyAccessList(tx.AccessList),
		BlobFeeCap: copyU256(tx.BlobFeeCap),
		BlobHashes: append([]common.Hash(nil), tx.BlobHashes...),
		V:          copyU256(tx.V),
		R:          copyU256(tx.R),
		S:          copyU256(tx.S),
	}
	return cpy
}

func copyU256(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func (tx *BlobTx) chainID() *big.Int      { return u256OrNil(tx.ChainID) }
func (tx *BlobTx) accessList() AccessList { return tx.AccessList }
func (tx *BlobTx) data() []byte           { return tx.Data }
func (tx *BlobTx) gas() uint64            { return tx.Gas }
func (tx *BlobTx) gasPrice() *big.Int     { return u256OrNil(tx.GasFeeCap) }
func (tx *BlobTx) gasTipCap() *big.Int    { return u256OrNil(tx.GasTipCap) }
func (tx *BlobTx) gasFeeCap() *big.Int    { return u256OrNil(tx.GasFeeCap) }
func (tx *BlobTx) value() *big.Int        { return u256OrNil(tx.Value) }
func (tx *BlobTx) nonce() uint64          { return tx.Nonce }
func (tx *BlobTx) to() *common.Address    { return &tx.To }

func (tx *BlobTx) rawSignatureValues() (v, r, s *big.Int) {
	return u256OrNil(tx.V), u256OrNil(tx.R), u256OrNil(tx.S)
}

func (tx *BlobTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.ChainID = uint256.MustFromBig(chainID)
	tx.V = uint256.MustFromBig(v)
	tx.R = uint256.MustFromBig(r)
	tx.S = uint256.MustFromBig(s)
}

func (tx *BlobTx) encode(w *bytesBuffer) error {
	return rlp.Encode(w, tx)
}

// decode accepts two wire shapes, told apart by outer RLP list length
// (spec §4.1 / SPEC_FULL.md SUPPLEMENTED FEATURE): a bare 14-element list of
// the transaction's own fields (used everywhere a blob transaction is
// canonically encoded — blocks, the signing hash, a GetPooledTransactions
// request echoed back without a sidecar), or a 2-element
// [fields, sidecar] envelope, where the second element is exactly a
// BlobTxSidecar's own RLP encoding. The latter is how a PooledTransactions
// response attaches a sidecar to a blob transaction.
func (tx *BlobTx) decode(data []byte) error {
	var raw []rlp.RawValue
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return err
	}
	switch len(raw) {
	case 2:
		if err := rlp.DecodeBytes(raw[0], tx); err != nil {
			return err
		}
		sidecar, err := DecodeSidecarRLP(raw[1])
		if err != nil {
			return err
		}
		tx.wireSidecar = sidecar
	default:
		if err := rlp.DecodeBytes(data, tx); err != nil {
			return err
		}
	}
	if len(tx.BlobHashes) == 0 {
		return ErrEmptyBlobHashes
	}
	for _, h := range tx.BlobHashes {
		if h[0] != BlobVersionHashVersion {
			return ErrInvalidBlobVersion
		}
	}
	return nil
}

// BlobTxSidecar carries the blobs, commitments and proofs accompanying a
// blob transaction over the wire; it is never part of the transaction hash
// or signing hash, only of the PooledTransactions response.
//
// Two wire versions coexist (SUPPLEMENTED FEATURES in SPEC_FULL.md): version
// 0 (EIP-4844, one proof per blob) encodes as a bare list of three equal
// length lists [blobs, commitments, proofs]; version 1 (EIP-7594, cell
// proofs) prefixes the same shape with a leading version byte and carries
// CellsPerBlob proofs per blob. The two are told apart by RLP shape, not by
// a field Status negotiates, since no peer advertises a sidecar version.
type BlobTxSidecar struct {
	Version     byte
	Blobs       [][]byte
	Commitments [][]byte
	Proofs      [][]byte
}

// ErrUnsupportedSidecarVersion is returned when a PooledTransactions
// response carries a sidecar whose shape matches neither known version.
var ErrUnsupportedSidecarVersion = &sidecarVersionError{}

type sidecarVersionError struct{}

func (*sidecarVersionError) Error() string { return "tx: unsupported blob sidecar version" }

// EncodeRLP encodes the sidecar in its own version's wire shape.
func (s *BlobTxSidecar) EncodeRLP(w io.Writer) error {
	if s.Version == 0 {
		return rlp.Encode(w, []interface{}{s.Blobs, s.Commitments, s.Proofs})
	}
	return rlp.Encode(w, []interface{}{s.Version, s.Blobs, s.Commitments, s.Proofs})
}

// DecodeSidecarRLP decodes a sidecar from either wire version by inspecting
// the shape of the outer RLP list: three elements (three lists) is version
// 0; four elements with a leading byte string is version 1.
func DecodeSidecarRLP(data []byte) (*BlobTxSidecar, error) {
	var raw []rlp.RawValue
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	switch len(raw) {
	case 3:
		s := &BlobTxSidecar{Version: 0}
		if err := rlp.DecodeBytes(raw[0], &s.Blobs); err != nil {
			return nil, err
		}
		if err := rlp.DecodeBytes(raw[1], &s.Commitments); err != nil {
			return nil, err
		}
		if err := rlp.DecodeBytes(raw[2], &s.Proofs); err != nil {
			return nil, err
		}
		return s, nil
	case 4:
		s := &BlobTxSidecar{Version: 1}
		if err := rlp.DecodeBytes(raw[0], &s.Version); err != nil {
			return nil, err
		}
		if s.Version != 1 {
			return nil, ErrUnsupportedSidecarVersion
		}
		if err := rlp.DecodeBytes(raw[1], &s.Blobs); err != nil {
			return nil, err
		}
		if err := rlp.DecodeBytes(raw[2], &s.Commitments); err != nil {
			return nil, err
		}
		if err := rlp.DecodeBytes(raw[3], &s.Proofs); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, ErrUnsupportedSidecarVersion
	}
}
