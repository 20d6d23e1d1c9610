// Package tx implements the five Ethereum transaction variants carried by
// the ETH sub-protocol, their RLP encodings, signing hashes and effective
// gas price computation.
//
// RLP encoding and the cryptographic primitives (keccak, secp256k1) are
// provided by github.com/ethereum/go-ethereum; everything else here is
// implemented natively.
package tx

import (
	"errors"
	"io"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Type identifies a transaction variant by its leading RLP byte.
type Type byte

const (
	LegacyTxType Type = 0x00
	AccessListTxType Type = 0x01
	DynamicFeeTxType Type = 0x02
	BlobTxType Type = 0x03
	SetCodeTxType Type = 0x04
)

var (
	ErrTxTypeNotSupported   = errors.New("tx: transaction type not supported")
	ErrInvalidTxType        = errors.New("tx: invalid transaction type")
	ErrLeadingZeroInteger   = errors.New("tx: leading zero in RLP integer field")
	ErrMissingTo            = errors.New("tx: missing 'to' address")
	ErrEmptyBlobHashes      = errors.New("tx: blob transaction without blob hashes")
	ErrInvalidBlobVersion   = errors.New("tx: blob versioned hash has invalid version byte")
	ErrEmptyAuthorizations  = errors.New("tx: set-code transaction without authorizations")
)

// TxData is the variant-specific payload of a Transaction. Implementations
// are LegacyTx, AccessListTx, DynamicFeeTx, BlobTx and SetCodeTx.
//
// TxData values are never mutated after construction; signature attachment
// produces a copy via withSignature.
type TxData interface {
	txType() Type
	copy() TxData

	chainID() *big.Int
	accessList() AccessList
	data() []byte
	gas() uint64
	gasPrice() *big.Int
	gasTipCap() *big.Int
	gasFeeCap() *big.Int
	value() *big.Int
	nonce() uint64
	to() *common.Address

	rawSignatureValues() (v, r, s *big.Int)
	setSignatureValues(chainID, v, r, s *big.Int)

	encode(*bytesBuffer) error
	decode([]byte) error
}

// Transaction is an immutable, variant-tagged Ethereum transaction. The
// zero value is not valid; construct one with NewTx.
type Transaction struct {
	inner TxData
	time  int64 // local receipt time, not part of the wire format

	// caches, populated at most once
	hash atomic.Pointer[common.Hash]
	size atomic.Uint64

	sidecar atomic.Pointer[BlobTxSidecar]
	senders atomic.Pointer[senderCache]
}

// NewTx wraps a variant payload into a Transaction.
func NewTx(inner TxData) *Transaction {
	tx := new(Transaction)
	tx.setDecoded(inner.copy(), 0)
	return tx
}

func (tx *Transaction) setDecoded(inner TxData, size uint64) {
	tx.inner = inner
	if size > 0 {
		tx.size.Store(size)
	}
}

// Type returns the transaction's leading type byte (0x00 for legacy, which
// has no explicit type byte on the wire but is assigned 0x00 here for
// uniform dispatch).
func (tx *Transaction) Type() Type { return tx.inner.txType() }

func (tx *Transaction) ChainId() *big.Int        { return tx.inner.chainID() }
func (tx *Transaction) Data() []byte             { return tx.inner.data() }
func (tx *Transaction) AccessList() AccessList    { return tx.inner.accessList() }
func (tx *Transaction) Gas() uint64              { return tx.inner.gas() }
func (tx *Transaction) GasPrice() *big.Int       { return new(big.Int).Set(tx.inner.gasPrice()) }
func (tx *Transaction) GasTipCap() *big.Int      { return new(big.Int).Set(tx.inner.gasTipCap()) }
func (tx *Transaction) GasFeeCap() *big.Int      { return new(big.Int).Set(tx.inner.gasFeeCap()) }
func (tx *Transaction) Value() *big.Int          { return new(big.Int).Set(tx.inner.value()) }
func (tx *Transaction) Nonce() uint64            { return tx.inner.nonce() }
func (tx *Transaction) To() *common.Address {
	if to := tx.inner.to(); to != nil {
		cpy := *to
		return &cpy
	}
	return nil
}

// RawSignatureValues returns the (v, r, s) signature fields exactly as
// present on the variant's RLP body, with no era-specific interpretation.
func (tx *Transaction) RawSignatureValues() (v, r, s *big.Int) {
	return tx.inner.rawSignatureValues()
}

// BlobGasFeeCap returns maxFeePerBlobGas for blob transactions, nil otherwise.
func (tx *Transaction) BlobGasFeeCap() *big.Int {
	if blob, ok := tx.inner.(*BlobTx); ok {
		return blob.BlobFeeCap.ToBig()
	}
	return nil
}

// BlobHashes returns the versioned blob hashes, nil for non-blob variants.
func (tx *Transaction) BlobHashes() []common.Hash {
	if blob, ok := tx.inner.(*BlobTx); ok {
		return blob.BlobHashes
	}
	return nil
}

// BlobTxSidecar returns the attached sidecar, if any.
func (tx *Transaction) BlobTxSidecar() *BlobTxSidecar {
	return tx.sidecar.Load()
}

// WithBlobTxSidecar attaches a sidecar to a blob transaction, returning a
// new Transaction value; tx itself is not mutated beyond the cache field,
// which holds no wire-visible state.
func (tx *Transaction) WithBlobTxSidecar(sidecar *BlobTxSidecar) (*Transaction, error) {
	if tx.Type() != BlobTxType {
		return nil, ErrTxTypeNotSupported
	}
	cpy := &Transaction{inner: tx.inner.copy(), time: tx.time}
	cpy.sidecar.Store(sidecar)
	return cpy, nil
}

// AuthList returns the EIP-7702 authorization list, nil for non-set-code
// variants.
func (tx *Transaction) AuthList() []SetCodeAuthorization {
	if sc, ok := tx.inner.(*SetCodeTx); ok {
		return sc.AuthList
	}
	return nil
}

// EffectiveGasPrice computes the per-gas price actually paid given a base
// fee. Legacy and access-list transactions ignore baseFee and return their
// fixed gas price; dynamic-fee family transactions return
// baseFee + min(tip, feeCap-baseFee), capped at feeCap. A nil baseFee
// (pre-London context) yields GasFeeCap.
func (tx *Transaction) EffectiveGasPrice(baseFee *big.Int) *big.Int {
	switch tx.Type() {
	case LegacyTxType, AccessListTxType:
		return tx.GasPrice()
	default:
		if baseFee == nil {
			return tx.GasFeeCap()
		}
		tip := tx.GasTipCap()
		feeCap := tx.GasFeeCap()
		headroom := new(big.Int).Sub(feeCap, baseFee)
		if headroom.Sign() < 0 {
			headroom.SetInt64(0)
		}
		effectiveTip := tip
		if headroom.Cmp(tip) < 0 {
			effectiveTip = headroom
		}
		return new(big.Int).Add(baseFee, effectiveTip)
	}
}

// Hash returns the transaction hash, memoised on first access. It is the
// hash of the canonical wire encoding (typeByte||rlp(body) for typed
// variants, rlp(body) for legacy), not the signing hash.
func (tx *Transaction) Hash() common.Hash {
	if h := tx.hash.Load(); h != nil {
		return *h
	}
	var h common.Hash
	if tx.Type() == LegacyTxType {
		h = rlpHash(tx.inner)
	} else {
		h = prefixedRlpHash(byte(tx.Type()), tx.inner)
	}
	tx.hash.Store(&h)
	return h
}

// Size returns the true encoded storage size of the transaction, memoised.
func (tx *Transaction) Size() uint64 {
	if s := tx.size.Load(); s != 0 {
		return s
	}
	buf := new(bytesBuffer)
	if err := tx.encodeTyped(buf); err == nil {
		tx.size.Store(uint64(buf.Len()))
	}
	return tx.size.Load()
}

// MarshalBinary returns the canonical wire encoding: typeByte||rlp(body)
// for typed variants, rlp(body) for legacy.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	buf := new(bytesBuffer)
	if err := tx.encodeTyped(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (tx *Transaction) encodeTyped(w *bytesBuffer) error {
	if tx.Type() != LegacyTxType {
		w.WriteByte(byte(tx.Type()))
	}
	return tx.inner.encode(w)
}

// UnmarshalBinary decodes the canonical wire encoding produced by
// MarshalBinary. The first byte selects the variant per spec §4.1: a byte
// in [0x00, 0x7f] selects a typed variant, a byte >= 0xc0 is an RLP list
// prefix and the transaction is legacy.
func (tx *Transaction) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return io.ErrUnexpectedEOF
	}
	if data[0] > 0x7f {
		var inner LegacyTx
		if err := inner.decode(data); err != nil {
			return err
		}
		tx.setDecoded(&inner, uint64(len(data)))
		return nil
	}
	inner, err := newTxDataByType(Type(data[0]))
	if err != nil {
		return err
	}
	if err := inner.decode(data[1:]); err != nil {
		return err
	}
	tx.setDecoded(inner, uint64(len(data)))
	tx.liftWireSidecar(inner)
	return nil
}

// liftWireSidecar moves a sidecar parsed off a PooledTransactions envelope
// (tx/blob_tx.go's BlobTx.decode) from the just-decoded variant onto the
// Transaction's own sidecar cache.
func (tx *Transaction) liftWireSidecar(inner TxData) {
	if blob, ok := inner.(*BlobTx); ok && blob.wireSidecar != nil {
		tx.sidecar.Store(blob.wireSidecar)
		blob.wireSidecar = nil
	}
}

func newTxDataByType(t Type) (TxData, error) {
	switch t {
	case AccessListTxType:
		return new(AccessListTx), nil
	case DynamicFeeTxType:
		return new(DynamicFeeTx), nil
	case BlobTxType:
		return new(BlobTx), nil
	case SetCodeTxType:
		return new(SetCodeTx), nil
	default:
		return nil, ErrInvalidTxType
	}
}

// EncodeRLP implements rlp.Encoder. Typed transactions are wrapped in an
// RLP string so that they can appear inside a list of transactions
// alongside legacy transactions (EIP-2718 "typed transaction envelope").
func (tx *Transaction) EncodeRLP(w io.Writer) error {
	if tx.Type() == LegacyTxType {
		return rlp.Encode(w, tx.inner)
	}
	buf := new(bytesBuffer)
	if err := tx.encodeTyped(buf); err != nil {
		return err
	}
	return rlp.Encode(w, buf.Bytes())
}

// DecodeRLP implements rlp.Decoder.
func (tx *Transaction) DecodeRLP(s *rlp.Stream) error {
	kind, size, err := s.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case rlp.List:
		var inner LegacyTx
		if err := s.Decode(&inner); err != nil {
			return err
		}
		tx.setDecoded(&inner, rlp.ListSize(size))
		return nil
	case rlp.String:
		raw, err := s.Bytes()
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			return io.ErrUnexpectedEOF
		}
		inner, err := newTxDataByType(Type(raw[0]))
		if err != nil {
			return err
		}
		if err := inner.decode(raw[1:]); err != nil {
			return err
		}
		tx.setDecoded(inner, uint64(len(raw)))
		tx.liftWireSidecar(inner)
		return nil
	default:
		return rlp.ErrExpectedList
	}
}

func u256OrNil(v *uint256.Int) *big.Int {
	if v == nil {
		return nil
	}
	return v.ToBig()
}
