package tx

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// LegacyTx is the original Ethereum transaction format. It carries no
// explicit type byte on the wire: it is recognised by an RLP list prefix
// (first byte >= 0xc0), per spec §4.1.
type LegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
	V, R, S  *big.Int
}

// NewLegacyTx creates an unsigned legacy transaction wrapped in a
// Transaction value.
func NewLegacyTx(nonce uint64, to *common.Address, value *big.Int, gas uint64, gasPrice *big.Int, data []byte) *Transaction {
	return NewTx(&LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
		V:        new(big.Int),
		R:        new(big.Int),
		S:        new(big.Int),
	})
}

func (tx *LegacyTx) txType() Type { return LegacyTxType }

func (tx *LegacyTx) copy() TxData {
	cpy := &LegacyTx{
		Nonce:    tx.Nonce,
		To:       copyAddr(tx.To),
		Value:    copyBigInt(tx.Value),
		Gas:      tx.Gas,
		GasPrice: copyBigInt(tx.GasPrice),
		Data:     append([]byte(nil), tx.Data...),
		V:        copyBigInt(tx.V),
		R:        copyBigInt(tx.R),
		S:        copyBigInt(tx.S),
	}
	if cpy.Value == nil {
		cpy.Value = new(big.Int)
	}
	if cpy.GasPrice == nil {
		cpy.GasPrice = new(big.Int)
	}
	if cpy.V == nil {
		cpy.V = new(big.Int)
	}
	if cpy.R == nil {
		cpy.R = new(big.Int)
	}
	if cpy.S == nil {
		cpy.S = new(big.Int)
	}
	return cpy
}

// chainID is derived from V for legacy transactions signed under EIP-155
// (V >= 35); pre-EIP-155 signatures (V in {27,28}) have no chain id.
func (tx *LegacyTx) chainID() *big.Int {
	return deriveChainId(tx.V)
}

func (tx *LegacyTx) accessList() AccessList   { return nil }
func (tx *LegacyTx) data() []byte             { return tx.Data }
func (tx *LegacyTx) gas() uint64              { return tx.Gas }
func (tx *LegacyTx) gasPrice() *big.Int       { return tx.GasPrice }
func (tx *LegacyTx) gasTipCap() *big.Int      { return tx.GasPrice }
func (tx *LegacyTx) gasFeeCap() *big.Int      { return tx.GasPrice }
func (tx *LegacyTx) value() *big.Int          { return tx.Value }
func (tx *LegacyTx) nonce() uint64            { return tx.Nonce }
func (tx *LegacyTx) to() *common.Address      { return tx.To }

func (tx *LegacyTx) rawSignatureValues() (v, r, s *big.Int) {
	return tx.V, tx.R, tx.S
}

func (tx *LegacyTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.V, tx.R, tx.S = v, r, s
}

func (tx *LegacyTx) encode(w *bytesBuffer) error {
	return rlp.Encode(w, tx)
}

func (tx *LegacyTx) decode(data []byte) error {
	return rlp.DecodeBytes(data, tx)
}

func copyAddr(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	cpy := *a
	return &cpy
}
