package tx

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// SetCodeAuthorization is one entry of an EIP-7702 authorization list: a
// statement signed by the authorizing account (recovered by Authority)
// delegating that account's code to the code at Address.
type SetCodeAuthorization struct {
	ChainID *big.Int
	Address common.Address
	Nonce   uint64
	V       uint8
	R       *big.Int
	S       *big.Int
}

// sigHash is the keccak256 hash signed by the authorizing account:
// keccak256(0x05 || rlp([chainId, address, nonce])).
func (a *SetCodeAuthorization) sigHash() common.Hash {
	return prefixedRlpHash(0x05, []interface{}{a.ChainID, a.Address, a.Nonce})
}

// Authority recovers the address that produced this authorization's
// signature. It does not memoise; callers that recover the same
// authorization repeatedly should cache the result themselves.
func (a *SetCodeAuthorization) Authority() (common.Address, error) {
	sig := make([]byte, 65)
	copyBigIntBytes(sig[0:32], a.R)
	copyBigIntBytes(sig[32:64], a.S)
	sig[64] = a.V
	pub, err := crypto.SigToPub(a.sigHash().Bytes(), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func copyBigIntBytes(dst []byte, v *big.Int) {
	if v == nil {
		return
	}
	b := v.Bytes()
	copy(dst[len(dst)-len(b):], b)
}

// SignSetCode signs an authorization tuple with priv and returns a complete
// SetCodeAuthorization.
func SignSetCode(priv *ecdsa.PrivateKey, chainID *big.Int, address common.Address, nonce uint64) (SetCodeAuthorization, error) {
	auth := SetCodeAuthorization{ChainID: chainID, Address: address, Nonce: nonce}
	sig, err := crypto.Sign(auth.sigHash().Bytes(), priv)
	if err != nil {
		return SetCodeAuthorization{}, err
	}
	auth.R = new(big.Int).SetBytes(sig[0:32])
	auth.S = new(big.Int).SetBytes(sig[32:64])
	auth.V = sig[64]
	return auth, nil
}

// SetCodeTx implements the EIP-7702 transaction (type byte 0x04): dynamic
// fee fields plus a list of authorizations. Like BlobTx, "to" is mandatory.
type SetCodeTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         common.Address
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	AuthList   []SetCodeAuthorization
	V, R, S    *big.Int
}

func (tx *SetCodeTx) txType() Type { return SetCodeTxType }

func (tx *SetCodeTx) copy() TxData {
	cpy := &SetCodeTx{
		ChainID:    copyBigInt(tx.ChainID),
		Nonce:      tx.Nonce,
		GasTipCap:  copyBigInt(tx.GasTipCap),
		GasFeeCap:  copyBigInt(tx.GasFeeCap),
		Gas:        tx.Gas,
		To:         tx.To,
		Value:      copyBigInt(tx.Value),
		Data:       append([]byte(nil), tx.Data...),
		AccessList: copyAccessList(tx.AccessList),
		AuthList:   append([]SetCodeAuthorization(nil), tx.AuthList...),
		V:          copyBigInt(tx.V),
		R:          copyBigInt(tx.R),
		S:          copyBigInt(tx.S),
	}
	for _, f := range []**big.Int{&cpy.ChainID, &cpy.GasTipCap, &cpy.GasFeeCap, &cpy.Value, &cpy.V, &cpy.R, &cpy.S} {
		if *f == nil {
			*f = new(big.Int)
		}
	}
	return cpy
}

func (tx *SetCodeTx) chainID() *big.Int      { return tx.ChainID }
func (tx *SetCodeTx) accessList() AccessList { return tx.AccessList }
func (tx *SetCodeTx) data() []byte           { return tx.Data }
func (tx *SetCodeTx) gas() uint64            { return tx.Gas }
func (tx *SetCodeTx) gasPrice() *big.Int     { return tx.GasFeeCap }
func (tx *SetCodeTx) gasTipCap() *big.Int    { return tx.GasTipCap }
func (tx *SetCodeTx) gasFeeCap() *big.Int    { return tx.GasFeeCap }
func (tx *SetCodeTx) value() *big.Int        { return tx.Value }
func (tx *SetCodeTx) nonce() uint64          { return tx.Nonce }
func (tx *SetCodeTx) to() *common.Address    { return &tx.To }

func (tx *SetCodeTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }

func (tx *SetCodeTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.ChainID, tx.V, tx.R, tx.S = chainID, v, r, s
}

func (tx *SetCodeTx) encode(w *bytesBuffer) error {
	if len(tx.AuthList) == 0 {
		return ErrEmptyAuthorizations
	}
	return rlp.Encode(w, tx)
}

func (tx *SetCodeTx) decode(data []byte) error {
	if err := rlp.DecodeBytes(data, tx); err != nil {
		return err
	}
	if len(tx.AuthList) == 0 {
		return ErrEmptyAuthorizations
	}
	return nil
}
