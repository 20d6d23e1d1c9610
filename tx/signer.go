package tx

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params/forks"
)

var (
	ErrInvalidChainId     = errors.New("tx: invalid chain id for signer")
	ErrUnsupportedVariant = errors.New("tx: transaction variant not accepted by this signer")
	ErrInvalidSig         = errors.New("tx: invalid transaction v, r, s values")
	secp256k1HalfN        = new(big.Int).Rsh(secp256k1N, 1)
)

var secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)

// Signer is a capability set — {accepted variants, v-encoding rule,
// chain id} — selected by hardfork, per spec §4.2. The registry is a table
// lookup keyed by forks.Fork, not a class hierarchy: a more-permissive
// signer (higher fork) accepts every variant its predecessor accepted.
type Signer struct {
	chainID, chainIDMul *big.Int
	fork                forks.Fork
}

// MakeSigner returns the Signer matching fork on chainID. Pass a nil
// chainID only for Frontier/Homestead signers, which carry none.
func MakeSigner(chainID *big.Int, fork forks.Fork) *Signer {
	s := &Signer{fork: fork}
	if chainID != nil {
		s.chainID = new(big.Int).Set(chainID)
		s.chainIDMul = new(big.Int).Mul(chainID, big.NewInt(2))
	}
	return s
}

// LatestSignerForChainID returns the most permissive signer (Prague) for
// chainID; used by code that signs new transactions without needing to
// pick an explicit fork.
func LatestSignerForChainID(chainID *big.Int) *Signer {
	return MakeSigner(chainID, forks.Prague)
}

func (s *Signer) ChainID() *big.Int {
	if s.chainID == nil {
		return nil
	}
	return new(big.Int).Set(s.chainID)
}

// acceptedAt returns the earliest fork at which a variant is accepted.
func acceptedAt(t Type) forks.Fork {
	switch t {
	case LegacyTxType:
		return forks.Frontier
	case AccessListTxType:
		return forks.Berlin
	case DynamicFeeTxType:
		return forks.London
	case BlobTxType:
		return forks.Cancun
	case SetCodeTxType:
		return forks.Prague
	default:
		return forks.Prague + 1 // never accepted
	}
}

func (s *Signer) accepts(t Type) bool {
	return s.fork >= acceptedAt(t)
}

// Hash returns the signing hash for tx under this signer: for legacy
// transactions it is keccak256(rlp(nonce, gasPrice, gas, to, value, data[,
// chainId, 0, 0])) depending on whether EIP-155 applies at this signer's
// fork; for typed transactions it is keccak256(typeByte ||
// rlp(unsigned-fields)).
func (s *Signer) Hash(tx *Transaction) (common.Hash, error) {
	if !s.accepts(tx.Type()) {
		return common.Hash{}, ErrUnsupportedVariant
	}
	switch inner := tx.inner.(type) {
	case *LegacyTx:
		if s.fork >= forks.SpuriousDragon && s.chainID != nil && s.chainID.Sign() != 0 {
			return rlpHash([]interface{}{
				inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data,
				s.chainID, uint(0), uint(0),
			}), nil
		}
		return rlpHash([]interface{}{inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data}), nil
	case *AccessListTx:
		return prefixedRlpHash(byte(AccessListTxType), []interface{}{
			s.chainIDOrZero(), inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data, inner.AccessList,
		}), nil
	case *DynamicFeeTx:
		return prefixedRlpHash(byte(DynamicFeeTxType), []interface{}{
			s.chainIDOrZero(), inner.Nonce, inner.GasTipCap, inner.GasFeeCap, inner.Gas, inner.To, inner.Value, inner.Data, inner.AccessList,
		}), nil
	case *BlobTx:
		return prefixedRlpHash(byte(BlobTxType), []interface{}{
			s.chainIDOrZero(), inner.Nonce, inner.GasTipCap, inner.GasFeeCap, inner.Gas, inner.To, inner.Value, inner.Data,
			inner.AccessList, inner.BlobFeeCap, inner.BlobHashes,
		}), nil
	case *SetCodeTx:
		return prefixedRlpHash(byte(SetCodeTxType), []interface{}{
			s.chainIDOrZero(), inner.Nonce, inner.GasTipCap, inner.GasFeeCap, inner.Gas, inner.To, inner.Value, inner.Data,
			inner.AccessList, inner.AuthList,
		}), nil
	default:
		return common.Hash{}, ErrUnsupportedVariant
	}
}

func (s *Signer) chainIDOrZero() *big.Int {
	if s.chainID == nil {
		return new(big.Int)
	}
	return s.chainID
}

// Sender recovers the address that signed tx, memoising the result on the
// transaction's per-signer cache.
func (s *Signer) Sender(tx *Transaction) (common.Address, error) {
	if cached := tx.loadSenderCache(s); cached != nil {
		return *cached, nil
	}
	v, r, s2, err := s.decodeSignature(tx)
	if err != nil {
		return common.Address{}, err
	}
	h, err := s.Hash(tx)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := recoverPlain(h, r, s2, v, s.fork >= forks.Homestead)
	if err != nil {
		return common.Address{}, err
	}
	tx.storeSenderCache(s, addr)
	return addr, nil
}

// decodeSignature yields (v, r, s) in the canonical {0,1} recovery-id form
// regardless of the variant's on-wire v-encoding, per spec §4.2.
func (s *Signer) decodeSignature(tx *Transaction) (v, r, sVal *big.Int, err error) {
	rawV, r, sVal := tx.RawSignatureValues()
	if r == nil || sVal == nil {
		return nil, nil, nil, ErrInvalidSig
	}
	switch tx.Type() {
	case LegacyTxType:
		if rawV.BitLen() <= 8 && (rawV.Uint64() == 27 || rawV.Uint64() == 28) {
			return new(big.Int).Sub(rawV, big.NewInt(27)), r, sVal, nil
		}
		chainID := deriveChainId(rawV)
		if s.chainID != nil && s.chainID.Sign() != 0 && chainID.Cmp(s.chainID) != 0 {
			return nil, nil, nil, ErrInvalidChainId
		}
		v = new(big.Int).Sub(rawV, new(big.Int).Add(big.NewInt(35), new(big.Int).Mul(chainID, big.NewInt(2))))
		return v, r, sVal, nil
	default:
		// Berlin+ typed transactions: v is already the bare recovery id.
		return rawV, r, sVal, nil
	}
}

// SignTx hashes tx under s, signs with priv, and returns a new Transaction
// carrying the signature — the source tx is never mutated.
func (s *Signer) SignTx(txIn *Transaction, priv *ecdsa.PrivateKey) (*Transaction, error) {
	if !s.accepts(txIn.Type()) {
		return nil, ErrUnsupportedVariant
	}
	h, err := s.Hash(txIn)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(h[:], priv)
	if err != nil {
		return nil, err
	}
	return s.withSignature(txIn, sig)
}

// withSignature attaches sig (65 bytes, [R||S||V] with V in {0,1}) to a copy
// of tx, applying the variant's v-encoding rule.
func (s *Signer) withSignature(txIn *Transaction, sig []byte) (*Transaction, error) {
	if len(sig) != 65 {
		return nil, ErrInvalidSig
	}
	r := new(big.Int).SetBytes(sig[:32])
	sVal := new(big.Int).SetBytes(sig[32:64])
	if s.fork >= forks.Homestead && sVal.Cmp(secp256k1HalfN) > 0 {
		return nil, ErrInvalidSig
	}
	recID := uint64(sig[64])

	cpy := &Transaction{inner: txIn.inner.copy(), time: txIn.time}
	switch inner := cpy.inner.(type) {
	case *LegacyTx:
		var v *big.Int
		if s.fork >= forks.SpuriousDragon && s.chainID != nil && s.chainID.Sign() != 0 {
			v = new(big.Int).Add(new(big.Int).Add(big.NewInt(int64(recID)), big.NewInt(35)), s.chainIDMul)
		} else {
			v = big.NewInt(int64(recID) + 27)
		}
		inner.setSignatureValues(nil, v, r, sVal)
	default:
		inner.setSignatureValues(s.chainIDOrZero(), big.NewInt(int64(recID)), r, sVal)
	}
	return cpy, nil
}

// deriveChainId extracts the chain id encoded into a legacy v value under
// EIP-155 (v = chainId*2 + 35 or 36); returns 0 for unprotected v (27, 28).
func deriveChainId(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	if v.BitLen() <= 64 {
		vU := v.Uint64()
		if vU < 35 {
			return new(big.Int)
		}
		return new(big.Int).SetUint64((vU - 35) / 2)
	}
	vCopy := new(big.Int).Sub(v, big.NewInt(35))
	return vCopy.Rsh(vCopy, 1)
}

// recoverPlain recovers the address from signature (v, r, s) over sighash.
// homesteadStrict applies the Homestead+ rule rejecting s > order/2.
func recoverPlain(sighash common.Hash, r, s, v *big.Int, homesteadStrict bool) (common.Address, error) {
	if homesteadStrict && s.Cmp(secp256k1HalfN) > 0 {
		return common.Address{}, ErrInvalidSig
	}
	if v.Sign() < 0 || v.Cmp(big.NewInt(1)) > 0 {
		return common.Address{}, ErrInvalidSig
	}
	sig := make([]byte, 65)
	rb, sb := r.Bytes(), s.Bytes()
	copy(sig[32-len(rb):32], rb)
	copy(sig[64-len(sb):64], sb)
	sig[64] = byte(v.Uint64())
	pub, err := crypto.SigToPub(sighash[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// --- sender cache ---
//
// The cache is a mutable field of the Transaction (an atomic pointer), not a
// separate side table: a lazily-initialised list of recovered senders keyed
// by signer identity (fork and chain id), guarded by its own mutex — never
// touched by encode/decode/hash. It stores senders only.

type senderCacheEntry struct {
	chainID *big.Int
	fork    forks.Fork
	addr    common.Address
}

type senderCache struct {
	mu      sync.Mutex
	entries []senderCacheEntry
}

func (tx *Transaction) senderCacheSlot() *senderCache {
	if c := tx.senders.Load(); c != nil {
		return c
	}
	tx.senders.CompareAndSwap(nil, &senderCache{})
	return tx.senders.Load()
}

func (tx *Transaction) loadSenderCache(s *Signer) *common.Address {
	c := tx.senderCacheSlot()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.fork == s.fork && bigIntEqual(e.chainID, s.chainID) {
			addr := e.addr
			return &addr
		}
	}
	return nil
}

func (tx *Transaction) storeSenderCache(s *Signer, addr common.Address) {
	c := tx.senderCacheSlot()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, senderCacheEntry{chainID: s.chainID, fork: s.fork, addr: addr})
}

func bigIntEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}
