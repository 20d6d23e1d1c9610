package tx

import (
	"bytes"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params/forks"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
)

// testKey returns a fixed private key for the signing tests and its
// address.
func testKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	priv, err := crypto.HexToECDSA("46a9a5b3d6e1f3b23e0e3c1e1f68e39f2b6f9f7b7a2a4e1c7a45c4ae9c0d6f46")
	require.NoError(t, err)
	return priv, crypto.PubkeyToAddress(priv.PublicKey)
}

func TestSignedLegacyRoundTrip(t *testing.T) {
	priv, addr := testKey(t)
	to := common.BytesToAddress(bytes.Repeat([]byte{0x35}, 20))
	signer := MakeSigner(big.NewInt(1), forks.Prague)

	txIn := NewLegacyTx(0, &to, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), 21000, big.NewInt(1000), nil)
	signed, err := signer.SignTx(txIn, priv)
	require.NoError(t, err)

	enc, err := signed.MarshalBinary()
	require.NoError(t, err)

	var decoded Transaction
	require.NoError(t, decoded.UnmarshalBinary(enc))

	require.Equal(t, signed.Nonce(), decoded.Nonce())
	require.Equal(t, signed.GasPrice(), decoded.GasPrice())
	require.Equal(t, signed.Gas(), decoded.Gas())
	require.Equal(t, *signed.To(), *decoded.To())
	require.Equal(t, signed.Value(), decoded.Value())

	sender, err := signer.Sender(&decoded)
	require.NoError(t, err)
	require.Equal(t, addr, sender)
}

func TestTxRoundTripAllVariants(t *testing.T) {
	to := common.BytesToAddress(bytes.Repeat([]byte{0x11}, 20))
	cases := map[string]TxData{
		"legacy": &LegacyTx{Nonce: 1, GasPrice: big.NewInt(7), Gas: 21000, To: &to, Value: big.NewInt(1), Data: nil, V: big.NewInt(27), R: big.NewInt(1), S: big.NewInt(1)},
		"access-list": &AccessListTx{ChainID: big.NewInt(1), Nonce: 1, GasPrice: big.NewInt(7), Gas: 21000, To: &to, Value: big.NewInt(1), V: big.NewInt(0), R: big.NewInt(1), S: big.NewInt(1)},
		"dynamic-fee": &DynamicFeeTx{ChainID: big.NewInt(1), Nonce: 1, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(7), Gas: 21000, To: &to, Value: big.NewInt(1), V: big.NewInt(0), R: big.NewInt(1), S: big.NewInt(1)},
	}
	for name, inner := range cases {
		t.Run(name, func(t *testing.T) {
			txIn := NewTx(inner)
			enc, err := txIn.MarshalBinary()
			require.NoError(t, err)

			var decoded Transaction
			require.NoError(t, decoded.UnmarshalBinary(enc))
			require.Equal(t, txIn.Type(), decoded.Type())
			require.Equal(t, txIn.Nonce(), decoded.Nonce())
			require.Equal(t, txIn.Hash(), decoded.Hash())
		})
	}
}

func TestEffectiveGasPrice(t *testing.T) {
	inner := &DynamicFeeTx{
		ChainID: big.NewInt(1), Nonce: 0,
		GasTipCap: big.NewInt(1_000_000_000), // 1 gwei
		GasFeeCap: big.NewInt(3_000_000_000), // 3 gwei
		Gas:       21000, To: nil, Value: big.NewInt(0),
		V: big.NewInt(0), R: big.NewInt(1), S: big.NewInt(1),
	}
	txn := NewTx(inner)

	got := txn.EffectiveGasPrice(big.NewInt(1_500_000_000))
	require.Equal(t, big.NewInt(2_500_000_000), got)

	capped := txn.EffectiveGasPrice(big.NewInt(5_000_000_000))
	require.Equal(t, big.NewInt(3_000_000_000), capped)
}

func TestBlobTxRejectsEmptyHashes(t *testing.T) {
	txn := &Transaction{}
	typed := (&BlobTx{}).copy().(*BlobTx)
	typed.To = common.Address{1}
	buf := new(bytesBuffer)
	require.NoError(t, typed.encode(buf))

	raw := append([]byte{byte(BlobTxType)}, buf.Bytes()...)
	err := txn.UnmarshalBinary(raw)
	require.ErrorIs(t, err, ErrEmptyBlobHashes)
}

// TestPooledTransactionsSidecarEnvelopeIsDecoded reproduces the
// [fields, sidecar] envelope a PooledTransactions response attaches to a
// blob transaction, and checks the sidecar ends up reachable from the
// decoded Transaction, not silently dropped.
func TestPooledTransactionsSidecarEnvelopeIsDecoded(t *testing.T) {
	typed := (&BlobTx{}).copy().(*BlobTx)
	typed.To = common.Address{1}
	typed.BlobHashes = []common.Hash{{BlobVersionHashVersion}}

	body := new(bytesBuffer)
	require.NoError(t, rlp.Encode(body, typed))

	sidecar := &BlobTxSidecar{
		Blobs:       [][]byte{{0x01}},
		Commitments: [][]byte{{0x02}},
		Proofs:      [][]byte{{0x03}},
	}
	sidecarBuf := new(bytesBuffer)
	require.NoError(t, sidecar.EncodeRLP(sidecarBuf))

	envelope := new(bytesBuffer)
	require.NoError(t, rlp.Encode(envelope, []rlp.RawValue{body.Bytes(), sidecarBuf.Bytes()}))

	raw := append([]byte{byte(BlobTxType)}, envelope.Bytes()...)
	var decoded Transaction
	require.NoError(t, decoded.UnmarshalBinary(raw))

	got := decoded.BlobTxSidecar()
	require.NotNil(t, got)
	require.Equal(t, sidecar.Blobs, got.Blobs)
	require.Equal(t, sidecar.Commitments, got.Commitments)
	require.Equal(t, sidecar.Proofs, got.Proofs)
}

// TestPooledTransactionsSidecarEnvelopeRejectsUnknownVersion checks that a
// version-1 sidecar tagged with any value other than 1 is rejected rather
// than silently accepted.
func TestPooledTransactionsSidecarEnvelopeRejectsUnknownVersion(t *testing.T) {
	raw := []rlp.RawValue{}
	for _, v := range []interface{}{byte(5), [][]byte{{0x01}}, [][]byte{{0x02}}, [][]byte{{0x03}}} {
		enc, err := rlp.EncodeToBytes(v)
		require.NoError(t, err)
		raw = append(raw, enc)
	}
	envelope := new(bytesBuffer)
	require.NoError(t, rlp.Encode(envelope, raw))

	_, err := DecodeSidecarRLP(envelope.Bytes())
	require.ErrorIs(t, err, ErrUnsupportedSidecarVersion)
}
