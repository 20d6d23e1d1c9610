package tx

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params/forks"
	"github.com/stretchr/testify/require"
)

func TestDeriveChainIdUnprotected(t *testing.T) {
	require.Equal(t, big.NewInt(0), deriveChainId(big.NewInt(27)))
	require.Equal(t, big.NewInt(0), deriveChainId(big.NewInt(28)))
}

func TestDeriveChainIdProtected(t *testing.T) {
	// v = chainId*2 + 35, chainId = 1 => v = 37
	require.Equal(t, big.NewInt(1), deriveChainId(big.NewInt(37)))
	// v = chainId*2 + 36, chainId = 1 => v = 38
	require.Equal(t, big.NewInt(1), deriveChainId(big.NewInt(38)))
}

func TestSignerRejectsUnsupportedVariant(t *testing.T) {
	frontier := MakeSigner(nil, forks.Frontier)
	dynFee := NewTx(&DynamicFeeTx{
		ChainID: big.NewInt(1), GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(1), Gas: 21000,
		Value: big.NewInt(0), V: big.NewInt(0), R: big.NewInt(1), S: big.NewInt(1),
	})
	_, err := frontier.Hash(dynFee)
	require.ErrorIs(t, err, ErrUnsupportedVariant)
}

func TestSignerAcceptsEarlierVariantsOnLaterFork(t *testing.T) {
	prague := MakeSigner(big.NewInt(1), forks.Prague)
	legacy := NewLegacyTx(0, nil, big.NewInt(0), 21000, big.NewInt(1), nil)
	_, err := prague.Hash(legacy)
	require.NoError(t, err)
}

func TestHomesteadRejectsHighS(t *testing.T) {
	highS := new(big.Int).Add(secp256k1HalfN, big.NewInt(1))
	_, err := recoverPlain(common.Hash{}, big.NewInt(1), highS, big.NewInt(0), true)
	require.ErrorIs(t, err, ErrInvalidSig)
}
