package tx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntrinsicGasFrontierEmpty(t *testing.T) {
	gas, err := IntrinsicGas(nil, IntrinsicGasParams{})
	require.NoError(t, err)
	require.Equal(t, TxGas, gas)
}

func TestIntrinsicGasHomesteadCreation(t *testing.T) {
	gas, err := IntrinsicGas(nil, IntrinsicGasParams{IsContractCreation: true, IsHomestead: true})
	require.NoError(t, err)
	require.Equal(t, TxGas+32000, gas)
}

func TestIntrinsicGasMonotonicInDataLength(t *testing.T) {
	small, err := IntrinsicGas([]byte{0x01, 0x02}, IntrinsicGasParams{IsIstanbul: true})
	require.NoError(t, err)
	larger, err := IntrinsicGas([]byte{0x01, 0x02, 0x03, 0x04}, IntrinsicGasParams{IsIstanbul: true})
	require.NoError(t, err)
	require.Greater(t, larger, small)
}

func TestIntrinsicGasMonotonicInNonZeroBytes(t *testing.T) {
	withZeros, err := IntrinsicGas([]byte{0x00, 0x00}, IntrinsicGasParams{IsIstanbul: true})
	require.NoError(t, err)
	withNonZeros, err := IntrinsicGas([]byte{0x01, 0x01}, IntrinsicGasParams{IsIstanbul: true})
	require.NoError(t, err)
	require.Greater(t, withNonZeros, withZeros)
}

func TestIntrinsicGasEIP7623Floor(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i + 1) // all non-zero
	}
	withoutFloor, err := IntrinsicGas(data, IntrinsicGasParams{IsIstanbul: true})
	require.NoError(t, err)
	withFloor, err := IntrinsicGas(data, IntrinsicGasParams{IsIstanbul: true, IsPrague: true})
	require.NoError(t, err)
	require.GreaterOrEqual(t, withFloor, withoutFloor)
}

func TestIntrinsicGasEIP7623FloorIgnoresContractCreationPremium(t *testing.T) {
	data := make([]byte, 1400)
	for i := range data {
		data[i] = byte(i%255 + 1) // all non-zero
	}
	gas, err := IntrinsicGas(data, IntrinsicGasParams{
		IsContractCreation: true,
		IsHomestead:        true,
		IsIstanbul:         true,
		IsPrague:           true,
	})
	require.NoError(t, err)
	// The floor is TxGas + floorPerToken*tokens regardless of creation; it
	// must not also carry the TxGasContractCreation premium.
	wantFloor := TxGas + TotalCostFloorPerTokenEIP7623*uint64(len(data))*TokenNonZeroCost
	require.Equal(t, wantFloor, gas)
}

func TestIntrinsicGasEIP3860InitCode(t *testing.T) {
	data := make([]byte, 64) // exactly 2 words
	gas, err := IntrinsicGas(data, IntrinsicGasParams{IsContractCreation: true, IsHomestead: true, IsShanghai: true, IsIstanbul: true})
	require.NoError(t, err)
	without, err := IntrinsicGas(data, IntrinsicGasParams{IsContractCreation: true, IsHomestead: true, IsIstanbul: true})
	require.NoError(t, err)
	require.Equal(t, without+2*InitCodeWordGasEIP3860, gas)
}
