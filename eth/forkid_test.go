package eth

import (
	"testing"

	"github.com/ethereum/go-ethereum/params/forks"
	"github.com/stretchr/testify/require"
)

var testGenesis = [32]byte{1, 2, 3}

func testForkHistory() []ChainFork {
	return []ChainFork{
		{Fork: forks.Fork(0), Block: 0},          // folded into genesis checksum
		{Fork: forks.Fork(1), Block: 1_150_000},
		{Fork: forks.Fork(2), Block: 4_370_000},
		{Fork: forks.Fork(3), Time: 1_681_338_455, ByTimestamp: true},
	}
}

func TestNewForkIDBeforeAnyFork(t *testing.T) {
	id := NewForkID(testGenesis, testForkHistory(), 0, 0)
	require.EqualValues(t, 1_150_000, id.Next)
}

func TestNewForkIDAfterAllForks(t *testing.T) {
	id := NewForkID(testGenesis, testForkHistory(), 10_000_000, 1_700_000_000)
	require.Zero(t, id.Next)
}

func TestNewForkIDMidwayActivatesNextCorrectly(t *testing.T) {
	id := NewForkID(testGenesis, testForkHistory(), 4_370_000, 0)
	require.EqualValues(t, 1_681_338_455, id.Next)
}

func TestValidateForkIDAcceptsIdenticalHistory(t *testing.T) {
	history := testForkHistory()
	local := NewForkID(testGenesis, history, 5_000_000, 0)
	remote := NewForkID(testGenesis, history, 5_000_000, 0)
	require.NoError(t, ValidateForkID(local, remote, testGenesis, history, 5_000_000, 0))
}

func TestValidateForkIDAcceptsRemoteBehindLocal(t *testing.T) {
	history := testForkHistory()
	local := NewForkID(testGenesis, history, 10_000_000, 1_700_000_000)
	remote := NewForkID(testGenesis, history, 0, 0)
	require.NoError(t, ValidateForkID(local, remote, testGenesis, history, 10_000_000, 1_700_000_000))
}

func TestValidateForkIDRejectsUnknownChecksum(t *testing.T) {
	history := testForkHistory()
	local := NewForkID(testGenesis, history, 5_000_000, 0)
	remote := ForkID{Hash: [4]byte{0xde, 0xad, 0xbe, 0xef}, Next: 0}
	err := ValidateForkID(local, remote, testGenesis, history, 5_000_000, 0)
	require.ErrorIs(t, err, errLocalIncompatible)
}

func TestValidateForkIDRejectsStaleNext(t *testing.T) {
	history := testForkHistory()
	local := NewForkID(testGenesis, history, 0, 0)
	// remote claims to match our genesis-only checksum, but announces a
	// next-fork activation earlier than the one we know comes next.
	remote := ForkID{Hash: local.Hash, Next: 1}
	err := ValidateForkID(local, remote, testGenesis, history, 0, 0)
	require.ErrorIs(t, err, errRemoteStale)
}
