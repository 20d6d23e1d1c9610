package p2p

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegotiateCapabilitiesOrdersByNameDescending(t *testing.T) {
	local := []Protocol{
		{Name: "eth", Version: 68, Length: 17},
		{Name: "snap", Version: 1, Length: 8},
	}
	remote := []Cap{
		{Name: "eth", Version: 68},
		{Name: "snap", Version: 1},
	}
	table := negotiateCapabilities(local, remote)
	require.Len(t, table, 2)
	// "snap" > "eth" lexicographically, so it is offset first.
	require.Equal(t, "snap", table[0].Name)
	require.Equal(t, uint64(baseProtocolLength), table[0].Offset)
	require.Equal(t, "eth", table[1].Name)
	require.Equal(t, uint64(baseProtocolLength+8), table[1].Offset)
}

func TestNegotiateCapabilitiesDropsUnsharedVersions(t *testing.T) {
	local := []Protocol{{Name: "eth", Version: 68, Length: 17}}
	remote := []Cap{{Name: "eth", Version: 66}}
	table := negotiateCapabilities(local, remote)
	require.Empty(t, table)
}

func TestNegotiateCapabilitiesCollapsesMultiVersionCapabilityToOneEntry(t *testing.T) {
	local := []Protocol{
		{Name: "eth", Version: 66, Length: 17},
		{Name: "eth", Version: 67, Length: 17},
		{Name: "eth", Version: 68, Length: 17},
	}
	remote := []Cap{
		{Name: "eth", Version: 66},
		{Name: "eth", Version: 67},
		{Name: "eth", Version: 68},
	}
	table := negotiateCapabilities(local, remote)
	require.Len(t, table, 1, "a capability shared at several versions must get exactly one offset slot")
	require.Equal(t, "eth", table[0].Name)
	require.EqualValues(t, 68, table[0].Version, "the highest mutually supported version wins")
	require.Equal(t, uint64(baseProtocolLength), table[0].Offset)
}
