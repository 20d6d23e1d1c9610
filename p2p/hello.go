package p2p

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
)

// Hello is the first message exchanged after the ECIES handshake completes
// (spec §4.4): it advertises the node's identity and the sub-protocols it
// supports.
type Hello struct {
	ProtocolVersion uint
	ClientID        string
	Caps            []Cap
	ListenPort      uint
	NodeID          []byte // 64-byte secp256k1 public key, uncompressed, no 0x04 prefix

	Rest []rlp.RawValue `rlp:"tail"`
}

// offsetEntry is one row of the multiplexer's dispatch table built from
// capability negotiation: exactly one entry per capability name, naming
// the single mutually-supported version it was negotiated at.
type offsetEntry struct {
	Name    string
	Version uint
	Offset  uint64
	Length  uint64
}

// negotiateCapabilities intersects local and remote capability lists and
// assigns message-code offsets per spec §4.4: shared capabilities are
// ordered with the lexicographically-greater protocol name first, and
// offsets are assigned consecutively starting at baseProtocolLength, each
// capability occupying its registered sub-protocol's message-code length.
//
// A capability name offered at several versions (e.g. "eth" at 66/67/68)
// collapses to a single entry at the highest version both sides share,
// matching go-ethereum's matchProtocols: one offset slot per name, never
// one per version, so the multiplexer can't end up running the same
// sub-protocol multiple times over one connection.
func negotiateCapabilities(local []Protocol, remoteCaps []Cap) []offsetEntry {
	remoteSet := make(map[string]bool, len(remoteCaps))
	for _, c := range remoteCaps {
		remoteSet[capKey(c.Name, c.Version)] = true
	}

	best := make(map[string]Protocol)
	for _, p := range local {
		if !remoteSet[capKey(p.Name, p.Version)] {
			continue
		}
		if cur, ok := best[p.Name]; !ok || p.Version > cur.Version {
			best[p.Name] = p
		}
	}

	shared := make([]Protocol, 0, len(best))
	for _, p := range best {
		shared = append(shared, p)
	}
	sort.Slice(shared, func(i, j int) bool {
		return shared[i].Name > shared[j].Name
	})

	offset := uint64(baseProtocolLength)
	table := make([]offsetEntry, 0, len(shared))
	for _, p := range shared {
		table = append(table, offsetEntry{Name: p.Name, Version: p.Version, Offset: offset, Length: p.Length})
		offset += p.Length
	}
	return table
}

func capKey(name string, version uint) string {
	return fmt.Sprintf("%s/%d", name, version)
}
