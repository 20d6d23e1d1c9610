// Package eth implements the ETH sub-protocol engine multiplexed over a
// p2p.Connection: the STATUS handshake, the reqId-keyed request
// correlator and deduplication map, and the handler registry dispatching
// each incoming message code (spec §4.6).
package eth

import "github.com/vanta-network/ethwire/p2p"

// ProtocolName is the capability name advertised in Hello.
const ProtocolName = "eth"

// Sub-protocol-local message codes, spec §4.6. Codes 0x0b/0x0c are unused
// in every supported version (reserved by upstream eth/66+ history).
const (
	StatusMsg                     = 0x00
	NewBlockHashesMsg              = 0x01
	TransactionsMsg                 = 0x02
	GetBlockHeadersMsg              = 0x03
	BlockHeadersMsg                 = 0x04
	GetBlockBodiesMsg               = 0x05
	BlockBodiesMsg                  = 0x06
	NewBlockMsg                     = 0x07
	NewPooledTransactionHashesMsg   = 0x08
	GetPooledTransactionsMsg        = 0x09
	PooledTransactionsMsg           = 0x0a
	GetNodeDataMsg                  = 0x0d
	NodeDataMsg                     = 0x0e
	GetReceiptsMsg                  = 0x0f
	ReceiptsMsg                     = 0x10

	protocolMessageCount = 0x11
)

// Supported protocol versions, spec §6: "SHOULD support at least 66, 67, 68".
const (
	ETH66 = 66
	ETH67 = 67
	ETH68 = 68
)

var supportedVersions = []uint{ETH66, ETH67, ETH68}

// MakeProtocol returns the p2p.Protocol descriptor for the given eth
// version, wiring Run to a fresh Session per connection.
func MakeProtocol(version uint, backend Backend) p2p.Protocol {
	return p2p.Protocol{
		Name:    ProtocolName,
		Version: version,
		Length:  protocolMessageCount,
		Run: func(peer *p2p.Peer, rw p2p.MsgReadWriter) error {
			sess := newSession(peer, rw, version, backend)
			return sess.run()
		},
	}
}

// MakeProtocols returns one p2p.Protocol per supported eth version so a
// node can negotiate down to whatever its counterpart understands.
func MakeProtocols(backend Backend) []p2p.Protocol {
	protos := make([]p2p.Protocol, 0, len(supportedVersions))
	for _, v := range supportedVersions {
		protos = append(protos, MakeProtocol(v, backend))
	}
	return protos
}

// nodeDataSupported reports whether GetNodeData/NodeData (0x0d/0x0e) are
// part of the wire protocol at this version: spec §4.6 marks them
// "v63-66" only — eth/67 dropped state-sync-over-eth entirely.
func nodeDataSupported(version uint) bool {
	return version <= ETH66
}
