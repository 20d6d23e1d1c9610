// Copyright 2021 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package ethconfig contains the configuration of the eth wire protocol
// engine: which versions to speak, how many peers to carry, and how long
// to wait on handshakes and requests before giving up.
package ethconfig

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vanta-network/ethwire/p2p"
)

// Defaults contains default settings for a mainnet-facing node.
var Defaults = Config{
	NetworkID:         1,
	ProtocolVersions:  []uint{68, 67, 66},
	MaxPeers:          50,
	CloseAbove:        50,
	ListenBelow:       40,
	DialRatePerSecond: 10,
	DialBurst:         10,
	RequestTimeout:    8 * time.Second,
	StatusTimeout:     10 * time.Second,
	PingInterval:      15 * time.Second,
	PongTimeout:       20 * time.Second,
	HandshakeTimeout:  5 * time.Second,
	HelloTimeout:      5 * time.Second,
}

//go:generate go run github.com/fjl/gencodec -type Config -formats toml -out gen_config.go

// Config contains configuration options for the eth wire protocol engine.
type Config struct {
	// NetworkID to advertise in STATUS; peers on a different network are
	// rejected during handshake validation.
	NetworkID uint64

	// ProtocolVersions lists eth sub-protocol versions, highest preferred
	// first. It is not read when protocols are built: eth.MakeProtocols
	// always offers eth/66, eth/67 and eth/68.
	ProtocolVersions []uint

	// RequiredBlocks is a set of block number -> hash mappings. It is not
	// consulted by the STATUS handshake: remote peers are not checked for
	// these blocks.
	RequiredBlocks map[uint64]common.Hash `toml:"-"`

	// ListenAddr is the TCP address the RLPx listener binds to.
	ListenAddr string

	// BootstrapNodes seeds the dialer when the peer pool is empty.
	BootstrapNodes []string `toml:",omitempty"`

	// MaxPeers caps concurrent connections; CloseAbove/ListenBelow set the
	// accept-loop admission watermark (spec: stop accepting inbound once
	// the pool is at CloseAbove, resume once it drains below ListenBelow).
	MaxPeers    int
	CloseAbove  int
	ListenBelow int

	// DialRatePerSecond/DialBurst bound outbound dial attempts.
	DialRatePerSecond float64
	DialBurst         int

	// RequestTimeout and StatusTimeout are not passed to eth sessions:
	// P2PConfig and PoolConfig do not carry them, and every Session uses
	// its fixed defaults of 8s per request and 10s for the STATUS
	// handshake.
	RequestTimeout time.Duration
	StatusTimeout  time.Duration

	PingInterval     time.Duration
	PongTimeout      time.Duration
	HandshakeTimeout time.Duration
	HelloTimeout     time.Duration

	// BlockedClientIDSubstrings rejects inbound peers whose Hello
	// ClientId contains any of these substrings, case-insensitively.
	BlockedClientIDSubstrings []string `toml:",omitempty"`
}

// P2PConfig derives the p2p.Config this node's RLPx connections use from
// the subset of fields shared between the two layers.
func (c Config) P2PConfig(clientID string, listenPort uint) p2p.Config {
	cfg := p2p.Config{
		ClientID:         clientID,
		ListenPort:       listenPort,
		PingInterval:     c.PingInterval,
		PongTimeout:      c.PongTimeout,
		HelloTimeout:     c.HelloTimeout,
		HandshakeTimeout: c.HandshakeTimeout,
	}
	return cfg
}

// PoolConfig derives the p2p.PoolConfig for this node's peer pool.
func (c Config) PoolConfig() p2p.PoolConfig {
	return p2p.PoolConfig{
		MaxPeers:                  c.MaxPeers,
		CloseAbove:                c.CloseAbove,
		ListenBelow:               c.ListenBelow,
		BlockedClientIDSubstrings: c.BlockedClientIDSubstrings,
	}
}
