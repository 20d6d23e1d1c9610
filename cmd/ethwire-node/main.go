// Copyright 2017 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// Command ethwire-node runs a standalone node that speaks the rlpx/eth
// wire protocol stack: it accepts and dials peers, performs the RLPx and
// Hello handshakes, and logs each admitted peer. It carries no chain store
// of its own — Backend's collaborator interfaces are left at their zero
// value and no EventSink is set. Without Chain and Forks collaborators an
// eth session cannot build its Status, so every eth session ends before
// the STATUS handshake; this is not a full client.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/urfave/cli/v2"

	"github.com/vanta-network/ethwire/eth"
	"github.com/vanta-network/ethwire/p2p"
)

const clientIdentifier = "ethwire-node"

var (
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "Named network preset (mainnet, sepolia)",
	}
	networkIDFlag = &cli.Uint64Flag{
		Name:  "networkid",
		Usage: "Explicit network id advertised in STATUS, overrides --network",
	}
	listenAddrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "RLPx listen address",
		Value: ":30303",
	}
	maxPeersFlag = &cli.IntFlag{
		Name:  "maxpeers",
		Usage: "Maximum number of admitted peers",
	}
	bootnodesFlag = &cli.StringSliceFlag{
		Name:  "bootnodes",
		Usage: "Comma separated host:port addresses to dial on startup",
	}
	keyFileFlag = &cli.StringFlag{
		Name:  "nodekey",
		Usage: "Path to a hex-encoded secp256k1 private key file; created if missing, ephemeral key generated if omitted",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Log verbosity (0=crit .. 5=trace)",
		Value: 3,
	}
	metricsEnabledFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "Enable metrics collection and reporting",
	}
	metricsHTTPFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Address for the metrics HTTP server",
	}
	metricsPortFlag = &cli.IntFlag{
		Name:  "metrics.port",
		Usage: "Port for the metrics HTTP server",
		Value: 6060,
	}
)

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	app := &cli.App{
		Name:  clientIdentifier,
		Usage: "rlpx/eth wire protocol node",
		Flags: []cli.Flag{
			configFileFlag, networkFlag, networkIDFlag, listenAddrFlag,
			maxPeersFlag, bootnodesFlag, keyFileFlag, verbosityFlag,
			metricsEnabledFlag, metricsHTTPFlag, metricsPortFlag,
		},
		Commands: []*cli.Command{dumpConfigCommand},
		Action:   run,
	}
	if err := app.Run(os.Args); err != nil {
		fatalf("%v", err)
	}
}

func run(ctx *cli.Context) error {
	setupLogging(ctx.Int(verbosityFlag.Name))
	cfg := loadBaseConfig(ctx)
	setupMetrics(cfg)

	nodeKey, err := loadOrGenerateKey(ctx.String(keyFileFlag.Name))
	if err != nil {
		return err
	}

	backend := eth.Backend{NetworkID: cfg.Eth.NetworkID}
	protocols := eth.MakeProtocols(backend)

	p2pCfg := cfg.Eth.P2PConfig(clientIdentifier, listenPort(cfg.Eth.ListenAddr))
	pool := p2p.NewPeerPool(localNodeID(nodeKey), cfg.Eth.PoolConfig())

	laddr := cfg.Eth.ListenAddr
	if laddr == "" {
		laddr = ":30303"
	}
	tcpListener, err := net.Listen("tcp", laddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", laddr, err)
	}
	defer tcpListener.Close()

	listener := p2p.NewListener(tcpListener, nodeKey, protocols, p2pCfg, pool)
	listener.OnPeer(func(peer *p2p.Peer, _ *p2p.Connection) {
		log.Info("peer admitted", "id", fmt.Sprintf("%x", peer.ID()[:8]), "addr", peer.RemoteAddr())
	})

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dialer := p2p.NewDialer(nodeKey, protocols, p2pCfg, cfg.Eth.DialRatePerSecond, cfg.Eth.DialBurst)
	for _, addr := range cfg.Eth.BootstrapNodes {
		go dialBootnode(runCtx, dialer, pool, addr)
	}

	log.Info("ethwire-node listening", "addr", laddr, "networkId", cfg.Eth.NetworkID)
	return listener.Serve(runCtx)
}

func dialBootnode(ctx context.Context, dialer *p2p.Dialer, pool *p2p.PeerPool, addr string) {
	conn, err := dialer.Dial(ctx, addr, nil)
	if err != nil {
		log.Debug("dial bootnode failed", "addr", addr, "err", err)
		return
	}
	peer := p2p.NewPeer(conn)
	if err := pool.Admit(peer); err != nil {
		log.Debug("dialed peer rejected", "addr", addr, "err", err)
	}
}

func listenPort(addr string) uint {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 30303
	}
	var port uint
	fmt.Sscanf(portStr, "%d", &port)
	return port
}

func localNodeID(key *ecdsa.PrivateKey) [32]byte {
	pub := crypto.FromECDSAPub(&key.PublicKey)[1:]
	return crypto.Keccak256Hash(pub)
}

func loadOrGenerateKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		log.Warn("generated ephemeral node key, pass --nodekey to persist identity across restarts")
		return key, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		if err := crypto.SaveECDSA(path, key); err != nil {
			return nil, err
		}
		return key, nil
	}
	return crypto.LoadECDSA(path)
}

func setupLogging(verbosity int) {
	glog := log.NewGlogHandler(log.NewTerminalHandler(os.Stderr, false))
	glog.Verbosity(log.FromLegacyLevel(verbosity))
	log.SetDefault(log.NewLogger(glog))
}

func setupMetrics(cfg nodeConfig) {
	gethmetrics.Enabled = cfg.Metrics.Enabled
	gethmetrics.EnabledExpensive = cfg.Metrics.EnabledExpensive
}
