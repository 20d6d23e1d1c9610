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

package main

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/metrics"

	"github.com/vanta-network/ethwire/eth/ethconfig"
)

var (
	dumpConfigCommand = &cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Export configuration values in a TOML format",
		ArgsUsage:   "<dumpfile (optional)>",
		Description: `Export configuration values in TOML format (to stdout by default).`,
	}

	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
)

// nodeConfig is the top-level config structure a TOML file loads into,
// mirroring the teacher's gethConfig{Eth,Node,...} grouping but trimmed to
// this node's two ambient concerns: the wire engine and metrics reporting.
type nodeConfig struct {
	Eth     ethconfig.Config
	Metrics metrics.Config
}

func loadConfig(file string, cfg *nodeConfig) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	_, err = toml.Decode(string(data), cfg)
	return err
}

// loadBaseConfig loads defaults, applies an optional TOML file, then a
// named network preset, then explicit flags, in that order of increasing
// precedence.
func loadBaseConfig(ctx *cli.Context) nodeConfig {
	cfg := nodeConfig{
		Eth:     ethconfig.Defaults,
		Metrics: metrics.DefaultConfig,
	}

	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			fatalf("%v", err)
		}
	}

	if preset := ctx.String(networkFlag.Name); preset != "" {
		if err := applyNetworkPreset(preset, &cfg); err != nil {
			fatalf("%v", err)
		}
	}

	applyFlags(ctx, &cfg)
	return cfg
}

// applyNetworkPreset sets the network id and bootstrap nodes for one of
// the named presets, replacing the teacher's per-network
// setDefaultMumbaiGethConfig/setDefaultBorMainnetGethConfig pair with a
// single table-driven lookup.
func applyNetworkPreset(name string, cfg *nodeConfig) error {
	preset, ok := networkPresets[name]
	if !ok {
		return cli.Exit("unknown --network preset: "+name, 1)
	}
	cfg.Eth.NetworkID = preset.networkID
	cfg.Eth.BootstrapNodes = preset.bootstrapNodes
	return nil
}

var networkPresets = map[string]struct {
	networkID      uint64
	bootstrapNodes []string
}{
	"mainnet": {networkID: 1},
	"sepolia": {networkID: 11155111},
}

func applyFlags(ctx *cli.Context, cfg *nodeConfig) {
	if ctx.IsSet(networkIDFlag.Name) {
		cfg.Eth.NetworkID = ctx.Uint64(networkIDFlag.Name)
	}
	if ctx.IsSet(listenAddrFlag.Name) {
		cfg.Eth.ListenAddr = ctx.String(listenAddrFlag.Name)
	}
	if ctx.IsSet(maxPeersFlag.Name) {
		n := ctx.Int(maxPeersFlag.Name)
		cfg.Eth.MaxPeers = n
		cfg.Eth.CloseAbove = n
	}
	if ctx.IsSet(bootnodesFlag.Name) {
		cfg.Eth.BootstrapNodes = ctx.StringSlice(bootnodesFlag.Name)
	}
	if ctx.IsSet(metricsEnabledFlag.Name) {
		cfg.Metrics.Enabled = ctx.Bool(metricsEnabledFlag.Name)
	}
	if ctx.IsSet(metricsHTTPFlag.Name) {
		cfg.Metrics.HTTP = ctx.String(metricsHTTPFlag.Name)
	}
	if ctx.IsSet(metricsPortFlag.Name) {
		cfg.Metrics.Port = ctx.Int(metricsPortFlag.Name)
	}
}

func dumpConfig(ctx *cli.Context) error {
	cfg := loadBaseConfig(ctx)
	return toml.NewEncoder(os.Stdout).Encode(&cfg)
}
