// Copyright (c) 2024 djtezos contributors

// Package config holds the process-wide options enumerated in spec §6,
// loaded the way cmd/tzcompose/main.go loads its globals: flag.FlagSet
// fields with environment-variable fallbacks for secrets, not a CLI
// framework (the teacher never reaches for one in its own cmd/tzcompose,
// so djtezos doesn't either — see DESIGN.md).
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration threaded explicitly through the
// engine, never read from ambient environment inside a leaf package (spec
// §9 "Global mutable state").
type Config struct {
	// Providers lists the provider_class identifiers this process
	// registers on startup, in order.
	Providers []string

	// TezosContracts is the filesystem root for Tezos contract bytecode
	// JSON lookups by name.
	TezosContracts string

	// EthereumContracts is the filesystem root for Ethereum ABI/bytecode
	// JSON lookups by name.
	EthereumContracts string

	// FakeSleep is the per-operation delay the Fake Provider sleeps for.
	FakeSleep time.Duration

	// Secret is the master secret cryptutil derives the AES key/IV from.
	Secret []byte

	// DefaultMaxDepth bounds how many blocks the Chain Watcher and the
	// per-transaction Watch fallback scan before giving up (spec §4.5,
	// §4.6).
	DefaultMaxDepth int64

	// DefaultChunk is the block range width scanned per RPC call in the
	// Watch fallback (spec §4.6).
	DefaultChunk int64

	// WriterAbortThreshold is the number of consecutive deploying failures
	// the Writer tolerates before marking a Transaction aborted (spec
	// §4.2, §4.4).
	WriterAbortThreshold int
}

// Default returns a Config with every numeric default spec §6 names.
func Default() Config {
	return Config{
		DefaultMaxDepth:      500,
		DefaultChunk:         20,
		WriterAbortThreshold: 10,
	}
}

// FlagSet registers Config's fields onto fs, in the shape
// cmd/tzcompose/main.go registers its own run/clone flag sets: one
// FlagSet per subcommand, populated in an init()-style call site.
func (c *Config) FlagSet(fs *flag.FlagSet) {
	fs.StringVar(&c.TezosContracts, "tezos-contracts", c.TezosContracts, "filesystem root for Tezos contract bytecode JSON")
	fs.StringVar(&c.EthereumContracts, "ethereum-contracts", c.EthereumContracts, "filesystem root for Ethereum ABI/bytecode JSON")
	fs.Int64Var(&c.DefaultMaxDepth, "max-depth", c.DefaultMaxDepth, "maximum block depth scanned")
	fs.Int64Var(&c.DefaultChunk, "chunk", c.DefaultChunk, "block range width per RPC call")
	fs.IntVar(&c.WriterAbortThreshold, "abort-threshold", c.WriterAbortThreshold, "consecutive deploying failures before abort")
}

// LoadSecretFromEnv reads SECRET and FAKE_SLEEP from the environment the
// way the teacher's compose reads TZCOMPOSE_BASE_KEY/TZCOMPOSE_API_KEY:
// env vars for values that shouldn't be plain CLI flags.
func (c *Config) LoadSecretFromEnv() {
	if s := os.Getenv("SECRET"); s != "" {
		c.Secret = []byte(s)
	}
	if s := os.Getenv("FAKE_SLEEP"); s != "" {
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			c.FakeSleep = time.Duration(secs * float64(time.Second))
		}
	}
}
