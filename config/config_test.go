// Copyright (c) 2024 djtezos contributors

package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPopulatesSpecDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, int64(500), c.DefaultMaxDepth)
	assert.Equal(t, int64(20), c.DefaultChunk)
	assert.Equal(t, 10, c.WriterAbortThreshold)
}

func TestFlagSetOverridesDefaults(t *testing.T) {
	c := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.FlagSet(fs)

	require.NoError(t, fs.Parse([]string{
		"-max-depth=100",
		"-chunk=5",
		"-abort-threshold=3",
		"-tezos-contracts=/tmp/tezos",
		"-ethereum-contracts=/tmp/eth",
	}))

	assert.Equal(t, int64(100), c.DefaultMaxDepth)
	assert.Equal(t, int64(5), c.DefaultChunk)
	assert.Equal(t, 3, c.WriterAbortThreshold)
	assert.Equal(t, "/tmp/tezos", c.TezosContracts)
	assert.Equal(t, "/tmp/eth", c.EthereumContracts)
}

func TestLoadSecretFromEnv(t *testing.T) {
	t.Setenv("SECRET", "super-secret-value")
	t.Setenv("FAKE_SLEEP", "0.5")

	c := Default()
	c.LoadSecretFromEnv()

	assert.Equal(t, []byte("super-secret-value"), c.Secret)
	assert.Equal(t, 500*time.Millisecond, c.FakeSleep)
}

func TestLoadSecretFromEnvLeavesZeroValuesWhenUnset(t *testing.T) {
	t.Setenv("SECRET", "")
	t.Setenv("FAKE_SLEEP", "")

	c := Default()
	c.LoadSecretFromEnv()

	assert.Nil(t, c.Secret)
	assert.Zero(t, c.FakeSleep)
}

func TestLoadSecretFromEnvIgnoresInvalidFakeSleep(t *testing.T) {
	t.Setenv("FAKE_SLEEP", "not-a-number")
	t.Setenv("SECRET", "")

	c := Default()
	c.LoadSecretFromEnv()
	assert.Zero(t, c.FakeSleep)
}
