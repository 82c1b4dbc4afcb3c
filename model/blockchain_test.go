// Copyright (c) 2024 djtezos contributors

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockchainValidateRequiresName(t *testing.T) {
	b := &Blockchain{ProviderClass: "fake"}
	err := b.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestBlockchainValidateRequiresProviderClass(t *testing.T) {
	b := &Blockchain{Name: "mainnet"}
	err := b.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider_class is required")
}

func TestBlockchainValidateRejectsNegativeConfirmations(t *testing.T) {
	b := &Blockchain{Name: "mainnet", ProviderClass: "fake", ConfirmationBlocks: -1}
	err := b.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirmation_blocks")
}

func TestBlockchainValidateOK(t *testing.T) {
	b := &Blockchain{Name: "mainnet", ProviderClass: "fake", ConfirmationBlocks: 2}
	assert.NoError(t, b.Validate())
}
