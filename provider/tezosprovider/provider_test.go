// Copyright (c) 2024 djtezos contributors

package tezosprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/provider"
)

func TestTezosRegistersUnderKnownClass(t *testing.T) {
	assert.True(t, provider.Registered("tezos"))
}

func TestPrivateKeyForRejectsMissingArgsResolved(t *testing.T) {
	tz := &Tezos{}
	tx := &model.Transaction{}
	_, err := tz.privateKeyFor(tx)
	assert.Error(t, err)
}

func TestPrivateKeyForRejectsArgsResolvedWithoutKey(t *testing.T) {
	tz := &Tezos{}
	tx := &model.Transaction{ArgsResolved: []byte(`{"destination":"tz1abc"}`)}
	_, err := tz.privateKeyFor(tx)
	assert.Error(t, err)
}

func TestPrivateKeyForExtractsKeyFromArgsResolved(t *testing.T) {
	tz := &Tezos{}
	tx := &model.Transaction{ArgsResolved: []byte(`{"private_key":"edsk-example","destination":"tz1abc"}`)}
	pk, err := tz.privateKeyFor(tx)
	require.NoError(t, err)
	assert.Equal(t, "edsk-example", string(pk))
}

func TestDeployRejectsInvalidVariant(t *testing.T) {
	tz := &Tezos{}

	// An invalid variant (no amount, no function, no contract code) is
	// rejected before any network call is attempted.
	err := tz.Deploy(nil, &model.Transaction{})
	assert.Error(t, err)
}
