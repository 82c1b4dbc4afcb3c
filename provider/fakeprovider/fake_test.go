// Copyright (c) 2024 djtezos contributors

package fakeprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	djerrors "github.com/yourlabs/djtezos/engine/errors"
	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/provider"
)

func amountTx() *model.Transaction {
	amt := int64(500)
	return &model.Transaction{Amount: &amt}
}

func TestFakeRegistersUnderKnownClasses(t *testing.T) {
	assert.True(t, provider.Registered("fake"))
	assert.True(t, provider.Registered("fail_deploy"))
	assert.True(t, provider.Registered("fail_watch"))
}

func TestFakeCreateWalletReturnsDistinctAddresses(t *testing.T) {
	f := New(0)
	addr1, key1, err := f.CreateWallet(context.Background(), "pw")
	require.NoError(t, err)
	addr2, _, err := f.CreateWallet(context.Background(), "pw")
	require.NoError(t, err)

	assert.NotEqual(t, addr1, addr2)
	assert.Contains(t, string(key1), "pw")
}

func TestFakeDeployTransferSetsTxHashAndGas(t *testing.T) {
	f := New(0)
	tx := amountTx()
	require.NoError(t, f.Deploy(context.Background(), tx))

	require.NotNil(t, tx.TxHash)
	require.NotNil(t, tx.Gas)
	assert.Equal(t, int64(1000), *tx.Gas)
}

func TestFakeDeployRejectsInvalidVariant(t *testing.T) {
	f := New(0)
	err := f.Deploy(context.Background(), &model.Transaction{})
	require.Error(t, err)
	assert.True(t, djerrors.IsValidation(err))
}

func TestFakeWatchConfirmsAfterEnoughBlocks(t *testing.T) {
	f := New(0)
	tx := amountTx()
	require.NoError(t, f.Deploy(context.Background(), tx))

	bc := &model.Blockchain{ConfirmationBlocks: 0}
	err := f.Watch(context.Background(), bc, tx)
	require.NoError(t, err)
}

func TestFakeWatchWaitsForConfirmations(t *testing.T) {
	f := New(0)
	tx := amountTx()
	require.NoError(t, f.Deploy(context.Background(), tx))

	bc := &model.Blockchain{ConfirmationBlocks: 10}
	err := f.Watch(context.Background(), bc, tx)
	require.Error(t, err)
	assert.True(t, djerrors.IsTemporary(err))
}

func TestFakeWatchUnknownHashIsTemporary(t *testing.T) {
	f := New(0)
	tx := amountTx()
	err := f.Watch(context.Background(), &model.Blockchain{}, tx)
	require.Error(t, err)
	assert.True(t, djerrors.IsTemporary(err))
}

func TestFakeFindOperationRespectsRange(t *testing.T) {
	f := New(0)
	tx := amountTx()
	require.NoError(t, f.Deploy(context.Background(), tx))

	op, err := f.FindOperation(context.Background(), &model.Blockchain{}, *tx.TxHash, 0, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), op.Fee)

	_, err = f.FindOperation(context.Background(), &model.Blockchain{}, *tx.TxHash, 1_000_000, 2_000_000)
	assert.Error(t, err)
}

func TestFakeFindOperationsByDestinationMatchesAndFilters(t *testing.T) {
	f := New(0)
	fn := "transfer"
	addr := "KT1Tracked"
	call := &model.Transaction{Function: &fn, ContractAddress: &addr}
	require.NoError(t, f.Send(context.Background(), call))

	other := amountTx()
	require.NoError(t, f.Deploy(context.Background(), other))

	ops, err := f.FindOperationsByDestination(context.Background(), &model.Blockchain{}, []string{addr}, 0, 1_000_000)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, addr, ops[0].Destination)
	assert.Equal(t, fn, ops[0].Entrypoint)
	assert.Equal(t, *call.TxHash, ops[0].TxHash)

	none, err := f.FindOperationsByDestination(context.Background(), &model.Blockchain{}, nil, 0, 1_000_000)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFailDeployAlwaysReturnsPermanent(t *testing.T) {
	f := NewFailDeploy(0)
	err := f.Deploy(context.Background(), amountTx())
	require.Error(t, err)
	assert.True(t, djerrors.IsPermanent(err))
}

func TestFailWatchNeverConfirms(t *testing.T) {
	f := NewFailWatch(0)
	tx := amountTx()
	require.NoError(t, f.Deploy(context.Background(), tx))

	err := f.Watch(context.Background(), &model.Blockchain{}, tx)
	require.Error(t, err)
	assert.True(t, djerrors.IsTemporary(err))
}

func TestFakeOriginateSetsContractAddressOnWatch(t *testing.T) {
	f := New(0)
	tx := &model.Transaction{ContractCode: []byte("code")}
	require.NoError(t, f.Deploy(context.Background(), tx))

	err := f.Watch(context.Background(), &model.Blockchain{}, tx)
	require.NoError(t, err)
	require.NotNil(t, tx.ContractAddress)
	assert.Contains(t, *tx.ContractAddress, "KT1Fake")
}
