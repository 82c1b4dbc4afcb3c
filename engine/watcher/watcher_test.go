// Copyright (c) 2024 djtezos contributors

package watcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/provider/fakeprovider"
	"github.com/yourlabs/djtezos/store"
	"github.com/yourlabs/djtezos/store/memstore"
)

func newBlockchain(t *testing.T, st *memstore.Store) *model.Blockchain {
	t.Helper()
	bc := &model.Blockchain{Name: "chain", ProviderClass: "fake", IsActive: true}
	require.NoError(t, st.SaveBlockchain(context.Background(), bc))
	return bc
}

func TestRunColdStartSetsWatermark(t *testing.T) {
	st := memstore.New()
	bc := newBlockchain(t, st)
	w := New(st)
	p := fakeprovider.New(0)

	require.NoError(t, w.Run(context.Background(), bc, p))

	require.NotNil(t, bc.MaxLevel)
	head, err := p.HeadLevel(context.Background(), bc)
	require.NoError(t, err)
	assert.Equal(t, head-1, *bc.MaxLevel)
}

func TestRunResolvesWatchingTransaction(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	bc := newBlockchain(t, st)
	p := fakeprovider.New(0)

	amt := int64(50)
	tx := &model.Transaction{Amount: &amt, State: model.StateWatch}
	require.NoError(t, p.Deploy(ctx, tx))
	require.NoError(t, st.SaveTransaction(ctx, tx))

	require.NoError(t, w(st).Run(ctx, bc, p))

	got, err := st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDone, got.State)
	require.NotNil(t, got.Level)
	require.NotNil(t, got.Gas)
}

func w(st *memstore.Store) *Watcher { return New(st) }

func TestReorgResetsAffectedTransactionsToHeld(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	bc := newBlockchain(t, st)
	p := fakeprovider.New(0)

	// Advance the fake chain head, then pin the persisted watermark beyond
	// it to simulate a chain rollback on the next Run.
	head, err := p.HeadLevel(ctx, bc)
	require.NoError(t, err)
	rolledBackFrom := head + 100
	bc.MaxLevel = &rolledBackFrom

	level := rolledBackFrom + 5
	hash := "ooSomeHash"
	tx := &model.Transaction{
		Amount: int64Ptr(10),
		State:  model.StateWatch,
		Level:  &level,
		TxHash: &hash,
	}
	require.NoError(t, st.SaveTransaction(ctx, tx))

	require.NoError(t, w(st).Run(ctx, bc, p))

	got, err := st.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateHeld, got.State)
	assert.Nil(t, got.Level)
	assert.Nil(t, got.TxHash)
	assert.Equal(t, head, *bc.MaxLevel)
}

func TestPropagateContractRefFillsDependentCallAddress(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	bc := newBlockchain(t, st)
	p := fakeprovider.New(0)

	origination := &model.Transaction{ContractCode: []byte("code"), State: model.StateWatch}
	require.NoError(t, p.Deploy(ctx, origination))
	require.NoError(t, st.SaveTransaction(ctx, origination))

	ref := origination.ID
	fn := "transfer"
	call := &model.Transaction{Function: &fn, ContractRef: &ref, State: model.StateHeld}
	require.NoError(t, st.SaveTransaction(ctx, call))

	watcher := w(st)
	require.NoError(t, watcher.Run(ctx, bc, p))

	resolvedOrigination, err := st.GetTransaction(ctx, origination.ID)
	require.NoError(t, err)
	require.NotNil(t, resolvedOrigination.ContractAddress)

	resolvedCall, err := st.GetTransaction(ctx, call.ID)
	require.NoError(t, err)
	require.NotNil(t, resolvedCall.ContractAddress)
	assert.Equal(t, *resolvedOrigination.ContractAddress, *resolvedCall.ContractAddress)
}

func TestScanDestinationsCreatesCallForUntrackedOperation(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	bc := newBlockchain(t, st)
	p := fakeprovider.New(0)

	origination := &model.Transaction{ContractCode: []byte("code"), State: model.StateWatch}
	require.NoError(t, p.Deploy(ctx, origination))
	require.NoError(t, st.SaveTransaction(ctx, origination))
	require.NoError(t, w(st).Run(ctx, bc, p))

	resolved, err := st.GetTransaction(ctx, origination.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved.ContractAddress)
	addr := *resolved.ContractAddress

	// Simulate an externally-submitted call to the tracked contract that
	// this system never created a row for.
	entrypoint := "transfer"
	external := &model.Transaction{Function: &entrypoint, ContractAddress: &addr, State: model.StateWatch}
	require.NoError(t, p.Deploy(ctx, external))
	require.NotNil(t, external.TxHash)

	require.NoError(t, w(st).Run(ctx, bc, p))

	discovered, err := st.FindTransactionByTxHash(ctx, *external.TxHash)
	require.NoError(t, err)
	assert.Equal(t, addr, *discovered.ContractAddress)
	require.NotNil(t, discovered.Function)
	assert.Equal(t, entrypoint, *discovered.Function)
	assert.Equal(t, model.StateDone, discovered.State)
	assert.NotEqual(t, external.ID, discovered.ID)
}

func TestScanDestinationsSkipsOperationWithoutEntrypoint(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	bc := newBlockchain(t, st)
	p := fakeprovider.New(0)

	origination := &model.Transaction{ContractCode: []byte("code"), State: model.StateWatch}
	require.NoError(t, p.Deploy(ctx, origination))
	require.NoError(t, st.SaveTransaction(ctx, origination))
	require.NoError(t, w(st).Run(ctx, bc, p))

	resolved, err := st.GetTransaction(ctx, origination.ID)
	require.NoError(t, err)
	addr := *resolved.ContractAddress

	// An operation landing on the tracked address with no parameters (no
	// entrypoint) is not a Call by this model's Variant invariant and must
	// not be synthesized into one.
	plain := &model.Transaction{ContractAddress: &addr, State: model.StateWatch}
	require.NoError(t, p.Send(ctx, plain))

	require.NoError(t, w(st).Run(ctx, bc, p))

	_, err = st.FindTransactionByTxHash(ctx, *plain.TxHash)
	var nf store.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestDepthColdStartUsesDefault(t *testing.T) {
	watcher := &Watcher{}
	assert.Equal(t, int64(defaultDepth), watcher.depth(&model.Blockchain{}, 1000))
}

func TestDepthAtWatermarkIsOne(t *testing.T) {
	watcher := &Watcher{}
	level := int64(100)
	assert.Equal(t, int64(1), watcher.depth(&model.Blockchain{MaxLevel: &level}, 100))
}

func TestDepthClampsToDefault(t *testing.T) {
	watcher := &Watcher{}
	level := int64(0)
	assert.Equal(t, int64(defaultDepth), watcher.depth(&model.Blockchain{MaxLevel: &level}, defaultDepth+1000))
}

func int64Ptr(v int64) *int64 { return &v }
