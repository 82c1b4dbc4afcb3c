// Copyright (c) 2024 djtezos contributors

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourlabs/djtezos/engine/fsm"
	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/provider/fakeprovider"
	"github.com/yourlabs/djtezos/store/memstore"
)

func setup(t *testing.T) (*memstore.Store, *Scheduler, *model.Account) {
	t.Helper()
	st := memstore.New()
	ctx := context.Background()

	bc := &model.Blockchain{Name: "fakechain", ProviderClass: "fake", IsActive: true}
	require.NoError(t, st.SaveBlockchain(ctx, bc))

	acct := &model.Account{Name: "alice", BlockchainID: bc.ID}
	require.NoError(t, st.SaveAccount(ctx, acct))

	f := fsm.New(st, 0, 0)
	return st, New(st, f), acct
}

func TestEnqueueDrainsToDone(t *testing.T) {
	st, s, acct := setup(t)
	ctx := context.Background()

	amt := int64(10)
	tx := &model.Transaction{SenderRef: &acct.ID, Amount: &amt, State: model.StateDeploy}
	require.NoError(t, st.SaveTransaction(ctx, tx))

	bc := &model.Blockchain{ConfirmationBlocks: 0}
	s.Enqueue(ctx, acct.ID, bc, fakeprovider.New(0))

	require.Eventually(t, func() bool {
		got, err := st.GetTransaction(ctx, tx.ID)
		return err == nil && got.State == model.StateDone
	}, time.Second, time.Millisecond)
}

func TestEnqueueCoalescesConcurrentTriggers(t *testing.T) {
	st, s, acct := setup(t)
	ctx := context.Background()

	amt := int64(1)
	tx1 := &model.Transaction{SenderRef: &acct.ID, Amount: &amt, State: model.StateDeploy}
	require.NoError(t, st.SaveTransaction(ctx, tx1))

	bc := &model.Blockchain{ConfirmationBlocks: 0}
	p := fakeprovider.New(5 * time.Millisecond)

	s.Enqueue(ctx, acct.ID, bc, p)
	s.Enqueue(ctx, acct.ID, bc, p)
	s.Enqueue(ctx, acct.ID, bc, p)

	require.Eventually(t, func() bool {
		got, err := st.GetTransaction(ctx, tx1.ID)
		return err == nil && got.State == model.StateDone
	}, 2*time.Second, time.Millisecond)

	s.mu.Lock()
	w := s.workers[acct.ID]
	s.mu.Unlock()
	assert.False(t, w.running)
	assert.False(t, w.rerun)
}

func TestDrainSkipsUnknownSender(t *testing.T) {
	st, s, _ := setup(t)
	ctx := context.Background()

	bc := &model.Blockchain{ConfirmationBlocks: 0}
	s.drain(ctx, uuid.New(), bc, fakeprovider.New(0))
}
