// Copyright (c) 2024 djtezos contributors

// Package scheduler runs one cooperative worker per sender Account, the
// per-sender named-queue model of spec §4.3, grounded on wallet/monitor.go's
// Monitor: a mutex-protected registry keyed by an identifier (there, an
// operation hash; here, a sender's Account ID) where a running entry
// coalesces concurrent triggers instead of spawning a second worker.
package scheduler

import (
	"context"
	"sync"

	"github.com/echa/log"
	"github.com/google/uuid"

	djerrors "github.com/yourlabs/djtezos/engine/errors"
	"github.com/yourlabs/djtezos/engine/fsm"
	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/provider"
	"github.com/yourlabs/djtezos/store"
)

// worker is one sender's named-queue entry: running tracks whether a
// goroutine currently owns this sender, rerun flags that another enqueue
// arrived while it was running (spec §4.3 "coalesced into a single
// re-run flag").
type worker struct {
	running bool
	rerun   bool
}

// Scheduler owns the per-sender worker registry. At most one goroutine
// runs a given sender's queue at a time (spec §4.3 invariant 1); Accounts
// of different senders run fully concurrently with no shared lock beyond
// the Store's own row-level guarantees.
type Scheduler struct {
	Store store.Store
	FSM   *fsm.FSM

	mu      sync.Mutex
	workers map[uuid.UUID]*worker
}

// New constructs a Scheduler over st, driving Transactions with f.
func New(st store.Store, f *fsm.FSM) *Scheduler {
	return &Scheduler{Store: st, FSM: f, workers: make(map[uuid.UUID]*worker)}
}

// Enqueue triggers sender's queue. If a worker is already running for
// sender, this call only sets the re-run flag and returns immediately
// (spec §4.3 "additional enqueues... are coalesced"). Otherwise it starts
// a worker goroutine bound to bc/p and returns immediately; the caller
// does not wait for the queue to drain.
func (s *Scheduler) Enqueue(ctx context.Context, sender uuid.UUID, bc *model.Blockchain, p provider.Provider) {
	s.mu.Lock()
	w, ok := s.workers[sender]
	if !ok {
		w = &worker{}
		s.workers[sender] = w
	}
	if w.running {
		w.rerun = true
		s.mu.Unlock()
		return
	}
	w.running = true
	s.mu.Unlock()

	go s.run(ctx, sender, bc, p, w)
}

// run drains sender's queue: it repeatedly loads the oldest non-terminal
// Transaction and steps it once, re-enqueuing itself (spec §4.3 step 5)
// until no work remains, then releases the worker slot. If a rerun flag
// was set while run was executing, it loops once more before exiting so
// no enqueue is lost.
func (s *Scheduler) run(ctx context.Context, sender uuid.UUID, bc *model.Blockchain, p provider.Provider, w *worker) {
	for {
		s.drain(ctx, sender, bc, p)

		s.mu.Lock()
		if w.rerun {
			w.rerun = false
			s.mu.Unlock()
			continue
		}
		w.running = false
		s.mu.Unlock()
		return
	}
}

// drain is the Scheduler's worker procedure (spec §4.3 steps 1-4): load
// the sender Account, select the oldest non-terminal Transaction, dispatch
// it through the FSM, and repeat until none remain.
func (s *Scheduler) drain(ctx context.Context, sender uuid.UUID, bc *model.Blockchain, p provider.Provider) {
	if _, err := s.Store.GetAccount(ctx, sender); err != nil {
		log.Errorf("scheduler: sender %s: %v", sender, err)
		return
	}
	for {
		txs, err := s.Store.ListBySenderState(ctx, sender,
			model.StateDeploy, model.StateDeploying,
			model.StateWatch, model.StateWatching,
			model.StatePostDeploy, model.StatePostDeplying)
		if err != nil {
			log.Errorf("scheduler: sender %s: list: %v", sender, err)
			return
		}
		if len(txs) == 0 {
			return
		}
		tx := txs[0]
		if err := s.FSM.StepTransaction(ctx, p, bc, tx); err != nil && !djerrors.IsTemporary(err) {
			log.Errorf("scheduler: sender %s: tx %s: %v", sender, tx.ID, err)
			return
		}
	}
}
