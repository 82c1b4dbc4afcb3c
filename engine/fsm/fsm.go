// Copyright (c) 2024 djtezos contributors

// Package fsm drives one Transaction through deploy → watch → postdeploy
// (spec §4.2), the same per-step build/send/persist loop
// internal/compose/alpha/run.go's Engine.Run uses for its task pipeline,
// generalized from "one ordered list of tasks" to "one named phase, called
// again on every worker pass until it leaves the phase".
package fsm

import (
	"context"
	"time"

	djerrors "github.com/yourlabs/djtezos/engine/errors"
	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/provider"
	"github.com/yourlabs/djtezos/store"
)

// PostDeployHook runs after watch confirms a Transaction and before it is
// marked done. The default is a no-op; callers that need custom follow-up
// (indexing, notification, a second chained call) register one via
// WithPostDeployHook. This is the open extension point spec §9 leaves
// unresolved ("whether postdeploy is a fixed phase or a customizable
// hook").
type PostDeployHook func(ctx context.Context, tx *model.Transaction) error

func noopHook(context.Context, *model.Transaction) error { return nil }

// FSM advances a single Transaction by one phase call per invocation,
// mirroring spec §4.2's "every transition persists before the next
// Provider call" rule: no step here spans more than one Store write.
type FSM struct {
	Store    store.Store
	Hook     PostDeployHook
	MaxDepth int64
	Chunk    int64
	now      func() time.Time
}

// New constructs an FSM backed by st. maxDepth/chunk are the Watch
// fallback's search bounds (spec §4.6); zero values fall back to the
// spec's documented defaults (500, 20).
func New(st store.Store, maxDepth, chunk int64) *FSM {
	if maxDepth <= 0 {
		maxDepth = 500
	}
	if chunk <= 0 {
		chunk = 20
	}
	return &FSM{Store: st, Hook: noopHook, MaxDepth: maxDepth, Chunk: chunk, now: time.Now}
}

// WithPostDeployHook installs hook, replacing the no-op default.
func (f *FSM) WithPostDeployHook(hook PostDeployHook) *FSM {
	if hook != nil {
		f.Hook = hook
	}
	return f
}

// StepTransaction advances tx by exactly one phase call, dispatching on
// its current state the way the Scheduler's worker procedure does (spec
// §4.3 step 4): deploy/deploying → deployState, watch/watching →
// watchState, postdeploy/postdeploying → postDeployState. The result is
// always persisted before StepTransaction returns, so a crash between
// calls loses no state.
func (f *FSM) StepTransaction(ctx context.Context, p provider.Provider, bc *model.Blockchain, tx *model.Transaction) error {
	switch tx.State {
	case model.StateDeploy, model.StateDeploying:
		return f.deployState(ctx, p, tx)
	case model.StateWatch, model.StateWatching:
		return f.watchState(ctx, p, bc, tx)
	case model.StatePostDeploy, model.StatePostDeplying:
		return f.postDeployState(ctx, tx)
	default:
		return nil
	}
}

func (f *FSM) deployState(ctx context.Context, p provider.Provider, tx *model.Transaction) error {
	now := f.now()
	tx.Transition(model.StateDeploying, now)
	err := p.Deploy(ctx, tx)
	return f.settle(ctx, tx, err, model.StateDeploy, model.StateDeployAbort, model.StateWatch)
}

func (f *FSM) watchState(ctx context.Context, p provider.Provider, bc *model.Blockchain, tx *model.Transaction) error {
	now := f.now()
	tx.Transition(model.StateWatching, now)
	err := p.Watch(ctx, bc, tx)
	next := model.StateDone
	if f.Hook != nil {
		next = model.StatePostDeploy
	}
	return f.settle(ctx, tx, err, model.StateWatch, model.StateWatchAbort, next)
}

func (f *FSM) postDeployState(ctx context.Context, tx *model.Transaction) error {
	now := f.now()
	tx.Transition(model.StatePostDeplying, now)
	err := djerrors.Classify(f.Hook(ctx, tx))
	return f.settle(ctx, tx, err, model.StatePostDeploy, model.StatePostDeployAbort, model.StateDone)
}

// settle applies spec §4.2 rules 2-3: on success it clears retry markers
// and transitions to onSuccess; on TemporaryError it retries from
// entryState; on PermanentError it transitions to onAbort. The row is
// always saved before returning.
func (f *FSM) settle(ctx context.Context, tx *model.Transaction, err error, entryState, onAbort, onSuccess model.State) error {
	now := f.now()
	switch {
	case err == nil:
		tx.ClearRetryMarkers()
		tx.Transition(onSuccess, now)
	case djerrors.IsPermanent(err):
		tx.Error = err.Error()
		tx.Transition(onAbort, now)
	default:
		tx.MarkRetryable(entryState, djerrors.Classify(err), now)
	}
	return f.Store.SaveTransaction(ctx, tx)
}
