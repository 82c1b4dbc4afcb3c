// Copyright (c) 2024 djtezos contributors

// Package store defines the persistence contract (spec §3, §6): CRUD on
// Accounts, Blockchains and Transactions with an indexed lookup by
// (sender_ref, state), a unique constraint on Transaction.txhash, and
// atomic single-row updates that append to history. It is grounded on
// internal/compose/context.go's Context/Account builder shape and
// internal/compose/cache.go's resumable-cursor convention, generalized
// from one in-process pipeline to a shared row store multiple workers
// update concurrently.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/yourlabs/djtezos/model"
)

// ErrNotFound is returned when a lookup by ID (or, for FindTransactionByTxHash,
// by Ref) finds no row.
type ErrNotFound struct {
	Kind string
	ID   uuid.UUID
	Ref  string
}

func (e ErrNotFound) Error() string {
	if e.Ref != "" {
		return "store: " + e.Kind + " " + e.Ref + " not found"
	}
	return "store: " + e.Kind + " " + e.ID.String() + " not found"
}

// ErrDuplicateTxHash is returned by SaveTransaction when another row
// already carries the same non-empty txhash (spec §6 "unique constraint
// on Transaction.txhash").
type ErrDuplicateTxHash struct {
	TxHash string
}

func (e ErrDuplicateTxHash) Error() string {
	return "store: duplicate txhash " + e.TxHash
}

// Store is the persistence contract every engine package depends on
// instead of a concrete database. Both implementations make
// SaveTransaction atomic with respect to the row it updates: the whole
// row is written in one step. A save does not check whether the caller's
// copy is stale; the last save of a row wins.
type Store interface {
	// Accounts.
	SaveAccount(ctx context.Context, a *model.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error)
	ListAccounts(ctx context.Context, blockchainID uuid.UUID) ([]*model.Account, error)

	// Blockchains.
	SaveBlockchain(ctx context.Context, bc *model.Blockchain) error
	GetBlockchain(ctx context.Context, id uuid.UUID) (*model.Blockchain, error)
	ListActiveBlockchains(ctx context.Context) ([]*model.Blockchain, error)

	// Transactions.
	SaveTransaction(ctx context.Context, tx *model.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error)

	// ListBySenderState returns sender_ref's rows whose state is one of
	// states, ordered by created_at ascending, the access pattern the
	// Scheduler and Writer both need (spec §4.3, §4.4): "indexed lookup
	// by (sender_ref, state)".
	ListBySenderState(ctx context.Context, senderRef uuid.UUID, states ...model.State) ([]*model.Transaction, error)

	// ListByState returns every row across all senders in one of states,
	// ordered by created_at ascending, the Writer's batch-admission scan
	// (spec §4.4).
	ListByState(ctx context.Context, states ...model.State) ([]*model.Transaction, error)

	// ListSenders returns the distinct sender_ref values with at least
	// one non-terminal row, a worker-enumeration query (spec §4.3). No
	// engine package calls it; the Scheduler is handed each sender
	// through Enqueue.
	ListSenders(ctx context.Context) ([]uuid.UUID, error)

	// FindTransactionByTxHash returns the row carrying txhash, or
	// ErrNotFound. It backs the Chain Watcher's "locate (or create) the
	// corresponding Call by (txhash, contract_address)" rule (spec §4.5):
	// before minting a new Call row for a previously-unseen destination
	// match, the watcher checks whether a row already claims that hash.
	FindTransactionByTxHash(ctx context.Context, txHash string) (*model.Transaction, error)

	// ListContractAddresses returns the distinct, non-empty
	// contract_address values of persisted origination (Contract-variant)
	// rows, the known set A spec §4.5 matches incoming operations'
	// destinations against.
	ListContractAddresses(ctx context.Context) ([]string, error)
}
