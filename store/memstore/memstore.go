// Copyright (c) 2024 djtezos contributors

// Package memstore is an in-memory store.Store, the reference
// implementation used by engine tests and the Fake Provider scenarios
// (spec §8). It mirrors internal/compose/context.go's mutex-protected
// map-of-struct pattern rather than a slice, so lookups by ID stay O(1).
// A single mutex guards every map, so all reads and writes, for any
// sender, are serialized against each other.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	djerrors "github.com/yourlabs/djtezos/engine/errors"
	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/store"
)

// Store is a sync.Mutex-guarded in-memory store.Store.
type Store struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*model.Account
	blockchains  map[uuid.UUID]*model.Blockchain
	transactions map[uuid.UUID]*model.Transaction
	txHashes     map[string]uuid.UUID
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]*model.Account),
		blockchains:  make(map[uuid.UUID]*model.Blockchain),
		transactions: make(map[uuid.UUID]*model.Transaction),
		txHashes:     make(map[string]uuid.UUID),
	}
}

func clone[T any](v *T) *T {
	cp := *v
	return &cp
}

func (s *Store) SaveAccount(ctx context.Context, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.accounts[a.ID] = clone(a)
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound{Kind: "account", ID: id}
	}
	return clone(a), nil
}

func (s *Store) ListAccounts(ctx context.Context, blockchainID uuid.UUID) ([]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Account
	for _, a := range s.accounts {
		if a.BlockchainID == blockchainID {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

func (s *Store) SaveBlockchain(ctx context.Context, bc *model.Blockchain) error {
	if err := bc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if bc.ID == uuid.Nil {
		bc.ID = uuid.New()
	}
	s.blockchains[bc.ID] = clone(bc)
	return nil
}

func (s *Store) GetBlockchain(ctx context.Context, id uuid.UUID) (*model.Blockchain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bc, ok := s.blockchains[id]
	if !ok {
		return nil, store.ErrNotFound{Kind: "blockchain", ID: id}
	}
	return clone(bc), nil
}

func (s *Store) ListActiveBlockchains(ctx context.Context) ([]*model.Blockchain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Blockchain
	for _, bc := range s.blockchains {
		if bc.IsActive {
			out = append(out, clone(bc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SaveTransaction(ctx context.Context, tx *model.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.TxHash != nil && *tx.TxHash != "" {
		if existing, ok := s.txHashes[*tx.TxHash]; ok && existing != tx.ID {
			return djerrors.Classify(store.ErrDuplicateTxHash{TxHash: *tx.TxHash})
		}
		s.txHashes[*tx.TxHash] = tx.ID
	}
	if prev, ok := s.transactions[tx.ID]; ok && prev.TxHash != nil && (tx.TxHash == nil || *tx.TxHash != *prev.TxHash) {
		delete(s.txHashes, *prev.TxHash)
	}
	s.transactions[tx.ID] = clone(tx)
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound{Kind: "transaction", ID: id}
	}
	return clone(tx), nil
}

func matchesState(state model.State, states []model.State) bool {
	if len(states) == 0 {
		return true
	}
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func (s *Store) ListBySenderState(ctx context.Context, senderRef uuid.UUID, states ...model.State) ([]*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range s.transactions {
		if tx.SenderRef == nil || *tx.SenderRef != senderRef {
			continue
		}
		if !matchesState(tx.State, states) {
			continue
		}
		out = append(out, clone(tx))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListByState(ctx context.Context, states ...model.State) ([]*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range s.transactions {
		if !matchesState(tx.State, states) {
			continue
		}
		out = append(out, clone(tx))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListSenders(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, tx := range s.transactions {
		if tx.SenderRef == nil || tx.IsTerminal() {
			continue
		}
		if !seen[*tx.SenderRef] {
			seen[*tx.SenderRef] = true
			out = append(out, *tx.SenderRef)
		}
	}
	return out, nil
}

func (s *Store) FindTransactionByTxHash(ctx context.Context, txHash string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.txHashes[txHash]
	if !ok {
		return nil, store.ErrNotFound{Kind: "transaction txhash", Ref: txHash}
	}
	return clone(s.transactions[id]), nil
}

func (s *Store) ListContractAddresses(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, tx := range s.transactions {
		if tx.Variant() != model.VariantContract || tx.ContractAddress == nil || *tx.ContractAddress == "" {
			continue
		}
		if !seen[*tx.ContractAddress] {
			seen[*tx.ContractAddress] = true
			out = append(out, *tx.ContractAddress)
		}
	}
	sort.Strings(out)
	return out, nil
}

var _ store.Store = (*Store)(nil)
