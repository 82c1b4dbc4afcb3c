// Copyright (c) 2024 djtezos contributors

// Package fakeprovider implements deterministic Provider variants for
// tests and CI (spec §2, §4.1): Fake (always succeeds, after an optional
// configurable sleep), FailDeploy (always rejects deploys permanently) and
// FailWatch (always reports Watch as not-yet-found). Each registers itself
// under its provider_class from an init(), the same self-registration
// convention provider/tezosprovider and provider/ethprovider use.
package fakeprovider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	djerrors "github.com/yourlabs/djtezos/engine/errors"
	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/provider"
)

func init() {
	provider.Register("fake", func(bc *model.Blockchain) (provider.Provider, error) {
		return New(0), nil
	})
	provider.Register("fail_deploy", func(bc *model.Blockchain) (provider.Provider, error) {
		return NewFailDeploy(0), nil
	})
	provider.Register("fail_watch", func(bc *model.Blockchain) (provider.Provider, error) {
		return NewFailWatch(0), nil
	})
}

// opRecord is the in-memory chain state for one deployed/transferred
// operation, enough for Watch/FindOperation to resolve it deterministically.
type opRecord struct {
	level             int64
	fee               int64
	originatedAddress string
	entrypoint        string
	destination       string
}

// Fake is a deterministic Provider: every call succeeds after Sleep, and
// every txhash is immediately "found" at the current head level, so a
// single Watch call satisfies confirmation_blocks == 0 or advances
// predictably otherwise.
type Fake struct {
	Sleep time.Duration

	mu      sync.Mutex
	seq     int64
	head    int64
	ops     map[string]*opRecord
	nonce   int64
	balance int64
}

// New returns a Fake Provider that sleeps for the given per-operation
// delay (FAKE_SLEEP, spec §6).
func New(sleep time.Duration) *Fake {
	return &Fake{
		Sleep:   sleep,
		head:    1,
		ops:     make(map[string]*opRecord),
		balance: 1_000_000,
	}
}

func (f *Fake) delay() {
	if f.Sleep > 0 {
		time.Sleep(f.Sleep)
	}
}

func (f *Fake) nextHash(prefix string) string {
	n := atomic.AddInt64(&f.seq, 1)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d-%d", prefix, n, time.Now().UnixNano())))
	return prefix + hex.EncodeToString(sum[:16])
}

func (f *Fake) CreateWallet(ctx context.Context, passphrase string) (string, []byte, error) {
	f.delay()
	addr := f.nextHash("tz1Fake")
	return addr, []byte("fake-private-key:" + passphrase), nil
}

func (f *Fake) GetBalance(ctx context.Context, address string, privateKey []byte) (int64, error) {
	f.delay()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *Fake) Deploy(ctx context.Context, tx *model.Transaction) error {
	switch tx.Variant() {
	case model.VariantTransfer:
		return f.Transfer(ctx, tx)
	case model.VariantCall:
		return f.Send(ctx, tx)
	case model.VariantContract:
		return f.Originate(ctx, tx)
	default:
		return djerrors.Validationf("fakeprovider: transaction is not a valid variant")
	}
}

func (f *Fake) Transfer(ctx context.Context, tx *model.Transaction) error {
	f.delay()
	f.record(tx, "op", &opRecord{fee: 1000})
	return nil
}

func (f *Fake) Send(ctx context.Context, tx *model.Transaction) error {
	f.delay()
	dest := ""
	if tx.ContractAddress != nil {
		dest = *tx.ContractAddress
	}
	entry := ""
	if tx.Function != nil {
		entry = *tx.Function
	}
	f.record(tx, "op", &opRecord{fee: 1200, entrypoint: entry, destination: dest})
	return nil
}

func (f *Fake) Originate(ctx context.Context, tx *model.Transaction) error {
	f.delay()
	addr := f.nextHash("KT1Fake")
	f.record(tx, "op", &opRecord{fee: 2000, originatedAddress: addr})
	return nil
}

func (f *Fake) record(tx *model.Transaction, prefix string, rec *opRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head++
	rec.level = f.head
	hash := f.nextHash(prefix)
	tx.TxHash = &hash
	gas := rec.fee
	tx.Gas = &gas
	f.ops[hash] = rec
}

func (f *Fake) Watch(ctx context.Context, bc *model.Blockchain, tx *model.Transaction) error {
	f.delay()
	if tx.TxHash == nil {
		return djerrors.Temporaryf("fakeprovider: transaction has no txhash yet")
	}
	f.mu.Lock()
	rec, ok := f.ops[*tx.TxHash]
	head := f.head
	f.mu.Unlock()
	if !ok {
		return djerrors.Temporaryf("fakeprovider: operation %s not found", *tx.TxHash)
	}
	if bc.ConfirmationBlocks > 0 && head-rec.level < bc.ConfirmationBlocks {
		return djerrors.Temporaryf("fakeprovider: waiting for confirmations")
	}
	gas := rec.fee
	tx.Gas = &gas
	if rec.originatedAddress != "" {
		tx.ContractAddress = &rec.originatedAddress
	}
	return nil
}

func (f *Fake) WatchBlockchain(ctx context.Context, bc *model.Blockchain) error {
	return nil
}

func (f *Fake) HeadLevel(ctx context.Context, bc *model.Blockchain) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *Fake) FindOperation(ctx context.Context, bc *model.Blockchain, txHash string, fromLevel, toLevel int64) (*provider.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.ops[txHash]
	if !ok || rec.level < fromLevel || rec.level > toLevel {
		return nil, djerrors.Temporaryf("fakeprovider: operation %s not found in range", txHash)
	}
	return &provider.Operation{
		Level:             rec.level,
		Fee:               rec.fee,
		OriginatedAddress: rec.originatedAddress,
		Entrypoint:        rec.entrypoint,
		Destination:       rec.destination,
	}, nil
}

// FindOperationsByDestination scans the recorded ops for entries whose
// destination is in addresses and whose level falls in [fromLevel,
// toLevel], the fake counterpart of the real providers' block scan for
// spec §4.5's "transaction with destination ∈ A" clause.
func (f *Fake) FindOperationsByDestination(ctx context.Context, bc *model.Blockchain, addresses []string, fromLevel, toLevel int64) ([]*provider.Operation, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		want[a] = true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*provider.Operation
	for hash, rec := range f.ops {
		if rec.destination == "" || !want[rec.destination] {
			continue
		}
		if rec.level < fromLevel || rec.level > toLevel {
			continue
		}
		out = append(out, &provider.Operation{
			Level:       rec.level,
			Fee:         rec.fee,
			Entrypoint:  rec.entrypoint,
			Destination: rec.destination,
			TxHash:      hash,
		})
	}
	return out, nil
}

// FailDeploy is a Fake that always rejects deploys with a Permanent error,
// used to exercise spec §8 scenario 4 (permanent failure → *-aborted).
type FailDeploy struct {
	*Fake
}

func NewFailDeploy(sleep time.Duration) *FailDeploy {
	return &FailDeploy{Fake: New(sleep)}
}

func (f *FailDeploy) Deploy(ctx context.Context, tx *model.Transaction) error {
	f.delay()
	return djerrors.Permanentf("fakeprovider: deploy always fails")
}

func (f *FailDeploy) Transfer(ctx context.Context, tx *model.Transaction) error {
	return f.Deploy(ctx, tx)
}

func (f *FailDeploy) Send(ctx context.Context, tx *model.Transaction) error {
	return f.Deploy(ctx, tx)
}

func (f *FailDeploy) Originate(ctx context.Context, tx *model.Transaction) error {
	return f.Deploy(ctx, tx)
}

// FailWatch is a Fake whose Deploy succeeds but whose Watch never confirms,
// used to exercise the Watch retry path.
type FailWatch struct {
	*Fake
}

func NewFailWatch(sleep time.Duration) *FailWatch {
	return &FailWatch{Fake: New(sleep)}
}

func (f *FailWatch) Watch(ctx context.Context, bc *model.Blockchain, tx *model.Transaction) error {
	f.delay()
	return djerrors.Temporaryf("fakeprovider: watch never confirms")
}
