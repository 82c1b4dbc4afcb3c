// Copyright (c) 2024 djtezos contributors

// Package provider defines the chain-specific adapter interface (spec §4.1)
// and the provider_class → constructor registry (spec §9). Concrete chains
// (Tezos, Ethereum, Fake and its failure variants) live in sibling
// packages and register themselves from an init(), the same pattern the
// teacher uses for its compose engine versions (internal/compose/registry.go
// RegisterEngine/New, consumed from internal/compose/alpha/engine.go's
// init()).
package provider

import (
	"context"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/yourlabs/djtezos/model"
)

// Provider is the uniform interface every chain-specific adapter presents
// (spec §4.1). Deploy is the dispatcher: it routes to Transfer, Send, or
// Originate based on the Transaction's derived Variant.
type Provider interface {
	// CreateWallet mints a new keypair for passphrase-protected storage.
	CreateWallet(ctx context.Context, passphrase string) (address string, privateKey []byte, err error)

	// GetBalance returns the current balance for address.
	GetBalance(ctx context.Context, address string, privateKey []byte) (int64, error)

	// Deploy dispatches tx to Transfer, Send, or Originate per its Variant,
	// and may mutate tx.Gas and tx.TxHash.
	Deploy(ctx context.Context, tx *model.Transaction) error

	// Transfer sends tx.Amount to tx's receiver.
	Transfer(ctx context.Context, tx *model.Transaction) error

	// Send invokes tx.Function on tx's contract.
	Send(ctx context.Context, tx *model.Transaction) error

	// Originate deploys tx.ContractCode as a new contract.
	Originate(ctx context.Context, tx *model.Transaction) error

	// Watch checks tx.TxHash's on-chain status and sets tx.Gas and
	// tx.ContractAddress on success. It returns a Temporary error when not
	// yet found or not yet deep enough, or a Permanent error on
	// protocol-level rejection.
	Watch(ctx context.Context, bc *model.Blockchain, tx *model.Transaction) error

	// WatchBlockchain reconciles persisted rows against chain state and
	// updates bc's watermark (spec §4.5). Implementations that do not
	// perform their own reconciliation (e.g. ones that rely on the core's
	// Chain Watcher entirely) may no-op.
	WatchBlockchain(ctx context.Context, bc *model.Blockchain) error

	// HeadLevel returns the current chain head's block level.
	HeadLevel(ctx context.Context, bc *model.Blockchain) (int64, error)

	// FindOperation searches the block range [fromLevel, toLevel] for
	// txHash and returns its payload, or a Temporary error when txHash is
	// not found in that range.
	FindOperation(ctx context.Context, bc *model.Blockchain, txHash string, fromLevel, toLevel int64) (*Operation, error)

	// FindOperationsByDestination searches the block range [fromLevel,
	// toLevel] for transaction-type operations whose destination is one of
	// addresses, returning every match with TxHash populated (spec §4.5's
	// "transaction with destination ∈ A" scan clause). It is the
	// discovery path for calls to a tracked contract the Store does not
	// already have a row for.
	FindOperationsByDestination(ctx context.Context, bc *model.Blockchain, addresses []string, fromLevel, toLevel int64) ([]*Operation, error)
}

// Operation is the payload FindOperation returns: enough of an on-chain
// operation's shape for the Chain Watcher and Watch fallback to extract
// gas, level and originated addresses (spec §4.5, §4.6).
type Operation struct {
	Level             int64
	Fee               int64
	OriginatedAddress string // set only for originations
	Entrypoint        string // set only for contract calls
	ArgsResolved      []byte // JSON-encoded parameters value
	Destination       string
	TxHash            string // populated by FindOperationsByDestination
}

// Factory constructs a Provider for one Blockchain configuration.
type Factory func(bc *model.Blockchain) (Provider, error)

var registry = make(map[string]Factory)

// Register associates a provider_class identifier with a constructor.
// provider_class strings are normalized with strcase the way tzgen's code
// generator normalizes Michelson field names, so "Tezos", "tezos" and
// "TEZOS" all resolve to the same factory.
func Register(providerClass string, factory Factory) {
	registry[normalize(providerClass)] = factory
}

// New resolves providerClass to its registered Factory and constructs a
// Provider for bc. It returns ErrUnknownProviderClass if nothing is
// registered under that name.
func New(providerClass string, bc *model.Blockchain) (Provider, error) {
	factory, ok := registry[normalize(providerClass)]
	if !ok {
		return nil, ErrUnknownProviderClass{Class: providerClass}
	}
	return factory(bc)
}

// Registered reports whether providerClass has a registered Factory.
func Registered(providerClass string) bool {
	_, ok := registry[normalize(providerClass)]
	return ok
}

func normalize(providerClass string) string {
	return strcase.ToSnake(strings.TrimSpace(providerClass))
}

// ErrUnknownProviderClass is returned by New when providerClass was never
// registered.
type ErrUnknownProviderClass struct {
	Class string
}

func (e ErrUnknownProviderClass) Error() string {
	return "provider: unknown provider_class " + e.Class
}
