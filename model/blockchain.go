// Copyright (c) 2024 djtezos contributors

package model

import (
	"github.com/google/uuid"
	djerrors "github.com/yourlabs/djtezos/engine/errors"
)

// Blockchain is a configured remote chain endpoint with a symbolic provider
// class, resolved at runtime to a concrete provider.Provider implementation
// (spec §3, §9).
type Blockchain struct {
	ID                 uuid.UUID
	Name               string
	Endpoint           string
	ProviderClass      string
	ExplorerTemplate   string
	ConfirmationBlocks int64
	IsActive           bool

	// MaxLevel is the watermark: the highest block level the Chain Watcher
	// has scanned for this blockchain. Nil means cold start (spec §4.5).
	MaxLevel *int64
	MinLevel *int64
}

// Validate enforces the Blockchain-level invariants from spec §3.
func (b *Blockchain) Validate() error {
	if b.Name == "" {
		return djerrors.Validationf("blockchain: name is required")
	}
	if b.ProviderClass == "" {
		return djerrors.Validationf("blockchain: provider_class is required")
	}
	if b.ConfirmationBlocks < 0 {
		return djerrors.Validationf("blockchain: confirmation_blocks must be >= 0")
	}
	return nil
}
