// Copyright (c) 2024 djtezos contributors

package model

import (
	"github.com/google/uuid"
	djerrors "github.com/yourlabs/djtezos/engine/errors"
)

// Account is a holder of a keypair on a specific Blockchain (spec §3). It is
// created without an address; Address and EncryptedPrivateKey are filled in
// once a keypair has been generated for it. This package does not generate
// keys itself.
type Account struct {
	ID                  uuid.UUID
	BlockchainID        uuid.UUID
	Address             string // empty until a keypair has been generated
	EncryptedPrivateKey []byte
	OwnerRef            *uuid.UUID
	Balance             int64
	Name                string
}

// Validate enforces the Account-level invariants from spec §3.
func (a *Account) Validate() error {
	if a.Name == "" {
		return djerrors.Validationf("account: name is required")
	}
	if a.BlockchainID == uuid.Nil {
		return djerrors.Validationf("account: blockchain_ref is required")
	}
	return nil
}

// HasAddress reports whether the keypair has already been generated.
func (a *Account) HasAddress() bool {
	return a.Address != ""
}
