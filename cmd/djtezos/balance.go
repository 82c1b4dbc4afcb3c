// Copyright (c) 2024 djtezos contributors

package main

import (
	"context"

	"github.com/yourlabs/djtezos/cryptutil"
	"github.com/yourlabs/djtezos/provider"
	"github.com/yourlabs/djtezos/store"
)

// runBalance implements spec §6's `balance` subcommand: for each Account,
// fetch its balance via Provider and persist it if it changed.
func runBalance(ctx context.Context, st store.Store) error {
	cph, err := cryptutil.New(cfg.Secret)
	if err != nil {
		return err
	}

	chains, err := st.ListActiveBlockchains(ctx)
	if err != nil {
		return err
	}
	for _, bc := range chains {
		p, err := provider.New(bc.ProviderClass, bc)
		if err != nil {
			log.Errorf("balance: %s: %v", bc.Name, err)
			continue
		}
		accounts, err := st.ListAccounts(ctx, bc.ID)
		if err != nil {
			log.Errorf("balance: %s: list accounts: %v", bc.Name, err)
			continue
		}
		for _, a := range accounts {
			if !a.HasAddress() {
				continue
			}
			var pk []byte
			if len(a.EncryptedPrivateKey) > 0 {
				pk, err = cph.Decrypt(a.EncryptedPrivateKey)
				if err != nil {
					log.Errorf("balance: %s/%s: decrypt key: %v", bc.Name, a.Name, err)
					continue
				}
			}
			bal, err := p.GetBalance(ctx, a.Address, pk)
			if err != nil {
				log.Errorf("balance: %s/%s: %v", bc.Name, a.Name, err)
				continue
			}
			if bal == a.Balance {
				continue
			}
			a.Balance = bal
			if err := st.SaveAccount(ctx, a); err != nil {
				log.Errorf("balance: %s/%s: save: %v", bc.Name, a.Name, err)
			}
		}
	}
	return nil
}
