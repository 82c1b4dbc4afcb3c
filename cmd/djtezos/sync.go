// Copyright (c) 2024 djtezos contributors

package main

import (
	"context"

	"github.com/yourlabs/djtezos/engine/watcher"
	"github.com/yourlabs/djtezos/provider"
	"github.com/yourlabs/djtezos/store"
)

// runSync implements spec §6's `sync` subcommand: invoke the Chain Watcher
// once per active Blockchain. Errors on one blockchain are logged and do
// not abort the pass over the rest.
func runSync(ctx context.Context, st store.Store) error {
	w := watcher.New(st)

	chains, err := st.ListActiveBlockchains(ctx)
	if err != nil {
		return err
	}
	for _, bc := range chains {
		p, err := provider.New(bc.ProviderClass, bc)
		if err != nil {
			log.Errorf("sync: %s: %v", bc.Name, err)
			continue
		}
		if err := w.Run(ctx, bc, p); err != nil {
			log.Errorf("sync: %s: %v", bc.Name, err)
		}
	}
	return nil
}
