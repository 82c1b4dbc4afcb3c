// Copyright (c) 2024 djtezos contributors

package main

import (
	"context"

	"github.com/yourlabs/djtezos/engine/writer"
	"github.com/yourlabs/djtezos/provider"
	"github.com/yourlabs/djtezos/store"
)

// runWrite implements spec §6's `write` subcommand: run one Writer pass
// per active Blockchain and exit 0 whether or not work was done.
func runWrite(ctx context.Context, st store.Store) error {
	w := writer.New(st, cfg.WriterAbortThreshold)

	chains, err := st.ListActiveBlockchains(ctx)
	if err != nil {
		return err
	}
	for _, bc := range chains {
		p, err := provider.New(bc.ProviderClass, bc)
		if err != nil {
			log.Errorf("write: %s: %v", bc.Name, err)
			continue
		}
		if _, err := w.Write(ctx, bc, p); err != nil {
			log.Errorf("write: %s: %v", bc.Name, err)
		}
	}
	return nil
}
