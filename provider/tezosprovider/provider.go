// Copyright (c) 2024 djtezos contributors

// Package tezosprovider adapts blockwatch-cc-tzgo's rpc.Client, codec.Op
// builders and signer.Signer to the provider.Provider interface (spec
// §4.1). It is grounded on wallet/run.go's Simulate/Validate/Broadcast
// helpers and rpc/run.go's Complete/Send, which already implement branch
// assignment, counter sequencing and reveal-before-first-operation against
// the node's own view of an account — this package leans on that instead
// of re-deriving it.
package tezosprovider

import (
	"context"
	"encoding/json"

	"github.com/echa/log"
	"github.com/tidwall/gjson"

	djerrors "github.com/yourlabs/djtezos/engine/errors"
	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/provider"

	"blockwatch.cc/tzgo/codec"
	"blockwatch.cc/tzgo/micheline"
	"blockwatch.cc/tzgo/rpc"
	"blockwatch.cc/tzgo/signer"
	"blockwatch.cc/tzgo/tezos"
)

func init() {
	provider.Register("tezos", New)
}

// Tezos is the Provider for a Tezos-family chain (spec §4.1). One instance
// is constructed per Blockchain row and holds a live rpc.Client for its
// endpoint.
type Tezos struct {
	bc     *model.Blockchain
	client *rpc.Client
}

// New constructs a Tezos Provider against bc.Endpoint. It resolves chain
// params lazily on first use rather than in the constructor, since
// registry.New (spec §9) runs without a context to dial out with.
func New(bc *model.Blockchain) (provider.Provider, error) {
	client, err := rpc.NewClient(bc.Endpoint, nil)
	if err != nil {
		return nil, djerrors.WrapPermanent(err, "tezosprovider: dial "+bc.Endpoint)
	}
	return &Tezos{bc: bc, client: client}, nil
}

func (t *Tezos) ensureParams(ctx context.Context) error {
	if t.client.Params != nil {
		return nil
	}
	if err := t.client.Init(ctx); err != nil {
		return djerrors.WrapTemporary(err, "tezosprovider: init params")
	}
	return nil
}

// CreateWallet generates a fresh ed25519 keypair. passphrase is accepted
// for interface symmetry with providers that need one to unlock an
// existing wallet file, but a freshly generated key needs none.
func (t *Tezos) CreateWallet(ctx context.Context, passphrase string) (string, []byte, error) {
	key, err := tezos.GenerateKey(tezos.KeyTypeEd25519)
	if err != nil {
		return "", nil, djerrors.WrapPermanent(err, "tezosprovider: generate key")
	}
	return key.Address().String(), []byte(key.String()), nil
}

// GetBalance returns address's balance at the current head. privateKey is
// unused; Tezos balances are queried by address alone.
func (t *Tezos) GetBalance(ctx context.Context, address string, privateKey []byte) (int64, error) {
	addr, err := tezos.ParseAddress(address)
	if err != nil {
		return 0, djerrors.Validationf("tezosprovider: invalid address %q: %s", address, err)
	}
	bal, err := t.client.GetContractBalance(ctx, addr)
	if err != nil {
		return 0, djerrors.Classify(err)
	}
	return bal, nil
}

func (t *Tezos) signerFor(tx *model.Transaction, privateKey []byte) (signer.Signer, error) {
	key, err := tezos.ParsePrivateKey(string(privateKey))
	if err != nil {
		return nil, djerrors.WrapPermanent(err, "tezosprovider: parse sender key")
	}
	return signer.NewFromKey(key), nil
}

// Deploy dispatches tx to Transfer, Send or Originate by Variant, the
// uniform entry point the engine calls (spec §4.1).
func (t *Tezos) Deploy(ctx context.Context, tx *model.Transaction) error {
	switch tx.Variant() {
	case model.VariantTransfer:
		return t.Transfer(ctx, tx)
	case model.VariantCall:
		return t.Send(ctx, tx)
	case model.VariantContract:
		return t.Originate(ctx, tx)
	default:
		return djerrors.Validationf("tezosprovider: transaction is not a valid variant")
	}
}

// submitOptions returns CallOptions that submit without waiting: the orchestrator's
// own Watch phase owns confirmation tracking (spec §4.2, §4.5), so
// Complete/Send here should only forge, sign and broadcast.
func submitOptions(sgnr signer.Signer, sender tezos.Address) *rpc.CallOptions {
	o := rpc.DefaultOptions
	o.Confirmations = 0
	o.Signer = sgnr
	o.Sender = sender
	return &o
}

func (t *Tezos) applyReceipt(tx *model.Transaction, hash tezos.OpHash, rcpt *rpc.Receipt) {
	h := hash.String()
	tx.TxHash = &h
	if rcpt == nil {
		return
	}
	costs := rcpt.TotalCosts()
	gas := costs.GasUsed
	tx.Gas = &gas
	if addr, ok := rcpt.OriginatedContract(); ok {
		s := addr.String()
		tx.ContractAddress = &s
	}
}

func (t *Tezos) privateKeyFor(tx *model.Transaction) ([]byte, error) {
	// Deploy/Transfer/Send/Originate read the sender's private key from
	// the "private_key" field of tx.ArgsResolved, the same loose-JSON
	// convention used for contract call arguments. None of the engine
	// packages (Scheduler, FSM, Writer, Watcher) writes that field, so a
	// Transaction reaches the Provider with a key only if whoever created
	// it put one there.
	if len(tx.ArgsResolved) == 0 {
		return nil, djerrors.Permanentf("tezosprovider: transaction has no resolved signer key")
	}
	pk := gjson.GetBytes(tx.ArgsResolved, "private_key")
	if !pk.Exists() {
		return nil, djerrors.Permanentf("tezosprovider: resolved args missing private_key")
	}
	return []byte(pk.String()), nil
}

// Transfer broadcasts a plain value transfer of tx.Amount to the address
// stored in tx's resolved args.
func (t *Tezos) Transfer(ctx context.Context, tx *model.Transaction) error {
	if err := t.ensureParams(ctx); err != nil {
		return err
	}
	pk, err := t.privateKeyFor(tx)
	if err != nil {
		return err
	}
	sgnr, err := t.signerFor(tx, pk)
	if err != nil {
		return err
	}
	addrs, _ := sgnr.ListAddresses(ctx)
	dest := gjson.GetBytes(tx.ArgsResolved, "destination").String()
	to, err := tezos.ParseAddress(dest)
	if err != nil {
		return djerrors.Validationf("tezosprovider: invalid destination %q", dest)
	}
	amount := int64(0)
	if tx.Amount != nil {
		amount = *tx.Amount
	}
	op := codec.NewOp().WithTransfer(to, amount)
	rcpt, err := t.client.Send(ctx, op, submitOptions(sgnr, addrs[0]))
	if err != nil {
		log.Errorf("tezosprovider: tx %s: transfer: %v", tx.ID, err)
		return djerrors.Classify(err)
	}
	t.applyReceipt(tx, rcpt.Op.Hash, rcpt)
	return nil
}

// Send invokes tx.Function on tx's contract, passing tx.Args as the
// Micheline parameter value.
func (t *Tezos) Send(ctx context.Context, tx *model.Transaction) error {
	if err := t.ensureParams(ctx); err != nil {
		return err
	}
	pk, err := t.privateKeyFor(tx)
	if err != nil {
		return err
	}
	sgnr, err := t.signerFor(tx, pk)
	if err != nil {
		return err
	}
	addrs, _ := sgnr.ListAddresses(ctx)
	if tx.ContractAddress == nil {
		return djerrors.Validationf("tezosprovider: call transaction missing contract_address")
	}
	to, err := tezos.ParseAddress(*tx.ContractAddress)
	if err != nil {
		return djerrors.Validationf("tezosprovider: invalid contract_address %q", *tx.ContractAddress)
	}
	var arg micheline.Prim
	if len(tx.Args) > 0 {
		if err := json.Unmarshal(tx.Args, &arg); err != nil {
			return djerrors.Validationf("tezosprovider: args is not valid Micheline JSON: %s", err)
		}
	}
	params := micheline.Parameters{Entrypoint: *tx.Function, Value: arg}
	var op *codec.Op
	if tx.Amount != nil && *tx.Amount > 0 {
		op = codec.NewOp().WithCallExt(to, params, *tx.Amount)
	} else {
		op = codec.NewOp().WithCall(to, params)
	}
	rcpt, err := t.client.Send(ctx, op, submitOptions(sgnr, addrs[0]))
	if err != nil {
		log.Errorf("tezosprovider: tx %s: send: %v", tx.ID, err)
		return djerrors.Classify(err)
	}
	t.applyReceipt(tx, rcpt.Op.Hash, rcpt)
	return nil
}

// Originate deploys tx.ContractCode (a JSON-encoded micheline.Script) as a
// new contract, optionally funded with tx.Amount.
func (t *Tezos) Originate(ctx context.Context, tx *model.Transaction) error {
	if err := t.ensureParams(ctx); err != nil {
		return err
	}
	pk, err := t.privateKeyFor(tx)
	if err != nil {
		return err
	}
	sgnr, err := t.signerFor(tx, pk)
	if err != nil {
		return err
	}
	addrs, _ := sgnr.ListAddresses(ctx)
	var script micheline.Script
	if err := json.Unmarshal(tx.ContractCode, &script); err != nil {
		return djerrors.Validationf("tezosprovider: contract_code is not a valid script: %s", err)
	}
	amount := int64(0)
	if tx.Amount != nil {
		amount = *tx.Amount
	}
	op := codec.NewOp().WithOrigination(script)
	if amount > 0 {
		op = codec.NewOp().WithOriginationExt(script, tezos.Address{}, amount)
	}
	rcpt, err := t.client.Send(ctx, op, submitOptions(sgnr, addrs[0]))
	if err != nil {
		log.Errorf("tezosprovider: tx %s: originate: %v", tx.ID, err)
		return djerrors.Classify(err)
	}
	t.applyReceipt(tx, rcpt.Op.Hash, rcpt)
	return nil
}

// Watch checks tx.TxHash's inclusion depth against bc.ConfirmationBlocks
// (spec §4.5 rule shared with the Chain Watcher's per-Transaction
// fallback, §4.6).
func (t *Tezos) Watch(ctx context.Context, bc *model.Blockchain, tx *model.Transaction) error {
	if tx.TxHash == nil {
		return djerrors.Temporaryf("tezosprovider: transaction has no txhash yet")
	}
	head, err := t.HeadLevel(ctx, bc)
	if err != nil {
		return err
	}
	from := int64(1)
	if tx.Level != nil {
		from = *tx.Level
	} else if bc.MinLevel != nil {
		from = *bc.MinLevel
	}
	op, err := t.FindOperation(ctx, bc, *tx.TxHash, from, head)
	if err != nil {
		return err
	}
	tx.Level = &op.Level
	gas := op.Fee
	tx.Gas = &gas
	if op.OriginatedAddress != "" {
		tx.ContractAddress = &op.OriginatedAddress
	}
	if head-op.Level < bc.ConfirmationBlocks {
		return djerrors.Temporaryf("tezosprovider: %d/%d confirmations", head-op.Level, bc.ConfirmationBlocks)
	}
	return nil
}

// WatchBlockchain is a no-op: djtezos's Chain Watcher (spec §4.5) owns
// reconciliation and watermark advancement across every registered
// Provider, rather than each Provider doing it independently.
func (t *Tezos) WatchBlockchain(ctx context.Context, bc *model.Blockchain) error {
	return nil
}

// HeadLevel returns the current chain head's level.
func (t *Tezos) HeadLevel(ctx context.Context, bc *model.Blockchain) (int64, error) {
	hdr, err := t.client.GetTipHeader(ctx)
	if err != nil {
		return 0, djerrors.Classify(err)
	}
	return hdr.Level, nil
}

// FindOperation scans blocks [fromLevel, toLevel] for txHash, the same
// linear range scan the Chain Watcher uses for reconciliation (spec §4.5,
// §4.6), returning once it locates the operation or exhausting the range.
func (t *Tezos) FindOperation(ctx context.Context, bc *model.Blockchain, txHash string, fromLevel, toLevel int64) (*provider.Operation, error) {
	for level := fromLevel; level <= toLevel; level++ {
		block, err := t.client.GetBlockHeight(ctx, level)
		if err != nil {
			return nil, djerrors.Classify(err)
		}
		for _, list := range block.Operations {
			for _, oh := range list {
				if oh.Hash.String() != txHash {
					continue
				}
				return operationFromHeader(oh, level), nil
			}
		}
	}
	return nil, djerrors.Temporaryf("tezosprovider: operation %s not found in [%d,%d]", txHash, fromLevel, toLevel)
}

// FindOperationsByDestination scans blocks [fromLevel, toLevel] for
// transaction-content operations whose destination is in addresses,
// the discovery path for spec §4.5's "transaction with destination ∈ A"
// scan clause.
func (t *Tezos) FindOperationsByDestination(ctx context.Context, bc *model.Blockchain, addresses []string, fromLevel, toLevel int64) ([]*provider.Operation, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		want[a] = true
	}
	var out []*provider.Operation
	for level := fromLevel; level <= toLevel; level++ {
		block, err := t.client.GetBlockHeight(ctx, level)
		if err != nil {
			return nil, djerrors.Classify(err)
		}
		for _, list := range block.Operations {
			for _, oh := range list {
				op := operationFromHeader(oh, level)
				if op.Destination == "" || !want[op.Destination] {
					continue
				}
				op.TxHash = oh.Hash.String()
				out = append(out, op)
			}
		}
	}
	return out, nil
}

func operationFromHeader(oh *rpc.OperationHeader, level int64) *provider.Operation {
	out := &provider.Operation{Level: level}
	for _, content := range oh.Contents {
		switch op := content.(type) {
		case *rpc.Transaction:
			out.Fee = op.Manager.Fee
			out.Destination = op.Destination.String()
			if op.Parameters != nil {
				out.Entrypoint = op.Parameters.Entrypoint
				b, _ := json.Marshal(op.Parameters.Value)
				out.ArgsResolved = b
			}
			if contracts := op.Metadata.Result.OriginatedContracts; len(contracts) > 0 {
				out.OriginatedAddress = contracts[0].String()
			}
		case *rpc.Origination:
			out.Fee = op.Manager.Fee
			if contracts := op.Metadata.Result.OriginatedContracts; len(contracts) > 0 {
				out.OriginatedAddress = contracts[0].String()
			}
		}
	}
	return out
}
