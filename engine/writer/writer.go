// Copyright (c) 2024 djtezos contributors

// Package writer implements the batch-admission driver from spec §4.4:
// one invocation selects at most one eligible Transaction and deploys it.
// It is grounded on internal/compose/alpha/run.go's Engine.Run, which
// walks a task list and does build→send→persist per item; here the "task
// list" is a priority-ordered set of SQL-shaped selection queries over
// store.Store instead of a parsed pipeline file.
package writer

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/echa/log"
	"github.com/google/uuid"

	djerrors "github.com/yourlabs/djtezos/engine/errors"
	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/provider"
	"github.com/yourlabs/djtezos/store"
)

// ineligibleStates are excluded from Writer admission outright (spec
// §4.4 "State not in {held, aborted, import, importing, done}").
var ineligibleStates = map[model.State]bool{
	model.StateHeld:            true,
	model.StateAborted:         true,
	model.StateImport:          true,
	model.StateImporting:       true,
	model.StateDone:            true,
	model.StateDeployAbort:     true,
	model.StateWatchAbort:      true,
	model.StatePostDeployAbort: true,
}

// Writer selects and deploys at most one Transaction per Write call.
type Writer struct {
	Store         store.Store
	AbortThreshold int
	now           func() time.Time
}

// New constructs a Writer over st with the consecutive-failure abort
// threshold (spec §6 WRITER_ABORT_THRESHOLD, default 10).
func New(st store.Store, abortThreshold int) *Writer {
	if abortThreshold <= 0 {
		abortThreshold = 10
	}
	return &Writer{Store: st, AbortThreshold: abortThreshold, now: time.Now}
}

// Write runs one pass over bc: it finds the highest-priority eligible
// Transaction among Accounts on bc with non-zero balance, deploys it
// through p, and returns. It returns (false, nil) when no eligible
// Transaction exists — not an error, per spec §6 "write — run one Writer
// pass; exit 0 whether or not work was done."
func (w *Writer) Write(ctx context.Context, bc *model.Blockchain, p provider.Provider) (bool, error) {
	accounts, err := w.Store.ListAccounts(ctx, bc.ID)
	if err != nil {
		log.Errorf("writer: blockchain %s: list accounts: %v", bc.ID, err)
		return false, err
	}
	senders := make(map[uuid.UUID]bool, len(accounts))
	for _, a := range accounts {
		if a.Balance != 0 {
			senders[a.ID] = true
		}
	}
	if len(senders) == 0 {
		return false, nil
	}

	candidates, err := w.Store.ListByState(ctx,
		model.StateDeploy, model.StateDeploying, model.StateRetrying,
		model.StateWatch, model.StateWatching,
		model.StatePostDeploy, model.StatePostDeplying)
	if err != nil {
		log.Errorf("writer: blockchain %s: list candidates: %v", bc.ID, err)
		return false, err
	}
	onChain := candidates[:0]
	for _, tx := range candidates {
		if tx.SenderRef != nil && senders[*tx.SenderRef] {
			onChain = append(onChain, tx)
		}
	}
	tx := selectCandidate(onChain)
	if tx == nil {
		return false, nil
	}
	err = p.Deploy(ctx, tx)
	if err != nil {
		log.Infof("writer: tx %s: deploy: %v", tx.ID, err)
	}
	w.settle(tx, err)
	if saveErr := w.Store.SaveTransaction(ctx, tx); saveErr != nil {
		log.Errorf("writer: tx %s: save: %v", tx.ID, saveErr)
		return true, saveErr
	}
	return true, nil
}

// eligible applies spec §4.4's filter set, excluding the active-blockchain
// and non-zero-balance checks: those depend on the sender Account and
// Blockchain rows. Write applies the balance check before calling it, and
// the caller (cmd/djtezos's write subcommand, looping over active
// Blockchains) supplies only active Blockchains.
func eligible(tx *model.Transaction) bool {
	if ineligibleStates[tx.State] {
		return false
	}
	switch tx.Variant() {
	case model.VariantContract:
		return tx.TxHash == nil
	case model.VariantCall:
		return tx.ContractAddress != nil && tx.TxHash == nil
	case model.VariantTransfer:
		return tx.TxHash == nil
	default:
		return false
	}
}

// selectCandidate applies spec §4.4's six-bucket selection order: new
// Transfer, new Contract, new Call (all with last_fail == nil, ordered by
// created_at), then the same three variants as retries ordered by
// last_fail ascending. The first non-empty bucket wins.
func selectCandidate(txs []*model.Transaction) *model.Transaction {
	var newTransfer, newContract, newCall []*model.Transaction
	var retryTransfer, retryContract, retryCall []*model.Transaction

	for _, tx := range txs {
		if !eligible(tx) {
			continue
		}
		isRetry := tx.LastFail != nil
		switch tx.Variant() {
		case model.VariantTransfer:
			if isRetry {
				retryTransfer = append(retryTransfer, tx)
			} else {
				newTransfer = append(newTransfer, tx)
			}
		case model.VariantContract:
			if isRetry {
				retryContract = append(retryContract, tx)
			} else {
				newContract = append(newContract, tx)
			}
		case model.VariantCall:
			if isRetry {
				retryCall = append(retryCall, tx)
			} else {
				newCall = append(newCall, tx)
			}
		}
	}

	for _, bucket := range [][]*model.Transaction{newTransfer, newContract, newCall} {
		if len(bucket) > 0 {
			return oldestCreated(bucket)
		}
	}
	for _, bucket := range [][]*model.Transaction{retryTransfer, retryContract, retryCall} {
		if len(bucket) > 0 {
			return oldestLastFail(bucket)
		}
	}
	return nil
}

func oldestCreated(txs []*model.Transaction) *model.Transaction {
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.Before(txs[j].CreatedAt) })
	return txs[0]
}

func oldestLastFail(txs []*model.Transaction) *model.Transaction {
	sort.Slice(txs, func(i, j int) bool { return txs[i].LastFail.Before(*txs[j].LastFail) })
	return txs[0]
}

// settle applies spec §4.2/§4.4's outcome rules: success clears retry
// markers and moves Transfer/Call to done, Contract to watching (it still
// needs address confirmation from chain); a Permanent failure records the
// error and moves to deploy-aborted without setting last_fail; any other
// failure records the error and last_fail and applies the abort rule, else
// returns to retrying.
func (w *Writer) settle(tx *model.Transaction, err error) {
	now := w.now()
	if err == nil {
		tx.ClearRetryMarkers()
		if tx.Variant() == model.VariantContract {
			tx.Transition(model.StateWatching, now)
		} else {
			tx.Transition(model.StateDone, now)
		}
		return
	}
	if djerrors.IsPermanent(err) {
		tx.Error = err.Error()
		tx.Transition(model.StateDeployAbort, now)
		return
	}
	tx.Error = err.Error()
	tx.LastFail = &now
	if count := tx.History.CountSinceAborted(model.StateRetrying) + 1; count >= w.abortThreshold() {
		tx.Error = "Aborting because >= " + strconv.Itoa(w.abortThreshold()) + " failures, last error: " + err.Error()
		tx.Transition(model.StateAborted, now)
		return
	}
	tx.Transition(model.StateRetrying, now)
}

func (w *Writer) abortThreshold() int {
	if w.AbortThreshold <= 0 {
		return 10
	}
	return w.AbortThreshold
}
