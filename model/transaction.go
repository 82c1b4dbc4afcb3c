// Copyright (c) 2024 djtezos contributors

package model

import (
	"time"

	"github.com/google/uuid"
	djerrors "github.com/yourlabs/djtezos/engine/errors"
)

// Variant is the tagged-sum view of a Transaction, derived from which
// columns are non-null (spec §3, §9 "Variant-by-shape Transactions"). The
// source models this with single-table inheritance and proxy subclasses;
// here it is a predicate over the shared record, computed on read.
type Variant int

const (
	VariantInvalid Variant = iota
	VariantTransfer
	VariantCall
	VariantContract
)

func (v Variant) String() string {
	switch v {
	case VariantTransfer:
		return "transfer"
	case VariantCall:
		return "call"
	case VariantContract:
		return "contract"
	default:
		return "invalid"
	}
}

// Transaction is a persistent record of an intent to originate, call, or
// transfer, plus the results observed (spec §3). The common fields cover
// all three logical variants; Variant() derives which one a given row is.
type Transaction struct {
	ID         uuid.UUID
	SenderRef  *uuid.UUID
	ReceiverRef *uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time

	TxHash          *string
	GasPrice        *int64
	Gas             *int64
	ContractAddress *string
	ContractName    *string
	ContractSource  *string
	ContractCode    []byte
	ContractRef     *uuid.UUID
	Function        *string
	Args            []byte // JSON-typed column
	ArgsResolved    []byte // JSON-typed column
	Amount          *int64
	Level           *int64
	LastFail        *time.Time

	State   State
	Error   string
	History History
}

// Variant derives the tagged-sum variant from which fields are populated,
// per spec §3:
//   - Transfer: amount present, function absent.
//   - Call: function present (requires contract_address or contract_ref).
//   - Contract (origination): neither amount nor function; requires
//     contract_code.
//
// Returns VariantInvalid when the row matches none of the three shapes.
func (t *Transaction) Variant() Variant {
	switch {
	case t.Amount != nil && t.Function == nil:
		return VariantTransfer
	case t.Function != nil && (t.ContractAddress != nil || t.ContractRef != nil):
		return VariantCall
	case t.Amount == nil && t.Function == nil && len(t.ContractCode) > 0:
		return VariantContract
	default:
		return VariantInvalid
	}
}

// Validate enforces every Transaction-level invariant from spec §3:
//   - the row is exactly one of the three variants
//   - state is one of the enumerated States
//   - a contract_ref without function is rejected upstream by Variant()
func (t *Transaction) Validate() error {
	if t.Variant() == VariantInvalid {
		return djerrors.Validationf("transaction: row is not a Transfer, Call, or Contract")
	}
	if !IsValidState(t.State) {
		return djerrors.Validationf("transaction: invalid state %q", t.State)
	}
	return nil
}

// InheritFromContractRef fills ContractName/ContractAddress from the
// referenced origination Transaction when they are not already set, per
// spec §3: "If contract_ref is set and contract_name/contract_address are
// null, they are inherited from the referenced Transaction at save time."
func (t *Transaction) InheritFromContractRef(origination *Transaction) {
	if t.ContractRef == nil || origination == nil {
		return
	}
	if t.ContractName == nil {
		t.ContractName = origination.ContractName
	}
	if t.ContractAddress == nil {
		t.ContractAddress = origination.ContractAddress
	}
}

// Transition appends one history entry and sets State, per spec §4.2 rule 1:
// "Writes state, appends (state, now) to history, persists atomically."
// Callers persist the Transaction afterward; Transition itself does not
// touch storage.
func (t *Transaction) Transition(state State, now time.Time) {
	t.State = state
	t.UpdatedAt = now
	t.History.Append(state, now.Unix())
}

// ClearRetryMarkers clears Error and LastFail, per spec §4.2 rule 2: "On
// successful forward transition, clears error and last_fail."
func (t *Transaction) ClearRetryMarkers() {
	t.Error = ""
	t.LastFail = nil
}

// MarkRetryable records a retryable failure and moves the Transaction back
// to entryState; it returns nothing (spec §4.2 rule 3): "On retryable error, stores error = str(e), sets
// last_fail = now, and transitions back to the entry state of the same
// phase."
func (t *Transaction) MarkRetryable(entryState State, err error, now time.Time) {
	t.Error = err.Error()
	t.LastFail = &now
	t.Transition(entryState, now)
}

// IsTerminal reports whether the Transaction has reached done or an
// *-aborted state.
func (t *Transaction) IsTerminal() bool {
	return IsTerminal(t.State)
}
