// Copyright (c) 2024 djtezos contributors

package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amountTx() *Transaction {
	amt := int64(1000)
	return &Transaction{ID: uuid.New(), Amount: &amt, State: StateDeploy}
}

func callTx() *Transaction {
	fn := "transfer"
	addr := "KT1xxx"
	return &Transaction{ID: uuid.New(), Function: &fn, ContractAddress: &addr, State: StateDeploy}
}

func contractTx() *Transaction {
	return &Transaction{ID: uuid.New(), ContractCode: []byte("code"), State: StateDeploy}
}

func TestVariantTransfer(t *testing.T) {
	assert.Equal(t, VariantTransfer, amountTx().Variant())
}

func TestVariantCall(t *testing.T) {
	assert.Equal(t, VariantCall, callTx().Variant())
}

func TestVariantCallRequiresContractRefOrAddress(t *testing.T) {
	fn := "transfer"
	tx := &Transaction{Function: &fn}
	assert.Equal(t, VariantInvalid, tx.Variant())
}

func TestVariantContract(t *testing.T) {
	assert.Equal(t, VariantContract, contractTx().Variant())
}

func TestVariantInvalidEmptyRow(t *testing.T) {
	tx := &Transaction{}
	assert.Equal(t, VariantInvalid, tx.Variant())
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "transfer", VariantTransfer.String())
	assert.Equal(t, "call", VariantCall.String())
	assert.Equal(t, "contract", VariantContract.String())
	assert.Equal(t, "invalid", VariantInvalid.String())
}

func TestValidateRejectsInvalidVariant(t *testing.T) {
	tx := &Transaction{State: StateDeploy}
	err := tx.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a Transfer, Call, or Contract")
}

func TestValidateRejectsUnknownState(t *testing.T) {
	tx := amountTx()
	tx.State = State("bogus")
	err := tx.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid state")
}

func TestValidateAcceptsWellFormedTransfer(t *testing.T) {
	assert.NoError(t, amountTx().Validate())
}

func TestInheritFromContractRefFillsOnlyMissingFields(t *testing.T) {
	name := "MyToken"
	addr := "KT1origin"
	origination := &Transaction{ContractName: &name, ContractAddress: &addr}

	ref := uuid.New()
	call := &Transaction{ContractRef: &ref}
	call.InheritFromContractRef(origination)

	require.NotNil(t, call.ContractName)
	require.NotNil(t, call.ContractAddress)
	assert.Equal(t, name, *call.ContractName)
	assert.Equal(t, addr, *call.ContractAddress)
}

func TestInheritFromContractRefDoesNotOverwrite(t *testing.T) {
	originName := "Origination"
	callName := "AlreadySet"
	ref := uuid.New()
	origination := &Transaction{ContractName: &originName}
	call := &Transaction{ContractRef: &ref, ContractName: &callName}

	call.InheritFromContractRef(origination)
	assert.Equal(t, callName, *call.ContractName)
}

func TestInheritFromContractRefNoopWithoutRef(t *testing.T) {
	name := "Origination"
	origination := &Transaction{ContractName: &name}
	call := &Transaction{}
	call.InheritFromContractRef(origination)
	assert.Nil(t, call.ContractName)
}

func TestTransitionAppendsHistoryAndUpdatesState(t *testing.T) {
	tx := amountTx()
	now := time.Unix(1000, 0)
	tx.Transition(StateDeploying, now)

	assert.Equal(t, StateDeploying, tx.State)
	assert.Equal(t, now, tx.UpdatedAt)
	require.Len(t, tx.History, 1)
	assert.Equal(t, StateDeploying, tx.History[0].State)
	assert.Equal(t, now.Unix(), tx.History[0].At)
}

func TestTransitionIsAppendOnly(t *testing.T) {
	tx := amountTx()
	tx.Transition(StateDeploying, time.Unix(1, 0))
	tx.Transition(StateWatch, time.Unix(2, 0))
	require.Len(t, tx.History, 2)
	assert.Equal(t, StateDeploying, tx.History[0].State)
	assert.Equal(t, StateWatch, tx.History[1].State)
}

func TestClearRetryMarkers(t *testing.T) {
	now := time.Now()
	tx := amountTx()
	tx.Error = "boom"
	tx.LastFail = &now

	tx.ClearRetryMarkers()
	assert.Empty(t, tx.Error)
	assert.Nil(t, tx.LastFail)
}

func TestMarkRetryableRecordsErrorAndRewindsState(t *testing.T) {
	tx := amountTx()
	tx.State = StateDeploying
	now := time.Unix(500, 0)

	tx.MarkRetryable(StateDeploy, assertErr("node unreachable"), now)

	assert.Equal(t, StateDeploy, tx.State)
	assert.Equal(t, "node unreachable", tx.Error)
	require.NotNil(t, tx.LastFail)
	assert.Equal(t, now, *tx.LastFail)
	require.Len(t, tx.History, 1)
	assert.Equal(t, StateDeploy, tx.History[0].State)
}

func TestIsTerminal(t *testing.T) {
	tx := amountTx()
	tx.State = StateDone
	assert.True(t, tx.IsTerminal())

	tx.State = StateDeploying
	assert.False(t, tx.IsTerminal())
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
