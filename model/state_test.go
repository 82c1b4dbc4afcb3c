// Copyright (c) 2024 djtezos contributors

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidState(t *testing.T) {
	assert.True(t, IsValidState(StateDeploy))
	assert.True(t, IsValidState(StateAborted))
	assert.False(t, IsValidState(State("nonsense")))
}

func TestIsTerminalCoversAllAbortVariantsAndDone(t *testing.T) {
	terminal := []State{
		StateDone, StateDeployAbort, StateWatchAbort, StatePostDeployAbort, StateAborted,
	}
	for _, s := range terminal {
		assert.True(t, IsTerminal(s), "expected %s to be terminal", s)
	}

	nonTerminal := []State{
		StateHeld, StateDeploy, StateDeploying, StateWatch, StateWatching,
		StatePostDeploy, StatePostDeplying, StateImport, StateImporting, StateRetrying,
	}
	for _, s := range nonTerminal {
		assert.False(t, IsTerminal(s), "expected %s to be non-terminal", s)
	}
}

func TestTerminalStateNamesMatchesIsTerminal(t *testing.T) {
	names := TerminalStateNames()
	assert.Len(t, names, len(terminalStates))
	for _, n := range names {
		assert.True(t, IsTerminal(State(n)))
	}
}
