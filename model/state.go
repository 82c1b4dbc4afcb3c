// Copyright (c) 2024 djtezos contributors

package model

// State is the position of a Transaction in the orchestration FSM.
type State string

const (
	StateHeld        State = "held"
	StateDeploy      State = "deploy"
	StateDeploying   State = "deploying"
	StateDeployAbort State = "deploy-aborted"
	StateWatch       State = "watch"
	StateWatching    State = "watching"
	StateWatchAbort  State = "watch-aborted"
	StatePostDeploy  State = "postdeploy"
	StatePostDeplying State = "postdeploying"
	StatePostDeployAbort State = "postdeploy-aborted"
	StateDone        State = "done"

	// StateAborted is the Writer's generic terminal state, reached via the
	// consecutive-failures counter in spec §4.2, distinct from the FSM's
	// per-phase *-aborted states.
	StateAborted State = "aborted"

	// StateImport and StateImporting are legacy admission states excluded
	// from Writer eligibility (spec §4.4).
	StateImport    State = "import"
	StateImporting State = "importing"

	// StateRetrying is a synonym of StateDeploy used by the Writer flow.
	StateRetrying State = "retrying"
)

// validStates enumerates every state a Transaction.State may hold; saving a
// row with any other value fails validation (spec §3).
var validStates = map[State]bool{
	StateHeld: true, StateDeploy: true, StateDeploying: true, StateDeployAbort: true,
	StateWatch: true, StateWatching: true, StateWatchAbort: true,
	StatePostDeploy: true, StatePostDeplying: true, StatePostDeployAbort: true,
	StateDone: true, StateAborted: true,
	StateImport: true, StateImporting: true, StateRetrying: true,
}

// terminalStates holds the terminal family: done and every *-aborted state.
var terminalStates = map[State]bool{
	StateDone:           true,
	StateDeployAbort:     true,
	StateWatchAbort:      true,
	StatePostDeployAbort: true,
	StateAborted:         true,
}

// IsValidState reports whether s is one of the States enumerated in spec §3.
func IsValidState(s State) bool {
	return validStates[s]
}

// IsTerminal reports whether s is a terminal state: done or any *-aborted
// variant (spec §3, §8 "terminal stickiness").
func IsTerminal(s State) bool {
	return terminalStates[s]
}

// TerminalStateNames returns the terminal states as plain strings, for
// stores whose query layer binds []any rather than []State (spec §4.3
// "distinct sender_ref values with at least one non-terminal row").
func TerminalStateNames() []string {
	out := make([]string, 0, len(terminalStates))
	for s := range terminalStates {
		out = append(out, string(s))
	}
	return out
}
