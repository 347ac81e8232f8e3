package domain

import (
	"fmt"
	"sort"
)

// stateStage orders states along the shipping pipeline. Variants A and B
// share a stage.
var stateStage = map[ParcelState]int{
	StateReceived:               0,
	StateInTransitDomesticA:     1,
	StateInTransitDomesticB:     1,
	StateInTransitInternational: 2,
	StateInWarehouseA:           3,
	StateInWarehouseB:           3,
}

// TransitionTable holds the allowed (from, to) state pairs.
type TransitionTable struct {
	Enforce bool
	allowed map[ParcelState]map[ParcelState]bool
}

// DefaultTransitions allows any move to a strictly later stage.
func DefaultTransitions() TransitionTable {
	t := TransitionTable{Enforce: true, allowed: map[ParcelState]map[ParcelState]bool{}}
	for _, from := range ParcelStates {
		for _, to := range ParcelStates {
			if stateStage[to] > stateStage[from] {
				t.allow(from, to)
			}
		}
	}
	return t
}

// NewTransitionTable builds a table from state names. An empty map yields
// the default table.
func NewTransitionTable(enforce bool, pairs map[string][]string) (TransitionTable, error) {
	if len(pairs) == 0 {
		t := DefaultTransitions()
		t.Enforce = enforce
		return t, nil
	}
	t := TransitionTable{Enforce: enforce, allowed: map[ParcelState]map[ParcelState]bool{}}
	for rawFrom, targets := range pairs {
		from, ok := ParseParcelState(rawFrom)
		if !ok {
			return TransitionTable{}, fmt.Errorf("unknown parcel state %q in transitions", rawFrom)
		}
		for _, rawTo := range targets {
			to, ok := ParseParcelState(rawTo)
			if !ok {
				return TransitionTable{}, fmt.Errorf("unknown parcel state %q in transitions from %s", rawTo, from)
			}
			t.allow(from, to)
		}
	}
	return t, nil
}

func (t *TransitionTable) allow(from, to ParcelState) {
	if t.allowed[from] == nil {
		t.allowed[from] = map[ParcelState]bool{}
	}
	t.allowed[from][to] = true
}

// Allows reports whether a parcel in from may move to to.
func (t TransitionTable) Allows(from, to ParcelState) bool {
	if !to.Valid() {
		return false
	}
	if !t.Enforce {
		return true
	}
	return t.allowed[from][to]
}

// Targets lists the states reachable from from, in progression order.
func (t TransitionTable) Targets(from ParcelState) []ParcelState {
	var out []ParcelState
	for _, s := range ParcelStates {
		if t.Allows(from, s) {
			out = append(out, s)
		}
	}
	return out
}

// Pairs renders the table as state names, sorted for stable output.
func (t TransitionTable) Pairs() map[string][]string {
	out := map[string][]string{}
	for from, tos := range t.allowed {
		for to := range tos {
			out[string(from)] = append(out[string(from)], string(to))
		}
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out
}
