package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTransitionsForwardOnly(t *testing.T) {
	table := DefaultTransitions()

	assert.True(t, table.Allows(StateReceived, StateInTransitDomesticA))
	assert.True(t, table.Allows(StateInTransitDomesticA, StateInWarehouseA))
	assert.True(t, table.Allows(StateInTransitDomesticB, StateInTransitInternational))
	assert.True(t, table.Allows(StateInTransitInternational, StateInWarehouseB))

	assert.False(t, table.Allows(StateReceived, StateReceived))
	assert.False(t, table.Allows(StateInWarehouseA, StateReceived))
	assert.False(t, table.Allows(StateInTransitDomesticA, StateInTransitDomesticB))
	assert.False(t, table.Allows(StateInWarehouseA, StateInWarehouseB))
	assert.Empty(t, table.Targets(StateInWarehouseB))
}

func TestTransitionTableNotEnforced(t *testing.T) {
	table, err := NewTransitionTable(false, nil)
	require.NoError(t, err)

	assert.True(t, table.Allows(StateInWarehouseA, StateReceived))
	assert.False(t, table.Allows(StateInWarehouseA, ParcelState("Lost")))
}

func TestNewTransitionTableExplicitPairs(t *testing.T) {
	table, err := NewTransitionTable(true, map[string][]string{
		"Received":           {"InTransitDomesticA"},
		"InTransitDomesticA": {"InWarehouseA"},
	})
	require.NoError(t, err)

	assert.True(t, table.Allows(StateReceived, StateInTransitDomesticA))
	assert.False(t, table.Allows(StateReceived, StateInTransitDomesticB))
	assert.Equal(t, []ParcelState{StateInWarehouseA}, table.Targets(StateInTransitDomesticA))
	assert.Equal(t, map[string][]string{
		"Received":           {"InTransitDomesticA"},
		"InTransitDomesticA": {"InWarehouseA"},
	}, table.Pairs())
}

func TestNewTransitionTableRejectsUnknownStates(t *testing.T) {
	_, err := NewTransitionTable(true, map[string][]string{"Received": {"Lost"}})
	require.Error(t, err)

	_, err = NewTransitionTable(true, map[string][]string{"Shipped": {"Received"}})
	require.Error(t, err)
}

func TestParseStatesAndStatuses(t *testing.T) {
	s, ok := ParseParcelState(" InWarehouseB ")
	assert.True(t, ok)
	assert.Equal(t, StateInWarehouseB, s)

	_, ok = ParseParcelState("received")
	assert.False(t, ok)

	st, ok := ParseIssueStatus("InProgress")
	assert.True(t, ok)
	assert.Equal(t, IssueInProgress, st)

	_, ok = ParseIssueStatus("Abierta")
	assert.False(t, ok)
}

func TestIssueIDAndEmptyEvent(t *testing.T) {
	assert.Equal(t, "PKG1-IN", IssueID("PKG1"))
	assert.True(t, HistoryEvent{}.Empty())
	assert.False(t, HistoryEvent{Comment: "x"}.Empty())
	assert.False(t, HistoryEvent{Attachments: []string{"u"}}.Empty())
}
