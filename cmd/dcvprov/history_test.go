package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dcvprov/internal/history"
)

func TestHistoryCommand_Empty(t *testing.T) {
	_, global := newWorkspace(t)

	out, err := executeCommand(append([]string{"history"}, global...)...)
	require.NoError(t, err)
	require.Equal(t, "No runs recorded yet.\n", out)

	_, err = executeCommand(append([]string{"history", "nope"}, global...)...)
	require.ErrorIs(t, err, history.ErrNotFound)
}

func TestHistoryCommand_ShowsOneRun(t *testing.T) {
	useFakeHost(t)
	ws, global := newWorkspace(t)

	_, err := executeCommand(append([]string{"apply", "--attrs", ws.attrs()}, global...)...)
	require.NoError(t, err)

	out, err := executeCommand(append([]string{"history", "--json"}, global...)...)
	require.NoError(t, err)
	var entries []struct {
		RunID   string `json:"run_id"`
		Applied int    `json:"applied"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, 7, entries[0].Applied)

	out, err = executeCommand(append([]string{"history", entries[0].RunID}, global...)...)
	require.NoError(t, err)
	require.Contains(t, out, "(run "+entries[0].RunID+")")
	require.Contains(t, out, "dcvserver")
}

func TestHistoryCommand_RejectsNegativeLimit(t *testing.T) {
	_, global := newWorkspace(t)

	_, err := executeCommand(append([]string{"history", "--limit", "-1"}, global...)...)
	require.ErrorContains(t, err, "negative")
}
