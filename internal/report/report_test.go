package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dcvprov/internal/engine"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
)

var start = time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

func newSummary(t *testing.T, outcome model.RunOutcome, results ...model.StepResult) *model.RunSummary {
	t.Helper()

	s := model.NewRunSummary("run-1", "dcv-head-node", start)
	require.NoError(t, s.Transition(model.RunGateEvaluated))
	if len(results) > 0 || outcome == model.RunAborted {
		require.NoError(t, s.Transition(model.RunRunning))
	}
	for _, r := range results {
		require.NoError(t, s.Append(r))
	}
	require.NoError(t, s.Finalize(outcome, start.Add(2*time.Second)))
	return s
}

func TestSummary_Success(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := newSummary(t, model.RunSuccess,
		model.StepResult{StepName: "install xorg server", Outcome: model.OutcomeAlreadySatisfied, Attempts: 1, Message: "xorg-x11-server-Xorg is installed"},
		model.StepResult{StepName: "wait for X to start", Outcome: model.OutcomeApplied, Attempts: 3},
	)
	require.NoError(t, NewPrinter(&out).Summary(s))

	text := out.String()
	require.Contains(t, text, "dcv-head-node (run run-1)")
	require.Contains(t, text, " ✓ install xorg server: xorg-x11-server-Xorg is installed")
	require.Contains(t, text, " ~ wait for X to start [3 attempts]")
	require.Contains(t, text, "Run succeeded: 1 applied, 1 already satisfied, 0 failed in 2s")
}

func TestSummary_Aborted(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := newSummary(t, model.RunAborted,
		model.StepResult{StepName: "certificate generation", Outcome: model.OutcomeFailed, Attempts: 1, Error: "exit status 1"},
	)
	require.NoError(t, NewPrinter(&out).Summary(s))
	require.Contains(t, out.String(), " ✗ certificate generation")
	require.Contains(t, out.String(), "     exit status 1")
	require.Contains(t, out.String(), "Run aborted: 0 applied, 0 already satisfied, 1 failed")
}

func TestSummary_Skipped(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, NewPrinter(&out).Summary(newSummary(t, model.RunSuccess)))
	require.Contains(t, out.String(), "Gate closed")
	require.NotContains(t, out.String(), "Run succeeded")
}

func TestSummary_JSON(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := newSummary(t, model.RunSuccess, model.StepResult{StepName: "dcvserver", Outcome: model.OutcomeApplied, Attempts: 1})
	require.NoError(t, NewPrinter(&out, WithJSON(true)).Summary(s))

	var decoded model.RunSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, "run-1", decoded.RunID)
	require.Equal(t, model.RunSucceeded, decoded.State)
	require.Len(t, decoded.Results(), 1)
}

func TestPreview(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	preview := &engine.Preview{
		GateOpen: true,
		Steps: []engine.PlannedStep{
			{StepName: "/etc/dcv/dcv.conf", RequiresAction: true, Message: "content differs", Diff: "--- a\n+++ b\n-old\n+new\n"},
			{StepName: "dcvserver", Message: "running and enabled"},
			{StepName: "wait for X to start", Error: "probe failed"},
		},
	}
	require.NoError(t, NewPrinter(&out).Preview("dcv-head-node", preview))

	text := out.String()
	require.Contains(t, text, "Plan for dcv-head-node")
	require.Contains(t, text, " ~ /etc/dcv/dcv.conf: content differs")
	require.Contains(t, text, "     -old\n     +new\n")
	require.Contains(t, text, " ✓ dcvserver: running and enabled")
	require.Contains(t, text, "cannot probe yet: probe failed")
	require.Contains(t, text, "2 of 3 steps would change")
}

func TestPreview_GateClosed(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, NewPrinter(&out).Preview("dcv-head-node", &engine.Preview{}))
	require.Contains(t, out.String(), "nothing would run")
}

func TestHistory(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, NewPrinter(&out).History(nil))
	require.Equal(t, "No runs recorded yet.\n", out.String())

	out.Reset()
	runs := []*model.RunSummary{
		newSummary(t, model.RunAborted, model.StepResult{StepName: "launch X", Outcome: model.OutcomeFailed}),
		newSummary(t, model.RunSuccess, model.StepResult{StepName: "dcvserver", Outcome: model.OutcomeApplied}),
	}
	require.NoError(t, NewPrinter(&out).History(runs))
	text := out.String()
	require.Contains(t, text, "RUN ID")
	require.Contains(t, text, "launch X")
	require.Contains(t, text, "aborted")

	out.Reset()
	require.NoError(t, NewPrinter(&out, WithJSON(true)).History(runs))
	var decoded []historyEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "launch X", decoded[0].FailedStep)
	require.Equal(t, 1, decoded[1].Applied)
}

func TestColorPrinterStillCarriesText(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := newSummary(t, model.RunSuccess, model.StepResult{StepName: "dcvserver", Outcome: model.OutcomeApplied, Attempts: 1})
	require.NoError(t, NewPrinter(&out, WithColor(true)).Summary(s))
	require.Contains(t, out.String(), "dcvserver")
}
