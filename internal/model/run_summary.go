package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RunOutcome is the overall result of an executor run.
type RunOutcome string

const (
	RunSuccess RunOutcome = "success"
	RunAborted RunOutcome = "aborted"
)

// RunState tracks where a run is in its lifecycle.
type RunState string

const (
	RunNotStarted    RunState = "not_started"
	RunGateEvaluated RunState = "gate_evaluated"
	RunSkipped       RunState = "skipped"
	RunRunning       RunState = "running"
	RunSucceeded     RunState = "success"
	RunAbortedState  RunState = "aborted"
)

var runTransitions = map[RunState][]RunState{
	RunNotStarted:    {RunGateEvaluated},
	RunGateEvaluated: {RunSkipped, RunRunning},
	RunRunning:       {RunSucceeded, RunAbortedState},
}

// Terminal reports whether no transition leaves s.
func (s RunState) Terminal() bool {
	return s == RunSkipped || s == RunSucceeded || s == RunAbortedState
}

// CanTransition reports whether moving from s to next is allowed.
func (s RunState) CanTransition(next RunState) bool {
	for _, candidate := range runTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ErrSummaryFinalized is returned when a finalized summary is modified.
var ErrSummaryFinalized = errors.New("run summary is finalized")

// RunSummary is the ordered record of one executor run. It is appended to as
// steps finish and becomes immutable once finalized. Step results are only
// reachable through Results, which hands out a copy.
type RunSummary struct {
	RunID      string       `json:"run_id"`
	Recipe     string       `json:"recipe,omitempty"`
	State      RunState     `json:"state"`
	Outcome    RunOutcome   `json:"outcome,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitempty"`

	results   []StepResult
	finalized bool
}

// NewRunSummary creates a summary in the NotStarted state.
func NewRunSummary(runID, recipe string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		Recipe:    recipe,
		State:     RunNotStarted,
		results:   []StepResult{},
		StartedAt: startedAt,
	}
}

// Transition moves the run to next, enforcing the run state machine.
func (s *RunSummary) Transition(next RunState) error {
	if s.finalized {
		return ErrSummaryFinalized
	}
	if !s.State.CanTransition(next) {
		return fmt.Errorf("invalid run transition %s -> %s", s.State, next)
	}
	s.State = next
	return nil
}

// Append records a finished step.
func (s *RunSummary) Append(result StepResult) error {
	if s.finalized {
		return ErrSummaryFinalized
	}
	if s.State != RunRunning {
		return fmt.Errorf("cannot record step %q in state %s", result.StepName, s.State)
	}
	s.results = append(s.results, result)
	return nil
}

// Finalize moves the run to its terminal state and freezes it.
func (s *RunSummary) Finalize(outcome RunOutcome, finishedAt time.Time) error {
	if s.finalized {
		return ErrSummaryFinalized
	}

	var next RunState
	switch {
	case s.State == RunGateEvaluated && outcome == RunSuccess:
		next = RunSkipped
	case outcome == RunSuccess:
		next = RunSucceeded
	case outcome == RunAborted:
		next = RunAbortedState
	default:
		return fmt.Errorf("unknown run outcome %q", outcome)
	}

	if err := s.Transition(next); err != nil {
		return err
	}
	s.Outcome = outcome
	s.FinishedAt = finishedAt
	s.finalized = true
	return nil
}

// Results returns the step results in execution order. The slice is a copy.
func (s *RunSummary) Results() []StepResult {
	return append([]StepResult(nil), s.results...)
}

// Finalized reports whether the summary is frozen.
func (s *RunSummary) Finalized() bool {
	return s.finalized
}

// Skipped reports whether the gate prevented every step from running.
func (s *RunSummary) Skipped() bool {
	return s.State == RunSkipped
}

// Duration returns the wall time of a finished run.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Count returns how many results have the given outcome.
func (s *RunSummary) Count(outcome Outcome) int {
	n := 0
	for _, r := range s.results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// FailedStep returns the result that aborted the run, if any.
func (s *RunSummary) FailedStep() (StepResult, bool) {
	for _, r := range s.results {
		if r.Failed() {
			return r, true
		}
	}
	return StepResult{}, false
}

// Freeze marks a summary decoded from storage as finalized.
func (s *RunSummary) Freeze() {
	s.finalized = true
}

type runSummaryFields RunSummary

// MarshalJSON encodes the summary including its step results.
func (s RunSummary) MarshalJSON() ([]byte, error) {
	results := s.results
	if results == nil {
		results = []StepResult{}
	}
	return json.Marshal(struct {
		runSummaryFields
		Results []StepResult `json:"results"`
	}{runSummaryFields(s), results})
}

// UnmarshalJSON decodes a summary written by MarshalJSON.
func (s *RunSummary) UnmarshalJSON(data []byte) error {
	aux := struct {
		*runSummaryFields
		Results []StepResult `json:"results"`
	}{runSummaryFields: (*runSummaryFields)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.results = aux.Results
	return nil
}
