// Package engine executes provisioning steps: gate evaluation, the
// probe-then-apply retry loop and fail-fast run aborts.
package engine

import (
	"time"

	"github.com/alexisbeaulieu97/dcvprov/internal/model"
)

// Observer is notified as a run progresses. Observers are called
// synchronously from the executor and must not block for long.
type Observer interface {
	RunStarted(runID, recipe string, startedAt time.Time)
	StepFinished(runID string, result model.StepResult)
	// RunFinished receives the finalized summary.
	RunFinished(summary *model.RunSummary)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	OnRunStarted   func(runID, recipe string, startedAt time.Time)
	OnStepFinished func(runID string, result model.StepResult)
	OnRunFinished  func(summary *model.RunSummary)
}

var _ Observer = ObserverFuncs{}

// RunStarted implements Observer.
func (f ObserverFuncs) RunStarted(runID, recipe string, startedAt time.Time) {
	if f.OnRunStarted != nil {
		f.OnRunStarted(runID, recipe, startedAt)
	}
}

// StepFinished implements Observer.
func (f ObserverFuncs) StepFinished(runID string, result model.StepResult) {
	if f.OnStepFinished != nil {
		f.OnStepFinished(runID, result)
	}
}

// RunFinished implements Observer.
func (f ObserverFuncs) RunFinished(summary *model.RunSummary) {
	if f.OnRunFinished != nil {
		f.OnRunFinished(summary)
	}
}
