package model

import (
	"time"
)

// Outcome is the result of applying one provisioning step.
type Outcome string

const (
	// OutcomeApplied means the step changed the system.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadySatisfied means the probe found nothing to do.
	OutcomeAlreadySatisfied Outcome = "already_satisfied"
	// OutcomeFailed means the step could not reach its desired state.
	OutcomeFailed Outcome = "failed"
)

// IsValid reports whether o is a known outcome.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeApplied, OutcomeAlreadySatisfied, OutcomeFailed:
		return true
	}
	return false
}

// StepResult records the outcome of one step. It is never mutated after the
// executor creates it.
type StepResult struct {
	StepName  string        `json:"step_name"`
	Kind      string        `json:"kind"`
	Outcome   Outcome       `json:"outcome"`
	Attempts  int           `json:"attempts"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Failed reports whether the step failed.
func (r StepResult) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// Changed reports whether the step mutated the system.
func (r StepResult) Changed() bool {
	return r.Outcome == OutcomeApplied
}
