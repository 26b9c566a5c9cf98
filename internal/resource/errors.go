package resource

import (
	"errors"
	"fmt"
)

// StepError is the base interface of every error a step reports. It lets the
// executor attribute a failure to a step without inspecting causes.
type StepError interface {
	error
	StepName() string
	Unwrap() error
}

// ValidationError reports an unrecognized kind/state combination or a
// malformed parameter. It is raised before any step runs.
type ValidationError struct {
	Step string
	Err  error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(step string, err error) *ValidationError {
	return &ValidationError{Step: step, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return "invalid step " + quote(e.Step)
	}
	return "invalid step " + quote(e.Step) + ": " + e.Err.Error()
}

// StepName returns the name of the offending step.
func (e *ValidationError) StepName() string { return e.Step }

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error { return e.Err }

// ProbeError reports that the current state could not be determined.
type ProbeError struct {
	Step string
	Err  error
}

// NewProbeError creates a new ProbeError.
func NewProbeError(step string, err error) *ProbeError {
	return &ProbeError{Step: step, Err: err}
}

func (e *ProbeError) Error() string {
	if e.Err == nil {
		return "probe failed for step " + quote(e.Step)
	}
	return "probe failed for step " + quote(e.Step) + ": " + e.Err.Error()
}

// StepName returns the name of the step whose probe failed.
func (e *ProbeError) StepName() string { return e.Step }

// Unwrap returns the underlying cause.
func (e *ProbeError) Unwrap() error { return e.Err }

// ApplyError reports that the mutating action failed.
type ApplyError struct {
	Step string
	Err  error
}

// NewApplyError creates a new ApplyError.
func NewApplyError(step string, err error) *ApplyError {
	return &ApplyError{Step: step, Err: err}
}

func (e *ApplyError) Error() string {
	if e.Err == nil {
		return "apply failed for step " + quote(e.Step)
	}
	return "apply failed for step " + quote(e.Step) + ": " + e.Err.Error()
}

// StepName returns the name of the step whose action failed.
func (e *ApplyError) StepName() string { return e.Step }

// Unwrap returns the underlying cause.
func (e *ApplyError) Unwrap() error { return e.Err }

// RetryExhaustedError wraps the last failure of a step that used up its
// attempt budget.
type RetryExhaustedError struct {
	Step     string
	Attempts int
	Err      error
}

// NewRetryExhaustedError creates a new RetryExhaustedError.
func NewRetryExhaustedError(step string, attempts int, err error) *RetryExhaustedError {
	return &RetryExhaustedError{Step: step, Attempts: attempts, Err: err}
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("step %s still failing after %d attempts: %v", quote(e.Step), e.Attempts, e.Err)
}

// StepName returns the name of the exhausted step.
func (e *RetryExhaustedError) StepName() string { return e.Step }

// Unwrap returns the last failure.
func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// AsStepError extracts the StepError in err's chain.
func AsStepError(err error) (StepError, bool) {
	var stepErr StepError
	if errors.As(err, &stepErr) {
		return stepErr, true
	}
	return nil, false
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
