package model

// EvaluationResult contains the result of probing a step's current state
// against its desired state. It is returned by Step.Probe and passed to
// Step.Apply when action is required.
type EvaluationResult struct {
	// StepName is the name of the probed step.
	StepName string

	// RequiresAction is false when the resource is already in the desired state.
	RequiresAction bool

	// Message is a human-readable description of what the probe found.
	Message string

	// Diff optionally shows what Apply would change.
	Diff string

	// InternalData is opaque data passed from Probe to Apply to avoid
	// recomputation.
	InternalData any
}

// Satisfied builds a result for a resource that needs no action.
func Satisfied(step, message string) *EvaluationResult {
	return &EvaluationResult{StepName: step, Message: message}
}

// NeedsAction builds a result for a resource that must be changed.
func NeedsAction(step, message string) *EvaluationResult {
	return &EvaluationResult{StepName: step, RequiresAction: true, Message: message}
}
