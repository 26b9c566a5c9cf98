// Package resource defines the probe-then-apply contract every provisioning
// step kind implements, the kind/state catalogue and the step error taxonomy.
package resource

import (
	"context"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
)

// Step is one declarative unit of desired state.
//
// Probe is STRICTLY READ-ONLY: it reports whether the resource already
// matches the desired state and must not mutate the system. Probe failures
// are returned as *ProbeError and never count as satisfied.
//
// Apply performs the mutating action exactly once. It is only called after a
// Probe that reported RequiresAction, and receives that probe's result.
// Failures are returned as *ApplyError.
//
// Retries are not a concern of the step: the executor owns the retry loop
// and consults Spec().Retries and Spec().RetryDelay.
type Step interface {
	Spec() Spec
	Probe(ctx context.Context, a attrs.NodeAttributes) (*model.EvaluationResult, error)
	Apply(ctx context.Context, a attrs.NodeAttributes, eval *model.EvaluationResult) error
}
