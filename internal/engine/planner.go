package engine

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/gate"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
)

// PlannedStep is what a single probe found, without applying anything.
type PlannedStep struct {
	StepName       string `json:"step_name"`
	Kind           string `json:"kind"`
	RequiresAction bool   `json:"requires_action"`
	Message        string `json:"message,omitempty"`
	Diff           string `json:"diff,omitempty"`
	// Error is set when the probe could not determine the state, which is
	// expected for steps depending on earlier, not yet applied ones.
	Error string `json:"error,omitempty"`
}

// Preview is the read-only counterpart of a run.
type Preview struct {
	GateOpen bool          `json:"gate_open"`
	Steps    []PlannedStep `json:"steps"`
}

// Pending counts the steps that would change the system or could not be
// probed.
func (p *Preview) Pending() int {
	n := 0
	for _, s := range p.Steps {
		if s.RequiresAction || s.Error != "" {
			n++
		}
	}
	return n
}

// Plan validates the steps, evaluates the gate and probes every step once in
// order. Nothing is applied and probe failures are recorded, not fatal.
func (e *Executor) Plan(ctx context.Context, g gate.Gate, steps []resource.Step, a attrs.NodeAttributes) (*Preview, error) {
	if err := Validate(steps); err != nil {
		return nil, err
	}
	if g == nil {
		g = gate.Always
	}

	preview := &Preview{GateOpen: g.Evaluate(a), Steps: []PlannedStep{}}
	if !preview.GateOpen {
		return preview, nil
	}

	for _, step := range steps {
		preview.Steps = append(preview.Steps, e.probeOnly(ctx, step, a))
	}
	return preview, nil
}

func (e *Executor) probeOnly(ctx context.Context, step resource.Step, a attrs.NodeAttributes) (planned PlannedStep) {
	spec := step.Spec()
	planned = PlannedStep{StepName: spec.Name, Kind: string(spec.Kind)}
	defer func() {
		if r := recover(); r != nil {
			planned.Error = resource.NewProbeError(spec.Name, fmt.Errorf("panic: %v", r)).Error()
		}
	}()

	eval, err := step.Probe(ctx, a)
	switch {
	case err != nil:
		planned.Error = err.Error()
		e.logger.WithFields(map[string]any{"step": spec.Name, "error": err.Error()}).Debug("probe failed during plan")
	case eval == nil:
		planned.Error = resource.NewProbeError(spec.Name, fmt.Errorf("probe returned no result")).Error()
	default:
		planned.RequiresAction = eval.RequiresAction
		planned.Message = eval.Message
		planned.Diff = eval.Diff
	}
	return planned
}
