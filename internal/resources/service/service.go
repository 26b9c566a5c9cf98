// Package serviceresource converges the runtime and boot state of a service
// unit.
package serviceresource

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
)

// Step is a service step. The target is the unit name.
type Step struct {
	spec     resource.Spec
	services system.ServiceManager
}

var _ resource.Step = (*Step)(nil)

type plan struct {
	unit         string
	wantActive   bool
	wantEnabled  bool
	activeOK     bool
	enablementOK bool
}

// Factory returns the resource.Factory for service steps.
func Factory(services system.ServiceManager) resource.Factory {
	return func(spec resource.Spec) (resource.Step, error) {
		return New(spec, services)
	}
}

// New builds a service step.
func New(spec resource.Spec, services system.ServiceManager) (*Step, error) {
	if services == nil {
		return nil, fmt.Errorf("service needs a service manager")
	}
	if raw := spec.Param(resource.ParamEnabled); !strings.Contains(raw, "{{") {
		if _, err := spec.Bool(resource.ParamEnabled, false); err != nil {
			return nil, err
		}
	}
	return &Step{spec: spec, services: services}, nil
}

// Spec implements resource.Step.
func (s *Step) Spec() resource.Spec { return s.spec }

// Probe compares the unit's active and enabled state with the desired ones.
// Running units default to enabled and stopped units to disabled.
func (s *Step) Probe(ctx context.Context, a attrs.NodeAttributes) (*model.EvaluationResult, error) {
	spec, err := s.spec.Resolve(a)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}

	p := &plan{unit: spec.Target(), wantActive: s.spec.State == resource.StateRunning}
	p.wantEnabled, err = spec.Bool(resource.ParamEnabled, p.wantActive)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}

	active, err := s.services.IsActive(ctx, p.unit)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}
	enabled, err := s.services.IsEnabled(ctx, p.unit)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}
	p.activeOK = active == p.wantActive
	p.enablementOK = enabled == p.wantEnabled

	var result *model.EvaluationResult
	if p.activeOK && p.enablementOK {
		result = model.Satisfied(s.spec.Name, fmt.Sprintf("service %s is %s and %s", p.unit, describeActive(active), describeEnabled(enabled)))
	} else {
		result = model.NeedsAction(s.spec.Name, fmt.Sprintf("service %s is %s and %s, want %s and %s",
			p.unit, describeActive(active), describeEnabled(enabled), describeActive(p.wantActive), describeEnabled(p.wantEnabled)))
	}
	result.InternalData = p
	return result, nil
}

// Apply fixes boot enablement first, then the runtime state.
func (s *Step) Apply(ctx context.Context, a attrs.NodeAttributes, eval *model.EvaluationResult) error {
	var p *plan
	if eval != nil {
		p, _ = eval.InternalData.(*plan)
	}
	if p == nil {
		fresh, err := s.Probe(ctx, a)
		if err != nil {
			return resource.NewApplyError(s.spec.Name, err)
		}
		p = fresh.InternalData.(*plan)
	}

	if !p.enablementOK {
		var err error
		if p.wantEnabled {
			err = s.services.Enable(ctx, p.unit)
		} else {
			err = s.services.Disable(ctx, p.unit)
		}
		if err != nil {
			return resource.NewApplyError(s.spec.Name, fmt.Errorf("set boot state of %s: %w", p.unit, err))
		}
	}
	if !p.activeOK {
		var err error
		if p.wantActive {
			err = s.services.Start(ctx, p.unit)
		} else {
			err = s.services.Stop(ctx, p.unit)
		}
		if err != nil {
			return resource.NewApplyError(s.spec.Name, fmt.Errorf("set runtime state of %s: %w", p.unit, err))
		}
	}
	return nil
}

func describeActive(active bool) string {
	if active {
		return "running"
	}
	return "stopped"
}

func describeEnabled(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
