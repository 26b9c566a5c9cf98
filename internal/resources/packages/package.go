// Package packageresource installs and upgrades OS packages.
package packageresource

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
)

// Step is a package step. The target is the package name; when the source
// parameter points at a local package file, the name carried by that file
// is what gets checked.
type Step struct {
	spec     resource.Spec
	packages system.PackageManager
}

var _ resource.Step = (*Step)(nil)

type plan struct {
	name      string
	source    string
	installed bool
}

// Factory returns the resource.Factory for package steps.
func Factory(packages system.PackageManager) resource.Factory {
	return func(spec resource.Spec) (resource.Step, error) {
		return New(spec, packages)
	}
}

// New builds a package step.
func New(spec resource.Spec, packages system.PackageManager) (*Step, error) {
	if packages == nil {
		return nil, fmt.Errorf("package needs a package manager")
	}
	return &Step{spec: spec, packages: packages}, nil
}

// Spec implements resource.Step.
func (s *Step) Spec() resource.Spec { return s.spec }

// Probe asks the package manager whether the package is installed and, for
// the upgraded state, whether an upgrade is pending.
func (s *Step) Probe(ctx context.Context, a attrs.NodeAttributes) (*model.EvaluationResult, error) {
	spec, err := s.spec.Resolve(a)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}

	p := &plan{name: spec.Target(), source: spec.Param(resource.ParamSource)}
	if p.source != "" {
		name, err := s.packages.ResolveName(ctx, p.source)
		if err != nil {
			return nil, resource.NewProbeError(s.spec.Name, err)
		}
		p.name = name
	}

	p.installed, err = s.packages.IsInstalled(ctx, p.name)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}

	var result *model.EvaluationResult
	switch {
	case !p.installed:
		result = model.NeedsAction(s.spec.Name, fmt.Sprintf("package %s is not installed", p.name))
	case s.spec.State == resource.StateUpgraded:
		pending, err := s.packages.UpgradeAvailable(ctx, p.name)
		if err != nil {
			return nil, resource.NewProbeError(s.spec.Name, err)
		}
		if pending {
			result = model.NeedsAction(s.spec.Name, fmt.Sprintf("package %s has an upgrade available", p.name))
		} else {
			result = model.Satisfied(s.spec.Name, fmt.Sprintf("package %s is up to date", p.name))
		}
	default:
		result = model.Satisfied(s.spec.Name, fmt.Sprintf("package %s is installed", p.name))
	}
	result.InternalData = p
	return result, nil
}

// Apply installs a missing package, or upgrades an installed one.
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

	var err error
	if p.installed && s.spec.State == resource.StateUpgraded {
		err = s.packages.Upgrade(ctx, p.name, p.source)
	} else {
		err = s.packages.Install(ctx, p.name, p.source)
	}
	if err != nil {
		return resource.NewApplyError(s.spec.Name, fmt.Errorf("package %s: %w", p.name, err))
	}
	return nil
}
