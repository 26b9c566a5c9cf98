// Package templateresource renders a template with node attributes to a
// destination file and enforces its owner, group and mode.
package templateresource

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/resources/filestate"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
)

// Step is a file_template step. The target is the destination path and the
// source parameter names the template.
type Step struct {
	spec     resource.Spec
	files    system.Filesystem
	renderer system.Renderer
}

var _ resource.Step = (*Step)(nil)

// Factory returns the resource.Factory for file_template steps.
func Factory(files system.Filesystem, renderer system.Renderer) resource.Factory {
	return func(spec resource.Spec) (resource.Step, error) {
		return New(spec, files, renderer)
	}
}

// New builds a file_template step.
func New(spec resource.Spec, files system.Filesystem, renderer system.Renderer) (*Step, error) {
	if spec.Param(resource.ParamSource) == "" {
		return nil, fmt.Errorf("parameter %s is required", resource.ParamSource)
	}
	if files == nil || renderer == nil {
		return nil, fmt.Errorf("file_template needs a filesystem and a renderer")
	}
	return &Step{spec: spec, files: files, renderer: renderer}, nil
}

// Spec implements resource.Step.
func (s *Step) Spec() resource.Spec { return s.spec }

// Probe renders the template and compares it with the destination.
func (s *Step) Probe(ctx context.Context, a attrs.NodeAttributes) (*model.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}

	spec, err := s.spec.Resolve(a)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}
	content, err := s.renderer.Render(spec.Param(resource.ParamSource), a)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}
	attributes, err := filestate.ParseAttributes(s.files, spec)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}
	plan, err := filestate.PlanFile(s.files, spec.Target(), content, attributes)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}
	return plan.Evaluation(s.spec.Name), nil
}

// Apply writes the rendered content from the probe and fixes attributes.
func (s *Step) Apply(ctx context.Context, a attrs.NodeAttributes, eval *model.EvaluationResult) error {
	plan, ok := planFrom(eval)
	if !ok {
		fresh, err := s.Probe(ctx, a)
		if err != nil {
			return resource.NewApplyError(s.spec.Name, err)
		}
		plan, _ = planFrom(fresh)
	}
	if err := plan.Apply(s.files); err != nil {
		return resource.NewApplyError(s.spec.Name, err)
	}
	return nil
}

func planFrom(eval *model.EvaluationResult) (*filestate.FilePlan, bool) {
	if eval == nil {
		return nil, false
	}
	plan, ok := eval.InternalData.(*filestate.FilePlan)
	return plan, ok && plan != nil
}
