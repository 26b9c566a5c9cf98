// Package copyresource installs a fixed artifact at a destination path and
// enforces its owner, group and mode.
package copyresource

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/resources/filestate"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
)

// Step is a file_copy step. The source parameter is a path inside the
// artifact filesystem.
type Step struct {
	spec      resource.Spec
	files     system.Filesystem
	artifacts fs.FS
}

var _ resource.Step = (*Step)(nil)

// Factory returns the resource.Factory for file_copy steps.
func Factory(files system.Filesystem, artifacts fs.FS) resource.Factory {
	return func(spec resource.Spec) (resource.Step, error) {
		return New(spec, files, artifacts)
	}
}

// New builds a file_copy step.
func New(spec resource.Spec, files system.Filesystem, artifacts fs.FS) (*Step, error) {
	if spec.Param(resource.ParamSource) == "" {
		return nil, fmt.Errorf("parameter %s is required", resource.ParamSource)
	}
	if files == nil || artifacts == nil {
		return nil, fmt.Errorf("file_copy needs a filesystem and an artifact store")
	}
	return &Step{spec: spec, files: files, artifacts: artifacts}, nil
}

// Spec implements resource.Step.
func (s *Step) Spec() resource.Spec { return s.spec }

// Probe reads the artifact and compares it with the destination.
func (s *Step) Probe(ctx context.Context, a attrs.NodeAttributes) (*model.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}

	spec, err := s.spec.Resolve(a)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}
	source := strings.TrimPrefix(spec.Param(resource.ParamSource), "/")
	content, err := fs.ReadFile(s.artifacts, source)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, fmt.Errorf("read artifact: %w", err))
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

// Apply installs the artifact content captured by the probe.
func (s *Step) Apply(ctx context.Context, a attrs.NodeAttributes, eval *model.EvaluationResult) error {
	var plan *filestate.FilePlan
	if eval != nil {
		plan, _ = eval.InternalData.(*filestate.FilePlan)
	}
	if plan == nil {
		fresh, err := s.Probe(ctx, a)
		if err != nil {
			return resource.NewApplyError(s.spec.Name, err)
		}
		plan = fresh.InternalData.(*filestate.FilePlan)
	}
	if err := plan.Apply(s.files); err != nil {
		return resource.NewApplyError(s.spec.Name, err)
	}
	return nil
}
