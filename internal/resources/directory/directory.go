// Package directoryresource ensures a directory exists with the requested
// owner, group and mode.
package directoryresource

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/resources/filestate"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
)

// defaultDirMode applies to created parents and to the directory itself when
// no mode is requested.
const defaultDirMode os.FileMode = 0o755

// Step is a directory step. The target is the directory path.
type Step struct {
	spec  resource.Spec
	files system.Filesystem
}

var _ resource.Step = (*Step)(nil)

type plan struct {
	path       string
	exists     bool
	recursive  bool
	attributes filestate.Attributes
}

// Factory returns the resource.Factory for directory steps.
func Factory(files system.Filesystem) resource.Factory {
	return func(spec resource.Spec) (resource.Step, error) {
		return New(spec, files)
	}
}

// New builds a directory step.
func New(spec resource.Spec, files system.Filesystem) (*Step, error) {
	if files == nil {
		return nil, fmt.Errorf("directory needs a filesystem")
	}
	if _, err := spec.Bool(resource.ParamRecursive, true); err != nil && !strings.Contains(spec.Param(resource.ParamRecursive), "{{") {
		return nil, err
	}
	return &Step{spec: spec, files: files}, nil
}

// Spec implements resource.Step.
func (s *Step) Spec() resource.Spec { return s.spec }

// Probe checks existence, type, ownership and mode of the directory.
func (s *Step) Probe(ctx context.Context, a attrs.NodeAttributes) (*model.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}

	spec, err := s.spec.Resolve(a)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}
	recursive, err := spec.Bool(resource.ParamRecursive, true)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}
	attributes, err := filestate.ParseAttributes(s.files, spec)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}

	path := spec.Target()
	info, err := s.files.Stat(path)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, fmt.Errorf("stat %s: %w", path, err))
	}
	if info.Exists && !info.IsDir {
		return nil, resource.NewProbeError(s.spec.Name, fmt.Errorf("%s exists and is not a directory", path))
	}

	p := &plan{path: path, exists: info.Exists, recursive: recursive, attributes: attributes}
	var result *model.EvaluationResult
	if !info.Exists {
		result = model.NeedsAction(s.spec.Name, fmt.Sprintf("directory %s does not exist", path))
	} else if drift := attributes.Drift(info); len(drift) > 0 {
		result = model.NeedsAction(s.spec.Name, fmt.Sprintf("directory %s: %s", path, strings.Join(drift, "; ")))
	} else {
		result = model.Satisfied(s.spec.Name, fmt.Sprintf("directory %s is up to date", path))
	}
	result.InternalData = p
	return result, nil
}

// Apply creates the directory when missing and enforces its attributes.
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

	if !p.exists {
		mode := defaultDirMode
		if p.attributes.HasMode {
			mode = p.attributes.Mode
		}
		var err error
		if p.recursive {
			err = s.files.MkdirAll(p.path, defaultDirMode)
		} else {
			err = s.files.Mkdir(p.path, mode)
		}
		if err != nil {
			return resource.NewApplyError(s.spec.Name, fmt.Errorf("create %s: %w", p.path, err))
		}
	}
	if err := p.attributes.Enforce(s.files, p.path); err != nil {
		return resource.NewApplyError(s.spec.Name, err)
	}
	return nil
}
