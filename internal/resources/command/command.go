// Package commandresource runs shell commands as a given user. An executed
// command is guarded by creates, unless or a run marker so it runs once; a
// succeeds command is a check that holds once the command exits zero.
package commandresource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
)

// markerDir is the directory under the state dir that holds run markers.
const markerDir = "commands"

// Step is a command step. The command parameter holds the shell text and
// defaults to the step name.
type Step struct {
	spec     resource.Spec
	runner   system.Runner
	files    system.Filesystem
	stateDir string
}

var _ resource.Step = (*Step)(nil)

type invocation struct {
	cmd    system.Cmd
	text   string
	user   string
	marker string
}

// Factory returns the resource.Factory for command steps.
func Factory(runner system.Runner, files system.Filesystem, stateDir string) resource.Factory {
	return func(spec resource.Spec) (resource.Step, error) {
		return New(spec, runner, files, stateDir)
	}
}

// New builds a command step.
func New(spec resource.Spec, runner system.Runner, files system.Filesystem, stateDir string) (*Step, error) {
	if runner == nil {
		return nil, fmt.Errorf("command needs a process runner")
	}
	if spec.State == resource.StateExecuted && (files == nil || stateDir == "") {
		return nil, fmt.Errorf("executed commands need a filesystem and a state directory")
	}
	return &Step{spec: spec, runner: runner, files: files, stateDir: stateDir}, nil
}

// Spec implements resource.Step.
func (s *Step) Spec() resource.Spec { return s.spec }

// MarkerPath returns where the run marker for command text run as user is
// kept.
func MarkerPath(stateDir, user, text string) string {
	sum := sha256.Sum256([]byte(user + "\x00" + text))
	return filepath.Join(stateDir, markerDir, hex.EncodeToString(sum[:]))
}

func (s *Step) invocation(a attrs.NodeAttributes) (*invocation, resource.Spec, error) {
	spec, err := s.spec.Resolve(a)
	if err != nil {
		return nil, spec, err
	}
	text := spec.ParamOr(resource.ParamCommand, spec.Name)
	user := spec.Param(resource.ParamUser)
	inv := &invocation{
		cmd:  system.Cmd{Argv: system.Shell(text), User: user, Dir: spec.Param(resource.ParamCwd)},
		text: text,
		user: user,
	}
	if s.stateDir != "" {
		inv.marker = MarkerPath(s.stateDir, user, text)
	}
	return inv, spec, nil
}

// Probe reports whether the command still has to run.
func (s *Step) Probe(ctx context.Context, a attrs.NodeAttributes) (*model.EvaluationResult, error) {
	inv, spec, err := s.invocation(a)
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}

	var result *model.EvaluationResult
	if s.spec.State == resource.StateSucceeds {
		result, err = s.probeSucceeds(ctx, inv)
	} else {
		result, err = s.probeExecuted(ctx, inv, spec)
	}
	if err != nil {
		return nil, resource.NewProbeError(s.spec.Name, err)
	}
	result.InternalData = inv
	return result, nil
}

func (s *Step) probeSucceeds(ctx context.Context, inv *invocation) (*model.EvaluationResult, error) {
	res, err := s.runner.Run(ctx, inv.cmd)
	if err == nil {
		return model.Satisfied(s.spec.Name, fmt.Sprintf("%q exits 0", inv.text)), nil
	}
	if system.IsExitError(err) {
		return model.NeedsAction(s.spec.Name, fmt.Sprintf("%q exited with status %d", inv.text, res.ExitCode)), nil
	}
	return nil, err
}

func (s *Step) probeExecuted(ctx context.Context, inv *invocation, spec resource.Spec) (*model.EvaluationResult, error) {
	if creates := spec.Param(resource.ParamCreates); creates != "" {
		info, err := s.files.Stat(creates)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", creates, err)
		}
		if info.Exists {
			return model.Satisfied(s.spec.Name, fmt.Sprintf("%s already exists", creates)), nil
		}
	}

	if unless := spec.Param(resource.ParamUnless); unless != "" {
		guard := system.Cmd{Argv: system.Shell(unless), User: inv.user, Dir: inv.cmd.Dir}
		_, err := s.runner.Run(ctx, guard)
		if err == nil {
			return model.Satisfied(s.spec.Name, fmt.Sprintf("guard %q exits 0", unless)), nil
		}
		if !system.IsExitError(err) {
			return nil, fmt.Errorf("guard %q: %w", unless, err)
		}
	}

	info, err := s.files.Stat(inv.marker)
	if err != nil {
		return nil, fmt.Errorf("stat run marker: %w", err)
	}
	if info.Exists {
		return model.Satisfied(s.spec.Name, fmt.Sprintf("%q already ran", inv.text)), nil
	}
	return model.NeedsAction(s.spec.Name, fmt.Sprintf("%q has not run", inv.text)), nil
}

// Apply runs the command once. Executed commands leave a run marker behind.
func (s *Step) Apply(ctx context.Context, a attrs.NodeAttributes, eval *model.EvaluationResult) error {
	var inv *invocation
	if eval != nil {
		inv, _ = eval.InternalData.(*invocation)
	}
	if inv == nil {
		var err error
		inv, _, err = s.invocation(a)
		if err != nil {
			return resource.NewApplyError(s.spec.Name, err)
		}
	}

	if _, err := s.runner.Run(ctx, inv.cmd); err != nil {
		return resource.NewApplyError(s.spec.Name, err)
	}
	if s.spec.State != resource.StateExecuted {
		return nil
	}

	if err := s.files.MkdirAll(filepath.Dir(inv.marker), 0o700); err != nil {
		return resource.NewApplyError(s.spec.Name, fmt.Errorf("record run marker: %w", err))
	}
	if err := s.files.WriteFile(inv.marker, []byte(inv.text+"\n"), 0o600); err != nil {
		return resource.NewApplyError(s.spec.Name, fmt.Errorf("record run marker: %w", err))
	}
	return nil
}
