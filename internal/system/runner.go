package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/alexisbeaulieu97/dcvprov/internal/logger"
)

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Argv   []string
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", strings.Join(e.Argv, " "), e.Code)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

// IsExitError reports whether err is a non-zero exit rather than a failure
// to run the process at all.
func IsExitError(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// ExecRunner runs processes with os/exec, streaming their output to Stdout
// and Stderr while also capturing it.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	Log    *logger.Logger
}

// NewExecRunner returns a runner that discards process output after capture.
func NewExecRunner(log *logger.Logger) *ExecRunner {
	return &ExecRunner{Stdout: io.Discard, Stderr: io.Discard, Log: log}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c Cmd) (Result, error) {
	if len(c.Argv) == 0 {
		return Result{}, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	if err := setCredential(cmd, c.User); err != nil {
		return Result{}, err
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = io.MultiWriter(writerOrDiscard(r.Stdout), &stdoutBuf)
	cmd.Stderr = io.MultiWriter(writerOrDiscard(r.Stderr), &stderrBuf)

	r.Log.WithFields(map[string]any{"argv": c.Argv, "user": c.User}).Debug("running command")
	err := cmd.Run()

	res := Result{
		Stdout: strings.TrimSpace(stdoutBuf.String()),
		Stderr: strings.TrimSpace(stderrBuf.String()),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Argv: c.Argv, Code: res.ExitCode, Output: res.Output()}
		}
		res.ExitCode = -1
		return res, fmt.Errorf("run %s: %w", c.Argv[0], err)
	}
	return res, nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// Shell wraps a shell snippet into argv for /bin/sh.
func Shell(script string) []string {
	return []string{"/bin/sh", "-c", script}
}
