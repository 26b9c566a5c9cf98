package system

import (
	"bytes"
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dcvprov/internal/logger"
)

func TestExecRunner_CapturesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	t.Parallel()

	var streamed bytes.Buffer
	runner := NewExecRunner(logger.Nop())
	runner.Stdout = &streamed

	res, err := runner.Run(context.Background(), Cmd{Argv: Shell("echo hello; echo oops >&2")})
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "hello", res.Stdout)
	require.Equal(t, "oops", res.Stderr)
	require.Equal(t, "hello\n", streamed.String())
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	t.Parallel()

	res, err := NewExecRunner(logger.Nop()).Run(context.Background(), Cmd{Argv: Shell("echo broken >&2; exit 3")})
	require.Error(t, err)
	require.True(t, IsExitError(err))
	require.Equal(t, 3, res.ExitCode)
	require.Contains(t, err.Error(), "exited with status 3: broken")
}

func TestExecRunner_WorkingDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	t.Parallel()

	dir := t.TempDir()
	res, err := NewExecRunner(logger.Nop()).Run(context.Background(), Cmd{Argv: Shell("pwd -P"), Dir: dir})
	require.NoError(t, err)
	require.NotEmpty(t, res.Stdout)
}

func TestExecRunner_MissingBinaryIsNotExitError(t *testing.T) {
	t.Parallel()

	_, err := NewExecRunner(logger.Nop()).Run(context.Background(), Cmd{Argv: []string{"/nonexistent/dcvprov-binary"}})
	require.Error(t, err)
	require.False(t, IsExitError(err))
}

func TestExecRunner_EmptyCommand(t *testing.T) {
	t.Parallel()

	_, err := NewExecRunner(logger.Nop()).Run(context.Background(), Cmd{})
	require.Error(t, err)
}

func TestResultOutputPrefersStderr(t *testing.T) {
	t.Parallel()

	require.Equal(t, "err", Result{Stdout: "out", Stderr: "err"}.Output())
	require.Equal(t, "out", Result{Stdout: "out"}.Output())
}
