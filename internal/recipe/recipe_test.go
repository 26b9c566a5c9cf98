package recipe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/engine"
	"github.com/alexisbeaulieu97/dcvprov/internal/logger"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/resources"
	"github.com/alexisbeaulieu97/dcvprov/internal/resources/command"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
	"github.com/alexisbeaulieu97/dcvprov/internal/system/systemtest"
)

const glSource = "/var/cache/chef/nice-dcv-2019.1-el7/nice-dcv-gl-2019.1.x86_64.rpm"

type node struct {
	packages *systemtest.Packages
	services *systemtest.Services
	runner   *systemtest.Runner
	files    *systemtest.MemFS
	registry *resource.Registry
}

func newNode(t *testing.T) *node {
	t.Helper()

	n := &node{
		packages: systemtest.NewPackages(),
		services: systemtest.NewServices(),
		runner:   systemtest.NewRunner(),
		files:    systemtest.NewMemFS(),
	}
	n.packages.AddArtifact(glSource, "nice-dcv-gl")
	n.files.AddUser("dcvextauth", 1001, 1001)
	for _, dir := range []string{"/etc/parallelcluster", "/etc/dcv", "/home/dcvextauth"} {
		require.NoError(t, n.files.MkdirAll(dir, 0o755))
	}

	// X shows up one query after it was launched.
	launched := false
	queries := 0
	n.runner.On("isolate graphical.target", func(cmd system.Cmd) (system.Result, error) {
		launched = true
		return systemtest.Exit(cmd, 0, "")
	})
	n.runner.On("pidof X", func(cmd system.Cmd) (system.Result, error) {
		if launched {
			queries++
			if queries > 1 {
				return systemtest.Exit(cmd, 0, "4242")
			}
		}
		return systemtest.Exit(cmd, 1, "")
	})

	reg, err := resources.NewRegistry(resources.Dependencies{
		Packages:  n.packages,
		Services:  n.services,
		Runner:    n.runner,
		Files:     n.files,
		Renderer:  system.NewTemplateRenderer(Templates()),
		Artifacts: Files(),
		StateDir:  "/var/lib/dcvprov",
	})
	require.NoError(t, err)
	n.registry = reg
	return n
}

func headNode(graphics bool) attrs.NodeAttributes {
	return attrs.NewBuilder().
		Set(attrs.KeyPlatform, "centos").
		Set(attrs.KeyPlatformVersion, "7.6.1810").
		Set(attrs.KeyRole, "MasterServer").
		Set(attrs.KeyInstanceType, "g3.4xlarge").
		SetGraphics(graphics).
		Set("file_cache_path", "/var/cache/chef").
		Set("dcv.version", "2019.1").
		Set("dcv.gl_package", "nice-dcv-gl-2019.1.x86_64.rpm").
		Set("dcv.ext_auth_user", "dcvextauth").
		Set("dcv.ext_auth_user_home", "/home/dcvextauth").
		Set("dcv.ext_auth_certificate", "/CN=localhost").
		Set("dcv.ext_auth_port", "8444").
		Build()
}

func run(t *testing.T, n *node, a attrs.NodeAttributes) (*model.RunSummary, error) {
	t.Helper()

	r, err := Builtin(DefaultName)
	require.NoError(t, err)
	plan, err := Compile(r, a, n.registry)
	require.NoError(t, err)

	exec := engine.NewExecutor(logger.Nop(),
		engine.WithRecipeName(plan.Recipe),
		engine.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	return exec.Run(context.Background(), plan.Gate, plan.Steps, a)
}

func TestHeadNode_FirstRunAppliesEverythingThenIsIdempotent(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	a := headNode(true)

	summary, err := run(t, n, a)
	require.NoError(t, err)
	require.Equal(t, model.RunSuccess, summary.Outcome)

	wantOrder := []string{
		"install xorg server",
		"set up Nvidia drivers for X configuration",
		"install dcv gl",
		"launch X",
		"wait for X to start",
		"/etc/parallelcluster/generate_certificate.sh",
		"certificate generation",
		"/etc/dcv/dcv.conf",
		"/var/spool/dcv_ext_auth",
		"/var/log/parallelcluster/",
		"install dcv external authenticator",
		"dcvserver",
	}
	var got []string
	for _, r := range summary.Results() {
		got = append(got, r.StepName)
		require.Equal(t, model.OutcomeApplied, r.Outcome, "%s: %s", r.StepName, r.Error)
	}
	require.Equal(t, wantOrder, got)

	require.True(t, n.packages.Installed("xorg-x11-server-Xorg"))
	require.True(t, n.packages.Installed("nice-dcv-gl"))
	active, enabled := n.services.State("dcvserver")
	require.True(t, active)
	require.True(t, enabled)

	conf, err := n.files.ReadFile("/etc/dcv/dcv.conf")
	require.NoError(t, err)
	require.Contains(t, string(conf), `auth-token-verifier="https://localhost:8444"`)
	require.NotContains(t, string(conf), "virtual-session-xdcv-args")

	spool, err := n.files.Stat("/var/spool/dcv_ext_auth")
	require.NoError(t, err)
	require.Equal(t, 1001, spool.UID)
	require.Equal(t, "1733", resource.FormatMode(spool.Mode))

	authenticator, err := n.files.Stat("/home/dcvextauth/pcluster_dcv_ext_auth.py")
	require.NoError(t, err)
	require.Equal(t, 1001, authenticator.UID)

	require.Equal(t, 1, n.runner.CountContaining(`generate_certificate.sh "/CN=localhost" dcvextauth dcv`))
	marker := commandresource.MarkerPath("/var/lib/dcvprov", "root", `/etc/parallelcluster/generate_certificate.sh "/CN=localhost" dcvextauth dcv`)
	info, err := n.files.Stat(marker)
	require.NoError(t, err)
	require.True(t, info.Exists)

	summary, err = run(t, n, a)
	require.NoError(t, err)
	require.Len(t, summary.Results(), len(wantOrder))
	for _, r := range summary.Results() {
		require.Equal(t, model.OutcomeAlreadySatisfied, r.Outcome, r.StepName)
	}
	require.Equal(t, 1, n.runner.CountContaining("nvidia-xconfig"))
	require.Equal(t, 1, n.runner.CountContaining("generate_certificate.sh"))
}

func TestHeadNode_WithoutGraphicsSkipsGPUGroup(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	a := headNode(false)

	r, err := Builtin(DefaultName)
	require.NoError(t, err)
	plan, err := Compile(r, a, n.registry)
	require.NoError(t, err)
	require.Equal(t, []string{
		"install xorg server",
		"set up Nvidia drivers for X configuration",
		"install dcv gl",
		"launch X",
		"wait for X to start",
	}, plan.Excluded)
	require.Len(t, plan.Steps, 7)

	summary, err := run(t, n, a)
	require.NoError(t, err)
	require.Len(t, summary.Results(), 7)
	require.Zero(t, n.runner.CountContaining("pidof X"))

	conf, err := n.files.ReadFile("/etc/dcv/dcv.conf")
	require.NoError(t, err)
	require.Contains(t, string(conf), `virtual-session-xdcv-args="-listen tcp"`)
}

func TestHeadNode_ComputeFleetIsEmptySuccess(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	a := attrs.NewBuilder().
		Set(attrs.KeyPlatform, "centos").
		Set(attrs.KeyPlatformVersion, "7").
		Set(attrs.KeyRole, "ComputeFleet").
		Build()

	summary, err := run(t, n, a)
	require.NoError(t, err)
	require.Equal(t, model.RunSuccess, summary.Outcome)
	require.True(t, summary.Skipped())
	require.Empty(t, summary.Results())
	require.Empty(t, n.runner.Calls())
	require.Empty(t, n.packages.Installs)
}

func TestHeadNode_WaitForXExhaustsRetries(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	n.runner.Fail("pidof X", 1)

	summary, err := run(t, n, headNode(true))
	require.Error(t, err)
	require.Equal(t, model.RunAborted, summary.Outcome)

	failed, ok := summary.FailedStep()
	require.True(t, ok)
	require.Equal(t, "wait for X to start", failed.StepName)
	require.Equal(t, 6, failed.Attempts)
	require.Len(t, summary.Results(), 5)

	var exhausted *resource.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	active, _ := n.services.State("dcvserver")
	require.False(t, active)
}

func TestBuiltin(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"dcv-head-node"}, BuiltinNames())

	r, err := Builtin("dcv-head-node")
	require.NoError(t, err)
	require.Len(t, r.Steps, 12)
	require.True(t, strings.Contains(r.Gate, `role == "MasterServer"`))

	_, err = Builtin("nope")
	require.ErrorContains(t, err, "dcv-head-node")
}

func TestLoad(t *testing.T) {
	t.Parallel()

	r, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultName, r.Name)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: custom\nsteps:\n  - name: dcvserver\n    kind: service\n    state: stopped\n"), 0o600))
	r, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, "custom", r.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestCompile_InvalidExcludedStepStillFails(t *testing.T) {
	t.Parallel()

	n := newNode(t)
	r, err := Builtin(DefaultName)
	require.NoError(t, err)
	r.Steps[0].State = "running"

	_, err = Compile(r, headNode(false), n.registry)
	var validationErr *resource.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "install xorg server", validationErr.StepName())
}
