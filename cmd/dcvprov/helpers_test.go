package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/config"
	"github.com/alexisbeaulieu97/dcvprov/internal/logger"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
	"github.com/alexisbeaulieu97/dcvprov/internal/system/systemtest"
)

const headNodeAttrs = `role: MasterServer
file_cache_path: /var/cache/chef
dcv:
  version: "2019.1"
  gl_package: nice-dcv-gl-2019.1.x86_64.rpm
  ext_auth_user: dcvextauth
  ext_auth_user_home: /home/dcvextauth
  ext_auth_certificate: /CN=localhost
  ext_auth_port: 8444
`

type fakeHost struct {
	packages *systemtest.Packages
	services *systemtest.Services
	runner   *systemtest.Runner
	files    *systemtest.MemFS
}

// useFakeHost routes every command through in-memory collaborators.
func useFakeHost(t *testing.T) *fakeHost {
	t.Helper()

	h := &fakeHost{
		packages: systemtest.NewPackages(),
		services: systemtest.NewServices(),
		runner:   systemtest.NewRunner(),
		files:    systemtest.NewMemFS(),
	}
	h.packages.AddArtifact("/var/cache/chef/nice-dcv-2019.1-el7/nice-dcv-gl-2019.1.x86_64.rpm", "nice-dcv-gl")
	h.files.AddUser("dcvextauth", 1001, 1001)
	for _, dir := range []string{"/etc/parallelcluster", "/etc/dcv", "/home/dcvextauth"} {
		require.NoError(t, h.files.MkdirAll(dir, 0o755))
	}

	origHost, origSleeper := newHostSystem, sleeper
	newHostSystem = func(config.Settings, attrs.NodeAttributes, *logger.Logger) (hostSystem, error) {
		return hostSystem{Packages: h.packages, Services: h.services, Runner: h.runner, Files: h.files}, nil
	}
	sleeper = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() {
		newHostSystem, sleeper = origHost, origSleeper
	})
	return h
}

// xStartsAfterLaunch makes pidof X succeed once X has been launched.
func (h *fakeHost) xStartsAfterLaunch() {
	launched := false
	h.runner.On("isolate graphical.target", func(cmd system.Cmd) (system.Result, error) {
		launched = true
		return systemtest.Exit(cmd, 0, "")
	})
	h.runner.On("pidof X", func(cmd system.Cmd) (system.Result, error) {
		if launched {
			return systemtest.Exit(cmd, 0, "4242")
		}
		return systemtest.Exit(cmd, 1, "")
	})
}

type workspace struct {
	dir     string
	history string
	metrics string
}

// newWorkspace writes settings, os-release and node attributes into a temp
// dir and returns the flags pointing at them.
func newWorkspace(t *testing.T) (workspace, []string) {
	t.Helper()

	dir := t.TempDir()
	ws := workspace{
		dir:     dir,
		history: filepath.Join(dir, "state", "history.db"),
		metrics: filepath.Join(dir, "dcvprov.prom"),
	}
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	settings := write("config.yaml", "# defaults\n")
	osRelease := write("os-release", "NAME=\"CentOS Linux\"\nID=\"centos\"\nVERSION_ID=\"7\"\n")
	write("attrs.yaml", headNodeAttrs)

	return ws, []string{
		"--config", settings,
		"--os-release", osRelease,
		"--state-dir", filepath.Join(dir, "state"),
		"--history", ws.history,
	}
}

func (w workspace) attrs() string {
	return filepath.Join(w.dir, "attrs.yaml")
}

func executeCommand(args ...string) (string, error) {
	root := newRootCmd()
	root.SetArgs(args)
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	return out.String(), err
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
