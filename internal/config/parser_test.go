package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	dcverrors "github.com/alexisbeaulieu97/dcvprov/pkg/errors"
)

const validRecipe = `name: dcv-head-node
description: configure DCV
gate: platform == "centos" && platform_major == 7 && role == "MasterServer"
steps:
  - name: install xorg
    kind: package
    state: installed
    when: graphics_instance
    params:
      target: xorg-x11-server-Xorg
  - name: wait for X to start
    kind: command
    state: succeeds
    retries: 5
    retry_delay: 5s
    params:
      command: pidof X
  - name: /var/spool/dcv_ext_auth
    kind: directory
    state: present
    params:
      owner: '{{ attr "dcv.ext_auth_user" }}'
      mode: "1733"
`

func TestParseRecipe(t *testing.T) {
	t.Parallel()

	r, err := ParseRecipe([]byte(validRecipe), "recipe.yaml")
	require.NoError(t, err)
	require.Equal(t, "dcv-head-node", r.Name)
	require.Len(t, r.Steps, 3)
	require.Equal(t, "graphics_instance", r.Steps[0].When)

	spec, err := r.Steps[1].ToSpec()
	require.NoError(t, err)
	require.Equal(t, resource.KindCommand, spec.Kind)
	require.Equal(t, resource.StateSucceeds, spec.State)
	require.Equal(t, 5, spec.Retries)
	require.Equal(t, 5*time.Second, spec.RetryDelay)
	require.Equal(t, 6, spec.MaxAttempts())
}

func TestParseRecipe_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		contents  string
		wantField string
		wantParse bool
		wantLine  int
	}{
		{
			name:      "malformed yaml reports line",
			contents:  "name: x\nsteps:\n  - name: [\n",
			wantParse: true,
		},
		{
			name:      "unknown field",
			contents:  "name: x\nsteps:\n  - name: a\n    kind: package\n    state: installed\n    colour: blue\n",
			wantParse: true,
			wantLine:  6,
		},
		{
			name:      "empty document",
			contents:  "",
			wantParse: true,
		},
		{
			name:      "no steps",
			contents:  "name: x\n",
			wantField: "steps",
		},
		{
			name:      "unknown kind",
			contents:  "name: x\nsteps:\n  - name: a\n    kind: cron\n    state: present\n",
			wantField: "steps[0].kind",
		},
		{
			name:      "unrecognized kind state pair",
			contents:  "name: x\nsteps:\n  - name: a\n    kind: service\n    state: installed\n",
			wantField: "steps[0].state",
		},
		{
			name:      "bad retry delay",
			contents:  "name: x\nsteps:\n  - name: a\n    kind: service\n    state: running\n    retry_delay: soon\n",
			wantField: "steps[0].retry_delay",
		},
		{
			name:      "negative retries",
			contents:  "name: x\nsteps:\n  - name: a\n    kind: service\n    state: running\n    retries: -1\n",
			wantField: "steps[0].retries",
		},
		{
			name:      "bad mode",
			contents:  "name: x\nsteps:\n  - name: a\n    kind: directory\n    state: present\n    params: {mode: \"888\"}\n",
			wantField: "steps[0].params",
		},
		{
			name:      "bad gate expression",
			contents:  "name: x\ngate: platform ==\nsteps:\n  - name: a\n    kind: service\n    state: running\n",
			wantField: "gate",
		},
		{
			name:      "duplicate step names",
			contents:  "name: x\nsteps:\n  - name: a\n    kind: service\n    state: running\n  - name: a\n    kind: service\n    state: stopped\n",
			wantField: "steps[1].name",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseRecipe([]byte(tc.contents), "recipe.yaml")
			require.Error(t, err)

			if tc.wantParse {
				var parseErr *dcverrors.ParseError
				require.ErrorAs(t, err, &parseErr)
				require.Equal(t, "recipe.yaml", parseErr.Path)
				if tc.wantLine > 0 {
					require.Equal(t, tc.wantLine, parseErr.Line)
				}
				return
			}

			var validationErr *dcverrors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			require.Equal(t, tc.wantField, validationErr.Field)
		})
	}
}

func TestLoadRecipe(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validRecipe), 0o600))

	r, err := LoadRecipe(path)
	require.NoError(t, err)
	require.Equal(t, "dcv-head-node", r.Name)

	_, err = LoadRecipe(filepath.Join(dir, "missing.yaml"))
	var parseErr *dcverrors.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestLoadSettings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	settings, err := LoadSettings(filepath.Join(dir, "absent.yaml"), false)
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), settings)

	_, err = LoadSettings(filepath.Join(dir, "absent.yaml"), true)
	require.Error(t, err)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nstate_dir: /srv/dcvprov\n"), 0o600))
	settings, err = LoadSettings(path, true)
	require.NoError(t, err)
	require.Equal(t, "debug", settings.LogLevel)
	require.Equal(t, "/srv/dcvprov", settings.StateDir)
	require.Equal(t, DefaultSettings().HistoryPath, settings.HistoryPath)

	commentOnly := filepath.Join(dir, "comments.yaml")
	require.NoError(t, os.WriteFile(commentOnly, []byte("# nothing here\n"), 0o600))
	settings, err = LoadSettings(commentOnly, true)
	require.NoError(t, err)
	require.Equal(t, DefaultSettings(), settings)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("log_level: loud\n"), 0o600))
	_, err = LoadSettings(bad, true)
	var validationErr *dcverrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "log_level", validationErr.Field)
}
