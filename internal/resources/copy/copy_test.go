package copyresource

import (
	"context"
	"errors"
	"os"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/system/systemtest"
)

var artifacts = fstest.MapFS{
	"ext_auth_files/generate_certificate.sh": {Data: []byte("#!/bin/sh\necho cert\n")},
}

func copySpec(name string, params map[string]string) resource.Spec {
	return resource.Spec{Kind: resource.KindFileCopy, Name: name, State: resource.StatePresent, Params: params}
}

func TestCopy_InstallsArtifactWithOwnerAndMode(t *testing.T) {
	t.Parallel()

	files := systemtest.NewMemFS()
	files.AddUser("dcvextauth", 1001, 1001)
	require.NoError(t, files.MkdirAll("/home/dcvextauth", 0o755))

	step, err := New(copySpec("install authenticator", map[string]string{
		resource.ParamTarget: "{{ attr \"dcv.home\" }}/generate_certificate.sh",
		resource.ParamSource: "ext_auth_files/generate_certificate.sh",
		resource.ParamOwner:  "dcvextauth",
		resource.ParamMode:   "0700",
	}), files, artifacts)
	require.NoError(t, err)

	ctx := context.Background()
	a := attrs.NewBuilder().Set("dcv.home", "/home/dcvextauth").Build()

	eval, err := step.Probe(ctx, a)
	require.NoError(t, err)
	require.True(t, eval.RequiresAction)
	require.NoError(t, step.Apply(ctx, a, eval))

	info, err := files.Stat("/home/dcvextauth/generate_certificate.sh")
	require.NoError(t, err)
	require.True(t, info.Exists)
	require.Equal(t, 1001, info.UID)
	require.Equal(t, os.FileMode(0o700), info.Mode.Perm())

	eval, err = step.Probe(ctx, a)
	require.NoError(t, err)
	require.False(t, eval.RequiresAction)
}

func TestCopy_OwnerDriftIsCorrected(t *testing.T) {
	t.Parallel()

	files := systemtest.NewMemFS()
	files.AddUser("dcvextauth", 1001, 1001)
	files.Put("/opt/generate_certificate.sh", []byte("#!/bin/sh\necho cert\n"), 0o700)

	step, err := New(copySpec("/opt/generate_certificate.sh", map[string]string{
		resource.ParamSource: "ext_auth_files/generate_certificate.sh",
		resource.ParamOwner:  "dcvextauth",
	}), files, artifacts)
	require.NoError(t, err)

	ctx := context.Background()
	eval, err := step.Probe(ctx, attrs.NodeAttributes{})
	require.NoError(t, err)
	require.True(t, eval.RequiresAction)
	require.Contains(t, eval.Message, "owner uid 0")

	require.NoError(t, step.Apply(ctx, attrs.NodeAttributes{}, eval))
	info, err := files.Stat("/opt/generate_certificate.sh")
	require.NoError(t, err)
	require.Equal(t, 1001, info.UID)
}

func TestCopy_MissingArtifactIsProbeError(t *testing.T) {
	t.Parallel()

	step, err := New(copySpec("/opt/x", map[string]string{resource.ParamSource: "nope"}), systemtest.NewMemFS(), artifacts)
	require.NoError(t, err)

	_, err = step.Probe(context.Background(), attrs.NodeAttributes{})
	var probeErr *resource.ProbeError
	require.ErrorAs(t, err, &probeErr)
}

func TestCopy_ChownFailureIsApplyError(t *testing.T) {
	t.Parallel()

	files := systemtest.NewMemFS()
	files.AddUser("dcvextauth", 1001, 1001)
	files.ChownErr = errors.New("operation not permitted")
	step, err := New(copySpec("/opt/generate_certificate.sh", map[string]string{
		resource.ParamSource: "ext_auth_files/generate_certificate.sh",
		resource.ParamOwner:  "dcvextauth",
	}), files, artifacts)
	require.NoError(t, err)

	ctx := context.Background()
	eval, err := step.Probe(ctx, attrs.NodeAttributes{})
	require.NoError(t, err)

	err = step.Apply(ctx, attrs.NodeAttributes{}, eval)
	var applyErr *resource.ApplyError
	require.ErrorAs(t, err, &applyErr)
	require.ErrorContains(t, err, "operation not permitted")
}
