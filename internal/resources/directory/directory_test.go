package directoryresource

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/system/systemtest"
)

func dirSpec(path string, params map[string]string) resource.Spec {
	return resource.Spec{Kind: resource.KindDirectory, Name: path, State: resource.StatePresent, Params: params}
}

func TestDirectory_CreatesRecursivelyWithStickyMode(t *testing.T) {
	t.Parallel()

	files := systemtest.NewMemFS()
	files.AddUser("dcvextauth", 1001, 1001)
	step, err := New(dirSpec("/var/spool/dcv_ext_auth", map[string]string{
		resource.ParamOwner: "dcvextauth",
		resource.ParamMode:  "1733",
	}), files)
	require.NoError(t, err)

	ctx := context.Background()
	eval, err := step.Probe(ctx, attrs.NodeAttributes{})
	require.NoError(t, err)
	require.True(t, eval.RequiresAction)
	require.NoError(t, step.Apply(ctx, attrs.NodeAttributes{}, eval))

	info, err := files.Stat("/var/spool/dcv_ext_auth")
	require.NoError(t, err)
	require.True(t, info.IsDir)
	require.Equal(t, 1001, info.UID)
	require.Equal(t, "1733", resource.FormatMode(info.Mode))

	parent, err := files.Stat("/var/spool")
	require.NoError(t, err)
	require.True(t, parent.IsDir)

	eval, err = step.Probe(ctx, attrs.NodeAttributes{})
	require.NoError(t, err)
	require.False(t, eval.RequiresAction, eval.Message)
}

func TestDirectory_NonRecursiveNeedsParent(t *testing.T) {
	t.Parallel()

	files := systemtest.NewMemFS()
	step, err := New(dirSpec("/var/log/parallelcluster", map[string]string{resource.ParamRecursive: "false"}), files)
	require.NoError(t, err)

	ctx := context.Background()
	eval, err := step.Probe(ctx, attrs.NodeAttributes{})
	require.NoError(t, err)

	err = step.Apply(ctx, attrs.NodeAttributes{}, eval)
	var applyErr *resource.ApplyError
	require.ErrorAs(t, err, &applyErr)
}

func TestDirectory_ModeDrift(t *testing.T) {
	t.Parallel()

	files := systemtest.NewMemFS()
	require.NoError(t, files.MkdirAll("/var/log/parallelcluster", 0o755))
	step, err := New(dirSpec("/var/log/parallelcluster/", map[string]string{resource.ParamMode: "1777"}), files)
	require.NoError(t, err)

	ctx := context.Background()
	eval, err := step.Probe(ctx, attrs.NodeAttributes{})
	require.NoError(t, err)
	require.True(t, eval.RequiresAction)
	require.Contains(t, eval.Message, "mode 0755, want 1777")

	require.NoError(t, step.Apply(ctx, attrs.NodeAttributes{}, eval))
	info, err := files.Stat("/var/log/parallelcluster")
	require.NoError(t, err)
	require.NotZero(t, info.Mode&os.ModeSticky)
}

func TestDirectory_FileInTheWayIsProbeError(t *testing.T) {
	t.Parallel()

	files := systemtest.NewMemFS()
	files.Put("/var/spool/dcv_ext_auth", []byte("x"), 0o644)
	step, err := New(dirSpec("/var/spool/dcv_ext_auth", nil), files)
	require.NoError(t, err)

	_, err = step.Probe(context.Background(), attrs.NodeAttributes{})
	var probeErr *resource.ProbeError
	require.ErrorAs(t, err, &probeErr)
	require.ErrorContains(t, err, "not a directory")
}

func TestDirectory_RejectsBadRecursiveFlag(t *testing.T) {
	t.Parallel()

	_, err := New(dirSpec("/x", map[string]string{resource.ParamRecursive: "maybe"}), systemtest.NewMemFS())
	require.Error(t, err)
}
