package resources

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
	"github.com/alexisbeaulieu97/dcvprov/internal/system/systemtest"
)

func testDeps() Dependencies {
	return Dependencies{
		Packages:  systemtest.NewPackages(),
		Services:  systemtest.NewServices(),
		Runner:    systemtest.NewRunner(),
		Files:     systemtest.NewMemFS(),
		Renderer:  system.NewTemplateRenderer(fstest.MapFS{}),
		Artifacts: fstest.MapFS{},
		StateDir:  "/var/lib/dcvprov",
	}
}

func TestNewRegistry_RegistersEveryKind(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(testDeps())
	require.NoError(t, err)
	for _, kind := range resource.Kinds() {
		require.True(t, reg.Has(kind), kind)
	}
}

func TestRegisterAll_Twice(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(testDeps())
	require.NoError(t, err)
	require.ErrorContains(t, RegisterAll(reg, testDeps()), "already registered")
}

func TestBuild_RejectsInvalidSteps(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(testDeps())
	require.NoError(t, err)

	cases := []struct {
		name string
		spec resource.Spec
	}{
		{"unknown pair", resource.Spec{Kind: resource.KindService, Name: "dcvserver", State: resource.StateRendered}},
		{"missing template source", resource.Spec{Kind: resource.KindFileTemplate, Name: "/etc/dcv/dcv.conf", State: resource.StateRendered}},
		{"bad mode", resource.Spec{Kind: resource.KindDirectory, Name: "/var/log", State: resource.StatePresent, Params: map[string]string{resource.ParamMode: "0999"}}},
		{"negative retries", resource.Spec{Kind: resource.KindCommand, Name: "x", State: resource.StateSucceeds, Retries: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Build(tc.spec)
			var validationErr *resource.ValidationError
			require.ErrorAs(t, err, &validationErr)
			require.Equal(t, tc.spec.Name, validationErr.StepName())
		})
	}
}
