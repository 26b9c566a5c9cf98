// Package resources wires the built-in step kinds into a resource.Registry.
package resources

import (
	"fmt"
	"io/fs"

	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	commandresource "github.com/alexisbeaulieu97/dcvprov/internal/resources/command"
	copyresource "github.com/alexisbeaulieu97/dcvprov/internal/resources/copy"
	directoryresource "github.com/alexisbeaulieu97/dcvprov/internal/resources/directory"
	packageresource "github.com/alexisbeaulieu97/dcvprov/internal/resources/packages"
	serviceresource "github.com/alexisbeaulieu97/dcvprov/internal/resources/service"
	templateresource "github.com/alexisbeaulieu97/dcvprov/internal/resources/template"
	"github.com/alexisbeaulieu97/dcvprov/internal/system"
)

// Dependencies are the collaborators the built-in kinds act through.
type Dependencies struct {
	Packages  system.PackageManager
	Services  system.ServiceManager
	Runner    system.Runner
	Files     system.Filesystem
	Renderer  system.Renderer
	Artifacts fs.FS
	// StateDir holds run markers of executed commands.
	StateDir string
}

// RegisterAll registers every built-in kind with reg.
func RegisterAll(reg *resource.Registry, deps Dependencies) error {
	factories := map[resource.Kind]resource.Factory{
		resource.KindPackage:      packageresource.Factory(deps.Packages),
		resource.KindFileTemplate: templateresource.Factory(deps.Files, deps.Renderer),
		resource.KindFileCopy:     copyresource.Factory(deps.Files, deps.Artifacts),
		resource.KindDirectory:    directoryresource.Factory(deps.Files),
		resource.KindCommand:      commandresource.Factory(deps.Runner, deps.Files, deps.StateDir),
		resource.KindService:      serviceresource.Factory(deps.Services),
	}

	for _, kind := range resource.Kinds() {
		factory, ok := factories[kind]
		if !ok {
			return fmt.Errorf("no built-in implementation for kind %q", kind)
		}
		if err := reg.Register(kind, factory); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry with every built-in kind.
func NewRegistry(deps Dependencies) (*resource.Registry, error) {
	reg := resource.NewRegistry()
	if err := RegisterAll(reg, deps); err != nil {
		return nil, err
	}
	return reg, nil
}
