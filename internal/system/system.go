// Package system adapts the operating system collaborators steps rely on:
// package managers, the service manager, the filesystem, the process runner
// and the template renderer.
package system

import (
	"context"
	"os"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
)

// PackageManager installs and queries OS packages.
type PackageManager interface {
	// ResolveName returns the package name carried by a local artifact.
	ResolveName(ctx context.Context, source string) (string, error)
	IsInstalled(ctx context.Context, name string) (bool, error)
	UpgradeAvailable(ctx context.Context, name string) (bool, error)
	// Install installs name, or the artifact at source when it is not empty.
	Install(ctx context.Context, name, source string) error
	Upgrade(ctx context.Context, name, source string) error
}

// ServiceManager controls the runtime and boot state of service units.
type ServiceManager interface {
	IsActive(ctx context.Context, unit string) (bool, error)
	IsEnabled(ctx context.Context, unit string) (bool, error)
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	Enable(ctx context.Context, unit string) error
	Disable(ctx context.Context, unit string) error
}

// Cmd describes one process invocation.
type Cmd struct {
	Argv []string
	User string
	Dir  string
	Env  []string
}

// Result captures what a finished process reported.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stderr when present, otherwise stdout.
func (r Result) Output() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Runner executes processes. A process that starts but exits non-zero is
// reported as an *ExitError alongside its Result.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// FileInfo is the subset of file metadata steps compare against.
type FileInfo struct {
	Exists bool
	IsDir  bool
	Mode   os.FileMode
	UID    int
	GID    int
}

// Filesystem is the file and ownership surface used by file and directory
// steps. Stat of a missing path returns FileInfo{Exists: false} and no error.
type Filesystem interface {
	Stat(path string) (FileInfo, error)
	ReadFile(path string) ([]byte, error)
	// WriteFile replaces path atomically. The parent directory must exist.
	WriteFile(path string, data []byte, mode os.FileMode) error
	Mkdir(path string, mode os.FileMode) error
	MkdirAll(path string, mode os.FileMode) error
	Chmod(path string, mode os.FileMode) error
	Chown(path string, uid, gid int) error
	LookupUser(name string) (uid int, gid int, err error)
	LookupGroup(name string) (gid int, err error)
}

// Renderer renders a named template with node attributes. Missing
// attributes are errors.
type Renderer interface {
	Render(templateID string, a attrs.NodeAttributes) ([]byte, error)
}
