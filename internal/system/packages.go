package system

import (
	"context"
	"fmt"
	"strings"
)

// NewPackageManager picks the package manager for a distribution id as
// found in os-release.
func NewPackageManager(platform string, runner Runner) (PackageManager, error) {
	switch strings.ToLower(platform) {
	case "centos", "rhel", "amzn", "fedora", "rocky", "almalinux", "ol":
		return &Yum{runner: runner}, nil
	case "ubuntu", "debian":
		return &Apt{runner: runner}, nil
	default:
		return nil, fmt.Errorf("no package manager known for platform %q", platform)
	}
}

// Yum manages RPM packages through rpm and yum.
type Yum struct {
	runner Runner
}

// NewYum returns a Yum package manager.
func NewYum(runner Runner) *Yum {
	return &Yum{runner: runner}
}

// ResolveName reads the package name from an RPM file.
func (y *Yum) ResolveName(ctx context.Context, source string) (string, error) {
	res, err := y.runner.Run(ctx, Cmd{Argv: []string{"rpm", "-qp", "--queryformat", "%{NAME}", source}})
	if err != nil {
		return "", fmt.Errorf("read package name from %s: %w", source, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// IsInstalled reports whether rpm knows the package.
func (y *Yum) IsInstalled(ctx context.Context, name string) (bool, error) {
	_, err := y.runner.Run(ctx, Cmd{Argv: []string{"rpm", "-q", name}})
	return exitStatusAsBool(err)
}

// UpgradeAvailable reports whether yum check-update lists the package.
// yum exits 100 when updates are available.
func (y *Yum) UpgradeAvailable(ctx context.Context, name string) (bool, error) {
	res, err := y.runner.Run(ctx, Cmd{Argv: []string{"yum", "-q", "check-update", name}})
	if err == nil {
		return false, nil
	}
	if IsExitError(err) && res.ExitCode == 100 {
		return true, nil
	}
	return false, fmt.Errorf("check updates for %s: %w", name, err)
}

// Install installs the named package or a local RPM.
func (y *Yum) Install(ctx context.Context, name, source string) error {
	_, err := y.runner.Run(ctx, Cmd{Argv: []string{"yum", "install", "-y", target(name, source)}})
	return err
}

// Upgrade upgrades the named package or a local RPM.
func (y *Yum) Upgrade(ctx context.Context, name, source string) error {
	_, err := y.runner.Run(ctx, Cmd{Argv: []string{"yum", "upgrade", "-y", target(name, source)}})
	return err
}

// Apt manages Debian packages through dpkg and apt-get.
type Apt struct {
	runner Runner
}

// NewApt returns an Apt package manager.
func NewApt(runner Runner) *Apt {
	return &Apt{runner: runner}
}

// ResolveName reads the package name from a .deb file.
func (a *Apt) ResolveName(ctx context.Context, source string) (string, error) {
	res, err := a.runner.Run(ctx, Cmd{Argv: []string{"dpkg-deb", "-f", source, "Package"}})
	if err != nil {
		return "", fmt.Errorf("read package name from %s: %w", source, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// IsInstalled reports whether dpkg considers the package installed.
func (a *Apt) IsInstalled(ctx context.Context, name string) (bool, error) {
	res, err := a.runner.Run(ctx, Cmd{Argv: []string{"dpkg-query", "-W", "-f=${Status}", name}})
	if err != nil {
		return exitStatusAsBool(err)
	}
	return strings.Contains(res.Stdout, "install ok installed"), nil
}

// UpgradeAvailable reports whether apt lists the package as upgradable.
func (a *Apt) UpgradeAvailable(ctx context.Context, name string) (bool, error) {
	res, err := a.runner.Run(ctx, Cmd{Argv: []string{"apt", "list", "--upgradable", name}})
	if err != nil {
		return false, fmt.Errorf("check updates for %s: %w", name, err)
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.HasPrefix(line, name+"/") {
			return true, nil
		}
	}
	return false, nil
}

// Install installs the named package or a local .deb.
func (a *Apt) Install(ctx context.Context, name, source string) error {
	_, err := a.runner.Run(ctx, Cmd{
		Argv: []string{"apt-get", "install", "-y", target(name, source)},
		Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
	})
	return err
}

// Upgrade upgrades the named package or a local .deb.
func (a *Apt) Upgrade(ctx context.Context, name, source string) error {
	_, err := a.runner.Run(ctx, Cmd{
		Argv: []string{"apt-get", "install", "-y", "--only-upgrade", target(name, source)},
		Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
	})
	return err
}

func target(name, source string) string {
	if source != "" {
		return source
	}
	return name
}

// exitStatusAsBool maps exit 0 to true, a non-zero exit to false and any
// other failure to an error.
func exitStatusAsBool(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if IsExitError(err) {
		return false, nil
	}
	return false, err
}

// Unsupported stands in for the package manager of a platform without one.
// Every call fails with Err, so only runs reaching a package step notice.
type Unsupported struct {
	Err error
}

func (u Unsupported) ResolveName(context.Context, string) (string, error) { return "", u.Err }

func (u Unsupported) IsInstalled(context.Context, string) (bool, error) { return false, u.Err }

func (u Unsupported) UpgradeAvailable(context.Context, string) (bool, error) { return false, u.Err }

func (u Unsupported) Install(context.Context, string, string) error { return u.Err }

func (u Unsupported) Upgrade(context.Context, string, string) error { return u.Err }
