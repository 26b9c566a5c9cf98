package system

import (
	"context"
)

// Systemd controls units through systemctl.
type Systemd struct {
	runner Runner
}

// NewSystemd returns a systemctl-backed ServiceManager.
func NewSystemd(runner Runner) *Systemd {
	return &Systemd{runner: runner}
}

// IsActive reports whether the unit is running.
func (s *Systemd) IsActive(ctx context.Context, unit string) (bool, error) {
	_, err := s.runner.Run(ctx, Cmd{Argv: []string{"systemctl", "is-active", "--quiet", unit}})
	return exitStatusAsBool(err)
}

// IsEnabled reports whether the unit starts at boot.
func (s *Systemd) IsEnabled(ctx context.Context, unit string) (bool, error) {
	_, err := s.runner.Run(ctx, Cmd{Argv: []string{"systemctl", "is-enabled", "--quiet", unit}})
	return exitStatusAsBool(err)
}

// Start starts the unit.
func (s *Systemd) Start(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "start", unit)
}

// Stop stops the unit.
func (s *Systemd) Stop(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "stop", unit)
}

// Enable enables the unit at boot.
func (s *Systemd) Enable(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "enable", unit)
}

// Disable disables the unit at boot.
func (s *Systemd) Disable(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "disable", unit)
}

func (s *Systemd) systemctl(ctx context.Context, verb, unit string) error {
	_, err := s.runner.Run(ctx, Cmd{Argv: []string{"systemctl", verb, unit}})
	return err
}
