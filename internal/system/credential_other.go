//go:build !unix

package system

import (
	"fmt"
	"os/exec"
	"os/user"
)

func setCredential(_ *exec.Cmd, name string) error {
	if name == "" {
		return nil
	}
	if current, err := user.Current(); err == nil && current.Username == name {
		return nil
	}
	return fmt.Errorf("running commands as %s is not supported on this platform", name)
}
