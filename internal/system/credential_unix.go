//go:build unix

package system

import (
	"fmt"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

func setCredential(cmd *exec.Cmd, name string) error {
	if name == "" {
		return nil
	}
	current, err := user.Current()
	if err == nil && current.Username == name {
		return nil
	}

	u, err := user.Lookup(name)
	if err != nil {
		return fmt.Errorf("lookup user %s: %w", name, err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return fmt.Errorf("parse uid of %s: %w", name, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return fmt.Errorf("parse gid of %s: %w", name, err)
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)},
	}
	cmd.Env = append(cmd.Env, "HOME="+u.HomeDir, "USER="+u.Username, "LOGNAME="+u.Username)
	return nil
}
