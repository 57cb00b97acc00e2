//go:build linux

package system

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func reboot() error {
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}

func exit(code int) { os.Exit(code) }

// Exec replaces the running process with the image at path.
func Exec(path string, argv, env []string) error {
	return unix.Exec(path, argv, env)
}
