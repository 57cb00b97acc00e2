//go:build !linux

package system

import (
	"errors"
	"os"
)

func reboot() error {
	return errors.New("reboot not supported on this platform")
}

func exit(code int) { os.Exit(code) }

// Exec is only supported on Linux.
func Exec(path string, argv, env []string) error {
	return errors.New("exec not supported on this platform")
}
