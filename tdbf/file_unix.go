//go:build !windows
// +build !windows

package tdbf

import (
	"os"

	"golang.org/x/sys/unix"
)

// openFile opens the table file in binary read-write mode without blocking
// on special files.
func openFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag|unix.O_NONBLOCK, perm)
}
