//go:build windows
// +build windows

package tdbf

import "os"

// openFile opens the table file in binary read-write mode. Windows has no
// non-blocking open flag.
func openFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}
