//go:build !linux
// +build !linux

package fio

import "errors"

// ProcMapsToFile is only supported on Linux, where /proc is available.
func ProcMapsToFile(pid int, dst string) error {
	return errors.New("fio: ProcMapsToFile is only supported on linux")
}
