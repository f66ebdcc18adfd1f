//go:build linux

package fs

import "golang.org/x/sys/unix"

// AdviseSequential hints the kernel that f is read front to back.
// Files that do not expose a descriptor are left alone.
func AdviseSequential(f File) error {
	fd, ok := f.(interface{ Fd() uintptr })
	if !ok {
		return nil
	}
	return unix.Fadvise(int(fd.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
