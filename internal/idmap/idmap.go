// Package idmap writes the UID/GID mapping described in spec.md §4.2: it
// maps the single real UID/GID to root inside the child's user namespace.
package idmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Write maps UID 0 / GID 0 in the child's user namespace to the caller's
// real UID/GID, the Identity Mapper component. It must be called by the
// parent after clone and before the barrier is released: the child may not
// make any syscall requiring the mapping until these three writes land.
//
// setgroups is disabled before gid_map is written because recent kernels
// refuse an unprivileged gid_map write otherwise. Each write is a
// single-shot write-all; a partial write is treated as failure.
func Write(pid int) error {
	if err := writeFile(fmt.Sprintf("/proc/%d/setgroups", pid), "deny"); err != nil {
		return fmt.Errorf("disable setgroups: %w", err)
	}

	if err := writeFile(fmt.Sprintf("/proc/%d/uid_map", pid), fmt.Sprintf("0 %d 1", os.Getuid())); err != nil {
		return fmt.Errorf("write uid_map: %w", err)
	}

	if err := writeFile(fmt.Sprintf("/proc/%d/gid_map", pid), fmt.Sprintf("0 %d 1", os.Getgid())); err != nil {
		return fmt.Errorf("write gid_map: %w", err)
	}

	return nil
}

// writeFile performs a single-shot write-all to path, matching the
// original implementation's open/write/close-without-retry contract: a
// short write is a failure, not something to resume.
func writeFile(path, content string) error {
	fd, err := unix.Open(path, unix.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	buf := []byte(content)

	n, err := unix.Write(fd, buf)
	if err != nil {
		return err
	}

	if n != len(buf) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(buf))
	}

	return nil
}
