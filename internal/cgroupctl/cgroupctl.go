// Package cgroupctl implements the Cgroup Controller component of spec.md
// §4.4: a unified-hierarchy (cgroup v2) resource group per sandbox, with
// best-effort controller enablement and hard limits on CPU and memory.
package cgroupctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/HQarroum/microbox/shared/logger"
)

const cgroupRoot = "/sys/fs/cgroup"

// Group represents one sandbox's cgroup directory.
type Group struct {
	path string
}

// Create enables the cpu and memory controllers on the root subtree (if not
// already enabled) and creates a fresh group named microbox-<pid> under the
// unified hierarchy.
//
// Enabling a controller that's already enabled returns EBUSY on some
// kernels; that is tolerated, not an error, per spec.md §4.4.
func Create(pid int) (*Group, error) {
	if err := enableControllers(cgroupRoot, "+cpu", "+memory"); err != nil {
		return nil, fmt.Errorf("enable root controllers: %w", err)
	}

	path := filepath.Join(cgroupRoot, fmt.Sprintf("microbox-%d", pid))
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("create cgroup %s: %w", path, err)
	}

	return &Group{path: path}, nil
}

// enableControllers writes the requested controllers to
// <dir>/cgroup.subtree_control, tolerating EBUSY (already enabled by a
// sibling) but not other errors.
func enableControllers(dir string, controllers ...string) error {
	for _, c := range controllers {
		path := filepath.Join(dir, "cgroup.subtree_control")
		if err := writeFile(path, c); err != nil {
			if err == unix.EBUSY {
				continue
			}
			return fmt.Errorf("write %s to %s: %w", c, path, err)
		}
	}

	return nil
}

// SetCPU writes a CPU quota to cpu.max, expressed as "<quota> <period>"
// where period is fixed at 100000us and quota is cpus*period truncated to
// an integer and raised to at least 1000, per spec.md §4.4. cpus <= 0
// means unlimited, and per spec.md §8's boundary invariant
// nothing is written to cpu.max at all in that case: the kernel default is
// already unlimited, so there is no state to set.
func (g *Group) SetCPU(cpus float64) error {
	const period = 100000

	if cpus <= 0 {
		return nil
	}

	quota := int64(cpus * period)
	if quota < 1000 {
		quota = 1000
	}

	return writeFile(filepath.Join(g.path, "cpu.max"), fmt.Sprintf("%d %d", quota, period))
}

// SetMemory writes a memory ceiling to memory.max and disables swap for the
// group via memory.swap.max=0, per spec.md §4.4 (hard OOM-kill limit, no
// swap overflow). limit == 0 means unlimited, and per spec.md §8's boundary
// invariant neither memory.max nor memory.swap.max is written in that case.
func (g *Group) SetMemory(limit uint64) error {
	if limit == 0 {
		return nil
	}

	value := strconv.FormatUint(limit, 10)

	if err := writeFile(filepath.Join(g.path, "memory.max"), value); err != nil {
		return fmt.Errorf("write memory.max: %w", err)
	}

	if err := writeFile(filepath.Join(g.path, "memory.swap.max"), "0"); err != nil {
		return fmt.Errorf("write memory.swap.max: %w", err)
	}

	return nil
}

// AddProcess attaches pid to the group by writing it to cgroup.procs, the
// final step before the barrier is released so the child is resource
// constrained before it runs any user code.
func (g *Group) AddProcess(pid int) error {
	return writeFile(filepath.Join(g.path, "cgroup.procs"), strconv.Itoa(pid))
}

// Remove deletes the cgroup directory once the sandbox has exited and its
// process has left the group. Best-effort: a non-empty or already-removed
// group is logged, not propagated, matching the teardown posture of
// spec.md §4.4.
func (g *Group) Remove() {
	if err := os.Remove(g.path); err != nil {
		logger.Warn("could not remove cgroup", logger.Ctx{"path": g.path, "err": err})
	}
}

// writeFile performs a single-shot write-all with a fresh file descriptor,
// the contract cgroupfs requires: controllers reject appended or reused
// descriptors for some files.
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
		return fmt.Errorf("short write to %s: wrote %d of %d bytes", path, n, len(buf))
	}

	return nil
}
