package sandbox

import (
	"os/exec"

	"github.com/HQarroum/microbox/internal/cgroupctl"
	"github.com/HQarroum/microbox/internal/netconfig"
)

// Process is the supervisor's handle on a spawned sandbox. Both exported
// fields start at the -1 sentinel and are populated once clone succeeds;
// the supervisor owns reaping and closing the pidfd.
type Process struct {
	// Pidfd is the process file descriptor obtained at clone time, used to
	// wait on the sandboxed process without risking PID reuse races.
	Pidfd int
	// PID is the sandboxed process's PID in the caller's PID namespace.
	PID int

	cmd         *exec.Cmd
	netCfg      *netconfig.Config
	releaseSlot func()
	cgroup      *cgroupctl.Group
}

func newProcess() *Process {
	return &Process{Pidfd: -1, PID: -1}
}
