package sandbox

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/HQarroum/microbox/internal/cgroupctl"
	"github.com/HQarroum/microbox/internal/idmap"
	"github.com/HQarroum/microbox/internal/netconfig"
	"github.com/HQarroum/microbox/shared/logger"
)

// si_code values for SIGCHLD, from <bits/waitflags.h>. Not exposed by
// golang.org/x/sys/unix under these names, so mirrored here; the numeric
// values are part of the stable Linux uapi.
const (
	cldExited    = 1
	cldKilled    = 2
	cldDumped    = 3
	cldTrapped   = 4
	cldStopped   = 5
	cldContinued = 6
)

// ForkInitArg is the argv[1] the supervisor re-execs itself with; the CLI
// layer's hidden subcommand must match on this exact string.
const ForkInitArg = "forkinit"

// childConfig is what crosses the options pipe (fd 4) into the forkinit
// child: everything it needs to build its own filesystem, network, and
// seccomp state, since it does not share memory with the parent.
type childConfig struct {
	Options
	NetConfig *netconfig.Config `json:"net_config,omitempty"`
}

// Spawn implements the Sandbox Supervisor's public spawn(opts) operation
// (spec.md §4.1). It clones a new process via a self re-exec into the
// hidden "forkinit" subcommand, synchronizes parent and child through a
// barrier pipe, and performs every parent-side setup step (identity
// mapping, host-side networking, cgroup attachment) before releasing the
// child to proceed.
func Spawn(opts *Options) (proc *Process, err error) {
	if opts == nil {
		return nil, InvalidArgument
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cfg := childConfig{Options: *opts}

	var netCfg *netconfig.Config
	var releaseSlot func()

	if opts.NetMode == NetBridge {
		slot, release, slotErr := netconfig.AllocateSlot(os.Getpid())
		if slotErr != nil {
			return nil, Errf(KindResource, "spawn", slotErr)
		}
		releaseSlot = release

		netCfg, err = netconfig.NewConfig(slot)
		if err != nil {
			releaseSlot()
			return nil, Errf(KindConfig, "spawn", err)
		}
		cfg.NetConfig = netCfg
	}

	cleanupOnErr := func() {
		if releaseSlot != nil {
			releaseSlot()
		}
	}

	barrierRead, barrierWrite, err := os.Pipe()
	if err != nil {
		cleanupOnErr()
		return nil, Errf(KindResource, "spawn", fmt.Errorf("create barrier pipe: %w", err))
	}

	optsRead, optsWrite, err := os.Pipe()
	if err != nil {
		barrierRead.Close()
		barrierWrite.Close()
		cleanupOnErr()
		return nil, Errf(KindResource, "spawn", fmt.Errorf("create options pipe: %w", err))
	}

	self, err := os.Readlink("/proc/self/exe")
	if err != nil {
		self = "/proc/self/exe"
	}

	cmd := exec.Command(self, ForkInitArg)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{barrierRead, optsRead}

	var pidfd int
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: cloneFlags(opts),
		Pdeathsig:  syscall.SIGKILL,
		PidFD:      &pidfd,
	}

	if startErr := cmd.Start(); startErr != nil {
		barrierRead.Close()
		barrierWrite.Close()
		optsRead.Close()
		optsWrite.Close()
		cleanupOnErr()
		return nil, Errf(KindSystem, "spawn", fmt.Errorf("clone failed: %w", startErr))
	}

	// The child has its own copy of both ends via ExtraFiles; the parent's
	// copies of the read ends are no longer needed.
	barrierRead.Close()
	optsRead.Close()

	pid := cmd.Process.Pid

	proc = newProcess()
	proc.Pidfd = pidfd
	proc.PID = pid
	proc.cmd = cmd
	proc.netCfg = netCfg
	proc.releaseSlot = releaseSlot

	// abort closes the barrier write end without signaling success, per
	// the explicit failure-semantics requirement in spec.md §4.1: the
	// child detects EOF on its barrier read and exits rather than
	// blocking forever.
	abort := func(kind Kind, op string, cause error) (*Process, error) {
		optsWrite.Close()
		barrierWrite.Close()
		if releaseSlot != nil {
			releaseSlot()
		}
		cmd.Process.Kill()
		cmd.Wait()
		return nil, Errf(kind, op, cause)
	}

	encoded, err := json.Marshal(cfg)
	if err != nil {
		return abort(KindSystem, "spawn", fmt.Errorf("encode child config: %w", err))
	}

	if _, err := optsWrite.Write(encoded); err != nil {
		return abort(KindSystem, "spawn", fmt.Errorf("write child config: %w", err))
	}
	optsWrite.Close()

	if err := idmap.Write(pid); err != nil {
		return abort(KindSystem, "spawn", fmt.Errorf("identity mapping: %w", err))
	}

	if opts.NetMode == NetBridge {
		if err := netconfig.SetupHostSide(netCfg); err != nil {
			return abort(KindResource, "spawn", fmt.Errorf("network setup: %w", err))
		}

		if err := netconfig.MoveContainerSide(netCfg, pid); err != nil {
			return abort(KindResource, "spawn", fmt.Errorf("move container interface: %w", err))
		}
	}

	group, err := cgroupctl.Create(pid)
	if err != nil {
		return abort(KindResource, "spawn", fmt.Errorf("create cgroup: %w", err))
	}

	if err := group.SetCPU(opts.CPUs); err != nil {
		return abort(KindResource, "spawn", fmt.Errorf("set cpu limit: %w", err))
	}

	if err := group.SetMemory(opts.Memory); err != nil {
		return abort(KindResource, "spawn", fmt.Errorf("set memory limit: %w", err))
	}

	if err := group.AddProcess(pid); err != nil {
		return abort(KindResource, "spawn", fmt.Errorf("attach pid to cgroup: %w", err))
	}

	proc.cgroup = group

	if _, err := barrierWrite.Write([]byte{0}); err != nil {
		return abort(KindSystem, "spawn", fmt.Errorf("release barrier: %w", err))
	}
	barrierWrite.Close()

	return proc, nil
}

// cloneFlags computes the clone(2) flag set for opts per spec.md §4.1:
// the fixed base set, plus NEWNET unless net=host and NEWNS unless
// fs=host.
func cloneFlags(opts *Options) uintptr {
	flags := uintptr(unix.CLONE_NEWUSER | unix.CLONE_NEWPID | unix.CLONE_NEWUTS |
		unix.CLONE_NEWIPC | unix.CLONE_NEWCGROUP | unix.CLONE_NEWTIME)

	if opts.NetMode != NetHost {
		flags |= uintptr(unix.CLONE_NEWNET)
	}

	if opts.FSMode != FSHost {
		flags |= uintptr(unix.CLONE_NEWNS)
	}

	return flags
}

// Wait implements the Sandbox Supervisor's wait(proc) operation: blocks on
// the pidfd via waitid(P_PIDFD, …, WEXITED), tears down host-side
// networking and the cgroup, and translates the termination into an exit
// code (128+signal for signal death).
func Wait(proc *Process) (int, error) {
	var info unix.Siginfo

	if err := unix.Waitid(unix.P_PIDFD, proc.Pidfd, &info, unix.WEXITED, nil); err != nil {
		return -1, Errf(KindSystem, "wait", fmt.Errorf("waitid: %w", err))
	}

	if proc.netCfg != nil {
		netconfig.Teardown(proc.netCfg)
	}

	if proc.releaseSlot != nil {
		proc.releaseSlot()
	}

	if proc.cgroup != nil {
		proc.cgroup.Remove()
	}

	unix.Close(proc.Pidfd)

	_, status := decodeSigchld(&info)

	switch info.Code {
	case cldExited:
		return status, nil
	case cldKilled, cldDumped:
		return 128 + status, nil
	default:
		logger.Warn("unexpected waitid si_code", logger.Ctx{"code": info.Code})
		return status, nil
	}
}

// decodeSigchld pulls (pid, status) out of the SIGCHLD branch of the
// siginfo_t union. golang.org/x/sys/unix.Siginfo exposes only the common
// Signo/Errno/Code header and leaves the union as an opaque byte blob,
// since its layout is arch- and signal-dependent; for SIGCHLD the first
// three union fields are always pid (int32), uid (uint32), status
// (int32), starting right after the 16-byte header.
func decodeSigchld(info *unix.Siginfo) (pid int32, status int) {
	raw := (*[unsafe.Sizeof(*info)]byte)(unsafe.Pointer(info))[:]
	const unionOffset = 16

	pid = int32(binary.LittleEndian.Uint32(raw[unionOffset : unionOffset+4]))
	status = int(int32(binary.LittleEndian.Uint32(raw[unionOffset+8 : unionOffset+12])))

	return pid, status
}
