package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/HQarroum/microbox/internal/envmerge"
	"github.com/HQarroum/microbox/internal/netconfig"
	"github.com/HQarroum/microbox/internal/rootfs"
	"github.com/HQarroum/microbox/internal/sandbox"
	"github.com/HQarroum/microbox/internal/seccompfilter"
	"github.com/HQarroum/microbox/shared/logger"
)

// barrierFD and configFD are the ExtraFiles slots the supervisor attaches
// this process's pipe ends to: fd 3 is the barrier read end, fd 4 is the
// child-config pipe's read end.
const (
	barrierFD = 3
	configFD  = 4
)

// cmdForkinit is the hidden re-exec target the Sandbox Supervisor spawns
// via /proc/self/exe, mirroring the teacher's cmdForksyscall pattern: a
// hidden cobra subcommand standing in for what the teacher does with a
// cgo nsexec constructor. All of its setup runs already inside the new
// namespaces (clone happened before exec, via SysProcAttr.Cloneflags).
type cmdForkinit struct {
	global *cmdGlobal
}

func (c *cmdForkinit) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = sandbox.ForkInitArg
	cmd.Hidden = true
	cmd.RunE = c.Run
	return cmd
}

type childConfig struct {
	sandbox.Options
	NetConfig *netconfig.Config `json:"net_config,omitempty"`
}

// Run executes the strict post-barrier ordering from spec.md §4.1: set
// hostname, build the filesystem, configure container-side networking,
// load seccomp (and optionally drop capabilities), merge the environment,
// and exec. Any failure here exits 127 after writing a diagnostic, per
// spec.md §7's ChildSetup kind.
func (c *cmdForkinit) Run(cmd *cobra.Command, args []string) error {
	cfg, err := readChildConfig()
	if err != nil {
		die("read child config", err)
	}

	if err := waitBarrier(); err != nil {
		die("barrier wait", err)
	}

	if err := unix.Sethostname([]byte(cfg.Hostname)); err != nil {
		die("set hostname", err)
	}

	if cfg.FSMode != sandbox.FSHost {
		if err := rootfs.MakeRootPrivate(); err != nil {
			die("make root private", err)
		}
	}

	if err := rootfs.Build(toRootfsSpec(cfg.Options)); err != nil {
		die("build filesystem", err)
	}

	if cfg.NetMode == sandbox.NetBridge {
		if err := netconfig.ConfigureContainerSide(cfg.NetConfig); err != nil {
			die("configure container network", err)
		}
	}

	builder := seccompfilter.NewBuilder(cfg.SyscallsAllow, cfg.SyscallsDeny)
	if err := builder.Load(); err != nil {
		die("load seccomp filter", err)
	}

	if cfg.DropCaps {
		if err := seccompfilter.DropCapabilities(); err != nil {
			die("drop capabilities", err)
		}
	}

	env := envmerge.Merge(cfg.Env)

	binary, err := resolveBinary(cfg.Cmd[0], env)
	if err != nil {
		die("resolve command", err)
	}

	if err := unix.Exec(binary, cfg.Cmd, env); err != nil {
		die("exec", err)
	}

	return nil
}

// readChildConfig decodes the Options JSON streamed over fd 4 by the
// parent. It blocks until the parent closes its write end.
func readChildConfig() (*childConfig, error) {
	f := os.NewFile(configFD, "config")
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config pipe: %w", err)
	}

	var cfg childConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

// waitBarrier blocks reading one byte from fd 3. EOF (parent closed the
// write end without writing) means the parent aborted spawn after clone;
// per spec.md §4.1's explicit failure-semantics requirement, the child
// must detect this and exit rather than block forever.
func waitBarrier() error {
	f := os.NewFile(barrierFD, "barrier")
	defer f.Close()

	buf := make([]byte, 1)

	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read barrier: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("parent aborted before releasing barrier")
	}

	return nil
}

func toRootfsSpec(opts sandbox.Options) rootfs.Spec {
	spec := rootfs.Spec{
		RootfsPath: opts.RootfsPath,
		MountProc:  opts.MountProc,
		MountDev:   opts.MountDev,
		TmpfsSize:  opts.TmpfsSize,
		DevSize:    opts.DevSize,
		ShmSize:    opts.ShmSize,
	}

	switch opts.FSMode {
	case sandbox.FSHost:
		spec.Mode = rootfs.ModeHost
	case sandbox.FSTmpfs:
		spec.Mode = rootfs.ModeTmpfs
	case sandbox.FSRootfs:
		spec.Mode = rootfs.ModeRootfs
	}

	for _, m := range opts.Mounts {
		spec.Mounts = append(spec.Mounts, rootfs.BindMount{
			Host:     m.Host,
			Dest:     m.Dest,
			ReadOnly: m.Mode == sandbox.MountRO,
		})
	}

	return spec
}

// resolveBinary finds the absolute path to name, searching PATH from env
// when name has no slash, matching execve's own lookup semantics applied
// ahead of time since unix.Exec does not do PATH resolution itself.
func resolveBinary(name string, env []string) (string, error) {
	for _, c := range name {
		if c == '/' {
			return name, nil
		}
	}

	path := "/usr/bin:/bin:/usr/sbin:/sbin:/usr/local/bin"
	for _, kv := range env {
		if len(kv) > 5 && kv[:5] == "PATH=" {
			path = kv[5:]
			break
		}
	}

	dirs := splitPath(path)
	for _, dir := range dirs {
		candidate := dir + "/" + name
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s: not found in PATH", name)
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == ':' {
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// die logs the single diagnostic line naming the failing step and exits
// 127, the ChildSetup failure contract from spec.md §7. It goes through
// shared/logger at Error level, like every other diagnostic in this
// module, rather than writing directly to stderr.
func die(step string, err error) {
	logger.Error("child setup failed", logger.Ctx{"op": step, "errno": err})
	os.Exit(127)
}
