package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HQarroum/microbox/internal/config"
	"github.com/HQarroum/microbox/internal/netconfig"
	"github.com/HQarroum/microbox/internal/sandbox"
	"github.com/HQarroum/microbox/shared/logger"
)

// cmdGlobal carries flags shared across subcommands, mirroring the
// teacher's cmdGlobal/cmdForksyscall split between a thin global struct
// and one struct per subcommand.
type cmdGlobal struct {
	flagDebug bool
}

type cmdRoot struct {
	global *cmdGlobal

	flagFS           string
	flagNet          string
	flagMountProc    bool
	flagMountDev     bool
	flagMountRO      []string
	flagMountRW      []string
	flagEnv          []string
	flagAllowSyscall []string
	flagDenySyscall  []string
	flagHostname     string
	flagCPUs         float64
	flagMemory       string
	flagDropCaps     bool
	flagConfig       string
}

func (c *cmdRoot) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "microbox [options] -- <cmd> [args...]"
	cmd.Short = "Run a command inside a minimal Linux container"
	cmd.Long = `Description:
  microbox runs a single command inside a fresh set of Linux namespaces,
  with an optional filesystem, network, cgroup, and seccomp policy
  applied before the command is exec'd.

  A literal "--" is required to separate microbox's own options from
  the command to run.
`
	cmd.RunE = c.Run
	cmd.Args = cobra.ArbitraryArgs
	cmd.DisableFlagsInUseLine = true
	cmd.SilenceUsage = true

	cmd.Flags().StringVar(&c.flagFS, "fs", "host", "Filesystem mode: host, tmpfs, or a rootfs directory")
	cmd.Flags().StringVar(&c.flagNet, "net", "none", "Network mode: none, host, private, or bridge")
	cmd.Flags().BoolVar(&c.flagMountProc, "proc", false, "Mount /proc inside the sandbox")
	cmd.Flags().BoolVar(&c.flagMountDev, "dev", false, "Mount /dev inside the sandbox")
	cmd.Flags().StringArrayVar(&c.flagMountRO, "mount-ro", nil, "Bind mount HOST:DEST read-only (repeatable)")
	cmd.Flags().StringArrayVar(&c.flagMountRW, "mount-rw", nil, "Bind mount HOST:DEST read-write (repeatable)")
	cmd.Flags().StringArrayVar(&c.flagEnv, "env", nil, "Set KEY=VALUE in the sandbox environment (repeatable)")
	cmd.Flags().StringArrayVar(&c.flagAllowSyscall, "allow-syscall", nil, "Remove NAME from the effective denylist (repeatable)")
	cmd.Flags().StringArrayVar(&c.flagDenySyscall, "deny-syscall", nil, "Add NAME to the effective denylist (repeatable)")
	cmd.Flags().StringVar(&c.flagHostname, "hostname", "microbox", "UTS hostname for the sandbox")
	cmd.Flags().Float64Var(&c.flagCPUs, "cpus", 0, "CPU quota in cores, 0 = unlimited")
	cmd.Flags().StringVar(&c.flagMemory, "memory", "", "Memory ceiling (suffixes k/K,m/M,g/G,b/B), empty = unlimited")
	cmd.Flags().BoolVar(&c.flagDropCaps, "drop-caps", true, "Drop all capabilities before exec")
	cmd.Flags().StringVar(&c.flagConfig, "config", "", "Optional YAML defaults file")

	return cmd
}

func (c *cmdRoot) Run(cmd *cobra.Command, args []string) error {
	logger.SetDebug(c.global.flagDebug)

	dashAt := cmd.Flags().ArgsLenAtDash()
	if dashAt < 0 {
		return fmt.Errorf("missing required \"--\" delimiter before the command to run")
	}

	childArgs := args[dashAt:]
	if len(childArgs) == 0 {
		return fmt.Errorf("no command given after \"--\"")
	}

	var defaults *config.Defaults
	if c.flagConfig != "" {
		var err error
		defaults, err = config.Load(c.flagConfig)
		if err != nil {
			return err
		}

		if defaults.Hostname != "" && !cmd.Flags().Changed("hostname") {
			c.flagHostname = defaults.Hostname
		}
	}

	opts, err := c.buildOptions(childArgs)
	if err != nil {
		return err
	}

	if defaults != nil {
		if err := applyConfigDefaults(opts, defaults); err != nil {
			return err
		}
	}

	opts.Dump(func(format string, a ...any) {
		fmt.Fprintf(os.Stdout, format, a...)
	})

	proc, err := sandbox.Spawn(opts)
	if err != nil {
		return err
	}

	code, err := sandbox.Wait(proc)
	if err != nil {
		return err
	}

	os.Exit(code)
	return nil
}

func (c *cmdRoot) buildOptions(childArgs []string) (*sandbox.Options, error) {
	opts := &sandbox.Options{
		Hostname:      c.flagHostname,
		CPUs:          c.flagCPUs,
		MountProc:     c.flagMountProc,
		MountDev:      c.flagMountDev,
		Env:           map[string]string{},
		SyscallsAllow: c.flagAllowSyscall,
		SyscallsDeny:  c.flagDenySyscall,
		DropCaps:      c.flagDropCaps,
		Cmd:           childArgs,
	}

	switch c.flagFS {
	case "host":
		opts.FSMode = sandbox.FSHost
	case "tmpfs":
		opts.FSMode = sandbox.FSTmpfs
	default:
		opts.FSMode = sandbox.FSRootfs
		opts.RootfsPath = c.flagFS
	}

	switch c.flagNet {
	case "none":
		opts.NetMode = sandbox.NetNone
	case "host":
		opts.NetMode = sandbox.NetHost
	case "private":
		opts.NetMode = sandbox.NetPrivate
	case "bridge":
		opts.NetMode = sandbox.NetBridge
	default:
		return nil, fmt.Errorf("invalid --net value %q", c.flagNet)
	}

	memory, err := parseMemory(c.flagMemory)
	if err != nil {
		return nil, err
	}
	opts.Memory = memory

	if len(c.flagMountRO) > 128 {
		return nil, fmt.Errorf("--mount-ro may be repeated at most 128 times")
	}

	for _, spec := range c.flagMountRO {
		m, err := parseMountSpec(spec, sandbox.MountRO)
		if err != nil {
			return nil, err
		}
		opts.Mounts = append(opts.Mounts, m)
	}

	for _, spec := range c.flagMountRW {
		m, err := parseMountSpec(spec, sandbox.MountRW)
		if err != nil {
			return nil, err
		}
		opts.Mounts = append(opts.Mounts, m)
	}

	for _, kv := range c.flagEnv {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --env entry %q, want KEY=VALUE", kv)
		}
		opts.Env[k] = v
	}

	return opts, nil
}

// applyConfigDefaults layers the optional config file's remaining settings
// onto opts: CLI flags (already applied in buildOptions) always win, the
// config file wins over the built-in default, matching the precedence
// cmd_root.go already applies to --hostname.
func applyConfigDefaults(opts *sandbox.Options, defaults *config.Defaults) error {
	if err := netconfig.SetBridgeSubnet(defaults.BridgeSubnet); err != nil {
		return err
	}

	if opts.TmpfsSize == "" {
		opts.TmpfsSize = defaults.TmpfsSize
	}
	if opts.DevSize == "" {
		opts.DevSize = defaults.DevSize
	}
	if opts.ShmSize == "" {
		opts.ShmSize = defaults.ShmSize
	}

	envDefaults := map[string]string{
		"PATH": defaults.EnvPath,
		"HOME": defaults.EnvHome,
		"TERM": defaults.EnvTerm,
	}
	for key, val := range envDefaults {
		if val == "" {
			continue
		}
		if _, set := opts.Env[key]; !set {
			opts.Env[key] = val
		}
	}

	return nil
}

func parseMountSpec(spec string, mode sandbox.MountMode) (sandbox.MountSpec, error) {
	host, dest, ok := strings.Cut(spec, ":")
	if !ok {
		return sandbox.MountSpec{}, fmt.Errorf("invalid mount spec %q, want HOST:DEST", spec)
	}

	return sandbox.MountSpec{Host: host, Dest: dest, Mode: mode}, nil
}
