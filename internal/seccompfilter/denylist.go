package seccompfilter

// defaultDeny is the baseline syscall denylist from spec.md §4.5 /
// original_source/seccomp.c: syscalls that let a container escape its
// namespaces, load kernel modules, or otherwise reach outside the
// sandbox's declared resources. It is denied by default; a user may shrink
// it with --allow-syscall or extend it with --deny-syscall.
var defaultDeny = []string{
	"acct",
	"add_key",
	"adjtimex",
	"bpf",
	"clock_adjtime",
	"clock_settime",
	"clone3",
	"create_module",
	"delete_module",
	"fanotify_init",
	"finit_module",
	"get_kernel_syms",
	"init_module",
	"io_pgetevents",
	"ioperm",
	"iopl",
	"kcmp",
	"kexec_file_load",
	"kexec_load",
	"keyctl",
	"lookup_dcookie",
	"mount",
	"move_mount",
	"move_pages",
	"name_to_handle_at",
	"nfsservctl",
	"open_by_handle_at",
	"perf_event_open",
	"personality",
	"pivot_root",
	"process_vm_readv",
	"process_vm_writev",
	"ptrace",
	"query_module",
	"quotactl",
	"reboot",
	"request_key",
	"set_mempolicy",
	"setns",
	"settimeofday",
	"stime",
	"swapoff",
	"swapon",
	"sysfs",
	"_sysctl",
	"umount",
	"umount2",
	"unshare",
	"uselib",
	"userfaultfd",
	"ustat",
	"vm86",
	"vm86old",
}

// DefaultDenylist returns a copy of the built-in denylist, the "length" and
// "ith name" accessors spec.md §4.5 calls out as the Seccomp Builder's data
// source.
func DefaultDenylist() []string {
	out := make([]string, len(defaultDeny))
	copy(out, defaultDeny)
	return out
}
