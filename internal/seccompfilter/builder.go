package seccompfilter

import (
	"fmt"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

// Builder assembles and loads the seccomp-bpf filter described in
// spec.md §4.5: default action ALLOW, with every name in the effective
// denylist returning ENOSYS.
type Builder struct {
	allow []string
	deny  []string
}

// NewBuilder starts from the default denylist (spec.md §4.5), plus the
// user-supplied deny and allow lists layered on top.
func NewBuilder(userAllow, userDeny []string) *Builder {
	return &Builder{
		allow: userAllow,
		deny:  append(DefaultDenylist(), userDeny...),
	}
}

// effectiveDeny computes (default_deny ∪ user_deny) \ user_allow.
func (b *Builder) effectiveDeny() []string {
	allow := make(map[string]bool, len(b.allow))
	for _, name := range b.allow {
		allow[name] = true
	}

	seen := make(map[string]bool, len(b.deny))
	out := make([]string, 0, len(b.deny))

	for _, name := range b.deny {
		if allow[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}

	return out
}

// Load builds the filter with default action ALLOW, installs an ENOSYS
// rule for every resolvable name in the effective denylist, sets
// no_new_privs, and loads it into the kernel for the calling thread. Names
// that don't resolve to a syscall number on this architecture are silently
// skipped, per spec.md §4.5 (portability across build targets).
func (b *Builder) Load() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no_new_privs: %w", err)
	}

	filter, err := seccomp.NewFilter(seccomp.ActAllow)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()

	for _, name := range b.effectiveDeny() {
		syscallID, resolveErr := seccomp.GetSyscallFromName(name)
		if resolveErr != nil {
			continue
		}

		if err := filter.AddRule(syscallID, seccomp.ActErrno.SetReturnCode(int16(unix.ENOSYS))); err != nil {
			return fmt.Errorf("add rule for %s: %w", name, err)
		}
	}

	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}

	return nil
}
