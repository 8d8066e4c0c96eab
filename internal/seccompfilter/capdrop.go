package seccompfilter

import (
	"fmt"

	"github.com/moby/sys/capability"
)

// DropCapabilities clears the full capability set (effective, permitted,
// inheritable, bounding, ambient) for the calling thread. This is the
// Supplemented Feature answering the commented-out capability drop in the
// original implementation: the child retains only what the user namespace
// already grants it relative to its own root, with no host-visible
// privilege left over. Runs after the seccomp filter loads and before
// execve, per spec.md §5 ordering (seccomp load happens-before execve,
// after everything seccomp would block).
func DropCapabilities() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("open capability set: %w", err)
	}

	if err := caps.Load(); err != nil {
		return fmt.Errorf("load capability set: %w", err)
	}

	caps.Clear(capability.CAPS | capability.BOUNDING | capability.AMBIENT)

	if err := caps.Apply(capability.CAPS | capability.BOUNDING | capability.AMBIENT); err != nil {
		return fmt.Errorf("apply cleared capability set: %w", err)
	}

	return nil
}
