package seccompfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test DefaultDenylist returns an independent copy.
func TestDefaultDenylistCopy(t *testing.T) {
	a := DefaultDenylist()
	a[0] = "mutated"

	b := DefaultDenylist()
	assert.NotEqual(t, "mutated", b[0])
}

// Test DefaultDenylist contains the namespace/escape-vector syscalls
// spec.md §4.5 calls out by name.
func TestDefaultDenylistContents(t *testing.T) {
	list := DefaultDenylist()

	for _, want := range []string{"mount", "umount2", "pivot_root", "setns", "unshare", "ptrace", "bpf", "reboot"} {
		assert.Contains(t, list, want)
	}

	assert.GreaterOrEqual(t, len(list), 40)
}

// Test effectiveDeny computes (default ∪ user_deny) \ user_allow.
func TestEffectiveDeny(t *testing.T) {
	b := NewBuilder([]string{"mount"}, []string{"socket"})

	deny := b.effectiveDeny()
	assert.Contains(t, deny, "socket")
	assert.Contains(t, deny, "umount2")
	assert.NotContains(t, deny, "mount")
}

// Test effectiveDeny never duplicates a name present in both the default
// list and a user deny entry.
func TestEffectiveDenyNoDuplicates(t *testing.T) {
	b := NewBuilder(nil, []string{"mount", "mount"})

	deny := b.effectiveDeny()

	seen := map[string]int{}
	for _, name := range deny {
		seen[name]++
	}

	assert.Equal(t, 1, seen["mount"])
}
