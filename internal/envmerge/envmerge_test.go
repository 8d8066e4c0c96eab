package envmerge

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test Merge defaults.
func TestMergeDefaults(t *testing.T) {
	got := Merge(nil)
	sort.Strings(got)

	assert.Equal(t, []string{"HOME=/root", "PATH=/usr/bin:/bin:/usr/sbin:/sbin:/usr/local/bin", "TERM=xterm"}, got)
}

// Test Merge user override.
func TestMergeUserOverride(t *testing.T) {
	got := Merge(map[string]string{"HOME": "/home/alice", "EXTRA": "1"})
	sort.Strings(got)

	assert.Equal(t, []string{
		"EXTRA=1",
		"HOME=/home/alice",
		"PATH=/usr/bin:/bin:/usr/sbin:/sbin:/usr/local/bin",
		"TERM=xterm",
	}, got)
}

// Test Merge idempotence: merging the same user entries twice produces
// identical output, per spec.md §8's testable property.
func TestMergeIdempotent(t *testing.T) {
	user := map[string]string{"FOO": "bar"}

	first := Merge(user)
	sort.Strings(first)

	second := Merge(user)
	sort.Strings(second)

	assert.Equal(t, first, second)
}
