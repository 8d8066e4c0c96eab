package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test parseMemory with each documented suffix.
func TestParseMemorySuffixes(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"", 0},
		{"512", 512},
		{"1k", 1024},
		{"1K", 1024},
		{"4m", 4 << 20},
		{"2g", 2 << 30},
		{"100b", 100},
	}

	for _, c := range cases {
		got, err := parseMemory(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

// Test parseMemory rejects an unknown suffix.
func TestParseMemoryUnknownSuffix(t *testing.T) {
	_, err := parseMemory("5x")
	assert.Error(t, err)
}

// Test parseMemory rejects overflow.
func TestParseMemoryOverflow(t *testing.T) {
	_, err := parseMemory("99999999999999999999g")
	assert.Error(t, err)
}
