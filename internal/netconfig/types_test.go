package netconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test NewConfig derives the expected names and addresses.
func TestNewConfigDerivation(t *testing.T) {
	cfg, err := NewConfig(5)
	require.NoError(t, err)

	assert.Equal(t, "microbox0", cfg.BridgeName)
	assert.Equal(t, "mbx5h", cfg.VethHost)
	assert.Equal(t, "mbx5c", cfg.VethContainer)
	assert.Equal(t, "172.20.0.1", cfg.BridgeIP.String())
	assert.Equal(t, "172.20.0.7", cfg.ContainerIP.String())
	assert.Equal(t, 16, cfg.PrefixLen)
}

// Test NewConfig rejects out-of-range slots.
func TestNewConfigRange(t *testing.T) {
	_, err := NewConfig(-1)
	assert.Error(t, err)

	_, err = NewConfig(254)
	assert.Error(t, err)

	_, err = NewConfig(253)
	assert.NoError(t, err)
}

// Test BridgeSubnet matches the documented 172.20.0.0/16 default.
func TestBridgeSubnet(t *testing.T) {
	cfg, err := NewConfig(0)
	require.NoError(t, err)

	assert.Equal(t, "172.20.0.0/16", cfg.BridgeSubnet().String())
}
