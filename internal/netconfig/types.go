// Package netconfig implements the Netlink Client and Network Topology
// components described in spec.md §4.3 and §4.7: it composes bridge, veth,
// NAT and in-namespace addressing on top of github.com/vishvananda/netlink.
package netconfig

import (
	"fmt"
	"net"
)

// defaultBridgeSubnet is 172.20.0.0/16 as a big-endian uint32, matching the
// original C implementation's MICROBOX_DEFAULT_BRIDGE_IP_SUBNET. It and
// PrefixLen are package-level vars rather than consts because the optional
// config file's bridge_subnet setting overrides them at startup, via
// SetBridgeSubnet.
var (
	defaultBridgeSubnet uint32 = 172<<24 | 20<<16
	// PrefixLen is the subnet prefix length used for both the bridge and
	// container addresses.
	PrefixLen = 16
)

// BridgeName is the single, process-wide shared bridge every Bridge-mode
// sandbox joins.
const BridgeName = "microbox0"

// SetBridgeSubnet overrides the default 172.20.0.0/16 bridge subnet from the
// optional config file's bridge_subnet setting. Must be called, if at all,
// before any NewConfig call. An empty cidr is a no-op.
func SetBridgeSubnet(cidr string) error {
	if cidr == "" {
		return nil
	}

	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("parse bridge subnet %q: %w", cidr, err)
	}

	v4 := ipnet.IP.To4()
	if v4 == nil {
		return fmt.Errorf("bridge subnet %q is not IPv4", cidr)
	}

	ones, _ := ipnet.Mask.Size()

	defaultBridgeSubnet = ipToUint32(v4)
	PrefixLen = ones

	return nil
}

func ipToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

// Config is the resolved network identity of one Bridge-mode sandbox:
// spec.md §3's NetnsConfig.
type Config struct {
	BridgeName    string
	VethHost      string
	VethContainer string
	BridgeIP      net.IP
	ContainerIP   net.IP
	PrefixLen     int
	InterfaceSlot int
}

// NewConfig derives a Config for the given interface slot (0-253), per
// spec.md §3: id is meant to range over 172.20.0.0/16 host addresses so the
// bridge is always .1 and containers start at .2.
func NewConfig(slot int) (*Config, error) {
	if slot < 0 || slot > 253 {
		return nil, fmt.Errorf("interface slot %d out of range [0,253]", slot)
	}

	return &Config{
		BridgeName:    BridgeName,
		VethHost:      fmt.Sprintf("mbx%dh", slot),
		VethContainer: fmt.Sprintf("mbx%dc", slot),
		BridgeIP:      uint32ToIP(defaultBridgeSubnet + 1),
		ContainerIP:   uint32ToIP(defaultBridgeSubnet + uint32(slot) + 2),
		PrefixLen:     PrefixLen,
		InterfaceSlot: slot,
	}, nil
}

func uint32ToIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// BridgeSubnet returns the bridge's /PrefixLen network, e.g. 172.20.0.0/16.
func (c *Config) BridgeSubnet() *net.IPNet {
	mask := net.CIDRMask(c.PrefixLen, 32)
	return &net.IPNet{IP: c.BridgeIP.Mask(mask), Mask: mask}
}
