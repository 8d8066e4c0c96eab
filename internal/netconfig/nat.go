package netconfig

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/HQarroum/microbox/shared/logger"
)

// enableIPForward sets net.ipv4.ip_forward=1, required for the bridge's NAT
// path to carry traffic.
func enableIPForward() error {
	return os.WriteFile("/proc/sys/net/ipv4/ip_forward", []byte("1"), 0o644)
}

// firewallBackend names the detected NAT tool, chosen per spec.md §4.3:
// "detect iptables vs nftables by checking executable existence".
type firewallBackend int

const (
	backendNone firewallBackend = iota
	backendIPTables
	backendNFTables
)

func detectFirewallBackend() firewallBackend {
	for _, p := range []string{"/usr/sbin/iptables", "/sbin/iptables"} {
		if _, err := os.Stat(p); err == nil {
			return backendIPTables
		}
	}

	for _, p := range []string{"/usr/sbin/nft", "/sbin/nft"} {
		if _, err := os.Stat(p); err == nil {
			return backendNFTables
		}
	}

	return backendNone
}

// setupNAT configures masquerading and forwarding for the bridge subnet, per
// spec.md §4.3 step 3. It flushes our prior rules first so repeat
// invocations (new containers joining the same shared bridge) stay
// idempotent at the chain level, then adds the masquerade rule and the two
// FORWARD rules at position 1.
func setupNAT(cfg *Config) error {
	subnet := cfg.BridgeSubnet().String()
	defaultIface := "eth0"

	if cli, err := NewClient(); err == nil {
		defaultIface = cli.DefaultRouteInterface()
		cli.Close()
	} else {
		logger.Warn("could not open netlink for default route discovery, using eth0", logger.Ctx{"err": err})
	}

	if err := enableIPForward(); err != nil {
		logger.Warn("could not enable ip_forward, NAT may not work", logger.Ctx{"err": err})
	}

	switch detectFirewallBackend() {
	case backendIPTables:
		return setupNATIPTables(subnet, cfg.BridgeName, defaultIface)
	case backendNFTables:
		return setupNATNFTables(subnet, cfg.BridgeName)
	default:
		return fmt.Errorf("neither iptables nor nftables found on host")
	}
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, out)
	}

	return nil
}

func runBestEffort(name string, args ...string) {
	if err := run(name, args...); err != nil {
		logger.Debug("best-effort command failed, ignoring", logger.Ctx{"cmd": name, "args": args, "err": err})
	}
}

func setupNATIPTables(subnet, bridge, defaultIface string) error {
	// Flush our prior rules for this bridge before re-adding, per spec.md
	// §4.3: "flush prior rules for our chains" (coarse: best-effort delete,
	// may run more than once if multiple rules accumulated).
	for i := 0; i < 8; i++ {
		if err := run("iptables", "-t", "nat", "-D", "POSTROUTING", "-s", subnet, "!", "-d", subnet, "-j", "MASQUERADE"); err != nil {
			break
		}
	}

	for i := 0; i < 8; i++ {
		if err := run("iptables", "-D", "FORWARD", "-i", bridge, "-o", defaultIface, "-j", "ACCEPT"); err != nil {
			break
		}
	}

	for i := 0; i < 8; i++ {
		if err := run("iptables", "-D", "FORWARD", "-i", defaultIface, "-o", bridge, "-m", "conntrack", "--ctstate", "ESTABLISHED,RELATED", "-j", "ACCEPT"); err != nil {
			break
		}
	}

	if err := run("iptables", "-t", "nat", "-A", "POSTROUTING", "-s", subnet, "!", "-d", subnet, "-j", "MASQUERADE"); err != nil {
		return fmt.Errorf("add masquerade rule: %w", err)
	}

	if err := run("iptables", "-I", "FORWARD", "1", "-i", bridge, "-o", defaultIface, "-j", "ACCEPT"); err != nil {
		return fmt.Errorf("add outbound forward rule: %w", err)
	}

	if err := run("iptables", "-I", "FORWARD", "1", "-i", defaultIface, "-o", bridge, "-m", "conntrack", "--ctstate", "ESTABLISHED,RELATED", "-j", "ACCEPT"); err != nil {
		return fmt.Errorf("add return forward rule: %w", err)
	}

	return nil
}

func setupNATNFTables(subnet, bridge string) error {
	runBestEffort("nft", "flush", "chain", "nat", "postrouting")
	runBestEffort("nft", "flush", "chain", "filter", "forward")

	runBestEffort("nft", "add", "table", "nat")
	runBestEffort("nft", "add", "chain", "nat", "postrouting", "{ type nat hook postrouting priority 100; }")
	runBestEffort("nft", "add", "table", "filter")
	runBestEffort("nft", "add", "chain", "filter", "forward", "{ type filter hook forward priority 0; }")

	if err := run("nft", "add", "rule", "nat", "postrouting", "ip", "saddr", subnet, "masquerade"); err != nil {
		return fmt.Errorf("add nft masquerade rule: %w", err)
	}

	if err := run("nft", "add", "rule", "filter", "forward", "iif", bridge, "accept"); err != nil {
		return fmt.Errorf("add nft forward-in rule: %w", err)
	}

	if err := run("nft", "add", "rule", "filter", "forward", "oif", bridge, "accept"); err != nil {
		return fmt.Errorf("add nft forward-out rule: %w", err)
	}

	return nil
}
