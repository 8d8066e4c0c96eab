package netconfig

import (
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/vishvananda/netns"

	"github.com/HQarroum/microbox/shared/logger"
)

// pinCurrentNetns locks the calling goroutine to its OS thread and opens a
// handle to the thread's current network namespace with netns.Get(). Holding the
// handle for the duration of the poll below guards against the kernel
// recycling the namespace's identity out from under the scan; the handle
// is released once the interface has been found (or the poll gives up).
func pinCurrentNetns() (netns.NsHandle, error) {
	runtime.LockOSThread()
	return netns.Get()
}

// ipNet builds a /prefixLen network literal for ip, used when addresses
// need to be expressed as *net.IPNet for the netlink client.
func ipNet(ip net.IP, prefixLen int) *net.IPNet {
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(prefixLen, 32)}
}

// SetupHostSide performs the parent-side half of Bridge networking, per
// spec.md §4.3: ensure the shared bridge exists, create this sandbox's veth
// pair, attach it, and configure NAT/forwarding. Must run before the
// barrier is released, and before moving the container-side veth end.
func SetupHostSide(cfg *Config) error {
	cli, err := NewClient()
	if err != nil {
		return fmt.Errorf("setup host network: %w", err)
	}
	defer cli.Close()

	if err := cli.EnsureBridge(cfg.BridgeName, ipNet(cfg.BridgeIP, cfg.PrefixLen)); err != nil {
		return fmt.Errorf("ensure bridge: %w", err)
	}

	if err := cli.CreateVethPair(cfg.VethHost, cfg.VethContainer, cfg.BridgeName); err != nil {
		return fmt.Errorf("setup veth pair: %w", err)
	}

	if err := setupNAT(cfg); err != nil {
		return fmt.Errorf("setup NAT: %w", err)
	}

	return nil
}

// MoveContainerSide moves this sandbox's container-side veth end into the
// child's network namespace, per spec.md §4.1 step (d). Must run before the
// barrier is released: the child cannot observe the interface until it is
// moved, but the move itself doesn't depend on the child having run yet.
func MoveContainerSide(cfg *Config, childPID int) error {
	cli, err := NewClient()
	if err != nil {
		return fmt.Errorf("move veth to container: %w", err)
	}
	defer cli.Close()

	if err := cli.MoveToNetns(cfg.VethContainer, childPID); err != nil {
		return fmt.Errorf("move veth to container: %w", err)
	}

	return nil
}

// ConfigureContainerSide runs inside the child, after the filesystem is
// built (spec.md §5 ordering: network configuration reads /proc/self/*,
// which must refer to the post-pivot root). It polls for the moved
// interface, addresses it, brings it and loopback up, and adds a default
// route via the bridge.
func ConfigureContainerSide(cfg *Config) error {
	handle, err := pinCurrentNetns()
	if err != nil {
		return fmt.Errorf("open current netns: %w", err)
	}

	iface, found := pollForContainerInterface(200 * time.Millisecond)

	handle.Close()
	runtime.UnlockOSThread()

	if !found {
		return fmt.Errorf("container veth did not appear within the poll window")
	}

	cli, err := NewClient()
	if err != nil {
		return fmt.Errorf("configure container network: %w", err)
	}
	defer cli.Close()

	if err := cli.AddAddress(iface, ipNet(cfg.ContainerIP, cfg.PrefixLen)); err != nil {
		return fmt.Errorf("assign container address: %w", err)
	}

	if err := cli.SetUp(iface); err != nil {
		return fmt.Errorf("bring up %s: %w", iface, err)
	}

	if err := cli.SetUp("lo"); err != nil {
		return fmt.Errorf("bring up loopback: %w", err)
	}

	if err := cli.AddDefaultRoute(iface, cfg.BridgeIP); err != nil {
		return fmt.Errorf("add default route: %w", err)
	}

	return nil
}

// pollForContainerInterface bounds the wait described in spec.md §4.3/§5
// ("a bounded polling wait (~200ms)") for the moved veth to appear.
func pollForContainerInterface(budget time.Duration) (string, bool) {
	deadline := time.Now().Add(budget)

	for {
		if iface, ok := FindContainerInterface(); ok {
			return iface, true
		}

		if time.Now().After(deadline) {
			return "", false
		}

		time.Sleep(10 * time.Millisecond)
	}
}

// Teardown deletes the host-side veth after the sandbox exits, per spec.md
// §4.3: deleting one end removes both sides. Best-effort: failures are
// logged, not propagated.
func Teardown(cfg *Config) {
	cli, err := NewClient()
	if err != nil {
		logger.Warn("teardown: could not open netlink client", logger.Ctx{"err": err})
		return
	}
	defer cli.Close()

	if err := cli.DeleteLink(cfg.VethHost); err != nil {
		logger.Warn("teardown: could not delete host veth", logger.Ctx{"iface": cfg.VethHost, "err": err})
	}
}
