package netconfig

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// Client is a thin wrapper over a netlink.Handle exposing exactly the
// RTNETLINK operations the Network Topology component needs: bridge
// create, veth pair, address/route, master, netns move, and default-route
// discovery (spec.md §4.7). Every call here assembles one request and
// waits for its ACK/error, same contract as the raw netlink protocol
// spec.md describes, but through the vishvananda/netlink library rather
// than hand-built nlmsghdr/rtattr buffers.
type Client struct {
	h *netlink.Handle
}

// NewClient opens a netlink/NETLINK_ROUTE handle in the calling network
// namespace.
func NewClient() (*Client, error) {
	h, err := netlink.NewHandle()
	if err != nil {
		return nil, fmt.Errorf("open netlink handle: %w", err)
	}

	return &Client{h: h}, nil
}

// Close releases the underlying netlink socket.
func (c *Client) Close() {
	c.h.Delete()
}

// InterfaceExists reports whether a link with the given name is present in
// the current namespace.
func (c *Client) InterfaceExists(name string) bool {
	_, err := c.h.LinkByName(name)
	return err == nil
}

// EnsureBridge creates a bridge interface if it doesn't already exist,
// assigns it the given address, and brings it up. Idempotent: calling it
// twice for the same name yields exactly one bridge (spec.md §8).
func (c *Client) EnsureBridge(name string, addr *net.IPNet) error {
	if c.InterfaceExists(name) {
		return nil
	}

	br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := c.h.LinkAdd(br); err != nil {
		return fmt.Errorf("create bridge %s: %w", name, err)
	}

	link, err := c.h.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup bridge %s after create: %w", name, err)
	}

	if err := c.h.AddrAdd(link, &netlink.Addr{IPNet: addr}); err != nil {
		return fmt.Errorf("assign bridge address %s: %w", addr, err)
	}

	if err := c.h.LinkSetUp(link); err != nil {
		return fmt.Errorf("bring bridge %s up: %w", name, err)
	}

	return nil
}

// CreateVethPair creates a veth pair (hostSide, containerSide), attaches
// hostSide to the named bridge, and brings hostSide up. The kernel creates
// both ends atomically, so there is no partial-creation case to recover
// from (spec.md §9 Open Questions).
func (c *Client) CreateVethPair(hostSide, containerSide, bridge string) error {
	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: hostSide},
		PeerName:  containerSide,
	}

	if err := c.h.LinkAdd(veth); err != nil {
		return fmt.Errorf("create veth pair %s/%s: %w", hostSide, containerSide, err)
	}

	hostLink, err := c.h.LinkByName(hostSide)
	if err != nil {
		return fmt.Errorf("lookup veth %s after create: %w", hostSide, err)
	}

	brLink, err := c.h.LinkByName(bridge)
	if err != nil {
		return fmt.Errorf("lookup bridge %s: %w", bridge, err)
	}

	if err := c.h.LinkSetMaster(hostLink, brLink); err != nil {
		return fmt.Errorf("attach %s to bridge %s: %w", hostSide, bridge, err)
	}

	if err := c.h.LinkSetUp(hostLink); err != nil {
		return fmt.Errorf("bring %s up: %w", hostSide, err)
	}

	return nil
}

// MoveToNetns moves the named interface into the target PID's network
// namespace.
func (c *Client) MoveToNetns(name string, pid int) error {
	link, err := c.h.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}

	if err := c.h.LinkSetNsPid(link, pid); err != nil {
		return fmt.Errorf("move %s to netns of pid %d: %w", name, pid, err)
	}

	return nil
}

// DeleteLink removes the named interface. Deleting a veth end removes both
// sides atomically.
func (c *Client) DeleteLink(name string) error {
	link, err := c.h.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}

	return c.h.LinkDel(link)
}

// AddAddress assigns addr to the named interface.
func (c *Client) AddAddress(name string, addr *net.IPNet) error {
	link, err := c.h.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}

	if err := c.h.AddrAdd(link, &netlink.Addr{IPNet: addr}); err != nil {
		return fmt.Errorf("assign %s to %s: %w", addr, name, err)
	}

	return nil
}

// SetUp brings the named interface up.
func (c *Client) SetUp(name string) error {
	link, err := c.h.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}

	return c.h.LinkSetUp(link)
}

// AddDefaultRoute adds a default route via gw through the named interface.
func (c *Client) AddDefaultRoute(name string, gw net.IP) error {
	link, err := c.h.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}

	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Gw:        gw,
		Dst:       nil,
	}

	if err := c.h.RouteAdd(route); err != nil {
		return fmt.Errorf("add default route via %s on %s: %w", gw, name, err)
	}

	return nil
}

// DefaultRouteInterface discovers the host's default-route interface by
// dumping the route table (RTM_GETROUTE in spec.md §4.3) and returning the
// first route with a nil destination. Falls back to "eth0" when none is
// found or the dump fails, matching the original implementation.
func (c *Client) DefaultRouteInterface() string {
	routes, err := c.h.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "eth0"
	}

	for _, r := range routes {
		if r.Dst != nil {
			continue
		}

		link, err := netlink.LinkByIndex(r.LinkIndex)
		if err != nil {
			continue
		}

		return link.Attrs().Name
	}

	return "eth0"
}

// FindContainerInterface scans links for one matching the "mbx*c" naming
// convention, the container-side discovery contract from spec.md §4.3 and
// §9 ("observable contract... pick the single matching interface").
func FindContainerInterface() (string, bool) {
	links, err := netlink.LinkList()
	if err != nil {
		return "", false
	}

	for _, l := range links {
		name := l.Attrs().Name
		if len(name) > 4 && name[:3] == "mbx" && name[len(name)-1] == 'c' {
			return name, true
		}
	}

	return "", false
}
