// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package netdev

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/logctx"
	"github.com/ironcore-dev/vmtopology/internal/shell"
	"github.com/sirupsen/logrus"
)

var log = logger.GetLogger("netdev")

func taskLog(ctx context.Context) *logrus.Entry {
	return logctx.FromContext(ctx, log)
}

// probeRetries is the number of attempts of an existence check. Links that
// were just moved between namespaces take a moment to show up.
const probeRetries = 3

// Namespace selects where a command runs. The zero value is the host, PID
// selects the network namespace of a container and Name a named netns.
type Namespace struct {
	PID  int
	Name string
}

// Host is the network namespace of the test server.
var Host = Namespace{}

func Container(pid int) Namespace { return Namespace{PID: pid} }

func Netns(name string) Namespace { return Namespace{Name: name} }

func (ns Namespace) IsHost() bool { return ns.PID == 0 && ns.Name == "" }

// Wrap prefixes args so they run inside the namespace. A PID wins over a
// name.
func (ns Namespace) Wrap(args ...string) []string {
	switch {
	case ns.PID != 0:
		return append([]string{"nsenter", "-t", strconv.Itoa(ns.PID), "-n"}, args...)
	case ns.Name != "":
		return append([]string{"ip", "netns", "exec", ns.Name}, args...)
	}
	return args
}

func (ns Namespace) String() string {
	switch {
	case ns.PID != 0:
		return fmt.Sprintf("pid %d", ns.PID)
	case ns.Name != "":
		return "netns " + ns.Name
	}
	return "host"
}

// Client runs iproute2 and bridge-utils commands.
type Client struct {
	runner shell.Runner
}

func New(runner shell.Runner) *Client {
	return &Client{runner: runner}
}

// Runner returns the runner the client uses.
func (c *Client) Runner() shell.Runner { return c.runner }

// Run runs a command inside ns.
func (c *Client) Run(ctx context.Context, ns Namespace, args ...string) (string, error) {
	return c.runner.Run(ctx, shell.Cmd(ns.Wrap(args...)...))
}

func (c *Client) probe(ctx context.Context, ns Namespace, negative bool, args ...string) (string, error) {
	cmd := shell.Cmd(ns.Wrap(args...)...)
	cmd.Retry = probeRetries
	cmd.Negative = negative
	cmd.Probe = true
	return c.runner.Run(ctx, cmd)
}

// Exists reports whether the interface exists in ns.
func (c *Client) Exists(ctx context.Context, ns Namespace, intf string) bool {
	_, err := c.probe(ctx, ns, false, "ip", "link", "show", "dev", intf)
	return err == nil
}

// NotExists reports whether the interface is absent from ns. It is not the
// negation of Exists: both retry until they see the expected state.
func (c *Client) NotExists(ctx context.Context, ns Namespace, intf string) bool {
	_, err := c.probe(ctx, ns, true, "ip", "link", "show", "dev", intf)
	return err == nil
}

// IPExists reports whether addr is configured on intf.
func (c *Client) IPExists(ctx context.Context, ns Namespace, intf, addr string, ipv6 bool) bool {
	args := []string{"ip", "addr", "show", "dev", intf}
	if ipv6 {
		args = []string{"ip", "-6", "addr", "show", "dev", intf}
	}
	out, err := c.probe(ctx, ns, false, args...)
	return err == nil && strings.Contains(out, addr)
}

// RouteExists reports whether the default route goes via gw.
func (c *Client) RouteExists(ctx context.Context, ns Namespace, gw string, ipv6 bool) bool {
	args := []string{"ip", "route", "show", "default"}
	if ipv6 {
		args = []string{"ip", "-6", "route", "show", "default"}
	}
	out, err := c.probe(ctx, ns, false, args...)
	return err == nil && strings.Contains(out, gw)
}

// Up sets the link up. On the host a failure is ignored.
func (c *Client) Up(ctx context.Context, ns Namespace, intf string) error {
	return c.setState(ctx, ns, intf, "up")
}

// Down sets the link down. On the host a failure is ignored.
func (c *Client) Down(ctx context.Context, ns Namespace, intf string) error {
	return c.setState(ctx, ns, intf, "down")
}

func (c *Client) setState(ctx context.Context, ns Namespace, intf, state string) error {
	cmd := shell.Cmd(ns.Wrap("ip", "link", "set", intf, state)...)
	cmd.IgnoreErrors = ns.IsHost()
	_, err := c.runner.Run(ctx, cmd)
	return err
}

// DisableTxOffload turns off tx checksum offloading.
func (c *Client) DisableTxOffload(ctx context.Context, ns Namespace, intf string) error {
	_, err := c.Run(ctx, ns, "ethtool", "-K", intf, "tx", "off")
	return err
}

// SetMTU sets the MTU of a link.
func (c *Client) SetMTU(ctx context.Context, ns Namespace, intf string, mtu int) error {
	_, err := c.Run(ctx, ns, "ip", "link", "set", "dev", intf, "mtu", strconv.Itoa(mtu))
	return err
}

// AddVeth creates a veth pair on the host.
func (c *Client) AddVeth(ctx context.Context, name, peer string) error {
	_, err := c.Run(ctx, Host, "ip", "link", "add", name, "type", "veth", "peer", "name", peer)
	return err
}

// DeleteLink deletes a link, failures are ignored.
func (c *Client) DeleteLink(ctx context.Context, ns Namespace, intf string) {
	cmd := shell.Cmd(ns.Wrap("ip", "link", "delete", "dev", intf)...)
	cmd.IgnoreErrors = true
	_, _ = c.runner.Run(ctx, cmd)
}

// Move moves a link from ns into target.
func (c *Client) Move(ctx context.Context, ns Namespace, intf string, target Namespace) error {
	dst := target.Name
	switch {
	case target.PID != 0:
		dst = strconv.Itoa(target.PID)
	case target.IsHost():
		dst = "1"
	}
	_, err := c.Run(ctx, ns, "ip", "link", "set", "dev", intf, "netns", dst)
	return err
}

// Rename renames a link inside ns.
func (c *Client) Rename(ctx context.Context, ns Namespace, intf, name string) error {
	_, err := c.Run(ctx, ns, "ip", "link", "set", "dev", intf, "name", name)
	return err
}

// AddAddr adds an address to a link.
func (c *Client) AddAddr(ctx context.Context, ns Namespace, intf, addr string, ipv6 bool) error {
	_, err := c.Run(ctx, ns, ipArgs(ipv6, "addr", "add", addr, "dev", intf)...)
	return err
}

// FlushAddrs removes all addresses of one family from a link.
func (c *Client) FlushAddrs(ctx context.Context, ns Namespace, intf string, ipv6 bool) error {
	_, err := c.Run(ctx, ns, ipArgs(ipv6, "addr", "flush", "dev", intf)...)
	return err
}

// AddDefaultRoute adds a default route via gw out of intf.
func (c *Client) AddDefaultRoute(ctx context.Context, ns Namespace, gw, intf string, ipv6 bool) error {
	_, err := c.Run(ctx, ns, ipArgs(ipv6, "route", "add", "default", "via", gw, "dev", intf)...)
	return err
}

// DeleteDefaultRoute deletes the IPv4 default route.
func (c *Client) DeleteDefaultRoute(ctx context.Context, ns Namespace) error {
	_, err := c.Run(ctx, ns, "ip", "route", "del", "default")
	return err
}

// FlushDefaultRoutes removes all default routes of one family.
func (c *Client) FlushDefaultRoutes(ctx context.Context, ns Namespace, ipv6 bool) error {
	_, err := c.Run(ctx, ns, ipArgs(ipv6, "route", "flush", "default")...)
	return err
}

// AddVlan creates a vlan sub-interface of intf inside ns and sets it up.
func (c *Client) AddVlan(ctx context.Context, ns Namespace, intf, name, vlanID string) error {
	if _, err := c.Run(ctx, ns, "ip", "link", "add", "link", intf, "name", name, "type", "vlan", "id", vlanID); err != nil {
		return err
	}
	_, err := c.Run(ctx, ns, "ip", "link", "set", name, "up")
	return err
}

func ipArgs(ipv6 bool, args ...string) []string {
	if ipv6 {
		return append([]string{"ip", "-6"}, args...)
	}
	return append([]string{"ip"}, args...)
}
