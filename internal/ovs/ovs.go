// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package ovs

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/helper"
	"github.com/ironcore-dev/vmtopology/internal/logctx"
	"github.com/ironcore-dev/vmtopology/internal/shell"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
)

var log = logger.GetLogger("ovs")

// portLine matches a port of "ovs-ofctl show", e.g.
// " 1(br-vms1-0): addr:aa:bb:cc:dd:ee:ff".
var portLine = regexp.MustCompile(`^\s+(\S+)\((\S+)\):\s+addr:.+$`)

// Client drives Open vSwitch with ovs-vsctl and ovs-ofctl.
type Client struct {
	runner shell.Runner
	// symbolic makes PortIDs return port names instead of reading them from
	// the switch, for dry runs.
	symbolic bool
}

func New(runner shell.Runner, symbolic bool) *Client {
	return &Client{runner: runner, symbolic: symbolic}
}

func taskLog(ctx context.Context) *logrus.Entry {
	return logctx.FromContext(ctx, log)
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	return c.runner.Run(ctx, shell.Cmd(args...))
}

// AddBridge creates a bridge, sets its MTU unless mtu is zero and sets it up.
func (c *Client) AddBridge(ctx context.Context, bridge string, mtu int) error {
	taskLog(ctx).Infof("=== Create bridge %s with mtu %d ===", bridge, mtu)
	if _, err := c.run(ctx, "ovs-vsctl", "--may-exist", "add-br", bridge); err != nil {
		return err
	}
	if mtu != 0 {
		if _, err := c.run(ctx, "ip", "link", "set", "dev", bridge, "mtu", strconv.Itoa(mtu)); err != nil {
			return err
		}
	}
	_, err := c.run(ctx, "ip", "link", "set", "dev", bridge, "up")
	return err
}

func (c *Client) DeleteBridge(ctx context.Context, bridge string) error {
	taskLog(ctx).Infof("=== Destroy bridge %s ===", bridge)
	_, err := c.run(ctx, "ovs-vsctl", "--if-exists", "del-br", bridge)
	return err
}

// BridgeExists reports whether bridge is an OVS bridge.
func (c *Client) BridgeExists(ctx context.Context, bridge string) bool {
	cmd := shell.Cmd("ovs-vsctl", "br-exists", bridge)
	cmd.Probe = true
	_, err := c.runner.Run(ctx, cmd)
	return err == nil
}

// Ports lists the ports of a bridge. A missing bridge has no ports.
func (c *Client) Ports(ctx context.Context, bridge string) sets.Set[string] {
	cmd := shell.Cmd("ovs-vsctl", "list-ports", bridge)
	cmd.Probe = true
	cmd.IgnoreErrors = true
	out, _ := c.runner.Run(ctx, cmd)
	ports := sets.New[string]()
	for _, p := range strings.Split(out, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			ports.Insert(p)
		}
	}
	return ports
}

// BridgeOf returns the bridge a port belongs to, if any.
func (c *Client) BridgeOf(ctx context.Context, port string) (string, bool) {
	cmd := shell.Cmd("ovs-vsctl", "port-to-br", port)
	cmd.Probe = true
	out, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(out), true
}

func (c *Client) AddPort(ctx context.Context, bridge, port string) error {
	_, err := c.run(ctx, "ovs-vsctl", "--may-exist", "add-port", bridge, port)
	return err
}

func (c *Client) DeletePort(ctx context.Context, bridge, port string) error {
	_, err := c.run(ctx, "ovs-vsctl", "--if-exists", "del-port", bridge, port)
	return err
}

// Detach removes port from whatever bridge other than keep it is on.
func (c *Client) Detach(ctx context.Context, port, keep string) error {
	br, ok := c.BridgeOf(ctx, port)
	if !ok || br == "" || br == keep {
		return nil
	}
	return c.DeletePort(ctx, br, port)
}

// AttachAll detaches the ports from other bridges and adds the missing ones
// to bridge.
func (c *Client) AttachAll(ctx context.Context, bridge string, ports ...string) error {
	for _, p := range ports {
		if err := c.Detach(ctx, p, bridge); err != nil {
			return err
		}
	}
	existing := c.Ports(ctx, bridge)
	for _, p := range ports {
		if existing.Has(p) {
			continue
		}
		if err := c.AddPort(ctx, bridge, p); err != nil {
			return err
		}
	}
	return nil
}

// PortIDs returns the OpenFlow port numbers of a bridge by interface name.
// It polls until every port in required is known: ports that were just
// added take a few seconds to show up.
func (c *Client) PortIDs(ctx context.Context, bridge string, required ...string) (map[string]string, error) {
	if c.symbolic {
		ids := make(map[string]string, len(required))
		for _, p := range required {
			ids[p] = p
		}
		return ids, nil
	}
	var ids map[string]string
	err := helper.WaitFor(ctx, fmt.Sprintf("ports %v on bridge %s", required, bridge), func(ctx context.Context) (bool, error) {
		cmd := shell.Cmd("ovs-ofctl", "show", bridge)
		cmd.Probe = true
		out, err := c.runner.Run(ctx, cmd)
		if err != nil {
			return false, err
		}
		ids = parsePortIDs(out)
		for _, p := range required {
			if _, ok := ids[p]; !ok {
				taskLog(ctx).Debugf("Port %s is not on bridge %s yet", p, bridge)
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("can't find port ids of %v: %w", required, err)
	}
	return ids, nil
}

func parsePortIDs(out string) map[string]string {
	ids := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		if m := portLine.FindStringSubmatch(line); m != nil {
			ids[m[2]] = m[1]
		}
	}
	return ids
}

func (c *Client) DeleteFlows(ctx context.Context, bridge string) error {
	_, err := c.run(ctx, "ovs-ofctl", "del-flows", bridge)
	return err
}

func (c *Client) AddFlow(ctx context.Context, bridge, flow string) error {
	_, err := c.run(ctx, "ovs-ofctl", "add-flow", bridge, flow)
	return err
}

// AddFlowsBatch writes flows to a file of the batch and loads them with one
// background ovs-ofctl.
func (c *Client) AddFlowsBatch(b *shell.Batch, bridge string, flows []string) error {
	if len(flows) == 0 {
		return nil
	}
	path, err := b.WriteFile(bridge+"-flows-", flows)
	if err != nil {
		return err
	}
	return b.Start(shell.Cmd("ovs-ofctl", "add-flows", bridge, path))
}

// DeletePortsBatch removes ports with one background ovs-vsctl transaction.
func (c *Client) DeletePortsBatch(b *shell.Batch, bridge string, ports []string) error {
	if len(ports) == 0 {
		return nil
	}
	args := []string{"ovs-vsctl"}
	for _, p := range ports {
		args = append(args, "--", "--if-exists", "del-port", bridge, p)
	}
	return b.Start(shell.Cmd(args...))
}
