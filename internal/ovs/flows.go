// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package ovs

import (
	"context"
	"fmt"
	"strings"

	"github.com/ironcore-dev/vmtopology/internal/shell"
	"k8s.io/apimachinery/pkg/util/sets"
)

// output renders a flow of table 0. match is either empty or a comma
// terminated list of match fields.
func output(match, inPort string, outPorts ...string) string {
	return fmt.Sprintf("table=0,%sin_port=%s,action=output:%s", match, inPort, strings.Join(outPorts, ","))
}

// Forward is the flow sending everything from in to out.
func Forward(in string, out ...string) string {
	return output("", in, out...)
}

// Drop is the flow dropping everything from in.
func Drop(in string) string {
	return fmt.Sprintf("table=0,in_port=%s,action=drop", in)
}

// FanoutFlows are the flows from a DUT port to its neighbor VM and the PTF.
// Control plane traffic reaches both, data plane traffic only the PTF so
// the VMs are not flooded. The last flow sends the PTF traffic to the DUT.
func FanoutFlows(dut, vm, ptf string) []string {
	both := func(match string) string {
		return output(match, dut, vm, ptf)
	}
	return []string{
		both("priority=10,tcp,tp_src=179,"),
		both("priority=10,tcp,tp_dst=179,"),
		both("priority=10,tcp,tp_dst=22,"),
		both("priority=10,tcp,tp_src=22,"),
		both("priority=10,tcp6,tp_src=179,"),
		both("priority=10,tcp6,tp_dst=179,"),
		both("priority=10,tcp6,tp_dst=22,"),
		both("priority=10,tcp6,tp_src=22,"),
		both("priority=10,ip,nw_proto=4,"),
		both("priority=8,ip,nw_frag=yes,"),
		both("priority=8,ipv6,nw_frag=yes,"),
		both("priority=8,icmp,"),
		both("priority=8,icmp6,"),
		both("priority=8,udp,udp_src=161,"),
		output("priority=8,udp,udp_src=53,", dut, vm),
		both("priority=8,udp6,udp_src=161,"),
		output("priority=6,udp6,udp_dst=4784,", dut, ptf),
		output("priority=5,ip,", dut, ptf),
		both("priority=5,ipv6,"),
		both("priority=3,"),
		both("priority=10,ip,nw_proto=89,"),
		both("priority=10,ipv6,nw_proto=89,"),
		both("priority=10,udp,udp_dst=3784,"),
		both("priority=10,udp6,udp_dst=3784,"),
		both("priority=10,udp,udp_src=49152,udp_dst=3784,"),
		both("priority=10,udp6,udp_src=49152,udp_dst=3784,"),
		Forward(ptf, dut),
	}
}

// BindPorts puts the DUT, PTF and VM ports of a front panel link on bridge:
//
//	VM  (vm)       --+              +-- DUT (dut)
//	                 | OVS bridge   |
//	PTF (injected) --+              |
//
// A disconnected VM gets its traffic dropped and the DUT only talks to the
// PTF. With a batch the fan-out flows are loaded in the background.
func (c *Client) BindPorts(ctx context.Context, bridge, dut, injected, vm string, disconnect bool, batch *shell.Batch) error {
	if err := c.AttachAll(ctx, bridge, injected, dut, vm); err != nil {
		return err
	}
	ids, err := c.PortIDs(ctx, bridge, dut, injected, vm)
	if err != nil {
		return err
	}
	dutID, injectedID, vmID := ids[dut], ids[injected], ids[vm]

	if err := c.DeleteFlows(ctx, bridge); err != nil {
		return err
	}
	if disconnect {
		if err := c.AddFlow(ctx, bridge, Drop(vmID)); err != nil {
			return err
		}
		return c.AddFlow(ctx, bridge, Forward(dutID, injectedID))
	}
	if err := c.AddFlow(ctx, bridge, Forward(vmID, dutID)); err != nil {
		return err
	}
	flows := FanoutFlows(dutID, vmID, injectedID)
	if batch != nil {
		return c.AddFlowsBatch(batch, bridge, flows)
	}
	for _, f := range flows {
		if err := c.AddFlow(ctx, bridge, f); err != nil {
			return err
		}
	}
	return nil
}

// UnbindPorts removes every port but keep from bridge.
func (c *Client) UnbindPorts(ctx context.Context, bridge, keep string, batch *shell.Batch) error {
	if !c.BridgeExists(ctx, bridge) {
		return nil
	}
	ports := sets.List(c.Ports(ctx, bridge).Delete(keep))
	if batch != nil {
		return c.DeletePortsBatch(batch, bridge, ports)
	}
	for _, p := range ports {
		if err := c.DeletePort(ctx, bridge, p); err != nil {
			return err
		}
	}
	return nil
}

// UnbindPort removes one port from bridge when it is there.
func (c *Client) UnbindPort(ctx context.Context, bridge, port string) error {
	if !c.BridgeExists(ctx, bridge) || !c.Ports(ctx, bridge).Has(port) {
		return nil
	}
	return c.DeletePort(ctx, bridge, port)
}

// CrossConnect adds the two ports to bridge and forwards between them.
func (c *Client) CrossConnect(ctx context.Context, bridge, a, b string) error {
	existing := c.Ports(ctx, bridge)
	for _, p := range []string{a, b} {
		if existing.Has(p) {
			continue
		}
		if err := c.AddPort(ctx, bridge, p); err != nil {
			return err
		}
	}
	ids, err := c.PortIDs(ctx, bridge, a, b)
	if err != nil {
		return err
	}
	if err := c.DeleteFlows(ctx, bridge); err != nil {
		return err
	}
	if err := c.AddFlow(ctx, bridge, Forward(ids[a], ids[b])); err != nil {
		return err
	}
	return c.AddFlow(ctx, bridge, Forward(ids[b], ids[a]))
}
