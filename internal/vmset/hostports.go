// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vmset

import (
	"context"
	"fmt"

	"github.com/ironcore-dev/vmtopology/internal/api"
	h "github.com/ironcore-dev/vmtopology/internal/helper"
	"github.com/ironcore-dev/vmtopology/internal/ovs"
	"github.com/ironcore-dev/vmtopology/internal/worker"
	"github.com/sirupsen/logrus"
)

type hostPort struct {
	position int
	intf     api.HostInterface
}

func (s *VMSet) hostPorts() []hostPort {
	out := make([]hostPort, 0, len(s.hostIfs))
	for i, hi := range s.hostIfs {
		out = append(out, hostPort{position: i, intf: hi})
	}
	return out
}

// dutSubInterface is the vlan sub-interface of a backend ToR host port.
func (s *VMSet) dutSubInterface(idx int) (*subInterface, error) {
	if s.dutType() != api.BackEndToRType {
		return nil, nil
	}
	vlanID, ok := s.vlanIDs[idx]
	if !ok {
		return nil, fmt.Errorf("DUT port %d is in no vlan of the default vlan config", idx)
	}
	sep := h.SubInterfaceSeparator
	if s.topo.DUT != nil && s.topo.DUT.SubInterfaceSeparator != "" {
		sep = s.topo.DUT.SubInterfaceSeparator
	}
	return &subInterface{sep: sep, vlanID: vlanID}, nil
}

// addHostPorts hands the DUT ports of the host interfaces to the PTF. Dual
// interfaces of a multi DUT topology get a mux cable instead.
func (s *VMSet) addHostPorts(ctx context.Context) error {
	return worker.Map(ctx, s.pool, taskLog(ctx), s.hostPorts(), func(ctx context.Context, _ *logrus.Entry, p hostPort) error {
		return s.addHostPort(ctx, p)
	})
}

func (s *VMSet) addHostPort(ctx context.Context, p hostPort) error {
	hi := p.intf
	switch {
	case s.multiDUT && !s.cable && hi.IsDual():
		return s.addDualHostPort(ctx, p)

	case s.multiDUT && !s.cable:
		t := hi.Ports[0]
		dutIf, err := s.mustFPPort(t.DUT, t.Port)
		if err != nil {
			return err
		}
		return s.addDUTPort(ctx, fmt.Sprintf(h.PTFFPIfTemplate, hi.Index(p.position)), dutIf)

	case s.multiDUT:
		// only the sides that are cabled and known to the DUT
		for _, t := range hi.Ports {
			dutIf, ok := s.fpPort(t.DUT, t.Port)
			if !ok {
				continue
			}
			if err := s.addDUTPort(ctx, fmt.Sprintf(h.PTFFPIfTemplate, t.PTF), dutIf); err != nil {
				return err
			}
		}
		return nil
	}

	idx := hi.Ports[0].Port
	dutIf, err := s.mustFPPort(0, idx)
	if err != nil {
		return err
	}
	ptfIf := fmt.Sprintf(h.PTFFPIfTemplate, idx)
	if err := s.addDUTPort(ctx, ptfIf, dutIf); err != nil {
		return err
	}
	if s.isDisabled(hi) {
		return nil
	}
	sub, err := s.dutSubInterface(idx)
	if err != nil || sub == nil {
		return err
	}
	return s.addDUTVlanSubIf(ctx, ptfIf, sub)
}

// addDualHostPort builds the PTF side of a dual-ToR host interface. An
// active-active interface also gets a port in the netns carrying the SoC
// address.
func (s *VMSet) addDualHostPort(ctx context.Context, p hostPort) error {
	hi := p.intf
	idx := hi.Index(p.position)
	activeActive := s.isActiveActive(hi)

	template := h.MuxyIfTemplate
	if activeActive {
		template = h.ActiveActiveIfTemplate
	}
	dualIf := h.AdaptiveName(template, s.name(), idx)
	if err := s.addVeth(ctx, dualIf, fmt.Sprintf(h.PTFFPIfTemplate, idx), s.ptf(), nil); err != nil {
		return err
	}

	nicIf := ""
	if activeActive {
		nicIf = h.AdaptiveName(h.ServerNICIfTemplate, s.name(), idx)
		nsIf := fmt.Sprintf(h.NetnsIfTemplate, idx)
		if err := s.addVeth(ctx, nicIf, nsIf, s.ns(), nil); err != nil {
			return err
		}
		if err := s.setAddresses(ctx, s.ns(), nsIf, addresses{ipv4: s.muxCables[idx].SoCIPv4}); err != nil {
			return err
		}
	}

	upper, err := s.mustFPPort(hi.Ports[0].DUT, hi.Ports[0].Port)
	if err != nil {
		return err
	}
	lower, err := s.mustFPPort(hi.Ports[1].DUT, hi.Ports[1].Port)
	if err != nil {
		return err
	}
	return s.createDualToRCable(ctx, idx, dualIf, upper, lower, nicIf)
}

func (s *VMSet) dualToRBridge(idx int, activeActive bool) string {
	if activeActive {
		return h.AdaptiveName(h.ActiveActiveBrTemplate, s.name(), idx)
	}
	return h.AdaptiveName(h.MuxyBridgeTemplate, s.name(), idx)
}

// createDualToRCable puts the PTF port and both ToR ports on one OVS bridge.
//
//	                  +------------+---- upper
//	PTF (host port) --+ OVS bridge |
//	netns (nic port) -+            +---- lower
//
// Without a NIC port the bridge is the mux of a y-cable: the PTF reaches
// both ToRs and only the upper (active) ToR reaches the PTF. With a NIC
// port it stands for the smart NIC of an active-active server and carries
// no flows.
func (s *VMSet) createDualToRCable(ctx context.Context, idx int, hostIf, upper, lower, nicIf string) error {
	br := s.dualToRBridge(idx, nicIf != "")
	if err := s.ovs.AddBridge(ctx, br, s.params.FPMTU); err != nil {
		return err
	}
	attach := []string{hostIf, upper, lower}
	required := []string{upper, lower}
	if nicIf != "" {
		attach = append(attach, nicIf)
		required = append(required, nicIf)
	}
	if err := s.ovs.AttachAll(ctx, br, attach...); err != nil {
		return err
	}
	ids, err := s.ovs.PortIDs(ctx, br, append(required, hostIf)...)
	if err != nil {
		return err
	}
	if err := s.ovs.DeleteFlows(ctx, br); err != nil {
		return err
	}
	if nicIf != "" {
		return nil
	}
	if err := s.ovs.AddFlow(ctx, br, ovs.Forward(ids[hostIf], ids[upper], ids[lower])); err != nil {
		return err
	}
	return s.ovs.AddFlow(ctx, br, ovs.Forward(ids[upper], ids[hostIf]))
}

// removeHostPorts gives the DUT ports back to the host and removes the mux
// cables.
func (s *VMSet) removeHostPorts(ctx context.Context) error {
	taskLog(ctx).Info("=== Remove host ports ===")
	return worker.Map(ctx, s.pool, taskLog(ctx), s.hostPorts(), func(ctx context.Context, _ *logrus.Entry, p hostPort) error {
		return s.removeHostPort(ctx, p)
	})
}

func (s *VMSet) removeHostPort(ctx context.Context, p hostPort) error {
	hi := p.intf
	if s.multiDUT {
		if hi.IsDual() {
			return s.ovs.DeleteBridge(ctx, s.dualToRBridge(hi.Index(p.position), s.isActiveActive(hi)))
		}
		t := hi.Ports[0]
		dutIf, err := s.mustFPPort(t.DUT, t.Port)
		if err != nil {
			return err
		}
		return s.removeDUTPort(ctx, fmt.Sprintf(h.PTFFPIfTemplate, hi.Index(p.position)), dutIf)
	}

	idx := hi.Ports[0].Port
	dutIf, err := s.mustFPPort(0, idx)
	if err != nil {
		return err
	}
	ptfIf := fmt.Sprintf(h.PTFFPIfTemplate, idx)
	if err := s.removeDUTPort(ctx, ptfIf, dutIf); err != nil {
		return err
	}
	sub, err := s.dutSubInterface(idx)
	if err != nil || sub == nil {
		return err
	}
	return s.removeDUTVlanSubIf(ctx, ptfIf, sub)
}
