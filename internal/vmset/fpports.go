// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vmset

import (
	"context"
	"fmt"
	"strings"

	"github.com/ironcore-dev/vmtopology/internal/api"
	h "github.com/ironcore-dev/vmtopology/internal/helper"
	"github.com/ironcore-dev/vmtopology/internal/shell"
	"github.com/ironcore-dev/vmtopology/internal/worker"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// fpBinding is one front panel link: the VM tap, the injected PTF port and
// the DUT port on the VM's front panel bridge.
type fpBinding struct {
	bridge   string
	dut      string
	injected string
	vm       string
}

func (s *VMSet) injectedName(ptfIndex int) string {
	return h.AdaptiveName(h.InjectedIfTemplate, s.name(), ptfIndex)
}

// vlanSubInterface returns the sub-interface backend VMs expect on their
// PTF ports, or nil.
func (s *VMSet) vlanSubInterface(hostname string) *subInterface {
	props := s.props[hostname]
	switch props.String("device_type") {
	case api.BackEndToRType, api.BackEndLeafType:
	default:
		return nil
	}
	sub := &subInterface{sep: h.SubInterfaceSeparator, vlanID: h.SubInterfaceVlanID}
	if sep := props.String("sub_interface_separator"); sep != "" {
		sub.sep = sep
	}
	if id := props.String("sub_interface_vlan_id"); id != "" {
		sub.vlanID = id
	}
	return sub
}

// addInjectedPorts creates the PTF side of every VM front panel link:
//
//	PTF (eth<ptf>) ----------- injected port (inje-<vmset>-<ptf>)
func (s *VMSet) addInjectedPorts(ctx context.Context) error {
	for _, v := range s.vms {
		for _, vlan := range v.vlans {
			intIf := fmt.Sprintf(h.PTFFPIfTemplate, vlan.PTF)
			if err := s.addVeth(ctx, s.injectedName(vlan.PTF), intIf, s.ptf(), s.vlanSubInterface(v.hostname)); err != nil {
				return err
			}
		}
	}
	for _, key := range api.SortedKeys(s.topo.OVSLinks) {
		for _, spec := range s.topo.OVSLinks[key].Vlans {
			vlan, err := api.ParseVlanPort(spec)
			if err != nil {
				return fmt.Errorf("OVS link %s: %w", key, err)
			}
			if err := s.addVeth(ctx, s.injectedName(vlan.PTF), fmt.Sprintf(h.PTFFPIfTemplate, vlan.PTF), s.ptf(), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *VMSet) removeInjectedPorts(ctx context.Context) error {
	for _, v := range s.vms {
		if s.vlanSubInterface(v.hostname) != nil {
			continue
		}
		for _, vlan := range v.vlans {
			extIf := s.injectedName(vlan.PTF)
			intIf := fmt.Sprintf(h.PTFFPIfTemplate, vlan.PTF)
			if err := s.removeVeth(ctx, extIf, intIf, h.TempPeerName(intIf, extIf)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *VMSet) fpBindings() ([]fpBinding, error) {
	var out []fpBinding
	for _, v := range s.vms {
		for idx, vlan := range v.vlans {
			if vlan.DUT >= len(s.params.DUTsName) {
				return nil, fmt.Errorf("VM %s: no DUT #%d in duts_name", v.hostname, vlan.DUT)
			}
			if len(s.params.DUTsFPPorts[s.params.DUTsName[vlan.DUT]]) == 0 {
				continue
			}
			dut, err := s.mustFPPort(vlan.DUT, vlan.Vlan)
			if err != nil {
				return nil, fmt.Errorf("VM %s: %w", v.hostname, err)
			}
			out = append(out, fpBinding{
				bridge:   h.AdaptiveName(h.OVSFPBridgeTemplate, v.name, idx),
				dut:      dut,
				injected: s.injectedName(vlan.PTF),
				vm:       fmt.Sprintf(h.OVSFPTapTemplate, v.name, idx),
			})
		}
	}
	return out, nil
}

func (s *VMSet) newBatch(ctx context.Context) (*shell.Batch, error) {
	if !s.opts.BatchMode {
		return nil, nil
	}
	return shell.NewBatch(ctx, s.net.Runner(), s.opts.BatchTimeout)
}

// bindFPPorts binds the DUT front panel ports to the VMs and the PTF:
//
//	VM  -- vm tap        +----------------+
//	                     | OVS_FP_BRIDGE  +-- DUT
//	PTF -- injected port +----------------+
//
// then wires the VM links and the OVS links.
func (s *VMSet) bindFPPorts(ctx context.Context, disconnect bool) error {
	bindings, err := s.fpBindings()
	if err != nil {
		return err
	}
	batch, err := s.newBatch(ctx)
	if err != nil {
		return err
	}
	err = worker.Map(ctx, s.pool, taskLog(ctx), bindings, func(ctx context.Context, _ *logrus.Entry, b fpBinding) error {
		return s.ovs.BindPorts(ctx, b.bridge, b.dut, b.injected, b.vm, disconnect, batch)
	})
	if batch != nil {
		err = multierr.Combine(err, batch.Wait())
	}
	if err != nil {
		return err
	}

	for _, key := range api.SortedKeys(s.topo.VMLinks) {
		link := s.topo.VMLinks[key]
		taskLog(ctx).Infof("Create VM links for %s : %+v", key, link)
		p1, p2, err := s.linkPorts(link.StartVMOffset, link.StartVMPortIdx, link.EndVMOffset, link.EndVMPortIdx)
		if err != nil {
			return err
		}
		if err := s.bindVMLink(ctx, linkBridge(key), p1, p2, link.UseOVS == 1); err != nil {
			return err
		}
	}

	for _, key := range api.SortedKeys(s.topo.OVSLinks) {
		link := s.topo.OVSLinks[key]
		taskLog(ctx).Infof("Create OVS links for %s : %+v", key, link)
		p1, p2, err := s.linkPorts(link.StartVMOffset, link.StartVMPortIdx, link.EndVMOffset, link.EndVMPortIdx)
		if err != nil {
			return err
		}
		br := linkBridge(key)
		if err := s.ovs.AddBridge(ctx, br, ovsLinkMTU); err != nil {
			return err
		}
		for _, spec := range link.Vlans {
			vlan, err := api.ParseVlanPort(spec)
			if err != nil {
				return fmt.Errorf("OVS link %s: %w", key, err)
			}
			if err := s.ovs.BindPorts(ctx, br, p1, s.injectedName(vlan.PTF), p2, disconnect, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// unbindFPPorts takes everything but the VM taps off the front panel
// bridges and tears down the VM and OVS links.
func (s *VMSet) unbindFPPorts(ctx context.Context) error {
	taskLog(ctx).Info("=== unbind front panel ports ===")
	var bindings []fpBinding
	for _, v := range s.vms {
		for idx := range v.vlans {
			bindings = append(bindings, fpBinding{
				bridge: h.AdaptiveName(h.OVSFPBridgeTemplate, v.name, idx),
				vm:     fmt.Sprintf(h.OVSFPTapTemplate, v.name, idx),
			})
		}
	}
	batch, err := s.newBatch(ctx)
	if err != nil {
		return err
	}
	err = worker.Map(ctx, s.pool, taskLog(ctx), bindings, func(ctx context.Context, _ *logrus.Entry, b fpBinding) error {
		return s.ovs.UnbindPorts(ctx, b.bridge, b.vm, batch)
	})
	if batch != nil {
		err = multierr.Combine(err, batch.Wait())
	}
	if err != nil {
		return err
	}

	for _, key := range api.SortedKeys(s.topo.VMLinks) {
		link := s.topo.VMLinks[key]
		taskLog(ctx).Infof("Remove VM links for %s : %+v", key, link)
		p1, p2, err := s.linkPorts(link.StartVMOffset, link.StartVMPortIdx, link.EndVMOffset, link.EndVMPortIdx)
		if err != nil {
			return err
		}
		if err := s.unbindVMLink(ctx, linkBridge(key), p1, p2, link.UseOVS == 1); err != nil {
			return err
		}
	}

	for _, key := range api.SortedKeys(s.topo.OVSLinks) {
		taskLog(ctx).Infof("Remove OVS links for %s", key)
		br := linkBridge(key)
		if err := s.ovs.UnbindPorts(ctx, br, "", nil); err != nil {
			return err
		}
		if err := s.ovs.DeleteBridge(ctx, br); err != nil {
			return err
		}
	}
	return nil
}

func linkBridge(key string) string {
	return "br_" + strings.ToLower(key)
}

func (s *VMSet) linkPorts(startOffset, startIdx, endOffset, endIdx int) (string, string, error) {
	start, err := s.vmName(startOffset)
	if err != nil {
		return "", "", err
	}
	end, err := s.vmName(endOffset)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(h.OVSFPTapTemplate, start, startIdx), fmt.Sprintf(h.OVSFPTapTemplate, end, endIdx), nil
}

// bindVMLink connects two VM taps back to back, on an OVS bridge when
// useOVS is set and on a Linux bridge otherwise.
func (s *VMSet) bindVMLink(ctx context.Context, br, p1, p2 string, useOVS bool) error {
	if useOVS {
		if err := s.ovs.AddBridge(ctx, br, s.params.FPMTU); err != nil {
			return err
		}
		for _, p := range []string{p1, p2} {
			if err := s.ovs.Detach(ctx, p, br); err != nil {
				return err
			}
		}
		return s.ovs.CrossConnect(ctx, br, p1, p2)
	}

	if s.net.NotExists(ctx, host, br) {
		if err := s.net.AddBridge(ctx, br); err != nil {
			return err
		}
	}
	if err := s.net.Up(ctx, host, br); err != nil {
		return err
	}
	for _, p := range []string{p1, p2} {
		if err := s.ovs.Detach(ctx, p, ""); err != nil {
			return err
		}
	}
	bridges := s.net.ShowBridges(ctx, "")
	for _, p := range []string{p1, p2} {
		if !bridges.Has(br, p) {
			if err := s.net.AddToBridge(ctx, br, p); err != nil {
				return err
			}
		}
	}
	for _, p := range []string{p1, p2} {
		if err := s.net.Up(ctx, host, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *VMSet) unbindVMLink(ctx context.Context, br, p1, p2 string, useOVS bool) error {
	if useOVS {
		for _, p := range []string{p1, p2} {
			if err := s.ovs.UnbindPort(ctx, br, p); err != nil {
				return err
			}
		}
		return s.ovs.DeleteBridge(ctx, br)
	}
	owners := s.net.ShowBridges(ctx, "").Owner
	for _, p := range []string{p1, p2} {
		if owners[p] == br {
			if err := s.net.RemoveFromBridge(ctx, br, p); err != nil {
				return err
			}
		}
	}
	if err := s.net.Down(ctx, host, br); err != nil {
		return err
	}
	s.net.DeleteBridge(ctx, br)
	return nil
}

// bindBackplane puts the backplane taps of all VMs on the backplane bridge.
func (s *VMSet) bindBackplane(ctx context.Context) error {
	if s.net.NotExists(ctx, host, s.bpBridge) {
		if err := s.net.AddBridge(ctx, s.bpBridge); err != nil {
			return err
		}
	}
	if err := s.net.Up(ctx, host, s.bpBridge); err != nil {
		return err
	}
	for _, v := range s.vms {
		port := fmt.Sprintf(h.OVSBPTapTemplate, v.name)
		if !s.net.ShowBridges(ctx, "").Has(s.bpBridge, port) {
			if err := s.net.AddToBridge(ctx, s.bpBridge, port); err != nil {
				return err
			}
		}
		if err := s.net.Up(ctx, host, port); err != nil {
			return err
		}
	}
	return nil
}

func (s *VMSet) unbindBackplane(ctx context.Context) error {
	if !s.net.Exists(ctx, host, s.bpBridge) {
		return nil
	}
	if err := s.net.Down(ctx, host, s.bpBridge); err != nil {
		return err
	}
	s.net.DeleteBridge(ctx, s.bpBridge)
	return nil
}

// chassisBridge is a VS chassis bridge and the DUT ports it connects.
type chassisBridge struct {
	bridge string
	ports  map[string][]string
}

func (s *VMSet) chassisBridges() []chassisBridge {
	return []chassisBridge{
		{s.chassisMid, s.params.DUTsMidplanePorts},
		{s.chassisInband, s.params.DUTsInbandPorts},
	}
}

// bindVSChassis wires the midplane and inband ports of a KVM based virtual
// chassis to one OVS bridge each.
func (s *VMSet) bindVSChassis(ctx context.Context) error {
	if err := s.ovs.AddBridge(ctx, s.chassisInband, s.params.FPMTU); err != nil {
		return err
	}
	if err := s.ovs.AddBridge(ctx, s.chassisMid, s.params.FPMTU); err != nil {
		return err
	}
	for _, cb := range s.chassisBridges() {
		for _, dut := range api.SortedKeys(cb.ports) {
			if err := s.ovs.AttachAll(ctx, cb.bridge, cb.ports[dut]...); err != nil {
				return fmt.Errorf("failed to bind ports of %s to %s: %w", dut, cb.bridge, err)
			}
		}
	}
	return nil
}

func (s *VMSet) unbindVSChassis(ctx context.Context) error {
	for _, cb := range s.chassisBridges() {
		if !s.ovs.BridgeExists(ctx, cb.bridge) {
			continue
		}
		existing := s.ovs.Ports(ctx, cb.bridge)
		for _, dut := range api.SortedKeys(cb.ports) {
			for _, p := range cb.ports[dut] {
				if !existing.Has(p) {
					continue
				}
				if err := s.ovs.DeletePort(ctx, cb.bridge, p); err != nil {
					return err
				}
			}
		}
	}
	if err := s.ovs.DeleteBridge(ctx, s.chassisInband); err != nil {
		return err
	}
	return s.ovs.DeleteBridge(ctx, s.chassisMid)
}
