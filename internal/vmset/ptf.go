// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vmset

import (
	"context"
	"fmt"

	"github.com/ironcore-dev/vmtopology/internal/api"
	h "github.com/ironcore-dev/vmtopology/internal/helper"
	"github.com/ironcore-dev/vmtopology/internal/netdev"
)

var host = netdev.Host

// subInterface is a vlan sub-interface created next to a PTF port.
type subInterface struct {
	sep    string
	vlanID string
}

func (si *subInterface) of(intf string) string {
	return intf + si.sep + si.vlanID
}

// addresses are the addresses configured on a port.
type addresses struct {
	ipv4, ipv6   string
	gw, gwV6     string
	extra        []string
	replaceRoute bool
}

// addBridgePort creates the veth pair ext/int, puts ext on a Linux bridge
// and moves int into target. The container side carries a unique temporary
// name until it is renamed in target, so concurrent runs do not collide.
func (s *VMSet) addBridgePort(ctx context.Context, bridge, extIf, intIf string, target netdev.Namespace) error {
	tmp := h.TempPeerName(intIf, extIf)
	taskLog(ctx).Infof("=== For veth pair, add %s to bridge %s, set %s to %s, tmp intf %s", extIf, bridge, intIf, target, tmp)

	if s.net.NotExists(ctx, host, extIf) {
		if err := s.net.AddVeth(ctx, extIf, tmp); err != nil {
			return err
		}
	}
	if !s.net.ShowBridges(ctx, bridge).Has(bridge, extIf) {
		if err := s.net.AddToBridge(ctx, bridge, extIf); err != nil {
			return err
		}
	}
	if err := s.net.Up(ctx, host, extIf); err != nil {
		return err
	}
	if s.net.Exists(ctx, host, tmp) && s.net.NotExists(ctx, target, tmp) {
		if err := s.net.Move(ctx, host, tmp, target); err != nil {
			return err
		}
		if err := s.net.Rename(ctx, target, tmp, intIf); err != nil {
			return err
		}
	}
	return s.net.Up(ctx, target, intIf)
}

// addAddresses configures the addresses of a PTF port that are missing.
func (s *VMSet) addAddresses(ctx context.Context, target netdev.Namespace, intf string, a addresses) error {
	if !s.net.Exists(ctx, target, intf) {
		return nil
	}
	for _, addr := range append([]string{a.ipv4}, a.extra...) {
		if addr == "" || s.net.IPExists(ctx, target, intf, addr, false) {
			continue
		}
		if err := s.net.AddAddr(ctx, target, intf, addr, false); err != nil {
			return err
		}
	}
	if a.gw != "" {
		if a.replaceRoute {
			if err := s.net.DeleteDefaultRoute(ctx, target); err != nil {
				taskLog(ctx).Warnf("No default route to replace in %s: %v", target, err)
			}
		}
		if !s.net.RouteExists(ctx, target, a.gw, false) {
			if err := s.net.AddDefaultRoute(ctx, target, a.gw, intf, false); err != nil {
				return err
			}
		}
	}
	if a.ipv6 == "" {
		return nil
	}
	if !s.net.IPExists(ctx, target, intf, a.ipv6, true) {
		if err := s.net.AddAddr(ctx, target, intf, a.ipv6, true); err != nil {
			return err
		}
	}
	if a.gwV6 != "" && !s.net.RouteExists(ctx, target, a.gwV6, true) {
		return s.net.AddDefaultRoute(ctx, target, a.gwV6, intf, true)
	}
	return nil
}

// setAddresses replaces the addresses and default routes of a netns port.
func (s *VMSet) setAddresses(ctx context.Context, target netdev.Namespace, intf string, a addresses) error {
	if !s.net.Exists(ctx, target, intf) {
		return nil
	}
	if err := s.net.FlushAddrs(ctx, target, intf, false); err != nil {
		return err
	}
	if err := s.net.AddAddr(ctx, target, intf, a.ipv4, false); err != nil {
		return err
	}
	if a.gw != "" {
		if err := s.net.FlushDefaultRoutes(ctx, target, false); err != nil {
			return err
		}
		if err := s.net.AddDefaultRoute(ctx, target, a.gw, intf, false); err != nil {
			return err
		}
	}
	if a.ipv6 == "" {
		return nil
	}
	if err := s.net.FlushAddrs(ctx, target, intf, true); err != nil {
		return err
	}
	if err := s.net.AddAddr(ctx, target, intf, a.ipv6, true); err != nil {
		return err
	}
	if a.gwV6 != "" {
		if err := s.net.FlushDefaultRoutes(ctx, target, true); err != nil {
			return err
		}
		return s.net.AddDefaultRoute(ctx, target, a.gwV6, intf, true)
	}
	return nil
}

// addVeth creates the veth pair ext/int and moves int into target, with an
// optional vlan sub-interface travelling along.
func (s *VMSet) addVeth(ctx context.Context, extIf, intIf string, target netdev.Namespace, sub *subInterface) error {
	taskLog(ctx).Infof("=== Create veth pair %s/%s, set %s to %s ===", extIf, intIf, intIf, target)
	reserved := 0
	if sub != nil {
		reserved = len(sub.sep + sub.vlanID)
	}
	tmp, err := h.AdaptiveTemporaryInterface(s.name(), intIf, reserved)
	if err != nil {
		return err
	}

	if s.net.Exists(ctx, host, tmp) {
		if _, err := s.net.Run(ctx, host, "ip", "link", "del", "dev", tmp); err != nil {
			return err
		}
	}
	if s.net.NotExists(ctx, host, extIf) {
		if err := s.net.AddVeth(ctx, extIf, tmp); err != nil {
			return err
		}
		if sub != nil {
			if err := s.net.AddVlan(ctx, host, tmp, sub.of(tmp), sub.vlanID); err != nil {
				return err
			}
		}
	}

	if mtu := s.params.FPMTU; mtu != api.DefaultMTU {
		if err := s.net.SetMTU(ctx, host, extIf, mtu); err != nil {
			return err
		}
		if err := s.setMTU(ctx, target, mtu, tmp, intIf); err != nil {
			return err
		}
		if sub != nil {
			if err := s.setMTU(ctx, target, mtu, sub.of(tmp), sub.of(intIf)); err != nil {
				return err
			}
		}
	}

	if err := s.net.Up(ctx, host, extIf); err != nil {
		return err
	}

	pairs := [][2]string{{tmp, intIf}}
	if sub != nil {
		pairs = append(pairs, [2]string{sub.of(tmp), sub.of(intIf)})
	}
	for _, p := range pairs {
		if s.net.Exists(ctx, host, p[0]) && s.net.NotExists(ctx, target, p[0]) && s.net.NotExists(ctx, target, p[1]) {
			if err := s.net.Move(ctx, host, p[0], target); err != nil {
				return err
			}
		}
	}
	for _, p := range pairs {
		if s.net.Exists(ctx, target, p[0]) && s.net.NotExists(ctx, target, p[1]) {
			if err := s.net.Rename(ctx, target, p[0], p[1]); err != nil {
				return err
			}
		}
	}
	for _, p := range pairs {
		if err := s.net.Up(ctx, target, p[1]); err != nil {
			return err
		}
	}
	return nil
}

// setMTU sets the MTU wherever the port currently is: still on the host,
// moved but not renamed, or done.
func (s *VMSet) setMTU(ctx context.Context, target netdev.Namespace, mtu int, tmp, final string) error {
	switch {
	case s.net.Exists(ctx, host, tmp):
		return s.net.SetMTU(ctx, host, tmp, mtu)
	case s.net.Exists(ctx, target, tmp):
		return s.net.SetMTU(ctx, target, tmp, mtu)
	case s.net.Exists(ctx, target, final):
		return s.net.SetMTU(ctx, target, final, mtu)
	}
	return nil
}

// removeVeth hands the PTF side of a veth pair back to the host under its
// temporary name and deletes the pair.
func (s *VMSet) removeVeth(ctx context.Context, extIf, intIf, tmp string) error {
	taskLog(ctx).Infof("=== Cleanup port, int_if: %s, ext_if: %s, tmp_name: %s ===", intIf, extIf, tmp)
	if s.pid != 0 && s.net.Exists(ctx, s.ptf(), intIf) {
		if err := s.net.Down(ctx, s.ptf(), intIf); err != nil {
			return err
		}
		if err := s.net.Rename(ctx, s.ptf(), intIf, tmp); err != nil {
			return err
		}
		if err := s.net.Move(ctx, s.ptf(), tmp, host); err != nil {
			return err
		}
	}
	if s.net.Exists(ctx, host, extIf) {
		s.net.DeleteLink(ctx, host, extIf)
	}
	return nil
}

// addDUTPort moves a DUT front panel port into the PTF as ptfIf.
func (s *VMSet) addDUTPort(ctx context.Context, ptfIf, dutIf string) error {
	taskLog(ctx).Infof("=== Add DUT interface %s to PTF docker as %s ===", dutIf, ptfIf)
	ptf := s.ptf()
	if s.net.Exists(ctx, host, dutIf) && s.net.NotExists(ctx, ptf, dutIf) && s.net.NotExists(ctx, ptf, ptfIf) {
		if err := s.net.Move(ctx, host, dutIf, ptf); err != nil {
			return err
		}
	}
	if s.net.Exists(ctx, ptf, dutIf) && s.net.NotExists(ctx, ptf, ptfIf) {
		if err := s.net.Rename(ctx, ptf, dutIf, ptfIf); err != nil {
			return err
		}
	}
	return s.net.Up(ctx, ptf, ptfIf)
}

func (s *VMSet) addDUTVlanSubIf(ctx context.Context, ptfIf string, sub *subInterface) error {
	if s.net.NotExists(ctx, s.ptf(), ptfIf) {
		return fmt.Errorf("interface %s not present in docker", ptfIf)
	}
	return s.net.AddVlan(ctx, s.ptf(), ptfIf, sub.of(ptfIf), sub.vlanID)
}

// removeDUTPort gives a DUT port back to the host under its own name.
func (s *VMSet) removeDUTPort(ctx context.Context, ptfIf, dutIf string) error {
	taskLog(ctx).Infof("=== Restore docker interface %s as dut interface %s ===", ptfIf, dutIf)
	if s.pid == 0 {
		return nil
	}
	ptf := s.ptf()
	if s.net.Exists(ctx, ptf, ptfIf) {
		if err := s.net.Down(ctx, ptf, ptfIf); err != nil {
			return err
		}
		if s.net.NotExists(ctx, ptf, dutIf) {
			if err := s.net.Rename(ctx, ptf, ptfIf, dutIf); err != nil {
				return err
			}
		}
	}
	if s.net.NotExists(ctx, host, dutIf) && s.net.Exists(ctx, ptf, dutIf) {
		return s.net.Move(ctx, ptf, dutIf, host)
	}
	return nil
}

func (s *VMSet) removeDUTVlanSubIf(ctx context.Context, ptfIf string, sub *subInterface) error {
	if s.pid == 0 {
		return nil
	}
	name := sub.of(ptfIf)
	if !s.net.Exists(ctx, s.ptf(), name) {
		return nil
	}
	if err := s.net.Down(ctx, s.ptf(), name); err != nil {
		return err
	}
	_, err := s.net.Run(ctx, s.ptf(), "ip", "link", "del", name)
	return err
}

// addMgmtPort plugs the PTF, or with apiServer the keysight API server,
// into the management bridge and configures its addresses.
func (s *VMSet) addMgmtPort(ctx context.Context, apiServer bool) error {
	ptf := s.ptf()
	if s.net.NotExists(ctx, ptf, h.MgmtPortName) {
		extIf := fmt.Sprintf(h.PTFMgmtIfTemplate, s.name())
		if apiServer {
			extIf = "apiserver"
		}
		if err := s.addBridgePort(ctx, s.params.MgmtBridge, extIf, h.MgmtPortName, ptf); err != nil {
			return err
		}
	}
	return s.addAddresses(ctx, ptf, h.MgmtPortName, addresses{
		ipv4:         s.params.PTFMgmtIPAddr,
		ipv6:         s.params.PTFMgmtIPv6Addr,
		gw:           s.params.PTFMgmtIPGw,
		gwV6:         s.params.PTFMgmtIPv6Gw,
		extra:        s.params.PTFExtraMgmtIPAddr,
		replaceRoute: apiServer,
	})
}

func (s *VMSet) addBackplanePort(ctx context.Context) error {
	ptf := s.ptf()
	if err := s.addBridgePort(ctx, s.bpBridge, fmt.Sprintf(h.PTFBPIfTemplate, s.name()), h.BPPortName, ptf); err != nil {
		return err
	}
	if err := s.addAddresses(ctx, ptf, h.BPPortName, addresses{
		ipv4: s.params.PTFBpIPAddr,
		ipv6: s.params.PTFBpIPv6Addr,
	}); err != nil {
		return err
	}
	return s.net.DisableTxOffload(ctx, ptf, h.BPPortName)
}

func (s *VMSet) removeMgmtPort(ctx context.Context) error {
	extIf := fmt.Sprintf(h.PTFMgmtIfTemplate, s.name())
	return s.removeVeth(ctx, extIf, h.MgmtPortName, h.TempPeerName(h.MgmtPortName, extIf))
}

func (s *VMSet) removeBackplanePort(ctx context.Context) error {
	extIf := fmt.Sprintf(h.PTFBPIfTemplate, s.name())
	return s.removeVeth(ctx, extIf, h.BPPortName, h.TempPeerName(h.BPPortName, extIf))
}

// bindMgmtPort adds a DUT management port to the management bridge.
func (s *VMSet) bindMgmtPort(ctx context.Context, bridge, port string) error {
	taskLog(ctx).Infof("=== Bind mgmt port %s to bridge %s ===", port, bridge)
	if s.net.ShowBridges(ctx, bridge).Has(bridge, port) {
		return nil
	}
	return s.net.AddToBridge(ctx, bridge, port)
}

// unbindMgmtPort removes a port from whatever Linux bridge it is on.
func (s *VMSet) unbindMgmtPort(ctx context.Context, port string) error {
	owner, ok := s.net.ShowBridges(ctx, "").Owner[port]
	if !ok {
		return nil
	}
	return s.net.RemoveFromBridge(ctx, owner, port)
}
