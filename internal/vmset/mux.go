// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vmset

import (
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/ironcore-dev/vmtopology/internal/api"
)

// MuxCable holds the addresses behind a dual-ToR host interface: the server
// and, for active-active cables, the SoC of the smart NIC.
type MuxCable struct {
	ServerIPv4 string
	ServerIPv6 string
	SoCIPv4    string
	SoCIPv6    string
}

// MuxCables computes the mux cable addresses of the dual host interfaces by
// PTF interface index. Interface h gets the addresses 2h+2 (server) and
// 2h+3 (SoC) of the default vlan, with the vlan's prefix length.
func MuxCables(topo *api.Topology, hostIfs []api.HostInterface, activeActive []api.HostInterface) (map[int]MuxCable, error) {
	v4, v6, err := defaultVlanPrefixes(topo)
	if err != nil {
		return nil, err
	}
	cables := map[int]MuxCable{}
	for i, hi := range hostIfs {
		if !hi.IsDual() {
			continue
		}
		idx := hi.Index(i)
		var c MuxCable
		if c.ServerIPv4, err = hostAddr(v4, 2*idx+2); err != nil {
			return nil, err
		}
		if c.SoCIPv4, err = hostAddr(v4, 2*idx+3); err != nil {
			return nil, err
		}
		if v6 != nil {
			if c.ServerIPv6, err = hostAddr(v6, 2*idx+2); err != nil {
				return nil, err
			}
			if c.SoCIPv6, err = hostAddr(v6, 2*idx+3); err != nil {
				return nil, err
			}
		}
		cables[idx] = c
	}
	for _, aa := range activeActive {
		found := false
		for _, hi := range hostIfs {
			if hi.Equal(aa) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("active-active interface %v is not a host interface", aa.Ports)
		}
	}
	return cables, nil
}

func defaultVlanPrefixes(topo *api.Topology) (v4, v6 *net.IPNet, err error) {
	if topo.DUT == nil {
		return nil, nil, fmt.Errorf("topology has no default vlan config")
	}
	cfg, err := topo.DUT.VlanConfigs.DefaultConfig()
	if err != nil {
		return nil, nil, err
	}
	for _, name := range api.SortedKeys(cfg) {
		vlan := cfg[name]
		if vlan.Prefix == "" {
			continue
		}
		if _, v4, err = net.ParseCIDR(vlan.Prefix); err != nil {
			return nil, nil, fmt.Errorf("vlan %s: %w", name, err)
		}
		if vlan.PrefixV6 != "" {
			if _, v6, err = net.ParseCIDR(vlan.PrefixV6); err != nil {
				return nil, nil, fmt.Errorf("vlan %s: %w", name, err)
			}
		}
		return v4, v6, nil
	}
	return nil, nil, fmt.Errorf("default vlan config %s has no vlan with a prefix", topo.DUT.VlanConfigs.Default)
}

func hostAddr(network *net.IPNet, num int) (string, error) {
	ip, err := cidr.Host(network, num)
	if err != nil {
		return "", err
	}
	ones, _ := network.Mask.Size()
	return fmt.Sprintf("%s/%d", ip, ones), nil
}

// gateway returns the first host of the network of addr, e.g. 192.168.0.1
// for 192.168.0.7/21, and the network itself.
func gateway(addr string) (string, string, error) {
	_, network, err := net.ParseCIDR(addr)
	if err != nil {
		return "", "", err
	}
	gw, err := cidr.Host(network, 1)
	if err != nil {
		return "", "", err
	}
	return gw.String(), network.String(), nil
}
