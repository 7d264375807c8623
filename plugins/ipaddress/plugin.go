// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package ipaddress

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/api"
	"github.com/ironcore-dev/vmtopology/internal/validator"
	"go4.org/netipx"
	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

var log = logger.GetLogger("plugins/ipaddress")

var Plugin = validator.Plugin{
	Name:  "ip_address",
	Setup: setup,
}

type checker struct {
	excludeDevices    validator.Patterns
	excludeInterfaces validator.Patterns
	allow             *netipx.IPSet
	deny              *netipx.IPSet
}

func loadConfig(raw []byte) (*api.IPAddressCheckConfig, error) {
	config := &api.IPAddressCheckConfig{}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	return config, nil
}

func buildSet(prefixes []string) (*netipx.IPSet, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}
	var b netipx.IPSetBuilder
	for _, p := range prefixes {
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			return nil, fmt.Errorf("invalid prefix %q: %w", p, err)
		}
		b.AddPrefix(prefix.Masked())
	}
	return b.IPSet()
}

func setup(raw []byte) (validator.Handler, error) {
	config, err := loadConfig(raw)
	if err != nil {
		return nil, err
	}
	c := &checker{}
	if c.excludeDevices, err = validator.CompilePatterns(config.ExcludeDevices); err != nil {
		return nil, err
	}
	if c.excludeInterfaces, err = validator.CompilePatterns(config.ExcludeInterfaces); err != nil {
		return nil, err
	}
	if c.allow, err = buildSet(config.AllowPrefixes); err != nil {
		return nil, fmt.Errorf("allow_prefixes: %w", err)
	}
	if c.deny, err = buildSet(config.DenyPrefixes); err != nil {
		return nil, fmt.Errorf("deny_prefixes: %w", err)
	}

	log.Debugf("Loaded ip_address validator, %d allowed and %d denied prefixes",
		len(config.AllowPrefixes), len(config.DenyPrefixes))
	return c.handle, nil
}

// address is one interface address found in the configuration.
type address struct {
	path   *field.Path
	prefix netip.Prefix
	// unique addresses take part in the double assignment check
	unique bool
}

type state struct {
	*checker
	warnings []string
	allErrs  field.ErrorList
	assigned map[netip.Addr]*field.Path
	// backplane subnet per family, keyed by Is4()
	backplane map[bool]netip.Prefix
}

func (c *checker) handle(tb *api.Testbed) ([]string, field.ErrorList) {
	s := &state{
		checker:   c,
		assigned:  map[netip.Addr]*field.Path{},
		backplane: map[bool]netip.Prefix{},
	}
	cfgPath := field.NewPath("configuration")
	for _, name := range api.SortedKeys(tb.File.Configuration) {
		if c.excludeDevices.Match(name) {
			continue
		}
		s.device(name, tb.File.Configuration[name], cfgPath.Key(name))
	}
	return s.warnings, s.allErrs
}

func isLoopback(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "loopback")
}

func (s *state) device(name string, cfg api.DeviceConfig, devPath *field.Path) {
	var own []address
	for _, ifName := range api.SortedKeys(cfg.Interfaces) {
		if s.excludeInterfaces.Match(ifName) {
			continue
		}
		ifc := cfg.Interfaces[ifName]
		own = append(own, s.interfaceAddrs(ifc, devPath.Child("interfaces").Key(ifName), !isLoopback(ifName))...)
	}
	if cfg.BPInterface != nil {
		bpPath := devPath.Child("bp_interface")
		for _, a := range s.interfaceAddrs(*cfg.BPInterface, bpPath, true) {
			s.checkBackplane(a)
			own = append(own, a)
		}
	}
	for _, a := range own {
		s.checkAssignment(a)
	}

	if cfg.VIPs != nil {
		s.vips(cfg.VIPs.IPv4, devPath.Child("vips", "ipv4"), true)
		s.vips(cfg.VIPs.IPv6, devPath.Child("vips", "ipv6"), false)
	}

	if cfg.BGP != nil {
		s.peers(name, cfg.BGP, own, devPath.Child("bgp", "peers"))
	}
}

func (s *state) interfaceAddrs(ifc api.InterfaceConfig, ifPath *field.Path, unique bool) []address {
	var out []address
	for _, fam := range []struct {
		key   string
		value string
		is4   bool
	}{{"ipv4", ifc.IPv4, true}, {"ipv6", ifc.IPv6, false}} {
		if fam.value == "" {
			continue
		}
		p := ifPath.Child(fam.key)
		prefix, ok := s.parsePrefix(p, fam.value, fam.is4)
		if !ok {
			continue
		}
		out = append(out, address{path: p, prefix: prefix, unique: unique})
	}
	return out
}

func (s *state) parsePrefix(p *field.Path, value string, is4 bool) (netip.Prefix, bool) {
	prefix, err := netip.ParsePrefix(value)
	if err != nil {
		s.allErrs = append(s.allErrs, field.Invalid(p, value, err.Error()))
		return netip.Prefix{}, false
	}
	if prefix.Addr().Is4() != is4 {
		family := "IPv6"
		if is4 {
			family = "IPv4"
		}
		s.allErrs = append(s.allErrs, field.Invalid(p, value, fmt.Sprintf("is not an %s prefix", family)))
		return netip.Prefix{}, false
	}
	return prefix, true
}

func (s *state) checkAssignment(a address) {
	addr := a.prefix.Addr()
	if a.unique {
		if first, ok := s.assigned[addr]; ok {
			s.allErrs = append(s.allErrs, field.Invalid(a.path, a.prefix.String(),
				fmt.Sprintf("address %s is already assigned to %s", addr, first)))
		} else {
			s.assigned[addr] = a.path
		}
	}
	if s.deny != nil && s.deny.Contains(addr) {
		s.allErrs = append(s.allErrs, field.Forbidden(a.path, fmt.Sprintf("address %s is in a denied prefix", addr)))
	}
	if s.allow != nil && !s.allow.Contains(addr) {
		s.allErrs = append(s.allErrs, field.Forbidden(a.path, fmt.Sprintf("address %s is not in an allowed prefix", addr)))
	}
}

func (s *state) checkBackplane(a address) {
	is4 := a.prefix.Addr().Is4()
	subnet, ok := s.backplane[is4]
	if !ok {
		s.backplane[is4] = a.prefix.Masked()
		return
	}
	if a.prefix.Masked() != subnet {
		s.allErrs = append(s.allErrs, field.Invalid(a.path, a.prefix.String(),
			fmt.Sprintf("is not in the backplane subnet %s", subnet)))
	}
}

func (s *state) vips(set *api.VIPSet, vipPath *field.Path, is4 bool) {
	if set == nil {
		return
	}
	for i, value := range set.Prefixes {
		p := vipPath.Child("prefixes").Index(i)
		prefix, ok := s.parsePrefix(p, value, is4)
		if !ok {
			continue
		}
		prefix = prefix.Masked()
		if s.deny != nil && s.deny.OverlapsPrefix(prefix) {
			s.allErrs = append(s.allErrs, field.Forbidden(p, fmt.Sprintf("prefix %s overlaps a denied prefix", prefix)))
		}
		if s.allow != nil && !s.allow.ContainsPrefix(prefix) {
			s.allErrs = append(s.allErrs, field.Forbidden(p, fmt.Sprintf("prefix %s is not in an allowed prefix", prefix)))
		}
	}
}

// peers warns about BGP peers that are not reachable through a connected
// subnet of the device.
func (s *state) peers(device string, bgp *api.DeviceBGP, own []address, peersPath *field.Path) {
	asns := make([]int, 0, len(bgp.Peers))
	for asn := range bgp.Peers {
		asns = append(asns, asn)
	}
	sort.Ints(asns)
	for _, asn := range asns {
		for i, value := range bgp.Peers[asn] {
			p := peersPath.Key(fmt.Sprint(asn)).Index(i)
			addr, err := netip.ParseAddr(value)
			if err != nil {
				s.allErrs = append(s.allErrs, field.Invalid(p, value, err.Error()))
				continue
			}
			connected := false
			for _, a := range own {
				if a.prefix.Contains(addr) {
					connected = true
					break
				}
			}
			if !connected {
				s.warnings = append(s.warnings, fmt.Sprintf("%s: peer %s of %s is not in a subnet of its interfaces", p, addr, device))
			}
		}
	}
}
