// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// multiDUTPortPattern matches "<dut>.<port>" with an optional "@<ptf>" suffix.
var multiDUTPortPattern = regexp.MustCompile(`^\d+\.\d+(@\d+)?$`)

// PortSpec is a host interface or VM vlan entry exactly as written in the
// topology file: either a plain integer or a string.
type PortSpec struct {
	IsInt bool
	Int   int
	Str   string
}

func IntPort(n int) PortSpec { return PortSpec{IsInt: true, Int: n} }

func StrPort(s string) PortSpec { return PortSpec{Str: s} }

func (p *PortSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: port must be an integer or a string", value.Line)
	}
	if value.Tag == "!!int" {
		n, err := strconv.Atoi(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: invalid port %q: %v", value.Line, value.Value, err)
		}
		*p = IntPort(n)
		return nil
	}
	*p = StrPort(value.Value)
	return nil
}

func (p PortSpec) MarshalYAML() (interface{}, error) {
	if p.IsInt {
		return p.Int, nil
	}
	return p.Str, nil
}

func (p PortSpec) String() string {
	if p.IsInt {
		return strconv.Itoa(p.Int)
	}
	return p.Str
}

// key distinguishes the integer 1 from the string "1" for double use checks.
func (p PortSpec) key() string {
	if p.IsInt {
		return "i:" + strconv.Itoa(p.Int)
	}
	return "s:" + p.Str
}

// VlanPort is a parsed VM vlan: the DUT index, the DUT port index and the
// PTF port index.
type VlanPort struct {
	DUT  int
	Vlan int
	PTF  int
}

// ParseVlanPort accepts "N" as (0, N, N) and "D.V@P" as (D, V, P). A missing
// "@P" means the PTF index equals the vlan index.
func ParseVlanPort(p PortSpec) (VlanPort, error) {
	if p.IsInt {
		if p.Int < 0 {
			return VlanPort{}, fmt.Errorf("negative vlan port %d", p.Int)
		}
		return VlanPort{DUT: 0, Vlan: p.Int, PTF: p.Int}, nil
	}
	t, err := parsePortTriple(p.Str)
	if err != nil {
		return VlanPort{}, err
	}
	return VlanPort{DUT: t.DUT, Vlan: t.Port, PTF: t.PTF}, nil
}

// PortTriple is one DUT port of a host interface.
type PortTriple struct {
	DUT    int
	Port   int
	PTF    int
	HasPTF bool
}

func parsePortTriple(s string) (PortTriple, error) {
	s = strings.TrimSpace(s)
	if !multiDUTPortPattern.MatchString(s) {
		return PortTriple{}, fmt.Errorf("invalid port %q, expected <dut>.<port>[@<ptf>]", s)
	}
	var t PortTriple
	rest := s
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		t.PTF, _ = strconv.Atoi(rest[at+1:])
		t.HasPTF = true
		rest = rest[:at]
	}
	dot := strings.IndexByte(rest, '.')
	t.DUT, _ = strconv.Atoi(rest[:dot])
	t.Port, _ = strconv.Atoi(rest[dot+1:])
	if !t.HasPTF {
		t.PTF = t.Port
	}
	return t, nil
}

// HostInterface is a PTF host interface. It has more than one port when it
// is a dual-ToR (mux) interface.
type HostInterface struct {
	Ports []PortTriple
}

// ParseHostInterface parses a host interface. A single DUT topology uses
// plain port indices, a multi DUT topology uses comma separated triples.
func ParseHostInterface(p PortSpec, multiDUT bool) (HostInterface, error) {
	if !multiDUT {
		if !p.IsInt || p.Int < 0 {
			return HostInterface{}, fmt.Errorf("invalid host interface %q, expected a non-negative integer", p.String())
		}
		return HostInterface{Ports: []PortTriple{{DUT: 0, Port: p.Int, PTF: p.Int}}}, nil
	}
	var hi HostInterface
	for _, part := range strings.Split(p.String(), ",") {
		t, err := parsePortTriple(part)
		if err != nil {
			return HostInterface{}, err
		}
		hi.Ports = append(hi.Ports, t)
	}
	return hi, nil
}

// IsDual reports whether the interface is connected to more than one DUT port.
func (h HostInterface) IsDual() bool { return len(h.Ports) > 1 }

// Index returns the PTF interface index. An explicit "@P" wins, otherwise the
// interface's position in the host interface list is used.
func (h HostInterface) Index(position int) int {
	if len(h.Ports) == 0 {
		return position
	}
	if h.Ports[0].HasPTF {
		return h.Ports[0].PTF
	}
	return position
}

func (h HostInterface) Equal(o HostInterface) bool {
	if len(h.Ports) != len(o.Ports) {
		return false
	}
	for i := range h.Ports {
		if h.Ports[i] != o.Ports[i] {
			return false
		}
	}
	return true
}

// ParseHostInterfaces parses a host interface list.
func ParseHostInterfaces(specs []PortSpec, multiDUT bool) ([]HostInterface, error) {
	out := make([]HostInterface, 0, len(specs))
	for i, s := range specs {
		hi, err := ParseHostInterface(s, multiDUT)
		if err != nil {
			return nil, fmt.Errorf("host interface #%d: %w", i, err)
		}
		out = append(out, hi)
	}
	return out, nil
}
