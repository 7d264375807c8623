// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

import "fmt"

const (
	DefaultMTU      = 0
	DefaultMaxFPNum = 4
	VMSetNameMaxLen = 8
)

// VMSetParams describes a VM set on a test server: the VMs, the PTF
// container addressing and the DUT ports it is wired to.
type VMSetParams struct {
	VMSetName     string                `yaml:"vm_set_name"`
	VMNames       []string              `yaml:"vm_names"`
	VMBase        string                `yaml:"vm_base,omitempty"`
	CurrentVMName string                `yaml:"current_vm_name,omitempty"`
	VMProperties  map[string]Properties `yaml:"vm_properties,omitempty"`

	PTFMgmtIPAddr      string   `yaml:"ptf_mgmt_ip_addr,omitempty"`
	PTFMgmtIPv6Addr    string   `yaml:"ptf_mgmt_ipv6_addr,omitempty"`
	PTFMgmtIPGw        string   `yaml:"ptf_mgmt_ip_gw,omitempty"`
	PTFMgmtIPv6Gw      string   `yaml:"ptf_mgmt_ipv6_gw,omitempty"`
	PTFExtraMgmtIPAddr []string `yaml:"ptf_extra_mgmt_ip_addr,omitempty"`
	PTFBpIPAddr        string   `yaml:"ptf_bp_ip_addr,omitempty"`
	PTFBpIPv6Addr      string   `yaml:"ptf_bp_ipv6_addr,omitempty"`
	NetnsMgmtIPAddr    string   `yaml:"netns_mgmt_ip_addr,omitempty"`

	MgmtBridge        string                       `yaml:"mgmt_bridge,omitempty"`
	DUTsFPPorts       map[string]map[string]string `yaml:"duts_fp_ports,omitempty"`
	DUTsMgmtPort      []string                     `yaml:"duts_mgmt_port,omitempty"`
	DUTsMidplanePorts map[string][]string          `yaml:"duts_midplane_ports,omitempty"`
	DUTsInbandPorts   map[string][]string          `yaml:"duts_inband_ports,omitempty"`
	DUTsName          []string                     `yaml:"duts_name,omitempty"`
	DUTInterfaces     string                       `yaml:"dut_interfaces,omitempty"`

	FPMTU       int  `yaml:"fp_mtu,omitempty"`
	MaxFPNum    int  `yaml:"max_fp_num,omitempty"`
	IsDPU       bool `yaml:"is_dpu,omitempty"`
	IsVSChassis bool `yaml:"is_vs_chassis,omitempty"`
}

// Defaults fills in the optional parameters.
func (p *VMSetParams) Defaults() {
	if p.MaxFPNum == 0 {
		p.MaxFPNum = DefaultMaxFPNum
	}
	if p.PTFExtraMgmtIPAddr == nil {
		p.PTFExtraMgmtIPAddr = []string{}
	}
	if p.DUTsMidplanePorts == nil {
		p.DUTsMidplanePorts = map[string][]string{}
	}
	if p.DUTsInbandPorts == nil {
		p.DUTsInbandPorts = map[string][]string{}
	}
}

// Require checks that the named parameters are set for the given command.
func (p *VMSetParams) Require(command string, names ...string) error {
	for _, name := range names {
		if !p.isSet(name) {
			return fmt.Errorf("parameter %s is required in %s mode", name, command)
		}
	}
	return nil
}

func (p *VMSetParams) isSet(name string) bool {
	switch name {
	case "vm_set_name":
		return p.VMSetName != ""
	case "vm_base":
		return p.VMBase != ""
	case "ptf_mgmt_ip_addr":
		return p.PTFMgmtIPAddr != ""
	case "ptf_mgmt_ipv6_addr":
		return p.PTFMgmtIPv6Addr != ""
	case "ptf_mgmt_ip_gw":
		return p.PTFMgmtIPGw != ""
	case "ptf_mgmt_ipv6_gw":
		return p.PTFMgmtIPv6Gw != ""
	case "ptf_extra_mgmt_ip_addr":
		return p.PTFExtraMgmtIPAddr != nil
	case "ptf_bp_ip_addr":
		return p.PTFBpIPAddr != ""
	case "ptf_bp_ipv6_addr":
		return p.PTFBpIPv6Addr != ""
	case "mgmt_bridge":
		return p.MgmtBridge != ""
	case "duts_fp_ports":
		return p.DUTsFPPorts != nil
	case "duts_name":
		return len(p.DUTsName) > 0
	}
	return false
}

// IsMultiDUT reports whether the VM set is wired to more than one DUT.
func (p *VMSetParams) IsMultiDUT() bool { return len(p.DUTsName) > 1 }
