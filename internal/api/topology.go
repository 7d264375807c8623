// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// TopologyFile is a testbed topology file as found under vars/topo_*.yml.
type TopologyFile struct {
	Topology                Topology                `yaml:"topology"`
	ConfigurationProperties map[string]Properties   `yaml:"configuration_properties,omitempty"`
	Configuration           map[string]DeviceConfig `yaml:"configuration,omitempty"`
}

type Topology struct {
	HostInterfaces                []PortSpec            `yaml:"host_interfaces,omitempty"`
	DisabledHostInterfaces        []PortSpec            `yaml:"disabled_host_interfaces,omitempty"`
	HostInterfacesActiveActive    []PortSpec            `yaml:"host_interfaces_active_active,omitempty"`
	VMs                           map[string]VMEntry    `yaml:"VMs,omitempty"`
	DPUs                          map[string]VMEntry    `yaml:"DPUs,omitempty"`
	VMLinks                       map[string]VMLink     `yaml:"VM_LINKs,omitempty"`
	OVSLinks                      map[string]OVSLink    `yaml:"OVS_LINKs,omitempty"`
	DevicesInterconnectInterfaces map[string][]PortSpec `yaml:"devices_interconnect_interfaces,omitempty"`
	DUT                           *DUTSpec              `yaml:"DUT,omitempty"`
}

// VMEntry places a neighbor VM: the vlans it is wired to and its offset
// from the VM base.
type VMEntry struct {
	Vlans    []PortSpec `yaml:"vlans"`
	VMOffset *int       `yaml:"vm_offset"`
}

// Offset returns the VM offset, zero when unset.
func (e VMEntry) Offset() int {
	if e.VMOffset == nil {
		return 0
	}
	return *e.VMOffset
}

// VMLink connects two VM ports back to back.
type VMLink struct {
	StartVMOffset  int `yaml:"start_vm_offset"`
	StartVMPortIdx int `yaml:"start_vm_port_idx"`
	EndVMOffset    int `yaml:"end_vm_offset"`
	EndVMPortIdx   int `yaml:"end_vm_port_idx"`
	UseOVS         int `yaml:"use_ovs,omitempty"`
}

// OVSLink connects two VM ports through an OVS bridge that also taps the
// traffic to the PTF.
type OVSLink struct {
	StartVMOffset  int        `yaml:"start_vm_offset"`
	StartVMPortIdx int        `yaml:"start_vm_port_idx"`
	EndVMOffset    int        `yaml:"end_vm_offset"`
	EndVMPortIdx   int        `yaml:"end_vm_port_idx"`
	Vlans          []PortSpec `yaml:"vlans"`
}

type DUTSpec struct {
	SubInterfaceSeparator string      `yaml:"sub_interface_separator,omitempty"`
	VlanConfigs           VlanConfigs `yaml:"vlan_configs,omitempty"`
}

// VlanDefinition is one DUT vlan of a vlan config.
type VlanDefinition struct {
	ID       int    `yaml:"id"`
	Intfs    []int  `yaml:"intfs"`
	Prefix   string `yaml:"prefix,omitempty"`
	PrefixV6 string `yaml:"prefix_v6,omitempty"`
	Tag      int    `yaml:"tag,omitempty"`
}

// VlanConfigs holds the named vlan configs of a DUT and the name of the
// default one. In YAML both share one mapping.
type VlanConfigs struct {
	Default string
	Configs map[string]map[string]VlanDefinition
}

func (v *VlanConfigs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: vlan_configs must be a mapping", value.Line)
	}
	v.Configs = map[string]map[string]VlanDefinition{}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i].Value, value.Content[i+1]
		if key == "default_vlan_config" {
			v.Default = val.Value
			continue
		}
		vlans := map[string]VlanDefinition{}
		if err := val.Decode(&vlans); err != nil {
			return fmt.Errorf("vlan config %s: %w", key, err)
		}
		v.Configs[key] = vlans
	}
	return nil
}

func (v VlanConfigs) MarshalYAML() (interface{}, error) {
	out := map[string]interface{}{}
	if v.Default != "" {
		out["default_vlan_config"] = v.Default
	}
	for k, c := range v.Configs {
		out[k] = c
	}
	return out, nil
}

// DefaultConfig returns the vlans of the default vlan config.
func (v VlanConfigs) DefaultConfig() (map[string]VlanDefinition, error) {
	if v.Default == "" {
		return nil, fmt.Errorf("topology has no default vlan config")
	}
	cfg, ok := v.Configs[v.Default]
	if !ok {
		return nil, fmt.Errorf("topology has no definition for default vlan config %s", v.Default)
	}
	return cfg, nil
}

// SortedKeys returns the keys of a string keyed map in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
