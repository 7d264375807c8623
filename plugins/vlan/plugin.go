// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vlan

import (
	"fmt"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/api"
	"github.com/ironcore-dev/vmtopology/internal/validator"
	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

var log = logger.GetLogger("plugins/vlan")

var Plugin = validator.Plugin{
	Name:  "vlan",
	Setup: setup,
}

const (
	defaultMinVlanID = 1
	defaultMaxVlanID = 4094
)

func loadConfig(raw []byte) (*api.VLANCheckConfig, error) {
	config := &api.VLANCheckConfig{MinVlanID: defaultMinVlanID, MaxVlanID: defaultMaxVlanID}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	if config.MinVlanID > config.MaxVlanID {
		return nil, fmt.Errorf("min_vlan_id %d is greater than max_vlan_id %d", config.MinVlanID, config.MaxVlanID)
	}
	return config, nil
}

func setup(raw []byte) (validator.Handler, error) {
	config, err := loadConfig(raw)
	if err != nil {
		return nil, err
	}
	deny := sets.New(config.DenyList...)
	log.Debugf("Loaded vlan validator, vlan ids %d-%d", config.MinVlanID, config.MaxVlanID)
	return func(tb *api.Testbed) ([]string, field.ErrorList) {
		return check(config, deny, tb)
	}, nil
}

// hostPorts returns the DUT port indices wired to the PTF, including the
// disabled and active-active ones.
func hostPorts(topo *api.Topology, multiDUT bool) sets.Set[int] {
	out := sets.New[int]()
	for _, list := range [][]api.PortSpec{topo.HostInterfaces, topo.DisabledHostInterfaces, topo.HostInterfacesActiveActive} {
		for _, spec := range list {
			hi, err := api.ParseHostInterface(spec, multiDUT)
			if err != nil {
				continue
			}
			for _, p := range hi.Ports {
				out.Insert(p.Port)
			}
		}
	}
	return out
}

func check(config *api.VLANCheckConfig, deny sets.Set[int], tb *api.Testbed) ([]string, field.ErrorList) {
	var (
		warnings []string
		allErrs  field.ErrorList
	)
	topo := &tb.File.Topology
	topoPath := field.NewPath("topology")

	if topo.DUT == nil || len(topo.DUT.VlanConfigs.Configs) == 0 {
		warnings = append(warnings, "topology has no DUT vlan configs")
	} else {
		vcPath := topoPath.Child("DUT", "vlan_configs")
		if _, err := topo.DUT.VlanConfigs.DefaultConfig(); err != nil {
			allErrs = append(allErrs, field.Invalid(vcPath.Child("default_vlan_config"), topo.DUT.VlanConfigs.Default, err.Error()))
		}
		members := hostPorts(topo, tb.MultiDUT)
		for _, cfgName := range api.SortedKeys(topo.DUT.VlanConfigs.Configs) {
			vlans := topo.DUT.VlanConfigs.Configs[cfgName]
			seen := map[int]string{}
			for _, vlanName := range api.SortedKeys(vlans) {
				v := vlans[vlanName]
				vlanPath := vcPath.Key(cfgName).Key(vlanName)
				idPath := vlanPath.Child("id")
				if v.ID < config.MinVlanID || v.ID > config.MaxVlanID {
					allErrs = append(allErrs, field.Invalid(idPath, v.ID,
						fmt.Sprintf("must be between %d and %d", config.MinVlanID, config.MaxVlanID)))
				}
				if deny.Has(v.ID) {
					allErrs = append(allErrs, field.Forbidden(idPath, fmt.Sprintf("vlan id %d is denied", v.ID)))
				}
				if first, ok := seen[v.ID]; ok {
					allErrs = append(allErrs, field.Invalid(idPath, v.ID, fmt.Sprintf("already used by %s", first)))
				} else {
					seen[v.ID] = vlanName
				}
				for i, intf := range v.Intfs {
					if !members.Has(intf) {
						allErrs = append(allErrs, field.NotFound(vlanPath.Child("intfs").Index(i), intf))
					}
				}
			}
		}
	}

	if config.MaxPortIndex > 0 {
		vmsPath := topoPath.Child("VMs")
		for _, name := range api.SortedKeys(topo.VMs) {
			for i, spec := range topo.VMs[name].Vlans {
				vp, err := api.ParseVlanPort(spec)
				if err != nil {
					continue
				}
				if vp.Vlan >= config.MaxPortIndex {
					allErrs = append(allErrs, field.Invalid(vmsPath.Key(name).Child("vlans").Index(i), spec.String(),
						fmt.Sprintf("port index must be less than %d", config.MaxPortIndex)))
				}
			}
		}
	}
	return warnings, allErrs
}
