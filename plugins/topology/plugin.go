// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package topology

import (
	"fmt"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/api"
	"github.com/ironcore-dev/vmtopology/internal/validator"
	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

var log = logger.GetLogger("plugins/topology")

var Plugin = validator.Plugin{
	Name:  "topology",
	Setup: setup,
}

func loadConfig(raw []byte) (*api.TopologyCheckConfig, error) {
	config := &api.TopologyCheckConfig{MaxFPNum: api.DefaultMaxFPNum}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	if config.MaxFPNum <= 0 {
		return nil, fmt.Errorf("max_fp_num must be positive, got %d", config.MaxFPNum)
	}
	return config, nil
}

func setup(raw []byte) (validator.Handler, error) {
	config, err := loadConfig(raw)
	if err != nil {
		return nil, err
	}
	log.Debugf("Loaded topology validator, max_fp_num %d", config.MaxFPNum)
	return func(tb *api.Testbed) ([]string, field.ErrorList) {
		return check(config, tb)
	}, nil
}

func check(config *api.TopologyCheckConfig, tb *api.Testbed) ([]string, field.ErrorList) {
	var warnings []string
	topo := &tb.File.Topology
	multiDUT := config.MultiDUT || tb.MultiDUT
	topoPath := field.NewPath("topology")

	hostIfExists, vmsExists, allErrs := api.ValidateTopology(topo, multiDUT, topoPath)
	_, linkErrs := api.ValidateDevicesInterconnect(topo, multiDUT, topoPath)
	allErrs = append(allErrs, linkErrs...)
	if !hostIfExists && !vmsExists {
		warnings = append(warnings, "topology has neither host interfaces nor VMs")
	}

	allErrs = append(allErrs, checkVMs(config, tb, topoPath.Child("VMs"))...)

	offsets := sets.New[int]()
	for _, vm := range topo.VMs {
		if vm.VMOffset != nil {
			offsets.Insert(*vm.VMOffset)
		}
	}
	for _, key := range api.SortedKeys(topo.VMLinks) {
		l := topo.VMLinks[key]
		linkPath := topoPath.Child("VM_LINKs").Key(key)
		allErrs = append(allErrs, checkLinkEnd(offsets, config.MaxFPNum, linkPath, "start", l.StartVMOffset, l.StartVMPortIdx)...)
		allErrs = append(allErrs, checkLinkEnd(offsets, config.MaxFPNum, linkPath, "end", l.EndVMOffset, l.EndVMPortIdx)...)
		if l.UseOVS != 0 && l.UseOVS != 1 {
			allErrs = append(allErrs, field.NotSupported(linkPath.Child("use_ovs"), l.UseOVS, []string{"0", "1"}))
		}
	}
	for _, key := range api.SortedKeys(topo.OVSLinks) {
		l := topo.OVSLinks[key]
		linkPath := topoPath.Child("OVS_LINKs").Key(key)
		allErrs = append(allErrs, checkLinkEnd(offsets, config.MaxFPNum, linkPath, "start", l.StartVMOffset, l.StartVMPortIdx)...)
		allErrs = append(allErrs, checkLinkEnd(offsets, config.MaxFPNum, linkPath, "end", l.EndVMOffset, l.EndVMPortIdx)...)
		for i, vlan := range l.Vlans {
			if _, err := api.ParseVlanPort(vlan); err != nil {
				allErrs = append(allErrs, field.Invalid(linkPath.Child("vlans").Index(i), vlan.String(), err.Error()))
			}
		}
	}
	return warnings, allErrs
}

// checkVMs checks vm_offset uniqueness, the vlan count per VM and, when the
// VM names of the server are known, that every offset names a VM.
func checkVMs(config *api.TopologyCheckConfig, tb *api.Testbed, vmsPath *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	vms := tb.File.Topology.VMs

	resolve := tb.VMBase != ""
	if resolve && !sets.New(tb.VMNames...).Has(tb.VMBase) {
		allErrs = append(allErrs, field.NotFound(field.NewPath("vm_base"), tb.VMBase))
		resolve = false
	}

	seen := map[int]string{}
	for _, name := range api.SortedKeys(vms) {
		vm := vms[name]
		vmPath := vmsPath.Key(name)
		if len(vm.Vlans) > config.MaxFPNum {
			allErrs = append(allErrs, field.TooMany(vmPath.Child("vlans"), len(vm.Vlans), config.MaxFPNum))
		}
		if vm.VMOffset == nil {
			continue
		}
		offset := *vm.VMOffset
		offsetPath := vmPath.Child("vm_offset")
		if first, ok := seen[offset]; ok {
			allErrs = append(allErrs, field.Invalid(offsetPath, offset, fmt.Sprintf("already used by %s", first)))
			continue
		}
		seen[offset] = name
		if resolve {
			if _, ok := tb.VMName(vm); !ok {
				allErrs = append(allErrs, field.Invalid(offsetPath, offset,
					fmt.Sprintf("does not name a VM of vm_names starting at %s", tb.VMBase)))
			}
		}
	}
	return allErrs
}

func checkLinkEnd(offsets sets.Set[int], maxFPNum int, linkPath *field.Path, end string, offset, portIdx int) field.ErrorList {
	var allErrs field.ErrorList
	if !offsets.Has(offset) {
		allErrs = append(allErrs, field.NotFound(linkPath.Child(end+"_vm_offset"), offset))
	}
	if portIdx < 0 || portIdx >= maxFPNum {
		allErrs = append(allErrs, field.Invalid(linkPath.Child(end+"_vm_port_idx"), portIdx,
			fmt.Sprintf("must be between 0 and %d", maxFPNum-1)))
	}
	return allErrs
}
