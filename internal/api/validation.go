// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// ValidateTopology checks the host interfaces and VMs of a topology. Every
// host interface and VM vlan may only be used once. It reports whether the
// topology has host interfaces and VMs.
func ValidateTopology(topo *Topology, multiDUT bool, fldPath *field.Path) (hostIfExists, vmsExists bool, allErrs field.ErrorList) {
	used := sets.New[string]()

	if topo.HostInterfaces != nil {
		hostPath := fldPath.Child("host_interfaces")
		for i, hostIf := range topo.HostInterfaces {
			idxPath := hostPath.Index(i)
			if multiDUT {
				for _, part := range strings.Split(hostIf.String(), ",") {
					p := StrPort(strings.TrimSpace(part))
					if hostIf.IsInt || !multiDUTPortPattern.MatchString(p.Str) {
						allErrs = append(allErrs, field.Invalid(idxPath, hostIf.String(),
							"should be a string of format '<dut>.<dut_intf>' or '<dut>.<dut_intf>,<dut>.<dut_intf>'"))
						break
					}
					if used.Has(p.key()) {
						allErrs = append(allErrs, field.Duplicate(idxPath, p.Str))
						continue
					}
					used.Insert(p.key())
				}
				continue
			}
			if !hostIf.IsInt || hostIf.Int < 0 {
				allErrs = append(allErrs, field.Invalid(idxPath, hostIf.String(), "should be a non-negative integer"))
				continue
			}
			if used.Has(hostIf.key()) {
				allErrs = append(allErrs, field.Duplicate(idxPath, hostIf.Int))
				continue
			}
			used.Insert(hostIf.key())
		}
		hostIfExists = true
	}

	if topo.VMs != nil {
		vmsPath := fldPath.Child("VMs")
		for _, name := range SortedKeys(topo.VMs) {
			vm := topo.VMs[name]
			vmPath := vmsPath.Key(name)
			if vm.Vlans == nil {
				allErrs = append(allErrs, field.Required(vmPath.Child("vlans"), "should contain a list of vlans"))
			}
			if vm.VMOffset == nil {
				allErrs = append(allErrs, field.Required(vmPath.Child("vm_offset"), "should contain a number"))
			}
			for i, vlan := range vm.Vlans {
				vlanPath := vmPath.Child("vlans").Index(i)
				if err := validatePortFormat(vlan, multiDUT); err != "" {
					allErrs = append(allErrs, field.Invalid(vlanPath, vlan.String(), err))
					continue
				}
				if used.Has(vlan.key()) {
					allErrs = append(allErrs, field.Duplicate(vlanPath, vlan.String()))
					continue
				}
				used.Insert(vlan.key())
			}
		}
		vmsExists = true
	}

	return hostIfExists, vmsExists, allErrs
}

// ValidateDevicesInterconnect checks the devices interconnect links. A vlan
// may only appear in one link.
func ValidateDevicesInterconnect(topo *Topology, multiDUT bool, fldPath *field.Path) (exists bool, allErrs field.ErrorList) {
	if topo.DevicesInterconnectInterfaces == nil {
		return false, nil
	}
	used := sets.New[string]()
	linksPath := fldPath.Child("devices_interconnect_interfaces")
	for _, key := range SortedKeys(topo.DevicesInterconnectInterfaces) {
		for i, vlan := range topo.DevicesInterconnectInterfaces[key] {
			vlanPath := linksPath.Key(key).Index(i)
			if err := validatePortFormat(vlan, multiDUT); err != "" {
				allErrs = append(allErrs, field.Invalid(vlanPath, vlan.String(), err))
				continue
			}
			if used.Has(vlan.key()) {
				allErrs = append(allErrs, field.Duplicate(vlanPath, vlan.String()))
				continue
			}
			used.Insert(vlan.key())
		}
	}
	return true, allErrs
}

func validatePortFormat(p PortSpec, multiDUT bool) string {
	if multiDUT {
		if p.IsInt || !multiDUTPortPattern.MatchString(p.Str) {
			return "should be a string of format '<dut>.<vlan>[@<ptf>]'"
		}
		return ""
	}
	if !p.IsInt || p.Int < 0 {
		return "should be a non-negative integer"
	}
	return ""
}

// ValidateVMSetName checks the VM set name fits into interface names.
func ValidateVMSetName(name string) error {
	if len(name) > VMSetNameMaxLen {
		return fmt.Errorf("vm_set_name can't be longer than %d characters: %s (%d)", VMSetNameMaxLen, name, len(name))
	}
	return nil
}
