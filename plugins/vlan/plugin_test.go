// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vlan

import (
	"github.com/ironcore-dev/vmtopology/internal/api"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

const t0Topology = `
topology:
  host_interfaces: [0, 1, 2]
  disabled_host_interfaces: [3]
  VMs:
    ARISTA01T1: {vlans: [24], vm_offset: 0}
    ARISTA02T1: {vlans: [28], vm_offset: 1}
  DUT:
    vlan_configs:
      default_vlan_config: one_vlan_a
      one_vlan_a:
        Vlan1000: {id: 1000, intfs: [0, 1, 2, 3], prefix: 192.168.0.1/21, tag: 1000}
      two_vlan_a:
        Vlan100: {id: 100, intfs: [0, 1], prefix: 192.168.100.1/21, tag: 100}
        Vlan200: {id: 200, intfs: [2, 3], prefix: 192.168.200.1/21, tag: 200}
`

var _ = Describe("VLAN validator", func() {
	var tb *api.Testbed

	BeforeEach(func() {
		tb = loadTestbed(t0Topology)
	})

	run := func(config string) ([]string, field.ErrorList) {
		h, err := setup([]byte(config))
		Expect(err).NotTo(HaveOccurred())
		return h(tb)
	}

	It("should accept valid vlan configs", func() {
		warnings, errs := run("")
		Expect(errs).To(BeEmpty())
		Expect(warnings).To(BeEmpty())
	})

	It("should check the vlan id range and the deny list", func() {
		_, errs := run("min_vlan_id: 150")
		Expect(errs).To(HaveLen(1))
		Expect(errs[0].Field).To(Equal("topology.DUT.vlan_configs[two_vlan_a][Vlan100].id"))
		Expect(errs[0].Detail).To(Equal("must be between 150 and 4094"))

		_, errs = run("deny_list: [200, 1000]")
		Expect(errs).To(HaveLen(2))
		Expect(errs[0].Type).To(Equal(field.ErrorTypeForbidden))
		Expect(errs[0].Field).To(Equal("topology.DUT.vlan_configs[one_vlan_a][Vlan1000].id"))
	})

	It("should report both a range and a deny list violation of the same id", func() {
		_, errs := run("{max_vlan_id: 999, deny_list: [1000]}")
		Expect(errs).To(HaveLen(2))
		Expect(errs[0].Type).To(Equal(field.ErrorTypeInvalid))
		Expect(errs[0].Detail).To(Equal("must be between 1 and 999"))
		Expect(errs[1].Type).To(Equal(field.ErrorTypeForbidden))
		Expect(errs[1].Field).To(Equal(errs[0].Field))
		Expect(errs[1].Field).To(Equal("topology.DUT.vlan_configs[one_vlan_a][Vlan1000].id"))
	})

	It("should report duplicate ids and unknown member interfaces", func() {
		vlans := tb.File.Topology.DUT.VlanConfigs.Configs["two_vlan_a"]
		vlans["Vlan200"] = api.VlanDefinition{ID: 100, Intfs: []int{2, 7}}

		_, errs := run("")
		Expect(errs).To(HaveLen(2))
		Expect(errs[0].Detail).To(Equal("already used by Vlan100"))
		Expect(errs[1].Type).To(Equal(field.ErrorTypeNotFound))
		Expect(errs[1].Field).To(Equal("topology.DUT.vlan_configs[two_vlan_a][Vlan200].intfs[1]"))
	})

	It("should require the default vlan config to exist", func() {
		tb.File.Topology.DUT.VlanConfigs.Default = "four_vlan_a"
		_, errs := run("")
		Expect(errs).To(HaveLen(1))
		Expect(errs[0].Field).To(Equal("topology.DUT.vlan_configs.default_vlan_config"))
	})

	It("should limit the VM port indices", func() {
		_, errs := run("max_port_index: 28")
		Expect(errs).To(HaveLen(1))
		Expect(errs[0].Field).To(Equal("topology.VMs[ARISTA02T1].vlans[0]"))
	})

	It("should take multi DUT host interfaces as members", func() {
		tb = loadTestbed(`
topology:
  host_interfaces: ["0.0,1.0", "0.1,1.1"]
  DUT:
    vlan_configs:
      default_vlan_config: one_vlan_a
      one_vlan_a:
        Vlan1000: {id: 1000, intfs: [0, 1]}
`)
		tb.MultiDUT = true
		_, errs := run("")
		Expect(errs).To(BeEmpty())
	})

	It("should warn when there are no vlan configs", func() {
		tb.File.Topology.DUT = nil
		warnings, errs := run("")
		Expect(errs).To(BeEmpty())
		Expect(warnings).To(ConsistOf("topology has no DUT vlan configs"))
	})

	It("should reject an empty id range", func() {
		_, err := setup([]byte("{min_vlan_id: 10, max_vlan_id: 5}"))
		Expect(err).To(HaveOccurred())
	})
})
