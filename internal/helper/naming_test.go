// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package helper

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Naming", func() {
	DescribeTable("AdaptiveName",
		func(template, host string, index int, want string) {
			Expect(AdaptiveName(template, host, index)).To(Equal(want))
		},
		Entry("short host keeps the leading token", InjectedIfTemplate, "vms7-6", 21, "inje-vms7-6-21"),
		Entry("longer host drops one character", InjectedIfTemplate, "vms21-1", 121, "inj-vms21-1-121"),
		Entry("longest fitting host drops two characters", InjectedIfTemplate, "vms121-1", 121, "in-vms121-1-121"),
		Entry("ovs bridge", OVSFPBridgeTemplate, "VM0100", 3, "br-VM0100-3"),
		Entry("mux bridge", MuxyBridgeTemplate, "vms-t0", 12, "mbr-vms-t0-12"),
		Entry("host filling the whole name", InjectedIfTemplate, "vmsabcdefg-1", 1, "-vmsabcdefg-1-1"),
		Entry("overlong host cuts the overflow from the leading token", InjectedIfTemplate, "vms-longhost01", 1, "in-vms-longhost01-1"),
		Entry("overflow larger than the leading token", InjectedIfTemplate, "vms-very-long-host", 1, "-vms-very-long-host-1"),
	)

	It("should keep names of short hosts within the interface name limit", func() {
		for _, host := range []string{"vms7-6", "vms21-1", "vms121-1"} {
			Expect(len(AdaptiveName(InjectedIfTemplate, host, 121))).To(BeNumerically("<=", MaxIntfLen))
		}
	})

	DescribeTable("AdaptiveTemporaryInterface",
		func(intf string, reserved int, want string, wantErr bool) {
			got, err := AdaptiveTemporaryInterface("vms-t0", intf, reserved)
			if wantErr {
				Expect(err).To(HaveOccurred())
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("short interface keeps its name", "eth5", 0, "4de14aeth5_t", false),
		Entry("long interface is hashed", "eth100000", 0, "27faff_t", false),
		Entry("reserved room for a sub-interface", "eth5", 3, "4de14aeth5_t", false),
		Entry("too little room left", "eth5", 8, "", true),
	)

	It("should fill the temporary peer name up to the interface name limit", func() {
		got := TempPeerName(MgmtPortName, "ptf-vms-t0-m")
		Expect(got).To(Equal("mgmt69a43f7d410"))
		Expect(got).To(HaveLen(MaxIntfLen))
	})

	It("should parse index lists", func() {
		got, err := ParseIndexList("0-3, 8,10-11")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.UnsortedList()).To(ConsistOf(0, 1, 2, 3, 8, 10, 11))

		for _, bad := range []string{"a", "3-1", "1-x"} {
			_, err := ParseIndexList(bad)
			Expect(err).To(HaveOccurred(), bad)
		}
	})
})
