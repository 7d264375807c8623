// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vmset

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironcore-dev/vmtopology/internal/api"
	"github.com/ironcore-dev/vmtopology/internal/docker"
	"github.com/ironcore-dev/vmtopology/internal/hostlink"
	"github.com/ironcore-dev/vmtopology/internal/shell"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const singleDUTTopology = `
topology:
  host_interfaces: [0, 1]
  VMs:
    ARISTA01T1: {vlans: [2], vm_offset: 0}
    ARISTA02T1: {vlans: [3], vm_offset: 1}
`

const backendToRTopology = `
topology:
  host_interfaces: [0, 1]
  disabled_host_interfaces: [1]
  VMs:
    ARISTA01T1: {vlans: [2], vm_offset: 0}
  DUT:
    vlan_configs:
      default_vlan_config: one_vlan_a
      one_vlan_a:
        Vlan1000: {id: 1000, intfs: [0, 1], prefix: 192.168.0.1/21}
configuration_properties:
  common:
    dut_type: BackEndToRRouter
    device_type: BackEndLeafRouter
configuration:
  ARISTA01T1:
    properties: [common]
`

const linkedTopology = `
topology:
  host_interfaces: [0]
  VMs:
    ARISTA01T1: {vlans: [2], vm_offset: 0}
    ARISTA02T1: {vlans: [3], vm_offset: 1}
  VM_LINKs:
    LINK1: {start_vm_offset: 0, start_vm_port_idx: 1, end_vm_offset: 1, end_vm_port_idx: 1}
    LINK2: {start_vm_offset: 0, start_vm_port_idx: 2, end_vm_offset: 1, end_vm_port_idx: 2, use_ovs: 1}
  OVS_LINKs:
    OVS1: {start_vm_offset: 0, start_vm_port_idx: 3, end_vm_offset: 1, end_vm_port_idx: 3, vlans: [6]}
  devices_interconnect_interfaces:
    "1": [4, 5]
`

func mgmtParams() *api.VMSetParams {
	p := &api.VMSetParams{
		VMSetName:       "vms1",
		VMNames:         []string{"VM0100", "VM0101"},
		VMBase:          "VM0100",
		PTFMgmtIPAddr:   "10.250.0.100/24",
		PTFMgmtIPv6Addr: "fec0::ffff:afa:0/64",
		PTFMgmtIPGw:     "10.250.0.1",
		PTFMgmtIPv6Gw:   "fec0::1",
		PTFBpIPAddr:     "10.10.246.254/24",
		PTFBpIPv6Addr:   "fc0a::ff/64",
		NetnsMgmtIPAddr: "10.250.0.200/24",
		MgmtBridge:      "br1",
		DUTsName:        []string{"dut1"},
		DUTsMgmtPort:    []string{"", "vlab-01-mgmt"},
		DUTsFPPorts: map[string]map[string]string{
			"dut1": {"0": "Ethernet0", "1": "Ethernet4", "2": "Ethernet8", "3": "Ethernet12"},
		},
	}
	p.Defaults()
	return p
}

var _ = Describe("Commands", func() {
	var (
		ctx    context.Context
		w      *world
		runner *shell.FakeRunner
		params *api.VMSetParams
		opts   Options
		deps   Deps
	)

	BeforeEach(func() {
		ctx = context.Background()
		w = newWorld()
		w.link("", "Ethernet0", "Ethernet4", "Ethernet8", "Ethernet12")
		w.ofctl["br-VM0100-0"] = map[string]int{"Ethernet8": 1, "inje-vms1-2": 2, "VM0100-t0": 3}
		w.ofctl["br-VM0101-0"] = map[string]int{"Ethernet12": 1, "inje-vms1-3": 2, "VM0101-t0": 3}
		runner = &shell.FakeRunner{Handle: w.handle}
		params = mgmtParams()
		opts = Options{}
		deps = Deps{
			Runner: runner,
			PIDs:   docker.StaticResolver{"ptf_vms1": ptfPID},
			Links:  hostlink.Static{"br-VM0100-0", "br-VM0101-0"},
		}
	})

	Describe("create and destroy", func() {
		It("should create the fp bridges of every VM", func() {
			params.FPMTU = 9100
			Expect(Run(ctx, CmdCreate, params, nil, opts, deps)).To(Succeed())
			lines := runner.Lines()
			Expect(lines[:3]).To(Equal([]string{
				"ovs-vsctl --may-exist add-br br-VM0100-0",
				"ip link set dev br-VM0100-0 mtu 9100",
				"ip link set dev br-VM0100-0 up",
			}))
			var bridges []string
			for _, l := range lines {
				if strings.Contains(l, "add-br") {
					bridges = append(bridges, l)
				}
			}
			Expect(bridges).To(HaveLen(8))
			Expect(bridges[7]).To(Equal("ovs-vsctl --may-exist add-br br-VM0101-3"))
		})

		It("should destroy the fp bridges of every VM", func() {
			Expect(Run(ctx, CmdDestroy, params, nil, opts, deps)).To(Succeed())
			Expect(runner.Lines()).To(HaveLen(8))
			Expect(runner.Lines()[0]).To(Equal("ovs-vsctl --if-exists del-br br-VM0100-0"))
		})
	})

	Describe("bind", func() {
		It("should wire the PTF, the VMs and the host ports", func() {
			Expect(Run(ctx, CmdBind, params, loadTopology(singleDUTTopology), opts, deps)).To(Succeed())

			Expect(runner.Ran("ip link add ptf-vms1-m type veth peer name")).To(BeTrue())
			Expect(runner.Ran("brctl addif br1 ptf-vms1-m")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix + " ip addr add 10.250.0.100/24 dev mgmt")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix + " ip route add default via 10.250.0.1 dev mgmt")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix + " ip -6 addr add fec0::ffff:afa:0/64 dev mgmt")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix + " ip -6 route add default via fec0::1 dev mgmt")).To(BeTrue())
			Expect(runner.Ran("brctl addif br1 vlab-01-mgmt")).To(BeTrue())

			Expect(runner.Ran("ip link add inje-vms1-2 type veth peer name")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix+" ip link set dev", "name eth2")).To(BeTrue())
			Expect(runner.Ran("ovs-vsctl --may-exist add-port br-VM0100-0 Ethernet8")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow br-VM0100-0 table=0,in_port=3,action=output:1")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow br-VM0100-0 table=0,in_port=2,action=output:1")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow br-VM0101-0 table=0,in_port=3,action=output:1")).To(BeTrue())

			Expect(runner.Ran("brctl addif br-b-vms1 VM0100-back")).To(BeTrue())
			Expect(runner.Ran("brctl addif br-b-vms1 ptf-vms1-b")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix + " ip addr add 10.10.246.254/24 dev backplane")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix + " ethtool -K backplane tx off")).To(BeTrue())

			Expect(runner.Ran("ip link set dev Ethernet0 netns 1234")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix + " ip link set dev Ethernet0 name eth0")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix + " ip link set eth1 up")).To(BeTrue())
			Expect(runner.Ran("ip netns add")).To(BeFalse())

			Expect(ranInOrder(runner.Lines(),
				"brctl addif br1 ptf-vms1-m",
				"brctl addif br1 vlab-01-mgmt",
				"ip link add inje-vms1-2",
				"add-flow br-VM0100-0",
				"brctl addif br-b-vms1",
				"ip link set dev Ethernet0 netns 1234",
			)).To(BeTrue())
		})

		It("should not add addresses that are already configured", func() {
			w.link(ptfPrefix, "mgmt")
			runner.Handle = func(cmd shell.Command) (string, int) {
				if cmd.String() == ptfPrefix+" ip addr show dev mgmt" {
					return "inet 10.250.0.100/24 scope global mgmt", 0
				}
				return w.handle(cmd)
			}
			Expect(Run(ctx, CmdBind, params, loadTopology(singleDUTTopology), opts, deps)).To(Succeed())
			Expect(runner.Ran("ip link add ptf-vms1-m")).To(BeFalse())
			Expect(runner.Ran(ptfPrefix + " ip addr add 10.250.0.100/24 dev mgmt")).To(BeFalse())
		})

		It("should fail when the PTF container is not running", func() {
			deps.PIDs = docker.StaticResolver{}
			err := Run(ctx, CmdBind, params, loadTopology(singleDUTTopology), opts, deps)
			Expect(err).To(MatchError(ContainSubstring("ptf_vms1 is not running")))
			Expect(runner.Lines()).To(BeEmpty())
		})

		It("should check the parameters and the topology first", func() {
			params.MgmtBridge = ""
			Expect(Run(ctx, CmdBind, params, loadTopology(singleDUTTopology), opts, deps)).To(
				MatchError("parameter mgmt_bridge is required in bind mode"))

			params = mgmtParams()
			params.VMSetName = "vms-toolong"
			Expect(Run(ctx, CmdBind, params, loadTopology(singleDUTTopology), opts, deps)).To(
				MatchError(ContainSubstring("can't be longer than")))

			params = mgmtParams()
			Expect(Run(ctx, CmdBind, params, loadTopology(`
topology:
  host_interfaces: [0, 2]
  VMs:
    ARISTA01T1: {vlans: [2], vm_offset: 0}
`), opts, deps)).To(MatchError(ContainSubstring("Duplicate value")))

			Expect(Run(ctx, CmdBind, params, nil, opts, deps)).To(MatchError("parameter topo is required in bind mode"))
			Expect(runner.Lines()).To(BeEmpty())
		})

		It("should add vlan sub-interfaces for a backend ToR", func() {
			Expect(Run(ctx, CmdBind, params, loadTopology(backendToRTopology), opts, deps)).To(Succeed())
			Expect(runner.Ran(ptfPrefix + " ip link add link eth0 name eth0.1000 type vlan id 1000")).To(BeTrue())
			Expect(runner.Ran("name eth1.1000")).To(BeFalse())
			Expect(runner.Ran("ip link add link", "type vlan id 10")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix+" ip link set dev", "name eth2.10")).To(BeTrue())
		})
	})

	Describe("dual ToR", func() {
		var rtTables string

		BeforeEach(func() {
			params.VMNames = []string{"VM0100"}
			params.DUTsName = []string{"dut0", "dut1"}
			params.DUTsMgmtPort = nil
			params.DUTsFPPorts = map[string]map[string]string{
				"dut0": {"0": "d0e0", "1": "d0e1", "2": "d0e2"},
				"dut1": {"0": "d1e0", "1": "d1e1", "2": "d1e2"},
			}
			w.link("", "d0e0", "d0e1", "d0e2", "d1e0", "d1e1", "d1e2")
			w.ofctl["br-VM0100-0"] = map[string]int{"d0e2": 1, "inje-vms1-2": 2, "VM0100-t0": 3}
			w.ofctl["br-VM0100-1"] = map[string]int{"d1e2": 1, "inje-vms1-3": 2, "VM0100-t1": 3}
			w.ofctl["mbr-vms1-0"] = map[string]int{"muxy-vms1-0": 1, "d0e0": 2, "d1e0": 3}
			w.ofctl["baa-vms1-1"] = map[string]int{"iaa-vms1-1": 1, "d0e1": 2, "d1e1": 3, "nic-vms1-1": 4}
			deps.Links = hostlink.Static{"br-VM0100-0", "br-VM0100-1"}

			dir, err := os.MkdirTemp("", "vmset-")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)
			rtTables = filepath.Join(dir, "rt_tables")
			Expect(os.WriteFile(rtTables, []byte("255\tlocal\n254\tmain\n253\tdefault\n0\tunspec\n#\n"), 0o644)).To(Succeed())
			opts.RTTablesPath = rtTables
		})

		It("should build the mux cables, the netns and its source routing", func() {
			Expect(Run(ctx, CmdBind, params, loadTopology(dualToRTopology), opts, deps)).To(Succeed())

			Expect(runner.Ran("ip netns add ns-vms1")).To(BeTrue())
			Expect(runner.Ran("ip netns exec ns-vms1 sysctl -w net.ipv4.conf.all.arp_filter=1")).To(BeTrue())
			Expect(runner.Ran("brctl addif br1 ns-vms1-m")).To(BeTrue())
			Expect(runner.Ran("ip netns exec ns-vms1 ip addr add 10.250.0.200/24 dev mgmt")).To(BeTrue())
			Expect(runner.Ran("ip netns exec ns-vms1 ip link set lo up")).To(BeTrue())

			Expect(runner.Ran("ip link add muxy-vms1-0 type veth peer name")).To(BeTrue())
			Expect(runner.Ran("ovs-vsctl --may-exist add-br mbr-vms1-0")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow mbr-vms1-0 table=0,in_port=1,action=output:2,3")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow mbr-vms1-0 table=0,in_port=2,action=output:1")).To(BeTrue())

			Expect(runner.Ran("ip link add iaa-vms1-1 type veth peer name")).To(BeTrue())
			Expect(runner.Ran("ip link add nic-vms1-1 type veth peer name")).To(BeTrue())
			Expect(runner.Ran("ip netns exec ns-vms1 ip addr add 192.168.0.5/21 dev eth1")).To(BeTrue())
			Expect(runner.Ran("ovs-vsctl --may-exist add-port baa-vms1-1 nic-vms1-1")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl del-flows baa-vms1-1")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow baa-vms1-1")).To(BeFalse())

			Expect(runner.Ran("printf '101\\teth1\\n' >> " + rtTables)).To(BeTrue())
			Expect(runner.Ran("printf '100")).To(BeFalse())
			Expect(ranInOrder(runner.Lines(),
				"ip netns add ns-vms1",
				"ip link add muxy-vms1-0",
				"ip netns exec ns-vms1 ip rule add iif eth1 table eth1",
				"ip netns exec ns-vms1 ip rule add from 192.168.0.5 table eth1",
				"ip netns exec ns-vms1 ip route flush table eth1",
				"ip netns exec ns-vms1 ip route add 192.168.0.0/21 dev eth1 table eth1",
				"ip netns exec ns-vms1 ip route add default via 192.168.0.1 dev eth1 table eth1",
			)).To(BeTrue())
		})

		It("should reuse a known routing table", func() {
			Expect(os.WriteFile(rtTables, []byte("101\teth1\n"), 0o644)).To(Succeed())
			Expect(Run(ctx, CmdBind, params, loadTopology(dualToRTopology), opts, deps)).To(Succeed())
			Expect(runner.Ran("printf")).To(BeFalse())
			Expect(runner.Ran("ip netns exec ns-vms1 ip rule add iif eth1 table eth1")).To(BeTrue())
		})

		It("should remove the mux cables and the netns", func() {
			w.netns.Insert("ns-vms1")
			Expect(Run(ctx, CmdUnbind, params, loadTopology(dualToRTopology), opts, deps)).To(Succeed())
			Expect(runner.Ran("ovs-vsctl --if-exists del-br mbr-vms1-0")).To(BeTrue())
			Expect(runner.Ran("ovs-vsctl --if-exists del-br baa-vms1-1")).To(BeTrue())
			Expect(runner.Ran("ip netns delete ns-vms1")).To(BeTrue())
		})
	})

	Describe("unbind", func() {
		BeforeEach(func() {
			w.ports["br-VM0100-0"] = []string{"Ethernet8", "inje-vms1-2", "VM0100-t0"}
		})

		It("should keep the VM taps and leave a stopped PTF alone", func() {
			deps.PIDs = docker.StaticResolver{}
			Expect(Run(ctx, CmdUnbind, params, loadTopology(singleDUTTopology), opts, deps)).To(Succeed())
			Expect(runner.Ran("ovs-vsctl --if-exists del-port br-VM0100-0 Ethernet8")).To(BeTrue())
			Expect(runner.Ran("ovs-vsctl --if-exists del-port br-VM0100-0 inje-vms1-2")).To(BeTrue())
			Expect(runner.Ran("del-port br-VM0100-0 VM0100-t0")).To(BeFalse())
			Expect(runner.Lines()).NotTo(ContainElement(HavePrefix("nsenter")))
		})

		It("should hand the ports back to the host", func() {
			w.link(ptfPrefix, "eth0", "eth1", "eth2", "mgmt")
			w.unlink("", "Ethernet0")
			Expect(Run(ctx, CmdUnbind, params, loadTopology(singleDUTTopology), opts, deps)).To(Succeed())
			Expect(ranInOrder(runner.Lines(),
				ptfPrefix+" ip link set eth0 down",
				ptfPrefix+" ip link set dev eth0 name Ethernet0",
				ptfPrefix+" ip link set dev Ethernet0 netns 1",
			)).To(BeTrue())
			Expect(runner.Ran(ptfPrefix + " ip link set dev eth2 name eth2")).To(BeTrue())
			Expect(runner.Ran(ptfPrefix + " ip link set dev mgmt name")).To(BeTrue())
		})

		It("should remove the ports in one transaction per bridge in batch mode", func() {
			opts.BatchMode = true
			Expect(Run(ctx, CmdUnbind, params, loadTopology(singleDUTTopology), opts, deps)).To(Succeed())
			Expect(runner.StartedLines()).To(ConsistOf(
				"ovs-vsctl -- --if-exists del-port br-VM0100-0 Ethernet8 -- --if-exists del-port br-VM0100-0 inje-vms1-2",
			))
			Expect(runner.Ran("del-port br-VM0100-0")).To(BeFalse())
		})
	})

	Describe("links between VMs and DUTs", func() {
		BeforeEach(func() {
			params.FPMTU = 9100
			params.DUTsFPPorts["dut1"]["4"] = "Ethernet16"
			params.DUTsFPPorts["dut1"]["5"] = "Ethernet20"
			w.link("", "Ethernet16", "Ethernet20")
			w.ofctl["br_ovs1"] = map[string]int{"VM0100-t3": 1, "inje-vms1-6": 2, "VM0101-t3": 3}
			w.ofctl["br_link2"] = map[string]int{"VM0100-t2": 1, "VM0101-t2": 2}
			w.ofctl["bic-vms1-1"] = map[string]int{"Ethernet16": 1, "Ethernet20": 2}
		})

		It("should put an OVS link on its own bridge with the PTF tapping it", func() {
			Expect(Run(ctx, CmdBind, params, loadTopology(linkedTopology), opts, deps)).To(Succeed())

			Expect(runner.Ran("ip link add inje-vms1-6 type veth peer name")).To(BeTrue())
			Expect(ranInOrder(runner.Lines(),
				"ovs-vsctl --may-exist add-br br_ovs1",
				"ip link set dev br_ovs1 mtu 9000",
				"ip link set dev br_ovs1 up",
				"ovs-vsctl --may-exist add-port br_ovs1 inje-vms1-6",
				"ovs-vsctl --may-exist add-port br_ovs1 VM0100-t3",
				"ovs-vsctl --may-exist add-port br_ovs1 VM0101-t3",
				"ovs-ofctl del-flows br_ovs1",
				"ovs-ofctl add-flow br_ovs1 table=0,in_port=3,action=output:1",
			)).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow br_ovs1 table=0,priority=3,in_port=1,action=output:3,2")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow br_ovs1 table=0,in_port=2,action=output:1")).To(BeTrue())
		})

		It("should connect VM links on a Linux bridge or on OVS", func() {
			Expect(Run(ctx, CmdBind, params, loadTopology(linkedTopology), opts, deps)).To(Succeed())

			Expect(ranInOrder(runner.Lines(),
				"brctl addbr br_link1",
				"ip link set br_link1 up",
				"brctl addif br_link1 VM0100-t1",
				"brctl addif br_link1 VM0101-t1",
				"ip link set VM0100-t1 up",
				"ip link set VM0101-t1 up",
			)).To(BeTrue())

			Expect(ranInOrder(runner.Lines(),
				"ovs-vsctl --may-exist add-br br_link2",
				"ip link set dev br_link2 mtu 9100",
				"ovs-vsctl --may-exist add-port br_link2 VM0100-t2",
				"ovs-vsctl --may-exist add-port br_link2 VM0101-t2",
				"ovs-ofctl del-flows br_link2",
				"ovs-ofctl add-flow br_link2 table=0,in_port=1,action=output:2",
				"ovs-ofctl add-flow br_link2 table=0,in_port=2,action=output:1",
			)).To(BeTrue())
			Expect(runner.Ran("brctl addbr br_link2")).To(BeFalse())
		})

		It("should cross connect the DUT ports of a devices interconnect", func() {
			Expect(Run(ctx, CmdBind, params, loadTopology(linkedTopology), opts, deps)).To(Succeed())

			Expect(ranInOrder(runner.Lines(),
				"ip link set dev Ethernet0 netns 1234",
				"ovs-vsctl --may-exist add-br bic-vms1-1",
				"ip link set dev bic-vms1-1 mtu 9100",
				"ovs-vsctl --may-exist add-port bic-vms1-1 Ethernet16",
				"ovs-vsctl --may-exist add-port bic-vms1-1 Ethernet20",
				"ovs-ofctl del-flows bic-vms1-1",
				"ovs-ofctl add-flow bic-vms1-1 table=0,in_port=1,action=output:2",
				"ovs-ofctl add-flow bic-vms1-1 table=0,in_port=2,action=output:1",
			)).To(BeTrue())
		})

		It("should create the backplane bridge and the VS chassis bridges", func() {
			params.IsVSChassis = true
			params.DUTsMidplanePorts = map[string][]string{"dut1": {"mid0", "mid1"}}
			params.DUTsInbandPorts = map[string][]string{"dut1": {"inb0"}}
			Expect(Run(ctx, CmdBind, params, loadTopology(linkedTopology), opts, deps)).To(Succeed())

			Expect(ranInOrder(runner.Lines(),
				"brctl addbr br-b-vms1",
				"ip link set br-b-vms1 up",
				"brctl addif br-b-vms1 VM0100-back",
				"brctl addif br-b-vms1 VM0101-back",
				"ovs-vsctl --may-exist add-br br-vms1-inb",
				"ip link set dev br-vms1-inb mtu 9100",
				"ovs-vsctl --may-exist add-br br-vms1-mid",
				"ovs-vsctl --may-exist add-port br-vms1-mid mid0",
				"ovs-vsctl --may-exist add-port br-vms1-mid mid1",
				"ovs-vsctl --may-exist add-port br-vms1-inb inb0",
			)).To(BeTrue())
		})

		It("should tear the links, the backplane and the VS chassis down on unbind", func() {
			deps.PIDs = docker.StaticResolver{}
			params.IsVSChassis = true
			params.DUTsMidplanePorts = map[string][]string{"dut1": {"mid0", "mid1"}}
			params.DUTsInbandPorts = map[string][]string{"dut1": {"inb0"}}
			w.link("", "br_link1", "br-b-vms1")
			w.bridges["br_link1"] = []string{"VM0100-t1", "VM0101-t1"}
			w.bridges["br-b-vms1"] = []string{"VM0100-back", "VM0101-back"}
			w.ports["br_link2"] = []string{"VM0100-t2", "VM0101-t2"}
			w.ports["br_ovs1"] = []string{"VM0100-t3", "inje-vms1-6", "VM0101-t3"}
			w.ports["bic-vms1-1"] = []string{"Ethernet16", "Ethernet20"}
			w.ports["br-vms1-mid"] = []string{"mid0", "mid1"}
			w.ports["br-vms1-inb"] = []string{"inb0"}

			Expect(Run(ctx, CmdUnbind, params, loadTopology(linkedTopology), opts, deps)).To(Succeed())

			Expect(ranInOrder(runner.Lines(),
				"ip link set br-b-vms1 down",
				"brctl delbr br-b-vms1",
				"brctl delif br_link1 VM0100-t1",
				"brctl delif br_link1 VM0101-t1",
				"ip link set br_link1 down",
				"brctl delbr br_link1",
				"ovs-vsctl --if-exists del-port br_link2 VM0100-t2",
				"ovs-vsctl --if-exists del-port br_link2 VM0101-t2",
				"ovs-vsctl --if-exists del-br br_link2",
				"ovs-vsctl --if-exists del-port br_ovs1 VM0100-t3",
				"ovs-vsctl --if-exists del-port br_ovs1 VM0101-t3",
				"ovs-vsctl --if-exists del-port br_ovs1 inje-vms1-6",
				"ovs-vsctl --if-exists del-br br_ovs1",
				"ovs-vsctl --if-exists del-port br-vms1-mid mid0",
				"ovs-vsctl --if-exists del-port br-vms1-mid mid1",
				"ovs-vsctl --if-exists del-port br-vms1-inb inb0",
				"ovs-vsctl --if-exists del-br br-vms1-inb",
				"ovs-vsctl --if-exists del-br br-vms1-mid",
				"ovs-vsctl --if-exists del-port bic-vms1-1 Ethernet16",
				"ovs-vsctl --if-exists del-port bic-vms1-1 Ethernet20",
				"ovs-vsctl --if-exists del-br bic-vms1-1",
			)).To(BeTrue())
		})

		It("should drop the VM side of an OVS link on disconnect and leave the interconnect alone", func() {
			Expect(Run(ctx, CmdDisconnectVMs, params, loadTopology(linkedTopology), opts, deps)).To(Succeed())

			Expect(runner.Ran("ovs-ofctl add-flow br_ovs1 table=0,in_port=3,action=drop")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow br_ovs1 table=0,in_port=1,action=output:2")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow br_ovs1 table=0,in_port=3,action=output:1")).To(BeFalse())
			Expect(runner.Ran("brctl addif br_link1 VM0100-t1")).To(BeTrue())
			Expect(runner.Ran("bic-vms1-1")).To(BeFalse())
			Expect(runner.Ran("ip link add")).To(BeFalse())
		})

		It("should reconnect the OVS link on connect", func() {
			Expect(Run(ctx, CmdConnectVMs, params, loadTopology(linkedTopology), opts, deps)).To(Succeed())

			Expect(runner.Ran("ovs-ofctl add-flow br_ovs1 table=0,in_port=3,action=output:1")).To(BeTrue())
			Expect(runner.Ran("ovs-ofctl add-flow br_ovs1 table=0,in_port=3,action=drop")).To(BeFalse())
			Expect(runner.Ran("ovs-ofctl add-flow br_link2 table=0,in_port=1,action=output:2")).To(BeTrue())
		})
	})

	It("should renumber by rebinding the front panel ports", func() {
		w.ports["br-VM0100-0"] = []string{"Ethernet8", "inje-vms1-2", "VM0100-t0"}
		Expect(Run(ctx, CmdRenumber, params, loadTopology(singleDUTTopology), opts, deps)).To(Succeed())
		Expect(ranInOrder(runner.Lines(),
			"ovs-vsctl --if-exists del-port br-VM0100-0 Ethernet8",
			"ip link add inje-vms1-2",
			"ovs-ofctl add-flow br-VM0100-0 table=0,in_port=3,action=output:1",
			"ip link set dev Ethernet0 netns 1234",
		)).To(BeTrue())
	})

	It("should disconnect the VMs", func() {
		Expect(Run(ctx, CmdDisconnectVMs, params, loadTopology(singleDUTTopology), opts, deps)).To(Succeed())
		Expect(runner.Ran("ovs-ofctl add-flow br-VM0100-0 table=0,in_port=3,action=drop")).To(BeTrue())
		Expect(runner.Ran("ovs-ofctl add-flow br-VM0100-0 table=0,in_port=1,action=output:2")).To(BeTrue())
		Expect(runner.Ran("ovs-ofctl add-flow br-VM0100-0 table=0,in_port=3,action=output:1")).To(BeFalse())
		Expect(runner.Ran("ip link add")).To(BeFalse())
	})

	It("should plug the keysight API server into the management bridge", func() {
		deps.PIDs = docker.StaticResolver{"apiserver": 77}
		Expect(Run(ctx, CmdBindKeysightAPIs, params, nil, opts, deps)).To(Succeed())
		Expect(runner.Ran("ip link add apiserver type veth peer name")).To(BeTrue())
		Expect(runner.Ran("brctl addif br1 apiserver")).To(BeTrue())
		Expect(ranInOrder(runner.Lines(),
			"nsenter -t 77 -n ip route del default",
			"nsenter -t 77 -n ip route add default via 10.250.0.1 dev mgmt",
		)).To(BeTrue())
	})

	It("should use symbolic port ids in a dry run", func() {
		opts.DryRun = true
		w.ofctl = map[string]map[string]int{}
		Expect(Run(ctx, CmdConnectVMs, params, loadTopology(singleDUTTopology), opts, deps)).To(Succeed())
		Expect(runner.Ran("ovs-ofctl add-flow br-VM0100-0 table=0,in_port=VM0100-t0,action=output:Ethernet8")).To(BeTrue())
	})
})
