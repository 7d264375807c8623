// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package ovs

import (
	"context"
	"os"
	"strings"

	"github.com/ironcore-dev/vmtopology/internal/shell"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const ofctlShow = `OFPT_FEATURES_REPLY (xid=0x2): dpid:0000aabbccddeeff
n_tables:254, n_buffers:0
 1(Ethernet0): addr:aa:bb:cc:00:00:01
     config:     0
 2(inje-vms1-0): addr:aa:bb:cc:00:00:02
 3(VM0100-t0): addr:aa:bb:cc:00:00:03
 LOCAL(br-VM0100-0): addr:aa:bb:cc:00:00:ff
`

var _ = Describe("Flows", func() {
	It("should fan out DUT traffic to the VM and the PTF", func() {
		flows := FanoutFlows("1", "3", "2")
		Expect(flows).To(HaveLen(27))
		Expect(flows[0]).To(Equal("table=0,priority=10,tcp,tp_src=179,in_port=1,action=output:3,2"))
		Expect(flows).To(ContainElement("table=0,priority=8,udp,udp_src=53,in_port=1,action=output:3"))
		Expect(flows).To(ContainElement("table=0,priority=6,udp6,udp_dst=4784,in_port=1,action=output:2"))
		Expect(flows).To(ContainElement("table=0,priority=5,ip,in_port=1,action=output:2"))
		Expect(flows).To(ContainElement("table=0,priority=3,in_port=1,action=output:3,2"))
		Expect(flows[len(flows)-1]).To(Equal("table=0,in_port=2,action=output:1"))
	})

	It("should render drop flows", func() {
		Expect(Drop("3")).To(Equal("table=0,in_port=3,action=drop"))
	})

	It("should parse port ids", func() {
		Expect(parsePortIDs(ofctlShow)).To(Equal(map[string]string{
			"Ethernet0":   "1",
			"inje-vms1-0": "2",
			"VM0100-t0":   "3",
			"br-VM0100-0": "LOCAL",
		}))
	})
})

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		runner *shell.FakeRunner
		client *Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		runner = &shell.FakeRunner{Handle: func(cmd shell.Command) (string, int) {
			switch line := cmd.String(); {
			case line == "ovs-ofctl show br-VM0100-0":
				return ofctlShow, 0
			case line == "ovs-vsctl port-to-br Ethernet0":
				return "br-old\n", 0
			case strings.HasPrefix(line, "ovs-vsctl port-to-br"):
				return "", 1
			case line == "ovs-vsctl list-ports br-VM0100-0":
				return "VM0100-t0\n", 0
			}
			return "", 0
		}}
		client = New(runner, false)
	})

	It("should create a bridge with an MTU", func() {
		Expect(client.AddBridge(ctx, "br-VM0100-0", 9100)).To(Succeed())
		Expect(client.AddBridge(ctx, "br-VM0100-1", 0)).To(Succeed())
		Expect(runner.Lines()).To(Equal([]string{
			"ovs-vsctl --may-exist add-br br-VM0100-0",
			"ip link set dev br-VM0100-0 mtu 9100",
			"ip link set dev br-VM0100-0 up",
			"ovs-vsctl --may-exist add-br br-VM0100-1",
			"ip link set dev br-VM0100-1 up",
		}))
	})

	It("should bind front panel ports", func() {
		Expect(client.BindPorts(ctx, "br-VM0100-0", "Ethernet0", "inje-vms1-0", "VM0100-t0", false, nil)).To(Succeed())
		lines := runner.Lines()
		Expect(lines[:4]).To(Equal([]string{
			"ovs-vsctl --if-exists del-port br-old Ethernet0",
			"ovs-vsctl --may-exist add-port br-VM0100-0 inje-vms1-0",
			"ovs-vsctl --may-exist add-port br-VM0100-0 Ethernet0",
			"ovs-ofctl del-flows br-VM0100-0",
		}))
		Expect(lines[4]).To(Equal("ovs-ofctl add-flow br-VM0100-0 table=0,in_port=3,action=output:1"))
		Expect(lines).To(HaveLen(5 + 27))
	})

	It("should drop VM traffic when disconnected", func() {
		Expect(client.BindPorts(ctx, "br-VM0100-0", "Ethernet0", "inje-vms1-0", "VM0100-t0", true, nil)).To(Succeed())
		lines := runner.Lines()
		Expect(lines[len(lines)-2:]).To(Equal([]string{
			"ovs-ofctl add-flow br-VM0100-0 table=0,in_port=3,action=drop",
			"ovs-ofctl add-flow br-VM0100-0 table=0,in_port=1,action=output:2",
		}))
	})

	It("should load the fan-out flows in the background in batch mode", func() {
		batch, err := shell.NewBatch(ctx, runner, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.BindPorts(ctx, "br-VM0100-0", "Ethernet0", "inje-vms1-0", "VM0100-t0", false, batch)).To(Succeed())

		started := runner.StartedLines()
		Expect(started).To(HaveLen(1))
		Expect(started[0]).To(HavePrefix("ovs-ofctl add-flows br-VM0100-0 " + batch.Dir()))
		data, err := os.ReadFile(strings.Fields(started[0])[3])
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.Split(strings.TrimSpace(string(data)), "\n")).To(Equal(FanoutFlows("1", "3", "2")))
		Expect(batch.Wait()).To(Succeed())
		Expect(batch.Dir()).NotTo(BeADirectory())
	})

	It("should unbind all ports but the VM port", func() {
		runner.Handle = func(cmd shell.Command) (string, int) {
			if cmd.String() == "ovs-vsctl list-ports br-VM0100-0" {
				return "Ethernet0\ninje-vms1-0\nVM0100-t0\n", 0
			}
			return "", 0
		}
		Expect(client.UnbindPorts(ctx, "br-VM0100-0", "VM0100-t0", nil)).To(Succeed())
		Expect(runner.Lines()).To(Equal([]string{
			"ovs-vsctl --if-exists del-port br-VM0100-0 Ethernet0",
			"ovs-vsctl --if-exists del-port br-VM0100-0 inje-vms1-0",
		}))

		batch, err := shell.NewBatch(ctx, runner, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.UnbindPorts(ctx, "br-VM0100-0", "VM0100-t0", batch)).To(Succeed())
		Expect(runner.StartedLines()).To(Equal([]string{
			"ovs-vsctl -- --if-exists del-port br-VM0100-0 Ethernet0 -- --if-exists del-port br-VM0100-0 inje-vms1-0",
		}))
		Expect(batch.Wait()).To(Succeed())
	})

	It("should use port names as ids when symbolic", func() {
		client = New(runner, true)
		ids, err := client.PortIDs(ctx, "br-x", "a", "b")
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal(map[string]string{"a": "a", "b": "b"}))
	})
})
