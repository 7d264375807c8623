// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vmset

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/api"
	"github.com/ironcore-dev/vmtopology/internal/docker"
	h "github.com/ironcore-dev/vmtopology/internal/helper"
	"github.com/ironcore-dev/vmtopology/internal/hostlink"
	"github.com/ironcore-dev/vmtopology/internal/logctx"
	"github.com/ironcore-dev/vmtopology/internal/netdev"
	"github.com/ironcore-dev/vmtopology/internal/ovs"
	"github.com/ironcore-dev/vmtopology/internal/shell"
	"github.com/ironcore-dev/vmtopology/internal/worker"
	"github.com/sirupsen/logrus"
)

var log = logger.GetLogger("vmset")

const (
	DefaultRTTablesPath = "/etc/iproute2/rt_tables"
	ovsLinkMTU          = 9000
)

func taskLog(ctx context.Context) *logrus.Entry {
	return logctx.FromContext(ctx, log)
}

// Options tune how a VM set is wired.
type Options struct {
	BatchMode    bool
	BatchTimeout time.Duration
	DryRun       bool
	RTTablesPath string
}

// Deps are the systems a VM set is wired with.
type Deps struct {
	Runner shell.Runner
	PIDs   docker.PIDResolver
	Links  hostlink.Lister
	Pool   *worker.Pool
}

// vm is a topology VM resolved to the VM it runs on.
type vm struct {
	hostname string
	name     string
	vlans    []api.VlanPort
	entry    api.VMEntry
}

// VMSet wires the VMs, the PTF container and the DUT ports of one VM set.
type VMSet struct {
	params *api.VMSetParams
	topo   *api.Topology
	props  map[string]api.Properties
	opts   Options

	net   *netdev.Client
	ovs   *ovs.Client
	pids  docker.PIDResolver
	links hostlink.Lister
	pool  *worker.Pool

	pid         int
	vmBaseIndex int
	vms         []vm
	multiDUT    bool
	cable       bool

	hostIfs         []api.HostInterface
	disabledHostIfs []api.HostInterface
	activeActive    []api.HostInterface
	netns           string
	muxCables       map[int]MuxCable
	interconnect    map[string][]api.VlanPort

	bpBridge      string
	chassisMid    string
	chassisInband string
	vlanIDs       map[int]string
}

// New prepares a VM set. Nothing is inspected or changed before Init.
func New(params *api.VMSetParams, file *api.TopologyFile, opts Options, deps Deps) *VMSet {
	if opts.RTTablesPath == "" {
		opts.RTTablesPath = DefaultRTTablesPath
	}
	if deps.Pool == nil {
		deps.Pool = worker.New(false, 1)
	}
	topo := &api.Topology{}
	props := params.VMProperties
	if file != nil {
		topo = &file.Topology
		if len(props) == 0 {
			props = file.VMProperties()
		}
	}
	return &VMSet{
		params: params,
		topo:   topo,
		props:  props,
		opts:   opts,
		net:    netdev.New(deps.Runner),
		ovs:    ovs.New(deps.Runner, opts.DryRun),
		pids:   deps.PIDs,
		links:  deps.Links,
		pool:   deps.Pool,
	}
}

func (s *VMSet) name() string { return s.params.VMSetName }

func (s *VMSet) ptf() netdev.Namespace { return netdev.Container(s.pid) }

func (s *VMSet) ns() netdev.Namespace { return netdev.Netns(s.netns) }

// Init resolves the topology against the test server. With checkBridge the
// front panel bridges of every VM must exist.
func (s *VMSet) Init(ctx context.Context, checkBridge bool) error {
	if s.pids != nil {
		pid, err := s.pids.ContainerPID(ctx, fmt.Sprintf(h.PTFNameTemplate, s.name()))
		if err != nil {
			return err
		}
		s.pid = pid
	}

	s.multiDUT = s.params.IsMultiDUT()
	s.cable = s.multiDUT && len(s.topo.VMs) == 0

	if err := s.resolveVMs(); err != nil {
		return err
	}
	if checkBridge {
		if err := s.checkBridges(); err != nil {
			return err
		}
	}
	if err := s.resolveHostInterfaces(); err != nil {
		return err
	}

	s.interconnect = map[string][]api.VlanPort{}
	for key, vlans := range s.topo.DevicesInterconnectInterfaces {
		ports := make([]api.VlanPort, 0, len(vlans))
		for _, v := range vlans {
			p, err := api.ParseVlanPort(v)
			if err != nil {
				return fmt.Errorf("devices interconnect %s: %w", key, err)
			}
			ports = append(ports, p)
		}
		s.interconnect[key] = ports
	}

	s.bpBridge = fmt.Sprintf(h.RootBackBridgeTemplate, s.name())

	if s.params.IsVSChassis {
		s.chassisMid = fmt.Sprintf(h.VSChassisMidTemplate, s.name())
		s.chassisInband = fmt.Sprintf(h.VSChassisInbandTemplate, s.name())
		if len(s.chassisMid) > h.MaxIntfLen {
			return fmt.Errorf("the length of VS chassis midplane bridge name %s is too long", s.chassisMid)
		}
		if len(s.chassisInband) > h.MaxIntfLen {
			return fmt.Errorf("the length of VS chassis inband bridge name %s is too long", s.chassisInband)
		}
	}

	if s.dutType() == api.BackEndToRType {
		if err := s.resolveVlanIDs(); err != nil {
			return err
		}
	}
	return nil
}

func (s *VMSet) resolveVMs() error {
	s.vms = nil
	entries := s.topo.VMs
	if s.params.IsDPU {
		entries = s.topo.DPUs
	}
	if len(entries) == 0 {
		return nil
	}

	s.vmBaseIndex = -1
	for i, n := range s.params.VMNames {
		if n == s.params.VMBase {
			s.vmBaseIndex = i
			break
		}
	}
	if s.vmBaseIndex < 0 {
		return fmt.Errorf("VM_base %q should be presented in current vm_names: %v", s.params.VMBase, s.params.VMNames)
	}

	if s.params.DUTInterfaces != "" && !s.params.IsDPU {
		var err error
		if entries, err = filterVMs(entries, s.params.DUTInterfaces); err != nil {
			return err
		}
	}

	for _, hostname := range api.SortedKeys(entries) {
		entry := entries[hostname]
		idx := s.vmBaseIndex + entry.Offset()
		if idx < 0 || idx >= len(s.params.VMNames) {
			continue
		}
		name := s.params.VMNames[idx]
		if s.params.CurrentVMName != "" && !s.params.IsDPU && name != s.params.CurrentVMName {
			continue
		}
		v := vm{hostname: hostname, name: name, entry: entry}
		for _, spec := range entry.Vlans {
			p, err := api.ParseVlanPort(spec)
			if err != nil {
				return fmt.Errorf("VM %s: %w", hostname, err)
			}
			v.vlans = append(v.vlans, p)
		}
		s.vms = append(s.vms, v)
		if s.params.CurrentVMName != "" && !s.params.IsDPU {
			break
		}
	}
	return nil
}

// filterVMs keeps the VMs wired to the listed DUT ports. The kept VMs get
// consecutive offsets, as they run on a share of the server's VMs.
func filterVMs(entries map[string]api.VMEntry, dutInterfaces string) (map[string]api.VMEntry, error) {
	indices, err := h.ParseIndexList(dutInterfaces)
	if err != nil {
		return nil, fmt.Errorf("invalid dut_interfaces: %w", err)
	}
	type ordered struct {
		hostname string
		entry    api.VMEntry
	}
	var kept []ordered
	for hostname, entry := range entries {
		if len(entry.Vlans) == 0 {
			continue
		}
		p, err := api.ParseVlanPort(entry.Vlans[0])
		if err != nil {
			return nil, fmt.Errorf("VM %s: %w", hostname, err)
		}
		if indices.Has(p.Vlan) {
			kept = append(kept, ordered{hostname, entry})
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].entry.Offset() != kept[j].entry.Offset() {
			return kept[i].entry.Offset() < kept[j].entry.Offset()
		}
		return kept[i].hostname < kept[j].hostname
	})
	out := make(map[string]api.VMEntry, len(kept))
	for i, k := range kept {
		offset := i
		k.entry.VMOffset = &offset
		out[k.hostname] = k.entry
	}
	return out, nil
}

func (s *VMSet) checkBridges() error {
	if len(s.vms) == 0 || s.links == nil {
		return nil
	}
	names, err := s.links.LinkNames()
	if err != nil {
		return err
	}
	for _, v := range s.vms {
		re, err := regexp.Compile(fmt.Sprintf(h.OVSFPBridgeRegex, regexp.QuoteMeta(v.name)))
		if err != nil {
			return err
		}
		n := 0
		for _, l := range names {
			if re.MatchString(l) {
				n++
			}
		}
		if len(v.vlans) > n {
			return fmt.Errorf("wrong vlans parameter for hostname %s, vm %s. Too many vlans. Maximum is %d", v.hostname, v.name, n)
		}
	}
	return nil
}

func (s *VMSet) resolveHostInterfaces() error {
	var err error
	if s.hostIfs, err = api.ParseHostInterfaces(s.topo.HostInterfaces, s.multiDUT); err != nil {
		return err
	}
	if s.params.DUTInterfaces != "" {
		indices, err := h.ParseIndexList(s.params.DUTInterfaces)
		if err != nil {
			return fmt.Errorf("invalid dut_interfaces: %w", err)
		}
		kept := s.hostIfs[:0]
		for _, hi := range s.hostIfs {
			if len(hi.Ports) > 0 && indices.Has(hi.Ports[0].Port) {
				kept = append(kept, hi)
			}
		}
		s.hostIfs = kept
	}
	if s.disabledHostIfs, err = api.ParseHostInterfaces(s.topo.DisabledHostInterfaces, s.multiDUT); err != nil {
		return fmt.Errorf("disabled host interfaces: %w", err)
	}
	if s.activeActive, err = api.ParseHostInterfaces(s.topo.HostInterfacesActiveActive, s.multiDUT); err != nil {
		return fmt.Errorf("active-active host interfaces: %w", err)
	}
	s.netns = ""
	s.muxCables = map[int]MuxCable{}
	if len(s.activeActive) > 0 {
		s.netns = fmt.Sprintf(h.NetnsNameTemplate, s.name())
		if s.muxCables, err = MuxCables(s.topo, s.hostIfs, s.activeActive); err != nil {
			return err
		}
	}
	return nil
}

// dutType is the first dut_type found in the VM properties.
func (s *VMSet) dutType() string {
	for _, name := range api.SortedKeys(s.props) {
		if t := s.props[name].String("dut_type"); t != "" {
			return t
		}
	}
	return ""
}

// resolveVlanIDs maps the DUT ports of a backend ToR to their vlan ids.
func (s *VMSet) resolveVlanIDs() error {
	if s.topo.DUT == nil {
		return fmt.Errorf("topology has no default vlan config")
	}
	cfg, err := s.topo.DUT.VlanConfigs.DefaultConfig()
	if err != nil {
		return err
	}
	s.vlanIDs = map[int]string{}
	for _, name := range api.SortedKeys(cfg) {
		for _, intf := range cfg[name].Intfs {
			s.vlanIDs[intf] = fmt.Sprint(cfg[name].ID)
		}
	}
	return nil
}

func (s *VMSet) isActiveActive(hi api.HostInterface) bool {
	for _, aa := range s.activeActive {
		if aa.Equal(hi) {
			return true
		}
	}
	return false
}

func (s *VMSet) isDisabled(hi api.HostInterface) bool {
	for _, d := range s.disabledHostIfs {
		if d.Equal(hi) {
			return true
		}
	}
	return false
}

// fpPort returns the front panel interface of port index idx of a DUT.
func (s *VMSet) fpPort(dut, idx int) (string, bool) {
	if dut < 0 || dut >= len(s.params.DUTsName) {
		return "", false
	}
	intf, ok := s.params.DUTsFPPorts[s.params.DUTsName[dut]][fmt.Sprint(idx)]
	return intf, ok
}

func (s *VMSet) mustFPPort(dut, idx int) (string, error) {
	intf, ok := s.fpPort(dut, idx)
	if !ok {
		return "", fmt.Errorf("no front panel port %d on DUT #%d", idx, dut)
	}
	return intf, nil
}

// vmName resolves a VM offset to the name of the VM.
func (s *VMSet) vmName(offset int) (string, error) {
	idx := s.vmBaseIndex + offset
	if idx < 0 || idx >= len(s.params.VMNames) {
		return "", fmt.Errorf("vm offset %d is out of range of vm_names", offset)
	}
	return s.params.VMNames[idx], nil
}
