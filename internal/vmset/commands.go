// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vmset

import (
	"context"
	"fmt"

	"github.com/ironcore-dev/vmtopology/internal/api"
	h "github.com/ironcore-dev/vmtopology/internal/helper"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

const (
	CmdCreate           = "create"
	CmdDestroy          = "destroy"
	CmdBind             = "bind"
	CmdUnbind           = "unbind"
	CmdRenumber         = "renumber"
	CmdConnectVMs       = "connect-vms"
	CmdDisconnectVMs    = "disconnect-vms"
	CmdBindKeysightAPIs = "bind-keysight-api-server-ip"

	apiServerContainer = "apiserver"
)

// Commands lists the commands Run accepts.
var Commands = []string{
	CmdCreate, CmdDestroy, CmdBind, CmdUnbind, CmdRenumber,
	CmdConnectVMs, CmdDisconnectVMs, CmdBindKeysightAPIs,
}

var (
	bindParams = []string{
		"vm_set_name", "ptf_mgmt_ip_addr", "ptf_mgmt_ipv6_addr", "ptf_mgmt_ip_gw", "ptf_mgmt_ipv6_gw",
		"ptf_extra_mgmt_ip_addr", "ptf_bp_ip_addr", "ptf_bp_ipv6_addr", "mgmt_bridge", "duts_fp_ports",
	}
	unbindParams   = []string{"vm_set_name", "duts_fp_ports"}
	keysightParams = []string{
		"ptf_mgmt_ip_addr", "ptf_mgmt_ipv6_addr", "ptf_mgmt_ip_gw", "ptf_mgmt_ipv6_gw",
		"ptf_extra_mgmt_ip_addr", "mgmt_bridge",
	}
)

// layout is what a checked topology contains.
type layout struct {
	hostIfs      bool
	vms          bool
	interconnect bool
}

// Run executes a VM set command.
func Run(ctx context.Context, command string, params *api.VMSetParams, file *api.TopologyFile, opts Options, deps Deps) error {
	log.Infof("Running %s for VM set %q", command, params.VMSetName)
	switch command {
	case CmdCreate, CmdDestroy:
		return New(params, file, opts, deps).fpBridges(ctx, command == CmdCreate)
	case CmdBindKeysightAPIs:
		return bindKeysight(ctx, params, file, opts, deps)
	}

	required := unbindParams
	if command == CmdBind || command == CmdRenumber {
		required = bindParams
	}
	l, err := check(command, params, file, required)
	if err != nil {
		return err
	}
	s := New(params, file, opts, deps)
	if err := s.Init(ctx, command != CmdUnbind); err != nil {
		return err
	}

	switch command {
	case CmdBind:
		return s.bind(ctx, l)
	case CmdUnbind:
		return s.unbind(ctx, l)
	case CmdRenumber:
		return s.renumber(ctx, l)
	case CmdConnectVMs, CmdDisconnectVMs:
		if !l.vms {
			return nil
		}
		return s.bindFPPorts(ctx, command == CmdDisconnectVMs)
	}
	return fmt.Errorf("unknown command %s", command)
}

// check validates the inputs of the commands that work on a topology.
func check(command string, params *api.VMSetParams, file *api.TopologyFile, required []string) (layout, error) {
	switch command {
	case CmdBind, CmdUnbind, CmdRenumber, CmdConnectVMs, CmdDisconnectVMs:
	default:
		return layout{}, fmt.Errorf("unknown command %s", command)
	}
	if err := params.Require(command, required...); err != nil {
		return layout{}, err
	}
	if file == nil {
		return layout{}, fmt.Errorf("parameter topo is required in %s mode", command)
	}
	if err := api.ValidateVMSetName(params.VMSetName); err != nil {
		return layout{}, err
	}

	var l layout
	var errs field.ErrorList
	multiDUT := params.IsMultiDUT()
	topoPath := field.NewPath("topology")
	l.hostIfs, l.vms, errs = api.ValidateTopology(&file.Topology, multiDUT, topoPath)
	if command != CmdConnectVMs && command != CmdDisconnectVMs {
		var icErrs field.ErrorList
		l.interconnect, icErrs = api.ValidateDevicesInterconnect(&file.Topology, multiDUT, topoPath)
		errs = append(errs, icErrs...)
	}
	if err := errs.ToAggregate(); err != nil {
		return layout{}, err
	}
	if l.vms {
		if err := params.Require(command, "vm_base"); err != nil {
			return layout{}, err
		}
	}
	return l, nil
}

// fpBridges creates or deletes the front panel bridges of every VM.
func (s *VMSet) fpBridges(ctx context.Context, create bool) error {
	for _, name := range s.params.VMNames {
		for i := 0; i < s.params.MaxFPNum; i++ {
			br := h.AdaptiveName(h.OVSFPBridgeTemplate, name, i)
			var err error
			if create {
				err = s.ovs.AddBridge(ctx, br, s.params.FPMTU)
			} else {
				err = s.ovs.DeleteBridge(ctx, br)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *VMSet) requirePTF() error {
	if s.pid == 0 {
		return fmt.Errorf("PTF container %s is not running", fmt.Sprintf(h.PTFNameTemplate, s.name()))
	}
	return nil
}

func (s *VMSet) bindMgmtPorts(ctx context.Context) error {
	for _, port := range s.params.DUTsMgmtPort {
		if port == "" {
			continue
		}
		if err := s.bindMgmtPort(ctx, s.params.MgmtBridge, port); err != nil {
			return err
		}
	}
	return nil
}

// bindVMs wires the VMs to the DUT and the PTF.
func (s *VMSet) bindVMs(ctx context.Context) error {
	if err := s.addInjectedPorts(ctx); err != nil {
		return err
	}
	if err := s.bindFPPorts(ctx, false); err != nil {
		return err
	}
	if err := s.bindBackplane(ctx); err != nil {
		return err
	}
	if err := s.addBackplanePort(ctx); err != nil {
		return err
	}
	if s.params.IsVSChassis {
		return s.bindVSChassis(ctx)
	}
	return nil
}

// bindServers wires the netns, the host ports and the devices interconnect.
func (s *VMSet) bindServers(ctx context.Context, l layout) error {
	if s.netns != "" {
		if err := s.setupNetns(ctx); err != nil {
			return err
		}
	}
	if l.hostIfs {
		if err := s.addHostPorts(ctx); err != nil {
			return err
		}
	}
	if s.netns != "" {
		if err := s.setupSourceRouting(ctx); err != nil {
			return err
		}
	}
	if l.interconnect {
		return s.bindInterconnect(ctx)
	}
	return nil
}

func (s *VMSet) bind(ctx context.Context, l layout) error {
	if err := s.requirePTF(); err != nil {
		return err
	}
	if err := s.addMgmtPort(ctx, false); err != nil {
		return err
	}
	if err := s.bindMgmtPorts(ctx); err != nil {
		return err
	}
	if l.vms {
		if err := s.bindVMs(ctx); err != nil {
			return err
		}
	}
	return s.bindServers(ctx, l)
}

func (s *VMSet) unbind(ctx context.Context, l layout) error {
	if s.pid == 0 {
		log.Warnf("PTF container %s is not running, its ports are left alone", fmt.Sprintf(h.PTFNameTemplate, s.name()))
	}
	for _, port := range s.params.DUTsMgmtPort {
		if port == "" {
			continue
		}
		if err := s.unbindMgmtPort(ctx, port); err != nil {
			return err
		}
	}
	if l.vms {
		if err := s.unbindBackplane(ctx); err != nil {
			return err
		}
		if err := s.unbindFPPorts(ctx); err != nil {
			return err
		}
		if err := s.removeInjectedPorts(ctx); err != nil {
			return err
		}
		if s.params.IsVSChassis {
			if err := s.unbindVSChassis(ctx); err != nil {
				return err
			}
		}
	}
	if l.hostIfs {
		if err := s.removeHostPorts(ctx); err != nil {
			return err
		}
	}
	if err := s.removeMgmtPort(ctx); err != nil {
		return err
	}
	if err := s.removeBackplanePort(ctx); err != nil {
		return err
	}
	if s.netns != "" {
		if err := s.teardownNetns(ctx); err != nil {
			return err
		}
	}
	if l.interconnect {
		return s.unbindInterconnect(ctx)
	}
	return nil
}

// renumber rewires a VM set after its VMs were restarted.
func (s *VMSet) renumber(ctx context.Context, l layout) error {
	if err := s.requirePTF(); err != nil {
		return err
	}
	if err := s.addMgmtPort(ctx, false); err != nil {
		return err
	}
	if s.netns != "" {
		if err := s.teardownNetns(ctx); err != nil {
			return err
		}
	}
	if l.vms {
		if err := s.unbindFPPorts(ctx); err != nil {
			return err
		}
		if s.params.IsVSChassis {
			if err := s.unbindVSChassis(ctx); err != nil {
				return err
			}
		}
		if err := s.bindVMs(ctx); err != nil {
			return err
		}
	}
	return s.bindServers(ctx, l)
}

// bindKeysight plugs the keysight API server container into the management
// network, replacing its default route.
func bindKeysight(ctx context.Context, params *api.VMSetParams, file *api.TopologyFile, opts Options, deps Deps) error {
	if err := params.Require(CmdBindKeysightAPIs, keysightParams...); err != nil {
		return err
	}
	p := *params
	p.VMNames = nil
	s := New(&p, file, opts, deps)
	if s.pids == nil {
		return fmt.Errorf("no container PID resolver")
	}
	pid, err := s.pids.ContainerPID(ctx, apiServerContainer)
	if err != nil {
		return err
	}
	if pid == 0 {
		return fmt.Errorf("container %s is not running", apiServerContainer)
	}
	s.pid = pid
	return s.addMgmtPort(ctx, true)
}
