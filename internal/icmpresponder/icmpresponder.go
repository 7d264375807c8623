// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package icmpresponder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/api"
	"github.com/ironcore-dev/vmtopology/internal/shell"
)

var log = logger.GetLogger("icmpresponder")

const (
	Program  = "icmp_responder"
	PipePath = "/tmp/icmp_responder.pipe"

	StateRunning = "RUNNING"
	StateStopped = "STOPPED"
)

// Controller drives the icmp_responder program of a PTF container through
// supervisorctl.
type Controller struct {
	runner    shell.Runner
	container string
	// muxPorts maps the DUT ports of the mux cables to their PTF index
	muxPorts map[string]int
}

func New(runner shell.Runner, container string, muxPorts map[string]int) *Controller {
	return &Controller{runner: runner, container: container, muxPorts: muxPorts}
}

// exec runs a command in the container. Like supervisorctl itself, a non-zero
// exit status is not an error, the output tells the state.
func (c *Controller) exec(ctx context.Context, args ...string) (string, error) {
	cmd := shell.Cmd(append([]string{"docker", "exec", c.container}, args...)...)
	cmd.IgnoreErrors = true
	return c.runner.Run(ctx, cmd)
}

// Status returns the supervisorctl status line of icmp_responder.
func (c *Controller) Status(ctx context.Context) (string, error) {
	return c.exec(ctx, "supervisorctl", "status", Program)
}

// Pause makes icmp_responder stop answering on the PTF ports of the given
// mux ports until it is restarted.
func (c *Controller) Pause(ctx context.Context, ports []string) error {
	if len(ports) == 0 {
		return nil
	}
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(status, StateRunning) {
		return fmt.Errorf("%s not running in %s", Program, c.container)
	}
	paused := make(map[string]bool, len(ports))
	for _, p := range ports {
		idx, ok := c.muxPorts[p]
		if !ok {
			return fmt.Errorf("port %s is not configured as mux port", p)
		}
		paused[fmt.Sprintf("eth%d", idx)] = true
	}
	msg, err := json.Marshal(paused)
	if err != nil {
		return err
	}
	log.Infof("Pausing %s on %v", Program, ports)
	_, err = c.exec(ctx, "sh", "-c", fmt.Sprintf("echo '%s' > %s", msg, PipePath))
	return err
}

// Restart restarts icmp_responder, which resumes all paused ports.
func (c *Controller) Restart(ctx context.Context) error {
	_, err := c.exec(ctx, "supervisorctl", "restart", Program)
	return err
}

// Session runs fn with a pause function and restarts icmp_responder when fn
// returns.
func (c *Controller) Session(ctx context.Context, fn func(pause func(ports []string) error) error) error {
	defer func() {
		// the caller's context may be done by now
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		if err := c.Restart(rctx); err != nil {
			log.Errorf("Failed to restart %s: %v", Program, err)
		}
	}()
	return fn(func(ports []string) error {
		return c.Pause(ctx, ports)
	})
}

func (c *Controller) Stop(ctx context.Context) error {
	return c.setState(ctx, "stop", StateStopped)
}

func (c *Controller) Start(ctx context.Context) error {
	return c.setState(ctx, "start", StateRunning)
}

func (c *Controller) setState(ctx context.Context, command, state string) error {
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(status, state) {
		return fmt.Errorf("%s is already in %s state", Program, state)
	}
	if _, err := c.exec(ctx, "supervisorctl", command, Program); err != nil {
		return err
	}
	if status, err = c.Status(ctx); err != nil {
		return err
	}
	if !strings.Contains(status, state) {
		return fmt.Errorf("could not set %s to %s state", Program, state)
	}
	log.Infof("%s is %s", Program, state)
	return nil
}

// MuxPorts maps the DUT ports of the dual-ToR host interfaces to their PTF
// interface index.
func MuxPorts(params *api.VMSetParams, topo *api.Topology) (map[string]int, error) {
	hostIfs, err := api.ParseHostInterfaces(topo.HostInterfaces, params.IsMultiDUT())
	if err != nil {
		return nil, err
	}
	ports := map[string]int{}
	for i, hi := range hostIfs {
		if !hi.IsDual() {
			continue
		}
		for _, t := range hi.Ports {
			if t.DUT >= len(params.DUTsName) {
				return nil, fmt.Errorf("host interface #%d: no DUT #%d in duts_name", i, t.DUT)
			}
			name, ok := params.DUTsFPPorts[params.DUTsName[t.DUT]][fmt.Sprint(t.Port)]
			if !ok {
				return nil, fmt.Errorf("host interface #%d: no front panel port %d on %s", i, t.Port, params.DUTsName[t.DUT])
			}
			ports[name] = hi.Index(i)
		}
	}
	return ports, nil
}
