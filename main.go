// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/api"
	"github.com/ironcore-dev/vmtopology/internal/docker"
	h "github.com/ironcore-dev/vmtopology/internal/helper"
	"github.com/ironcore-dev/vmtopology/internal/hostlink"
	"github.com/ironcore-dev/vmtopology/internal/icmpresponder"
	"github.com/ironcore-dev/vmtopology/internal/metrics"
	"github.com/ironcore-dev/vmtopology/internal/printer"
	"github.com/ironcore-dev/vmtopology/internal/shell"
	"github.com/ironcore-dev/vmtopology/internal/validator"
	"github.com/ironcore-dev/vmtopology/internal/vmset"
	"github.com/ironcore-dev/vmtopology/internal/worker"
	"github.com/ironcore-dev/vmtopology/plugins/bgp"
	"github.com/ironcore-dev/vmtopology/plugins/deviceinfo"
	"github.com/ironcore-dev/vmtopology/plugins/ipaddress"
	"github.com/ironcore-dev/vmtopology/plugins/topology"
	"github.com/ironcore-dev/vmtopology/plugins/vlan"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var desiredPlugins = []*validator.Plugin{
	&deviceinfo.Plugin,
	&topology.Plugin,
	&ipaddress.Plugin,
	&vlan.Plugin,
	&bgp.Plugin,
}

var (
	log = logger.GetLogger("main")

	errInvalidTestbed = errors.New("testbed is invalid")
)

func main() {
	// register plugins
	for _, plugin := range desiredPlugins {
		if err := validator.RegisterPlugin(plugin); err != nil {
			log.Fatalf("Failed to register validator '%s': %v", plugin.Name, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errInvalidTestbed) {
			log.Errorf("%v", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg *api.Config

	root := &cobra.Command{
		Use:           "vmtopology",
		Short:         "Validate SONiC testbed topologies and wire VM sets to the PTF and DUTs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cfg, err = loadConfig(cmd.Flags()); err != nil {
				return err
			}
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level specified: %w", err)
			}
			log.Logger.SetLevel(level)
			return nil
		},
	}
	addConfigFlags(root.PersistentFlags())

	config := func() *api.Config { return cfg }
	root.AddCommand(
		newValidateCommand(config),
		newListValidatorsCommand(),
		newICMPResponderCommand(config),
	)
	for _, name := range vmset.Commands {
		root.AddCommand(newVMSetCommand(name, config))
	}
	return root
}

// finish records the outcome of a command and writes the metrics file.
func finish(cfg *api.Config, command string, err error) error {
	metrics.ObserveRun(command, err)
	if cfg.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsTextfile); werr != nil {
			log.Warnf("Failed to write metrics to %s: %v", cfg.MetricsTextfile, werr)
		}
	}
	return err
}

func newValidateCommand(config func() *api.Config) *cobra.Command {
	var (
		topoPath, settingsPath, output, vmBase string
		vmNames                                []string
		multiDUT                               bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the enabled validators against a testbed topology",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config()
			format, err := printer.ParseFormat(output)
			if err != nil {
				return err
			}
			err = validate(cmd, topoPath, settingsPath, format, &api.Testbed{
				VMNames:  vmNames,
				VMBase:   vmBase,
				MultiDUT: multiDUT,
			})
			return finish(cfg, cmd.Name(), err)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&topoPath, "topo", "", "topology file")
	flags.StringVar(&settingsPath, "validators", "", "validator settings file")
	flags.StringVarP(&output, "output", "o", string(printer.Text), "output format, text or json")
	flags.StringSliceVar(&vmNames, "vm-names", nil, "VM names of the test server, to resolve VM offsets")
	flags.StringVar(&vmBase, "vm-base", "", "VM the offsets start at")
	flags.BoolVar(&multiDUT, "multi-dut", false, "the topology is a multi DUT topology")
	_ = cmd.MarkFlagRequired("topo")
	_ = cmd.MarkFlagRequired("validators")
	return cmd
}

func validate(cmd *cobra.Command, topoPath, settingsPath string, format printer.Format, tb *api.Testbed) error {
	settings, err := api.LoadValidatorSettings(settingsPath)
	if err != nil {
		return err
	}
	if tb.File, err = api.LoadTopologyFile(topoPath); err != nil {
		return err
	}
	report, err := validator.Run(settings, tb)
	if err != nil {
		return err
	}
	metrics.ObserveReport(report)
	if err := printer.Report(cmd.OutOrStdout(), report, format); err != nil {
		return err
	}
	if !report.Valid {
		return errInvalidTestbed
	}
	return nil
}

func newListValidatorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-validators",
		Short: "List the available validators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printer.Plugins(cmd.OutOrStdout(), validator.Registered())
		},
	}
}

// runner returns the host command runner the config asks for.
func runner(cfg *api.Config) shell.Runner {
	var r shell.Runner = shell.NewExecRunner()
	if cfg.DryRun {
		r = shell.NewDryRunner(os.Stdout)
	}
	return shell.WithObserver(r, metrics.ObserveCommand)
}

func newVMSetCommand(name string, config func() *api.Config) *cobra.Command {
	var paramsPath, topoPath string
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Run %s for a VM set", name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config()
			err := runVMSet(cmd.Context(), cfg, name, paramsPath, topoPath)
			return finish(cfg, name, err)
		},
	}
	cmd.Flags().StringVar(&paramsPath, "params", "", "VM set parameter file")
	cmd.Flags().StringVar(&topoPath, "topo", "", "topology file")
	_ = cmd.MarkFlagRequired("params")
	return cmd
}

func runVMSet(ctx context.Context, cfg *api.Config, command, paramsPath, topoPath string) error {
	params, err := api.LoadVMSetParams(paramsPath)
	if err != nil {
		return err
	}
	var file *api.TopologyFile
	if topoPath != "" {
		if file, err = api.LoadTopologyFile(topoPath); err != nil {
			return err
		}
	}
	if cfg.LogDir != "" {
		logger.WithFile(log, logFileName(cfg.LogDir, command, params.VMSetName))
	}

	if err := docker.InitClient(); err != nil {
		return err
	}
	start := time.Now()
	err = vmset.Run(ctx, command, params, file, vmset.Options{
		BatchMode:    cfg.BatchMode,
		BatchTimeout: cfg.BatchTimeout,
		DryRun:       cfg.DryRun,
		RTTablesPath: cfg.RTTablesPath,
	}, vmset.Deps{
		Runner: runner(cfg),
		PIDs:   docker.Resolver{},
		Links:  hostlink.Netlink{},
		Pool:   worker.New(cfg.UseThreadWorker, cfg.ThreadWorkerCount),
	})
	if err != nil {
		return fmt.Errorf("%s failed: %w", command, err)
	}
	log.Infof("%s of VM set %q done in %s", command, params.VMSetName, time.Since(start).Round(time.Millisecond))
	return nil
}

func newICMPResponderCommand(config func() *api.Config) *cobra.Command {
	var container, paramsPath, topoPath string
	var hold time.Duration

	controller := func() (*icmpresponder.Controller, error) {
		var muxPorts map[string]int
		if paramsPath != "" {
			params, err := api.LoadVMSetParams(paramsPath)
			if err != nil {
				return nil, err
			}
			if container == "" {
				container = fmt.Sprintf(h.PTFNameTemplate, params.VMSetName)
			}
			if topoPath != "" {
				file, err := api.LoadTopologyFile(topoPath)
				if err != nil {
					return nil, err
				}
				if muxPorts, err = icmpresponder.MuxPorts(params, &file.Topology); err != nil {
					return nil, err
				}
			}
		}
		if container == "" {
			return nil, fmt.Errorf("either --container or --params is required")
		}
		return icmpresponder.New(runner(config()), container, muxPorts), nil
	}

	action := func(use, short string, fn func(ctx context.Context, c *icmpresponder.Controller) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				c, err := controller()
				if err == nil {
					err = fn(cmd.Context(), c)
				}
				return finish(config(), "icmp-responder-"+cmd.Name(), err)
			},
		}
	}

	cmd := &cobra.Command{
		Use:   "icmp-responder",
		Short: "Control the icmp_responder program of a PTF container",
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&container, "container", "", "PTF container, defaults to the one of the VM set")
	flags.StringVar(&paramsPath, "params", "", "VM set parameter file")
	flags.StringVar(&topoPath, "topo", "", "topology file, needed to pause mux ports")

	pause := &cobra.Command{
		Use:   "pause PORT...",
		Short: "Stop answering on the PTF ports of the given mux ports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ports []string) error {
			c, err := controller()
			if err == nil {
				err = pauseResponder(cmd.Context(), c, ports, hold)
			}
			return finish(config(), "icmp-responder-pause", err)
		},
	}
	pause.Flags().DurationVar(&hold, "hold", 0, "keep the ports paused this long, then restart icmp_responder")

	cmd.AddCommand(
		pause,
		action("start", "Start icmp_responder", func(ctx context.Context, c *icmpresponder.Controller) error {
			return c.Start(ctx)
		}),
		action("stop", "Stop icmp_responder", func(ctx context.Context, c *icmpresponder.Controller) error {
			return c.Stop(ctx)
		}),
		action("restart", "Restart icmp_responder, which resumes all ports", func(ctx context.Context, c *icmpresponder.Controller) error {
			return c.Restart(ctx)
		}),
	)
	return cmd
}

// pauseResponder pauses the ports. With a hold the ports are resumed by a
// restart once the hold is over or the command is interrupted.
func pauseResponder(ctx context.Context, c *icmpresponder.Controller, ports []string, hold time.Duration) error {
	if hold <= 0 {
		return c.Pause(ctx, ports)
	}
	return c.Session(ctx, func(pause func([]string) error) error {
		if err := pause(ports); err != nil {
			return err
		}
		log.Infof("Holding %v paused for %s", ports, hold)
		select {
		case <-time.After(hold):
		case <-ctx.Done():
		}
		return nil
	})
}
