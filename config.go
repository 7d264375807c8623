// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ironcore-dev/vmtopology/internal/api"
	"github.com/ironcore-dev/vmtopology/internal/shell"
	"github.com/ironcore-dev/vmtopology/internal/vmset"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "VMTOPOLOGY"

// configFlags maps config keys to their command line flags.
var configFlags = map[string]string{
	"loglevel":            "loglevel",
	"log_dir":             "log-dir",
	"use_thread_worker":   "use-thread-worker",
	"thread_worker_count": "thread-worker-count",
	"batch_mode":          "batch-mode",
	"batch_timeout":       "batch-timeout",
	"dry_run":             "dry-run",
	"metrics_textfile":    "metrics-textfile",
	"rt_tables_path":      "rt-tables-path",
}

func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "tool config file")
	flags.String("loglevel", "info", "log level (debug, info, warning, error, fatal, panic)")
	flags.String("log-dir", "", "also log to a file in this directory")
	flags.Bool("use-thread-worker", false, "run per VM and per port work in parallel")
	flags.Int("thread-worker-count", 0, "number of parallel workers, 0 picks a default")
	flags.Bool("batch-mode", false, "start per VM port bindings as background processes")
	flags.Duration("batch-timeout", shell.DefaultBatchTimeout, "how long to wait for background processes")
	flags.Bool("dry-run", false, "print the host commands instead of running them")
	flags.String("metrics-textfile", "", "write metrics to this file in the textfile collector format")
	flags.String("rt-tables-path", vmset.DefaultRTTablesPath, "routing table names file")
}

// loadConfig reads the tool config. Flags win over the environment, the
// environment wins over the config file.
func loadConfig(flags *pflag.FlagSet) (*api.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, name := range configFlags {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &api.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// logFileName returns the log file of a command run against a VM set.
func logFileName(dir, cmd, vmSetName string) string {
	name := "vmtopology"
	if cmd != "" {
		name += "_" + cmd
	}
	if vmSetName != "" {
		name += "_" + vmSetName
	}
	return filepath.Join(dir, name+".log")
}
