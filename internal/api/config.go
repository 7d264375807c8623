// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

import "time"

// Config is the tool configuration. It is read from the --config file and
// the VMTOPOLOGY_* environment, flags take precedence.
type Config struct {
	LogLevel          string        `mapstructure:"loglevel"`
	LogDir            string        `mapstructure:"log_dir"`
	UseThreadWorker   bool          `mapstructure:"use_thread_worker"`
	ThreadWorkerCount int           `mapstructure:"thread_worker_count"`
	BatchMode         bool          `mapstructure:"batch_mode"`
	BatchTimeout      time.Duration `mapstructure:"batch_timeout"`
	DryRun            bool          `mapstructure:"dry_run"`
	MetricsTextfile   string        `mapstructure:"metrics_textfile"`
	RTTablesPath      string        `mapstructure:"rt_tables_path"`
}
