// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package metrics

import (
	"path/filepath"
	"time"

	"github.com/ironcore-dev/vmtopology/internal/shell"
	"github.com/ironcore-dev/vmtopology/internal/validator"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vmtopology"

var (
	Registry = prometheus.NewRegistry()

	commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Host commands run, by binary and result.",
	}, []string{"binary", "result"})

	commandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "Duration of host commands including retries.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"binary"})

	findingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validation_findings_total",
		Help:      "Validation findings, by validator and severity.",
	}, []string{"validator", "severity"})

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Tool runs, by command and result.",
	}, []string{"command", "result"})
)

func init() {
	Registry.MustRegister(commandsTotal, commandDuration, findingsTotal, runsTotal)
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// ObserveCommand records one host command. It is a shell.ObserveFunc.
func ObserveCommand(cmd shell.Command, took time.Duration, err error) {
	binary := "unknown"
	if len(cmd.Args) > 0 {
		binary = filepath.Base(cmd.Args[0])
	}
	commandsTotal.WithLabelValues(binary, result(err)).Inc()
	commandDuration.WithLabelValues(binary).Observe(took.Seconds())
}

// ObserveReport records the findings of a validation run.
func ObserveReport(r *validator.Report) {
	for _, res := range r.Results {
		findingsTotal.WithLabelValues(res.Validator, "error").Add(float64(len(res.Errors)))
		findingsTotal.WithLabelValues(res.Validator, "warning").Add(float64(len(res.Warnings)))
	}
}

// ObserveRun records the outcome of a tool command.
func ObserveRun(command string, err error) {
	runsTotal.WithLabelValues(command, result(err)).Inc()
}

// WriteTextfile writes all metrics in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
