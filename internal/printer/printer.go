// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	h "github.com/ironcore-dev/vmtopology/internal/helper"
	"github.com/ironcore-dev/vmtopology/internal/validator"
	"github.com/sirupsen/logrus"
)

type Format string

var (
	Text Format = "text"
	JSON Format = "json"
)

// ParseFormat accepts "text" and "json".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case Text:
		return Text, nil
	case JSON:
		return JSON, nil
	}
	return "", fmt.Errorf("unknown output format %q, expected text or json", s)
}

type commandTrace struct {
	Cmd     string   `json:"cmd"`
	Attempt int      `json:"attempt"`
	RetCode int      `json:"ret_code"`
	Stdout  []string `json:"stdout"`
	Stderr  []string `json:"stderr"`
}

// VerboseCommand logs one command attempt at debug level.
func VerboseCommand(log *logrus.Entry, args []string, attempt, retCode int, stdout, stderr string) {
	if !log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	log.Debugf("*** CMD: %s, attempt: %d", strings.Join(args, " "), attempt)
	log.Debugf("*** OUTPUT:\n%s", h.PrettyFormat(commandTrace{
		Cmd:     strings.Join(args, " "),
		Attempt: attempt,
		RetCode: retCode,
		Stdout:  splitLines(stdout),
		Stderr:  splitLines(stderr),
	}, log))
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

// Report writes a validation report.
func Report(w io.Writer, r *validator.Report, format Format) error {
	if format == JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	var b strings.Builder
	for _, res := range r.Results {
		status := "PASS"
		if len(res.Errors) > 0 {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s\n", status, res.Validator)
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "  error: %s\n", e)
		}
		for _, warn := range res.Warnings {
			fmt.Fprintf(&b, "  warning: %s\n", warn)
		}
	}
	verdict := "valid"
	if !r.Valid {
		verdict = "invalid"
	}
	fmt.Fprintf(&b, "testbed is %s: %s\n", verdict, r.Summary)
	_, err := io.WriteString(w, b.String())
	return err
}

// Plugins writes the registered validator names, one per line.
func Plugins(w io.Writer, names []string) error {
	for _, n := range names {
		if _, err := fmt.Fprintln(w, n); err != nil {
			return err
		}
	}
	return nil
}
