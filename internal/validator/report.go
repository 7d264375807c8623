// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package validator

import "fmt"

// Result holds the findings of one validator.
type Result struct {
	Validator string   `json:"validator"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
}

// Report is the outcome of a validation run. It is valid when no validator
// reported an error.
type Report struct {
	Valid   bool     `json:"valid"`
	Results []Result `json:"results"`
	Summary Summary  `json:"summary"`
}

type Summary struct {
	Validators int `json:"validators"`
	Errors     int `json:"errors"`
	Warnings   int `json:"warnings"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d validators, %d errors, %d warnings", s.Validators, s.Errors, s.Warnings)
}

func (r *Report) add(res Result) {
	if res.Errors == nil {
		res.Errors = []string{}
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	r.Results = append(r.Results, res)
	r.Summary.Validators++
	r.Summary.Errors += len(res.Errors)
	r.Summary.Warnings += len(res.Warnings)
	r.Valid = r.Summary.Errors == 0
}
