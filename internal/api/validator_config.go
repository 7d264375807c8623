// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

// ValidatorSettings lists the validators to run against a testbed.
type ValidatorSettings struct {
	Validators []ValidatorEntry `yaml:"validators"`
}

// ValidatorEntry enables a validator by name. Config is handed to the
// validator unchanged.
type ValidatorEntry struct {
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config,omitempty"`
}
