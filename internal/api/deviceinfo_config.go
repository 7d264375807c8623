// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

type DeviceInfoCheckConfig struct {
	NamePattern        string   `yaml:"name_pattern"`
	MaxNameLength      int      `yaml:"max_name_length"`
	ExcludePatterns    []string `yaml:"exclude_patterns"`
	RequiredProperties []string `yaml:"required_properties"`
}
