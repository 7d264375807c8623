// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

type IPAddressCheckConfig struct {
	ExcludeDevices    []string `yaml:"exclude_devices"`
	ExcludeInterfaces []string `yaml:"exclude_interfaces"`
	AllowPrefixes     []string `yaml:"allow_prefixes"`
	DenyPrefixes      []string `yaml:"deny_prefixes"`
}
