// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

type BGPCheckConfig struct {
	MinASN         int   `yaml:"min_asn"`
	MaxASN         int   `yaml:"max_asn"`
	SharedASNs     []int `yaml:"shared_asns"`
	RequireDUTPeer bool  `yaml:"require_dut_peer"`
}
