// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

type TopologyCheckConfig struct {
	MaxFPNum int  `yaml:"max_fp_num"`
	MultiDUT bool `yaml:"multi_dut"`
}
