// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

type VLANCheckConfig struct {
	MinVlanID    int   `yaml:"min_vlan_id"`
	MaxVlanID    int   `yaml:"max_vlan_id"`
	DenyList     []int `yaml:"deny_list"`
	MaxPortIndex int   `yaml:"max_port_index"`
}
