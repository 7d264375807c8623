// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"strconv"
)

const (
	BackEndToRType  = "BackEndToRRouter"
	BackEndLeafType = "BackEndLeafRouter"
)

// Properties is a free-form property template, e.g. dut_asn or swrole.
type Properties map[string]interface{}

// String returns the property as a string, or "" when it is unset.
func (p Properties) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the property as an integer.
func (p Properties) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// DeviceConfig is the configuration of one neighbor device.
type DeviceConfig struct {
	Properties  []string                   `yaml:"properties,omitempty"`
	BGP         *DeviceBGP                 `yaml:"bgp,omitempty"`
	Interfaces  map[string]InterfaceConfig `yaml:"interfaces,omitempty"`
	BPInterface *InterfaceConfig           `yaml:"bp_interface,omitempty"`
	VIPs        *VIPs                      `yaml:"vips,omitempty"`
}

// DeviceBGP holds the device ASN and its peers, keyed by peer ASN.
type DeviceBGP struct {
	ASN   int              `yaml:"asn"`
	Peers map[int][]string `yaml:"peers,omitempty"`
}

type InterfaceConfig struct {
	IPv4 string `yaml:"ipv4,omitempty"`
	IPv6 string `yaml:"ipv6,omitempty"`
	LACP int    `yaml:"lacp,omitempty"`
	Vlan int    `yaml:"vlan,omitempty"`
}

type VIPs struct {
	IPv4 *VIPSet `yaml:"ipv4,omitempty"`
	IPv6 *VIPSet `yaml:"ipv6,omitempty"`
}

type VIPSet struct {
	Prefixes []string `yaml:"prefixes"`
	ASN      int      `yaml:"asn"`
}

// DeviceProperties merges the property templates referenced by a device in
// order. Later templates override earlier ones.
func (f *TopologyFile) DeviceProperties(device string) Properties {
	merged := Properties{}
	cfg, ok := f.Configuration[device]
	if !ok {
		return merged
	}
	for _, name := range cfg.Properties {
		for k, v := range f.ConfigurationProperties[name] {
			merged[k] = v
		}
	}
	return merged
}

// VMProperties returns the merged properties of every configured device.
func (f *TopologyFile) VMProperties() map[string]Properties {
	out := make(map[string]Properties, len(f.Configuration))
	for name := range f.Configuration {
		out[name] = f.DeviceProperties(name)
	}
	return out
}
