// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package bgp

import (
	"fmt"
	"math"
	"sort"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/api"
	"github.com/ironcore-dev/vmtopology/internal/validator"
	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

var log = logger.GetLogger("plugins/bgp")

var Plugin = validator.Plugin{
	Name:  "bgp",
	Setup: setup,
}

const dutASNProperty = "dut_asn"

func loadConfig(raw []byte) (*api.BGPCheckConfig, error) {
	config := &api.BGPCheckConfig{MinASN: 1, MaxASN: math.MaxUint32}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	if config.MinASN > config.MaxASN {
		return nil, fmt.Errorf("min_asn %d is greater than max_asn %d", config.MinASN, config.MaxASN)
	}
	return config, nil
}

func setup(raw []byte) (validator.Handler, error) {
	config, err := loadConfig(raw)
	if err != nil {
		return nil, err
	}
	shared := sets.New(config.SharedASNs...)
	log.Debugf("Loaded bgp validator, ASNs %d-%d", config.MinASN, config.MaxASN)
	return func(tb *api.Testbed) ([]string, field.ErrorList) {
		return check(config, shared, tb)
	}, nil
}

func check(config *api.BGPCheckConfig, shared sets.Set[int], tb *api.Testbed) ([]string, field.ErrorList) {
	var (
		warnings []string
		allErrs  field.ErrorList
	)
	owners := map[int]string{}
	cfgPath := field.NewPath("configuration")

	for _, name := range api.SortedKeys(tb.File.Configuration) {
		cfg := tb.File.Configuration[name]
		devPath := cfgPath.Key(name)
		bgpPath := devPath.Child("bgp")
		if cfg.BGP == nil || cfg.BGP.ASN == 0 {
			allErrs = append(allErrs, field.Required(bgpPath.Child("asn"), fmt.Sprintf("%s has no ASN", name)))
			continue
		}
		asn := cfg.BGP.ASN
		asnPath := bgpPath.Child("asn")
		if asn < config.MinASN || asn > config.MaxASN {
			allErrs = append(allErrs, field.Invalid(asnPath, asn,
				fmt.Sprintf("must be between %d and %d", config.MinASN, config.MaxASN)))
		}
		if first, ok := owners[asn]; ok && !shared.Has(asn) {
			allErrs = append(allErrs, field.Invalid(asnPath, asn, fmt.Sprintf("already used by %s", first)))
		} else if !ok {
			owners[asn] = name
		}

		if len(cfg.BGP.Peers) == 0 {
			warnings = append(warnings, fmt.Sprintf("%s has no BGP peers", name))
		} else if config.RequireDUTPeer {
			allErrs = append(allErrs, checkDUTPeers(tb.File, name, cfg.BGP, devPath)...)
		}

		if cfg.VIPs != nil {
			for _, vip := range []struct {
				family string
				set    *api.VIPSet
			}{{"ipv4", cfg.VIPs.IPv4}, {"ipv6", cfg.VIPs.IPv6}} {
				if vip.set != nil && vip.set.ASN == asn {
					allErrs = append(allErrs, field.Invalid(devPath.Child("vips", vip.family, "asn"), vip.set.ASN,
						"must differ from the device ASN"))
				}
			}
		}
	}
	return warnings, allErrs
}

// checkDUTPeers requires every peer ASN to be the DUT ASN of the device's
// merged properties.
func checkDUTPeers(f *api.TopologyFile, name string, bgp *api.DeviceBGP, devPath *field.Path) field.ErrorList {
	dutASN, ok := f.DeviceProperties(name).Int(dutASNProperty)
	if !ok {
		return field.ErrorList{field.Required(devPath.Child("properties"), dutASNProperty+" is not set by any template")}
	}
	peers := make([]int, 0, len(bgp.Peers))
	for asn := range bgp.Peers {
		peers = append(peers, asn)
	}
	sort.Ints(peers)

	var allErrs field.ErrorList
	for _, asn := range peers {
		if asn != dutASN {
			allErrs = append(allErrs, field.Invalid(devPath.Child("bgp", "peers").Key(fmt.Sprint(asn)), asn,
				fmt.Sprintf("peer ASN must be the %s %d", dutASNProperty, dutASN)))
		}
	}
	return allErrs
}
