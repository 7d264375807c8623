// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package deviceinfo

import (
	"fmt"
	"regexp"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/api"
	"github.com/ironcore-dev/vmtopology/internal/validator"
	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

var log = logger.GetLogger("plugins/deviceinfo")

var Plugin = validator.Plugin{
	Name:  "device_info",
	Setup: setup,
}

var defaultRequiredProperties = []string{"dut_type", "swrole"}

type checker struct {
	namePattern   *regexp.Regexp
	maxNameLength int
	exclude       validator.Patterns
	required      []string
}

func loadConfig(raw []byte) (*api.DeviceInfoCheckConfig, error) {
	config := &api.DeviceInfoCheckConfig{}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	if config.RequiredProperties == nil {
		config.RequiredProperties = defaultRequiredProperties
	}
	if config.MaxNameLength < 0 {
		return nil, fmt.Errorf("max_name_length must not be negative, got %d", config.MaxNameLength)
	}
	return config, nil
}

func setup(raw []byte) (validator.Handler, error) {
	config, err := loadConfig(raw)
	if err != nil {
		return nil, err
	}
	c := &checker{maxNameLength: config.MaxNameLength, required: config.RequiredProperties}
	if config.NamePattern != "" {
		if c.namePattern, err = regexp.Compile(config.NamePattern); err != nil {
			return nil, fmt.Errorf("invalid name_pattern %q: %w", config.NamePattern, err)
		}
	}
	if c.exclude, err = validator.CompilePatterns(config.ExcludePatterns); err != nil {
		return nil, err
	}

	log.Debugf("Loaded device_info validator, %d required properties", len(c.required))
	return c.handle, nil
}

// devices returns every device named by the topology or its configuration.
func devices(f *api.TopologyFile) sets.Set[string] {
	out := sets.New[string]()
	for name := range f.Topology.VMs {
		out.Insert(name)
	}
	for name := range f.Topology.DPUs {
		out.Insert(name)
	}
	for name := range f.Configuration {
		out.Insert(name)
	}
	return out
}

func (c *checker) handle(tb *api.Testbed) ([]string, field.ErrorList) {
	var (
		warnings []string
		allErrs  field.ErrorList
	)
	f := tb.File
	cfgPath := field.NewPath("configuration")
	topoPath := field.NewPath("topology")

	for _, name := range sets.List(devices(f)) {
		if c.exclude.Match(name) {
			warnings = append(warnings, fmt.Sprintf("device %s is excluded", name))
			continue
		}
		devPath := cfgPath.Key(name)

		if c.namePattern != nil && !c.namePattern.MatchString(name) {
			allErrs = append(allErrs, field.Invalid(devPath, name,
				fmt.Sprintf("name does not match %s", c.namePattern.String())))
		}
		if c.maxNameLength > 0 && len(name) > c.maxNameLength {
			allErrs = append(allErrs, field.TooLong(devPath, name, c.maxNameLength))
		}

		cfg, configured := f.Configuration[name]
		_, isVM := f.Topology.VMs[name]
		_, isDPU := f.Topology.DPUs[name]
		switch {
		case !configured:
			allErrs = append(allErrs, field.Required(devPath, fmt.Sprintf("%s has no configuration", name)))
			continue
		case !isVM && !isDPU:
			allErrs = append(allErrs, field.NotFound(topoPath.Child("VMs").Key(name), name))
		}

		missingTemplate := false
		for i, tmpl := range cfg.Properties {
			if _, ok := f.ConfigurationProperties[tmpl]; !ok {
				allErrs = append(allErrs, field.NotFound(devPath.Child("properties").Index(i), tmpl))
				missingTemplate = true
			}
		}
		if missingTemplate {
			continue
		}

		props := f.DeviceProperties(name)
		for _, key := range c.required {
			if props.String(key) == "" {
				allErrs = append(allErrs, field.Required(devPath.Child("properties"),
					fmt.Sprintf("property %s is not set by any template", key)))
			}
		}
	}
	return warnings, allErrs
}
