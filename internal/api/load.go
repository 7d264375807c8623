// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

func decodeFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read file")
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}
	return nil
}

// LoadTopologyFile reads a testbed topology file.
func LoadTopologyFile(path string) (*TopologyFile, error) {
	f := &TopologyFile{}
	if err := decodeFile(path, f); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadValidatorSettings reads the validator settings. Validator names must
// be unique.
func LoadValidatorSettings(path string) (*ValidatorSettings, error) {
	s := &ValidatorSettings{}
	if err := decodeFile(path, s); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for i, v := range s.Validators {
		if v.Name == "" {
			return nil, errors.Errorf("validator #%d has no name", i)
		}
		if seen[v.Name] {
			return nil, errors.Errorf("validator %s is listed more than once", v.Name)
		}
		seen[v.Name] = true
	}
	return s, nil
}

// LoadVMSetParams reads the VM set parameters and applies the defaults.
func LoadVMSetParams(path string) (*VMSetParams, error) {
	p := &VMSetParams{}
	if err := decodeFile(path, p); err != nil {
		return nil, err
	}
	p.Defaults()
	return p, nil
}
