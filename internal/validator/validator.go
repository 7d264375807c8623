// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package validator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/api"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

var log = logger.GetLogger("validator")

// Handler checks a testbed. It returns warnings and errors, it never
// modifies the testbed.
type Handler func(tb *api.Testbed) (warnings []string, errs field.ErrorList)

// SetupFunc decodes the validator config and returns its handler.
type SetupFunc func(config []byte) (Handler, error)

// Plugin is a named validator.
type Plugin struct {
	Name  string
	Setup SetupFunc
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Plugin{}
)

// RegisterPlugin makes a validator available to Run.
func RegisterPlugin(p *Plugin) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if p == nil || p.Name == "" {
		return fmt.Errorf("cannot register a validator without a name")
	}
	if p.Setup == nil {
		return fmt.Errorf("validator %s has no setup function", p.Name)
	}
	if _, ok := registry[p.Name]; ok {
		return fmt.Errorf("validator %s is already registered", p.Name)
	}
	log.Debugf("Registering validator %s", p.Name)
	registry[p.Name] = p
	return nil
}

// Registered returns the names of all registered validators, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (*Plugin, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// Run sets up every enabled validator in settings order and runs it against
// the testbed. Unknown validators and broken configs fail the whole run
// before any check is made.
func Run(settings *api.ValidatorSettings, tb *api.Testbed) (*Report, error) {
	type step struct {
		name    string
		handler Handler
	}
	var steps []step
	for _, entry := range settings.Validators {
		p, ok := lookup(entry.Name)
		if !ok {
			return nil, fmt.Errorf("unknown validator %s", entry.Name)
		}
		if !entry.Enabled {
			log.Debugf("Validator %s is disabled", entry.Name)
			continue
		}
		var raw []byte
		if len(entry.Config) > 0 {
			var err error
			if raw, err = yaml.Marshal(entry.Config); err != nil {
				return nil, fmt.Errorf("failed to encode config of validator %s: %w", entry.Name, err)
			}
		}
		h, err := p.Setup(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to set up validator %s: %w", entry.Name, err)
		}
		steps = append(steps, step{name: entry.Name, handler: h})
	}

	report := &Report{Valid: true, Results: []Result{}}
	for _, s := range steps {
		warnings, errs := s.handler(tb)
		res := Result{Validator: s.name, Warnings: warnings}
		for _, e := range errs {
			res.Errors = append(res.Errors, e.Error())
		}
		log.Infof("Validator %s: %d errors, %d warnings", s.name, len(res.Errors), len(res.Warnings))
		report.add(res)
	}
	return report, nil
}
