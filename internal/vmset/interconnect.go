// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vmset

import (
	"context"
	"fmt"

	"github.com/ironcore-dev/vmtopology/internal/api"
	h "github.com/ironcore-dev/vmtopology/internal/helper"
)

// interconnectPorts returns the bridge of an interconnect link and the DUT
// ports of its first and last vlan.
func (s *VMSet) interconnectPorts(key string) (string, string, string, error) {
	vlans := s.interconnect[key]
	if len(vlans) == 0 {
		return "", "", "", fmt.Errorf("devices interconnect %s has no vlans", key)
	}
	first, last := vlans[0], vlans[len(vlans)-1]
	a, err := s.mustFPPort(first.DUT, first.Vlan)
	if err != nil {
		return "", "", "", fmt.Errorf("devices interconnect %s: %w", key, err)
	}
	b, err := s.mustFPPort(last.DUT, last.Vlan)
	if err != nil {
		return "", "", "", fmt.Errorf("devices interconnect %s: %w", key, err)
	}
	return fmt.Sprintf(h.InterconnectBrTemplate, s.name(), key), a, b, nil
}

// bindInterconnect connects the DUT ports of every interconnect link back to
// back on their own OVS bridge.
func (s *VMSet) bindInterconnect(ctx context.Context) error {
	for _, key := range api.SortedKeys(s.interconnect) {
		br, a, b, err := s.interconnectPorts(key)
		if err != nil {
			return err
		}
		if err := s.ovs.AddBridge(ctx, br, s.params.FPMTU); err != nil {
			return err
		}
		if err := s.ovs.CrossConnect(ctx, br, a, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *VMSet) unbindInterconnect(ctx context.Context) error {
	for _, key := range api.SortedKeys(s.interconnect) {
		br, a, b, err := s.interconnectPorts(key)
		if err != nil {
			return err
		}
		for _, p := range []string{a, b} {
			if err := s.ovs.UnbindPort(ctx, br, p); err != nil {
				return err
			}
		}
		if err := s.ovs.DeleteBridge(ctx, br); err != nil {
			return err
		}
	}
	return nil
}
