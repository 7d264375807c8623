// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package netdev

import (
	"context"
	"strings"

	"github.com/ironcore-dev/vmtopology/internal/shell"
)

// Bridges is the state of the Linux bridges on the host.
type Bridges struct {
	Members map[string][]string
	Owner   map[string]string
}

// Has reports whether intf is a member of bridge.
func (b Bridges) Has(bridge, intf string) bool {
	for _, m := range b.Members[bridge] {
		if m == intf {
			return true
		}
	}
	return false
}

// ShowBridges lists the members of one bridge, or of all bridges when bridge
// is empty. A failing brctl yields empty state.
func (c *Client) ShowBridges(ctx context.Context, bridge string) Bridges {
	args := []string{"brctl", "show"}
	if bridge != "" {
		args = append(args, bridge)
	}
	cmd := shell.Cmd(args...)
	cmd.Probe = true
	out, err := c.runner.Run(ctx, cmd)
	if err != nil {
		taskLog(ctx).Errorf("Failed to run %s", cmd)
		return Bridges{Members: map[string][]string{}, Owner: map[string]string{}}
	}
	return parseBrctlShow(out)
}

// parseBrctlShow parses
//
//	bridge name	bridge id		STP enabled	interfaces
//	br-b-vms1	8000.0a1b2c3d4e5f	no		vms1-back
//								ptf-vms1-b
func parseBrctlShow(out string) Bridges {
	b := Bridges{Members: map[string][]string{}, Owner: map[string]string{}}
	rows := strings.Split(out, "\n")
	if len(rows) > 0 {
		rows = rows[1:]
	}
	current := ""
	for _, row := range rows {
		if strings.TrimSpace(row) == "" {
			continue
		}
		terms := strings.Fields(row)
		if row[0] != ' ' && row[0] != '\t' {
			current = terms[0]
			b.Members[current] = []string{}
			if len(terms) > 3 {
				b.Members[current] = append(b.Members[current], terms[3])
				b.Owner[terms[3]] = current
			}
			continue
		}
		if current == "" {
			continue
		}
		b.Members[current] = append(b.Members[current], terms[0])
		b.Owner[terms[0]] = current
	}
	return b
}

// AddBridge creates a Linux bridge.
func (c *Client) AddBridge(ctx context.Context, bridge string) error {
	_, err := c.Run(ctx, Host, "brctl", "addbr", bridge)
	return err
}

// DeleteBridge deletes a Linux bridge, failures are ignored.
func (c *Client) DeleteBridge(ctx context.Context, bridge string) {
	cmd := shell.Cmd("brctl", "delbr", bridge)
	cmd.IgnoreErrors = true
	_, _ = c.runner.Run(ctx, cmd)
}

// AddToBridge adds intf to bridge.
func (c *Client) AddToBridge(ctx context.Context, bridge, intf string) error {
	_, err := c.Run(ctx, Host, "brctl", "addif", bridge, intf)
	return err
}

// RemoveFromBridge removes intf from bridge.
func (c *Client) RemoveFromBridge(ctx context.Context, bridge, intf string) error {
	_, err := c.Run(ctx, Host, "brctl", "delif", bridge, intf)
	return err
}
