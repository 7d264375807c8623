// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package hostlink

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// Lister lists the network interfaces of the host namespace.
type Lister interface {
	LinkNames() ([]string, error)
}

// Netlink lists links over rtnetlink.
type Netlink struct{}

func (Netlink) LinkNames() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Attrs().Name)
	}
	return names, nil
}

// Static is a fixed link list.
type Static []string

func (s Static) LinkNames() ([]string, error) {
	return s, nil
}
