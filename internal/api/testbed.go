// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package api

// Testbed is what validators look at: the topology file and, when known,
// the VM names of the test server the topology is deployed to.
type Testbed struct {
	File     *TopologyFile
	VMNames  []string
	VMBase   string
	MultiDUT bool
}

// VMName resolves a topology VM to the name of the VM it runs on.
func (t *Testbed) VMName(entry VMEntry) (string, bool) {
	if t.VMBase == "" {
		return "", false
	}
	for i, name := range t.VMNames {
		if name == t.VMBase {
			idx := i + entry.Offset()
			if idx < 0 || idx >= len(t.VMNames) {
				return "", false
			}
			return t.VMNames[idx], true
		}
	}
	return "", false
}
