// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package vmset

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	h "github.com/ironcore-dev/vmtopology/internal/helper"
	"github.com/ironcore-dev/vmtopology/internal/shell"
)

const (
	rtSlotStart = 100
	rtSlotMax   = 252
)

func (s *VMSet) addNetns(ctx context.Context) error {
	if err := s.deleteNetns(ctx); err != nil {
		return err
	}
	_, err := s.net.Run(ctx, host, "ip", "netns", "add", s.netns)
	return err
}

func (s *VMSet) deleteNetns(ctx context.Context) error {
	exists := shell.Cmd("test", "-e", "/var/run/netns/"+s.netns)
	exists.Probe = true
	if _, err := s.net.Runner().Run(ctx, exists); err != nil {
		return nil
	}
	_, err := s.net.Run(ctx, host, "ip", "netns", "delete", s.netns)
	return err
}

// setupNetns creates the netns of the active-active SoCs, plugs it into the
// management bridge and brings up its loopback.
func (s *VMSet) setupNetns(ctx context.Context) error {
	if err := s.addNetns(ctx); err != nil {
		return err
	}
	// arp_filter keeps the SoC ports from answering ARP for each other
	if _, err := s.net.Run(ctx, s.ns(), "sysctl", "-w", "net.ipv4.conf.all.arp_filter=1"); err != nil {
		return err
	}
	if s.net.NotExists(ctx, s.ns(), h.MgmtPortName) {
		extIf := fmt.Sprintf(h.NetnsMgmtIfTemplate, s.name())
		if err := s.addBridgePort(ctx, s.params.MgmtBridge, extIf, h.MgmtPortName, s.ns()); err != nil {
			return err
		}
	}
	if err := s.setAddresses(ctx, s.ns(), h.MgmtPortName, addresses{
		ipv4: s.params.NetnsMgmtIPAddr,
		gw:   s.params.PTFMgmtIPGw,
	}); err != nil {
		return err
	}
	_, err := s.net.Run(ctx, s.ns(), "ip", "link", "set", "lo", "up")
	return err
}

func (s *VMSet) teardownNetns(ctx context.Context) error {
	if err := s.unbindMgmtPort(ctx, fmt.Sprintf(h.NetnsMgmtIfTemplate, s.name())); err != nil {
		return err
	}
	return s.deleteNetns(ctx)
}

// readRTTables returns the routing table ids of an rt_tables file.
func readRTTables(path string) (map[int]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing tables: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	tables := map[int]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		tables[id] = fields[1]
	}
	return tables, sc.Err()
}

// setupSourceRouting makes every SoC port of the netns answer out of the
// port a packet came in on. Each port gets its own routing table, named
// after the port and numbered 100 + interface index. Tables are shared by
// all netns on the server, their routes are not.
func (s *VMSet) setupSourceRouting(ctx context.Context) error {
	tables, err := readRTTables(s.opts.RTTablesPath)
	if err != nil {
		return err
	}
	for i, hi := range s.hostIfs {
		if !s.multiDUT || s.cable || !hi.IsDual() || !s.isActiveActive(hi) {
			continue
		}
		idx := hi.Index(i)
		nsIf := fmt.Sprintf(h.NetnsIfTemplate, idx)
		if !s.net.Exists(ctx, s.ns(), nsIf) {
			return fmt.Errorf("interface %s not exists in netns %s", nsIf, s.netns)
		}
		slot := rtSlotStart + idx
		if slot > rtSlotMax {
			return fmt.Errorf("kernel only supports up to %d additional routing tables", rtSlotMax)
		}
		soc := s.muxCables[idx].SoCIPv4
		gw, network, err := gateway(soc)
		if err != nil {
			return fmt.Errorf("invalid SoC address %q of interface %s: %w", soc, nsIf, err)
		}
		socIP, _, _ := strings.Cut(soc, "/")

		if _, ok := tables[slot]; !ok {
			if _, err := s.net.Runner().Run(ctx, shell.Sh(fmt.Sprintf("printf '%d\\t%s\\n' >> %s", slot, nsIf, s.opts.RTTablesPath))); err != nil {
				return err
			}
			tables[slot] = nsIf
		}
		if _, err := s.net.Run(ctx, s.ns(), "ip", "rule", "add", "iif", nsIf, "table", nsIf); err != nil {
			return err
		}
		if _, err := s.net.Run(ctx, s.ns(), "ip", "rule", "add", "from", socIP, "table", nsIf); err != nil {
			return err
		}
		// flushing an empty table fails
		flush := shell.Cmd(s.ns().Wrap("ip", "route", "flush", "table", nsIf)...)
		flush.IgnoreErrors = true
		if _, err := s.net.Runner().Run(ctx, flush); err != nil {
			return err
		}
		if _, err := s.net.Run(ctx, s.ns(), "ip", "route", "add", network, "dev", nsIf, "table", nsIf); err != nil {
			return err
		}
		if _, err := s.net.Run(ctx, s.ns(), "ip", "route", "add", "default", "via", gw, "dev", nsIf, "table", nsIf); err != nil {
			return err
		}
	}
	return nil
}
