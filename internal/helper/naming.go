// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package helper

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxIntfLen is the kernel limit for interface names.
const MaxIntfLen = 15

const (
	MgmtPortName = "mgmt"
	BPPortName   = "backplane"

	OVSFPBridgeRegex        = "br-%s-[0-9]+"
	OVSFPBridgeTemplate     = "br-%s-%d"
	OVSFPTapTemplate        = "%s-t%d"
	OVSBPTapTemplate        = "%s-back"
	InjectedIfTemplate      = "inje-%s-%d"
	MuxyIfTemplate          = "muxy-%s-%d"
	ActiveActiveIfTemplate  = "iaa-%s-%d"
	ServerNICIfTemplate     = "nic-%s-%d"
	MuxyBridgeTemplate      = "mbr-%s-%d"
	ActiveActiveBrTemplate  = "baa-%s-%d"
	NetnsNameTemplate       = "ns-%s"
	NetnsIfTemplate         = "eth%d"
	PTFNameTemplate         = "ptf_%s"
	PTFMgmtIfTemplate       = "ptf-%s-m"
	NetnsMgmtIfTemplate     = "ns-%s-m"
	PTFBPIfTemplate         = "ptf-%s-b"
	RootBackBridgeTemplate  = "br-b-%s"
	PTFFPIfTemplate         = "eth%d"
	InterconnectBrTemplate  = "bic-%s-%s"
	VSChassisInbandTemplate = "br-%s-inb"
	VSChassisMidTemplate    = "br-%s-mid"

	SubInterfaceSeparator = "."
	SubInterfaceVlanID    = "10"
)

const (
	tempSuffix = "_t"
	hashLen    = 6
)

// AdaptiveName renders an interface or bridge name from a template such as
// "inje-%s-%d". The leading token is shortened so that the name fits into
// MaxIntfLen, e.g. inje-vms7-6-21, inj-vms21-1-121, in-vms121-1-121.
// When the host and index alone exceed MaxIntfLen, the overflow is cut from
// the end of the leading token instead, so inje-%s-%d for a 14 character host
// and port 1 gives in-<host>-1. The result is then longer than MaxIntfLen.
func AdaptiveName(template, host string, index int) string {
	hostIndex := fmt.Sprintf("-%s-%d", host, index)
	leading, _, _ := strings.Cut(template, "-")
	n := MaxIntfLen - len(hostIndex)
	if n < 0 {
		n += len(leading)
	}
	leading = leading[:max(0, min(n, len(leading)))]
	return leading + hostIndex
}

// AdaptiveTemporaryInterface returns the temporary host side name used for
// an interface before it is moved into the PTF container. reserved is the
// room kept for a vlan sub-interface suffix.
func AdaptiveTemporaryInterface(vmSetName, intf string, reserved int) (string, error) {
	maxLen := MaxIntfLen - reserved
	if maxLen < hashLen+len(tempSuffix) {
		return "", fmt.Errorf("requested length is too short to get temporary interface name")
	}
	ptfName := fmt.Sprintf(PTFNameTemplate, vmSetName)
	if len(intf) <= maxLen-len(tempSuffix)-hashLen {
		return Fingerprint(ptfName, hashLen) + intf + tempSuffix, nil
	}
	return Fingerprint(ptfName+intf, hashLen) + tempSuffix, nil
}

// Fingerprint returns the first digits of the md5 hex digest of name.
func Fingerprint(name string, digits int) string {
	sum := md5.Sum([]byte(name))
	h := hex.EncodeToString(sum[:])
	if digits < 0 {
		digits = 0
	}
	if digits > len(h) {
		digits = len(h)
	}
	return h[:digits]
}

// TempPeerName is the unique temporary name of the container side of a
// veth pair while it still lives on the host.
func TempPeerName(intIf, extIf string) string {
	return intIf + Fingerprint(extIf, MaxIntfLen-len(intIf))
}
