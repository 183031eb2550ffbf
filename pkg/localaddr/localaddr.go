// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package localaddr finds this host's IPv4 address within the local network.
//
// Each Source either returns one address or an error wrapping roomcode.ErrAddressUnavailable. A Source never guesses;
// the room code derived from an unrelated address would lead clients astray.
package localaddr

import (
	"fmt"
	"net"
	"net/netip"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quichat/pkg/roomcode"
)

// Source of a local IPv4 address.
type Source interface {
	LocalAddress() (string, error)
}

// Static is a fixed address, e.g., from the configuration.
type Static string

// LocalAddress returns the static address if it is a valid IPv4 address.
func (s Static) LocalAddress() (string, error) {
	if addr, err := netip.ParseAddr(string(s)); err != nil || !addr.Is4() {
		return "", fmt.Errorf("%w: %q is no IPv4 address", roomcode.ErrAddressUnavailable, string(s))
	}
	return string(s), nil
}

// Interfaces inspects the host's network interfaces and picks the first private IPv4 address of an interface which
// is up, no loopback and no tunnel.
type Interfaces struct{}

// LocalAddress of the first eligible interface.
func (Interfaces) LocalAddress() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("%w: %v", roomcode.ErrAddressUnavailable, err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || isTunnel(iface.Name) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			log.WithFields(log.Fields{
				"interface": iface.Name,
				"error":     err,
			}).Debug("Skipping interface with unreadable addresses")
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}

			if ip, ok := netip.AddrFromSlice(ipNet.IP); ok && ip.Unmap().Is4() && ip.Unmap().IsPrivate() {
				return ip.Unmap().String(), nil
			}
		}
	}

	return "", fmt.Errorf("%w: no interface with a private IPv4 address", roomcode.ErrAddressUnavailable)
}

func isTunnel(name string) bool {
	for _, prefix := range []string{"tun", "tap", "wg", "utun"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// commandPattern matches the addresses typically handed out in home and office networks.
var commandPattern = regexp.MustCompile(`\b(192\.\d{1,3}\.\d{1,3}\.\d{1,3}|10\.\d{1,3}\.\d{1,3}\.\d{1,3})\b`)

// Command runs the platform's address listing tool, "ip addr" or "ipconfig", and extracts an address from its output.
type Command struct{}

// LocalAddress parsed from the command's output.
func (Command) LocalAddress() (string, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("ipconfig")
	case "linux", "darwin":
		cmd = exec.Command("ip", "addr")
	default:
		return "", fmt.Errorf("%w: unsupported operating system %s", roomcode.ErrAddressUnavailable, runtime.GOOS)
	}

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: %s errored: %v", roomcode.ErrAddressUnavailable, cmd.Path, err)
	}

	return ParseCommandOutput(string(out))
}

// ParseCommandOutput returns the first 192.x.x.x or 10.x.x.x address within the given text.
func ParseCommandOutput(output string) (string, error) {
	for _, match := range commandPattern.FindAllString(output, -1) {
		if addr, err := netip.ParseAddr(match); err == nil && addr.Is4() {
			return match, nil
		}
	}

	return "", fmt.Errorf("%w: no 192.x.x.x or 10.x.x.x address found", roomcode.ErrAddressUnavailable)
}

type first []Source

// First returns a Source trying each of the given sources in order until one succeeds.
func First(sources ...Source) Source {
	return first(sources)
}

func (f first) LocalAddress() (string, error) {
	var lastErr error = roomcode.ErrAddressUnavailable

	for _, source := range f {
		addr, err := source.LocalAddress()
		if err == nil {
			log.WithFields(log.Fields{
				"source":  fmt.Sprintf("%T", source),
				"address": addr,
			}).Debug("Found local address")
			return addr, nil
		}

		log.WithFields(log.Fields{
			"source": fmt.Sprintf("%T", source),
			"error":  err,
		}).Debug("Local address source failed")
		lastErr = err
	}

	return "", lastErr
}

// Default tries the network interfaces first and falls back to the platform's command line tool.
func Default() Source {
	return First(Interfaces{}, Command{})
}
