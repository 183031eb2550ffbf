// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package roomcode derives the rendezvous address of a chat room from a short numeric room code.
//
// A server takes the fourth octet of its local IPv4 address, zero-pads it to three digits and appends one random
// digit. The resulting four digit code is both the port suffix and, without the random digit, the host octet a client
// needs to reach the server within the same /24 subnet. A server on 192.168.1.42 might announce "0427", listening on
// port 10427; a client on 192.168.1.7 entering "0427" connects to 192.168.1.42:10427.
//
// This is a best-effort rendezvous over a local subnet and neither hides nor authenticates anything.
package roomcode

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

const (
	// Length of each room code.
	Length = 4

	// PortBase is added to a code's numeric value to get the listen port, i.e., the port is the code prefixed by "1".
	PortBase = 10000
)

var (
	// ErrAddressUnavailable indicates that no usable local IPv4 address was available.
	ErrAddressUnavailable = errors.New("local address unavailable")

	// ErrInvalidRoomCode indicates a malformed room code, e.g., an user's typo.
	ErrInvalidRoomCode = errors.New("invalid room code")
)

// Code is a four digit room code. Leading zeros are significant.
type Code string

// Parse a user supplied room code. Surrounding whitespace is ignored.
func Parse(s string) (Code, error) {
	s = strings.TrimSpace(s)

	if len(s) != Length {
		return "", fmt.Errorf("%w: %q must have %d digits", ErrInvalidRoomCode, s, Length)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q must only contain digits", ErrInvalidRoomCode, s)
		}
	}

	// The first three digits are an IPv4 octet.
	if octet, _ := strconv.Atoi(s[:Length-1]); octet > 255 {
		return "", fmt.Errorf("%w: %q does not start with an address octet", ErrInvalidRoomCode, s)
	}

	return Code(s), nil
}

// DeriveServerCode creates a new Code for a server reachable at the given local IPv4 address.
// The random digit is drawn from rnd or from the global source if rnd is nil.
func DeriveServerCode(localAddress string, rnd *rand.Rand) (Code, error) {
	addr, err := parseIPv4(localAddress)
	if err != nil {
		return "", err
	}

	var digit int
	if rnd != nil {
		digit = rnd.IntN(10)
	} else {
		digit = rand.IntN(10)
	}

	return Code(fmt.Sprintf("%03d%d", addr.As4()[3], digit)), nil
}

// Port of a server for this Code.
func (c Code) Port() int {
	n, _ := strconv.Atoi(string(c))
	return PortBase + n
}

// HostOctet is the last octet of the server's address, as encoded in this Code.
//
// The three leading digits are stripped of their leading zeros. A code starting with "000" results in "0" rather than
// an empty string, which would otherwise produce an address like "192.168.1.".
func (c Code) HostOctet() string {
	if len(c) < Length {
		return "0"
	}

	octet := strings.TrimLeft(string(c[:Length-1]), "0")
	if octet == "" {
		return "0"
	}
	return octet
}

func (c Code) String() string {
	return string(c)
}

// ServerPort returns the port a server with the given Code listens on.
func ServerPort(c Code) int {
	return c.Port()
}

// Target is a rendezvous address derived from a Code.
type Target struct {
	Host string
	Port int
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ClientTarget computes the server's address for a client at localAddress joining the room identified by code.
// The server is assumed to share the client's /24 subnet.
func ClientTarget(localAddress string, code Code) (Target, error) {
	if _, err := Parse(string(code)); err != nil {
		return Target{}, err
	}

	prefix, err := SubnetPrefix(localAddress)
	if err != nil {
		return Target{}, err
	}

	return Target{
		Host: prefix + "." + code.HostOctet(),
		Port: code.Port(),
	}, nil
}

// SubnetPrefix returns the first three octets of an IPv4 address, e.g., "192.168.1" for "192.168.1.7".
func SubnetPrefix(localAddress string) (string, error) {
	addr, err := parseIPv4(localAddress)
	if err != nil {
		return "", err
	}

	octets := addr.As4()
	return fmt.Sprintf("%d.%d.%d", octets[0], octets[1], octets[2]), nil
}

func parseIPv4(localAddress string) (netip.Addr, error) {
	if localAddress == "" {
		return netip.Addr{}, ErrAddressUnavailable
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(localAddress))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", ErrAddressUnavailable, err)
	} else if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %s is no IPv4 address", ErrAddressUnavailable, localAddress)
	}
	return addr, nil
}
