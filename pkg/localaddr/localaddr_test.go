// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package localaddr

import (
	"errors"
	"testing"

	"github.com/dtn7/quichat/pkg/roomcode"
)

const ipAddrOutput = `1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN group default qlen 1000
    link/loopback 00:00:00:00:00:00 brd 00:00:00:00:00:00
    inet 127.0.0.1/8 scope host lo
       valid_lft forever preferred_lft forever
2: wlp2s0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc noqueue state UP group default qlen 1000
    link/ether 3c:a9:f4:12:34:56 brd ff:ff:ff:ff:ff:ff
    inet 192.168.178.23/24 brd 192.168.178.255 scope global dynamic noprefixroute wlp2s0
       valid_lft 863213sec preferred_lft 863213sec
`

const ipconfigOutput = `Windows IP Configuration


Ethernet adapter Ethernet:

   Connection-specific DNS Suffix  . : fritz.box
   IPv4 Address. . . . . . . . . . . : 10.0.23.5
   Subnet Mask . . . . . . . . . . . : 255.255.255.0
   Default Gateway . . . . . . . . . : 10.0.23.1
`

func TestParseCommandOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		addr   string
	}{
		{"ip addr", ipAddrOutput, "192.168.178.23"},
		{"ipconfig", ipconfigOutput, "10.0.23.5"},
		{"invalid octet first", "inet 192.168.1.300/24\ninet 10.1.2.3/8", "10.1.2.3"},
	}

	for _, test := range tests {
		addr, err := ParseCommandOutput(test.output)
		if err != nil {
			t.Fatalf("%s: parsing errored: %v", test.name, err)
		} else if addr != test.addr {
			t.Fatalf("%s: parsed %q, expected %q", test.name, addr, test.addr)
		}
	}
}

func TestParseCommandOutputNoAddress(t *testing.T) {
	out := "inet 127.0.0.1/8 scope host lo\ninet 172.16.0.4/12 scope global eth0\n"
	if addr, err := ParseCommandOutput(out); !errors.Is(err, roomcode.ErrAddressUnavailable) {
		t.Fatalf("Expected ErrAddressUnavailable, got %q and %v", addr, err)
	}
}

func TestStatic(t *testing.T) {
	if addr, err := Static("192.168.1.7").LocalAddress(); err != nil || addr != "192.168.1.7" {
		t.Fatalf("Static returned %q and %v", addr, err)
	}

	for _, s := range []Static{"", "example.com", "::1"} {
		if _, err := s.LocalAddress(); !errors.Is(err, roomcode.ErrAddressUnavailable) {
			t.Fatalf("Static %q should fail with ErrAddressUnavailable, got %v", s, err)
		}
	}
}

type failingSource struct{ calls int }

func (f *failingSource) LocalAddress() (string, error) {
	f.calls++
	return "", roomcode.ErrAddressUnavailable
}

func TestFirst(t *testing.T) {
	failing := &failingSource{}

	if addr, err := First(failing, Static("10.0.0.1"), Static("10.0.0.2")).LocalAddress(); err != nil {
		t.Fatal(err)
	} else if addr != "10.0.0.1" {
		t.Fatalf("First returned %q instead of the first working source", addr)
	} else if failing.calls != 1 {
		t.Fatalf("Failing source was called %d times", failing.calls)
	}

	if _, err := First(failing, Static("nope")).LocalAddress(); !errors.Is(err, roomcode.ErrAddressUnavailable) {
		t.Fatalf("Expected ErrAddressUnavailable, got %v", err)
	}

	if _, err := First().LocalAddress(); !errors.Is(err, roomcode.ErrAddressUnavailable) {
		t.Fatalf("Empty First should fail with ErrAddressUnavailable, got %v", err)
	}
}
