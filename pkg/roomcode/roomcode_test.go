// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package roomcode

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"1234", true},
		{"0000", true},
		{"0427", true},
		{" 2559\n", true},
		{"2560", false},
		{"9999", false},
		{"123", false},
		{"12345", false},
		{"12a4", false},
		{"", false},
		{"-123", false},
	}

	for _, test := range tests {
		code, err := Parse(test.in)
		if test.valid && err != nil {
			t.Fatalf("Parsing %q errored: %v", test.in, err)
		} else if !test.valid && !errors.Is(err, ErrInvalidRoomCode) {
			t.Fatalf("Parsing %q should fail with ErrInvalidRoomCode, got %v (%q)", test.in, err, code)
		} else if test.valid && string(code) != strings.TrimSpace(test.in) {
			t.Fatalf("Parsing %q resulted in %q", test.in, code)
		}
	}
}

func TestDeriveServerCode(t *testing.T) {
	rnd := rand.New(rand.NewPCG(23, 42))

	tests := []struct {
		addr   string
		prefix string
	}{
		{"192.168.1.42", "042"},
		{"10.0.0.7", "007"},
		{"192.168.178.255", "255"},
		{"172.16.3.100", "100"},
		{"10.1.1.0", "000"},
	}

	for _, test := range tests {
		code, err := DeriveServerCode(test.addr, rnd)
		if err != nil {
			t.Fatalf("Deriving code for %s errored: %v", test.addr, err)
		}

		if len(code) != Length {
			t.Fatalf("Code %q for %s has length %d", code, test.addr, len(code))
		} else if !strings.HasPrefix(string(code), test.prefix) {
			t.Fatalf("Code %q for %s does not start with %s", code, test.addr, test.prefix)
		} else if _, err := Parse(string(code)); err != nil {
			t.Fatalf("Derived code %q does not parse: %v", code, err)
		}
	}
}

func TestDeriveServerCodeAddressUnavailable(t *testing.T) {
	for _, addr := range []string{"", "localhost", "fe80::1", "192.168.1", "300.1.1.1"} {
		if code, err := DeriveServerCode(addr, nil); !errors.Is(err, ErrAddressUnavailable) {
			t.Fatalf("Deriving from %q should fail with ErrAddressUnavailable, got %v (%q)", addr, err, code)
		}
	}
}

func TestPort(t *testing.T) {
	tests := map[Code]int{
		"1234": 11234,
		"0000": 10000,
		"0427": 10427,
		"2559": 12559,
	}

	for code, port := range tests {
		if p := code.Port(); p != port {
			t.Fatalf("Port of %q is %d, expected %d", code, p, port)
		}
	}
}

func TestHostOctet(t *testing.T) {
	tests := map[Code]string{
		"1234": "123",
		"0427": "42",
		"0070": "7",
		"0005": "0",
		"0000": "0",
		"1000": "100",
	}

	for code, octet := range tests {
		if o := code.HostOctet(); o != octet {
			t.Fatalf("Host octet of %q is %q, expected %q", code, o, octet)
		}
	}
}

func TestClientTarget(t *testing.T) {
	tests := []struct {
		addr   string
		code   Code
		target Target
	}{
		{"192.168.1.7", "0427", Target{"192.168.1.42", 10427}},
		{"10.0.0.3", "1234", Target{"10.0.0.123", 11234}},
		{"127.0.0.1", "0011", Target{"127.0.0.1", 10011}},
		{"192.168.178.20", "0009", Target{"192.168.178.0", 10009}},
	}

	for _, test := range tests {
		target, err := ClientTarget(test.addr, test.code)
		if err != nil {
			t.Fatalf("Target for %s/%s errored: %v", test.addr, test.code, err)
		} else if target != test.target {
			t.Fatalf("Target for %s/%s is %v, expected %v", test.addr, test.code, target, test.target)
		}
	}

	if _, err := ClientTarget("192.168.1.7", "12"); !errors.Is(err, ErrInvalidRoomCode) {
		t.Fatalf("Expected ErrInvalidRoomCode, got %v", err)
	}
	if _, err := ClientTarget("", "1234"); !errors.Is(err, ErrAddressUnavailable) {
		t.Fatalf("Expected ErrAddressUnavailable, got %v", err)
	}
}

// TestServerClientAgreement checks every valid code: both sides must agree on the port, the port must start with a
// "1" and the client's host must keep its own /24 prefix.
func TestServerClientAgreement(t *testing.T) {
	for _, addr := range []string{"192.168.1.7", "10.20.30.40", "172.31.0.1"} {
		prefix, err := SubnetPrefix(addr)
		if err != nil {
			t.Fatal(err)
		}

		for n := 0; n <= 2559; n++ {
			code, err := Parse(fmt.Sprintf("%04d", n))
			if err != nil {
				t.Fatalf("Parsing %04d errored: %v", n, err)
			}

			target, err := ClientTarget(addr, code)
			if err != nil {
				t.Fatalf("Target for %s/%s errored: %v", addr, code, err)
			}

			if target.Port != ServerPort(code) {
				t.Fatalf("Client port %d differs from server port %d for %s", target.Port, ServerPort(code), code)
			} else if p := fmt.Sprint(target.Port); len(p) != 5 || p[0] != '1' {
				t.Fatalf("Port %s for %s is not a five digit port starting with 1", p, code)
			} else if !strings.HasPrefix(target.Host, prefix+".") {
				t.Fatalf("Host %s for %s does not start with %s", target.Host, code, prefix)
			}
		}
	}
}

func TestTargetString(t *testing.T) {
	if s := (Target{"192.168.1.42", 10427}).String(); s != "192.168.1.42:10427" {
		t.Fatalf("Unexpected target string %q", s)
	}
}
