// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery announces chat rooms through UDP multicast and looks them up.
//
// A server periodically multicasts an Announcement of its room code and port. A client knowing only the room code
// listens for such an Announcement to learn the server's address, which also works across subnets the room code's
// host octet cannot express. The room code stays the shared secret of the rendezvous.
package discovery

import "time"

const (
	// address4 is the default multicast IPv4 address used for discovery.
	address4 = "224.23.23.23"

	// address6 is the default multicast IPv6 address used for discovery.
	address6 = "ff02::23"

	// port is the default multicast UDP port used for discovery.
	port = 35040

	// DefaultInterval between two announcements.
	DefaultInterval = 2 * time.Second
)
