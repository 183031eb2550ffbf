// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import "fmt"

// State of a session. Each session passes through its states in order and never returns to an earlier one.
type State int

const (
	// Idle sessions were created but not started yet.
	Idle State = iota

	// Starting sessions resolve their addresses and create their QUIC endpoint.
	Starting

	// Listening servers accept clients.
	Listening

	// Connected clients have an established connection to their server.
	Connected

	// Stopping sessions close their connections.
	Stopping

	// Stopped sessions are finished, either after Stop or a failed Start.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Connected:
		return "connected"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown state %d", int(s))
	}
}
