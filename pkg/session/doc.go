// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session runs the two roles of a chat room, a Server and a Client.
//
// Each running session owns one event loop goroutine. Sending, relaying and stopping are submitted to this loop and
// executed in submission order, while network reads happen in the goroutines of the QUIC connections. Start returns
// only after the loop is ready or the startup failed; Stop waits for the loop to exit, bounded by a timeout.
package session

import "errors"

var (
	// ErrTransportUnavailable indicates that the QUIC endpoint could not be created, e.g., due to a bound port, a
	// missing certificate or an unreachable server.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrAlreadyStarted is returned by Start on a session which was started before.
	ErrAlreadyStarted = errors.New("session was already started")

	// ErrNotRunning is returned for requests on a session which is not or no longer running.
	ErrNotRunning = errors.New("session is not running")

	// ErrStopTimeout indicates that the event loop did not finish in time.
	ErrStopTimeout = errors.New("stopping timed out")
)
