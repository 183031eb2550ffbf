// SPDX-FileCopyrightText: 2022 Markus Sommer
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package internal

import "github.com/quic-go/quic-go"

const (
	// UnknownError is the catchall error code for unexpected failures.
	UnknownError quic.ApplicationErrorCode = 1
	// ApplicationShutdown is sent when a peer leaves the room or the server shuts down.
	ApplicationShutdown quic.ApplicationErrorCode = 5

	// StreamTransmissionError aborts a stream after a failed read or write.
	StreamTransmissionError quic.StreamErrorCode = 2
)

// IsShutdown checks if an application error code signals an orderly shutdown.
func IsShutdown(code quic.ApplicationErrorCode) bool {
	return code == ApplicationShutdown || code == 0
}
