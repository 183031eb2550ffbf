// SPDX-FileCopyrightText: 2022 Markus Sommer
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package internal

import (
	"time"

	"github.com/quic-go/quic-go"
)

// GenerateQUICConfig for both listeners and dialers.
func GenerateQUICConfig(keepAlive, idleTimeout, handshakeTimeout time.Duration, maxStreams int64) *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:      keepAlive,
		MaxIdleTimeout:       idleTimeout,
		HandshakeIdleTimeout: handshakeTimeout,
		EnableDatagrams:      false,
		MaxIncomingStreams:   maxStreams,
	}
}
