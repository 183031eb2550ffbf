// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quicl

import (
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dtn7/quichat/pkg/quicl/internal"
)

// readBufferSize is the maximum chunk size passed to a Serve callback.
const readBufferSize = 65535

// Config of QUIC connections and Peers.
type Config struct {
	// KeepAlivePeriod between two keep-alive packets. The remote must receive one within its MaxIdleTimeout.
	KeepAlivePeriod time.Duration

	// MaxIdleTimeout until a silent connection is considered dead.
	MaxIdleTimeout time.Duration

	// HandshakeTimeout limits the establishment of a new connection.
	HandshakeTimeout time.Duration

	// MaxIncomingStreams a remote might open.
	MaxIncomingStreams int64

	// WriteTimeout limits both opening the outgoing stream and each Write.
	// A Peer not accepting data within this time is treated as gone.
	WriteTimeout time.Duration
}

// DefaultConfig is suitable for a LAN.
func DefaultConfig() Config {
	return Config{
		KeepAlivePeriod:    1 * time.Second,
		MaxIdleTimeout:     5 * time.Second,
		HandshakeTimeout:   5 * time.Second,
		MaxIncomingStreams: 16,
		WriteTimeout:       5 * time.Second,
	}
}

func (conf Config) quicConfig() *quic.Config {
	return internal.GenerateQUICConfig(conf.KeepAlivePeriod, conf.MaxIdleTimeout, conf.HandshakeTimeout, conf.MaxIncomingStreams)
}
