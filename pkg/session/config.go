// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"crypto/tls"
	"time"

	"github.com/google/uuid"

	"github.com/dtn7/quichat/pkg/localaddr"
	"github.com/dtn7/quichat/pkg/quicl"
	"github.com/dtn7/quichat/pkg/roomcode"
)

const (
	defaultHost          = "0.0.0.0"
	defaultStopTimeout   = 5 * time.Second
	defaultDialTimeout   = 5 * time.Second
	defaultLookupTimeout = 3 * time.Second
)

// DiscoveryConfig enables announcing and looking up rooms via multicast.
type DiscoveryConfig struct {
	IPv4 bool
	IPv6 bool

	// Interval between a server's announcements.
	Interval time.Duration

	// LookupTimeout bounds a client's lookup before falling back to the room code's subnet address.
	LookupTimeout time.Duration
}

func (conf DiscoveryConfig) enabled() bool {
	return conf.IPv4 || conf.IPv6
}

func (conf DiscoveryConfig) lookupTimeout() time.Duration {
	if conf.LookupTimeout > 0 {
		return conf.LookupTimeout
	}
	return defaultLookupTimeout
}

// ServerConfig configures a Server. The zero value derives a code from this host's address, listens on all
// interfaces and uses an ephemeral self-signed certificate.
type ServerConfig struct {
	// Code of the room. If empty, it is derived from Addresses.
	Code string

	// Addresses to derive the room code from, localaddr.Default() if nil.
	Addresses localaddr.Source

	// Host to listen on, "0.0.0.0" if empty.
	Host string

	// TLS is used as is if set. Otherwise, CertFile and KeyFile are loaded, or a certificate is generated.
	TLS      *tls.Config
	CertFile string
	KeyFile  string

	// WatchCertificate reloads CertFile and KeyFile after they were changed.
	WatchCertificate bool

	ALPN []string

	// Relay forwards each received message to all other clients.
	Relay bool

	// OnReceive is called for each chunk of data received from some client, possibly concurrently.
	OnReceive func(from uuid.UUID, data []byte)

	Discovery   DiscoveryConfig
	Transport   quicl.Config
	StopTimeout time.Duration
}

func (conf ServerConfig) host() string {
	if conf.Host == "" {
		return defaultHost
	}
	return conf.Host
}

func (conf ServerConfig) addresses() localaddr.Source {
	if conf.Addresses == nil {
		return localaddr.Default()
	}
	return conf.Addresses
}

func (conf ServerConfig) stopTimeout() time.Duration {
	if conf.StopTimeout > 0 {
		return conf.StopTimeout
	}
	return defaultStopTimeout
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Code of the room, as entered by the user.
	Code string

	// Addresses to derive the server's address from, localaddr.Default() if nil.
	Addresses localaddr.Source

	// Target overrides the server's address.
	Target *roomcode.Target

	// TLS for dialing. If nil, the server's certificate is not verified.
	TLS  *tls.Config
	ALPN []string

	// OnReceive is called for each chunk of data received from the server.
	OnReceive func(data []byte)

	Discovery   DiscoveryConfig
	DialTimeout time.Duration
	Transport   quicl.Config
	StopTimeout time.Duration
}

func (conf ClientConfig) addresses() localaddr.Source {
	if conf.Addresses == nil {
		return localaddr.Default()
	}
	return conf.Addresses
}

func (conf ClientConfig) dialTimeout() time.Duration {
	if conf.DialTimeout > 0 {
		return conf.DialTimeout
	}
	return defaultDialTimeout
}

func (conf ClientConfig) stopTimeout() time.Duration {
	if conf.StopTimeout > 0 {
		return conf.StopTimeout
	}
	return defaultStopTimeout
}

func transportOrDefault(conf quicl.Config) quicl.Config {
	if conf == (quicl.Config{}) {
		return quicl.DefaultConfig()
	}
	return conf
}
