// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package identity

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// DefaultALPN is the application protocol negotiated by both sides.
var DefaultALPN = []string{"quichat"}

// ServerTLSConfig uses getCertificate for every handshake, e.g., a Reloader's GetCertificate.
func ServerTLSConfig(getCertificate func(*tls.ClientHelloInfo) (*tls.Certificate, error), alpn []string) *tls.Config {
	return &tls.Config{
		GetCertificate: getCertificate,
		NextProtos:     alpnOrDefault(alpn),
		MinVersion:     tls.VersionTLS13,
	}
}

// StaticServerTLSConfig always presents the same certificate.
func StaticServerTLSConfig(cert tls.Certificate, alpn []string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   alpnOrDefault(alpn),
		MinVersion:   tls.VersionTLS13,
	}
}

// ClientTLSConfig for dialing a server presenting serverName.
//
// With insecure set, the server's certificate is not verified at all. This accepts self-signed certificates, but
// also anyone pretending to be the server. Otherwise, the certificates from caFile are the only trusted roots, or
// the system's roots if caFile is empty.
func ClientTLSConfig(serverName string, alpn []string, insecure bool, caFile string) (*tls.Config, error) {
	conf := &tls.Config{
		ServerName:         serverName,
		NextProtos:         alpnOrDefault(alpn),
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: insecure,
	}

	if !insecure && caFile != "" {
		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("CA file %s contains no certificate", caFile)
		}
		conf.RootCAs = pool
	}

	return conf, nil
}

func alpnOrDefault(alpn []string) []string {
	if len(alpn) == 0 {
		return DefaultALPN
	}
	return alpn
}
