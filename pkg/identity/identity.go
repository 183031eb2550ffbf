// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package identity provides the TLS identities QUIC requires.
//
// A server uses a self-signed certificate, either generated once and stored as PEM files or created on the fly.
// Clients cannot verify such a certificate against any public authority. They either skip the verification, which is
// this package's default for a LAN tool, or pin the server's certificate as their only trusted root.
package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultCommonName must match the client's configured server name when verification is enabled.
	DefaultCommonName = "localhost"

	// DefaultValidity of generated certificates.
	DefaultValidity = 365 * 24 * time.Hour
)

// Generate a self-signed RSA certificate for commonName, also used as DNS SAN. Both certificate and PKCS #8 private key
// are PEM encoded.
func Generate(commonName string, validFor time.Duration) (certPEM, keyPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("generating private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("generating serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"quichat"},
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{commonName},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("creating certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshalling private key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return
}

// GenerateCertificate creates an in-memory tls.Certificate, see Generate.
func GenerateCertificate(commonName string, validFor time.Duration) (tls.Certificate, error) {
	certPEM, keyPEM, err := Generate(commonName, validFor)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// WriteFiles generates a new identity and stores it. The private key is only readable by its owner.
func WriteFiles(certFile, keyFile, commonName string, validFor time.Duration) error {
	certPEM, keyPEM, err := Generate(commonName, validFor)
	if err != nil {
		return err
	}

	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		return fmt.Errorf("writing certificate: %w", err)
	}

	log.WithFields(log.Fields{
		"certificate": certFile,
		"key":         keyFile,
		"common name": commonName,
		"valid until": time.Now().Add(validFor).Format(time.RFC3339),
	}).Info("Generated self-signed identity")

	return nil
}

// Load a PEM encoded certificate and private key.
func Load(certFile, keyFile string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("loading %s and %s: %w", certFile, keyFile, err)
	}
	return cert, nil
}

// CommonName of a certificate's leaf.
func CommonName(cert tls.Certificate) (string, error) {
	if len(cert.Certificate) == 0 {
		return "", fmt.Errorf("certificate is empty")
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return "", err
	}
	return leaf.Subject.CommonName, nil
}
