// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quichat/pkg/identity"
)

// runGenpem for the "genpem" CLI option.
func runGenpem(args []string) {
	var (
		certFile   = "cert.pem"
		keyFile    = "key.pem"
		commonName = identity.DefaultCommonName
	)

	switch len(args) {
	case 0:
	case 3:
		commonName = args[2]
		fallthrough
	case 2:
		certFile, keyFile = args[0], args[1]
	default:
		printUsage()
	}

	if err := identity.WriteFiles(certFile, keyFile, commonName, identity.DefaultValidity); err != nil {
		log.WithError(err).Fatal("Generating certificate errored")
	}
}
