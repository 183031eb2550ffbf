// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// quichat is a chat for everyone within the same local network, talking QUIC.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
)

// quitCommand ends an interactive session.
const quitCommand = "q"

// printUsage of quichat and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s server|client|genpem:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s server configuration.toml\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Hosts a room and prints its code. Each line from stdin is sent to all clients,\n")
	_, _ = fmt.Fprintf(os.Stderr, "  \"%s\" quits.\n\n", quitCommand)

	_, _ = fmt.Fprintf(os.Stderr, "%s client configuration.toml [code]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Joins the room of the given code or asks for one. Each line from stdin is sent\n")
	_, _ = fmt.Fprintf(os.Stderr, "  to the server, \"%s\" quits.\n\n", quitCommand)

	_, _ = fmt.Fprintf(os.Stderr, "%s genpem [cert.pem key.pem [common-name]]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Generates a self-signed certificate and its private key for a server.\n\n")

	os.Exit(1)
}

// notifySigint returns a channel which is closed after a SIGINT appeared.
func notifySigint() <-chan struct{} {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	return signalAck
}

// readLines from r into the returned channel, which is closed at the end of the input.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- strings.TrimRight(scanner.Text(), "\r")
		}
	}()

	return lines
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "server":
		runServer(os.Args[2:])

	case "client":
		runClient(os.Args[2:])

	case "genpem":
		runGenpem(os.Args[2:])

	default:
		printUsage()
	}
}
