// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quichat/pkg/session"
	"github.com/dtn7/quichat/pkg/webagent"
)

// runServer for the "server" CLI option.
func runServer(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	conf, err := parseConfig(args[0])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	if conf.Profiling {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	serverConf, err := conf.serverConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}
	serverConf.OnReceive = func(from uuid.UUID, data []byte) {
		fmt.Printf("[%s] %s\n", from.String()[:8], data)
	}

	server := session.NewServer(serverConf)
	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("Starting server errored")
	}

	fmt.Printf("Room code: %s\n", server.Code())

	var httpServer *http.Server
	if conf.Web.Listen != "" {
		httpServer = &http.Server{
			Addr:    conf.Web.Listen,
			Handler: webagent.NewAgent(server),
		}

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Warn("Web agent errored")
			}
		}()

		log.WithField("address", conf.Web.Listen).Info("Serving web agent")
	}

	lines := readLines(os.Stdin)
	sigint := notifySigint()

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok || line == quitCommand {
				break loop
			} else if line == "" {
				continue
			}

			report, err := server.Send([]byte(line))
			if err != nil {
				log.WithError(err).Warn("Sending message errored")
				break loop
			}
			log.WithField("report", report).Debug("Sent message")

		case <-sigint:
			break loop
		}
	}

	log.Info("Shutting down..")

	if httpServer != nil {
		_ = httpServer.Close()
	}
	if err := server.Stop(); err != nil {
		log.WithError(err).Warn("Stopping server errored")
	}
}
