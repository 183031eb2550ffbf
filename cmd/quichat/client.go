// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quichat/pkg/roomcode"
	"github.com/dtn7/quichat/pkg/session"
)

// promptCode asks for a room code until a valid one was entered. It returns false at the end of the input.
func promptCode(lines <-chan string) (roomcode.Code, bool) {
	for {
		fmt.Print("Room code: ")

		line, ok := <-lines
		if !ok || line == quitCommand {
			return "", false
		}

		code, err := roomcode.Parse(line)
		if err != nil {
			fmt.Println(err)
			continue
		}
		return code, true
	}
}

// runClient for the "client" CLI option.
func runClient(args []string) {
	if len(args) != 1 && len(args) != 2 {
		printUsage()
	}

	conf, err := parseConfig(args[0])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	if conf.Profiling {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	lines := readLines(os.Stdin)

	var code roomcode.Code
	if len(args) == 2 {
		if code, err = roomcode.Parse(args[1]); err != nil {
			log.WithError(err).Fatal("Invalid room code")
		}
	} else if conf.Room.Code != "" {
		if code, err = roomcode.Parse(conf.Room.Code); err != nil {
			log.WithError(err).Fatal("Invalid room code")
		}
	} else {
		var ok bool
		if code, ok = promptCode(lines); !ok {
			return
		}
	}

	clientConf, err := conf.clientConfig(string(code))
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}
	clientConf.OnReceive = func(data []byte) {
		fmt.Printf("%s\n", data)
	}

	client := session.NewClient(clientConf)
	if err := client.Start(); err != nil {
		log.WithError(err).Fatal("Joining room errored")
	}

	fmt.Printf("Joined room %s at %v\n", code, client.Target())

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

			if err := client.Send([]byte(line)); err != nil {
				log.WithError(err).Warn("Sending message errored")
				break loop
			}

		case <-client.Done():
			fmt.Println("The server closed the room")
			break loop

		case <-sigint:
			break loop
		}
	}

	if err := client.Stop(); err != nil {
		log.WithError(err).Warn("Stopping client errored")
	}
}
