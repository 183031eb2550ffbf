// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/schollz/peerdiscovery"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quichat/pkg/roomcode"
)

// ErrNotFound indicates that no server announced the room before the timeout.
var ErrNotFound = errors.New("room was not announced")

// lookupPayload is multicast while looking up. It is no Announcement and is ignored by everyone.
var lookupPayload = []byte("quichat?")

// Lookup waits up to timeout for an IPv4 Announcement of the room and returns the announcing server's address.
func Lookup(code roomcode.Code, timeout time.Duration) (roomcode.Target, error) {
	found := make(chan roomcode.Target, 1)
	stopChan := make(chan struct{})

	settings := peerdiscovery.Settings{
		Limit:            -1,
		Port:             fmt.Sprintf("%d", port),
		MulticastAddress: address4,
		Payload:          lookupPayload,
		Delay:            timeout / 4,
		TimeLimit:        timeout,
		StopChan:         stopChan,
		AllowSelf:        true,
		IPVersion:        peerdiscovery.IPv4,
		Notify: func(discovered peerdiscovery.Discovered) {
			if target, ok := matchAnnouncement(code, discovered); ok {
				select {
				case found <- target:
				default:
				}
			}
		},
	}

	log.WithFields(log.Fields{
		"code":    code,
		"timeout": timeout,
	}).Debug("Looking up room")

	discoverErrChan := make(chan error, 1)
	go func() {
		_, discoverErr := peerdiscovery.Discover(settings)
		discoverErrChan <- discoverErr
	}()

	select {
	case target := <-found:
		close(stopChan)
		log.WithFields(log.Fields{
			"code":   code,
			"target": target,
		}).Info("Found announced room")
		return target, nil

	case discoverErr := <-discoverErrChan:
		select {
		case target := <-found:
			return target, nil
		default:
		}

		if discoverErr != nil {
			return roomcode.Target{}, fmt.Errorf("%w: %v", ErrNotFound, discoverErr)
		}
		return roomcode.Target{}, ErrNotFound
	}
}

// matchAnnouncement checks a discovered payload for an Announcement of the room.
func matchAnnouncement(code roomcode.Code, discovered peerdiscovery.Discovered) (roomcode.Target, bool) {
	announcements, err := UnmarshalAnnouncements(discovered.Payload)
	if err != nil {
		log.WithFields(log.Fields{
			"peer":  discovered.Address,
			"error": err,
		}).Debug("Peer discovery ignored an unknown package")
		return roomcode.Target{}, false
	}

	for _, announcement := range announcements {
		if announcement.Code == code {
			return roomcode.Target{Host: discovered.Address, Port: int(announcement.Port)}, true
		}
	}
	return roomcode.Target{}, false
}
