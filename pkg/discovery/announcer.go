// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2020 Markus Sommer
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/peerdiscovery"
	log "github.com/sirupsen/logrus"
)

// Announcer periodically multicasts an Announcement.
type Announcer struct {
	announcement Announcement

	stopChans []chan struct{}
	closeOnce sync.Once
}

// NewAnnouncer will be created and started. It announces on IPv4 and/or IPv6.
func NewAnnouncer(announcement Announcement, interval time.Duration, ipv4, ipv6 bool) (*Announcer, error) {
	if !ipv4 && !ipv6 {
		return nil, fmt.Errorf("neither IPv4 nor IPv6 was enabled")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	log.WithFields(log.Fields{
		"interval":     interval,
		"IPv4":         ipv4,
		"IPv6":         ipv6,
		"announcement": announcement,
	}).Info("Starting room announcer")

	msg, err := MarshalAnnouncements([]Announcement{announcement})
	if err != nil {
		return nil, err
	}

	announcer := &Announcer{announcement: announcement}

	sets := []struct {
		active           bool
		multicastAddress string
		ipVersion        peerdiscovery.IPVersion
	}{
		{ipv4, address4, peerdiscovery.IPv4},
		{ipv6, address6, peerdiscovery.IPv6},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		stopChan := make(chan struct{})
		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", port),
			MulticastAddress: set.multicastAddress,
			Payload:          msg,
			Delay:            interval,
			TimeLimit:        -1,
			StopChan:         stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
		}

		discoverErrChan := make(chan error, 1)
		go func() {
			_, discoverErr := peerdiscovery.Discover(settings)
			discoverErrChan <- discoverErr
		}()

		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				_ = announcer.Close()
				return nil, discoverErr
			}

		case <-time.After(time.Second):
		}

		announcer.stopChans = append(announcer.stopChans, stopChan)
	}

	return announcer, nil
}

func (announcer *Announcer) String() string {
	return fmt.Sprintf("Announcer(%v)", announcer.announcement)
}

// Close this Announcer. Repeated calls are no-ops.
func (announcer *Announcer) Close() error {
	announcer.closeOnce.Do(func() {
		log.WithField("announcer", announcer).Info("Stopping room announcer")

		for _, c := range announcer.stopChans {
			close(c)
		}
	})
	return nil
}
