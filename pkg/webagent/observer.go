// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package webagent

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// writeTimeout for each frame sent to a browser.
const writeTimeout = 5 * time.Second

// observer is a WebSocket connection acting as a peers.Handle.
type observer struct {
	sync.Mutex

	id   uuid.UUID
	conn *websocket.Conn

	closeOnce sync.Once
}

func newObserver(conn *websocket.Conn) *observer {
	return &observer{
		id:   uuid.New(),
		conn: conn,
	}
}

func (obs *observer) String() string {
	return fmt.Sprintf("Observer{ID: %v, Address: %v}", obs.id, obs.conn.RemoteAddr())
}

func (obs *observer) ID() uuid.UUID {
	return obs.id
}

// Write data as a single frame, a text frame for valid UTF-8 and a binary one otherwise.
func (obs *observer) Write(data []byte) error {
	obs.Lock()
	defer obs.Unlock()

	messageType := websocket.BinaryMessage
	if utf8.Valid(data) {
		messageType = websocket.TextMessage
	}

	if err := obs.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return obs.conn.WriteMessage(messageType, data)
}

func (obs *observer) Close() (err error) {
	obs.closeOnce.Do(func() {
		log.WithField("observer", obs).Debug("Closing observer")
		err = obs.conn.Close()
	})
	return
}

// serve passes each incoming frame to fn until the connection ends.
func (obs *observer) serve(fn func(data []byte)) {
	var logger = log.WithField("observer", obs)

	for {
		_, data, err := obs.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, net.ErrClosed) {
				logger.WithError(err).Debug("Observer disconnected")
			} else {
				logger.WithError(err).Warn("Reading from observer errored")
			}
			return
		}

		logger.WithField("size", len(data)).Debug("Received message from observer")
		fn(data)
	}
}
