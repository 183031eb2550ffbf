// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quichat/pkg/discovery"
	"github.com/dtn7/quichat/pkg/identity"
	"github.com/dtn7/quichat/pkg/quicl"
	"github.com/dtn7/quichat/pkg/roomcode"
)

// Client joins a room by its code.
type Client struct {
	conf ClientConfig

	mutex  sync.Mutex
	state  State
	code   roomcode.Code
	target roomcode.Target

	peer *quicl.Peer
	loop *loop

	// done is closed after the connection to the server ended.
	done chan struct{}
}

// NewClient in the Idle state.
func NewClient(conf ClientConfig) *Client {
	return &Client{
		conf:  conf,
		state: Idle,
		done:  make(chan struct{}),
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("Client(%v)", c.Target())
}

// Start the Client: parse the room code, resolve the server's address and connect.
//
// A malformed code results in roomcode.ErrInvalidRoomCode, an unusable local address in
// roomcode.ErrAddressUnavailable and an unreachable server in ErrTransportUnavailable. In each case, the Client is
// Stopped.
func (c *Client) Start() (err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state != Idle {
		return ErrAlreadyStarted
	}
	c.state = Starting

	defer func() {
		if err != nil {
			c.state = Stopped
			close(c.done)
			log.WithError(err).Warn("Starting client failed")
		}
	}()

	if c.code, err = roomcode.Parse(c.conf.Code); err != nil {
		return
	}

	if c.target, err = c.resolve(); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.conf.dialTimeout())
	defer cancel()

	peer, dErr := quicl.Dial(ctx, c.target.String(), c.tlsConfig(), transportOrDefault(c.conf.Transport))
	if dErr != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, dErr)
	}
	c.peer = peer

	c.loop = newLoop()
	ready := make(chan struct{})
	go c.loop.run(ready)
	<-ready

	go c.read()

	c.state = Connected

	log.WithFields(log.Fields{
		"code":   c.code,
		"target": c.target,
		"peer":   peer,
	}).Info("Client connected")

	return nil
}

// resolve the server's address: a configured target, an announced room or the room code's address in this subnet.
func (c *Client) resolve() (roomcode.Target, error) {
	if c.conf.Target != nil {
		return *c.conf.Target, nil
	}

	if c.conf.Discovery.IPv4 {
		target, err := discovery.Lookup(c.code, c.conf.Discovery.lookupTimeout())
		if err == nil {
			return target, nil
		}

		log.WithFields(log.Fields{
			"code":  c.code,
			"error": err,
		}).Info("Room was not announced, deriving the address from its code")
	}

	localAddress, err := c.conf.addresses().LocalAddress()
	if err != nil {
		return roomcode.Target{}, err
	}
	return roomcode.ClientTarget(localAddress, c.code)
}

func (c *Client) tlsConfig() *tls.Config {
	if c.conf.TLS != nil {
		return c.conf.TLS
	}

	log.Warn("Server certificate will not be verified")

	// Without a CA file, this cannot fail.
	conf, _ := identity.ClientTLSConfig(identity.DefaultCommonName, c.conf.ALPN, true, "")
	return conf
}

func (c *Client) read() {
	defer close(c.done)

	err := c.peer.Serve(context.Background(), func(_ *quicl.Peer, data []byte) {
		if c.conf.OnReceive != nil {
			c.conf.OnReceive(data)
		}
	})

	// A concurrent Stop finishes the state transition itself.
	c.mutex.Lock()
	if c.state == Connected {
		c.state = Stopped
	}
	c.mutex.Unlock()

	_ = c.peer.Close()
	c.loop.stop()

	log.WithFields(log.Fields{
		"peer":  c.peer,
		"error": err,
	}).Info("Connection to server ended")
}

// Send msg to the server.
func (c *Client) Send(msg []byte) error {
	c.mutex.Lock()
	l := c.loop
	c.mutex.Unlock()

	if l == nil {
		return ErrNotRunning
	}

	err, lErr := await(l, func() error { return c.peer.Write(msg) })
	if lErr != nil {
		return lErr
	}
	return err
}

// Stop the Client and close its connection. Repeated calls are no-ops.
func (c *Client) Stop() error {
	c.mutex.Lock()
	switch c.state {
	case Idle:
		c.state = Stopped
		close(c.done)
		c.mutex.Unlock()
		return nil

	case Stopping, Stopped:
		c.mutex.Unlock()
		return nil
	}

	c.state = Stopping
	l := c.loop
	c.mutex.Unlock()

	log.WithField("client", c).Info("Stopping client")

	var closeErr error
	if err := l.submit(func() {
		closeErr = c.peer.Close()
		l.stop()
	}); err != nil {
		log.WithError(err).Debug("Event loop has already quit")
	}

	select {
	case <-l.done:
	case <-time.After(c.conf.stopTimeout()):
		c.setState(Stopped)
		return ErrStopTimeout
	}

	c.setState(Stopped)
	return closeErr
}

func (c *Client) setState(state State) {
	c.mutex.Lock()
	c.state = state
	c.mutex.Unlock()
}

// Done is closed after the connection to the server ended, e.g., after the server stopped. Unless Stop is in
// progress, the Client is Stopped by then.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// State of this Client.
func (c *Client) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.state
}

// Target is the server's address, known after a successful Start.
func (c *Client) Target() roomcode.Target {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.target
}
