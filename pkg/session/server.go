// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quichat/pkg/discovery"
	"github.com/dtn7/quichat/pkg/identity"
	"github.com/dtn7/quichat/pkg/peers"
	"github.com/dtn7/quichat/pkg/quicl"
	"github.com/dtn7/quichat/pkg/roomcode"
)

// Server hosts a room. It accepts any number of clients and broadcasts messages to all of them.
type Server struct {
	conf ServerConfig

	mutex sync.Mutex
	state State
	code  roomcode.Code

	registry   *peers.Registry
	dispatcher *peers.Dispatcher
	listener   *quicl.Listener
	reloader   *identity.Reloader
	announcer  *discovery.Announcer
	loop       *loop

	// ctx is passed to each client's Serve and cancelled while stopping.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer in the Idle state.
func NewServer(conf ServerConfig) *Server {
	return &Server{
		conf:     conf,
		state:    Idle,
		registry: peers.NewRegistry(),
	}
}

func (s *Server) String() string {
	return fmt.Sprintf("Server(%v)", s.Code())
}

// Start the Server: derive the room code, bind the listener and start the event loop.
//
// An unusable local address results in roomcode.ErrAddressUnavailable before any network resource was created.
// Failing to create the QUIC listener results in ErrTransportUnavailable. In both cases, the Server is Stopped.
func (s *Server) Start() (err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state != Idle {
		return ErrAlreadyStarted
	}
	s.state = Starting

	defer func() {
		if err != nil {
			s.state = Stopped
			log.WithError(err).Warn("Starting server failed")
		}
	}()

	if s.code, err = s.roomCode(); err != nil {
		return
	}

	tlsConf, err := s.tlsConfig()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	s.dispatcher = peers.NewDispatcher(s.registry)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.loop = newLoop()
	ready := make(chan struct{})
	go s.loop.run(ready)
	<-ready

	address := net.JoinHostPort(s.conf.host(), strconv.Itoa(s.code.Port()))
	s.listener = quicl.NewListener(address, tlsConf, transportOrDefault(s.conf.Transport), s.accept)
	if lErr := s.listener.Start(); lErr != nil {
		s.cancel()
		s.loop.stop()
		if s.reloader != nil {
			_ = s.reloader.Close()
		}
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, lErr)
	}

	if s.conf.Discovery.enabled() {
		announcement := discovery.Announcement{Code: s.code, Port: uint(s.code.Port())}
		announcer, aErr := discovery.NewAnnouncer(announcement, s.conf.Discovery.Interval, s.conf.Discovery.IPv4, s.conf.Discovery.IPv6)
		if aErr != nil {
			log.WithError(aErr).Warn("Room announcer errored, clients must rely on the room code's address")
		} else {
			s.announcer = announcer
		}
	}

	s.state = Listening

	log.WithFields(log.Fields{
		"code":    s.code,
		"address": address,
		"relay":   s.conf.Relay,
	}).Info("Server is listening")

	return nil
}

func (s *Server) roomCode() (roomcode.Code, error) {
	if s.conf.Code != "" {
		return roomcode.Parse(s.conf.Code)
	}

	localAddress, err := s.conf.addresses().LocalAddress()
	if err != nil {
		return "", err
	}

	log.WithField("address", localAddress).Debug("Deriving room code from local address")
	return roomcode.DeriveServerCode(localAddress, nil)
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	switch {
	case s.conf.TLS != nil:
		return s.conf.TLS, nil

	case s.conf.CertFile != "" || s.conf.KeyFile != "":
		reloader, err := identity.NewReloader(s.conf.CertFile, s.conf.KeyFile)
		if err != nil {
			return nil, err
		}

		if s.conf.WatchCertificate {
			if err := reloader.Watch(); err != nil {
				log.WithError(err).Warn("Watching certificate errored, changes require a restart")
			}
		}

		s.reloader = reloader
		return identity.ServerTLSConfig(reloader.GetCertificate, s.conf.ALPN), nil

	default:
		log.Info("No certificate was configured, generating an ephemeral one")

		cert, err := identity.GenerateCertificate(identity.DefaultCommonName, identity.DefaultValidity)
		if err != nil {
			return nil, err
		}
		return identity.StaticServerTLSConfig(cert, s.conf.ALPN), nil
	}
}

// accept is called by the listener for each new client. It returns after the client is gone.
func (s *Server) accept(peer *quicl.Peer) {
	if err := s.registry.Add(peer); err != nil {
		log.WithFields(log.Fields{
			"peer":  peer,
			"error": err,
		}).Debug("Rejecting client of a stopping server")

		_ = peer.Close()
		return
	}

	log.WithFields(log.Fields{
		"peer":    peer,
		"clients": s.registry.Len(),
	}).Info("Client connected")

	err := peer.Serve(s.ctx, s.receive)

	s.registry.Remove(peer)
	_ = peer.Close()

	log.WithFields(log.Fields{
		"peer":    peer,
		"clients": s.registry.Len(),
		"error":   err,
	}).Info("Client disconnected")
}

func (s *Server) receive(peer *quicl.Peer, data []byte) {
	if s.conf.OnReceive != nil {
		s.conf.OnReceive(peer.ID(), data)
	}

	if !s.conf.Relay {
		return
	}

	sender := peer.ID()
	if err := s.loop.submit(func() { s.dispatcher.BroadcastExcept(sender, data) }); err != nil {
		log.WithFields(log.Fields{
			"peer":  peer,
			"error": err,
		}).Debug("Dropping message to relay")
	}
}

func (s *Server) runningLoop() *loop {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.loop
}

// Send msg to all currently connected clients. Failing clients are disconnected and listed in the Report.
func (s *Server) Send(msg []byte) (peers.Report, error) {
	l := s.runningLoop()
	if l == nil {
		return peers.Report{}, ErrNotRunning
	}

	return await(l, func() peers.Report { return s.dispatcher.Broadcast(msg) })
}

// Relay msg to all connected clients except the sender.
func (s *Server) Relay(sender uuid.UUID, msg []byte) (peers.Report, error) {
	l := s.runningLoop()
	if l == nil {
		return peers.Report{}, ErrNotRunning
	}

	return await(l, func() peers.Report { return s.dispatcher.BroadcastExcept(sender, msg) })
}

// Stop the Server. All clients are disconnected, then the listener is closed.
//
// Requests submitted before Stop are still executed. Stop returns after the event loop exited or after the
// configured timeout with ErrStopTimeout. Repeated calls are no-ops.
func (s *Server) Stop() error {
	s.mutex.Lock()
	switch s.state {
	case Idle:
		s.state = Stopped
		s.mutex.Unlock()
		return nil

	case Stopping, Stopped:
		s.mutex.Unlock()
		return nil
	}

	s.state = Stopping
	l := s.loop
	s.mutex.Unlock()

	log.WithField("server", s).Info("Stopping server")

	var shutdownErr error
	if err := l.submit(func() {
		shutdownErr = s.shutdown()
		l.stop()
	}); err != nil {
		log.WithError(err).Debug("Event loop has already quit")
	}

	select {
	case <-l.done:
	case <-time.After(s.conf.stopTimeout()):
		s.setState(Stopped)
		return ErrStopTimeout
	}

	s.setState(Stopped)
	log.WithField("server", s).Info("Server stopped")

	return shutdownErr
}

// shutdown is executed on the event loop.
func (s *Server) shutdown() error {
	var errs *multierror.Error

	if err := s.registry.CloseAll(); err != nil {
		errs = multierror.Append(errs, err)
	}
	s.cancel()

	if s.announcer != nil {
		if err := s.announcer.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := s.listener.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if s.reloader != nil {
		if err := s.reloader.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}

func (s *Server) setState(state State) {
	s.mutex.Lock()
	s.state = state
	s.mutex.Unlock()
}

// State of this Server.
func (s *Server) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.state
}

// Code of the room, empty before Start.
func (s *Server) Code() roomcode.Code {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.code
}

// Port the Server listens on, 0 before Start.
func (s *Server) Port() int {
	if code := s.Code(); code != "" {
		return code.Port()
	}
	return 0
}

// Registry of the connected clients.
func (s *Server) Registry() *peers.Registry {
	return s.registry
}

// Addr the listener is bound to, or nil if it is not listening.
func (s *Server) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
