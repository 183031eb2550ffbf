// SPDX-FileCopyrightText: 2022 Markus Sommer
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quicl

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"
)

// Listener accepts QUIC connections and hands each as a Peer to its onNewConnection callback.
type Listener struct {
	listenAddress   string
	tlsConf         *tls.Config
	conf            Config
	onNewConnection func(*Peer)

	conn      *net.UDPConn
	transport *quic.Transport
	listener  *quic.Listener
	wg        sync.WaitGroup
}

// NewListener for the given address, e.g., "0.0.0.0:11234". The tls.Config must contain a certificate and the ALPN
// protocols. onNewConnection is called in a new goroutine for each connection.
func NewListener(listenAddress string, tlsConf *tls.Config, conf Config, onNewConnection func(*Peer)) *Listener {
	return &Listener{
		listenAddress:   listenAddress,
		tlsConf:         tlsConf,
		conf:            conf,
		onNewConnection: onNewConnection,
	}
}

// Start listening. Errors, e.g., an already bound port, are returned directly.
func (listener *Listener) Start() error {
	log.WithField("address", listener.listenAddress).Info("Starting QUIC listener")

	udpAddr, err := net.ResolveUDPAddr("udp", listener.listenAddress)
	if err != nil {
		log.WithError(err).Error("Error resolving QUIC listener's address")
		return err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		log.WithError(err).Error("Error binding QUIC listener's socket")
		return err
	}

	transport := &quic.Transport{Conn: conn}
	lst, err := transport.Listen(listener.tlsConf, listener.conf.quicConfig())
	if err != nil {
		_ = transport.Close()
		_ = conn.Close()
		log.WithError(err).Error("Error creating QUIC listener")
		return err
	}

	listener.conn = conn
	listener.transport = transport
	listener.listener = lst

	listener.wg.Add(1)
	go listener.handle()

	return nil
}

// Addr the Listener is bound to, or nil if it was not started.
func (listener *Listener) Addr() net.Addr {
	if listener.listener == nil {
		return nil
	}
	return listener.listener.Addr()
}

// Close the Listener and wait for its accept loop. Close accepted Peers first, as they share the Listener's socket.
func (listener *Listener) Close() error {
	if listener.listener == nil {
		return nil
	}

	log.WithField("address", listener.listenAddress).Info("Shutting QUIC listener down")

	var errs *multierror.Error
	if err := listener.listener.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := listener.transport.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := listener.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = multierror.Append(errs, err)
	}

	listener.wg.Wait()
	return errs.ErrorOrNil()
}

func (listener *Listener) handle() {
	defer listener.wg.Done()

	log.WithField("address", listener.listenAddress).Info("Listening for QUIC connections")

	for {
		connection, err := listener.listener.Accept(context.Background())
		if err != nil {
			if errors.Is(err, quic.ErrServerClosed) {
				log.WithField("address", listener.listenAddress).Debug("QUIC listener was closed")
				return
			}

			// A failed transport keeps returning its error.
			log.WithFields(log.Fields{
				"address": listener.listenAddress,
				"error":   err,
			}).Error("Accepting QUIC connections failed, listener stops")
			return
		}

		peer := newPeer(connection, listener.conf, false)

		log.WithFields(log.Fields{
			"address": listener.listenAddress,
			"peer":    peer,
		}).Info("QUIC listener accepted new connection")

		go listener.onNewConnection(peer)
	}
}
