// SPDX-FileCopyrightText: 2022 Markus Sommer
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quicl

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quichat/pkg/quicl/internal"
)

// ErrPeerTimeout indicates a remote which went silent.
var ErrPeerTimeout = errors.New("peer timed out")

// Peer is one side of an established QUIC connection.
type Peer struct {
	id          uuid.UUID
	peerAddress string
	connection  *quic.Conn
	conf        Config
	dialer      bool

	// writeMutex serializes Writes and guards stream, the outgoing stream.
	writeMutex sync.Mutex
	stream     *quic.Stream

	closeOnce sync.Once
}

func newPeer(connection *quic.Conn, conf Config, dialer bool) *Peer {
	return &Peer{
		id:          uuid.New(),
		peerAddress: connection.RemoteAddr().String(),
		connection:  connection,
		conf:        conf,
		dialer:      dialer,
	}
}

// Dial a Listener at the given address.
func Dial(ctx context.Context, address string, tlsConf *tls.Config, conf Config) (*Peer, error) {
	log.WithField("address", address).Debug("Dialing QUIC peer")

	connection, err := quic.DialAddr(ctx, address, tlsConf, conf.quicConfig())
	if err != nil {
		return nil, err
	}

	return newPeer(connection, conf, true), nil
}

func (peer *Peer) String() string {
	return fmt.Sprintf("Peer{ID: %v, Address: %v, Dialer: %v}", peer.id, peer.peerAddress, peer.dialer)
}

// ID of this Peer, unique for its lifetime.
func (peer *Peer) ID() uuid.UUID {
	return peer.id
}

// RemoteAddr is the remote's network address.
func (peer *Peer) RemoteAddr() net.Addr {
	return peer.connection.RemoteAddr()
}

// Done is closed after the connection was closed, by either side.
func (peer *Peer) Done() <-chan struct{} {
	return peer.connection.Context().Done()
}

// Write data to the remote. The outgoing stream is opened on the first call.
// Successive Writes are received in order and without boundaries.
func (peer *Peer) Write(data []byte) error {
	peer.writeMutex.Lock()
	defer peer.writeMutex.Unlock()

	if peer.stream == nil {
		ctx, cancel := peer.timeoutContext(peer.connection.Context())
		defer cancel()

		stream, err := peer.connection.OpenStreamSync(ctx)
		if err != nil {
			return fmt.Errorf("opening stream: %w", err)
		}

		log.WithField("peer", peer).Debug("Opened outgoing stream")
		peer.stream = stream
	}

	if peer.conf.WriteTimeout > 0 {
		_ = peer.stream.SetWriteDeadline(time.Now().Add(peer.conf.WriteTimeout))
	}

	if _, err := peer.stream.Write(data); err != nil {
		peer.stream.CancelWrite(internal.StreamTransmissionError)
		return err
	}

	return nil
}

// CloseWrite signals the end of the outgoing data. Further Writes fail.
func (peer *Peer) CloseWrite() error {
	peer.writeMutex.Lock()
	defer peer.writeMutex.Unlock()

	if peer.stream == nil {
		return nil
	}
	return peer.stream.Close()
}

// Close the connection. Repeated calls are no-ops.
func (peer *Peer) Close() (err error) {
	peer.closeOnce.Do(func() {
		log.WithField("peer", peer).Debug("Closing connection")
		err = peer.connection.CloseWithError(internal.ApplicationShutdown, "shutting down")
	})
	return
}

// Serve passes every chunk of data received from the remote to fn until the remote's stream or the connection ends.
//
// After a remote's stream reached its end or failed, the connection is closed. An orderly end, by either side,
// results in a nil error. Cancelling ctx closes the connection. Serve returns only after fn was called for the last
// time.
func (peer *Peer) Serve(ctx context.Context, fn func(peer *Peer, data []byte)) error {
	acceptCtx, cancelAccept := context.WithCancel(ctx)
	defer cancelAccept()

	var wg sync.WaitGroup
	defer wg.Wait()

	ended := make(chan error, 1)

	for {
		stream, err := peer.connection.AcceptStream(acceptCtx)
		if err != nil {
			select {
			case streamErr := <-ended:
				_ = peer.Close()
				return peer.handleStreamError(streamErr)
			default:
				return peer.handleAcceptError(err)
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			streamErr := peer.handleStream(stream, fn)
			select {
			case ended <- streamErr:
			default:
			}
			cancelAccept()
		}()
	}
}

// handleStreamError maps the error which ended a remote's stream; nil is its orderly end.
func (peer *Peer) handleStreamError(err error) error {
	var streamErr *quic.StreamError

	switch {
	case err == nil:
		return nil

	case errors.As(err, &streamErr):
		log.WithFields(log.Fields{
			"peer":       peer,
			"remote":     streamErr.Remote,
			"error code": streamErr.ErrorCode,
		}).Debug("Stream of peer was reset")
		return err

	default:
		// The connection itself failed.
		return peer.handleAcceptError(err)
	}
}

func (peer *Peer) handleAcceptError(err error) error {
	var (
		netErr net.Error
		appErr *quic.ApplicationError
	)

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.WithField("peer", peer).Debug("Serving peer was cancelled")
		_ = peer.Close()
		return nil

	case errors.As(err, &appErr):
		log.WithFields(log.Fields{
			"peer":       peer,
			"remote":     appErr.Remote,
			"error code": appErr.ErrorCode,
			"error msg":  appErr.ErrorMessage,
		}).Debug("Connection to peer closed")

		if internal.IsShutdown(appErr.ErrorCode) {
			return nil
		}
		return err

	case errors.As(err, &netErr) && netErr.Timeout():
		log.WithFields(log.Fields{
			"peer":  peer,
			"error": netErr,
		}).Debug("Peer timed out")
		return fmt.Errorf("%w: %v", ErrPeerTimeout, err)

	default:
		log.WithFields(log.Fields{
			"peer":  peer,
			"error": err,
		}).Error("Unexpected error while waiting for stream")
		peer.closeOnce.Do(func() {
			_ = peer.connection.CloseWithError(internal.UnknownError, "unexpected error")
		})
		return err
	}
}

func (peer *Peer) handleStream(stream *quic.Stream, fn func(peer *Peer, data []byte)) error {
	log.WithFields(log.Fields{
		"peer":   peer,
		"stream": stream.StreamID(),
	}).Debug("Receiving from stream")

	// We never reply on the remote's stream.
	_ = stream.Close()

	buf := make([]byte, readBufferSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			fn(peer, data)
		}

		if errors.Is(err, io.EOF) {
			log.WithField("peer", peer).Debug("Remote finished its stream")
			return nil
		} else if err != nil {
			log.WithFields(log.Fields{
				"peer":  peer,
				"error": err,
			}).Debug("Reading stream errored")

			stream.CancelRead(internal.StreamTransmissionError)
			return err
		}
	}
}

func (peer *Peer) timeoutContext(parent context.Context) (context.Context, context.CancelFunc) {
	if peer.conf.WriteTimeout > 0 {
		return context.WithTimeout(parent, peer.conf.WriteTimeout)
	}
	return context.WithCancel(parent)
}
