// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package identity

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Reloader serves a certificate loaded from files and, if watched, reloads it after the files were changed.
// Existing connections keep their certificate; new handshakes use the reloaded one.
type Reloader struct {
	certFile string
	keyFile  string

	mutex sync.RWMutex
	cert  *tls.Certificate

	watcher *fsnotify.Watcher

	// stop{Syn,Ack} supervise the watching goroutine, see Close()
	stopSyn   chan struct{}
	stopAck   chan struct{}
	closeOnce sync.Once
}

// NewReloader loads the initial certificate. Call Watch to react on changes.
func NewReloader(certFile, keyFile string) (*Reloader, error) {
	certAbs, err := filepath.Abs(certFile)
	if err != nil {
		return nil, err
	}
	keyAbs, err := filepath.Abs(keyFile)
	if err != nil {
		return nil, err
	}

	r := &Reloader{
		certFile: certAbs,
		keyFile:  keyAbs,
	}

	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload the certificate from the files. On error, the previous certificate is kept.
func (r *Reloader) Reload() error {
	cert, err := Load(r.certFile, r.keyFile)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	r.cert = &cert
	r.mutex.Unlock()

	log.WithField("certificate", r.certFile).Debug("Loaded certificate")
	return nil
}

// Certificate currently served.
func (r *Reloader) Certificate() *tls.Certificate {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.cert
}

// GetCertificate is to be used as tls.Config's GetCertificate.
func (r *Reloader) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.Certificate(), nil
}

// Watch the certificate and key files' directories for changes.
func (r *Reloader) Watch() (err error) {
	if r.watcher != nil {
		return fmt.Errorf("reloader is already watching")
	}

	if r.watcher, err = fsnotify.NewWatcher(); err != nil {
		return err
	}

	for _, dir := range []string{filepath.Dir(r.certFile), filepath.Dir(r.keyFile)} {
		if err = r.watcher.Add(dir); err != nil {
			_ = r.watcher.Close()
			r.watcher = nil
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	r.stopSyn = make(chan struct{})
	r.stopAck = make(chan struct{})
	go r.handler()

	return nil
}

func (r *Reloader) handler() {
	defer close(r.stopAck)

	for {
		select {
		case <-r.stopSyn:
			return

		case e, ok := <-r.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if name := filepath.Clean(e.Name); name != r.certFile && name != r.keyFile {
				continue
			}

			// The second file might not be written yet, resulting in a mismatching pair. Its own event follows.
			if err := r.Reload(); err != nil {
				log.WithFields(log.Fields{
					"file":  e.Name,
					"error": err,
				}).Debug("Reloading certificate errored, keeping the previous one")
			} else {
				log.WithField("file", e.Name).Info("Reloaded certificate")
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}

			log.WithError(err).Warn("fsnotify errored")
		}
	}
}

// Close stops watching. The last certificate is still served.
func (r *Reloader) Close() (err error) {
	r.closeOnce.Do(func() {
		if r.watcher == nil {
			return
		}

		close(r.stopSyn)
		<-r.stopAck
		err = r.watcher.Close()
	})
	return
}
