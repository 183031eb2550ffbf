// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peers

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// WriteError is a failed write to a single peer.
type WriteError struct {
	ID  uuid.UUID
	Err error
}

func (we *WriteError) Error() string {
	return fmt.Sprintf("writing to peer %v failed: %v", we.ID, we.Err)
}

func (we *WriteError) Unwrap() error {
	return we.Err
}

// Report summarizes a broadcast.
type Report struct {
	// Recipients is the number of Handles a write was attempted to.
	Recipients int

	// Delivered lists the Handles which accepted the message.
	Delivered []uuid.UUID

	// Failed maps each dropped Handle to its *WriteError.
	Failed map[uuid.UUID]error
}

func (r Report) String() string {
	return fmt.Sprintf("Report{recipients: %d, delivered: %d, failed: %d}", r.Recipients, len(r.Delivered), len(r.Failed))
}

// Dispatcher broadcasts messages to all Handles of a Registry.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher for the given Registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Broadcast a message to every registered Handle.
//
// Each Handle is written to in its own goroutine. A Handle failing to accept the message is closed and removed from
// the Registry; this does not affect any other Handle. Broadcasting to an empty Registry results in an empty Report.
func (d *Dispatcher) Broadcast(msg []byte) Report {
	return d.broadcast(uuid.Nil, msg)
}

// BroadcastExcept sends a message to all Handles but the sender's one.
func (d *Dispatcher) BroadcastExcept(sender uuid.UUID, msg []byte) Report {
	return d.broadcast(sender, msg)
}

func (d *Dispatcher) broadcast(except uuid.UUID, msg []byte) (report Report) {
	var handles []Handle
	for _, h := range d.registry.Snapshot() {
		if h.ID() != except {
			handles = append(handles, h)
		}
	}

	report.Recipients = len(handles)
	if report.Recipients == 0 {
		log.WithField("size", len(msg)).Debug("Broadcast has no recipients")
		return
	}

	var (
		mutex  sync.Mutex
		wg     conc.WaitGroup
		failed []Handle
	)

	for _, h := range handles {
		wg.Go(func() {
			err := h.Write(msg)

			mutex.Lock()
			defer mutex.Unlock()

			if err == nil {
				report.Delivered = append(report.Delivered, h.ID())
				return
			}

			if report.Failed == nil {
				report.Failed = make(map[uuid.UUID]error)
			}
			report.Failed[h.ID()] = &WriteError{ID: h.ID(), Err: err}
			failed = append(failed, h)
		})
	}
	wg.Wait()

	for _, h := range failed {
		d.drop(h, report.Failed[h.ID()])
	}

	log.WithFields(log.Fields{
		"size":   len(msg),
		"report": report,
	}).Debug("Broadcast finished")

	return
}

// drop a Handle after a failed write. If the Handle's reader already removed it, closing is left to the reader.
func (d *Dispatcher) drop(h Handle, err error) {
	log.WithFields(log.Fields{
		"peer":  h,
		"error": err,
	}).Warn("Dropping peer after failed write")

	if !d.registry.Remove(h) {
		return
	}

	if closeErr := h.Close(); closeErr != nil {
		log.WithFields(log.Fields{
			"peer":  h,
			"error": closeErr,
		}).Debug("Closing dropped peer errored")
	}
}
