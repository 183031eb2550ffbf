// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package peers keeps track of the currently connected peers and broadcasts messages to them.
//
// The Registry is the live set of Handles eligible for a broadcast. It is modified by the accepting side when a peer
// connects and by the peer's reader when its connection ends. The Dispatcher writes a message to a snapshot of the
// Registry and drops each Handle whose write fails, without disturbing the delivery to the others.
package peers

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// ErrRegistryClosed is returned when adding a Handle to a Registry after CloseAll.
var ErrRegistryClosed = errors.New("registry is closed")

// Handle is one established connection to a peer.
//
// The Registry does not own the underlying connection; it only writes to it and closes it when the peer is dropped.
// Implementations must be safe for concurrent use and should preserve the order of successive Writes.
type Handle interface {
	// ID identifies this Handle for its whole lifetime.
	ID() uuid.UUID

	// Write sends the whole message or returns an error.
	Write(data []byte) error

	// Close this Handle. Closing an already closed Handle must not panic.
	Close() error
}

// Registry is a concurrency-safe set of Handles, unique by their ID.
type Registry struct {
	mutex   sync.RWMutex
	handles map[uuid.UUID]Handle
	closed  bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[uuid.UUID]Handle),
	}
}

// Add a Handle. Adding a known Handle is a no-op.
//
// After CloseAll, Add returns ErrRegistryClosed and the caller stays in charge of the Handle.
func (r *Registry) Add(h Handle) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	if _, exists := r.handles[h.ID()]; exists {
		return nil
	}
	r.handles[h.ID()] = h

	log.WithFields(log.Fields{
		"peer":  h,
		"peers": len(r.handles),
	}).Debug("Registry added peer")

	return nil
}

// Remove a Handle if present. The return value reports if the Handle was present.
//
// Concurrent failure paths may try to remove the same Handle; only one of them gets true.
func (r *Registry) Remove(h Handle) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.handles[h.ID()]; !exists {
		return false
	}
	delete(r.handles, h.ID())

	log.WithFields(log.Fields{
		"peer":  h,
		"peers": len(r.handles),
	}).Debug("Registry removed peer")

	return true
}

// Snapshot returns the current Handles. The returned slice is owned by the caller.
func (r *Registry) Snapshot() []Handle {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	handles := make([]Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	return handles
}

// Len is the number of registered Handles.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.handles)
}

// Contains checks if a Handle with this ID is registered.
func (r *Registry) Contains(id uuid.UUID) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.handles[id]
	return exists
}

// IDs of all registered Handles.
func (r *Registry) IDs() (ids []uuid.UUID) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for id := range r.handles {
		ids = append(ids, id)
	}
	return
}

// CloseAll closes and removes every Handle. Afterwards, the Registry refuses new Handles.
func (r *Registry) CloseAll() error {
	r.mutex.Lock()
	handles := r.handles
	r.handles = make(map[uuid.UUID]Handle)
	r.closed = true
	r.mutex.Unlock()

	log.WithField("peers", len(handles)).Debug("Registry closes all peers")

	var errs error
	for id, h := range handles {
		if err := h.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing peer %v: %w", id, err))
		}
	}
	return errs
}
