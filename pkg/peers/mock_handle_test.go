// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peers

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// mockHandle records written messages; writeErr makes each Write fail.
type mockHandle struct {
	sync.Mutex

	id       uuid.UUID
	writeErr error

	received bytes.Buffer
	writes   int
	closed   bool
}

func newMockHandle() *mockHandle {
	return &mockHandle{id: uuid.New()}
}

func newFailingMockHandle() *mockHandle {
	return &mockHandle{
		id:       uuid.New(),
		writeErr: fmt.Errorf("peer is gone"),
	}
}

func (m *mockHandle) ID() uuid.UUID { return m.id }

func (m *mockHandle) Write(data []byte) error {
	m.Lock()
	defer m.Unlock()

	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}

	m.received.Write(data)
	return nil
}

func (m *mockHandle) Close() error {
	m.Lock()
	defer m.Unlock()

	m.closed = true
	return nil
}

func (m *mockHandle) String() string {
	return fmt.Sprintf("mockHandle{%v}", m.id)
}

func (m *mockHandle) inbox() string {
	m.Lock()
	defer m.Unlock()

	return m.received.String()
}

func (m *mockHandle) writeCount() int {
	m.Lock()
	defer m.Unlock()

	return m.writes
}

func (m *mockHandle) isClosed() bool {
	m.Lock()
	defer m.Unlock()

	return m.closed
}
