// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dtn7/quichat/pkg/identity"
	"github.com/dtn7/quichat/pkg/localaddr"
	"github.com/dtn7/quichat/pkg/quicl"
	"github.com/dtn7/quichat/pkg/roomcode"
)

// All sessions run on the loopback interface. A code "001x" addresses 127.0.0.1:1001x.
const loopback = localaddr.Static("127.0.0.1")

type inbox struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (i *inbox) write(data []byte) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	i.buf.Write(data)
}

func (i *inbox) String() string {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	return i.buf.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForInbox(t *testing.T, i *inbox, want string) {
	t.Helper()
	waitFor(t, "\""+want+"\"", func() bool { return i.String() == want })
}

func testTransport() quicl.Config {
	conf := quicl.DefaultConfig()
	conf.WriteTimeout = 2 * time.Second
	return conf
}

func startServer(t *testing.T, conf ServerConfig) *Server {
	t.Helper()

	conf.Addresses = loopback
	conf.Host = "127.0.0.1"
	conf.Transport = testTransport()

	server := NewServer(conf)
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	if state := server.State(); state != Listening {
		t.Fatalf("server is %v", state)
	}
	return server
}

func startClient(t *testing.T, code roomcode.Code, in *inbox) *Client {
	t.Helper()

	client := NewClient(ClientConfig{
		Code:      string(code),
		Addresses: loopback,
		OnReceive: in.write,
		Transport: testTransport(),
	})
	if err := client.Start(); err != nil {
		t.Fatal(err)
	}
	if state := client.State(); state != Connected {
		t.Fatalf("client is %v", state)
	}
	return client
}

func TestServerClientExchange(t *testing.T) {
	var serverInbox inbox
	server := startServer(t, ServerConfig{
		OnReceive: func(_ uuid.UUID, data []byte) { serverInbox.write(data) },
	})

	code := server.Code()
	if code[:3] != "001" {
		t.Fatalf("code %q was not derived from 127.0.0.1", code)
	}
	if server.Port() != code.Port() || server.Port() < 10010 || server.Port() > 10019 {
		t.Fatalf("server listens on port %d for code %s", server.Port(), code)
	}

	var clientInbox inbox
	client := startClient(t, code, &clientInbox)

	if target := client.Target(); target.Host != "127.0.0.1" || target.Port != server.Port() {
		t.Fatalf("client dialed %v", target)
	}

	waitFor(t, "registered client", func() bool { return server.Registry().Len() == 1 })

	report, err := server.Send([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	} else if report.Recipients != 1 || len(report.Delivered) != 1 || len(report.Failed) != 0 {
		t.Fatalf("report is %v", report)
	}
	waitForInbox(t, &clientInbox, "hello")

	if err := client.Send([]byte("hi")); err != nil {
		t.Fatal(err)
	}
	waitForInbox(t, &serverInbox, "hi")

	if err := client.Stop(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "deregistered client", func() bool { return server.Registry().Len() == 0 })

	if err := server.Stop(); err != nil {
		t.Fatal(err)
	}
	if state := server.State(); state != Stopped {
		t.Fatalf("server is %v", state)
	}

	// Stopping twice is a no-op.
	if err := server.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := client.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestServerBroadcastAfterDisconnect(t *testing.T) {
	server := startServer(t, ServerConfig{})
	defer func() { _ = server.Stop() }()

	inboxes := make([]inbox, 3)
	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = startClient(t, server.Code(), &inboxes[i])
	}
	waitFor(t, "three clients", func() bool { return server.Registry().Len() == 3 })

	report, err := server.Send([]byte("hi"))
	if err != nil {
		t.Fatal(err)
	} else if report.Recipients != 3 || len(report.Delivered) != 3 || len(report.Failed) != 0 {
		t.Fatalf("report is %v", report)
	}
	for i := range inboxes {
		waitForInbox(t, &inboxes[i], "hi")
	}

	if err := clients[1].Stop(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "two clients", func() bool { return server.Registry().Len() == 2 })

	report, err = server.Send([]byte("bye"))
	if err != nil {
		t.Fatal(err)
	} else if report.Recipients != 2 || len(report.Failed) != 0 {
		t.Fatalf("report is %v", report)
	}

	waitForInbox(t, &inboxes[0], "hibye")
	waitForInbox(t, &inboxes[2], "hibye")

	if s := inboxes[1].String(); s != "hi" {
		t.Fatalf("stopped client received %q", s)
	}

	if err := server.Stop(); err != nil {
		t.Fatal(err)
	}

	// The remaining clients notice the server's shutdown and stop on their own.
	for _, i := range []int{0, 2} {
		select {
		case <-clients[i].Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("client %d was not disconnected", i)
		}

		if state := clients[i].State(); state != Stopped {
			t.Fatalf("client %d is %v", i, state)
		}
		if err := clients[i].Send([]byte("late")); !errors.Is(err, ErrNotRunning) {
			t.Fatalf("client %d sending after the server left returned %v", i, err)
		}
		if err := clients[i].Stop(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestServerRemovesFinishedStream(t *testing.T) {
	var serverInbox inbox
	server := startServer(t, ServerConfig{
		OnReceive: func(_ uuid.UUID, data []byte) { serverInbox.write(data) },
	})
	defer func() { _ = server.Stop() }()

	tlsConf, err := identity.ClientTLSConfig(identity.DefaultCommonName, nil, true, "")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peer, err := quicl.Dial(ctx, server.Addr().String(), tlsConf, testTransport())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = peer.Close() }()

	if err := peer.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	waitForInbox(t, &serverInbox, "ping")
	waitFor(t, "registered client", func() bool { return server.Registry().Len() == 1 })

	// Finishing the stream, while keeping the connection open, ends the membership.
	if err := peer.CloseWrite(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "deregistered client", func() bool { return server.Registry().Len() == 0 })

	select {
	case <-peer.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not close the connection")
	}

	report, err := server.Send([]byte("nobody"))
	if err != nil {
		t.Fatal(err)
	} else if report.Recipients != 0 {
		t.Fatalf("report is %v", report)
	}
}

func TestServerRelay(t *testing.T) {
	server := startServer(t, ServerConfig{Relay: true})
	defer func() { _ = server.Stop() }()

	inboxes := make([]inbox, 3)
	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = startClient(t, server.Code(), &inboxes[i])
		defer func(c *Client) { _ = c.Stop() }(clients[i])
	}
	waitFor(t, "three clients", func() bool { return server.Registry().Len() == 3 })

	if err := clients[0].Send([]byte("relayed")); err != nil {
		t.Fatal(err)
	}

	waitForInbox(t, &inboxes[1], "relayed")
	waitForInbox(t, &inboxes[2], "relayed")

	// The sender does not receive its own message.
	time.Sleep(100 * time.Millisecond)
	if s := inboxes[0].String(); s != "" {
		t.Fatalf("sender received %q", s)
	}
}

func TestServerSendWithoutClients(t *testing.T) {
	server := startServer(t, ServerConfig{})

	report, err := server.Send([]byte("nobody"))
	if err != nil {
		t.Fatal(err)
	} else if report.Recipients != 0 {
		t.Fatalf("report is %v", report)
	}

	if err := server.Stop(); err != nil {
		t.Fatal(err)
	}

	if _, err := server.Send([]byte("late")); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("sending after Stop returned %v", err)
	}
	if err := server.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("restarting returned %v", err)
	}
}

func TestServerPortInUse(t *testing.T) {
	first := startServer(t, ServerConfig{Code: "0015"})
	defer func() { _ = first.Stop() }()

	second := NewServer(ServerConfig{
		Code:      "0015",
		Host:      "127.0.0.1",
		Addresses: loopback,
	})
	if err := second.Start(); !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("binding a used port returned %v", err)
	}
	if state := second.State(); state != Stopped {
		t.Fatalf("server is %v", state)
	}
	if err := second.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestServerAddressUnavailable(t *testing.T) {
	server := NewServer(ServerConfig{Addresses: localaddr.Static("")})
	if err := server.Start(); !errors.Is(err, roomcode.ErrAddressUnavailable) {
		t.Fatalf("starting without an address returned %v", err)
	}
	if state := server.State(); state != Stopped {
		t.Fatalf("server is %v", state)
	}
	if server.Addr() != nil {
		t.Fatal("server without an address is bound")
	}
}

func TestServerInvalidCode(t *testing.T) {
	server := NewServer(ServerConfig{Code: "12a4", Addresses: loopback})
	if err := server.Start(); !errors.Is(err, roomcode.ErrInvalidRoomCode) {
		t.Fatalf("starting with an invalid code returned %v", err)
	}
}

func TestServerMissingCertificate(t *testing.T) {
	dir := t.TempDir()
	server := NewServer(ServerConfig{
		Code:      "0016",
		Host:      "127.0.0.1",
		Addresses: loopback,
		CertFile:  filepath.Join(dir, "cert.pem"),
		KeyFile:   filepath.Join(dir, "key.pem"),
	})
	if err := server.Start(); !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("starting without a certificate returned %v", err)
	}
}

func TestServerStopIdle(t *testing.T) {
	server := NewServer(ServerConfig{})
	if err := server.Stop(); err != nil {
		t.Fatal(err)
	}
	if state := server.State(); state != Stopped {
		t.Fatalf("server is %v", state)
	}
	if err := server.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("starting a stopped server returned %v", err)
	}
}

func TestClientPinnedCertificate(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem")
	if err := identity.WriteFiles(certFile, keyFile, identity.DefaultCommonName, time.Hour); err != nil {
		t.Fatal(err)
	}

	server := startServer(t, ServerConfig{
		Code:             "0017",
		CertFile:         certFile,
		KeyFile:          keyFile,
		WatchCertificate: true,
	})
	defer func() { _ = server.Stop() }()

	tlsConf, err := identity.ClientTLSConfig(identity.DefaultCommonName, nil, false, certFile)
	if err != nil {
		t.Fatal(err)
	}

	var in inbox
	client := NewClient(ClientConfig{
		Code:      "0017",
		Target:    &roomcode.Target{Host: "127.0.0.1", Port: 10017},
		TLS:       tlsConf,
		OnReceive: in.write,
	})
	if err := client.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Stop() }()

	waitFor(t, "registered client", func() bool { return server.Registry().Len() == 1 })
	if _, err := server.Send([]byte("pinned")); err != nil {
		t.Fatal(err)
	}
	waitForInbox(t, &in, "pinned")
}

func TestClientInvalidCode(t *testing.T) {
	for _, code := range []string{"", "12a4", "123", "12345", "9990"} {
		client := NewClient(ClientConfig{Code: code, Addresses: loopback})
		if err := client.Start(); !errors.Is(err, roomcode.ErrInvalidRoomCode) {
			t.Fatalf("code %q returned %v", code, err)
		}
		if state := client.State(); state != Stopped {
			t.Fatalf("client is %v", state)
		}

		select {
		case <-client.Done():
		default:
			t.Fatalf("client for code %q is not done", code)
		}
	}
}

func TestClientAddressUnavailable(t *testing.T) {
	client := NewClient(ClientConfig{Code: "0427", Addresses: localaddr.Static("no address")})
	if err := client.Start(); !errors.Is(err, roomcode.ErrAddressUnavailable) {
		t.Fatalf("starting without an address returned %v", err)
	}
}

func TestClientNoServer(t *testing.T) {
	client := NewClient(ClientConfig{
		Code:        "0019",
		Addresses:   loopback,
		DialTimeout: 500 * time.Millisecond,
	})
	if err := client.Start(); !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("dialing nobody returned %v", err)
	}
	if err := client.Send([]byte("void")); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("sending without a connection returned %v", err)
	}
}
