// SPDX-FileCopyrightText: 2022 Markus Sommer
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package quicl connects chat peers over QUIC.

All the hard parts, the handshake, congestion control, retransmission, and stream multiplexing,
are done by quic-go. This package only maps QUIC connections to Peers.


Roles
There are two distinct roles when it comes to establishing a connection.
The Listener waits for incoming connections and hands a new Peer to its callback each time a dialer connects,
each in its own goroutine.
Dial connects to a Listener and returns the dialer's Peer.


Transmission
Once connected, both sides are symmetric.
A Peer opens exactly one bidirectional stream on its first Write and sends all its outgoing bytes on it.
Thus, the bytes of successive Writes arrive in order, but without any message boundaries.
The stream's reverse direction stays unused.

On the receiving side, Serve accepts the remote's stream and passes each chunk read to a callback until the
connection ends.
Closing a Peer closes the QUIC connection with the ApplicationShutdown error code,
which the remote recognizes as an orderly shutdown.
*/
package quicl
