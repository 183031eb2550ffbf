// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 quichat contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package webagent lets browsers take part in a room.
//
// Each WebSocket connection is registered as a handle in the room's registry and receives every broadcast. Its
// incoming frames are relayed to the rest of the room. A small JSON API reports the room's state and sends messages.
package webagent

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quichat/pkg/peers"
	"github.com/dtn7/quichat/pkg/roomcode"
)

// maxBodySize of a POST /send request.
const maxBodySize = 64 * 1024

// Room is served by an Agent, e.g., a session.Server.
type Room interface {
	Code() roomcode.Code
	Registry() *peers.Registry
	Send(msg []byte) (peers.Report, error)
	Relay(sender uuid.UUID, msg []byte) (peers.Report, error)
}

// Agent is a http.Handler offering "/ws", "/room" and "/send".
type Agent struct {
	room     Room
	router   *mux.Router
	upgrader websocket.Upgrader
}

// NewAgent for a room. Its ServeHTTP must be bound to a HTTP server.
func NewAgent(room Room) *Agent {
	agent := &Agent{
		room:     room,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{},
	}

	agent.router.HandleFunc("/ws", agent.handleWebSocket).Methods(http.MethodGet)
	agent.router.HandleFunc("/room", agent.handleRoom).Methods(http.MethodGet)
	agent.router.HandleFunc("/send", agent.handleSend).Methods(http.MethodPost)

	return agent
}

func (agent *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agent.router.ServeHTTP(w, r)
}

func (agent *Agent) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, connErr := agent.upgrader.Upgrade(w, r, nil)
	if connErr != nil {
		log.WithError(connErr).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	obs := newObserver(conn)
	if err := agent.room.Registry().Add(obs); err != nil {
		log.WithFields(log.Fields{
			"observer": obs,
			"error":    err,
		}).Info("Rejecting observer")

		_ = obs.Close()
		return
	}

	obs.serve(func(data []byte) {
		if _, err := agent.room.Relay(obs.ID(), data); err != nil {
			log.WithFields(log.Fields{
				"observer": obs,
				"error":    err,
			}).Warn("Relaying observer's message errored")
		}
	})

	agent.room.Registry().Remove(obs)
	_ = obs.Close()
}

// roomResponse is the JSON answer to GET /room.
type roomResponse struct {
	Code  string   `json:"code"`
	Peers []string `json:"peers"`
}

func (agent *Agent) handleRoom(w http.ResponseWriter, _ *http.Request) {
	response := roomResponse{
		Code:  agent.room.Code().String(),
		Peers: []string{},
	}
	for _, id := range agent.room.Registry().IDs() {
		response.Peers = append(response.Peers, id.String())
	}

	writeJSON(w, http.StatusOK, response)
}

// reportResponse is the JSON answer to POST /send.
type reportResponse struct {
	Recipients int               `json:"recipients"`
	Delivered  []string          `json:"delivered"`
	Failed     map[string]string `json:"failed"`
	Error      string            `json:"error,omitempty"`
}

func newReportResponse(report peers.Report) reportResponse {
	response := reportResponse{
		Recipients: report.Recipients,
		Delivered:  []string{},
		Failed:     map[string]string{},
	}
	for _, id := range report.Delivered {
		response.Delivered = append(response.Delivered, id.String())
	}
	for id, err := range report.Failed {
		response.Failed[id.String()] = err.Error()
	}
	return response
}

func (agent *Agent) handleSend(w http.ResponseWriter, r *http.Request) {
	msg, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.WithError(err).Warn("Reading send request errored")
		writeJSON(w, http.StatusBadRequest, reportResponse{Error: err.Error()})
		return
	} else if len(msg) == 0 {
		writeJSON(w, http.StatusBadRequest, reportResponse{Error: "empty message"})
		return
	}

	report, err := agent.room.Send(msg)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, reportResponse{Error: err.Error()})
		return
	}

	log.WithField("report", report).Debug("Sent message from HTTP request")
	writeJSON(w, http.StatusOK, newReportResponse(report))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Writing JSON response errored")
	}
}
